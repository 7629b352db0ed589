// Package launch runs the per-trace launch analysis: anchor resolution,
// phase reconstruction and resource attribution, in that order.
package launch

import (
	"github.com/Sumatoshi-tech/launchtrace/pkg/anchor"
	"github.com/Sumatoshi-tech/launchtrace/pkg/attribution"
	"github.com/Sumatoshi-tech/launchtrace/pkg/cycle"
	"github.com/Sumatoshi-tech/launchtrace/pkg/phase"
	"github.com/Sumatoshi-tech/launchtrace/pkg/tracestore"
)

// Key identifies a record's slot in a batch.
type Key struct {
	App   string     `json:"app"`
	Cycle int        `json:"cycle"`
	Kind  cycle.Kind `json:"kind"`
}

// MetricsRecord is the analysis output of one trace.
type MetricsRecord struct {
	File        string     `json:"file"`
	App         string     `json:"app"`
	DisplayName string     `json:"display_name"`
	Ordinal     int        `json:"ordinal"`
	Cycle       int        `json:"cycle"`
	Kind        cycle.Kind `json:"kind"`

	Package         string             `json:"package"`
	PackageFallback bool               `json:"package_fallback,omitempty"`
	Process         anchor.AppProcess  `json:"process"`
	Category        phase.Category     `json:"category"`
	LaunchType      phase.LaunchType   `json:"launch_type"`
	Window          tracestore.Window  `json:"window"`
	ExecutionMs     float64            `json:"execution_ms"`
	IdleDiscarded   bool               `json:"idle_discarded,omitempty"`
	Phases          []phase.Phase      `json:"phases"`
	Camera          []phase.Phase      `json:"camera,omitempty"`
	Anchors         map[string]bool    `json:"anchors"`
	Missing         []string           `json:"missing,omitempty"`
	IdentitySize    int                `json:"identity_size"`
	Attribution     attribution.Report `json:"attribution"`
}

// Key returns the record's batch slot.
func (r MetricsRecord) Key() Key {
	return Key{App: r.App, Cycle: r.Cycle, Kind: r.Kind}
}

// Degraded reports whether any optional anchor was absent.
func (r MetricsRecord) Degraded() bool {
	return len(r.Missing) > 0
}

// Phase returns the duration of the named phase, or 0.
func (r MetricsRecord) Phase(name string) float64 {
	return phase.Result{Phases: r.Phases, Camera: r.Camera}.Get(name)
}
