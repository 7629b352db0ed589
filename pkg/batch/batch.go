// Package batch runs launch analysis over a directory of trace files: it
// groups files into cycles, matches identity snapshots once, then analyses
// every trace on a bounded worker pool.
package batch

import (
	"errors"

	"github.com/Sumatoshi-tech/launchtrace/pkg/cycle"
	"github.com/Sumatoshi-tech/launchtrace/pkg/launch"
	"github.com/Sumatoshi-tech/launchtrace/pkg/reaction"
)

// Batch-fatal errors.
var (
	ErrUnreadableDir    = errors.New("input directory is unreadable")
	ErrNoMatchableFiles = errors.New("no trace file matches an app keyword")
)

// ErrTracePanicked marks a trace whose analysis panicked; it is recorded as a
// per-trace failure.
var ErrTracePanicked = errors.New("trace analysis panicked")

// Mode selects the per-trace analysis.
type Mode uint8

// Modes.
const (
	ModeLaunch Mode = iota
	ModeReaction
)

// StoreKind selects the event-store backend used per trace.
type StoreKind string

// Store kinds.
const (
	StoreMemory StoreKind = "memory"
	StoreSQLite StoreKind = "sqlite"
)

// Batch is one directory of traces from one device.
type Batch struct {
	// Label tells the device runs apart, e.g. "DUT" or "REF".
	Label string
	Dir   string
}

// ReactionRecord is a reaction analysis placed in its batch slot.
type ReactionRecord struct {
	File    string     `json:"file"`
	App     string     `json:"app"`
	Ordinal int        `json:"ordinal"`
	Cycle   int        `json:"cycle"`
	Kind    cycle.Kind `json:"kind"`

	reaction.Record `yaml:",inline"`
}

// Failure is a trace that could not be analysed at all.
type Failure struct {
	File  string `json:"file"`
	Error string `json:"error"`
}

// Summary counts the outcome of a batch. Degraded traces were analysed with
// at least one absent anchor; failed ones produced no metrics.
type Summary struct {
	Attempted int       `json:"attempted"`
	Succeeded int       `json:"succeeded"`
	Degraded  int       `json:"degraded"`
	Failed    []Failure `json:"failed"`
}

// ResultSet is the output of one batch.
type ResultSet struct {
	Label string `json:"label"`
	// Device is the common prefix of the trace file names, e.g. "DEVICE_250101".
	Device    string                 `json:"device"`
	Records   []launch.MetricsRecord `json:"records"`
	Reactions []ReactionRecord       `json:"reactions,omitempty"`
	Summary   Summary                `json:"summary"`
}
