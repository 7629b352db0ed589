// Package anchor resolves the milestone spans of one launch trace: touch
// input, process start, framework init, first frame and idle settle.
//
// Only three lookups are fatal for a trace (touch-down, package and app
// process). Every other anchor is optional and absent anchors are reported
// as unset values, never as errors.
package anchor

import (
	"path/filepath"
	"strings"

	"github.com/Sumatoshi-tech/launchtrace/pkg/optional"
	"github.com/Sumatoshi-tech/launchtrace/pkg/tracestore"
)

// Anchor is a resolved milestone.
type Anchor struct {
	Start int64 `json:"start"`
	Dur   int64 `json:"dur"`
}

// End returns Start+Dur.
func (a Anchor) End() int64 {
	return a.Start + a.Dur
}

// FromSpan converts a span into an anchor.
func FromSpan(s tracestore.Span) Anchor {
	return Anchor{Start: s.Start, Dur: s.Dur}
}

// Opt is an optional anchor.
type Opt = optional.Option[Anchor]

// AppProcess identifies the launched app.
type AppProcess struct {
	PID  int    `json:"pid"`
	TID  int    `json:"tid"`
	Name string `json:"name"`
	// Launcher is set when the process was resolved through the launcher
	// fallback.
	Launcher bool `json:"launcher,omitempty"`
}

// Camera holds the camera-specific anchors.
type Camera struct {
	OnCreate          Opt `json:"on_create"`
	OpenCameraRequest Opt `json:"open_camera_request"`
	OnResume          Opt `json:"on_resume"`
	StartPreview      Opt `json:"start_preview"`
}

// Set is every anchor resolved for one trace.
type Set struct {
	Package         string     `json:"package"`
	PackageFallback bool       `json:"package_fallback,omitempty"`
	Recent          bool       `json:"recent,omitempty"`
	Process         AppProcess `json:"process"`

	LauncherPID optional.Option[int] `json:"launcher_pid"`

	TouchDown          Anchor `json:"touch_down"`
	TouchUp            Opt    `json:"touch_up"`
	ProcessStart       Opt    `json:"process_start"`
	ActivityThreadMain Opt    `json:"activity_thread_main"`
	BindApplication    Opt    `json:"bind_application"`
	ActivityStart      Opt    `json:"activity_start"`
	ActivityResume     Opt    `json:"activity_resume"`
	FirstFrame         Opt    `json:"first_frame"`
	IdleSettle         Opt    `json:"idle_settle"`
	LaunchingEnd       Opt    `json:"launching_end"`
	AnimationEnd       Opt    `json:"animation_end"`
	Camera             Camera `json:"camera"`
}

// Presence reports which optional anchors were found, keyed by anchor name.
func (s Set) Presence() map[string]bool {
	return map[string]bool{
		"touch_up":             s.TouchUp.Set(),
		"process_start":        s.ProcessStart.Set(),
		"activity_thread_main": s.ActivityThreadMain.Set(),
		"bind_application":     s.BindApplication.Set(),
		"activity_start":       s.ActivityStart.Set(),
		"activity_resume":      s.ActivityResume.Set(),
		"first_frame":          s.FirstFrame.Set(),
		"idle_settle":          s.IdleSettle.Set(),
		"launching_end":        s.LaunchingEnd.Set(),
		"animation_end":        s.AnimationEnd.Set(),
	}
}

// Missing returns the names of absent optional anchors in sorted order.
func (s Set) Missing() []string {
	var out []string

	for _, name := range presenceOrder {
		if !s.Presence()[name] {
			out = append(out, name)
		}
	}

	return out
}

var presenceOrder = []string{
	"touch_up", "process_start", "activity_thread_main", "bind_application",
	"activity_start", "activity_resume", "first_frame", "idle_settle",
	"launching_end", "animation_end",
}

// IsRecentFile reports whether a trace file name flags a Recent-apps launch.
func IsRecentFile(fileName string) bool {
	return strings.Contains(stem(fileName), "recent")
}

// stem returns the lower-cased base name without extension.
func stem(fileName string) string {
	base := filepath.Base(fileName)

	return strings.ToLower(strings.TrimSuffix(base, filepath.Ext(base)))
}
