// Package tracestore defines the queryable, time-ordered event store that
// launch analysis runs against, with an in-memory and a SQLite backend.
//
// All timestamps and durations are nanoseconds. Query results are ordered by
// start timestamp, ties broken by insertion order.
package tracestore

import (
	"context"

	"github.com/Sumatoshi-tech/launchtrace/pkg/optional"
)

// Span is a named slice of time attributed to a thread, or to a process
// track when TID is zero.
type Span struct {
	ID    int64  `json:"id"`
	Name  string `json:"name"`
	Start int64  `json:"start"`
	Dur   int64  `json:"dur"`
	TID   int    `json:"tid,omitempty"`
	PID   int    `json:"pid"`
	Depth int    `json:"depth,omitempty"`
}

// End returns Start+Dur.
func (s Span) End() int64 {
	return s.Start + s.Dur
}

// Async reports whether the span sits on a process track.
func (s Span) Async() bool {
	return s.TID == 0
}

// Thread describes one thread seen in the trace.
type Thread struct {
	TID  int    `json:"tid"`
	PID  int    `json:"pid"`
	Name string `json:"name"`
}

// IsMain reports whether the thread is its process's main thread.
func (t Thread) IsMain() bool {
	return t.TID == t.PID
}

// Process describes one process seen in the trace. Name may be empty when
// the trace never recorded it.
type Process struct {
	PID  int    `json:"pid"`
	Name string `json:"name"`
}

// StateSlice is one interval of a thread's scheduling state. State uses the
// kernel letters ("R", "R+", "S", "D", ...) plus "Running".
type StateSlice struct {
	TID   int    `json:"tid"`
	Start int64  `json:"start"`
	Dur   int64  `json:"dur"`
	State string `json:"state"`
}

// SchedSlice is one interval a thread spent on a CPU.
type SchedSlice struct {
	CPU   int   `json:"cpu"`
	TID   int   `json:"tid"`
	Start int64 `json:"start"`
	Dur   int64 `json:"dur"`
}

// Thread states as stored in StateSlice.State.
const (
	StateRunning         = "Running"
	StateRunnable        = "R"
	StateRunnablePreempt = "R+"
	StateSleeping        = "S"
	StateUninterruptible = "D"
)

// Window is a half-open time range [Start, End).
type Window struct {
	Start int64 `json:"start"`
	End   int64 `json:"end"`
}

// Dur returns End-Start, or 0 for an empty or inverted window.
func (w Window) Dur() int64 {
	if w.End <= w.Start {
		return 0
	}

	return w.End - w.Start
}

// Valid reports whether the window spans a positive duration.
func (w Window) Valid() bool {
	return w.End > w.Start
}

// Clip returns the length of [start, end) that falls inside the window.
func (w Window) Clip(start, end int64) int64 {
	lo := max(start, w.Start)
	hi := min(end, w.End)

	if hi <= lo {
		return 0
	}

	return hi - lo
}

// Track restricts span queries to thread or process tracks.
type Track uint8

// Track values.
const (
	TrackAny Track = iota
	TrackThread
	TrackProcess
)

// SpanQuery selects spans. Every non-zero field is a filter; filters AND.
type SpanQuery struct {
	// Name matches exactly.
	Name string
	// Names matches any of the listed names exactly.
	Names []string
	// Pattern is a SQL LIKE pattern ('%' and '_', ASCII case-insensitive).
	Pattern string
	PID     int
	TID     int
	Track   Track
	// MinStart and MaxStart bound Start inclusively.
	MinStart optional.Option[int64]
	MaxStart optional.Option[int64]
	// Descending returns the latest spans first.
	Descending bool
	Limit      int
}

// Timeline names an interval table usable in overlap queries.
type Timeline uint8

// Timelines.
const (
	TimelineThreadState Timeline = iota
	TimelineSched
)

// OverlapQuery selects intervals of a timeline that intersect Window.
type OverlapQuery struct {
	Timeline Timeline
	Window   Window
	TIDs     []int
	CPUs     []int
	// Labels filters thread states; ignored for the sched timeline.
	Labels []string
}

// Segment is an interval returned by an overlap query. Start and Dur are the
// original interval; Overlap is the part inside the query window.
type Segment struct {
	Label   string
	TID     int
	PID     int
	CPU     int
	Start   int64
	Dur     int64
	Overlap int64
}

// ThreadQuery selects threads.
type ThreadQuery struct {
	// Pattern is a SQL LIKE pattern on the thread name.
	Pattern  string
	PID      int
	MainOnly bool
}

// Store is the read-only query surface of a loaded trace.
type Store interface {
	// FirstSpan returns the first span matching q, and false when none does.
	FirstSpan(ctx context.Context, q SpanQuery) (Span, bool, error)
	Spans(ctx context.Context, q SpanQuery) ([]Span, error)
	Overlap(ctx context.Context, q OverlapQuery) ([]Segment, error)
	Threads(ctx context.Context, q ThreadQuery) ([]Thread, error)
	Processes(ctx context.Context) ([]Process, error)
	Close() error
}

// Dataset is the raw content of a trace, as produced by a loader.
type Dataset struct {
	Spans     []Span       `json:"spans"`
	Threads   []Thread     `json:"threads"`
	Processes []Process    `json:"processes"`
	States    []StateSlice `json:"states"`
	Sched     []SchedSlice `json:"sched"`
}
