// Package attribution aggregates resource usage inside a launch's execution
// window: CPU time, thread states, I/O stalls, asset loads, binder calls,
// background services and foreign process starts.
package attribution

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/Sumatoshi-tech/launchtrace/pkg/config"
	"github.com/Sumatoshi-tech/launchtrace/pkg/optional"
	"github.com/Sumatoshi-tech/launchtrace/pkg/tracestore"
	"github.com/Sumatoshi-tech/launchtrace/pkg/units"
)

const (
	swapperPattern  = "swapper%"
	libraryNameSep  = " , "
	pidPrefix       = "PID-"
	unknownThread   = "unknown"
	unknownProcess  = "Unknown"
	libraryNamePart = 1
)

var errStoreRequired = errors.New("aggregator requires a store")

// kernel worker thread names that never stand in for a process name.
var anonymousMainThreads = []string{"%binder%", "%kworker%"}

// Options configures an Aggregator.
type Options struct {
	TopN                   int
	Cores                  []int
	IOStallBudget          time.Duration
	BackgroundSignificance time.Duration
	AssetLoadFloor         time.Duration
	LibraryPrefix          string
	AssetSlicePattern      string
	AssetProcesses         []string
	BinderSliceName        string
	AbnormalSlice          string
	BackgroundPatterns     []string
	Logger                 *slog.Logger
}

// NewOptions builds options from the loaded configuration.
func NewOptions(cfg config.Config, logger *slog.Logger) Options {
	return Options{
		TopN:                   cfg.Attribution.TopN,
		Cores:                  cfg.Attribution.Cores,
		IOStallBudget:          cfg.Thresholds.IOStallBudget,
		BackgroundSignificance: cfg.Thresholds.BackgroundSignificance,
		AssetLoadFloor:         cfg.Thresholds.AssetLoadFloor,
		LibraryPrefix:          cfg.Attribution.LibraryPrefix,
		AssetSlicePattern:      cfg.Attribution.AssetSlicePattern,
		AssetProcesses:         cfg.Attribution.AssetProcesses,
		BinderSliceName:        cfg.Attribution.BinderSliceName,
		AbnormalSlice:          cfg.Attribution.AbnormalSlice,
		BackgroundPatterns:     cfg.Attribution.BackgroundPatterns,
		Logger:                 logger,
	}
}

// Scope is what the aggregations are bound to.
type Scope struct {
	Window tracestore.Window
	// AppPID is the launched process; its main thread has TID == AppPID.
	AppPID int
	// AppTID is the thread whose states and binder calls are reported.
	AppTID int
	// Identity maps pids to names from a memory snapshot. May be nil.
	Identity map[int]string
}

// Aggregator computes attribution reports against one store.
type Aggregator struct {
	store tracestore.Store
	opts  Options
}

// New creates an Aggregator.
func New(store tracestore.Store, opts Options) (*Aggregator, error) {
	if store == nil {
		return nil, errStoreRequired
	}

	if opts.Logger == nil {
		opts.Logger = slog.New(slog.DiscardHandler)
	}

	return &Aggregator{store: store, opts: opts}, nil
}

// Aggregate runs every aggregation over scope. An empty window yields an
// empty report. Only store failures are returned as errors.
func (a *Aggregator) Aggregate(ctx context.Context, scope Scope) (Report, error) {
	rep := emptyReport()

	if !scope.Window.Valid() {
		return rep, nil
	}

	names, err := a.loadNames(ctx)
	if err != nil {
		return Report{}, err
	}

	steps := []struct {
		name string
		run  func() error
	}{
		{"thread states", func() (err error) { rep.States, err = a.ThreadStates(ctx, scope); return err }},
		{"block io", func() (err error) { rep.BlockIO, err = a.BlockIO(ctx, scope); return err }},
		{"asset loads", func() (err error) { rep.AssetLoads, err = a.AssetLoads(ctx, scope, names); return err }},
		{"cpu by process", func() (err error) { rep.CPUByProcess, err = a.CPUByProcess(ctx, scope, names); return err }},
		{"cpu by thread", func() (err error) { rep.CPUByThread, err = a.CPUByThread(ctx, scope, names); return err }},
		{"binder", func() (err error) { rep.Binder, err = a.Binder(ctx, scope); return err }},
		{"abnormal starts", func() (err error) { rep.Abnormal, err = a.AbnormalStarts(ctx, scope, names); return err }},
		{"background", func() (err error) { rep.Background, err = a.Background(ctx, scope, names); return err }},
	}

	for _, step := range steps {
		if err := step.run(); err != nil {
			return Report{}, fmt.Errorf("%s: %w", step.name, err)
		}
	}

	return rep, nil
}

// ThreadStates sums the app thread's states clipped to the window.
func (a *Aggregator) ThreadStates(ctx context.Context, scope Scope) (StateTotals, error) {
	segs, err := a.store.Overlap(ctx, tracestore.OverlapQuery{
		Timeline: tracestore.TimelineThreadState,
		Window:   scope.Window,
		TIDs:     []int{scope.AppTID},
	})
	if err != nil {
		return StateTotals{}, err
	}

	byState := SumBy(segs, segmentLabel, segmentOverlap)

	var ns [4]int64

	for _, s := range byState {
		switch s.Key {
		case tracestore.StateRunning:
			ns[0] += s.Total
		case tracestore.StateRunnable, tracestore.StateRunnablePreempt:
			ns[1] += s.Total
		case tracestore.StateUninterruptible:
			ns[2] += s.Total
		case tracestore.StateSleeping:
			ns[3] += s.Total
		}
	}

	return StateTotals{
		Running:         units.Milliseconds(ns[0]),
		Runnable:        units.Milliseconds(ns[1]),
		Uninterruptible: units.Milliseconds(ns[2]),
		Sleeping:        units.Milliseconds(ns[3]),
	}, nil
}

type stall struct {
	library string
	dur     int64
}

// BlockIO attributes uninterruptible sleeps on the app main thread to the
// library-load span that started at most IOStallBudget before them.
func (a *Aggregator) BlockIO(ctx context.Context, scope Scope) ([]LibraryStall, error) {
	libs, err := a.store.Spans(ctx, tracestore.SpanQuery{
		Pattern:  a.opts.LibraryPrefix + "%",
		TID:      scope.AppPID,
		Track:    tracestore.TrackThread,
		MinStart: optional.Some(scope.Window.Start),
		MaxStart: optional.Some(scope.Window.End),
	})
	if err != nil {
		return nil, err
	}

	budget := int64(a.opts.IOStallBudget)

	var stalls []stall

	for _, lib := range libs {
		segs, err := a.store.Overlap(ctx, tracestore.OverlapQuery{
			Timeline: tracestore.TimelineThreadState,
			Window:   tracestore.Window{Start: lib.Start, End: lib.Start + budget + 1},
			TIDs:     []int{scope.AppPID},
			Labels:   []string{tracestore.StateUninterruptible},
		})
		if err != nil {
			return nil, err
		}

		idx := slices.IndexFunc(segs, func(s tracestore.Segment) bool { return s.Start >= lib.Start })
		if idx < 0 {
			continue
		}

		stalls = append(stalls, stall{library: libraryName(lib.Name), dur: segs[idx].Dur})
	}

	sums := TopN(SumBy(stalls,
		func(s stall) (string, bool) { return s.library, s.library != "" },
		func(s stall) int64 { return s.dur },
	), a.opts.TopN)

	out := make([]LibraryStall, 0, len(sums))
	for _, s := range sums {
		out = append(out, LibraryStall{
			Library:     s.Key,
			TotalNs:     s.Total,
			TotalMs:     units.Milliseconds(s.Total),
			Occurrences: s.Count,
		})
	}

	return out, nil
}

// libraryName is the second " , " separated field of a library-load span, or
// "" when absent.
func libraryName(span string) string {
	parts := strings.Split(span, libraryNameSep)
	if len(parts) <= libraryNamePart {
		return ""
	}

	return strings.TrimSpace(parts[libraryNamePart])
}

// AssetLoads lists slow asset-load spans on the system processes and the app.
func (a *Aggregator) AssetLoads(ctx context.Context, scope Scope, names nameTable) ([]AssetLoad, error) {
	pids := names.mainPIDs(a.opts.AssetProcesses)
	if !slices.Contains(pids, scope.AppPID) {
		pids = append(pids, scope.AppPID)
	}

	spans, err := a.store.Spans(ctx, tracestore.SpanQuery{
		Pattern:  a.opts.AssetSlicePattern,
		Track:    tracestore.TrackThread,
		MinStart: optional.Some(scope.Window.Start + 1),
		MaxStart: optional.Some(scope.Window.End - 1),
	})
	if err != nil {
		return nil, err
	}

	out := []AssetLoad{}

	for _, s := range spans {
		if s.Dur <= int64(a.opts.AssetLoadFloor) || !slices.Contains(pids, s.PID) {
			continue
		}

		out = append(out, AssetLoad{Name: s.Name, PID: s.PID, Ms: units.Milliseconds(s.Dur)})
	}

	return out, nil
}

// CPUByProcess sums scheduled time on the configured cores per process name.
func (a *Aggregator) CPUByProcess(ctx context.Context, scope Scope, names nameTable) ([]ProcessCPU, error) {
	segs, err := a.schedSegments(ctx, scope, names)
	if err != nil {
		return nil, err
	}

	firstPID := make(map[string]int)

	sums := TopN(SumBy(segs,
		func(s tracestore.Segment) (string, bool) {
			name := names.processName(s.PID, scope.Identity, true)
			if _, ok := firstPID[name]; !ok {
				firstPID[name] = s.PID
			}

			return name, true
		},
		segmentOverlap,
	), a.opts.TopN)

	capacity := scope.Window.Dur() * int64(len(a.opts.Cores))

	out := make([]ProcessCPU, 0, len(sums))
	for _, s := range sums {
		out = append(out, ProcessCPU{
			Name:        s.Key,
			PID:         firstPID[s.Key],
			Ms:          units.Milliseconds(s.Total),
			Occurrences: s.Count,
			Percent:     units.Percent(s.Total, capacity),
		})
	}

	return out, nil
}

type threadKey struct {
	thread  string
	process string
}

// CPUByThread sums scheduled time on the configured cores per (thread,
// process) name pair.
func (a *Aggregator) CPUByThread(ctx context.Context, scope Scope, names nameTable) ([]ThreadCPU, error) {
	segs, err := a.schedSegments(ctx, scope, names)
	if err != nil {
		return nil, err
	}

	firstTID := make(map[threadKey]int)

	sums := TopN(SumBy(segs,
		func(s tracestore.Segment) (threadKey, bool) {
			k := threadKey{
				thread:  cmp.Or(names.threads[s.TID].Name, unknownThread),
				process: cmp.Or(names.processName(s.PID, scope.Identity, false), unknownProcess),
			}
			if _, ok := firstTID[k]; !ok {
				firstTID[k] = s.TID
			}

			return k, true
		},
		segmentOverlap,
	), a.opts.TopN)

	capacity := scope.Window.Dur() * int64(len(a.opts.Cores))

	out := make([]ThreadCPU, 0, len(sums))
	for _, s := range sums {
		out = append(out, ThreadCPU{
			Thread:      s.Key.thread,
			Process:     s.Key.process,
			TID:         firstTID[s.Key],
			Ms:          units.Milliseconds(s.Total),
			Occurrences: s.Count,
			Percent:     units.Percent(s.Total, capacity),
		})
	}

	return out, nil
}

func (a *Aggregator) schedSegments(ctx context.Context, scope Scope, names nameTable) ([]tracestore.Segment, error) {
	if len(a.opts.Cores) == 0 {
		return nil, nil
	}

	segs, err := a.store.Overlap(ctx, tracestore.OverlapQuery{
		Timeline: tracestore.TimelineSched,
		Window:   scope.Window,
		CPUs:     a.opts.Cores,
	})
	if err != nil {
		return nil, err
	}

	return slices.DeleteFunc(segs, func(s tracestore.Segment) bool {
		return tracestore.Like(swapperPattern, names.threads[s.TID].Name)
	}), nil
}

// Binder counts binder transactions on the app thread that start before the
// window ends.
func (a *Aggregator) Binder(ctx context.Context, scope Scope) (BinderStats, error) {
	spans, err := a.store.Spans(ctx, tracestore.SpanQuery{
		Name:     a.opts.BinderSliceName,
		TID:      scope.AppTID,
		MaxStart: optional.Some(scope.Window.End - 1),
	})
	if err != nil {
		return BinderStats{}, err
	}

	var total int64
	for _, s := range spans {
		total += s.Dur
	}

	return BinderStats{Count: len(spans), Ms: units.Milliseconds(total)}, nil
}

// AbnormalStarts lists other processes initialising inside the window.
func (a *Aggregator) AbnormalStarts(ctx context.Context, scope Scope, names nameTable) ([]AbnormalStart, error) {
	spans, err := a.store.Spans(ctx, tracestore.SpanQuery{
		Name:     a.opts.AbnormalSlice,
		Track:    tracestore.TrackThread,
		MinStart: optional.Some(scope.Window.Start),
		MaxStart: optional.Some(scope.Window.End),
	})
	if err != nil {
		return nil, err
	}

	out := []AbnormalStart{}

	for _, s := range spans {
		if s.PID == scope.AppPID {
			continue
		}

		proc := names.processes[s.PID]
		if proc == "" {
			proc = cmp.Or(names.threads[s.TID].Name, pidPrefix+strconv.Itoa(s.PID))
		}

		out = append(out, AbnormalStart{
			PID:     s.PID,
			Process: proc,
			Slice:   s.Name,
			Start:   s.Start,
			Ms:      units.Milliseconds(s.Dur),
		})
	}

	return out, nil
}

// Background reports watched services whose main thread was running or
// runnable for more than BackgroundSignificance inside the window.
func (a *Aggregator) Background(ctx context.Context, scope Scope, names nameTable) ([]BackgroundActivity, error) {
	out := []BackgroundActivity{}

	for _, th := range names.mains {
		name := cmp.Or(names.processes[th.PID], th.Name)
		if !slices.ContainsFunc(a.opts.BackgroundPatterns, func(p string) bool { return tracestore.Like(p, name) }) {
			continue
		}

		segs, err := a.store.Overlap(ctx, tracestore.OverlapQuery{
			Timeline: tracestore.TimelineThreadState,
			Window:   scope.Window,
			TIDs:     []int{th.TID},
			Labels:   []string{tracestore.StateRunning, tracestore.StateRunnable, tracestore.StateRunnablePreempt},
		})
		if err != nil {
			return nil, err
		}

		var active int64
		for _, s := range segs {
			active += s.Overlap
		}

		if active > int64(a.opts.BackgroundSignificance) {
			out = append(out, BackgroundActivity{Name: name, TID: th.TID, Ms: units.Milliseconds(active)})
		}
	}

	return out, nil
}

func segmentLabel(s tracestore.Segment) (string, bool) {
	return s.Label, true
}

func segmentOverlap(s tracestore.Segment) int64 {
	return s.Overlap
}
