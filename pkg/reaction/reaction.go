// Package reaction measures how quickly the system reacts to a launcher tap:
// from touch-down through the starting window and the transition
// transaction to the launcher's first frame after the opening animation.
package reaction

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/Sumatoshi-tech/launchtrace/pkg/anchor"
	"github.com/Sumatoshi-tech/launchtrace/pkg/config"
	"github.com/Sumatoshi-tech/launchtrace/pkg/optional"
	"github.com/Sumatoshi-tech/launchtrace/pkg/phase"
	"github.com/Sumatoshi-tech/launchtrace/pkg/tracestore"
	"github.com/Sumatoshi-tech/launchtrace/pkg/units"
)

// Phase names, in report order.
const (
	TouchDuration             = "Touch Duration"
	TouchUpToStartingWindow   = "Touch Up ~ AddStartingWindow"
	StartingWindow            = "AddStartingWindow"
	StartingWindowToFrame     = "AddStartingWindow ~ Choreographer"
	Choreographer             = "Choreographer"
	ChoreographerToTransition = "Choreographer ~ onTransactionReady"
	TransactionReady          = "onTransactionReady"
	TransactionToDrawFrame    = "onTransactionReady ~ drawFrame"
	DrawFrame                 = "drawFrame"
	ReactionTime              = "App Reaction Time"
)

const (
	sliceStartingWindow   = "addStartingWindow"
	sliceTransactionReady = "onTransactionReady"
	sliceAnimator         = "animator"
	drawFramePattern      = "%DrawFrame%"
	framePattern          = "Choreographer#doFrame%"

	// DefaultSystemUIPattern matches the SystemUI main thread.
	DefaultSystemUIPattern = "%ndroid.systemui%"
)

// Options configures Analyze.
type Options struct {
	Apps config.AppsConfig
	// SystemUIPattern is a LIKE pattern on the SystemUI main thread name.
	SystemUIPattern string
	Logger          *slog.Logger
}

// Milestones are the anchors a reaction is measured between.
type Milestones struct {
	TouchDown        anchor.Anchor `json:"touch_down"`
	TouchUp          anchor.Opt    `json:"touch_up"`
	StartingWindow   anchor.Opt    `json:"starting_window"`
	Frame            anchor.Opt    `json:"frame"`
	TransactionReady anchor.Opt    `json:"transaction_ready"`
	DrawFrame        anchor.Opt    `json:"draw_frame"`
}

// Record is the reaction timeline of one trace.
type Record struct {
	// Package is empty when the trace names no launch.
	Package    string            `json:"package"`
	Window     tracestore.Window `json:"window"`
	ReactionMs float64           `json:"reaction_ms"`
	Phases     []phase.Phase     `json:"phases"`
	Milestones Milestones        `json:"milestones"`
}

// Get returns the duration of the named phase, or 0.
func (r Record) Get(name string) float64 {
	for _, p := range r.Phases {
		if p.Name == name {
			return p.Ms
		}
	}

	return 0
}

// Analyze resolves the reaction milestones of the trace in store. Only a
// missing touch-down is fatal.
func Analyze(ctx context.Context, store tracestore.Store, opts Options) (Record, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	loc, err := anchor.NewLocator(store, opts.Apps, logger)
	if err != nil {
		return Record{}, err
	}

	m, pkg, err := locate(ctx, store, loc, opts)
	if err != nil {
		return Record{}, err
	}

	rec := Record{Package: pkg, Milestones: m}
	rec.Phases = phases(m)
	rec.Window = tracestore.Window{Start: m.TouchDown.Start, End: m.TouchDown.Start}

	if end, ok := endOf(m.DrawFrame).Get(); ok && end > m.TouchDown.Start {
		rec.Window.End = end
	}

	rec.ReactionMs = units.Milliseconds(rec.Window.Dur())
	rec.Phases = append(rec.Phases, phase.Phase{
		Name:     ReactionTime,
		Ms:       rec.ReactionMs,
		Chain:    phase.ChainCommon,
		Resolved: m.DrawFrame.Set(),
	})

	return rec, nil
}

func locate(ctx context.Context, store tracestore.Store, loc *anchor.Locator, opts Options) (Milestones, string, error) {
	var m Milestones

	down, err := loc.TouchDown(ctx)
	if err != nil {
		return m, "", err
	}

	m.TouchDown = down

	pkg, _, err := loc.AppPackage(ctx, false)
	if err != nil && !errors.Is(err, anchor.ErrNoPackage) {
		return m, "", err
	}

	launcher, err := loc.LauncherPID(ctx)
	if err != nil {
		return m, "", err
	}

	if m.TouchUp, err = loc.TouchUp(ctx, launcher); err != nil {
		return m, "", err
	}

	if m.StartingWindow, err = loc.Named(ctx, sliceStartingWindow, 0); err != nil {
		return m, "", err
	}

	if m.Frame, err = systemUIFrame(ctx, store, opts.SystemUIPattern); err != nil {
		return m, "", err
	}

	if m.TransactionReady, err = loc.Named(ctx, sliceTransactionReady, 0); err != nil {
		return m, "", err
	}

	if m.DrawFrame, err = launcherDrawFrame(ctx, store, launcher); err != nil {
		return m, "", err
	}

	return m, pkg, nil
}

// systemUIFrame returns the first frame callback on the SystemUI thread that
// added the starting window, at or after it.
func systemUIFrame(ctx context.Context, store tracestore.Store, pattern string) (anchor.Opt, error) {
	if pattern == "" {
		pattern = DefaultSystemUIPattern
	}

	threads, err := store.Threads(ctx, tracestore.ThreadQuery{Pattern: pattern, MainOnly: true})
	if err != nil {
		return anchor.Opt{}, fmt.Errorf("find systemui: %w", err)
	}

	if len(threads) == 0 {
		return anchor.Opt{}, nil
	}

	trigger, ok, err := store.FirstSpan(ctx, tracestore.SpanQuery{Name: sliceStartingWindow, PID: threads[0].PID})
	if err != nil || !ok {
		return anchor.Opt{}, wrap("starting window", err)
	}

	frame, ok, err := store.FirstSpan(ctx, tracestore.SpanQuery{
		Pattern:  framePattern,
		TID:      trigger.TID,
		MinStart: optional.Some(trigger.Start),
	})
	if err != nil || !ok {
		return anchor.Opt{}, wrap("systemui frame", err)
	}

	return optional.Some(anchor.FromSpan(frame)), nil
}

// launcherDrawFrame returns the first launcher DrawFrame at or after the
// start of its last animator span.
func launcherDrawFrame(ctx context.Context, store tracestore.Store, launcher optional.Option[int]) (anchor.Opt, error) {
	pid, ok := launcher.Get()
	if !ok {
		return anchor.Opt{}, nil
	}

	last, ok, err := store.FirstSpan(ctx, tracestore.SpanQuery{
		Name:       sliceAnimator,
		PID:        pid,
		Track:      tracestore.TrackProcess,
		Descending: true,
	})
	if err != nil || !ok {
		return anchor.Opt{}, wrap("launcher animator", err)
	}

	frame, ok, err := store.FirstSpan(ctx, tracestore.SpanQuery{
		Pattern:  drawFramePattern,
		PID:      pid,
		Track:    tracestore.TrackThread,
		MinStart: optional.Some(last.Start),
	})
	if err != nil || !ok {
		return anchor.Opt{}, wrap("launcher draw frame", err)
	}

	return optional.Some(anchor.FromSpan(frame)), nil
}

func phases(m Milestones) []phase.Phase {
	down := optional.Some(m.TouchDown.Start)

	return []phase.Phase{
		phase.Between(TouchDuration, phase.ChainCommon, down, startOf(m.TouchUp)),
		phase.Between(TouchUpToStartingWindow, phase.ChainCommon, startOf(m.TouchUp), startOf(m.StartingWindow)),
		phase.Length(StartingWindow, phase.ChainCommon, m.StartingWindow),
		phase.Between(StartingWindowToFrame, phase.ChainCommon, endOf(m.StartingWindow), startOf(m.Frame)),
		phase.Length(Choreographer, phase.ChainCommon, m.Frame),
		phase.Between(ChoreographerToTransition, phase.ChainCommon, startOf(m.Frame), startOf(m.TransactionReady)),
		phase.Length(TransactionReady, phase.ChainCommon, m.TransactionReady),
		phase.Between(TransactionToDrawFrame, phase.ChainCommon, endOf(m.TransactionReady), startOf(m.DrawFrame)),
		phase.Length(DrawFrame, phase.ChainCommon, m.DrawFrame),
	}
}

func startOf(a anchor.Opt) optional.Option[int64] {
	return optional.Map(a, func(v anchor.Anchor) int64 { return v.Start })
}

func endOf(a anchor.Opt) optional.Option[int64] {
	return optional.Map(a, anchor.Anchor.End)
}

func wrap(what string, err error) error {
	if err == nil {
		return nil
	}

	return fmt.Errorf("find %s: %w", what, err)
}
