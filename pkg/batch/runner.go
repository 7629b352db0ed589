package batch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/Sumatoshi-tech/launchtrace/pkg/atrace"
	"github.com/Sumatoshi-tech/launchtrace/pkg/config"
	"github.com/Sumatoshi-tech/launchtrace/pkg/cycle"
	"github.com/Sumatoshi-tech/launchtrace/pkg/identity"
	"github.com/Sumatoshi-tech/launchtrace/pkg/launch"
	"github.com/Sumatoshi-tech/launchtrace/pkg/observability"
	"github.com/Sumatoshi-tech/launchtrace/pkg/reaction"
	"github.com/Sumatoshi-tech/launchtrace/pkg/tracestore"
)

const (
	tracerName = "launchtrace/batch"
	sqliteExt  = ".db"
)

// OpenFunc loads the trace at path into a store.
type OpenFunc func(ctx context.Context, path string) (tracestore.Store, error)

// Options configures a Runner.
type Options struct {
	Config config.Config
	Mode   Mode
	Store  StoreKind
	// Workers overrides the pool size; 0 means min(NumCPU, batch.worker_cap).
	Workers int
	// SnapshotDir is searched for identity snapshots; empty means the batch dir.
	SnapshotDir string

	Tracer  trace.Tracer
	Metrics *observability.LaunchMetrics
	Logger  *slog.Logger

	// Open replaces the store loader selected by Store.
	Open OpenFunc
	// Snapshot replaces the snapshot parser.
	Snapshot identity.ParseFunc
}

// Runner analyses batches of trace files.
type Runner struct {
	opts     Options
	grouper  *cycle.Grouper
	groups   identity.Groups
	analyzer *launch.Analyzer
	logger   *slog.Logger
}

// NewRunner creates a runner.
func NewRunner(opts Options) *Runner {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	if opts.Snapshot == nil {
		opts.Snapshot = func(it identity.Item) (identity.Table, error) {
			return identity.LoadTable(it.Path)
		}
	}

	if opts.Store == "" {
		opts.Store = StoreMemory
	}

	return &Runner{
		opts:     opts,
		grouper:  cycle.NewGrouper(opts.Config.Apps.Keywords),
		groups:   identity.NewGroups(opts.Config.Apps.Groups),
		analyzer: launch.NewAnalyzer(opts.Config, logger),
		logger:   logger,
	}
}

func (r *Runner) tracer() trace.Tracer {
	if r.opts.Tracer != nil {
		return r.opts.Tracer
	}

	return otel.Tracer(tracerName)
}

func (r *Runner) workers() int {
	if r.opts.Workers > 0 {
		return r.opts.Workers
	}

	return max(1, min(runtime.NumCPU(), r.opts.Config.Batch.WorkerCap))
}

// slot is the result of one task. Exactly one field is set.
type slot struct {
	record   *launch.MetricsRecord
	reaction *ReactionRecord
	failure  *Failure
}

// Run groups the traces of b, matches identity snapshots and analyses every
// trace on a bounded pool. Per-trace failures are recorded in the summary;
// only an unreadable directory, an empty grouping or cancellation fail the
// batch.
func (r *Runner) Run(ctx context.Context, b Batch) (ResultSet, error) {
	ctx, span := r.tracer().Start(ctx, "launchtrace.batch",
		trace.WithAttributes(
			attribute.String("batch.label", b.Label),
			attribute.Int("batch.workers", r.workers()),
		))
	defer span.End()

	set, err := r.run(ctx, b)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())

		return set, err
	}

	span.SetAttributes(
		attribute.Int("batch.attempted", set.Summary.Attempted),
		attribute.Int("batch.succeeded", set.Summary.Succeeded),
		attribute.Int("batch.failed", len(set.Summary.Failed)),
	)

	return set, nil
}

func (r *Runner) run(ctx context.Context, b Batch) (ResultSet, error) {
	files, err := listTraces(b.Dir, r.opts.Config.Batch.Extension)
	if err != nil {
		return ResultSet{}, err
	}

	groups := r.grouper.Group(files)
	if len(groups) == 0 {
		return ResultSet{}, fmt.Errorf("%w: %s", ErrNoMatchableFiles, b.Dir)
	}

	set := ResultSet{Label: b.Label, Device: devicePrefix(files)}

	var assignment identity.Assignment

	if r.opts.Mode == ModeLaunch {
		assignment, err = r.matchSnapshots(files, b.Dir)
		if err != nil {
			return set, err
		}
	}

	open := r.opts.Open
	if open == nil {
		tmp, cleanup, err := r.tempDir()
		if err != nil {
			return set, err
		}
		defer cleanup()

		open = r.defaultOpen(tmp)
	}

	r.logger.Info("batch started", "label", b.Label, "dir", b.Dir,
		"traces", len(groups), "workers", r.workers())

	results := make([]slot, len(groups))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.workers())

	for i, grp := range groups {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}

			results[i] = r.analyze(gctx, open, grp, assignment.Table(grp.File))

			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return set, fmt.Errorf("batch %s: %w", b.Label, err)
	}

	merge(&set, results)

	r.logger.Info("batch finished", "label", b.Label,
		"attempted", set.Summary.Attempted,
		"succeeded", set.Summary.Succeeded,
		"degraded", set.Summary.Degraded,
		"failed", len(set.Summary.Failed))

	return set, nil
}

// matchSnapshots runs the identity matcher once, before any worker starts.
func (r *Runner) matchSnapshots(files []string, dir string) (identity.Assignment, error) {
	snapDir := r.opts.SnapshotDir
	if snapDir == "" {
		snapDir = dir
	}

	snapshots, err := identity.Discover(snapDir)
	if err != nil {
		return nil, err
	}

	items := make([]identity.Item, 0, len(files)+len(snapshots))
	for _, f := range files {
		items = append(items, r.groups.Trace(f))
	}

	for _, s := range snapshots {
		items = append(items, r.groups.Snapshot(s))
	}

	r.logger.Debug("matching snapshots", "traces", len(files), "snapshots", len(snapshots))

	return identity.Match(items, r.opts.Snapshot, r.logger), nil
}

func (r *Runner) analyze(ctx context.Context, open OpenFunc, grp cycle.Group, ident identity.Table) slot {
	name := filepath.Base(grp.File)

	ctx, span := r.tracer().Start(ctx, "launchtrace.trace",
		trace.WithAttributes(
			attribute.String("trace.file", name),
			attribute.String("launch.app", grp.App),
			attribute.Int("launch.cycle", grp.Cycle),
			attribute.String("launch.kind", grp.Kind.String()),
		))
	defer span.End()

	if r.opts.Metrics != nil {
		defer r.opts.Metrics.TrackInflight(ctx)()
	}

	started := time.Now()

	out, missing, err := r.analyzeTrace(ctx, open, grp, ident)

	outcome := observability.OutcomeSucceeded

	switch {
	case err != nil:
		outcome = observability.OutcomeFailed

		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		r.logger.Error("trace failed", "file", name, "error", err)

		out = slot{failure: &Failure{File: name, Error: err.Error()}}
	case len(missing) > 0:
		outcome = observability.OutcomeDegraded

		span.SetAttributes(attribute.StringSlice("launch.missing", missing))
	}

	if r.opts.Metrics != nil {
		r.opts.Metrics.RecordTrace(ctx, grp.App, outcome, time.Since(started))
		r.opts.Metrics.RecordMissing(ctx, missing)
	}

	return out
}

func (r *Runner) analyzeTrace(ctx context.Context, open OpenFunc, grp cycle.Group,
	ident identity.Table,
) (out slot, missing []string, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			out, missing, err = slot{}, nil, fmt.Errorf("%w: %v", ErrTracePanicked, rec)
		}
	}()

	store, err := open(ctx, grp.File)
	if err != nil {
		return slot{}, nil, fmt.Errorf("open trace: %w", err)
	}

	defer func() {
		if cerr := store.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("close trace: %w", cerr)
		}
	}()

	if r.opts.Mode == ModeReaction {
		rec, err := reaction.Analyze(ctx, store, reaction.Options{Apps: r.opts.Config.Apps, Logger: r.logger})
		if err != nil {
			return slot{}, nil, err
		}

		return slot{reaction: &ReactionRecord{
			File:    filepath.Base(grp.File),
			App:     grp.App,
			Ordinal: grp.Ordinal,
			Cycle:   grp.Cycle,
			Kind:    grp.Kind,
			Record:  rec,
		}}, unresolved(rec), nil
	}

	rec, err := r.analyzer.Analyze(ctx, store, grp, ident)
	if err != nil {
		return slot{}, nil, err
	}

	return slot{record: &rec}, rec.Missing, nil
}

// unresolved names the reaction phases that could not be measured.
func unresolved(rec reaction.Record) []string {
	var out []string

	for _, p := range rec.Phases {
		if !p.Resolved {
			out = append(out, p.Name)
		}
	}

	return out
}

// merge collects task results in grouping order.
func merge(set *ResultSet, results []slot) {
	set.Summary.Attempted = len(results)

	for _, res := range results {
		switch {
		case res.failure != nil:
			set.Summary.Failed = append(set.Summary.Failed, *res.failure)

			continue
		case res.record != nil:
			set.Records = append(set.Records, *res.record)

			if res.record.Degraded() {
				set.Summary.Degraded++
			}
		case res.reaction != nil:
			set.Reactions = append(set.Reactions, *res.reaction)

			if len(unresolved(res.reaction.Record)) > 0 {
				set.Summary.Degraded++
			}
		}

		set.Summary.Succeeded++
	}
}

func (r *Runner) tempDir() (string, func(), error) {
	if r.opts.Store != StoreSQLite {
		return "", func() {}, nil
	}

	tmp, err := os.MkdirTemp("", "launchtrace-")
	if err != nil {
		return "", nil, fmt.Errorf("create temp dir: %w", err)
	}

	return tmp, func() {
		if err := os.RemoveAll(tmp); err != nil {
			r.logger.Warn("temp dir not removed", "dir", tmp, "error", err)
		}
	}, nil
}

// defaultOpen returns the loader for the configured store kind. SQLite mode
// reuses <trace>.db when present and otherwise converts the trace into tmp.
func (r *Runner) defaultOpen(tmp string) OpenFunc {
	parse := func(ctx context.Context, path string) (*tracestore.MemoryStore, error) {
		return atrace.LoadFile(ctx, path, atrace.Options{Logger: r.logger})
	}

	if r.opts.Store != StoreSQLite {
		return func(ctx context.Context, path string) (tracestore.Store, error) {
			return parse(ctx, path)
		}
	}

	return func(ctx context.Context, path string) (tracestore.Store, error) {
		db := path + sqliteExt

		if _, err := os.Stat(db); err != nil {
			if !errors.Is(err, os.ErrNotExist) {
				return nil, fmt.Errorf("stat database: %w", err)
			}

			mem, err := parse(ctx, path)
			if err != nil {
				return nil, err
			}

			db = filepath.Join(tmp, strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))+sqliteExt)

			if err := tracestore.WriteSQLite(ctx, db, mem.Dataset()); err != nil {
				return nil, err
			}
		}

		return tracestore.OpenSQLite(ctx, db)
	}
}

// RunPair runs the device-under-test batch, then the reference batch. The two
// never overlap; each is internally parallel.
func (r *Runner) RunPair(ctx context.Context, dut, ref Batch) (ResultSet, ResultSet, error) {
	dutSet, err := r.Run(ctx, dut)
	if err != nil {
		return dutSet, ResultSet{}, fmt.Errorf("dut: %w", err)
	}

	refSet, err := r.Run(ctx, ref)
	if err != nil {
		return dutSet, refSet, fmt.Errorf("ref: %w", err)
	}

	return dutSet, refSet, nil
}
