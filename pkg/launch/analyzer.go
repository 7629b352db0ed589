package launch

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/Sumatoshi-tech/launchtrace/pkg/anchor"
	"github.com/Sumatoshi-tech/launchtrace/pkg/attribution"
	"github.com/Sumatoshi-tech/launchtrace/pkg/config"
	"github.com/Sumatoshi-tech/launchtrace/pkg/cycle"
	"github.com/Sumatoshi-tech/launchtrace/pkg/identity"
	"github.com/Sumatoshi-tech/launchtrace/pkg/phase"
	"github.com/Sumatoshi-tech/launchtrace/pkg/tracestore"
)

// Analyzer turns one loaded trace into a MetricsRecord. It holds only
// immutable configuration and is safe for concurrent use.
type Analyzer struct {
	apps       config.AppsConfig
	thresholds phase.Thresholds
	attr       attribution.Options
	logger     *slog.Logger
}

// NewAnalyzer creates an analyzer. A nil logger discards output.
func NewAnalyzer(cfg config.Config, logger *slog.Logger) *Analyzer {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	return &Analyzer{
		apps: cfg.Apps,
		thresholds: phase.Thresholds{
			InternetIdleDiscard: cfg.Thresholds.InternetIdleDiscard,
			RecentFallback:      cfg.Thresholds.RecentFallback,
		},
		attr:   attribution.NewOptions(cfg, logger),
		logger: logger,
	}
}

// Analyze resolves anchors, reconstructs phases and aggregates attribution
// for the trace in store. ident may be empty. Errors mean the trace could
// not be analysed at all: a fatal anchor is missing or the store failed.
func (a *Analyzer) Analyze(ctx context.Context, store tracestore.Store, group cycle.Group, ident identity.Table) (MetricsRecord, error) {
	logger := a.logger.With("file", filepath.Base(group.File))

	loc, err := anchor.NewLocator(store, a.apps, logger)
	if err != nil {
		return MetricsRecord{}, err
	}

	set, err := loc.Locate(ctx, group.File)
	if err != nil {
		return MetricsRecord{}, fmt.Errorf("locate anchors: %w", err)
	}

	category := phase.DetectCategory(group.File, set.Package)
	res := phase.Reconstruct(set, category, a.thresholds)

	agg, err := attribution.New(store, a.attr)
	if err != nil {
		return MetricsRecord{}, err
	}

	report, err := agg.Aggregate(ctx, attribution.Scope{
		Window:   res.Window,
		AppPID:   set.Process.PID,
		AppTID:   set.Process.TID,
		Identity: ident,
	})
	if err != nil {
		return MetricsRecord{}, fmt.Errorf("aggregate: %w", err)
	}

	rec := MetricsRecord{
		File:            filepath.Base(group.File),
		App:             group.App,
		DisplayName:     a.apps.DisplayName(group.App),
		Ordinal:         group.Ordinal,
		Cycle:           group.Cycle,
		Kind:            group.Kind,
		Package:         set.Package,
		PackageFallback: set.PackageFallback,
		Process:         set.Process,
		Category:        res.Category,
		LaunchType:      res.LaunchType,
		Window:          res.Window,
		ExecutionMs:     res.ExecutionMs,
		IdleDiscarded:   res.IdleDiscarded,
		Phases:          res.Phases,
		Camera:          res.Camera,
		Anchors:         set.Presence(),
		Missing:         set.Missing(),
		IdentitySize:    len(ident),
		Attribution:     report,
	}

	logger.DebugContext(ctx, "trace analysed",
		"category", rec.Category.String(),
		"launch_type", rec.LaunchType.String(),
		"execution_ms", rec.ExecutionMs,
	)

	return rec, nil
}
