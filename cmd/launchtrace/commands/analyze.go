package commands

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/Sumatoshi-tech/launchtrace/pkg/batch"
	"github.com/Sumatoshi-tech/launchtrace/pkg/config"
	"github.com/Sumatoshi-tech/launchtrace/pkg/observability"
	"github.com/Sumatoshi-tech/launchtrace/pkg/persist"
	"github.com/Sumatoshi-tech/launchtrace/pkg/report"
)

// Batch labels.
const (
	labelDUT = "DUT"
	labelREF = "REF"
)

const outDirPerm = 0o755

// BatchCommand holds the flags shared by analyze and reaction.
type BatchCommand struct {
	globals *Globals
	mode    batch.Mode

	ref         string
	store       string
	out         string
	format      string
	metricsAddr string
	snapshots   string
	workers     int
	detail      bool

	initObs initFunc
	open    batch.OpenFunc
}

// NewAnalyzeCommand creates the launch analysis command.
func NewAnalyzeCommand(globals *Globals) *cobra.Command {
	return newBatchCommandWithDeps(globals, batch.ModeLaunch, observability.Init, nil)
}

// NewReactionCommand creates the reaction-time command.
func NewReactionCommand(globals *Globals) *cobra.Command {
	return newBatchCommandWithDeps(globals, batch.ModeReaction, observability.Init, nil)
}

func newBatchCommandWithDeps(globals *Globals, mode batch.Mode, initObs initFunc, open batch.OpenFunc) *cobra.Command {
	bc := &BatchCommand{globals: globals, mode: mode, initObs: initObs, open: open}

	cmd := &cobra.Command{
		Use:   "analyze <dir>",
		Short: "Analyse the launch traces in a directory",
		Long: `Analyse every trace in <dir> whose name carries an app keyword.

Traces are grouped into (app, cycle, entry/reentry) slots, matched to the
bugreport snapshot taken after them, and analysed in parallel. With --ref the
reference directory is analysed after the device under test.`,
		Args: cobra.ExactArgs(1),
		RunE: bc.run,
	}

	if mode == batch.ModeReaction {
		cmd.Use = "reaction <dir>"
		cmd.Short = "Measure app reaction time for the traces in a directory"
		cmd.Long = `Measure touch-to-first-frame reaction time for every trace in <dir>.`
	}

	cmd.Flags().StringVar(&bc.ref, "ref", "", "Reference device directory analysed after <dir>")
	cmd.Flags().StringVar(&bc.store, "store", string(batch.StoreMemory), "Event store: memory or sqlite")
	cmd.Flags().StringVarP(&bc.out, "out", "o", "", "Directory to write one result file per batch")
	cmd.Flags().StringVar(&bc.format, "format", "", "Result format: json, yaml, json.lz4 (default: batch.format)")
	cmd.Flags().StringVar(&bc.metricsAddr, "metrics-addr", "", "Serve /metrics, /healthz and /readyz at this address while running")
	cmd.Flags().StringVar(&bc.snapshots, "snapshots", "", "Directory holding bugreport snapshots (default: <dir>)")
	cmd.Flags().IntVar(&bc.workers, "workers", 0, "Number of parallel workers (0 = min(CPU count, batch.worker_cap))")
	cmd.Flags().BoolVar(&bc.detail, "detail", false, "Print the phase and CPU tables of every trace")

	return cmd
}

func (bc *BatchCommand) run(cmd *cobra.Command, args []string) error {
	cfg, err := bc.globals.Load()
	if err != nil {
		return err
	}

	if bc.metricsAddr != "" {
		cfg.Telemetry.MetricsAddr = bc.metricsAddr
	}

	codec, err := persist.CodecFor(firstNonEmpty(bc.format, cfg.Batch.Format))
	if err != nil {
		return err
	}

	store := batch.StoreKind(strings.ToLower(bc.store))
	if store != batch.StoreMemory && store != batch.StoreSQLite {
		return fmt.Errorf("%w: store %q", errInvalidFlag, bc.store)
	}

	providers, stop, err := startObservability(bc.initObs, cfg, observability.ModeCLI)
	if err != nil {
		return err
	}
	defer stop()

	logger := providers.Logger
	if logger == nil {
		logger = slog.Default()
	}

	tracer := providers.Tracer
	if tracer == nil {
		tracer = otel.Tracer("launchtrace")
	}

	ctx, span := tracer.Start(cmd.Context(), "launchtrace."+cmd.Name(),
		trace.WithAttributes(attribute.String("batch.store", string(store))))
	defer span.End()

	if cfg.Telemetry.MetricsAddr != "" {
		diag, diagErr := observability.NewDiagnosticsServer(cfg.Telemetry.MetricsAddr, providers.MetricsHandler, tracer)
		if diagErr != nil {
			return diagErr
		}

		defer func() {
			if closeErr := diag.Close(context.Background()); closeErr != nil {
				logger.Warn("diagnostics shutdown failed", "error", closeErr)
			}
		}()

		logger.Info("serving diagnostics", "addr", diag.Addr())
	}

	runner, err := bc.newRunner(cfg, store, providers, logger)
	if err != nil {
		return err
	}

	sets, err := bc.runBatches(ctx, runner, args[0])
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}

	for _, set := range sets {
		if writeErr := bc.emit(cmd.OutOrStdout(), set, cfg, codec); writeErr != nil {
			return writeErr
		}
	}

	return err
}

func (bc *BatchCommand) newRunner(cfg *config.Config, store batch.StoreKind, providers observability.Providers,
	logger *slog.Logger,
) (*batch.Runner, error) {
	opts := batch.Options{
		Config:      *cfg,
		Mode:        bc.mode,
		Store:       store,
		Workers:     bc.workers,
		SnapshotDir: bc.snapshots,
		Tracer:      providers.Tracer,
		Logger:      logger,
		Open:        bc.open,
	}

	if providers.Meter != nil {
		metrics, err := observability.NewLaunchMetrics(providers.Meter)
		if err != nil {
			return nil, err
		}

		opts.Metrics = metrics
	}

	return batch.NewRunner(opts), nil
}

// runBatches returns every batch that completed, even when a later one failed.
func (bc *BatchCommand) runBatches(ctx context.Context, runner *batch.Runner, dir string) ([]batch.ResultSet, error) {
	dut := batch.Batch{Label: labelDUT, Dir: dir}

	if bc.ref == "" {
		set, err := runner.Run(ctx, dut)
		if err != nil {
			return nil, err
		}

		return []batch.ResultSet{set}, nil
	}

	dutSet, refSet, err := runner.RunPair(ctx, dut, batch.Batch{Label: labelREF, Dir: bc.ref})

	switch {
	case err == nil:
		return []batch.ResultSet{dutSet, refSet}, nil
	case dutSet.Summary.Attempted > 0:
		return []batch.ResultSet{dutSet}, err
	default:
		return nil, err
	}
}

func (bc *BatchCommand) emit(w io.Writer, set batch.ResultSet, cfg *config.Config, codec persist.Codec) error {
	if err := report.WriteSummary(w, set); err != nil {
		return err
	}

	if bc.detail {
		for _, rec := range set.Records {
			if err := report.WriteDetail(w, rec, cfg.Attribution.TopN); err != nil {
				return err
			}
		}
	}

	if bc.out == "" {
		return nil
	}

	if err := os.MkdirAll(bc.out, outDirPerm); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}

	path := filepath.Join(bc.out, strings.ToLower(set.Label)+codec.Extension())

	if err := persist.SaveResults(path, set); err != nil {
		return err
	}

	_, err := fmt.Fprintf(w, "results written to %s\n", path)

	return err
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}

	return ""
}
