package commands

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/Sumatoshi-tech/launchtrace/pkg/mcp"
	"github.com/Sumatoshi-tech/launchtrace/pkg/observability"
)

// NewMCPCommand creates the MCP server command.
func NewMCPCommand(globals *Globals) *cobra.Command {
	return newMCPCommandWithDeps(globals, observability.Init)
}

func newMCPCommandWithDeps(globals *Globals, initObs initFunc) *cobra.Command {
	var debug bool

	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "Start MCP server for AI agent integration",
		Long: `Start a Model Context Protocol (MCP) server on stdio transport.

The server exposes launch analysis as tools that AI agents can discover and
invoke:
  - analyze_trace: Launch or reaction analysis of one trace
  - group_files: Slot trace file names into (app, cycle, entry/reentry)
  - match_snapshots: Pair traces with bugreport process tables`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cobraCmd *cobra.Command, _ []string) error {
			cfg, err := globals.Load()
			if err != nil {
				return err
			}

			providers, stop, err := startObservability(mcpInit(initObs, debug), cfg, observability.ModeMCP)
			if err != nil {
				return err
			}
			defer stop()

			deps := mcp.ServerDeps{Config: cfg, Logger: providers.Logger, Tracer: providers.Tracer}

			if providers.Meter != nil {
				metrics, metricsErr := observability.NewLaunchMetrics(providers.Meter)
				if metricsErr != nil {
					return metricsErr
				}

				deps.Metrics = metrics
			}

			return mcp.NewServer(deps).Run(cobraCmd.Context())
		},
	}

	cmd.Flags().BoolVar(&debug, "debug", false, "Enable debug logging to stderr")

	return cmd
}

// mcpInit applies the OTEL_EXPORTER_OTLP_* environment and forces JSON logs,
// since stdout carries the protocol.
func mcpInit(initObs initFunc, debug bool) initFunc {
	return func(cfg observability.Config) (observability.Providers, error) {
		if endpoint := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"); endpoint != "" {
			cfg.OTLPEndpoint = endpoint
		}

		if headers := os.Getenv("OTEL_EXPORTER_OTLP_HEADERS"); headers != "" {
			cfg.OTLPHeaders = observability.ParseOTLPHeaders(headers)
		}

		if os.Getenv("OTEL_EXPORTER_OTLP_INSECURE") == "true" {
			cfg.OTLPInsecure = true
		}

		cfg.LogJSON = true

		if debug {
			cfg.LogLevel = slog.LevelDebug
		}

		return initObs(cfg)
	}
}
