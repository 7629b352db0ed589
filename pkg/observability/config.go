// Package observability wires OpenTelemetry tracing and metrics and the
// structured slog logger used by every launchtrace mode (CLI, MCP).
package observability

import (
	"log/slog"
	"strings"
	"time"

	"github.com/Sumatoshi-tech/launchtrace/pkg/config"
)

// AppMode identifies how the binary was launched.
type AppMode string

const (
	// ModeCLI is a one-shot command.
	ModeCLI AppMode = "cli"
	// ModeMCP is the MCP stdio server.
	ModeMCP AppMode = "mcp"
)

const (
	defaultServiceName     = "launchtrace"
	defaultShutdownTimeout = 5 * time.Second
	logFormatJSON          = "json"
	readHeaderTimeout      = 10 * time.Second
)

// Config holds all observability settings.
type Config struct {
	// ServiceName is the OTel resource service name.
	ServiceName string

	// ServiceVersion is the version of the running binary.
	ServiceVersion string

	// Environment is the deployment environment, e.g. "lab".
	Environment string

	Mode AppMode

	// OTLPEndpoint is the OTLP gRPC collector address. Empty disables export.
	OTLPEndpoint string
	OTLPHeaders  map[string]string
	OTLPInsecure bool

	// SampleRatio is the root sampling ratio. Zero samples everything.
	SampleRatio float64

	LogLevel slog.Level
	LogJSON  bool

	// Prometheus attaches a pull reader and exposes it as Providers.MetricsHandler.
	Prometheus bool

	// ShutdownTimeout bounds the final flush.
	ShutdownTimeout time.Duration
}

// DefaultConfig returns a Config for zero-config startup.
func DefaultConfig() Config {
	return Config{
		ServiceName:     defaultServiceName,
		Mode:            ModeCLI,
		LogLevel:        slog.LevelInfo,
		ShutdownTimeout: defaultShutdownTimeout,
	}
}

// FromSettings maps the file/env configuration onto an observability Config.
func FromSettings(cfg config.Config, mode AppMode) Config {
	out := DefaultConfig()
	out.Mode = mode
	out.LogLevel = ParseLevel(cfg.Log.Level)
	out.LogJSON = strings.EqualFold(cfg.Log.Format, logFormatJSON)
	out.OTLPEndpoint = cfg.Telemetry.OTLPEndpoint
	out.OTLPInsecure = cfg.Telemetry.OTLPInsecure
	out.Prometheus = cfg.Telemetry.MetricsAddr != ""

	if cfg.Telemetry.ServiceName != "" {
		out.ServiceName = cfg.Telemetry.ServiceName
	}

	if cfg.Telemetry.ShutdownTimeout > 0 {
		out.ShutdownTimeout = cfg.Telemetry.ShutdownTimeout
	}

	return out
}

// ParseLevel maps a level name to a slog level. Unknown names map to info.
func ParseLevel(name string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
