package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Sentinel validation errors.
var (
	ErrInvalidWorkerCap = errors.New("worker cap must be positive")
	ErrInvalidTopN      = errors.New("top_n must be positive")
	ErrNoCores          = errors.New("at least one cpu core is required")
	ErrNoKeywords       = errors.New("at least one app keyword is required")
	ErrNegativeDuration = errors.New("threshold must not be negative")
	ErrInvalidLogLevel  = errors.New("invalid log level")
	ErrInvalidLogFormat = errors.New("invalid log format")
)

// Config holds all launchtrace configuration.
type Config struct {
	Thresholds  ThresholdsConfig  `mapstructure:"thresholds"`
	Attribution AttributionConfig `mapstructure:"attribution"`
	Apps        AppsConfig        `mapstructure:"apps"`
	Batch       BatchConfig       `mapstructure:"batch"`
	Log         LogConfig         `mapstructure:"log"`
	Telemetry   TelemetryConfig   `mapstructure:"telemetry"`
}

// ThresholdsConfig holds the empirically chosen analysis thresholds.
type ThresholdsConfig struct {
	InternetIdleDiscard    time.Duration `mapstructure:"internet_idle_discard"`
	IOStallBudget          time.Duration `mapstructure:"io_stall_budget"`
	BackgroundSignificance time.Duration `mapstructure:"background_significance"`
	AssetLoadFloor         time.Duration `mapstructure:"asset_load_floor"`
	RecentFallback         time.Duration `mapstructure:"recent_fallback"`
}

// AttributionConfig holds resource-attribution settings.
type AttributionConfig struct {
	TopN               int      `mapstructure:"top_n"`
	Cores              []int    `mapstructure:"cores"`
	BackgroundPatterns []string `mapstructure:"background_patterns"`
	AssetProcesses     []string `mapstructure:"asset_processes"`
	AssetSlicePattern  string   `mapstructure:"asset_slice_pattern"`
	LibraryPrefix      string   `mapstructure:"library_prefix"`
	BinderSliceName    string   `mapstructure:"binder_slice_name"`
	AbnormalSlice      string   `mapstructure:"abnormal_slice"`
}

// AppsConfig holds the fixed app tables.
type AppsConfig struct {
	Keywords              []string          `mapstructure:"keywords"`
	Groups                [][]string        `mapstructure:"groups"`
	DisplayNames          map[string]string `mapstructure:"display_names"`
	LauncherPackage       string            `mapstructure:"launcher_package"`
	LauncherThreadPattern string            `mapstructure:"launcher_thread_pattern"`
}

// BatchConfig holds batch orchestration settings.
type BatchConfig struct {
	WorkerCap int    `mapstructure:"worker_cap"`
	Extension string `mapstructure:"extension"`
	Format    string `mapstructure:"format"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// TelemetryConfig holds OpenTelemetry and Prometheus settings.
type TelemetryConfig struct {
	ServiceName     string        `mapstructure:"service_name"`
	OTLPEndpoint    string        `mapstructure:"otlp_endpoint"`
	OTLPInsecure    bool          `mapstructure:"otlp_insecure"`
	MetricsAddr     string        `mapstructure:"metrics_addr"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

var (
	validLogLevels  = []string{"debug", "info", "warn", "error"}
	validLogFormats = []string{"text", "json"}
)

// Validate checks the configuration for consistency.
func (c *Config) Validate() error {
	if c.Batch.WorkerCap <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidWorkerCap, c.Batch.WorkerCap)
	}

	if c.Attribution.TopN <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidTopN, c.Attribution.TopN)
	}

	if len(c.Attribution.Cores) == 0 {
		return ErrNoCores
	}

	if len(c.Apps.Keywords) == 0 {
		return ErrNoKeywords
	}

	thresholds := map[string]time.Duration{
		"internet_idle_discard":   c.Thresholds.InternetIdleDiscard,
		"io_stall_budget":         c.Thresholds.IOStallBudget,
		"background_significance": c.Thresholds.BackgroundSignificance,
		"asset_load_floor":        c.Thresholds.AssetLoadFloor,
		"recent_fallback":         c.Thresholds.RecentFallback,
	}

	for name, d := range thresholds {
		if d < 0 {
			return fmt.Errorf("%w: %s=%s", ErrNegativeDuration, name, d)
		}
	}

	if !contains(validLogLevels, strings.ToLower(c.Log.Level)) {
		return fmt.Errorf("%w: %q", ErrInvalidLogLevel, c.Log.Level)
	}

	if !contains(validLogFormats, strings.ToLower(c.Log.Format)) {
		return fmt.Errorf("%w: %q", ErrInvalidLogFormat, c.Log.Format)
	}

	return nil
}

// DisplayName returns the report name of an app keyword.
func (a AppsConfig) DisplayName(keyword string) string {
	if name, ok := a.DisplayNames[strings.ToLower(keyword)]; ok {
		return name
	}

	if keyword == "" {
		return ""
	}

	return strings.ToUpper(keyword[:1]) + keyword[1:]
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}

	return false
}
