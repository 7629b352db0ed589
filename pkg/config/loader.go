package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"
)

// configName is the config file name without extension.
const configName = ".launchtrace"

// configType is the config file format.
const configType = "yaml"

// envPrefix is the environment variable prefix for launchtrace settings.
const envPrefix = "LAUNCHTRACE"

// envKeySeparator is the nested key separator in environment variable names.
const envKeySeparator = "_"

// LoadConfig loads configuration from file, env vars, and defaults.
// If configPath is non-empty, it is used as the explicit config file path.
// Otherwise, the config file is searched in CWD and $HOME.
// Missing config file is not an error; defaults are used.
func LoadConfig(configPath string) (*Config, error) {
	viperCfg := viper.New()

	applyDefaults(viperCfg)

	viperCfg.SetConfigType(configType)
	viperCfg.SetEnvPrefix(envPrefix)
	viperCfg.SetEnvKeyReplacer(strings.NewReplacer(".", envKeySeparator))
	viperCfg.AutomaticEnv()

	if configPath != "" {
		viperCfg.SetConfigFile(configPath)
	} else {
		viperCfg.SetConfigName(configName)
		viperCfg.AddConfigPath(".")

		home, err := os.UserHomeDir()
		if err == nil {
			viperCfg.AddConfigPath(home)
		}
	}

	readErr := viperCfg.ReadInConfig()
	if readErr != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(readErr, &notFound) {
			return nil, fmt.Errorf("read config: %w", readErr)
		}
	}

	var cfg Config

	unmarshalErr := viperCfg.Unmarshal(&cfg)
	if unmarshalErr != nil {
		return nil, fmt.Errorf("unmarshal config: %w", unmarshalErr)
	}

	validateErr := cfg.Validate()
	if validateErr != nil {
		return nil, fmt.Errorf("validate config: %w", validateErr)
	}

	return &cfg, nil
}

// Default returns the configuration used when no file or env overrides exist.
func Default() *Config {
	viperCfg := viper.New()

	applyDefaults(viperCfg)

	var cfg Config

	err := viperCfg.Unmarshal(&cfg)
	if err != nil {
		panic(fmt.Sprintf("config: decode defaults: %v", err))
	}

	return &cfg
}

func applyDefaults(viperCfg *viper.Viper) {
	viperCfg.SetDefault("thresholds.internet_idle_discard", DefaultInternetIdleDiscard)
	viperCfg.SetDefault("thresholds.io_stall_budget", DefaultIOStallBudget)
	viperCfg.SetDefault("thresholds.background_significance", DefaultBackgroundSignificance)
	viperCfg.SetDefault("thresholds.asset_load_floor", DefaultAssetLoadFloor)
	viperCfg.SetDefault("thresholds.recent_fallback", DefaultRecentFallback)

	viperCfg.SetDefault("attribution.top_n", DefaultTopN)
	viperCfg.SetDefault("attribution.cores", DefaultCores())
	viperCfg.SetDefault("attribution.background_patterns", DefaultBackgroundPatterns())
	viperCfg.SetDefault("attribution.asset_processes", DefaultAssetProcesses())
	viperCfg.SetDefault("attribution.asset_slice_pattern", DefaultAssetSlicePattern)
	viperCfg.SetDefault("attribution.library_prefix", DefaultLibraryPrefix)
	viperCfg.SetDefault("attribution.binder_slice_name", DefaultBinderSliceName)
	viperCfg.SetDefault("attribution.abnormal_slice", DefaultAbnormalSlice)

	viperCfg.SetDefault("apps.keywords", DefaultKeywords())
	viperCfg.SetDefault("apps.groups", DefaultGroups())
	viperCfg.SetDefault("apps.display_names", DefaultDisplayNames())
	viperCfg.SetDefault("apps.launcher_package", DefaultLauncherPackage)
	viperCfg.SetDefault("apps.launcher_thread_pattern", DefaultLauncherThreadPattern)

	viperCfg.SetDefault("batch.worker_cap", DefaultWorkerCap)
	viperCfg.SetDefault("batch.extension", DefaultTraceExt)
	viperCfg.SetDefault("batch.format", DefaultOutputFormat)

	viperCfg.SetDefault("log.level", DefaultLogLevel)
	viperCfg.SetDefault("log.format", DefaultLogFormat)

	viperCfg.SetDefault("telemetry.service_name", DefaultServiceName)
	viperCfg.SetDefault("telemetry.otlp_endpoint", DefaultOTLPEndpoint)
	viperCfg.SetDefault("telemetry.otlp_insecure", false)
	viperCfg.SetDefault("telemetry.metrics_addr", DefaultMetricsAddr)
	viperCfg.SetDefault("telemetry.shutdown_timeout", DefaultShutdownDelay)
}
