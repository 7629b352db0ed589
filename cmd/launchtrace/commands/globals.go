// Package commands implements CLI command handlers for launchtrace.
package commands

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Sumatoshi-tech/launchtrace/pkg/config"
	"github.com/Sumatoshi-tech/launchtrace/pkg/observability"
	"github.com/Sumatoshi-tech/launchtrace/pkg/version"
)

var errInvalidFlag = errors.New("invalid flag value")

const (
	levelDebug = "debug"
	levelError = "error"
)

// Globals holds the persistent root flags.
type Globals struct {
	ConfigPath string
	Verbose    bool
	Quiet      bool
}

// Register adds the persistent flags to root.
func (g *Globals) Register(root *cobra.Command) {
	root.PersistentFlags().StringVar(&g.ConfigPath, "config", "", "config file (default: .launchtrace.yaml in the working directory)")
	root.PersistentFlags().BoolVarP(&g.Verbose, "verbose", "v", false, "debug logging")
	root.PersistentFlags().BoolVarP(&g.Quiet, "quiet", "q", false, "log errors only")
}

// Load reads the configuration and applies -v/-q.
func (g *Globals) Load() (*config.Config, error) {
	cfg, err := config.LoadConfig(g.ConfigPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	switch {
	case g.Verbose:
		cfg.Log.Level = levelDebug
	case g.Quiet:
		cfg.Log.Level = levelError
	}

	return cfg, nil
}

// initFunc builds observability providers; replaced in tests.
type initFunc func(observability.Config) (observability.Providers, error)

// startObservability initialises telemetry for cfg in mode and returns the
// providers plus a shutdown to defer.
func startObservability(initObs initFunc, cfg *config.Config, mode observability.AppMode) (observability.Providers, func(), error) {
	obsCfg := observability.FromSettings(*cfg, mode)
	obsCfg.ServiceVersion = version.Version

	providers, err := initObs(obsCfg)
	if err != nil {
		return observability.Providers{}, nil, fmt.Errorf("init observability: %w", err)
	}

	stop := func() {
		if providers.Shutdown == nil {
			return
		}

		shutdownErr := providers.Shutdown(context.Background())
		if shutdownErr != nil && providers.Logger != nil {
			providers.Logger.Warn("observability shutdown failed", "error", shutdownErr)
		}
	}

	return providers, stop, nil
}
