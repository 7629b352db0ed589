package observability_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sumatoshi-tech/launchtrace/pkg/observability"
)

// TestInit_Noop verifies providers are usable without any exporter.
func TestInit_Noop(t *testing.T) {
	t.Parallel()

	providers, err := observability.Init(observability.DefaultConfig())
	require.NoError(t, err)

	assert.NotNil(t, providers.Tracer)
	assert.NotNil(t, providers.Meter)
	assert.NotNil(t, providers.Logger)
	assert.Nil(t, providers.MetricsHandler)

	_, span := providers.Tracer.Start(context.Background(), "batch")
	span.End()

	require.NoError(t, providers.Shutdown(context.Background()))
}

// TestInit_Prometheus verifies recorded launch metrics are scraped.
func TestInit_Prometheus(t *testing.T) {
	t.Parallel()

	cfg := observability.DefaultConfig()
	cfg.Prometheus = true
	cfg.ServiceVersion = "1.0.0"
	cfg.Environment = "lab"

	providers, err := observability.Init(cfg)
	require.NoError(t, err)
	require.NotNil(t, providers.MetricsHandler)

	t.Cleanup(func() { require.NoError(t, providers.Shutdown(context.Background())) })

	metrics, err := observability.NewLaunchMetrics(providers.Meter)
	require.NoError(t, err)

	metrics.RecordTrace(context.Background(), "camera", observability.OutcomeSucceeded, 20*time.Millisecond)

	srv := httptest.NewServer(providers.MetricsHandler)
	t.Cleanup(srv.Close)

	resp, err := http.Get(srv.URL) //nolint:noctx // test server.
	require.NoError(t, err)

	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "launchtrace_traces_analyzed")
	assert.Contains(t, string(body), `outcome="succeeded"`)
}
