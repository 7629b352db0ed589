package commands

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sumatoshi-tech/launchtrace/pkg/batch"
	"github.com/Sumatoshi-tech/launchtrace/pkg/observability"
	"github.com/Sumatoshi-tech/launchtrace/pkg/persist"
	"github.com/Sumatoshi-tech/launchtrace/pkg/tracestore"
	tt "github.com/Sumatoshi-tech/launchtrace/pkg/tracestore/tracetest"
)

const (
	entryFile  = "DEVICE_250101_100000_clock.log"
	configYAML = "log:\n  level: error\n"

	miniTrace = `# tracer: nop
  system_server-500   (  500) [000] ...1   100.000000: tracing_mark_write: B|500|deliverInputEvent src=0x1002
  system_server-500   (  500) [000] ...1   100.001000: tracing_mark_write: E|500
     example.app-1000  ( 1000) [001] ...1   100.004000: tracing_mark_write: B|1000|activityStart
     example.app-1000  ( 1000) [001] ...1   100.009000: tracing_mark_write: E|1000
`
)

// testGlobals points the config at a temp file so the user's home config is
// never read.
func testGlobals(t *testing.T) *Globals {
	t.Helper()

	path := filepath.Join(t.TempDir(), "launchtrace.yaml")
	require.NoError(t, os.WriteFile(path, []byte(configYAML), 0o600))

	return &Globals{ConfigPath: path}
}

// stubInit returns providers with no tracer, meter or logger and counts
// shutdown calls.
func stubInit(shutdowns *int) initFunc {
	return func(observability.Config) (observability.Providers, error) {
		return observability.Providers{
			Shutdown: func(context.Context) error {
				*shutdowns++

				return nil
			},
		}, nil
	}
}

func fixtureOpen(data tracestore.Dataset) batch.OpenFunc {
	return func(context.Context, string) (tracestore.Store, error) {
		return tt.Store(data), nil
	}
}

func batchDir(t *testing.T) string {
	t.Helper()

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, entryFile), nil, 0o600))

	return dir
}

// TestAnalyzeCommand_Run verifies the summary is printed and the result file
// is written in the configured format and passes the schema.
func TestAnalyzeCommand_Run(t *testing.T) {
	t.Parallel()

	var shutdowns int

	out := filepath.Join(t.TempDir(), "results")
	cmd := newBatchCommandWithDeps(testGlobals(t), batch.ModeLaunch, stubInit(&shutdowns), fixtureOpen(tt.ColdLaunch()))

	var buf bytes.Buffer

	cmd.SetOut(&buf)
	cmd.SetArgs([]string{batchDir(t), "--out", out, "--detail"})

	require.NoError(t, cmd.Execute())
	assert.Equal(t, 1, shutdowns)

	text := buf.String()
	assert.Contains(t, text, "=== DUT DEVICE_250101 ===")
	assert.Contains(t, text, "1 of 1 traces analysed")
	assert.Contains(t, text, "Bind Application")

	path := filepath.Join(out, "dut.json")
	assert.FileExists(t, path)

	set, err := persist.Load[batch.ResultSet](path)
	require.NoError(t, err)
	require.Len(t, set.Records, 1)
	assert.InDelta(t, 400, set.Records[0].ExecutionMs, 1e-9)

	violations, err := validateFile(path, nil)
	require.NoError(t, err)
	assert.Empty(t, violations)
}

// TestAnalyzeCommand_Format verifies --format overrides the file codec.
func TestAnalyzeCommand_Format(t *testing.T) {
	t.Parallel()

	var shutdowns int

	out := t.TempDir()
	cmd := newBatchCommandWithDeps(testGlobals(t), batch.ModeLaunch, stubInit(&shutdowns), fixtureOpen(tt.ColdLaunch()))

	cmd.SetOut(&bytes.Buffer{})
	cmd.SetArgs([]string{batchDir(t), "-o", out, "--format", persist.FormatJSONLZ4})

	require.NoError(t, cmd.Execute())
	assert.FileExists(t, filepath.Join(out, "dut.json.lz4"))
}

// TestAnalyzeCommand_Ref verifies both batches are reported and a failing
// reference keeps the DUT summary.
func TestAnalyzeCommand_Ref(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		ref     func(t *testing.T) string
		wantErr bool
		want    []string
	}{
		{
			name: "both batches",
			ref:  batchDir,
			want: []string{"=== DUT DEVICE_250101 ===", "=== REF DEVICE_250101 ==="},
		},
		{
			name:    "missing reference",
			ref:     func(t *testing.T) string { t.Helper(); return filepath.Join(t.TempDir(), "missing") },
			wantErr: true,
			want:    []string{"=== DUT DEVICE_250101 ==="},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			var (
				shutdowns int
				buf       bytes.Buffer
			)

			cmd := newBatchCommandWithDeps(testGlobals(t), batch.ModeLaunch, stubInit(&shutdowns), fixtureOpen(tt.ColdLaunch()))
			cmd.SetOut(&buf)
			cmd.SetArgs([]string{batchDir(t), "--ref", tc.ref(t)})

			err := cmd.Execute()
			if tc.wantErr {
				require.ErrorIs(t, err, batch.ErrUnreadableDir)
			} else {
				require.NoError(t, err)
			}

			for _, want := range tc.want {
				assert.Contains(t, buf.String(), want)
			}

			assert.Equal(t, 1, shutdowns)
		})
	}
}

// TestAnalyzeCommand_InvalidFlags verifies bad store and format values fail
// before any trace is read.
func TestAnalyzeCommand_InvalidFlags(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		args    []string
		wantErr error
	}{
		{"store", []string{"--store", "postgres"}, errInvalidFlag},
		{"format", []string{"--format", "xml"}, persist.ErrUnknownFormat},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			var shutdowns int

			cmd := newBatchCommandWithDeps(testGlobals(t), batch.ModeLaunch, stubInit(&shutdowns), nil)
			cmd.SetOut(&bytes.Buffer{})
			cmd.SetArgs(append([]string{batchDir(t)}, tc.args...))

			require.ErrorIs(t, cmd.Execute(), tc.wantErr)
			assert.Zero(t, shutdowns)
		})
	}
}

// TestReactionCommand_Run verifies reaction mode prints the reaction table.
func TestReactionCommand_Run(t *testing.T) {
	t.Parallel()

	var (
		shutdowns int
		buf       bytes.Buffer
	)

	cmd := newBatchCommandWithDeps(testGlobals(t), batch.ModeReaction, stubInit(&shutdowns), fixtureOpen(tt.Reaction()))
	assert.True(t, strings.HasPrefix(cmd.Use, "reaction"))

	cmd.SetOut(&buf)
	cmd.SetArgs([]string{batchDir(t)})

	require.NoError(t, cmd.Execute())
	assert.Contains(t, buf.String(), "174.000")
}

// TestConvertCommand verifies a trace is written to a database that the
// SQLite store can open.
func TestConvertCommand(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	trace := filepath.Join(dir, entryFile)
	require.NoError(t, os.WriteFile(trace, []byte(miniTrace), 0o600))

	var (
		shutdowns int
		buf       bytes.Buffer
	)

	cmd := newConvertCommandWithDeps(testGlobals(t), stubInit(&shutdowns))
	cmd.SetOut(&buf)
	cmd.SetArgs([]string{trace})

	require.NoError(t, cmd.Execute())
	assert.Contains(t, buf.String(), "2 spans")

	store, err := tracestore.OpenSQLite(context.Background(), trace+dbExtension)
	require.NoError(t, err)

	t.Cleanup(func() { _ = store.Close() })

	span, ok, err := store.FirstSpan(context.Background(), tracestore.SpanQuery{Name: "activityStart"})
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 1000, span.PID)
}

// TestValidateCommand verifies valid files pass and violations fail the command.
func TestValidateCommand(t *testing.T) {
	dir := t.TempDir()
	bad := filepath.Join(dir, "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte(`{"label": 1}`), 0o600))

	var buf bytes.Buffer

	cmd := NewValidateCommand()
	cmd.SetOut(&buf)
	cmd.SetArgs([]string{bad, "--no-color"})

	require.ErrorIs(t, cmd.Execute(), ErrInvalidResults)
	assert.Contains(t, buf.String(), "bad.json: ")
	assert.Contains(t, buf.String(), "violations")
}

// TestMCPCommand_Exists verifies the command metadata and flags.
func TestMCPCommand_Exists(t *testing.T) {
	t.Parallel()

	cmd := NewMCPCommand(&Globals{})
	require.NotNil(t, cmd)
	assert.Equal(t, "mcp", cmd.Use)
	assert.NotEmpty(t, cmd.Long)

	flag := cmd.Flags().Lookup("debug")
	require.NotNil(t, flag)
	assert.Equal(t, "false", flag.DefValue)
}

// TestMCPInit verifies the OTLP environment and forced JSON logging.
func TestMCPInit(t *testing.T) {
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "collector:4317")
	t.Setenv("OTEL_EXPORTER_OTLP_HEADERS", "x-token=abc")
	t.Setenv("OTEL_EXPORTER_OTLP_INSECURE", "true")

	var got observability.Config

	wrapped := mcpInit(func(cfg observability.Config) (observability.Providers, error) {
		got = cfg

		return observability.Providers{}, nil
	}, true)

	_, err := wrapped(observability.DefaultConfig())
	require.NoError(t, err)

	assert.Equal(t, "collector:4317", got.OTLPEndpoint)
	assert.Equal(t, map[string]string{"x-token": "abc"}, got.OTLPHeaders)
	assert.True(t, got.OTLPInsecure)
	assert.True(t, got.LogJSON)
	assert.Equal(t, "DEBUG", got.LogLevel.String())
}
