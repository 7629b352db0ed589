package mcp_test

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/Sumatoshi-tech/launchtrace/pkg/cycle"
	"github.com/Sumatoshi-tech/launchtrace/pkg/launch"
	"github.com/Sumatoshi-tech/launchtrace/pkg/mcp"
	"github.com/Sumatoshi-tech/launchtrace/pkg/phase"
	"github.com/Sumatoshi-tech/launchtrace/pkg/tracestore"
	tt "github.com/Sumatoshi-tech/launchtrace/pkg/tracestore/tracetest"
)

const (
	clockFile   = "DEVICE_250101_100000_clock.log"
	reentryFile = "DEVICE_250101_100100_clock.log"
	pssReport   = "Total PSS by process:\n    314,911K: com.example.app (pid 1000)\n\nTotal PSS by OOM adjustment:\n"
)

func fixtureOpen(data tracestore.Dataset) func(context.Context, string) (tracestore.Store, error) {
	return func(context.Context, string) (tracestore.Store, error) {
		return tt.Store(data), nil
	}
}

// connect starts srv on an in-memory transport and returns a client session.
func connect(t *testing.T, srv *mcp.Server) *mcpsdk.ClientSession {
	t.Helper()

	clientTransport, serverTransport := mcpsdk.NewInMemoryTransports()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)

	serverDone := make(chan error, 1)

	go func() {
		serverDone <- srv.RunWithTransport(ctx, serverTransport)
	}()

	client := mcpsdk.NewClient(&mcpsdk.Implementation{
		Name:    "test-client",
		Version: "1.0.0",
	}, nil)

	session, err := client.Connect(ctx, clientTransport, nil)
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = session.Close()

		cancel()
		<-serverDone
	})

	return session
}

func call(t *testing.T, session *mcpsdk.ClientSession, name string, args map[string]any) *mcpsdk.CallToolResult {
	t.Helper()

	result, err := session.CallTool(context.Background(), &mcpsdk.CallToolParams{
		Name:      name,
		Arguments: args,
	})
	require.NoError(t, err)
	require.NotNil(t, result)
	require.NotEmpty(t, result.Content)

	return result
}

func decode(t *testing.T, result *mcpsdk.CallToolResult, dst any) {
	t.Helper()

	text, ok := result.Content[0].(*mcpsdk.TextContent)
	require.True(t, ok)
	require.NoError(t, json.Unmarshal([]byte(text.Text), dst))
}

// TestMCPServer_ToolsList verifies every tool is listed with an input schema.
func TestMCPServer_ToolsList(t *testing.T) {
	t.Parallel()

	session := connect(t, mcp.NewServer(mcp.ServerDeps{}))

	toolsResult, err := session.ListTools(context.Background(), nil)
	require.NoError(t, err)

	toolNames := make([]string, 0, len(toolsResult.Tools))
	for _, tool := range toolsResult.Tools {
		toolNames = append(toolNames, tool.Name)
		assert.NotNil(t, tool.InputSchema, "tool %s missing input schema", tool.Name)
	}

	assert.ElementsMatch(t, []string{
		mcp.ToolNameAnalyzeTrace, mcp.ToolNameGroupFiles, mcp.ToolNameMatchSnapshots,
	}, toolNames)
}

// TestMCPServer_ListToolNames verifies registered names are sorted.
func TestMCPServer_ListToolNames(t *testing.T) {
	t.Parallel()

	srv := mcp.NewServer(mcp.ServerDeps{})

	assert.Equal(t, []string{"analyze_trace", "group_files", "match_snapshots"}, srv.ListToolNames())
}

// TestMCPServer_AnalyzeTrace verifies a launch trace returns its metrics record.
func TestMCPServer_AnalyzeTrace(t *testing.T) {
	t.Parallel()

	session := connect(t, mcp.NewServer(mcp.ServerDeps{Open: fixtureOpen(tt.ColdLaunch())}))

	result := call(t, session, mcp.ToolNameAnalyzeTrace, map[string]any{"path": clockFile})
	assert.False(t, result.IsError)

	var rec launch.MetricsRecord
	decode(t, result, &rec)

	assert.Equal(t, "clock", rec.App)
	assert.Equal(t, tt.AppPackage, rec.Package)
	assert.Equal(t, phase.Cold, rec.LaunchType)
	assert.InDelta(t, 400, rec.ExecutionMs, 1e-9)
}

// TestMCPServer_AnalyzeTrace_Reaction verifies reaction mode.
func TestMCPServer_AnalyzeTrace_Reaction(t *testing.T) {
	t.Parallel()

	session := connect(t, mcp.NewServer(mcp.ServerDeps{Open: fixtureOpen(tt.Reaction())}))

	result := call(t, session, mcp.ToolNameAnalyzeTrace, map[string]any{
		"path": clockFile,
		"mode": mcp.ModeReaction,
	})
	assert.False(t, result.IsError)

	var rec struct {
		ReactionMs float64 `json:"reaction_ms"`
	}

	decode(t, result, &rec)
	assert.InDelta(t, 174, rec.ReactionMs, 1e-9)
}

// TestMCPServer_AnalyzeTrace_Errors verifies invalid input and unreadable
// traces come back as tool errors.
func TestMCPServer_AnalyzeTrace_Errors(t *testing.T) {
	t.Parallel()

	session := connect(t, mcp.NewServer(mcp.ServerDeps{}))

	tests := []struct {
		name string
		args map[string]any
		want string
	}{
		{"empty path", map[string]any{"path": ""}, "path parameter"},
		{"unknown mode", map[string]any{"path": clockFile, "mode": "boot"}, "mode must be"},
		{"missing file", map[string]any{"path": filepath.Join(t.TempDir(), clockFile)}, "open trace"},
	}

	for _, tc := range tests {
		result := call(t, session, mcp.ToolNameAnalyzeTrace, tc.args)
		assert.True(t, result.IsError, tc.name)

		text, ok := result.Content[0].(*mcpsdk.TextContent)
		require.True(t, ok)
		assert.Contains(t, text.Text, tc.want, tc.name)
	}
}

// TestMCPServer_GroupFiles verifies files are slotted into cycles.
func TestMCPServer_GroupFiles(t *testing.T) {
	t.Parallel()

	session := connect(t, mcp.NewServer(mcp.ServerDeps{}))

	result := call(t, session, mcp.ToolNameGroupFiles, map[string]any{
		"files": []string{reentryFile, clockFile, "readme.log"},
	})
	assert.False(t, result.IsError)

	var groups []cycle.Group
	decode(t, result, &groups)

	require.Len(t, groups, 2)
	assert.Equal(t, clockFile, groups[0].File)
	assert.Equal(t, cycle.Entry, groups[0].Kind)
	assert.Equal(t, cycle.Reentry, groups[1].Kind)
}

// TestMCPServer_GroupFiles_Empty verifies an empty list is rejected.
func TestMCPServer_GroupFiles_Empty(t *testing.T) {
	t.Parallel()

	session := connect(t, mcp.NewServer(mcp.ServerDeps{}))

	result := call(t, session, mcp.ToolNameGroupFiles, map[string]any{"files": []string{}})
	assert.True(t, result.IsError)
}

// TestMCPServer_MatchSnapshots verifies a trace receives the table of the
// snapshot of its group.
func TestMCPServer_MatchSnapshots(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	snap := filepath.Join(dir, "bugreport_2part")
	require.NoError(t, os.Mkdir(snap, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(snap, "dumpstate.txt"), []byte(pssReport), 0o600))

	trace := filepath.Join(dir, clockFile)

	session := connect(t, mcp.NewServer(mcp.ServerDeps{}))

	result := call(t, session, mcp.ToolNameMatchSnapshots, map[string]any{
		"files": []string{trace, snap},
	})
	assert.False(t, result.IsError)

	var assignment map[string]map[string]string
	decode(t, result, &assignment)

	assert.Equal(t, map[string]string{"1000": "com.example.app"}, assignment[trace])
}

// TestMCPServer_TraceID verifies sampled calls report their trace id.
func TestMCPServer_TraceID(t *testing.T) {
	t.Parallel()

	tp := sdktrace.NewTracerProvider(sdktrace.WithSampler(sdktrace.AlwaysSample()))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	session := connect(t, mcp.NewServer(mcp.ServerDeps{Tracer: tp.Tracer("test")}))

	result := call(t, session, mcp.ToolNameGroupFiles, map[string]any{"files": []string{clockFile}})
	require.Len(t, result.Content, 2)

	text, ok := result.Content[1].(*mcpsdk.TextContent)
	require.True(t, ok)
	assert.True(t, strings.HasPrefix(text.Text, "trace_id="))
}
