// Package mcp implements a Model Context Protocol server exposing launch
// trace analysis as MCP tools over stdio transport.
package mcp

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/Sumatoshi-tech/launchtrace/pkg/batch"
	"github.com/Sumatoshi-tech/launchtrace/pkg/config"
	"github.com/Sumatoshi-tech/launchtrace/pkg/cycle"
	"github.com/Sumatoshi-tech/launchtrace/pkg/identity"
	"github.com/Sumatoshi-tech/launchtrace/pkg/launch"
	"github.com/Sumatoshi-tech/launchtrace/pkg/observability"
	"github.com/Sumatoshi-tech/launchtrace/pkg/version"
)

const (
	// serverName is the MCP server implementation name.
	serverName = "launchtrace"

	// toolCount is the expected number of registered tools.
	toolCount = 3
)

// ServerDeps holds injectable dependencies for the MCP server.
// Zero-value fields use production defaults.
type ServerDeps struct {
	// Config supplies the app tables and thresholds. Nil uses config.Default.
	Config *config.Config

	// Logger is an optional structured logger. Nil uses slog default.
	Logger *slog.Logger

	// Metrics is an optional recorder for analyze_trace calls.
	Metrics *observability.LaunchMetrics

	// Tracer is an optional OTel tracer for per-tool-call spans. Nil disables tracing.
	Tracer trace.Tracer

	// Open loads a trace; nil parses the file from disk.
	Open batch.OpenFunc
}

// Server wraps the MCP SDK server with the launchtrace tool registrations.
type Server struct {
	inner    *mcpsdk.Server
	mu       sync.RWMutex
	tools    []string
	cfg      config.Config
	grouper  *cycle.Grouper
	groups   identity.Groups
	analyzer *launch.Analyzer
	open     batch.OpenFunc
	metrics  *observability.LaunchMetrics
	tracer   trace.Tracer
	logger   *slog.Logger
}

// NewServer creates a new MCP server with all tools registered.
func NewServer(deps ServerDeps) *Server {
	opts := &mcpsdk.ServerOptions{}
	if deps.Logger != nil {
		opts.Logger = deps.Logger
	}

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	cfg := deps.Config
	if cfg == nil {
		cfg = config.Default()
	}

	inner := mcpsdk.NewServer(
		&mcpsdk.Implementation{
			Name:    serverName,
			Version: version.Version,
		},
		opts,
	)

	srv := &Server{
		inner:    inner,
		tools:    make([]string, 0, toolCount),
		cfg:      *cfg,
		grouper:  cycle.NewGrouper(cfg.Apps.Keywords),
		groups:   identity.NewGroups(cfg.Apps.Groups),
		analyzer: launch.NewAnalyzer(*cfg, logger),
		open:     deps.Open,
		metrics:  deps.Metrics,
		tracer:   deps.Tracer,
		logger:   logger,
	}

	if srv.open == nil {
		srv.open = loadTrace(logger)
	}

	srv.registerTools()

	return srv
}

// ListToolNames returns the sorted names of all registered tools.
func (s *Server) ListToolNames() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	names := make([]string, len(s.tools))
	copy(names, s.tools)
	sort.Strings(names)

	return names
}

// Run starts the MCP server on stdio transport. It blocks until the context
// is canceled or the connection closes.
func (s *Server) Run(ctx context.Context) error {
	return s.RunWithTransport(ctx, &mcpsdk.StdioTransport{})
}

// RunWithTransport starts the MCP server on the given transport. It blocks
// until the context is canceled or the connection closes.
func (s *Server) RunWithTransport(ctx context.Context, transport mcpsdk.Transport) error {
	err := s.inner.Run(ctx, transport)
	if err != nil {
		return fmt.Errorf("mcp server: %w", err)
	}

	return nil
}

func (s *Server) registerTools() {
	mcpsdk.AddTool(s.inner, &mcpsdk.Tool{
		Name:        ToolNameAnalyzeTrace,
		Description: analyzeToolDescription,
	}, withTracing(s.tracer, ToolNameAnalyzeTrace, s.withMetrics(s.handleAnalyzeTrace)))
	s.trackTool(ToolNameAnalyzeTrace)

	mcpsdk.AddTool(s.inner, &mcpsdk.Tool{
		Name:        ToolNameGroupFiles,
		Description: groupToolDescription,
	}, withTracing(s.tracer, ToolNameGroupFiles, s.handleGroupFiles))
	s.trackTool(ToolNameGroupFiles)

	mcpsdk.AddTool(s.inner, &mcpsdk.Tool{
		Name:        ToolNameMatchSnapshots,
		Description: matchToolDescription,
	}, withTracing(s.tracer, ToolNameMatchSnapshots, s.handleMatchSnapshots))
	s.trackTool(ToolNameMatchSnapshots)
}

// mcpSpanPrefix is the prefix for MCP tool span names.
const mcpSpanPrefix = "mcp."

// traceIDMetaKey is the metadata key for trace_id in MCP tool responses.
const traceIDMetaKey = "trace_id"

// withTracing wraps an MCP tool handler to create an OTel span per invocation
// and include trace_id in the response content when sampled.
func withTracing[Input any](
	tracer trace.Tracer,
	toolName string,
	handler func(context.Context, *mcpsdk.CallToolRequest, Input) (*mcpsdk.CallToolResult, ToolOutput, error),
) func(context.Context, *mcpsdk.CallToolRequest, Input) (*mcpsdk.CallToolResult, ToolOutput, error) {
	if tracer == nil {
		return handler
	}

	return func(ctx context.Context, req *mcpsdk.CallToolRequest, input Input) (*mcpsdk.CallToolResult, ToolOutput, error) {
		ctx, span := tracer.Start(ctx, mcpSpanPrefix+toolName,
			trace.WithSpanKind(trace.SpanKindServer),
			trace.WithAttributes(attribute.String("app.mcp.tool", toolName)),
		)
		defer span.End()

		result, output, err := handler(ctx, req, input)

		sc := span.SpanContext()
		if sc.IsSampled() && result != nil {
			traceContent := &mcpsdk.TextContent{Text: fmt.Sprintf("%s=%s", traceIDMetaKey, sc.TraceID().String())}
			result.Content = append(result.Content, traceContent)
		}

		return result, output, err
	}
}

// withMetrics records every analyze_trace call as an analysed trace.
func (s *Server) withMetrics(
	handler func(context.Context, *mcpsdk.CallToolRequest, AnalyzeTraceInput) (*mcpsdk.CallToolResult, ToolOutput, error),
) func(context.Context, *mcpsdk.CallToolRequest, AnalyzeTraceInput) (*mcpsdk.CallToolResult, ToolOutput, error) {
	if s.metrics == nil {
		return handler
	}

	return func(ctx context.Context, req *mcpsdk.CallToolRequest, input AnalyzeTraceInput) (*mcpsdk.CallToolResult, ToolOutput, error) {
		start := time.Now()

		defer s.metrics.TrackInflight(ctx)()

		result, output, err := handler(ctx, req, input)

		outcome := observability.OutcomeSucceeded

		if rec, ok := output.Data.(launch.MetricsRecord); ok {
			if rec.Degraded() {
				outcome = observability.OutcomeDegraded
			}

			s.metrics.RecordMissing(ctx, rec.Missing)
		}

		if err != nil || (result != nil && result.IsError) {
			outcome = observability.OutcomeFailed
		}

		app, _ := s.grouper.Keyword(input.Path)
		s.metrics.RecordTrace(ctx, app, outcome, time.Since(start))

		return result, output, err
	}
}

func (s *Server) trackTool(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.tools = append(s.tools, name)
}

// Tool description constants.
const (
	analyzeToolDescription = "Analyze one Android launch trace file. " +
		"Returns the launch metrics record (phases, execution time, resource attribution) " +
		"or, with mode=reaction, the app reaction timeline."

	groupToolDescription = "Group trace file names into (app, cycle, entry/reentry) slots " +
		"the way a batch run does."

	matchToolDescription = "Assign trace files the process identity table of the bugreport " +
		"snapshot taken after them. Accepts trace and bugreport paths in one list."
)
