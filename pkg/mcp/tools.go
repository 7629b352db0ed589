package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/Sumatoshi-tech/launchtrace/pkg/atrace"
	"github.com/Sumatoshi-tech/launchtrace/pkg/batch"
	"github.com/Sumatoshi-tech/launchtrace/pkg/cycle"
	"github.com/Sumatoshi-tech/launchtrace/pkg/identity"
	"github.com/Sumatoshi-tech/launchtrace/pkg/reaction"
	"github.com/Sumatoshi-tech/launchtrace/pkg/tracestore"
)

// Tool name constants.
const (
	ToolNameAnalyzeTrace   = "analyze_trace"
	ToolNameGroupFiles     = "group_files"
	ToolNameMatchSnapshots = "match_snapshots"
)

// Analysis modes accepted by analyze_trace.
const (
	ModeLaunch   = "launch"
	ModeReaction = "reaction"
)

// MaxFiles caps the file list of group_files and match_snapshots.
const MaxFiles = 10_000

const snapshotMarker = "bugreport"

// Sentinel errors for tool input validation.
var (
	// ErrEmptyPath indicates the path parameter is empty.
	ErrEmptyPath = errors.New("path parameter is required and must not be empty")
	// ErrUnknownMode indicates the mode parameter is not launch or reaction.
	ErrUnknownMode = errors.New("mode must be launch or reaction")
	// ErrNoFiles indicates the files parameter is empty.
	ErrNoFiles = errors.New("files parameter is required and must not be empty")
	// ErrTooManyFiles indicates the files parameter exceeds MaxFiles.
	ErrTooManyFiles = errors.New("too many files")
)

// Input types (auto-generate JSON schemas via struct tags).

// AnalyzeTraceInput is the input schema for the analyze_trace tool.
type AnalyzeTraceInput struct {
	Path     string `json:"path"               jsonschema:"path to a trace file (ftrace text, html or raw atrace)"`
	Mode     string `json:"mode,omitempty"     jsonschema:"launch (default) or reaction"`
	Snapshot string `json:"snapshot,omitempty" jsonschema:"optional bugreport zip or folder supplying the pid to process table"`
}

// FilesInput is the input schema for group_files and match_snapshots.
type FilesInput struct {
	Files []string `json:"files" jsonschema:"trace file names or paths; match_snapshots also takes bugreport paths"`
}

// Output type (used as structured output for generic AddTool).

// ToolOutput is a generic wrapper for tool results.
type ToolOutput struct {
	Data any `json:"data"`
}

// errorResult builds a CallToolResult with isError set.
func errorResult(err error) (*mcpsdk.CallToolResult, ToolOutput, error) {
	return &mcpsdk.CallToolResult{
		Content: []mcpsdk.Content{
			&mcpsdk.TextContent{Text: err.Error()},
		},
		IsError: true,
	}, ToolOutput{}, nil
}

// jsonResult builds a CallToolResult with JSON-encoded content.
func jsonResult(value any) (*mcpsdk.CallToolResult, ToolOutput, error) {
	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return errorResult(fmt.Errorf("encode result: %w", err))
	}

	return &mcpsdk.CallToolResult{
		Content: []mcpsdk.Content{
			&mcpsdk.TextContent{Text: string(data)},
		},
	}, ToolOutput{Data: value}, nil
}

func loadTrace(logger *slog.Logger) batch.OpenFunc {
	return func(ctx context.Context, path string) (tracestore.Store, error) {
		return atrace.LoadFile(ctx, path, atrace.Options{Logger: logger})
	}
}

func validateFiles(files []string) error {
	if len(files) == 0 {
		return ErrNoFiles
	}

	if len(files) > MaxFiles {
		return fmt.Errorf("%w: %d (max %d)", ErrTooManyFiles, len(files), MaxFiles)
	}

	return nil
}

// handleAnalyzeTrace processes analyze_trace tool calls.
func (s *Server) handleAnalyzeTrace(
	ctx context.Context,
	_ *mcpsdk.CallToolRequest,
	input AnalyzeTraceInput,
) (*mcpsdk.CallToolResult, ToolOutput, error) {
	if input.Path == "" {
		return errorResult(ErrEmptyPath)
	}

	mode := strings.ToLower(input.Mode)
	if mode == "" {
		mode = ModeLaunch
	}

	if mode != ModeLaunch && mode != ModeReaction {
		return errorResult(fmt.Errorf("%w: %q", ErrUnknownMode, input.Mode))
	}

	store, err := s.open(ctx, input.Path)
	if err != nil {
		return errorResult(fmt.Errorf("open trace: %w", err))
	}

	defer func() {
		_ = store.Close()
	}()

	if mode == ModeReaction {
		rec, err := reaction.Analyze(ctx, store, reaction.Options{Apps: s.cfg.Apps, Logger: s.logger})
		if err != nil {
			return errorResult(err)
		}

		return jsonResult(rec)
	}

	ident := identity.Table{}

	if input.Snapshot != "" {
		ident, err = identity.LoadTable(input.Snapshot)
		if err != nil {
			return errorResult(fmt.Errorf("load snapshot: %w", err))
		}
	}

	group := cycle.Group{Ordinal: 1, Kind: cycle.Entry, File: input.Path}
	if groups := s.grouper.Group([]string{input.Path}); len(groups) == 1 {
		group = groups[0]
	}

	rec, err := s.analyzer.Analyze(ctx, store, group, ident)
	if err != nil {
		return errorResult(err)
	}

	return jsonResult(rec)
}

// handleGroupFiles processes group_files tool calls.
func (s *Server) handleGroupFiles(
	_ context.Context,
	_ *mcpsdk.CallToolRequest,
	input FilesInput,
) (*mcpsdk.CallToolResult, ToolOutput, error) {
	if err := validateFiles(input.Files); err != nil {
		return errorResult(err)
	}

	groups := s.grouper.Group(input.Files)
	if groups == nil {
		groups = []cycle.Group{}
	}

	return jsonResult(groups)
}

// handleMatchSnapshots processes match_snapshots tool calls. Paths whose
// base name contains "bugreport" are snapshots; the rest are traces.
func (s *Server) handleMatchSnapshots(
	_ context.Context,
	_ *mcpsdk.CallToolRequest,
	input FilesInput,
) (*mcpsdk.CallToolResult, ToolOutput, error) {
	if err := validateFiles(input.Files); err != nil {
		return errorResult(err)
	}

	items := make([]identity.Item, 0, len(input.Files))

	for _, f := range input.Files {
		if strings.Contains(strings.ToLower(filepath.Base(f)), snapshotMarker) {
			items = append(items, s.groups.Snapshot(f))

			continue
		}

		items = append(items, s.groups.Trace(f))
	}

	parse := func(it identity.Item) (identity.Table, error) {
		return identity.LoadTable(it.Path)
	}

	return jsonResult(identity.Match(items, parse, s.logger))
}
