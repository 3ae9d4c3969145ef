package mcp

import (
	"context"
	"fmt"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/nkarpov/codesentry/internal/graph"
	"github.com/nkarpov/codesentry/internal/model"
)

// --- Input/Output types ---

// ScanInput defines parameters for the codesentry_scan tool.
type ScanInput struct {
	Path string `json:"path" jsonschema:"directory to scan for protection markers"`
}

// ScanOutput reports what the scan registered.
type ScanOutput struct {
	Files     int `json:"files"`
	Functions int `json:"functions"`
	Blocks    int `json:"blocks"`
}

// ProtectInput defines parameters for the codesentry_protect tool. Exactly
// one of Function or StartLine/EndLine must be given.
type ProtectInput struct {
	File      string `json:"file" jsonschema:"source file path"`
	Function  string `json:"function,omitempty" jsonschema:"qualified function name (Type.Method for methods)"`
	StartLine int    `json:"start_line,omitempty" jsonschema:"first protected line (1-based, inclusive)"`
	EndLine   int    `json:"end_line,omitempty" jsonschema:"last protected line (1-based, inclusive)"`
}

// ProtectOutput describes the registered entity.
type ProtectOutput struct {
	Name      string `json:"name"`
	Kind      string `json:"kind"`
	StartLine int    `json:"start_line"`
	EndLine   int    `json:"end_line"`
	Digest    string `json:"digest"`
}

// CheckInput defines parameters for the codesentry_check tool.
type CheckInput struct {
	File string `json:"file" jsonschema:"source file to re-verify"`
}

// CheckOutput lists the changes detected by this check.
type CheckOutput struct {
	Clean   bool                 `json:"clean"`
	Changes []model.ChangeRecord `json:"changes,omitempty"`
}

// GraphInput defines parameters for the codesentry_graph tool.
type GraphInput struct {
	Root      string `json:"root,omitempty" jsonschema:"function at the center of the graph, empty for the full graph"`
	Depth     int    `json:"depth,omitempty" jsonschema:"traversal depth bound, default 2"`
	Direction string `json:"direction,omitempty" jsonschema:"callees, callers or both (default both)"`
	Simplify  bool   `json:"simplify,omitempty" jsonschema:"prune low-degree nodes"`
}

// GraphOutput is the rendered call graph.
type GraphOutput struct {
	Nodes []model.Node      `json:"nodes"`
	Edges []model.GraphEdge `json:"edges"`
}

// ErrorsInput defines parameters for the codesentry_errors tool.
type ErrorsInput struct {
	Function string `json:"function,omitempty" jsonschema:"restrict to one function"`
	Limit    int    `json:"limit,omitempty" jsonschema:"maximum records, default 50"`
}

// ErrorsOutput lists recorded errors.
type ErrorsOutput struct {
	Errors []model.ErrorRecord `json:"errors"`
}

// ChangesInput defines parameters for the codesentry_changes tool.
type ChangesInput struct {
	File     string `json:"file,omitempty" jsonschema:"restrict to one file"`
	Function string `json:"function,omitempty" jsonschema:"restrict to one entity name"`
	Limit    int    `json:"limit,omitempty" jsonschema:"maximum records, default 50"`
}

// ChangesOutput lists recorded changes.
type ChangesOutput struct {
	Changes []model.ChangeRecord `json:"changes"`
}

// MonitorInput defines parameters for the codesentry_monitor tool.
type MonitorInput struct {
	Action string `json:"action" jsonschema:"start or stop"`
}

// MonitorOutput reports the monitoring state after the action.
type MonitorOutput struct {
	Monitoring bool `json:"monitoring"`
}

// StatusInput is empty.
type StatusInput struct{}

// StatusOutput summarizes the protection state.
type StatusOutput struct {
	Database   string `json:"database"`
	Functions  int    `json:"functions"`
	Blocks     int    `json:"blocks"`
	Monitoring bool   `json:"monitoring"`
}

// --- Handlers ---

func (s *Server) handleScan(ctx context.Context, req *mcpsdk.CallToolRequest, input ScanInput) (*mcpsdk.CallToolResult, ScanOutput, error) {
	if input.Path == "" {
		return nil, ScanOutput{}, fmt.Errorf("path is required")
	}
	counts, err := s.guard.ScanDirectory(ctx, input.Path)
	if err != nil {
		return nil, ScanOutput{}, err
	}
	return nil, ScanOutput{
		Files:     counts.Files,
		Functions: counts.Functions,
		Blocks:    counts.Blocks,
	}, nil
}

func (s *Server) handleProtect(ctx context.Context, req *mcpsdk.CallToolRequest, input ProtectInput) (*mcpsdk.CallToolResult, ProtectOutput, error) {
	if input.File == "" {
		return nil, ProtectOutput{}, fmt.Errorf("file is required")
	}

	var (
		e   model.ProtectedEntity
		err error
	)
	switch {
	case input.Function != "" && input.StartLine == 0 && input.EndLine == 0:
		e, err = s.guard.RegisterProtection(ctx, input.File, input.Function)
	case input.Function == "" && input.StartLine > 0 && input.EndLine > 0:
		e, err = s.guard.RegisterBlock(ctx, input.File, input.StartLine, input.EndLine)
	default:
		return nil, ProtectOutput{}, fmt.Errorf("give either function or start_line+end_line")
	}
	if err != nil {
		return nil, ProtectOutput{}, err
	}

	return nil, ProtectOutput{
		Name:      e.DisplayName(),
		Kind:      string(e.Kind),
		StartLine: e.StartLine,
		EndLine:   e.EndLine,
		Digest:    e.Digest,
	}, nil
}

func (s *Server) handleCheck(ctx context.Context, req *mcpsdk.CallToolRequest, input CheckInput) (*mcpsdk.CallToolResult, CheckOutput, error) {
	if input.File == "" {
		return nil, CheckOutput{}, fmt.Errorf("file is required")
	}
	changed, err := s.guard.CheckFileIntegrity(ctx, input.File)
	if err != nil {
		return nil, CheckOutput{}, err
	}
	out := CheckOutput{Clean: len(changed) == 0, Changes: changed}
	if !out.Clean {
		return &mcpsdk.CallToolResult{IsError: true}, out, nil
	}
	return nil, out, nil
}

func (s *Server) handleGraph(ctx context.Context, req *mcpsdk.CallToolRequest, input GraphInput) (*mcpsdk.CallToolResult, GraphOutput, error) {
	opts := graph.Options{
		Root:     input.Root,
		Depth:    input.Depth,
		Simplify: input.Simplify,
	}
	switch input.Direction {
	case "", string(graph.Both):
		opts.Direction = graph.Both
	case string(graph.Callees):
		opts.Direction = graph.Callees
	case string(graph.Callers):
		opts.Direction = graph.Callers
	default:
		return nil, GraphOutput{}, fmt.Errorf("unknown direction %q", input.Direction)
	}
	if opts.Depth <= 0 && s.cfg != nil {
		opts.Depth = s.cfg.Graph.DefaultDepth
	}
	if opts.Simplify && s.cfg != nil {
		opts.MinImportance = s.cfg.Graph.MinImportance
	}

	g, err := s.guard.CallGraph(ctx, opts)
	if err != nil {
		return nil, GraphOutput{}, err
	}
	return nil, GraphOutput{Nodes: g.Nodes, Edges: g.Edges}, nil
}

func (s *Server) handleErrors(ctx context.Context, req *mcpsdk.CallToolRequest, input ErrorsInput) (*mcpsdk.CallToolResult, ErrorsOutput, error) {
	limit := input.Limit
	if limit <= 0 {
		limit = 50
	}
	recs, err := s.guard.Errors(ctx, input.Function, limit)
	if err != nil {
		return nil, ErrorsOutput{}, err
	}
	return nil, ErrorsOutput{Errors: recs}, nil
}

func (s *Server) handleChanges(ctx context.Context, req *mcpsdk.CallToolRequest, input ChangesInput) (*mcpsdk.CallToolResult, ChangesOutput, error) {
	limit := input.Limit
	if limit <= 0 {
		limit = 50
	}
	recs, err := s.guard.Changes(ctx, input.File, input.Function, limit)
	if err != nil {
		return nil, ChangesOutput{}, err
	}
	return nil, ChangesOutput{Changes: recs}, nil
}

func (s *Server) handleMonitor(ctx context.Context, req *mcpsdk.CallToolRequest, input MonitorInput) (*mcpsdk.CallToolResult, MonitorOutput, error) {
	switch input.Action {
	case "start":
		if err := s.guard.StartMonitoring(s.cfg.Monitor.Interval(), s.cfg.Monitor.WatchPaths, s.cfg.Tracer.Modules); err != nil {
			return nil, MonitorOutput{}, err
		}
	case "stop":
		s.guard.StopMonitoring()
	default:
		return nil, MonitorOutput{}, fmt.Errorf("action must be start or stop")
	}
	return nil, MonitorOutput{Monitoring: s.guard.IsMonitoring()}, nil
}

func (s *Server) handleStatus(ctx context.Context, req *mcpsdk.CallToolRequest, input StatusInput) (*mcpsdk.CallToolResult, StatusOutput, error) {
	entities, err := s.guard.Entities(ctx)
	if err != nil {
		return nil, StatusOutput{}, err
	}
	out := StatusOutput{
		Database:   s.guard.DatabasePath(),
		Monitoring: s.guard.IsMonitoring(),
	}
	for _, e := range entities {
		switch e.Kind {
		case model.KindFunction:
			out.Functions++
		case model.KindBlock:
			out.Blocks++
		}
	}
	return nil, out, nil
}
