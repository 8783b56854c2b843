package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/jward/trellis"
	"github.com/jward/trellis/internal/daemon"
)

// SymbolsArgs are the inputs of trellis_symbols.
type SymbolsArgs struct {
	Name   string `json:"name,omitempty" jsonschema:"Symbol name (exact unless fuzzy is set)"`
	Kind   string `json:"kind,omitempty" jsonschema:"Symbol kind such as function, method, class, struct"`
	File   string `json:"file,omitempty" jsonschema:"Only symbols declared in this file"`
	Limit  int    `json:"limit,omitempty" jsonschema:"Maximum number of results (0 means no limit)"`
	Offset int    `json:"offset,omitempty" jsonschema:"Number of results to skip, for paging"`
	Fuzzy  bool   `json:"fuzzy,omitempty" jsonschema:"Rank names by similarity instead of exact match"`
}

// SymbolArgs are the inputs of trellis_symbol.
type SymbolArgs struct {
	Name string `json:"name" jsonschema:"Exact symbol name"`
}

// PositionArgs address a point in a file. File may carry the position as
// path:line:char, in which case Line and Character may be omitted.
type PositionArgs struct {
	File      string `json:"file" jsonschema:"File path, optionally suffixed with :line:char"`
	Line      int    `json:"line,omitempty" jsonschema:"1-based line"`
	Character int    `json:"character,omitempty" jsonschema:"1-based character"`
	Limit     int    `json:"limit,omitempty" jsonschema:"Maximum number of results (0 means no limit)"`
}

// ImplementationsArgs are the inputs of trellis_implementations.
type ImplementationsArgs struct {
	File      string `json:"file" jsonschema:"File path, optionally suffixed with :line:char"`
	Line      int    `json:"line,omitempty" jsonschema:"1-based line"`
	Character int    `json:"character,omitempty" jsonschema:"1-based character"`
	Kind      string `json:"kind,omitempty" jsonschema:"Only declarations of this kind"`
	Limit     int    `json:"limit,omitempty" jsonschema:"Maximum number of results (0 means no limit)"`
}

// FileArgs are the inputs of trellis_includers and trellis_includes.
type FileArgs struct {
	File       string `json:"file" jsonschema:"File path relative to the workspace root"`
	Transitive bool   `json:"transitive,omitempty" jsonschema:"Follow edges transitively"`
	Limit      int    `json:"limit,omitempty" jsonschema:"Maximum number of results (0 means no limit)"`
}

// StructureArgs are the inputs of trellis_structure.
type StructureArgs struct {
	File string `json:"file" jsonschema:"File path relative to the workspace root"`
}

// DuplicatesArgs are the inputs of trellis_duplicates.
type DuplicatesArgs struct {
	Kind     string   `json:"kind,omitempty" jsonschema:"Only declarations of this kind"`
	Files    []string `json:"files,omitempty" jsonschema:"Only groups with a member in one of these files"`
	MinCount int      `json:"min_count,omitempty" jsonschema:"Smallest group to report (default 2)"`
}

// NoArgs is the input of tools that take no parameters.
type NoArgs struct{}

// Handlers holds the dependencies shared by every tool.
type Handlers struct {
	Query  *trellis.QueryBuilder
	Root   string
	DB     string
	Logger *slog.Logger
}

// answer is the JSON body returned by lookup tools.
type answer struct {
	Outcome string `json:"outcome"`
	Count   int    `json:"count"`
	Results any    `json:"results"`
}

func (h *Handlers) Symbols(ctx context.Context, req *mcp.CallToolRequest, args SymbolsArgs) (*mcp.CallToolResult, any, error) {
	start := time.Now()
	res, out, err := h.Query.ListSymbols(trellis.SymbolFilter{
		Name:   args.Name,
		Kind:   args.Kind,
		File:   args.File,
		Limit:  args.Limit,
		Offset: args.Offset,
	}, args.Fuzzy)
	h.log("trellis_symbols", start, len(res), err, "name", args.Name, "fuzzy", args.Fuzzy)
	return respond(res, out, err)
}

func (h *Handlers) Symbol(ctx context.Context, req *mcp.CallToolRequest, args SymbolArgs) (*mcp.CallToolResult, any, error) {
	if args.Name == "" {
		return failure("name is required"), nil, nil
	}
	start := time.Now()
	res, out, err := h.Query.ShowSymbol(args.Name)
	h.log("trellis_symbol", start, len(res), err, "name", args.Name)
	return respond(res, out, err)
}

func (h *Handlers) Definition(ctx context.Context, req *mcp.CallToolRequest, args PositionArgs) (*mcp.CallToolResult, any, error) {
	pos, msg := position(args.File, args.Line, args.Character)
	if msg != "" {
		return failure(msg), nil, nil
	}
	start := time.Now()
	res, out, err := h.Query.FindDefinition(pos)
	h.log("trellis_definition", start, len(res), err, "pos", pos)
	return respond(res, out, err)
}

func (h *Handlers) Usages(ctx context.Context, req *mcp.CallToolRequest, args PositionArgs) (*mcp.CallToolResult, any, error) {
	pos, msg := position(args.File, args.Line, args.Character)
	if msg != "" {
		return failure(msg), nil, nil
	}
	start := time.Now()
	res, out, err := h.Query.FindUsages(pos, args.Limit)
	h.log("trellis_usages", start, len(res), err, "pos", pos)
	return respond(res, out, err)
}

func (h *Handlers) Implementations(ctx context.Context, req *mcp.CallToolRequest, args ImplementationsArgs) (*mcp.CallToolResult, any, error) {
	pos, msg := position(args.File, args.Line, args.Character)
	if msg != "" {
		return failure(msg), nil, nil
	}
	start := time.Now()
	res, out, err := h.Query.FindImplementation(pos, args.Kind, args.Limit)
	h.log("trellis_implementations", start, len(res), err, "pos", pos, "kind", args.Kind)
	return respond(res, out, err)
}

func (h *Handlers) Includers(ctx context.Context, req *mcp.CallToolRequest, args FileArgs) (*mcp.CallToolResult, any, error) {
	if args.File == "" {
		return failure("file is required"), nil, nil
	}
	start := time.Now()
	res, out, err := h.Query.FindIncluders(args.File, args.Transitive, args.Limit)
	h.log("trellis_includers", start, len(res), err, "file", args.File, "transitive", args.Transitive)
	return respond(res, out, err)
}

func (h *Handlers) Includes(ctx context.Context, req *mcp.CallToolRequest, args FileArgs) (*mcp.CallToolResult, any, error) {
	if args.File == "" {
		return failure("file is required"), nil, nil
	}
	start := time.Now()
	res, out, err := h.Query.FindIncludes(args.File, args.Transitive, args.Limit)
	h.log("trellis_includes", start, len(res), err, "file", args.File, "transitive", args.Transitive)
	return respond(res, out, err)
}

func (h *Handlers) Structure(ctx context.Context, req *mcp.CallToolRequest, args StructureArgs) (*mcp.CallToolResult, any, error) {
	if args.File == "" {
		return failure("file is required"), nil, nil
	}
	start := time.Now()
	fs, out, err := h.Query.FileStructure(args.File)
	n := 0
	if fs != nil {
		n = len(fs.Symbols)
	}
	h.log("trellis_structure", start, n, err, "file", args.File)
	if err != nil {
		return failure(err.Error()), nil, nil
	}
	return text(answer{Outcome: out.String(), Count: n, Results: fs})
}

func (h *Handlers) Duplicates(ctx context.Context, req *mcp.CallToolRequest, args DuplicatesArgs) (*mcp.CallToolResult, any, error) {
	start := time.Now()
	res, out, err := h.Query.FindDuplicates(trellis.DuplicateFilter{
		Kind:     args.Kind,
		Files:    args.Files,
		MinCount: args.MinCount,
	})
	h.log("trellis_duplicates", start, len(res), err, "kind", args.Kind, "files", len(args.Files))
	return respond(res, out, err)
}

func (h *Handlers) Stats(ctx context.Context, req *mcp.CallToolRequest, args NoArgs) (*mcp.CallToolResult, any, error) {
	stats, err := h.Query.Stats()
	if err != nil {
		h.Logger.Error("trellis_stats failed", "error", err)
		return failure(fmt.Sprintf("stats: %v", err)), nil, nil
	}
	return text(stats)
}

func (h *Handlers) DaemonStatus(ctx context.Context, req *mcp.CallToolRequest, args NoArgs) (*mcp.CallToolResult, any, error) {
	st, err := daemon.GetStatus(h.Root, h.DB)
	if err != nil {
		h.Logger.Error("trellis_daemon_status failed", "error", err)
		return failure(fmt.Sprintf("daemon status: %v", err)), nil, nil
	}
	return text(st)
}

// position merges a file:line:char argument with explicit line and
// character values, which win when set.
func position(file string, line, char int) (trellis.Position, string) {
	if file == "" {
		return trellis.Position{}, "file is required"
	}
	pos := trellis.ParseFileArg(file)
	if line > 0 {
		pos.Line = line
	}
	if char > 0 {
		pos.Character = char
	}
	if pos.Line < 1 {
		return pos, "line is required (pass it separately or as file:line:char)"
	}
	if pos.Character < 1 {
		pos.Character = 1
	}
	return pos, ""
}

func (h *Handlers) log(tool string, start time.Time, n int, err error, attrs ...any) {
	if err != nil {
		h.Logger.Error(tool+" failed", append(attrs, "error", err)...)
		return
	}
	h.Logger.Info(tool, append(attrs, "results", n, "elapsed", time.Since(start))...)
}

// respond turns a query answer into a tool result. Query errors become
// error results so the client sees the message instead of a protocol fault.
func respond[T any](res []T, out trellis.Outcome, err error) (*mcp.CallToolResult, any, error) {
	if err != nil {
		return failure(err.Error()), nil, nil
	}
	if res == nil {
		res = []T{}
	}
	return text(answer{Outcome: out.String(), Count: len(res), Results: res})
}

func text(v any) (*mcp.CallToolResult, any, error) {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, nil, err
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: string(b)}},
	}, nil, nil
}

func failure(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: "Error: " + msg}},
		IsError: true,
	}
}
