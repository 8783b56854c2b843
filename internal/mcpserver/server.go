// Package mcpserver exposes the query layer as Model Context Protocol tools
// over stdio.
package mcpserver

import (
	"context"
	"log/slog"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/jward/trellis"
)

const instructions = `This server answers structural questions about an indexed workspace:
where a symbol is defined, where it is used, what implements it, and which
files include or are included by a file. Positions are 1-based line and
character. File paths are relative to the workspace root.`

// New returns an MCP server whose tools answer from q. root and db identify
// the workspace for trellis_daemon_status.
func New(q *trellis.QueryBuilder, root, db string, logger *slog.Logger) *mcp.Server {
	h := &Handlers{Query: q, Root: root, DB: db, Logger: logger}

	s := mcp.NewServer(
		&mcp.Implementation{Name: "trellis", Version: trellis.Version},
		&mcp.ServerOptions{Instructions: instructions},
	)

	mcp.AddTool(s, &mcp.Tool{
		Name:        "trellis_symbols",
		Description: "List indexed symbols. Filter by name, kind and file, and page with limit and offset. With fuzzy, names are ranked by similarity to the given name.",
	}, h.Symbols)
	mcp.AddTool(s, &mcp.Tool{
		Name:        "trellis_symbol",
		Description: "Show every symbol with exactly the given name, with its file and span.",
	}, h.Symbol)
	mcp.AddTool(s, &mcp.Tool{
		Name:        "trellis_definition",
		Description: "Find the definition of the symbol at a file position.",
	}, h.Definition)
	mcp.AddTool(s, &mcp.Tool{
		Name:        "trellis_usages",
		Description: "Find references to the symbol at a file position, in its file and every file that depends on it.",
	}, h.Usages)
	mcp.AddTool(s, &mcp.Tool{
		Name:        "trellis_implementations",
		Description: "Find declarations that share the name of the symbol at a file position, in its file and its dependents.",
	}, h.Implementations)
	mcp.AddTool(s, &mcp.Tool{
		Name:        "trellis_includers",
		Description: "List files that include or import the given file. With transitive, follow dependents all the way up.",
	}, h.Includers)
	mcp.AddTool(s, &mcp.Tool{
		Name:        "trellis_includes",
		Description: "List files the given file includes or imports. With transitive, follow dependencies all the way down.",
	}, h.Includes)
	mcp.AddTool(s, &mcp.Tool{
		Name:        "trellis_structure",
		Description: "Show the declarations of a file as a tree, with counts per kind and the main types.",
	}, h.Structure)
	mcp.AddTool(s, &mcp.Tool{
		Name:        "trellis_duplicates",
		Description: "Find declarations whose bodies are identical once whitespace is ignored.",
	}, h.Duplicates)
	mcp.AddTool(s, &mcp.Tool{
		Name:        "trellis_stats",
		Description: "Show index statistics: files by language, symbols by kind, edges and parse failures.",
	}, h.Stats)
	mcp.AddTool(s, &mcp.Tool{
		Name:        "trellis_daemon_status",
		Description: "Report whether a daemon is keeping this workspace's index current.",
	}, h.DaemonStatus)

	return s
}

// Serve runs s on stdin/stdout until the client disconnects or ctx ends.
func Serve(ctx context.Context, s *mcp.Server) error {
	return s.Run(ctx, &mcp.StdioTransport{})
}
