package mcpserver

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jward/trellis"
)

var files = map[string]string{
	"lib.py": "def helper():\n    return 1\n",
	"app.py": "import lib\n\ndef main():\n    helper()\n",
	"cli.py": "import app\n",
}

func newHandlers(t *testing.T) *Handlers {
	t.Helper()
	root := t.TempDir()
	for name, content := range files {
		require.NoError(t, os.WriteFile(filepath.Join(root, name), []byte(content), 0o644))
	}
	db := filepath.Join(t.TempDir(), "index.db")
	e, err := trellis.New(root, db)
	require.NoError(t, err)
	t.Cleanup(func() { e.Close() })
	_, err = e.BuildFullIndex(context.Background(), false)
	require.NoError(t, err)
	return &Handlers{
		Query:  e.Query(),
		Root:   root,
		DB:     db,
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

func resultText(t *testing.T, res *mcp.CallToolResult) string {
	t.Helper()
	require.NotNil(t, res)
	require.Len(t, res.Content, 1)
	return res.Content[0].(*mcp.TextContent).Text
}

type decoded struct {
	Outcome string            `json:"outcome"`
	Count   int               `json:"count"`
	Results []json.RawMessage `json:"results"`
}

func decode(t *testing.T, res *mcp.CallToolResult) decoded {
	t.Helper()
	require.False(t, res.IsError, resultText(t, res))
	var d decoded
	require.NoError(t, json.Unmarshal([]byte(resultText(t, res)), &d))
	return d
}

func TestSymbols(t *testing.T) {
	h := newHandlers(t)
	res, _, err := h.Symbols(context.Background(), nil, SymbolsArgs{Name: "helper"})
	require.NoError(t, err)
	d := decode(t, res)
	assert.Equal(t, "found", d.Outcome)
	assert.Equal(t, 1, d.Count)

	var sym trellis.SymbolResult
	require.NoError(t, json.Unmarshal(d.Results[0], &sym))
	assert.Equal(t, "lib.py", sym.Location.File)
}

func TestSymbols_NotFoundIsEmptyList(t *testing.T) {
	h := newHandlers(t)
	res, _, err := h.Symbols(context.Background(), nil, SymbolsArgs{Name: "nothing"})
	require.NoError(t, err)
	d := decode(t, res)
	assert.Equal(t, "not_found", d.Outcome)
	assert.NotNil(t, d.Results)
	assert.Empty(t, d.Results)
}

func TestSymbol_RequiresName(t *testing.T) {
	h := newHandlers(t)
	res, _, err := h.Symbol(context.Background(), nil, SymbolArgs{})
	require.NoError(t, err)
	assert.True(t, res.IsError)
	assert.Contains(t, resultText(t, res), "name is required")
}

func TestDefinition_FileArgPosition(t *testing.T) {
	h := newHandlers(t)
	res, _, err := h.Definition(context.Background(), nil, PositionArgs{File: "app.py:4:5"})
	require.NoError(t, err)
	d := decode(t, res)
	require.Equal(t, 1, d.Count)

	var sym trellis.SymbolResult
	require.NoError(t, json.Unmarshal(d.Results[0], &sym))
	assert.Equal(t, "helper", sym.Name)
	assert.Equal(t, "lib.py", sym.Location.File)
}

func TestDefinition_ExplicitLineWins(t *testing.T) {
	h := newHandlers(t)
	res, _, err := h.Definition(context.Background(), nil, PositionArgs{File: "app.py:1:1", Line: 4, Character: 5})
	require.NoError(t, err)
	assert.Equal(t, 1, decode(t, res).Count)
}

func TestDefinition_MissingLine(t *testing.T) {
	h := newHandlers(t)
	res, _, err := h.Definition(context.Background(), nil, PositionArgs{File: "app.py"})
	require.NoError(t, err)
	assert.True(t, res.IsError)
}

func TestUsages(t *testing.T) {
	h := newHandlers(t)
	res, _, err := h.Usages(context.Background(), nil, PositionArgs{File: "lib.py", Line: 1, Character: 5})
	require.NoError(t, err)
	d := decode(t, res)
	assert.Equal(t, "found", d.Outcome)

	var u trellis.Usage
	require.NoError(t, json.Unmarshal(d.Results[0], &u))
	assert.Equal(t, "app.py", u.Location.File)
}

func TestImplementations_QueryErrorIsToolError(t *testing.T) {
	h := newHandlers(t)
	res, _, err := h.Implementations(context.Background(), nil, ImplementationsArgs{File: "../outside.py", Line: 1})
	require.NoError(t, err)
	assert.True(t, res.IsError)
}

func TestIncludersAndIncludes(t *testing.T) {
	h := newHandlers(t)
	ctx := context.Background()

	res, _, err := h.Includers(ctx, nil, FileArgs{File: "lib.py", Transitive: true})
	require.NoError(t, err)
	d := decode(t, res)
	var got []string
	for _, raw := range d.Results {
		var s string
		require.NoError(t, json.Unmarshal(raw, &s))
		got = append(got, s)
	}
	sort.Strings(got)
	assert.Equal(t, []string{"app.py", "cli.py"}, got)

	res, _, err = h.Includes(ctx, nil, FileArgs{File: "cli.py"})
	require.NoError(t, err)
	assert.Equal(t, 1, decode(t, res).Count)

	res, _, err = h.Includes(ctx, nil, FileArgs{})
	require.NoError(t, err)
	assert.True(t, res.IsError)
}

func TestSymbols_Offset(t *testing.T) {
	h := newHandlers(t)
	all, _, err := h.Symbols(context.Background(), nil, SymbolsArgs{})
	require.NoError(t, err)
	paged, _, err := h.Symbols(context.Background(), nil, SymbolsArgs{Offset: 1, Limit: 1})
	require.NoError(t, err)

	full, page := decode(t, all), decode(t, paged)
	require.Equal(t, 1, page.Count)
	require.Greater(t, full.Count, 1)
	assert.JSONEq(t, string(full.Results[1]), string(page.Results[0]))
}

func TestStructure(t *testing.T) {
	h := newHandlers(t)
	res, _, err := h.Structure(context.Background(), nil, StructureArgs{File: "app.py"})
	require.NoError(t, err)
	require.False(t, res.IsError, resultText(t, res))
	var body struct {
		Outcome string                `json:"outcome"`
		Results trellis.FileStructure `json:"results"`
	}
	require.NoError(t, json.Unmarshal([]byte(resultText(t, res)), &body))
	assert.Equal(t, "found", body.Outcome)
	assert.Equal(t, "app.py", body.Results.File)
	require.Len(t, body.Results.Symbols, 1)
	assert.Equal(t, "main", body.Results.Symbols[0].Name)

	res, _, err = h.Structure(context.Background(), nil, StructureArgs{})
	require.NoError(t, err)
	assert.True(t, res.IsError)
}

func TestDuplicates_NoneIsNotFound(t *testing.T) {
	h := newHandlers(t)
	res, _, err := h.Duplicates(context.Background(), nil, DuplicatesArgs{})
	require.NoError(t, err)
	d := decode(t, res)
	assert.Equal(t, "not_found", d.Outcome)
	assert.Empty(t, d.Results)
}

func TestHandlers_ServeFromReadOnlyIndex(t *testing.T) {
	h := newHandlers(t)
	idx, err := trellis.OpenIndex(h.Root, h.DB)
	require.NoError(t, err)
	t.Cleanup(func() { idx.Close() })
	h.Query = idx.Query()

	res, _, err := h.Symbol(context.Background(), nil, SymbolArgs{Name: "helper"})
	require.NoError(t, err)
	assert.Equal(t, 1, decode(t, res).Count)
}

func TestStats(t *testing.T) {
	h := newHandlers(t)
	res, _, err := h.Stats(context.Background(), nil, NoArgs{})
	require.NoError(t, err)
	var stats trellis.Stats
	require.NoError(t, json.Unmarshal([]byte(resultText(t, res)), &stats))
	assert.Equal(t, 3, stats.Files.Total)
}

func TestDaemonStatus_NotRunning(t *testing.T) {
	h := newHandlers(t)
	res, _, err := h.DaemonStatus(context.Background(), nil, NoArgs{})
	require.NoError(t, err)
	var st struct {
		Running bool `json:"running"`
		Files   int  `json:"files"`
	}
	require.NoError(t, json.Unmarshal([]byte(resultText(t, res)), &st))
	assert.False(t, st.Running)
	assert.Equal(t, 3, st.Files)
}

func TestServer_ListsAndCallsTools(t *testing.T) {
	h := newHandlers(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s := New(h.Query, h.Root, h.DB, h.Logger)
	st, ct := mcp.NewInMemoryTransports()
	ss, err := s.Connect(ctx, st, nil)
	require.NoError(t, err)
	defer ss.Close()

	client := mcp.NewClient(&mcp.Implementation{Name: "test", Version: "v0"}, nil)
	cs, err := client.Connect(ctx, ct, nil)
	require.NoError(t, err)
	defer cs.Close()

	tools, err := cs.ListTools(ctx, nil)
	require.NoError(t, err)
	var names []string
	for _, tool := range tools.Tools {
		names = append(names, tool.Name)
	}
	assert.ElementsMatch(t, []string{
		"trellis_symbols", "trellis_symbol", "trellis_definition", "trellis_usages",
		"trellis_implementations", "trellis_includers", "trellis_includes",
		"trellis_structure", "trellis_duplicates", "trellis_stats", "trellis_daemon_status",
	}, names)

	res, err := cs.CallTool(ctx, &mcp.CallToolParams{
		Name:      "trellis_symbol",
		Arguments: map[string]any{"name": "main"},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, decode(t, res).Count)
}
