package trellis

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var discoveryFiles = map[string]string{
	"config.py": "def parseConfig():\n    pass\n\ndef parseConf():\n    pass\n\nclass Config:\n    pass\n",
	"view.py":   "def render():\n    pass\n\nclass View:\n    def render(self):\n        pass\n",
}

func TestListSymbols_Filters(t *testing.T) {
	t.Parallel()
	_, q := newIndexedEngine(t, discoveryFiles)

	all, outcome, err := q.ListSymbols(SymbolFilter{}, false)
	require.NoError(t, err)
	assert.Equal(t, Found, outcome)
	assert.Len(t, all, 6)
	assert.Equal(t, "config.py", all[0].Location.File)

	byName, _, err := q.ListSymbols(SymbolFilter{Name: "render"}, false)
	require.NoError(t, err)
	assert.Len(t, byName, 2)

	methods, _, err := q.ListSymbols(SymbolFilter{Name: "render", Kind: "method"}, false)
	require.NoError(t, err)
	require.Len(t, methods, 1)
	assert.Equal(t, "View", methods[0].Container)
	assert.Equal(t, 5, methods[0].Location.StartLine)

	limited, _, err := q.ListSymbols(SymbolFilter{File: "config.py", Limit: 2}, false)
	require.NoError(t, err)
	require.Len(t, limited, 2)
	assert.Equal(t, "parseConfig", limited[0].Name)
	assert.Equal(t, "parseConf", limited[1].Name)

	none, outcome, err := q.ListSymbols(SymbolFilter{Name: "absent"}, false)
	require.NoError(t, err)
	assert.Equal(t, NotFound, outcome)
	assert.Empty(t, none)
}

func TestListSymbols_Fuzzy(t *testing.T) {
	t.Parallel()
	_, q := newIndexedEngine(t, discoveryFiles)

	got, outcome, err := q.ListSymbols(SymbolFilter{Name: "parseconfig"}, true)
	require.NoError(t, err)
	assert.Equal(t, Found, outcome)
	require.GreaterOrEqual(t, len(got), 2)
	assert.Equal(t, "parseConfig", got[0].Name)
	assert.InDelta(t, 1.0, got[0].Score, 1e-9)
	assert.Equal(t, "parseConf", got[1].Name)
	for _, r := range got {
		assert.NotEqual(t, "render", r.Name)
		assert.GreaterOrEqual(t, r.Score, fuzzyThreshold)
	}

	limited, _, err := q.ListSymbols(SymbolFilter{Name: "parseconfig", Limit: 1}, true)
	require.NoError(t, err)
	require.Len(t, limited, 1)
	assert.Equal(t, "parseConfig", limited[0].Name)
}

func TestListSymbols_FuzzySubstring(t *testing.T) {
	t.Parallel()
	_, q := newIndexedEngine(t, discoveryFiles)

	got, _, err := q.ListSymbols(SymbolFilter{Name: "conf", Kind: "function"}, true)
	require.NoError(t, err)
	var names []string
	for _, r := range got {
		names = append(names, r.Name)
	}
	assert.ElementsMatch(t, []string{"parseConfig", "parseConf"}, names)
}

func TestShowSymbol(t *testing.T) {
	t.Parallel()
	_, q := newIndexedEngine(t, discoveryFiles)

	got, outcome, err := q.ShowSymbol("render")
	require.NoError(t, err)
	assert.Equal(t, Found, outcome)
	require.Len(t, got, 2)
	assert.Equal(t, "function", got[0].Kind)
	assert.Equal(t, "method", got[1].Kind)

	_, outcome, err = q.ShowSymbol("missing")
	require.NoError(t, err)
	assert.Equal(t, NotFound, outcome)
}

func TestFuzzyScore(t *testing.T) {
	t.Parallel()
	score, ok := fuzzyScore("Render", "render")
	assert.True(t, ok)
	assert.Equal(t, 1.0, score)

	_, ok = fuzzyScore("zzz", "render")
	assert.False(t, ok)
}
