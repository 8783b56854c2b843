package main

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jward/trellis"
	"github.com/jward/trellis/internal/daemon"
)

func sampleSymbols() []trellis.SymbolResult {
	return []trellis.SymbolResult{
		{ID: "a.go#0-20", Name: "Run", Kind: "function", Visibility: "public", Location: trellis.Location{File: "a.go", StartLine: 1, StartCol: 1}},
		{ID: "b.go#5-30", Name: "run, again", Kind: "method", Container: "T", Location: trellis.Location{File: "b.go", StartLine: 3, StartCol: 2}},
	}
}

func TestValidateFormat(t *testing.T) {
	t.Parallel()
	for _, f := range validFormats {
		assert.NoError(t, validateFormat(f), f)
	}
	assert.Error(t, validateFormat("yaml"))
}

func TestOutput_Formats(t *testing.T) {
	t.Parallel()
	tests := []struct {
		format string
		want   []string
	}{
		{formatText, []string{"NAME", "Run", "a.go:1:1", "b.go:3:2"}},
		{formatJSON, []string{`"command": "symbols"`, `"outcome": "found"`, `"count": 2`}},
		{formatJSONL, []string{`{"id":"a.go#0-20"`, `{"id":"b.go#5-30"`}},
		{formatCSV, []string{"name,kind,visibility,container,location,id", `"run, again",method,,T,b.go:3:2,b.go#5-30`}},
		{formatTSV, []string{"name\tkind\tvisibility", "Run\tfunction\tpublic\t\ta.go:1:1\ta.go#0-20"}},
	}
	for _, tt := range tests {
		t.Run(tt.format, func(t *testing.T) {
			var buf bytes.Buffer
			require.NoError(t, output(&buf, tt.format, "symbols", trellis.Found, sampleSymbols(), symbolTable))
			for _, w := range tt.want {
				assert.Contains(t, buf.String(), w)
			}
		})
	}
}

func TestOutput_FormatDoesNotChangeRecords(t *testing.T) {
	t.Parallel()
	count := func(format string) int {
		var buf bytes.Buffer
		require.NoError(t, output(&buf, format, "symbols", trellis.Found, sampleSymbols(), symbolTable))
		return len(strings.Split(strings.TrimSpace(buf.String()), "\n"))
	}
	assert.Equal(t, 2, count(formatJSONL))
	assert.Equal(t, 3, count(formatCSV))
	assert.Equal(t, 3, count(formatTSV))
	assert.Equal(t, 3, count(formatText))
}

func TestOutput_EmptyJSONHasEmptyResults(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	require.NoError(t, output[string](&buf, formatJSON, "includes", trellis.NotFound, nil, fileTable))
	assert.Contains(t, buf.String(), `"outcome": "not_found"`)
	assert.Contains(t, buf.String(), `"results": []`)
}

func TestOutputStats(t *testing.T) {
	t.Parallel()
	now := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	s := &trellis.Stats{
		ParseFailures: []trellis.ParseFailure{{Path: "bad.py", Reason: "syntax error"}},
	}
	s.Files.Total = 2
	s.Files.ByLanguage = map[string]int{"python": 1, "go": 1}
	s.Symbols.Total = 5
	s.Index.LastUpdated = &now

	var text bytes.Buffer
	require.NoError(t, outputStats(&text, formatText, s))
	out := text.String()
	assert.Contains(t, out, "Files:   2")
	assert.Less(t, strings.Index(out, "go: 1"), strings.Index(out, "python: 1"))
	assert.Contains(t, out, "bad.py: syntax error")

	var tsv bytes.Buffer
	require.NoError(t, outputStats(&tsv, formatTSV, s))
	assert.True(t, strings.HasPrefix(tsv.String(), "{"))
}

func TestOutputStatus(t *testing.T) {
	t.Parallel()
	started := time.Now()
	var buf bytes.Buffer
	require.NoError(t, outputStatus(&buf, formatText, &daemon.Status{
		Running:       true,
		PID:           42,
		StartedAt:     &started,
		DaemonVersion: "old",
		Version:       "new",
		DB:            "/x/index.db",
		Files:         3,
	}))
	assert.Contains(t, buf.String(), "running (pid 42)")
	assert.Contains(t, buf.String(), "restart recommended")
	assert.Contains(t, buf.String(), "3 files")

	buf.Reset()
	require.NoError(t, outputStatus(&buf, formatText, &daemon.Status{Root: "/x"}))
	assert.Contains(t, buf.String(), "not running")
}
