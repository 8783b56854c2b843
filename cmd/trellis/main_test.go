package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFindRepoRoot_DirectGitDir(t *testing.T) {
	t.Parallel()
	root := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(root, ".git"), 0o755))

	assert.Equal(t, root, findRepoRoot(root))
}

func TestFindRepoRoot_NestedSubdirectory(t *testing.T) {
	t.Parallel()
	root := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(root, ".git"), 0o755))
	deep := filepath.Join(root, "sub", "deep")
	require.NoError(t, os.MkdirAll(deep, 0o755))

	assert.Equal(t, root, findRepoRoot(deep))
}

func TestFindRepoRoot_NoGitAncestor(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()

	assert.Equal(t, dir, findRepoRoot(dir))
}

var workspace = map[string]string{
	"lib.py": "def helper():\n    return 1\n\ndef other():\n    return 2\n",
	"app.py": "import lib\n\ndef main():\n    helper()\n    helper()\n",
	"cli.py": "import app\n",
}

// newWorkspace writes the fixture and indexes it.
func newWorkspace(t *testing.T) string {
	t.Helper()
	return indexedWorkspace(t, workspace)
}

func indexedWorkspace(t *testing.T, files map[string]string) string {
	t.Helper()
	root := t.TempDir()
	for name, content := range files {
		require.NoError(t, os.WriteFile(filepath.Join(root, name), []byte(content), 0o644))
	}
	code, _, stderr := runCLI(t, root, "index")
	require.Equal(t, exitFound, code, stderr)
	return root
}

func runCLI(t *testing.T, root string, args ...string) (int, string, string) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	full := append([]string{"--root", root, "--log-level", "warn"}, args...)
	code := run(full, &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func TestIndex_CreatesDefaultDB(t *testing.T) {
	t.Parallel()
	root := newWorkspace(t)
	assert.FileExists(t, filepath.Join(root, ".trellis", "index.db"))
}

func TestIndex_ReportsSummary(t *testing.T) {
	t.Parallel()
	root := newWorkspace(t)

	code, stdout, stderr := runCLI(t, root, "--format", "json", "index")
	require.Equal(t, exitFound, code, stderr)
	var sum struct{ Discovered, Unchanged int }
	require.NoError(t, json.Unmarshal([]byte(stdout), &sum))
	assert.Equal(t, 3, sum.Discovered)
	assert.Equal(t, 3, sum.Unchanged)

	code, _, stderr = runCLI(t, root, "index", "--force")
	require.Equal(t, exitFound, code)
	assert.Contains(t, stderr, "Cleared index")
}

func TestQuery_NoIndexIsError(t *testing.T) {
	t.Parallel()
	code, _, stderr := runCLI(t, t.TempDir(), "--no-auto-index", "stats")
	assert.Equal(t, exitError, code)
	assert.Contains(t, stderr, "no index at")
}

func TestQuery_BuildsMissingIndex(t *testing.T) {
	t.Parallel()
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "a.py"), []byte("def a():\n    pass\n"), 0o644))

	code, stdout, stderr := runCLI(t, root, "symbols", "--name", "a")
	require.Equal(t, exitFound, code, stderr)
	assert.Contains(t, stdout, "a.py:1:1")
	assert.FileExists(t, filepath.Join(root, ".trellis", "index.db"))
}

func TestInvalidFormat(t *testing.T) {
	t.Parallel()
	code, _, stderr := runCLI(t, t.TempDir(), "--format", "xml", "stats")
	assert.Equal(t, exitError, code)
	assert.Contains(t, stderr, `invalid format "xml"`)
}

func TestSymbols_TextAndExitCodes(t *testing.T) {
	t.Parallel()
	root := newWorkspace(t)

	code, stdout, _ := runCLI(t, root, "symbols", "--name", "helper")
	assert.Equal(t, exitFound, code)
	assert.Contains(t, stdout, "NAME")
	assert.Contains(t, stdout, "lib.py:1:1")

	code, stdout, _ = runCLI(t, root, "symbols", "--name", "missing")
	assert.Equal(t, exitNotFound, code)
	assert.Empty(t, stdout)
}

func TestSymbols_FileFilterAndLimit(t *testing.T) {
	t.Parallel()
	root := newWorkspace(t)

	code, stdout, _ := runCLI(t, root, "--format", "jsonl", "symbols", "--file", "lib.py", "--limit", "1")
	require.Equal(t, exitFound, code)
	lines := strings.Split(strings.TrimSpace(stdout), "\n")
	require.Len(t, lines, 1)
	assert.Contains(t, lines[0], `"name":"helper"`)
}

func TestSymbols_Offset(t *testing.T) {
	t.Parallel()
	root := newWorkspace(t)

	code, stdout, _ := runCLI(t, root, "--format", "jsonl", "symbols", "--file", "lib.py", "--offset", "1")
	require.Equal(t, exitFound, code)
	lines := strings.Split(strings.TrimSpace(stdout), "\n")
	require.Len(t, lines, 1)
	assert.Contains(t, lines[0], `"name":"other"`)

	code, _, _ = runCLI(t, root, "symbols", "--file", "lib.py", "--offset", "2")
	assert.Equal(t, exitNotFound, code)
}

func TestSymbol_Source(t *testing.T) {
	t.Parallel()
	root := newWorkspace(t)

	code, stdout, _ := runCLI(t, root, "symbol", "--name", "helper", "--source")
	require.Equal(t, exitFound, code)
	assert.Contains(t, stdout, "function helper lib.py:1:1\n    def helper():\n        return 1\n")
	assert.NotContains(t, stdout, "other")

	code, stdout, _ = runCLI(t, root, "symbol", "--name", "helper", "-C", "2")
	require.Equal(t, exitFound, code)
	assert.Contains(t, stdout, "    def other():")

	code, stdout, _ = runCLI(t, root, "--format", "json", "symbol", "--name", "helper", "--source")
	require.Equal(t, exitFound, code)
	assert.Contains(t, stdout, `"source": "def helper():\n    return 1"`)

	code, stdout, _ = runCLI(t, root, "--format", "json", "symbol", "--name", "helper")
	require.Equal(t, exitFound, code)
	assert.NotContains(t, stdout, `"source"`)
}

func TestUsages_Source(t *testing.T) {
	t.Parallel()
	root := newWorkspace(t)

	code, stdout, _ := runCLI(t, root, "usages", "--file", "lib.py:1:5", "--limit", "1", "--source")
	require.Equal(t, exitFound, code)
	assert.Contains(t, stdout, "app.py:4:5\n        helper()\n")
}

func TestStructure(t *testing.T) {
	t.Parallel()
	root := newWorkspace(t)

	code, stdout, stderr := runCLI(t, root, "structure", "--file", "lib.py")
	require.Equal(t, exitFound, code, stderr)
	assert.Contains(t, stdout, "Summary: 2 functions | 5 lines")
	assert.Contains(t, stdout, "├─ function helper (public)  [1:1 - 2:13]")
	assert.Contains(t, stdout, "└─ function other (public)")

	code, stdout, _ = runCLI(t, root, "--format", "csv", "structure", "--file", "lib.py")
	require.Equal(t, exitFound, code)
	lines := strings.Split(strings.TrimSpace(stdout), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "name,kind,start,end,visibility,container", lines[0])
	assert.Equal(t, "helper,function,1:1,2:13,public,", lines[1])

	code, _, _ = runCLI(t, root, "structure", "--file", "cli.py")
	assert.Equal(t, exitNotFound, code)
}

func TestDuplicates(t *testing.T) {
	t.Parallel()
	body := "def compute_total(items):\n    return sum(item.price for item in items)\n"
	root := indexedWorkspace(t, map[string]string{"a.py": body, "b.py": body, "c.py": "def c():\n    pass\n"})

	code, stdout, stderr := runCLI(t, root, "duplicates")
	require.Equal(t, exitFound, code, stderr)
	assert.Contains(t, stdout, "Found 1 duplicate groups (2 total symbols)")
	assert.Contains(t, stdout, "Group 1 (2 duplicates, hash: ")

	code, stdout, _ = runCLI(t, root, "--format", "csv", "duplicates")
	require.Equal(t, exitFound, code)
	lines := strings.Split(strings.TrimSpace(stdout), "\n")
	require.Len(t, lines, 3, "one row per group member")
	assert.Equal(t, "group_hash,name,kind,location,container", lines[0])
	assert.Contains(t, lines[1], ",compute_total,function,a.py:1:1,")

	code, _, _ = runCLI(t, root, "duplicates", "--min-count", "3")
	assert.Equal(t, exitNotFound, code)
}

func TestSymbols_Fuzzy(t *testing.T) {
	t.Parallel()
	root := newWorkspace(t)

	code, stdout, _ := runCLI(t, root, "--format", "json", "symbols", "--name", "helpr", "--fuzzy")
	require.Equal(t, exitFound, code)
	var res struct {
		Results []struct{ Name string } `json:"results"`
	}
	require.NoError(t, json.Unmarshal([]byte(stdout), &res))
	require.NotEmpty(t, res.Results)
	assert.Equal(t, "helper", res.Results[0].Name)
}

func TestSymbol_RequiresName(t *testing.T) {
	t.Parallel()
	root := newWorkspace(t)
	code, _, stderr := runCLI(t, root, "symbol")
	assert.Equal(t, exitError, code)
	assert.Contains(t, stderr, "name")
}

func TestDefinition_JSONEnvelope(t *testing.T) {
	t.Parallel()
	root := newWorkspace(t)

	code, stdout, stderr := runCLI(t, root, "--format", "json", "definition", "--file", "app.py:4:5")
	require.Equal(t, exitFound, code, stderr)
	var res CLIResult
	require.NoError(t, json.Unmarshal([]byte(stdout), &res))
	assert.Equal(t, "definition", res.Command)
	assert.Equal(t, "found", res.Outcome)
	assert.Equal(t, 1, res.Count)
	assert.Contains(t, stdout, `"file": "lib.py"`)
}

func TestDefinition_LineFlags(t *testing.T) {
	t.Parallel()
	root := newWorkspace(t)

	code, stdout, _ := runCLI(t, root, "definition", "--file", "app.py", "--line", "4", "--character", "5")
	require.Equal(t, exitFound, code)
	assert.Contains(t, stdout, "helper")

	code, _, stderr := runCLI(t, root, "definition", "--file", "app.py")
	assert.Equal(t, exitError, code)
	assert.Contains(t, stderr, "a line is required")
}

func TestUsages_CSVAndTSV(t *testing.T) {
	t.Parallel()
	root := newWorkspace(t)

	code, stdout, _ := runCLI(t, root, "--format", "csv", "usages", "--file", "lib.py:1:5")
	require.Equal(t, exitFound, code)
	lines := strings.Split(strings.TrimSpace(stdout), "\n")
	require.Len(t, lines, 3, "header plus the two calls in app.py")
	assert.Equal(t, "name,file,line,character,end_line,end_character", lines[0])
	assert.Equal(t, "helper,app.py,4,5,4,11", lines[1])

	code, stdout, _ = runCLI(t, root, "--format", "tsv", "usages", "--file", "lib.py:1:5", "--limit", "1")
	require.Equal(t, exitFound, code)
	lines = strings.Split(strings.TrimSpace(stdout), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "helper\tapp.py\t4\t5\t4\t11", lines[1])
}

func TestUsages_NotFoundStillWritesHeader(t *testing.T) {
	t.Parallel()
	root := newWorkspace(t)

	code, stdout, _ := runCLI(t, root, "--format", "csv", "usages", "--file", "lib.py:4:5")
	assert.Equal(t, exitNotFound, code)
	assert.Equal(t, "name,file,line,character,end_line,end_character\n", stdout)
}

func TestImplementation(t *testing.T) {
	t.Parallel()
	root := newWorkspace(t)

	code, stdout, _ := runCLI(t, root, "implementation", "--file", "app.py:4:5", "--kind", "class")
	assert.Equal(t, exitNotFound, code)
	assert.Empty(t, stdout)
}

func TestIncludersAndIncludes(t *testing.T) {
	t.Parallel()
	root := newWorkspace(t)

	code, stdout, _ := runCLI(t, root, "includers", "--file", "lib.py", "--transitive")
	require.Equal(t, exitFound, code)
	got := strings.Fields(stdout)
	assert.ElementsMatch(t, []string{"app.py", "cli.py"}, got)

	code, stdout, _ = runCLI(t, root, "includes", "--file", "cli.py")
	require.Equal(t, exitFound, code)
	assert.Equal(t, "app.py\n", stdout)

	code, _, _ = runCLI(t, root, "includes", "--file", "lib.py")
	assert.Equal(t, exitNotFound, code)

	code, _, stderr := runCLI(t, root, "includes", "--file", "../elsewhere.py")
	assert.Equal(t, exitError, code)
	assert.Contains(t, stderr, "outside the workspace root")
}

func TestStats_TabularFallsBackToJSON(t *testing.T) {
	t.Parallel()
	root := newWorkspace(t)

	code, stdout, _ := runCLI(t, root, "--format", "csv", "stats")
	require.Equal(t, exitFound, code)
	var stats struct {
		Files struct{ Total int } `json:"files"`
	}
	require.NoError(t, json.Unmarshal([]byte(stdout), &stats))
	assert.Equal(t, 3, stats.Files.Total)

	code, stdout, _ = runCLI(t, root, "stats")
	require.Equal(t, exitFound, code)
	assert.Contains(t, stdout, "Files:   3")
	assert.Contains(t, stdout, "python: 3")
}

func TestErrors_JSONEnvelope(t *testing.T) {
	t.Parallel()
	code, stdout, _ := runCLI(t, t.TempDir(), "--format", "json", "--no-auto-index", "stats")
	assert.Equal(t, exitError, code)
	var res CLIResult
	require.NoError(t, json.Unmarshal([]byte(stdout), &res))
	assert.Equal(t, "stats", res.Command)
	assert.Contains(t, res.Error, "no index at")
}

func TestDaemonStatus_NotRunning(t *testing.T) {
	t.Parallel()
	root := newWorkspace(t)

	code, stdout, _ := runCLI(t, root, "--format", "json", "daemon", "status")
	assert.Equal(t, exitNotFound, code)
	var st struct {
		Running bool `json:"running"`
		Files   int  `json:"files"`
	}
	require.NoError(t, json.Unmarshal([]byte(stdout), &st))
	assert.False(t, st.Running)
	assert.Equal(t, 3, st.Files)
}

func TestDaemonStop_NotRunning(t *testing.T) {
	t.Parallel()
	code, _, stderr := runCLI(t, t.TempDir(), "daemon", "stop")
	assert.Equal(t, exitNotFound, code)
	assert.Contains(t, stderr, "No daemon running")
}

func TestConfigFile_InvalidIsError(t *testing.T) {
	t.Parallel()
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, ".trellis.toml"), []byte("debounce_ms = -1\n"), 0o644))

	code, _, stderr := runCLI(t, root, "index")
	assert.Equal(t, exitError, code)
	assert.Contains(t, stderr, "debounce_ms")
}

func TestConfigFile_CustomDB(t *testing.T) {
	t.Parallel()
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "a.py"), []byte("def a():\n    pass\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, ".trellis.toml"), []byte("db = \"idx/custom.db\"\n"), 0o644))

	code, _, stderr := runCLI(t, root, "index")
	require.Equal(t, exitFound, code, stderr)
	assert.FileExists(t, filepath.Join(root, "idx", "custom.db"))
}

func TestLogFile(t *testing.T) {
	t.Parallel()
	root := newWorkspace(t)
	logPath := filepath.Join(t.TempDir(), "trellis.log")

	var stdout, stderr bytes.Buffer
	code := run([]string{"--root", root, "--log-level", "debug", "--log-file", logPath, "index"}, &stdout, &stderr)
	require.Equal(t, exitFound, code)
	data, err := os.ReadFile(logPath)
	require.NoError(t, err)
	assert.NotEmpty(t, data)
}
