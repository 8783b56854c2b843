package pathnorm

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalize(t *testing.T) {
	t.Parallel()
	root := filepath.Join(t.TempDir(), "ws")

	tests := []struct {
		name string
		in   string
		want string
	}{
		{"relative", "src/main.go", "src/main.go"},
		{"dot prefix", "./src/main.go", "src/main.go"},
		{"absolute", filepath.Join(root, "pkg", "util.go"), "pkg/util.go"},
		{"redundant segments", "src/../pkg//util.go", "pkg/util.go"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Normalize(root, tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNormalize_OutsideRoot(t *testing.T) {
	t.Parallel()
	root := filepath.Join(t.TempDir(), "ws")
	_, err := Normalize(root, "../elsewhere/x.go")
	require.ErrorIs(t, err, ErrOutsideRoot)
}

func TestKey_Backslashes(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "src/lib/a.c", Key(`src\lib\a.c`))
	assert.Equal(t, "a.go", Key("./a.go"))
}

func TestResolve(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "src/util.ts", Resolve("src/app/main.ts", "../util.ts"))
	assert.Equal(t, "helpers.py", Resolve("main.py", "./helpers.py"))
	assert.Equal(t, "", Dir("main.go"))
	assert.Equal(t, "src/app", Dir("src/app/main.ts"))
}

func TestAbs_RoundTrip(t *testing.T) {
	t.Parallel()
	root := t.TempDir()
	abs := Abs(root, "a/b/c.rs")
	key, err := Normalize(root, abs)
	require.NoError(t, err)
	assert.Equal(t, "a/b/c.rs", key)
}
