package trellis

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFileArg(t *testing.T) {
	t.Parallel()
	tests := []struct {
		arg  string
		want Position
	}{
		{"main.go", Position{File: "main.go"}},
		{"main.go:12", Position{File: "main.go", Line: 12}},
		{"main.go:12:5", Position{File: "main.go", Line: 12, Character: 5}},
		{"src/a:b.go:3:4", Position{File: "src/a:b.go", Line: 3, Character: 4}},
		{`C:\src\main.go`, Position{File: `C:\src\main.go`}},
		{`C:\src\main.go:7`, Position{File: `C:\src\main.go`, Line: 7}},
		{"main.go:x:y", Position{File: "main.go:x:y"}},
	}
	for _, tt := range tests {
		t.Run(tt.arg, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseFileArg(tt.arg))
		})
	}
}

func TestOffsetAt(t *testing.T) {
	t.Parallel()
	src := []byte("ab\r\ncdef\n\nxyz")
	tests := []struct {
		name       string
		line, char int
		want       int
	}{
		{"first byte", 1, 1, 0},
		{"clamped before CR", 1, 10, 2},
		{"second line", 2, 3, 6},
		{"empty line", 3, 5, 9},
		{"last line without newline", 4, 2, 11},
		{"past last line end", 4, 9, 13},
		{"char below one", 2, 0, 4},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := OffsetAt(src, tt.line, tt.char)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := OffsetAt(src, 5, 1)
	require.ErrorIs(t, err, ErrInvalidPosition)
	_, err = OffsetAt(src, 0, 1)
	require.ErrorIs(t, err, ErrInvalidPosition)
}

func TestLineIndex(t *testing.T) {
	t.Parallel()
	src := []byte("ab\ncdef\n\nxyz")
	li := newLineIndex(src)
	tests := []struct {
		offset     int
		line, char int
	}{
		{0, 1, 1},
		{2, 1, 3},
		{3, 2, 1},
		{7, 2, 5},
		{8, 3, 1},
		{9, 4, 1},
		{12, 4, 4},
	}
	for _, tt := range tests {
		line, char := li.position(tt.offset)
		assert.Equal(t, tt.line, line, "offset %d", tt.offset)
		assert.Equal(t, tt.char, char, "offset %d", tt.offset)

		back, err := OffsetAt(src, line, char)
		require.NoError(t, err)
		assert.Equal(t, tt.offset, back)
	}
}
