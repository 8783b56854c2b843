package trellis

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"
)

// Position addresses a point in a file. Line and Character are 1-based;
// Character counts bytes.
type Position struct {
	File      string
	Line      int
	Character int
}

func (p Position) String() string {
	return fmt.Sprintf("%s:%d:%d", p.File, p.Line, p.Character)
}

// ParseFileArg splits "path", "path:line" or "path:line:char". Missing
// parts are zero. A suffix that is not numeric is kept as part of the path,
// so Windows drive letters survive.
func ParseFileArg(arg string) Position {
	p := Position{File: arg}
	parts := strings.Split(arg, ":")
	if len(parts) >= 3 {
		line, errL := strconv.Atoi(parts[len(parts)-2])
		char, errC := strconv.Atoi(parts[len(parts)-1])
		if errL == nil && errC == nil {
			p.File = strings.Join(parts[:len(parts)-2], ":")
			p.Line, p.Character = line, char
			return p
		}
	}
	if len(parts) >= 2 {
		if line, err := strconv.Atoi(parts[len(parts)-1]); err == nil {
			p.File = strings.Join(parts[:len(parts)-1], ":")
			p.Line = line
		}
	}
	return p
}

// OffsetAt maps a 1-based line and character to a byte offset in content.
// A character past the end of the line clamps to the line end; a character
// below 1 is treated as 1.
func OffsetAt(content []byte, line, char int) (int, error) {
	if line < 1 {
		return 0, fmt.Errorf("line %d: %w", line, ErrInvalidPosition)
	}
	start := 0
	for i := 1; i < line; i++ {
		nl := bytes.IndexByte(content[start:], '\n')
		if nl < 0 {
			return 0, fmt.Errorf("line %d past end of file: %w", line, ErrInvalidPosition)
		}
		start += nl + 1
	}
	end := len(content)
	if nl := bytes.IndexByte(content[start:], '\n'); nl >= 0 {
		end = start + nl
	}
	if end > start && content[end-1] == '\r' {
		end--
	}
	if char < 1 {
		char = 1
	}
	return min(start+char-1, end), nil
}

// lineIndex converts byte offsets back to 1-based line and character.
type lineIndex struct {
	starts []int
}

func newLineIndex(content []byte) *lineIndex {
	li := &lineIndex{starts: []int{0}}
	for i, b := range content {
		if b == '\n' {
			li.starts = append(li.starts, i+1)
		}
	}
	return li
}

func (li *lineIndex) position(offset int) (line, char int) {
	lo, hi := 0, len(li.starts)-1
	for lo < hi {
		mid := (lo + hi + 1) / 2
		if li.starts[mid] <= offset {
			lo = mid
		} else {
			hi = mid - 1
		}
	}
	return lo + 1, offset - li.starts[lo] + 1
}
