package store

import (
	"fmt"

	"github.com/cespare/xxhash/v2"
)

// minBodySize is the smallest normalized symbol body that gets a body hash.
// Shorter bodies (getters, stubs) would only add noise to duplicate groups.
const minBodySize = 50

// HashBody returns the hash of content[start:end] with whitespace runs
// collapsed to one space and the ends trimmed, so bodies differing only in
// layout hash alike. It is empty for bodies shorter than minBodySize.
func HashBody(content []byte, start, end int) string {
	if start < 0 || end > len(content) || end <= start {
		return ""
	}
	norm := make([]byte, 0, end-start)
	space := false
	for _, b := range content[start:end] {
		switch b {
		case ' ', '\t', '\n', '\r', '\f', '\v':
			space = len(norm) > 0
			continue
		}
		if space {
			norm = append(norm, ' ')
			space = false
		}
		norm = append(norm, b)
	}
	if len(norm) < minBodySize {
		return ""
	}
	return HashContent(norm)
}

// HashContent returns the hex content hash used to detect unchanged files.
func HashContent(content []byte) string {
	return fmt.Sprintf("%016x", xxhash.Sum64(content))
}
