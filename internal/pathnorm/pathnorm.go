// Package pathnorm converts filesystem paths into the stable keys the index
// stores: slash-separated and relative to the workspace root.
package pathnorm

import (
	"errors"
	"fmt"
	"path"
	"path/filepath"
	"strings"
)

// ErrOutsideRoot is returned when a path does not live under the workspace root.
var ErrOutsideRoot = errors.New("path is outside the workspace root")

// Normalize returns the key for p. Relative paths are taken relative to root.
func Normalize(root, p string) (string, error) {
	if !filepath.IsAbs(p) {
		p = filepath.Join(root, p)
	}
	rel, err := filepath.Rel(filepath.Clean(root), filepath.Clean(p))
	if err != nil {
		return "", fmt.Errorf("normalize %s: %w", p, err)
	}
	key := Key(rel)
	if key == ".." || strings.HasPrefix(key, "../") {
		return "", fmt.Errorf("normalize %s: %w", p, ErrOutsideRoot)
	}
	return key, nil
}

// Key canonicalizes an already-relative path. Backslashes are treated as
// separators so keys are identical across operating systems.
func Key(p string) string {
	p = strings.ReplaceAll(p, `\`, "/")
	p = path.Clean(p)
	return strings.TrimPrefix(p, "./")
}

// Abs maps a key back to an absolute filesystem path under root.
func Abs(root, key string) string {
	return filepath.Join(root, filepath.FromSlash(key))
}

// Resolve joins a relative reference such as "../util.ts" onto the directory
// containing the key from.
func Resolve(from, rel string) string {
	return Key(path.Join(path.Dir(from), strings.ReplaceAll(rel, `\`, "/")))
}

// Dir returns the key of the directory containing key, or "" at the root.
func Dir(key string) string {
	d := path.Dir(key)
	if d == "." {
		return ""
	}
	return d
}
