package trellis

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"slices"
	"strings"

	"github.com/jward/trellis/internal/pathnorm"
)

// gitLines runs git in dir and returns the non-empty lines it prints.
func gitLines(ctx context.Context, dir string, args ...string) ([]string, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = dir
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("git %s: %w: %s", args[0], err, strings.TrimSpace(stderr.String()))
	}
	var lines []string
	for _, line := range strings.Split(stdout.String(), "\n") {
		if line = strings.TrimSpace(line); line != "" {
			lines = append(lines, line)
		}
	}
	return lines, nil
}

// ChangedFiles lists keys of files git reports as changed under root.
// uncommitted covers everything differing from HEAD plus untracked files;
// staged covers the staging area only. Both may be set.
func ChangedFiles(ctx context.Context, root string, uncommitted, staged bool) ([]string, error) {
	var keys []string
	add := func(args ...string) error {
		lines, err := gitLines(ctx, root, args...)
		if err != nil {
			return err
		}
		for _, l := range lines {
			keys = append(keys, pathnorm.Key(l))
		}
		return nil
	}
	if uncommitted {
		if err := add("diff", "--name-only", "--relative", "HEAD"); err != nil {
			return nil, err
		}
		if err := add("ls-files", "--others", "--exclude-standard"); err != nil {
			return nil, err
		}
	}
	if staged {
		if err := add("diff", "--name-only", "--relative", "--cached"); err != nil {
			return nil, err
		}
	}
	slices.Sort(keys)
	return slices.Compact(keys), nil
}
