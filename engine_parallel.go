package trellis

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// BuildFullIndex indexes every discoverable file in the workspace.
//
// Extraction fans out over a bounded worker pool; every result funnels
// through the single store writer, so the pool never holds the database.
// Unchanged files are skipped unless force is set. A file whose extraction
// fails is recorded as a parse failure and the build continues; a storage
// failure cancels the remaining work and is returned. Files still indexed
// but no longer on disk are pruned at the end.
func (e *Engine) BuildFullIndex(ctx context.Context, force bool) (*BuildSummary, error) {
	start := time.Now()
	keys, err := e.discover(ctx)
	if err != nil {
		return nil, fmt.Errorf("build: discover: %w", err)
	}
	summary := &BuildSummary{Discovered: len(keys)}
	e.logger.Info("building index", "root", e.root, "files", len(keys), "workers", e.workers)

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.workers)
	for _, key := range keys {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			res, err := e.reindex(gctx, key, force)
			if err != nil {
				// Vanished between discovery and read.
				if errors.Is(err, fs.ErrNotExist) {
					return nil
				}
				var se *StorageError
				if errors.As(err, &se) || errors.Is(err, ErrWriterClosed) || gctx.Err() != nil {
					return err
				}
				e.logger.Warn("skipping unreadable file", "path", key, "err", err)
				return nil
			}
			mu.Lock()
			defer mu.Unlock()
			switch {
			case res.ParseErr != nil:
				summary.Failed++
			case res.Changed:
				summary.Indexed++
			default:
				summary.Unchanged++
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return summary, fmt.Errorf("build: %w", err)
	}

	removed, err := e.pruneDeleted(ctx, keys)
	summary.Removed = removed
	if err != nil {
		return summary, fmt.Errorf("build: prune: %w", err)
	}

	e.logger.Info("index built",
		"indexed", summary.Indexed,
		"unchanged", summary.Unchanged,
		"failed", summary.Failed,
		"removed", summary.Removed,
		"elapsed", time.Since(start).Round(time.Millisecond))
	return summary, nil
}

// pruneDeleted removes stored files that discovery did not return.
func (e *Engine) pruneDeleted(ctx context.Context, discovered []string) (int, error) {
	seen := make(map[string]bool, len(discovered))
	for _, k := range discovered {
		seen[k] = true
	}
	files, err := e.store.AllFiles()
	if err != nil {
		return 0, err
	}
	removed := 0
	for _, f := range files {
		if seen[f.Path] {
			continue
		}
		if err := e.RemoveFile(ctx, f.Path); err != nil {
			return removed, err
		}
		removed++
	}
	return removed, nil
}
