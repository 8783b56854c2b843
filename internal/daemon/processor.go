package daemon

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/jward/trellis"
	"github.com/jward/trellis/internal/watch"
)

// Processor applies settled watch batches to an Engine and propagates each
// change to the files that depend on it.
type Processor struct {
	engine      *trellis.Engine
	logger      *slog.Logger
	maxFailures int
	failures    int
}

// NewProcessor returns a Processor that gives up after maxFailures
// consecutive storage failures.
func NewProcessor(e *trellis.Engine, maxFailures int, logger *slog.Logger) *Processor {
	if maxFailures < 1 {
		maxFailures = 1
	}
	return &Processor{engine: e, logger: logger, maxFailures: maxFailures}
}

// Consume applies batches from events until the channel closes or ctx is
// done. A batch already being applied runs to completion, but batches still
// buffered when ctx ends are left for the next start's full reconciliation.
func (p *Processor) Consume(ctx context.Context, events <-chan []watch.Event) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case batch, ok := <-events:
			if !ok || ctx.Err() != nil {
				return nil
			}
			if err := p.Apply(context.WithoutCancel(ctx), batch); err != nil {
				return err
			}
		}
	}
}

// Apply handles one batch in order. Extraction failures are recorded and
// logged. Storage failures are counted and, once too many happen in a row,
// reported as ErrStoreUntrusted.
func (p *Processor) Apply(ctx context.Context, batch []watch.Event) error {
	for _, ev := range batch {
		changed, err := p.applyOne(ctx, ev.Path)
		if err := p.check(ev.Path, err); err != nil {
			return err
		}
		for _, key := range changed {
			if err := p.cascade(ctx, key); err != nil {
				return err
			}
		}
	}
	return nil
}

// applyOne brings key in line with the disk and returns the keys whose
// stored record changed.
func (p *Processor) applyOne(ctx context.Context, key string) ([]string, error) {
	info, err := os.Stat(filepath.Join(p.engine.Root(), filepath.FromSlash(key)))
	switch {
	case err == nil && info.IsDir():
		return nil, nil
	case err == nil:
		if !p.engine.Indexable(key) {
			return nil, nil
		}
		res, err := p.engine.ReindexFile(ctx, key, false)
		if err != nil {
			return nil, err
		}
		if res.ParseErr != nil {
			p.logger.Warn("extraction failed", "path", key, "err", res.ParseErr)
		}
		if res.Changed {
			return []string{key}, nil
		}
		return nil, nil
	case errors.Is(err, fs.ErrNotExist):
		return p.removeTree(ctx, key)
	default:
		p.logger.Warn("stat failed", "path", key, "err", err)
		return nil, nil
	}
}

// removeTree removes key and, when key was a directory, every indexed file
// beneath it.
func (p *Processor) removeTree(ctx context.Context, key string) ([]string, error) {
	files, err := p.engine.Store().AllFiles()
	if err != nil {
		return nil, err
	}
	var removed []string
	for _, f := range files {
		if f.Path != key && !strings.HasPrefix(f.Path, key+"/") {
			continue
		}
		if err := p.engine.RemoveFile(ctx, f.Path); err != nil {
			return removed, err
		}
		p.logger.Info("removed", "path", f.Path)
		removed = append(removed, f.Path)
	}
	return removed, nil
}

// cascade re-parses every file that transitively depends on key so their
// edges and hashes reflect the change.
func (p *Processor) cascade(ctx context.Context, key string) error {
	members, err := p.engine.InvalidationSet(key)
	if err := p.check(key, err); err != nil || len(members) == 0 {
		return err
	}
	for _, m := range members {
		p.engine.MarkStale(m)
	}
	p.logger.Debug("cascade", "source", key, "dependents", len(members))
	for _, m := range members {
		_, err := p.engine.ReindexFile(ctx, m, true)
		if errors.Is(err, fs.ErrNotExist) {
			// The dependent is gone too; its own event removes it.
			continue
		}
		if err := p.check(m, err); err != nil {
			return err
		}
	}
	return nil
}

// check classifies err. Storage failures bump the consecutive failure count
// and trip ErrStoreUntrusted at the limit; anything else is logged. Success
// resets the count.
func (p *Processor) check(key string, err error) error {
	if err == nil {
		p.failures = 0
		return nil
	}
	var se *trellis.StorageError
	if !errors.As(err, &se) && !errors.Is(err, trellis.ErrWriterClosed) {
		p.logger.Warn("skipping file", "path", key, "err", err)
		return nil
	}
	p.failures++
	p.logger.Error("storage failure", "path", key, "err", err, "consecutive", p.failures)
	if p.failures >= p.maxFailures {
		return fmt.Errorf("%w: %d consecutive storage failures, last: %w", ErrStoreUntrusted, p.failures, err)
	}
	return nil
}
