package watch

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"golang.org/x/sync/errgroup"

	"github.com/jward/trellis/internal/ignore"
	"github.com/jward/trellis/internal/pathnorm"
)

// Watcher watches a workspace recursively and feeds a Debouncer. Directories
// created after startup are picked up as they appear, and files already
// inside them are reported as created. Events for ignored paths are dropped;
// changes to a root ignore file reload the matcher instead.
type Watcher struct {
	root      string
	fs        *fsnotify.Watcher
	debouncer *Debouncer
	matcher   *ignore.Matcher
	logger    *slog.Logger
}

// New starts watching every directory under root that the matcher does not
// skip.
func New(root string, matcher *ignore.Matcher, window time.Duration, logger *slog.Logger) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("watch: %w", err)
	}
	w := &Watcher{
		root:      root,
		fs:        fw,
		debouncer: NewDebouncer(window),
		matcher:   matcher,
		logger:    logger,
	}
	if err := w.addTree(root, nil); err != nil {
		fw.Close()
		return nil, err
	}
	return w, nil
}

// Events receives settled batches. It is closed when Run returns.
func (w *Watcher) Events() <-chan []Event {
	return w.debouncer.Output()
}

// Debouncer exposes the underlying state machine.
func (w *Watcher) Debouncer() *Debouncer {
	return w.debouncer
}

// Run pumps filesystem notifications into the debouncer until ctx is done,
// then releases the OS watcher.
func (w *Watcher) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		w.debouncer.Run(gctx)
		return nil
	})
	g.Go(func() error {
		defer w.fs.Close()
		for {
			select {
			case <-gctx.Done():
				return nil
			case ev, ok := <-w.fs.Events:
				if !ok {
					return nil
				}
				w.handle(gctx, ev)
			case err, ok := <-w.fs.Errors:
				if !ok {
					return nil
				}
				if errors.Is(err, fsnotify.ErrEventOverflow) {
					w.logger.Error("watch: event queue overflowed, changes may be missed", "err", err)
					continue
				}
				w.logger.Warn("watch error", "err", err)
			}
		}
	})
	return g.Wait()
}

// Close releases the OS watcher without running. Run closes it on return.
func (w *Watcher) Close() error {
	return w.fs.Close()
}

func (w *Watcher) handle(ctx context.Context, ev fsnotify.Event) {
	key, err := pathnorm.Normalize(w.root, ev.Name)
	if err != nil || key == "." {
		return
	}

	if ignore.IsIgnoreFile(key) {
		w.matcher.Reload()
		w.logger.Info("reloaded ignore rules", "file", key)
		return
	}

	if ev.Has(fsnotify.Create) {
		if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
			if w.matcher.SkipDir(key) {
				return
			}
			var created []string
			if err := w.addTree(ev.Name, &created); err != nil {
				w.logger.Warn("watch new directory", "path", key, "err", err)
			}
			for _, k := range created {
				w.emit(ctx, Event{Path: k, Op: OpCreate})
			}
			return
		}
	}

	var op Op
	switch {
	case ev.Has(fsnotify.Create):
		op = OpCreate
	case ev.Has(fsnotify.Write):
		op = OpWrite
	case ev.Has(fsnotify.Remove):
		op = OpRemove
	case ev.Has(fsnotify.Rename):
		op = OpRename
	default:
		return
	}
	// Removed directories cannot be told apart from files any more, so only
	// changes to present paths are filtered here.
	if op != OpRemove && op != OpRename && w.matcher.SkipFile(key) {
		return
	}
	w.emit(ctx, Event{Path: key, Op: op})
}

func (w *Watcher) emit(ctx context.Context, ev Event) {
	if err := w.debouncer.Add(ctx, ev); err == nil {
		w.logger.Debug("fs event", "path", ev.Path, "op", ev.Op)
	}
}

// addTree watches dir and its non-skipped subdirectories. When files is
// non-nil the keys of regular files found are appended to it.
func (w *Watcher) addTree(dir string, files *[]string) error {
	return filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			// Unreadable or already gone.
			return nil
		}
		key, kerr := pathnorm.Normalize(w.root, p)
		if kerr != nil {
			return kerr
		}
		if !d.IsDir() {
			if files != nil && d.Type().IsRegular() && !w.matcher.SkipFile(key) {
				*files = append(*files, key)
			}
			return nil
		}
		if key != "." && w.matcher.SkipDir(key) {
			return filepath.SkipDir
		}
		if err := w.fs.Add(p); err != nil {
			w.logger.Warn("watch directory", "path", key, "err", err)
		}
		return nil
	})
}
