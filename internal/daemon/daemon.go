// Package daemon keeps an index current while a workspace changes: it builds
// the index when needed, watches the tree, and re-indexes settled changes
// together with everything that depends on them.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/jward/trellis"
	"github.com/jward/trellis/internal/config"
	"github.com/jward/trellis/internal/store"
	"github.com/jward/trellis/internal/watch"
)

var (
	// ErrDaemonRunning is returned when another daemon holds the workspace.
	ErrDaemonRunning = errors.New("daemon already running for this workspace")
	// ErrDaemonNotRunning is returned by Stop when there is nothing to stop.
	ErrDaemonNotRunning = errors.New("no daemon running for this workspace")
	// ErrStoreUntrusted is returned when storage failures keep repeating.
	ErrStoreUntrusted = errors.New("index store can no longer be trusted")
)

// StopTimeout is how long Stop waits for the daemon to exit.
const StopTimeout = 10 * time.Second

// Options configures Run.
type Options struct {
	Root   string
	DB     string
	Config *config.Config
	// Rebuild discards any existing index before starting.
	Rebuild bool
	Logger  *slog.Logger
	// EngineOptions are appended after the ones derived from Config.
	EngineOptions []trellis.Option
	// Ready, when set, is closed once the initial index is usable and the
	// watcher is running.
	Ready chan<- struct{}
}

// Run holds the workspace lock, writes the PID file and keeps the index
// current until ctx is cancelled or SIGINT/SIGTERM arrives. On shutdown the
// batch in flight completes, pending writes drain, and the PID file is
// removed.
func Run(ctx context.Context, opts Options) error {
	root, err := filepath.Abs(opts.Root)
	if err != nil {
		return fmt.Errorf("daemon: %w", err)
	}
	cfg := opts.Config
	if cfg == nil {
		cfg = config.Default()
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	dbPath := opts.DB
	if dbPath == "" {
		dbPath = cfg.DBPath(root)
	}

	lock, err := acquireLock(root)
	if err != nil {
		return err
	}
	defer lock.release()
	if pf, err := livePID(root); err != nil {
		return err
	} else if pf != nil && pf.PID != os.Getpid() {
		return fmt.Errorf("%w (pid %d)", ErrDaemonRunning, pf.PID)
	}
	if err := writePID(root, &PIDFile{
		PID:           os.Getpid(),
		Version:       trellis.Version,
		SchemaVersion: store.SchemaVersion,
		StartedAt:     time.Now().UTC(),
		Root:          root,
		DB:            dbPath,
	}); err != nil {
		return err
	}
	defer func() {
		if err := removePID(root); err != nil {
			logger.Warn("removing pid file", "err", err)
		}
	}()
	logger.Info("daemon started", "pid", os.Getpid(), "root", root, "db", dbPath)

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	engineOpts := append([]trellis.Option{trellis.WithConfig(cfg), trellis.WithLogger(logger)}, opts.EngineOptions...)
	engine, fresh, err := openEngine(root, dbPath, opts.Rebuild, engineOpts, logger)
	if err != nil {
		return err
	}
	defer engine.Close()

	// Watch before the initial build so edits made during it are not lost.
	w, err := watch.New(root, engine.Matcher(), cfg.Debounce(), logger)
	if err != nil {
		return fmt.Errorf("daemon: %w", err)
	}
	// An existing index catches up on edits made while nothing was watching,
	// including batches dropped at the last shutdown. Unchanged files are
	// skipped by hash.
	logger.Info("initial build", "fresh", fresh)
	if _, err := engine.BuildFullIndex(ctx, false); err != nil {
		w.Close()
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("daemon: initial build: %w", err)
	}

	proc := NewProcessor(engine, cfg.MaxStorageFailures, logger)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return w.Run(gctx)
	})
	g.Go(func() error {
		return proc.Consume(gctx, w.Events())
	})
	if opts.Ready != nil {
		close(opts.Ready)
	}
	logger.Info("watching for changes", "root", root)

	err = g.Wait()
	logger.Info("daemon stopping")
	return err
}

// openEngine opens the index, starting over when it is missing, when
// rebuild is requested, or when its schema is out of date. fresh reports
// whether a full build is needed.
func openEngine(root, dbPath string, rebuild bool, opts []trellis.Option, logger *slog.Logger) (*trellis.Engine, bool, error) {
	fresh := rebuild
	if rebuild {
		logger.Info("rebuild requested, discarding index", "db", dbPath)
		if err := trellis.RemoveIndex(dbPath); err != nil {
			return nil, false, err
		}
	} else if _, err := os.Stat(dbPath); errors.Is(err, fs.ErrNotExist) {
		fresh = true
	}

	engine, err := trellis.New(root, dbPath, opts...)
	if errors.Is(err, trellis.ErrSchemaMismatch) {
		logger.Warn("index schema changed, regenerating", "db", dbPath, "err", err)
		if err := trellis.RemoveIndex(dbPath); err != nil {
			return nil, false, err
		}
		fresh = true
		engine, err = trellis.New(root, dbPath, opts...)
	}
	if err != nil {
		return nil, false, err
	}
	return engine, fresh, nil
}

// Status describes the daemon for a workspace.
type Status struct {
	Running       bool       `json:"running"`
	PID           int        `json:"pid,omitempty"`
	Root          string     `json:"root"`
	DB            string     `json:"db,omitempty"`
	StartedAt     *time.Time `json:"started_at,omitempty"`
	DaemonVersion string     `json:"daemon_version,omitempty"`
	Version       string     `json:"version"`
	VersionMatch  bool       `json:"version_match"`
	Files         int        `json:"files"`
	Symbols       int        `json:"symbols"`
	LastUpdated   *time.Time `json:"last_updated,omitempty"`
}

// GetStatus reports whether a daemon is running for root and summarizes the
// index at dbPath when it exists.
func GetStatus(root, dbPath string) (*Status, error) {
	root, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	st := &Status{Root: root, DB: dbPath, Version: trellis.Version}
	pf, err := livePID(root)
	if err != nil {
		return nil, err
	}
	if pf != nil {
		st.Running = true
		st.PID = pf.PID
		st.StartedAt = &pf.StartedAt
		st.DaemonVersion = pf.Version
		st.VersionMatch = pf.Version == trellis.Version
		if pf.DB != "" {
			st.DB = pf.DB
		}
	}
	if st.DB == "" {
		return st, nil
	}
	if _, err := os.Stat(st.DB); err != nil {
		return st, nil
	}
	s, err := store.OpenReadOnly(st.DB)
	if err != nil {
		return st, nil
	}
	defer s.Close()
	if stats, err := s.GetIndexStats(); err == nil {
		st.Files = stats.Files.Total
		st.Symbols = stats.Symbols.Total
		st.LastUpdated = stats.Index.LastUpdated
	}
	return st, nil
}

// Stop signals the daemon for root (SIGTERM, or SIGKILL when force) and
// waits up to timeout for it to exit.
func Stop(root string, force bool, timeout time.Duration) error {
	root, err := filepath.Abs(root)
	if err != nil {
		return err
	}
	pf, err := livePID(root)
	if err != nil {
		return err
	}
	if pf == nil {
		return ErrDaemonNotRunning
	}
	if err := signalProcess(pf.PID, force); err != nil {
		return fmt.Errorf("signal daemon %d: %w", pf.PID, err)
	}
	deadline := time.Now().Add(timeout)
	for processAlive(pf.PID) {
		if time.Now().After(deadline) {
			return fmt.Errorf("daemon %d did not exit within %s; retry with --force", pf.PID, timeout)
		}
		time.Sleep(100 * time.Millisecond)
	}
	// A killed daemon cannot clean up after itself.
	return removePID(root)
}

// Spawn starts "exe args..." detached from the terminal with output
// appended to logPath and returns its PID.
func Spawn(exe string, args []string, logPath string) (int, error) {
	if err := os.MkdirAll(filepath.Dir(logPath), 0o755); err != nil {
		return 0, fmt.Errorf("spawn daemon: %w", err)
	}
	logf, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return 0, fmt.Errorf("spawn daemon: %w", err)
	}
	defer logf.Close()

	cmd := exec.Command(exe, args...)
	cmd.Stdout = logf
	cmd.Stderr = logf
	detach(cmd)
	if err := cmd.Start(); err != nil {
		return 0, fmt.Errorf("spawn daemon: %w", err)
	}
	pid := cmd.Process.Pid
	return pid, cmd.Process.Release()
}
