package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jward/trellis"
	"github.com/jward/trellis/internal/config"
)

// Exit codes.
const (
	exitFound    = 0
	exitNotFound = 1
	exitError    = 2
)

// errNotFound is returned by a command whose lookup came back empty. Its
// output has already been written.
var errNotFound = errors.New("not found")

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

// run executes the CLI and maps the outcome to an exit code.
func run(args []string, stdout, stderr io.Writer) int {
	a := &app{}
	root := a.rootCmd()
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)

	cmd, err := root.ExecuteC()
	defer a.close()
	switch {
	case err == nil:
		return exitFound
	case errors.Is(err, errNotFound):
		return exitNotFound
	}
	if a.format == formatJSON || a.format == formatJSONL {
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		_ = enc.Encode(CLIResult{Command: cmd.Name(), Error: err.Error()})
	} else {
		fmt.Fprintf(stderr, "Error: %s\n", err)
	}
	return exitError
}

// app carries the global flags and what is derived from them.
type app struct {
	format     string
	root       string
	db         string
	configFile string
	logLevel   string
	logFile    string
	// noAutoIndex makes queries fail instead of building a missing index.
	noAutoIndex bool

	cfg     *config.Config
	logger  *slog.Logger
	logSink *os.File
}

func (a *app) rootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "trellis",
		Short:         "Incremental structural code index",
		Long:          "Trellis indexes a workspace with tree-sitter into SQLite and answers definition, usage, implementation and include-graph queries.",
		Version:       trellis.Version,
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup(cmd)
		},
		// No Run: prints help by default.
	}

	pf := cmd.PersistentFlags()
	pf.StringVar(&a.format, "format", formatText, "output format: "+strings.Join(validFormats, "|"))
	pf.StringVar(&a.root, "root", "", "workspace root (default: nearest .git ancestor of the working directory)")
	pf.StringVar(&a.db, "db", "", "index path (default: .trellis/index.db under the root)")
	pf.StringVar(&a.configFile, "config", "", "config file (default: .trellis.toml under the root)")
	pf.StringVar(&a.logLevel, "log-level", "", "log level: debug|info|warn|error")
	pf.StringVar(&a.logFile, "log-file", "", "append logs to this file instead of stderr")
	pf.BoolVar(&a.noAutoIndex, "no-auto-index", false, "fail instead of building the index when it is missing or outdated")

	cmd.AddCommand(a.indexCmd())
	cmd.AddCommand(a.symbolsCmd(), a.symbolCmd())
	cmd.AddCommand(a.definitionCmd(), a.usagesCmd(), a.implementationCmd())
	cmd.AddCommand(a.includersCmd(), a.includesCmd())
	cmd.AddCommand(a.statsCmd(), a.structureCmd(), a.duplicatesCmd())
	cmd.AddCommand(a.daemonCmd())
	cmd.AddCommand(a.mcpCmd())
	return cmd
}

// setup resolves the root, loads config and builds the logger. Flags win
// over config file values.
func (a *app) setup(cmd *cobra.Command) error {
	if err := validateFormat(a.format); err != nil {
		return err
	}
	root, err := resolveRoot(a.root)
	if err != nil {
		return err
	}
	a.root = root

	cfg, err := config.Load(root, a.configFile)
	if err != nil {
		return err
	}
	if a.logLevel != "" {
		cfg.LogLevel = a.logLevel
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	a.cfg = cfg

	if a.db == "" {
		a.db = cfg.DBPath(root)
	} else if !filepath.IsAbs(a.db) {
		if a.db, err = filepath.Abs(a.db); err != nil {
			return err
		}
	}

	out := cmd.ErrOrStderr()
	if a.logFile != "" {
		f, err := os.OpenFile(a.logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return fmt.Errorf("opening log file: %w", err)
		}
		a.logSink = f
		out = f
	}
	a.logger = slog.New(slog.NewTextHandler(out, &slog.HandlerOptions{Level: parseLevel(cfg.LogLevel)}))
	return nil
}

func (a *app) close() {
	if a.logSink != nil {
		a.logSink.Close()
	}
}

func parseLevel(s string) slog.Level {
	var l slog.Level
	if err := l.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo
	}
	return l
}

// resolveRoot returns the absolute workspace root: the flag value when set,
// otherwise the nearest .git ancestor of the working directory.
func resolveRoot(flag string) (string, error) {
	if flag != "" {
		abs, err := filepath.Abs(flag)
		if err != nil {
			return "", fmt.Errorf("resolving root %q: %w", flag, err)
		}
		info, err := os.Stat(abs)
		if err != nil {
			return "", fmt.Errorf("root not found: %s", abs)
		}
		if !info.IsDir() {
			return "", fmt.Errorf("root is not a directory: %s", abs)
		}
		return abs, nil
	}
	cwd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("getting cwd: %w", err)
	}
	return findRepoRoot(cwd), nil
}

// findRepoRoot walks up from startDir looking for a .git directory.
// Returns the directory containing .git, or startDir if not found.
func findRepoRoot(startDir string) string {
	dir := startDir
	for {
		if info, err := os.Stat(filepath.Join(dir, ".git")); err == nil && info.IsDir() {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return startDir
		}
		dir = parent
	}
}

func (a *app) engineOptions() []trellis.Option {
	return []trellis.Option{trellis.WithConfig(a.cfg), trellis.WithLogger(a.logger)}
}

// openIndex opens the index read-only for querying. A missing or outdated
// index is built first unless --no-auto-index is set.
func (a *app) openIndex(ctx context.Context) (*trellis.Index, error) {
	_, statErr := os.Stat(a.db)
	if errors.Is(statErr, os.ErrNotExist) {
		if a.noAutoIndex {
			return nil, fmt.Errorf("no index at %s (run 'trellis index' or 'trellis daemon start' first)", a.db)
		}
		a.logger.Info("no index yet, building", "root", a.root, "db", a.db)
	} else {
		idx, err := trellis.OpenIndex(a.root, a.db)
		if !errors.Is(err, trellis.ErrSchemaMismatch) {
			return idx, err
		}
		if a.noAutoIndex {
			return nil, fmt.Errorf("%w (run 'trellis index --force' to rebuild)", err)
		}
		a.logger.Warn("index schema changed, regenerating", "db", a.db)
		if err := trellis.RemoveIndex(a.db); err != nil {
			return nil, err
		}
	}
	if err := a.buildIndex(ctx); err != nil {
		return nil, err
	}
	return trellis.OpenIndex(a.root, a.db)
}

// buildIndex runs a full build into a.db and closes the engine again.
func (a *app) buildIndex(ctx context.Context) error {
	e, err := trellis.New(a.root, a.db, a.engineOptions()...)
	if err != nil {
		return err
	}
	defer e.Close()
	if _, err := e.BuildFullIndex(ctx, false); err != nil {
		return fmt.Errorf("indexing: %w", err)
	}
	return nil
}
