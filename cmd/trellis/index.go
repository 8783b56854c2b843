package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/jward/trellis"
)

func (a *app) indexCmd() *cobra.Command {
	var (
		force     bool
		languages string
	)
	cmd := &cobra.Command{
		Use:   "index",
		Short: "Build or refresh the index",
		Long:  "Walks the workspace, extracts symbols, references and dependency edges, and writes them to the index. Unchanged files are skipped unless --force is set.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if languages != "" {
				langs := strings.Split(languages, ",")
				for i := range langs {
					langs[i] = strings.TrimSpace(langs[i])
				}
				a.cfg.Languages = langs
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return a.runIndex(ctx, cmd, force)
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "delete the index and rebuild from scratch")
	cmd.Flags().StringVar(&languages, "languages", "", "comma-separated language filter (e.g. go,python)")
	return cmd
}

func (a *app) runIndex(ctx context.Context, cmd *cobra.Command, force bool) error {
	start := time.Now()
	stderr := cmd.ErrOrStderr()

	if force {
		if err := trellis.RemoveIndex(a.db); err != nil {
			return err
		}
		fmt.Fprintf(stderr, "Cleared index: %s\n", a.db)
	}

	e, err := trellis.New(a.root, a.db, a.engineOptions()...)
	if errors.Is(err, trellis.ErrSchemaMismatch) {
		a.logger.Warn("index schema changed, regenerating", "db", a.db)
		if err := trellis.RemoveIndex(a.db); err != nil {
			return err
		}
		e, err = trellis.New(a.root, a.db, a.engineOptions()...)
	}
	if err != nil {
		return err
	}
	defer e.Close()

	sum, err := e.BuildFullIndex(ctx, force)
	if err != nil {
		return fmt.Errorf("indexing: %w", err)
	}

	fmt.Fprintf(stderr, "Indexed %s in %s (%d files: %d indexed, %d unchanged, %d failed, %d removed)\n",
		a.root,
		time.Since(start).Round(time.Millisecond),
		sum.Discovered, sum.Indexed, sum.Unchanged, sum.Failed, sum.Removed,
	)
	fmt.Fprintf(stderr, "Index: %s\n", a.db)

	if a.format == formatJSON || a.format == formatJSONL {
		return writeJSON(cmd.OutOrStdout(), sum)
	}
	return nil
}
