package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/jward/trellis/internal/mcpserver"
)

func (a *app) mcpCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve queries as MCP tools over stdio",
		Long:  "Runs a Model Context Protocol server on stdin/stdout over a read-only view of the index. The index is built first when it does not exist yet, unless --no-auto-index is set. Logs go to stderr or --log-file.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			idx, err := a.openIndex(ctx)
			if err != nil {
				return err
			}
			defer idx.Close()

			a.logger.Info("mcp server starting", "root", a.root, "db", a.db)
			return mcpserver.Serve(ctx, mcpserver.New(idx.Query(), a.root, a.db, a.logger))
		},
	}
}
