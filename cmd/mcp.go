package cmd

import (
	"context"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/joescharf/tracker/internal/mcp"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Start MCP stdio server",
	Long: `Start an MCP (Model Context Protocol) server on stdio.

This lets MCP clients create, query, update and delete issues. Configure with:

  {
    "mcpServers": {
      "tracker": { "command": "tracker", "args": ["mcp"] }
    }
  }

Available tools: issue_create, issue_query, issue_update, issue_delete`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(context.Background(), shutdownSignals()...)
		defer stop()

		// stdout carries protocol traffic; logs go to stderr without colors.
		logger = newLogger(os.Stderr, true)

		svc, _, err := getService(ctx)
		if err != nil {
			return err
		}
		defer closeStore()

		return mcp.NewServer(svc, logger, buildVersion).ServeStdio(ctx, os.Stdin, os.Stdout)
	},
}

func init() {
	rootCmd.AddCommand(mcpCmd)
}
