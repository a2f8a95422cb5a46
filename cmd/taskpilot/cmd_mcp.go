package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/user/taskpilot/internal/mcp"
)

func init() {
	rootCmd.AddCommand(mcpCmd)
}

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve the task tools over MCP on stdio",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		// stdout carries the protocol.
		setupLoggingTo(os.Stderr, slog.LevelWarn)
		cfg := loadConfig()
		if parseLevel(cfg.LogLevel) == slog.LevelDebug {
			setupLoggingTo(os.Stderr, slog.LevelDebug)
		}

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		a, err := buildCore(ctx, cfg)
		if err != nil {
			return err
		}
		defer a.close()

		mcp.Version = version
		slog.Debug("starting mcp server", "tools", len(a.registry.Names()))
		return mcp.ServeStdio(ctx, a.registry)
	},
}
