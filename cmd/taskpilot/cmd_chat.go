package main

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/user/taskpilot/internal/agent"
	"github.com/user/taskpilot/internal/types"
)

func init() {
	rootCmd.AddCommand(chatCmd)
	chatCmd.Flags().String("agent", agent.VariantLoop, "agent variant (loop|hosted)")
	chatCmd.Flags().String("session", "cli", "session key")
}

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Chat with an agent in this process",
	Long:  "Starts the agents in-process with a fresh task list and reads messages from stdin until EOF.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		variant, _ := cmd.Flags().GetString("agent")
		session, _ := cmd.Flags().GetString("session")

		cfg := loadConfig()
		level := parseLevel(cfg.LogLevel)
		if level == slog.LevelInfo {
			level = slog.LevelWarn
		}
		setupLoggingTo(os.Stderr, level)

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		a, err := buildApp(ctx, cfg)
		if err != nil {
			return err
		}
		defer a.close()
		a.gw.Start(ctx)
		defer a.gw.Stop()

		fmt.Printf("Chatting with the %s agent. Ctrl-D to quit.\n", variant)
		scanner := bufio.NewScanner(os.Stdin)
		for {
			fmt.Print("> ")
			if !scanner.Scan() {
				fmt.Println()
				return scanner.Err()
			}
			line := strings.TrimSpace(scanner.Text())
			if line == "" {
				continue
			}
			reply, err := a.agents.Chat(ctx, variant, line, types.SessionKey(session))
			if err != nil {
				if types.IsValidation(err) {
					fmt.Fprintln(os.Stderr, err)
					continue
				}
				return err
			}
			fmt.Println(reply.Content)
			if ctx.Err() != nil {
				return nil
			}
		}
	},
}
