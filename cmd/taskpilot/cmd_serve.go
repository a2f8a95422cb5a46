package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/user/taskpilot/internal/api"
	"github.com/user/taskpilot/internal/telegram"
)

func init() {
	rootCmd.AddCommand(serveCmd)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the taskpilot daemon",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

func pidPath(dataDir string) string {
	return filepath.Join(dataDir, "taskpilot.pid")
}

func writePIDFile(dataDir string) (string, error) {
	path := pidPath(dataDir)
	pid := os.Getpid()
	if err := os.WriteFile(path, []byte(strconv.Itoa(pid)+"\n"), 0644); err != nil {
		return "", fmt.Errorf("write PID file: %w", err)
	}
	return path, nil
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := loadConfig()
	setupLogging(cfg)

	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}

	pidFile, err := writePIDFile(cfg.DataDir)
	if err != nil {
		return err
	}
	defer os.Remove(pidFile)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, err := buildApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.close()

	a.gw.Start(ctx)
	defer a.gw.Stop()

	slog.Info("taskpilot started",
		"data_dir", cfg.DataDir,
		"log_level", cfg.LogLevel,
		"max_concurrent", cfg.MaxConcurrent,
		"max_tool_rounds", cfg.MaxToolRounds,
		"llm_provider", cfg.LLM.Provider,
		"llm_model", cfg.LLM.Model,
		"pid_file", pidFile,
	)

	g, gctx := errgroup.WithContext(ctx)

	if cfg.HTTP.Enabled {
		srv := api.NewServer(a.tasks, a.agents, a.router, a.events, a.metrics)
		g.Go(func() error {
			return srv.ListenAndServe(cfg.HTTP.Listen)
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	} else {
		slog.Warn("http api disabled")
	}

	if cfg.Telegram.Token != "" {
		adapter, err := telegram.New(cfg.Telegram.Token, a.loop, a.router, a.events)
		if err != nil {
			return fmt.Errorf("create telegram adapter: %w", err)
		}
		g.Go(func() error {
			adapter.Start(gctx)
			return nil
		})
		slog.Info("telegram adapter started")
	} else {
		slog.Warn("telegram adapter disabled (no token)")
	}

	g.Go(func() error {
		return waitForSignal(gctx, cancel, cfg.DataDir)
	})

	return g.Wait()
}

// waitForSignal returns after SIGINT or SIGTERM, cancelling the daemon.
// SIGHUP re-executes the binary in place.
func waitForSignal(ctx context.Context, cancel context.CancelFunc, dataDir string) error {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	defer signal.Stop(sigChan)

	for {
		select {
		case <-ctx.Done():
			return nil
		case sig := <-sigChan:
			if sig == syscall.SIGHUP {
				slog.Info("received SIGHUP, restarting")
				execPath, err := os.Executable()
				if err != nil {
					slog.Error("failed to get executable path", "error", err)
					continue
				}
				os.Remove(pidPath(dataDir))
				if err := syscall.Exec(execPath, os.Args, os.Environ()); err != nil {
					slog.Error("failed to re-exec", "error", err)
					if _, writeErr := writePIDFile(dataDir); writeErr != nil {
						slog.Error("failed to re-write PID file", "error", writeErr)
					}
				}
				continue
			}
			slog.Info("shutting down", "signal", sig)
			cancel()
			return nil
		}
	}
}
