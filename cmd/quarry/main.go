package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	clientcmd "github.com/rzbill/quarry/internal/cmd/client"
	serverrun "github.com/rzbill/quarry/internal/cmd/server"
	logpkg "github.com/rzbill/quarry/pkg/log"
	"github.com/spf13/cobra"
)

func main() {
	// initialize logger for CLI
	// Respect QUARRY_LOG_LEVEL for both CLI and server start output
	level := os.Getenv("QUARRY_LOG_LEVEL")
	parsed, err := logpkg.ParseLevel(level)
	if err != nil || level == "" {
		parsed = logpkg.InfoLevel
	}
	logger := logpkg.NewLogger(
		logpkg.WithLevel(parsed),
		logpkg.WithFormatter(&logpkg.TextFormatter{}),
		logpkg.WithOutput(logpkg.NewConsoleOutput()),
	)

	// Redirect standard library logs (used by Pebble) to our logger
	logpkg.RedirectStdLog(logger)

	rootCmd := &cobra.Command{
		Use:   "quarry",
		Short: "Quarry job queue CLI",
		Long:  "Quarry is a single-binary priority job queue. This CLI manages the server and queue operations.",
	}

	// server start
	serverCmd := &cobra.Command{Use: "server", Short: "Server commands"}
	serverStartCmd := &cobra.Command{
		Use:     "start",
		Short:   "Start quarry server",
		Aliases: []string{"run"},
		RunE: func(cmd *cobra.Command, args []string) error {
			configPath, _ := cmd.Flags().GetString("config")
			dataDir, _ := cmd.Flags().GetString("data-dir")
			httpAddr, _ := cmd.Flags().GetString("http")
			fsyncMode, _ := cmd.Flags().GetString("fsync")
			fsyncIntervalMs, _ := cmd.Flags().GetInt("fsync-interval-ms")
			logLevel, _ := cmd.Flags().GetString("log-level")
			logFormat, _ := cmd.Flags().GetString("log-format")

			switch fsyncMode {
			case "", "always", "interval", "never":
			default:
				return fmt.Errorf("invalid --fsync; use always|interval|never")
			}

			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			if err := serverrun.Run(ctx, serverrun.Options{
				ConfigPath:      configPath,
				DataDir:         dataDir,
				HTTPAddr:        httpAddr,
				Fsync:           fsyncMode,
				FsyncIntervalMs: fsyncIntervalMs,
				LogLevel:        logLevel,
				LogFormat:       logFormat,
			}); err != nil {
				return fmt.Errorf("server error: %w", err)
			}
			// brief delay to allow logs flush
			time.Sleep(100 * time.Millisecond)
			return nil
		},
	}
	serverStartCmd.Flags().String("config", "", "Config file path (json or yaml)")
	serverStartCmd.Flags().String("data-dir", "", "Data directory (if not specified, uses OS-specific application data directory)")
	serverStartCmd.Flags().String("http", "", "HTTP listen address (default 127.0.0.1:8080)")
	serverStartCmd.Flags().String("fsync", "", "Fsync mode: always|interval|never")
	serverStartCmd.Flags().Int("fsync-interval-ms", 0, "When --fsync=interval, group-commit window in ms (default 5)")
	serverStartCmd.Flags().String("log-level", os.Getenv("QUARRY_LOG_LEVEL"), "Log level: debug|info|warn|error")
	serverStartCmd.Flags().String("log-format", os.Getenv("QUARRY_LOG_FORMAT"), "Log format: text|json (default text)")
	serverCmd.AddCommand(serverStartCmd)
	rootCmd.AddCommand(serverCmd)

	// queue commands
	queueCmd := clientcmd.NewQueueCommand(apiURL)
	rootCmd.AddCommand(queueCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func apiURL() string {
	if v := os.Getenv("QUARRY_API"); v != "" {
		return v
	}
	return "http://127.0.0.1:8080"
}
