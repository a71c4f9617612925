package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/edward/tracksync/internal/config"
	"github.com/edward/tracksync/internal/server"
	"github.com/edward/tracksync/internal/store"
	statesync "github.com/edward/tracksync/internal/sync"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the state synchronization server",
	Long: `Start the HTTP server that stores and serves client state snapshots.

Endpoints:
  GET  /state?clientId=<id>   Fetch the stored state for a client
  POST /state                 Replace a client's state (logical-clock checked)
  GET  /ws?clientId=<id>      WebSocket feed of accepted updates for a client
  GET  /health                Liveness check

Configuration is read from tracksync.yaml in the current directory or
~/.tracksync/, overridable with TRACKSYNC_* environment variables and
the flags below.

Example usage:
  tracksyncd serve                          # Defaults, ~/.tracksync/tracksync.db
  tracksyncd serve --addr :9000             # Custom listen address
  tracksyncd serve --config /etc/ts.yaml    # Explicit config file`,
	RunE: func(cmd *cobra.Command, args []string) error {
		configPath, _ := cmd.Flags().GetString("config")

		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}

		// Flags win over file and environment.
		if cmd.Flags().Changed("addr") {
			cfg.ListenAddr, _ = cmd.Flags().GetString("addr")
		}
		if cmd.Flags().Changed("db") {
			cfg.DBPath, _ = cmd.Flags().GetString("db")
		}
		if cmd.Flags().Changed("log-file") {
			cfg.LogFile, _ = cmd.Flags().GetString("log-file")
		}

		logger := newLogger(cfg.LogFile)

		st, err := store.Open(cfg.DBPath)
		if err != nil {
			return fmt.Errorf("failed to open database: %w", err)
		}
		defer st.Close()

		if err := st.InitSchema(cmd.Context()); err != nil {
			return fmt.Errorf("failed to initialize schema: %w", err)
		}

		srv := server.NewServer(statesync.New(st, logger), &server.Config{
			Addr:   cfg.ListenAddr,
			Logger: logger,
		})

		if err := srv.Start(); err != nil {
			return fmt.Errorf("failed to start server: %w", err)
		}

		fmt.Printf("Sync server listening on http://%s\n", srv.GetAddr())
		fmt.Printf("WebSocket endpoint: ws://%s/ws\n", srv.GetAddr())
		fmt.Printf("Database: %s\n", cfg.DBPath)
		fmt.Println("\nPress Ctrl+C to stop...")

		// Wait for interrupt signal
		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		<-ctx.Done()

		fmt.Println("\nShutting down sync server...")
		if err := srv.Stop(); err != nil {
			return fmt.Errorf("error during shutdown: %w", err)
		}

		fmt.Println("Sync server stopped")
		return nil
	},
}

// newLogger writes to stderr by default, or to a rotating file when a
// log path is configured.
func newLogger(logFile string) *log.Logger {
	var w io.Writer = os.Stderr
	if logFile != "" {
		w = &lumberjack.Logger{
			Filename:   logFile,
			MaxSize:    10, // megabytes
			MaxBackups: 3,
			MaxAge:     28, // days
			Compress:   true,
		}
	}
	return log.New(w, "[tracksyncd] ", log.LstdFlags)
}

func init() {
	serveCmd.Flags().StringP("config", "c", "", "Path to config file")
	serveCmd.Flags().StringP("addr", "a", "", "Listen address (overrides config)")
	serveCmd.Flags().String("db", "", "SQLite database path (overrides config)")
	serveCmd.Flags().String("log-file", "", "Rotating log file path (overrides config)")

	rootCmd.AddCommand(serveCmd)
}
