package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"jan-server/services/query-tools/internal/infrastructure/config"
	"jan-server/services/query-tools/internal/infrastructure/logger"
	_ "jan-server/services/query-tools/internal/infrastructure/metrics" // Register Prometheus metrics
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "query-tools",
	Short: "Query tools server - exposes a backing store as typed tool calls",
	Long: `query-tools serves fetch_schema, run_read_query, run_write_query and,
when enabled, calculate_indicator over streaming HTTP (SSE), MCP or stdio.

Examples:
  # HTTP transports (SSE, MCP streamable HTTP, health, metrics)
  query-tools serve

  # One session over stdin/stdout
  query-tools stdio --protocol envelope

  # Container health check
  query-tools probe --url http://127.0.0.1:8092`,
	Version:       config.Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runServe,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve tools over HTTP",
	RunE:  runServe,
}

var stdioCmd = &cobra.Command{
	Use:   "stdio",
	Short: "Serve one session over stdin/stdout",
	RunE:  runStdio,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(stdioCmd)
	rootCmd.AddCommand(probeCmd)

	stdioCmd.Flags().String("protocol", "envelope", "Wire protocol: envelope or mcp")
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signalContext()
	defer stop()

	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	// Re-initialize logger with config settings
	logger.Init(cfg.LogLevel, cfg.LogFormat)
	log.Info().
		Str("http_port", cfg.HTTPPort).
		Str("log_level", cfg.LogLevel).
		Str("version", config.Version).
		Msg("Starting query tools service")

	shutdownTracing := setupTracing(ctx, cfg)
	defer shutdownTracing()

	// Create application with dependency injection
	application, cleanup, err := CreateApplication()
	if err != nil {
		return fmt.Errorf("create application: %w", err)
	}
	defer cleanup()

	return application.Start(ctx)
}

func runStdio(cmd *cobra.Command, args []string) error {
	protocol, _ := cmd.Flags().GetString("protocol")

	ctx, stop := signalContext()
	defer stop()

	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	// stdout carries the protocol
	logger.InitWithWriter(cfg.LogLevel, cfg.LogFormat, os.Stderr)
	log.Info().Str("protocol", protocol).Str("version", config.Version).Msg("Starting stdio session")

	shutdownTracing := setupTracing(ctx, cfg)
	defer shutdownTracing()

	application, cleanup, err := CreateStdioApplication()
	if err != nil {
		return fmt.Errorf("create application: %w", err)
	}
	defer cleanup()

	if err := application.Run(ctx, protocol, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
