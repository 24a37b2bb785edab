package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/ctxfuse/internal/logging"
	"github.com/fyrsmithlabs/ctxfuse/internal/mcp"
)

var (
	metricsAddr string
	mcpLimit    int
)

// mcpCmd serves the get_context tool over stdio.
var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve the get_context MCP tool on stdio",
	Long: `Run ctxfuse as a Model Context Protocol server on stdin/stdout.

Logs go to stderr; stdout carries the protocol. Set --metrics-addr to also
expose Prometheus metrics over HTTP.

Examples:
  ctxfuse mcp
  ctxfuse mcp --metrics-addr 127.0.0.1:9464`,
	Args: cobra.NoArgs,
	RunE: runMCP,
}

func init() {
	mcpCmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "serve Prometheus /metrics on this address")
	mcpCmd.Flags().IntVar(&mcpLimit, "default-limit", 0, "chunks returned when the caller passes no limit (0 returns all)")
}

func runMCP(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, configPath, logLevel)
	if err != nil {
		return err
	}
	defer func() { _ = a.close(context.WithoutCancel(ctx)) }()

	if a.cfg.Logging.Stream == "stdout" {
		return errors.New("logging.stream=stdout conflicts with the stdio transport")
	}

	if metricsAddr != "" {
		srv := startMetricsServer(ctx, metricsAddr, a.logger)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	mcpCfg := mcp.DefaultConfig()
	mcpCfg.Version = version
	mcpCfg.Logger = a.logger.Underlying().Named("mcp")
	mcpCfg.DefaultLimit = mcpLimit
	server, err := mcp.NewServer(mcpCfg, a.engine)
	if err != nil {
		return fmt.Errorf("creating MCP server: %w", err)
	}

	if err := server.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	a.logger.Info(ctx, "MCP server stopped")
	return nil
}

// startMetricsServer serves promhttp.Handler until shut down.
func startMetricsServer(ctx context.Context, addr string, logger *logging.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		logger.Info(ctx, "serving metrics", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error(ctx, "metrics server failed", zap.Error(err))
		}
	}()
	return srv
}
