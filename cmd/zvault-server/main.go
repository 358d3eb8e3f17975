package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/zvault/zvault"
	"github.com/zvault/zvault/internal/transport"
)

var (
	bindAddr       string
	storageBackend string
	storagePath    string
	logJSON        bool
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "zvault-server",
	Short: "zvault-server runs the secrets-management vault's HTTP API",
	RunE:  runServer,
}

func init() {
	rootCmd.Flags().StringVar(&bindAddr, "bind-addr", "", "listen address, overrides ZVAULT_BIND_ADDR")
	rootCmd.Flags().StringVar(&storageBackend, "storage-backend", "", "storage backend (memory, bolt, lsm), overrides ZVAULT_STORAGE_BACKEND")
	rootCmd.Flags().StringVar(&storagePath, "storage-path", "", "storage path, overrides ZVAULT_STORAGE_PATH")
	rootCmd.Flags().BoolVar(&logJSON, "log-json", false, "emit structured logs as JSON instead of text")
}

func newLogger() *slog.Logger {
	handlerOpts := &slog.HandlerOptions{Level: slog.LevelInfo}
	if logJSON {
		return slog.New(slog.NewJSONHandler(os.Stdout, handlerOpts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, handlerOpts))
}

func runServer(cmd *cobra.Command, args []string) error {
	logger := newLogger()

	cfg, err := zvault.LoadConfigFromEnvironment()
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}
	if bindAddr != "" {
		cfg.BindAddr = bindAddr
	}
	if storageBackend != "" {
		cfg.StorageBackend = storageBackend
	}
	if storagePath != "" {
		cfg.StoragePath = storagePath
	}
	cfg.Logger = logger
	cfg.MetricsCollector = zvault.NewPrometheusMetricsCollector(prometheus.DefaultRegisterer)

	srv, err := zvault.NewServer(cfg)
	if err != nil {
		return fmt.Errorf("assembling server: %w", err)
	}
	defer srv.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	srv.Run(ctx)

	httpServer := &http.Server{
		Addr:              cfg.BindAddr,
		Handler:           transport.NewRouter(srv),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", cfg.BindAddr)
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("http server: %w", err)
		}
	case <-ctx.Done():
		logger.Info("shutting down")
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("http server shutdown: %w", err)
		}
	}
	return nil
}
