package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/dshills/pluginhost/internal/app"
	"github.com/dshills/pluginhost/internal/config"
	"github.com/dshills/pluginhost/internal/metrics"
)

const shutdownTimeout = 10 * time.Second

func newRunCmd(flags *rootFlags) *cobra.Command {
	var (
		metricsAddr string
		watch       bool
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start the host, activate enabled plugins and wait for a signal",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := flags.loadConfig()
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("metrics-addr") {
				cfg.Metrics.Addr = metricsAddr
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return run(ctx, cfg, flags.configPath, watch)
		},
	}

	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address (overrides config)")
	cmd.Flags().BoolVar(&watch, "watch", true, "Reload when the configuration file changes")
	return cmd
}

// run starts the host and blocks until ctx is done.
func run(ctx context.Context, cfg *config.Config, configPath string, watch bool) error {
	host, err := app.New(app.Options{Config: cfg})
	if err != nil {
		return err
	}
	logger := host.Logger()
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := host.Shutdown(sctx); err != nil {
			logger.Error("shutdown failed", zap.Error(err))
		}
	}()

	if _, err := host.Start(ctx); err != nil {
		return err
	}

	if watch && configPath != "" {
		w, err := config.NewWatcher(configPath, func(next config.Config) {
			if _, err := host.Reload(ctx, next); err != nil {
				logger.Warn("reload finished with errors", zap.Error(err))
			}
		},
			config.WithWatcherLogger(logger.Named("config")),
			config.WithErrorHandler(func(err error) {
				logger.Warn("configuration ignored", zap.Error(err))
			}),
		)
		if err != nil {
			return err
		}
		defer w.Close()
	}

	if addr := cfg.Metrics.Addr; addr != "" {
		srv, err := serveMetrics(host, addr)
		if err != nil {
			return err
		}
		defer func() {
			sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			_ = srv.Shutdown(sctx)
		}()
	}

	<-ctx.Done()
	logger.Info("shutting down")
	return nil
}

// serveMetrics exposes the host collector on addr at /metrics.
func serveMetrics(host *app.Host, addr string) (*http.Server, error) {
	reg, err := metrics.NewRegistry(host.Collector())
	if err != nil {
		return nil, err
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler(reg))
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	logger := host.Logger()
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server failed", zap.Error(err))
		}
	}()
	logger.Info("serving metrics", zap.String("addr", addr))
	return srv, nil
}
