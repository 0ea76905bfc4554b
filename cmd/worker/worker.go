// Package worker runs the analysis worker pool until interrupted.
package worker

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/tphakala/mediaguard/internal/conf"
	"github.com/tphakala/mediaguard/internal/errors"
	"github.com/tphakala/mediaguard/internal/logging"
	"github.com/tphakala/mediaguard/internal/runtime"
)

const metricsShutdownTimeout = 5 * time.Second

// Command creates the worker command.
func Command(settings *conf.Settings) *cobra.Command {
	var metricsAddr string

	cmd := &cobra.Command{
		Use:   "worker",
		Short: "Run the analysis worker pool",
		Long:  "Claims queued analysis jobs and runs them through the full pipeline until interrupted.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWorkers(settings, metricsAddr)
		},
	}

	cmd.Flags().IntVar(&settings.Pipeline.Workers, "workers",
		viper.GetInt("pipeline.workers"), "Number of concurrent analysis workers")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", ":9100",
		"Listen address for Prometheus metrics, empty disables the endpoint")

	return cmd
}

func runWorkers(settings *conf.Settings, metricsAddr string) error {
	engine, err := runtime.Build(settings)
	if err != nil {
		return fmt.Errorf("wiring engine: %w", err)
	}
	defer func() {
		if err := engine.Close(); err != nil {
			logging.Error("shutdown error", "error", err)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var metricsServer *http.Server
	if metricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(engine.Registry, promhttp.HandlerOpts{}))
		metricsServer = &http.Server{
			Addr:              metricsAddr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			logging.Info("metrics endpoint listening", "addr", metricsAddr)
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logging.Error("metrics server failed", "error", err)
			}
		}()
	}

	runErr := engine.Pool.Run(ctx)

	if metricsServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), metricsShutdownTimeout)
		defer cancel()
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			logging.Warn("metrics server shutdown error", "error", err)
		}
	}

	stats := engine.Pool.Stats()
	logging.Info("worker shutdown complete",
		"claimed", stats.Claimed,
		"completed", stats.Completed,
		"failed", stats.Failed)
	return runErr
}
