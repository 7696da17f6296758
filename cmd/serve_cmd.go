package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	service "github.com/okian/scorepipe/internal/app"
	"github.com/okian/scorepipe/pkg/logger"
	"github.com/okian/scorepipe/pkg/metrics"
)

// HTTP server timeout constants.
const (
	readTimeout            = 10 * time.Second
	writeTimeout           = 10 * time.Second
	idleTimeout            = 60 * time.Second
	readHeaderTimeout      = 5 * time.Second
	shutdownTimeout        = 30 * time.Second
	serviceMetricsInterval = 5 * time.Second
)

var registerRuntimeOnce sync.Once //nolint:gochecknoglobals // collectors register once per process

func newServeCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the background workers, the deorphan sweep and the metrics endpoint",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.serve(cmd.Context())
		},
	}
}

func (c *cli) serve(ctx context.Context) error {
	registerRuntimeOnce.Do(func() {
		metrics.GetRegistry().MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	})

	svc, err := c.start(ctx)
	if err != nil {
		return err
	}
	defer c.stop(ctx, svc)

	// Start service metrics updater
	go startServiceMetricsUpdater(ctx, svc)

	// Start the periodic deorphan sweep
	go startDeorphanSweep(ctx, svc, c.cfg.DeorphanInterval(), c.logger)

	srv := &http.Server{
		Addr:              c.cfg.Addr,
		Handler:           newMux(svc),
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		c.logger.Info(ctx, "starting HTTP server", logger.String("addr", c.cfg.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	// Wait for shutdown signal
	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			return err
		}
	}
	c.logger.Info(ctx, "shutting down server...")

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		c.logger.Error(ctx, "server shutdown failed", logger.Error(err))
	}
	c.logger.Info(ctx, "server stopped")
	return nil
}

// newMux serves Prometheus metrics and a health probe backed by the service stats.
func newMux(svc *service.Service) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("GET /metrics", promhttp.HandlerFor(metrics.GetRegistry(), promhttp.HandlerOpts{}))
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		stats := svc.GetStats()
		status := http.StatusOK
		if started, _ := stats["started"].(bool); !started {
			status = http.StatusServiceUnavailable
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(stats)
	})
	return mux
}

// startServiceMetricsUpdater refreshes the queue gauges from the service stats.
func startServiceMetricsUpdater(ctx context.Context, svc *service.Service) {
	ticker := time.NewTicker(serviceMetricsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			updateServiceMetrics(svc)
		}
	}
}

func updateServiceMetrics(svc *service.Service) {
	if n, ok := svc.GetStats()["jobQueueLength"].(int); ok {
		metrics.UpdateJobQueueSize(n)
	}
}

// startDeorphanSweep queues a full deorphan job every interval. A zero
// interval disables the sweep.
func startDeorphanSweep(ctx context.Context, svc *service.Service, interval time.Duration, log logger.Logger) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := svc.Enqueue(ctx, service.DeorphanJob("", "")); err != nil {
				log.Warn(ctx, "deorphan sweep not queued", logger.Error(err))
			}
		}
	}
}
