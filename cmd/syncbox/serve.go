package main

import (
	"context"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/nhle/syncbox/internal/metrics"
)

const (
	// tickInterval is the scheduler cadence.
	tickInterval = 15 * time.Second

	// idlePrimeEvery spaces idle-listener refreshes in ticks, so
	// listeners reopen roughly every three minutes.
	idlePrimeEvery = 12
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the sync engine until interrupted",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := buildApp()
			if err != nil {
				return err
			}
			defer a.close()

			ctx, stop := signal.NotifyContext(
				cmd.Context(), syscall.SIGINT, syscall.SIGTERM,
			)
			defer stop()

			metrics.Init()
			if addr := a.cfg.Metrics.Addr; addr != "" {
				go serveMetrics(a, addr)
			}

			if err := a.engine.RecoverStaleJobs(ctx); err != nil {
				return err
			}

			a.logger.Info("sync engine started",
				zap.Duration("tick", tickInterval),
				zap.Int("max_parallel_jobs", a.cfg.Sync.MaxParallelJobs),
			)

			ticker := time.NewTicker(tickInterval)
			defer ticker.Stop()

			tick := 0
			for {
				runTick(ctx, a, tick)
				tick++

				select {
				case <-ctx.Done():
					a.logger.Info("sync engine stopping")
					return nil
				case <-ticker.C:
				}
			}
		},
	}
}

// runTick performs one scheduler pass: seed, drain, and periodically
// reprime the idle listeners.
func runTick(ctx context.Context, a *app, tick int) {
	if err := a.engine.ScheduleJobs(ctx); err != nil {
		a.logger.Error("seeding jobs", zap.Error(err))
	}

	summary, err := a.engine.RunDueJobs(ctx)
	if err != nil {
		a.logger.Error("draining job queue", zap.Error(err))
		return
	}

	if summary.CompletedJobs+summary.FailedJobs+summary.RetriedJobs > 0 {
		a.logger.Info("sync pass finished",
			zap.Int("completed", summary.CompletedJobs),
			zap.Int("failed", summary.FailedJobs),
			zap.Int("retried", summary.RetriedJobs),
			zap.Int("messages", summary.EmailMessagesSynced),
			zap.Int("events", summary.CalendarEventsSynced),
			zap.Int("tasks", summary.TasksSynced),
		)
	}

	if pending, err := a.store.CountPendingJobs(ctx); err == nil {
		metrics.JobsPending.Set(float64(pending))
	}

	if tick%idlePrimeEvery == 0 {
		a.engine.PrimeIdleListeners(ctx)
	}
}

// serveMetrics exposes the Prometheus endpoint.
func serveMetrics(a *app, addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	a.logger.Info("metrics endpoint listening", zap.String("addr", addr))
	if err := http.ListenAndServe(addr, mux); err != nil {
		a.logger.Warn("metrics endpoint stopped", zap.Error(err))
	}
}
