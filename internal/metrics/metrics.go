// Package metrics exposes prometheus counters for the backfill pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// JobsStarted counts backfill jobs that entered the running state
	JobsStarted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "backfill_jobs_started_total",
		Help: "Number of backfill jobs that started running",
	})

	// JobsCompleted counts jobs that reached the completed state
	JobsCompleted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "backfill_jobs_completed_total",
		Help: "Number of backfill jobs completed successfully",
	})

	// JobsFailed counts jobs that reached the failed state
	JobsFailed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "backfill_jobs_failed_total",
		Help: "Number of backfill jobs that failed",
	})

	// Dispatches counts per-customer outcomes by status
	Dispatches = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "backfill_dispatch_outcomes_total",
		Help: "Per-customer dispatch outcomes by status",
	}, []string{"status"})

	// PlatformRetries counts retried platform page fetches
	PlatformRetries = promauto.NewCounter(prometheus.CounterOpts{
		Name: "backfill_platform_retries_total",
		Help: "Number of retried commerce platform requests",
	})
)
