// Package metrics holds the Prometheus collectors for ingestion runs.
// Runs are short-lived processes, so collectors live on a private registry
// that is pushed to a Pushgateway on exit instead of being scraped.
package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/push"
)

const namespace = "onchain_ingest"

// Registry collects every metric in this package.
var Registry = prometheus.NewRegistry()

var factory = promauto.With(Registry)

// ── Pipeline runs ──────────────────────────────────────────────────────

var (
	RunsTotal = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "run",
		Name:      "total",
		Help:      "Total pipeline runs by outcome.",
	}, []string{"pipeline", "status"})

	RunDuration = factory.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "run",
		Name:      "duration_seconds",
		Help:      "Wall time of a pipeline run in seconds.",
		Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600, 1200, 1800},
	}, []string{"pipeline"})

	RunLastSuccess = factory.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "run",
		Name:      "last_success_timestamp",
		Help:      "Unix timestamp of the last successful run per pipeline.",
	}, []string{"pipeline"})
)

// ── Remote query polling ───────────────────────────────────────────────

var (
	PollAttemptsTotal = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "poll",
		Name:      "attempts_total",
		Help:      "Status fetches per query by observed state.",
	}, []string{"query_id", "state"})

	PollWaitSeconds = factory.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "poll",
		Name:      "wait_seconds",
		Help:      "Time from first poll to completion per query.",
		Buckets:   []float64{5, 10, 30, 60, 120, 300, 600, 1200, 1800},
	}, []string{"query_id"})
)

// ── Ingestion ──────────────────────────────────────────────────────────

var (
	RecordsWrittenTotal = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "sink",
		Name:      "records_written_total",
		Help:      "Documents written per collection and write mode.",
	}, []string{"collection", "mode"})

	UpsertsTotal = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "sink",
		Name:      "upserts_total",
		Help:      "Snapshot upserts by outcome (inserted or replaced).",
	}, []string{"collection", "outcome"})
)

// Push sends the registry to a Pushgateway under the given job name.
// An empty gatewayURL is a no-op.
func Push(gatewayURL, job string) error {
	if gatewayURL == "" {
		return nil
	}
	if err := push.New(gatewayURL, job).Gatherer(Registry).Push(); err != nil {
		return fmt.Errorf("push metrics: %w", err)
	}
	return nil
}
