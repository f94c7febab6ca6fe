// Package metrics exposes the Prometheus gauge/counter/histogram vectors
// the scheduler, reconciler, and worker pool export.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds every Prometheus collector the core registers.
type Metrics struct {
	// Bead/workflow lifecycle.
	BeadsTotal      *prometheus.GaugeVec
	BeadTransitions *prometheus.CounterVec
	WorkflowsTotal  prometheus.Gauge
	WorkflowsDone   prometheus.Counter

	// Scheduler actor.
	SchedulerReadyBeads prometheus.Gauge
	SchedulerPending    prometheus.Gauge
	SchedulerCallLatency *prometheus.HistogramVec

	// Reconciler.
	ReconcileActionsTotal *prometheus.CounterVec
	ReconcileFailures     prometheus.Counter
	ReconcilePassDuration prometheus.Histogram

	// Worker pool.
	WorkerPoolTotal     prometheus.Gauge
	WorkerPoolAvailable prometheus.Gauge
	WorkerPoolBusy      prometheus.Gauge
	WorkerPoolAttention prometheus.Gauge
}

var (
	once   sync.Once
	shared *Metrics
)

// New returns the process-wide Metrics singleton, registering every
// collector on first call. Subsequent calls return the same instance:
// promauto panics on double-registration, so a shared singleton (rather
// than a fresh Metrics per caller) is required whenever more than one
// package wants to record against the same collectors.
func New() *Metrics {
	once.Do(func() {
		shared = &Metrics{
			BeadsTotal: promauto.NewGaugeVec(prometheus.GaugeOpts{
				Name: "oya_beads_total",
				Help: "Number of beads currently tracked, by state.",
			}, []string{"workflow_id", "state"}),
			BeadTransitions: promauto.NewCounterVec(prometheus.CounterOpts{
				Name: "oya_bead_transitions_total",
				Help: "Count of bead state transitions, by from/to state.",
			}, []string{"from", "to"}),
			WorkflowsTotal: promauto.NewGauge(prometheus.GaugeOpts{
				Name: "oya_workflows_total",
				Help: "Number of workflows currently registered with the scheduler.",
			}),
			WorkflowsDone: promauto.NewCounter(prometheus.CounterOpts{
				Name: "oya_workflows_completed_total",
				Help: "Count of workflows that reached is_complete.",
			}),
			SchedulerReadyBeads: promauto.NewGauge(prometheus.GaugeOpts{
				Name: "oya_scheduler_ready_beads",
				Help: "Beads currently in the scheduler's ready set, aggregated across workflows.",
			}),
			SchedulerPending: promauto.NewGauge(prometheus.GaugeOpts{
				Name: "oya_scheduler_pending_beads",
				Help: "Beads still in the Pending state.",
			}),
			SchedulerCallLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
				Name:    "oya_scheduler_call_duration_seconds",
				Help:    "Latency of scheduler actor call-style messages.",
				Buckets: prometheus.ExponentialBuckets(0.0005, 2, 12),
			}, []string{"message"}),
			ReconcileActionsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
				Name: "oya_reconcile_actions_total",
				Help: "Count of reconciler actions taken, by kind and outcome.",
			}, []string{"kind", "outcome"}),
			ReconcileFailures: promauto.NewCounter(prometheus.CounterOpts{
				Name: "oya_reconcile_failures_total",
				Help: "Count of reconcile passes with at least one failed action.",
			}),
			ReconcilePassDuration: promauto.NewHistogram(prometheus.HistogramOpts{
				Name:    "oya_reconcile_pass_duration_seconds",
				Help:    "Duration of one reconcile pass (diff + apply).",
				Buckets: prometheus.ExponentialBuckets(0.001, 2, 14),
			}),
			WorkerPoolTotal: promauto.NewGauge(prometheus.GaugeOpts{
				Name: "oya_worker_pool_total",
				Help: "Total workers registered with the pool.",
			}),
			WorkerPoolAvailable: promauto.NewGauge(prometheus.GaugeOpts{
				Name: "oya_worker_pool_available",
				Help: "Idle workers available to claim.",
			}),
			WorkerPoolBusy: promauto.NewGauge(prometheus.GaugeOpts{
				Name: "oya_worker_pool_busy",
				Help: "Claimed workers currently running a bead.",
			}),
			WorkerPoolAttention: promauto.NewGauge(prometheus.GaugeOpts{
				Name: "oya_worker_pool_needing_attention",
				Help: "Workers in Unhealthy or Dead state.",
			}),
		}
	})
	return shared
}

// RecordReconcileResult updates the reconciler gauges/counters from one
// pass's taken/failed action counts, bucketed by action kind.
func (m *Metrics) RecordReconcileResult(takenByKind map[string]int, failedByKind map[string]int) {
	for kind, n := range takenByKind {
		m.ReconcileActionsTotal.WithLabelValues(kind, "succeeded").Add(float64(n))
	}
	for kind, n := range failedByKind {
		m.ReconcileActionsTotal.WithLabelValues(kind, "failed").Add(float64(n))
	}
	if len(failedByKind) > 0 {
		m.ReconcileFailures.Inc()
	}
}

// RecordPoolStats mirrors a workerpool.Stats snapshot onto the pool gauges.
func (m *Metrics) RecordPoolStats(total, available, busy, needingAttention int) {
	m.WorkerPoolTotal.Set(float64(total))
	m.WorkerPoolAvailable.Set(float64(available))
	m.WorkerPoolBusy.Set(float64(busy))
	m.WorkerPoolAttention.Set(float64(needingAttention))
}
