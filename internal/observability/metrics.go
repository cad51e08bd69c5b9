// Package observability exposes the daemon's Prometheus metrics through
// package-level record functions. Registration is lazy and happens once.
package observability

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type coreMetrics struct {
	runTotal    *prometheus.CounterVec
	runDuration *prometheus.HistogramVec

	planStepTotal       *prometheus.CounterVec
	replanDecisionTotal *prometheus.CounterVec
	approvalTotal       *prometheus.CounterVec

	cacheHitsTotal   prometheus.Counter
	cacheMissesTotal prometheus.Counter

	gatewayConnections prometheus.Gauge
}

var (
	metricsOnce sync.Once
	metricsInst *coreMetrics
)

func getMetrics() *coreMetrics {
	metricsOnce.Do(func() {
		m := &coreMetrics{
			runTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "run_total",
					Help: "Total runs by finishing mode.",
				},
				[]string{"mode"},
			),
			runDuration: prometheus.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "run_duration_seconds",
					Help:    "Run duration in seconds by finishing mode.",
					Buckets: prometheus.DefBuckets,
				},
				[]string{"mode"},
			),
			planStepTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "plan_step_total",
					Help: "Total plan step status transitions by status.",
				},
				[]string{"status"},
			),
			replanDecisionTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "replan_decision_total",
					Help: "Total replan checkpoint decisions by action.",
				},
				[]string{"action"},
			),
			approvalTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "plan_approval_total",
					Help: "Total plan approval resolutions by decision.",
				},
				[]string{"decision"},
			),
			cacheHitsTotal: prometheus.NewCounter(
				prometheus.CounterOpts{
					Name: "run_cache_hits_total",
					Help: "Total run cache hits.",
				},
			),
			cacheMissesTotal: prometheus.NewCounter(
				prometheus.CounterOpts{
					Name: "run_cache_misses_total",
					Help: "Total run cache misses.",
				},
			),
			gatewayConnections: prometheus.NewGauge(
				prometheus.GaugeOpts{
					Name: "gateway_connections",
					Help: "Current gateway websocket connection count.",
				},
			),
		}

		prometheus.MustRegister(
			m.runTotal,
			m.runDuration,
			m.planStepTotal,
			m.replanDecisionTotal,
			m.approvalTotal,
			m.cacheHitsTotal,
			m.cacheMissesTotal,
			m.gatewayConnections,
		)

		metricsInst = m
	})

	return metricsInst
}

// EnsureRegistered initializes and registers metrics the first time it is called.
func EnsureRegistered() {
	_ = getMetrics()
}

// MetricsHandler serves the Prometheus scrape endpoint.
func MetricsHandler() http.Handler {
	EnsureRegistered()
	return promhttp.Handler()
}

// ObserveRun records one finished run.
func ObserveRun(mode string, duration time.Duration) {
	m := getMetrics()
	m.runTotal.WithLabelValues(mode).Inc()
	m.runDuration.WithLabelValues(mode).Observe(duration.Seconds())
}

// RecordPlanStep records one step status transition.
func RecordPlanStep(status string) {
	getMetrics().planStepTotal.WithLabelValues(status).Inc()
}

// RecordReplanDecision records one replan checkpoint verdict.
func RecordReplanDecision(action string) {
	getMetrics().replanDecisionTotal.WithLabelValues(action).Inc()
}

// RecordApproval records one plan approval resolution.
func RecordApproval(approved bool) {
	decision := "rejected"
	if approved {
		decision = "approved"
	}
	getMetrics().approvalTotal.WithLabelValues(decision).Inc()
}

// IncCacheHit records a run served from cache.
func IncCacheHit() {
	getMetrics().cacheHitsTotal.Inc()
}

// IncCacheMiss records a cache lookup miss.
func IncCacheMiss() {
	getMetrics().cacheMissesTotal.Inc()
}

// SetGatewayConnections records the live websocket connection count.
func SetGatewayConnections(count int) {
	getMetrics().gatewayConnections.Set(float64(count))
}
