package service

import (
	"net/http"
	"runtime"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/noah-isme/room-assignment-api/internal/allocator"
	"github.com/noah-isme/room-assignment-api/internal/models"
)

const metricsNamespace = "room_allocator"

const runOutcomeSuccess = "success"

// MetricsService owns a private Prometheus registry and keeps running totals for the
// JSON summary. A nil *MetricsService is a valid no-op recorder.
type MetricsService struct {
	registry *prometheus.Registry
	handler  http.Handler

	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
	cacheLatency    *prometheus.HistogramVec
	cacheLookups    *prometheus.CounterVec
	cacheHitRatio   prometheus.Gauge
	runDuration     *prometheus.HistogramVec
	meetings        *prometheus.CounterVec
	undoRemoved     prometheus.Counter
	importItems     *prometheus.CounterVec

	totals struct {
		cacheHits, cacheMisses atomic.Uint64
		requests, requestNanos atomic.Uint64
		runs, runNanos         atomic.Uint64
		assigned, unassigned   atomic.Uint64
		skipped                atomic.Uint64
	}
}

// NewMetricsService registers the HTTP, cache, allocation and import collectors
// together with the Go runtime and process collectors.
func NewMetricsService() *MetricsService {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(registry)

	return &MetricsService{
		registry: registry,
		handler:  promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry}),
		requestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests by route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
		requestTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests by route and status.",
		}, []string{"method", "route", "status"}),
		cacheLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Subsystem: "cache",
			Name:      "operation_seconds",
			Help:      "Latency of cache reads and writes.",
			Buckets:   []float64{.0005, .001, .0025, .005, .01, .025, .05, .1, .25},
		}, []string{"op"}),
		cacheLookups: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "cache",
			Name:      "lookups_total",
			Help:      "Cache lookups by result.",
		}, []string{"result"}),
		cacheHitRatio: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Subsystem: "cache",
			Name:      "hit_ratio",
			Help:      "Share of cache lookups served from cache since start.",
		}),
		runDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Subsystem: "allocation",
			Name:      "run_duration_seconds",
			Help:      "Duration of allocation passes including persistence.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
		}, []string{"policy", "outcome"}),
		meetings: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "allocation",
			Name:      "meetings_total",
			Help:      "Meeting slots processed by successful passes, by result.",
		}, []string{"result"}),
		undoRemoved: factory.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "allocation",
			Name:      "undo_removed_total",
			Help:      "Assignments removed by undo.",
		}),
		importItems: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "import",
			Name:      "items_total",
			Help:      "Import batch items by resolution.",
		}, []string{"resolution"}),
	}
}

// Handler exposes the Prometheus scrape endpoint.
func (m *MetricsService) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// ObserveHTTPRequest records one served request.
func (m *MetricsService) ObserveHTTPRequest(method, route string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	code := strconv.Itoa(status)
	m.requestDuration.WithLabelValues(method, route, code).Observe(duration.Seconds())
	m.requestTotal.WithLabelValues(method, route, code).Inc()
	m.totals.requests.Add(1)
	m.totals.requestNanos.Add(uint64(duration))
}

// RecordCacheOperation records one cache read.
func (m *MetricsService) RecordCacheOperation(hit bool, duration time.Duration) {
	if m == nil {
		return
	}
	m.cacheLatency.WithLabelValues("get").Observe(duration.Seconds())
	if hit {
		m.cacheLookups.WithLabelValues("hit").Inc()
		m.totals.cacheHits.Add(1)
	} else {
		m.cacheLookups.WithLabelValues("miss").Inc()
		m.totals.cacheMisses.Add(1)
	}
	m.cacheHitRatio.Set(m.hitRatio())
}

// ObserveCacheWrite records one cache write.
func (m *MetricsService) ObserveCacheWrite(duration time.Duration) {
	if m == nil {
		return
	}
	m.cacheLatency.WithLabelValues("set").Observe(duration.Seconds())
}

// ObserveAllocationRun records a finished pass. outcome is "success" or an error code;
// meeting counters only move for successful passes.
func (m *MetricsService) ObserveAllocationRun(policy allocator.Policy, outcome string, stats allocator.Stats, duration time.Duration) {
	if m == nil {
		return
	}
	m.runDuration.WithLabelValues(string(policy), outcome).Observe(duration.Seconds())
	m.totals.runs.Add(1)
	m.totals.runNanos.Add(uint64(duration))
	if outcome != runOutcomeSuccess {
		return
	}
	m.meetings.WithLabelValues("assigned").Add(float64(stats.Assigned))
	m.meetings.WithLabelValues("unassigned").Add(float64(stats.Unassigned))
	m.meetings.WithLabelValues("skipped").Add(float64(stats.Skipped))
	m.totals.assigned.Add(uint64(stats.Assigned))
	m.totals.unassigned.Add(uint64(stats.Unassigned))
	m.totals.skipped.Add(uint64(stats.Skipped))
}

// ObserveUndo records the number of assignments removed by an undo.
func (m *MetricsService) ObserveUndo(removed int64) {
	if m == nil || removed <= 0 {
		return
	}
	m.undoRemoved.Add(float64(removed))
}

// ObserveImportItems counts import items per resolution (created, replaced, skipped, rejected, ...).
func (m *MetricsService) ObserveImportItems(resolution string, count int) {
	if m == nil || count <= 0 {
		return
	}
	m.importItems.WithLabelValues(resolution).Add(float64(count))
}

// Snapshot returns the running totals for the JSON summary endpoint.
func (m *MetricsService) Snapshot() models.SystemMetrics {
	if m == nil {
		return models.SystemMetrics{}
	}
	return models.SystemMetrics{
		CacheHitRatio:            m.hitRatio(),
		CacheHits:                m.totals.cacheHits.Load(),
		CacheMisses:              m.totals.cacheMisses.Load(),
		RequestsTotal:            m.totals.requests.Load(),
		AverageRequestDurationMs: averageMillis(m.totals.requestNanos.Load(), m.totals.requests.Load()),
		AllocationRuns:           m.totals.runs.Load(),
		AverageRunDurationMs:     averageMillis(m.totals.runNanos.Load(), m.totals.runs.Load()),
		AssignedTotal:            m.totals.assigned.Load(),
		UnassignedTotal:          m.totals.unassigned.Load(),
		SkippedSlotsTotal:        m.totals.skipped.Load(),
		Goroutines:               runtime.NumGoroutine(),
		GeneratedAt:              time.Now().UTC(),
	}
}

func (m *MetricsService) hitRatio() float64 {
	hits := m.totals.cacheHits.Load()
	total := hits + m.totals.cacheMisses.Load()
	if total == 0 {
		return 0
	}
	return float64(hits) / float64(total)
}

func averageMillis(totalNanos, count uint64) float64 {
	if count == 0 {
		return 0
	}
	return float64(totalNanos) / float64(count) / float64(time.Millisecond)
}
