package service

import (
	"net/http"
	"runtime"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sekolahku/sis-core-api/internal/models"
)

// MetricsService owns the prometheus registry plus a handful of atomic
// counters that feed the JSON snapshot endpoint without touching the
// registry. All methods are nil-receiver safe so instrumentation can be
// left unwired in tests.
type MetricsService struct {
	registry *prometheus.Registry
	handler  http.Handler

	httpDuration    *prometheus.HistogramVec
	httpTotal       *prometheus.CounterVec
	cacheLatency    prometheus.Histogram
	cacheHitRatio   prometheus.Gauge
	cacheHits       prometheus.Counter
	cacheMisses     prometheus.Counter
	dbDuration      *prometheus.HistogramVec
	reportsRendered *prometheus.CounterVec
	submissionsIn   *prometheus.CounterVec

	snap snapshotCounters
}

// snapshotCounters aggregates cheap process-local stats for Snapshot.
type snapshotCounters struct {
	cacheHits   atomic.Uint64
	cacheMisses atomic.Uint64
	requests    atomic.Uint64
	requestNS   atomic.Uint64
	dbQueries   atomic.Uint64
	dbQueryNS   atomic.Uint64
	reports     atomic.Uint64
}

// NewMetricsService builds a private registry with the service's collectors.
func NewMetricsService() *MetricsService {
	m := &MetricsService{
		registry: prometheus.NewRegistry(),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path", "status"}),
		httpTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "path", "status"}),
		cacheLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "cache_latency_seconds",
			Help:    "Latency for cache operations",
			Buckets: prometheus.DefBuckets,
		}),
		cacheHitRatio: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "cache_hit_ratio",
			Help: "Ratio of cache hits to total cache lookups",
		}),
		cacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cache_hits_total",
			Help: "Total cache hits",
		}),
		cacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cache_misses_total",
			Help: "Total cache misses",
		}),
		dbDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "db_query_duration_seconds",
			Help:    "Duration of database queries",
			Buckets: prometheus.DefBuckets,
		}, []string{"query"}),
		reportsRendered: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "reports_rendered_total",
			Help: "Total report export jobs rendered",
		}, []string{"type", "format", "outcome"}),
		submissionsIn: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "submissions_received_total",
			Help: "Total assignment submissions received",
		}, []string{"late"}),
	}

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 { return float64(runtime.NumGoroutine()) })

	m.registry.MustRegister(
		m.httpDuration, m.httpTotal,
		m.cacheLatency, m.cacheHitRatio, m.cacheHits, m.cacheMisses,
		m.dbDuration, m.reportsRendered, m.submissionsIn,
		goroutines,
	)
	m.handler = promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
	return m
}

// Handler exposes the prometheus scrape endpoint.
func (m *MetricsService) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// ObserveHTTPRequest records one finished request.
func (m *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	code := strconv.Itoa(status)
	m.httpDuration.WithLabelValues(method, path, code).Observe(duration.Seconds())
	m.httpTotal.WithLabelValues(method, path, code).Inc()
	m.snap.requests.Add(1)
	m.snap.requestNS.Add(uint64(duration.Nanoseconds()))
}

// RecordCacheOperation tracks a cache lookup and refreshes the hit ratio.
func (m *MetricsService) RecordCacheOperation(hit bool, duration time.Duration) {
	if m == nil {
		return
	}
	m.cacheLatency.Observe(duration.Seconds())
	if hit {
		m.cacheHits.Inc()
		m.snap.cacheHits.Add(1)
	} else {
		m.cacheMisses.Inc()
		m.snap.cacheMisses.Add(1)
	}
	if total := m.snap.cacheHits.Load() + m.snap.cacheMisses.Load(); total > 0 {
		m.cacheHitRatio.Set(float64(m.snap.cacheHits.Load()) / float64(total))
	}
}

// ObserveDBQuery records one timed query under a stable label.
func (m *MetricsService) ObserveDBQuery(label string, duration time.Duration) {
	if m == nil {
		return
	}
	m.dbDuration.WithLabelValues(label).Observe(duration.Seconds())
	m.snap.dbQueries.Add(1)
	m.snap.dbQueryNS.Add(uint64(duration.Nanoseconds()))
}

// RecordReportRendered counts a finished export job by outcome.
func (m *MetricsService) RecordReportRendered(reportType, format string, success bool) {
	if m == nil {
		return
	}
	outcome := "success"
	if !success {
		outcome = "failure"
	}
	m.reportsRendered.WithLabelValues(reportType, format, outcome).Inc()
	if success {
		m.snap.reports.Add(1)
	}
}

// RecordSubmission counts one received assignment submission.
func (m *MetricsService) RecordSubmission(late bool) {
	if m == nil {
		return
	}
	m.submissionsIn.WithLabelValues(strconv.FormatBool(late)).Inc()
}

func avgMillis(totalNS, count uint64) float64 {
	if count == 0 {
		return 0
	}
	return float64(totalNS) / float64(count) / float64(time.Millisecond)
}

// Snapshot reports the aggregated counters for the admin endpoint.
func (m *MetricsService) Snapshot() models.SystemMetrics {
	if m == nil {
		return models.SystemMetrics{}
	}

	hits := m.snap.cacheHits.Load()
	misses := m.snap.cacheMisses.Load()
	var ratio float64
	if hits+misses > 0 {
		ratio = float64(hits) / float64(hits+misses)
	}

	return models.SystemMetrics{
		CacheHitRatio:            ratio,
		CacheHits:                hits,
		CacheMisses:              misses,
		RequestsTotal:            m.snap.requests.Load(),
		AverageRequestDurationMs: avgMillis(m.snap.requestNS.Load(), m.snap.requests.Load()),
		DBQueryCount:             m.snap.dbQueries.Load(),
		AverageDBQueryDurationMs: avgMillis(m.snap.dbQueryNS.Load(), m.snap.dbQueries.Load()),
		ReportsRendered:          m.snap.reports.Load(),
		Goroutines:               runtime.NumGoroutine(),
		GeneratedAt:              time.Now().UTC(),
	}
}
