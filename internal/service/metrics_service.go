package service

import (
	"fmt"
	"net/http"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/noah-isme/sma-roster-sync/internal/models"
)

// MetricsService encapsulates Prometheus instrumentation for HTTP traffic, cache use and import runs.
type MetricsService struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
	cacheLatency    prometheus.Observer
	cacheWrite      prometheus.Observer
	cacheHitRatio   prometheus.Gauge
	cacheHits       prometheus.Counter
	cacheMisses     prometheus.Counter
	importRows      *prometheus.CounterVec
	importRuns      *prometheus.CounterVec
	importDuration  *prometheus.HistogramVec
	importsActive   prometheus.Gauge
	uploadBytes     *prometheus.HistogramVec

	cacheHitCount  uint64
	cacheMissCount uint64
	rowCount       uint64
	runCount       uint64
	failedRunCount uint64
}

// MetricsSnapshot is a lightweight summary for the metrics JSON endpoint.
type MetricsSnapshot struct {
	CacheHitRatio float64   `json:"cache_hit_ratio"`
	CacheHits     uint64    `json:"cache_hits"`
	CacheMisses   uint64    `json:"cache_misses"`
	ImportRows    uint64    `json:"import_rows"`
	ImportRuns    uint64    `json:"import_runs"`
	FailedRuns    uint64    `json:"failed_runs"`
	Goroutines    int       `json:"goroutines"`
	GeneratedAt   time.Time `json:"generated_at"`
}

// NewMetricsService registers core Prometheus collectors.
func NewMetricsService() *MetricsService {
	registry := prometheus.NewRegistry()

	requestDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "Duration of HTTP requests in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	requestTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	cacheLatency := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "cache_latency_seconds",
		Help:    "Latency for cache operations",
		Buckets: prometheus.DefBuckets,
	})

	cacheWrite := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "cache_write_seconds",
		Help:    "Latency for cache set operations",
		Buckets: prometheus.DefBuckets,
	})

	cacheHitRatio := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "cache_hit_ratio",
		Help: "Ratio of cache hits to total cache lookups",
	})

	cacheHits := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cache_hits_total",
		Help: "Total cache hits",
	})

	cacheMisses := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cache_misses_total",
		Help: "Total cache misses",
	})

	importRows := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "roster_import_rows_total",
		Help: "Rows handled by the import engine by outcome",
	}, []string{"variant", "outcome"})

	importRuns := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "roster_import_runs_total",
		Help: "Finished import runs by terminal state",
	}, []string{"variant", "state"})

	importDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "roster_import_duration_seconds",
		Help:    "Wall time of import runs",
		Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
	}, []string{"variant"})

	importsActive := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "roster_imports_active",
		Help: "Import jobs currently running",
	})

	uploadBytes := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "roster_upload_bytes",
		Help:    "Size of spreadsheet upload requests",
		Buckets: prometheus.ExponentialBuckets(16*1024, 4, 7),
	}, []string{"variant"})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(requestDuration, requestTotal, cacheLatency, cacheWrite, cacheHitRatio, cacheHits, cacheMisses,
		importRows, importRuns, importDuration, importsActive, uploadBytes, goroutines)

	handler := promhttp.HandlerFor(registry, promhttp.HandlerOpts{})

	return &MetricsService{
		registry:        registry,
		handler:         handler,
		requestDuration: requestDuration,
		requestTotal:    requestTotal,
		cacheLatency:    cacheLatency,
		cacheWrite:      cacheWrite,
		cacheHitRatio:   cacheHitRatio,
		cacheHits:       cacheHits,
		cacheMisses:     cacheMisses,
		importRows:      importRows,
		importRuns:      importRuns,
		importDuration:  importDuration,
		importsActive:   importsActive,
		uploadBytes:     uploadBytes,
	}
}

// Handler exposes the Prometheus HTTP handler.
func (m *MetricsService) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// ObserveHTTPRequest records request metrics.
func (m *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	labelStatus := fmt.Sprintf("%d", status)
	m.requestDuration.WithLabelValues(method, path, labelStatus).Observe(duration.Seconds())
	m.requestTotal.WithLabelValues(method, path, labelStatus).Inc()
}

// ObserveUpload records the declared body size of an import upload.
func (m *MetricsService) ObserveUpload(variant string, size int64) {
	if m == nil || size <= 0 {
		return
	}
	m.uploadBytes.WithLabelValues(variant).Observe(float64(size))
}

// RecordCacheOperation records cache hit/miss metrics and updates hit ratio.
func (m *MetricsService) RecordCacheOperation(hit bool, duration time.Duration) {
	if m == nil {
		return
	}
	m.cacheLatency.Observe(duration.Seconds())
	if hit {
		m.cacheHits.Inc()
		atomic.AddUint64(&m.cacheHitCount, 1)
	} else {
		m.cacheMisses.Inc()
		atomic.AddUint64(&m.cacheMissCount, 1)
	}
	hits := atomic.LoadUint64(&m.cacheHitCount)
	misses := atomic.LoadUint64(&m.cacheMissCount)
	if total := hits + misses; total > 0 {
		m.cacheHitRatio.Set(float64(hits) / float64(total))
	}
}

// ObserveCacheWrite tracks the duration for cache write operations.
func (m *MetricsService) ObserveCacheWrite(duration time.Duration) {
	if m == nil {
		return
	}
	m.cacheWrite.Observe(duration.Seconds())
}

// ObserveImportRow counts one row outcome (created, updated, duplicate, invalid, error).
func (m *MetricsService) ObserveImportRow(variant, outcome string) {
	if m == nil {
		return
	}
	m.importRows.WithLabelValues(variant, outcome).Inc()
	atomic.AddUint64(&m.rowCount, 1)
}

// ObserveImportRun records a finished run.
func (m *MetricsService) ObserveImportRun(variant string, state models.ImportState, duration time.Duration) {
	if m == nil {
		return
	}
	m.importRuns.WithLabelValues(variant, string(state)).Inc()
	m.importDuration.WithLabelValues(variant).Observe(duration.Seconds())
	atomic.AddUint64(&m.runCount, 1)
	if state == models.ImportStateFailed {
		atomic.AddUint64(&m.failedRunCount, 1)
	}
}

// TrackActiveImport adjusts the running-import gauge by delta.
func (m *MetricsService) TrackActiveImport(delta int) {
	if m == nil {
		return
	}
	m.importsActive.Add(float64(delta))
}

// Snapshot returns aggregated counters.
func (m *MetricsService) Snapshot() MetricsSnapshot {
	if m == nil {
		return MetricsSnapshot{}
	}
	hits := atomic.LoadUint64(&m.cacheHitCount)
	misses := atomic.LoadUint64(&m.cacheMissCount)

	var ratio float64
	if total := hits + misses; total > 0 {
		ratio = float64(hits) / float64(total)
	}
	return MetricsSnapshot{
		CacheHitRatio: ratio,
		CacheHits:     hits,
		CacheMisses:   misses,
		ImportRows:    atomic.LoadUint64(&m.rowCount),
		ImportRuns:    atomic.LoadUint64(&m.runCount),
		FailedRuns:    atomic.LoadUint64(&m.failedRunCount),
		Goroutines:    runtime.NumGoroutine(),
		GeneratedAt:   time.Now().UTC(),
	}
}
