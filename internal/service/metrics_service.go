package service

import (
	"fmt"
	"net/http"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/noah-isme/registry-api/internal/models"
)

// MetricsService encapsulates Prometheus instrumentation for the HTTP surface, the
// cache and the registry engine.
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

	numbersIssued      *prometheus.CounterVec
	numberingConflicts prometheus.Counter
	numberingLatency   prometheus.Observer
	stepTransitions    *prometheus.CounterVec
	statusChanges      *prometheus.CounterVec
	auditDropped       prometheus.Counter

	cacheHitCount  uint64
	cacheMissCount uint64
}

// NewMetricsService registers the collectors on a private registry.
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
		Help:    "Latency for cache lookups",
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

	numbersIssued := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "registry_numbers_issued_total",
		Help: "Registration numbers committed, by register",
	}, []string{"configuration_id"})

	numberingConflicts := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "registry_numbering_conflicts_total",
		Help: "Registration transactions aborted by counter contention",
	})

	numberingLatency := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "registry_numbering_duration_seconds",
		Help:    "Time spent allocating a number including retries",
		Buckets: prometheus.DefBuckets,
	})

	stepTransitions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "registry_step_transitions_total",
		Help: "Workflow steps completed, by action",
	}, []string{"action"})

	statusChanges := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "registry_document_status_changes_total",
		Help: "Document aggregate status changes, by target status",
	}, []string{"status"})

	auditDropped := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "registry_audit_dropped_total",
		Help: "Audit entries that could not be persisted",
	})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(requestDuration, requestTotal, cacheLatency, cacheWrite, cacheHitRatio, cacheHits, cacheMisses,
		numbersIssued, numberingConflicts, numberingLatency, stepTransitions, statusChanges, auditDropped, goroutines)

	return &MetricsService{
		registry:           registry,
		handler:            promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestDuration:    requestDuration,
		requestTotal:       requestTotal,
		cacheLatency:       cacheLatency,
		cacheWrite:         cacheWrite,
		cacheHitRatio:      cacheHitRatio,
		cacheHits:          cacheHits,
		cacheMisses:        cacheMisses,
		numbersIssued:      numbersIssued,
		numberingConflicts: numberingConflicts,
		numberingLatency:   numberingLatency,
		stepTransitions:    stepTransitions,
		statusChanges:      statusChanges,
		auditDropped:       auditDropped,
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

// Registry exposes the underlying registry, mainly for tests.
func (m *MetricsService) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
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
	total := hits + atomic.LoadUint64(&m.cacheMissCount)
	if total > 0 {
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

// RecordNumberIssued counts a committed registration number.
func (m *MetricsService) RecordNumberIssued(configurationID string, duration time.Duration) {
	if m == nil {
		return
	}
	m.numbersIssued.WithLabelValues(configurationID).Inc()
	m.numberingLatency.Observe(duration.Seconds())
}

// RecordNumberingConflict counts an aborted numbering attempt.
func (m *MetricsService) RecordNumberingConflict() {
	if m == nil {
		return
	}
	m.numberingConflicts.Inc()
}

// RecordStepTransition counts a completed step.
func (m *MetricsService) RecordStepTransition(action models.StepAction) {
	if m == nil {
		return
	}
	m.stepTransitions.WithLabelValues(string(action)).Inc()
}

// RecordStatusChange counts a document moving to status.
func (m *MetricsService) RecordStatusChange(status models.DocumentStatus) {
	if m == nil {
		return
	}
	m.statusChanges.WithLabelValues(string(status)).Inc()
}

// RecordAuditDropped counts an audit entry that was lost.
func (m *MetricsService) RecordAuditDropped() {
	if m == nil {
		return
	}
	m.auditDropped.Inc()
}
