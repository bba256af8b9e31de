package service

import (
	"fmt"
	"net/http"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsService encapsulates Prometheus instrumentation for the scheduling core.
type MetricsService struct {
	registry            *prometheus.Registry
	handler             http.Handler
	requestDuration     *prometheus.HistogramVec
	requestTotal        *prometheus.CounterVec
	availabilityChecks  *prometheus.CounterVec
	occurrencesCreated  prometheus.Counter
	occurrencesShifted  prometheus.Counter
	sweepFailures       *prometheus.CounterVec
	sweepDuration       *prometheus.HistogramVec
	searchDuration      prometheus.Histogram
	notificationsQueued *prometheus.CounterVec

	requestCount uint64
}

// MetricsSnapshot is a lightweight view of counters for status endpoints.
type MetricsSnapshot struct {
	RequestsTotal uint64    `json:"requestsTotal"`
	Goroutines    int       `json:"goroutines"`
	GeneratedAt   time.Time `json:"generatedAt"`
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

	availabilityChecks := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "availability_checks_total",
		Help: "Availability checks by outcome",
	}, []string{"result"})

	occurrencesCreated := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "occurrences_generated_total",
		Help: "Occurrences materialised from recurring patterns",
	})

	occurrencesShifted := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "occurrences_reanchored_total",
		Help: "Occurrences whose UTC instant was rewritten after an offset transition",
	})

	sweepFailures := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "sweep_failures_total",
		Help: "Per-item failures during background sweeps",
	}, []string{"task"})

	sweepDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "sweep_duration_seconds",
		Help:    "Duration of background sweeps",
		Buckets: []float64{0.05, 0.1, 0.5, 1, 5, 15, 60, 300},
	}, []string{"task"})

	searchDuration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "teacher_search_duration_seconds",
		Help:    "Duration of teacher search requests",
		Buckets: prometheus.DefBuckets,
	})

	notificationsQueued := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "notifications_total",
		Help: "Notifications handed to the outbox by outcome",
	}, []string{"result"})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(requestDuration, requestTotal, availabilityChecks, occurrencesCreated, occurrencesShifted,
		sweepFailures, sweepDuration, searchDuration, notificationsQueued, goroutines)

	return &MetricsService{
		registry:            registry,
		handler:             promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestDuration:     requestDuration,
		requestTotal:        requestTotal,
		availabilityChecks:  availabilityChecks,
		occurrencesCreated:  occurrencesCreated,
		occurrencesShifted:  occurrencesShifted,
		sweepFailures:       sweepFailures,
		sweepDuration:       sweepDuration,
		searchDuration:      searchDuration,
		notificationsQueued: notificationsQueued,
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

// Registry exposes the underlying registry for tests and custom collectors.
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
	atomic.AddUint64(&m.requestCount, 1)
}

// ObserveAvailabilityCheck counts an engine decision. result is "available" or a conflict type.
func (m *MetricsService) ObserveAvailabilityCheck(result string) {
	if m == nil {
		return
	}
	m.availabilityChecks.WithLabelValues(result).Inc()
}

// AddOccurrencesGenerated counts materialised occurrences.
func (m *MetricsService) AddOccurrencesGenerated(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.occurrencesCreated.Add(float64(n))
}

// AddOccurrencesReanchored counts rewritten occurrences.
func (m *MetricsService) AddOccurrencesReanchored(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.occurrencesShifted.Add(float64(n))
}

// ObserveSweep records duration and failure count for a named background task.
func (m *MetricsService) ObserveSweep(task string, failed int, duration time.Duration) {
	if m == nil {
		return
	}
	m.sweepDuration.WithLabelValues(task).Observe(duration.Seconds())
	if failed > 0 {
		m.sweepFailures.WithLabelValues(task).Add(float64(failed))
	}
}

// ObserveSearch records the duration of a teacher search.
func (m *MetricsService) ObserveSearch(duration time.Duration) {
	if m == nil {
		return
	}
	m.searchDuration.Observe(duration.Seconds())
}

// ObserveNotification counts an outbox write by outcome.
func (m *MetricsService) ObserveNotification(ok bool) {
	if m == nil {
		return
	}
	result := "queued"
	if !ok {
		result = "failed"
	}
	m.notificationsQueued.WithLabelValues(result).Inc()
}

// Snapshot returns aggregated counters suitable for status endpoints.
func (m *MetricsService) Snapshot() MetricsSnapshot {
	if m == nil {
		return MetricsSnapshot{}
	}
	return MetricsSnapshot{
		RequestsTotal: atomic.LoadUint64(&m.requestCount),
		Goroutines:    runtime.NumGoroutine(),
		GeneratedAt:   time.Now().UTC(),
	}
}
