package service

import (
	"fmt"
	"net/http"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Provisioning outcomes reported by IdentityService.
const (
	ProvisionExisting = "existing"
	ProvisionLinked   = "linked"
	ProvisionCreated  = "created"
	ProvisionNoEmail  = "no_email"
	ProvisionFailed   = "failed"
)

// MetricsService owns the Prometheus registry for the API.
type MetricsService struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
	rateLimit       *prometheus.CounterVec
	provisioning    *prometheus.CounterVec
	cacheLatency    prometheus.Observer
	cacheLookups    *prometheus.CounterVec
	importedTotal   *prometheus.CounterVec
	filterDuration  prometheus.Observer
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

	rateLimit := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "rate_limit_decisions_total",
		Help: "Admission decisions taken by the rate limiter",
	}, []string{"decision"})

	provisioning := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "identity_provisioning_total",
		Help: "Outcomes of resolving identity provider subjects to local users",
	}, []string{"outcome"})

	cacheLatency := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "cache_latency_seconds",
		Help:    "Latency for cache lookups",
		Buckets: prometheus.DefBuckets,
	})

	cacheLookups := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "cache_lookups_total",
		Help: "Cache lookups by result",
	}, []string{"result"})

	importedTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "alumni_import_records_total",
		Help: "Imported alumni records by result",
	}, []string{"result"})

	filterDuration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "alumni_filter_duration_seconds",
		Help:    "Time spent filtering the alumni directory",
		Buckets: prometheus.ExponentialBuckets(0.0005, 2, 12),
	})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(requestDuration, requestTotal, rateLimit, provisioning, cacheLatency, cacheLookups, importedTotal, filterDuration, goroutines)

	return &MetricsService{
		registry:        registry,
		handler:         promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestDuration: requestDuration,
		requestTotal:    requestTotal,
		rateLimit:       rateLimit,
		provisioning:    provisioning,
		cacheLatency:    cacheLatency,
		cacheLookups:    cacheLookups,
		importedTotal:   importedTotal,
		filterDuration:  filterDuration,
	}
}

// Registry exposes the underlying registry, mainly for tests.
func (m *MetricsService) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
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

// RecordRateLimit counts one admission decision. failOpen marks requests
// admitted because the limiter itself failed.
func (m *MetricsService) RecordRateLimit(allowed, failOpen bool) {
	if m == nil {
		return
	}
	decision := "rejected"
	switch {
	case failOpen:
		decision = "fail_open"
	case allowed:
		decision = "allowed"
	}
	m.rateLimit.WithLabelValues(decision).Inc()
}

// RecordProvisioning counts one subject resolution outcome.
func (m *MetricsService) RecordProvisioning(outcome string) {
	if m == nil {
		return
	}
	m.provisioning.WithLabelValues(outcome).Inc()
}

// RecordCacheOperation records a cache hit or miss.
func (m *MetricsService) RecordCacheOperation(hit bool, duration time.Duration) {
	if m == nil {
		return
	}
	m.cacheLatency.Observe(duration.Seconds())
	if hit {
		m.cacheLookups.WithLabelValues("hit").Inc()
		return
	}
	m.cacheLookups.WithLabelValues("miss").Inc()
}

// RecordImport counts accepted and skipped import records.
func (m *MetricsService) RecordImport(accepted, skipped int) {
	if m == nil {
		return
	}
	m.importedTotal.WithLabelValues("accepted").Add(float64(accepted))
	m.importedTotal.WithLabelValues("skipped").Add(float64(skipped))
}

// ObserveFilter records the duration of one directory filter pass.
func (m *MetricsService) ObserveFilter(duration time.Duration) {
	if m == nil {
		return
	}
	m.filterDuration.Observe(duration.Seconds())
}
