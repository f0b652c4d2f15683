package observability

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const metricsNamespace = "notification_dispatcher"

// Metrics stores Prometheus collectors used by the API and pipeline processes.
type Metrics struct {
	registry *prometheus.Registry

	httpRequestsTotal      *prometheus.CounterVec
	httpRequestDuration    *prometheus.HistogramVec
	eventsDispatchedTotal  *prometheus.CounterVec
	tenantUnitsFailedTotal *prometheus.CounterVec
	providerPublishTotal   *prometheus.CounterVec
	providerPublishSeconds *prometheus.HistogramVec
	retryJobsEnqueuedTotal *prometheus.CounterVec
	retryJobsReplayedTotal *prometheus.CounterVec
}

func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		httpRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests processed by method, path, and status.",
			},
			[]string{"method", "path", "status"},
		),
		httpRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds by method and path.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		eventsDispatchedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "events_dispatched_total",
				Help:      "Inbound notification events processed, by outcome.",
			},
			[]string{"outcome"},
		),
		tenantUnitsFailedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "tenant_units_failed_total",
				Help:      "Per-tenant units of work that failed, by stage.",
			},
			[]string{"stage"},
		),
		providerPublishTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "provider_publish_total",
				Help:      "Provider publish attempts by provider and result.",
			},
			[]string{"provider", "result"},
		),
		providerPublishSeconds: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Name:      "provider_publish_duration_seconds",
				Help:      "Provider publish duration in seconds grouped by provider.",
				Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
			},
			[]string{"provider"},
		),
		retryJobsEnqueuedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "retry_jobs_enqueued_total",
				Help:      "Retry jobs written to the retry queue, by provider.",
			},
			[]string{"provider"},
		),
		retryJobsReplayedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "retry_jobs_replayed_total",
				Help:      "Retry jobs replayed by the retry worker, by provider and result.",
			},
			[]string{"provider", "result"},
		),
	}

	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.httpRequestsTotal,
		m.httpRequestDuration,
		m.eventsDispatchedTotal,
		m.tenantUnitsFailedTotal,
		m.providerPublishTotal,
		m.providerPublishSeconds,
		m.retryJobsEnqueuedTotal,
		m.retryJobsReplayedTotal,
	)

	return m
}

func (m *Metrics) Handler() http.Handler {
	if m == nil || m.registry == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) HTTPMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()

		path := routePath(c)
		if path == "/metrics" {
			return err
		}

		m.recordHTTPRequest(c.Method(), path, statusFromResult(c, err), time.Since(start))
		return err
	}
}

func (m *Metrics) IncEventDispatched(outcome string) {
	if m == nil {
		return
	}
	m.eventsDispatchedTotal.WithLabelValues(normalizeLabel(outcome)).Inc()
}

func (m *Metrics) IncTenantUnitFailed(stage string) {
	if m == nil {
		return
	}
	m.tenantUnitsFailedTotal.WithLabelValues(normalizeLabel(stage)).Inc()
}

func (m *Metrics) ObserveProviderPublish(provider string, ok bool, duration time.Duration) {
	if m == nil {
		return
	}
	seconds := duration.Seconds()
	if seconds < 0 {
		seconds = 0
	}
	name := normalizeLabel(provider)
	m.providerPublishTotal.WithLabelValues(name, resultLabel(ok)).Inc()
	m.providerPublishSeconds.WithLabelValues(name).Observe(seconds)
}

func (m *Metrics) IncRetryJobEnqueued(provider string) {
	if m == nil {
		return
	}
	m.retryJobsEnqueuedTotal.WithLabelValues(normalizeLabel(provider)).Inc()
}

func (m *Metrics) IncRetryJobReplayed(provider string, result string) {
	if m == nil {
		return
	}
	m.retryJobsReplayedTotal.WithLabelValues(normalizeLabel(provider), normalizeLabel(result)).Inc()
}

func (m *Metrics) recordHTTPRequest(method string, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}

	methodLabel := strings.ToUpper(strings.TrimSpace(method))
	if methodLabel == "" {
		methodLabel = "UNKNOWN"
	}
	pathLabel := strings.TrimSpace(path)
	if pathLabel == "" {
		pathLabel = "unmatched"
	}

	m.httpRequestsTotal.WithLabelValues(methodLabel, pathLabel, strconv.Itoa(status)).Inc()
	m.httpRequestDuration.WithLabelValues(methodLabel, pathLabel).Observe(duration.Seconds())
}

func routePath(c *fiber.Ctx) string {
	if c == nil {
		return "unmatched"
	}

	if route := c.Route(); route != nil {
		if path := strings.TrimSpace(route.Path); path != "" {
			return path
		}
	}
	return "unmatched"
}

func statusFromResult(c *fiber.Ctx, err error) int {
	if err != nil {
		if fiberErr, ok := err.(*fiber.Error); ok {
			return fiberErr.Code
		}
		return fiber.StatusInternalServerError
	}

	if c == nil {
		return fiber.StatusOK
	}

	status := c.Response().StatusCode()
	if status == 0 {
		return fiber.StatusOK
	}
	return status
}

func resultLabel(ok bool) string {
	if ok {
		return "success"
	}
	return "failure"
}

func normalizeLabel(value string) string {
	normalized := strings.ToLower(strings.TrimSpace(value))
	if normalized == "" {
		return "unknown"
	}
	return normalized
}
