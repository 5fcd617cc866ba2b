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

// Metrics stores Prometheus collectors used by API and worker flows.
type Metrics struct {
	registry *prometheus.Registry

	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	emissionsTotal      *prometheus.CounterVec
	deliveriesTotal     prometheus.Counter
	autoEmitSkipsTotal  prometheus.Counter
	emissionFailedTotal *prometheus.CounterVec
	queueRetriesTotal   prometheus.Counter
	emissionDuration    prometheus.Histogram
	deliveryDuration    prometheus.Histogram
	workerInflight      prometheus.Gauge
}

func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		httpRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "qwork",
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests processed by method, path, and status.",
			},
			[]string{"method", "path", "status"},
		),
		httpRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "qwork",
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds by method and path.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		emissionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "qwork",
				Name:      "report_emissions_total",
				Help:      "Total number of reports emitted, by trigger (manual or auto).",
			},
			[]string{"trigger"},
		),
		deliveriesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "qwork",
				Name:      "report_deliveries_total",
				Help:      "Total number of reports delivered to remote storage.",
			},
		),
		autoEmitSkipsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "qwork",
				Name:      "auto_emission_skips_total",
				Help:      "Auto-emission attempts made redundant by a prior manual emission.",
			},
		),
		emissionFailedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "qwork",
				Name:      "emission_failures_total",
				Help:      "Total number of emission queue items that ended in failed state.",
			},
			[]string{"reason"},
		),
		queueRetriesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "qwork",
				Name:      "queue_retries_total",
				Help:      "Total number of emission queue retries scheduled.",
			},
		),
		emissionDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: "qwork",
				Name:      "emission_duration_seconds",
				Help:      "Time from batch conclusion to report emission in seconds.",
				Buckets:   prometheus.ExponentialBuckets(1, 2, 14),
			},
		),
		deliveryDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: "qwork",
				Name:      "delivery_duration_seconds",
				Help:      "Time from report emission to delivery in seconds.",
				Buckets:   prometheus.ExponentialBuckets(1, 2, 14),
			},
		),
		workerInflight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "qwork",
				Name:      "worker_inflight",
				Help:      "Current number of in-flight emission worker operations.",
			},
		),
	}

	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.httpRequestsTotal,
		m.httpRequestDuration,
		m.emissionsTotal,
		m.deliveriesTotal,
		m.autoEmitSkipsTotal,
		m.emissionFailedTotal,
		m.queueRetriesTotal,
		m.emissionDuration,
		m.deliveryDuration,
		m.workerInflight,
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
		// Avoid self-scrape noise for request counters.
		if path == "/metrics" {
			return err
		}

		m.recordHTTPRequest(c.Method(), path, statusFromResult(c, err), time.Since(start))
		return err
	}
}

func (m *Metrics) IncEmission(trigger string) {
	if m == nil {
		return
	}
	label := strings.TrimSpace(strings.ToLower(trigger))
	if label == "" {
		label = "manual"
	}
	m.emissionsTotal.WithLabelValues(label).Inc()
}

func (m *Metrics) IncDelivery() {
	if m == nil {
		return
	}
	m.deliveriesTotal.Inc()
}

func (m *Metrics) IncAutoEmitSkip() {
	if m == nil {
		return
	}
	m.autoEmitSkipsTotal.Inc()
}

func (m *Metrics) IncEmissionFailed(reason string) {
	if m == nil {
		return
	}
	label := strings.TrimSpace(strings.ToLower(reason))
	if label == "" {
		label = "unknown"
	}
	m.emissionFailedTotal.WithLabelValues(label).Inc()
}

func (m *Metrics) IncQueueRetry() {
	if m == nil {
		return
	}
	m.queueRetriesTotal.Inc()
}

func (m *Metrics) ObserveEmissionDuration(duration time.Duration) {
	if m == nil {
		return
	}
	m.emissionDuration.Observe(nonNegativeSeconds(duration))
}

func (m *Metrics) ObserveDeliveryDuration(duration time.Duration) {
	if m == nil {
		return
	}
	m.deliveryDuration.Observe(nonNegativeSeconds(duration))
}

func (m *Metrics) IncWorkerInFlight() {
	if m == nil {
		return
	}
	m.workerInflight.Inc()
}

func (m *Metrics) DecWorkerInFlight() {
	if m == nil {
		return
	}
	m.workerInflight.Dec()
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

func nonNegativeSeconds(duration time.Duration) float64 {
	seconds := duration.Seconds()
	if seconds < 0 {
		return 0
	}
	return seconds
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
