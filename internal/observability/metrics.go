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

const metricsNamespace = "notify_daemon"

// Cycle result labels.
const (
	CycleResultDispatched = "dispatched"
	CycleResultEmpty      = "empty"
	CycleResultFailed     = "failed"
)

// Metrics stores Prometheus collectors used by the daemon loop and the ops server.
type Metrics struct {
	registry *prometheus.Registry

	httpRequestsTotal       *prometheus.CounterVec
	httpRequestDuration     *prometheus.HistogramVec
	cyclesTotal             *prometheus.CounterVec
	clientsClaimedTotal     prometheus.Counter
	clientsFinalizedTotal   *prometheus.CounterVec
	finalizeFailuresTotal   prometheus.Counter
	channelDeliveriesTotal  *prometheus.CounterVec
	channelDeliveryDuration *prometheus.HistogramVec
	dispatchInflight        prometheus.Gauge
}

func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		httpRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "http_requests_total",
				Help:      "Total number of ops HTTP requests by method, path, and status.",
			},
			[]string{"method", "path", "status"},
		),
		httpRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Name:      "http_request_duration_seconds",
				Help:      "Ops HTTP request duration in seconds by method and path.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		cyclesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "cycles_total",
				Help:      "Total number of polling cycles grouped by result.",
			},
			[]string{"result"},
		),
		clientsClaimedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "clients_claimed_total",
				Help:      "Total number of pending clients claimed by this worker.",
			},
		),
		clientsFinalizedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "clients_finalized_total",
				Help:      "Total number of clients written back with a terminal status.",
			},
			[]string{"status"},
		),
		finalizeFailuresTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "finalize_failures_total",
				Help:      "Total number of final status updates that could not be stored.",
			},
		),
		channelDeliveriesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "channel_deliveries_total",
				Help:      "Total number of channel deliveries grouped by channel and result.",
			},
			[]string{"channel", "result"},
		),
		channelDeliveryDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Name:      "channel_delivery_duration_seconds",
				Help:      "Channel delivery duration in seconds grouped by channel.",
				Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
			},
			[]string{"channel"},
		),
		dispatchInflight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Name:      "dispatch_inflight",
				Help:      "Current number of client dispatches in progress.",
			},
		),
	}

	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.httpRequestsTotal,
		m.httpRequestDuration,
		m.cyclesTotal,
		m.clientsClaimedTotal,
		m.clientsFinalizedTotal,
		m.finalizeFailuresTotal,
		m.channelDeliveriesTotal,
		m.channelDeliveryDuration,
		m.dispatchInflight,
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

func (m *Metrics) IncCycle(result string) {
	if m == nil {
		return
	}
	resultLabel := strings.TrimSpace(strings.ToLower(result))
	if resultLabel == "" {
		resultLabel = "unknown"
	}
	m.cyclesTotal.WithLabelValues(resultLabel).Inc()
}

func (m *Metrics) AddClientsClaimed(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.clientsClaimedTotal.Add(float64(n))
}

func (m *Metrics) IncClientFinalized(status string) {
	if m == nil {
		return
	}
	m.clientsFinalizedTotal.WithLabelValues(normalizeLabel(status)).Inc()
}

func (m *Metrics) IncFinalizeFailure() {
	if m == nil {
		return
	}
	m.finalizeFailuresTotal.Inc()
}

func (m *Metrics) ObserveChannelDelivery(channel string, sent bool, duration time.Duration) {
	if m == nil {
		return
	}
	result := "failed"
	if sent {
		result = "sent"
	}
	channelLabel := normalizeLabel(channel)
	m.channelDeliveriesTotal.WithLabelValues(channelLabel, result).Inc()

	seconds := duration.Seconds()
	if seconds < 0 {
		seconds = 0
	}
	m.channelDeliveryDuration.WithLabelValues(channelLabel).Observe(seconds)
}

func (m *Metrics) IncDispatchInFlight() {
	if m == nil {
		return
	}
	m.dispatchInflight.Inc()
}

func (m *Metrics) DecDispatchInFlight() {
	if m == nil {
		return
	}
	m.dispatchInflight.Dec()
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

func normalizeLabel(value string) string {
	normalized := strings.ToLower(strings.TrimSpace(value))
	if normalized == "" {
		return "unknown"
	}
	return normalized
}
