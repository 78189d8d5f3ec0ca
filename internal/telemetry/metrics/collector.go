// Package metrics exposes gateway metrics in the Prometheus format.
//
// Metrics:
//   - <ns>_requests_total: requests by status class and error code
//   - <ns>_request_duration_seconds: request latency histogram
//   - <ns>_documents_streamed_total: documents written to clients
//   - <ns>_stream_faults_total: responses aborted after the status was sent
//   - <ns>_pool_*: connection pool gauges and counters, read at scrape time
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/unifiedui/docdb-gateway/internal/config"
)

// Collector owns the gateway's Prometheus registry.
type Collector struct {
	enabled  bool
	registry *prometheus.Registry

	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	documentsTotal  prometheus.Counter
	streamFaults    prometheus.Counter
}

// NewCollector creates a collector. A nil registry gets a fresh one with the
// Go runtime and process collectors.
func NewCollector(cfg config.MetricsConfig, registry *prometheus.Registry) *Collector {
	if registry == nil {
		registry = prometheus.NewRegistry()
		registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}
	ns := cfg.Namespace
	if ns == "" {
		ns = "docdb_gateway"
	}

	c := &Collector{
		enabled:  cfg.Enabled,
		registry: registry,
		requestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: ns,
				Name:      "requests_total",
				Help:      "Total number of HTTP requests by route, status and error code",
			},
			[]string{"route", "status", "error"},
		),
		requestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: ns,
				Name:      "request_duration_seconds",
				Help:      "Duration of HTTP requests in seconds, including streaming",
				Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
			},
			[]string{"route"},
		),
		documentsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "documents_streamed_total",
			Help:      "Total number of documents written to clients",
		}),
		streamFaults: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "stream_faults_total",
			Help:      "Responses aborted after the status line was sent",
		}),
	}

	registry.MustRegister(c.requestsTotal, c.requestDuration, c.documentsTotal, c.streamFaults)
	return c
}

// Enabled reports whether metrics are collected.
func (c *Collector) Enabled() bool {
	return c != nil && c.enabled
}

// Registry returns the underlying registry.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// RecordDocuments adds n streamed documents.
func (c *Collector) RecordDocuments(n int) {
	if !c.Enabled() || n <= 0 {
		return
	}
	c.documentsTotal.Add(float64(n))
}

// RecordStreamFault counts one aborted response.
func (c *Collector) RecordStreamFault() {
	if !c.Enabled() {
		return
	}
	c.streamFaults.Inc()
}

// Middleware records request counts and latency. Routes are labelled by
// their pattern, never by the concrete path, to bound cardinality.
func (c *Collector) Middleware(errorCode func(*gin.Context) string) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		if !c.Enabled() {
			ctx.Next()
			return
		}

		start := time.Now()
		defer func() {
			route := ctx.FullPath()
			if route == "" {
				route = "unmatched"
			}
			code := ""
			if errorCode != nil {
				code = errorCode(ctx)
			}
			c.requestsTotal.WithLabelValues(route, strconv.Itoa(ctx.Writer.Status()), code).Inc()
			c.requestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
		}()

		ctx.Next()
	}
}

// Handler returns an HTTP handler for the Prometheus metrics endpoint.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
		ErrorHandling:     promhttp.ContinueOnError,
	})
}
