package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "mockserver"

// Planes.
const (
	PlaneControl = "control"
	PlaneData    = "data"
)

// Proxy outcomes.
const (
	OutcomeForwarded       = "forwarded"
	OutcomeVetoed          = "vetoed"
	OutcomeUpstreamError   = "upstream_error"
	OutcomeUpstreamTimeout = "upstream_timeout"
)

// Collector records server metrics on its own registry.
type Collector struct {
	registry *prometheus.Registry

	dispatchTotal    *prometheus.CounterVec
	proxyTotal       *prometheus.CounterVec
	upstreamDuration prometheus.Histogram
	abortedTotal     prometheus.Counter
}

// NewCollector creates a collector with a fresh registry.
func NewCollector() *Collector {
	registry := prometheus.NewRegistry()

	c := &Collector{
		registry: registry,
		dispatchTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "dispatch_total",
				Help:      "Requests answered, by plane, command and status code",
			},
			[]string{"plane", "command", "status"},
		),
		proxyTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "proxy_total",
				Help:      "Proxied requests by outcome",
			},
			[]string{"outcome"},
		),
		upstreamDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "upstream_duration_seconds",
				Help:      "Upstream round-trip latency in seconds",
				Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
			},
		),
		abortedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "aborted_requests_total",
				Help:      "Requests dropped because the body never completed",
			},
		),
	}

	registry.MustRegister(
		c.dispatchTotal,
		c.proxyTotal,
		c.upstreamDuration,
		c.abortedTotal,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return c
}

// Registry returns the underlying registry.
func (c *Collector) Registry() *prometheus.Registry {
	if c == nil {
		return nil
	}
	return c.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}

// ObserveExpectations registers a gauge that reads the live expectation
// count on every scrape.
func (c *Collector) ObserveExpectations(count func() int) {
	if c == nil || count == nil {
		return
	}
	c.registry.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "expectations",
			Help:      "Expectations currently registered",
		},
		func() float64 { return float64(count()) },
	))
}

// RecordDispatch counts one answered request.
func (c *Collector) RecordDispatch(plane, command string, status int) {
	if c == nil {
		return
	}
	c.dispatchTotal.WithLabelValues(plane, command, strconv.Itoa(status)).Inc()
}

// RecordProxy counts one proxy outcome.
func (c *Collector) RecordProxy(outcome string) {
	if c == nil {
		return
	}
	c.proxyTotal.WithLabelValues(outcome).Inc()
}

// ObserveUpstream records one upstream round trip.
func (c *Collector) ObserveUpstream(d time.Duration) {
	if c == nil {
		return
	}
	c.upstreamDuration.Observe(d.Seconds())
}

// RecordAborted counts one aborted request.
func (c *Collector) RecordAborted() {
	if c == nil {
		return
	}
	c.abortedTotal.Inc()
}
