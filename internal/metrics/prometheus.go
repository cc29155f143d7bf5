package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "perfsight"

// promMetrics mirrors the in-memory stats as Prometheus series on a private
// registry, so tests can create collectors freely.
type promMetrics struct {
	registry *prometheus.Registry

	llmCalls     *prometheus.CounterVec
	llmDuration  *prometheus.HistogramVec
	promptChars  *prometheus.CounterVec
	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec
	activeJobs   prometheus.Gauge
}

func newPromMetrics() *promMetrics {
	reg := prometheus.NewRegistry()
	m := &promMetrics{
		registry: reg,
		llmCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "llm_calls_total",
			Help:      "Upstream LLM calls by operation and outcome.",
		}, []string{"operation", "outcome"}),
		llmDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "llm_call_duration_seconds",
			Help:      "Upstream LLM call latency.",
			Buckets:   []float64{0.25, 0.5, 1, 2, 5, 10, 20, 40, 80, 160},
		}, []string{"operation"}),
		promptChars: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "llm_prompt_chars_total",
			Help:      "Characters sent to the LLM.",
		}, []string{"operation"}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by route and status code.",
		}, []string{"method", "route", "code"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
		activeJobs: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_jobs",
			Help:      "Asynchronous analysis jobs currently running.",
		}),
	}
	reg.MustRegister(
		m.llmCalls, m.llmDuration, m.promptChars,
		m.httpRequests, m.httpDuration, m.activeJobs,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

func (m *promMetrics) observeCall(op string, d time.Duration, promptChars int, failed bool) {
	outcome := "ok"
	if failed {
		outcome = "error"
	}
	m.llmCalls.WithLabelValues(op, outcome).Inc()
	m.llmDuration.WithLabelValues(op).Observe(d.Seconds())
	m.promptChars.WithLabelValues(op).Add(float64(promptChars))
}

// RecordRequest records one served HTTP request.
func (c *Collector) RecordRequest(method, route string, status int, d time.Duration) {
	if c == nil {
		return
	}
	c.prom.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	c.prom.httpDuration.WithLabelValues(method, route).Observe(d.Seconds())
}

// JobStarted and JobFinished maintain the active jobs gauge.
func (c *Collector) JobStarted() {
	if c != nil {
		c.prom.activeJobs.Inc()
	}
}

func (c *Collector) JobFinished() {
	if c != nil {
		c.prom.activeJobs.Dec()
	}
}

// Handler exposes the collector in the Prometheus text format.
func (c *Collector) Handler() http.Handler {
	if c == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(c.prom.registry, promhttp.HandlerOpts{})
}
