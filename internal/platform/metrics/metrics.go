// README: Prometheus metrics for decisions, solves, mapping calls, pushes and HTTP.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics is safe to use as a nil pointer; every method is then a no-op.
type Metrics struct {
	registry *prometheus.Registry

	Decisions        *prometheus.CounterVec
	EvaluateDuration *prometheus.HistogramVec
	LedgerVerdicts   *prometheus.CounterVec
	SolveDuration    *prometheus.HistogramVec
	MappingCalls     *prometheus.CounterVec
	Pushes           *prometheus.CounterVec
	BreakerOpen      *prometheus.GaugeVec
	HTTPRequests     *prometheus.CounterVec
	HTTPDuration     *prometheus.HistogramVec
}

func New(namespace string) *Metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	m := &Metrics{registry: registry}

	m.Decisions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "decisions_total",
		Help:      "Order decisions by mode, status and reason code.",
	}, []string{"mode", "status", "reason"})

	m.EvaluateDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "evaluate_duration_seconds",
		Help:      "End-to-end order evaluation latency.",
		Buckets:   []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10},
	}, []string{"mode"})

	m.LedgerVerdicts = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "ledger_verdicts_total",
		Help:      "Anti-spam admission verdicts.",
	}, []string{"verdict"})

	m.SolveDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "solve_duration_seconds",
		Help:      "Route optimizer solve time.",
		Buckets:   []float64{.0005, .001, .005, .01, .05, .1, .25, .5},
	}, []string{"feasible"})

	m.MappingCalls = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "mapping_calls_total",
		Help:      "Calls to the mapping service by operation and result.",
	}, []string{"op", "result"})

	m.Pushes = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "pushes_total",
		Help:      "Push notifications by result.",
	}, []string{"result"})

	m.BreakerOpen = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "circuit_breaker_open",
		Help:      "1 while the named circuit breaker is open.",
	}, []string{"name"})

	m.HTTPRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "http_requests_total",
		Help:      "HTTP requests by method, route and status.",
	}, []string{"method", "path", "status"})

	m.HTTPDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request latency.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "path"})

	registry.MustRegister(
		m.Decisions, m.EvaluateDuration, m.LedgerVerdicts, m.SolveDuration,
		m.MappingCalls, m.Pushes, m.BreakerOpen, m.HTTPRequests, m.HTTPDuration,
	)
	return m
}

func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) ObserveDecision(mode, status, reason string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.Decisions.WithLabelValues(mode, status, reason).Inc()
	m.EvaluateDuration.WithLabelValues(mode).Observe(elapsed.Seconds())
}

func (m *Metrics) ObserveVerdict(verdict string) {
	if m == nil {
		return
	}
	m.LedgerVerdicts.WithLabelValues(verdict).Inc()
}

func (m *Metrics) ObserveSolve(elapsed time.Duration, feasible bool) {
	if m == nil {
		return
	}
	m.SolveDuration.WithLabelValues(strconv.FormatBool(feasible)).Observe(elapsed.Seconds())
}

func (m *Metrics) ObserveMapping(op string, err error) {
	if m == nil {
		return
	}
	m.MappingCalls.WithLabelValues(op, result(err)).Inc()
}

func (m *Metrics) ObservePush(err error) {
	if m == nil {
		return
	}
	m.Pushes.WithLabelValues(result(err)).Inc()
}

func (m *Metrics) SetBreaker(name string, open bool) {
	if m == nil {
		return
	}
	v := 0.0
	if open {
		v = 1
	}
	m.BreakerOpen.WithLabelValues(name).Set(v)
}

func (m *Metrics) ObserveHTTP(method, path string, status int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.HTTPRequests.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	m.HTTPDuration.WithLabelValues(method, path).Observe(elapsed.Seconds())
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
