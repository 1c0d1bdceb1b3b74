package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// MetricsCollector holds all Prometheus metrics for shellguard.
// Uses a custom registry, no global state.
type MetricsCollector struct {
	Registry *prometheus.Registry

	// Tool call metrics.
	ToolCallsTotal   *prometheus.CounterVec
	ToolCallDuration *prometheus.HistogramVec

	// Command execution metrics.
	ExecutionsTotal   *prometheus.CounterVec
	ExecutionDuration *prometheus.HistogramVec

	// Confinement metrics.
	ConfinementChecksTotal *prometheus.CounterVec

	// Session metrics.
	SessionsActive          prometheus.Gauge
	SessionsCreatedTotal    prometheus.Counter
	SessionsTerminatedTotal *prometheus.CounterVec
	SessionLifetime         prometheus.Histogram

	// Whitelist metrics.
	WhitelistMutationsTotal *prometheus.CounterVec

	// HTTP admin metrics.
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	ActiveRequests      prometheus.Gauge
}

// NewMetricsCollector creates a MetricsCollector with all metrics registered
// on a custom prometheus.Registry.
func NewMetricsCollector() *MetricsCollector {
	reg := prometheus.NewRegistry()

	m := &MetricsCollector{
		Registry: reg,

		ToolCallsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "shellguard",
			Subsystem: "tool",
			Name:      "calls_total",
			Help:      "Total tool calls by outcome.",
		}, []string{"tool", "status"}),

		ToolCallDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "shellguard",
			Subsystem: "tool",
			Name:      "call_duration_seconds",
			Help:      "Tool call duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"tool"}),

		ExecutionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "shellguard",
			Subsystem: "exec",
			Name:      "runs_total",
			Help:      "Total one-shot command runs.",
		}, []string{"status"}),

		ExecutionDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "shellguard",
			Subsystem: "exec",
			Name:      "run_duration_seconds",
			Help:      "One-shot command duration in seconds.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 120},
		}, []string{"status"}),

		ConfinementChecksTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "shellguard",
			Subsystem: "sandbox",
			Name:      "confinement_checks_total",
			Help:      "Total path confinement checks.",
		}, []string{"result"}),

		SessionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "shellguard",
			Subsystem: "session",
			Name:      "active",
			Help:      "Number of live interactive sessions.",
		}),

		SessionsCreatedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "shellguard",
			Subsystem: "session",
			Name:      "created_total",
			Help:      "Total interactive sessions created.",
		}),

		SessionsTerminatedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "shellguard",
			Subsystem: "session",
			Name:      "terminated_total",
			Help:      "Total interactive sessions terminated, by reason.",
		}, []string{"reason"}),

		SessionLifetime: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "shellguard",
			Subsystem: "session",
			Name:      "lifetime_seconds",
			Help:      "Time from session creation to its last activity.",
			Buckets:   []float64{1, 10, 60, 300, 900, 1800, 3600, 14400},
		}),

		WhitelistMutationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "shellguard",
			Subsystem: "whitelist",
			Name:      "mutations_total",
			Help:      "Total whitelist add/remove operations.",
		}, []string{"op", "status"}),

		HTTPRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "shellguard",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests.",
		}, []string{"method", "path", "status_code"}),

		HTTPRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "shellguard",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "path"}),

		ActiveRequests: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "shellguard",
			Name:      "active_requests",
			Help:      "Number of currently active HTTP requests.",
		}),
	}

	reg.MustRegister(
		m.ToolCallsTotal,
		m.ToolCallDuration,
		m.ExecutionsTotal,
		m.ExecutionDuration,
		m.ConfinementChecksTotal,
		m.SessionsActive,
		m.SessionsCreatedTotal,
		m.SessionsTerminatedTotal,
		m.SessionLifetime,
		m.WhitelistMutationsTotal,
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.ActiveRequests,
	)

	return m
}
