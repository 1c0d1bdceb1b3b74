package observability

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/jkaninda/shellguard/internal/sandbox"
	"github.com/jkaninda/shellguard/internal/session"
	"github.com/jkaninda/shellguard/internal/tools"
)

type toolKey struct{}

// ContextWithTool tags ctx with the tool being served, so lower layers can
// attribute confinement results to it.
func ContextWithTool(ctx context.Context, name string) context.Context {
	return context.WithValue(ctx, toolKey{}, name)
}

// ToolFromContext returns the tool name set by ContextWithTool, or "unknown".
func ToolFromContext(ctx context.Context) string {
	if name, ok := ctx.Value(toolKey{}).(string); ok && name != "" {
		return name
	}
	return "unknown"
}

func tracerOf(ts *TracerSetup) trace.Tracer {
	if ts == nil {
		return nil
	}
	return ts.Tracer()
}

func statusOf(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}

// --- InstrumentedCaller ---

// Caller dispatches a tool call by name. *tools.Registry satisfies it.
type Caller interface {
	Call(ctx context.Context, name string, params map[string]any) *tools.Result
}

// InstrumentedCaller wraps a Caller with per-tool metrics and spans.
type InstrumentedCaller struct {
	inner   Caller
	metrics *MetricsCollector
	tracer  trace.Tracer
}

// NewInstrumentedCaller wraps inner with observability.
func NewInstrumentedCaller(inner Caller, metrics *MetricsCollector, ts *TracerSetup) *InstrumentedCaller {
	return &InstrumentedCaller{inner: inner, metrics: metrics, tracer: tracerOf(ts)}
}

func (c *InstrumentedCaller) Call(ctx context.Context, name string, params map[string]any) *tools.Result {
	ctx = ContextWithTool(ctx, name)

	var span trace.Span
	if c.tracer != nil {
		ctx, span = c.tracer.Start(ctx, "tool.call",
			trace.WithAttributes(attribute.String("tool.name", name)))
		defer span.End()
	}

	start := time.Now()
	res := c.inner.Call(ctx, name, params)
	duration := time.Since(start).Seconds()

	status := "success"
	if res == nil || !res.Success {
		status = "error"
	}
	if span != nil && status == "error" && res != nil {
		span.SetStatus(codes.Error, res.Message)
	}
	if c.metrics != nil {
		c.metrics.ToolCallsTotal.WithLabelValues(name, status).Inc()
		c.metrics.ToolCallDuration.WithLabelValues(name).Observe(duration)
	}
	return res
}

// --- InstrumentedRunner ---

// InstrumentedRunner wraps a sandbox.Runner with metrics and tracing.
type InstrumentedRunner struct {
	inner   sandbox.Runner
	metrics *MetricsCollector
	tracer  trace.Tracer
}

// NewInstrumentedRunner wraps a one-shot command runner with observability.
func NewInstrumentedRunner(inner sandbox.Runner, metrics *MetricsCollector, ts *TracerSetup) *InstrumentedRunner {
	return &InstrumentedRunner{inner: inner, metrics: metrics, tracer: tracerOf(ts)}
}

func (r *InstrumentedRunner) Run(ctx context.Context, req sandbox.ExecutionRequest) (*sandbox.ExecutionResult, error) {
	var span trace.Span
	if r.tracer != nil {
		ctx, span = r.tracer.Start(ctx, "exec.run",
			trace.WithAttributes(
				attribute.Int("exec.args", len(req.Args)),
				attribute.String("exec.dir", req.Dir),
			))
		defer span.End()
	}

	start := time.Now()
	res, err := r.inner.Run(ctx, req)
	duration := time.Since(start).Seconds()

	status := statusOf(err)
	if err == nil && res.ExitCode != 0 {
		status = "nonzero"
	}

	if span != nil {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		} else {
			span.SetAttributes(attribute.Int("exec.exit_code", res.ExitCode))
		}
	}
	if r.metrics != nil {
		r.metrics.ExecutionsTotal.WithLabelValues(status).Inc()
		r.metrics.ExecutionDuration.WithLabelValues(status).Observe(duration)
	}
	return res, err
}

// --- InstrumentedConfiner ---

// Confiner is the path check surface shared by the tools and the executor.
type Confiner interface {
	Confine(ctx context.Context, candidate, base string) sandbox.ValidationResult
	AssertConfined(ctx context.Context, candidate, base string) (string, error)
}

// InstrumentedConfiner counts confinement outcomes and feeds the anomaly
// detector, keyed by the tool found in ctx.
type InstrumentedConfiner struct {
	inner   Confiner
	metrics *MetricsCollector
	anomaly *AnomalyDetector
}

// NewInstrumentedConfiner wraps inner with observability.
func NewInstrumentedConfiner(inner Confiner, metrics *MetricsCollector, anomaly *AnomalyDetector) *InstrumentedConfiner {
	return &InstrumentedConfiner{inner: inner, metrics: metrics, anomaly: anomaly}
}

func (c *InstrumentedConfiner) Confine(ctx context.Context, candidate, base string) sandbox.ValidationResult {
	res := c.inner.Confine(ctx, candidate, base)
	c.record(ctx, res.OK)
	return res
}

func (c *InstrumentedConfiner) AssertConfined(ctx context.Context, candidate, base string) (string, error) {
	p, err := c.inner.AssertConfined(ctx, candidate, base)
	c.record(ctx, err == nil)
	return p, err
}

func (c *InstrumentedConfiner) record(ctx context.Context, ok bool) {
	result := "allowed"
	if !ok {
		result = "rejected"
	}
	if c.metrics != nil {
		c.metrics.ConfinementChecksTotal.WithLabelValues(result).Inc()
	}
	op := ToolFromContext(ctx)
	if ok {
		c.anomaly.RecordAllowed(op)
	} else {
		c.anomaly.RecordRejection(op)
	}
}

// --- InstrumentedWhitelist ---

// WhitelistStore is the mutable set of allowed roots.
type WhitelistStore interface {
	List(ctx context.Context) ([]string, error)
	Add(ctx context.Context, path string) error
	Remove(ctx context.Context, path string) error
}

// InstrumentedWhitelist counts whitelist mutations.
type InstrumentedWhitelist struct {
	inner   WhitelistStore
	metrics *MetricsCollector
}

// NewInstrumentedWhitelist wraps inner with mutation metrics.
func NewInstrumentedWhitelist(inner WhitelistStore, metrics *MetricsCollector) *InstrumentedWhitelist {
	return &InstrumentedWhitelist{inner: inner, metrics: metrics}
}

func (w *InstrumentedWhitelist) List(ctx context.Context) ([]string, error) {
	return w.inner.List(ctx)
}

func (w *InstrumentedWhitelist) Add(ctx context.Context, path string) error {
	err := w.inner.Add(ctx, path)
	if w.metrics != nil {
		w.metrics.WhitelistMutationsTotal.WithLabelValues("add", statusOf(err)).Inc()
	}
	return err
}

func (w *InstrumentedWhitelist) Remove(ctx context.Context, path string) error {
	err := w.inner.Remove(ctx, path)
	if w.metrics != nil {
		w.metrics.WhitelistMutationsTotal.WithLabelValues("remove", statusOf(err)).Inc()
	}
	return err
}

// --- SessionMetrics ---

// SessionMetrics is a session.Observer that tracks the live session count
// and lifetimes.
type SessionMetrics struct {
	metrics *MetricsCollector
}

var _ session.Observer = (*SessionMetrics)(nil)

// NewSessionMetrics returns an observer, or nil when metrics are disabled.
func NewSessionMetrics(metrics *MetricsCollector) *SessionMetrics {
	if metrics == nil {
		return nil
	}
	return &SessionMetrics{metrics: metrics}
}

func (s *SessionMetrics) SessionCreated(session.Info) {
	s.metrics.SessionsCreatedTotal.Inc()
	s.metrics.SessionsActive.Inc()
}

func (s *SessionMetrics) SessionTerminated(info session.Info, reason session.Reason) {
	s.metrics.SessionsActive.Dec()
	s.metrics.SessionsTerminatedTotal.WithLabelValues(string(reason)).Inc()
	if !info.CreatedAt.IsZero() && info.LastActivityAt.After(info.CreatedAt) {
		s.metrics.SessionLifetime.Observe(info.LastActivityAt.Sub(info.CreatedAt).Seconds())
	}
}
