// Package admin serves shellguard's optional HTTP admin surface: liveness,
// readiness, Prometheus metrics and read-only views of live sessions and
// execution history. It never exposes an execution endpoint.
package admin

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/jkaninda/okapi"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/jkaninda/shellguard/internal/history"
	"github.com/jkaninda/shellguard/internal/observability"
	"github.com/jkaninda/shellguard/internal/session"
)

const maxHistoryLimit = 1000

// Sessions is the read-only view of the session registry.
type Sessions interface {
	List() []session.Info
	Get(id string) (session.Info, error)
}

// Config wires the admin server to its data sources. Nil fields disable
// the matching endpoints.
type Config struct {
	ListenAddr      string
	MetricsPath     string // default "/metrics"
	MetricsRegistry *prometheus.Registry
	Metrics         *observability.MetricsCollector
	Tracer          *observability.TracerSetup
	Health          *observability.HealthChecker
	Sessions        Sessions
	History         history.Store
	HistoryLimit    int // rows returned when ?limit is absent; 0 leaves it to the store
}

// Server is the admin HTTP listener.
type Server struct {
	config Config
	okapi  *okapi.Okapi
	server *http.Server
	logger *slog.Logger
}

// New creates an admin server. Routes are mounted by Start.
func New(cfg Config, logger *slog.Logger) *Server {
	return &Server{
		config: cfg,
		okapi:  okapi.New(),
		logger: logger,
	}
}

// SessionList is the body of GET /v1/sessions.
type SessionList struct {
	Sessions []session.Info `json:"sessions"`
	Count    int            `json:"count"`
}

// HistoryList is the body of GET /v1/history.
type HistoryList struct {
	Events []history.Event `json:"events"`
	Count  int             `json:"count"`
}

// ErrorBody is returned for every non-2xx response.
type ErrorBody struct {
	Error string `json:"error"`
}

func (s *Server) routes() {
	if s.config.Metrics != nil || s.config.Tracer != nil {
		tracer := s.config.Tracer
		s.okapi.UseMiddleware(func(next http.Handler) http.Handler {
			if tracer == nil {
				return observability.HTTPMetricsMiddleware(s.config.Metrics, nil, next)
			}
			return observability.HTTPMetricsMiddleware(s.config.Metrics, tracer.Tracer(), next)
		})
	}

	s.okapi.Get("/healthz", s.handleLiveness)
	s.okapi.Get("/readyz", s.handleReadiness)

	if s.config.MetricsRegistry != nil {
		path := s.config.MetricsPath
		if path == "" {
			path = "/metrics"
		}
		s.okapi.HandleStd("GET", path, promhttp.HandlerFor(s.config.MetricsRegistry, promhttp.HandlerOpts{}).ServeHTTP)
	}

	v1 := s.okapi.Group("/v1")
	if s.config.Sessions != nil {
		v1.Get("/sessions", s.handleSessions)
		v1.Get("/sessions/{id}", s.handleSession)
	}
	if s.config.History != nil {
		v1.Get("/history", s.handleHistory)
	}
}

// Start mounts the routes and blocks serving until Stop or ctx is done.
func (s *Server) Start(ctx context.Context) error {
	s.routes()

	s.server = &http.Server{
		Addr:              s.config.ListenAddr,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
		BaseContext:       func(_ net.Listener) context.Context { return ctx },
	}

	s.logger.Info("admin server starting", slog.String("addr", s.config.ListenAddr))
	err := s.okapi.StartServer(s.server)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Stop gracefully shuts down the listener.
func (s *Server) Stop(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	s.logger.Info("admin server stopping")
	return s.okapi.Shutdown(s.server)
}

// --- Handlers ---

func (s *Server) handleLiveness(c *okapi.Context) error {
	return c.OK(observability.HealthStatus{Status: "ok"})
}

// handleReadiness runs all registered checks and answers 200 or 503.
func (s *Server) handleReadiness(c *okapi.Context) error {
	if s.config.Health == nil {
		return c.OK(observability.HealthStatus{Status: "ok"})
	}
	status := s.config.Health.CheckReady(c.Context())
	code := http.StatusOK
	if status.Status != "ok" {
		code = http.StatusServiceUnavailable
	}
	return c.JSON(code, status)
}

func (s *Server) handleSessions(c *okapi.Context) error {
	list := s.config.Sessions.List()
	return c.OK(SessionList{Sessions: list, Count: len(list)})
}

func (s *Server) handleSession(c *okapi.Context) error {
	info, err := s.config.Sessions.Get(c.Param("id"))
	if errors.Is(err, session.ErrSessionNotFound) {
		return c.JSON(http.StatusNotFound, ErrorBody{Error: err.Error()})
	}
	if err != nil {
		return c.JSON(http.StatusInternalServerError, ErrorBody{Error: err.Error()})
	}
	return c.OK(info)
}

func (s *Server) handleHistory(c *okapi.Context) error {
	filter, err := parseHistoryFilter(c.Request(), s.config.HistoryLimit)
	if err != nil {
		return c.JSON(http.StatusBadRequest, ErrorBody{Error: err.Error()})
	}
	events, err := s.config.History.Recent(c.Context(), filter)
	if err != nil {
		s.logger.Error("history query failed", slog.String("error", err.Error()))
		return c.JSON(http.StatusInternalServerError, ErrorBody{Error: "history query failed"})
	}
	return c.OK(HistoryList{Events: events, Count: len(events)})
}

// parseHistoryFilter reads ?kind=&session=&limit= from r.
func parseHistoryFilter(r *http.Request, defaultLimit int) (history.Filter, error) {
	q := r.URL.Query()
	f := history.Filter{
		Kind:      history.Kind(q.Get("kind")),
		SessionID: q.Get("session"),
		Limit:     min(defaultLimit, maxHistoryLimit),
	}
	switch f.Kind {
	case "", history.KindExecution, history.KindSessionCreated, history.KindSessionTerminated:
	default:
		return f, errors.New("unknown kind: " + string(f.Kind))
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return f, errors.New("limit must be a positive integer")
		}
		f.Limit = min(n, maxHistoryLimit)
	}
	return f, nil
}
