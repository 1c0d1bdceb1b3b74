package admin

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/jkaninda/shellguard/internal/config"
	"github.com/jkaninda/shellguard/internal/history"
	"github.com/jkaninda/shellguard/internal/observability"
	"github.com/jkaninda/shellguard/internal/session"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

type fakeSessions []session.Info

func (f fakeSessions) List() []session.Info { return f }
func (f fakeSessions) Get(id string) (session.Info, error) {
	for _, s := range f {
		if s.ID == id {
			return s, nil
		}
	}
	return session.Info{}, fmt.Errorf("%w: %s", session.ErrSessionNotFound, id)
}

type fakeHistory struct {
	events []history.Event
	got    history.Filter
	err    error
}

func (f *fakeHistory) Append(context.Context, history.Event) error { return nil }
func (f *fakeHistory) Recent(_ context.Context, filter history.Filter) ([]history.Event, error) {
	f.got = filter
	return f.events, f.err
}
func (f *fakeHistory) Ping(context.Context) error { return nil }
func (f *fakeHistory) Close() error               { return nil }

func freeAddr(t *testing.T) string {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	addr := l.Addr().String()
	_ = l.Close()
	return addr
}

// start runs an admin server and waits until /healthz answers.
func start(t *testing.T, cfg Config) string {
	t.Helper()
	cfg.ListenAddr = freeAddr(t)
	s := New(cfg, discard)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Start(ctx) }()
	t.Cleanup(func() {
		cancel()
		_ = s.Stop(context.Background())
		select {
		case <-done:
		case <-time.After(5 * time.Second):
			t.Error("admin server did not stop")
		}
	})

	base := "http://" + cfg.ListenAddr
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		resp, err := http.Get(base + "/healthz")
		if err == nil {
			resp.Body.Close()
			return base
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatal("admin server never became ready")
	return ""
}

func get(t *testing.T, url string, into any) int {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	defer resp.Body.Close()
	if into != nil {
		if err := json.NewDecoder(resp.Body).Decode(into); err != nil {
			t.Fatalf("decoding %s: %v", url, err)
		}
	}
	return resp.StatusCode
}

func TestEndpoints(t *testing.T) {
	obs, err := observability.New(&config.ObservabilityConfig{
		Metrics: &config.MetricsConfig{Enabled: true},
	}, observability.ServiceInfo{}, discard)
	if err != nil {
		t.Fatal(err)
	}
	obs.Health.AddCheck("whitelist", func(context.Context) error { return nil })

	now := time.Now().UTC().Truncate(time.Second)
	hist := &fakeHistory{events: []history.Event{{Kind: history.KindExecution, Command: "ls", CreatedAt: now}}}
	base := start(t, Config{
		MetricsRegistry: obs.Metrics.Registry,
		Metrics:         obs.Metrics,
		Health:          obs.Health,
		Sessions:        fakeSessions{{ID: "abc", Dir: "/w", Shell: "/bin/sh", CreatedAt: now, LastActivityAt: now}},
		History:         hist,
	})

	var health observability.HealthStatus
	if code := get(t, base+"/readyz", &health); code != http.StatusOK || health.Checks["whitelist"].Status != "ok" {
		t.Errorf("readyz = %d %+v", code, health)
	}

	var sessions SessionList
	if code := get(t, base+"/v1/sessions", &sessions); code != http.StatusOK || sessions.Count != 1 || sessions.Sessions[0].ID != "abc" {
		t.Errorf("sessions = %d %+v", code, sessions)
	}

	var one session.Info
	if code := get(t, base+"/v1/sessions/abc", &one); code != http.StatusOK || one.Dir != "/w" {
		t.Errorf("session = %d %+v", code, one)
	}
	var missing ErrorBody
	if code := get(t, base+"/v1/sessions/nope", &missing); code != http.StatusNotFound || !strings.Contains(missing.Error, "not found") {
		t.Errorf("missing session = %d %+v", code, missing)
	}

	var events HistoryList
	if code := get(t, base+"/v1/history?kind=execution&limit=5", &events); code != http.StatusOK || events.Count != 1 {
		t.Errorf("history = %d %+v", code, events)
	}
	if hist.got.Kind != history.KindExecution || hist.got.Limit != 5 {
		t.Errorf("filter = %+v", hist.got)
	}
	if code := get(t, base+"/v1/history?limit=-1", nil); code != http.StatusBadRequest {
		t.Errorf("bad limit = %d", code)
	}

	resp, err := http.Get(base + "/metrics")
	if err != nil {
		t.Fatal(err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if !strings.Contains(string(body), "shellguard_http_requests_total") {
		t.Errorf("metrics output missing http counter:\n%s", body)
	}
}

func TestReadinessDegraded(t *testing.T) {
	health := observability.NewHealthChecker(discard)
	health.AddCheck("history", func(context.Context) error { return errors.New("database is locked") })
	base := start(t, Config{Health: health})

	var status observability.HealthStatus
	if code := get(t, base+"/readyz", &status); code != http.StatusServiceUnavailable || status.Status != "degraded" {
		t.Errorf("readyz = %d %+v", code, status)
	}
	// Endpoints without a backing source are not mounted.
	if code := get(t, base+"/v1/sessions", nil); code != http.StatusNotFound {
		t.Errorf("sessions without registry = %d", code)
	}
}

func TestParseHistoryFilter(t *testing.T) {
	tests := []struct {
		query   string
		def     int
		want    history.Filter
		wantErr bool
	}{
		{"", 0, history.Filter{}, false},
		{"", 50, history.Filter{Limit: 50}, false},
		{"limit=7", 50, history.Filter{Limit: 7}, false},
		{"kind=session_created&session=s1", 0, history.Filter{Kind: history.KindSessionCreated, SessionID: "s1"}, false},
		{"limit=5000", 0, history.Filter{Limit: maxHistoryLimit}, false},
		{"limit=0", 0, history.Filter{}, true},
		{"limit=abc", 0, history.Filter{}, true},
		{"kind=bogus", 0, history.Filter{}, true},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			got, err := parseHistoryFilter(httptest.NewRequest(http.MethodGet, "/v1/history?"+tt.query, nil), tt.def)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && got != tt.want {
				t.Errorf("filter = %+v, want %+v", got, tt.want)
			}
		})
	}
}
