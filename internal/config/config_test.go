package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(p, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	return p
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got := cfg.Sessions.IdleTimeoutOrDefault(); got != 30*time.Minute {
		t.Errorf("idle timeout = %v", got)
	}
	if got := cfg.Sessions.SweepIntervalOrDefault(); got != time.Minute {
		t.Errorf("sweep interval = %v", got)
	}
	if got := cfg.Sessions.SettleWindowOrDefault(); got != 100*time.Millisecond {
		t.Errorf("settle window = %v", got)
	}
	if got := cfg.Sessions.MaxWaitOrDefault(); got != 2*time.Second {
		t.Errorf("max wait = %v", got)
	}
	if got := cfg.Sessions.Limit(); got != 32 {
		t.Errorf("session limit = %d", got)
	}
	if got := cfg.Exec.OutputLimit(); got != 1<<20 {
		t.Errorf("output limit = %d", got)
	}
	if cfg.History.Enabled() || cfg.MetricsEnabled() {
		t.Error("optional features enabled by default")
	}
}

func TestLoadYAML(t *testing.T) {
	p := writeFile(t, "cfg.yaml", `
default_root: /srv/work
shell: /bin/zsh
log_level: debug
whitelist:
  watch: true
sessions:
  idle_timeout: 5m
  settle_window: 250ms
  max_sessions: 0
exec:
  timeout: 30s
history:
  driver: sqlite
observability:
  metrics:
    enabled: true
admin:
  listen_addr: 127.0.0.1:9464
`)
	cfg, err := Load(p)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.DefaultRoot != "/srv/work" || cfg.Shell != "/bin/zsh" || !cfg.Whitelist.Watch {
		t.Errorf("cfg = %+v", cfg)
	}
	if got := cfg.Sessions.IdleTimeoutOrDefault(); got != 5*time.Minute {
		t.Errorf("idle timeout = %v", got)
	}
	if got := cfg.Sessions.SettleWindowOrDefault(); got != 250*time.Millisecond {
		t.Errorf("settle window = %v", got)
	}
	if got := cfg.Sessions.Limit(); got != 0 {
		t.Errorf("explicit zero session limit = %d", got)
	}
	if got := cfg.Exec.Timeout.Or(0); got != 30*time.Second {
		t.Errorf("exec timeout = %v", got)
	}
	if !cfg.History.Enabled() || !cfg.MetricsEnabled() || cfg.Admin.ListenAddr != "127.0.0.1:9464" {
		t.Errorf("optional sections not decoded: %+v", cfg)
	}
}

func TestLoadJSON(t *testing.T) {
	p := writeFile(t, "cfg.json", `{"sessions": {"idle_timeout": "90s", "max_wait": 1000000000}}`)
	cfg, err := Load(p)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got := cfg.Sessions.IdleTimeoutOrDefault(); got != 90*time.Second {
		t.Errorf("idle timeout = %v", got)
	}
	if got := cfg.Sessions.MaxWaitOrDefault(); got != time.Second {
		t.Errorf("max wait = %v", got)
	}
}

func TestEnvOverrides(t *testing.T) {
	p := writeFile(t, "cfg.yaml", "shell: /bin/sh\ndefault_root: /from/file\n")
	t.Setenv(EnvShell, "/bin/bash")
	t.Setenv(EnvDefaultRoot, "/from/env")
	t.Setenv(EnvWorkspace, "/tmp/ws")

	cfg, err := Load(p)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Shell != "/bin/bash" || cfg.DefaultRoot != "/from/env" || cfg.Workspace != "/tmp/ws" {
		t.Errorf("env overrides not applied: %+v", cfg)
	}
}

func TestHistoryDSNFromEnv(t *testing.T) {
	t.Setenv(EnvHistoryDSN, "postgres://u:p@localhost/db")
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.History == nil || cfg.History.Driver != "postgres" || cfg.History.DSN == "" {
		t.Errorf("history = %+v", cfg.History)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{"negative duration", "sessions:\n  idle_timeout: -1m\n", "sessions.idle_timeout"},
		{"bad duration", "exec:\n  timeout: soon\n", "invalid duration"},
		{"unknown history driver", "history:\n  driver: mysql\n", "history.driver"},
		{"postgres without dsn", "history:\n  driver: postgres\n", "history.dsn"},
		{"bad log level", "log_level: loud\n", "log_level"},
		{"tracing without endpoint", "observability:\n  tracing:\n    enabled: true\n", "endpoint"},
		{"admin without addr", "admin: {}\n", "listen_addr"},
		{"negative session limit", "sessions:\n  max_sessions: -1\n", "max_sessions"},
		{"sub-second sweep", "sessions:\n  sweep_interval: 500ms\n", "at least 1s"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Load(writeFile(t, "cfg.yaml", tc.content))
			if err == nil || !strings.Contains(err.Error(), tc.wantErr) {
				t.Errorf("Load error = %v, want containing %q", err, tc.wantErr)
			}
		})
	}
}
