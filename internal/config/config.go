// Package config handles loading and validating shellguard configuration.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

func init() {
	// Load .env file if it exists
	_ = godotenv.Load()
}

// Environment variables that override file values.
const (
	EnvConfig      = "SHELLGUARD_CONFIG"
	EnvWorkspace   = "SHELLGUARD_WORKSPACE"
	EnvDefaultRoot = "SHELLGUARD_DEFAULT_ROOT"
	EnvShell       = "SHELLGUARD_SHELL"
	EnvHistoryDSN  = "SHELLGUARD_HISTORY_DSN"
	EnvLogLevel    = "SHELLGUARD_LOG_LEVEL"
)

// Config is the root configuration for shellguard.
type Config struct {
	Workspace     string               `json:"workspace,omitempty" yaml:"workspace,omitempty"`       // State directory. Default: ~/.shellguard. Override: SHELLGUARD_WORKSPACE.
	DefaultRoot   string               `json:"default_root,omitempty" yaml:"default_root,omitempty"` // Anchor for relative paths. Override: SHELLGUARD_DEFAULT_ROOT.
	Shell         string               `json:"shell,omitempty" yaml:"shell,omitempty"`               // Shell override. Override: SHELLGUARD_SHELL.
	LogLevel      string               `json:"log_level,omitempty" yaml:"log_level,omitempty"`       // debug|info|warn|error. Default: info.
	Whitelist     WhitelistConfig      `json:"whitelist" yaml:"whitelist"`
	Sessions      SessionsConfig       `json:"sessions" yaml:"sessions"`
	Exec          ExecConfig           `json:"exec" yaml:"exec"`
	Files         FileToolConfig       `json:"files" yaml:"files"`
	History       *HistoryConfig       `json:"history,omitempty" yaml:"history,omitempty"`             // nil = history disabled
	Observability *ObservabilityConfig `json:"observability,omitempty" yaml:"observability,omitempty"` // nil = observability disabled
	Admin         *AdminConfig         `json:"admin,omitempty" yaml:"admin,omitempty"`                 // nil = no admin listener
	RateLimit     *RateLimitConfig     `json:"rate_limit,omitempty" yaml:"rate_limit,omitempty"`       // nil = unlimited
}

// RateLimitConfig throttles tool calls per tool.
type RateLimitConfig struct {
	RequestsPerMinute int      `json:"requests_per_minute" yaml:"requests_per_minute"`
	BurstSize         int      `json:"burst_size,omitempty" yaml:"burst_size,omitempty"` // Default: requests_per_minute.
	Tools             []string `json:"tools,omitempty" yaml:"tools,omitempty"`           // Empty = every tool.
}

// WhitelistConfig configures the approved-roots file.
type WhitelistConfig struct {
	Path  string `json:"path,omitempty" yaml:"path,omitempty"` // Default: <workspace>/whitelist.json.
	Watch bool   `json:"watch" yaml:"watch"`                   // Reload when the file changes on disk.
}

// SessionsConfig configures interactive sessions.
type SessionsConfig struct {
	IdleTimeout   Duration `json:"idle_timeout" yaml:"idle_timeout"`     // Default: 30m.
	SweepInterval Duration `json:"sweep_interval" yaml:"sweep_interval"` // Default: 1m. Minimum: 1s.
	SettleWindow  Duration `json:"settle_window" yaml:"settle_window"`   // Quiet period ending a drain. Default: 100ms.
	MaxWait       Duration `json:"max_wait" yaml:"max_wait"`             // Upper bound on a drain. Default: 2s.
	MaxSessions   *int     `json:"max_sessions,omitempty" yaml:"max_sessions,omitempty"`
}

// IdleTimeoutOrDefault returns the idle timeout with a default of 30m.
func (s SessionsConfig) IdleTimeoutOrDefault() time.Duration {
	return s.IdleTimeout.Or(30 * time.Minute)
}

// SweepIntervalOrDefault returns the sweep interval with a default of 1m.
func (s SessionsConfig) SweepIntervalOrDefault() time.Duration {
	return s.SweepInterval.Or(time.Minute)
}

// SettleWindowOrDefault returns the settle window with a default of 100ms.
func (s SessionsConfig) SettleWindowOrDefault() time.Duration {
	return s.SettleWindow.Or(100 * time.Millisecond)
}

// MaxWaitOrDefault returns the drain bound with a default of 2s.
func (s SessionsConfig) MaxWaitOrDefault() time.Duration {
	return s.MaxWait.Or(2 * time.Second)
}

// Limit returns the session cap. Default: 32. Zero means unlimited.
func (s SessionsConfig) Limit() int {
	if s.MaxSessions != nil {
		return *s.MaxSessions
	}
	return 32
}

// ExecConfig configures one-shot command execution.
type ExecConfig struct {
	Timeout        Duration `json:"timeout" yaml:"timeout"`                   // Default: 0 (no implicit timeout).
	MaxOutputBytes int      `json:"max_output_bytes" yaml:"max_output_bytes"` // Per stream. Default: 1 MiB.
}

// OutputLimit returns the per-stream output cap with a default of 1 MiB.
func (e ExecConfig) OutputLimit() int {
	if e.MaxOutputBytes > 0 {
		return e.MaxOutputBytes
	}
	return 1 << 20
}

// FileToolConfig configures the file tools.
type FileToolConfig struct {
	MaxFileSizeBytes int64 `json:"max_file_size_bytes" yaml:"max_file_size_bytes"` // Default: 10 MB.
}

// HistoryConfig configures the execution history store.
type HistoryConfig struct {
	Driver string `json:"driver" yaml:"driver"`                     // "sqlite" or "postgres". Empty disables history.
	Path   string `json:"path,omitempty" yaml:"path,omitempty"`     // SQLite file. Default: <workspace>/history.db.
	DSN    string `json:"dsn,omitempty" yaml:"dsn,omitempty"`       // PostgreSQL DSN. Override: SHELLGUARD_HISTORY_DSN.
	Retain int    `json:"retain,omitempty" yaml:"retain,omitempty"` // Rows returned by Recent. Default: 100.
}

// Enabled reports whether a history driver is configured.
func (h *HistoryConfig) Enabled() bool {
	return h != nil && h.Driver != ""
}

// ObservabilityConfig configures metrics, tracing and anomaly detection.
// When nil, all observability features are disabled with zero overhead.
type ObservabilityConfig struct {
	Metrics *MetricsConfig `json:"metrics,omitempty" yaml:"metrics,omitempty"`
	Tracing *TracingConfig `json:"tracing,omitempty" yaml:"tracing,omitempty"`
	Anomaly *AnomalyConfig `json:"anomaly,omitempty" yaml:"anomaly,omitempty"`
}

// MetricsConfig configures Prometheus metrics exposition.
type MetricsConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Path    string `json:"path" yaml:"path"` // Default: "/metrics"
}

// TracingConfig configures OpenTelemetry distributed tracing.
type TracingConfig struct {
	Enabled     bool    `json:"enabled" yaml:"enabled"`
	Endpoint    string  `json:"endpoint" yaml:"endpoint"`         // OTLP endpoint, e.g. "localhost:4317"
	Protocol    string  `json:"protocol" yaml:"protocol"`         // "grpc" or "http". Default: "grpc"
	ServiceName string  `json:"service_name" yaml:"service_name"` // Default: "shellguard"
	SampleRate  float64 `json:"sample_rate" yaml:"sample_rate"`   // 0.0-1.0. Default: 1.0
	Insecure    bool    `json:"insecure" yaml:"insecure"`
}

// AnomalyConfig configures rejection-rate anomaly detection.
type AnomalyConfig struct {
	Enabled                bool    `json:"enabled" yaml:"enabled"`
	RejectionRateThreshold float64 `json:"rejection_rate_threshold" yaml:"rejection_rate_threshold"` // e.g. 0.5 = half of all calls rejected
	WindowSeconds          int     `json:"window_seconds" yaml:"window_seconds"`                     // Default: 300
}

// AdminConfig configures the optional HTTP admin listener.
type AdminConfig struct {
	ListenAddr string `json:"listen_addr" yaml:"listen_addr"` // e.g. "127.0.0.1:9464"
}

// DefaultConfigPath returns the default config file path (~/.shellguard/config.yaml).
func DefaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "shellguard.yaml"
	}
	return filepath.Join(home, ".shellguard", "config.yaml")
}

// Load reads a JSON or YAML config file and returns a validated Config.
// The format is detected by file extension: .yml/.yaml for YAML, everything
// else for JSON. A missing file yields the defaults. Environment variables
// take precedence over file values.
func Load(path string) (*Config, error) {
	var cfg Config

	if path != "" {
		resolved, err := resolvePath(path)
		if err != nil {
			return nil, fmt.Errorf("resolving config path %s: %w", path, err)
		}
		data, err := os.ReadFile(resolved)
		switch {
		case errors.Is(err, fs.ErrNotExist):
			// Defaults.
		case err != nil:
			return nil, fmt.Errorf("reading config %s: %w", resolved, err)
		default:
			if err := decode(resolved, data, &cfg); err != nil {
				return nil, err
			}
		}
	}

	cfg.applyEnv()

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

func decode(path string, data []byte, cfg *Config) error {
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yml", ".yaml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return fmt.Errorf("parsing YAML config %s: %w", path, err)
		}
	default:
		if err := json.Unmarshal(data, cfg); err != nil {
			return fmt.Errorf("parsing JSON config %s: %w", path, err)
		}
	}
	return nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv(EnvWorkspace); v != "" {
		c.Workspace = v
	}
	if v := os.Getenv(EnvDefaultRoot); v != "" {
		c.DefaultRoot = v
	}
	if v := os.Getenv(EnvShell); v != "" {
		c.Shell = v
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		c.LogLevel = v
	}
	if v := os.Getenv(EnvHistoryDSN); v != "" {
		if c.History == nil {
			c.History = &HistoryConfig{Driver: "postgres"}
		}
		c.History.DSN = v
	}
}

// resolvePath expands ~ to the user home directory and returns an absolute path.
func resolvePath(path string) (string, error) {
	if strings.HasPrefix(path, "~/") || path == "~" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		path = filepath.Join(home, path[1:])
	}
	return filepath.Abs(path)
}

// ResolvedDefaultRoot returns DefaultRoot with ~ expanded, or "".
func (c *Config) ResolvedDefaultRoot() string {
	if c.DefaultRoot == "" {
		return ""
	}
	resolved, err := resolvePath(c.DefaultRoot)
	if err != nil {
		return c.DefaultRoot
	}
	return resolved
}

// MetricsEnabled reports whether Prometheus metrics are on.
func (c *Config) MetricsEnabled() bool {
	return c.Observability != nil && c.Observability.Metrics != nil && c.Observability.Metrics.Enabled
}

func (c *Config) validate() error {
	switch strings.ToLower(c.LogLevel) {
	case "", "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("log_level %q is not supported (use debug, info, warn or error)", c.LogLevel)
	}
	durations := map[string]Duration{
		"sessions.idle_timeout":   c.Sessions.IdleTimeout,
		"sessions.sweep_interval": c.Sessions.SweepInterval,
		"sessions.settle_window":  c.Sessions.SettleWindow,
		"sessions.max_wait":       c.Sessions.MaxWait,
		"exec.timeout":            c.Exec.Timeout,
	}
	for name, d := range durations {
		if d < 0 {
			return fmt.Errorf("%s must not be negative", name)
		}
	}
	// The sweep is scheduled with one-second granularity.
	if iv := c.Sessions.SweepInterval; iv > 0 && time.Duration(iv) < time.Second {
		return fmt.Errorf("sessions.sweep_interval must be at least 1s, got %s", iv)
	}
	if c.Sessions.MaxSessions != nil && *c.Sessions.MaxSessions < 0 {
		return fmt.Errorf("sessions.max_sessions must not be negative")
	}
	if c.Exec.MaxOutputBytes < 0 {
		return fmt.Errorf("exec.max_output_bytes must not be negative")
	}
	if c.Files.MaxFileSizeBytes < 0 {
		return fmt.Errorf("files.max_file_size_bytes must not be negative")
	}
	if c.History != nil {
		switch c.History.Driver {
		case "", "sqlite":
		case "postgres":
			if c.History.DSN == "" {
				return fmt.Errorf("history.dsn is required for the postgres driver")
			}
		default:
			return fmt.Errorf("history.driver %q is not supported (use sqlite or postgres)", c.History.Driver)
		}
	}
	if c.Observability != nil && c.Observability.Tracing != nil && c.Observability.Tracing.Enabled {
		t := c.Observability.Tracing
		if t.Endpoint == "" {
			return fmt.Errorf("observability.tracing.endpoint is required when tracing is enabled")
		}
		switch t.Protocol {
		case "", "grpc", "http":
		default:
			return fmt.Errorf("observability.tracing.protocol %q is not supported (use grpc or http)", t.Protocol)
		}
		if t.SampleRate < 0 || t.SampleRate > 1 {
			return fmt.Errorf("observability.tracing.sample_rate must be between 0 and 1")
		}
	}
	if c.Admin != nil && c.Admin.ListenAddr == "" {
		return fmt.Errorf("admin.listen_addr is required when admin is configured")
	}
	return nil
}
