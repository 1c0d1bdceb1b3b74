package observability

import (
	"log/slog"
	"sync"
	"time"

	"github.com/jkaninda/shellguard/internal/config"
)

const (
	defaultAnomalyWindow = 300 * time.Second
	minAnomalySamples    = 5
)

// AnomalyDetector flags bursts of confinement rejections. A client probing
// for paths outside the whitelist shows up as a high rejection rate on a
// single operation within the sliding window.
type AnomalyDetector struct {
	mu         sync.Mutex
	rejections map[string]*slidingWindow
	allowed    map[string]*slidingWindow
	flagged    map[string]bool
	cfg        *config.AnomalyConfig
	logger     *slog.Logger
	now        func() time.Time
}

type slidingWindow struct {
	entries []windowEntry
	window  time.Duration
}

type windowEntry struct {
	timestamp time.Time
	value     float64
}

// NewAnomalyDetector creates an anomaly detector from config.
func NewAnomalyDetector(cfg *config.AnomalyConfig, logger *slog.Logger) *AnomalyDetector {
	if cfg == nil {
		cfg = &config.AnomalyConfig{}
	}
	return &AnomalyDetector{
		rejections: make(map[string]*slidingWindow),
		allowed:    make(map[string]*slidingWindow),
		flagged:    make(map[string]bool),
		cfg:        cfg,
		logger:     logger,
		now:        time.Now,
	}
}

func (a *AnomalyDetector) windowDuration() time.Duration {
	if a.cfg.WindowSeconds <= 0 {
		return defaultAnomalyWindow
	}
	return time.Duration(a.cfg.WindowSeconds) * time.Second
}

// RecordRejection records a path rejected by confinement.
func (a *AnomalyDetector) RecordRejection(operation string) {
	if a == nil {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()

	a.window(a.rejections, operation).add(a.now(), 1)
	a.checkRejectionRate(operation)
}

// RecordAllowed records a path that passed confinement.
func (a *AnomalyDetector) RecordAllowed(operation string) {
	if a == nil {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()

	a.window(a.allowed, operation).add(a.now(), 1)
	a.checkRejectionRate(operation)
}

// RejectionRate returns the current rejection rate for operation and the
// number of samples it was computed from.
func (a *AnomalyDetector) RejectionRate(operation string) (rate float64, samples int) {
	if a == nil {
		return 0, 0
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	r, total := a.rate(operation)
	return r, int(total)
}

// Flagged reports whether operation is currently above the threshold.
func (a *AnomalyDetector) Flagged(operation string) bool {
	if a == nil {
		return false
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.flagged[operation]
}

func (a *AnomalyDetector) rate(operation string) (float64, float64) {
	now := a.now()
	rejected := a.window(a.rejections, operation).sum(now)
	total := rejected + a.window(a.allowed, operation).sum(now)
	if total == 0 {
		return 0, 0
	}
	return rejected / total, total
}

// checkRejectionRate logs once when an operation crosses the threshold and
// once when it recovers. Must be called with a.mu held.
func (a *AnomalyDetector) checkRejectionRate(operation string) {
	threshold := a.cfg.RejectionRateThreshold
	if threshold <= 0 {
		return
	}

	rate, total := a.rate(operation)
	if total < minAnomalySamples {
		return
	}

	above := rate > threshold
	if above == a.flagged[operation] {
		return
	}
	a.flagged[operation] = above
	if a.logger == nil {
		return
	}
	if above {
		a.logger.Warn("anomaly detected: high rejection rate",
			slog.String("operation", operation),
			slog.Float64("rejection_rate", rate),
			slog.Float64("threshold", threshold),
			slog.Float64("samples", total),
		)
		return
	}
	a.logger.Info("rejection rate back under threshold",
		slog.String("operation", operation),
		slog.Float64("rejection_rate", rate),
	)
}

func (a *AnomalyDetector) window(m map[string]*slidingWindow, key string) *slidingWindow {
	w, ok := m[key]
	if !ok {
		w = &slidingWindow{window: a.windowDuration()}
		m[key] = w
	}
	return w
}

func (w *slidingWindow) add(now time.Time, value float64) {
	w.entries = append(w.entries, windowEntry{timestamp: now, value: value})
	w.prune(now)
}

func (w *slidingWindow) sum(now time.Time) float64 {
	w.prune(now)
	var total float64
	for _, e := range w.entries {
		total += e.value
	}
	return total
}

// prune drops entries older than the window.
func (w *slidingWindow) prune(now time.Time) {
	cutoff := now.Add(-w.window)
	i := 0
	for i < len(w.entries) && w.entries[i].timestamp.Before(cutoff) {
		i++
	}
	if i > 0 {
		w.entries = w.entries[i:]
	}
}
