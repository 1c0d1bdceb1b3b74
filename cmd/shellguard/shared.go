package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	goutils "github.com/jkaninda/go-utils"

	"github.com/jkaninda/shellguard/internal/classifier"
	"github.com/jkaninda/shellguard/internal/config"
	"github.com/jkaninda/shellguard/internal/executor"
	"github.com/jkaninda/shellguard/internal/history"
	pgstore "github.com/jkaninda/shellguard/internal/history/postgres"
	sqlitestore "github.com/jkaninda/shellguard/internal/history/sqlite"
	"github.com/jkaninda/shellguard/internal/observability"
	"github.com/jkaninda/shellguard/internal/sandbox"
	"github.com/jkaninda/shellguard/internal/session"
	"github.com/jkaninda/shellguard/internal/tools"
	"github.com/jkaninda/shellguard/internal/tools/file"
	"github.com/jkaninda/shellguard/internal/tools/shell"
	"github.com/jkaninda/shellguard/internal/tools/sysinfo"
	wltools "github.com/jkaninda/shellguard/internal/tools/whitelist"
	"github.com/jkaninda/shellguard/internal/whitelist"
	"github.com/jkaninda/shellguard/internal/workspace"
)

// SharedComponents holds every initialized subsystem. Built once by
// initShared, torn down by Cleanup.
type SharedComponents struct {
	Config    *config.Config
	Logger    *slog.Logger
	Workspace *workspace.Workspace
	Obs       *observability.Observability

	Whitelist *whitelist.Store
	Confiner  tools.PathConfiner
	Sessions  *session.Registry
	Executor  *executor.Executor
	History   history.Store // nil = history disabled.
	ToolReg   *tools.Registry
	Shell     string

	cleanups []func()
}

// Cleanup runs all deferred cleanup functions in reverse order.
func (sc *SharedComponents) Cleanup() {
	for i := len(sc.cleanups) - 1; i >= 0; i-- {
		sc.cleanups[i]()
	}
}

func (sc *SharedComponents) addCleanup(fn func()) {
	sc.cleanups = append(sc.cleanups, fn)
}

// loadConfig reads the config named by SHELLGUARD_CONFIG or --config.
func loadConfig() (*config.Config, error) {
	return config.Load(goutils.Env(config.EnvConfig, configPath))
}

// newLogger returns a JSON logger on stderr. stdout carries the MCP stream.
func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn", "warning":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}

// openWhitelist builds the whitelist store without the rest of the stack.
func openWhitelist(cfg *config.Config, ws *workspace.Workspace, logger *slog.Logger) *whitelist.Store {
	var opts []whitelist.Option
	if root := cfg.ResolvedDefaultRoot(); root != "" {
		opts = append(opts, whitelist.WithPreferredRoot(root))
	}
	return whitelist.New(ws.Resolve(cfg.Whitelist.Path, ws.WhitelistPath()), logger, opts...)
}

// initShared wires the whole server. Callers must call sc.Cleanup() when done.
func initShared(cfg *config.Config, logger *slog.Logger) (*SharedComponents, error) {
	sc := &SharedComponents{
		Config: cfg,
		Logger: logger,
	}

	// Workspace.
	ws, err := workspace.New(cfg.Workspace)
	if err != nil {
		return nil, fmt.Errorf("initializing workspace: %w", err)
	}
	sc.Workspace = ws
	logger.Debug("workspace initialized", slog.String("root", ws.Root))

	sc.Shell = cfg.Shell
	if sc.Shell == "" {
		sc.Shell = sandbox.DefaultShell()
	}
	whitelistPath := ws.Resolve(cfg.Whitelist.Path, ws.WhitelistPath())

	// Observability.
	obs, err := observability.New(cfg.Observability, observability.ServiceInfo{
		Version:       version,
		Shell:         sc.Shell,
		WhitelistPath: whitelistPath,
		Workspace:     ws.Root,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("initializing observability: %w", err)
	}
	sc.Obs = obs
	sc.addCleanup(func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		obs.Shutdown(shutdownCtx)
	})
	if obs != nil {
		logger.Debug("observability initialized",
			slog.Bool("metrics", obs.Metrics != nil),
			slog.Bool("tracing", obs.Tracer != nil),
			slog.Bool("anomaly", obs.Anomaly != nil),
		)
	}
	metrics := obs.MetricsOrNil()

	// Whitelist and confinement.
	sc.Whitelist = openWhitelist(cfg, ws, logger)
	var roots sandbox.RootLister = sc.Whitelist
	var wlStore wltools.Store = sc.Whitelist
	if metrics != nil {
		instrumented := observability.NewInstrumentedWhitelist(sc.Whitelist, metrics)
		roots, wlStore = instrumented, instrumented
	}
	sc.Confiner = sandbox.NewConfiner(roots, cfg.ResolvedDefaultRoot())
	if metrics != nil || obs.AnomalyOrNil() != nil {
		sc.Confiner = observability.NewInstrumentedConfiner(sc.Confiner, metrics, obs.AnomalyOrNil())
	}
	logger.Debug("whitelist initialized", slog.String("path", sc.Whitelist.Path()))

	// History (optional).
	var recorder *history.Recorder
	if cfg.History.Enabled() {
		store, err := openHistory(cfg.History, ws, logger)
		if err != nil {
			sc.Cleanup()
			return nil, fmt.Errorf("initializing history: %w", err)
		}
		sc.History = store
		sc.addCleanup(func() {
			if err := store.Close(); err != nil {
				logger.Error("closing history store", slog.String("error", err.Error()))
			}
		})
		recorder = history.NewRecorder(store, logger)
		logger.Debug("history initialized", slog.String("driver", cfg.History.Driver))
	}

	// Health checks.
	if h := obs.HealthOrNil(); h != nil {
		h.AddCheck("whitelist", func(ctx context.Context) error {
			_, err := sc.Whitelist.List(ctx)
			return err
		})
		if sc.History != nil {
			h.AddCheck("history", sc.History.Ping)
		}
	}

	// Sessions.
	procs := sandbox.NewProcessController()
	var sessionOpts []session.Option
	if recorder != nil {
		sessionOpts = append(sessionOpts, session.WithObserver(recorder))
	}
	if sm := observability.NewSessionMetrics(metrics); sm != nil {
		sessionOpts = append(sessionOpts, session.WithObserver(sm))
	}
	sc.Sessions = session.NewRegistry(session.Config{
		IdleTimeout:   cfg.Sessions.IdleTimeoutOrDefault(),
		SweepInterval: cfg.Sessions.SweepIntervalOrDefault(),
		SettleWindow:  cfg.Sessions.SettleWindowOrDefault(),
		MaxWait:       cfg.Sessions.MaxWaitOrDefault(),
		MaxSessions:   cfg.Sessions.Limit(),
		Shell:         sc.Shell,
	}, procs, logger, sessionOpts...)
	sc.addCleanup(func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		sc.Sessions.Close(closeCtx)
	})

	// One-shot runner and executor.
	var runner sandbox.Runner = sandbox.NewProcessRunner(sandbox.ProcessConfig{
		Shell:          sc.Shell,
		DefaultTimeout: cfg.Exec.Timeout.Or(0),
		MaxOutputBytes: cfg.Exec.OutputLimit(),
	}, procs, logger)
	if metrics != nil || obs.TracerOrNil() != nil {
		runner = observability.NewInstrumentedRunner(runner, metrics, obs.TracerOrNil())
	}
	var rec executor.Recorder
	if recorder != nil {
		rec = recorder
	}
	sc.Executor = executor.New(sc.Confiner, classifier.New(), runner, sc.Sessions, rec, logger)

	// Tools.
	sc.ToolReg = tools.NewRegistry()
	sc.ToolReg.Register(
		shell.NewExecuteTool(sc.Executor, logger),
		shell.NewCreateSessionTool(sc.Confiner, sc.Sessions, logger),
		shell.NewWriteSessionTool(sc.Sessions, logger),
		shell.NewTerminateSessionTool(sc.Sessions, logger),
		shell.NewListSessionsTool(sc.Sessions),
		sysinfo.NewTool(roots, sc.Shell, version),
	)
	sc.ToolReg.Register(file.NewTools(sc.Confiner, file.Config{MaxFileSizeBytes: cfg.Files.MaxFileSizeBytes}, logger)...)
	sc.ToolReg.Register(wltools.NewTools(wlStore, sc.Confiner, logger)...)
	logger.Debug("tools registered", slog.Any("tools", sc.ToolReg.List()))

	return sc, nil
}

// openHistory opens the configured history backend.
func openHistory(cfg *config.HistoryConfig, ws *workspace.Workspace, logger *slog.Logger) (history.Store, error) {
	switch cfg.Driver {
	case history.DriverPostgres:
		return pgstore.Open(pgstore.Config{DSN: cfg.DSN}, logger)
	default:
		return sqlitestore.Open(sqlitestore.Config{Path: ws.Resolve(cfg.Path, ws.HistoryPath())}, logger)
	}
}
