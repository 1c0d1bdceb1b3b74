package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/jkaninda/shellguard/internal/admin"
	"github.com/jkaninda/shellguard/internal/observability"
	"github.com/jkaninda/shellguard/internal/ratelimit"
	"github.com/jkaninda/shellguard/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve [dir...]",
	Short: "Serve MCP over stdio, adding each dir to the whitelist first",
	Args:  cobra.ArbitraryArgs,
	RunE:  runServe,
}

// runServe starts the MCP stdio server and, when configured, the admin listener.
func runServe(_ *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := newLogger(cfg.LogLevel)
	// Libraries that log through the default logger must not reach stdout.
	slog.SetDefault(logger)

	sc, err := initShared(cfg, logger)
	if err != nil {
		return err
	}
	defer sc.Cleanup()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	for _, dir := range args {
		if err := sc.Whitelist.Add(ctx, dir); err != nil {
			return fmt.Errorf("whitelisting %s: %w", dir, err)
		}
		logger.Info("directory whitelisted", slog.String("dir", dir))
	}
	roots, err := sc.Whitelist.List(ctx)
	if err != nil {
		return fmt.Errorf("loading whitelist: %w", err)
	}
	logger.Info("starting shellguard",
		slog.String("version", version),
		slog.String("whitelist", sc.Whitelist.Path()),
		slog.Any("roots", roots),
		slog.String("shell", sc.Shell),
	)

	if cfg.Whitelist.Watch {
		go func() {
			if err := sc.Whitelist.Watch(ctx); err != nil {
				logger.Error("whitelist watch stopped", slog.String("error", err.Error()))
			}
		}()
	}

	stopSweep := sc.Sessions.Start(ctx)
	defer stopSweep()

	if cfg.Admin != nil {
		adminSrv := startAdmin(ctx, sc)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := adminSrv.Stop(shutdownCtx); err != nil {
				logger.Error("admin shutdown error", slog.String("error", err.Error()))
			}
		}()
	}

	var caller server.Caller = sc.ToolReg
	if rl := sc.Config.RateLimit; rl != nil && rl.RequestsPerMinute > 0 {
		caller = ratelimit.NewCaller(caller, ratelimit.Config{
			RequestsPerMinute: rl.RequestsPerMinute,
			BurstSize:         rl.BurstSize,
			Tools:             rl.Tools,
		}, logger)
		logger.Info("tool rate limit enabled", slog.Int("requests_per_minute", rl.RequestsPerMinute))
	}
	if sc.Obs.MetricsOrNil() != nil || sc.Obs.TracerOrNil() != nil {
		caller = observability.NewInstrumentedCaller(caller, sc.Obs.MetricsOrNil(), sc.Obs.TracerOrNil())
	}
	srv, err := server.New("shellguard", version, sc.ToolReg, logger, server.WithCaller(caller))
	if err != nil {
		return err
	}
	err = srv.Serve(ctx, os.Stdin, os.Stdout)
	logger.Info("shellguard stopped")
	return err
}

func startAdmin(ctx context.Context, sc *SharedComponents) *admin.Server {
	acfg := admin.Config{
		ListenAddr: sc.Config.Admin.ListenAddr,
		Metrics:    sc.Obs.MetricsOrNil(),
		Tracer:     sc.Obs.TracerOrNil(),
		Health:     sc.Obs.HealthOrNil(),
		Sessions:   sc.Sessions,
	}
	if m := sc.Obs.MetricsOrNil(); m != nil {
		acfg.MetricsRegistry = m.Registry
		if mc := sc.Config.Observability.Metrics; mc != nil {
			acfg.MetricsPath = mc.Path
		}
	}
	if sc.History != nil {
		acfg.History = sc.History
		acfg.HistoryLimit = sc.Config.History.Retain
	}

	srv := admin.New(acfg, sc.Logger)
	go func() {
		if err := srv.Start(ctx); err != nil {
			sc.Logger.Error("admin server error", slog.String("error", err.Error()))
		}
	}()
	return srv
}
