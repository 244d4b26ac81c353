package main

import (
	"context"
	"flag"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	nativecommon "campusfi/native/common"
	"campusfi/native/lending"
	"campusfi/native/risk"
	"campusfi/observability/logging"
	telemetry "campusfi/observability/otel"
	"campusfi/services/financed/config"
	"campusfi/services/financed/fixtures"
	"campusfi/services/financed/server"
	"campusfi/services/financed/storage"
)

func main() {
	var cfgPath string
	flag.StringVar(&cfgPath, "config", "services/financed/config.yaml", "path to financed config")
	flag.Parse()

	env := strings.TrimSpace(os.Getenv("CAMPUSFI_ENV"))
	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	logger := logging.SetupWithOptions("financed", env, logging.Options{
		Level:      logging.ParseLevel(cfg.Log.Level),
		File:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
	})

	shutdownTelemetry, err := telemetry.Init(context.Background(), telemetry.ConfigFromEnv("financed", env))
	if err != nil {
		log.Fatalf("init telemetry: %v", err)
	}
	defer func() {
		if shutdownTelemetry != nil {
			_ = shutdownTelemetry(context.Background())
		}
	}()

	lendingCfg := lending.DefaultConfig()
	if cfg.Lending.RatesPath != "" {
		if lendingCfg, err = lending.LoadConfig(cfg.Lending.RatesPath); err != nil {
			log.Fatalf("load lending rates: %v", err)
		}
	}
	engine, err := lending.NewEngineFromConfig(lendingCfg)
	if err != nil {
		log.Fatalf("lending engine: %v", err)
	}

	table := risk.DefaultTable()
	if cfg.Risk.BandsPath != "" {
		if table, err = risk.LoadTable(cfg.Risk.BandsPath); err != nil {
			log.Fatalf("load risk bands: %v", err)
		}
	}

	var seeds *fixtures.Set
	if cfg.FixturesPath != "" {
		if seeds, err = fixtures.Load(cfg.FixturesPath); err != nil {
			log.Fatalf("load fixtures: %v", err)
		}
	}

	dsn, err := storage.FileDSN(cfg.DatabasePath)
	if err != nil {
		log.Fatalf("database path: %v", err)
	}
	store, err := storage.Open(dsn)
	if err != nil {
		log.Fatalf("open storage: %v", err)
	}
	defer store.Close()

	limits := make(map[string]server.RateLimit, len(cfg.RateLimits))
	for name, l := range cfg.RateLimits {
		limits[name] = server.RateLimit{RequestsPerMinute: l.RequestsPerMinute, Burst: l.Burst}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	srv, err := server.New(ctx, server.Options{
		Config: server.Config{
			FeeBps:         cfg.AMM.FeeBps,
			Splits:         cfg.Tranche.Splits,
			Tokens:         cfg.Auth.Tokens,
			JWTSecret:      cfg.Auth.JWTSecret,
			JWTIssuer:      cfg.Auth.JWTIssuer,
			AllowAnonymous: cfg.Auth.AllowAnonymous,
			RateLimits:     limits,
			TrustedProxies: cfg.TrustedProxies,
		},
		Store:    store,
		Lending:  engine,
		Risk:     table,
		Fixtures: seeds,
		Pauses:   nativecommon.NewPauseSet(cfg.PausedModules...),
		Logger:   logger,
	})
	if err != nil {
		log.Fatalf("init server: %v", err)
	}
	if len(cfg.PausedModules) > 0 {
		logger.Warn("modules paused", slog.Any("modules", cfg.PausedModules))
	}
	if err := srv.Run(ctx, cfg.ListenAddress, cfg.ShutdownTimeout.Duration); err != nil {
		logger.Error("server stopped", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("shutdown complete")
}
