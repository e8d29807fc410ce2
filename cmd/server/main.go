package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/viniciushammett/go-log-anomaly-scan/internal/api"
	"github.com/viniciushammett/go-log-anomaly-scan/internal/app"
	"github.com/viniciushammett/go-log-anomaly-scan/internal/config"
	"github.com/viniciushammett/go-log-anomaly-scan/internal/logger"
	"github.com/viniciushammett/go-log-anomaly-scan/internal/metrics"
	"github.com/viniciushammett/go-log-anomaly-scan/internal/tracing"
)

func main() {
	cfg, err := config.Load(env("CONFIG_PATH", "configs/config.yaml"))
	if err != nil {
		logger.New(os.Getenv("LOG_LEVEL")).Fatal().Err(err).Msg("load config")
	}
	log := logger.NewWithFile(cfg.Log.Level, logger.FileConfig{
		Path: cfg.Log.File, MaxSizeMB: cfg.Log.MaxSizeMB, MaxBackups: cfg.Log.MaxBackups, MaxAgeDays: cfg.Log.MaxAgeDays,
	})

	metrics.MustRegister()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Tracing
	closer, err := tracing.Init(ctx, cfg.Tracing, app.Version)
	if err != nil {
		log.Error().Err(err).Msg("tracing init failed")
	} else {
		defer func() { _ = closer(context.Background()) }()
	}

	// Store, cache, rules, notifier, detector
	a, err := app.Build(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("build")
	}
	defer a.Close()

	// API
	srv := api.NewServer(api.Deps{
		Log: log, Detector: a.Detector, AuthToken: cfg.AuthToken,
	}, api.Config{Addr: cfg.Server.Addr})
	if err := srv.Run(ctx); err != nil {
		log.Error().Err(err).Msg("server stopped")
	}
}

func env(k, d string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return d
}
