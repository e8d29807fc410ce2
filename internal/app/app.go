// Package app wires configuration into a ready detector for the binaries.
package app

import (
	"context"
	"fmt"
	"io"

	"github.com/viniciushammett/go-log-anomaly-scan/internal/cache"
	"github.com/viniciushammett/go-log-anomaly-scan/internal/config"
	"github.com/viniciushammett/go-log-anomaly-scan/internal/detector"
	"github.com/viniciushammett/go-log-anomaly-scan/internal/drain"
	"github.com/viniciushammett/go-log-anomaly-scan/internal/logger"
	"github.com/viniciushammett/go-log-anomaly-scan/internal/ml"
	"github.com/viniciushammett/go-log-anomaly-scan/internal/model"
	"github.com/viniciushammett/go-log-anomaly-scan/internal/notify"
	"github.com/viniciushammett/go-log-anomaly-scan/internal/rules"
	"github.com/viniciushammett/go-log-anomaly-scan/internal/store"
)

// Version is set at build time with -ldflags "-X .../internal/app.Version=...".
var Version = "dev"

type App struct {
	Log      *logger.Logger
	Store    *store.Store
	Detector *detector.Detector

	closers []io.Closer
}

// Build opens the store and the configured record cache and returns a
// detector over them. Close releases both.
func Build(ctx context.Context, cfg *config.Config, log *logger.Logger) (*App, error) {
	a := &App{Log: log}

	db, err := store.Open(cfg.Storage.Path)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	a.Store = db
	a.closers = append(a.closers, db)

	rs, err := rules.LoadFromFile(cfg.RulesFile)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("load rules: %w", err)
	}
	for _, bad := range rs.Invalid {
		log.Warn().Str("rule", bad).Msg("invalid rule ignored")
	}

	var rc detector.RecordCache
	switch cfg.Cache.Backend {
	case "bolt":
		rc = db
	case "redis":
		rcache, err := cache.NewRedisCache(ctx, cfg.Cache.RedisAddr, cfg.Cache.RedisPassword, cfg.Cache.RedisDB, cfg.Cache.TTL)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.closers = append(a.closers, rcache)
		rc = rcache
	}

	a.Detector = detector.New(log, db, rc, rs,
		notify.NewSlack(cfg.Slack.Enabled, cfg.Slack.Webhook),
		DetectorConfig(cfg))
	log.Debug().Str("cache", cfg.Cache.Backend).Int("rules", len(rs.Items)).Msg("app ready")
	return a, nil
}

// DetectorConfig maps the analysis section onto detector settings.
func DetectorConfig(cfg *config.Config) detector.Config {
	return detector.Config{
		Defaults: model.Params{
			Window:      cfg.Analysis.Window,
			Sensitivity: cfg.Analysis.Sensitivity,
			Model:       cfg.Analysis.Model,
		},
		SyslogYear: cfg.Analysis.SyslogYear,
		MaxWindows: cfg.Analysis.MaxWindows,
		Drain: drain.Config{
			Depth:      cfg.Analysis.TemplateDepth,
			Similarity: cfg.Analysis.TemplateSimilarity,
		},
		Model: ml.Options{Trees: cfg.Analysis.Trees, Seed: cfg.Analysis.Seed},
	}
}

func (a *App) Close() error {
	var first error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil && first == nil {
			first = err
		}
	}
	a.closers = nil
	return first
}
