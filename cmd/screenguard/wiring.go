package main

import (
	"fmt"

	"github.com/goodtune/screenguard/internal/config"
	"github.com/goodtune/screenguard/internal/limiter"
	"github.com/goodtune/screenguard/internal/monitor"
	"github.com/goodtune/screenguard/internal/notify"
	"github.com/goodtune/screenguard/internal/policy/opa"
	"github.com/goodtune/screenguard/internal/storage"
	"github.com/goodtune/screenguard/internal/storage/bolt"
	"github.com/goodtune/screenguard/internal/storage/redis"
	"github.com/goodtune/screenguard/internal/storage/sqlite"
	"github.com/rs/zerolog"
)

func openStorage(cfg config.StorageConfig) (storage.Store, error) {
	switch cfg.Type {
	case "", "bolt":
		return bolt.Open(cfg.Path)
	case "sqlite":
		return sqlite.Open(cfg.Path)
	case "redis":
		return redis.Open(cfg.Redis)
	default:
		return nil, fmt.Errorf("unsupported storage type: %s", cfg.Type)
	}
}

// loadStore loads configuration and opens the configured store
func loadStore() (*config.Config, storage.Store, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	store, err := openStorage(cfg.Storage)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize storage: %w", err)
	}
	return cfg, store, nil
}

// appSource picks where limited apps come from. The OPA engine is returned
// separately so reloads can re-read policy files.
func appSource(cfg *config.Config, store storage.Store, logger zerolog.Logger) (limiter.AppSource, *opa.Engine, error) {
	if cfg.Limits.Source != "opa" {
		return store.LimitedApps(), nil, nil
	}

	engine, err := opa.NewEngine(cfg.Limits.PolicyDir, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize OPA engine: %w", err)
	}
	return engine, engine, nil
}

// buildNotifier assembles the configured notifiers
func buildNotifier(cfg config.NotifyConfig, labeler *notify.Labeler, logger zerolog.Logger) notify.Notifier {
	var notifiers notify.Multi
	if cfg.Log {
		notifiers = append(notifiers, notify.NewLogNotifier(logger))
	}
	if cfg.WarningCommand != "" || cfg.ForegroundCommand != "" || cfg.DissuasionCommand != "" {
		notifiers = append(notifiers, notify.NewCommandNotifier(notify.CommandConfig{
			Warning:    cfg.WarningCommand,
			Foreground: cfg.ForegroundCommand,
			Dissuasion: cfg.DissuasionCommand,
			Timeout:    config.ParseDuration(cfg.CommandTimeout, 0),
		}, labeler, logger))
	}
	return notifiers
}

// buildProbe creates the configured foreground probe. The returned close
// function releases any watcher.
func buildProbe(cfg config.MonitorConfig, logger zerolog.Logger) (monitor.Probe, func() error, error) {
	switch cfg.Probe {
	case "command":
		return &monitor.CommandProbe{Command: cfg.Command, ScreenCommand: cfg.ScreenCommand}, func() error { return nil }, nil
	case "file":
		probe, err := monitor.NewFileProbe(cfg.FilePath, logger)
		if err != nil {
			return nil, nil, err
		}
		return probe, probe.Close, nil
	default:
		return nil, nil, fmt.Errorf("unsupported monitor probe: %s", cfg.Probe)
	}
}
