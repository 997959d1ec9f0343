package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/goodtune/screenguard/internal/config"
	"github.com/goodtune/screenguard/internal/limiter"
	"github.com/goodtune/screenguard/internal/metrics"
	"github.com/goodtune/screenguard/internal/monitor"
	"github.com/goodtune/screenguard/internal/notify"
	"github.com/goodtune/screenguard/internal/policy/opa"
	"github.com/goodtune/screenguard/internal/systemd"
	"github.com/goodtune/screenguard/internal/tracking"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the screenguard daemon",
	Long:  `Start the foreground monitor, session tracking, limit enforcement and metrics endpoint.`,
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	logger := setupLogger(cfg.Logging)
	log.Logger = logger

	logger.Info().
		Str("version", version).
		Str("config", configPath).
		Msg("Starting screenguard")

	sdListeners, err := systemd.GetListeners()
	if err != nil {
		return fmt.Errorf("failed to get systemd listeners: %w", err)
	}
	if sdListeners.Activated {
		logger.Info().Msg("Running with systemd socket activation")
	}

	store, err := openStorage(cfg.Storage)
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Error().Err(err).Msg("Failed to close storage")
		}
	}()

	logger.Info().Str("type", cfg.Storage.Type).Msg("Storage initialized")

	labeler, err := notify.NewLabeler(cfg.Labels, cfg.Notify.LabelCacheSize)
	if err != nil {
		return err
	}
	notifier := buildNotifier(cfg.Notify, labeler, logger)

	source, policyEngine, err := appSource(cfg, store, logger)
	if err != nil {
		return err
	}

	lim := limiter.New(source, notifier, labeler, logger)
	// A failed initial load leaves an empty list; SIGHUP retries
	_ = lim.LoadLimitedAppSettings(context.Background())

	service := tracking.NewService(store.Sessions(), lim, tracking.Config{
		MinSessionDuration: config.ParseDuration(cfg.Tracking.MinSessionDuration, 0),
		PersistTimeout:     config.ParseDuration(cfg.Tracking.PersistTimeout, 0),
		Clock:              monitor.RealClock{},
	}, logger)

	probe, closeProbe, err := buildProbe(cfg.Monitor, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize probe: %w", err)
	}
	defer func() {
		if err := closeProbe(); err != nil {
			logger.Error().Err(err).Msg("Failed to close probe")
		}
	}()

	poller := monitor.NewPoller(probe, monitor.Options{
		Interval: config.ParseDuration(cfg.Monitor.Interval, time.Second),
		Buffer:   cfg.Monitor.Buffer,
		Logger:   logger,
	})

	retention, err := tracking.NewRetentionScheduler(store.Sessions(), cfg.Retention.Days, cfg.Retention.DailyTime, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize retention scheduler: %w", err)
	}
	retention.Start()
	defer retention.Stop()

	var metricsServer *metrics.Server
	if cfg.Metrics.Enabled {
		metricsAddr := fmt.Sprintf("%s:%d", cfg.Metrics.BindAddress, cfg.Metrics.Port)
		metricsServer = metrics.NewServer(metricsAddr, logger)
		if sdListeners.Activated && sdListeners.Metrics != nil {
			metricsServer.SetListener(sdListeners.Metrics)
		}
		if err := metricsServer.Start(); err != nil {
			return fmt.Errorf("failed to start metrics server: %w", err)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		poller.Run(ctx)
	}()
	go func() {
		defer wg.Done()
		service.Run(ctx, poller.Events())
	}()

	reload := func() {
		if err := systemd.NotifyReloading(); err != nil {
			logger.Debug().Err(err).Msg("Failed to send systemd reloading notification")
		}
		reloadLimits(ctx, service, policyEngine, logger)
		if err := systemd.NotifyReady(); err != nil {
			logger.Debug().Err(err).Msg("Failed to send systemd ready notification")
		}
	}

	var reloadTicks <-chan time.Time
	if interval := config.ParseDuration(cfg.Limits.ReloadInterval, 0); interval > 0 {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		reloadTicks = ticker.C
	}

	var watchdogTicks <-chan time.Time
	if interval := systemd.WatchdogInterval(); interval > 0 {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		watchdogTicks = ticker.C
	}

	logger.Info().
		Str("probe", cfg.Monitor.Probe).
		Str("limits", cfg.Limits.Source).
		Int("limited_apps", lim.Snapshot().Len()).
		Msg("screenguard startup complete")

	if err := systemd.NotifyReady(); err != nil {
		logger.Warn().Err(err).Msg("Failed to send systemd ready notification")
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM, syscall.SIGHUP)
	defer signal.Stop(sigChan)

loop:
	for {
		select {
		case sig := <-sigChan:
			if sig == syscall.SIGHUP {
				logger.Info().Msg("SIGHUP received, reloading limited apps")
				reload()
				continue
			}
			logger.Info().Msg("Shutdown signal received, gracefully stopping...")
			break loop

		case <-reloadTicks:
			reloadLimits(ctx, service, policyEngine, logger)

		case <-watchdogTicks:
			if err := systemd.NotifyWatchdog(); err != nil {
				logger.Warn().Err(err).Msg("Failed to send systemd watchdog notification")
			}
		}
	}

	if err := systemd.NotifyStopping(); err != nil {
		logger.Warn().Err(err).Msg("Failed to send systemd stopping notification")
	}

	// The service flushes the open session once the context ends
	cancel()
	wg.Wait()

	if metricsServer != nil {
		if err := metricsServer.Stop(); err != nil {
			logger.Error().Err(err).Msg("Error stopping metrics server")
		}
	}

	logger.Info().Msg("screenguard stopped")

	return nil
}

// reloadLimits re-reads policy files when OPA is the source, then swaps in
// a fresh limited-app snapshot. Failures keep the previous list.
func reloadLimits(ctx context.Context, service *tracking.Service, engine *opa.Engine, logger zerolog.Logger) {
	if engine != nil {
		if err := engine.Reload(); err != nil {
			logger.Error().Err(err).Msg("Failed to reload policies")
			return
		}
	}
	if err := service.ReloadLimits(ctx); err != nil {
		logger.Error().Err(err).Msg("Failed to reload limited apps")
	}
}
