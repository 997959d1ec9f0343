package limiter

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/goodtune/screenguard/internal/metrics"
	"github.com/goodtune/screenguard/internal/notify"
	"github.com/goodtune/screenguard/internal/storage"
	"github.com/rs/zerolog"
)

// AppSource supplies the limited apps. storage.LimitedAppStore satisfies
// it, as does the OPA policy source.
type AppSource interface {
	GetAllLimitedAppsOnce(ctx context.Context) ([]storage.LimitedApp, error)
}

// Namer resolves the display name used in the dissuasion toast
type Namer interface {
	Name(app storage.LimitedApp) string
}

// Limiter enforces continuous-usage limits for one device.
//
// State methods (OnNewSession, CheckUsageLimits, OnSessionFinalized) must
// be called from a single goroutine. LoadLimitedAppSettings and Snapshot
// are safe from any goroutine.
type Limiter struct {
	source   AppSource
	notifier notify.Notifier
	namer    Namer
	logger   zerolog.Logger

	snapshot atomic.Pointer[Snapshot]
	version  atomic.Uint64

	state State
}

// New creates a limiter with an empty snapshot
func New(source AppSource, notifier notify.Notifier, namer Namer, logger zerolog.Logger) *Limiter {
	l := &Limiter{
		source:   source,
		notifier: notifier,
		namer:    namer,
		logger:   logger.With().Str("component", "limiter").Logger(),
	}
	empty, _ := NewSnapshot(0, time.Time{}, nil)
	l.snapshot.Store(empty)
	return l
}

// LoadLimitedAppSettings replaces the limited apps from the source. On
// failure the previous snapshot is kept.
func (l *Limiter) LoadLimitedAppSettings(ctx context.Context) error {
	apps, err := l.source.GetAllLimitedAppsOnce(ctx)
	if err != nil {
		metrics.LimitReloads.WithLabelValues("error").Inc()
		l.logger.Error().Err(err).Int("retained", l.Snapshot().Len()).Msg("Failed to load limited apps, keeping previous list")
		return fmt.Errorf("failed to load limited apps: %w", err)
	}

	snapshot, rejected := NewSnapshot(l.version.Add(1), time.Now(), apps)
	for _, app := range rejected {
		l.logger.Warn().
			Str("package", app.PackageName).
			Int64("time_limit_ms", app.TimeLimitMillis).
			Msg("Ignoring invalid limited app")
	}

	l.snapshot.Store(snapshot)
	metrics.LimitReloads.WithLabelValues("ok").Inc()
	metrics.LimitedApps.Set(float64(snapshot.Len()))

	l.logger.Info().
		Uint64("version", snapshot.Version).
		Int("apps", snapshot.Len()).
		Msg("Limited apps loaded")

	return nil
}

// Snapshot returns the current limited-app snapshot
func (l *Limiter) Snapshot() *Snapshot {
	return l.snapshot.Load()
}

// State returns a copy of the continuous-usage state
func (l *Limiter) State() State {
	return l.state
}

// OnNewSession starts continuous tracking for pkg when it is limited and
// clears any previous tracking otherwise.
func (l *Limiter) OnNewSession(pkg string, start time.Time) {
	l.state = l.state.Begin(l.Snapshot(), pkg, start)

	if app, _, ok := l.state.Tracked(); ok {
		metrics.TrackedApp.Set(1)
		l.logger.Debug().
			Str("package", pkg).
			Dur("limit", app.TimeLimit()).
			Time("start", start).
			Msg("Tracking limited app")
		return
	}
	metrics.TrackedApp.Set(0)
}

// CheckUsageLimits fires the warning and triple-action for pkg when their
// thresholds are reached. It returns the actions that fired. Markers are
// set even when dispatch fails.
func (l *Limiter) CheckUsageLimits(ctx context.Context, pkg string, now time.Time) []Action {
	next, actions := l.state.Check(pkg, now)
	l.state = next

	for _, action := range actions {
		metrics.InterventionsTotal.WithLabelValues(action.Kind.String(), action.App.PackageName).Inc()
		l.dispatch(ctx, action)
	}
	return actions
}

// OnSessionFinalized clears all tracked and marker state
func (l *Limiter) OnSessionFinalized() {
	l.state = l.state.Reset()
	metrics.TrackedApp.Set(0)
}

func (l *Limiter) dispatch(ctx context.Context, action Action) {
	logger := l.logger.With().
		Str("package", action.App.PackageName).
		Stringer("action", action.Kind).
		Dur("elapsed", action.Elapsed).
		Logger()

	switch action.Kind {
	case ActionWarning:
		logger.Info().Msg("Usage limit reached, showing warning")
		if err := l.notifier.ShowWarningNotification(ctx, action.App, action.Elapsed); err != nil {
			metrics.NotifyErrors.WithLabelValues("warning").Inc()
			logger.Error().Err(err).Msg("Failed to show warning notification")
		}

	case ActionTripleAction:
		logger.Info().Msg("Triple usage limit reached, redirecting")
		if err := l.notifier.BringAppToForeground(ctx, action.App.PackageName); err != nil {
			metrics.NotifyErrors.WithLabelValues("foreground").Inc()
			logger.Error().Err(err).Msg("Failed to bring app to foreground")
		}
		if err := l.notifier.ShowDissuasionToast(ctx, l.name(action.App)); err != nil {
			metrics.NotifyErrors.WithLabelValues("dissuasion").Inc()
			logger.Error().Err(err).Msg("Failed to show dissuasion toast")
		}
	}
}

func (l *Limiter) name(app storage.LimitedApp) string {
	if l.namer != nil {
		return l.namer.Name(app)
	}
	if app.DisplayName != "" {
		return app.DisplayName
	}
	return app.PackageName
}
