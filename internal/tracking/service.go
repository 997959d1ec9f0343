package tracking

import (
	"context"
	"time"

	"github.com/goodtune/screenguard/internal/limiter"
	"github.com/goodtune/screenguard/internal/metrics"
	"github.com/goodtune/screenguard/internal/monitor"
	"github.com/goodtune/screenguard/internal/storage"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Config configures session bookkeeping
type Config struct {
	// MinSessionDuration drops shorter sessions. Zero keeps everything.
	MinSessionDuration time.Duration
	// PersistTimeout bounds each session write. Zero waits indefinitely.
	PersistTimeout time.Duration
	// Clock ends the session flushed at shutdown. Nil uses the time of the
	// last event, which suits replays.
	Clock monitor.Clock
}

// SessionRecorder persists finalized sessions
type SessionRecorder interface {
	InsertAppSession(ctx context.Context, session storage.AppSession) error
}

// openSession is the single foreground session in progress
type openSession struct {
	pkg   string
	start time.Time
}

// Service bridges monitor events to session persistence and the limiter.
// Run is the only goroutine that touches session and limiter state.
type Service struct {
	recorder SessionRecorder
	limiter  *limiter.Limiter
	config   Config
	logger   zerolog.Logger

	current *openSession
	last    time.Time
}

// NewService creates a new tracking service
func NewService(recorder SessionRecorder, lim *limiter.Limiter, cfg Config, logger zerolog.Logger) *Service {
	return &Service{
		recorder: recorder,
		limiter:  lim,
		config:   cfg,
		logger:   logger.With().Str("component", "tracking").Logger(),
	}
}

// Run drains events in order until the context is cancelled or the stream
// closes, then flushes the open session.
func (s *Service) Run(ctx context.Context, events <-chan monitor.Event) {
	s.logger.Info().Msg("Tracking service started")

	defer func() {
		end := s.last
		if s.config.Clock != nil {
			end = s.config.Clock.Now()
		}
		// The run context may already be cancelled
		s.finalize(context.Background(), end)
		s.limiter.OnSessionFinalized()
		s.logger.Info().Msg("Tracking service stopped")
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-events:
			if !ok {
				return
			}
			s.HandleEvent(ctx, event)
		}
	}
}

// HandleEvent applies a single event
func (s *Service) HandleEvent(ctx context.Context, event monitor.Event) {
	if event.At.After(s.last) {
		s.last = event.At
	}

	switch event.Type {
	case monitor.Foreground:
		if s.currentPackage() != event.Package {
			s.finalize(ctx, event.At)
			s.limiter.OnSessionFinalized()
			s.begin(event.Package, event.At)
		}
		s.limiter.CheckUsageLimits(ctx, s.currentPackage(), event.At)

	case monitor.ScreenOff:
		s.logger.Debug().Time("at", event.At).Msg("Screen off")
		s.finalize(ctx, event.At)
		s.limiter.OnSessionFinalized()

	default:
		s.logger.Warn().Int("type", int(event.Type)).Msg("Ignoring unknown event")
	}
}

// ReloadLimits reloads the limiter's limited apps. It is safe to call from
// any goroutine.
func (s *Service) ReloadLimits(ctx context.Context) error {
	return s.limiter.LoadLimitedAppSettings(ctx)
}

// CurrentSession returns the open session, if any
func (s *Service) CurrentSession() (string, time.Time, bool) {
	if s.current == nil {
		return "", time.Time{}, false
	}
	return s.current.pkg, s.current.start, true
}

func (s *Service) currentPackage() string {
	if s.current == nil {
		return ""
	}
	return s.current.pkg
}

func (s *Service) begin(pkg string, at time.Time) {
	if pkg != "" {
		s.current = &openSession{pkg: pkg, start: at}
	}
	s.limiter.OnNewSession(pkg, at)
}

// finalize closes and persists the open session. Failures are logged and
// the session is dropped.
func (s *Service) finalize(ctx context.Context, end time.Time) {
	if s.current == nil {
		return
	}
	open := *s.current
	s.current = nil

	if end.Before(open.start) {
		end = open.start
	}
	duration := end.Sub(open.start)

	logger := s.logger.With().
		Str("package", open.pkg).
		Time("start", open.start).
		Dur("duration", duration).
		Logger()

	if duration < s.config.MinSessionDuration {
		metrics.SessionsPersisted.WithLabelValues("skipped").Inc()
		logger.Debug().Msg("Dropping short session")
		return
	}

	session := storage.AppSession{
		ID:             uuid.NewString(),
		PackageName:    open.pkg,
		StartTime:      open.start,
		EndTime:        end,
		DurationMillis: duration.Milliseconds(),
	}

	if s.config.PersistTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.config.PersistTimeout)
		defer cancel()
	}

	if err := s.recorder.InsertAppSession(ctx, session); err != nil {
		metrics.SessionsPersisted.WithLabelValues("error").Inc()
		logger.Error().Err(err).Msg("Failed to persist session, dropping it")
		return
	}

	metrics.SessionsPersisted.WithLabelValues("ok").Inc()
	metrics.SessionDuration.Observe(duration.Seconds())
	metrics.UsageSecondsConsumed.WithLabelValues(open.pkg).Add(duration.Seconds())
	logger.Debug().Str("session_id", session.ID).Msg("Session persisted")
}
