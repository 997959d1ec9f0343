package tracking

import (
	"context"
	"fmt"
	"time"

	"github.com/goodtune/screenguard/internal/metrics"
	"github.com/goodtune/screenguard/internal/storage"
	"github.com/rs/zerolog"
)

// RetentionStore is the subset of the session store retention needs
type RetentionStore interface {
	DeleteSessionsBefore(ctx context.Context, cutoff time.Time) (int, error)
	DeleteDailyUsageBefore(ctx context.Context, cutoffDate string) (int, error)
}

// RetentionScheduler prunes usage history once a day
type RetentionScheduler struct {
	store    RetentionStore
	days     int
	runAt    time.Time // Time of day to prune (only hour and minute are used)
	now      func() time.Time
	logger   zerolog.Logger
	stopChan chan struct{}
	doneChan chan struct{}
}

// NewRetentionScheduler creates a new retention scheduler. A zero days
// value keeps history forever and the scheduler does nothing.
func NewRetentionScheduler(store RetentionStore, days int, runAt string, logger zerolog.Logger) (*RetentionScheduler, error) {
	parsedTime, err := time.Parse("15:04", runAt)
	if err != nil {
		return nil, fmt.Errorf("invalid retention time %q: %w", runAt, err)
	}

	return &RetentionScheduler{
		store:    store,
		days:     days,
		runAt:    parsedTime,
		now:      time.Now,
		logger:   logger.With().Str("component", "retention").Logger(),
		stopChan: make(chan struct{}),
		doneChan: make(chan struct{}),
	}, nil
}

// Start begins the retention scheduler
func (rs *RetentionScheduler) Start() {
	if rs.days <= 0 {
		close(rs.doneChan)
		rs.logger.Info().Msg("Retention disabled, keeping all history")
		return
	}

	go rs.run()
	rs.logger.Info().
		Str("run_at", rs.runAt.Format("15:04")).
		Int("days", rs.days).
		Msg("Retention scheduler started")
}

// Stop stops the retention scheduler
func (rs *RetentionScheduler) Stop() {
	close(rs.stopChan)
	<-rs.doneChan
	rs.logger.Info().Msg("Retention scheduler stopped")
}

// run is the main scheduler loop
func (rs *RetentionScheduler) run() {
	defer close(rs.doneChan)

	for {
		nextRun := rs.calculateNextRun()
		waitDuration := nextRun.Sub(rs.now())

		rs.logger.Info().
			Time("next_run", nextRun).
			Dur("wait_duration", waitDuration).
			Msg("Scheduled next retention run")

		timer := time.NewTimer(waitDuration)
		select {
		case <-timer.C:
			if _, _, err := rs.Prune(context.Background()); err != nil {
				rs.logger.Error().Err(err).Msg("Retention run failed")
			}
		case <-rs.stopChan:
			timer.Stop()
			return
		}
	}
}

// calculateNextRun calculates the next run time
func (rs *RetentionScheduler) calculateNextRun() time.Time {
	now := rs.now()

	todayRun := time.Date(
		now.Year(), now.Month(), now.Day(),
		rs.runAt.Hour(), rs.runAt.Minute(), 0, 0,
		now.Location(),
	)

	// Already past today's run time, schedule for tomorrow
	if !now.Before(todayRun) {
		return todayRun.AddDate(0, 0, 1)
	}

	return todayRun
}

// Prune deletes sessions and daily rollups older than the retention period
func (rs *RetentionScheduler) Prune(ctx context.Context) (sessions int, days int, err error) {
	if rs.days <= 0 {
		return 0, 0, nil
	}

	cutoff := rs.now().AddDate(0, 0, -rs.days)
	cutoffDate := cutoff.UTC().Format(storage.DateLayout)

	sessions, err = rs.store.DeleteSessionsBefore(ctx, cutoff)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to prune sessions: %w", err)
	}
	metrics.RetentionDeleted.WithLabelValues("sessions").Add(float64(sessions))

	days, err = rs.store.DeleteDailyUsageBefore(ctx, cutoffDate)
	if err != nil {
		return sessions, 0, fmt.Errorf("failed to prune daily usage: %w", err)
	}
	metrics.RetentionDeleted.WithLabelValues("daily_usage").Add(float64(days))

	rs.logger.Info().
		Int("sessions_deleted", sessions).
		Int("daily_rows_deleted", days).
		Str("cutoff_date", cutoffDate).
		Msg("Old usage history pruned")

	return sessions, days, nil
}
