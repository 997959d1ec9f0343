package tracking

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

type fakeRetentionStore struct {
	sessionCutoff time.Time
	dateCutoff    string
	sessionErr    error
	calls         int
}

func (s *fakeRetentionStore) DeleteSessionsBefore(ctx context.Context, cutoff time.Time) (int, error) {
	s.calls++
	s.sessionCutoff = cutoff
	if s.sessionErr != nil {
		return 0, s.sessionErr
	}
	return 3, nil
}

func (s *fakeRetentionStore) DeleteDailyUsageBefore(ctx context.Context, cutoffDate string) (int, error) {
	s.dateCutoff = cutoffDate
	return 2, nil
}

func newTestRetention(t *testing.T, store RetentionStore, days int, now time.Time) *RetentionScheduler {
	t.Helper()
	rs, err := NewRetentionScheduler(store, days, "03:00", zerolog.Nop())
	if err != nil {
		t.Fatalf("NewRetentionScheduler failed: %v", err)
	}
	rs.now = func() time.Time { return now }
	return rs
}

func TestRetentionPruneCutoff(t *testing.T) {
	store := &fakeRetentionStore{}
	now := time.Date(2024, 3, 31, 12, 0, 0, 0, time.UTC)
	rs := newTestRetention(t, store, 30, now)

	sessions, days, err := rs.Prune(context.Background())
	if err != nil {
		t.Fatalf("Prune failed: %v", err)
	}
	if sessions != 3 || days != 2 {
		t.Errorf("Expected 3 sessions and 2 days deleted, got %d and %d", sessions, days)
	}

	if want := now.AddDate(0, 0, -30); !store.sessionCutoff.Equal(want) {
		t.Errorf("Expected session cutoff %v, got %v", want, store.sessionCutoff)
	}
	if store.dateCutoff != "2024-03-01" {
		t.Errorf("Expected date cutoff 2024-03-01, got %s", store.dateCutoff)
	}
}

func TestRetentionPruneDisabled(t *testing.T) {
	store := &fakeRetentionStore{}
	rs := newTestRetention(t, store, 0, time.Now())

	if _, _, err := rs.Prune(context.Background()); err != nil {
		t.Fatalf("Prune failed: %v", err)
	}
	if store.calls != 0 {
		t.Errorf("Expected no deletes with retention disabled, got %d", store.calls)
	}

	// Start and Stop must not block when disabled
	rs.Start()
	rs.Stop()
}

func TestRetentionPruneError(t *testing.T) {
	store := &fakeRetentionStore{sessionErr: errors.New("locked")}
	rs := newTestRetention(t, store, 7, time.Now())

	if _, _, err := rs.Prune(context.Background()); err == nil {
		t.Fatal("Expected error from failing store")
	}
	if store.dateCutoff != "" {
		t.Error("Daily usage should not be pruned after a session failure")
	}
}

func TestRetentionNextRun(t *testing.T) {
	tests := []struct {
		name string
		now  time.Time
		want time.Time
	}{
		{
			name: "before run time",
			now:  time.Date(2024, 1, 2, 1, 30, 0, 0, time.UTC),
			want: time.Date(2024, 1, 2, 3, 0, 0, 0, time.UTC),
		},
		{
			name: "exactly at run time",
			now:  time.Date(2024, 1, 2, 3, 0, 0, 0, time.UTC),
			want: time.Date(2024, 1, 3, 3, 0, 0, 0, time.UTC),
		},
		{
			name: "after run time",
			now:  time.Date(2024, 12, 31, 22, 0, 0, 0, time.UTC),
			want: time.Date(2025, 1, 1, 3, 0, 0, 0, time.UTC),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rs := newTestRetention(t, &fakeRetentionStore{}, 30, tt.now)
			if got := rs.calculateNextRun(); !got.Equal(tt.want) {
				t.Errorf("Expected next run %v, got %v", tt.want, got)
			}
		})
	}
}

func TestRetentionInvalidTime(t *testing.T) {
	if _, err := NewRetentionScheduler(&fakeRetentionStore{}, 30, "3am", zerolog.Nop()); err == nil {
		t.Error("Expected error for invalid run time")
	}
}

func TestRetentionStartStop(t *testing.T) {
	rs := newTestRetention(t, &fakeRetentionStore{}, 30, time.Now())
	rs.Start()

	done := make(chan struct{})
	go func() {
		rs.Stop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not return")
	}
}
