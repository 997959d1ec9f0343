// Package storagetest holds behaviour checks shared by every storage backend.
package storagetest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/goodtune/screenguard/internal/storage"
)

// Run exercises a freshly opened, empty store.
func Run(t *testing.T, store storage.Store) {
	t.Helper()

	t.Run("InsertAndRollup", func(t *testing.T) { testInsertAndRollup(t, store) })
	t.Run("ListSessions", func(t *testing.T) { testListSessions(t, store) })
	t.Run("Retention", func(t *testing.T) { testRetention(t, store) })
	t.Run("LimitedApps", func(t *testing.T) { testLimitedApps(t, store) })
	t.Run("RollupDateIsUTC", func(t *testing.T) { testRollupDateIsUTC(t, store) })
}

var base = time.Date(2024, 1, 2, 9, 0, 0, 0, time.UTC)

func session(id, pkg string, start time.Time, d time.Duration) storage.AppSession {
	return storage.AppSession{
		ID:             id,
		PackageName:    pkg,
		StartTime:      start,
		EndTime:        start.Add(d),
		DurationMillis: d.Milliseconds(),
	}
}

func testInsertAndRollup(t *testing.T, store storage.Store) {
	ctx := context.Background()
	sessions := store.Sessions()

	if err := sessions.InsertAppSession(ctx, session("rollup-1", "com.example.video", base, 2*time.Minute)); err != nil {
		t.Fatalf("insert session: %v", err)
	}
	if err := sessions.InsertAppSession(ctx, session("rollup-2", "com.example.video", base.Add(time.Hour), 3*time.Minute)); err != nil {
		t.Fatalf("insert session: %v", err)
	}
	if err := sessions.InsertAppSession(ctx, session("rollup-3", "com.example.chat", base.Add(2*time.Hour), time.Minute)); err != nil {
		t.Fatalf("insert session: %v", err)
	}

	usage, err := sessions.GetDailyUsage(ctx, "2024-01-02", "com.example.video")
	if err != nil {
		t.Fatalf("get daily usage: %v", err)
	}
	if usage.Total() != 5*time.Minute {
		t.Errorf("expected 5m of video usage, got %s", usage.Total())
	}
	if usage.Sessions != 2 {
		t.Errorf("expected 2 sessions, got %d", usage.Sessions)
	}

	all, err := sessions.ListDailyUsage(ctx, "2024-01-02")
	if err != nil {
		t.Fatalf("list daily usage: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("expected 2 daily entries, got %d", len(all))
	}
	if all[0].PackageName != "com.example.video" {
		t.Errorf("expected largest usage first, got %s", all[0].PackageName)
	}

	if _, err := sessions.GetDailyUsage(ctx, "2024-01-03", "com.example.video"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("expected ErrNotFound for empty day, got %v", err)
	}
}

func testRollupDateIsUTC(t *testing.T, store storage.Store) {
	ctx := context.Background()
	sessions := store.Sessions()

	// 08:00 on the 22nd in Tokyo is 23:00 on the 21st in UTC
	tokyo := time.FixedZone("JST", 9*60*60)
	start := time.Date(2024, 1, 22, 8, 0, 0, 0, tokyo)
	if err := sessions.InsertAppSession(ctx, session("tz-1", "com.example.night", start, 4*time.Minute)); err != nil {
		t.Fatalf("insert session: %v", err)
	}

	usage, err := sessions.GetDailyUsage(ctx, "2024-01-21", "com.example.night")
	if err != nil {
		t.Fatalf("expected rollup under the UTC date: %v", err)
	}
	if usage.Total() != 4*time.Minute {
		t.Errorf("expected 4m of usage, got %s", usage.Total())
	}
	if _, err := sessions.GetDailyUsage(ctx, "2024-01-22", "com.example.night"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("expected no rollup under the local date, got %v", err)
	}
}

func testListSessions(t *testing.T, store storage.Store) {
	ctx := context.Background()
	sessions := store.Sessions()
	day := base.AddDate(0, 0, 10)

	for i, pkg := range []string{"com.example.a", "com.example.b", "com.example.a"} {
		s := session("list-"+pkg+"-"+string(rune('0'+i)), pkg, day.Add(time.Duration(i)*time.Minute), 30*time.Second)
		if err := sessions.InsertAppSession(ctx, s); err != nil {
			t.Fatalf("insert session: %v", err)
		}
	}

	since := day
	got, err := sessions.ListSessions(ctx, storage.SessionFilter{PackageName: "com.example.a", Since: &since})
	if err != nil {
		t.Fatalf("list sessions: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 sessions, got %d", len(got))
	}
	if !got[0].StartTime.After(got[1].StartTime) {
		t.Errorf("expected newest first, got %s then %s", got[0].StartTime, got[1].StartTime)
	}

	limited, err := sessions.ListSessions(ctx, storage.SessionFilter{Since: &since, Limit: 1})
	if err != nil {
		t.Fatalf("list sessions: %v", err)
	}
	if len(limited) != 1 {
		t.Fatalf("expected 1 session with limit, got %d", len(limited))
	}
	if limited[0].PackageName != "com.example.a" || !limited[0].StartTime.Equal(day.Add(2*time.Minute)) {
		t.Errorf("unexpected newest session: %+v", limited[0])
	}
}

func testRetention(t *testing.T, store storage.Store) {
	ctx := context.Background()
	sessions := store.Sessions()
	old := base.AddDate(0, 0, -30)

	if err := sessions.InsertAppSession(ctx, session("old-1", "com.example.old", old, time.Minute)); err != nil {
		t.Fatalf("insert session: %v", err)
	}

	deleted, err := sessions.DeleteSessionsBefore(ctx, base.AddDate(0, 0, -1))
	if err != nil {
		t.Fatalf("delete sessions: %v", err)
	}
	if deleted != 1 {
		t.Errorf("expected 1 deleted session, got %d", deleted)
	}

	deletedDays, err := sessions.DeleteDailyUsageBefore(ctx, base.AddDate(0, 0, -1).Format(storage.DateLayout))
	if err != nil {
		t.Fatalf("delete daily usage: %v", err)
	}
	if deletedDays != 1 {
		t.Errorf("expected 1 deleted daily entry, got %d", deletedDays)
	}

	if _, err := sessions.GetDailyUsage(ctx, old.Format(storage.DateLayout), "com.example.old"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("expected old rollup to be gone, got %v", err)
	}
	if _, err := sessions.GetDailyUsage(ctx, "2024-01-02", "com.example.video"); err != nil {
		t.Errorf("expected recent rollup to survive: %v", err)
	}
}

func testLimitedApps(t *testing.T, store storage.Store) {
	ctx := context.Background()
	apps := store.LimitedApps()

	if err := apps.Upsert(ctx, storage.LimitedApp{PackageName: "com.example.video", TimeLimitMillis: 0}); !errors.Is(err, storage.ErrInvalidLimitedApp) {
		t.Fatalf("expected ErrInvalidLimitedApp for zero limit, got %v", err)
	}

	for _, app := range []storage.LimitedApp{
		{PackageName: "com.example.video", TimeLimitMillis: (10 * time.Minute).Milliseconds(), DisplayName: "Video"},
		{PackageName: "com.example.game", TimeLimitMillis: (30 * time.Minute).Milliseconds()},
	} {
		if err := apps.Upsert(ctx, app); err != nil {
			t.Fatalf("upsert limited app: %v", err)
		}
	}

	// Overwrite keeps one record per package.
	if err := apps.Upsert(ctx, storage.LimitedApp{PackageName: "com.example.video", TimeLimitMillis: (15 * time.Minute).Milliseconds()}); err != nil {
		t.Fatalf("upsert limited app: %v", err)
	}

	all, err := apps.GetAllLimitedAppsOnce(ctx)
	if err != nil {
		t.Fatalf("list limited apps: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("expected 2 limited apps, got %d", len(all))
	}
	if all[0].PackageName != "com.example.game" {
		t.Errorf("expected apps sorted by package, got %s first", all[0].PackageName)
	}

	video, err := apps.Get(ctx, "com.example.video")
	if err != nil {
		t.Fatalf("get limited app: %v", err)
	}
	if video.TimeLimit() != 15*time.Minute {
		t.Errorf("expected 15m limit, got %s", video.TimeLimit())
	}

	if err := apps.Delete(ctx, "com.example.video"); err != nil {
		t.Fatalf("delete limited app: %v", err)
	}
	if err := apps.Delete(ctx, "com.example.video"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("expected ErrNotFound on second delete, got %v", err)
	}
	if _, err := apps.Get(ctx, "com.example.video"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("expected ErrNotFound after delete, got %v", err)
	}
}
