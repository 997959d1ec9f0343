package redis

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

// setupTestRedis creates a miniredis instance for testing Lua scripts
func setupTestRedis(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
	})

	return client, mr
}

func TestInsertSessionScript(t *testing.T) {
	client, mr := setupTestRedis(t)
	defer client.Close()

	ctx := context.Background()
	script := redis.NewScript(insertSessionScript)

	tests := []struct {
		name         string
		id           string
		durationMS   string
		wantTotal    string
		wantSessions string
	}{
		{"first session creates rollup", "s-1", "60000", "60000", "1"},
		{"second session increments rollup", "s-2", "30000", "90000", "2"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			keys := []string{
				sessionKey(tt.id),
				keySessions,
				dailyUsageKey("2024-05-06", "com.example.video"),
				dailyIndexKey("2024-05-06"),
				keyDailyDates,
			}
			args := []interface{}{
				tt.id,
				"com.example.video",
				"2024-05-06T10:00:00Z",
				"2024-05-06T10:01:00Z",
				tt.durationMS,
				"1715000000000",
				"2024-05-06",
				usageTTLSeconds,
			}

			if err := script.Run(ctx, client, keys, args...).Err(); err != nil {
				t.Fatalf("Script execution failed: %v", err)
			}

			usageKey := dailyUsageKey("2024-05-06", "com.example.video")
			if got := mr.HGet(usageKey, "total_ms"); got != tt.wantTotal {
				t.Errorf("total_ms = %q, want %q", got, tt.wantTotal)
			}
			if got := mr.HGet(usageKey, "sessions"); got != tt.wantSessions {
				t.Errorf("sessions = %q, want %q", got, tt.wantSessions)
			}
			if ok, _ := mr.SIsMember(dailyIndexKey("2024-05-06"), "com.example.video"); !ok {
				t.Error("Expected package in day index")
			}
		})
	}

	members, err := client.ZCard(ctx, keySessions).Result()
	if err != nil {
		t.Fatalf("ZCard failed: %v", err)
	}
	if members != 2 {
		t.Errorf("Expected 2 indexed sessions, got %d", members)
	}
}

func TestDeleteDayScript(t *testing.T) {
	client, mr := setupTestRedis(t)
	defer client.Close()

	ctx := context.Background()

	for _, pkg := range []string{"com.example.a", "com.example.b"} {
		mr.HSet(dailyUsageKey("2024-01-01", pkg), "total_ms", "1000")
		if _, err := mr.SAdd(dailyIndexKey("2024-01-01"), pkg); err != nil {
			t.Fatalf("SAdd failed: %v", err)
		}
	}
	if _, err := mr.SAdd(keyDailyDates, "2024-01-01", "2024-01-02"); err != nil {
		t.Fatalf("SAdd failed: %v", err)
	}

	deleted, err := redis.NewScript(deleteDayScript).Run(ctx, client,
		[]string{dailyIndexKey("2024-01-01"), keyDailyDates},
		keyDailyPrefix+"2024-01-01:", "2024-01-01",
	).Int()
	if err != nil {
		t.Fatalf("Script execution failed: %v", err)
	}
	if deleted != 2 {
		t.Errorf("Expected 2 deleted rollups, got %d", deleted)
	}
	if mr.Exists(dailyIndexKey("2024-01-01")) {
		t.Error("Expected day index to be removed")
	}
	if ok, _ := mr.SIsMember(keyDailyDates, "2024-01-02"); !ok {
		t.Error("Expected other dates to remain")
	}
	if ok, _ := mr.SIsMember(keyDailyDates, "2024-01-01"); ok {
		t.Error("Expected deleted date to be removed from dates index")
	}
}
