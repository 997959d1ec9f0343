package redis

import (
	"fmt"
	"strconv"
	"time"

	"github.com/goodtune/screenguard/internal/storage"
)

// parseAppSession converts a Redis hash to AppSession
func parseAppSession(data map[string]string) (*storage.AppSession, error) {
	if len(data) == 0 {
		return nil, storage.ErrNotFound
	}

	startTime, err := time.Parse(time.RFC3339Nano, data["start_time"])
	if err != nil {
		return nil, fmt.Errorf("failed to parse start_time: %w", err)
	}

	endTime, err := time.Parse(time.RFC3339Nano, data["end_time"])
	if err != nil {
		return nil, fmt.Errorf("failed to parse end_time: %w", err)
	}

	durationMillis, err := strconv.ParseInt(data["duration_ms"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("failed to parse duration_ms: %w", err)
	}

	return &storage.AppSession{
		ID:             data["id"],
		PackageName:    data["package_name"],
		StartTime:      startTime,
		EndTime:        endTime,
		DurationMillis: durationMillis,
	}, nil
}

// parseDailyUsage converts a Redis hash to DailyUsage
func parseDailyUsage(data map[string]string) (*storage.DailyUsage, error) {
	if len(data) == 0 {
		return nil, storage.ErrNotFound
	}

	totalMillis, err := strconv.ParseInt(data["total_ms"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("failed to parse total_ms: %w", err)
	}

	sessions, err := strconv.ParseInt(data["sessions"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("failed to parse sessions: %w", err)
	}

	return &storage.DailyUsage{
		Date:        data["date"],
		PackageName: data["package_name"],
		TotalMillis: totalMillis,
		Sessions:    sessions,
	}, nil
}
