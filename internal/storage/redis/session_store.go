package redis

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/goodtune/screenguard/internal/storage"
	"github.com/redis/go-redis/v9"
)

type sessionStore struct {
	client       *redis.Client
	insertScript *redis.Script
	deleteDay    *redis.Script
}

// InsertAppSession writes the session and bumps the daily rollup atomically
func (s *sessionStore) InsertAppSession(ctx context.Context, session storage.AppSession) error {
	if session.ID == "" {
		return fmt.Errorf("session id is required")
	}

	date := session.Date()
	keys := []string{
		sessionKey(session.ID),
		keySessions,
		dailyUsageKey(date, session.PackageName),
		dailyIndexKey(date),
		keyDailyDates,
	}
	args := []interface{}{
		session.ID,
		session.PackageName,
		session.StartTime.Format(time.RFC3339Nano),
		session.EndTime.Format(time.RFC3339Nano),
		session.DurationMillis,
		session.StartTime.UnixMilli(),
		date,
		usageTTLSeconds,
	}

	return s.insertScript.Run(ctx, s.client, keys, args...).Err()
}

// ListSessions returns sessions newest first
func (s *sessionStore) ListSessions(ctx context.Context, filter storage.SessionFilter) ([]storage.AppSession, error) {
	rangeBy := &redis.ZRangeBy{Min: "-inf", Max: "+inf"}
	if filter.Since != nil {
		rangeBy.Min = strconv.FormatInt(filter.Since.UnixMilli(), 10)
	}
	if filter.Until != nil {
		rangeBy.Max = "(" + strconv.FormatInt(filter.Until.UnixMilli(), 10)
	}

	ids, err := s.client.ZRevRangeByScore(ctx, keySessions, rangeBy).Result()
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return []storage.AppSession{}, nil
	}

	pipe := s.client.Pipeline()
	cmds := make([]*redis.MapStringStringCmd, len(ids))
	for i, id := range ids {
		cmds[i] = pipe.HGetAll(ctx, sessionKey(id))
	}
	if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
		return nil, err
	}

	sessions := make([]storage.AppSession, 0, len(ids))
	for _, cmd := range cmds {
		data, err := cmd.Result()
		if err != nil || len(data) == 0 {
			// Expired by TTL but still indexed
			continue
		}
		session, err := parseAppSession(data)
		if err != nil {
			return nil, err
		}
		if !filter.Matches(*session) {
			continue
		}
		sessions = append(sessions, *session)
		if filter.Limit > 0 && len(sessions) >= filter.Limit {
			break
		}
	}

	return sessions, nil
}

// GetDailyUsage retrieves the rollup for a date and package
func (s *sessionStore) GetDailyUsage(ctx context.Context, date string, packageName string) (*storage.DailyUsage, error) {
	data, err := s.client.HGetAll(ctx, dailyUsageKey(date, packageName)).Result()
	if err != nil {
		return nil, err
	}
	return parseDailyUsage(data)
}

// ListDailyUsage returns all rollups for a date, largest first
func (s *sessionStore) ListDailyUsage(ctx context.Context, date string) ([]storage.DailyUsage, error) {
	packages, err := s.client.SMembers(ctx, dailyIndexKey(date)).Result()
	if err != nil {
		return nil, err
	}
	if len(packages) == 0 {
		return []storage.DailyUsage{}, nil
	}

	pipe := s.client.Pipeline()
	cmds := make([]*redis.MapStringStringCmd, len(packages))
	for i, pkg := range packages {
		cmds[i] = pipe.HGetAll(ctx, dailyUsageKey(date, pkg))
	}
	if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
		return nil, err
	}

	usages := make([]storage.DailyUsage, 0, len(packages))
	for _, cmd := range cmds {
		data, err := cmd.Result()
		if err != nil || len(data) == 0 {
			continue
		}
		usage, err := parseDailyUsage(data)
		if err != nil {
			return nil, err
		}
		usages = append(usages, *usage)
	}

	sort.Slice(usages, func(i, j int) bool { return usages[i].TotalMillis > usages[j].TotalMillis })
	return usages, nil
}

// DeleteSessionsBefore removes sessions that started before cutoff
func (s *sessionStore) DeleteSessionsBefore(ctx context.Context, cutoff time.Time) (int, error) {
	upper := "(" + strconv.FormatInt(cutoff.UnixMilli(), 10)
	ids, err := s.client.ZRangeByScore(ctx, keySessions, &redis.ZRangeBy{Min: "-inf", Max: upper}).Result()
	if err != nil {
		return 0, err
	}
	if len(ids) == 0 {
		return 0, nil
	}

	keys := make([]string, len(ids))
	members := make([]interface{}, len(ids))
	for i, id := range ids {
		keys[i] = sessionKey(id)
		members[i] = id
	}

	pipe := s.client.TxPipeline()
	pipe.Del(ctx, keys...)
	pipe.ZRem(ctx, keySessions, members...)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, err
	}

	return len(ids), nil
}

// DeleteDailyUsageBefore removes rollups for dates before cutoffDate.
// Rollups also carry a TTL, so this mostly catches shortened retention.
func (s *sessionStore) DeleteDailyUsageBefore(ctx context.Context, cutoffDate string) (int, error) {
	cutoff, err := time.Parse(storage.DateLayout, cutoffDate)
	if err != nil {
		return 0, fmt.Errorf("invalid cutoff date: %w", err)
	}

	dates, err := s.client.SMembers(ctx, keyDailyDates).Result()
	if err != nil {
		return 0, err
	}

	deleted := 0
	for _, date := range dates {
		day, err := time.Parse(storage.DateLayout, date)
		if err != nil || !day.Before(cutoff) {
			continue
		}
		n, err := s.deleteDay.Run(ctx, s.client,
			[]string{dailyIndexKey(date), keyDailyDates},
			keyDailyPrefix+date+":", date,
		).Int()
		if err != nil {
			return deleted, fmt.Errorf("delete rollups for %s: %w", date, err)
		}
		deleted += n
	}

	return deleted, nil
}
