package bolt

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/goodtune/screenguard/internal/storage"
	"go.etcd.io/bbolt"
)

type sessionStore struct {
	db *bbolt.DB
}

func (s *sessionStore) InsertAppSession(ctx context.Context, session storage.AppSession) error {
	if session.ID == "" {
		return fmt.Errorf("session id is required")
	}
	data, err := marshal(session)
	if err != nil {
		return err
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		sessions := tx.Bucket([]byte(bucketSessions))
		if sessions == nil {
			return fmt.Errorf("sessions bucket missing")
		}
		key := []byte(sessionKey(session))
		if sessions.Get(key) != nil {
			return fmt.Errorf("session %s already exists", session.ID)
		}
		if err := sessions.Put(key, data); err != nil {
			return err
		}
		return incrementDailyUsage(tx, session)
	})
}

func incrementDailyUsage(tx *bbolt.Tx, session storage.AppSession) error {
	b := tx.Bucket([]byte(bucketDailyUsage))
	if b == nil {
		return fmt.Errorf("daily usage bucket missing")
	}
	key := []byte(dailyUsageKey(session.Date(), session.PackageName))
	usage := storage.DailyUsage{
		Date:        session.Date(),
		PackageName: session.PackageName,
	}
	if existing := b.Get(key); existing != nil {
		if err := unmarshal(existing, &usage); err != nil {
			return err
		}
	}
	usage.TotalMillis += session.DurationMillis
	usage.Sessions++
	data, err := marshal(usage)
	if err != nil {
		return err
	}
	return b.Put(key, data)
}

func (s *sessionStore) ListSessions(ctx context.Context, filter storage.SessionFilter) ([]storage.AppSession, error) {
	sessions := make([]storage.AppSession, 0)
	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(bucketSessions))
		if b == nil {
			return nil
		}
		// Keys sort by start time, so walk backwards for newest first.
		c := b.Cursor()
		for k, v := c.Last(); k != nil; k, v = c.Prev() {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			var session storage.AppSession
			if err := unmarshal(v, &session); err != nil {
				return err
			}
			if !filter.Matches(session) {
				continue
			}
			sessions = append(sessions, session)
			if filter.Limit > 0 && len(sessions) >= filter.Limit {
				return nil
			}
		}
		return nil
	})
	return sessions, err
}

func (s *sessionStore) GetDailyUsage(ctx context.Context, date string, packageName string) (*storage.DailyUsage, error) {
	return getBucketValue[storage.DailyUsage](ctx, s.db, bucketDailyUsage, dailyUsageKey(date, packageName))
}

func (s *sessionStore) ListDailyUsage(ctx context.Context, date string) ([]storage.DailyUsage, error) {
	prefix := date + "/"
	usages := make([]storage.DailyUsage, 0)
	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(bucketDailyUsage))
		if b == nil {
			return nil
		}
		c := b.Cursor()
		for k, v := c.Seek([]byte(prefix)); k != nil && len(k) >= len(prefix) && string(k[:len(prefix)]) == prefix; k, v = c.Next() {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			var usage storage.DailyUsage
			if err := unmarshal(v, &usage); err != nil {
				return err
			}
			usages = append(usages, usage)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(usages, func(i, j int) bool { return usages[i].TotalMillis > usages[j].TotalMillis })
	return usages, nil
}

func (s *sessionStore) DeleteSessionsBefore(ctx context.Context, cutoff time.Time) (int, error) {
	deleted := 0
	err := s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(bucketSessions))
		if b == nil {
			return nil
		}
		c := b.Cursor()
		for k, v := c.First(); k != nil; k, v = c.First() {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			var session storage.AppSession
			if err := unmarshal(v, &session); err != nil {
				return err
			}
			if !session.StartTime.Before(cutoff) {
				return nil
			}
			if err := b.Delete(k); err != nil {
				return err
			}
			deleted++
		}
		return nil
	})
	return deleted, err
}

func (s *sessionStore) DeleteDailyUsageBefore(ctx context.Context, cutoffDate string) (int, error) {
	cutoff, err := time.Parse(storage.DateLayout, cutoffDate)
	if err != nil {
		return 0, fmt.Errorf("invalid cutoff date: %w", err)
	}
	deleted := 0
	err = s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(bucketDailyUsage))
		if b == nil {
			return nil
		}
		// Deleting under a cursor skips the following key, so collect first.
		var stale [][]byte
		err := b.ForEach(func(k, v []byte) error {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			var usage storage.DailyUsage
			if err := unmarshal(v, &usage); err != nil {
				return err
			}
			date, err := time.Parse(storage.DateLayout, usage.Date)
			if err != nil {
				return nil
			}
			if date.Before(cutoff) {
				stale = append(stale, append([]byte(nil), k...))
			}
			return nil
		})
		if err != nil {
			return err
		}
		for _, k := range stale {
			if err := b.Delete(k); err != nil {
				return err
			}
			deleted++
		}
		return nil
	})
	return deleted, err
}

func sessionKey(session storage.AppSession) string {
	return fmt.Sprintf("%020d/%s", session.StartTime.UnixNano(), session.ID)
}

func dailyUsageKey(date, packageName string) string {
	return fmt.Sprintf("%s/%s", date, packageName)
}
