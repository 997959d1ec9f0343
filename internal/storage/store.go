package storage

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a record is missing from storage.
var ErrNotFound = errors.New("storage: record not found")

// ErrInvalidLimitedApp is returned when a limited app fails validation on write.
var ErrInvalidLimitedApp = errors.New("storage: invalid limited app")

// Store represents the root storage interface.
type Store interface {
	Close() error
	Sessions() SessionStore
	LimitedApps() LimitedAppStore
}

// SessionStore manages finished foreground sessions and their daily rollups.
type SessionStore interface {
	// InsertAppSession persists a finished session and adds its duration to
	// the daily rollup of the session's start date in the same write.
	InsertAppSession(ctx context.Context, session AppSession) error
	ListSessions(ctx context.Context, filter SessionFilter) ([]AppSession, error)
	GetDailyUsage(ctx context.Context, date string, packageName string) (*DailyUsage, error)
	ListDailyUsage(ctx context.Context, date string) ([]DailyUsage, error)
	DeleteSessionsBefore(ctx context.Context, cutoff time.Time) (int, error)
	DeleteDailyUsageBefore(ctx context.Context, cutoffDate string) (int, error)
}

// LimitedAppStore manages the user-configured continuous usage limits.
type LimitedAppStore interface {
	GetAllLimitedAppsOnce(ctx context.Context) ([]LimitedApp, error)
	Get(ctx context.Context, packageName string) (*LimitedApp, error)
	Upsert(ctx context.Context, app LimitedApp) error
	Delete(ctx context.Context, packageName string) error
}

// SessionFilter defines criteria for listing sessions.
type SessionFilter struct {
	PackageName string
	Since       *time.Time
	Until       *time.Time
	Limit       int
}

// Matches reports whether the session satisfies the filter, ignoring Limit.
func (f SessionFilter) Matches(s AppSession) bool {
	if f.PackageName != "" && s.PackageName != f.PackageName {
		return false
	}
	if f.Since != nil && s.StartTime.Before(*f.Since) {
		return false
	}
	if f.Until != nil && !s.StartTime.Before(*f.Until) {
		return false
	}
	return true
}
