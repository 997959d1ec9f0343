package storage

import (
	"fmt"
	"strings"
	"time"
)

// DateLayout is the layout of daily rollup keys.
const DateLayout = "2006-01-02"

// LimitedApp is a package with a continuous usage limit.
type LimitedApp struct {
	PackageName     string    `json:"package_name"`
	TimeLimitMillis int64     `json:"time_limit_ms"`
	DisplayName     string    `json:"display_name,omitempty"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// TimeLimit returns the configured limit as a duration.
func (a LimitedApp) TimeLimit() time.Duration {
	return time.Duration(a.TimeLimitMillis) * time.Millisecond
}

// Validate checks the fields required for a limited app to be stored.
func (a LimitedApp) Validate() error {
	if strings.TrimSpace(a.PackageName) == "" {
		return fmt.Errorf("%w: package name is required", ErrInvalidLimitedApp)
	}
	if a.TimeLimitMillis <= 0 {
		return fmt.Errorf("%w: time limit for %s must be positive", ErrInvalidLimitedApp, a.PackageName)
	}
	return nil
}

// AppSession is a finished foreground session.
type AppSession struct {
	ID             string    `json:"id"`
	PackageName    string    `json:"package_name"`
	StartTime      time.Time `json:"start_time"`
	EndTime        time.Time `json:"end_time"`
	DurationMillis int64     `json:"duration_ms"`
}

// Duration returns the session length.
func (s AppSession) Duration() time.Duration {
	return time.Duration(s.DurationMillis) * time.Millisecond
}

// Date returns the rollup date of the session, which is its UTC start date.
func (s AppSession) Date() string {
	return s.StartTime.UTC().Format(DateLayout)
}

// DailyUsage aggregates finished sessions per day and package.
type DailyUsage struct {
	Date        string `json:"date"`
	PackageName string `json:"package_name"`
	TotalMillis int64  `json:"total_ms"`
	Sessions    int64  `json:"sessions"`
}

// Total returns the aggregated usage as a duration.
func (d DailyUsage) Total() time.Duration {
	return time.Duration(d.TotalMillis) * time.Millisecond
}
