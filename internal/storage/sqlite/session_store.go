package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/goodtune/screenguard/internal/storage"
)

type sessionStore struct {
	db *sql.DB
}

func (s *sessionStore) InsertAppSession(ctx context.Context, session storage.AppSession) error {
	if session.ID == "" {
		return fmt.Errorf("session id is required")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO app_sessions (id, package_name, start_time, end_time, duration_ms)
		VALUES (?, ?, ?, ?, ?)
	`, session.ID, session.PackageName, session.StartTime.UnixMilli(), session.EndTime.UnixMilli(), session.DurationMillis); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("failed to insert session: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO daily_usage (date, package_name, total_ms, sessions)
		VALUES (?, ?, ?, 1)
		ON CONFLICT(date, package_name) DO UPDATE SET
			total_ms = total_ms + excluded.total_ms,
			sessions = sessions + 1
	`, session.Date(), session.PackageName, session.DurationMillis); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("failed to aggregate daily usage: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit session: %w", err)
	}
	return nil
}

func (s *sessionStore) ListSessions(ctx context.Context, filter storage.SessionFilter) ([]storage.AppSession, error) {
	var (
		clauses []string
		args    []any
	)
	if filter.PackageName != "" {
		clauses = append(clauses, "package_name = ?")
		args = append(args, filter.PackageName)
	}
	if filter.Since != nil {
		clauses = append(clauses, "start_time >= ?")
		args = append(args, filter.Since.UnixMilli())
	}
	if filter.Until != nil {
		clauses = append(clauses, "start_time < ?")
		args = append(args, filter.Until.UnixMilli())
	}

	query := "SELECT id, package_name, start_time, end_time, duration_ms FROM app_sessions"
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY start_time DESC"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query sessions: %w", err)
	}
	defer rows.Close()

	sessions := make([]storage.AppSession, 0)
	for rows.Next() {
		var (
			session    storage.AppSession
			start, end int64
		)
		if err := rows.Scan(&session.ID, &session.PackageName, &start, &end, &session.DurationMillis); err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		session.StartTime = time.UnixMilli(start).UTC()
		session.EndTime = time.UnixMilli(end).UTC()
		sessions = append(sessions, session)
	}
	return sessions, rows.Err()
}

func (s *sessionStore) GetDailyUsage(ctx context.Context, date string, packageName string) (*storage.DailyUsage, error) {
	usage := storage.DailyUsage{Date: date, PackageName: packageName}
	err := s.db.QueryRowContext(ctx, `
		SELECT total_ms, sessions FROM daily_usage WHERE date = ? AND package_name = ?
	`, date, packageName).Scan(&usage.TotalMillis, &usage.Sessions)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query daily usage: %w", err)
	}
	return &usage, nil
}

func (s *sessionStore) ListDailyUsage(ctx context.Context, date string) ([]storage.DailyUsage, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT date, package_name, total_ms, sessions FROM daily_usage
		WHERE date = ?
		ORDER BY total_ms DESC
	`, date)
	if err != nil {
		return nil, fmt.Errorf("failed to query daily usage: %w", err)
	}
	defer rows.Close()

	usages := make([]storage.DailyUsage, 0)
	for rows.Next() {
		var usage storage.DailyUsage
		if err := rows.Scan(&usage.Date, &usage.PackageName, &usage.TotalMillis, &usage.Sessions); err != nil {
			return nil, fmt.Errorf("failed to scan daily usage: %w", err)
		}
		usages = append(usages, usage)
	}
	return usages, rows.Err()
}

func (s *sessionStore) DeleteSessionsBefore(ctx context.Context, cutoff time.Time) (int, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM app_sessions WHERE start_time < ?`, cutoff.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("failed to delete sessions: %w", err)
	}
	rows, _ := result.RowsAffected()
	return int(rows), nil
}

func (s *sessionStore) DeleteDailyUsageBefore(ctx context.Context, cutoffDate string) (int, error) {
	if _, err := time.Parse(storage.DateLayout, cutoffDate); err != nil {
		return 0, fmt.Errorf("invalid cutoff date: %w", err)
	}
	// ISO dates compare correctly as text
	result, err := s.db.ExecContext(ctx, `DELETE FROM daily_usage WHERE date < ?`, cutoffDate)
	if err != nil {
		return 0, fmt.Errorf("failed to delete daily usage: %w", err)
	}
	rows, _ := result.RowsAffected()
	return int(rows), nil
}
