package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/goodtune/screenguard/internal/storage"
)

type limitedAppStore struct {
	db *sql.DB
}

func (s *limitedAppStore) GetAllLimitedAppsOnce(ctx context.Context) ([]storage.LimitedApp, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT package_name, time_limit_ms, display_name, updated_at
		FROM limited_apps
		ORDER BY package_name
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query limited apps: %w", err)
	}
	defer rows.Close()

	apps := make([]storage.LimitedApp, 0)
	for rows.Next() {
		app, err := scanLimitedApp(rows)
		if err != nil {
			return nil, err
		}
		apps = append(apps, *app)
	}
	return apps, rows.Err()
}

func (s *limitedAppStore) Get(ctx context.Context, packageName string) (*storage.LimitedApp, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT package_name, time_limit_ms, display_name, updated_at
		FROM limited_apps
		WHERE package_name = ?
	`, packageName)

	app, err := scanLimitedApp(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	return app, err
}

func (s *limitedAppStore) Upsert(ctx context.Context, app storage.LimitedApp) error {
	if err := app.Validate(); err != nil {
		return err
	}
	if app.UpdatedAt.IsZero() {
		app.UpdatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO limited_apps (package_name, time_limit_ms, display_name, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(package_name) DO UPDATE SET
			time_limit_ms = excluded.time_limit_ms,
			display_name = excluded.display_name,
			updated_at = excluded.updated_at
	`, app.PackageName, app.TimeLimitMillis, app.DisplayName, app.UpdatedAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("failed to upsert limited app: %w", err)
	}
	return nil
}

func (s *limitedAppStore) Delete(ctx context.Context, packageName string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM limited_apps WHERE package_name = ?`, packageName)
	if err != nil {
		return fmt.Errorf("failed to delete limited app: %w", err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return storage.ErrNotFound
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanLimitedApp(row scanner) (*storage.LimitedApp, error) {
	var (
		app       storage.LimitedApp
		updatedAt int64
	)
	if err := row.Scan(&app.PackageName, &app.TimeLimitMillis, &app.DisplayName, &updatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan limited app: %w", err)
	}
	app.UpdatedAt = time.UnixMilli(updatedAt).UTC()
	return &app, nil
}
