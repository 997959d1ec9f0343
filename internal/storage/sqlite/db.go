package sqlite

import (
	"database/sql"
	"fmt"
	"path/filepath"
	"sort"

	"github.com/goodtune/screenguard/internal/storage"
	_ "modernc.org/sqlite"
)

// Store implements the storage.Store interface on top of SQLite
type Store struct {
	db *sql.DB
}

// Open creates a new database connection and runs migrations
func Open(dbPath string) (*Store, error) {
	if err := ensureDir(dbPath); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite allows a single writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	if err := runMigrations(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &Store{db: db}, nil
}

func ensureDir(path string) error {
	if path == ":memory:" {
		return nil
	}
	dir := filepath.Dir(path)
	if dir == "." {
		return nil
	}
	return storage.EnsureDir(dir)
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// Sessions returns the session store
func (s *Store) Sessions() storage.SessionStore { return &sessionStore{db: s.db} }

// LimitedApps returns the limited app store
func (s *Store) LimitedApps() storage.LimitedAppStore { return &limitedAppStore{db: s.db} }

// runMigrations applies all database migrations
func runMigrations(db *sql.DB) error {
	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS migrations (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			version INTEGER NOT NULL UNIQUE,
			applied_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)
	`); err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	var currentVersion int
	err := db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM migrations").Scan(&currentVersion)
	if err != nil {
		return fmt.Errorf("failed to get current migration version: %w", err)
	}

	migrations := getMigrations()
	versions := make([]int, 0, len(migrations))
	for version := range migrations {
		versions = append(versions, version)
	}
	sort.Ints(versions)

	for _, version := range versions {
		if version <= currentVersion {
			continue
		}

		tx, err := db.Begin()
		if err != nil {
			return fmt.Errorf("failed to begin transaction for migration %d: %w", version, err)
		}

		if _, err := tx.Exec(migrations[version]); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("failed to execute migration %d: %w", version, err)
		}

		if _, err := tx.Exec("INSERT INTO migrations (version) VALUES (?)", version); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("failed to record migration %d: %w", version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit migration %d: %w", version, err)
		}
	}

	return nil
}

// getMigrations returns all database migrations keyed by version
func getMigrations() map[int]string {
	return map[int]string{
		1: migration001LimitedApps,
		2: migration002AppSessions,
		3: migration003DailyUsage,
	}
}

const migration001LimitedApps = `
CREATE TABLE IF NOT EXISTS limited_apps (
	package_name TEXT PRIMARY KEY,
	time_limit_ms INTEGER NOT NULL CHECK (time_limit_ms > 0),
	display_name TEXT NOT NULL DEFAULT '',
	updated_at INTEGER NOT NULL -- unix millis
);
`

const migration002AppSessions = `
CREATE TABLE IF NOT EXISTS app_sessions (
	id TEXT PRIMARY KEY,
	package_name TEXT NOT NULL,
	start_time INTEGER NOT NULL, -- unix millis
	end_time INTEGER NOT NULL,   -- unix millis
	duration_ms INTEGER NOT NULL
);

CREATE INDEX idx_sessions_start ON app_sessions(start_time);
CREATE INDEX idx_sessions_package ON app_sessions(package_name, start_time);
`

const migration003DailyUsage = `
CREATE TABLE IF NOT EXISTS daily_usage (
	date TEXT NOT NULL,
	package_name TEXT NOT NULL,
	total_ms INTEGER NOT NULL DEFAULT 0,
	sessions INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY (date, package_name)
);
`
