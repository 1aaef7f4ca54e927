package session

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/skillstream/skillstream/internal/domain"
	_ "modernc.org/sqlite"
)

// SQLiteStore implements Repository using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite creates a new SQLite-backed session repository.
func NewSQLite(dbPath string) (Repository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	// Open database with WAL mode for better concurrency.
	dsn := dbPath + "?_journal=WAL&_sync=NORMAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(1)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.initSchema(); err != nil {
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	query := `
	PRAGMA busy_timeout = 5000;
	CREATE TABLE IF NOT EXISTS session_users (
		slot INTEGER PRIMARY KEY CHECK (slot = 1),
		user_id TEXT NOT NULL,
		username TEXT NOT NULL,
		full_name TEXT NOT NULL,
		department TEXT NOT NULL,
		total_points INTEGER NOT NULL DEFAULT 0,
		level INTEGER NOT NULL DEFAULT 1,
		last_login INTEGER,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Ping verifies database connectivity.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// CurrentUser retrieves the persisted signed-in user, or nil if none.
func (s *SQLiteStore) CurrentUser(ctx context.Context) (*domain.User, error) {
	query := `
		SELECT user_id, username, full_name, department, total_points, level, last_login
		FROM session_users WHERE slot = 1`

	row := s.db.QueryRowContext(ctx, query)

	var user domain.User
	var lastLogin sql.NullInt64

	err := row.Scan(
		&user.ID, &user.Username, &user.FullName, &user.Department,
		&user.TotalPoints, &user.Level, &lastLogin,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan session user: %w", err)
	}

	if lastLogin.Valid {
		ts := time.Unix(lastLogin.Int64, 0)
		user.LastLogin = &ts
	}

	return &user, nil
}

// SaveUser stores the signed-in user, replacing any previous session.
func (s *SQLiteStore) SaveUser(ctx context.Context, user *domain.User) error {
	query := `
	INSERT INTO session_users (slot, user_id, username, full_name, department, total_points, level, last_login, created_at, updated_at)
	VALUES (1, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(slot) DO UPDATE SET
		user_id = excluded.user_id,
		username = excluded.username,
		full_name = excluded.full_name,
		department = excluded.department,
		total_points = excluded.total_points,
		level = excluded.level,
		last_login = excluded.last_login,
		updated_at = excluded.updated_at`

	var lastLogin interface{}
	if user.LastLogin != nil {
		lastLogin = user.LastLogin.Unix()
	}

	now := time.Now().Unix()
	_, err := s.db.ExecContext(ctx, query,
		user.ID, user.Username, user.FullName, user.Department,
		user.TotalPoints, user.Level, lastLogin, now, now,
	)
	if err != nil {
		return fmt.Errorf("save session user: %w", err)
	}
	return nil
}

// ApplyPoints adds a points delta to the persisted total and recomputes the level.
func (s *SQLiteStore) ApplyPoints(ctx context.Context, userID string, delta int) (*domain.User, error) {
	query := `
	UPDATE session_users
	SET total_points = MAX(total_points + ?, 0),
	    level = MAX(total_points + ?, 0) / ? + 1,
	    updated_at = ?
	WHERE slot = 1 AND user_id = ?`

	result, err := s.db.ExecContext(ctx, query,
		delta, delta, domain.PointsPerLevel, time.Now().Unix(), userID,
	)
	if err != nil {
		return nil, fmt.Errorf("apply points: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("get rows affected: %w", err)
	}
	if rows == 0 {
		return nil, fmt.Errorf("no session for user %s", userID)
	}

	return s.CurrentUser(ctx)
}

// Clear removes the persisted session.
func (s *SQLiteStore) Clear(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM session_users WHERE slot = 1`); err != nil {
		return fmt.Errorf("clear session: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	return nil
}
