package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/lemmaiot/sme-consultant/internal/domain"
	"github.com/lemmaiot/sme-consultant/internal/shared"
	_ "modernc.org/sqlite"
)

const (
	usagePrefix   = "usage:"
	sessionPrefix = "session:"
)

// SQLiteStore implements Repository using a single key-value table in
// SQLite. Values are the JSON wire format of the records.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite creates a new SQLite-backed repository.
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

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
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
	CREATE TABLE IF NOT EXISTS records (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL,
		updated_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_records_updated ON records(updated_at);
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

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) get(ctx context.Context, key string, out any) (bool, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM records WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("scan record %s: %w", key, err)
	}
	if err := json.Unmarshal([]byte(value), out); err != nil {
		return false, fmt.Errorf("decode record %s: %w", key, err)
	}
	return true, nil
}

func (s *SQLiteStore) put(ctx context.Context, key string, in any) error {
	value, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("encode record %s: %w", key, err)
	}

	query := `
	INSERT INTO records (key, value, updated_at) VALUES (?, ?, ?)
	ON CONFLICT(key) DO UPDATE SET
		value = excluded.value,
		updated_at = excluded.updated_at`

	_, err = s.db.ExecContext(ctx, query, key, string(value), time.Now().Unix())
	if shared.IsSQLiteConflictError(err) {
		// One retry on a transient lock; the busy timeout covers the rest.
		_, err = s.db.ExecContext(ctx, query, key, string(value), time.Now().Unix())
	}
	if err != nil {
		return fmt.Errorf("upsert record %s: %w", key, err)
	}
	return nil
}

func (s *SQLiteStore) delete(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM records WHERE key = ?`, key); err != nil {
		return fmt.Errorf("delete record %s: %w", key, err)
	}
	return nil
}

// GetUsage retrieves the usage record for a visitor.
func (s *SQLiteStore) GetUsage(ctx context.Context, visitorID string) (*domain.UsageRecord, error) {
	var rec domain.UsageRecord
	found, err := s.get(ctx, usagePrefix+visitorID, &rec)
	if err != nil || !found {
		return nil, err
	}
	return &rec, nil
}

// PutUsage creates or replaces the usage record for a visitor.
func (s *SQLiteStore) PutUsage(ctx context.Context, visitorID string, rec *domain.UsageRecord) error {
	return s.put(ctx, usagePrefix+visitorID, rec)
}

// DeleteUsage removes the usage record for a visitor.
func (s *SQLiteStore) DeleteUsage(ctx context.Context, visitorID string) error {
	return s.delete(ctx, usagePrefix+visitorID)
}

// GetSession retrieves the session record for a visitor.
func (s *SQLiteStore) GetSession(ctx context.Context, visitorID string) (*domain.SessionRecord, error) {
	var rec domain.SessionRecord
	found, err := s.get(ctx, sessionPrefix+visitorID, &rec)
	if err != nil || !found {
		return nil, err
	}
	return &rec, nil
}

// PutSession creates or replaces the session record for a visitor.
func (s *SQLiteStore) PutSession(ctx context.Context, visitorID string, rec *domain.SessionRecord) error {
	return s.put(ctx, sessionPrefix+visitorID, rec)
}

// DeleteSession removes the session record for a visitor.
func (s *SQLiteStore) DeleteSession(ctx context.Context, visitorID string) error {
	return s.delete(ctx, sessionPrefix+visitorID)
}
