// Copyright 2026 The AgentHive Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package cache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
	log "github.com/sirupsen/logrus"
)

// SQLiteStore persists cache entries in a local SQLite file. It is the
// default second layer for single-node deployments: no extra service to
// run, survives restarts.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (and if needed creates) the cache database at path.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if path == "" {
		return nil, errors.New("sqlite cache: path is required")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("sqlite cache: create directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("sqlite cache: open database: %w", err)
	}
	// SQLite handles one writer at a time; a single connection avoids
	// SQLITE_BUSY churn under concurrent routing.
	db.SetMaxOpenConns(1)

	schema := `
	CREATE TABLE IF NOT EXISTS hive_cache (
		key        TEXT PRIMARY KEY,
		value      BLOB NOT NULL,
		expires_at INTEGER NOT NULL,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_hive_cache_expires ON hive_cache(expires_at);
	`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite cache: create schema: %w", err)
	}

	store := &SQLiteStore{db: db}
	go store.sweepExpired(context.Background())
	return store, nil
}

// Name identifies the backend in logs and stats.
func (s *SQLiteStore) Name() string { return "sqlite" }

// Get returns the entry for key, or nil when absent or expired.
func (s *SQLiteStore) Get(ctx context.Context, key string) (*Entry, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT value, expires_at FROM hive_cache WHERE key = ? AND expires_at > ?",
		key, time.Now().UnixMilli())

	var value []byte
	var expiresAt int64
	if err := row.Scan(&value, &expiresAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &Entry{Value: value, ExpiresAt: time.UnixMilli(expiresAt)}, nil
}

// Set upserts the entry for key.
func (s *SQLiteStore) Set(ctx context.Context, key string, entry *Entry) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO hive_cache (key, value, expires_at, created_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value, expires_at = excluded.expires_at, created_at = excluded.created_at`,
		key, entry.Value, entry.ExpiresAt.UnixMilli(), time.Now().UnixMilli())
	return err
}

// Flush removes every entry.
func (s *SQLiteStore) Flush(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM hive_cache")
	return err
}

// Len counts the live entries.
func (s *SQLiteStore) Len(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM hive_cache WHERE expires_at > ?",
		time.Now().UnixMilli()).Scan(&n)
	return n, err
}

// Close sweeps expired rows once more and closes the database.
func (s *SQLiteStore) Close() error {
	s.sweepExpired(context.Background())
	return s.db.Close()
}

// sweepExpired deletes rows past their deadline. Reads already filter on
// expires_at, so this only reclaims disk space.
func (s *SQLiteStore) sweepExpired(ctx context.Context) {
	result, err := s.db.ExecContext(ctx,
		"DELETE FROM hive_cache WHERE expires_at <= ?", time.Now().UnixMilli())
	if err != nil {
		log.Warnf("Failed to sweep expired cache entries: %v", err)
		return
	}
	if rows, err := result.RowsAffected(); err == nil && rows > 0 {
		log.Debugf("Swept %d expired cache entries", rows)
	}
}

var _ Backend = (*SQLiteStore)(nil)
