// Copyright 2026 The AgentHive Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package cache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	log "github.com/sirupsen/logrus"
)

// DefaultPostgresTable is used when the configuration leaves the table
// name empty.
const DefaultPostgresTable = "hive_cache"

var identPattern = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// PostgresStore persists cache entries in Postgres so several router
// instances can share one decision cache.
type PostgresStore struct {
	db    *sql.DB
	table string
}

// NewPostgresStore connects to Postgres via the pgx driver and prepares
// the cache table. The table name comes from configuration and must be a
// plain identifier; it is interpolated into SQL, not bound.
func NewPostgresStore(dsn, table string) (*PostgresStore, error) {
	if dsn == "" {
		return nil, errors.New("postgres cache: dsn is required")
	}
	if table == "" {
		table = DefaultPostgresTable
	}
	if !identPattern.MatchString(table) {
		return nil, fmt.Errorf("postgres cache: invalid table name %q", table)
	}

	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres cache: open: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("postgres cache: ping: %w", err)
	}

	store := &PostgresStore{db: db, table: table}
	if err := store.initSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}
	go store.sweepExpired(context.Background())
	return store, nil
}

func (s *PostgresStore) initSchema(ctx context.Context) error {
	schema := fmt.Sprintf(`
	CREATE TABLE IF NOT EXISTS %s (
		key        TEXT PRIMARY KEY,
		value      BYTEA NOT NULL,
		expires_at BIGINT NOT NULL,
		created_at BIGINT NOT NULL
	)`, s.table)
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("postgres cache: create schema: %w", err)
	}
	index := fmt.Sprintf(
		"CREATE INDEX IF NOT EXISTS idx_%s_expires ON %s (expires_at)", s.table, s.table)
	if _, err := s.db.ExecContext(ctx, index); err != nil {
		return fmt.Errorf("postgres cache: create index: %w", err)
	}
	return nil
}

// Name identifies the backend in logs and stats.
func (s *PostgresStore) Name() string { return "postgres" }

// Get returns the entry for key, or nil when absent or expired.
func (s *PostgresStore) Get(ctx context.Context, key string) (*Entry, error) {
	query := fmt.Sprintf(
		"SELECT value, expires_at FROM %s WHERE key = $1 AND expires_at > $2", s.table)
	row := s.db.QueryRowContext(ctx, query, key, time.Now().UnixMilli())

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
func (s *PostgresStore) Set(ctx context.Context, key string, entry *Entry) error {
	query := fmt.Sprintf(
		`INSERT INTO %s (key, value, expires_at, created_at) VALUES ($1, $2, $3, $4)
		 ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, expires_at = EXCLUDED.expires_at, created_at = EXCLUDED.created_at`,
		s.table)
	_, err := s.db.ExecContext(ctx, query,
		key, entry.Value, entry.ExpiresAt.UnixMilli(), time.Now().UnixMilli())
	return err
}

// Flush removes every entry.
func (s *PostgresStore) Flush(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, fmt.Sprintf("DELETE FROM %s", s.table))
	return err
}

// Len counts the live entries.
func (s *PostgresStore) Len(ctx context.Context) (int64, error) {
	var n int64
	query := fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE expires_at > $1", s.table)
	err := s.db.QueryRowContext(ctx, query, time.Now().UnixMilli()).Scan(&n)
	return n, err
}

// Close closes the connection pool.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

func (s *PostgresStore) sweepExpired(ctx context.Context) {
	query := fmt.Sprintf("DELETE FROM %s WHERE expires_at <= $1", s.table)
	result, err := s.db.ExecContext(ctx, query, time.Now().UnixMilli())
	if err != nil {
		log.Warnf("Failed to sweep expired cache entries: %v", err)
		return
	}
	if rows, err := result.RowsAffected(); err == nil && rows > 0 {
		log.Debugf("Swept %d expired cache entries", rows)
	}
}

var _ Backend = (*PostgresStore)(nil)
