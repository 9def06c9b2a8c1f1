// Copyright 2026 The AgentHive Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package history persists routing decisions to a SQLite journal so routing
// behavior can be inspected after the fact: which prompts went where, how
// confident the chain was, and how often the cache answered. Entries age out
// after a configurable retention window, and an optional archiver exports
// the journal to S3-compatible storage.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/goccy/go-json"
	_ "github.com/mattn/go-sqlite3" // SQLite driver
	log "github.com/sirupsen/logrus"
)

// Entry is a single journaled routing decision.
type Entry struct {
	ID         int64          `json:"id"`
	Timestamp  time.Time      `json:"timestamp"`
	Prompt     string         `json:"prompt"`
	Intent     string         `json:"intent"`
	Agent      string         `json:"agent"`
	Method     string         `json:"method"`
	Confidence float64        `json:"confidence"`
	CacheHit   bool           `json:"cache_hit"`
	LatencyMs  int64          `json:"latency_ms"`
	SessionID  string         `json:"session_id,omitempty"`
	UserID     string         `json:"user_id,omitempty"`
	RequestID  string         `json:"request_id,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// Journal manages the routing decision database.
type Journal struct {
	db            *sql.DB
	dbPath        string
	retentionDays int
	enabled       bool
	mu            sync.RWMutex
}

// NewJournal creates a journal instance. Initialize must be called before
// recording.
func NewJournal(dbPath string, retentionDays int) (*Journal, error) {
	if dbPath == "" {
		return nil, fmt.Errorf("database path cannot be empty")
	}
	if retentionDays <= 0 {
		retentionDays = 30
	}
	return &Journal{
		dbPath:        dbPath,
		retentionDays: retentionDays,
	}, nil
}

// Initialize opens the database, creates the schema, and kicks off an
// initial retention cleanup in the background.
func (j *Journal) Initialize(ctx context.Context) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	dir := filepath.Dir(j.dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create journal directory: %w", err)
	}

	db, err := sql.Open("sqlite3", j.dbPath)
	if err != nil {
		return fmt.Errorf("failed to open journal database: %w", err)
	}

	// SQLite works best with a single connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	schema := `
	CREATE TABLE IF NOT EXISTS routing_log (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		timestamp DATETIME NOT NULL,
		prompt TEXT NOT NULL,
		intent TEXT NOT NULL,
		agent TEXT NOT NULL,
		method TEXT NOT NULL,
		confidence REAL,
		cache_hit INTEGER NOT NULL DEFAULT 0,
		latency_ms INTEGER NOT NULL,
		session_id TEXT,
		user_id TEXT,
		request_id TEXT,
		metadata TEXT,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_routing_log_timestamp ON routing_log(timestamp);
	CREATE INDEX IF NOT EXISTS idx_routing_log_agent ON routing_log(agent);
	CREATE INDEX IF NOT EXISTS idx_routing_log_method ON routing_log(method);
	CREATE INDEX IF NOT EXISTS idx_routing_log_created_at ON routing_log(created_at);
	`
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return fmt.Errorf("failed to create journal schema: %w", err)
	}

	j.db = db
	j.enabled = true

	log.Infof("Routing history journal initialized (db: %s, retention: %d days)", j.dbPath, j.retentionDays)

	go j.cleanupOldEntries(context.Background())
	return nil
}

// IsEnabled reports whether the journal accepts writes.
func (j *Journal) IsEnabled() bool {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.enabled
}

// Record stores one routing decision.
func (j *Journal) Record(ctx context.Context, entry *Entry) error {
	j.mu.RLock()
	defer j.mu.RUnlock()

	if !j.enabled {
		return fmt.Errorf("history journal not enabled")
	}
	if entry == nil {
		return fmt.Errorf("entry cannot be nil")
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now()
	}

	var metadataJSON []byte
	if entry.Metadata != nil {
		var err error
		metadataJSON, err = json.Marshal(entry.Metadata)
		if err != nil {
			log.Warnf("Failed to marshal journal metadata: %v", err)
			metadataJSON = []byte("{}")
		}
	}

	query := `
	INSERT INTO routing_log (
		timestamp, prompt, intent, agent, method,
		confidence, cache_hit, latency_ms, session_id, user_id, request_id, metadata
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	result, err := j.db.ExecContext(ctx, query,
		entry.Timestamp,
		entry.Prompt,
		entry.Intent,
		entry.Agent,
		entry.Method,
		entry.Confidence,
		boolToInt(entry.CacheHit),
		entry.LatencyMs,
		entry.SessionID,
		entry.UserID,
		entry.RequestID,
		string(metadataJSON),
	)
	if err != nil {
		return fmt.Errorf("failed to insert journal entry: %w", err)
	}

	if id, err := result.LastInsertId(); err == nil {
		entry.ID = id
	}
	return nil
}

// Recent retrieves the most recent entries, newest first.
func (j *Journal) Recent(ctx context.Context, limit int) ([]*Entry, error) {
	j.mu.RLock()
	defer j.mu.RUnlock()

	if !j.enabled {
		return nil, fmt.Errorf("history journal not enabled")
	}
	if limit <= 0 {
		limit = 100
	}

	query := `
	SELECT id, timestamp, prompt, intent, agent, method,
	       confidence, cache_hit, latency_ms, session_id, user_id, request_id, metadata
	FROM routing_log
	ORDER BY timestamp DESC, id DESC
	LIMIT ?
	`
	rows, err := j.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query journal: %w", err)
	}
	defer rows.Close()

	var entries []*Entry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			log.Warnf("Failed to scan journal entry: %v", err)
			continue
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating journal entries: %w", err)
	}
	return entries, nil
}

// Stats aggregates the journal: total entries, method and agent
// distributions, average latency, and cache hit rate.
func (j *Journal) Stats(ctx context.Context) (map[string]interface{}, error) {
	j.mu.RLock()
	defer j.mu.RUnlock()

	if !j.enabled {
		return nil, fmt.Errorf("history journal not enabled")
	}

	stats := make(map[string]interface{})

	var totalCount int64
	if err := j.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM routing_log").Scan(&totalCount); err != nil {
		return nil, fmt.Errorf("failed to get total count: %w", err)
	}
	stats["total_entries"] = totalCount

	methodDist, err := j.countBy(ctx, "method")
	if err != nil {
		return nil, err
	}
	stats["method_distribution"] = methodDist

	agentDist, err := j.countBy(ctx, "agent")
	if err != nil {
		return nil, err
	}
	stats["agent_distribution"] = agentDist

	var avgLatency sql.NullFloat64
	if err := j.db.QueryRowContext(ctx, "SELECT AVG(latency_ms) FROM routing_log").Scan(&avgLatency); err != nil {
		return nil, fmt.Errorf("failed to get average latency: %w", err)
	}
	stats["avg_latency_ms"] = avgLatency.Float64

	var hitCount int64
	if err := j.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM routing_log WHERE cache_hit = 1").Scan(&hitCount); err != nil {
		return nil, fmt.Errorf("failed to get cache hit count: %w", err)
	}
	if totalCount > 0 {
		stats["cache_hit_rate"] = float64(hitCount) / float64(totalCount)
	} else {
		stats["cache_hit_rate"] = 0.0
	}

	return stats, nil
}

// countBy groups entries by a column. The column name is one of the fixed
// schema columns, never caller input.
func (j *Journal) countBy(ctx context.Context, column string) (map[string]int64, error) {
	rows, err := j.db.QueryContext(ctx, fmt.Sprintf("SELECT %s, COUNT(*) FROM routing_log GROUP BY %s", column, column))
	if err != nil {
		return nil, fmt.Errorf("failed to get %s distribution: %w", column, err)
	}
	defer rows.Close()

	dist := make(map[string]int64)
	for rows.Next() {
		var key string
		var count int64
		if err := rows.Scan(&key, &count); err != nil {
			continue
		}
		dist[key] = count
	}
	return dist, rows.Err()
}

// cleanupOldEntries removes entries beyond the retention window.
// Called without holding the journal lock.
func (j *Journal) cleanupOldEntries(ctx context.Context) {
	if !j.IsEnabled() {
		return
	}

	cutoff := time.Now().AddDate(0, 0, -j.retentionDays)
	result, err := j.db.ExecContext(ctx, "DELETE FROM routing_log WHERE created_at < ?", cutoff)
	if err != nil {
		log.Warnf("Failed to cleanup old journal entries: %v", err)
		return
	}
	if affected, err := result.RowsAffected(); err == nil && affected > 0 {
		log.Infof("Cleaned up %d journal entries older than %d days", affected, j.retentionDays)
	}
}

// Shutdown runs a final cleanup and closes the database.
func (j *Journal) Shutdown(ctx context.Context) error {
	if j.IsEnabled() {
		j.cleanupOldEntries(ctx)
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	if !j.enabled {
		return nil
	}
	if j.db != nil {
		if err := j.db.Close(); err != nil {
			return fmt.Errorf("failed to close journal database: %w", err)
		}
	}
	j.enabled = false
	log.Info("Routing history journal shut down")
	return nil
}

func scanEntry(rows *sql.Rows) (*Entry, error) {
	var entry Entry
	var hitInt int
	var sessionID, userID, requestID, metadataJSON sql.NullString

	err := rows.Scan(
		&entry.ID,
		&entry.Timestamp,
		&entry.Prompt,
		&entry.Intent,
		&entry.Agent,
		&entry.Method,
		&entry.Confidence,
		&hitInt,
		&entry.LatencyMs,
		&sessionID,
		&userID,
		&requestID,
		&metadataJSON,
	)
	if err != nil {
		return nil, err
	}

	entry.CacheHit = hitInt == 1
	entry.SessionID = sessionID.String
	entry.UserID = userID.String
	entry.RequestID = requestID.String
	if metadataJSON.Valid && metadataJSON.String != "" {
		if err := json.Unmarshal([]byte(metadataJSON.String), &entry.Metadata); err != nil {
			log.Warnf("Failed to unmarshal journal metadata: %v", err)
		}
	}
	return &entry, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
