// Copyright 2026 The AgentHive Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package cache provides the layered store behind the routing decision
// cache: a fast in-process LRU in front of an optional persistent backend
// (SQLite or Postgres). Backend failures are absorbed and reported as
// misses so a cache outage can never fail a routing request.
package cache

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/agenthive/agenthive/internal/metrics"
)

// Entry is a cached value with its absolute expiry deadline.
type Entry struct {
	Value     []byte
	ExpiresAt time.Time
}

// Expired reports whether the entry is past its deadline.
func (e *Entry) Expired(now time.Time) bool {
	return !e.ExpiresAt.After(now)
}

// Backend is a persistent second cache layer. Get returns nil without an
// error on a miss; expired entries count as misses and may be deleted
// lazily or by a background sweep, at the backend's discretion.
type Backend interface {
	Name() string
	Get(ctx context.Context, key string) (*Entry, error)
	Set(ctx context.Context, key string, entry *Entry) error
	Flush(ctx context.Context) error
	Len(ctx context.Context) (int64, error)
	Close() error
}

// Store is what the decision cache consumes. Lookups cannot fail: layer
// errors are logged and swallowed, turning into misses.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration)
	Flush(ctx context.Context)
	Stats(ctx context.Context) Stats
	Close() error
}

// Stats describes the current size of each layer.
type Stats struct {
	L1Entries  int    `json:"l1_entries"`
	L1Capacity int    `json:"l1_capacity"`
	L2Entries  int64  `json:"l2_entries"`
	Backend    string `json:"backend,omitempty"`
}

// Layered combines the in-process LRU with an optional backend. Reads
// check L1 first and promote backend hits into L1; writes go to both
// layers. Either layer may be nil.
type Layered struct {
	l1          *LRU
	l2          Backend
	compressMin int
	metrics     metrics.Sink
}

// NewLayered builds a layered store. compressMin is the minimum value size
// in bytes before backend writes are gzip-compressed; zero disables
// compression.
func NewLayered(l1 *LRU, l2 Backend, compressMin int, sink metrics.Sink) *Layered {
	if sink == nil {
		sink = metrics.NewNop()
	}
	return &Layered{
		l1:          l1,
		l2:          l2,
		compressMin: compressMin,
		metrics:     sink,
	}
}

// Get returns the cached value for key, consulting L1 then the backend.
func (s *Layered) Get(ctx context.Context, key string) ([]byte, bool) {
	if s.l1 != nil {
		if value, ok := s.l1.Get(key); ok {
			s.metrics.RecordCacheEvent("l1", true)
			return value, true
		}
		s.metrics.RecordCacheEvent("l1", false)
	}

	if s.l2 == nil {
		return nil, false
	}
	entry, err := s.l2.Get(ctx, key)
	if err != nil {
		log.WithFields(log.Fields{
			"backend": s.l2.Name(),
		}).Warnf("Cache backend read failed, treating as miss: %v", err)
		s.metrics.RecordCacheEvent("l2", false)
		return nil, false
	}
	if entry == nil || entry.Expired(time.Now()) {
		s.metrics.RecordCacheEvent("l2", false)
		return nil, false
	}

	value, err := maybeDecompress(entry.Value)
	if err != nil {
		log.WithFields(log.Fields{
			"backend": s.l2.Name(),
		}).Warnf("Cache entry corrupt, treating as miss: %v", err)
		s.metrics.RecordCacheEvent("l2", false)
		return nil, false
	}
	s.metrics.RecordCacheEvent("l2", true)

	if s.l1 != nil {
		s.l1.Set(key, value, entry.ExpiresAt)
	}
	return value, true
}

// Set stores value under key in every layer. A non-positive ttl drops the
// write; an entry that is already expired has no reader.
func (s *Layered) Set(ctx context.Context, key string, value []byte, ttl time.Duration) {
	if ttl <= 0 {
		return
	}
	expiresAt := time.Now().Add(ttl)

	if s.l1 != nil {
		if evicted := s.l1.Set(key, value, expiresAt); evicted {
			s.metrics.RecordCacheEviction("l1")
		}
	}
	if s.l2 == nil {
		return
	}
	entry := &Entry{Value: maybeCompress(value, s.compressMin), ExpiresAt: expiresAt}
	if err := s.l2.Set(ctx, key, entry); err != nil {
		log.WithFields(log.Fields{
			"backend": s.l2.Name(),
		}).Warnf("Cache backend write failed: %v", err)
	}
}

// Flush empties every layer.
func (s *Layered) Flush(ctx context.Context) {
	if s.l1 != nil {
		s.l1.Flush()
	}
	if s.l2 != nil {
		if err := s.l2.Flush(ctx); err != nil {
			log.WithFields(log.Fields{
				"backend": s.l2.Name(),
			}).Warnf("Cache backend flush failed: %v", err)
		}
	}
}

// Stats reports current layer sizes. Backend errors leave the L2 count at
// zero rather than failing the call.
func (s *Layered) Stats(ctx context.Context) Stats {
	stats := Stats{}
	if s.l1 != nil {
		stats.L1Entries = s.l1.Len()
		stats.L1Capacity = s.l1.Cap()
	}
	if s.l2 != nil {
		stats.Backend = s.l2.Name()
		if n, err := s.l2.Len(ctx); err == nil {
			stats.L2Entries = n
		}
	}
	return stats
}

// Close shuts down the backend layer, if any.
func (s *Layered) Close() error {
	if s.l2 != nil {
		return s.l2.Close()
	}
	return nil
}

var _ Store = (*Layered)(nil)
