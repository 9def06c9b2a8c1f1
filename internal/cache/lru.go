// Copyright 2026 The AgentHive Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package cache

import (
	"container/list"
	"sync"
	"time"
)

type lruEntry struct {
	key       string
	value     []byte
	expiresAt time.Time
	element   *list.Element
}

// LRU is the in-process first cache layer: a bounded map with
// least-recently-used eviction and lazy per-entry expiry. All methods are
// safe for concurrent use.
type LRU struct {
	maxEntries int

	mu      sync.Mutex
	entries map[string]*lruEntry
	order   *list.List
}

// defaultLRUEntries bounds the layer when the caller passes zero.
const defaultLRUEntries = 1000

// NewLRU creates an LRU holding at most maxEntries values.
func NewLRU(maxEntries int) *LRU {
	if maxEntries <= 0 {
		maxEntries = defaultLRUEntries
	}
	return &LRU{
		maxEntries: maxEntries,
		entries:    make(map[string]*lruEntry),
		order:      list.New(),
	}
}

// Get returns the live value for key. An expired entry is removed and
// reported as a miss; expiry is checked on read, no sweeper runs.
func (l *LRU) Get(key string) ([]byte, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	entry, ok := l.entries[key]
	if !ok {
		return nil, false
	}
	if !entry.expiresAt.After(time.Now()) {
		l.removeLocked(entry)
		return nil, false
	}
	l.order.MoveToFront(entry.element)
	return entry.value, true
}

// Set stores value under key until expiresAt, evicting the least recently
// used entry when the layer is full. It reports whether an eviction
// happened.
func (l *LRU) Set(key string, value []byte, expiresAt time.Time) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if entry, ok := l.entries[key]; ok {
		entry.value = value
		entry.expiresAt = expiresAt
		l.order.MoveToFront(entry.element)
		return false
	}

	evicted := false
	if len(l.entries) >= l.maxEntries {
		if oldest := l.order.Back(); oldest != nil {
			l.removeLocked(oldest.Value.(*lruEntry))
			evicted = true
		}
	}

	entry := &lruEntry{key: key, value: value, expiresAt: expiresAt}
	entry.element = l.order.PushFront(entry)
	l.entries[key] = entry
	return evicted
}

// Delete removes key if present.
func (l *LRU) Delete(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if entry, ok := l.entries[key]; ok {
		l.removeLocked(entry)
	}
}

// Flush drops every entry.
func (l *LRU) Flush() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = make(map[string]*lruEntry)
	l.order.Init()
}

// Len returns the number of stored entries. Expired entries count until a
// read removes them.
func (l *LRU) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

// Cap returns the configured maximum entry count.
func (l *LRU) Cap() int {
	return l.maxEntries
}

func (l *LRU) removeLocked(entry *lruEntry) {
	delete(l.entries, entry.key)
	l.order.Remove(entry.element)
}
