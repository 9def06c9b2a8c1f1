// Copyright 2026 The AgentHive Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package cache

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/agenthive/agenthive/internal/metrics"
)

type fakeBackend struct {
	entries map[string]*Entry
	getErr  error
	setErr  error
	gets    int
	sets    int
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{entries: make(map[string]*Entry)}
}

func (f *fakeBackend) Name() string { return "fake" }

func (f *fakeBackend) Get(_ context.Context, key string) (*Entry, error) {
	f.gets++
	if f.getErr != nil {
		return nil, f.getErr
	}
	entry, ok := f.entries[key]
	if !ok {
		return nil, nil
	}
	return entry, nil
}

func (f *fakeBackend) Set(_ context.Context, key string, entry *Entry) error {
	f.sets++
	if f.setErr != nil {
		return f.setErr
	}
	f.entries[key] = entry
	return nil
}

func (f *fakeBackend) Flush(context.Context) error {
	f.entries = make(map[string]*Entry)
	return nil
}

func (f *fakeBackend) Len(context.Context) (int64, error) {
	return int64(len(f.entries)), nil
}

func (f *fakeBackend) Close() error { return nil }

func TestLayeredWritesBothLayers(t *testing.T) {
	backend := newFakeBackend()
	store := NewLayered(NewLRU(10), backend, 0, metrics.NewNop())
	ctx := context.Background()

	store.Set(ctx, "k", []byte("value"), time.Minute)

	if backend.sets != 1 {
		t.Errorf("expected one backend write, got %d", backend.sets)
	}
	value, ok := store.Get(ctx, "k")
	if !ok || string(value) != "value" {
		t.Errorf("expected l1 hit with value, got %q ok=%v", value, ok)
	}
	// L1 answered, so the backend saw no read.
	if backend.gets != 0 {
		t.Errorf("expected no backend reads, got %d", backend.gets)
	}
}

func TestLayeredPromotesBackendHits(t *testing.T) {
	backend := newFakeBackend()
	l1 := NewLRU(10)
	store := NewLayered(l1, backend, 0, metrics.NewNop())
	ctx := context.Background()

	backend.entries["k"] = &Entry{Value: []byte("persisted"), ExpiresAt: time.Now().Add(time.Minute)}

	value, ok := store.Get(ctx, "k")
	if !ok || string(value) != "persisted" {
		t.Fatalf("expected backend hit, got %q ok=%v", value, ok)
	}
	if backend.gets != 1 {
		t.Errorf("expected one backend read, got %d", backend.gets)
	}

	// Second read is served from L1.
	if _, ok := store.Get(ctx, "k"); !ok {
		t.Fatal("expected promoted entry in l1")
	}
	if backend.gets != 1 {
		t.Errorf("expected promotion to avoid second backend read, got %d", backend.gets)
	}
}

func TestLayeredBackendFailureIsAMiss(t *testing.T) {
	backend := newFakeBackend()
	backend.getErr = errors.New("connection refused")
	store := NewLayered(nil, backend, 0, metrics.NewNop())
	ctx := context.Background()

	if _, ok := store.Get(ctx, "k"); ok {
		t.Error("expected backend error to read as a miss")
	}

	// Writes must not panic or surface the error either.
	backend.setErr = errors.New("connection refused")
	store.Set(ctx, "k", []byte("v"), time.Minute)
}

func TestLayeredExpiredBackendEntryIsAMiss(t *testing.T) {
	backend := newFakeBackend()
	store := NewLayered(nil, backend, 0, metrics.NewNop())
	ctx := context.Background()

	backend.entries["k"] = &Entry{Value: []byte("old"), ExpiresAt: time.Now().Add(-time.Second)}
	if _, ok := store.Get(ctx, "k"); ok {
		t.Error("expected expired backend entry to read as a miss")
	}
}

func TestLayeredNonPositiveTTLSkipsWrite(t *testing.T) {
	backend := newFakeBackend()
	store := NewLayered(NewLRU(10), backend, 0, metrics.NewNop())
	ctx := context.Background()

	store.Set(ctx, "k", []byte("v"), 0)
	if backend.sets != 0 {
		t.Errorf("expected no backend write for zero ttl, got %d", backend.sets)
	}
	if _, ok := store.Get(ctx, "k"); ok {
		t.Error("expected no entry for zero ttl")
	}
}

func TestLayeredCompressesLargeValues(t *testing.T) {
	backend := newFakeBackend()
	store := NewLayered(nil, backend, 64, metrics.NewNop())
	ctx := context.Background()

	large := []byte(strings.Repeat(`{"intent":"lease_inquiry"}`, 50))
	store.Set(ctx, "big", large, time.Minute)

	stored := backend.entries["big"]
	if stored == nil {
		t.Fatal("expected backend write")
	}
	if len(stored.Value) >= len(large) {
		t.Errorf("expected compressed value smaller than %d, got %d", len(large), len(stored.Value))
	}
	if stored.Value[0] != 0x1f || stored.Value[1] != 0x8b {
		t.Error("expected gzip magic header on stored value")
	}

	value, ok := store.Get(ctx, "big")
	if !ok {
		t.Fatal("expected hit")
	}
	if !bytes.Equal(value, large) {
		t.Error("decompressed value does not match original")
	}
}

func TestLayeredSmallValuesStayPlain(t *testing.T) {
	backend := newFakeBackend()
	store := NewLayered(nil, backend, 64, metrics.NewNop())
	ctx := context.Background()

	small := []byte(`{"intent":"x"}`)
	store.Set(ctx, "small", small, time.Minute)

	if !bytes.Equal(backend.entries["small"].Value, small) {
		t.Error("expected small value stored uncompressed")
	}
}

func TestLayeredFlushAndStats(t *testing.T) {
	backend := newFakeBackend()
	store := NewLayered(NewLRU(5), backend, 0, metrics.NewNop())
	ctx := context.Background()

	store.Set(ctx, "a", []byte("1"), time.Minute)
	store.Set(ctx, "b", []byte("2"), time.Minute)

	stats := store.Stats(ctx)
	if stats.L1Entries != 2 || stats.L1Capacity != 5 {
		t.Errorf("unexpected l1 stats: %+v", stats)
	}
	if stats.L2Entries != 2 || stats.Backend != "fake" {
		t.Errorf("unexpected l2 stats: %+v", stats)
	}

	store.Flush(ctx)
	stats = store.Stats(ctx)
	if stats.L1Entries != 0 || stats.L2Entries != 0 {
		t.Errorf("expected empty layers after flush: %+v", stats)
	}
}

func TestLayeredMetricsEvents(t *testing.T) {
	collector := metrics.NewCollector(100)
	backend := newFakeBackend()
	store := NewLayered(NewLRU(1), backend, 0, collector)
	ctx := context.Background()

	store.Set(ctx, "a", []byte("1"), time.Minute)
	store.Get(ctx, "a")                           // l1 hit
	store.Get(ctx, "nope")                        // l1 miss, l2 miss
	store.Set(ctx, "b", []byte("2"), time.Minute) // evicts a from l1

	snap := collector.Snapshot()
	l1 := snap.CacheLayers["l1"]
	if l1.Hits != 1 {
		t.Errorf("expected 1 l1 hit, got %d", l1.Hits)
	}
	if l1.Misses != 1 {
		t.Errorf("expected 1 l1 miss, got %d", l1.Misses)
	}
	if l1.Evictions != 1 {
		t.Errorf("expected 1 l1 eviction, got %d", l1.Evictions)
	}
	if snap.CacheLayers["l2"].Misses != 1 {
		t.Errorf("expected 1 l2 miss, got %d", snap.CacheLayers["l2"].Misses)
	}
}
