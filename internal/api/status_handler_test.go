// Copyright 2026 The AgentHive Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/agenthive/agenthive/internal/config"
)

func newStatusServer(t *testing.T, cfg *config.Config) *Server {
	t.Helper()
	gin.SetMode(gin.TestMode)
	return NewServer(cfg, Deps{})
}

func TestStatusHandler_Healthy(t *testing.T) {
	dataDir := t.TempDir()

	historyPath := filepath.Join(dataDir, "history.db")
	if err := os.WriteFile(historyPath, []byte("test db"), 0600); err != nil {
		t.Fatalf("Failed to create database file: %v", err)
	}

	cfg := &config.Config{
		DataDir: dataDir,
		History: config.HistoryConfig{
			Enabled: true,
			Path:    "history.db",
		},
	}
	server := newStatusServer(t, cfg)

	req := httptest.NewRequest(http.MethodGet, "/v1/status", nil)
	w := httptest.NewRecorder()
	server.engine.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("Expected status code %d, got %d", http.StatusOK, w.Code)
	}

	var status DataDirStatus
	if err := json.Unmarshal(w.Body.Bytes(), &status); err != nil {
		t.Fatalf("Failed to parse response: %v", err)
	}

	if status.DataDir != dataDir {
		t.Errorf("Expected data dir %s, got %s", dataDir, status.DataDir)
	}
	if !status.Initialized {
		t.Error("Expected initialized to be true")
	}
	if status.HistoryDatabase == nil {
		t.Fatal("Expected history database status to be present")
	}
	if !status.HistoryDatabase.Exists {
		t.Error("Expected history database to exist")
	}
	if status.PermissionStatus != "ok" {
		t.Errorf("Expected permission status 'ok', got '%s'", status.PermissionStatus)
	}
}

func TestStatusHandler_PermissiveDatabase(t *testing.T) {
	dataDir := t.TempDir()

	historyPath := filepath.Join(dataDir, "history.db")
	if err := os.WriteFile(historyPath, []byte("test db"), 0644); err != nil {
		t.Fatalf("Failed to create database file: %v", err)
	}

	cfg := &config.Config{
		DataDir: dataDir,
		History: config.HistoryConfig{
			Enabled: true,
			Path:    "history.db",
		},
	}
	server := newStatusServer(t, cfg)

	req := httptest.NewRequest(http.MethodGet, "/v1/status", nil)
	w := httptest.NewRecorder()
	server.engine.ServeHTTP(w, req)

	var status DataDirStatus
	if err := json.Unmarshal(w.Body.Bytes(), &status); err != nil {
		t.Fatalf("Failed to parse response: %v", err)
	}

	if status.PermissionStatus != "warning" {
		t.Errorf("Expected permission status 'warning', got '%s'", status.PermissionStatus)
	}
	if len(status.Warnings) == 0 {
		t.Error("Expected a permissions warning")
	}
}

func TestStatusHandler_MissingDataDir(t *testing.T) {
	cfg := &config.Config{
		DataDir: filepath.Join(t.TempDir(), "does-not-exist"),
	}
	server := newStatusServer(t, cfg)

	req := httptest.NewRequest(http.MethodGet, "/v1/status", nil)
	w := httptest.NewRecorder()
	server.engine.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("Expected status code %d, got %d", http.StatusOK, w.Code)
	}

	var status DataDirStatus
	if err := json.Unmarshal(w.Body.Bytes(), &status); err != nil {
		t.Fatalf("Failed to parse response: %v", err)
	}

	if status.Initialized {
		t.Error("Expected initialized to be false")
	}
	if status.PermissionStatus != "warning" {
		t.Errorf("Expected permission status 'warning', got '%s'", status.PermissionStatus)
	}
}

func TestStatusHandler_SQLiteCacheBackend(t *testing.T) {
	dataDir := t.TempDir()

	cfg := &config.Config{
		DataDir: dataDir,
		Cache: config.CacheConfig{
			L2: config.L2Config{
				Backend: "sqlite",
				Path:    "cache.db",
			},
		},
	}
	server := newStatusServer(t, cfg)

	req := httptest.NewRequest(http.MethodGet, "/v1/status", nil)
	w := httptest.NewRecorder()
	server.engine.ServeHTTP(w, req)

	var status DataDirStatus
	if err := json.Unmarshal(w.Body.Bytes(), &status); err != nil {
		t.Fatalf("Failed to parse response: %v", err)
	}

	if status.CacheDatabase == nil {
		t.Fatal("Expected cache database status to be present")
	}
	if status.CacheDatabase.Exists {
		t.Error("Expected cache database to not exist yet")
	}
	if status.CacheDatabase.Path != filepath.Join(dataDir, "cache.db") {
		t.Errorf("Unexpected cache database path: %s", status.CacheDatabase.Path)
	}
}
