// Copyright 2026 The AgentHive Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package api

import (
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/gin-gonic/gin"
)

// DataDirStatus describes the health of the server's writable state: the
// data directory and the files the journal, cache, and hook system keep
// there.
type DataDirStatus struct {
	DataDir          string      `json:"data_dir"`
	Initialized      bool        `json:"initialized"`
	HistoryDatabase  *FileStatus `json:"history_database,omitempty"`
	CacheDatabase    *FileStatus `json:"cache_database,omitempty"`
	HooksDir         *FileStatus `json:"hooks_dir,omitempty"`
	RulePackCheckout *FileStatus `json:"rule_pack_checkout,omitempty"`
	PermissionStatus string      `json:"permission_status"` // "ok", "warning", "error"
	Warnings         []string    `json:"warnings,omitempty"`
	Errors           []string    `json:"errors,omitempty"`
}

// FileStatus is the on-disk state of one tracked path.
type FileStatus struct {
	Path    string    `json:"path"`
	Exists  bool      `json:"exists"`
	Size    int64     `json:"size"`
	Mode    string    `json:"mode"`
	ModTime time.Time `json:"mod_time,omitempty"`
}

// getFileStatus retrieves the status of a file at the given path.
func getFileStatus(path string) *FileStatus {
	status := &FileStatus{
		Path:   path,
		Exists: false,
	}

	info, err := os.Stat(path)
	if err != nil {
		// File doesn't exist or can't be accessed
		return status
	}

	status.Exists = true
	status.Size = info.Size()
	status.Mode = info.Mode().String()
	status.ModTime = info.ModTime()

	return status
}

// handleStatus reports the data directory's health for the /v1/status
// endpoint: which state files exist, their sizes, and whether the
// database permissions are tighter than group/world access.
func (s *Server) handleStatus(c *gin.Context) {
	status := &DataDirStatus{
		DataDir:          s.cfg.DataDir,
		Initialized:      true,
		PermissionStatus: "ok",
		Warnings:         []string{},
		Errors:           []string{},
	}

	if _, err := os.Stat(s.cfg.DataDir); err != nil {
		if os.IsNotExist(err) {
			status.Warnings = append(status.Warnings, "data directory does not exist")
			status.PermissionStatus = "warning"
			status.Initialized = false
		} else {
			status.Errors = append(status.Errors, "failed to access data directory")
			status.PermissionStatus = "error"
		}
	}

	if s.cfg.History.Enabled {
		historyPath := s.cfg.ResolveDataPath(s.cfg.History.Path)
		status.HistoryDatabase = getFileStatus(historyPath)
		s.checkDatabasePermissions(status, historyPath, "history database")
	}

	if s.cfg.Cache.L2.Backend == "sqlite" && s.cfg.Cache.L2.Path != "" {
		cachePath := s.cfg.ResolveDataPath(s.cfg.Cache.L2.Path)
		status.CacheDatabase = getFileStatus(cachePath)
		s.checkDatabasePermissions(status, cachePath, "cache database")
	}

	if s.cfg.Hooks.Enabled {
		status.HooksDir = getFileStatus(s.cfg.Hooks.Dir)
	}

	checkoutRoot := filepath.Join(s.cfg.DataDir, "rulepacks")
	if info, err := os.Stat(checkoutRoot); err == nil && info.IsDir() {
		status.RulePackCheckout = getFileStatus(checkoutRoot)
	}

	c.JSON(http.StatusOK, status)
}

// checkDatabasePermissions appends a warning when a database file is
// readable beyond its owner.
func (s *Server) checkDatabasePermissions(status *DataDirStatus, path, label string) {
	info, err := os.Stat(path)
	if err != nil {
		return
	}
	mode := info.Mode().Perm()
	if mode&0077 != 0 {
		status.Warnings = append(status.Warnings, label+" has overly permissive permissions")
		if status.PermissionStatus == "ok" {
			status.PermissionStatus = "warning"
		}
	}
}
