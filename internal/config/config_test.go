// Copyright 2026 The AgentHive Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package config

import (
	"os"
	"strings"
	"testing"
)

func TestLoadConfig_Defaults(t *testing.T) {
	// Create a temporary empty config file
	f, err := os.CreateTemp("", "config_test_*.yaml")
	if err != nil {
		t.Fatalf("Failed to create temp file: %v", err)
	}
	defer os.Remove(f.Name())
	f.Close()

	// Load the config (should apply defaults)
	cfg, err := LoadConfig(f.Name())
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if cfg.Host != "" {
		t.Errorf("Host should be empty by default (bind all), got: %s", cfg.Host)
	}
	if cfg.Port != 8317 {
		t.Errorf("Port should default to 8317, got: %d", cfg.Port)
	}
	if cfg.Routing.Order != "regex-first" {
		t.Errorf("Routing order should default to regex-first, got: %s", cfg.Routing.Order)
	}
	if !cfg.Cache.Enabled {
		t.Error("Decision cache should be enabled by default")
	}
	if cfg.Cache.TTLSeconds != 3600 {
		t.Errorf("Cache TTL should default to 3600, got: %d", cfg.Cache.TTLSeconds)
	}
	if cfg.Cache.L1.MaxEntries != 1000 {
		t.Errorf("L1 max entries should default to 1000, got: %d", cfg.Cache.L1.MaxEntries)
	}
	if cfg.Cache.L2.Backend != "none" {
		t.Errorf("L2 backend should default to none, got: %s", cfg.Cache.L2.Backend)
	}
	if cfg.Balancer.FailureThreshold != 5 {
		t.Errorf("Failure threshold should default to 5, got: %d", cfg.Balancer.FailureThreshold)
	}
	if cfg.History.RetentionDays != 90 {
		t.Errorf("History retention should default to 90 days, got: %d", cfg.History.RetentionDays)
	}
}

func TestLoadConfig_ExplicitDisable(t *testing.T) {
	content := []byte("cache:\n  enabled: false\nmetrics:\n  enabled: false\n")
	f, err := os.CreateTemp("", "config_disable_*.yaml")
	if err != nil {
		t.Fatalf("Failed to create temp file: %v", err)
	}
	defer os.Remove(f.Name())
	if _, err := f.Write(content); err != nil {
		t.Fatalf("Failed to write to temp file: %v", err)
	}
	f.Close()

	cfg, err := LoadConfig(f.Name())
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if cfg.Cache.Enabled {
		t.Error("Config loader failed to respect explicit cache disable")
	}
	if cfg.Metrics.Enabled {
		t.Error("Config loader failed to respect explicit metrics disable")
	}
}

func TestLoadConfig_UnknownRoutingOrderFallsBack(t *testing.T) {
	content := []byte("routing:\n  order: shuffled\n")
	f, err := os.CreateTemp("", "config_order_*.yaml")
	if err != nil {
		t.Fatalf("Failed to create temp file: %v", err)
	}
	defer os.Remove(f.Name())
	if _, err := f.Write(content); err != nil {
		t.Fatalf("Failed to write to temp file: %v", err)
	}
	f.Close()

	cfg, err := LoadConfig(f.Name())
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}
	if cfg.Routing.Order != "regex-first" {
		t.Errorf("Unknown order should fall back to regex-first, got: %s", cfg.Routing.Order)
	}
}

func TestLoadConfig_HashesPlaintextManagementKey(t *testing.T) {
	content := []byte("management:\n  secret-key: hunter2\n")
	f, err := os.CreateTemp("", "config_secret_*.yaml")
	if err != nil {
		t.Fatalf("Failed to create temp file: %v", err)
	}
	defer os.Remove(f.Name())
	if _, err := f.Write(content); err != nil {
		t.Fatalf("Failed to write to temp file: %v", err)
	}
	f.Close()

	cfg, err := LoadConfig(f.Name())
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if !looksLikeBcrypt(cfg.Management.SecretKey) {
		t.Errorf("Plaintext key should be hashed on load, got: %s", cfg.Management.SecretKey)
	}
	if !cfg.CheckManagementKey("hunter2") {
		t.Error("CheckManagementKey should accept the original plaintext")
	}
	if cfg.CheckManagementKey("wrong") {
		t.Error("CheckManagementKey should reject a wrong key")
	}

	// The plaintext must not survive in the file.
	persisted, err := os.ReadFile(f.Name())
	if err != nil {
		t.Fatalf("Failed to re-read config file: %v", err)
	}
	if strings.Contains(string(persisted), "hunter2") {
		t.Error("Plaintext management key persisted back to disk")
	}

	// A second load must not re-hash the already-hashed value.
	cfg2, err := LoadConfig(f.Name())
	if err != nil {
		t.Fatalf("Failed to re-load config: %v", err)
	}
	if cfg2.Management.SecretKey != cfg.Management.SecretKey {
		t.Error("Hashed key should be stable across loads")
	}
}

func TestLoadConfig_ProviderSanitization(t *testing.T) {
	content := []byte(`providers:
  - name: primary
    type: openai-compat
    base-url: https://api.example.com/v1
    api-key: sk-test
  - name: broken
    type: openai-compat
  - name: exotic
    type: carrier-pigeon
    base-url: https://birds.example.com
`)
	f, err := os.CreateTemp("", "config_providers_*.yaml")
	if err != nil {
		t.Fatalf("Failed to create temp file: %v", err)
	}
	defer os.Remove(f.Name())
	if _, err := f.Write(content); err != nil {
		t.Fatalf("Failed to write to temp file: %v", err)
	}
	f.Close()

	cfg, err := LoadConfig(f.Name())
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if len(cfg.Providers) != 1 {
		t.Fatalf("Expected 1 surviving provider, got %d", len(cfg.Providers))
	}
	if cfg.Providers[0].Name != "primary" {
		t.Errorf("Wrong provider survived sanitization: %s", cfg.Providers[0].Name)
	}
	if cfg.Providers[0].TimeoutSeconds != cfg.Routing.TimeoutSeconds {
		t.Errorf("Provider timeout should inherit routing timeout, got %d", cfg.Providers[0].TimeoutSeconds)
	}
}

func TestLoadConfig_EnvExpansion(t *testing.T) {
	t.Setenv("HIVE_TEST_API_KEY", "sk-from-env")
	content := []byte(`providers:
  - name: primary
    type: openai-compat
    base-url: https://api.example.com/v1
    api-key: ${HIVE_TEST_API_KEY}
`)
	f, err := os.CreateTemp("", "config_env_*.yaml")
	if err != nil {
		t.Fatalf("Failed to create temp file: %v", err)
	}
	defer os.Remove(f.Name())
	if _, err := f.Write(content); err != nil {
		t.Fatalf("Failed to write to temp file: %v", err)
	}
	f.Close()

	cfg, err := LoadConfig(f.Name())
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}
	if cfg.Providers[0].APIKey != "sk-from-env" {
		t.Errorf("API key env expansion failed, got: %s", cfg.Providers[0].APIKey)
	}
}
