// Copyright 2026 The AgentHive Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package config defines the YAML configuration surface of the AgentHive
// server and the loading rules applied at startup: defaults, environment
// expansion, sanitization, and management-key hashing.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"golang.org/x/crypto/bcrypt"
	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure loaded from hive.yaml.
type Config struct {
	// Host is the interface the API server binds to. Empty binds all interfaces.
	Host string `yaml:"host" json:"host"`

	// Port is the API server port. Default: 8317.
	Port int `yaml:"port" json:"port"`

	// TLS holds HTTPS server settings.
	TLS TLSConfig `yaml:"tls" json:"tls"`

	// Debug enables debug-level logging and gin debug mode.
	Debug bool `yaml:"debug" json:"debug"`

	// LoggingToFile redirects logs from stdout to rotating files under LogDir.
	LoggingToFile bool `yaml:"logging-to-file" json:"logging-to-file"`

	// LogDir is the directory rotating log files are written to. Default: "logs".
	LogDir string `yaml:"log-dir" json:"log-dir"`

	// LogMaxSizeMB caps a single log file before rotation. Default: 10.
	LogMaxSizeMB int `yaml:"log-max-size-mb" json:"log-max-size-mb"`

	// LogMaxBackups caps the number of rotated files kept. Zero keeps all.
	LogMaxBackups int `yaml:"log-max-backups" json:"log-max-backups"`

	// DataDir is the writable root for SQLite databases, rule-pack checkouts,
	// and archive spool files. Default: "data".
	DataDir string `yaml:"data-dir" json:"data-dir"`

	// Management holds the management API settings.
	Management Management `yaml:"management" json:"management"`

	// Routing configures the router chain and rule-pack loading.
	Routing RoutingConfig `yaml:"routing" json:"routing"`

	// Cache configures the routing decision cache and its layers.
	Cache CacheConfig `yaml:"cache" json:"cache"`

	// Providers lists the LLM providers available to the classifier node.
	Providers []ProviderConfig `yaml:"providers" json:"providers"`

	// Balancer configures circuit breaking across providers.
	Balancer BalancerConfig `yaml:"balancer" json:"balancer"`

	// Metrics configures the metrics collector.
	Metrics MetricsConfig `yaml:"metrics" json:"metrics"`

	// History configures the routing decision journal.
	History HistoryConfig `yaml:"history" json:"history"`

	// Hooks configures the event hook system.
	Hooks HooksConfig `yaml:"hooks" json:"hooks"`
}

// TLSConfig holds HTTPS server settings.
type TLSConfig struct {
	// Enable toggles HTTPS server mode.
	Enable bool `yaml:"enable" json:"enable"`
	// Cert is the path to the TLS certificate file.
	Cert string `yaml:"cert" json:"cert"`
	// Key is the path to the TLS private key file.
	Key string `yaml:"key" json:"key"`
}

// Management holds management API configuration under 'management'.
type Management struct {
	// AllowRemote toggles remote (non-localhost) access to management endpoints.
	AllowRemote bool `yaml:"allow-remote" json:"allow-remote"`
	// SecretKey is the management key (plaintext or bcrypt hashed). Plaintext
	// values are hashed on first load and persisted back. YAML key intentionally 'secret-key'.
	SecretKey string `yaml:"secret-key" json:"-"`
}

// RoutingConfig configures the router chain.
type RoutingConfig struct {
	// Order selects node ordering. Supported values: "regex-first" (default), "llm-first".
	Order string `yaml:"order" json:"order"`

	// RulePack is the rule-pack source: a local YAML path or a
	// "git+https://..." URL fetched into DataDir at startup. A "#path"
	// fragment selects the file inside the repository (default rulepack.yaml).
	RulePack string `yaml:"rule-pack" json:"rule-pack"`

	// RulePackRef pins the git reference (branch or tag) for git rule-pack
	// sources. Default: the remote default branch.
	RulePackRef string `yaml:"rule-pack-ref" json:"rule-pack-ref"`

	// Model is the model name requested for classification calls.
	Model string `yaml:"model" json:"model"`

	// Temperature for classification calls. Default: 0.1.
	Temperature float64 `yaml:"temperature" json:"temperature"`

	// MaxTokens caps the classification completion. Default: 300.
	MaxTokens int `yaml:"max-tokens" json:"max-tokens"`

	// TimeoutSeconds bounds a single classification call. Default: 60.
	TimeoutSeconds int `yaml:"timeout-seconds" json:"timeout-seconds"`

	// HistoryTokenBudget caps conversation-history tokens appended to the
	// classification prompt, measured with the cl100k tokenizer. Default: 1024.
	HistoryTokenBudget int `yaml:"history-token-budget" json:"history-token-budget"`
}

// CacheConfig configures the routing decision cache.
type CacheConfig struct {
	// Enabled toggles the decision cache. Accuracy test runs disable it.
	Enabled bool `yaml:"enabled" json:"enabled"`

	// TTLSeconds is the lifetime of a cached decision. Default: 3600.
	TTLSeconds int `yaml:"ttl-seconds" json:"ttl-seconds"`

	// L1 configures the in-memory LRU layer.
	L1 L1Config `yaml:"l1" json:"l1"`

	// L2 configures the shared key-value backing store.
	L2 L2Config `yaml:"l2" json:"l2"`
}

// L1Config configures the in-memory LRU cache layer.
type L1Config struct {
	// Enabled toggles the layer. Default: true.
	Enabled bool `yaml:"enabled" json:"enabled"`
	// MaxEntries caps the number of cached decisions. Default: 1000.
	MaxEntries int `yaml:"max-entries" json:"max-entries"`
}

// L2Config configures the shared key-value store backing the L1 layer.
type L2Config struct {
	// Backend selects the store. Supported values: "none" (default), "sqlite", "postgres".
	Backend string `yaml:"backend" json:"backend"`
	// Path is the SQLite database file, resolved under DataDir when relative.
	Path string `yaml:"path" json:"path"`
	// DSN is the PostgreSQL connection string. Supports ${ENV} expansion.
	DSN string `yaml:"dsn" json:"-"`
	// Table is the key-value table name. Default: "hive_cache".
	Table string `yaml:"table" json:"table"`
	// CompressMinBytes gzip-compresses stored values at or above this size.
	// Zero disables compression. Default: 4096.
	CompressMinBytes int `yaml:"compress-min-bytes" json:"compress-min-bytes"`
}

// ProviderConfig describes one LLM provider usable by the classifier node.
type ProviderConfig struct {
	// Name identifies the provider in logs, metrics, and balancer state.
	Name string `yaml:"name" json:"name"`

	// Type selects the adapter. Supported values: "openai-compat", "ollama".
	Type string `yaml:"type" json:"type"`

	// BaseURL is the provider API endpoint (e.g. https://api.openai.com/v1
	// or http://localhost:11434).
	BaseURL string `yaml:"base-url" json:"base-url"`

	// APIKey is the bearer key for api-key auth. Supports ${ENV} expansion.
	APIKey string `yaml:"api-key" json:"-"`

	// Model overrides Routing.Model for this provider when set.
	Model string `yaml:"model" json:"model"`

	// TimeoutSeconds bounds a single call to this provider. Default: Routing.TimeoutSeconds.
	TimeoutSeconds int `yaml:"timeout-seconds" json:"timeout-seconds"`

	// Auth configures OAuth2 client-credentials authentication for enterprise
	// gateways. When TokenURL is set it takes precedence over APIKey.
	Auth ProviderAuth `yaml:"auth" json:"auth"`
}

// ProviderAuth holds OAuth2 client-credentials settings for a provider.
type ProviderAuth struct {
	// TokenURL is the OAuth2 token endpoint. Empty selects plain api-key auth.
	TokenURL string `yaml:"token-url" json:"token-url"`
	// ClientID for the client-credentials grant. Supports ${ENV} expansion.
	ClientID string `yaml:"client-id" json:"-"`
	// ClientSecret for the client-credentials grant. Supports ${ENV} expansion.
	ClientSecret string `yaml:"client-secret" json:"-"`
	// Scopes requested with the token.
	Scopes []string `yaml:"scopes" json:"scopes"`
}

// BalancerConfig configures the circuit breaker wrapping provider calls.
type BalancerConfig struct {
	// FailureThreshold is the consecutive-failure count that opens a breaker. Default: 5.
	FailureThreshold int `yaml:"failure-threshold" json:"failure-threshold"`
	// CooldownSeconds is how long an open breaker waits before half-open. Default: 30.
	CooldownSeconds int `yaml:"cooldown-seconds" json:"cooldown-seconds"`
}

// MetricsConfig configures the metrics collector.
type MetricsConfig struct {
	// Enabled toggles metrics collection; disabled routing still works. Default: true.
	Enabled bool `yaml:"enabled" json:"enabled"`
	// Prometheus additionally registers Prometheus collectors served at /metrics.
	Prometheus bool `yaml:"prometheus" json:"prometheus"`
	// LatencySampleSize bounds the latency sample window. Default: 1000.
	LatencySampleSize int `yaml:"latency-sample-size" json:"latency-sample-size"`
}

// HistoryConfig configures the routing decision journal.
type HistoryConfig struct {
	// Enabled toggles the journal. Default: true.
	Enabled bool `yaml:"enabled" json:"enabled"`
	// Path is the SQLite database file, resolved under DataDir when relative. Default: "history.db".
	Path string `yaml:"path" json:"path"`
	// RetentionDays is how long journal rows are kept. Default: 90.
	RetentionDays int `yaml:"retention-days" json:"retention-days"`
	// Archive configures gzip'd JSONL exports to S3-compatible storage.
	Archive ArchiveConfig `yaml:"archive" json:"archive"`
}

// ArchiveConfig holds S3-compatible archive settings for the history journal.
type ArchiveConfig struct {
	// Enabled toggles archive uploads.
	Enabled bool `yaml:"enabled" json:"enabled"`
	// Endpoint is the S3-compatible host (e.g. minio.internal:9000).
	Endpoint string `yaml:"endpoint" json:"endpoint"`
	// AccessKey for the bucket. Supports ${ENV} expansion.
	AccessKey string `yaml:"access-key" json:"-"`
	// SecretKey for the bucket. Supports ${ENV} expansion.
	SecretKey string `yaml:"secret-key" json:"-"`
	// Bucket receiving archive objects.
	Bucket string `yaml:"bucket" json:"bucket"`
	// Prefix prepended to archive object names.
	Prefix string `yaml:"prefix" json:"prefix"`
	// Secure toggles TLS for the endpoint. Default: true.
	Secure bool `yaml:"secure" json:"secure"`
}

// HooksConfig configures the event hook system.
type HooksConfig struct {
	// Enabled toggles hook loading and execution.
	Enabled bool `yaml:"enabled" json:"enabled"`
	// Dir is the directory containing hook YAML files. Default: "hooks".
	Dir string `yaml:"dir" json:"dir"`
	// Watch hot-reloads hook definitions when files under Dir change. Default: true.
	Watch bool `yaml:"watch" json:"watch"`
}

// LoadConfig reads a YAML configuration file from the given path, applies
// defaults, environment expansion, and sanitization, and returns it.
func LoadConfig(configFile string) (*Config, error) {
	data, err := os.ReadFile(configFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := defaultConfig()
	if err = yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.applyEnvOverrides()
	cfg.expandSecrets()
	cfg.SanitizeRouting()
	cfg.SanitizeCache()
	cfg.SanitizeProviders()
	cfg.SanitizeBalancer()
	cfg.SanitizeHistory()

	// Hash the management key if plaintext is detected. A value is considered
	// already hashed when it carries a bcrypt prefix ($2a$, $2b$, or $2y$).
	if cfg.Management.SecretKey != "" && !looksLikeBcrypt(cfg.Management.SecretKey) {
		hashed, errHash := hashSecret(cfg.Management.SecretKey)
		if errHash != nil {
			return nil, fmt.Errorf("failed to hash management key: %w", errHash)
		}
		cfg.Management.SecretKey = hashed

		// Persist the hashed value back so the plaintext never survives on
		// disk and the next startup skips re-hashing. Comments and key
		// ordering in the file are preserved.
		_ = SaveConfigPreserveCommentsUpdateNestedScalar(configFile, []string{"management", "secret-key"}, hashed)
	}

	return cfg, nil
}

// defaultConfig returns a Config populated with startup defaults. Absent YAML
// keys keep these values.
func defaultConfig() *Config {
	cfg := &Config{}
	cfg.Port = 8317
	cfg.LogDir = "logs"
	cfg.LogMaxSizeMB = 10
	cfg.DataDir = "data"

	cfg.Routing.Order = "regex-first"
	cfg.Routing.Temperature = 0.1
	cfg.Routing.MaxTokens = 300
	cfg.Routing.TimeoutSeconds = 60
	cfg.Routing.HistoryTokenBudget = 1024

	cfg.Cache.Enabled = true
	cfg.Cache.TTLSeconds = 3600
	cfg.Cache.L1.Enabled = true
	cfg.Cache.L1.MaxEntries = 1000
	cfg.Cache.L2.Backend = "none"
	cfg.Cache.L2.Table = "hive_cache"
	cfg.Cache.L2.CompressMinBytes = 4096

	cfg.Balancer.FailureThreshold = 5
	cfg.Balancer.CooldownSeconds = 30

	cfg.Metrics.Enabled = true
	cfg.Metrics.LatencySampleSize = 1000

	cfg.History.Enabled = true
	cfg.History.Path = "history.db"
	cfg.History.RetentionDays = 90
	cfg.History.Archive.Secure = true

	cfg.Hooks.Dir = "hooks"
	cfg.Hooks.Watch = true
	return cfg
}

// applyEnvOverrides applies AGENTHIVE_* environment variables over the file
// values. Only operational knobs are overridable; structural configuration
// (providers, rules) stays in the file.
func (cfg *Config) applyEnvOverrides() {
	if v := strings.TrimSpace(os.Getenv("AGENTHIVE_HOST")); v != "" {
		cfg.Host = v
	}
	if v := strings.TrimSpace(os.Getenv("AGENTHIVE_PORT")); v != "" {
		if port, err := strconv.Atoi(v); err == nil && port > 0 {
			cfg.Port = port
		}
	}
	if v := strings.TrimSpace(os.Getenv("AGENTHIVE_SECRET_KEY")); v != "" {
		cfg.Management.SecretKey = v
	}
	if v := strings.TrimSpace(os.Getenv("AGENTHIVE_DATA_DIR")); v != "" {
		cfg.DataDir = v
	}
	if v := strings.TrimSpace(os.Getenv("AGENTHIVE_DEBUG")); v != "" {
		cfg.Debug = v == "1" || strings.EqualFold(v, "true")
	}
}

// expandSecrets runs ${ENV} expansion on the fields that commonly reference
// environment variables instead of inline secrets.
func (cfg *Config) expandSecrets() {
	for i := range cfg.Providers {
		p := &cfg.Providers[i]
		p.APIKey = os.ExpandEnv(p.APIKey)
		p.Auth.ClientID = os.ExpandEnv(p.Auth.ClientID)
		p.Auth.ClientSecret = os.ExpandEnv(p.Auth.ClientSecret)
	}
	cfg.Cache.L2.DSN = os.ExpandEnv(cfg.Cache.L2.DSN)
	cfg.History.Archive.AccessKey = os.ExpandEnv(cfg.History.Archive.AccessKey)
	cfg.History.Archive.SecretKey = os.ExpandEnv(cfg.History.Archive.SecretKey)
}

// SanitizeRouting normalizes the routing section and rejects unknown orderings.
func (cfg *Config) SanitizeRouting() {
	cfg.Routing.Order = strings.ToLower(strings.TrimSpace(cfg.Routing.Order))
	switch cfg.Routing.Order {
	case "", "regex-first":
		cfg.Routing.Order = "regex-first"
	case "llm-first":
	default:
		cfg.Routing.Order = "regex-first"
	}
	if cfg.Routing.Temperature < 0 {
		cfg.Routing.Temperature = 0
	}
	if cfg.Routing.MaxTokens <= 0 {
		cfg.Routing.MaxTokens = 300
	}
	if cfg.Routing.TimeoutSeconds <= 0 {
		cfg.Routing.TimeoutSeconds = 60
	}
	if cfg.Routing.HistoryTokenBudget < 0 {
		cfg.Routing.HistoryTokenBudget = 0
	}
	cfg.Routing.RulePack = strings.TrimSpace(cfg.Routing.RulePack)
	cfg.Routing.RulePackRef = strings.TrimSpace(cfg.Routing.RulePackRef)
}

// SanitizeCache normalizes the cache section.
func (cfg *Config) SanitizeCache() {
	if cfg.Cache.TTLSeconds <= 0 {
		cfg.Cache.TTLSeconds = 3600
	}
	if cfg.Cache.L1.MaxEntries <= 0 {
		cfg.Cache.L1.MaxEntries = 1000
	}
	cfg.Cache.L2.Backend = strings.ToLower(strings.TrimSpace(cfg.Cache.L2.Backend))
	switch cfg.Cache.L2.Backend {
	case "", "none":
		cfg.Cache.L2.Backend = "none"
	case "sqlite", "postgres":
	default:
		cfg.Cache.L2.Backend = "none"
	}
	if cfg.Cache.L2.Table == "" {
		cfg.Cache.L2.Table = "hive_cache"
	}
	if cfg.Cache.L2.CompressMinBytes < 0 {
		cfg.Cache.L2.CompressMinBytes = 0
	}
}

// SanitizeProviders removes provider entries that are not actionable,
// specifically those missing a BaseURL or carrying an unknown type. It trims
// whitespace before evaluation and preserves the relative order of remaining entries.
func (cfg *Config) SanitizeProviders() {
	if len(cfg.Providers) == 0 {
		return
	}
	out := make([]ProviderConfig, 0, len(cfg.Providers))
	for i := range cfg.Providers {
		p := cfg.Providers[i]
		p.Name = strings.TrimSpace(p.Name)
		p.Type = strings.ToLower(strings.TrimSpace(p.Type))
		p.BaseURL = strings.TrimSpace(p.BaseURL)
		p.APIKey = strings.TrimSpace(p.APIKey)
		p.Model = strings.TrimSpace(p.Model)
		if p.BaseURL == "" {
			continue
		}
		switch p.Type {
		case "openai-compat", "ollama":
		default:
			continue
		}
		if p.Name == "" {
			p.Name = p.Type
		}
		if p.TimeoutSeconds <= 0 {
			p.TimeoutSeconds = cfg.Routing.TimeoutSeconds
		}
		out = append(out, p)
	}
	cfg.Providers = out
}

// SanitizeBalancer normalizes breaker thresholds.
func (cfg *Config) SanitizeBalancer() {
	if cfg.Balancer.FailureThreshold <= 0 {
		cfg.Balancer.FailureThreshold = 5
	}
	if cfg.Balancer.CooldownSeconds <= 0 {
		cfg.Balancer.CooldownSeconds = 30
	}
}

// SanitizeHistory normalizes the history section.
func (cfg *Config) SanitizeHistory() {
	if cfg.History.Path == "" {
		cfg.History.Path = "history.db"
	}
	if cfg.History.RetentionDays <= 0 {
		cfg.History.RetentionDays = 90
	}
	cfg.History.Archive.Endpoint = strings.TrimSpace(cfg.History.Archive.Endpoint)
	cfg.History.Archive.Bucket = strings.TrimSpace(cfg.History.Archive.Bucket)
	if cfg.History.Archive.Enabled && (cfg.History.Archive.Endpoint == "" || cfg.History.Archive.Bucket == "") {
		cfg.History.Archive.Enabled = false
	}
}

// ResolveDataPath resolves a path from the configuration against DataDir.
// Absolute paths pass through; relative paths land inside the data
// directory so a default config keeps all writable state in one place.
func (cfg *Config) ResolveDataPath(p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(cfg.DataDir, p)
}

// CheckManagementKey reports whether the provided plaintext key matches the
// configured management key. Hashed keys compare with bcrypt; a plaintext
// configured key (possible when env overrides bypass LoadConfig hashing)
// compares byte-wise.
func (cfg *Config) CheckManagementKey(plaintext string) bool {
	stored := cfg.Management.SecretKey
	if stored == "" || plaintext == "" {
		return false
	}
	if looksLikeBcrypt(stored) {
		return bcrypt.CompareHashAndPassword([]byte(stored), []byte(plaintext)) == nil
	}
	return stored == plaintext
}

// looksLikeBcrypt returns true if the provided string appears to be a bcrypt hash.
func looksLikeBcrypt(s string) bool {
	return len(s) > 4 && (s[:4] == "$2a$" || s[:4] == "$2b$" || s[:4] == "$2y$")
}

// hashSecret hashes the given secret using bcrypt.
func hashSecret(secret string) (string, error) {
	// Use default cost for simplicity.
	hashedBytes, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hashedBytes), nil
}

// SaveConfigPreserveCommentsUpdateNestedScalar updates a single nested scalar
// value in the YAML file while preserving comments and key ordering: the file
// is parsed into a yaml.Node tree, the path is walked (creating missing
// mapping levels), and the tree is marshaled back.
func SaveConfigPreserveCommentsUpdateNestedScalar(configFile string, path []string, value string) error {
	if len(path) == 0 {
		return fmt.Errorf("empty key path")
	}
	data, err := os.ReadFile(configFile)
	if err != nil {
		return err
	}

	var doc yaml.Node
	if err = yaml.Unmarshal(data, &doc); err != nil {
		return err
	}
	if doc.Kind != yaml.DocumentNode || len(doc.Content) == 0 || doc.Content[0] == nil || doc.Content[0].Kind != yaml.MappingNode {
		return fmt.Errorf("invalid yaml document structure")
	}

	node := doc.Content[0]
	for depth, key := range path {
		last := depth == len(path)-1
		var valueNode *yaml.Node
		for i := 0; i+1 < len(node.Content); i += 2 {
			if node.Content[i].Value == key {
				valueNode = node.Content[i+1]
				break
			}
		}
		if valueNode == nil {
			keyNode := &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: key}
			if last {
				valueNode = &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: value}
			} else {
				valueNode = &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
			}
			node.Content = append(node.Content, keyNode, valueNode)
		}
		if last {
			valueNode.Kind = yaml.ScalarNode
			valueNode.Tag = "!!str"
			valueNode.Value = value
			valueNode.Style = 0
			break
		}
		if valueNode.Kind != yaml.MappingNode {
			valueNode.Kind = yaml.MappingNode
			valueNode.Tag = "!!map"
			valueNode.Content = nil
		}
		node = valueNode
	}

	out, err := yaml.Marshal(&doc)
	if err != nil {
		return err
	}
	return os.WriteFile(configFile, out, 0o600)
}
