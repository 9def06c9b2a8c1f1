// Copyright 2026 The AgentHive Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package main provides the entry point for the AgentHive router server.
// The server classifies incoming prompts through a chain of regex, LLM,
// and fallback nodes, remembers decisions in a TTL cache, and exposes the
// routing surface plus management endpoints over HTTP.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	log "github.com/sirupsen/logrus"
	"github.com/skratchdot/open-golang/open"

	"github.com/agenthive/agenthive/internal/api"
	"github.com/agenthive/agenthive/internal/balancer"
	"github.com/agenthive/agenthive/internal/buildinfo"
	"github.com/agenthive/agenthive/internal/cache"
	"github.com/agenthive/agenthive/internal/config"
	"github.com/agenthive/agenthive/internal/history"
	"github.com/agenthive/agenthive/internal/hooks"
	"github.com/agenthive/agenthive/internal/logging"
	"github.com/agenthive/agenthive/internal/metrics"
	"github.com/agenthive/agenthive/internal/provider"
	"github.com/agenthive/agenthive/internal/routing"
	"github.com/agenthive/agenthive/internal/rulepack"
)

// Build metadata, overridden via -ldflags at release time.
var (
	Version           = "dev"
	Commit            = "none"
	BuildDate         = "unknown"
	DefaultConfigPath = ""
)

// init initializes the shared logger setup.
func init() {
	logging.SetupBaseLogger()
	buildinfo.Version = Version
	buildinfo.Commit = Commit
	buildinfo.BuildDate = BuildDate
}

func main() {
	var (
		configPath  string
		portFlag    int
		openBrowser bool
		showVersion bool
	)

	flag.StringVar(&configPath, "config", DefaultConfigPath, "Configuration file path")
	flag.IntVar(&portFlag, "port", 0, "Override the configured listen port")
	flag.BoolVar(&openBrowser, "open", false, "Open the stats page in the default browser after startup")
	flag.BoolVar(&showVersion, "version", false, "Print version information and exit")
	flag.Parse()

	if showVersion {
		fmt.Printf("AgentHive Version: %s, Commit: %s, BuiltAt: %s\n", buildinfo.Version, buildinfo.Commit, buildinfo.BuildDate)
		return
	}

	wd, err := os.Getwd()
	if err != nil {
		log.Errorf("failed to get working directory: %v", err)
		return
	}

	// Load environment variables from .env if present.
	if errLoad := godotenv.Load(filepath.Join(wd, ".env")); errLoad != nil {
		if !errors.Is(errLoad, os.ErrNotExist) {
			log.WithError(errLoad).Warn("failed to load .env file")
		}
	}

	if configPath == "" {
		configPath = filepath.Join(wd, "config.yaml")
	}
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		log.Errorf("failed to load config: %v", err)
		return
	}
	if portFlag > 0 {
		cfg.Port = portFlag
	}

	if err = logging.ConfigureLogOutput(cfg.LoggingToFile, cfg.LogDir, cfg.LogMaxSizeMB, cfg.LogMaxBackups); err != nil {
		log.Errorf("failed to configure log output: %v", err)
		return
	}
	if cfg.Debug {
		logging.SetLevel("debug")
	} else {
		logging.SetLevel("info")
	}

	log.Infof("AgentHive Version: %s, Commit: %s, BuiltAt: %s", buildinfo.Version, buildinfo.Commit, buildinfo.BuildDate)

	if err = os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		log.Errorf("failed to create data directory %q: %v", cfg.DataDir, err)
		return
	}

	ctxSignal, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Rule pack: git checkout, local file, or built-in defaults.
	rules, catalog, packSource, err := loadRules(ctxSignal, cfg)
	if err != nil {
		log.Errorf("failed to load rule pack: %v", err)
		return
	}

	// Providers and the circuit-breaking balancer over them.
	providers := make([]balancer.Provider, 0, len(cfg.Providers))
	for _, pc := range cfg.Providers {
		p, errProvider := provider.New(pc)
		if errProvider != nil {
			log.Errorf("failed to configure provider %q: %v", pc.Name, errProvider)
			return
		}
		providers = append(providers, p)
	}
	pool := balancer.NewBalancer(providers, balancer.Config{
		FailureThreshold: cfg.Balancer.FailureThreshold,
		Cooldown:         time.Duration(cfg.Balancer.CooldownSeconds) * time.Second,
	})

	// Metrics: in-process snapshot collector, optionally mirrored to a
	// Prometheus registry served at /metrics.
	var (
		collector *metrics.Collector
		registry  *prometheus.Registry
	)
	sink := metrics.NewNop()
	if cfg.Metrics.Enabled {
		collector = metrics.NewCollector(cfg.Metrics.LatencySampleSize)
		sink = collector
		if cfg.Metrics.Prometheus {
			registry = prometheus.NewRegistry()
			sink = metrics.NewMulti(collector, metrics.NewPromSink(registry))
		}
	}
	pool.SetMetricsSink(sink)

	// The event bus carries routing_completed and friends to hooks, the
	// history journal, and anything else that subscribes.
	bus := hooks.NewBus()

	pool.SetTransitionFunc(func(providerName string, from, to balancer.State) {
		bus.PublishAsync(hooks.NewEvent(hooks.EventCircuitStateChanged, map[string]any{
			"provider": providerName,
			"from":     from.String(),
			"to":       to.String(),
		}))
	})
	pool.SetFailureFunc(func(providerName string, errCall error) {
		bus.PublishAsync(hooks.NewEvent(hooks.EventProviderFailure, map[string]any{
			"provider": providerName,
			"error":    errCall.Error(),
		}))
	})

	// Router chain. The LLM node only exists when at least one provider is
	// configured; without it regex escalates straight to the fallback.
	var llmNode *routing.LLMNode
	if len(providers) > 0 {
		llmNode = routing.NewLLMNode(pool, catalog, routing.LLMNodeConfig{
			Model:              cfg.Routing.Model,
			Temperature:        cfg.Routing.Temperature,
			MaxTokens:          cfg.Routing.MaxTokens,
			Timeout:            time.Duration(cfg.Routing.TimeoutSeconds) * time.Second,
			HistoryTokenBudget: cfg.Routing.HistoryTokenBudget,
		})
	}
	chain, err := routing.NewChain(routing.Order(cfg.Routing.Order), routing.NewRegexNode(rules), llmNode, routing.NewFallbackNode())
	if err != nil {
		log.Errorf("failed to build router chain: %v", err)
		return
	}
	chain.SetMetricsSink(sink)

	// Decision cache: L1 LRU over an optional shared L2 backend.
	var store cache.Store
	if cfg.Cache.Enabled {
		var l1 *cache.LRU
		if cfg.Cache.L1.Enabled {
			l1 = cache.NewLRU(cfg.Cache.L1.MaxEntries)
		}
		var l2 cache.Backend
		switch cfg.Cache.L2.Backend {
		case "sqlite":
			l2, err = cache.NewSQLiteStore(cfg.ResolveDataPath(cfg.Cache.L2.Path))
		case "postgres":
			l2, err = cache.NewPostgresStore(cfg.Cache.L2.DSN, cfg.Cache.L2.Table)
		}
		if err != nil {
			log.Errorf("failed to open %s cache backend: %v", cfg.Cache.L2.Backend, err)
			return
		}
		store = cache.NewLayered(l1, l2, cfg.Cache.L2.CompressMinBytes, sink)
	}

	var router routing.Router = chain
	var cachedRouter *routing.CachedRouter
	if store != nil {
		cachedRouter = routing.NewCachedRouter(chain, store, time.Duration(cfg.Cache.TTLSeconds)*time.Second)
		cachedRouter.SetMetricsSink(sink)
		router = cachedRouter
	}

	// Trace stream for the live dashboard.
	trace := api.NewTraceHub()
	chain.SetTracer(trace)
	if cachedRouter != nil {
		cachedRouter.SetTracer(trace)
	}

	// Hook manager: YAML-defined reactions to runtime events.
	var hookManager *hooks.Manager
	if cfg.Hooks.Enabled {
		hookManager, err = hooks.NewManager(cfg.Hooks.Dir, bus)
		if err != nil {
			log.Errorf("failed to create hook manager: %v", err)
			return
		}
		if err = hookManager.Load(); err != nil {
			log.Errorf("failed to load hooks: %v", err)
			return
		}
		hookManager.SubscribeAll()
		if cfg.Hooks.Watch {
			if errWatch := hookManager.StartWatcher(); errWatch != nil {
				log.Warnf("hook watcher unavailable: %v", errWatch)
			}
		}
		log.Infof("Hooks enabled: %d loaded from %s", len(hookManager.Hooks()), hookManager.Dir())
	}

	// History journal subscribes to routing_completed so the API handler
	// never talks to it directly.
	var (
		journal  *history.Journal
		archiver *history.Archiver
	)
	if cfg.History.Enabled {
		journal, err = history.NewJournal(cfg.ResolveDataPath(cfg.History.Path), cfg.History.RetentionDays)
		if err != nil {
			log.Errorf("failed to open history journal: %v", err)
			return
		}
		if err = journal.Initialize(ctxSignal); err != nil {
			log.Errorf("failed to initialize history journal: %v", err)
			return
		}
		bus.Subscribe(hooks.EventRoutingCompleted, func(evt *hooks.Event) {
			entry := history.EntryFromEvent(evt.Payload)
			if entry == nil {
				return
			}
			recordCtx, cancelRecord := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancelRecord()
			if errRecord := journal.Record(recordCtx, entry); errRecord != nil {
				log.WithError(errRecord).Warn("failed to record routing decision")
			}
		})
		if cfg.History.Archive.Enabled {
			archiver, err = history.NewArchiver(cfg.History.Archive)
			if err != nil {
				log.Errorf("failed to configure history archiver: %v", err)
				return
			}
		}
	}

	server := api.NewServer(cfg, api.Deps{
		Router:    router,
		Cache:     cachedRouter,
		Chain:     chain,
		Rules:     rules,
		Catalog:   catalog,
		Collector: collector,
		Balancer:  pool,
		Journal:   journal,
		Archiver:  archiver,
		Hooks:     hookManager,
		Bus:       bus,
		Trace:     trace,
		Registry:  registry,
	})

	bus.PublishAsync(hooks.NewEvent(hooks.EventRulesLoaded, map[string]any{
		"source": packSource,
		"count":  rules.Len(),
	}))

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Run()
	}()
	log.Infof("AgentHive listening on %s (%d rules, %d providers, %d nodes)", server.Addr(), rules.Len(), len(providers), len(chain.NodeNames()))

	if openBrowser {
		go openStatsPage(cfg)
	}

	select {
	case err = <-errCh:
		if err != nil {
			log.Errorf("server exited with error: %v", err)
		}
	case <-ctxSignal.Done():
		log.Info("Shutdown signal received, draining requests")
		shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
		if errShutdown := server.Shutdown(shutdownCtx); errShutdown != nil {
			log.Errorf("server shutdown: %v", errShutdown)
		}
		cancelShutdown()
	}

	// Teardown in reverse construction order.
	if hookManager != nil {
		hookManager.StopWatcher()
	}
	if journal != nil {
		journalCtx, cancelJournal := context.WithTimeout(context.Background(), 5*time.Second)
		if errJournal := journal.Shutdown(journalCtx); errJournal != nil {
			log.Errorf("journal shutdown: %v", errJournal)
		}
		cancelJournal()
	}
	bus.Shutdown()
	if store != nil {
		if errClose := store.Close(); errClose != nil {
			log.Errorf("cache close: %v", errClose)
		}
	}
	log.Info("AgentHive stopped")
}

// loadRules resolves the configured rule-pack source into a compiled rule
// set and agent catalog. Git sources are checked out under the data
// directory first; an empty source selects the built-in default rules.
func loadRules(ctx context.Context, cfg *config.Config) (*routing.RuleSet, *routing.Catalog, string, error) {
	source := cfg.Routing.RulePack
	if source == "" {
		return routing.DefaultRules(), routing.NewCatalog(nil), "builtin", nil
	}

	path := source
	if rulepack.IsGitSource(source) {
		fetched, err := rulepack.Fetch(ctx, source, cfg.Routing.RulePackRef, cfg.DataDir)
		if err != nil {
			return nil, nil, "", err
		}
		path = fetched
	}

	pack, err := routing.LoadRulePack(path)
	if err != nil {
		return nil, nil, "", err
	}
	log.Infof("Loaded rule pack %s: version %d, %d rules", path, pack.Version, pack.Rules.Len())
	return pack.Rules, pack.Catalog, source, nil
}

// openStatsPage points the default browser at the stats dashboard once the
// listener has had a moment to come up.
func openStatsPage(cfg *config.Config) {
	host := cfg.Host
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "127.0.0.1"
	}
	scheme := "http"
	if cfg.TLS.Enable {
		scheme = "https"
	}
	url := fmt.Sprintf("%s://%s:%d/", scheme, host, cfg.Port)
	time.Sleep(300 * time.Millisecond)
	if err := open.Run(url); err != nil {
		log.Warnf("failed to open %s in browser: %v", url, err)
	}
}
