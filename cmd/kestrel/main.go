// Kestrel - Real-time transaction fraud risk scoring.
// Copyright (c) 2026 lakay.finance
// Licensed under the Apache License 2.0

package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/lakay-finance/kestrel/internal/alerts"
	"github.com/lakay-finance/kestrel/internal/api"
	"github.com/lakay-finance/kestrel/internal/bus"
	"github.com/lakay-finance/kestrel/internal/cache"
	"github.com/lakay-finance/kestrel/internal/domain"
	"github.com/lakay-finance/kestrel/internal/features"
	"github.com/lakay-finance/kestrel/internal/repository"
	"github.com/lakay-finance/kestrel/internal/rules"
	"github.com/lakay-finance/kestrel/internal/scoring"
	"github.com/lakay-finance/kestrel/internal/serving"
	"github.com/lakay-finance/kestrel/internal/worker"
)

// Version information (set via ldflags)
var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

func main() {
	// .env is optional; environment wins either way
	_ = godotenv.Load()

	// Initialize structured logger
	logLevel := slog.LevelInfo
	if os.Getenv("KESTREL_DEBUG") == "true" {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	slog.Info("starting kestrel",
		"version", Version,
		"commit", Commit,
		"build_date", BuildDate,
	)

	// Load configuration
	cfg := loadConfig()

	slog.Info("configuration loaded",
		"repository", cfg.Repository.Driver,
		"cache", cfg.Cache.Type,
		"eventbus", cfg.EventBus.Type,
		"model", cfg.Serving.ModelName,
	)

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		slog.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	// Initialize Repository
	repo, err := repository.New(cfg.Repository)
	if err != nil {
		slog.Error("failed to initialize repository", "error", err)
		os.Exit(1)
	}
	defer repo.Close()
	slog.Info("repository initialized", "driver", cfg.Repository.Driver)

	// Initialize Cache
	cacheImpl, err := cache.New(cfg.Cache)
	if err != nil {
		slog.Error("failed to initialize cache", "error", err)
		os.Exit(1)
	}
	defer cacheImpl.Close()
	slog.Info("cache initialized", "type", cfg.Cache.Type)

	// Wrap the repository so repeated aggregate queries hit the cache
	store := repository.NewCachedStore(repo, cacheImpl, cfg.Cache.AggregateTTL)

	// Initialize EventBus
	busImpl, err := bus.New(cfg.EventBus)
	if err != nil {
		slog.Error("failed to initialize event bus", "error", err)
		os.Exit(1)
	}
	defer busImpl.Close()
	slog.Info("event bus initialized", "type", cfg.EventBus.Type)

	// Initialize feature computer and rule engine
	computer := features.NewComputer(store, cfg.Fraud.Features)
	engine := rules.NewEngine(store, cfg.Fraud, 0)
	slog.Info("rule engine initialized", "rules_count", engine.RulesCount())

	// Initialize model serving control plane. The in-memory registry
	// ships with the hand-fitted baseline in the staging slot only:
	// its output sits near zero on ordinary traffic, and serving it as
	// champion under the weighted-average strategy would pull genuine
	// high-risk scores below the alerting threshold. The production
	// slot stays empty, and scoring runs on rules alone, until a
	// trained model is promoted.
	registry := serving.NewInMemoryRegistry()
	registry.Register(cfg.Serving.ModelName, serving.DefaultBaseline(), domain.StageStaging)
	if os.Getenv("KESTREL_BASELINE_CHAMPION") == "true" {
		if err := registry.Promote(ctx, cfg.Serving.ModelName, "baseline-1", domain.StageProduction); err != nil {
			slog.Warn("baseline promotion failed", "error", err)
		}
	}

	champion := serving.NewModelServer(registry, cfg.Serving.ModelName, domain.StageProduction, cfg.Serving.Timeout)
	if err := champion.Load(ctx); err != nil {
		slog.Info("no production model, scoring runs on rules alone")
	}

	var challenger *serving.ModelServer
	if os.Getenv("KESTREL_CHALLENGER") == "true" {
		challenger = serving.NewModelServer(registry, cfg.Serving.ModelName, domain.StageStaging, cfg.Serving.Timeout)
		if err := challenger.Load(ctx); err != nil {
			slog.Warn("challenger load failed, all traffic stays on champion", "error", err)
		}
	}

	router := serving.NewRouter(champion, challenger, cfg.Serving.Routing)
	drift := serving.NewDriftDetector(cfg.Serving.Drift)
	monitor := serving.NewMonitor(cfg.Serving.Monitoring)
	slog.Info("model serving initialized",
		"champion_version", champion.Version(),
		"challenger_pct", cfg.Serving.Routing.ChallengerPct,
	)

	// Initialize scoring pipeline
	hybrid := scoring.NewHybrid(cfg.Fraud.Hybrid)
	alerter := alerts.NewManager(store, busImpl, cfg.Fraud.Alerting)
	scorer := scoring.NewScorer(computer, engine, router, hybrid, alerter, store, store, busImpl)
	slog.Info("scoring pipeline initialized", "hybrid_strategy", cfg.Fraud.Hybrid.Strategy)

	// Start the decision observer: drift checks and health monitoring
	// run off the request path
	observer := worker.NewObserver(busImpl, drift, monitor)
	if err := observer.Start(ctx); err != nil {
		slog.Error("failed to start decision observer", "error", err)
		os.Exit(1)
	}

	// Initialize Server
	handler := api.NewHandler(scorer, engine, store, cacheImpl, busImpl, router, champion, challenger, drift, monitor, Version)
	srv := api.NewServer(cfg.Server, handler)

	// Start Server in goroutine
	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			slog.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	slog.Info("kestrel is ready",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
	)

	printBanner(cfg, Version)

	// Wait for shutdown signal
	<-ctx.Done()
	slog.Info("shutting down...")

	// Stop the observer first
	if err := observer.Stop(); err != nil {
		slog.Error("failed to stop decision observer", "error", err)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
	}

	slog.Info("kestrel shutdown complete")
}

// loadConfig builds the configuration from defaults plus KESTREL_*
// environment overrides.
func loadConfig() *domain.Config {
	cfg := domain.DefaultConfig()

	if v := os.Getenv("KESTREL_HOST"); v != "" {
		cfg.Server.Host = v
	}
	if v := os.Getenv("KESTREL_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}

	if v := os.Getenv("KESTREL_DB_DRIVER"); v != "" {
		cfg.Repository.Driver = v
	}
	if v := os.Getenv("KESTREL_SQLITE_PATH"); v != "" {
		cfg.Repository.SQLitePath = v
	}
	if v := os.Getenv("KESTREL_POSTGRES_HOST"); v != "" {
		cfg.Repository.PostgresHost = v
	}
	if v := os.Getenv("KESTREL_POSTGRES_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Repository.PostgresPort = port
		}
	}
	if v := os.Getenv("KESTREL_POSTGRES_USER"); v != "" {
		cfg.Repository.PostgresUser = v
	}
	if v := os.Getenv("KESTREL_POSTGRES_PASSWORD"); v != "" {
		cfg.Repository.PostgresPassword = v
	}
	if v := os.Getenv("KESTREL_POSTGRES_DB"); v != "" {
		cfg.Repository.PostgresDB = v
	}

	if v := os.Getenv("KESTREL_CACHE"); v != "" {
		cfg.Cache.Type = v
	}
	if v := os.Getenv("KESTREL_REDIS_ADDR"); v != "" {
		cfg.Cache.RedisAddr = v
	}
	if v := os.Getenv("KESTREL_REDIS_PASSWORD"); v != "" {
		cfg.Cache.RedisPassword = v
	}

	if v := os.Getenv("KESTREL_BUS"); v != "" {
		cfg.EventBus.Type = v
	}
	if v := os.Getenv("KESTREL_NATS_URL"); v != "" {
		cfg.EventBus.NATSUrl = v
	}
	if v := os.Getenv("KESTREL_NATS_TOKEN"); v != "" {
		cfg.EventBus.NATSToken = v
	}

	if v := os.Getenv("KESTREL_CHALLENGER_PCT"); v != "" {
		if pct, err := strconv.Atoi(v); err == nil && pct >= 0 && pct <= 100 {
			cfg.Serving.Routing.ChallengerPct = pct
			cfg.Serving.Routing.ChampionPct = 100 - pct
		}
	}

	return cfg
}

func printBanner(cfg *domain.Config, version string) {
	fmt.Println()
	fmt.Println("  ╔═══════════════════════════════════════════╗")
	fmt.Println("  ║               KESTREL                     ║")
	fmt.Println("  ║    Real-Time Fraud Risk Scoring           ║")
	fmt.Println("  ╚═══════════════════════════════════════════╝")
	fmt.Println()
	fmt.Printf("  Version:  %s\n", version)
	fmt.Printf("  Server:   http://%s:%d\n", cfg.Server.Host, cfg.Server.Port)
	fmt.Println()
	fmt.Println("  Endpoints:")
	fmt.Println("    POST /score             - Score a transaction")
	fmt.Println("    GET  /scores/{txID}     - Get an archived score")
	fmt.Println("    POST /events            - Record a historical event")
	fmt.Println("    GET  /alerts            - List fraud alerts")
	fmt.Println("    GET  /rules             - List registered rules")
	fmt.Println("    GET  /config            - Active fraud configuration")
	fmt.Println("    PUT  /config            - Hot-reload fraud thresholds")
	fmt.Println("    POST /model/reload      - Re-resolve models from the registry")
	fmt.Println("    GET  /model/health      - Model health monitoring report")
	fmt.Println("    GET  /model/drift       - Feature drift report")
	fmt.Println("    GET  /model/routing     - Champion/challenger routing summary")
	fmt.Println("    PUT  /model/routing     - Update the traffic split")
	fmt.Println("    GET  /health            - Health check")
	fmt.Println("    GET  /metrics           - Prometheus metrics")
	fmt.Println()
}
