package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/robfig/cron/v3"

	"github.com/JyX33/agentic-technical-watch-sub001/internal/adapter/a2a"
	apihttp "github.com/JyX33/agentic-technical-watch-sub001/internal/adapter/http"
	wcnats "github.com/JyX33/agentic-technical-watch-sub001/internal/adapter/nats"
	"github.com/JyX33/agentic-technical-watch-sub001/internal/adapter/natskv"
	"github.com/JyX33/agentic-technical-watch-sub001/internal/adapter/otel"
	"github.com/JyX33/agentic-technical-watch-sub001/internal/adapter/postgres"
	"github.com/JyX33/agentic-technical-watch-sub001/internal/adapter/ristretto"
	"github.com/JyX33/agentic-technical-watch-sub001/internal/adapter/tiered"
	"github.com/JyX33/agentic-technical-watch-sub001/internal/config"
	"github.com/JyX33/agentic-technical-watch-sub001/internal/logger"
	"github.com/JyX33/agentic-technical-watch-sub001/internal/resilience"
	"github.com/JyX33/agentic-technical-watch-sub001/internal/service"
)

func main() {
	if err := run(); err != nil {
		slog.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	slog.SetDefault(logger.New(cfg.Logging))
	slog.Info("config loaded",
		"port", cfg.Server.Port,
		"log_level", cfg.Logging.Level,
		"pg_max_conns", cfg.Postgres.MaxConns,
	)

	ctx := context.Background()

	// --- Infrastructure ---

	// PostgreSQL
	pool, err := postgres.NewPool(ctx, cfg.Postgres)
	if err != nil {
		return fmt.Errorf("postgres: %w", err)
	}
	defer pool.Close()
	slog.Info("postgres connected")

	if err := postgres.RunMigrations(ctx, cfg.Postgres.DSN); err != nil {
		return fmt.Errorf("migrations: %w", err)
	}
	slog.Info("migrations applied")

	// NATS JetStream
	bus, err := wcnats.Connect(ctx, cfg.NATS.URL)
	if err != nil {
		return fmt.Errorf("nats: %w", err)
	}
	defer func() { _ = bus.Close() }()

	// Tiered dedup cache: ristretto in front of a NATS KV bucket
	l1, err := ristretto.New(cfg.Cache.L1MaxSizeMB << 20)
	if err != nil {
		return fmt.Errorf("ristretto: %w", err)
	}
	l2, err := natskv.EnsureBucket(ctx, bus.JetStream(), cfg.Cache.L2Bucket, cfg.Dedup.Retention)
	if err != nil {
		return fmt.Errorf("nats kv: %w", err)
	}
	dedupCache := tiered.New(l1, l2, cfg.Cache.L1TTL)

	metrics, err := otel.NewMetrics()
	if err != nil {
		return fmt.Errorf("metrics: %w", err)
	}

	// --- Services ---
	store := postgres.NewStore(pool)
	locker := postgres.NewLockManager(pool, cfg.Lock.DefaultTTL)
	breakers := resilience.NewSet(resilience.Config{
		MaxFailures:      cfg.Breaker.MaxFailures,
		RecoveryTimeout:  cfg.Breaker.RecoveryTimeout,
		SuccessThreshold: cfg.Breaker.SuccessThreshold,
		CallTimeout:      cfg.Breaker.CallTimeout,
	})
	events := service.NewEventPublisher(bus)
	invoker := a2a.NewClient(&http.Client{Timeout: cfg.Breaker.CallTimeout})

	registrySvc := service.NewRegistryService(store, cfg.Registry)
	registrySvc.SetProber(invoker)
	recoverySvc := service.NewRecoveryService(store, locker, cfg.Recovery)
	orchestratorSvc := service.NewOrchestratorService(
		store, registrySvc, recoverySvc, invoker, breakers, events, metrics, cfg.Orchestrator)
	recoverySvc.SetResumer(orchestratorSvc)
	recoverySvc.SetMetrics(metrics)
	dedupSvc := service.NewDedupService(store, dedupCache, cfg.Dedup)
	healthSvc := service.NewHealthService(store, registrySvc, breakers)

	// --- Scheduled sweeps ---
	sched := cron.New()
	if spec := cfg.Recovery.SweepSchedule; spec != "" {
		if _, err := sched.AddFunc(spec, func() {
			if _, err := recoverySvc.RunRecoverySweep(ctx); err != nil {
				slog.Error("recovery sweep failed", "error", err)
			}
		}); err != nil {
			return fmt.Errorf("recovery sweep schedule: %w", err)
		}
	}
	if spec := cfg.Registry.SweepSchedule; spec != "" {
		if _, err := sched.AddFunc(spec, func() {
			if err := registrySvc.MarkSweep(ctx); err != nil {
				slog.Error("registry sweep failed", "error", err)
			}
		}); err != nil {
			return fmt.Errorf("registry sweep schedule: %w", err)
		}
	}
	if _, err := sched.AddFunc("@daily", func() {
		if err := dedupSvc.Sweep(ctx); err != nil {
			slog.Error("dedup sweep failed", "error", err)
		}
	}); err != nil {
		return fmt.Errorf("dedup sweep schedule: %w", err)
	}
	sched.Start()
	defer sched.Stop()

	// --- HTTP ---
	handlers := &apihttp.Handlers{
		Orchestrator: orchestratorSvc,
		Registry:     registrySvc,
		Recovery:     recoverySvc,
		Dedup:        dedupSvc,
		Health:       healthSvc,
		BaseURL:      cfg.Server.BaseURL,
	}

	r := chi.NewRouter()
	r.Use(apihttp.CorrelationID)
	r.Use(apihttp.Logger)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(chimw.Timeout(30 * time.Second))
	apihttp.MountRoutes(r, handlers)

	addr := ":" + cfg.Server.Port
	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	// Graceful shutdown
	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGTERM)

	go func() {
		slog.Info("starting server", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server failed", "error", err)
		}
	}()

	<-done
	slog.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}

	// Let in-flight workflows reach a durable state; anything cut off
	// here is picked up by the next recovery sweep.
	finished := make(chan struct{})
	go func() {
		orchestratorSvc.Wait()
		close(finished)
	}()
	select {
	case <-finished:
	case <-time.After(15 * time.Second):
		slog.Warn("shutdown with workflows still in flight")
	}
	return nil
}
