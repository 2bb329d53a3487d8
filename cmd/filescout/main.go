package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"filescout/internal/config"
	"filescout/internal/database"
	"filescout/internal/executor"
	"filescout/internal/lease"
	"filescout/internal/notify"
	"filescout/internal/observability"
	"filescout/internal/protocol"
	"filescout/internal/repository"
	"filescout/internal/scheduler"
	"filescout/internal/secrets"
	"filescout/internal/server"
)

func main() {
	cfg := loadConfiguration()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	deps := initializeDependencies(ctx, cfg)
	defer deps.close()

	run(ctx, cfg, deps)
}

// Dependencies holds all initialized infrastructure components.
type Dependencies struct {
	logger   observability.Logger
	metrics  observability.Metrics
	registry *prometheus.Registry
	db       *database.DB
	leases   *lease.RedisLease
	emitter  notify.Emitter
	sched    *scheduler.Scheduler
	srv      *server.Server
}

func (d *Dependencies) close() {
	if d.emitter != nil {
		d.emitter.Close()
	}
	if d.leases != nil {
		d.leases.Close()
	}
	if d.db != nil {
		d.db.Close()
	}
}

// loadConfiguration loads and validates the application configuration.
func loadConfiguration() *config.Config {
	provider := config.GetProvider()
	provider.MustLoad()
	return provider.MustGet()
}

// initializeDependencies sets up all infrastructure dependencies.
func initializeDependencies(ctx context.Context, cfg *config.Config) *Dependencies {
	logger := observability.NewLogger(os.Stdout, cfg.LogLevel).
		WithFields(map[string]interface{}{"service": cfg.ServiceName})
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := observability.NewPrometheusMetrics(cfg.ServiceName, registry)

	logger.Info("starting file discovery engine",
		"environment", cfg.Environment,
		"instance_id", cfg.InstanceID)
	metrics.IncrementCounter("application.starts", nil)

	db, err := database.New(cfg.Database, observability.Component(logger, "database"), metrics)
	if err != nil {
		log.Fatalf("failed to initialize database: %v", err)
	}

	leases, err := lease.NewRedisLease(ctx, cfg.Lease, cfg.InstanceID,
		observability.Component(logger, "lease"), metrics)
	if err != nil {
		log.Fatalf("failed to initialize lease provider: %v", err)
	}

	emitter, err := notify.NewEmitter(ctx, cfg.Notify, logger, metrics)
	if err != nil {
		log.Fatalf("failed to initialize notification emitter: %v", err)
	}

	configRepo := repository.NewConfigurationRepository(db, observability.Component(logger, "repository.configurations"), metrics)
	executionRepo := repository.NewExecutionRepository(db, observability.Component(logger, "repository.executions"), metrics)
	claimRepo := repository.NewDiscoveredFileRepository(db, observability.Component(logger, "repository.discovered_files"), metrics)

	adapters := protocol.NewFactory(
		secrets.NewEnvResolver(),
		cfg.Remote.ConnectTimeout,
		cfg.Remote.OperationTimeout,
		logger,
		metrics,
	)

	checkExecutor := executor.New(
		adapters,
		executionRepo,
		claimRepo,
		emitter,
		cfg.Executor,
		observability.Component(logger, "executor"),
		metrics,
	)

	sched := scheduler.New(
		configRepo,
		executionRepo,
		checkExecutor,
		leases,
		cfg.Scheduler,
		observability.Component(logger, "scheduler"),
		metrics,
	)

	srv := server.New(cfg.Server.Addr, registry, db, observability.Component(logger, "server"))

	return &Dependencies{
		logger:   logger,
		metrics:  metrics,
		registry: registry,
		db:       db,
		leases:   leases,
		emitter:  emitter,
		sched:    sched,
		srv:      srv,
	}
}

// run starts the scheduler and the operational HTTP server, and tears both
// down on the first signal. A failed listener takes the scheduler down with
// it: the engine must not keep running blind, without health or metrics.
func run(ctx context.Context, cfg *config.Config, deps *Dependencies) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go func() {
		if err := deps.srv.Start(); err != nil {
			deps.logger.Error("http server failed", "error", err)
			cancel()
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := deps.srv.Shutdown(shutdownCtx); err != nil {
			deps.logger.Error("http server shutdown failed", "error", err)
		}
	}()

	if err := deps.sched.Run(ctx); err != nil && err != context.Canceled {
		deps.logger.Error("scheduler stopped with error", "error", err)
	}

	deps.logger.Info("shutdown complete", "service", cfg.ServiceName)
}
