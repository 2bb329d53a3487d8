// Package scheduler drives the engine: a fixed-interval polling loop that
// finds due configurations and fans their checks out to a bounded worker
// pool, with a distributed lease keeping instances from double-running the
// same configuration.
package scheduler

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"filescout/internal/config"
	"filescout/internal/entity"
	"filescout/internal/lease"
	"filescout/internal/observability"
	"filescout/internal/schedule"
)

// ConfigurationStore is the read side the scheduler needs plus the run-time
// write-back.
type ConfigurationStore interface {
	ListActive(ctx context.Context, offset, limit int) ([]*entity.Configuration, error)
	RecordRun(ctx context.Context, tenantID, id string, lastExecutedAt time.Time, nextScheduledRun *time.Time) error
}

// ExecutionPurger removes terminal executions past the retention horizon.
type ExecutionPurger interface {
	PurgeOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// Runner executes one configuration check to a terminal state.
type Runner interface {
	Run(ctx context.Context, cfg *entity.Configuration) (*entity.Execution, error)
}

// purgeInterval is how often the retention sweep runs. The retention horizon
// itself comes from configuration.
const purgeInterval = 12 * time.Hour

// tickStats summarizes one polling pass for the per-tick log line.
type tickStats struct {
	active     int
	due        int
	triggered  int
	skipped    int
	deferred   int
	evalErrors int
}

type Scheduler struct {
	configs ConfigurationStore
	purger  ExecutionPurger
	runner  Runner
	leases  lease.Lease
	sem     *semaphore.Weighted
	cfg     config.SchedulerConfig
	logger  observability.Logger
	metrics observability.Metrics

	// now is swappable for tests.
	now func() time.Time
	wg  sync.WaitGroup
}

func New(
	configs ConfigurationStore,
	purger ExecutionPurger,
	runner Runner,
	leases lease.Lease,
	cfg config.SchedulerConfig,
	logger observability.Logger,
	metrics observability.Metrics,
) *Scheduler {
	return &Scheduler{
		configs: configs,
		purger:  purger,
		runner:  runner,
		leases:  leases,
		sem:     semaphore.NewWeighted(cfg.MaxConcurrent),
		cfg:     cfg,
		logger:  logger,
		metrics: metrics,
		now:     time.Now,
	}
}

// Run polls until ctx is cancelled, then waits for in-flight checks to
// finish.
func (s *Scheduler) Run(ctx context.Context) error {
	s.logger.Info("scheduler started",
		"tick_interval", s.cfg.TickInterval,
		"due_window", s.cfg.DueWindow,
		"max_concurrent", s.cfg.MaxConcurrent)

	ticker := time.NewTicker(s.cfg.TickInterval)
	defer ticker.Stop()
	purgeTicker := time.NewTicker(purgeInterval)
	defer purgeTicker.Stop()

	s.purge(ctx)
	s.Tick(ctx)

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler stopping, draining in-flight checks")
			s.wg.Wait()
			s.logger.Info("scheduler stopped")
			return ctx.Err()
		case <-purgeTicker.C:
			s.purge(ctx)
		case <-ticker.C:
			s.Tick(ctx)
		}
	}
}

// Tick runs one polling pass over all active configurations.
func (s *Scheduler) Tick(ctx context.Context) {
	start := s.now()
	var stats tickStats

	for offset := 0; ; offset += s.cfg.PageSize {
		page, err := s.configs.ListActive(ctx, offset, s.cfg.PageSize)
		if err != nil {
			s.logger.Error("failed to list active configurations", "error", err)
			s.metrics.IncrementCounter("scheduler.tick_errors", nil)
			return
		}
		if len(page) == 0 {
			break
		}

		stats.active += len(page)
		for _, cfg := range page {
			s.evaluate(ctx, cfg, &stats)
		}

		if len(page) < s.cfg.PageSize {
			break
		}
	}

	s.logger.Info("tick complete",
		"active", stats.active,
		"due", stats.due,
		"triggered", stats.triggered,
		"skipped_in_progress", stats.skipped,
		"deferred", stats.deferred,
		"eval_errors", stats.evalErrors,
		"duration_ms", time.Since(start).Milliseconds())

	s.metrics.RecordGauge("scheduler.active_configurations", float64(stats.active), nil)
	s.metrics.RecordHistogram("scheduler.tick.duration_seconds", time.Since(start).Seconds(), nil)
}

// evaluate decides whether one configuration runs this tick. A failure to
// evaluate or trigger one configuration never affects the others.
func (s *Scheduler) evaluate(ctx context.Context, cfg *entity.Configuration, stats *tickStats) {
	dueAt, due, err := schedule.DueAt(cfg.CronExpression, cfg.Timezone, s.now(), s.cfg.DueWindow)
	if err != nil {
		stats.evalErrors++
		s.logger.Error("schedule evaluation failed",
			"tenant_id", cfg.TenantID,
			"configuration_id", cfg.ID,
			"error", err)
		s.metrics.IncrementCounter("scheduler.eval_errors", nil)
		return
	}
	if !due {
		return
	}

	// The due window spans several ticks; a firing whose run was already
	// recorded must not trigger again on the next tick.
	if cfg.LastExecutedAt != nil && !cfg.LastExecutedAt.Before(dueAt) {
		return
	}
	stats.due++

	if !s.sem.TryAcquire(1) {
		stats.deferred++
		s.logger.Warn("worker pool saturated, deferring check",
			"tenant_id", cfg.TenantID,
			"configuration_id", cfg.ID)
		s.metrics.IncrementCounter("scheduler.deferred", nil)
		return
	}

	acquired, err := s.leases.Acquire(ctx, cfg.TenantID+":"+cfg.ID)
	if err != nil {
		s.sem.Release(1)
		stats.evalErrors++
		s.logger.Error("lease acquisition failed",
			"tenant_id", cfg.TenantID,
			"configuration_id", cfg.ID,
			"error", err)
		return
	}
	if !acquired {
		s.sem.Release(1)
		stats.skipped++
		s.logger.Info("check already in progress elsewhere, skipping",
			"tenant_id", cfg.TenantID,
			"configuration_id", cfg.ID)
		s.metrics.IncrementCounter("scheduler.skipped_in_progress", nil)
		return
	}

	stats.triggered++
	s.metrics.IncrementCounter("scheduler.triggered", nil)
	s.wg.Add(1)
	go s.runOne(ctx, cfg)
}

// runOne executes one check in a worker goroutine. A panic in one check is
// contained here so the polling loop and sibling checks keep going.
func (s *Scheduler) runOne(ctx context.Context, cfg *entity.Configuration) {
	defer s.wg.Done()
	defer s.sem.Release(1)
	defer func() {
		if err := s.leases.Release(ctx, cfg.TenantID+":"+cfg.ID); err != nil {
			s.logger.Error("lease release failed",
				"tenant_id", cfg.TenantID,
				"configuration_id", cfg.ID,
				"error", err)
		}
	}()
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("check panicked",
				"tenant_id", cfg.TenantID,
				"configuration_id", cfg.ID,
				"panic", r)
			s.metrics.IncrementCounter("scheduler.panics", nil)
		}
	}()

	if _, err := s.runner.Run(ctx, cfg); err != nil {
		s.logger.Error("check failed",
			"tenant_id", cfg.TenantID,
			"configuration_id", cfg.ID,
			"error", err)
	}

	executedAt := s.now().UTC()
	var next *time.Time
	if n, err := schedule.NextDue(cfg.CronExpression, cfg.Timezone, executedAt); err == nil {
		next = &n
	}
	if err := s.configs.RecordRun(ctx, cfg.TenantID, cfg.ID, executedAt, next); err != nil {
		s.logger.Error("failed to record run times",
			"tenant_id", cfg.TenantID,
			"configuration_id", cfg.ID,
			"error", err)
	}
}

// purge sweeps terminal executions older than the retention horizon.
func (s *Scheduler) purge(ctx context.Context) {
	cutoff := s.now().UTC().Add(-s.cfg.ExecutionRetention)
	count, err := s.purger.PurgeOlderThan(ctx, cutoff)
	if err != nil {
		s.logger.Error("execution purge failed", "error", err)
		s.metrics.IncrementCounter("scheduler.purge_errors", nil)
		return
	}
	s.metrics.IncrementCounter("scheduler.purged_executions", nil)
	s.logger.Info("execution retention sweep complete", "purged", count, "cutoff", cutoff)
}

// Wait blocks until all in-flight checks finish. Exposed for tests.
func (s *Scheduler) Wait() {
	s.wg.Wait()
}
