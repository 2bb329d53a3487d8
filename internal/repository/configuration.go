// Package repository implements the durable stores of the engine: the
// Configuration store, the Execution ledger and the DiscoveredFile claim
// ledger, all scoped by tenant and built on PostgreSQL.
package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"

	"filescout/internal/database"
	"filescout/internal/entity"
	"filescout/internal/observability"
)

// ConfigurationRepository reads and writes tenant configurations. Every
// mutation except the engine's own run-time write-back requires the caller's
// concurrency token (Version) to match current state.
type ConfigurationRepository struct {
	db      database.Database
	logger  observability.Logger
	metrics observability.Metrics
	qb      squirrel.StatementBuilderType
}

func NewConfigurationRepository(db database.Database, logger observability.Logger, metrics observability.Metrics) *ConfigurationRepository {
	return &ConfigurationRepository{
		db:      db,
		logger:  logger,
		metrics: metrics,
		qb:      squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

const configurationColumns = `id, tenant_id, protocol, protocol_settings, path_pattern, name_pattern,
	cron_expression, timezone, notification_targets, is_active,
	next_scheduled_run, last_executed_at, version, created_at, updated_at`

// Create inserts a new configuration. Creation is idempotent: repeating it
// with the same (tenant, id) is a no-op success, reported via the returned
// bool so callers can tell a fresh insert from a replay.
func (r *ConfigurationRepository) Create(ctx context.Context, cfg *entity.Configuration) (bool, error) {
	query := r.qb.Insert("configurations").
		Columns("id", "tenant_id", "protocol", "protocol_settings", "path_pattern", "name_pattern",
			"cron_expression", "timezone", "notification_targets", "is_active",
			"next_scheduled_run", "version", "created_at", "updated_at").
		Values(cfg.ID, cfg.TenantID, cfg.Protocol, cfg.ProtocolSettings, cfg.PathPattern, cfg.NamePattern,
			cfg.CronExpression, cfg.Timezone, cfg.NotificationTargets, cfg.IsActive,
			cfg.NextScheduledRun, cfg.Version, cfg.CreatedAt, cfg.UpdatedAt).
		Suffix("ON CONFLICT (tenant_id, id) DO NOTHING")

	sqlQuery, args, err := query.ToSql()
	if err != nil {
		return false, fmt.Errorf("build query: %w", err)
	}

	result, err := r.db.Execute(ctx, sqlQuery, args...)
	if err != nil {
		r.logger.Error("failed to create configuration", "error", err, "tenant_id", cfg.TenantID)
		r.metrics.IncrementCounter("repository.configurations.errors", map[string]string{"operation": "create"})
		return false, fmt.Errorf("create configuration: %w", err)
	}

	rows, _ := result.RowsAffected()
	r.metrics.IncrementCounter("repository.configurations.create", nil)
	return rows > 0, nil
}

// Get retrieves one configuration by its tenant-scoped key.
func (r *ConfigurationRepository) Get(ctx context.Context, tenantID, id string) (*entity.Configuration, error) {
	query := r.qb.Select(configurationColumns).
		From("configurations").
		Where(squirrel.Eq{"tenant_id": tenantID, "id": id})

	sqlQuery, args, err := query.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var cfg entity.Configuration
	err = r.db.Get(ctx, &cfg, sqlQuery, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get configuration: %w", err)
	}
	return &cfg, nil
}

// Update replaces a configuration wholesale, guarded by the version token.
// A stale token yields ErrVersionConflict and no write.
func (r *ConfigurationRepository) Update(ctx context.Context, cfg *entity.Configuration) error {
	now := time.Now().UTC()
	query := r.qb.Update("configurations").
		Set("protocol", cfg.Protocol).
		Set("protocol_settings", cfg.ProtocolSettings).
		Set("path_pattern", cfg.PathPattern).
		Set("name_pattern", cfg.NamePattern).
		Set("cron_expression", cfg.CronExpression).
		Set("timezone", cfg.Timezone).
		Set("notification_targets", cfg.NotificationTargets).
		Set("is_active", cfg.IsActive).
		Set("next_scheduled_run", cfg.NextScheduledRun).
		Set("version", cfg.Version+1).
		Set("updated_at", now).
		Where(squirrel.Eq{"tenant_id": cfg.TenantID, "id": cfg.ID, "version": cfg.Version})

	sqlQuery, args, err := query.ToSql()
	if err != nil {
		return fmt.Errorf("build query: %w", err)
	}

	result, err := r.db.Execute(ctx, sqlQuery, args...)
	if err != nil {
		r.metrics.IncrementCounter("repository.configurations.errors", map[string]string{"operation": "update"})
		return fmt.Errorf("update configuration: %w", err)
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return r.classifyMissedWrite(ctx, cfg.TenantID, cfg.ID)
	}

	cfg.Version++
	cfg.UpdatedAt = now
	r.metrics.IncrementCounter("repository.configurations.update", nil)
	return nil
}

// Deactivate soft-deletes a configuration. History stays queryable; nothing
// is ever physically removed.
func (r *ConfigurationRepository) Deactivate(ctx context.Context, tenantID, id string, version int64) error {
	query := r.qb.Update("configurations").
		Set("is_active", false).
		Set("version", version+1).
		Set("updated_at", time.Now().UTC()).
		Where(squirrel.Eq{"tenant_id": tenantID, "id": id, "version": version})

	sqlQuery, args, err := query.ToSql()
	if err != nil {
		return fmt.Errorf("build query: %w", err)
	}

	result, err := r.db.Execute(ctx, sqlQuery, args...)
	if err != nil {
		r.metrics.IncrementCounter("repository.configurations.errors", map[string]string{"operation": "deactivate"})
		return fmt.Errorf("deactivate configuration: %w", err)
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return r.classifyMissedWrite(ctx, tenantID, id)
	}
	r.metrics.IncrementCounter("repository.configurations.deactivate", nil)
	return nil
}

// ListActive pages through active configurations across all tenants, in
// stable order for the scheduler.
func (r *ConfigurationRepository) ListActive(ctx context.Context, offset, limit int) ([]*entity.Configuration, error) {
	query := r.qb.Select(configurationColumns).
		From("configurations").
		Where(squirrel.Eq{"is_active": true}).
		OrderBy("tenant_id", "id").
		Offset(uint64(offset)).
		Limit(uint64(limit))

	sqlQuery, args, err := query.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var configs []entity.Configuration
	if err := r.db.Select(ctx, &configs, sqlQuery, args...); err != nil {
		r.metrics.IncrementCounter("repository.configurations.errors", map[string]string{"operation": "list_active"})
		return nil, fmt.Errorf("list active configurations: %w", err)
	}

	result := make([]*entity.Configuration, len(configs))
	for i := range configs {
		result[i] = &configs[i]
	}
	return result, nil
}

// RecordRun writes back the engine-derived run times. These are cached
// metadata, not tenant-owned state, so they bypass the version token and do
// not bump it.
func (r *ConfigurationRepository) RecordRun(ctx context.Context, tenantID, id string, lastExecutedAt time.Time, nextScheduledRun *time.Time) error {
	query := r.qb.Update("configurations").
		Set("last_executed_at", lastExecutedAt).
		Set("next_scheduled_run", nextScheduledRun).
		Where(squirrel.Eq{"tenant_id": tenantID, "id": id})

	sqlQuery, args, err := query.ToSql()
	if err != nil {
		return fmt.Errorf("build query: %w", err)
	}
	if _, err := r.db.Execute(ctx, sqlQuery, args...); err != nil {
		return fmt.Errorf("record run times: %w", err)
	}
	return nil
}

// classifyMissedWrite distinguishes a stale token from a missing row after a
// guarded update touched nothing.
func (r *ConfigurationRepository) classifyMissedWrite(ctx context.Context, tenantID, id string) error {
	if _, err := r.Get(ctx, tenantID, id); errors.Is(err, ErrNotFound) {
		return ErrNotFound
	}
	return ErrVersionConflict
}
