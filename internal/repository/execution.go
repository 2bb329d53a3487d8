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

// ExecutionRepository persists the execution ledger. Every attempt and state
// transition is written through here so operators can reconstruct what the
// engine did for any configuration.
type ExecutionRepository struct {
	db      database.Database
	logger  observability.Logger
	metrics observability.Metrics
	qb      squirrel.StatementBuilderType
}

func NewExecutionRepository(db database.Database, logger observability.Logger, metrics observability.Metrics) *ExecutionRepository {
	return &ExecutionRepository{
		db:      db,
		logger:  logger,
		metrics: metrics,
		qb:      squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

const executionColumns = `id, tenant_id, configuration_id, status, started_at, completed_at,
	files_found, files_claimed, duration_ms, error_category, error_message,
	retry_count, created_at, updated_at`

func (r *ExecutionRepository) Create(ctx context.Context, exec *entity.Execution) error {
	query := r.qb.Insert("executions").
		Columns("id", "tenant_id", "configuration_id", "status", "started_at", "completed_at",
			"files_found", "files_claimed", "duration_ms", "error_category", "error_message",
			"retry_count", "created_at", "updated_at").
		Values(exec.ID, exec.TenantID, exec.ConfigurationID, exec.Status, exec.StartedAt, exec.CompletedAt,
			exec.FilesFound, exec.FilesClaimed, exec.DurationMs, exec.ErrorCategory, exec.ErrorMessage,
			exec.RetryCount, exec.CreatedAt, exec.UpdatedAt)

	sqlQuery, args, err := query.ToSql()
	if err != nil {
		return fmt.Errorf("build query: %w", err)
	}

	if _, err := r.db.Execute(ctx, sqlQuery, args...); err != nil {
		r.metrics.IncrementCounter("repository.executions.errors", map[string]string{"operation": "create"})
		return fmt.Errorf("create execution: %w", err)
	}
	return nil
}

// Update persists the execution's current state. The entity owns the state
// machine; the repository just writes whatever it has become.
func (r *ExecutionRepository) Update(ctx context.Context, exec *entity.Execution) error {
	exec.UpdatedAt = time.Now().UTC()
	query := r.qb.Update("executions").
		Set("status", exec.Status).
		Set("started_at", exec.StartedAt).
		Set("completed_at", exec.CompletedAt).
		Set("files_found", exec.FilesFound).
		Set("files_claimed", exec.FilesClaimed).
		Set("duration_ms", exec.DurationMs).
		Set("error_category", exec.ErrorCategory).
		Set("error_message", exec.ErrorMessage).
		Set("retry_count", exec.RetryCount).
		Set("updated_at", exec.UpdatedAt).
		Where(squirrel.Eq{"id": exec.ID})

	sqlQuery, args, err := query.ToSql()
	if err != nil {
		return fmt.Errorf("build query: %w", err)
	}

	if _, err := r.db.Execute(ctx, sqlQuery, args...); err != nil {
		r.metrics.IncrementCounter("repository.executions.errors", map[string]string{"operation": "update"})
		return fmt.Errorf("update execution: %w", err)
	}
	return nil
}

func (r *ExecutionRepository) Get(ctx context.Context, id string) (*entity.Execution, error) {
	query := r.qb.Select(executionColumns).
		From("executions").
		Where(squirrel.Eq{"id": id})

	sqlQuery, args, err := query.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var exec entity.Execution
	err = r.db.Get(ctx, &exec, sqlQuery, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get execution: %w", err)
	}
	return &exec, nil
}

// ListByConfiguration returns the most recent executions for one
// configuration, newest first.
func (r *ExecutionRepository) ListByConfiguration(ctx context.Context, tenantID, configurationID string, limit int) ([]*entity.Execution, error) {
	query := r.qb.Select(executionColumns).
		From("executions").
		Where(squirrel.Eq{"tenant_id": tenantID, "configuration_id": configurationID}).
		OrderBy("created_at DESC").
		Limit(uint64(limit))

	sqlQuery, args, err := query.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var execs []entity.Execution
	if err := r.db.Select(ctx, &execs, sqlQuery, args...); err != nil {
		return nil, fmt.Errorf("list executions: %w", err)
	}

	result := make([]*entity.Execution, len(execs))
	for i := range execs {
		result[i] = &execs[i]
	}
	return result, nil
}

// PurgeOlderThan removes terminal executions whose completion predates the
// cutoff. In-flight and pending rows are never touched.
func (r *ExecutionRepository) PurgeOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	query := r.qb.Delete("executions").
		Where(squirrel.Eq{"status": []entity.ExecutionStatus{entity.ExecutionCompleted, entity.ExecutionFailed}}).
		Where(squirrel.Lt{"completed_at": cutoff})

	sqlQuery, args, err := query.ToSql()
	if err != nil {
		return 0, fmt.Errorf("build query: %w", err)
	}

	result, err := r.db.Execute(ctx, sqlQuery, args...)
	if err != nil {
		r.metrics.IncrementCounter("repository.executions.errors", map[string]string{"operation": "purge"})
		return 0, fmt.Errorf("purge executions: %w", err)
	}

	rows, _ := result.RowsAffected()
	if rows > 0 {
		r.logger.Info("purged expired executions", "count", rows, "cutoff", cutoff)
	}
	return rows, nil
}
