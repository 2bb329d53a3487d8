package repository

import (
	"context"
	"fmt"

	"github.com/Masterminds/squirrel"

	"filescout/internal/database"
	"filescout/internal/entity"
	"filescout/internal/observability"
)

// DiscoveredFileRepository persists discovery claims. The insert doubles as
// the idempotency gate: the store's unique constraint decides who owns the
// (tenant, configuration, file, day) key, no matter how many workers race.
type DiscoveredFileRepository struct {
	db      database.Database
	logger  observability.Logger
	metrics observability.Metrics
	qb      squirrel.StatementBuilderType
}

func NewDiscoveredFileRepository(db database.Database, logger observability.Logger, metrics observability.Metrics) *DiscoveredFileRepository {
	return &DiscoveredFileRepository{
		db:      db,
		logger:  logger,
		metrics: metrics,
		qb:      squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

// Claim inserts the claim row. ErrAlreadyClaimed means another execution, or
// an earlier attempt of this one, already owns the key for this day.
func (r *DiscoveredFileRepository) Claim(ctx context.Context, file *entity.DiscoveredFile) error {
	query := r.qb.Insert("discovered_files").
		Columns("id", "tenant_id", "configuration_id", "execution_id", "file_reference",
			"file_size", "last_modified", "discovery_date", "discovered_at", "status").
		Values(file.ID, file.TenantID, file.ConfigurationID, file.ExecutionID, file.FileReference,
			file.FileSize, file.LastModified, file.DiscoveryDate, file.DiscoveredAt, file.Status)

	sqlQuery, args, err := query.ToSql()
	if err != nil {
		return fmt.Errorf("build query: %w", err)
	}

	if _, err := r.db.Execute(ctx, sqlQuery, args...); err != nil {
		if isUniqueViolation(err) {
			r.metrics.IncrementCounter("repository.discovered_files.duplicate_claims", nil)
			return ErrAlreadyClaimed
		}
		r.metrics.IncrementCounter("repository.discovered_files.errors", map[string]string{"operation": "claim"})
		return fmt.Errorf("claim discovered file: %w", err)
	}

	r.metrics.IncrementCounter("repository.discovered_files.claims", nil)
	return nil
}

// UpdateStatus records the claim's notification outcome.
func (r *DiscoveredFileRepository) UpdateStatus(ctx context.Context, id string, status entity.DiscoveryStatus) error {
	query := r.qb.Update("discovered_files").
		Set("status", status).
		Where(squirrel.Eq{"id": id})

	sqlQuery, args, err := query.ToSql()
	if err != nil {
		return fmt.Errorf("build query: %w", err)
	}

	if _, err := r.db.Execute(ctx, sqlQuery, args...); err != nil {
		r.metrics.IncrementCounter("repository.discovered_files.errors", map[string]string{"operation": "update_status"})
		return fmt.Errorf("update discovered file status: %w", err)
	}
	return nil
}

// ListByExecution returns every claim recorded by one execution.
func (r *DiscoveredFileRepository) ListByExecution(ctx context.Context, executionID string) ([]*entity.DiscoveredFile, error) {
	query := r.qb.Select("id", "tenant_id", "configuration_id", "execution_id", "file_reference",
		"file_size", "last_modified", "discovery_date", "discovered_at", "status").
		From("discovered_files").
		Where(squirrel.Eq{"execution_id": executionID}).
		OrderBy("discovered_at")

	sqlQuery, args, err := query.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var files []entity.DiscoveredFile
	if err := r.db.Select(ctx, &files, sqlQuery, args...); err != nil {
		return nil, fmt.Errorf("list discovered files: %w", err)
	}

	result := make([]*entity.DiscoveredFile, len(files))
	for i := range files {
		result[i] = &files[i]
	}
	return result, nil
}
