package entity

import (
	"time"

	"github.com/google/uuid"
)

// ExecutionStatus is the lifecycle state of one check attempt.
type ExecutionStatus string

const (
	ExecutionPending    ExecutionStatus = "pending"
	ExecutionInProgress ExecutionStatus = "in_progress"
	ExecutionCompleted  ExecutionStatus = "completed"
	ExecutionFailed     ExecutionStatus = "failed"
)

// MaxExecutionAttempts bounds the pending/failed -> in_progress transitions.
const MaxExecutionAttempts = 3

// Execution records one attempt to run a Configuration's check. Terminal rows
// (completed, or failed with the retry budget spent) are immutable history.
type Execution struct {
	ID              string          `db:"id"`
	TenantID        string          `db:"tenant_id"`
	ConfigurationID string          `db:"configuration_id"`
	Status          ExecutionStatus `db:"status"`
	StartedAt       *time.Time      `db:"started_at"`
	CompletedAt     *time.Time      `db:"completed_at"`
	FilesFound      int             `db:"files_found"`
	FilesClaimed    int             `db:"files_claimed"`
	DurationMs      int64           `db:"duration_ms"`
	ErrorCategory   *string         `db:"error_category"`
	ErrorMessage    *string         `db:"error_message"`
	RetryCount      int             `db:"retry_count"`
	CreatedAt       time.Time       `db:"created_at"`
	UpdatedAt       time.Time       `db:"updated_at"`
}

// NewExecution creates a pending execution for one configuration check.
func NewExecution(tenantID, configurationID string) *Execution {
	now := time.Now().UTC()
	return &Execution{
		ID:              uuid.NewString(),
		TenantID:        tenantID,
		ConfigurationID: configurationID,
		Status:          ExecutionPending,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}

// Attempts is the total number of times this execution has been started.
func (e *Execution) Attempts() int {
	if e.StartedAt == nil {
		return 0
	}
	return e.RetryCount + 1
}

// CanStart reports whether Start would succeed.
func (e *Execution) CanStart() bool {
	switch e.Status {
	case ExecutionPending:
		return true
	case ExecutionFailed:
		return e.Attempts() < MaxExecutionAttempts
	default:
		return false
	}
}

// Start transitions pending or retryable-failed into in_progress.
func (e *Execution) Start() error {
	switch e.Status {
	case ExecutionCompleted:
		return ErrAlreadyCompleted
	case ExecutionInProgress:
		return ErrAlreadyInProgress
	case ExecutionFailed:
		if e.Attempts() >= MaxExecutionAttempts {
			return ErrMaxAttemptsExceeded
		}
		e.RetryCount++
	}

	now := time.Now().UTC()
	if e.StartedAt == nil {
		e.StartedAt = &now
	}
	e.Status = ExecutionInProgress
	e.ErrorCategory = nil
	e.ErrorMessage = nil
	e.CompletedAt = nil
	e.DurationMs = 0
	e.UpdatedAt = now
	return nil
}

// Complete finalizes a successful check with its candidate counts.
func (e *Execution) Complete(filesFound, filesClaimed int) error {
	if e.Status != ExecutionInProgress {
		return ErrNotInProgress
	}
	now := time.Now().UTC()
	e.Status = ExecutionCompleted
	e.FilesFound = filesFound
	e.FilesClaimed = filesClaimed
	e.CompletedAt = &now
	if e.StartedAt != nil {
		e.DurationMs = now.Sub(*e.StartedAt).Milliseconds()
	}
	e.UpdatedAt = now
	return nil
}

// Fail records a failed attempt with its error category and message.
func (e *Execution) Fail(category, message string) error {
	if e.Status != ExecutionInProgress {
		return ErrNotInProgress
	}
	now := time.Now().UTC()
	e.Status = ExecutionFailed
	e.ErrorCategory = &category
	e.ErrorMessage = &message
	e.CompletedAt = &now
	if e.StartedAt != nil {
		e.DurationMs = now.Sub(*e.StartedAt).Milliseconds()
	}
	e.UpdatedAt = now
	return nil
}

// IsTerminal reports whether the execution can never transition again.
func (e *Execution) IsTerminal() bool {
	if e.Status == ExecutionCompleted {
		return true
	}
	return e.Status == ExecutionFailed && e.Attempts() >= MaxExecutionAttempts
}

// CanRetry reports whether a failed execution still has retry budget.
func (e *Execution) CanRetry() bool {
	return e.Status == ExecutionFailed && e.Attempts() < MaxExecutionAttempts
}
