// Package executor runs a single configuration check end to end: pattern
// resolution, remote listing, claim, notification, and the retry loop around
// transient failures.
package executor

import (
	"context"
	"errors"
	"time"

	"filescout/internal/config"
	"filescout/internal/entity"
	"filescout/internal/notify"
	"filescout/internal/observability"
	"filescout/internal/pattern"
	"filescout/internal/protocol"
	"filescout/internal/repository"
)

// ExecutionStore is the slice of the execution ledger the executor writes.
type ExecutionStore interface {
	Create(ctx context.Context, exec *entity.Execution) error
	Update(ctx context.Context, exec *entity.Execution) error
}

// ClaimStore is the slice of the claim ledger the executor writes.
type ClaimStore interface {
	Claim(ctx context.Context, file *entity.DiscoveredFile) error
	UpdateStatus(ctx context.Context, id string, status entity.DiscoveryStatus) error
}

// CheckExecutor owns the lifecycle of one execution: every state transition
// is persisted before and after each attempt so the ledger never lies about
// what was in flight.
type CheckExecutor struct {
	adapters   protocol.AdapterProvider
	executions ExecutionStore
	claims     ClaimStore
	emitter    notify.Emitter
	cfg        config.ExecutorConfig
	logger     observability.Logger
	metrics    observability.Metrics
}

func New(
	adapters protocol.AdapterProvider,
	executions ExecutionStore,
	claims ClaimStore,
	emitter notify.Emitter,
	cfg config.ExecutorConfig,
	logger observability.Logger,
	metrics observability.Metrics,
) *CheckExecutor {
	return &CheckExecutor{
		adapters:   adapters,
		executions: executions,
		claims:     claims,
		emitter:    emitter,
		cfg:        cfg,
		logger:     logger,
		metrics:    metrics,
	}
}

// Run performs the check for one configuration, retrying transient failures
// with exponential backoff up to the attempt budget. The returned execution
// is always terminal unless ctx was cancelled mid-flight.
func (e *CheckExecutor) Run(ctx context.Context, cfg *entity.Configuration) (*entity.Execution, error) {
	exec := entity.NewExecution(cfg.TenantID, cfg.ID)
	if err := e.executions.Create(ctx, exec); err != nil {
		return nil, err
	}

	// Patterns resolve once, at execution start. Retries see the same
	// resolved values even across a midnight boundary.
	now := time.Now().UTC()
	resolvedPath := pattern.Resolve(cfg.PathPattern, now)
	resolvedName := pattern.Resolve(cfg.NamePattern, now)

	backoff := e.cfg.InitialBackoff
	for {
		if err := exec.Start(); err != nil {
			return exec, err
		}
		if err := e.executions.Update(ctx, exec); err != nil {
			return exec, err
		}

		found, claimed, attemptErr := e.attempt(ctx, cfg, exec, resolvedPath, resolvedName)
		if attemptErr == nil {
			if err := exec.Complete(found, claimed); err != nil {
				return exec, err
			}
			if err := e.executions.Update(ctx, exec); err != nil {
				return exec, err
			}
			e.logger.Info("check completed",
				"tenant_id", cfg.TenantID,
				"configuration_id", cfg.ID,
				"execution_id", exec.ID,
				"files_found", found,
				"files_claimed", claimed,
				"attempts", exec.Attempts())
			e.metrics.IncrementCounter("executor.completed", map[string]string{"protocol": string(cfg.Protocol)})
			return exec, nil
		}

		category := protocol.CategoryOf(attemptErr)
		if err := exec.Fail(string(category), attemptErr.Error()); err != nil {
			return exec, err
		}
		if err := e.executions.Update(ctx, exec); err != nil {
			return exec, err
		}

		e.logger.Warn("check attempt failed",
			"tenant_id", cfg.TenantID,
			"configuration_id", cfg.ID,
			"execution_id", exec.ID,
			"attempt", exec.Attempts(),
			"category", string(category),
			"error", attemptErr)
		e.metrics.IncrementCounter("executor.attempt_failures",
			map[string]string{"protocol": string(cfg.Protocol), "category": string(category)})

		if !category.Retryable() || !exec.CanRetry() || exec.Attempts() >= e.cfg.MaxAttempts {
			e.metrics.IncrementCounter("executor.failed",
				map[string]string{"protocol": string(cfg.Protocol), "category": string(category)})
			return exec, attemptErr
		}

		if err := sleep(ctx, backoff); err != nil {
			return exec, err
		}
		backoff *= 2
		if backoff > e.cfg.MaxBackoff {
			backoff = e.cfg.MaxBackoff
		}
	}
}

// attempt does one listing pass under the hard timeout. It returns the number
// of candidates seen and the number newly claimed.
func (e *CheckExecutor) attempt(ctx context.Context, cfg *entity.Configuration, exec *entity.Execution, resolvedPath, resolvedName string) (int, int, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, e.cfg.HardTimeout)
	defer cancel()

	adapter, err := e.adapters.Adapter(cfg.Protocol)
	if err != nil {
		return 0, 0, err
	}

	refs, err := adapter.ListCandidates(attemptCtx, cfg.ProtocolSettings, resolvedPath, resolvedName)
	if err != nil {
		return 0, 0, e.categorize(ctx, attemptCtx, err)
	}

	claimed := 0
	for _, ref := range refs {
		ok, err := e.handleCandidate(attemptCtx, cfg, exec, ref)
		if err != nil {
			return len(refs), claimed, e.categorize(ctx, attemptCtx, err)
		}
		if ok {
			claimed++
		}
	}
	return len(refs), claimed, nil
}

// handleCandidate claims one candidate and, on winning the claim, notifies
// every target. A lost claim is the normal idempotency path, not an error.
func (e *CheckExecutor) handleCandidate(ctx context.Context, cfg *entity.Configuration, exec *entity.Execution, ref protocol.FileRef) (bool, error) {
	file := entity.NewDiscoveredFile(cfg.TenantID, cfg.ID, exec.ID, ref.Reference, time.Now())
	file.FileSize = ref.Size
	file.LastModified = ref.LastModified

	if err := e.claims.Claim(ctx, file); err != nil {
		if errors.Is(err, repository.ErrAlreadyClaimed) {
			e.logger.Info("file already claimed today, skipping",
				"tenant_id", cfg.TenantID,
				"configuration_id", cfg.ID,
				"file_reference", ref.Reference)
			return false, nil
		}
		return false, protocol.WrapError(protocol.StoreUnavailable, err)
	}

	var notifyErr error
	for _, target := range cfg.NotificationTargets {
		n := &notify.Notification{
			TenantID:        cfg.TenantID,
			ConfigurationID: cfg.ID,
			ExecutionID:     exec.ID,
			FileReference:   file.FileReference,
			FileSize:        file.FileSize,
			LastModified:    file.LastModified,
			DiscoveredAt:    file.DiscoveredAt,
			EventType:       target.EventType,
			CommandType:     target.CommandType,
			StaticPayload:   target.StaticPayload,
			Destination:     target.Destination,
		}
		if err := e.emitter.Publish(ctx, n); err != nil {
			notifyErr = err
			e.logger.Error("notification dispatch failed",
				"tenant_id", cfg.TenantID,
				"configuration_id", cfg.ID,
				"file_reference", file.FileReference,
				"destination", target.Destination,
				"error", err)
			e.metrics.IncrementCounter("executor.notify_failures", nil)
		}
	}

	// The claim is spent either way: retrying the execution cannot re-win it,
	// so a dispatch failure is recorded on the claim instead of failing the
	// whole check.
	status := entity.DiscoveryNotificationSent
	if notifyErr != nil {
		status = entity.DiscoveryFailed
		file.MarkFailed()
	} else {
		file.MarkNotificationSent()
	}
	if err := e.claims.UpdateStatus(ctx, file.ID, status); err != nil {
		return true, protocol.WrapError(protocol.StoreUnavailable, err)
	}

	return true, nil
}

// categorize maps an attempt error to its final category. Hitting the hard
// timeout while the caller's context is still live becomes Timeout, which is
// terminal.
func (e *CheckExecutor) categorize(ctx, attemptCtx context.Context, err error) error {
	if attemptCtx.Err() != nil && ctx.Err() == nil {
		return protocol.WrapError(protocol.Timeout, err)
	}
	return err
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
