package entity

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExecutionLifecycle(t *testing.T) {
	exec := NewExecution("tenant-1", "cfg-1")
	assert.Equal(t, ExecutionPending, exec.Status)
	assert.Equal(t, 0, exec.Attempts())
	assert.True(t, exec.CanStart())

	require.NoError(t, exec.Start())
	assert.Equal(t, ExecutionInProgress, exec.Status)
	assert.Equal(t, 1, exec.Attempts())
	require.NotNil(t, exec.StartedAt)

	require.NoError(t, exec.Complete(5, 2))
	assert.Equal(t, ExecutionCompleted, exec.Status)
	assert.Equal(t, 5, exec.FilesFound)
	assert.Equal(t, 2, exec.FilesClaimed)
	require.NotNil(t, exec.CompletedAt)
	assert.True(t, exec.IsTerminal())
}

func TestExecutionCompletedIsImmutable(t *testing.T) {
	exec := NewExecution("tenant-1", "cfg-1")
	require.NoError(t, exec.Start())
	require.NoError(t, exec.Complete(0, 0))

	assert.ErrorIs(t, exec.Start(), ErrAlreadyCompleted)
	assert.ErrorIs(t, exec.Complete(1, 1), ErrNotInProgress)
	assert.ErrorIs(t, exec.Fail("ProtocolError", "late"), ErrNotInProgress)
	assert.False(t, exec.CanRetry())
}

func TestExecutionRetryBudget(t *testing.T) {
	exec := NewExecution("tenant-1", "cfg-1")

	for attempt := 1; attempt <= MaxExecutionAttempts; attempt++ {
		require.NoError(t, exec.Start(), "attempt %d", attempt)
		assert.Equal(t, attempt, exec.Attempts())
		require.NoError(t, exec.Fail("ConnectionTimeout", "dial timeout"))
	}

	assert.False(t, exec.CanRetry())
	assert.True(t, exec.IsTerminal())
	assert.ErrorIs(t, exec.Start(), ErrMaxAttemptsExceeded)
}

func TestExecutionRetryClearsError(t *testing.T) {
	exec := NewExecution("tenant-1", "cfg-1")
	require.NoError(t, exec.Start())
	require.NoError(t, exec.Fail("ProtocolError", "garbled"))
	require.NotNil(t, exec.ErrorCategory)
	require.NotNil(t, exec.CompletedAt)
	assert.True(t, exec.CanRetry())

	// a retry back to in_progress must not keep the previous attempt's outcome
	require.NoError(t, exec.Start())
	assert.Nil(t, exec.ErrorCategory)
	assert.Nil(t, exec.ErrorMessage)
	assert.Nil(t, exec.CompletedAt)
	assert.Zero(t, exec.DurationMs)
	assert.Equal(t, 2, exec.Attempts())
}

func TestExecutionCannotStartWhileInProgress(t *testing.T) {
	exec := NewExecution("tenant-1", "cfg-1")
	require.NoError(t, exec.Start())
	assert.ErrorIs(t, exec.Start(), ErrAlreadyInProgress)
}

func TestDiscoveryDay(t *testing.T) {
	// 23:30 in UTC-5 is already the next day in UTC
	loc := time.FixedZone("UTC-5", -5*3600)
	at := time.Date(2026, 3, 14, 23, 30, 0, 0, loc)
	assert.Equal(t, time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC), DiscoveryDay(at))
}

func TestDiscoveredFileTransitions(t *testing.T) {
	file := NewDiscoveredFile("tenant-1", "cfg-1", "exec-1", "ftp://host/a.csv", time.Now())
	assert.Equal(t, DiscoveryPending, file.Status)

	require.NoError(t, file.MarkNotificationSent())
	assert.ErrorIs(t, file.MarkFailed(), ErrTerminalState)
	assert.ErrorIs(t, file.MarkNotificationSent(), ErrTerminalState)
}
