package entity

import (
	"time"

	"github.com/google/uuid"
)

// DiscoveryStatus is the lifecycle state of a file claim.
type DiscoveryStatus string

const (
	DiscoveryPending          DiscoveryStatus = "pending"
	DiscoveryNotificationSent DiscoveryStatus = "notification_sent"
	DiscoveryFailed           DiscoveryStatus = "failed"
)

// DiscoveredFile is the claim record proving a specific file was reported
// exactly once for a given calendar day. Uniqueness over (tenant,
// configuration, file reference, discovery date) is enforced by the store;
// this is the engine's idempotency key.
type DiscoveredFile struct {
	ID              string          `db:"id"`
	TenantID        string          `db:"tenant_id"`
	ConfigurationID string          `db:"configuration_id"`
	ExecutionID     string          `db:"execution_id"`
	FileReference   string          `db:"file_reference"`
	FileSize        *int64          `db:"file_size"`
	LastModified    *time.Time      `db:"last_modified"`
	DiscoveryDate   time.Time       `db:"discovery_date"`
	DiscoveredAt    time.Time       `db:"discovered_at"`
	Status          DiscoveryStatus `db:"status"`
}

// NewDiscoveredFile builds a pending claim for fileRef discovered at the
// given instant. The discovery date is the UTC calendar day of discoveredAt.
func NewDiscoveredFile(tenantID, configurationID, executionID, fileRef string, discoveredAt time.Time) *DiscoveredFile {
	at := discoveredAt.UTC()
	return &DiscoveredFile{
		ID:              uuid.NewString(),
		TenantID:        tenantID,
		ConfigurationID: configurationID,
		ExecutionID:     executionID,
		FileReference:   fileRef,
		DiscoveryDate:   DiscoveryDay(at),
		DiscoveredAt:    at,
		Status:          DiscoveryPending,
	}
}

// DiscoveryDay truncates an instant to its UTC calendar day.
func DiscoveryDay(at time.Time) time.Time {
	at = at.UTC()
	return time.Date(at.Year(), at.Month(), at.Day(), 0, 0, 0, 0, time.UTC)
}

// MarkNotificationSent finalizes the claim after all targets were notified.
func (d *DiscoveredFile) MarkNotificationSent() error {
	if d.Status != DiscoveryPending {
		return ErrTerminalState
	}
	d.Status = DiscoveryNotificationSent
	return nil
}

// MarkFailed finalizes the claim when notification dispatch failed.
func (d *DiscoveredFile) MarkFailed() error {
	if d.Status != DiscoveryPending {
		return ErrTerminalState
	}
	d.Status = DiscoveryFailed
	return nil
}
