// Package entity holds the persistent domain records of the discovery
// engine: tenant Configurations, check Executions and DiscoveredFile claims.
package entity

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Protocol is the closed set of supported remote file transports.
type Protocol string

const (
	ProtocolFTP           Protocol = "ftp"
	ProtocolHTTPS         Protocol = "https"
	ProtocolObjectStorage Protocol = "object_storage"
)

// ParseProtocol validates a protocol tag.
func ParseProtocol(s string) (Protocol, error) {
	switch Protocol(s) {
	case ProtocolFTP, ProtocolHTTPS, ProtocolObjectStorage:
		return Protocol(s), nil
	}
	return "", fmt.Errorf("unknown protocol %q", s)
}

// ProtocolSettings carries the per-protocol connection settings. Which fields
// apply is determined by the owning Configuration's Protocol tag. Credentials
// are always secret references, never inline values.
type ProtocolSettings struct {
	// FTP
	Host              string `json:"host,omitempty"`
	Port              int    `json:"port,omitempty"`
	Username          string `json:"username,omitempty"`
	PasswordSecretRef string `json:"passwordSecretRef,omitempty"`
	// DisableTLS opts out of the explicit-TLS default. Plain FTP only for
	// legacy endpoints that cannot do AUTH TLS.
	DisableTLS bool `json:"disableTls,omitempty"`

	// HTTPS
	BaseURL         string `json:"baseUrl,omitempty"`
	BearerSecretRef string `json:"bearerSecretRef,omitempty"`

	// Object storage
	Bucket              string `json:"bucket,omitempty"`
	Region              string `json:"region,omitempty"`
	Endpoint            string `json:"endpoint,omitempty"`
	CredentialSecretRef string `json:"credentialSecretRef,omitempty"`
}

// Value implements driver.Valuer so settings persist as JSONB.
func (s ProtocolSettings) Value() (driver.Value, error) {
	return json.Marshal(s)
}

// Scan implements sql.Scanner for JSONB columns.
func (s *ProtocolSettings) Scan(src interface{}) error {
	return scanJSON(src, s)
}

// NotificationTarget describes one downstream destination to notify when a
// new file is discovered. Exactly one of EventType or CommandType is set.
type NotificationTarget struct {
	EventType     string                 `json:"eventType,omitempty"`
	CommandType   string                 `json:"commandType,omitempty"`
	Destination   string                 `json:"destination"`
	StaticPayload map[string]interface{} `json:"staticPayload,omitempty"`
}

// NotificationTargets is a JSONB-persisted list of targets.
type NotificationTargets []NotificationTarget

func (t NotificationTargets) Value() (driver.Value, error) {
	return json.Marshal(t)
}

func (t *NotificationTargets) Scan(src interface{}) error {
	return scanJSON(src, t)
}

// Configuration is a tenant's declaration of what to check and when.
// All reads and writes are scoped by TenantID; Version is the optimistic
// concurrency token and must match on every update or deactivation.
type Configuration struct {
	ID                  string              `db:"id"`
	TenantID            string              `db:"tenant_id"`
	Protocol            Protocol            `db:"protocol"`
	ProtocolSettings    ProtocolSettings    `db:"protocol_settings"`
	PathPattern         string              `db:"path_pattern"`
	NamePattern         string              `db:"name_pattern"`
	CronExpression      string              `db:"cron_expression"`
	Timezone            string              `db:"timezone"`
	NotificationTargets NotificationTargets `db:"notification_targets"`
	IsActive            bool                `db:"is_active"`
	NextScheduledRun    *time.Time          `db:"next_scheduled_run"`
	LastExecutedAt      *time.Time          `db:"last_executed_at"`
	Version             int64               `db:"version"`
	CreatedAt           time.Time           `db:"created_at"`
	UpdatedAt           time.Time           `db:"updated_at"`
}

// NewConfiguration builds a fresh active configuration. Callers may supply an
// id for idempotent creation; otherwise one is generated.
func NewConfiguration(id, tenantID string) *Configuration {
	if id == "" {
		id = uuid.NewString()
	}
	now := time.Now().UTC()
	return &Configuration{
		ID:        id,
		TenantID:  tenantID,
		IsActive:  true,
		Version:   1,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func scanJSON(src, dst interface{}) error {
	switch v := src.(type) {
	case nil:
		return nil
	case []byte:
		return json.Unmarshal(v, dst)
	case string:
		return json.Unmarshal([]byte(v), dst)
	default:
		return fmt.Errorf("cannot scan %T into JSON value", src)
	}
}
