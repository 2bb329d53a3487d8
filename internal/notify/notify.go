// Package notify dispatches discovery notifications to downstream consumers
// over the configured message transport.
package notify

import (
	"context"
	"time"
)

// Notification is the payload emitted once per newly discovered file per
// target. EventType and CommandType are mutually exclusive, mirroring the
// notification target that produced it.
type Notification struct {
	TenantID        string                 `json:"tenantId"`
	ConfigurationID string                 `json:"configurationId"`
	ExecutionID     string                 `json:"executionId"`
	FileReference   string                 `json:"fileReference"`
	FileSize        *int64                 `json:"fileSize,omitempty"`
	LastModified    *time.Time             `json:"lastModified,omitempty"`
	DiscoveredAt    time.Time              `json:"discoveredAt"`
	EventType       string                 `json:"eventType,omitempty"`
	CommandType     string                 `json:"commandType,omitempty"`
	StaticPayload   map[string]interface{} `json:"staticPayload,omitempty"`

	// Destination routes the message; it is not part of the payload body.
	Destination string `json:"-"`
}

// Emitter publishes notifications. Implementations must be safe for
// concurrent use by the worker pool.
type Emitter interface {
	Publish(ctx context.Context, n *Notification) error
	Close() error
}
