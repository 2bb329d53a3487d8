// Package protocol defines the capability interface every remote file
// transport implements, the uniform error taxonomy adapters must map into,
// and the factory that selects an adapter from a configuration's protocol
// tag. The rest of the engine is protocol-agnostic.
package protocol

import (
	"context"
	"time"

	"filescout/internal/entity"
)

// FileRef is a discovered remote file: a canonical reference plus whatever
// metadata the protocol could supply.
type FileRef struct {
	// Reference is the canonical URL or path of the file.
	Reference string
	// Size in bytes, when the protocol reports it.
	Size *int64
	// LastModified, when the protocol reports it.
	LastModified *time.Time
}

// Adapter lists or probes for remote files matching an already-resolved path
// and name pattern. Implementations must map every underlying error into
// exactly one taxonomy Category and must never leak credentials into errors
// or logs.
type Adapter interface {
	ListCandidates(ctx context.Context, settings entity.ProtocolSettings, resolvedPath, resolvedName string) ([]FileRef, error)
}
