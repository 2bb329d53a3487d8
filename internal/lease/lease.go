// Package lease provides the per-configuration distributed lease that keeps
// overlapping checks from running at the same time across engine instances.
package lease

import "context"

// Lease is the mutual-exclusion port. Acquire is non-blocking: false means
// another holder owns the key and the caller should skip, not wait.
type Lease interface {
	Acquire(ctx context.Context, key string) (bool, error)
	Release(ctx context.Context, key string) error
}
