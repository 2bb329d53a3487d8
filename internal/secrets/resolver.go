// Package secrets resolves credential references to their values at call
// time. Configurations only ever store secret names; the actual values live
// in an external secret store and are never persisted or logged.
package secrets

import (
	"context"
	"fmt"
	"os"
	"strings"
)

// Resolver turns a secret reference into its value.
type Resolver interface {
	Resolve(ctx context.Context, name string) (string, error)
}

// EnvResolver resolves references from process environment variables of the
// form SECRET_<NAME>. It stands in for a real secret-store client in local
// and test environments; production deployments inject their own Resolver.
type EnvResolver struct {
	prefix string
}

// NewEnvResolver creates a resolver reading SECRET_-prefixed variables.
func NewEnvResolver() *EnvResolver {
	return &EnvResolver{prefix: "SECRET_"}
}

func (r *EnvResolver) Resolve(_ context.Context, name string) (string, error) {
	if name == "" {
		return "", fmt.Errorf("empty secret reference")
	}
	key := r.prefix + sanitizeRef(name)
	value, ok := os.LookupEnv(key)
	if !ok {
		return "", fmt.Errorf("secret reference %q not found", name)
	}
	return value, nil
}

func sanitizeRef(name string) string {
	upper := strings.ToUpper(name)
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		default:
			return '_'
		}
	}, upper)
}

// Static is a fixed map resolver for tests.
type Static map[string]string

func (s Static) Resolve(_ context.Context, name string) (string, error) {
	value, ok := s[name]
	if !ok {
		return "", fmt.Errorf("secret reference %q not found", name)
	}
	return value, nil
}
