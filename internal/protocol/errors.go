package protocol

import (
	"errors"
	"fmt"
)

// Category classifies a failure for retry policy and observability. Every
// adapter and ledger error surfaces as exactly one of these.
type Category string

const (
	// AuthenticationFailure: bad or expired credential. Not retryable.
	AuthenticationFailure Category = "AuthenticationFailure"
	// ConnectionTimeout: network or firewall trouble. Retryable.
	ConnectionTimeout Category = "ConnectionTimeout"
	// ProtocolError: transient remote server error. Retryable.
	ProtocolError Category = "ProtocolError"
	// InvalidConfiguration: malformed pattern or settings. Not retryable.
	InvalidConfiguration Category = "InvalidConfiguration"
	// Timeout: the check exceeded its hard execution budget. Not retryable
	// within the execution; the next scheduled run retries naturally.
	Timeout Category = "Timeout"
	// StoreUnavailable: a ledger write failed. Retryable.
	StoreUnavailable Category = "StoreUnavailable"
)

// Retryable reports whether the fixed retry policy permits another attempt.
func (c Category) Retryable() bool {
	switch c {
	case ConnectionTimeout, ProtocolError, StoreUnavailable:
		return true
	}
	return false
}

// Error carries a categorized failure across the adapter boundary.
type Error struct {
	Category Category
	Err      error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %v", e.Category, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// WrapError attaches a category to err.
func WrapError(category Category, err error) *Error {
	return &Error{Category: category, Err: err}
}

// Errorf builds a categorized error from a format string.
func Errorf(category Category, format string, args ...interface{}) *Error {
	return &Error{Category: category, Err: fmt.Errorf(format, args...)}
}

// CategoryOf extracts the category from an error chain, defaulting to
// ProtocolError for uncategorized failures so unknown errors stay retryable.
func CategoryOf(err error) Category {
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Category
	}
	return ProtocolError
}
