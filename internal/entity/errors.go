package entity

import "errors"

// State-transition errors shared by the Execution and DiscoveredFile machines.
var (
	ErrAlreadyCompleted       = errors.New("execution already completed")
	ErrAlreadyInProgress      = errors.New("execution already in progress")
	ErrNotInProgress          = errors.New("execution not in progress")
	ErrMaxAttemptsExceeded    = errors.New("maximum attempts exceeded")
	ErrInvalidStateTransition = errors.New("invalid state transition")
	ErrTerminalState          = errors.New("record is in a terminal state")
)
