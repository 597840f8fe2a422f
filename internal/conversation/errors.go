package conversation

import "errors"

var (
	// ErrLockTimeout is returned when a phone's lock is not acquired before the wait deadline.
	ErrLockTimeout = errors.New("conversation: timed out waiting for conversation lock")

	errMissingPhone  = errors.New("conversation: state phone is required")
	errMissingSender = errors.New("conversation: inbound message sender is required")
)
