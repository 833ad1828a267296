package lock

import (
	"errors"
	"fmt"
)

// Sentinel errors for lock operations. These are business-rule violations:
// they are surfaced to the caller immediately and never retried.
var (
	// ErrAlreadyLocked is returned when a hard lock held by another user
	// blocks an acquire.
	ErrAlreadyLocked = errors.New("lock: resource already locked")

	// ErrNotHolder is returned when a caller releases or inspects a lock
	// it does not hold.
	ErrNotHolder = errors.New("lock: caller does not hold the lock")

	// ErrNotLocked is returned when an operation needs an existing lock
	// (release, request-access) and the resource has none.
	ErrNotLocked = errors.New("lock: resource is not locked")

	// ErrInvalidKind is returned for lock kinds other than soft or hard.
	ErrInvalidKind = errors.New("lock: invalid lock kind")
)

// ConflictError wraps ErrAlreadyLocked with the lock that caused the
// conflict, so callers can show who holds the resource.
type ConflictError struct {
	Lock Lock
}

// Error returns the error message with the holder's identity.
func (e *ConflictError) Error() string {
	return fmt.Sprintf("lock: resource %q is locked by user %d", e.Lock.ResourceID, e.Lock.HolderID)
}

// Unwrap returns ErrAlreadyLocked for errors.Is checks.
func (e *ConflictError) Unwrap() error {
	return ErrAlreadyLocked
}
