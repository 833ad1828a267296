package client

import (
	"errors"
	"fmt"
)

// Errors returned by the connection and lock layers.
var (
	// ErrConnectionExhausted is returned after the reconnect budget is
	// spent without reaching the hub.
	ErrConnectionExhausted = errors.New("client: reconnect attempts exhausted")

	// ErrNotConnected is returned by operations that need a live
	// connection when there is none.
	ErrNotConnected = errors.New("client: not connected")

	// ErrClosed is returned after Disconnect.
	ErrClosed = errors.New("client: closed")

	// Lock API errors, mapped from HTTP status codes.
	ErrAlreadyLocked = errors.New("client: resource locked by another user")
	ErrNotHolder     = errors.New("client: lock held by another user")
	ErrNotLocked     = errors.New("client: resource is not locked")

	// ErrTimeout is returned when a lock API call exceeds its deadline.
	// The outcome is ambiguous: the request may have been applied. The
	// caller should re-verify with CheckAccess before retrying.
	ErrTimeout = errors.New("client: lock api request timed out")
)

// AuthError reports a fatal authentication close from the hub. The
// client will not reconnect with the same token.
type AuthError struct {
	Code   int
	Reason string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("client: authentication rejected (code %d): %s", e.Code, e.Reason)
}

// NetworkError wraps a transport failure that triggered or interrupted
// a connection attempt.
type NetworkError struct {
	Op  string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("client: %s: %v", e.Op, e.Err)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}
