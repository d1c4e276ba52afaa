package chatsync

import (
	"errors"
	"fmt"
	"net/http"
)

// ============================================================================
// Error Taxonomy
// ============================================================================

var (
	// ErrValidation marks malformed input to an engine entry point. Cache
	// mutators log and no-op instead of returning it; it escapes only where
	// the caller needs to know why nothing happened.
	ErrValidation = errors.New("invalid input")

	// ErrNotFound is returned when an operation names an entity the caches
	// do not hold.
	ErrNotFound = errors.New("not found")

	// ErrNotImplemented matches 404 and 501 responses from the optional
	// reaction endpoints. Reaction writes tolerate it by staying local-only.
	ErrNotImplemented = errors.New("endpoint not implemented")

	// ErrNoSnapshot is returned by a Store when a namespace was never saved.
	ErrNoSnapshot = errors.New("no snapshot")

	// ErrSnapshotVersion is returned by a Store when a persisted blob was
	// written under a different schema version. Callers discard and resync;
	// snapshots are never migrated.
	ErrSnapshotVersion = errors.New("snapshot version mismatch")
)

// NetworkError wraps a transport-level failure: timeout, refused connection,
// DNS. Always retryable.
type NetworkError struct {
	Op  string
	Err error
}

func (e *NetworkError) Error() string {
	return e.Op + ": " + e.Err.Error()
}

func (e *NetworkError) Unwrap() error { return e.Err }

// ServerError is a non-2xx response from the chat service. 5xx responses
// are retryable, 4xx are not.
type ServerError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *ServerError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("server returned %d %s: %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("server returned %d", e.StatusCode)
}

// Is lets errors.Is(err, ErrNotImplemented) match responses from servers
// that never grew the optional endpoints.
func (e *ServerError) Is(target error) bool {
	return target == ErrNotImplemented &&
		(e.StatusCode == http.StatusNotFound || e.StatusCode == http.StatusNotImplemented)
}

// Retryable reports whether the same request may succeed later.
func (e *ServerError) Retryable() bool { return e.StatusCode >= 500 }

// IsRetryable classifies an error for scheduling purposes: network failures
// and 5xx server responses may clear up on their own, everything else will
// not.
func IsRetryable(err error) bool {
	var ne *NetworkError
	if errors.As(err, &ne) {
		return true
	}
	var se *ServerError
	if errors.As(err, &se) {
		return se.Retryable()
	}
	return false
}
