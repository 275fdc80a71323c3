package backend

import (
	"context"
	"errors"
)

// Sentinel errors for backend operations.
var (
	// ErrRateLimit indicates the backend returned a rate limit response.
	ErrRateLimit = errors.New("backend rate limited")

	// ErrContextLength indicates the request exceeded the model's context window.
	ErrContextLength = errors.New("context length exceeded")

	// ErrUnavailable indicates the backend is temporarily unreachable.
	ErrUnavailable = errors.New("backend unavailable")

	// ErrCredential indicates the backend rejected the supplied API key.
	ErrCredential = errors.New("credential rejected")

	// ErrThreadUnsupported indicates the client has no thread support.
	ErrThreadUnsupported = errors.New("threads not supported")

	// ErrRunTimeout indicates a thread run did not complete within the
	// polling wall-clock ceiling.
	ErrRunTimeout = errors.New("run polling timed out")

	// ErrRunFailed indicates a thread run reached a terminal status other
	// than completed.
	ErrRunFailed = errors.New("run failed")

	// ErrExhausted indicates every applicable mode failed for this request.
	ErrExhausted = errors.New("all backend modes exhausted")

	// ErrNoClient indicates no backend client is registered under the
	// requested name.
	ErrNoClient = errors.New("no backend client configured")
)

// IsCallerCancel reports whether err came from the caller's context rather
// than from the backend. Such errors must not trigger a mode downgrade.
func IsCallerCancel(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
