package ports

import "errors"

// Infrastructure errors for the adapter layer.
//
// Adapters wrap these so the application layer can decide between retrying,
// falling back and failing. The domain never imports them.

// ErrTransient indicates a failure worth retrying: timeouts, 5xx responses,
// rate limiting, dropped connections.
var ErrTransient = errors.New("transient failure")

// ErrUnauthorized indicates the remote service rejected the API credential.
// Retrying with the same credential never helps.
var ErrUnauthorized = errors.New("unauthorized")

// ErrNotFound indicates the requested remote or local object does not exist.
var ErrNotFound = errors.New("not found")

// ErrConflict indicates the remote service refused a mutation because of
// its own state, e.g. a certificate quota that is already full.
var ErrConflict = errors.New("conflict")

// ErrToolUnavailable indicates an external tool is not installed.
var ErrToolUnavailable = errors.New("tool unavailable")

// IsRetryable reports whether err is worth another attempt.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrTransient)
}
