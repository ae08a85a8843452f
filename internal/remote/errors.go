package remote

import (
	"errors"
	"fmt"
)

// Sentinel errors returned by Gateway implementations. Use errors.Is.
var (
	// ErrAuth indicates the access token is missing, invalid or expired.
	ErrAuth = errors.New("remote: credentials rejected")

	// ErrNotFound indicates the remote service has no task with the given id.
	ErrNotFound = errors.New("remote: task not found")

	// ErrNetwork indicates the request never got an HTTP response.
	ErrNetwork = errors.New("remote: network failure")
)

// RemoteError is a non-2xx response other than auth failures and 404.
type RemoteError struct {
	Status int
	Body   string
}

func (e *RemoteError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("remote: unexpected status %d", e.Status)
	}
	return fmt.Sprintf("remote: unexpected status %d: %s", e.Status, e.Body)
}

// IsRetryable reports whether err should leave the work pending for the next
// pass rather than abort it.
func IsRetryable(err error) bool {
	if errors.Is(err, ErrNetwork) {
		return true
	}
	var re *RemoteError
	return errors.As(err, &re)
}
