package store

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned by Get when no note has the requested id.
var ErrNotFound = errors.New("note not found")

// StorageError reports a failed database operation. It is not retryable:
// callers propagate it instead of treating it like a network failure.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage: failed to %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// IsStorageError reports whether err came from the local database.
func IsStorageError(err error) bool {
	var se *StorageError
	return errors.As(err, &se)
}

func wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	return &StorageError{Op: op, Err: err}
}
