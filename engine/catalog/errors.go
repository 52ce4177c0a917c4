package catalog

import (
	"errors"
	"fmt"
)

// Sentinel errors for absent entities. These are normal, user-facing
// outcomes, not storage faults.
var (
	ErrMovieNotFound = errors.New("movie not found")
	ErrUserNotFound  = errors.New("user not found")
)

// StorageError wraps a transport or query failure against the metadata
// store. It is fatal for the request it occurred in.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("catalog: %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// storageErr wraps err unless it is nil or already a sentinel.
func storageErr(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrMovieNotFound) || errors.Is(err, ErrUserNotFound) {
		return err
	}
	return &StorageError{Op: op, Err: err}
}
