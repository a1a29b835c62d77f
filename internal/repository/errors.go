package repository

import "errors"

var (
	// ErrNotFound indicates the requested record does not exist.
	ErrNotFound = errors.New("repository: not found")
	// ErrConflict indicates a guarded write lost against a concurrent or earlier write.
	ErrConflict = errors.New("repository: conflict")
)
