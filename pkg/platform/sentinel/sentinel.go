// Package sentinel holds storage-level error facts. Stores return them,
// possibly wrapped; services translate them into domain errors.
package sentinel

import "errors"

var (
	// ErrNotFound means the row or key does not exist.
	ErrNotFound = errors.New("not found")
	// ErrConflict means a uniqueness constraint rejected the write.
	ErrConflict = errors.New("conflict")
)
