package storage

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when a record does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrNamespaceNotFound is returned when no record exists in a namespace.
	// It matches ErrNotFound.
	ErrNamespaceNotFound = fmt.Errorf("namespace %w", ErrNotFound)
	// ErrCASFailed is returned when a compare-and-swap version check fails.
	ErrCASFailed = errors.New("CAS version mismatch")
)
