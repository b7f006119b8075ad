package store

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when an identity does not name a live record.
	ErrNotFound = errors.New("record not found")

	// ErrClosed is returned by operations on a closed store.
	ErrClosed = errors.New("store closed")

	// ErrStorageUnreadable marks the terminal change event delivered when a
	// subscribed view can no longer be read.
	ErrStorageUnreadable = errors.New("storage unreadable")
)

// MigrationError reports that the on-disk schema could not be brought to the
// target version. The store is not usable when Open returns one.
type MigrationError struct {
	// From is the schema version found on disk.
	From int

	// To is the target schema version.
	To int

	// Version is the migration step that failed (0 for the base schema or
	// when the on-disk version is newer than the target).
	Version int

	Err error
}

// Error implements the error interface.
func (e *MigrationError) Error() string {
	if e.Version > 0 {
		return fmt.Sprintf("migrate schema %d -> %d: step %d: %v", e.From, e.To, e.Version, e.Err)
	}
	return fmt.Sprintf("migrate schema %d -> %d: %v", e.From, e.To, e.Err)
}

// Unwrap returns the underlying cause.
func (e *MigrationError) Unwrap() error {
	return e.Err
}

// TransactionError reports that a write could not commit. No part of the
// write was applied.
type TransactionError struct {
	// Op names the store operation, e.g. "create" or "update".
	Op string

	Err error
}

// Error implements the error interface.
func (e *TransactionError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying cause.
func (e *TransactionError) Unwrap() error {
	return e.Err
}

// IsMigrationError returns true if err is or wraps a *MigrationError.
func IsMigrationError(err error) bool {
	var me *MigrationError
	return errors.As(err, &me)
}

// IsTransactionError returns true if err is or wraps a *TransactionError.
func IsTransactionError(err error) bool {
	var te *TransactionError
	return errors.As(err, &te)
}
