package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation is matched by every ValidationError.
	ErrValidation = errors.New("validation failed")
	// ErrStorage is matched by every StorageError.
	ErrStorage = errors.New("storage failure")
	// ErrNotActive is returned when a timed submission targets a stopped competition.
	ErrNotActive = errors.New("competition is not active")
	// ErrUnauthorized is returned by the boundary when admin credentials are missing.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrCompetitionNotFound indicates the competition is not in the loaded catalog.
	ErrCompetitionNotFound = errors.New("competition not found")
	// ErrLevelNotFound indicates the level is not defined for the competition.
	ErrLevelNotFound = errors.New("level not found")
)

// ValidationError describes malformed input to a core operation.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// Invalid builds a ValidationError.
func Invalid(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

// StorageError wraps a failure of the underlying store.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

func (e *StorageError) Is(target error) bool {
	return target == ErrStorage
}

// Storage wraps err as a StorageError; nil stays nil.
func Storage(op string, err error) error {
	if err == nil {
		return nil
	}
	var se *StorageError
	if errors.As(err, &se) {
		return err
	}
	return &StorageError{Op: op, Err: err}
}
