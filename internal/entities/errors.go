package entities

import (
	"errors"
	"fmt"
)

// Sentinel errors for the error taxonomy. Every concrete error type below
// matches exactly one of them via errors.Is.
var (
	ErrValidation = errors.New("validation failed")
	ErrNotFound   = errors.New("not found")
	ErrConflict   = errors.New("conflict")
	ErrCorruption = errors.New("corrupted attribute")
)

// ValidationError reports a value that cannot be accepted at write time.
type ValidationError struct {
	Field  string
	Reason string
	Err    error
}

// NewValidationError creates a ValidationError for the given field
func NewValidationError(field string, format string, args ...interface{}) *ValidationError {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("validation failed: %s", e.Reason)
	}
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

func (e *ValidationError) Unwrap() error { return e.Err }

// NotFoundError reports a referenced entity, account, project or attribute that does not exist.
type NotFoundError struct {
	Resource string
	Key      string
}

// NewNotFoundError creates a NotFoundError; key is formatted with %v
func NewNotFoundError(resource string, key interface{}) *NotFoundError {
	return &NotFoundError{Resource: resource, Key: fmt.Sprint(key)}
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Resource, e.Key)
}

func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

// ConflictError reports a uniqueness violation or a write that contradicts existing state.
type ConflictError struct {
	Resource string
	Key      string
	Reason   string
}

// NewConflictError creates a ConflictError
func NewConflictError(resource string, key interface{}, format string, args ...interface{}) *ConflictError {
	return &ConflictError{Resource: resource, Key: fmt.Sprint(key), Reason: fmt.Sprintf(format, args...)}
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%s %s conflict: %s", e.Resource, e.Key, e.Reason)
}

func (e *ConflictError) Is(target error) bool { return target == ErrConflict }

// CorruptionError reports a stored attribute whose text does not parse as its declared kind.
type CorruptionError struct {
	ProjectID int64
	Key       string
	ValueType string
	Value     string
	Err       error
}

func (e *CorruptionError) Error() string {
	return fmt.Sprintf("attribute %q of project %d: stored value %q is not a valid %s: %v",
		e.Key, e.ProjectID, e.Value, e.ValueType, e.Err)
}

func (e *CorruptionError) Is(target error) bool { return target == ErrCorruption }

func (e *CorruptionError) Unwrap() error { return e.Err }
