package model

import (
	"errors"
	"fmt"
)

// Error kinds surfaced by the core. Callers classify with errors.Is.
var (
	ErrValidation      = errors.New("validation failed")
	ErrNotFound        = errors.New("not found")
	ErrForbidden       = errors.New("forbidden")
	ErrInvalidState    = errors.New("invalid state")
	ErrExternalService = errors.New("external service failure")
	ErrPersistence     = errors.New("persistence failure")
)

// ValidationError describes a rejected draft or input.
// Question holds the offending question text when the failure is question-level.
type ValidationError struct {
	Field    string
	Question string
	Reason   string
}

func (e *ValidationError) Error() string {
	switch {
	case e.Question != "":
		return fmt.Sprintf("question %q: %s", e.Question, e.Reason)
	case e.Field != "":
		return fmt.Sprintf("%s: %s", e.Field, e.Reason)
	}
	return e.Reason
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// PersistenceError wraps a storage failure with the operation that caused it.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

func (e *PersistenceError) Is(target error) bool {
	return target == ErrPersistence
}

// NotFound returns an error matching ErrNotFound for the given entity.
func NotFound(entity string, id int64) error {
	return fmt.Errorf("%s %d: %w", entity, id, ErrNotFound)
}

// Forbidden returns an error matching ErrForbidden.
func Forbidden(reason string) error {
	return fmt.Errorf("%s: %w", reason, ErrForbidden)
}

// InvalidState returns an error matching ErrInvalidState.
func InvalidState(reason string) error {
	return fmt.Errorf("%s: %w", reason, ErrInvalidState)
}
