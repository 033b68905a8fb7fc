package approval

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation is matched by every *ValidationError via errors.Is
	ErrValidation = errors.New("validation failed")

	// ErrNotFound is returned when an entity is missing or not visible to the actor
	ErrNotFound = errors.New("not found")

	// ErrNoWorkflowConfigured is returned when a company has no active workflow definition
	ErrNoWorkflowConfigured = errors.New("no active workflow configured")

	// ErrConcurrencyConflict is returned when an optimistic status write lost a race
	ErrConcurrencyConflict = errors.New("concurrent modification detected")

	// ErrForbidden is returned when the actor's role does not allow the operation
	ErrForbidden = errors.New("forbidden")
)

// ValidationError describes malformed input or configuration
type ValidationError struct {
	Field  string
	Reason string
}

// NewValidationError creates a ValidationError for a field
func NewValidationError(field, reason string) *ValidationError {
	return &ValidationError{Field: field, Reason: reason}
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("%s: %s", ErrValidation, e.Reason)
	}
	return fmt.Sprintf("%s: %s %s", ErrValidation, e.Field, e.Reason)
}

// Is makes errors.Is(err, ErrValidation) succeed
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}
