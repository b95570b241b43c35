package model

import (
	"errors"
	"fmt"
)

// Sentinel errors shared by the repository and service layers.
var (
	ErrNotFound          = errors.New("not found")
	ErrValidation        = errors.New("validation error")
	ErrIndexMissing      = errors.New("search index missing")
	ErrReindexInProgress = errors.New("reindex already in progress")
)

// ValidationError describes malformed input for one field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation: %s: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// NewValidationError creates a ValidationError for a single field.
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}
