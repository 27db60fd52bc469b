package core

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidAmount    = errors.New("invalid amount")
	ErrInvalidType      = errors.New("type must be income or expense")
	ErrInvalidFrequency = errors.New("frequency must be daily, weekly or monthly")
	ErrInvalidInterval  = errors.New("interval must be between 1 and 1000")
	ErrInvalidDate      = errors.New("invalid date")
	ErrInvalidMonth     = errors.New("invalid month")
	ErrInvalidYear      = errors.New("invalid year")
	ErrMissingCategory  = errors.New("category is required")
	ErrEmptyName        = errors.New("empty name")
	ErrNoteTooLong      = errors.New("note too long (max 500 characters)")

	ErrNotFound           = errors.New("not found")
	ErrConflict           = errors.New("already exists")
	ErrDefaultCategory    = errors.New("default categories cannot be deleted")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrUnauthorized       = errors.New("unauthorized")
)

// ValidationError reports malformed input for a single field. It unwraps to
// the underlying sentinel so callers can match with errors.Is.
type ValidationError struct {
	Field string
	Err   error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %v", e.Field, e.Err)
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// IsValidation reports whether err carries a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
