// Package common provides shared utilities and types used across the application.
package common

import (
	"errors"
	"fmt"
	"strings"
)

// Common application errors.
var (
	// Storage errors.
	ErrNotFound = errors.New("not found")

	// Boundary errors.
	ErrValidation = errors.New("validation failed")
	ErrStale      = errors.New("stale records")

	// Configuration errors.
	ErrInvalidConfig = errors.New("invalid configuration")
)

// ValidationError rejects input at the boundary before it reaches matching
// or apply logic.
type ValidationError struct {
	Err    error
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	msg := fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// Is makes errors.Is(err, ErrValidation) match any ValidationError.
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// NewValidationError creates a validation error for the named field.
func NewValidationError(field, reason string, err error) error {
	return &ValidationError{Field: field, Reason: reason, Err: err}
}

// StaleRecordError reports a batch write that affected fewer records than
// requested because some became ineligible in the meantime.
type StaleRecordError struct {
	Operation string
	StaleIDs  []string
	Requested int
	Applied   int
}

func (e *StaleRecordError) Error() string {
	if e.NoneApplied() {
		return fmt.Sprintf("%s: none of %d records applied (stale: %s)",
			e.Operation, e.Requested, strings.Join(e.StaleIDs, ", "))
	}
	return fmt.Sprintf("%s: applied %d of %d records, skipped stale: %s",
		e.Operation, e.Applied, e.Requested, strings.Join(e.StaleIDs, ", "))
}

// Is makes errors.Is(err, ErrStale) match any StaleRecordError.
func (e *StaleRecordError) Is(target error) bool {
	return target == ErrStale
}

// NoneApplied distinguishes a total failure from a partial commit.
func (e *StaleRecordError) NoneApplied() bool {
	return e.Applied == 0
}

// UserError represents an error that should be shown to the user.
type UserError struct {
	Err         error
	UserMessage string
}

func (e *UserError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.UserMessage, e.Err)
	}
	return e.UserMessage
}

func (e *UserError) Unwrap() error {
	return e.Err
}

// NewUserError creates a new user-friendly error.
func NewUserError(userMessage string, err error) error {
	return &UserError{
		UserMessage: userMessage,
		Err:         err,
	}
}
