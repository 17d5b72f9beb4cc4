/*
errors.go - Centralized error types for the payroll engine

PURPOSE:
  All error types in one place for consistency and discoverability.

ERROR FAMILIES:
  1. Validation - bad input caught before any mutation (ValidationError)
  2. State      - lifecycle violations (InvalidStateError,
                  UnauthorizedTransitionError, ConcurrentModificationError)
  3. Infrastructure - anything the Repository returns that is not one of
                  the sentinels below; surfaced unchanged (wrapped with %w)

  Validation and state errors never leave a partial write behind: the
  engine checks everything before it asks the repository to persist.

USAGE:
  rec, err := engine.Approve(ctx, "emp-1", period, actor)
  switch {
  case errors.Is(err, payroll.ErrUnauthorizedTransition):
      // pick a different actor
  case payroll.IsRetryable(err):
      // re-fetch and retry
  }
*/
package payroll

import (
	"errors"
	"fmt"
	"strings"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrValidation is the parent of every ValidationError.
	ErrValidation = errors.New("validation failed")

	// ErrInvalidState is returned when an operation is not allowed in the
	// record's current status (including any mutation of approved/locked).
	ErrInvalidState = errors.New("invalid payroll state")

	// ErrUnauthorizedTransition is returned when the actor's role does not
	// match the transition table.
	ErrUnauthorizedTransition = errors.New("unauthorized transition")

	// ErrConcurrentModification is returned when the record changed between
	// read and write. Callers should re-fetch and retry.
	ErrConcurrentModification = errors.New("concurrent modification detected")

	// ErrEmployeeNotFound is returned by repositories for unknown employees.
	ErrEmployeeNotFound = errors.New("employee not found")

	// ErrRecordNotFound is returned when an operation needs an existing record.
	ErrRecordNotFound = errors.New("payroll record not found")

	// ErrVersionConflict is returned by repositories when the stored version
	// does not match the version the write was based on.
	ErrVersionConflict = errors.New("payroll record version conflict")

	// ErrCommissionNotConfigured is returned by Rates.Validate while the
	// commission rate pair has not been signed off.
	ErrCommissionNotConfigured = errors.New("commission rate and tax rate must be configured")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// FieldError names one offending input field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError reports every offending field of a rejected input.
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, f.Field+" "+f.Message)
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// FieldNames lists the offending field names in report order.
func (e *ValidationError) FieldNames() []string {
	names := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		names = append(names, f.Field)
	}
	return names
}

func newValidationError(field, message string) *ValidationError {
	return &ValidationError{Fields: []FieldError{{Field: field, Message: message}}}
}

// InvalidStateError is returned when the operation is not allowed in Status.
type InvalidStateError struct {
	EmployeeID string
	Period     Period
	Operation  Operation
	Status     Status
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("cannot %s payroll %s/%s in status %q", e.Operation, e.EmployeeID, e.Period, e.Status)
}

func (e *InvalidStateError) Unwrap() error { return ErrInvalidState }

// UnauthorizedTransitionError is returned when Actor's role may not run Operation.
type UnauthorizedTransitionError struct {
	Actor     Actor
	Operation Operation
	Status    Status
}

func (e *UnauthorizedTransitionError) Error() string {
	return fmt.Sprintf("role %q (actor %s) may not %s a record in status %q",
		e.Actor.Role, e.Actor.ID, e.Operation, e.Status)
}

func (e *UnauthorizedTransitionError) Unwrap() error { return ErrUnauthorizedTransition }

// ConcurrentModificationError is returned when the observed version is stale.
type ConcurrentModificationError struct {
	EmployeeID      string
	Period          Period
	ObservedVersion int64
}

func (e *ConcurrentModificationError) Error() string {
	return fmt.Sprintf("payroll %s/%s changed since version %d was read", e.EmployeeID, e.Period, e.ObservedVersion)
}

func (e *ConcurrentModificationError) Unwrap() error { return ErrConcurrentModification }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsRetryable returns true if the error might succeed after a re-fetch.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrConcurrentModification)
}

// IsValidationError returns true for bad-input errors.
func IsValidationError(err error) bool {
	return errors.Is(err, ErrValidation)
}

// IsStateError returns true for lifecycle violations.
func IsStateError(err error) bool {
	return errors.Is(err, ErrInvalidState) ||
		errors.Is(err, ErrUnauthorizedTransition) ||
		errors.Is(err, ErrConcurrentModification)
}
