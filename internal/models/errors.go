package models

import (
	"errors"
	"fmt"
)

// Sentinel errors for the restoration core. Every typed error below unwraps to
// one of these so callers can branch with errors.Is.
var (
	ErrValidation  = errors.New("validation failed")
	ErrNotFound    = errors.New("not found")
	ErrInvariant   = errors.New("invariant violation")
	ErrPersistence = errors.New("persistence failed")
	ErrConsistency = errors.New("data consistency warning")
)

// ValidationError reports structurally invalid caller input. It is surfaced to
// the user synchronously and never retried.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("%s: %s", ErrValidation, e.Reason)
	}
	return fmt.Sprintf("%s: %s: %s", ErrValidation, e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// NewValidationError builds a ValidationError for field with a formatted reason.
func NewValidationError(field, format string, args ...any) error {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// NotFoundError reports a lookup against an unknown identifier.
type NotFoundError struct {
	Kind string
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q %s", e.Kind, e.ID, ErrNotFound)
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

// InvariantViolation reports an operation that would break a modelled
// invariant. The collection it was applied to is returned unchanged.
type InvariantViolation struct {
	Invariant string
	Detail    string
}

func (e *InvariantViolation) Error() string {
	return fmt.Sprintf("%s: %s: %s", ErrInvariant, e.Invariant, e.Detail)
}

func (e *InvariantViolation) Unwrap() error { return ErrInvariant }

// PersistenceError reports a failed flush to the job store. In-memory state is
// kept so the caller can retry.
type PersistenceError struct {
	JobID string
	Err   error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s for job %s: %v", ErrPersistence, e.JobID, e.Err)
}

func (e *PersistenceError) Unwrap() []error { return []error{ErrPersistence, e.Err} }

// Retryable is always true; a failed flush never invalidates the session.
func (e *PersistenceError) Retryable() bool { return true }

// DataConsistencyWarning is a non-blocking advisory such as an affected room
// that has no chamber yet.
type DataConsistencyWarning struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Subject string `json:"subject,omitempty"`
}

func (e *DataConsistencyWarning) Error() string {
	if e.Subject == "" {
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s (%s)", e.Code, e.Message, e.Subject)
}

func (e *DataConsistencyWarning) Unwrap() error { return ErrConsistency }

// Warning codes emitted by the core.
const (
	WarnUnassignedAffectedRoom = "unassigned_affected_room"
	WarnNoDamageClass          = "no_damage_class"
	WarnMaterialNotDry         = "material_not_dry"
	WarnRequiredStepIncomplete = "required_step_incomplete"
	WarnRequiredPhotoPending   = "required_photo_pending"
	WarnNotAtLastStep          = "not_at_last_step"
)
