package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrContractViolation is matched by every ContractError
	ErrContractViolation = errors.New("data contract violation")

	// ErrLocationNotFound is returned when the geocoder has no match for a candidate
	ErrLocationNotFound = errors.New("location not found")

	// ErrRunNotFound is returned when a run cannot be found in the run store
	ErrRunNotFound = errors.New("run not found")

	// ErrRunAlreadyClaimed is returned when attempting to claim a run that is not PENDING
	ErrRunAlreadyClaimed = errors.New("run already claimed or not in PENDING status")

	// ErrInvalidMessage is returned when a queue message cannot be decoded
	ErrInvalidMessage = errors.New("invalid run message")

	// ErrMaxRetriesExceeded is returned when a run has exceeded its retry limit
	ErrMaxRetriesExceeded = errors.New("max retries exceeded")
)

// ContractError reports input that breaks the pipeline's data contract, such
// as a missing required field or a salary period without a conversion
// factor. It aborts the batch.
type ContractError struct {
	RecordID string
	Field    string
	Reason   string
}

func (e *ContractError) Error() string {
	if e.RecordID == "" {
		return fmt.Sprintf("%s: %s: %s", ErrContractViolation, e.Field, e.Reason)
	}
	return fmt.Sprintf("%s: record %s: %s: %s", ErrContractViolation, e.RecordID, e.Field, e.Reason)
}

func (e *ContractError) Is(target error) bool {
	return target == ErrContractViolation
}

// LocationError is a per-candidate resolution failure. It is logged and the
// candidate is skipped; it never aborts a batch.
type LocationError struct {
	Candidate string
	Err       error
}

func (e *LocationError) Error() string {
	return fmt.Sprintf("resolve location %q: %v", e.Candidate, e.Err)
}

func (e *LocationError) Unwrap() error {
	return e.Err
}

// RetryableError wraps transient errors that should trigger a requeue
type RetryableError struct {
	Err error
}

func (e *RetryableError) Error() string {
	return "retryable error: " + e.Err.Error()
}

func (e *RetryableError) Unwrap() error {
	return e.Err
}

// NewRetryableError creates a new retryable error
func NewRetryableError(err error) error {
	return &RetryableError{Err: err}
}
