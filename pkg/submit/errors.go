package submit

import (
	"errors"
	"fmt"
)

// ErrInProgress means a submission for the same logical record is
// currently in flight or cooling down.
var ErrInProgress = errors.New("a submission for this record is already in progress")

// AlreadySubmittedError means the record completed within the retention
// window and must not be resubmitted.
type AlreadySubmittedError struct {
	HoursSince int
}

func (e *AlreadySubmittedError) Error() string {
	return fmt.Sprintf("already submitted %dh ago", e.HoursSince)
}

// RejectedError means the backend explicitly rejected the record. The
// outcome is known: the record was not saved.
type RejectedError struct {
	Reason string
}

func (e *RejectedError) Error() string {
	if e.Reason == "" {
		return "submission rejected"
	}

	return "submission rejected: " + e.Reason
}

// AmbiguousOutcomeError means the attempt ended without an authoritative
// response: the backend may or may not have saved the record. The user
// should check history before retrying.
type AmbiguousOutcomeError struct {
	Cause error
}

func (e *AmbiguousOutcomeError) Error() string {
	return fmt.Sprintf("outcome unknown (%v): check history before retrying", e.Cause)
}

func (e *AmbiguousOutcomeError) Unwrap() error {
	return e.Cause
}
