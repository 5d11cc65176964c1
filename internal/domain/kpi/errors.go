package kpi

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound         = errors.New("not found")
	ErrPermissionDenied = errors.New("permission denied")

	// ErrConflict means the record changed between read and write; the
	// caller should re-fetch and retry.
	ErrConflict = errors.New("record was modified concurrently")
)

// TransitionError reports a status change the state machine does not allow.
type TransitionError struct {
	RecordID string
	Action   string
	Status   string
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("invalid transition %q from status %q on record %s", e.Action, e.Status, e.RecordID)
}

// ValidationError names the offending field so callers can surface it.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}
