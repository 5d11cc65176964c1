package kpi

import (
	"strings"
	"time"
)

// CanEdit reports whether the actual value and report of a record in the
// given status may still be changed by the assigned employee.
func CanEdit(status string) bool {
	switch NormalizeStatus(status) {
	case StatusNotStarted, StatusInProgress, StatusRejected:
		return true
	}
	return false
}

// CanSubmit reports whether a record in the given status with the given
// actual value may be submitted for approval.
func CanSubmit(status string, actual float64) bool {
	switch NormalizeStatus(status) {
	case StatusNotStarted, StatusInProgress:
		return actual > 0
	}
	return false
}

// CanApprove reports whether a record in the given status is waiting for an
// approval decision. The admin capability is checked separately, against
// the acting user.
func CanApprove(status string) bool {
	return NormalizeStatus(status) == StatusAwaitingApproval
}

func defaultComment(action string) string {
	switch action {
	case ActionStart:
		return "Work started"
	case ActionSubmit:
		return "Report submitted for approval"
	case ActionApprove:
		return "Approved"
	case ActionReject:
		return "Rejected"
	case ActionReopen:
		return "Reopened for editing"
	}
	return ""
}

// ApplyTransition validates the requested action against the state machine
// and the actor's capability, and returns a copy of the record with the new
// status and exactly one appended history entry. The input record is never
// mutated; on error it is returned unchanged alongside the error.
//
// Capability failures take precedence over state failures: an employee
// attempting approve gets ErrPermissionDenied regardless of the record's
// current status.
func ApplyTransition(rec Record, action string, actor Actor, payload TransitionPayload, now time.Time) (Record, error) {
	status := NormalizeStatus(rec.Status)

	switch action {
	case ActionApprove, ActionReject:
		if !actor.IsAdmin() {
			return rec, ErrPermissionDenied
		}
	case ActionStart, ActionSubmit, ActionReopen:
		if actor.EmployeeID == "" || actor.EmployeeID != rec.EmployeeID {
			return rec, ErrPermissionDenied
		}
	default:
		return rec, &TransitionError{RecordID: rec.ID, Action: action, Status: status}
	}

	next := rec
	if payload.Actual != nil && (action == ActionStart || action == ActionSubmit) {
		if *payload.Actual < 0 {
			return rec, &ValidationError{Field: "actual", Reason: "must not be negative"}
		}
		next.Actual = *payload.Actual
	}

	switch action {
	case ActionStart:
		if status != StatusNotStarted {
			return rec, &TransitionError{RecordID: rec.ID, Action: action, Status: status}
		}
		if next.Actual <= 0 {
			return rec, &TransitionError{RecordID: rec.ID, Action: action, Status: status}
		}
		next.Status = StatusInProgress

	case ActionSubmit:
		if status != StatusNotStarted && status != StatusInProgress {
			return rec, &TransitionError{RecordID: rec.ID, Action: action, Status: status}
		}
		// A zero actual blocks submission even when a report is attached.
		if next.Actual <= 0 {
			return rec, &TransitionError{RecordID: rec.ID, Action: action, Status: status}
		}
		if payload.Report != "" {
			next.SubmittedReport = payload.Report
		}
		if strings.TrimSpace(next.SubmittedReport) == "" {
			return rec, &ValidationError{Field: "submittedReport", Reason: "report is required to submit"}
		}
		next.Status = StatusAwaitingApproval

	case ActionApprove:
		if status != StatusAwaitingApproval {
			return rec, &TransitionError{RecordID: rec.ID, Action: action, Status: status}
		}
		next.Status = StatusApproved
		next.ApprovalComment = payload.Comment

	case ActionReject:
		if status != StatusAwaitingApproval {
			return rec, &TransitionError{RecordID: rec.ID, Action: action, Status: status}
		}
		if strings.TrimSpace(payload.Comment) == "" {
			return rec, &ValidationError{Field: "comment", Reason: "rejection requires a comment"}
		}
		next.Status = StatusRejected
		next.ApprovalComment = payload.Comment

	case ActionReopen:
		if status != StatusRejected {
			return rec, &TransitionError{RecordID: rec.ID, Action: action, Status: status}
		}
		next.Status = StatusInProgress
	}

	comment := strings.TrimSpace(payload.Comment)
	if comment == "" {
		comment = defaultComment(action)
	}
	entry := HistoryEntry{
		Status:    next.Status,
		ChangedAt: now,
		ChangedBy: actor.UserID,
		Comment:   comment,
	}

	history := make([]HistoryEntry, len(rec.StatusHistory), len(rec.StatusHistory)+1)
	copy(history, rec.StatusHistory)
	next.StatusHistory = append(history, entry)
	next.LastStatusChange = now
	next.LastStatusChangedBy = actor.UserID
	next.UpdatedAt = now

	return next, nil
}
