package kpi

import (
	"testing"
	"time"
)

func TestCompletionPercentage(t *testing.T) {
	tests := []struct {
		name   string
		target float64
		actual float64
		want   int
	}{
		{"occurrence with activity", 0, 5, 100},
		{"quarter done", 200, 50, 25},
		{"nothing at all", 0, 0, 0},
		{"overshoot", 10, 15, 150},
		{"rounding up", 3, 2, 67},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CompletionPercentage(Record{Target: tt.target, Actual: tt.actual})
			if got != tt.want {
				t.Errorf("CompletionPercentage() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestIsOverdue(t *testing.T) {
	now := time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)
	past := now.AddDate(0, 0, -3)
	future := now.AddDate(0, 0, 3)

	tests := []struct {
		name   string
		rec    Record
		want   bool
	}{
		{"past deadline, in progress", Record{EndDate: past, Status: StatusInProgress}, true},
		{"past deadline, awaiting approval", Record{EndDate: past, Status: StatusAwaitingApproval}, true},
		{"past deadline, approved", Record{EndDate: past, Status: StatusApproved}, false},
		{"past deadline, legacy completed", Record{EndDate: past, Status: "completed"}, false},
		{"future deadline", Record{EndDate: future, Status: StatusNotStarted}, false},
		{"no deadline", Record{Status: StatusNotStarted}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsOverdue(tt.rec, now); got != tt.want {
				t.Errorf("IsOverdue() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestProgressClamps(t *testing.T) {
	if got := Progress(Record{Target: 10, Actual: 50}); got != 200 {
		t.Errorf("Progress() = %d, want 200", got)
	}
	if got := Progress(Record{Target: 10, Actual: 5}); got != 50 {
		t.Errorf("Progress() = %d, want 50", got)
	}
}
