package kpi

const (
	StatusNotStarted       = "not_started"
	StatusInProgress       = "in_progress"
	StatusAwaitingApproval = "awaiting_approval"
	StatusApproved         = "approved"
	StatusRejected         = "rejected"

	// Aliases still found in imported records.
	statusAliasSubmitted = "submitted"
	statusAliasCompleted = "completed"

	ActionStart   = "start"
	ActionSubmit  = "submit"
	ActionApprove = "approve"
	ActionReject  = "reject"
	ActionReopen  = "reopen"

	RewardTypeFixed      = "fixed"
	RewardTypePercentage = "percentage"

	PenaltyTypeFixed      = "fixed"
	PenaltyTypePercentage = "percentage"
	PenaltyTypeVariable   = "variable"

	FrequencyMonthly   = "monthly"
	FrequencyQuarterly = "quarterly"
	FrequencyAnnually  = "annually"

	OpGTE         = ">="
	OpGT          = ">"
	OpLTE         = "<="
	OpLT          = "<"
	OpEQ          = "=="
	OpNEQ         = "!="
	OpBetween     = "between"
	OpContains    = "contains"
	OpNotContains = "not_contains"
)

// NormalizeStatus maps legacy status aliases onto the canonical set.
func NormalizeStatus(status string) string {
	switch status {
	case statusAliasSubmitted:
		return StatusAwaitingApproval
	case statusAliasCompleted:
		return StatusApproved
	default:
		return status
	}
}

func ValidStatus(status string) bool {
	switch NormalizeStatus(status) {
	case StatusNotStarted, StatusInProgress, StatusAwaitingApproval, StatusApproved, StatusRejected:
		return true
	}
	return false
}

func ValidFrequency(frequency string) bool {
	switch frequency {
	case FrequencyMonthly, FrequencyQuarterly, FrequencyAnnually:
		return true
	}
	return false
}
