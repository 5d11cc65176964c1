package notifications

// Kind is the closed set of notification types. Create rejects anything
// else so dashboards can switch over the type exhaustively.
const (
	KindKpiAssigned     = "kpi_assigned"
	KindReportSubmitted = "report_submitted"
	KindReportApproved  = "report_approved"
	KindReportRejected  = "report_rejected"
	KindKpiOverdue      = "kpi_overdue"
)

func ValidKind(kind string) bool {
	switch kind {
	case KindKpiAssigned, KindReportSubmitted, KindReportApproved, KindReportRejected, KindKpiOverdue:
		return true
	}
	return false
}

const (
	CategoryAssignment = "assignment"
	CategoryApproval   = "approval"
	CategoryDeadline   = "deadline"
)
