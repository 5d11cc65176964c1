package notifications

import "fmt"

// Message is a fully rendered notification ready to persist and mail.
type Message struct {
	Kind        string
	Category    string
	Title       string
	Body        string
	ActionURL   string
	IsImportant bool
}

func KpiAssigned(kpiName, period, recordID string) Message {
	return Message{
		Kind:      KindKpiAssigned,
		Category:  CategoryAssignment,
		Title:     "New KPI assigned",
		Body:      fmt.Sprintf("You have been assigned the KPI %q for %s.", kpiName, period),
		ActionURL: "/kpi/records/" + recordID,
	}
}

func ReportSubmitted(kpiName, employeeName, recordID string) Message {
	return Message{
		Kind:      KindReportSubmitted,
		Category:  CategoryApproval,
		Title:     "KPI report awaiting approval",
		Body:      fmt.Sprintf("%s submitted a report for %q.", employeeName, kpiName),
		ActionURL: "/kpi/records/" + recordID,
	}
}

func ReportApproved(kpiName, recordID string) Message {
	return Message{
		Kind:      KindReportApproved,
		Category:  CategoryApproval,
		Title:     "KPI report approved",
		Body:      fmt.Sprintf("Your report for %q was approved.", kpiName),
		ActionURL: "/kpi/records/" + recordID,
	}
}

func ReportRejected(kpiName, comment, recordID string) Message {
	body := fmt.Sprintf("Your report for %q was rejected.", kpiName)
	if comment != "" {
		body += " Reason: " + comment
	}
	return Message{
		Kind:        KindReportRejected,
		Category:    CategoryApproval,
		Title:       "KPI report rejected",
		Body:        body,
		ActionURL:   "/kpi/records/" + recordID,
		IsImportant: true,
	}
}

func KpiOverdue(kpiName, period, recordID string) Message {
	return Message{
		Kind:        KindKpiOverdue,
		Category:    CategoryDeadline,
		Title:       "KPI past its deadline",
		Body:        fmt.Sprintf("The KPI %q for %s passed its end date without approval.", kpiName, period),
		ActionURL:   "/kpi/records/" + recordID,
		IsImportant: true,
	}
}
