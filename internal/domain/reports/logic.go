package reports

import (
	"fmt"

	"kpihub/internal/domain/kpi"
)

// ReviewItem pairs a record with the definition it was assigned from.
type ReviewItem struct {
	Def kpi.Definition
	Rec kpi.Record
}

type ReviewLine struct {
	RecordID   string  `json:"recordId"`
	KpiID      string  `json:"kpiId"`
	KpiName    string  `json:"kpiName"`
	Weight     float64 `json:"weight"`
	Target     float64 `json:"target"`
	Actual     float64 `json:"actual"`
	Status     string  `json:"status"`
	Completion int     `json:"completion"`
	Amount     float64 `json:"amount"`
}

type ReviewSummary struct {
	EmployeeID    string       `json:"employeeId"`
	Period        string       `json:"period"`
	Lines         []ReviewLine `json:"lines"`
	AvgCompletion float64      `json:"avgCompletion"`
	Grade         string       `json:"grade"`
	TotalReward   float64      `json:"totalReward"`
	TotalPenalty  float64      `json:"totalPenalty"`
	NetAmount     float64      `json:"netAmount"`
	ApprovedCount int          `json:"approvedCount"`
	TotalCount    int          `json:"totalCount"`
	Warnings      []string     `json:"warnings,omitempty"`
}

// BuildReview folds an employee's records for one period into a review
// table. Only approved records carry money and count toward the graded
// completion average; pending and rejected work is listed but does not pull
// the grade down. The average is weight-adjusted when the approved
// definitions carry weights, with an advisory warning when the weights
// across all assigned KPIs do not sum to 100.
func BuildReview(employeeID, period string, items []ReviewItem) ReviewSummary {
	summary := ReviewSummary{EmployeeID: employeeID, Period: period, TotalCount: len(items)}

	var allWeightSum float64
	var approvedWeightSum, weightedCompletion, plainCompletion float64
	for _, item := range items {
		completion := kpi.CompletionPercentage(item.Rec)
		line := ReviewLine{
			RecordID:   item.Rec.ID,
			KpiID:      item.Def.ID,
			KpiName:    item.Def.Name,
			Weight:     item.Def.Weight,
			Target:     item.Rec.Target,
			Actual:     item.Rec.Actual,
			Status:     kpi.NormalizeStatus(item.Rec.Status),
			Completion: completion,
		}

		if line.Status == kpi.StatusApproved {
			summary.ApprovedCount++
			amount := kpi.Evaluate(item.Def, item.Rec)
			line.Amount = amount
			if amount >= 0 {
				summary.TotalReward += amount
			} else {
				summary.TotalPenalty += -amount
			}

			approvedWeightSum += item.Def.Weight
			weightedCompletion += item.Def.Weight * float64(completion)
			plainCompletion += float64(completion)
		}

		allWeightSum += item.Def.Weight
		summary.Lines = append(summary.Lines, line)
	}

	if summary.ApprovedCount > 0 {
		if approvedWeightSum > 0 {
			summary.AvgCompletion = weightedCompletion / approvedWeightSum
		} else {
			summary.AvgCompletion = plainCompletion / float64(summary.ApprovedCount)
		}
	}
	summary.Grade = kpi.Grade(summary.AvgCompletion)
	summary.NetAmount = summary.TotalReward - summary.TotalPenalty

	if allWeightSum > 0 && allWeightSum != 100 {
		summary.Warnings = append(summary.Warnings,
			fmt.Sprintf("KPI weights sum to %.0f, expected 100", allWeightSum))
	}

	return summary
}

func AdminDashboard(pendingApprovals, overdue, activeKpis, employees int) map[string]any {
	return map[string]any{
		"pendingApprovals": pendingApprovals,
		"overdueRecords":   overdue,
		"activeKpis":       activeKpis,
		"employees":        employees,
	}
}

func EmployeeDashboard(assigned, approved int, netAmount float64) map[string]any {
	return map[string]any{
		"assignedKpis": assigned,
		"approvedKpis": approved,
		"netAmount":    netAmount,
	}
}
