package reports

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/jung-kurt/gofpdf"
)

type Service struct {
	store     *Store
	reportDir string
}

func NewService(store *Store, reportDir string) *Service {
	if reportDir == "" {
		reportDir = "storage/reports"
	}
	return &Service{store: store, reportDir: reportDir}
}

func (s *Service) EmployeeIDByUserID(ctx context.Context, tenantID, userID string) (string, error) {
	return s.store.EmployeeIDByUserID(ctx, tenantID, userID)
}

func (s *Service) EmployeeReview(ctx context.Context, tenantID, employeeID, period string) (ReviewSummary, error) {
	items, err := s.store.ReviewItems(ctx, tenantID, employeeID, period)
	if err != nil {
		return ReviewSummary{}, err
	}
	return BuildReview(employeeID, period, items), nil
}

func (s *Service) AdminDashboard(ctx context.Context, tenantID string) (map[string]any, error) {
	pending, err := s.store.PendingApprovals(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	overdue, err := s.store.OverdueCount(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	active, err := s.store.ActiveKpiCount(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	employees, err := s.store.EmployeeCount(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	return AdminDashboard(pending, overdue, active, employees), nil
}

func (s *Service) EmployeeDashboard(ctx context.Context, tenantID, employeeID, period string) (map[string]any, error) {
	assigned, approved, err := s.store.EmployeeRecordCounts(ctx, tenantID, employeeID)
	if err != nil {
		return nil, err
	}
	review, err := s.EmployeeReview(ctx, tenantID, employeeID, period)
	if err != nil {
		return nil, err
	}
	return EmployeeDashboard(assigned, approved, review.NetAmount), nil
}

func (s *Service) JobRuns(ctx context.Context, tenantID, jobType string, limit, offset int) ([]map[string]any, error) {
	return s.store.ListJobRuns(ctx, tenantID, jobType, limit, offset)
}

// GenerateReviewPDF renders an employee's period review to disk and returns
// the file path.
func (s *Service) GenerateReviewPDF(ctx context.Context, tenantID, employeeID, period string) (string, error) {
	var firstName, lastName string
	if err := s.store.DB.QueryRow(ctx, `
    SELECT first_name, last_name FROM employees WHERE tenant_id = $1 AND id = $2
  `, tenantID, employeeID).Scan(&firstName, &lastName); err != nil {
		return "", err
	}

	review, err := s.EmployeeReview(ctx, tenantID, employeeID, period)
	if err != nil {
		return "", err
	}

	if err := os.MkdirAll(s.reportDir, 0o755); err != nil {
		return "", err
	}
	filePath := filepath.Join(s.reportDir, fmt.Sprintf("review-%s-%s.pdf", employeeID, period))

	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.AddPage()
	pdf.SetFont("Helvetica", "B", 16)
	pdf.Cell(40, 10, "KPI Review")
	pdf.Ln(12)
	pdf.SetFont("Helvetica", "", 12)
	pdf.Cell(0, 8, fmt.Sprintf("Employee: %s %s", firstName, lastName))
	pdf.Ln(7)
	pdf.Cell(0, 8, fmt.Sprintf("Period: %s", period))
	pdf.Ln(7)
	pdf.Cell(0, 8, fmt.Sprintf("Generated: %s", time.Now().Format("2006-01-02")))
	pdf.Ln(10)

	pdf.SetFont("Helvetica", "B", 11)
	pdf.CellFormat(70, 8, "KPI", "1", 0, "", false, 0, "")
	pdf.CellFormat(25, 8, "Target", "1", 0, "R", false, 0, "")
	pdf.CellFormat(25, 8, "Actual", "1", 0, "R", false, 0, "")
	pdf.CellFormat(20, 8, "Done %", "1", 0, "R", false, 0, "")
	pdf.CellFormat(30, 8, "Amount", "1", 1, "R", false, 0, "")

	pdf.SetFont("Helvetica", "", 11)
	for _, line := range review.Lines {
		pdf.CellFormat(70, 8, line.KpiName, "1", 0, "", false, 0, "")
		pdf.CellFormat(25, 8, fmt.Sprintf("%.1f", line.Target), "1", 0, "R", false, 0, "")
		pdf.CellFormat(25, 8, fmt.Sprintf("%.1f", line.Actual), "1", 0, "R", false, 0, "")
		pdf.CellFormat(20, 8, fmt.Sprintf("%d", line.Completion), "1", 0, "R", false, 0, "")
		pdf.CellFormat(30, 8, fmt.Sprintf("%.0f", line.Amount), "1", 1, "R", false, 0, "")
	}

	pdf.Ln(6)
	pdf.SetFont("Helvetica", "B", 12)
	pdf.Cell(0, 8, fmt.Sprintf("Average completion: %.1f%%   Grade: %s", review.AvgCompletion, review.Grade))
	pdf.Ln(7)
	pdf.Cell(0, 8, fmt.Sprintf("Reward: %.0f   Penalty: %.0f   Net: %.0f",
		review.TotalReward, review.TotalPenalty, review.NetAmount))
	for _, warning := range review.Warnings {
		pdf.Ln(7)
		pdf.SetFont("Helvetica", "I", 10)
		pdf.Cell(0, 8, "Note: "+warning)
	}

	if err := pdf.OutputFileAndClose(filePath); err != nil {
		return "", err
	}
	return filePath, nil
}
