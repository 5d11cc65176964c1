package reports

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"kpihub/internal/domain/kpi"
)

type Store struct {
	DB *pgxpool.Pool
}

func NewStore(db *pgxpool.Pool) *Store {
	return &Store{DB: db}
}

func (s *Store) EmployeeIDByUserID(ctx context.Context, tenantID, userID string) (string, error) {
	var id string
	if err := s.DB.QueryRow(ctx, `
    SELECT id FROM employees WHERE tenant_id = $1 AND user_id = $2
  `, tenantID, userID).Scan(&id); err != nil {
		return "", err
	}
	return id, nil
}

// ReviewItems loads an employee's records for one period joined with their
// definitions, ordered the way the review table is displayed.
func (s *Store) ReviewItems(ctx context.Context, tenantID, employeeID, period string) ([]ReviewItem, error) {
	rows, err := s.DB.Query(ctx, `
    SELECT k.id, k.name, k.weight, k.reward, k.penalty, k.max_reward,
           r.id, r.target, r.actual, r.status
    FROM kpi_records r
    JOIN kpis k ON r.kpi_id = k.id
    WHERE r.tenant_id = $1 AND r.employee_id = $2 AND r.period = $3
    ORDER BY k.name
  `, tenantID, employeeID, period)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []ReviewItem
	for rows.Next() {
		var item ReviewItem
		if err := rows.Scan(&item.Def.ID, &item.Def.Name, &item.Def.Weight, &item.Def.Reward,
			&item.Def.Penalty, &item.Def.MaxReward,
			&item.Rec.ID, &item.Rec.Target, &item.Rec.Actual, &item.Rec.Status); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

func (s *Store) PendingApprovals(ctx context.Context, tenantID string) (int, error) {
	var count int
	err := s.DB.QueryRow(ctx, `
    SELECT COUNT(1) FROM kpi_records
    WHERE tenant_id = $1 AND status IN ($2,$3)
  `, tenantID, kpi.StatusAwaitingApproval, "submitted").Scan(&count)
	return count, err
}

func (s *Store) OverdueCount(ctx context.Context, tenantID string) (int, error) {
	var count int
	err := s.DB.QueryRow(ctx, `
    SELECT COUNT(1) FROM kpi_records
    WHERE tenant_id = $1 AND end_date < now() AND status NOT IN ($2,$3)
  `, tenantID, kpi.StatusApproved, "completed").Scan(&count)
	return count, err
}

func (s *Store) ActiveKpiCount(ctx context.Context, tenantID string) (int, error) {
	var count int
	err := s.DB.QueryRow(ctx, `
    SELECT COUNT(1) FROM kpis WHERE tenant_id = $1 AND is_active
  `, tenantID).Scan(&count)
	return count, err
}

func (s *Store) EmployeeCount(ctx context.Context, tenantID string) (int, error) {
	var count int
	err := s.DB.QueryRow(ctx, `
    SELECT COUNT(1) FROM employees WHERE tenant_id = $1 AND status = 'active'
  `, tenantID).Scan(&count)
	return count, err
}

func (s *Store) EmployeeRecordCounts(ctx context.Context, tenantID, employeeID string) (assigned, approved int, err error) {
	err = s.DB.QueryRow(ctx, `
    SELECT COUNT(1),
           COUNT(1) FILTER (WHERE status IN ($3,$4))
    FROM kpi_records
    WHERE tenant_id = $1 AND employee_id = $2
  `, tenantID, employeeID, kpi.StatusApproved, "completed").Scan(&assigned, &approved)
	return assigned, approved, err
}

func (s *Store) ListJobRuns(ctx context.Context, tenantID, jobType string, limit, offset int) ([]map[string]any, error) {
	query := `
    SELECT id, job_type, status, COALESCE(detail,''), started_at, finished_at
    FROM job_runs
    WHERE tenant_id = $1
  `
	args := []any{tenantID}
	if jobType != "" {
		query += " AND job_type = $2"
		args = append(args, jobType)
	}
	query += " ORDER BY started_at DESC"
	args = append(args, limit, offset)
	if jobType != "" {
		query += " LIMIT $3 OFFSET $4"
	} else {
		query += " LIMIT $2 OFFSET $3"
	}

	rows, err := s.DB.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []map[string]any
	for rows.Next() {
		var id, jtype, status, detail string
		var startedAt, finishedAt any
		if err := rows.Scan(&id, &jtype, &status, &detail, &startedAt, &finishedAt); err != nil {
			return nil, err
		}
		out = append(out, map[string]any{
			"id":         id,
			"jobType":    jtype,
			"status":     status,
			"detail":     detail,
			"startedAt":  startedAt,
			"finishedAt": finishedAt,
		})
	}
	return out, rows.Err()
}
