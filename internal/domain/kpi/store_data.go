package kpi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
)

// casStatuses returns the stored spellings a compare-and-swap must accept
// for a canonical status, covering records imported with legacy aliases.
func casStatuses(status string) []string {
	switch status {
	case StatusAwaitingApproval:
		return []string{StatusAwaitingApproval, statusAliasSubmitted}
	case StatusApproved:
		return []string{StatusApproved, statusAliasCompleted}
	default:
		return []string{status}
	}
}

func (s *Store) CreateDefinition(ctx context.Context, tenantID string, def Definition) (string, error) {
	var id string
	if err := s.DB.QueryRow(ctx, `
    INSERT INTO kpis (tenant_id, department_id, name, description, unit, target, weight,
      reward, penalty, reward_threshold, penalty_threshold, reward_type, penalty_type,
      max_reward, frequency, is_active)
    VALUES ($1,NULLIF($2,''),$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)
    RETURNING id
  `, tenantID, def.DepartmentID, def.Name, def.Description, def.Unit, def.Target, def.Weight,
		def.Reward, def.Penalty, def.RewardThreshold, def.PenaltyThreshold, def.RewardType, def.PenaltyType,
		def.MaxReward, def.Frequency, def.IsActive).Scan(&id); err != nil {
		return "", err
	}
	return id, nil
}

func (s *Store) UpdateDefinition(ctx context.Context, tenantID string, def Definition) error {
	tag, err := s.DB.Exec(ctx, `
    UPDATE kpis
    SET department_id = NULLIF($3,''), name = $4, description = $5, unit = $6, target = $7,
      weight = $8, reward = $9, penalty = $10, reward_threshold = $11, penalty_threshold = $12,
      reward_type = $13, penalty_type = $14, max_reward = $15, frequency = $16, is_active = $17,
      updated_at = now()
    WHERE tenant_id = $1 AND id = $2
  `, tenantID, def.ID, def.DepartmentID, def.Name, def.Description, def.Unit, def.Target,
		def.Weight, def.Reward, def.Penalty, def.RewardThreshold, def.PenaltyThreshold,
		def.RewardType, def.PenaltyType, def.MaxReward, def.Frequency, def.IsActive)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Store) DeactivateDefinition(ctx context.Context, tenantID, defID string) error {
	tag, err := s.DB.Exec(ctx, `
    UPDATE kpis SET is_active = false, updated_at = now()
    WHERE tenant_id = $1 AND id = $2
  `, tenantID, defID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteDefinition removes a definition together with its records; the
// status history cascades from the records. Deactivation is the gentler
// path, but admins may purge a definition outright.
func (s *Store) DeleteDefinition(ctx context.Context, tenantID, defID string) error {
	tx, err := s.BeginTx(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `
    DELETE FROM kpi_records WHERE tenant_id = $1 AND kpi_id = $2
  `, tenantID, defID); err != nil {
		return err
	}
	tag, err := tx.Exec(ctx, `
    DELETE FROM kpis WHERE tenant_id = $1 AND id = $2
  `, tenantID, defID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return tx.Commit(ctx)
}

const definitionColumns = `id, COALESCE(department_id::text,''), name, description, unit, target, weight,
  reward, penalty, reward_threshold, penalty_threshold, reward_type, penalty_type,
  max_reward, frequency, is_active, created_at, updated_at`

func scanDefinition(row pgx.Row) (Definition, error) {
	var def Definition
	err := row.Scan(&def.ID, &def.DepartmentID, &def.Name, &def.Description, &def.Unit,
		&def.Target, &def.Weight, &def.Reward, &def.Penalty, &def.RewardThreshold,
		&def.PenaltyThreshold, &def.RewardType, &def.PenaltyType, &def.MaxReward,
		&def.Frequency, &def.IsActive, &def.CreatedAt, &def.UpdatedAt)
	return def, err
}

func (s *Store) GetDefinition(ctx context.Context, tenantID, defID string) (Definition, error) {
	def, err := scanDefinition(s.DB.QueryRow(ctx, `
    SELECT `+definitionColumns+`
    FROM kpis
    WHERE tenant_id = $1 AND id = $2
  `, tenantID, defID))
	if errors.Is(err, pgx.ErrNoRows) {
		return Definition{}, ErrNotFound
	}
	return def, err
}

func (s *Store) ListDefinitions(ctx context.Context, tenantID, departmentID string, activeOnly bool) ([]Definition, error) {
	query := `
    SELECT ` + definitionColumns + `
    FROM kpis
    WHERE tenant_id = $1
  `
	args := []any{tenantID}
	if departmentID != "" {
		query += " AND department_id = $2"
		args = append(args, departmentID)
	}
	if activeOnly {
		query += " AND is_active"
	}
	query += " ORDER BY name"

	rows, err := s.DB.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var defs []Definition
	for rows.Next() {
		def, err := scanDefinition(rows)
		if err != nil {
			return nil, err
		}
		defs = append(defs, def)
	}
	return defs, rows.Err()
}

func (s *Store) CreateRecord(ctx context.Context, tenantID string, rec Record) (string, error) {
	tx, err := s.BeginTx(ctx)
	if err != nil {
		return "", err
	}
	defer tx.Rollback(ctx)

	var id string
	if err := tx.QueryRow(ctx, `
    INSERT INTO kpi_records (tenant_id, employee_id, kpi_id, period, target, actual, status,
      start_date, end_date, last_status_change, last_status_changed_by)
    VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,NULLIF($11,''))
    RETURNING id
  `, tenantID, rec.EmployeeID, rec.KpiID, rec.Period, rec.Target, rec.Actual, rec.Status,
		rec.StartDate, rec.EndDate, rec.LastStatusChange, rec.LastStatusChangedBy).Scan(&id); err != nil {
		return "", err
	}

	for _, entry := range rec.StatusHistory {
		if _, err := tx.Exec(ctx, `
      INSERT INTO kpi_status_history (tenant_id, record_id, status, changed_at, changed_by, comment)
      VALUES ($1,$2,$3,$4,NULLIF($5,''),$6)
    `, tenantID, id, entry.Status, entry.ChangedAt, entry.ChangedBy, entry.Comment); err != nil {
			return "", err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return "", err
	}
	return id, nil
}

const recordColumns = `id, employee_id, kpi_id, period, target, actual, status,
  COALESCE(submitted_report,''), COALESCE(approval_comment,''),
  last_status_change, COALESCE(last_status_changed_by::text,''),
  start_date, end_date, created_at, updated_at`

func scanRecord(row pgx.Row) (Record, error) {
	var rec Record
	err := row.Scan(&rec.ID, &rec.EmployeeID, &rec.KpiID, &rec.Period, &rec.Target, &rec.Actual,
		&rec.Status, &rec.SubmittedReport, &rec.ApprovalComment, &rec.LastStatusChange,
		&rec.LastStatusChangedBy, &rec.StartDate, &rec.EndDate, &rec.CreatedAt, &rec.UpdatedAt)
	return rec, err
}

func (s *Store) GetRecord(ctx context.Context, tenantID, recordID string) (Record, error) {
	rec, err := scanRecord(s.DB.QueryRow(ctx, `
    SELECT `+recordColumns+`
    FROM kpi_records
    WHERE tenant_id = $1 AND id = $2
  `, tenantID, recordID))
	if errors.Is(err, pgx.ErrNoRows) {
		return Record{}, ErrNotFound
	}
	if err != nil {
		return Record{}, err
	}

	history, err := s.ListHistory(ctx, tenantID, recordID)
	if err != nil {
		return Record{}, err
	}
	rec.StatusHistory = history
	return rec, nil
}

func (s *Store) ListRecords(ctx context.Context, tenantID string, filter ListFilter) (RecordListResult, error) {
	where := " WHERE tenant_id = $1"
	args := []any{tenantID}
	if filter.EmployeeID != "" {
		args = append(args, filter.EmployeeID)
		where += fmt.Sprintf(" AND employee_id = $%d", len(args))
	}
	if filter.KpiID != "" {
		args = append(args, filter.KpiID)
		where += fmt.Sprintf(" AND kpi_id = $%d", len(args))
	}
	if filter.Period != "" {
		args = append(args, filter.Period)
		where += fmt.Sprintf(" AND period = $%d", len(args))
	}
	if filter.Status != "" {
		args = append(args, casStatuses(NormalizeStatus(filter.Status)))
		where += fmt.Sprintf(" AND status = ANY($%d)", len(args))
	}

	var total int
	if err := s.DB.QueryRow(ctx, "SELECT COUNT(1) FROM kpi_records"+where, args...).Scan(&total); err != nil {
		return RecordListResult{}, err
	}

	query := "SELECT " + recordColumns + " FROM kpi_records" + where + " ORDER BY created_at DESC"
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
		args = append(args, filter.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	rows, err := s.DB.Query(ctx, query, args...)
	if err != nil {
		return RecordListResult{}, err
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return RecordListResult{}, err
		}
		records = append(records, rec)
	}
	return RecordListResult{Records: records, Total: total}, rows.Err()
}

func (s *Store) ListHistory(ctx context.Context, tenantID, recordID string) ([]HistoryEntry, error) {
	rows, err := s.DB.Query(ctx, `
    SELECT status, changed_at, COALESCE(changed_by::text,''), comment
    FROM kpi_status_history
    WHERE tenant_id = $1 AND record_id = $2
    ORDER BY changed_at, id
  `, tenantID, recordID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var history []HistoryEntry
	for rows.Next() {
		var entry HistoryEntry
		if err := rows.Scan(&entry.Status, &entry.ChangedAt, &entry.ChangedBy, &entry.Comment); err != nil {
			return nil, err
		}
		history = append(history, entry)
	}
	return history, rows.Err()
}

func (s *Store) SaveTransition(ctx context.Context, tenantID string, rec Record, expectedStatus string) error {
	tx, err := s.BeginTx(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `
    UPDATE kpi_records
    SET status = $4, actual = $5, submitted_report = NULLIF($6,''), approval_comment = NULLIF($7,''),
      last_status_change = $8, last_status_changed_by = NULLIF($9,''), updated_at = $8
    WHERE tenant_id = $1 AND id = $2 AND status = ANY($3)
  `, tenantID, rec.ID, casStatuses(expectedStatus), rec.Status, rec.Actual,
		rec.SubmittedReport, rec.ApprovalComment, rec.LastStatusChange, rec.LastStatusChangedBy)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrConflict
	}

	entry := rec.StatusHistory[len(rec.StatusHistory)-1]
	if _, err := tx.Exec(ctx, `
    INSERT INTO kpi_status_history (tenant_id, record_id, status, changed_at, changed_by, comment)
    VALUES ($1,$2,$3,$4,NULLIF($5,''),$6)
  `, tenantID, rec.ID, entry.Status, entry.ChangedAt, entry.ChangedBy, entry.Comment); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

func (s *Store) UpdateActual(ctx context.Context, tenantID, recordID, expectedStatus string, actual float64, report string, now time.Time) error {
	tag, err := s.DB.Exec(ctx, `
    UPDATE kpi_records
    SET actual = $4, submitted_report = COALESCE(NULLIF($5,''), submitted_report), updated_at = $6
    WHERE tenant_id = $1 AND id = $2 AND status = ANY($3)
  `, tenantID, recordID, casStatuses(expectedStatus), actual, report, now)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrConflict
	}
	return nil
}

func (s *Store) CreateProgram(ctx context.Context, tenantID string, program Program) (string, error) {
	criteria, err := json.Marshal(program.Criteria)
	if err != nil {
		return "", err
	}
	var id string
	if err := s.DB.QueryRow(ctx, `
    INSERT INTO reward_programs (tenant_id, name, max_reward, criteria, is_active)
    VALUES ($1,$2,$3,$4,$5)
    RETURNING id
  `, tenantID, program.Name, program.MaxReward, criteria, program.IsActive).Scan(&id); err != nil {
		return "", err
	}
	return id, nil
}

func scanProgram(row pgx.Row) (Program, error) {
	var p Program
	var criteria []byte
	if err := row.Scan(&p.ID, &p.Name, &p.MaxReward, &criteria, &p.IsActive, &p.CreatedAt); err != nil {
		return Program{}, err
	}
	if len(criteria) > 0 {
		if err := json.Unmarshal(criteria, &p.Criteria); err != nil {
			return Program{}, err
		}
	}
	return p, nil
}

func (s *Store) GetProgram(ctx context.Context, tenantID, programID string) (Program, error) {
	p, err := scanProgram(s.DB.QueryRow(ctx, `
    SELECT id, name, max_reward, criteria, is_active, created_at
    FROM reward_programs
    WHERE tenant_id = $1 AND id = $2
  `, tenantID, programID))
	if errors.Is(err, pgx.ErrNoRows) {
		return Program{}, ErrNotFound
	}
	return p, err
}

func (s *Store) ListPrograms(ctx context.Context, tenantID string, activeOnly bool) ([]Program, error) {
	query := `
    SELECT id, name, max_reward, criteria, is_active, created_at
    FROM reward_programs
    WHERE tenant_id = $1
  `
	if activeOnly {
		query += " AND is_active"
	}
	query += " ORDER BY name"

	rows, err := s.DB.Query(ctx, query, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var programs []Program
	for rows.Next() {
		p, err := scanProgram(rows)
		if err != nil {
			return nil, err
		}
		programs = append(programs, p)
	}
	return programs, rows.Err()
}

func (s *Store) SetProgramActive(ctx context.Context, tenantID, programID string, active bool) error {
	tag, err := s.DB.Exec(ctx, `
    UPDATE reward_programs SET is_active = $3 WHERE tenant_id = $1 AND id = $2
  `, tenantID, programID, active)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Store) OverdueRecords(ctx context.Context, tenantID string, now time.Time) ([]Record, error) {
	rows, err := s.DB.Query(ctx, `
    SELECT `+recordColumns+`
    FROM kpi_records
    WHERE tenant_id = $1 AND end_date < $2
      AND status NOT IN ($3,$4)
      AND overdue_notified_at IS NULL
  `, tenantID, now, StatusApproved, statusAliasCompleted)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

func (s *Store) MarkOverdueNotified(ctx context.Context, tenantID, recordID string, now time.Time) error {
	_, err := s.DB.Exec(ctx, `
    UPDATE kpi_records SET overdue_notified_at = $3
    WHERE tenant_id = $1 AND id = $2 AND overdue_notified_at IS NULL
  `, tenantID, recordID, now)
	return err
}

func (s *Store) EmployeeUserID(ctx context.Context, tenantID, employeeID string) (string, error) {
	var userID string
	err := s.DB.QueryRow(ctx, `
    SELECT COALESCE(user_id::text,'')
    FROM employees
    WHERE tenant_id = $1 AND id = $2
  `, tenantID, employeeID).Scan(&userID)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", nil
	}
	return userID, err
}

func (s *Store) AdminUserIDs(ctx context.Context, tenantID string) ([]string, error) {
	rows, err := s.DB.Query(ctx, `
    SELECT u.id
    FROM users u
    JOIN roles r ON u.role_id = r.id
    WHERE u.tenant_id = $1 AND r.name = 'admin'
  `, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
