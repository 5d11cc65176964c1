package kpi

import (
	"context"
	"strings"
	"sync"
	"time"
)

type Service struct {
	Store StoreAPI
}

func NewService(store StoreAPI) *Service {
	return &Service{Store: store}
}

func validateDefinition(def Definition) error {
	if strings.TrimSpace(def.Name) == "" {
		return &ValidationError{Field: "name", Reason: "is required"}
	}
	if def.Target < 0 {
		return &ValidationError{Field: "target", Reason: "must not be negative"}
	}
	if def.Weight < 0 || def.Weight > 100 {
		return &ValidationError{Field: "weight", Reason: "must be between 0 and 100"}
	}
	if def.Reward < 0 {
		return &ValidationError{Field: "reward", Reason: "must not be negative"}
	}
	if def.Penalty < 0 {
		return &ValidationError{Field: "penalty", Reason: "must not be negative"}
	}
	if def.MaxReward < 0 {
		return &ValidationError{Field: "maxReward", Reason: "must not be negative"}
	}
	if def.Frequency != "" && !ValidFrequency(def.Frequency) {
		return &ValidationError{Field: "frequency", Reason: "must be monthly, quarterly or annually"}
	}
	return nil
}

func (s *Service) CreateDefinition(ctx context.Context, tenantID string, actor Actor, def Definition) (string, error) {
	if !actor.IsAdmin() {
		return "", ErrPermissionDenied
	}
	if err := validateDefinition(def); err != nil {
		return "", err
	}
	return s.Store.CreateDefinition(ctx, tenantID, def)
}

func (s *Service) UpdateDefinition(ctx context.Context, tenantID string, actor Actor, def Definition) error {
	if !actor.IsAdmin() {
		return ErrPermissionDenied
	}
	if err := validateDefinition(def); err != nil {
		return err
	}
	return s.Store.UpdateDefinition(ctx, tenantID, def)
}

func (s *Service) DeactivateDefinition(ctx context.Context, tenantID string, actor Actor, defID string) error {
	if !actor.IsAdmin() {
		return ErrPermissionDenied
	}
	return s.Store.DeactivateDefinition(ctx, tenantID, defID)
}

func (s *Service) DeleteDefinition(ctx context.Context, tenantID string, actor Actor, defID string) error {
	if !actor.IsAdmin() {
		return ErrPermissionDenied
	}
	return s.Store.DeleteDefinition(ctx, tenantID, defID)
}

func (s *Service) GetDefinition(ctx context.Context, tenantID, defID string) (Definition, error) {
	return s.Store.GetDefinition(ctx, tenantID, defID)
}

func (s *Service) ListDefinitions(ctx context.Context, tenantID, departmentID string, activeOnly bool) ([]Definition, error) {
	return s.Store.ListDefinitions(ctx, tenantID, departmentID, activeOnly)
}

// AssignRequest names the KPI and the assignment window for one employee.
type AssignRequest struct {
	KpiID      string
	EmployeeID string
	Period     string
	StartDate  time.Time
	EndDate    time.Time
}

// AssignResult carries what the transport layer needs to notify the
// assignee.
type AssignResult struct {
	RecordID       string
	KpiName        string
	EmployeeUserID string
}

func (s *Service) Assign(ctx context.Context, tenantID string, actor Actor, req AssignRequest, now time.Time) (AssignResult, error) {
	if !actor.IsAdmin() {
		return AssignResult{}, ErrPermissionDenied
	}
	if req.EmployeeID == "" {
		return AssignResult{}, &ValidationError{Field: "employeeId", Reason: "is required"}
	}
	if req.Period == "" {
		return AssignResult{}, &ValidationError{Field: "period", Reason: "is required"}
	}
	if !req.EndDate.IsZero() && req.EndDate.Before(req.StartDate) {
		return AssignResult{}, &ValidationError{Field: "endDate", Reason: "must not precede startDate"}
	}

	def, err := s.Store.GetDefinition(ctx, tenantID, req.KpiID)
	if err != nil {
		return AssignResult{}, err
	}
	if !def.IsActive {
		return AssignResult{}, &ValidationError{Field: "kpiId", Reason: "kpi is not active"}
	}

	rec := Record{
		EmployeeID: req.EmployeeID,
		KpiID:      def.ID,
		Period:     req.Period,
		Target:     def.Target,
		Status:     StatusNotStarted,
		StartDate:  req.StartDate,
		EndDate:    req.EndDate,
		StatusHistory: []HistoryEntry{
			{Status: StatusNotStarted, ChangedAt: now, ChangedBy: actor.UserID, Comment: "Assigned"},
		},
		LastStatusChange:    now,
		LastStatusChangedBy: actor.UserID,
	}

	id, err := s.Store.CreateRecord(ctx, tenantID, rec)
	if err != nil {
		return AssignResult{}, err
	}

	result := AssignResult{RecordID: id, KpiName: def.Name}
	if userID, err := s.Store.EmployeeUserID(ctx, tenantID, req.EmployeeID); err == nil {
		result.EmployeeUserID = userID
	}
	return result, nil
}

// AssignOutcome is one employee's result of a bulk assignment. Failures are
// per item; successful siblings are not rolled back.
type AssignOutcome struct {
	EmployeeID     string `json:"employeeId"`
	RecordID       string `json:"recordId,omitempty"`
	EmployeeUserID string `json:"-"`
	Err            error  `json:"-"`
}

func (s *Service) BulkAssign(ctx context.Context, tenantID string, actor Actor, kpiID, period string, employeeIDs []string, startDate, endDate time.Time, now time.Time) ([]AssignOutcome, string, error) {
	if !actor.IsAdmin() {
		return nil, "", ErrPermissionDenied
	}
	def, err := s.Store.GetDefinition(ctx, tenantID, kpiID)
	if err != nil {
		return nil, "", err
	}
	if !def.IsActive {
		return nil, "", &ValidationError{Field: "kpiId", Reason: "kpi is not active"}
	}

	outcomes := make([]AssignOutcome, len(employeeIDs))
	var wg sync.WaitGroup
	var mu sync.Mutex
	for i, employeeID := range employeeIDs {
		wg.Add(1)
		go func(i int, employeeID string) {
			defer wg.Done()
			outcome := AssignOutcome{EmployeeID: employeeID}
			if employeeID == "" {
				outcome.Err = &ValidationError{Field: "employeeId", Reason: "is required"}
			} else {
				rec := Record{
					EmployeeID: employeeID,
					KpiID:      def.ID,
					Period:     period,
					Target:     def.Target,
					Status:     StatusNotStarted,
					StartDate:  startDate,
					EndDate:    endDate,
					StatusHistory: []HistoryEntry{
						{Status: StatusNotStarted, ChangedAt: now, ChangedBy: actor.UserID, Comment: "Assigned"},
					},
					LastStatusChange:    now,
					LastStatusChangedBy: actor.UserID,
				}
				id, err := s.Store.CreateRecord(ctx, tenantID, rec)
				if err != nil {
					outcome.Err = err
				} else {
					outcome.RecordID = id
					if userID, err := s.Store.EmployeeUserID(ctx, tenantID, employeeID); err == nil {
						outcome.EmployeeUserID = userID
					}
				}
			}
			mu.Lock()
			outcomes[i] = outcome
			mu.Unlock()
		}(i, employeeID)
	}
	wg.Wait()

	return outcomes, def.Name, nil
}

// TransitionResult carries the updated record plus the user IDs the
// transport layer should notify for the action that happened.
type TransitionResult struct {
	Record         Record
	KpiName        string
	EmployeeUserID string
	AdminUserIDs   []string
}

func (s *Service) Transition(ctx context.Context, tenantID, recordID, action string, actor Actor, payload TransitionPayload, now time.Time) (TransitionResult, error) {
	rec, err := s.Store.GetRecord(ctx, tenantID, recordID)
	if err != nil {
		return TransitionResult{}, err
	}
	if !actor.IsAdmin() && actor.EmployeeID != rec.EmployeeID {
		return TransitionResult{}, ErrPermissionDenied
	}

	expected := NormalizeStatus(rec.Status)
	next, err := ApplyTransition(rec, action, actor, payload, now)
	if err != nil {
		return TransitionResult{}, err
	}

	if err := s.Store.SaveTransition(ctx, tenantID, next, expected); err != nil {
		return TransitionResult{}, err
	}

	result := TransitionResult{Record: next}
	if def, err := s.Store.GetDefinition(ctx, tenantID, rec.KpiID); err == nil {
		result.KpiName = def.Name
	}
	switch action {
	case ActionSubmit:
		if ids, err := s.Store.AdminUserIDs(ctx, tenantID); err == nil {
			result.AdminUserIDs = ids
		}
	case ActionApprove, ActionReject:
		if userID, err := s.Store.EmployeeUserID(ctx, tenantID, rec.EmployeeID); err == nil {
			result.EmployeeUserID = userID
		}
	}
	return result, nil
}

// UpdateProgress changes the actual value (and optionally the draft report)
// of an editable record. A first report of progress on a not_started record
// moves it to in_progress through the regular transition path.
func (s *Service) UpdateProgress(ctx context.Context, tenantID, recordID string, actor Actor, actual float64, report string, now time.Time) (Record, error) {
	if actual < 0 {
		return Record{}, &ValidationError{Field: "actual", Reason: "must not be negative"}
	}
	rec, err := s.Store.GetRecord(ctx, tenantID, recordID)
	if err != nil {
		return Record{}, err
	}
	if !actor.IsAdmin() && actor.EmployeeID != rec.EmployeeID {
		return Record{}, ErrPermissionDenied
	}

	status := NormalizeStatus(rec.Status)
	if !CanEdit(status) {
		return Record{}, &TransitionError{RecordID: rec.ID, Action: "update", Status: status}
	}

	if status == StatusNotStarted && actual > 0 {
		result, err := s.Transition(ctx, tenantID, recordID, ActionStart, actor,
			TransitionPayload{Actual: &actual, Report: report}, now)
		if err != nil {
			return Record{}, err
		}
		rec = result.Record
		if report != "" {
			rec.SubmittedReport = report
			if err := s.Store.UpdateActual(ctx, tenantID, recordID, StatusInProgress, actual, report, now); err != nil {
				return Record{}, err
			}
		}
		return rec, nil
	}

	if err := s.Store.UpdateActual(ctx, tenantID, recordID, status, actual, report, now); err != nil {
		return Record{}, err
	}
	rec.Actual = actual
	if report != "" {
		rec.SubmittedReport = report
	}
	rec.UpdatedAt = now
	return rec, nil
}

func (s *Service) GetRecord(ctx context.Context, tenantID, recordID string, actor Actor) (Record, error) {
	rec, err := s.Store.GetRecord(ctx, tenantID, recordID)
	if err != nil {
		return Record{}, err
	}
	if !actor.IsAdmin() && actor.EmployeeID != rec.EmployeeID {
		return Record{}, ErrPermissionDenied
	}
	return rec, nil
}

func (s *Service) ListRecords(ctx context.Context, tenantID string, actor Actor, filter ListFilter) (RecordListResult, error) {
	if !actor.IsAdmin() {
		filter.EmployeeID = actor.EmployeeID
	}
	return s.Store.ListRecords(ctx, tenantID, filter)
}

func (s *Service) ListHistory(ctx context.Context, tenantID, recordID string, actor Actor) ([]HistoryEntry, error) {
	if _, err := s.GetRecord(ctx, tenantID, recordID, actor); err != nil {
		return nil, err
	}
	return s.Store.ListHistory(ctx, tenantID, recordID)
}

func validateProgram(program Program) error {
	if strings.TrimSpace(program.Name) == "" {
		return &ValidationError{Field: "name", Reason: "is required"}
	}
	if program.MaxReward < 0 {
		return &ValidationError{Field: "maxReward", Reason: "must not be negative"}
	}
	for _, criterion := range program.Criteria {
		if criterion.Amount < 0 {
			return &ValidationError{Field: "criteria.amount", Reason: "must not be negative"}
		}
		for _, cond := range criterion.Conditions {
			switch cond.Operator {
			case OpGTE, OpGT, OpLTE, OpLT, OpEQ, OpNEQ, OpBetween, OpContains, OpNotContains:
			default:
				return &ValidationError{Field: "criteria.operator", Reason: "unknown operator"}
			}
			if cond.Metric == "" {
				return &ValidationError{Field: "criteria.metric", Reason: "is required"}
			}
			if cond.Operator == OpBetween && cond.SecondValue == "" {
				return &ValidationError{Field: "criteria.secondValue", Reason: "is required for between"}
			}
		}
	}
	return nil
}

func (s *Service) CreateProgram(ctx context.Context, tenantID string, actor Actor, program Program) (string, error) {
	if !actor.IsAdmin() {
		return "", ErrPermissionDenied
	}
	if err := validateProgram(program); err != nil {
		return "", err
	}
	return s.Store.CreateProgram(ctx, tenantID, program)
}

func (s *Service) GetProgram(ctx context.Context, tenantID, programID string) (Program, error) {
	return s.Store.GetProgram(ctx, tenantID, programID)
}

func (s *Service) ListPrograms(ctx context.Context, tenantID string, activeOnly bool) ([]Program, error) {
	return s.Store.ListPrograms(ctx, tenantID, activeOnly)
}

func (s *Service) SetProgramActive(ctx context.Context, tenantID string, actor Actor, programID string, active bool) error {
	if !actor.IsAdmin() {
		return ErrPermissionDenied
	}
	return s.Store.SetProgramActive(ctx, tenantID, programID, active)
}

// ProgramPayout is one active program's evaluation against a set of
// observations.
type ProgramPayout struct {
	ProgramID string  `json:"programId"`
	Name      string  `json:"name"`
	Amount    float64 `json:"amount"`
}

func (s *Service) EvaluatePrograms(ctx context.Context, tenantID string, observations map[string]string) ([]ProgramPayout, error) {
	programs, err := s.Store.ListPrograms(ctx, tenantID, true)
	if err != nil {
		return nil, err
	}
	payouts := make([]ProgramPayout, 0, len(programs))
	for _, program := range programs {
		payouts = append(payouts, ProgramPayout{
			ProgramID: program.ID,
			Name:      program.Name,
			Amount:    program.EvaluateProgram(observations),
		})
	}
	return payouts, nil
}
