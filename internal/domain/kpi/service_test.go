package kpi

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"
)

// fakeStore is an in-memory StoreAPI used to exercise the service without a
// database.
type fakeStore struct {
	mu          sync.Mutex
	defs        map[string]Definition
	records     map[string]Record
	programs    map[string]Program
	nextID      int
	failFor     map[string]error // employee_id -> forced CreateRecord error
	saveErr     error
	transitions int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		defs:     map[string]Definition{},
		records:  map[string]Record{},
		programs: map[string]Program{},
		failFor:  map[string]error{},
	}
}

func (f *fakeStore) genID() string {
	f.nextID++
	return fmt.Sprintf("id-%d", f.nextID)
}

func (f *fakeStore) CreateDefinition(_ context.Context, _ string, def Definition) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	def.ID = f.genID()
	f.defs[def.ID] = def
	return def.ID, nil
}

func (f *fakeStore) UpdateDefinition(_ context.Context, _ string, def Definition) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.defs[def.ID]; !ok {
		return ErrNotFound
	}
	f.defs[def.ID] = def
	return nil
}

func (f *fakeStore) DeactivateDefinition(_ context.Context, _ string, defID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	def, ok := f.defs[defID]
	if !ok {
		return ErrNotFound
	}
	def.IsActive = false
	f.defs[defID] = def
	return nil
}

func (f *fakeStore) DeleteDefinition(_ context.Context, _ string, defID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.defs[defID]; !ok {
		return ErrNotFound
	}
	delete(f.defs, defID)
	for id, rec := range f.records {
		if rec.KpiID == defID {
			delete(f.records, id)
		}
	}
	return nil
}

func (f *fakeStore) GetDefinition(_ context.Context, _ string, defID string) (Definition, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	def, ok := f.defs[defID]
	if !ok {
		return Definition{}, ErrNotFound
	}
	return def, nil
}

func (f *fakeStore) ListDefinitions(_ context.Context, _, _ string, _ bool) ([]Definition, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []Definition
	for _, def := range f.defs {
		out = append(out, def)
	}
	return out, nil
}

func (f *fakeStore) CreateRecord(_ context.Context, _ string, rec Record) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err, ok := f.failFor[rec.EmployeeID]; ok {
		return "", err
	}
	rec.ID = f.genID()
	f.records[rec.ID] = rec
	return rec.ID, nil
}

func (f *fakeStore) GetRecord(_ context.Context, _ string, recordID string) (Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.records[recordID]
	if !ok {
		return Record{}, ErrNotFound
	}
	return rec, nil
}

func (f *fakeStore) ListRecords(_ context.Context, _ string, filter ListFilter) (RecordListResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []Record
	for _, rec := range f.records {
		if filter.EmployeeID != "" && rec.EmployeeID != filter.EmployeeID {
			continue
		}
		out = append(out, rec)
	}
	return RecordListResult{Records: out, Total: len(out)}, nil
}

func (f *fakeStore) ListHistory(_ context.Context, _ string, recordID string) ([]HistoryEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.records[recordID]
	if !ok {
		return nil, ErrNotFound
	}
	return rec.StatusHistory, nil
}

func (f *fakeStore) SaveTransition(_ context.Context, _ string, rec Record, expectedStatus string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.saveErr != nil {
		return f.saveErr
	}
	current, ok := f.records[rec.ID]
	if !ok {
		return ErrNotFound
	}
	if NormalizeStatus(current.Status) != expectedStatus {
		return ErrConflict
	}
	f.records[rec.ID] = rec
	f.transitions++
	return nil
}

func (f *fakeStore) UpdateActual(_ context.Context, _, recordID, expectedStatus string, actual float64, report string, now time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.records[recordID]
	if !ok {
		return ErrNotFound
	}
	if NormalizeStatus(rec.Status) != expectedStatus {
		return ErrConflict
	}
	rec.Actual = actual
	if report != "" {
		rec.SubmittedReport = report
	}
	rec.UpdatedAt = now
	f.records[recordID] = rec
	return nil
}

func (f *fakeStore) CreateProgram(_ context.Context, _ string, program Program) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	program.ID = f.genID()
	f.programs[program.ID] = program
	return program.ID, nil
}

func (f *fakeStore) GetProgram(_ context.Context, _ string, programID string) (Program, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.programs[programID]
	if !ok {
		return Program{}, ErrNotFound
	}
	return p, nil
}

func (f *fakeStore) ListPrograms(_ context.Context, _ string, activeOnly bool) ([]Program, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []Program
	for _, p := range f.programs {
		if activeOnly && !p.IsActive {
			continue
		}
		out = append(out, p)
	}
	return out, nil
}

func (f *fakeStore) SetProgramActive(_ context.Context, _ string, programID string, active bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.programs[programID]
	if !ok {
		return ErrNotFound
	}
	p.IsActive = active
	f.programs[programID] = p
	return nil
}

func (f *fakeStore) OverdueRecords(_ context.Context, _ string, now time.Time) ([]Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []Record
	for _, rec := range f.records {
		if IsOverdue(rec, now) {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (f *fakeStore) MarkOverdueNotified(_ context.Context, _, _ string, _ time.Time) error {
	return nil
}

func (f *fakeStore) EmployeeUserID(_ context.Context, _, employeeID string) (string, error) {
	return "user-for-" + employeeID, nil
}

func (f *fakeStore) AdminUserIDs(_ context.Context, _ string) ([]string, error) {
	return []string{"admin-1"}, nil
}

func seedDefinition(store *fakeStore) string {
	id, _ := store.CreateDefinition(context.Background(), "t1", Definition{
		Name: "Monthly sales", Target: 10, Reward: 500000, IsActive: true,
	})
	return id
}

func TestBulkAssignPartialFailure(t *testing.T) {
	store := newFakeStore()
	defID := seedDefinition(store)
	store.failFor["emp-2"] = errors.New("employee not found")

	svc := NewService(store)
	now := time.Now()
	outcomes, kpiName, err := svc.BulkAssign(context.Background(), "t1", adminActor, defID, "2026-08",
		[]string{"emp-1", "emp-2", "emp-3"}, now, now.AddDate(0, 1, 0), now)
	if err != nil {
		t.Fatalf("BulkAssign: %v", err)
	}
	if kpiName != "Monthly sales" {
		t.Errorf("kpiName = %q", kpiName)
	}
	if len(outcomes) != 3 {
		t.Fatalf("got %d outcomes, want 3", len(outcomes))
	}

	byEmployee := map[string]AssignOutcome{}
	for _, o := range outcomes {
		byEmployee[o.EmployeeID] = o
	}
	if byEmployee["emp-1"].Err != nil || byEmployee["emp-1"].RecordID == "" {
		t.Errorf("emp-1 should have succeeded: %+v", byEmployee["emp-1"])
	}
	if byEmployee["emp-2"].Err == nil {
		t.Error("emp-2 should have failed")
	}
	if byEmployee["emp-3"].Err != nil || byEmployee["emp-3"].RecordID == "" {
		t.Errorf("emp-3 should have succeeded: %+v", byEmployee["emp-3"])
	}

	// The failed sibling must not roll back the successes.
	if len(store.records) != 2 {
		t.Errorf("store has %d records, want 2", len(store.records))
	}
}

func TestBulkAssignInactiveDefinition(t *testing.T) {
	store := newFakeStore()
	defID := seedDefinition(store)
	_ = store.DeactivateDefinition(context.Background(), "t1", defID)

	svc := NewService(store)
	now := time.Now()
	_, _, err := svc.BulkAssign(context.Background(), "t1", adminActor, defID, "2026-08",
		[]string{"emp-1"}, now, now, now)
	var ve *ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("got %v, want ValidationError", err)
	}
}

func TestTransitionConflictSurfaces(t *testing.T) {
	store := newFakeStore()
	svc := NewService(store)
	now := time.Now()

	rec := Record{EmployeeID: "emp-1", KpiID: "k1", Status: StatusAwaitingApproval, Actual: 12, Target: 10}
	id, _ := store.CreateRecord(context.Background(), "t1", rec)

	store.saveErr = ErrConflict
	_, err := svc.Transition(context.Background(), "t1", id, ActionApprove, adminActor, TransitionPayload{}, now)
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("got %v, want ErrConflict", err)
	}
}

func TestTransitionNotifiesTheRightParties(t *testing.T) {
	store := newFakeStore()
	defID := seedDefinition(store)
	svc := NewService(store)
	now := time.Now()

	rec := Record{EmployeeID: "emp-1", KpiID: defID, Status: StatusInProgress, Actual: 12, Target: 10, SubmittedReport: "done"}
	id, _ := store.CreateRecord(context.Background(), "t1", rec)

	result, err := svc.Transition(context.Background(), "t1", id, ActionSubmit, employeeActor, TransitionPayload{}, now)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if len(result.AdminUserIDs) == 0 {
		t.Error("submit should fan out to admins")
	}
	if result.EmployeeUserID != "" {
		t.Error("submit should not notify the employee")
	}

	result, err = svc.Transition(context.Background(), "t1", id, ActionApprove, adminActor, TransitionPayload{}, now)
	if err != nil {
		t.Fatalf("approve: %v", err)
	}
	if result.EmployeeUserID == "" {
		t.Error("approve should notify the employee")
	}
}

func TestUpdateProgressStartsNotStartedRecord(t *testing.T) {
	store := newFakeStore()
	svc := NewService(store)
	now := time.Now()

	rec := Record{EmployeeID: "emp-1", KpiID: "k1", Status: StatusNotStarted, Target: 10}
	id, _ := store.CreateRecord(context.Background(), "t1", rec)

	updated, err := svc.UpdateProgress(context.Background(), "t1", id, employeeActor, 4, "", now)
	if err != nil {
		t.Fatalf("UpdateProgress: %v", err)
	}
	if updated.Status != StatusInProgress {
		t.Errorf("status = %q, want %q", updated.Status, StatusInProgress)
	}
	if updated.Actual != 4 {
		t.Errorf("actual = %v, want 4", updated.Actual)
	}
}

func TestUpdateProgressLockedRecord(t *testing.T) {
	store := newFakeStore()
	svc := NewService(store)
	now := time.Now()

	rec := Record{EmployeeID: "emp-1", KpiID: "k1", Status: StatusAwaitingApproval, Target: 10, Actual: 8}
	id, _ := store.CreateRecord(context.Background(), "t1", rec)

	_, err := svc.UpdateProgress(context.Background(), "t1", id, employeeActor, 9, "", now)
	var te *TransitionError
	if !errors.As(err, &te) {
		t.Fatalf("got %v, want TransitionError", err)
	}
}

func TestListRecordsScopesEmployees(t *testing.T) {
	store := newFakeStore()
	svc := NewService(store)

	_, _ = store.CreateRecord(context.Background(), "t1", Record{EmployeeID: "emp-1", Status: StatusNotStarted})
	_, _ = store.CreateRecord(context.Background(), "t1", Record{EmployeeID: "emp-2", Status: StatusNotStarted})

	result, err := svc.ListRecords(context.Background(), "t1", employeeActor, ListFilter{})
	if err != nil {
		t.Fatalf("ListRecords: %v", err)
	}
	for _, rec := range result.Records {
		if rec.EmployeeID != "emp-1" {
			t.Errorf("employee saw record of %s", rec.EmployeeID)
		}
	}

	result, err = svc.ListRecords(context.Background(), "t1", adminActor, ListFilter{})
	if err != nil {
		t.Fatalf("ListRecords admin: %v", err)
	}
	if result.Total != 2 {
		t.Errorf("admin sees %d records, want 2", result.Total)
	}
}

func TestGetRecordDeniesForeignEmployee(t *testing.T) {
	store := newFakeStore()
	svc := NewService(store)

	id, _ := store.CreateRecord(context.Background(), "t1", Record{EmployeeID: "emp-1", Status: StatusNotStarted})
	if _, err := svc.GetRecord(context.Background(), "t1", id, otherEmployee); !errors.Is(err, ErrPermissionDenied) {
		t.Fatalf("got %v, want ErrPermissionDenied", err)
	}
	if _, err := svc.GetRecord(context.Background(), "t1", id, adminActor); err != nil {
		t.Fatalf("admin read: %v", err)
	}
}

func TestCreateDefinitionValidation(t *testing.T) {
	store := newFakeStore()
	svc := NewService(store)
	ctx := context.Background()

	tests := []struct {
		name string
		def  Definition
	}{
		{"empty name", Definition{Target: 5}},
		{"negative target", Definition{Name: "x", Target: -1}},
		{"weight over 100", Definition{Name: "x", Weight: 120}},
		{"bad frequency", Definition{Name: "x", Frequency: "weekly"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.CreateDefinition(ctx, "t1", adminActor, tt.def)
			var ve *ValidationError
			if !errors.As(err, &ve) {
				t.Errorf("got %v, want ValidationError", err)
			}
		})
	}

	if _, err := svc.CreateDefinition(ctx, "t1", employeeActor, Definition{Name: "x"}); !errors.Is(err, ErrPermissionDenied) {
		t.Errorf("employee create: got %v, want ErrPermissionDenied", err)
	}
}

func TestDeleteDefinition(t *testing.T) {
	store := newFakeStore()
	svc := NewService(store)
	ctx := context.Background()

	id, err := svc.CreateDefinition(ctx, "t1", adminActor, Definition{Name: "Sales", IsActive: true})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if err := svc.DeleteDefinition(ctx, "t1", employeeActor, id); !errors.Is(err, ErrPermissionDenied) {
		t.Errorf("employee delete: got %v, want ErrPermissionDenied", err)
	}

	if err := svc.DeleteDefinition(ctx, "t1", adminActor, id); err != nil {
		t.Fatalf("admin delete: %v", err)
	}
	if _, err := svc.GetDefinition(ctx, "t1", id); !errors.Is(err, ErrNotFound) {
		t.Errorf("get after delete: got %v, want ErrNotFound", err)
	}
	if err := svc.DeleteDefinition(ctx, "t1", adminActor, id); !errors.Is(err, ErrNotFound) {
		t.Errorf("second delete: got %v, want ErrNotFound", err)
	}
}
