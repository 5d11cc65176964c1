package kpihandler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"kpihub/internal/domain/auth"
	"kpihub/internal/domain/kpi"
	"kpihub/internal/domain/notifications"
	"kpihub/internal/transport/http/middleware"
)

const testSecret = "handler-test-secret"

// fakeStore backs the KPI service with maps so the handlers can be driven
// through a real router without a database.
type fakeStore struct {
	mu      sync.Mutex
	defs    map[string]kpi.Definition
	records map[string]kpi.Record
	users   map[string]string // employee_id -> user_id
	nextID  int
	saveErr error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		defs:    map[string]kpi.Definition{},
		records: map[string]kpi.Record{},
		users:   map[string]string{},
	}
}

func (f *fakeStore) genID() string {
	f.nextID++
	return fmt.Sprintf("id-%d", f.nextID)
}

func (f *fakeStore) CreateDefinition(_ context.Context, _ string, def kpi.Definition) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	def.ID = f.genID()
	f.defs[def.ID] = def
	return def.ID, nil
}

func (f *fakeStore) UpdateDefinition(_ context.Context, _ string, def kpi.Definition) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.defs[def.ID]; !ok {
		return kpi.ErrNotFound
	}
	f.defs[def.ID] = def
	return nil
}

func (f *fakeStore) DeactivateDefinition(_ context.Context, _ string, defID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	def, ok := f.defs[defID]
	if !ok {
		return kpi.ErrNotFound
	}
	def.IsActive = false
	f.defs[defID] = def
	return nil
}

func (f *fakeStore) DeleteDefinition(_ context.Context, _ string, defID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.defs[defID]; !ok {
		return kpi.ErrNotFound
	}
	delete(f.defs, defID)
	for id, rec := range f.records {
		if rec.KpiID == defID {
			delete(f.records, id)
		}
	}
	return nil
}

func (f *fakeStore) GetDefinition(_ context.Context, _ string, defID string) (kpi.Definition, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	def, ok := f.defs[defID]
	if !ok {
		return kpi.Definition{}, kpi.ErrNotFound
	}
	return def, nil
}

func (f *fakeStore) ListDefinitions(_ context.Context, _, _ string, _ bool) ([]kpi.Definition, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []kpi.Definition
	for _, def := range f.defs {
		out = append(out, def)
	}
	return out, nil
}

func (f *fakeStore) CreateRecord(_ context.Context, _ string, rec kpi.Record) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec.ID = f.genID()
	f.records[rec.ID] = rec
	return rec.ID, nil
}

func (f *fakeStore) GetRecord(_ context.Context, _ string, recordID string) (kpi.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.records[recordID]
	if !ok {
		return kpi.Record{}, kpi.ErrNotFound
	}
	return rec, nil
}

func (f *fakeStore) ListRecords(_ context.Context, _ string, filter kpi.ListFilter) (kpi.RecordListResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []kpi.Record
	for _, rec := range f.records {
		if filter.EmployeeID != "" && rec.EmployeeID != filter.EmployeeID {
			continue
		}
		out = append(out, rec)
	}
	return kpi.RecordListResult{Records: out, Total: len(out)}, nil
}

func (f *fakeStore) ListHistory(_ context.Context, _ string, recordID string) ([]kpi.HistoryEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.records[recordID]
	if !ok {
		return nil, kpi.ErrNotFound
	}
	return rec.StatusHistory, nil
}

func (f *fakeStore) SaveTransition(_ context.Context, _ string, rec kpi.Record, expectedStatus string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.saveErr != nil {
		return f.saveErr
	}
	stored, ok := f.records[rec.ID]
	if !ok {
		return kpi.ErrNotFound
	}
	if kpi.NormalizeStatus(stored.Status) != expectedStatus {
		return kpi.ErrConflict
	}
	f.records[rec.ID] = rec
	return nil
}

func (f *fakeStore) UpdateActual(_ context.Context, _ string, recordID, expectedStatus string, actual float64, report string, now time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.records[recordID]
	if !ok {
		return kpi.ErrNotFound
	}
	if kpi.NormalizeStatus(rec.Status) != expectedStatus {
		return kpi.ErrConflict
	}
	rec.Actual = actual
	if report != "" {
		rec.SubmittedReport = report
	}
	rec.UpdatedAt = now
	f.records[recordID] = rec
	return nil
}

func (f *fakeStore) CreateProgram(_ context.Context, _ string, program kpi.Program) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.genID(), nil
}

func (f *fakeStore) GetProgram(_ context.Context, _, _ string) (kpi.Program, error) {
	return kpi.Program{}, kpi.ErrNotFound
}

func (f *fakeStore) ListPrograms(_ context.Context, _ string, _ bool) ([]kpi.Program, error) {
	return nil, nil
}

func (f *fakeStore) SetProgramActive(_ context.Context, _, _ string, _ bool) error {
	return nil
}

func (f *fakeStore) OverdueRecords(_ context.Context, _ string, _ time.Time) ([]kpi.Record, error) {
	return nil, nil
}

func (f *fakeStore) MarkOverdueNotified(_ context.Context, _, _ string, _ time.Time) error {
	return nil
}

func (f *fakeStore) EmployeeUserID(_ context.Context, _, employeeID string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.users[employeeID], nil
}

func (f *fakeStore) AdminUserIDs(_ context.Context, _ string) ([]string, error) {
	return []string{"admin-user-1"}, nil
}

// rolePerms answers permission checks from the static role catalog, keyed
// by role name used as the role id in test tokens.
type rolePerms struct{}

func (rolePerms) HasPermission(_ context.Context, roleID, permission string) (bool, error) {
	for _, perm := range auth.RolePermissions[roleID] {
		if perm == permission {
			return true, nil
		}
	}
	return false, nil
}

type notifyStore struct {
	mu      sync.Mutex
	created []struct {
		UserID string
		Kind   string
	}
}

func (n *notifyStore) CreateNotification(_ context.Context, _, userID string, msg notifications.Message) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.created = append(n.created, struct {
		UserID string
		Kind   string
	}{userID, msg.Kind})
	return nil
}

func (n *notifyStore) UserEmail(_ context.Context, _, _ string) (string, error) { return "", nil }
func (n *notifyStore) ListNotifications(_ context.Context, _, _ string, _ bool, _, _ int) ([]map[string]any, error) {
	return nil, nil
}
func (n *notifyStore) CountUnread(_ context.Context, _, _ string) (int, error)  { return 0, nil }
func (n *notifyStore) MarkRead(_ context.Context, _, _, _ string) error         { return nil }
func (n *notifyStore) MarkAllRead(_ context.Context, _, _ string) error         { return nil }
func (n *notifyStore) EmailSettings(_ context.Context, _ string) (bool, string, error) {
	return false, "", nil
}
func (n *notifyStore) UpdateSettings(_ context.Context, _ string, _ bool, _ string) error {
	return nil
}

func newTestRouter(t *testing.T, store *fakeStore, notify *notifyStore) http.Handler {
	t.Helper()
	handler := NewHandler(kpi.NewService(store), nil, rolePerms{}, notifications.New(notify, nil), nil, nil)
	router := chi.NewRouter()
	router.Use(middleware.Auth(testSecret))
	router.Route("/api/v1", handler.RegisterRoutes)
	return router
}

func tokenFor(t *testing.T, userID, employeeID, role string) string {
	t.Helper()
	token, err := auth.GenerateToken(testSecret, auth.Claims{
		UserID:     userID,
		TenantID:   "tenant-1",
		RoleID:     role,
		RoleName:   role,
		EmployeeID: employeeID,
	}, time.Hour)
	if err != nil {
		t.Fatalf("token error: %v", err)
	}
	return token
}

func doJSON(t *testing.T, router http.Handler, method, path, token string, payload any) *httptest.ResponseRecorder {
	t.Helper()
	var body *bytes.Buffer
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			t.Fatalf("marshal error: %v", err)
		}
		body = bytes.NewBuffer(encoded)
	} else {
		body = bytes.NewBuffer(nil)
	}
	req := httptest.NewRequest(method, path, body)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func seedRecord(store *fakeStore, status string, actual float64) string {
	store.mu.Lock()
	defer store.mu.Unlock()
	id := store.genID()
	store.records[id] = kpi.Record{
		ID:         id,
		EmployeeID: "emp-1",
		KpiID:      "kpi-1",
		Period:     "2026-08",
		Target:     10,
		Actual:     actual,
		Status:     status,
	}
	store.users["emp-1"] = "user-emp-1"
	return id
}

func TestApproveRequiresApprovePermission(t *testing.T) {
	store := newFakeStore()
	router := newTestRouter(t, store, &notifyStore{})
	recordID := seedRecord(store, kpi.StatusAwaitingApproval, 10)

	rec := doJSON(t, router, http.MethodPost, "/api/v1/kpi/records/"+recordID+"/approve", tokenFor(t, "user-emp-1", "emp-1", auth.RoleEmployee), nil)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for employee approve, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestApproveConflictMapsTo409(t *testing.T) {
	store := newFakeStore()
	router := newTestRouter(t, store, &notifyStore{})
	recordID := seedRecord(store, kpi.StatusAwaitingApproval, 10)
	store.saveErr = kpi.ErrConflict

	rec := doJSON(t, router, http.MethodPost, "/api/v1/kpi/records/"+recordID+"/approve", tokenFor(t, "admin-1", "", auth.RoleAdmin), nil)
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409 on CAS conflict, got %d: %s", rec.Code, rec.Body.String())
	}

	var envelope struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if envelope.Error.Code != "conflict" {
		t.Fatalf("expected conflict code, got %q", envelope.Error.Code)
	}
}

func TestApproveNotStartedMapsTo422(t *testing.T) {
	store := newFakeStore()
	router := newTestRouter(t, store, &notifyStore{})
	recordID := seedRecord(store, kpi.StatusNotStarted, 0)

	rec := doJSON(t, router, http.MethodPost, "/api/v1/kpi/records/"+recordID+"/approve", tokenFor(t, "admin-1", "", auth.RoleAdmin), nil)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 for disallowed transition, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestSubmitWithoutReportMapsTo400WithDetails(t *testing.T) {
	store := newFakeStore()
	router := newTestRouter(t, store, &notifyStore{})
	recordID := seedRecord(store, kpi.StatusInProgress, 5)

	rec := doJSON(t, router, http.MethodPost, "/api/v1/kpi/records/"+recordID+"/submit", tokenFor(t, "user-emp-1", "emp-1", auth.RoleEmployee), map[string]any{"report": ""})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for missing report, got %d: %s", rec.Code, rec.Body.String())
	}

	var envelope struct {
		Error struct {
			Code    string `json:"code"`
			Details struct {
				Fields []struct {
					Field string `json:"field"`
				} `json:"fields"`
			} `json:"details"`
		} `json:"error"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if envelope.Error.Code != "validation_error" || len(envelope.Error.Details.Fields) == 0 {
		t.Fatalf("expected field details, got %s", rec.Body.String())
	}
}

func TestRejectNotifiesEmployee(t *testing.T) {
	store := newFakeStore()
	notify := &notifyStore{}
	router := newTestRouter(t, store, notify)
	recordID := seedRecord(store, kpi.StatusAwaitingApproval, 10)

	rec := doJSON(t, router, http.MethodPost, "/api/v1/kpi/records/"+recordID+"/reject", tokenFor(t, "admin-1", "", auth.RoleAdmin), map[string]any{"comment": "numbers do not match the export"})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 on reject, got %d: %s", rec.Code, rec.Body.String())
	}

	notify.mu.Lock()
	defer notify.mu.Unlock()
	if len(notify.created) != 1 {
		t.Fatalf("expected one notification, got %d", len(notify.created))
	}
	if notify.created[0].UserID != "user-emp-1" || notify.created[0].Kind != "report_rejected" {
		t.Fatalf("unexpected notification: %+v", notify.created[0])
	}
}

func TestAssignNotifiesAssignee(t *testing.T) {
	store := newFakeStore()
	notify := &notifyStore{}
	router := newTestRouter(t, store, notify)

	store.mu.Lock()
	store.defs["kpi-1"] = kpi.Definition{ID: "kpi-1", Name: "Sales volume", Target: 100, IsActive: true, Frequency: kpi.FrequencyMonthly}
	store.users["emp-1"] = "user-emp-1"
	store.mu.Unlock()

	rec := doJSON(t, router, http.MethodPost, "/api/v1/kpi/assign", tokenFor(t, "admin-1", "", auth.RoleAdmin), map[string]any{
		"kpiId":      "kpi-1",
		"employeeId": "emp-1",
		"period":     "2026-08",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201 on assign, got %d: %s", rec.Code, rec.Body.String())
	}

	notify.mu.Lock()
	defer notify.mu.Unlock()
	if len(notify.created) != 1 || notify.created[0].Kind != "kpi_assigned" {
		t.Fatalf("expected kpi_assigned notification, got %+v", notify.created)
	}
}

func TestDeleteDefinitionRemovesItsRecords(t *testing.T) {
	store := newFakeStore()
	router := newTestRouter(t, store, &notifyStore{})
	recordID := seedRecord(store, kpi.StatusInProgress, 5)

	store.mu.Lock()
	store.defs["kpi-1"] = kpi.Definition{ID: "kpi-1", Name: "Sales volume", Target: 10, IsActive: true}
	store.mu.Unlock()

	rec := doJSON(t, router, http.MethodDelete, "/api/v1/kpi/definitions/kpi-1", tokenFor(t, "admin-1", "", auth.RoleAdmin), nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 on delete, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, router, http.MethodGet, "/api/v1/kpi/definitions/kpi-1", tokenFor(t, "admin-1", "", auth.RoleAdmin), nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 after delete, got %d", rec.Code)
	}
	rec = doJSON(t, router, http.MethodGet, "/api/v1/kpi/records/"+recordID, tokenFor(t, "admin-1", "", auth.RoleAdmin), nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected record to be gone after delete, got %d", rec.Code)
	}
}

func TestGetRecordIncludesDerivedFields(t *testing.T) {
	store := newFakeStore()
	router := newTestRouter(t, store, &notifyStore{})
	recordID := seedRecord(store, kpi.StatusInProgress, 5)

	rec := doJSON(t, router, http.MethodGet, "/api/v1/kpi/records/"+recordID, tokenFor(t, "user-emp-1", "emp-1", auth.RoleEmployee), nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var envelope struct {
		Data struct {
			CompletionPercentage int `json:"completionPercentage"`
		} `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if envelope.Data.CompletionPercentage != 50 {
		t.Fatalf("expected 50%% completion, got %d", envelope.Data.CompletionPercentage)
	}
}

func TestListRecordsScopedToOwnEmployee(t *testing.T) {
	store := newFakeStore()
	router := newTestRouter(t, store, &notifyStore{})
	seedRecord(store, kpi.StatusInProgress, 5)

	store.mu.Lock()
	otherID := store.genID()
	store.records[otherID] = kpi.Record{ID: otherID, EmployeeID: "emp-2", KpiID: "kpi-1", Period: "2026-08", Status: kpi.StatusInProgress}
	store.mu.Unlock()

	rec := doJSON(t, router, http.MethodGet, "/api/v1/kpi/records", tokenFor(t, "user-emp-1", "emp-1", auth.RoleEmployee), nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var envelope struct {
		Data []struct {
			EmployeeID string `json:"employeeId"`
		} `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if len(envelope.Data) != 1 || envelope.Data[0].EmployeeID != "emp-1" {
		t.Fatalf("expected only own records, got %+v", envelope.Data)
	}
}
