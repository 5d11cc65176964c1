package kpihandler

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"kpihub/internal/domain/audit"
	"kpihub/internal/domain/auth"
	"kpihub/internal/domain/core"
	"kpihub/internal/domain/kpi"
	"kpihub/internal/domain/notifications"
	"kpihub/internal/transport/http/api"
	"kpihub/internal/transport/http/middleware"
	"kpihub/internal/transport/http/shared"
)

type Handler struct {
	Service     *kpi.Service
	Core        *core.Service
	Perms       middleware.PermissionStore
	Notify      *notifications.Service
	Audit       *audit.Service
	Idempotency *middleware.IdempotencyStore
}

func NewHandler(service *kpi.Service, coreSvc *core.Service, perms middleware.PermissionStore, notify *notifications.Service, auditSvc *audit.Service, idempotency *middleware.IdempotencyStore) *Handler {
	return &Handler{Service: service, Core: coreSvc, Perms: perms, Notify: notify, Audit: auditSvc, Idempotency: idempotency}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/kpi", func(r chi.Router) {
		r.With(middleware.RequirePermission(auth.PermKpiRead, h.Perms)).Get("/definitions", h.handleListDefinitions)
		r.With(middleware.RequirePermission(auth.PermKpiRead, h.Perms)).Get("/definitions/{kpiID}", h.handleGetDefinition)
		r.With(middleware.RequirePermission(auth.PermKpiWrite, h.Perms)).Post("/definitions", h.handleCreateDefinition)
		r.With(middleware.RequirePermission(auth.PermKpiWrite, h.Perms)).Put("/definitions/{kpiID}", h.handleUpdateDefinition)
		r.With(middleware.RequirePermission(auth.PermKpiWrite, h.Perms)).Post("/definitions/{kpiID}/deactivate", h.handleDeactivateDefinition)
		r.With(middleware.RequirePermission(auth.PermKpiWrite, h.Perms)).Delete("/definitions/{kpiID}", h.handleDeleteDefinition)

		r.With(middleware.RequirePermission(auth.PermKpiAssign, h.Perms)).Post("/assign", h.handleAssign)
		r.With(middleware.RequirePermission(auth.PermKpiAssign, h.Perms)).Post("/bulk-assign", h.handleBulkAssign)

		r.With(middleware.RequirePermission(auth.PermKpiRead, h.Perms)).Get("/records", h.handleListRecords)
		r.With(middleware.RequirePermission(auth.PermKpiRead, h.Perms)).Get("/records/{recordID}", h.handleGetRecord)
		r.With(middleware.RequirePermission(auth.PermKpiRead, h.Perms)).Get("/records/{recordID}/history", h.handleRecordHistory)
		r.With(middleware.RequirePermission(auth.PermKpiWrite, h.Perms)).Put("/records/{recordID}/progress", h.handleUpdateProgress)
		r.With(middleware.RequirePermission(auth.PermKpiWrite, h.Perms)).Post("/records/{recordID}/start", h.transitionHandler(kpi.ActionStart))
		r.With(middleware.RequirePermission(auth.PermKpiWrite, h.Perms)).Post("/records/{recordID}/submit", h.transitionHandler(kpi.ActionSubmit))
		r.With(middleware.RequirePermission(auth.PermKpiApprove, h.Perms)).Post("/records/{recordID}/approve", h.transitionHandler(kpi.ActionApprove))
		r.With(middleware.RequirePermission(auth.PermKpiApprove, h.Perms)).Post("/records/{recordID}/reject", h.transitionHandler(kpi.ActionReject))
		r.With(middleware.RequirePermission(auth.PermKpiWrite, h.Perms)).Post("/records/{recordID}/reopen", h.transitionHandler(kpi.ActionReopen))
	})

	r.Route("/reward-programs", func(r chi.Router) {
		r.With(middleware.RequirePermission(auth.PermRewardsRead, h.Perms)).Get("/", h.handleListPrograms)
		r.With(middleware.RequirePermission(auth.PermRewardsRead, h.Perms)).Get("/{programID}", h.handleGetProgram)
		r.With(middleware.RequirePermission(auth.PermRewardsWrite, h.Perms)).Post("/", h.handleCreateProgram)
		r.With(middleware.RequirePermission(auth.PermRewardsWrite, h.Perms)).Post("/{programID}/activate", h.programActiveHandler(true))
		r.With(middleware.RequirePermission(auth.PermRewardsWrite, h.Perms)).Post("/{programID}/deactivate", h.programActiveHandler(false))
		r.With(middleware.RequirePermission(auth.PermRewardsRead, h.Perms)).Post("/evaluate", h.handleEvaluatePrograms)
	})
}

// failKpiError maps engine errors onto the API contract: validation issues
// become 400s with field details, disallowed transitions 422, lost CAS races
// 409.
func failKpiError(w http.ResponseWriter, r *http.Request, err error, fallbackCode, fallbackMessage string) {
	requestID := middleware.GetRequestID(r.Context())

	var vErr *kpi.ValidationError
	if errors.As(err, &vErr) {
		shared.FailValidation(w, requestID, []shared.ValidationIssue{{Field: vErr.Field, Reason: vErr.Reason}})
		return
	}
	var tErr *kpi.TransitionError
	if errors.As(err, &tErr) {
		api.Fail(w, http.StatusUnprocessableEntity, "invalid_transition", tErr.Error(), requestID)
		return
	}
	switch {
	case errors.Is(err, kpi.ErrPermissionDenied):
		api.Fail(w, http.StatusForbidden, "forbidden", "not allowed", requestID)
	case errors.Is(err, kpi.ErrConflict):
		api.Fail(w, http.StatusConflict, "conflict", "record was modified concurrently, retry with fresh state", requestID)
	case errors.Is(err, kpi.ErrNotFound):
		api.Fail(w, http.StatusNotFound, "not_found", "not found", requestID)
	default:
		api.Fail(w, http.StatusInternalServerError, fallbackCode, fallbackMessage, requestID)
	}
}

func (h *Handler) handleListDefinitions(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.GetUser(r.Context())
	if !ok {
		api.Fail(w, http.StatusUnauthorized, "unauthorized", "authentication required", middleware.GetRequestID(r.Context()))
		return
	}

	departmentID := r.URL.Query().Get("departmentId")
	activeOnly := r.URL.Query().Get("active") == "true"
	defs, err := h.Service.ListDefinitions(r.Context(), user.TenantID, departmentID, activeOnly)
	if err != nil {
		api.Fail(w, http.StatusInternalServerError, "kpi_list_failed", "failed to list kpi definitions", middleware.GetRequestID(r.Context()))
		return
	}
	api.Success(w, defs, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleGetDefinition(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.GetUser(r.Context())
	if !ok {
		api.Fail(w, http.StatusUnauthorized, "unauthorized", "authentication required", middleware.GetRequestID(r.Context()))
		return
	}

	def, err := h.Service.GetDefinition(r.Context(), user.TenantID, chi.URLParam(r, "kpiID"))
	if err != nil {
		failKpiError(w, r, err, "kpi_get_failed", "failed to load kpi definition")
		return
	}
	api.Success(w, def, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleCreateDefinition(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.GetUser(r.Context())
	if !ok {
		api.Fail(w, http.StatusUnauthorized, "unauthorized", "authentication required", middleware.GetRequestID(r.Context()))
		return
	}

	var payload kpi.Definition
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		api.Fail(w, http.StatusBadRequest, "invalid_payload", "invalid request payload", middleware.GetRequestID(r.Context()))
		return
	}

	id, err := h.Service.CreateDefinition(r.Context(), user.TenantID, middleware.ActorFor(user), payload)
	if err != nil {
		failKpiError(w, r, err, "kpi_create_failed", "failed to create kpi definition")
		return
	}

	if err := h.Audit.Record(r.Context(), user.TenantID, user.UserID, audit.ActionCreate, audit.EntityKpi, id, middleware.GetRequestID(r.Context()), shared.ClientIP(r), nil, payload); err != nil {
		slog.Warn("audit kpi create failed", "err", err)
	}
	api.Created(w, map[string]string{"id": id}, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleUpdateDefinition(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.GetUser(r.Context())
	if !ok {
		api.Fail(w, http.StatusUnauthorized, "unauthorized", "authentication required", middleware.GetRequestID(r.Context()))
		return
	}

	kpiID := chi.URLParam(r, "kpiID")
	before, err := h.Service.GetDefinition(r.Context(), user.TenantID, kpiID)
	if err != nil {
		failKpiError(w, r, err, "kpi_get_failed", "failed to load kpi definition")
		return
	}

	var payload kpi.Definition
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		api.Fail(w, http.StatusBadRequest, "invalid_payload", "invalid request payload", middleware.GetRequestID(r.Context()))
		return
	}
	payload.ID = kpiID

	if err := h.Service.UpdateDefinition(r.Context(), user.TenantID, middleware.ActorFor(user), payload); err != nil {
		failKpiError(w, r, err, "kpi_update_failed", "failed to update kpi definition")
		return
	}

	if err := h.Audit.Record(r.Context(), user.TenantID, user.UserID, audit.ActionUpdate, audit.EntityKpi, kpiID, middleware.GetRequestID(r.Context()), shared.ClientIP(r), before, payload); err != nil {
		slog.Warn("audit kpi update failed", "err", err)
	}
	api.Success(w, map[string]string{"status": "updated"}, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleDeactivateDefinition(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.GetUser(r.Context())
	if !ok {
		api.Fail(w, http.StatusUnauthorized, "unauthorized", "authentication required", middleware.GetRequestID(r.Context()))
		return
	}

	kpiID := chi.URLParam(r, "kpiID")
	if err := h.Service.DeactivateDefinition(r.Context(), user.TenantID, middleware.ActorFor(user), kpiID); err != nil {
		failKpiError(w, r, err, "kpi_deactivate_failed", "failed to deactivate kpi definition")
		return
	}

	if err := h.Audit.Record(r.Context(), user.TenantID, user.UserID, audit.ActionDeactivate, audit.EntityKpi, kpiID, middleware.GetRequestID(r.Context()), shared.ClientIP(r), nil, nil); err != nil {
		slog.Warn("audit kpi deactivate failed", "err", err)
	}
	api.Success(w, map[string]string{"status": "deactivated"}, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleDeleteDefinition(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.GetUser(r.Context())
	if !ok {
		api.Fail(w, http.StatusUnauthorized, "unauthorized", "authentication required", middleware.GetRequestID(r.Context()))
		return
	}

	kpiID := chi.URLParam(r, "kpiID")
	before, err := h.Service.GetDefinition(r.Context(), user.TenantID, kpiID)
	if err != nil {
		failKpiError(w, r, err, "kpi_get_failed", "failed to load kpi definition")
		return
	}

	if err := h.Service.DeleteDefinition(r.Context(), user.TenantID, middleware.ActorFor(user), kpiID); err != nil {
		failKpiError(w, r, err, "kpi_delete_failed", "failed to delete kpi definition")
		return
	}

	if err := h.Audit.Record(r.Context(), user.TenantID, user.UserID, audit.ActionDelete, audit.EntityKpi, kpiID, middleware.GetRequestID(r.Context()), shared.ClientIP(r), before, nil); err != nil {
		slog.Warn("audit kpi delete failed", "err", err)
	}
	api.Success(w, map[string]string{"status": "deleted"}, middleware.GetRequestID(r.Context()))
}

type assignPayload struct {
	KpiID      string `json:"kpiId"`
	EmployeeID string `json:"employeeId"`
	Period     string `json:"period"`
	StartDate  string `json:"startDate"`
	EndDate    string `json:"endDate"`
}

func (h *Handler) handleAssign(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.GetUser(r.Context())
	if !ok {
		api.Fail(w, http.StatusUnauthorized, "unauthorized", "authentication required", middleware.GetRequestID(r.Context()))
		return
	}

	var payload assignPayload
	raw, replayed := h.decodeIdempotent(w, r, user, "/kpi/assign", &payload)
	if replayed {
		return
	}
	if raw == nil {
		return
	}

	v := shared.NewValidator()
	v.Required("kpiId", payload.KpiID, "kpi id is required")
	v.Required("employeeId", payload.EmployeeID, "employee id is required")
	v.Required("period", payload.Period, "period is required")
	startDate, endDate, ok2 := h.parseAssignmentDates(v, payload.StartDate, payload.EndDate)
	if v.Reject(w, middleware.GetRequestID(r.Context())) || !ok2 {
		return
	}

	result, err := h.Service.Assign(r.Context(), user.TenantID, middleware.ActorFor(user), kpi.AssignRequest{
		KpiID:      payload.KpiID,
		EmployeeID: payload.EmployeeID,
		Period:     payload.Period,
		StartDate:  startDate,
		EndDate:    endDate,
	}, time.Now())
	if err != nil {
		failKpiError(w, r, err, "kpi_assign_failed", "failed to assign kpi")
		return
	}

	if err := h.Audit.Record(r.Context(), user.TenantID, user.UserID, audit.ActionAssign, audit.EntityKpiRecord, result.RecordID, middleware.GetRequestID(r.Context()), shared.ClientIP(r), nil, map[string]any{
		"kpiId":      payload.KpiID,
		"employeeId": payload.EmployeeID,
		"period":     payload.Period,
	}); err != nil {
		slog.Warn("audit kpi assign failed", "err", err)
	}
	if result.EmployeeUserID != "" {
		if err := h.Notify.Create(r.Context(), user.TenantID, result.EmployeeUserID, notifications.KpiAssigned(result.KpiName, payload.Period, result.RecordID)); err != nil {
			slog.Warn("kpi assigned notification failed", "recordId", result.RecordID, "err", err)
		}
	}

	response := map[string]string{"id": result.RecordID, "status": kpi.StatusNotStarted}
	h.saveIdempotent(r, user, "/kpi/assign", raw, response)
	api.Created(w, response, middleware.GetRequestID(r.Context()))
}

type bulkAssignPayload struct {
	KpiID       string   `json:"kpiId"`
	EmployeeIDs []string `json:"employeeIds"`
	Period      string   `json:"period"`
	StartDate   string   `json:"startDate"`
	EndDate     string   `json:"endDate"`
}

func (h *Handler) handleBulkAssign(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.GetUser(r.Context())
	if !ok {
		api.Fail(w, http.StatusUnauthorized, "unauthorized", "authentication required", middleware.GetRequestID(r.Context()))
		return
	}

	var payload bulkAssignPayload
	raw, replayed := h.decodeIdempotent(w, r, user, "/kpi/bulk-assign", &payload)
	if replayed {
		return
	}
	if raw == nil {
		return
	}

	v := shared.NewValidator()
	v.Required("kpiId", payload.KpiID, "kpi id is required")
	v.Required("period", payload.Period, "period is required")
	if len(payload.EmployeeIDs) == 0 {
		v.Add("employeeIds", "at least one employee id is required")
	}
	startDate, endDate, ok2 := h.parseAssignmentDates(v, payload.StartDate, payload.EndDate)
	if v.Reject(w, middleware.GetRequestID(r.Context())) || !ok2 {
		return
	}

	outcomes, kpiName, err := h.Service.BulkAssign(r.Context(), user.TenantID, middleware.ActorFor(user), payload.KpiID, payload.Period, payload.EmployeeIDs, startDate, endDate, time.Now())
	if err != nil {
		failKpiError(w, r, err, "kpi_bulk_assign_failed", "failed to bulk assign kpi")
		return
	}

	// Partial failure is the contract here: each employee's outcome is
	// reported individually and successes are not rolled back.
	succeeded := 0
	items := make([]map[string]any, 0, len(outcomes))
	for _, outcome := range outcomes {
		item := map[string]any{"employeeId": outcome.EmployeeID}
		if outcome.Err != nil {
			item["error"] = outcome.Err.Error()
		} else {
			succeeded++
			item["recordId"] = outcome.RecordID
			if outcome.EmployeeUserID != "" {
				if err := h.Notify.Create(r.Context(), user.TenantID, outcome.EmployeeUserID, notifications.KpiAssigned(kpiName, payload.Period, outcome.RecordID)); err != nil {
					slog.Warn("kpi assigned notification failed", "recordId", outcome.RecordID, "err", err)
				}
			}
		}
		items = append(items, item)
	}

	if err := h.Audit.Record(r.Context(), user.TenantID, user.UserID, audit.ActionAssign, audit.EntityKpi, payload.KpiID, middleware.GetRequestID(r.Context()), shared.ClientIP(r), nil, map[string]any{
		"period":    payload.Period,
		"requested": len(payload.EmployeeIDs),
		"succeeded": succeeded,
	}); err != nil {
		slog.Warn("audit kpi bulk assign failed", "err", err)
	}

	response := map[string]any{"items": items, "succeeded": succeeded, "failed": len(items) - succeeded}
	h.saveIdempotent(r, user, "/kpi/bulk-assign", raw, response)
	api.Created(w, response, middleware.GetRequestID(r.Context()))
}

func (h *Handler) parseAssignmentDates(v *shared.Validator, startRaw, endRaw string) (time.Time, time.Time, bool) {
	var startDate, endDate time.Time
	ok := true
	if strings.TrimSpace(startRaw) != "" {
		startDate, ok = v.Date("startDate", startRaw)
	}
	if strings.TrimSpace(endRaw) != "" {
		var endOK bool
		endDate, endOK = v.Date("endDate", endRaw)
		ok = ok && endOK
	}
	v.DateOrder("startDate", startDate, "endDate", endDate)
	return startDate, endDate, ok && !v.HasIssues()
}

func (h *Handler) handleListRecords(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.GetUser(r.Context())
	if !ok {
		api.Fail(w, http.StatusUnauthorized, "unauthorized", "authentication required", middleware.GetRequestID(r.Context()))
		return
	}

	page := shared.ParsePagination(r, 50, 200)
	filter := kpi.ListFilter{
		EmployeeID: r.URL.Query().Get("employeeId"),
		KpiID:      r.URL.Query().Get("kpiId"),
		Period:     r.URL.Query().Get("period"),
		Status:     r.URL.Query().Get("status"),
		Limit:      page.Limit,
		Offset:     page.Offset,
	}

	result, err := h.Service.ListRecords(r.Context(), user.TenantID, middleware.ActorFor(user), filter)
	if err != nil {
		failKpiError(w, r, err, "kpi_records_failed", "failed to list kpi records")
		return
	}

	w.Header().Set("X-Total-Count", strconv.Itoa(result.Total))
	api.Success(w, result.Records, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleGetRecord(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.GetUser(r.Context())
	if !ok {
		api.Fail(w, http.StatusUnauthorized, "unauthorized", "authentication required", middleware.GetRequestID(r.Context()))
		return
	}

	rec, err := h.Service.GetRecord(r.Context(), user.TenantID, chi.URLParam(r, "recordID"), middleware.ActorFor(user))
	if err != nil {
		failKpiError(w, r, err, "kpi_record_failed", "failed to load kpi record")
		return
	}

	api.Success(w, map[string]any{
		"record":               rec,
		"completionPercentage": kpi.CompletionPercentage(rec),
		"progress":             kpi.Progress(rec),
		"overdue":              kpi.IsOverdue(rec, time.Now()),
	}, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleRecordHistory(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.GetUser(r.Context())
	if !ok {
		api.Fail(w, http.StatusUnauthorized, "unauthorized", "authentication required", middleware.GetRequestID(r.Context()))
		return
	}

	history, err := h.Service.ListHistory(r.Context(), user.TenantID, chi.URLParam(r, "recordID"), middleware.ActorFor(user))
	if err != nil {
		failKpiError(w, r, err, "kpi_history_failed", "failed to load record history")
		return
	}
	api.Success(w, history, middleware.GetRequestID(r.Context()))
}

type progressPayload struct {
	Actual float64 `json:"actual"`
	Report string  `json:"report"`
}

func (h *Handler) handleUpdateProgress(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.GetUser(r.Context())
	if !ok {
		api.Fail(w, http.StatusUnauthorized, "unauthorized", "authentication required", middleware.GetRequestID(r.Context()))
		return
	}

	var payload progressPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		api.Fail(w, http.StatusBadRequest, "invalid_payload", "invalid request payload", middleware.GetRequestID(r.Context()))
		return
	}

	recordID := chi.URLParam(r, "recordID")
	rec, err := h.Service.UpdateProgress(r.Context(), user.TenantID, recordID, middleware.ActorFor(user), payload.Actual, payload.Report, time.Now())
	if err != nil {
		failKpiError(w, r, err, "kpi_progress_failed", "failed to update progress")
		return
	}

	api.Success(w, map[string]any{
		"record":               rec,
		"completionPercentage": kpi.CompletionPercentage(rec),
	}, middleware.GetRequestID(r.Context()))
}

type transitionPayload struct {
	Actual  *float64 `json:"actual,omitempty"`
	Report  string   `json:"report"`
	Comment string   `json:"comment"`
}

func (h *Handler) transitionHandler(action string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, ok := middleware.GetUser(r.Context())
		if !ok {
			api.Fail(w, http.StatusUnauthorized, "unauthorized", "authentication required", middleware.GetRequestID(r.Context()))
			return
		}

		var payload transitionPayload
		if r.Body != nil && r.ContentLength != 0 {
			if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
				api.Fail(w, http.StatusBadRequest, "invalid_payload", "invalid request payload", middleware.GetRequestID(r.Context()))
				return
			}
		}

		recordID := chi.URLParam(r, "recordID")
		result, err := h.Service.Transition(r.Context(), user.TenantID, recordID, action, middleware.ActorFor(user), kpi.TransitionPayload{
			Actual:  payload.Actual,
			Report:  payload.Report,
			Comment: payload.Comment,
		}, time.Now())
		if err != nil {
			failKpiError(w, r, err, "kpi_transition_failed", "failed to apply transition")
			return
		}

		if err := h.Audit.Record(r.Context(), user.TenantID, user.UserID, audit.ActionTransition, audit.EntityKpiRecord, recordID, middleware.GetRequestID(r.Context()), shared.ClientIP(r), nil, map[string]any{
			"action": action,
			"status": result.Record.Status,
		}); err != nil {
			slog.Warn("audit kpi transition failed", "action", action, "err", err)
		}

		h.notifyTransition(r, user.TenantID, action, result)

		api.Success(w, map[string]any{
			"record":               result.Record,
			"completionPercentage": kpi.CompletionPercentage(result.Record),
		}, middleware.GetRequestID(r.Context()))
	}
}

func (h *Handler) notifyTransition(r *http.Request, tenantID, action string, result kpi.TransitionResult) {
	switch action {
	case kpi.ActionSubmit:
		employeeName := result.Record.EmployeeID
		if h.Core != nil {
			if emp, err := h.Core.GetEmployee(r.Context(), tenantID, result.Record.EmployeeID); err == nil {
				employeeName = strings.TrimSpace(emp.FirstName + " " + emp.LastName)
			}
		}
		h.Notify.Fanout(r.Context(), tenantID, result.AdminUserIDs, notifications.ReportSubmitted(result.KpiName, employeeName, result.Record.ID))
	case kpi.ActionApprove:
		if result.EmployeeUserID != "" {
			if err := h.Notify.Create(r.Context(), tenantID, result.EmployeeUserID, notifications.ReportApproved(result.KpiName, result.Record.ID)); err != nil {
				slog.Warn("approval notification failed", "recordId", result.Record.ID, "err", err)
			}
		}
	case kpi.ActionReject:
		if result.EmployeeUserID != "" {
			if err := h.Notify.Create(r.Context(), tenantID, result.EmployeeUserID, notifications.ReportRejected(result.KpiName, result.Record.ApprovalComment, result.Record.ID)); err != nil {
				slog.Warn("rejection notification failed", "recordId", result.Record.ID, "err", err)
			}
		}
	}
}

func (h *Handler) handleListPrograms(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.GetUser(r.Context())
	if !ok {
		api.Fail(w, http.StatusUnauthorized, "unauthorized", "authentication required", middleware.GetRequestID(r.Context()))
		return
	}

	activeOnly := r.URL.Query().Get("active") == "true"
	programs, err := h.Service.ListPrograms(r.Context(), user.TenantID, activeOnly)
	if err != nil {
		api.Fail(w, http.StatusInternalServerError, "program_list_failed", "failed to list reward programs", middleware.GetRequestID(r.Context()))
		return
	}
	api.Success(w, programs, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleGetProgram(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.GetUser(r.Context())
	if !ok {
		api.Fail(w, http.StatusUnauthorized, "unauthorized", "authentication required", middleware.GetRequestID(r.Context()))
		return
	}

	program, err := h.Service.GetProgram(r.Context(), user.TenantID, chi.URLParam(r, "programID"))
	if err != nil {
		failKpiError(w, r, err, "program_get_failed", "failed to load reward program")
		return
	}
	api.Success(w, program, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleCreateProgram(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.GetUser(r.Context())
	if !ok {
		api.Fail(w, http.StatusUnauthorized, "unauthorized", "authentication required", middleware.GetRequestID(r.Context()))
		return
	}

	var payload kpi.Program
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		api.Fail(w, http.StatusBadRequest, "invalid_payload", "invalid request payload", middleware.GetRequestID(r.Context()))
		return
	}

	id, err := h.Service.CreateProgram(r.Context(), user.TenantID, middleware.ActorFor(user), payload)
	if err != nil {
		failKpiError(w, r, err, "program_create_failed", "failed to create reward program")
		return
	}

	if err := h.Audit.Record(r.Context(), user.TenantID, user.UserID, audit.ActionCreate, audit.EntityRewardProgram, id, middleware.GetRequestID(r.Context()), shared.ClientIP(r), nil, payload); err != nil {
		slog.Warn("audit program create failed", "err", err)
	}
	api.Created(w, map[string]string{"id": id}, middleware.GetRequestID(r.Context()))
}

func (h *Handler) programActiveHandler(active bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, ok := middleware.GetUser(r.Context())
		if !ok {
			api.Fail(w, http.StatusUnauthorized, "unauthorized", "authentication required", middleware.GetRequestID(r.Context()))
			return
		}

		programID := chi.URLParam(r, "programID")
		if err := h.Service.SetProgramActive(r.Context(), user.TenantID, middleware.ActorFor(user), programID, active); err != nil {
			failKpiError(w, r, err, "program_update_failed", "failed to update reward program")
			return
		}

		status := "deactivated"
		action := audit.ActionDeactivate
		if active {
			status = "activated"
			action = audit.ActionUpdate
		}
		if err := h.Audit.Record(r.Context(), user.TenantID, user.UserID, action, audit.EntityRewardProgram, programID, middleware.GetRequestID(r.Context()), shared.ClientIP(r), nil, map[string]any{"isActive": active}); err != nil {
			slog.Warn("audit program update failed", "err", err)
		}
		api.Success(w, map[string]string{"status": status}, middleware.GetRequestID(r.Context()))
	}
}

type evaluateProgramsPayload struct {
	Observations map[string]string `json:"observations"`
}

func (h *Handler) handleEvaluatePrograms(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.GetUser(r.Context())
	if !ok {
		api.Fail(w, http.StatusUnauthorized, "unauthorized", "authentication required", middleware.GetRequestID(r.Context()))
		return
	}

	var payload evaluateProgramsPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		api.Fail(w, http.StatusBadRequest, "invalid_payload", "invalid request payload", middleware.GetRequestID(r.Context()))
		return
	}

	payouts, err := h.Service.EvaluatePrograms(r.Context(), user.TenantID, payload.Observations)
	if err != nil {
		api.Fail(w, http.StatusInternalServerError, "program_evaluate_failed", "failed to evaluate reward programs", middleware.GetRequestID(r.Context()))
		return
	}

	total := 0.0
	for _, payout := range payouts {
		total += payout.Amount
	}
	api.Success(w, map[string]any{"payouts": payouts, "total": total}, middleware.GetRequestID(r.Context()))
}

// decodeIdempotent reads and decodes the body, replaying a stored response
// when the Idempotency-Key header matches a previous identical request. A
// nil raw return means the response has already been written.
func (h *Handler) decodeIdempotent(w http.ResponseWriter, r *http.Request, user auth.UserContext, endpoint string, into any) (raw []byte, replayed bool) {
	body, err := readBody(r)
	if err != nil {
		api.Fail(w, http.StatusBadRequest, "invalid_payload", "invalid request payload", middleware.GetRequestID(r.Context()))
		return nil, false
	}
	if err := json.Unmarshal(body, into); err != nil {
		api.Fail(w, http.StatusBadRequest, "invalid_payload", "invalid request payload", middleware.GetRequestID(r.Context()))
		return nil, false
	}

	key := strings.TrimSpace(r.Header.Get("Idempotency-Key"))
	if key == "" || h.Idempotency == nil {
		return body, false
	}

	stored, found, err := h.Idempotency.Check(r.Context(), user.TenantID, user.UserID, endpoint, key, middleware.RequestHash(body))
	if errors.Is(err, middleware.ErrIdempotencyConflict) {
		api.Fail(w, http.StatusConflict, "idempotency_conflict", "idempotency key was used with a different payload", middleware.GetRequestID(r.Context()))
		return nil, true
	}
	if err != nil {
		slog.Warn("idempotency check failed", "endpoint", endpoint, "err", err)
		return body, false
	}
	if found {
		var data any
		if err := json.Unmarshal(stored, &data); err != nil {
			slog.Warn("idempotency replay decode failed", "endpoint", endpoint, "err", err)
			return body, false
		}
		api.Success(w, data, middleware.GetRequestID(r.Context()))
		return nil, true
	}
	return body, false
}

func (h *Handler) saveIdempotent(r *http.Request, user auth.UserContext, endpoint string, raw []byte, response any) {
	key := strings.TrimSpace(r.Header.Get("Idempotency-Key"))
	if key == "" || h.Idempotency == nil {
		return
	}
	encoded, err := json.Marshal(response)
	if err != nil {
		slog.Warn("idempotency response marshal failed", "endpoint", endpoint, "err", err)
		return
	}
	if err := h.Idempotency.Save(r.Context(), user.TenantID, user.UserID, endpoint, key, middleware.RequestHash(raw), encoded); err != nil {
		slog.Warn("idempotency save failed", "endpoint", endpoint, "err", err)
	}
}

func readBody(r *http.Request) ([]byte, error) {
	if r.Body == nil {
		return nil, errors.New("empty body")
	}
	defer r.Body.Close()
	return io.ReadAll(r.Body)
}
