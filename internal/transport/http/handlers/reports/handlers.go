package reportshandler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"kpihub/internal/domain/audit"
	"kpihub/internal/domain/auth"
	"kpihub/internal/domain/reports"
	"kpihub/internal/platform/jobs"
	"kpihub/internal/transport/http/api"
	"kpihub/internal/transport/http/middleware"
	"kpihub/internal/transport/http/shared"
)

type Handler struct {
	Service *reports.Service
	Jobs    *jobs.Service
	Perms   middleware.PermissionStore
	Audit   *audit.Service
}

func NewHandler(service *reports.Service, jobsSvc *jobs.Service, perms middleware.PermissionStore, auditSvc *audit.Service) *Handler {
	return &Handler{Service: service, Jobs: jobsSvc, Perms: perms, Audit: auditSvc}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/reports", func(r chi.Router) {
		r.With(middleware.RequirePermission(auth.PermReportsRead, h.Perms)).Get("/reviews/{employeeID}", h.handleEmployeeReview)
		r.With(middleware.RequirePermission(auth.PermReportsExport, h.Perms)).Get("/reviews/{employeeID}/export", h.handleExportReview)
		r.With(middleware.RequirePermission(auth.PermReportsRead, h.Perms)).Get("/dashboard/admin", h.handleAdminDashboard)
		r.With(middleware.RequirePermission(auth.PermReportsRead, h.Perms)).Get("/dashboard/employee", h.handleEmployeeDashboard)
	})
	r.Route("/jobs", func(r chi.Router) {
		r.With(middleware.RequirePermission(auth.PermSystemAdmin, h.Perms)).Get("/runs", h.handleJobRuns)
		r.With(middleware.RequirePermission(auth.PermSystemAdmin, h.Perms)).Post("/overdue-sweep/run", h.handleRunOverdueSweep)
	})
}

// reviewPeriod defaults to the current month so dashboards work without an
// explicit period parameter.
func reviewPeriod(r *http.Request) string {
	period := r.URL.Query().Get("period")
	if period == "" {
		period = time.Now().Format("2006-01")
	}
	return period
}

func (h *Handler) canViewEmployee(user auth.UserContext, employeeID string) bool {
	if user.RoleName == auth.RoleAdmin {
		return true
	}
	return user.EmployeeID != "" && user.EmployeeID == employeeID
}

func (h *Handler) handleEmployeeReview(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.GetUser(r.Context())
	if !ok {
		api.Fail(w, http.StatusUnauthorized, "unauthorized", "authentication required", middleware.GetRequestID(r.Context()))
		return
	}

	employeeID := chi.URLParam(r, "employeeID")
	if !h.canViewEmployee(user, employeeID) {
		api.Fail(w, http.StatusForbidden, "forbidden", "not allowed", middleware.GetRequestID(r.Context()))
		return
	}

	review, err := h.Service.EmployeeReview(r.Context(), user.TenantID, employeeID, reviewPeriod(r))
	if err != nil {
		api.Fail(w, http.StatusInternalServerError, "review_failed", "failed to build review", middleware.GetRequestID(r.Context()))
		return
	}
	api.Success(w, review, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleExportReview(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.GetUser(r.Context())
	if !ok {
		api.Fail(w, http.StatusUnauthorized, "unauthorized", "authentication required", middleware.GetRequestID(r.Context()))
		return
	}

	employeeID := chi.URLParam(r, "employeeID")
	if !h.canViewEmployee(user, employeeID) {
		api.Fail(w, http.StatusForbidden, "forbidden", "not allowed", middleware.GetRequestID(r.Context()))
		return
	}

	period := reviewPeriod(r)
	filePath, err := h.Service.GenerateReviewPDF(r.Context(), user.TenantID, employeeID, period)
	if err != nil {
		api.Fail(w, http.StatusInternalServerError, "review_export_failed", "failed to generate review pdf", middleware.GetRequestID(r.Context()))
		return
	}

	if err := h.Audit.Record(r.Context(), user.TenantID, user.UserID, audit.ActionExport, audit.EntityReport, employeeID, middleware.GetRequestID(r.Context()), shared.ClientIP(r), nil, map[string]any{
		"period": period,
		"format": "pdf",
	}); err != nil {
		slog.Warn("audit review export failed", "err", err)
	}

	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", "attachment; filename=review-"+employeeID+"-"+period+".pdf")
	http.ServeFile(w, r, filePath)
}

func (h *Handler) handleAdminDashboard(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.GetUser(r.Context())
	if !ok {
		api.Fail(w, http.StatusUnauthorized, "unauthorized", "authentication required", middleware.GetRequestID(r.Context()))
		return
	}
	if user.RoleName != auth.RoleAdmin {
		api.Fail(w, http.StatusForbidden, "forbidden", "admin role required", middleware.GetRequestID(r.Context()))
		return
	}

	dashboard, err := h.Service.AdminDashboard(r.Context(), user.TenantID)
	if err != nil {
		api.Fail(w, http.StatusInternalServerError, "dashboard_failed", "failed to build dashboard", middleware.GetRequestID(r.Context()))
		return
	}
	api.Success(w, dashboard, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleEmployeeDashboard(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.GetUser(r.Context())
	if !ok {
		api.Fail(w, http.StatusUnauthorized, "unauthorized", "authentication required", middleware.GetRequestID(r.Context()))
		return
	}

	employeeID := user.EmployeeID
	if employeeID == "" {
		if id, err := h.Service.EmployeeIDByUserID(r.Context(), user.TenantID, user.UserID); err == nil {
			employeeID = id
		}
	}
	if employeeID == "" {
		api.Fail(w, http.StatusNotFound, "not_found", "no employee profile for this user", middleware.GetRequestID(r.Context()))
		return
	}

	dashboard, err := h.Service.EmployeeDashboard(r.Context(), user.TenantID, employeeID, reviewPeriod(r))
	if err != nil {
		api.Fail(w, http.StatusInternalServerError, "dashboard_failed", "failed to build dashboard", middleware.GetRequestID(r.Context()))
		return
	}
	api.Success(w, dashboard, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleJobRuns(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.GetUser(r.Context())
	if !ok {
		api.Fail(w, http.StatusUnauthorized, "unauthorized", "authentication required", middleware.GetRequestID(r.Context()))
		return
	}

	page := shared.ParsePagination(r, 50, 200)
	runs, err := h.Service.JobRuns(r.Context(), user.TenantID, r.URL.Query().Get("jobType"), page.Limit, page.Offset)
	if err != nil {
		api.Fail(w, http.StatusInternalServerError, "job_runs_failed", "failed to list job runs", middleware.GetRequestID(r.Context()))
		return
	}
	api.Success(w, runs, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleRunOverdueSweep(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.GetUser(r.Context())
	if !ok {
		api.Fail(w, http.StatusUnauthorized, "unauthorized", "authentication required", middleware.GetRequestID(r.Context()))
		return
	}

	detail, err := h.Jobs.RunNow(r.Context(), jobs.JobOverdueSweep, user.TenantID, func(ctx context.Context) (any, error) {
		return h.Jobs.OverdueSweep(ctx, user.TenantID, time.Now())
	})
	if err != nil {
		api.Fail(w, http.StatusInternalServerError, "sweep_failed", "overdue sweep failed", middleware.GetRequestID(r.Context()))
		return
	}
	api.Success(w, detail, middleware.GetRequestID(r.Context()))
}
