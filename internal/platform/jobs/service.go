package jobs

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"kpihub/internal/domain/kpi"
	"kpihub/internal/domain/notifications"
	"kpihub/internal/platform/config"
)

const JobOverdueSweep = "kpi_overdue_sweep"

type Service struct {
	DB       *pgxpool.Pool
	Cfg      config.Config
	Kpi      *kpi.Store
	Notifier *notifications.Service
	queue    chan job
}

type job struct {
	Type     string
	TenantID string
	Run      func(context.Context) (any, error)
}

func New(db *pgxpool.Pool, cfg config.Config, kpiStore *kpi.Store, notifier *notifications.Service) *Service {
	return &Service{
		DB:       db,
		Cfg:      cfg,
		Kpi:      kpiStore,
		Notifier: notifier,
		queue:    make(chan job, 128),
	}
}

func (s *Service) Start(ctx context.Context) {
	go s.worker(ctx)
	if s.Cfg.OverdueSweepInterval > 0 {
		go s.scheduleOverdueSweep(ctx, s.Cfg.OverdueSweepInterval)
	}
}

func (s *Service) Enqueue(jobType, tenantID string, run func(context.Context) (any, error)) {
	select {
	case s.queue <- job{Type: jobType, TenantID: tenantID, Run: run}:
	default:
		slog.Warn("job queue full", "jobType", jobType, "tenantId", tenantID)
	}
}

func (s *Service) RunNow(ctx context.Context, jobType, tenantID string, run func(context.Context) (any, error)) (any, error) {
	return s.runJob(ctx, job{Type: jobType, TenantID: tenantID, Run: run})
}

func (s *Service) worker(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case j := <-s.queue:
			if _, err := s.runJob(ctx, j); err != nil {
				slog.Warn("job run failed", "jobType", j.Type, "tenantId", j.TenantID, "err", err)
			}
		}
	}
}

func (s *Service) runJob(ctx context.Context, j job) (any, error) {
	runID := ""
	if err := s.DB.QueryRow(ctx, `
    INSERT INTO job_runs (tenant_id, job_type, status)
    VALUES ($1,$2,$3)
    RETURNING id
  `, j.TenantID, j.Type, "running").Scan(&runID); err != nil {
		slog.Warn("job run insert failed", "err", err)
	}

	details, err := j.Run(ctx)
	status := "completed"
	if err != nil {
		status = "failed"
	}
	detailJSON, marshalErr := json.Marshal(details)
	if marshalErr != nil {
		slog.Warn("job detail marshal failed", "err", marshalErr)
		detailJSON = []byte("{}")
	}
	if runID != "" {
		if _, updErr := s.DB.Exec(ctx, `
      UPDATE job_runs
      SET status = $1, detail = $2, finished_at = now()
      WHERE id = $3
    `, status, detailJSON, runID); updErr != nil {
			slog.Warn("job run update failed", "err", updErr)
		}
	}
	return details, err
}

// OverdueSweep notifies assignees of records that passed their end date
// without approval. Each record is notified at most once; the marker write
// happens after the notification so a crash in between re-notifies rather
// than silently dropping.
func (s *Service) OverdueSweep(ctx context.Context, tenantID string, now time.Time) (any, error) {
	records, err := s.Kpi.OverdueRecords(ctx, tenantID, now)
	if err != nil {
		return nil, err
	}

	notified := 0
	for _, rec := range records {
		kpiName := rec.KpiID
		if def, err := s.Kpi.GetDefinition(ctx, tenantID, rec.KpiID); err == nil {
			kpiName = def.Name
		}
		userID, err := s.Kpi.EmployeeUserID(ctx, tenantID, rec.EmployeeID)
		if err != nil || userID == "" {
			continue
		}
		if err := s.Notifier.Create(ctx, tenantID, userID, notifications.KpiOverdue(kpiName, rec.Period, rec.ID)); err != nil {
			slog.Warn("overdue notification failed", "recordId", rec.ID, "err", err)
			continue
		}
		if err := s.Kpi.MarkOverdueNotified(ctx, tenantID, rec.ID, now); err != nil {
			slog.Warn("overdue marker failed", "recordId", rec.ID, "err", err)
			continue
		}
		notified++
	}

	return map[string]any{"candidates": len(records), "notified": notified}, nil
}

func (s *Service) scheduleOverdueSweep(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			tenants, err := s.listTenants(ctx)
			if err != nil {
				slog.Warn("overdue scheduler tenant lookup failed", "err", err)
				continue
			}
			for _, tenantID := range tenants {
				tenant := tenantID
				s.Enqueue(JobOverdueSweep, tenant, func(ctx context.Context) (any, error) {
					return s.OverdueSweep(ctx, tenant, time.Now())
				})
			}
		}
	}
}

func (s *Service) listTenants(ctx context.Context) ([]string, error) {
	rows, err := s.DB.Query(ctx, `SELECT id FROM tenants`)
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
	return ids, nil
}
