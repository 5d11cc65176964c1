package server

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"kpihub/internal/domain/audit"
	"kpihub/internal/domain/auth"
	"kpihub/internal/domain/core"
	"kpihub/internal/domain/kpi"
	"kpihub/internal/domain/notifications"
	"kpihub/internal/domain/reports"
	"kpihub/internal/platform/config"
	cryptoutil "kpihub/internal/platform/crypto"
	"kpihub/internal/platform/db"
	"kpihub/internal/platform/email"
	"kpihub/internal/platform/jobs"
	"kpihub/internal/platform/metrics"
	audithandler "kpihub/internal/transport/http/handlers/audit"
	authhandler "kpihub/internal/transport/http/handlers/auth"
	corehandler "kpihub/internal/transport/http/handlers/core"
	kpihandler "kpihub/internal/transport/http/handlers/kpi"
	notificationshandler "kpihub/internal/transport/http/handlers/notifications"
	reportshandler "kpihub/internal/transport/http/handlers/reports"
	"kpihub/internal/transport/http/api"
	"kpihub/internal/transport/http/middleware"
)

type App struct {
	Config  config.Config
	DB      *pgxpool.Pool
	Router  http.Handler
	Jobs    *jobs.Service
	Metrics *metrics.Collector
}

// New wires the full application without starting listeners, so tests can
// drive the router directly.
func New(ctx context.Context, cfg config.Config, pool *pgxpool.Pool) (*App, error) {
	cryptoSvc, err := cryptoutil.New(cfg.DataEncryptionKey)
	if err != nil {
		return nil, err
	}

	coreStore := core.NewStore(pool, cryptoSvc)
	coreSvc := core.NewService(coreStore)
	kpiStore := kpi.NewStore(pool)
	kpiSvc := kpi.NewService(kpiStore)
	auditSvc := audit.New(pool)
	notifySvc := notifications.New(notifications.NewStore(pool), email.New(cfg))
	notifySvc.DefaultFrom = cfg.EmailFrom
	reportsSvc := reports.NewService(reports.NewStore(pool), cfg.ReportDir)
	jobsSvc := jobs.New(pool, cfg, kpiStore, notifySvc)
	idempotency := middleware.NewIdempotencyStore(pool)

	var collector *metrics.Collector
	if cfg.MetricsEnabled {
		collector = metrics.New()
	}

	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.Logger(collector))
	router.Use(middleware.Recoverer)
	router.Use(middleware.SecureHeaders(cfg.Environment == "production"))
	router.Use(middleware.BodyLimit(cfg.MaxBodyBytes))
	router.Use(middleware.Auth(cfg.JWTSecret))
	router.Use(middleware.RateLimit(cfg.RateLimitPerMinute, time.Minute))
	router.Use(middleware.SensitiveMutationRateLimit(cfg.RateLimitPerMinute, time.Minute))

	router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	router.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := pool.Ping(ctx); err != nil {
			http.Error(w, "db not ready", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	})

	router.Route("/api/v1", func(r chi.Router) {
		authHandler := authhandler.NewHandler(auth.NewService(auth.NewStore(pool)), cfg.JWTSecret, cryptoSvc)
		r.Post("/auth/login", authHandler.HandleLogin)
		r.Post("/auth/logout", authHandler.HandleLogout)
		r.Post("/auth/refresh", authHandler.HandleRefresh)
		r.Post("/auth/request-reset", authHandler.HandleRequestReset)
		r.Post("/auth/reset", authHandler.HandleResetPassword)
		r.Post("/auth/mfa/setup", authHandler.HandleMFASetup)
		r.Post("/auth/mfa/enable", authHandler.HandleMFAEnable)
		r.Post("/auth/mfa/disable", authHandler.HandleMFADisable)

		corehandler.NewHandler(coreSvc, coreSvc, auditSvc).RegisterRoutes(r)
		kpihandler.NewHandler(kpiSvc, coreSvc, coreSvc, notifySvc, auditSvc, idempotency).RegisterRoutes(r)
		notificationshandler.NewHandler(notifySvc).RegisterRoutes(r)
		reportshandler.NewHandler(reportsSvc, jobsSvc, coreSvc, auditSvc).RegisterRoutes(r)
		audithandler.NewHandler(auditSvc, coreSvc).RegisterRoutes(r)

		r.With(middleware.RequirePermission(auth.PermSystemAdmin, coreSvc)).Get("/admin/metrics", func(w http.ResponseWriter, r *http.Request) {
			if collector == nil {
				api.Fail(w, http.StatusNotFound, "metrics_disabled", "metrics collection is disabled", middleware.GetRequestID(r.Context()))
				return
			}
			api.Success(w, collector.Snapshot(), middleware.GetRequestID(r.Context()))
		})
	})

	router.Mount("/", spaHandler{staticPath: cfg.FrontendDir, indexPath: "index.html"})

	return &App{Config: cfg, DB: pool, Router: router, Jobs: jobsSvc, Metrics: collector}, nil
}

func Run() {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}

	ctx := context.Background()
	pool, err := db.Connect(ctx, cfg)
	if err != nil {
		log.Fatalf("db connect failed: %v", err)
	}
	defer pool.Close()

	if cfg.RunMigrations {
		if err := db.Migrate(ctx, pool, "migrations"); err != nil {
			log.Fatalf("migrations failed: %v", err)
		}
	}
	if cfg.RunSeed {
		if err := db.Seed(ctx, pool, cfg); err != nil {
			log.Fatalf("seed failed: %v", err)
		}
	}

	app, err := New(ctx, cfg, pool)
	if err != nil {
		log.Fatalf("app wiring failed: %v", err)
	}
	app.Jobs.Start(ctx)

	slog.Info("kpihub server listening", "addr", cfg.Addr, "env", cfg.Environment)
	if err := http.ListenAndServe(cfg.Addr, app.Router); err != nil {
		log.Fatalf("server failed: %v", err)
	}
}

type spaHandler struct {
	staticPath string
	indexPath  string
}

func (h spaHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}

	path := filepath.Join(h.staticPath, r.URL.Path)
	_, err := os.Stat(path)
	if err == nil {
		http.FileServer(http.Dir(h.staticPath)).ServeHTTP(w, r)
		return
	}

	if os.IsNotExist(err) {
		http.ServeFile(w, r, filepath.Join(h.staticPath, h.indexPath))
		return
	}

	http.NotFound(w, r)
}
