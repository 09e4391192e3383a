package main

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/afero"

	jwttoken "kycflow/internal/jwt_token"
	"kycflow/internal/kyc/blob"
	"kycflow/internal/kyc/handler"
	kycmetrics "kycflow/internal/kyc/metrics"
	"kycflow/internal/kyc/service"
	"kycflow/internal/kyc/store"
	"kycflow/internal/platform/config"
	"kycflow/internal/platform/httpserver"
	"kycflow/internal/platform/logger"
	"kycflow/internal/platform/metrics"
	"kycflow/internal/platform/postgres"
	"kycflow/internal/platform/redis"
	"kycflow/internal/ratelimit"
	"kycflow/pkg/platform/audit"
	auditpublisher "kycflow/pkg/platform/audit/publisher"
	auditmemory "kycflow/pkg/platform/audit/store/memory"
	auditpostgres "kycflow/pkg/platform/audit/store/postgres"
	"kycflow/pkg/platform/httputil"
	"kycflow/pkg/platform/middleware/admin"
	auth "kycflow/pkg/platform/middleware/auth"
	"kycflow/pkg/platform/middleware/metadata"
	request "kycflow/pkg/platform/middleware/request"
	"kycflow/pkg/platform/middleware/requesttime"
)

const (
	shutdownTimeout  = 10 * time.Second
	auditAsyncBuffer = 1024
)

// main wires the KYC draft service: stores, blob storage, audit and the HTTP
// router. Business logic lives in internal/kyc.
func main() {
	cfg := config.FromEnv()
	log := logger.New(cfg.LogLevel)

	if err := run(cfg, log); err != nil {
		log.Error("server exited", "error", err)
		os.Exit(1)
	}
}

type backends struct {
	drafts  service.DraftStore
	auditor *auditpublisher.Publisher
	limits  ratelimit.Store
	checks  map[string]func(context.Context) error
	closers []func()
}

func (b *backends) close() {
	for i := len(b.closers) - 1; i >= 0; i-- {
		b.closers[i]()
	}
}

func run(cfg config.Server, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	kycMetrics := kycmetrics.New(reg)

	b, err := openBackends(ctx, cfg, log, kycMetrics)
	if err != nil {
		return err
	}
	defer b.close()

	blobs := blob.New(afero.NewOsFs(), cfg.Upload.Dir)
	svc, err := service.New(b.drafts, blobs,
		service.WithLogger(log),
		service.WithAuditPublisher(b.auditor),
		service.WithMetrics(kycMetrics),
		service.WithPublicBaseURL(cfg.PublicBaseURL),
		service.WithUploadLimits(cfg.Upload.MaxBytes, cfg.Upload.AllowedTypes),
	)
	if err != nil {
		return err
	}

	jwtService := jwttoken.NewJWTService(cfg.JWTSigningKey, cfg.JWTIssuer, cfg.JWTAudience)
	limiter := ratelimit.New(b.limits, cfg.RateLimit.Writes, cfg.RateLimit.Window, ratelimit.WithLogger(log))
	router := newRouter(cfg, log, reg, handler.New(svc, log), jwtService, limiter, blobs, b.checks)
	srv := httpserver.New(cfg.Addr, router)

	errCh := make(chan error, 1)
	go func() {
		log.Info("starting kycflow", "addr", cfg.Addr, "public_url", cfg.PublicBaseURL)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// openBackends selects Postgres when DATABASE_URL is set and the in-memory
// stores otherwise. Redis fronts whichever draft store is chosen.
func openBackends(ctx context.Context, cfg config.Server, log *slog.Logger, m *kycmetrics.Metrics) (*backends, error) {
	b := &backends{checks: map[string]func(context.Context) error{}}

	db, err := postgres.Open(ctx, cfg.Postgres)
	if err != nil {
		return nil, err
	}

	var drafts store.Backend
	var auditStore audit.Store
	if db != nil {
		b.closers = append(b.closers, func() { _ = db.Close() })
		if err := migrate(ctx, db); err != nil {
			b.close()
			return nil, err
		}
		drafts = store.NewPostgres(db)
		auditStore = auditpostgres.New(db)
		// Synchronous so audit rows commit with the draft transaction.
		b.auditor = auditpublisher.NewPublisher(auditStore, auditpublisher.WithLogger(log))
		b.checks["postgres"] = db.PingContext
		log.Info("using postgres draft store")
	} else {
		drafts = store.NewInMemory()
		auditStore = auditmemory.NewInMemoryStore()
		b.auditor = auditpublisher.NewPublisher(auditStore,
			auditpublisher.WithAsyncBuffer(auditAsyncBuffer),
			auditpublisher.WithLogger(log),
		)
		log.Warn("DATABASE_URL not set, drafts are kept in memory")
	}
	b.closers = append(b.closers, b.auditor.Close)

	rc, err := redis.New(ctx, cfg.Redis)
	if err != nil {
		b.close()
		return nil, err
	}
	if rc != nil {
		b.closers = append(b.closers, func() { _ = rc.Close() })
		b.checks["redis"] = rc.Health
		b.drafts = store.NewCached(drafts, rc.Client, cfg.Redis.DraftTTL,
			store.WithCacheLogger(log),
			store.WithCacheMetrics(m),
		)
		b.limits = ratelimit.NewRedis(rc.Client)
		log.Info("draft cache enabled", "ttl", cfg.Redis.DraftTTL)
	} else {
		b.drafts = drafts
		b.limits = ratelimit.NewInMemory()
	}
	return b, nil
}

func migrate(ctx context.Context, db *sql.DB) error {
	if err := store.Migrate(ctx, db); err != nil {
		return err
	}
	return auditpostgres.Migrate(ctx, db)
}

func newRouter(
	cfg config.Server,
	log *slog.Logger,
	reg *prometheus.Registry,
	h *handler.Handler,
	jwtService *jwttoken.JWTService,
	limiter *ratelimit.Limiter,
	blobs *blob.Store,
	checks map[string]func(context.Context) error,
) http.Handler {
	r := chi.NewRouter()
	r.Use(request.RequestID)
	r.Use(metadata.ClientMetadata)
	r.Use(requesttime.Middleware)
	r.Use(request.Logger(log))
	r.Use(request.Recovery(log))
	r.Use(metrics.New(reg).Latency)

	r.Get("/health", healthHandler(checks))
	r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	r.Mount("/uploads", http.StripPrefix("/uploads", blobs.Handler()))

	r.Group(func(r chi.Router) {
		r.Use(auth.RequireAuth(jwttoken.NewJWTServiceAdapter(jwtService), log))
		r.Use(limiter.Writes)
		h.Register(r)
	})

	if cfg.AdminToken == "" {
		log.Warn("KYCFLOW_ADMIN_TOKEN not set, review endpoints disabled")
		return r
	}
	r.Group(func(r chi.Router) {
		r.Use(admin.RequireAdminToken(cfg.AdminToken, log))
		h.RegisterAdmin(r)
	})
	return r
}

func healthHandler(checks map[string]func(context.Context) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		status := map[string]string{"status": "ok"}
		code := http.StatusOK
		for name, check := range checks {
			if err := check(ctx); err != nil {
				status[name] = "unavailable"
				status["status"] = "degraded"
				code = http.StatusServiceUnavailable
				continue
			}
			status[name] = "ok"
		}
		httputil.WriteJSON(w, code, status)
	}
}
