package gateway

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/kilang-desa-murni/salesintel/pkg/logger"
	"github.com/kilang-desa-murni/salesintel/pkg/middleware"
)

// NewRouter wires the gateway routes. rateLimiter guards the
// ingestion-control endpoints against enqueue floods; nil disables rate
// limiting (tests, single-caller deployments).
func NewRouter(h *Handler, rateLimiter middleware.RateLimiter, limitCfg middleware.RateLimitConfig, log *logger.Logger) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Recover(log))
	r.Use(middleware.Logger(log))
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/sync", func(r chi.Router) {
			if rateLimiter != nil {
				r.Use(middleware.RateLimit(rateLimiter, limitCfg))
			}
			r.Post("/jobs", h.EnqueueSync)
			r.Get("/jobs", h.ListJobs)
			r.Get("/jobs/{jobID}", h.GetJob)
			r.Get("/schedules", h.ListSchedules)
			r.Put("/schedules", h.PutSchedule)
			r.Delete("/jobs/{jobID}", h.CancelJob)
			r.Get("/history", h.ListSyncHistory)
			r.Post("/batches/{batchID}/replay", h.ReplayBatch)
			r.Get("/worker/health", h.WorkerHealth)
			r.Post("/test", h.TestSource)
			r.Post("/logs/prune", h.PruneSyncLogs)
		})

		r.Route("/entities", func(r chi.Router) {
			r.Get("/{entityType}", h.QueryEntities)
			r.Post("/{entityType}", h.UpsertEntity)
			r.Get("/{entityType}/{id}", h.GetEntity)
			r.Delete("/{entityType}/{id}", h.DeleteEntity)
			r.Get("/{entityType}/{id}/duplicates", h.FindDuplicates)
			r.Post("/{entityType}/{id}/merge", h.MergeEntities)
			r.Post("/opportunity/{id}/stage", h.ChangeOpportunityStage)
		})

		r.Get("/dashboard", h.GetDashboard)
		r.Get("/feed", h.GetActivityFeed)
		r.Get("/kpi-trend", h.GetKPITrend)
		r.Get("/audit", h.AuditTrail)
		r.Post("/integrity", h.VerifyIntegrity)

		r.Put("/mappings/{integration}/{entityType}", h.PutFieldMappings)
	})

	return r
}
