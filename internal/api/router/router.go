package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/clinicflow/insight-engine/internal/alerts"
	"github.com/clinicflow/insight-engine/internal/docjobs"
	httpmiddleware "github.com/clinicflow/insight-engine/internal/http/middleware"
	"github.com/clinicflow/insight-engine/internal/insight"
	"github.com/clinicflow/insight-engine/internal/recovery"
	"github.com/clinicflow/insight-engine/pkg/logging"
)

// Config holds router configuration
type Config struct {
	Logger            *logging.Logger
	InsightHandler    *insight.Handler
	RecoveryHandler   *recovery.Handler
	JobsHandler       *docjobs.Handler
	AlertSettings     *alerts.SettingsHandler
	InsightsDashboard *insight.DashboardHandler
	MetricsHandler    http.Handler

	AdminAuthSecret    string
	IngestToken        string
	CORSAllowedOrigins []string
	RateLimitPerSec    float64
	RateLimitBurst     int
}

// New creates a new Chi router with all routes configured
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))
	if len(cfg.CORSAllowedOrigins) > 0 {
		r.Use(httpmiddleware.CORS(cfg.CORSAllowedOrigins))
	}
	if cfg.Logger != nil {
		r.Use(httpmiddleware.RequestLogger(cfg.Logger))
	}
	if cfg.RateLimitPerSec > 0 && cfg.RateLimitBurst > 0 {
		r.Use(httpmiddleware.RateLimit(cfg.RateLimitPerSec, cfg.RateLimitBurst))
	}

	// Public endpoints (health checks, metrics)
	r.Get("/healthz", healthz)
	if cfg.MetricsHandler != nil {
		r.Handle("/metrics", cfg.MetricsHandler)
	}

	// Prediction and document API
	r.Route("/api/v1", func(api chi.Router) {
		if cfg.InsightHandler != nil {
			api.Route("/predictions", func(p chi.Router) {
				p.Post("/no-show", cfg.InsightHandler.PredictNoShow)
				p.Post("/authorization", cfg.InsightHandler.RecommendAuthorization)
				p.Post("/schedule", cfg.InsightHandler.OptimizeSchedule)
			})
		}
		api.Route("/documents", func(docs chi.Router) {
			if cfg.InsightHandler != nil {
				docs.Post("/{documentID}/extract", cfg.InsightHandler.ExtractDocument)
			}
			if cfg.RecoveryHandler != nil {
				docs.Post("/exceptions", cfg.RecoveryHandler.RouteException)
			}
			if cfg.JobsHandler != nil {
				docs.Route("/jobs", func(jobs chi.Router) {
					jobs.With(requireIngestToken(cfg.IngestToken)).Post("/", cfg.JobsHandler.Enqueue)
					jobs.Get("/{jobID}", cfg.JobsHandler.GetJob)
				})
			}
		})
	})

	// Admin routes (protected by HMAC JWT)
	if cfg.AdminAuthSecret != "" {
		r.Route("/admin", func(admin chi.Router) {
			admin.Use(httpmiddleware.AdminJWT(cfg.AdminAuthSecret))
			if cfg.RecoveryHandler != nil {
				admin.Get("/reviews", cfg.RecoveryHandler.ListReviews)
				admin.Get("/reviews/stats", cfg.RecoveryHandler.ReviewStats)
				admin.Post("/reviews/{reviewID}/resolve", cfg.RecoveryHandler.ResolveReview)
			}
			if cfg.AlertSettings != nil {
				admin.Get("/clinics/{clinicID}/alerts", cfg.AlertSettings.GetSettings)
				admin.Put("/clinics/{clinicID}/alerts", cfg.AlertSettings.UpdateSettings)
			}
			if cfg.InsightsDashboard != nil {
				admin.Get("/insights", cfg.InsightsDashboard.GetInsights)
			}
		})
	}

	return r
}

func healthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}
