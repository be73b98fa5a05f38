package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"

	"noirvision-backend/internal/handlers"
	"noirvision-backend/internal/logging"
	"noirvision-backend/internal/middleware"
	"noirvision-backend/internal/websocket"
)

func New(
	log logrus.FieldLogger,
	verifier middleware.Verifier,
	healthHandler *handlers.HealthHandler,
	videoHandler *handlers.VideoHandler,
	analyzeHandler *handlers.AnalyzeHandler,
	userHandler *handlers.UserHandler,
	wsHub *websocket.Hub,
	submitLimiter *middleware.RateLimiter,
	frontendURL string,
) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestID)
	r.Use(logging.RequestLogger(log))
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.CORS(frontendURL))

	r.Get("/health", healthHandler.Health)

	r.Route("/api", func(r chi.Router) {

		// ──── Video Pipeline ────
		r.Route("/videos", func(r chi.Router) {
			r.With(submitLimiter.Middleware).Post("/analyze", videoHandler.Analyze)
			r.Get("/analyze/{job_id}", videoHandler.GetJob)
			r.Get("/analyze/{job_id}/ws", wsHub.HandleJobStream)
			r.Get("/{video_id}/evidence", videoHandler.GetEvidence)
		})

		// ──── Claim Analysis ────
		r.With(submitLimiter.Middleware).Post("/analyze/from_evidence", analyzeHandler.FromEvidence)

		// ──── User Profile & Incidents ────
		r.Route("/users/me", func(r chi.Router) {
			r.Use(middleware.RequireAuth(verifier))
			r.Get("/profile", userHandler.GetProfile)
			r.Put("/profile", userHandler.PutProfile)
			r.Post("/incidents", userHandler.CreateIncident)
			r.Get("/incidents", userHandler.ListIncidents)
			r.Get("/incidents/{incident_id}", userHandler.GetIncident)
			r.Patch("/incidents/{incident_id}", userHandler.UpdateIncident)
		})
	})

	return r
}
