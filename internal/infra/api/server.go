// File: internal/infra/api/server.go
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"invest-research-backend/internal/config"
	"invest-research-backend/internal/infra/redis"
	"invest-research-backend/internal/usecase"
)

// Server exposes the research API: chat sessions, interactive messages and
// analysis reports.
type Server struct {
	sessionUC  usecase.SessionUseCase
	analysisUC usecase.AnalysisUseCase
	auth       *AuthManager
	limiter    *redis.RateLimiter
	aiLimit    int
	aiWindow   time.Duration
	log        *zerolog.Logger
}

func NewServer(
	sessionUC usecase.SessionUseCase,
	analysisUC usecase.AnalysisUseCase,
	cfg config.ServerConfig,
	limiter *redis.RateLimiter,
	logger *zerolog.Logger,
) *Server {
	return &Server{
		sessionUC:  sessionUC,
		analysisUC: analysisUC,
		auth:       NewAuthManager(cfg.JWTSecret),
		limiter:    limiter,
		aiLimit:    cfg.AIRateLimit,
		aiWindow:   cfg.AIRateWindow,
		log:        logger,
	}
}

// Router builds the full route tree. Kept separate from ListenAndServe so
// tests can mount it on httptest.Server.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(TraceID())
	r.Use(Recover(s.log))
	r.Use(RequestLog(s.log))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(s.RequireAuth)

		r.Route("/sessions", func(r chi.Router) {
			r.Get("/", s.handleListSessions)
			r.Post("/", s.handleCreateSession)
			r.Post("/get-or-create", s.handleGetOrCreateSession)
			r.Get("/{id}", s.handleGetSession)
			r.Put("/{id}/title", s.handleUpdateTitle)
			r.Delete("/{id}", s.handleDeleteSession)
			r.With(s.RateLimitAI).Post("/{id}/messages", s.handleSendMessage)
			r.With(s.RateLimitAI).Post("/{id}/generate-title", s.handleGenerateTitle)
		})

		r.Route("/analysis", func(r chi.Router) {
			r.With(s.RateLimitAI).Post("/", s.handleCreateAnalysis)
			r.Get("/jobs/{id}", s.handleGetAnalysisJob)
		})
	})

	return r
}
