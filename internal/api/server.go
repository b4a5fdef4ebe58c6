package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/accioltd/mdchunk/internal/config"
	"github.com/accioltd/mdchunk/internal/enrich"
	"github.com/accioltd/mdchunk/internal/pipeline"
)

// Server is the HTTP API server for mdchunk.
type Server struct {
	router       chi.Router
	orchestrator *pipeline.Orchestrator
	stats        *enrich.Stats
	log          *slog.Logger
	cfg          config.Config
}

// NewServer creates and configures the HTTP server. stats may be nil.
func NewServer(orch *pipeline.Orchestrator, stats *enrich.Stats, log *slog.Logger, cfg config.Config) *Server {
	s := &Server{
		orchestrator: orch,
		stats:        stats,
		log:          log,
		cfg:          cfg,
	}
	s.setupRoutes()
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) setupRoutes() {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(RequestLogger(s.log))

	// Public endpoints.
	r.Get("/health", s.handleHealth)

	// Authenticated endpoints.
	r.Group(func(r chi.Router) {
		r.Use(AuthMiddleware(s.cfg.APIKey, s.log))

		r.Post("/api/chunk", s.handleChunk)
		r.Get("/api/chunk/{jobID}/status", s.handleChunkStatus)
		r.Get("/api/chunk/{jobID}/records", s.handleChunkRecords)
		r.Get("/api/stats/llm", s.handleLLMStats)

		if s.orchestrator.PathstoreClient() != nil {
			r.Get("/api/documents", s.handleListDocuments)
			r.Get("/api/documents/{docID}", s.handleGetDocument)
			r.Delete("/api/documents/{docID}", s.handleDeleteDocument)
		}
	})

	s.router = r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":      "ok",
		"queue_depth": s.orchestrator.QueueDepth(),
	})
}
