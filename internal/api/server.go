package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/entigraph/entigraph/internal/config"
	"github.com/entigraph/entigraph/internal/consolidation"
	"github.com/entigraph/entigraph/internal/dispatcher"
	"github.com/entigraph/entigraph/internal/kg"
	"github.com/entigraph/entigraph/internal/learning"
	"github.com/entigraph/entigraph/internal/metrics"
	"github.com/entigraph/entigraph/internal/orchestrator"
	"github.com/entigraph/entigraph/internal/progress"
)

// Server wires HTTP handlers to the orchestrator, the consolidation
// engine, and the graph store.
type Server struct {
	router   chi.Router
	store    kg.Store
	orch     *orchestrator.Orchestrator
	engine   *consolidation.Engine
	scorer   *learning.Scorer
	dispatch *dispatcher.Dispatcher
	recent   *progress.Ring
	cfg      config.Config
	logger   *zap.Logger
}

// NewServer constructs a Server with middleware and routes. dispatch and
// recent may be nil; the async crawl and progress endpoints then return 503.
func NewServer(
	store kg.Store,
	orch *orchestrator.Orchestrator,
	engine *consolidation.Engine,
	scorer *learning.Scorer,
	dispatch *dispatcher.Dispatcher,
	recent *progress.Ring,
	cfg config.Config,
	logger *zap.Logger,
) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		store:    store,
		orch:     orch,
		engine:   engine,
		scorer:   scorer,
		dispatch: dispatch,
		recent:   recent,
		cfg:      cfg,
		logger:   logger,
	}
	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoverMiddleware)
	r.Use(metrics.Middleware)
	r.Use(timeoutMiddleware(5 * time.Minute))
	if cfg.Auth.Enabled {
		r.Use(apiKeyMiddleware(cfg.Auth.APIKey))
	}

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Post("/crawl", s.runCrawlCycle)
		r.Post("/crawl/async", s.enqueueCrawlCycle)
		r.Get("/crawl/async/{request_id}", s.crawlCycleStatus)
		r.Get("/progress", s.recentProgress)
		r.Route("/entities", func(r chi.Router) {
			r.Get("/", s.searchEntities)
			r.Route("/{entity_id}", func(r chi.Router) {
				r.Get("/", s.getEntity)
				r.Get("/gaps", s.getGapReport)
			})
		})
		r.Route("/consolidation", func(r chi.Router) {
			r.Post("/merge", s.mergeEntities)
			r.Post("/dedupe", s.deduplicateEntities)
			r.Post("/validate", s.validateRelationships)
		})
		r.Route("/learning", func(r chi.Router) {
			r.Get("/domains", s.domainStats)
			r.Get("/patterns", s.suggestedPatterns)
		})
	})

	s.router = r
	return s
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(s.logger, w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, r *http.Request) {
	// The store is the only hard downstream; a cheap list proves liveness.
	if _, err := s.store.ListEntities(r.Context(), "", 1, 0); err != nil {
		writeError(s.logger, w, http.StatusServiceUnavailable, "store not ready")
		return
	}
	writeJSON(s.logger, w, http.StatusOK, map[string]string{"status": "ready"})
}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := uuid.NewString()
		w.Header().Set("X-Request-ID", reqID)
		next.ServeHTTP(w, r)
	})
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(ww, r)
		s.logger.Info("request completed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.status),
			zap.Int64("duration_ms", time.Since(start).Milliseconds()),
		)
	})
}

func (s *Server) recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				s.logger.Error("panic recovered", zap.Any("error", rec))
				writeError(s.logger, w, http.StatusInternalServerError, "internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func timeoutMiddleware(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.TimeoutHandler(next, d, "request timed out")
	}
}

func apiKeyMiddleware(expected string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get("X-API-Key")
			if key == "" {
				key = r.URL.Query().Get("api_key")
			}
			if key != expected {
				writeError(zap.NewNop(), w, http.StatusForbidden, "unauthorized")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

func writeJSON(logger *zap.Logger, w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logger.Error("write JSON failed", zap.Error(err))
	}
}

func writeError(logger *zap.Logger, w http.ResponseWriter, status int, msg string) {
	writeJSON(logger, w, status, map[string]string{"error": msg})
}
