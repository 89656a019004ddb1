package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/entigraph/entigraph/internal/dispatcher"
	"github.com/entigraph/entigraph/internal/kg"
)

const defaultSearchLimit = 20

type crawlRequest struct {
	Name      string `json:"name"`
	Kind      string `json:"kind"`
	Expansion bool   `json:"expansion"`
}

func (s *Server) runCrawlCycle(w http.ResponseWriter, r *http.Request) {
	var req crawlRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(s.logger, w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.Name == "" {
		writeError(s.logger, w, http.StatusBadRequest, "name is required")
		return
	}
	kind, ok := parseKind(req.Kind)
	if !ok {
		writeError(s.logger, w, http.StatusBadRequest, "unknown entity kind")
		return
	}

	result, err := s.orch.RunCrawlCycle(r.Context(), req.Name, kind, req.Expansion)
	if err != nil {
		writeError(s.logger, w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(s.logger, w, http.StatusOK, result)
}

func (s *Server) enqueueCrawlCycle(w http.ResponseWriter, r *http.Request) {
	if s.dispatch == nil {
		writeError(s.logger, w, http.StatusServiceUnavailable, "async crawling disabled")
		return
	}
	var req crawlRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(s.logger, w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.Name == "" {
		writeError(s.logger, w, http.StatusBadRequest, "name is required")
		return
	}
	kind, ok := parseKind(req.Kind)
	if !ok {
		writeError(s.logger, w, http.StatusBadRequest, "unknown entity kind")
		return
	}

	id, err := s.dispatch.Enqueue(r.Context(), req.Name, kind, req.Expansion)
	if err != nil {
		if errors.Is(err, dispatcher.ErrQueueFull) {
			writeError(s.logger, w, http.StatusTooManyRequests, "crawl queue is full")
			return
		}
		writeError(s.logger, w, http.StatusServiceUnavailable, err.Error())
		return
	}
	writeJSON(s.logger, w, http.StatusAccepted, map[string]string{
		"request_id": id,
		"state":      string(dispatcher.StateQueued),
	})
}

func (s *Server) crawlCycleStatus(w http.ResponseWriter, r *http.Request) {
	if s.dispatch == nil {
		writeError(s.logger, w, http.StatusServiceUnavailable, "async crawling disabled")
		return
	}
	id := chi.URLParam(r, "request_id")
	st, ok := s.dispatch.Status(id)
	if !ok {
		writeError(s.logger, w, http.StatusNotFound, "unknown request")
		return
	}
	writeJSON(s.logger, w, http.StatusOK, st)
}

func (s *Server) recentProgress(w http.ResponseWriter, r *http.Request) {
	if s.recent == nil {
		writeError(s.logger, w, http.StatusServiceUnavailable, "progress history disabled")
		return
	}
	n := queryInt(r, "n", 100)
	writeJSON(s.logger, w, http.StatusOK, map[string]any{
		"events": s.recent.Recent(n),
	})
}

func (s *Server) searchEntities(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	kind, ok := parseKind(r.URL.Query().Get("kind"))
	if !ok {
		writeError(s.logger, w, http.StatusBadRequest, "unknown entity kind")
		return
	}
	limit := queryInt(r, "limit", defaultSearchLimit)

	var (
		entities []kg.Entity
		err      error
	)
	if q == "" {
		entities, err = s.store.ListEntities(r.Context(), kind, limit, queryInt(r, "offset", 0))
	} else {
		entities, err = s.store.SearchEntities(r.Context(), q, kind, limit)
	}
	if err != nil {
		writeError(s.logger, w, http.StatusInternalServerError, "entity search failed")
		return
	}
	writeJSON(s.logger, w, http.StatusOK, map[string]any{"entities": entities})
}

func (s *Server) getEntity(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "entity_id")
	entity, err := s.store.GetEntity(r.Context(), id)
	if err != nil {
		if errors.Is(err, kg.ErrNotFound) {
			writeError(s.logger, w, http.StatusNotFound, "entity not found")
			return
		}
		writeError(s.logger, w, http.StatusInternalServerError, "entity lookup failed")
		return
	}
	rels, err := s.store.ListRelationships(r.Context(), id)
	if err != nil {
		writeError(s.logger, w, http.StatusInternalServerError, "relationship lookup failed")
		return
	}
	records, err := s.store.ListRecords(r.Context(), id, "")
	if err != nil {
		writeError(s.logger, w, http.StatusInternalServerError, "record lookup failed")
		return
	}
	writeJSON(s.logger, w, http.StatusOK, map[string]any{
		"entity":        entity,
		"relationships": rels,
		"records":       records,
	})
}

func (s *Server) getGapReport(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "entity_id")
	report, err := s.orch.AnalyzeGaps(r.Context(), id)
	if err != nil {
		if errors.Is(err, kg.ErrNotFound) {
			writeError(s.logger, w, http.StatusNotFound, "entity not found")
			return
		}
		writeError(s.logger, w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(s.logger, w, http.StatusOK, report)
}

type mergeRequest struct {
	SourceID string `json:"source_id"`
	TargetID string `json:"target_id"`
}

func (s *Server) mergeEntities(w http.ResponseWriter, r *http.Request) {
	var req mergeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(s.logger, w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.SourceID == "" || req.TargetID == "" {
		writeError(s.logger, w, http.StatusBadRequest, "source_id and target_id are required")
		return
	}
	if err := s.engine.Merge(r.Context(), req.SourceID, req.TargetID); err != nil {
		if errors.Is(err, kg.ErrNotFound) {
			writeError(s.logger, w, http.StatusNotFound, "entity not found")
			return
		}
		writeError(s.logger, w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	writeJSON(s.logger, w, http.StatusOK, map[string]string{
		"source_id": req.SourceID,
		"target_id": req.TargetID,
		"status":    "merged",
	})
}

func (s *Server) deduplicateEntities(w http.ResponseWriter, r *http.Request) {
	merges, mapping, err := s.engine.DeduplicateEntities(r.Context())
	if err != nil {
		writeError(s.logger, w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(s.logger, w, http.StatusOK, map[string]any{
		"merges": merges,
		"merged": mapping,
	})
}

type validateRequest struct {
	Fix bool `json:"fix"`
}

func (s *Server) validateRelationships(w http.ResponseWriter, r *http.Request) {
	var req validateRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(s.logger, w, http.StatusBadRequest, "invalid JSON")
			return
		}
	}
	report, err := s.engine.Validate(r.Context(), req.Fix)
	if err != nil {
		writeError(s.logger, w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(s.logger, w, http.StatusOK, report)
}

func (s *Server) domainStats(w http.ResponseWriter, r *http.Request) {
	stats := s.scorer.DomainStats(r.URL.Query().Get("filter"))
	writeJSON(s.logger, w, http.StatusOK, map[string]any{"domains": stats})
}

func (s *Server) suggestedPatterns(w http.ResponseWriter, r *http.Request) {
	kind, ok := parseKind(r.URL.Query().Get("kind"))
	if !ok || kind == "" {
		writeError(s.logger, w, http.StatusBadRequest, "a valid entity kind is required")
		return
	}
	n := queryInt(r, "n", 5)
	patterns := s.scorer.SuggestedPatterns(kind, n)
	writeJSON(s.logger, w, http.StatusOK, map[string]any{"patterns": patterns})
}

// parseKind validates an entity kind from request input. Empty input is
// allowed and means "any kind".
func parseKind(raw string) (kg.EntityKind, bool) {
	switch kind := kg.EntityKind(raw); kind {
	case "", kg.KindPerson, kg.KindCompany, kg.KindProduct,
		kg.KindOrganization, kg.KindLocation, kg.KindTopic, kg.KindNews:
		return kind, true
	default:
		return "", false
	}
}

func queryInt(r *http.Request, key string, def int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return def
	}
	return n
}
