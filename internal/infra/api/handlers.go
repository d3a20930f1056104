// File: internal/infra/api/handlers.go
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"invest-research-backend/internal/domain"
	"invest-research-backend/internal/domain/model"
	"invest-research-backend/internal/infra/logging"
)

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}

// writeUCError maps domain sentinels to HTTP codes.
func writeUCError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, "not found")
	case errors.Is(err, domain.ErrInvalidArgument):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrRateLimited):
		writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
	default:
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

// sessionTypeParam validates the feature tag at the boundary; storage itself
// accepts any tag. An absent parameter means "all types".
func sessionTypeParam(r *http.Request, key string) (model.SessionType, bool) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return "", true
	}
	typ := model.SessionType(raw)
	if !model.KnownSessionType(typ) {
		return "", false
	}
	return typ, true
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	userID := UserIDFrom(r.Context())
	typ, ok := sessionTypeParam(r, "type")
	if !ok {
		writeError(w, http.StatusBadRequest, "unknown session type")
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	sessions, err := s.sessionUC.ListSessions(r.Context(), userID, typ, limit)
	if err != nil {
		writeUCError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"sessions": sessions})
}

// ownedSession loads a session by id and hides it from everyone but its
// owner. A session belonging to another user is reported as absent, the
// same way handleGetAnalysisJob treats foreign jobs.
func (s *Server) ownedSession(w http.ResponseWriter, r *http.Request, id string) (*model.ChatSession, bool) {
	session, err := s.sessionUC.GetSessionWithMessages(r.Context(), id)
	if err != nil {
		writeUCError(w, err)
		return nil, false
	}
	if session == nil || session.UserID != UserIDFrom(r.Context()) {
		writeError(w, http.StatusNotFound, "not found")
		return nil, false
	}
	return session, true
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	session, ok := s.ownedSession(w, r, chi.URLParam(r, "id"))
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, session)
}

type sessionCreateRequest struct {
	Type      string `json:"type"`
	ContextID string `json:"contextId"`
	Title     string `json:"title"`
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req sessionCreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	typ := model.SessionType(req.Type)
	if !model.KnownSessionType(typ) {
		writeError(w, http.StatusBadRequest, "unknown session type")
		return
	}
	session, err := s.sessionUC.CreateSession(r.Context(), UserIDFrom(r.Context()), typ, req.ContextID, req.Title)
	if err != nil {
		writeUCError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, session)
}

func (s *Server) handleGetOrCreateSession(w http.ResponseWriter, r *http.Request) {
	var req sessionCreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	typ := model.SessionType(req.Type)
	if !model.KnownSessionType(typ) {
		writeError(w, http.StatusBadRequest, "unknown session type")
		return
	}
	res, err := s.sessionUC.GetOrCreateSession(r.Context(), UserIDFrom(r.Context()), typ, req.ContextID, req.Title)
	if err != nil {
		writeUCError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"session":     res.Session,
		"isNew":       res.IsNew,
		"isTemporary": res.IsTemporary,
	})
}

type messageRequest struct {
	Content string `json:"content"`
}

func (s *Server) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req messageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if _, ok := s.ownedSession(w, r, id); !ok {
		return
	}
	ctx := logging.WithSessID(r.Context(), id)
	reply, err := s.sessionUC.SendMessage(ctx, id, req.Content)
	if err != nil {
		writeUCError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, reply)
}

type titleRequest struct {
	Title string `json:"title"`
}

func (s *Server) handleUpdateTitle(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req titleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Title == "" {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if _, ok := s.ownedSession(w, r, id); !ok {
		return
	}
	if err := s.sessionUC.UpdateTitle(r.Context(), id, req.Title); err != nil {
		writeUCError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleGenerateTitle kicks off title generation for a session based on its
// opening messages. A failed generation returns an empty title, not an error.
func (s *Server) handleGenerateTitle(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	session, ok := s.ownedSession(w, r, id)
	if !ok {
		return
	}
	title, _ := s.sessionUC.GenerateSessionTitle(r.Context(), id, session.Messages)
	writeJSON(w, http.StatusOK, map[string]string{"title": title})
}

// handleDeleteSession stays idempotent for sessions that are already gone,
// but refuses to touch a session owned by someone else.
func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	session, err := s.sessionUC.GetSessionWithMessages(r.Context(), id)
	if err != nil {
		writeUCError(w, err)
		return
	}
	if session != nil && session.UserID != UserIDFrom(r.Context()) {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	if err := s.sessionUC.DeleteSession(r.Context(), id); err != nil {
		writeUCError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type analysisRequest struct {
	SubjectType string `json:"subjectType"`
	SubjectID   string `json:"subjectId"`
	Async       bool   `json:"async,omitempty"`
}

func (s *Server) handleCreateAnalysis(w http.ResponseWriter, r *http.Request) {
	var req analysisRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	typ := model.SessionType(req.SubjectType)
	if !model.KnownSessionType(typ) {
		writeError(w, http.StatusBadRequest, "unknown subject type")
		return
	}
	userID := UserIDFrom(r.Context())

	if req.Async {
		job, err := s.analysisUC.EnqueueAnalysis(r.Context(), userID, typ, req.SubjectID)
		if err != nil {
			writeUCError(w, err)
			return
		}
		writeJSON(w, http.StatusAccepted, map[string]string{"jobId": job.ID, "status": string(job.Status)})
		return
	}

	report, err := s.analysisUC.GenerateAnalysis(r.Context(), userID, typ, req.SubjectID)
	if err != nil {
		writeUCError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) handleGetAnalysisJob(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	job, err := s.analysisUC.GetJob(r.Context(), id)
	if err != nil {
		writeUCError(w, err)
		return
	}
	if job.UserID != UserIDFrom(r.Context()) {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"jobId":     job.ID,
		"status":    job.Status,
		"result":    json.RawMessage(orNullJSON(job.Result)),
		"lastError": job.LastError,
	})
}

func orNullJSON(s string) string {
	if s == "" {
		return "null"
	}
	return s
}
