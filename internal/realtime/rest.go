package realtime

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"claude-relay/internal/session"
	"claude-relay/internal/transcript"
)

const defaultPageSize = 50

type summaryRequest struct {
	Summary string `json:"summary"`
}

// JSON writes a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error": "failed to encode response"}`, http.StatusInternalServerError)
	}
}

// Error writes a JSON error response.
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, map[string]string{"error": message})
}

func (s *Server) registerAPI(r chi.Router) {
	r.Route("/api", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Get("/processes", s.handleListProcesses)
		r.Post("/processes/{key}/abort", s.handleAbortProcess)
		r.Get("/projects/{project}/sessions", s.handleListSessions)
		r.Get("/projects/{project}/sessions/{id}/messages", s.handleMessages)
		r.Put("/projects/{project}/sessions/{id}/summary", s.handlePutSummary)
		r.Delete("/projects/{project}/sessions/{id}/summary", s.handleResetSummary)
		r.Delete("/sessions/{id}/summary-lock", s.handleUnlockSummary)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := map[string]interface{}{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"clients":   s.hub.ClientCount(),
		"processes": len(s.supervisor.Active()),
	}
	code := http.StatusOK
	if s.health != nil {
		if err := s.health(); err != nil {
			status["status"] = "degraded"
			status["error"] = err.Error()
			code = http.StatusServiceUnavailable
		}
	}
	JSON(w, code, status)
}

func (s *Server) handleListProcesses(w http.ResponseWriter, r *http.Request) {
	infos := s.supervisor.Active()
	if infos == nil {
		infos = []session.Info{}
	}
	JSON(w, http.StatusOK, infos)
}

func (s *Server) handleAbortProcess(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	if !s.supervisor.Abort(key) {
		Error(w, http.StatusNotFound, "session not found")
		return
	}
	JSON(w, http.StatusOK, map[string]interface{}{"sessionId": key, "success": true})
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", defaultPageSize)
	if err != nil {
		Error(w, http.StatusBadRequest, "invalid limit")
		return
	}
	offset, err := queryInt(r, "offset", 0)
	if err != nil {
		Error(w, http.StatusBadRequest, "invalid offset")
		return
	}

	page, err := s.sessions.ListSessions(r.Context(), chi.URLParam(r, "project"), limit, offset)
	if err != nil {
		s.logger.Error("list sessions failed", "error", err)
		Error(w, http.StatusInternalServerError, "failed to list sessions")
		return
	}
	if page.Sessions == nil {
		page.Sessions = []transcript.Session{}
	}
	JSON(w, http.StatusOK, page)
}

func (s *Server) handleMessages(w http.ResponseWriter, r *http.Request) {
	msgs, err := s.sessions.Messages(r.Context(), chi.URLParam(r, "project"), chi.URLParam(r, "id"))
	if errors.Is(err, transcript.ErrSessionNotFound) {
		Error(w, http.StatusNotFound, "session not found")
		return
	}
	if err != nil {
		s.logger.Error("read messages failed", "error", err)
		Error(w, http.StatusInternalServerError, "failed to read messages")
		return
	}
	if msgs == nil {
		msgs = []transcript.Message{}
	}
	JSON(w, http.StatusOK, map[string]interface{}{"messages": msgs})
}

func (s *Server) handlePutSummary(w http.ResponseWriter, r *http.Request) {
	var req summaryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Summary == "" {
		Error(w, http.StatusBadRequest, "summary is required")
		return
	}

	project, id := chi.URLParam(r, "project"), chi.URLParam(r, "id")
	if err := s.saveManualSummary(r.Context(), project, id, req.Summary); err != nil {
		if errors.Is(err, transcript.ErrSessionNotFound) {
			Error(w, http.StatusNotFound, "session not found")
			return
		}
		s.logger.Error("save summary failed", "error", err)
		Error(w, http.StatusInternalServerError, "failed to save summary")
		return
	}
	JSON(w, http.StatusOK, map[string]string{"sessionId": id, "summary": req.Summary})
}

// handleResetSummary drops the indexed summary and re-enables regeneration.
func (s *Server) handleResetSummary(w http.ResponseWriter, r *http.Request) {
	project, id := chi.URLParam(r, "project"), chi.URLParam(r, "id")
	if err := s.sessions.ResetSummary(r.Context(), project, id); err != nil {
		s.logger.Error("reset summary failed", "error", err)
		Error(w, http.StatusInternalServerError, "failed to reset summary")
		return
	}
	s.summaries.ClearManualEditFlag(id)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleUnlockSummary(w http.ResponseWriter, r *http.Request) {
	s.summaries.ClearManualEditFlag(chi.URLParam(r, "id"))
	w.WriteHeader(http.StatusNoContent)
}

func queryInt(r *http.Request, name string, def int) (int, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, errors.New("invalid " + name)
	}
	return n, nil
}
