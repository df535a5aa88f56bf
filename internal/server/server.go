package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/comigor/mapchat-go/internal/engine"
	"github.com/comigor/mapchat-go/internal/history"
	"github.com/comigor/mapchat-go/internal/logger"
	"github.com/comigor/mapchat-go/internal/metrics"
	"github.com/comigor/mapchat-go/internal/session"
)

// Server exposes conversations to a web front-end.
type Server struct {
	sessions *session.Manager
	metrics  *metrics.Metrics
}

// New builds the HTTP handler.
func New(sessions *session.Manager, m *metrics.Metrics) http.Handler {
	s := &Server{sessions: sessions, metrics: m}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(withLogging)
	r.Use(withCORS)

	r.Get("/healthz", s.handleHealthz)
	r.Method(http.MethodGet, "/metrics", m.Handler())

	r.Route("/sessions", func(r chi.Router) {
		r.Post("/", s.handleCreate)
		r.Route("/{sessionID}", func(r chi.Router) {
			r.Get("/", s.handleGet)
			r.Delete("/", s.handleDelete)
			r.Post("/messages", s.handleSubmit)
			r.Post("/messages/{messageID}/select", s.handleSelect)
			r.Post("/reset", s.handleReset)
			r.Get("/transcript", s.handleTranscript)
		})
	})

	return r
}

// ─────────────────────────────────────────────
// DTOs (request/response)
// ─────────────────────────────────────────────

type submitRequest struct {
	Text string `json:"text"`
}

type submitResponse struct {
	Accepted     bool            `json:"accepted"`
	Conversation engine.Snapshot `json:"conversation"`
}

type selectResponse struct {
	Selected     bool            `json:"selected"`
	Conversation engine.Snapshot `json:"conversation"`
}

type transcriptResponse struct {
	ConversationID string          `json:"conversation_id"`
	Entries        []history.Entry `json:"entries"`
}

// ─────────────────────────────────────────────
// Handlers
// ─────────────────────────────────────────────

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":   "ok",
		"sessions": s.sessions.Len(),
	})
}

func (s *Server) handleCreate(w http.ResponseWriter, _ *http.Request) {
	e := s.sessions.Create()
	writeJSON(w, http.StatusCreated, e.Snapshot())
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	e, ok := s.lookup(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, e.Snapshot())
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	if err := s.sessions.Delete(chi.URLParam(r, "sessionID")); err != nil {
		notFound(w)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleSubmit accepts a user message. With ?wait=true it holds the response
// until the lookup settles or the request is cancelled.
func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	e, ok := s.lookup(w, r)
	if !ok {
		return
	}

	var req submitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "invalid JSON body")
		return
	}

	done, accepted := e.Submit(r.Context(), req.Text)
	status := http.StatusOK
	if accepted {
		status = http.StatusAccepted
		if wait, _ := strconv.ParseBool(r.URL.Query().Get("wait")); wait {
			select {
			case <-done:
				status = http.StatusOK
			case <-r.Context().Done():
			}
		}
	}

	writeJSON(w, status, submitResponse{Accepted: accepted, Conversation: e.Snapshot()})
}

func (s *Server) handleSelect(w http.ResponseWriter, r *http.Request) {
	e, ok := s.lookup(w, r)
	if !ok {
		return
	}
	id, err := strconv.ParseInt(chi.URLParam(r, "messageID"), 10, 64)
	if err != nil {
		badRequest(w, "message id must be an integer")
		return
	}

	selected := e.SelectLocation(r.Context(), id)
	writeJSON(w, http.StatusOK, selectResponse{Selected: selected, Conversation: e.Snapshot()})
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	e, ok := s.lookup(w, r)
	if !ok {
		return
	}
	e.Reset(r.Context())
	writeJSON(w, http.StatusOK, e.Snapshot())
}

func (s *Server) handleTranscript(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "sessionID")
	entries, err := s.sessions.Transcript(id)
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			notFound(w)
			return
		}
		internalError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, transcriptResponse{ConversationID: id, Entries: entries})
}

func (s *Server) lookup(w http.ResponseWriter, r *http.Request) (*engine.Engine, bool) {
	e, err := s.sessions.Get(chi.URLParam(r, "sessionID"))
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			notFound(w)
			return nil, false
		}
		internalError(w, err)
		return nil, false
	}
	return e, true
}

// ─────────────────────────────────────────────
// HTTP Helpers
// ─────────────────────────────────────────────

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func badRequest(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusBadRequest, map[string]string{"error": msg})
}

func notFound(w http.ResponseWriter) {
	writeJSON(w, http.StatusNotFound, map[string]string{"error": session.ErrNotFound.Error()})
}

func internalError(w http.ResponseWriter, err error) {
	logger.L.Error("request failed", "error", err)
	writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
}
