package server

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/venuewatch/venuewatch/api"
	"github.com/venuewatch/venuewatch/internal/agent"
	"github.com/venuewatch/venuewatch/internal/analysis"
	"github.com/venuewatch/venuewatch/internal/dispatch"
	"github.com/venuewatch/venuewatch/internal/pipeline"
	"github.com/venuewatch/venuewatch/internal/store"
)

// Server exposes the coordination engine over HTTP: event ingestion and
// queries for the perception side and operators, plus the persona chat.
type Server struct {
	coordinator *pipeline.Coordinator
	store       *store.Store
	router      *agent.Router
	mux         chi.Router

	// Turns within one session run strictly in arrival order; each session
	// gets its own lock so independent sessions stay concurrent.
	mu       sync.RWMutex
	sessions map[string]*sessionSlot
}

type sessionSlot struct {
	mu      sync.Mutex
	session *agent.Session
}

func New(c *pipeline.Coordinator, s *store.Store, r *agent.Router) *Server {
	srv := &Server{
		coordinator: c,
		store:       s,
		router:      r,
		sessions:    make(map[string]*sessionSlot),
	}

	mux := chi.NewRouter()
	mux.Use(middleware.Recoverer)
	mux.Use(middleware.RealIP)

	mux.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", srv.handleHealth)
		r.Post("/events", srv.handleIngest)
		r.Get("/events", srv.handleListEvents)
		r.Get("/events/{key}", srv.handleGetEvent)
		r.Post("/chat", srv.handleChat)
		r.Delete("/chat/{sessionID}", srv.handleEndSession)
		r.Get("/chat/{sessionID}/history", srv.handleHistory)
	})

	srv.mux = mux
	return srv
}

func (s *Server) Handler() http.Handler { return s.mux }

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": "venuewatch",
		"events":  s.store.Len(),
	})
}

func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, api.ErrorResponse{Error: "unreadable body"})
		return
	}

	raw := body
	var req api.IngestRequest
	if err := json.Unmarshal(body, &req); err == nil && len(req.Analysis) > 0 {
		raw = req.Analysis
	}

	outcome, err := s.coordinator.Ingest(r.Context(), raw, time.Now())
	if err != nil {
		s.writeIngestError(w, err, outcome)
		return
	}

	writeJSON(w, http.StatusCreated, api.IngestResponse{
		EventKey:   string(outcome.EventKey),
		Dispatched: outcome.Dispatched,
		MessageID:  outcome.MessageID,
		TopicPath:  outcome.TopicPath,
	})
}

func (s *Server) writeIngestError(w http.ResponseWriter, err error, outcome pipeline.Outcome) {
	var verr *analysis.ValidationError
	if errors.As(err, &verr) {
		writeJSON(w, http.StatusUnprocessableEntity, api.ErrorResponse{Error: verr.Error()})
		return
	}

	var derr *store.DuplicateKeyError
	if errors.As(err, &derr) {
		writeJSON(w, http.StatusConflict, api.ErrorResponse{Error: derr.Error()})
		return
	}

	var perr *dispatch.PublishError
	if errors.As(err, &perr) {
		// The event is stored; only the dispatch leg failed.
		status := http.StatusBadGateway
		if perr.Retryable {
			status = http.StatusServiceUnavailable
		}
		slog.Error("dispatch publish failed", "event_key", outcome.EventKey, "retryable", perr.Retryable, "error", err)
		writeJSON(w, status, api.ErrorResponse{Error: err.Error()})
		return
	}

	slog.Error("ingest failed", "error", err)
	writeJSON(w, http.StatusInternalServerError, api.ErrorResponse{Error: "internal error"})
}

func (s *Server) handleListEvents(w http.ResponseWriter, r *http.Request) {
	since := time.Time{}
	if q := r.URL.Query().Get("since"); q != "" {
		t, err := time.Parse(time.RFC3339Nano, q)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, api.ErrorResponse{Error: "since must be RFC3339"})
			return
		}
		since = t
	}

	events := s.store.ListSince(since)
	out := make([]api.EventJSON, 0, len(events))
	for _, e := range events {
		out = append(out, toEventJSON(e))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleGetEvent(w http.ResponseWriter, r *http.Request) {
	key := store.Key(chi.URLParam(r, "key"))

	e, err := s.store.Get(key)
	if err != nil {
		writeJSON(w, http.StatusNotFound, api.ErrorResponse{Error: "event not found"})
		return
	}
	writeJSON(w, http.StatusOK, toEventJSON(e))
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req api.ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, api.ErrorResponse{Error: "invalid request body"})
		return
	}
	if req.Message == "" {
		writeJSON(w, http.StatusBadRequest, api.ErrorResponse{Error: "message is required"})
		return
	}

	slot, ok := s.slotFor(req.SessionID)
	if !ok {
		writeJSON(w, http.StatusNotFound, api.ErrorResponse{Error: "unknown session"})
		return
	}

	slot.mu.Lock()
	defer slot.mu.Unlock()

	reply, err := s.router.HandleTurn(r.Context(), slot.session, req.Message)
	if err != nil {
		s.writeChatError(w, slot.session, err)
		return
	}

	writeJSON(w, http.StatusOK, api.ChatResponse{
		SessionID: slot.session.ID,
		Persona:   string(reply.Persona),
		Text:      reply.Text,
		Warnings:  reply.Warnings,
	})
}

func (s *Server) writeChatError(w http.ResponseWriter, sess *agent.Session, err error) {
	switch {
	case errors.Is(err, agent.ErrNoCapableAgent):
		// A routing dead-end is operator guidance, not a server failure.
		writeJSON(w, http.StatusOK, api.ChatResponse{
			SessionID: sess.ID,
			Persona:   string(sess.Active),
			Text:      agent.NoCapableAgentMessage,
		})
	case errors.Is(err, agent.ErrSessionEnded):
		writeJSON(w, http.StatusGone, api.ErrorResponse{Error: "session has ended"})
	case dispatch.Retryable(err):
		writeJSON(w, http.StatusServiceUnavailable, api.ErrorResponse{Error: err.Error()})
	default:
		var perr *dispatch.PublishError
		if errors.As(err, &perr) {
			writeJSON(w, http.StatusBadGateway, api.ErrorResponse{Error: err.Error()})
			return
		}
		slog.Error("chat turn failed", "session_id", sess.ID, "error", err)
		writeJSON(w, http.StatusInternalServerError, api.ErrorResponse{Error: "internal error"})
	}
}

func (s *Server) handleEndSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "sessionID")

	s.mu.Lock()
	slot, ok := s.sessions[id]
	s.mu.Unlock()
	if !ok {
		writeJSON(w, http.StatusNotFound, api.ErrorResponse{Error: "unknown session"})
		return
	}

	slot.mu.Lock()
	slot.session.End()
	slot.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]string{"status": "ended"})
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "sessionID")

	s.mu.RLock()
	slot, ok := s.sessions[id]
	s.mu.RUnlock()
	if !ok {
		writeJSON(w, http.StatusNotFound, api.ErrorResponse{Error: "unknown session"})
		return
	}

	slot.mu.Lock()
	lines := slot.session.AuditLines()
	slot.mu.Unlock()

	writeJSON(w, http.StatusOK, api.HistoryResponse{SessionID: id, Lines: lines})
}

// slotFor returns the slot for an existing session, or creates a session when
// id is empty (first operator message).
func (s *Server) slotFor(id string) (*sessionSlot, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if id == "" {
		sess := agent.NewSession()
		slot := &sessionSlot{session: sess}
		s.sessions[sess.ID] = slot
		return slot, true
	}

	slot, ok := s.sessions[id]
	return slot, ok
}

func toEventJSON(e store.Event) api.EventJSON {
	a, _ := json.Marshal(e.Analysis)
	return api.EventJSON{
		Key:       string(e.Key),
		Timestamp: e.Timestamp.Format(time.RFC3339Nano),
		Analysis:  a,
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
