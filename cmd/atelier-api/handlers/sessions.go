package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/atelier-ai/atelier/internal/canvas"
	"github.com/atelier-ai/atelier/internal/domain"
	"github.com/atelier-ai/atelier/internal/observability"
	"github.com/atelier-ai/atelier/internal/studio"
)

// SessionHandler covers session lifecycle and analysis.
type SessionHandler struct {
	logger *observability.Logger
	studio *studio.Service
	editor *canvas.Editor
}

// NewSessionHandler creates the handler.
func NewSessionHandler(logger *observability.Logger, svc *studio.Service, editor *canvas.Editor) *SessionHandler {
	return &SessionHandler{logger: logger, studio: svc, editor: editor}
}

// CreateSessionRequest is the POST /v1/sessions body.
type CreateSessionRequest struct {
	Title string `json:"title" validate:"max=200"`
}

// Create handles POST /v1/sessions. An empty body creates an untitled
// session.
func (h *SessionHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, h.logger, domain.ValidationError("invalid request body", err))
		return
	}
	if err := validate.Struct(&req); err != nil {
		writeError(w, h.logger, domain.ValidationError(err.Error(), nil))
		return
	}

	session, err := h.studio.CreateSession(r.Context(), req.Title)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, session)
}

// List handles GET /v1/sessions.
func (h *SessionHandler) List(w http.ResponseWriter, r *http.Request) {
	sessions, err := h.studio.ListSessions(r.Context())
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, sessions)
}

// Get handles GET /v1/sessions/{id}.
func (h *SessionHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := sessionID(r)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	session, err := h.studio.GetSession(r.Context(), id)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, session)
}

// Delete handles DELETE /v1/sessions/{id}.
func (h *SessionHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := sessionID(r)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	if err := h.studio.DeleteSession(r.Context(), id); err != nil {
		writeError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Analyze handles POST /v1/sessions/{id}/analyze. The pipeline runs in
// the background; progress arrives on the session event feed.
func (h *SessionHandler) Analyze(w http.ResponseWriter, r *http.Request) {
	id, err := sessionID(r)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	// Validate session and mode up front so the caller gets a synchronous
	// rejection instead of an event-only failure.
	session, err := h.studio.GetSession(r.Context(), id)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	if !domain.CanTransition(session.Mode, domain.ModeAnalyzing) {
		writeError(w, h.logger, domain.SessionError(
			fmt.Sprintf("cannot analyze a session in %s mode", session.Mode), nil))
		return
	}

	go func() {
		if err := h.studio.Analyze(context.Background(), id); err != nil {
			h.logger.Error().Err(err).Str("session_id", id.String()).Msg("background analysis failed")
		}
	}()

	writeJSON(w, http.StatusAccepted, map[string]string{
		"status":    "analyzing",
		"sessionId": session.ID.String(),
	})
}

// EnterStudio handles POST /v1/sessions/{id}/studio/enter.
func (h *SessionHandler) EnterStudio(w http.ResponseWriter, r *http.Request) {
	id, err := sessionID(r)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	session, err := h.studio.EnterStudio(r.Context(), id)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	if err := h.editor.Open(r.Context(), id); err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, session)
}

// ExitStudio handles POST /v1/sessions/{id}/studio/exit. The canvas
// working copy commits before the mode flips back.
func (h *SessionHandler) ExitStudio(w http.ResponseWriter, r *http.Request) {
	id, err := sessionID(r)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	if err := h.editor.Close(r.Context(), id); err != nil {
		writeError(w, h.logger, err)
		return
	}
	session, err := h.studio.ExitStudio(r.Context(), id)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, session)
}
