package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/google/uuid"

	"github.com/atelier-ai/atelier/internal/domain"
	"github.com/atelier-ai/atelier/internal/observability"
	"github.com/atelier-ai/atelier/internal/studio"
)

// ChatHandler covers the conversation surface: chat turns, the
// transcript and per-page text extraction.
type ChatHandler struct {
	logger *observability.Logger
	studio *studio.Service
}

// NewChatHandler creates the handler.
func NewChatHandler(logger *observability.Logger, svc *studio.Service) *ChatHandler {
	return &ChatHandler{logger: logger, studio: svc}
}

// ChatRequest is the POST /v1/sessions/{id}/chat body.
type ChatRequest struct {
	Text string `json:"text" validate:"required"`
}

// Chat handles POST /v1/sessions/{id}/chat. With ?stream=true the reply
// arrives as SSE deltas terminated by a done event; otherwise the full
// assistant message returns as JSON.
func (h *ChatHandler) Chat(w http.ResponseWriter, r *http.Request) {
	id, err := sessionID(r)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	var req ChatRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}

	if r.URL.Query().Get("stream") == "true" {
		h.chatStream(w, r, id, req.Text)
		return
	}

	reply, err := h.studio.Chat(r.Context(), id, req.Text, nil)
	if err != nil && reply == nil {
		writeError(w, h.logger, err)
		return
	}
	// A gateway failure still appends an error-flagged message; surface
	// it with the upstream status.
	status := http.StatusOK
	if err != nil {
		status = http.StatusBadGateway
	}
	writeJSON(w, status, reply)
}

func (h *ChatHandler) chatStream(w http.ResponseWriter, r *http.Request, id uuid.UUID, text string) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, h.logger, domain.IOError("streaming unsupported", nil))
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	deltas := make(chan string, 64)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for delta := range deltas {
			payload, _ := json.Marshal(map[string]string{"delta": delta})
			fmt.Fprintf(w, "data: %s\n\n", payload)
			flusher.Flush()
		}
	}()

	reply, err := h.studio.Chat(r.Context(), id, text, deltas)
	close(deltas)
	<-done

	if err != nil && reply == nil {
		payload, _ := json.Marshal(map[string]string{"error": err.Error()})
		fmt.Fprintf(w, "data: %s\n\n", payload)
		flusher.Flush()
		return
	}

	final, _ := json.Marshal(reply)
	fmt.Fprintf(w, "data: %s\n\n", final)
	fmt.Fprint(w, "data: [DONE]\n\n")
	flusher.Flush()
}

// Transcript handles GET /v1/sessions/{id}/transcript.
func (h *ChatHandler) Transcript(w http.ResponseWriter, r *http.Request) {
	id, err := sessionID(r)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	if _, err := h.studio.GetSession(r.Context(), id); err != nil {
		writeError(w, h.logger, err)
		return
	}
	messages, err := h.studio.Transcript(r.Context(), id)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	if messages == nil {
		messages = []*domain.ChatMessage{}
	}
	writeJSON(w, http.StatusOK, messages)
}

// ExtractTextRequest is the POST /v1/sessions/{id}/extract/text body.
type ExtractTextRequest struct {
	PageID string `json:"pageId" validate:"required,uuid"`
}

// ExtractText handles POST /v1/sessions/{id}/extract/text.
func (h *ChatHandler) ExtractText(w http.ResponseWriter, r *http.Request) {
	id, err := sessionID(r)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	var req ExtractTextRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}
	pageID, err := parseUUID(req.PageID, "pageId")
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	text, err := h.studio.ExtractText(r.Context(), id, pageID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"pageId": pageID.String(), "text": text})
}
