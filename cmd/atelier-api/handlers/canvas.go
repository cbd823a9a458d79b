package handlers

import (
	"net/http"

	"github.com/atelier-ai/atelier/internal/api/ws"
	"github.com/atelier-ai/atelier/internal/canvas"
	"github.com/atelier-ai/atelier/internal/domain"
	"github.com/atelier-ai/atelier/internal/observability"
	"github.com/atelier-ai/atelier/internal/render"
	"github.com/atelier-ai/atelier/internal/studio"
)

// CanvasHandler serves canvas state, snapshots, backgrounds and the
// session event feed.
type CanvasHandler struct {
	logger *observability.Logger
	studio *studio.Service
	editor *canvas.Editor
	hub    *ws.Hub
	render render.Options
}

// NewCanvasHandler creates the handler.
func NewCanvasHandler(logger *observability.Logger, svc *studio.Service, editor *canvas.Editor, hub *ws.Hub, opts render.Options) *CanvasHandler {
	return &CanvasHandler{logger: logger, studio: svc, editor: editor, hub: hub, render: opts}
}

// asset returns the live working copy in creative mode, the persisted
// asset otherwise.
func (h *CanvasHandler) asset(r *http.Request) (*domain.GeneratedAsset, error) {
	id, err := sessionID(r)
	if err != nil {
		return nil, err
	}
	session, err := h.studio.GetSession(r.Context(), id)
	if err != nil {
		return nil, err
	}
	if session.Mode == domain.ModeCreative {
		return h.editor.Snapshot(r.Context(), id)
	}
	return h.studio.Asset(r.Context(), id)
}

// Canvas handles GET /v1/sessions/{id}/canvas.
func (h *CanvasHandler) Canvas(w http.ResponseWriter, r *http.Request) {
	asset, err := h.asset(r)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	// The background payload can be large; the render and background
	// endpoints serve it instead.
	view := asset.Clone()
	if view.Background != nil {
		view.Background.Payload = nil
	}
	writeJSON(w, http.StatusOK, view)
}

// RenderCanvas handles GET /v1/sessions/{id}/canvas/render.
func (h *CanvasHandler) RenderCanvas(w http.ResponseWriter, r *http.Request) {
	asset, err := h.asset(r)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	img, err := render.Canvas(asset, h.render)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	if err := render.EncodePNG(w, img); err != nil {
		h.logger.Error().Err(err).Msg("canvas render write failed")
	}
}

// Background handles GET /v1/sessions/{id}/canvas/background, serving
// the raw background image.
func (h *CanvasHandler) Background(w http.ResponseWriter, r *http.Request) {
	asset, err := h.asset(r)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	if asset.Background == nil || len(asset.Background.Payload) == 0 {
		writeError(w, h.logger, domain.CanvasError("session has no background", nil))
		return
	}
	w.Header().Set("Content-Type", asset.Background.MediaType)
	w.WriteHeader(http.StatusOK)
	w.Write(asset.Background.Payload)
}

// BackgroundRequest is the generate/refine body.
type BackgroundRequest struct {
	Prompt string `json:"prompt" validate:"required"`
}

// GenerateBackground handles POST /v1/sessions/{id}/canvas/background.
func (h *CanvasHandler) GenerateBackground(w http.ResponseWriter, r *http.Request) {
	id, err := sessionID(r)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	var req BackgroundRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}

	bg, err := h.editor.GenerateBackground(r.Context(), id, req.Prompt)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{
		"mediaType": bg.MediaType,
		"prompt":    bg.Prompt,
	})
}

// RefineBackground handles PUT /v1/sessions/{id}/canvas/background.
func (h *CanvasHandler) RefineBackground(w http.ResponseWriter, r *http.Request) {
	id, err := sessionID(r)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	var req BackgroundRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}

	bg, err := h.editor.RefineBackground(r.Context(), id, req.Prompt)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"mediaType": bg.MediaType,
		"prompt":    bg.Prompt,
	})
}

// Events handles GET /v1/sessions/{id}/events, upgrading to WebSocket.
func (h *CanvasHandler) Events(w http.ResponseWriter, r *http.Request) {
	id, err := sessionID(r)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	if _, err := h.studio.GetSession(r.Context(), id); err != nil {
		writeError(w, h.logger, err)
		return
	}
	if err := ws.Serve(h.hub, w, r, id); err != nil {
		h.logger.Warn().Err(err).Msg("websocket upgrade failed")
	}
}
