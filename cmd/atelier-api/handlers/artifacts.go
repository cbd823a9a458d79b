package handlers

import (
	"net/http"

	"github.com/atelier-ai/atelier/internal/observability"
	"github.com/atelier-ai/atelier/internal/render"
	"github.com/atelier-ai/atelier/internal/studio"
)

// ArtifactHandler serves the derived artifacts: the architecture
// blueprint and the workflow graph, as JSON and as rendered PNGs.
type ArtifactHandler struct {
	logger *observability.Logger
	studio *studio.Service
	render render.Options
}

// NewArtifactHandler creates the handler.
func NewArtifactHandler(logger *observability.Logger, svc *studio.Service, opts render.Options) *ArtifactHandler {
	return &ArtifactHandler{logger: logger, studio: svc, render: opts}
}

// Blueprint handles GET /v1/sessions/{id}/blueprint.
func (h *ArtifactHandler) Blueprint(w http.ResponseWriter, r *http.Request) {
	id, err := sessionID(r)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	bp, err := h.studio.GetBlueprint(r.Context(), id)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, bp)
}

// RenderBlueprint handles GET /v1/sessions/{id}/blueprint/render.
func (h *ArtifactHandler) RenderBlueprint(w http.ResponseWriter, r *http.Request) {
	id, err := sessionID(r)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	bp, err := h.studio.GetBlueprint(r.Context(), id)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	img, err := render.Blueprint(bp, h.render)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	if err := render.EncodePNG(w, img); err != nil {
		h.logger.Error().Err(err).Msg("blueprint render write failed")
	}
}

// BuildWorkflow handles POST /v1/sessions/{id}/workflow.
func (h *ArtifactHandler) BuildWorkflow(w http.ResponseWriter, r *http.Request) {
	id, err := sessionID(r)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	graph, err := h.studio.BuildWorkflow(r.Context(), id)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, graph)
}

// Workflow handles GET /v1/sessions/{id}/workflow.
func (h *ArtifactHandler) Workflow(w http.ResponseWriter, r *http.Request) {
	id, err := sessionID(r)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	graph, err := h.studio.GetWorkflow(r.Context(), id)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, graph)
}

// RenderWorkflow handles GET /v1/sessions/{id}/workflow/render.
func (h *ArtifactHandler) RenderWorkflow(w http.ResponseWriter, r *http.Request) {
	id, err := sessionID(r)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	graph, err := h.studio.GetWorkflow(r.Context(), id)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	img, err := render.Workflow(graph, h.render)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	if err := render.EncodePNG(w, img); err != nil {
		h.logger.Error().Err(err).Msg("workflow render write failed")
	}
}
