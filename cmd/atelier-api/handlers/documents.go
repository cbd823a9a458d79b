package handlers

import (
	"io"
	"net/http"

	"github.com/atelier-ai/atelier/internal/convert"
	"github.com/atelier-ai/atelier/internal/domain"
	"github.com/atelier-ai/atelier/internal/observability"
	"github.com/atelier-ai/atelier/internal/studio"
)

// maxMultipartMemory bounds the in-memory part of multipart parsing;
// larger files spill to disk.
const maxMultipartMemory = 16 << 20

// DocumentHandler covers uploads, page listing and page images.
type DocumentHandler struct {
	logger *observability.Logger
	studio *studio.Service
}

// NewDocumentHandler creates the handler.
func NewDocumentHandler(logger *observability.Logger, svc *studio.Service) *DocumentHandler {
	return &DocumentHandler{logger: logger, studio: svc}
}

// Upload handles POST /v1/sessions/{id}/documents. Accepts one or more
// files under the "file" field; each is converted to pages in order.
func (h *DocumentHandler) Upload(w http.ResponseWriter, r *http.Request) {
	id, err := sessionID(r)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	if err := r.ParseMultipartForm(maxMultipartMemory); err != nil {
		writeError(w, h.logger, domain.ValidationError("invalid multipart form", err))
		return
	}
	files := r.MultipartForm.File["file"]
	if len(files) == 0 {
		writeError(w, h.logger, domain.ValidationError("no files in upload", nil))
		return
	}

	uploads := make([]convert.Upload, 0, len(files))
	for _, header := range files {
		f, err := header.Open()
		if err != nil {
			writeError(w, h.logger, domain.IOError("open upload", err))
			return
		}
		data, err := io.ReadAll(f)
		f.Close()
		if err != nil {
			writeError(w, h.logger, domain.IOError("read upload", err))
			return
		}
		uploads = append(uploads, convert.Upload{Filename: header.Filename, Data: data})
	}

	created, err := h.studio.AddDocuments(r.Context(), id, uploads)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	for _, p := range created {
		p.Payload = nil
	}
	writeJSON(w, http.StatusCreated, created)
}

// ListPages handles GET /v1/sessions/{id}/pages.
func (h *DocumentHandler) ListPages(w http.ResponseWriter, r *http.Request) {
	id, err := sessionID(r)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	pages, err := h.studio.ListPages(r.Context(), id)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	if pages == nil {
		pages = []*domain.Page{}
	}
	writeJSON(w, http.StatusOK, pages)
}

// DeletePage handles DELETE /v1/sessions/{id}/pages/{pageID}.
func (h *DocumentHandler) DeletePage(w http.ResponseWriter, r *http.Request) {
	id, err := sessionID(r)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	pageID, err := pathUUID(r, "pageID")
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	if err := h.studio.RemovePage(r.Context(), id, pageID); err != nil {
		writeError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// PageImage handles GET /v1/pages/{pageID}/image, serving the raw page
// image bytes.
func (h *DocumentHandler) PageImage(w http.ResponseWriter, r *http.Request) {
	pageID, err := pathUUID(r, "pageID")
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	page, err := h.studio.PageImage(r.Context(), pageID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	w.Header().Set("Content-Type", page.MediaType)
	w.Header().Set("Cache-Control", "private, max-age=3600")
	w.WriteHeader(http.StatusOK)
	w.Write(page.Payload)
}
