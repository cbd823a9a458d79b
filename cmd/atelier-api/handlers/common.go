// Package handlers provides HTTP handlers for the Atelier API.
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/atelier-ai/atelier/internal/domain"
	"github.com/atelier-ai/atelier/internal/observability"
)

var validate = validator.New()

type errorResponse struct {
	Error string `json:"error"`
	Type  string `json:"type,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v)
	}
}

// writeError maps domain errors onto HTTP statuses.
func writeError(w http.ResponseWriter, logger *observability.Logger, err error) {
	status := http.StatusInternalServerError
	errType := ""

	var derr *domain.DomainError
	switch {
	case domain.IsNotFound(err):
		status = http.StatusNotFound
	case errors.As(err, &derr):
		errType = string(derr.Type)
		switch derr.Type {
		case domain.ErrorTypeValidation:
			status = http.StatusBadRequest
		case domain.ErrorTypeSession:
			status = http.StatusConflict
		case domain.ErrorTypeCanvas:
			status = http.StatusNotFound
		case domain.ErrorTypeGateway:
			status = http.StatusBadGateway
		case domain.ErrorTypeConversion:
			status = http.StatusUnprocessableEntity
		}
	}

	if status >= 500 && logger != nil {
		logger.Error().Err(err).Int("status", status).Msg("request failed")
	}
	writeJSON(w, status, errorResponse{Error: err.Error(), Type: errType})
}

// decodeBody parses and validates a JSON request body.
func decodeBody(r *http.Request, dst interface{}) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return domain.ValidationError("invalid request body", err)
	}
	if err := validate.Struct(dst); err != nil {
		return domain.ValidationError(err.Error(), nil)
	}
	return nil
}

// sessionID extracts the {id} route parameter.
func sessionID(r *http.Request) (uuid.UUID, error) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		return uuid.Nil, domain.ValidationError("invalid session id", err)
	}
	return id, nil
}

func parseUUID(raw, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, domain.ValidationError("invalid "+name, err)
	}
	return id, nil
}

func pathUUID(r *http.Request, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		return uuid.Nil, domain.ValidationError("invalid "+name, err)
	}
	return id, nil
}
