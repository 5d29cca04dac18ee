package api

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/kalmansforge/web3-bd-guide-sub000/internal/evaluation"
	"github.com/kalmansforge/web3-bd-guide-sub000/internal/services"
	"github.com/kalmansforge/web3-bd-guide-sub000/internal/templates"
	"github.com/kalmansforge/web3-bd-guide-sub000/internal/thresholds"
	"github.com/kalmansforge/web3-bd-guide-sub000/internal/transfer"
)

// maxBodySize bounds JSON request bodies
const maxBodySize = 8 << 20

// Response helpers

type apiResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   *apiError   `json:"error,omitempty"`
}

type apiError struct {
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	resp := apiResponse{
		Success: status >= 200 && status < 300,
		Data:    data,
	}

	if err := json.NewEncoder(w).Encode(resp); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondErrorDetails(w, status, code, message, nil)
}

func respondErrorDetails(w http.ResponseWriter, status int, code, message string, details interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	resp := apiResponse{
		Success: false,
		Error: &apiError{
			Code:    code,
			Message: message,
			Details: details,
		},
	}

	if err := json.NewEncoder(w).Encode(resp); err != nil {
		slog.Error("failed to encode error response", "error", err)
	}
}

// respondDomainError maps core errors onto HTTP statuses
func respondDomainError(w http.ResponseWriter, err error, action string) {
	var verr *templates.ValidationError
	var rerr *evaluation.RemoteError

	switch {
	case errors.As(err, &verr):
		respondErrorDetails(w, http.StatusBadRequest, "validation_error", verr.Error(), verr.Errors)
	case errors.Is(err, templates.ErrInvalidTemplate),
		errors.Is(err, transfer.ErrInvalidDocument):
		respondError(w, http.StatusBadRequest, "validation_error", err.Error())
	case errors.Is(err, templates.ErrTemplateNotFound),
		errors.Is(err, thresholds.ErrTemplateNotFound):
		respondError(w, http.StatusNotFound, "template_not_found", "template not found")
	case errors.Is(err, evaluation.ErrProjectNotFound):
		respondError(w, http.StatusNotFound, "project_not_found", "project not found")
	case errors.Is(err, evaluation.ErrNoCurrentProject):
		respondError(w, http.StatusConflict, "no_current_project", "no project is open")
	case errors.Is(err, templates.ErrTemplateLocked):
		respondError(w, http.StatusForbidden, "template_locked", "built-in templates cannot be modified")
	case errors.Is(err, templates.ErrLastTemplate):
		respondError(w, http.StatusConflict, "last_template", "cannot delete the only template")
	case errors.Is(err, templates.ErrTemplateActive):
		respondError(w, http.StatusConflict, "template_active", "cannot delete the active template")
	case errors.Is(err, templates.ErrPersist),
		errors.Is(err, thresholds.ErrPersist),
		errors.Is(err, evaluation.ErrPersist),
		errors.Is(err, transfer.ErrPersist):
		slog.Error("persistence failed", "action", action, "error", err)
		respondError(w, http.StatusInsufficientStorage, "persist_failed", "changes are kept in memory but could not be stored")
	case errors.As(err, &rerr):
		slog.Error("remote persistence failed", "action", action, "error", err)
		respondError(w, http.StatusBadGateway, "remote_error", rerr.Error())
	default:
		slog.Error("request failed", "action", action, "error", err)
		respondError(w, http.StatusInternalServerError, "internal_error", "failed to "+action)
	}
}

// decodeJSON reads a bounded JSON body into v
func decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodySize)).Decode(v); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return false
	}
	return true
}

// attachment writes doc as a downloadable JSON file
func attachment(w http.ResponseWriter, filename string, doc interface{}) error {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Disposition", `attachment; filename="`+filename+`"`)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(doc)
}

// Health handlers

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status": "healthy",
		"time":   time.Now().UTC().Format(time.RFC3339),
		"uptime": time.Since(s.started).Round(time.Second).String(),
	})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	statuses := s.registry.Check(r.Context())
	if !services.Healthy(statuses) {
		respondErrorDetails(w, http.StatusServiceUnavailable, "not_ready", "service not ready", statuses)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"status": "ready",
		"checks": statuses,
	})
}
