package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// --- Threshold handlers ---

type updateThresholdRequest struct {
	Thresholds map[string]string `json:"thresholds"`
}

type applyThresholdsRequest struct {
	TemplateID string `json:"templateId"`
}

func (s *Server) thresholdState() map[string]interface{} {
	list := s.thresholds.List()
	return map[string]interface{}{
		"thresholds":     list,
		"unsavedChanges": s.thresholds.HasUnsavedChanges(),
		"total":          len(list),
	}
}

func (s *Server) handleListThresholds(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, s.thresholdState())
}

func (s *Server) handleGetThreshold(w http.ResponseWriter, r *http.Request) {
	categoryID := chi.URLParam(r, "categoryId")
	metricID := chi.URLParam(r, "metricId")
	tier := chi.URLParam(r, "tier")

	respondJSON(w, http.StatusOK, map[string]string{
		"categoryId": categoryID,
		"metricId":   metricID,
		"tier":       tier,
		"text":       s.thresholds.Threshold(metricID, categoryID, tier),
	})
}

func (s *Server) handleUpdateThreshold(w http.ResponseWriter, r *http.Request) {
	var req updateThresholdRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Thresholds == nil {
		respondError(w, http.StatusBadRequest, "validation_error", "thresholds is required")
		return
	}

	categoryID := chi.URLParam(r, "categoryId")
	metricID := chi.URLParam(r, "metricId")
	if !s.thresholds.Update(metricID, categoryID, req.Thresholds) {
		respondError(w, http.StatusNotFound, "threshold_not_found", "no threshold config for "+categoryID+"/"+metricID)
		return
	}
	respondJSON(w, http.StatusOK, s.thresholdState())
}

func (s *Server) handleSaveThresholds(w http.ResponseWriter, r *http.Request) {
	if err := s.thresholds.Save(r.Context()); err != nil {
		respondDomainError(w, err, "save thresholds")
		return
	}
	respondJSON(w, http.StatusOK, s.thresholdState())
}

func (s *Server) handleResetThresholds(w http.ResponseWriter, r *http.Request) {
	s.thresholds.Reset()
	respondJSON(w, http.StatusOK, s.thresholdState())
}

func (s *Server) handleApplyThresholds(w http.ResponseWriter, r *http.Request) {
	var req applyThresholdsRequest
	if r.ContentLength != 0 && !decodeJSON(w, r, &req) {
		return
	}
	if err := s.thresholds.ApplyTemplateThresholds(r.Context(), req.TemplateID); err != nil {
		respondDomainError(w, err, "apply template thresholds")
		return
	}
	respondJSON(w, http.StatusOK, s.thresholdState())
}
