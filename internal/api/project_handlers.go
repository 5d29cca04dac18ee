package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/kalmansforge/web3-bd-guide-sub000/internal/evaluation"
	"github.com/kalmansforge/web3-bd-guide-sub000/internal/models"
	"github.com/kalmansforge/web3-bd-guide-sub000/internal/scoring"
	"github.com/kalmansforge/web3-bd-guide-sub000/internal/transfer"
)

// --- Project handlers ---

type createProjectRequest struct {
	Name       string `json:"name"`
	TemplateID string `json:"templateId"`
}

type updateMetricRequest struct {
	Value interface{} `json:"value"`
	Tier  models.Tier `json:"tier"`
	Notes string      `json:"notes"`
}

type updateNotesRequest struct {
	Notes string `json:"notes"`
}

func (s *Server) handleListProjects(w http.ResponseWriter, r *http.Request) {
	projects := s.session.List()
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"projects": projects,
		"total":    len(projects),
	})
}

func (s *Server) handleCreateProject(w http.ResponseWriter, r *http.Request) {
	var req createProjectRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Name == "" {
		respondError(w, http.StatusBadRequest, "validation_error", "name is required")
		return
	}

	if req.TemplateID == "" {
		req.TemplateID = s.templates.ActiveID()
	} else if s.templates.Get(req.TemplateID) == nil {
		respondError(w, http.StatusNotFound, "template_not_found", "template not found")
		return
	}

	respondJSON(w, http.StatusCreated, s.session.Create(req.Name, req.TemplateID))
}

func (s *Server) handleGetProject(w http.ResponseWriter, r *http.Request) {
	p := s.session.Get(chi.URLParam(r, "id"))
	if p == nil {
		respondError(w, http.StatusNotFound, "project_not_found", "project not found")
		return
	}
	respondJSON(w, http.StatusOK, p)
}

func (s *Server) handleDeleteProject(w http.ResponseWriter, r *http.Request) {
	if err := s.session.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		respondDomainError(w, err, "delete project")
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{
		"message": "project deleted",
	})
}

func (s *Server) handleOpenProject(w http.ResponseWriter, r *http.Request) {
	if err := s.session.Open(chi.URLParam(r, "id")); err != nil {
		respondDomainError(w, err, "open project")
		return
	}
	respondJSON(w, http.StatusOK, s.session.Current())
}

// categoriesFor returns the rubric a project is scored against: its own
// template when it still exists, else the active one
func (s *Server) categoriesFor(p *models.ProjectEvaluation) []models.MetricCategory {
	if tmpl := s.templates.Get(p.TemplateID); tmpl != nil {
		return tmpl.Categories
	}
	if tmpl := s.templates.Active(); tmpl != nil {
		return tmpl.Categories
	}
	return nil
}

func (s *Server) handleProjectProgress(w http.ResponseWriter, r *http.Request) {
	p := s.session.Get(chi.URLParam(r, "id"))
	if p == nil {
		respondError(w, http.StatusNotFound, "project_not_found", "project not found")
		return
	}
	respondJSON(w, http.StatusOK, evaluation.Progress(p, s.categoriesFor(p)))
}

func (s *Server) handleProjectScore(w http.ResponseWriter, r *http.Request) {
	p := s.session.Get(chi.URLParam(r, "id"))
	if p == nil {
		respondError(w, http.StatusNotFound, "project_not_found", "project not found")
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"result":    scoring.Score(p),
		"breakdown": scoring.Count(p),
	})
}

func (s *Server) handleExportProject(w http.ResponseWriter, r *http.Request) {
	doc, err := s.transfer.ExportProject(chi.URLParam(r, "id"))
	if err != nil {
		respondDomainError(w, err, "export project")
		return
	}
	if err := attachment(w, transfer.ProjectFilename(doc.Evaluations[0]), doc); err != nil {
		respondDomainError(w, err, "export project")
	}
}

// --- Current project ---

func (s *Server) handleGetCurrentProject(w http.ResponseWriter, r *http.Request) {
	cur := s.session.Current()
	if cur == nil {
		respondError(w, http.StatusNotFound, "no_current_project", "no project is open")
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"project":  cur,
		"score":    scoring.Score(cur),
		"progress": evaluation.Progress(cur, s.categoriesFor(cur)),
	})
}

func (s *Server) handleCloseProject(w http.ResponseWriter, r *http.Request) {
	s.session.Close()
	respondJSON(w, http.StatusOK, map[string]string{
		"message": "project closed",
	})
}

func (s *Server) handleUpdateMetric(w http.ResponseWriter, r *http.Request) {
	var req updateMetricRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	ev := models.MetricEvaluation{Value: req.Value, Tier: req.Tier, Notes: req.Notes}
	if err := s.session.UpdateMetric(chi.URLParam(r, "categoryId"), chi.URLParam(r, "metricId"), ev); err != nil {
		respondDomainError(w, err, "update metric")
		return
	}
	respondJSON(w, http.StatusOK, s.session.Current())
}

// handleMetricNavigation returns the metrics around the addressed one in the
// current project's rubric, along with the recorded evaluation if any
func (s *Server) handleMetricNavigation(w http.ResponseWriter, r *http.Request) {
	cur := s.session.Current()
	if cur == nil {
		respondDomainError(w, evaluation.ErrNoCurrentProject, "navigate metrics")
		return
	}

	categoryID := chi.URLParam(r, "categoryId")
	metricID := chi.URLParam(r, "metricId")
	tmpl := &models.EvaluationTemplate{Categories: s.categoriesFor(cur)}
	if tmpl.Metric(categoryID, metricID) == nil {
		respondError(w, http.StatusNotFound, "metric_not_found", "metric not in the project's template")
		return
	}

	prev, next := tmpl.Neighbors(categoryID, metricID)
	resp := map[string]interface{}{
		"previous": prev,
		"next":     next,
	}
	if ev, ok := cur.Metrics[models.MetricKey(categoryID, metricID)]; ok {
		resp["evaluation"] = ev
	}
	respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleUpdateNotes(w http.ResponseWriter, r *http.Request) {
	var req updateNotesRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := s.session.UpdateNotes(req.Notes); err != nil {
		respondDomainError(w, err, "update notes")
		return
	}
	respondJSON(w, http.StatusOK, s.session.Current())
}

func (s *Server) handleSaveProject(w http.ResponseWriter, r *http.Request) {
	saved, err := s.session.Save(r.Context())
	if err != nil {
		respondDomainError(w, err, "save project")
		return
	}
	respondJSON(w, http.StatusOK, saved)
}

// --- Remote reads ---

func (s *Server) handleListRemoteProjects(w http.ResponseWriter, r *http.Request) {
	projects, err := s.session.RemoteProjects(r.Context())
	if err != nil {
		respondDomainError(w, err, "list remote projects")
		return
	}
	if projects == nil {
		projects = []*models.RemoteProject{}
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"userId":   UserFromContext(r.Context()),
		"projects": projects,
		"total":    len(projects),
	})
}

func (s *Server) handleGetRemoteProject(w http.ResponseWriter, r *http.Request) {
	p, err := s.session.FetchRemote(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondDomainError(w, err, "fetch remote project")
		return
	}
	if p == nil {
		respondError(w, http.StatusNotFound, "project_not_found", "project not found")
		return
	}
	respondJSON(w, http.StatusOK, p)
}
