package api

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/kalmansforge/web3-bd-guide-sub000/internal/models"
	"github.com/kalmansforge/web3-bd-guide-sub000/internal/templates"
	"github.com/kalmansforge/web3-bd-guide-sub000/internal/transfer"
)

// --- Template handlers ---

func (s *Server) handleListTemplates(w http.ResponseWriter, r *http.Request) {
	list := s.templates.List()
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"templates":        list,
		"activeTemplateId": s.templates.ActiveID(),
		"total":            len(list),
	})
}

func (s *Server) handleGetTemplate(w http.ResponseWriter, r *http.Request) {
	tmpl := s.templates.Get(chi.URLParam(r, "id"))
	if tmpl == nil {
		respondError(w, http.StatusNotFound, "template_not_found", "template not found")
		return
	}
	respondJSON(w, http.StatusOK, tmpl)
}

func (s *Server) handleGetActiveTemplate(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, s.templates.Active())
}

func (s *Server) handleBlankTemplate(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, s.templates.CreateEmpty())
}

func (s *Server) handleCreateTemplate(w http.ResponseWriter, r *http.Request) {
	var tmpl models.EvaluationTemplate
	if !decodeJSON(w, r, &tmpl) {
		return
	}

	// Creation always yields a new user-owned template
	tmpl.ID = ""
	tmpl.IsBuiltIn = false
	tmpl.IsLocked = false

	saved, err := s.templates.Save(r.Context(), &tmpl)
	if err != nil {
		respondDomainError(w, err, "create template")
		return
	}
	respondJSON(w, http.StatusCreated, saved)
}

func (s *Server) handleUpdateTemplate(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if s.templates.Get(id) == nil {
		respondError(w, http.StatusNotFound, "template_not_found", "template not found")
		return
	}

	var tmpl models.EvaluationTemplate
	if !decodeJSON(w, r, &tmpl) {
		return
	}
	tmpl.ID = id
	tmpl.IsBuiltIn = false
	tmpl.IsLocked = false

	saved, err := s.templates.Save(r.Context(), &tmpl)
	if err != nil {
		respondDomainError(w, err, "update template")
		return
	}
	respondJSON(w, http.StatusOK, saved)
}

func (s *Server) handleDeleteTemplate(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.templates.Delete(r.Context(), id); err != nil {
		respondDomainError(w, err, "delete template")
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{
		"message": "template deleted",
	})
}

func (s *Server) handleActivateTemplate(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.templates.SetActive(r.Context(), id); err != nil {
		respondDomainError(w, err, "activate template")
		return
	}
	respondJSON(w, http.StatusOK, s.templates.Active())
}

func (s *Server) handleDuplicateTemplate(w http.ResponseWriter, r *http.Request) {
	dup, err := s.templates.Duplicate(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondDomainError(w, err, "duplicate template")
		return
	}
	respondJSON(w, http.StatusCreated, dup)
}

func (s *Server) handleImportTemplate(w http.ResponseWriter, r *http.Request) {
	data, err := transfer.ReadImport(http.MaxBytesReader(w, r.Body, maxBodySize))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	tmpl, err := s.templates.Import(r.Context(), data)
	if err != nil {
		respondDomainError(w, err, "import template")
		return
	}
	respondJSON(w, http.StatusCreated, tmpl)
}

// responseExporter streams an export document as the HTTP response body
type responseExporter struct {
	w http.ResponseWriter
}

var _ templates.Exporter = responseExporter{}

func (e responseExporter) Export(_ context.Context, filename string, doc any) error {
	return attachment(e.w, filename, doc)
}

func (s *Server) handleExportTemplate(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.templates.Export(r.Context(), id, responseExporter{w: w}); err != nil {
		respondDomainError(w, err, "export template")
		return
	}
}

func (s *Server) handleDiffTemplates(w http.ResponseWriter, r *http.Request) {
	a := s.templates.Get(r.URL.Query().Get("from"))
	b := s.templates.Get(r.URL.Query().Get("to"))
	if a == nil || b == nil {
		respondError(w, http.StatusNotFound, "template_not_found", "both from and to must name existing templates")
		return
	}

	diff, err := templates.Diff(a, b)
	if err != nil {
		respondDomainError(w, err, "diff templates")
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"from":      a.ID,
		"to":        b.ID,
		"diff":      diff,
		"identical": diff == "",
	})
}
