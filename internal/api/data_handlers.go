package api

import (
	"net/http"
	"time"

	"github.com/kalmansforge/web3-bd-guide-sub000/internal/transfer"
)

// --- Data handlers ---

func (s *Server) handleExportData(w http.ResponseWriter, r *http.Request) {
	doc := s.transfer.ExportAll(r.Context())
	if err := attachment(w, transfer.BulkFilename(time.Now().UTC()), doc); err != nil {
		respondDomainError(w, err, "export data")
	}
}

func (s *Server) handleImportData(w http.ResponseWriter, r *http.Request) {
	data, err := transfer.ReadImport(http.MaxBytesReader(w, r.Body, maxBodySize))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	result, err := s.transfer.ImportAll(r.Context(), data)
	if err != nil {
		respondDomainError(w, err, "import data")
		return
	}
	respondJSON(w, http.StatusOK, result)
}

func (s *Server) handleUsage(w http.ResponseWriter, r *http.Request) {
	usage, err := s.transfer.Usage(r.Context())
	if err != nil {
		respondDomainError(w, err, "read usage")
		return
	}
	respondJSON(w, http.StatusOK, usage)
}

func (s *Server) handleClearData(w http.ResponseWriter, r *http.Request) {
	if err := s.transfer.ClearAll(r.Context()); err != nil {
		respondDomainError(w, err, "clear data")
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{
		"message": "all data cleared",
	})
}
