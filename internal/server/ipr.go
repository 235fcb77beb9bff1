package server

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"researchreg/internal/app"
	"researchreg/pkg/domain"
)

// handleAddIPR accepts the multipart IPR filing form. Fields: formData
// (record JSON, including inventors), certificateFile and inventionFile
// (both optional).
func (s *Server) handleAddIPR(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	if s.rateLimited(w, r, s.registrationLimiter, "ipr.add") {
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadBytes)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		writeError(w, http.StatusBadRequest, "invalid form data")
		return
	}
	var form app.IPRForm
	if err := json.Unmarshal([]byte(r.FormValue("formData")), &form); err != nil {
		writeError(w, http.StatusBadRequest, "formData must be a JSON object")
		return
	}
	if raw := r.FormValue("inventors"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &form.Inventors); err != nil {
			writeError(w, http.StatusBadRequest, "inventors must be a JSON array")
			return
		}
	}
	certificate, closeCertificate, err := formUpload(r, "certificateFile")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	defer closeCertificate()
	invention, closeInvention, err := formUpload(r, "inventionFile")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	defer closeInvention()

	record, err := s.app.AddIPR(r.Context(), form, certificate, invention)
	if err != nil {
		s.audit(r, "ipr.add", "fail", "reason", err.Error())
		writeAppError(w, err)
		return
	}
	s.audit(r, "ipr.add", "success", "ipr_id", record.ID)
	writeJSON(w, http.StatusCreated, record)
}

func (s *Server) handleGetIPRs(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	records, err := s.app.ListIPRs()
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"items": records,
		"count": len(records),
	})
}

func (s *Server) handleSearchIPRs(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	var criteria domain.IPRSearch
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&criteria); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	records, err := s.app.SearchIPRs(criteria)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"items": records,
		"count": len(records),
	})
}

func (s *Server) handleOpenIPRFile(w http.ResponseWriter, r *http.Request) {
	s.streamFile(w, r, strings.TrimPrefix(r.URL.Path, "/ipr/open/file/"))
}
