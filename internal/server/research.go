package server

import (
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"strings"

	"researchreg/internal/app"
	"researchreg/pkg/domain"
)

// handleRegistration accepts the multipart registration form. Fields:
// formData (project JSON), researchers (JSON array), projectFile (optional).
func (s *Server) handleRegistration(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	if s.rateLimited(w, r, s.registrationLimiter, "research.registration") {
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadBytes)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		writeError(w, http.StatusBadRequest, "invalid form data")
		return
	}
	var form app.ProjectForm
	if err := json.Unmarshal([]byte(r.FormValue("formData")), &form); err != nil {
		writeError(w, http.StatusBadRequest, "formData must be a JSON object")
		return
	}
	var researchers []app.ResearcherForm
	if raw := r.FormValue("researchers"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &researchers); err != nil {
			writeError(w, http.StatusBadRequest, "researchers must be a JSON array")
			return
		}
	}
	upload, cleanup, err := formUpload(r, "projectFile")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	defer cleanup()

	result, err := s.app.RegisterProject(r.Context(), form, researchers, upload)
	if err != nil {
		if errors.Is(err, app.ErrFileUploadFailed) || errors.Is(err, app.ErrPartialWriteInconsistency) {
			// registration stands; report the id so the client can retry
			// the attachment via an update
			s.audit(r, "research.registration", "file_failed", "project_id", result.ProjectID)
			writeJSON(w, errorStatus(err), map[string]string{
				"error":     err.Error(),
				"projectId": result.ProjectID,
			})
			return
		}
		s.audit(r, "research.registration", "fail", "reason", err.Error())
		writeAppError(w, err)
		return
	}
	s.audit(r, "research.registration", "success", "project_id", result.ProjectID)
	writeJSON(w, http.StatusCreated, result)
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	if s.rateLimited(w, r, s.loginLimiter, "research.login") {
		return
	}
	var req loginRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	project, token, err := s.app.Login(req.Username, req.Password)
	if err != nil {
		s.audit(r, "research.login", "fail")
		writeAppError(w, err)
		return
	}
	s.setSessionCookie(w, token)
	s.audit(r, "research.login", "success", "project_id", project.ID)
	writeJSON(w, http.StatusOK, loginResponse{Token: token, Project: project})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	token, ok := sessionToken(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	if err := s.app.Logout(token); err != nil {
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	s.clearSessionCookie(w)
	s.audit(r, "research.logout", "success")
	writeJSON(w, http.StatusOK, map[string]string{"status": "logged out"})
}

func (s *Server) handleProfile(w http.ResponseWriter, r *http.Request, project domain.Project) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	detail, err := s.app.Profile(project)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, detail)
}

// handleUpdate re-authenticates by form credentials and applies a status
// and/or file change. Fields: username, password, status (optional),
// newFile (optional).
func (s *Server) handleUpdate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadBytes)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		writeError(w, http.StatusBadRequest, "invalid form data")
		return
	}
	username := r.FormValue("username")
	password := r.FormValue("password")
	if username == "" || password == "" {
		writeError(w, http.StatusBadRequest, "username and password are required")
		return
	}
	upload, cleanup, err := formUpload(r, "newFile")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	defer cleanup()

	project, err := s.app.UpdateProject(r.Context(), username, password, r.FormValue("status"), upload)
	if err != nil {
		s.audit(r, "research.update", "fail", "reason", err.Error())
		writeAppError(w, err)
		return
	}
	s.audit(r, "research.update", "success", "project_id", project.ID)
	writeJSON(w, http.StatusOK, project)
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	projects, err := s.app.SearchProjects(r.URL.Query().Get("query"))
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"items": projects,
		"count": len(projects),
	})
}

func (s *Server) handleLatest(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	projects, err := s.app.LatestProjects()
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"items": projects,
		"count": len(projects),
	})
}

func (s *Server) handleProjectDetail(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	id := strings.TrimPrefix(r.URL.Path, "/research/projectDetail/")
	if id == "" || strings.Contains(id, "/") {
		http.NotFound(w, r)
		return
	}
	detail, err := s.app.ProjectDetail(id)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, detail)
}

func (s *Server) handleOpenFile(w http.ResponseWriter, r *http.Request) {
	s.streamFile(w, r, strings.TrimPrefix(r.URL.Path, "/open/file/"))
}

// streamFile writes a stored attachment to the response as an inline PDF.
func (s *Server) streamFile(w http.ResponseWriter, r *http.Request, fileID string) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	if fileID == "" || strings.Contains(fileID, "/") {
		http.NotFound(w, r)
		return
	}
	rc, err := s.app.OpenFile(r.Context(), fileID)
	if err != nil {
		writeAppError(w, err)
		return
	}
	defer rc.Close()
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", "inline")
	_, _ = io.Copy(w, rc)
}

// formUpload extracts an optional multipart file. The cleanup closes the
// underlying file; it is safe to call when no file was sent.
func formUpload(r *http.Request, field string) (*app.FileUpload, func(), error) {
	file, header, err := r.FormFile(field)
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) {
			return nil, func() {}, nil
		}
		return nil, func() {}, errors.New("invalid file field: " + field)
	}
	return &app.FileUpload{
		Name:        header.Filename,
		ContentType: contentTypeOf(header),
		Size:        header.Size,
		Content:     file,
	}, func() { _ = file.Close() }, nil
}

func contentTypeOf(header *multipart.FileHeader) string {
	if ct := header.Header.Get("Content-Type"); ct != "" {
		return ct
	}
	return "application/octet-stream"
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token   string         `json:"token"`
	Project domain.Project `json:"project"`
}
