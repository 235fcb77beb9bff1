package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"researchreg/internal/util"
	"researchreg/pkg/auth"
	"researchreg/pkg/domain"
	"researchreg/pkg/storage"
	"researchreg/pkg/store"
)

const (
	searchLimit = 50
	latestLimit = 10
)

// Config holds the dependencies for the core application. Storage handles
// are constructed once at startup and injected here; the app never opens
// its own connections.
type Config struct {
	Store    store.Store
	Blobs    storage.ObjectStore
	Sessions store.SessionStore
	Logger   *slog.Logger
}

// App is the core application service wiring together document storage,
// blob storage, and session logic.
type App struct {
	store    store.Store
	blobs    storage.ObjectStore
	sessions store.SessionStore
	logger   *slog.Logger
}

// New constructs the application from injected dependencies.
func New(cfg Config) (*App, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("store is required")
	}
	if cfg.Blobs == nil {
		return nil, fmt.Errorf("object store is required")
	}
	if cfg.Sessions == nil {
		return nil, fmt.Errorf("session store is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &App{
		store:    cfg.Store,
		blobs:    cfg.Blobs,
		sessions: cfg.Sessions,
		logger:   logger,
	}, nil
}

// FileUpload is a streamed multipart file attachment.
type FileUpload struct {
	Name        string
	ContentType string
	Size        int64
	Content     io.Reader
}

// ProjectForm carries the registration form fields.
type ProjectForm struct {
	Title       string    `json:"title"`
	Institution string    `json:"institution"`
	Description string    `json:"description"`
	Status      string    `json:"status"`
	Start       time.Time `json:"start"`
	End         time.Time `json:"end"`
	Username    string    `json:"username"`
	Password    string    `json:"password"`
	Email       string    `json:"email"`
}

// ResearcherForm carries one researcher entry from the registration form.
type ResearcherForm struct {
	Name  string `json:"name"`
	Email string `json:"remail"`
	Role  string `json:"role"`
	Field string `json:"researchField"`
}

// RegistrationResult reports the identifiers created by a registration.
// ProjectID is set even when the file upload failed, so the client can
// retry the attachment through an update.
type RegistrationResult struct {
	ProjectID string `json:"projectId"`
	FileID    string `json:"fileId,omitempty"`
}

// RegisterProject registers a project with its researchers and an optional
// file attachment. The project, researcher documents, and their linkage are
// written in one transaction; the blob upload happens after commit so a
// storage failure leaves a valid registration without an attachment.
func (a *App) RegisterProject(ctx context.Context, form ProjectForm, researchers []ResearcherForm, file *FileUpload) (RegistrationResult, error) {
	form.Username = strings.TrimSpace(form.Username)
	form.Email = strings.TrimSpace(strings.ToLower(form.Email))
	if err := validateProjectForm(form); err != nil {
		return RegistrationResult{}, err
	}
	for i, r := range researchers {
		if strings.TrimSpace(r.Name) == "" {
			return RegistrationResult{}, fmt.Errorf("%w: researcher %d name required", ErrValidation, i+1)
		}
	}

	taken, err := a.store.HasProjectCredentials(form.Username, form.Email)
	if err != nil {
		return RegistrationResult{}, fmt.Errorf("check credentials: %w", err)
	}
	if taken {
		return RegistrationResult{}, ErrDuplicateCredentials
	}

	passwordHash, err := auth.HashPassword(form.Password)
	if err != nil {
		return RegistrationResult{}, fmt.Errorf("hash password: %w", err)
	}

	now := time.Now().UTC()
	project := domain.Project{
		ID:           util.NewID(),
		Title:        form.Title,
		Institution:  form.Institution,
		Description:  form.Description,
		Status:       form.Status,
		Start:        form.Start,
		End:          form.End,
		Username:     form.Username,
		PasswordHash: passwordHash,
		Email:        form.Email,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	members := make([]domain.Researcher, 0, len(researchers))
	for _, r := range researchers {
		members = append(members, domain.Researcher{
			ID:        util.NewID(),
			Name:      strings.TrimSpace(r.Name),
			Email:     strings.TrimSpace(strings.ToLower(r.Email)),
			Field:     r.Field,
			Role:      r.Role,
			ProjectID: project.ID,
			CreatedAt: now,
			UpdatedAt: now,
		})
	}
	if err := a.store.CreateProjectWithResearchers(project, members); err != nil {
		return RegistrationResult{}, fmt.Errorf("create project: %w", err)
	}
	a.logger.Info("project registered",
		"projectId", project.ID,
		"researchers", len(members),
		"hasFile", file != nil,
	)

	if file == nil {
		return RegistrationResult{ProjectID: project.ID}, nil
	}
	fileID, err := a.storeBlob(ctx, file)
	if err != nil {
		a.logger.Error("project file upload failed", "projectId", project.ID, "error", err)
		return RegistrationResult{ProjectID: project.ID}, fmt.Errorf("%w: %v", ErrFileUploadFailed, err)
	}
	if err := a.store.SetProjectFileID(project.ID, fileID); err != nil {
		a.logger.Error("project file link failed", "projectId", project.ID, "fileId", fileID, "error", err)
		return RegistrationResult{ProjectID: project.ID}, fmt.Errorf("%w: %v", ErrPartialWriteInconsistency, err)
	}
	return RegistrationResult{ProjectID: project.ID, FileID: fileID}, nil
}

// UpdateProject re-authenticates by username and password, optionally
// replaces the attached file, and persists the new status. The old blob is
// removed before the new one is uploaded; a missing old blob is treated as
// already deleted.
func (a *App) UpdateProject(ctx context.Context, username, password, status string, file *FileUpload) (domain.Project, error) {
	username = strings.TrimSpace(username)
	project, ok, err := a.store.GetProjectByUsername(username)
	if err != nil {
		return domain.Project{}, fmt.Errorf("fetch project: %w", err)
	}
	if !ok || !auth.CheckPassword(password, project.PasswordHash) {
		return domain.Project{}, ErrInvalidCredentials
	}

	if file != nil {
		if project.FileID != "" {
			exists, err := a.blobs.Exists(ctx, project.FileID)
			if err != nil {
				return domain.Project{}, fmt.Errorf("%w: %v", ErrFileDeletionFailed, err)
			}
			if exists {
				if err := a.blobs.Delete(ctx, project.FileID); err != nil {
					return domain.Project{}, fmt.Errorf("%w: %v", ErrFileDeletionFailed, err)
				}
			} else {
				a.logger.Warn("previous project file already missing", "projectId", project.ID, "fileId", project.FileID)
			}
		}
		fileID, err := a.storeBlob(ctx, file)
		if err != nil {
			return domain.Project{}, fmt.Errorf("%w: %v", ErrFileUploadFailed, err)
		}
		project.FileID = fileID
	}
	if strings.TrimSpace(status) != "" {
		project.Status = status
	}
	project.UpdatedAt = time.Now().UTC()
	if err := a.store.UpdateProject(project); err != nil {
		return domain.Project{}, fmt.Errorf("update project: %w", err)
	}
	a.logger.Info("project updated", "projectId", project.ID, "fileReplaced", file != nil)
	return project, nil
}

// Login validates credentials and issues a session token.
func (a *App) Login(username, password string) (domain.Project, string, error) {
	username = strings.TrimSpace(username)
	project, ok, err := a.store.GetProjectByUsername(username)
	if err != nil {
		return domain.Project{}, "", fmt.Errorf("fetch project: %w", err)
	}
	if !ok || !auth.CheckPassword(password, project.PasswordHash) {
		return domain.Project{}, "", ErrInvalidCredentials
	}
	token, err := a.sessions.NewSession(project.ID)
	if err != nil {
		return domain.Project{}, "", fmt.Errorf("issue session: %w", err)
	}
	return project, token, nil
}

// Logout invalidates the session token.
func (a *App) Logout(token string) error {
	if strings.TrimSpace(token) == "" {
		return nil
	}
	return a.sessions.DeleteSession(token)
}

// ProjectFromToken resolves a project from a session token.
func (a *App) ProjectFromToken(token string) (domain.Project, bool) {
	id, ok, err := a.sessions.GetProjectIDByToken(token)
	if err != nil || !ok {
		return domain.Project{}, false
	}
	project, found, err := a.store.GetProjectByID(id)
	if err != nil || !found {
		return domain.Project{}, false
	}
	return project, true
}

// Profile returns the authenticated project with its researchers resolved.
func (a *App) Profile(project domain.Project) (domain.ProjectDetail, error) {
	return a.resolveDetail(project)
}

// ProjectDetail returns a project with its researchers resolved.
func (a *App) ProjectDetail(id string) (domain.ProjectDetail, error) {
	project, ok, err := a.store.GetProjectByID(id)
	if err != nil {
		return domain.ProjectDetail{}, fmt.Errorf("fetch project: %w", err)
	}
	if !ok {
		return domain.ProjectDetail{}, ErrNotFound
	}
	return a.resolveDetail(project)
}

func (a *App) resolveDetail(project domain.Project) (domain.ProjectDetail, error) {
	researchers := make([]domain.Researcher, 0, len(project.ResearcherIDs))
	for _, id := range project.ResearcherIDs {
		r, found, err := a.store.GetResearcherByID(id)
		if err != nil {
			return domain.ProjectDetail{}, fmt.Errorf("fetch researcher: %w", err)
		}
		if !found {
			a.logger.Warn("researcher reference dangling", "projectId", project.ID, "researcherId", id)
			continue
		}
		researchers = append(researchers, r)
	}
	return domain.ProjectDetail{Project: project, Researchers: researchers}, nil
}

// SearchProjects matches the query against project titles.
func (a *App) SearchProjects(query string) ([]domain.Project, error) {
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("%w: query required", ErrValidation)
	}
	return a.store.SearchProjectsByTitle(query, searchLimit)
}

// LatestProjects returns the most recently registered projects.
func (a *App) LatestProjects() ([]domain.Project, error) {
	return a.store.LatestProjects(latestLimit)
}

// OpenFile streams a stored file. Callers must close the reader.
func (a *App) OpenFile(ctx context.Context, fileID string) (io.ReadCloser, error) {
	if strings.TrimSpace(fileID) == "" {
		return nil, fmt.Errorf("%w: file id required", ErrValidation)
	}
	rc, err := a.blobs.Get(ctx, fileID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("open file: %w", err)
	}
	return rc, nil
}

// storeBlob uploads the file under a generated key and returns the key.
func (a *App) storeBlob(ctx context.Context, file *FileUpload) (string, error) {
	key := uuid.NewString() + "-" + sanitizeFilename(file.Name)
	contentType := file.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	if err := a.blobs.Put(ctx, key, file.Content, file.Size, contentType); err != nil {
		return "", err
	}
	return key, nil
}

func validateProjectForm(form ProjectForm) error {
	switch {
	case form.Title == "":
		return fmt.Errorf("%w: title required", ErrValidation)
	case form.Institution == "":
		return fmt.Errorf("%w: institution required", ErrValidation)
	case form.Description == "":
		return fmt.Errorf("%w: description required", ErrValidation)
	case form.Status == "":
		return fmt.Errorf("%w: status required", ErrValidation)
	case form.Start.IsZero():
		return fmt.Errorf("%w: start date required", ErrValidation)
	case form.End.IsZero():
		return fmt.Errorf("%w: end date required", ErrValidation)
	case form.Username == "":
		return fmt.Errorf("%w: username required", ErrValidation)
	case form.Email == "":
		return fmt.Errorf("%w: email required", ErrValidation)
	}
	if err := auth.ValidatePassword(form.Password); err != nil {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}
	return nil
}

// sanitizeFilename strips path components and characters unsafe for an
// object key.
func sanitizeFilename(name string) string {
	base := filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	if base == "." || base == "/" || base == "" {
		return "file"
	}
	var b strings.Builder
	for _, r := range base {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9',
			r == '.', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	return b.String()
}
