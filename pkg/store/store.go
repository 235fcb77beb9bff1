package store

import "researchreg/pkg/domain"

// Store defines persistence operations for projects, researchers, and
// IPR records.
type Store interface {
	// projects
	// CreateProjectWithResearchers persists the project, its researcher
	// documents, and the linkage between them as one atomic unit.
	CreateProjectWithResearchers(project domain.Project, researchers []domain.Researcher) error
	HasProjectCredentials(username, email string) (bool, error)
	GetProjectByUsername(username string) (domain.Project, bool, error)
	GetProjectByID(id string) (domain.Project, bool, error)
	UpdateProject(project domain.Project) error
	SetProjectFileID(id, fileID string) error
	SearchProjectsByTitle(query string, limit int) ([]domain.Project, error)
	LatestProjects(limit int) ([]domain.Project, error)

	// researchers
	GetResearcherByID(id string) (domain.Researcher, bool, error)

	// ipr
	CreateIPR(record domain.IPRRecord) error
	HasApplicationNumber(number string) (bool, error)
	ListIPRs(limit int) ([]domain.IPRRecord, error)
	SearchIPRs(criteria domain.IPRSearch, limit int) ([]domain.IPRRecord, error)
}

// SessionStore persists session tokens.
type SessionStore interface {
	NewSession(projectID string) (string, error)
	GetProjectIDByToken(token string) (string, bool, error)
	DeleteSession(token string) error
}
