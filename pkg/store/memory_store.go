package store

import (
	"sort"
	"strings"
	"sync"
	"time"

	"researchreg/pkg/domain"
)

// MemoryStore keeps records in-process. Intended for tests and local runs
// without Postgres.
type MemoryStore struct {
	mu          sync.RWMutex
	projects    map[string]domain.Project
	byUsername  map[string]string
	byEmail     map[string]string
	researchers map[string]domain.Researcher
	iprs        map[string]domain.IPRRecord
	byAppNumber map[string]string
}

// NewMemoryStore initializes an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		projects:    make(map[string]domain.Project),
		byUsername:  make(map[string]string),
		byEmail:     make(map[string]string),
		researchers: make(map[string]domain.Researcher),
		iprs:        make(map[string]domain.IPRRecord),
		byAppNumber: make(map[string]string),
	}
}

// CreateProjectWithResearchers persists the project graph atomically: all
// records appear together or not at all.
func (m *MemoryStore) CreateProjectWithResearchers(project domain.Project, researchers []domain.Researcher) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]string, 0, len(researchers))
	for _, r := range researchers {
		ids = append(ids, r.ID)
	}
	project.ResearcherIDs = ids
	m.projects[project.ID] = project
	m.byUsername[project.Username] = project.ID
	m.byEmail[project.Email] = project.ID
	for _, r := range researchers {
		r.ProjectID = project.ID
		m.researchers[r.ID] = r
	}
	return nil
}

// HasProjectCredentials checks whether username or email is taken.
func (m *MemoryStore) HasProjectCredentials(username, email string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if _, ok := m.byUsername[username]; ok {
		return true, nil
	}
	_, ok := m.byEmail[email]
	return ok, nil
}

// GetProjectByUsername looks up a project by login username.
func (m *MemoryStore) GetProjectByUsername(username string) (domain.Project, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if id, ok := m.byUsername[username]; ok {
		p, exists := m.projects[id]
		return p, exists, nil
	}
	return domain.Project{}, false, nil
}

// GetProjectByID returns a project by ID.
func (m *MemoryStore) GetProjectByID(id string) (domain.Project, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.projects[id]
	return p, ok, nil
}

// UpdateProject persists mutable project fields.
func (m *MemoryStore) UpdateProject(project domain.Project) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	existing, ok := m.projects[project.ID]
	if !ok {
		return nil
	}
	existing.Status = project.Status
	existing.FileID = project.FileID
	existing.UpdatedAt = time.Now().UTC()
	m.projects[project.ID] = existing
	return nil
}

// SetProjectFileID records the blob identifier on the project.
func (m *MemoryStore) SetProjectFileID(id, fileID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.projects[id]
	if !ok {
		return nil
	}
	p.FileID = fileID
	p.UpdatedAt = time.Now().UTC()
	m.projects[id] = p
	return nil
}

// SearchProjectsByTitle matches the query as a case-insensitive substring.
func (m *MemoryStore) SearchProjectsByTitle(query string, limit int) ([]domain.Project, error) {
	if limit <= 0 {
		limit = 50
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	needle := strings.ToLower(query)
	res := make([]domain.Project, 0)
	for _, p := range m.projects {
		if strings.Contains(strings.ToLower(p.Title), needle) {
			res = append(res, p)
			if len(res) >= limit {
				break
			}
		}
	}
	return res, nil
}

// LatestProjects returns the newest projects first.
func (m *MemoryStore) LatestProjects(limit int) ([]domain.Project, error) {
	if limit <= 0 {
		limit = 10
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	res := make([]domain.Project, 0, len(m.projects))
	for _, p := range m.projects {
		res = append(res, p)
	}
	sort.Slice(res, func(i, j int) bool {
		return res[i].CreatedAt.After(res[j].CreatedAt)
	})
	if len(res) > limit {
		res = res[:limit]
	}
	return res, nil
}

// GetResearcherByID returns a researcher by ID.
func (m *MemoryStore) GetResearcherByID(id string) (domain.Researcher, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.researchers[id]
	return r, ok, nil
}

// CreateIPR stores a new IPR record.
func (m *MemoryStore) CreateIPR(record domain.IPRRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.iprs[record.ID] = record
	m.byAppNumber[record.ApplicationNumber] = record.ID
	return nil
}

// HasApplicationNumber checks whether the application number is taken.
func (m *MemoryStore) HasApplicationNumber(number string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.byAppNumber[number]
	return ok, nil
}

// ListIPRs returns IPR records by application date, latest first.
func (m *MemoryStore) ListIPRs(limit int) ([]domain.IPRRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	res := make([]domain.IPRRecord, 0, len(m.iprs))
	for _, r := range m.iprs {
		res = append(res, r)
	}
	sort.Slice(res, func(i, j int) bool {
		return res[i].ApplicationDate.After(res[j].ApplicationDate)
	})
	if len(res) > limit {
		res = res[:limit]
	}
	return res, nil
}

// SearchIPRs applies the given filters; empty fields are ignored.
func (m *MemoryStore) SearchIPRs(criteria domain.IPRSearch, limit int) ([]domain.IPRRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	res := make([]domain.IPRRecord, 0)
	for _, r := range m.iprs {
		if !matchIPR(r, criteria) {
			continue
		}
		res = append(res, r)
		if len(res) >= limit {
			break
		}
	}
	return res, nil
}

func matchIPR(r domain.IPRRecord, c domain.IPRSearch) bool {
	if c.Title != "" && !strings.Contains(strings.ToLower(r.Title), strings.ToLower(c.Title)) {
		return false
	}
	if c.ApplicationNumber != "" && r.ApplicationNumber != c.ApplicationNumber {
		return false
	}
	if c.ApplicantName != "" && !strings.Contains(strings.ToLower(r.ApplicantName), strings.ToLower(c.ApplicantName)) {
		return false
	}
	if c.Status != "" && r.Status != c.Status {
		return false
	}
	if !c.FromDate.IsZero() && r.ApplicationDate.Before(c.FromDate) {
		return false
	}
	if !c.ToDate.IsZero() && r.ApplicationDate.After(c.ToDate) {
		return false
	}
	return true
}

// ProjectCount returns the number of stored projects.
func (m *MemoryStore) ProjectCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.projects)
}

// ResearcherCount returns the number of stored researchers.
func (m *MemoryStore) ResearcherCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.researchers)
}
