package domain

import "time"

// Project is a registered research project. The project doubles as the
// login account for later updates, so it carries its own credentials.
type Project struct {
	ID            string    `json:"id"`
	Title         string    `json:"title"`
	Institution   string    `json:"institution"`
	Description   string    `json:"description"`
	Status        string    `json:"status"`
	Start         time.Time `json:"start"`
	End           time.Time `json:"end"`
	Username      string    `json:"username"`
	PasswordHash  string    `json:"-"`
	Email         string    `json:"email"`
	FileID        string    `json:"fileId,omitempty"`
	ResearcherIDs []string  `json:"researchers"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

// Researcher belongs to exactly one project. The ProjectID back-reference
// is weak: deleting a project does not cascade.
type Researcher struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Field     string    `json:"field"`
	Role      string    `json:"role"`
	ProjectID string    `json:"projectId"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Inventor is a name+email pair embedded in an IPR record. Inventors have
// no identity of their own.
type Inventor struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

// IPRRecord is an intellectual-property filing, independent of projects.
type IPRRecord struct {
	ID                string     `json:"id"`
	Title             string     `json:"title"`
	ApplicantName     string     `json:"applicantName"`
	Description       string     `json:"description"`
	Status            string     `json:"status"`
	ApplicationNumber string     `json:"applicationNumber"`
	ApplicationDate   time.Time  `json:"applicationDate"`
	PublicationDate   time.Time  `json:"publicationDate"`
	Email             string     `json:"email"`
	CertificateFileID string     `json:"certificateFileId,omitempty"`
	InventionFileID   string     `json:"inventionFileId,omitempty"`
	Inventors         []Inventor `json:"inventors"`
	CreatedAt         time.Time  `json:"createdAt"`
	UpdatedAt         time.Time  `json:"updatedAt"`
}

// ProjectDetail is a project with its researcher references resolved.
type ProjectDetail struct {
	Project     Project      `json:"project"`
	Researchers []Researcher `json:"researchers"`
}

// IPRSearch carries optional filters for IPR lookups. Zero values mean
// "no constraint".
type IPRSearch struct {
	Title             string    `json:"title"`
	ApplicationNumber string    `json:"applicationNumber"`
	ApplicantName     string    `json:"applicantName"`
	Status            string    `json:"status"`
	FromDate          time.Time `json:"fromDate"`
	ToDate            time.Time `json:"toDate"`
}
