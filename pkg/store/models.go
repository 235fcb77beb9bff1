package store

import (
	"time"

	"gorm.io/datatypes"
)

// GORM models used for persistence.
type ProjectModel struct {
	ID            string         `gorm:"primaryKey"`
	Title         string         `gorm:"not null;index"`
	Institution   string         `gorm:"not null"`
	Description   string         `gorm:"type:text;not null"`
	Status        string         `gorm:"not null"`
	Start         time.Time      `gorm:"column:start_date"`
	End           time.Time      `gorm:"column:end_date"`
	Username      string         `gorm:"uniqueIndex;not null"`
	PasswordHash  string         `gorm:"not null"`
	Email         string         `gorm:"uniqueIndex;not null"`
	FileID        string         `gorm:"column:file_id"`
	ResearcherIDs datatypes.JSON `gorm:"type:jsonb"`
	CreatedAt     time.Time      `gorm:"not null;index"`
	UpdatedAt     time.Time
}

type ResearcherModel struct {
	ID        string    `gorm:"primaryKey"`
	Name      string    `gorm:"not null"`
	Email     string    `gorm:"not null"`
	Field     string    `gorm:"not null"`
	Role      string    `gorm:"not null"`
	ProjectID string    `gorm:"not null;index"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

type IPRModel struct {
	ID                string         `gorm:"primaryKey"`
	Title             string         `gorm:"not null;index"`
	ApplicantName     string         `gorm:"not null"`
	Description       string         `gorm:"type:text;not null"`
	Status            string         `gorm:"not null"`
	ApplicationNumber string         `gorm:"uniqueIndex;not null"`
	ApplicationDate   time.Time      `gorm:"index"`
	PublicationDate   time.Time
	Email             string         `gorm:"not null"`
	CertificateFileID string         `gorm:"column:certificate_file_id"`
	InventionFileID   string         `gorm:"column:invention_file_id"`
	Inventors         datatypes.JSON `gorm:"type:jsonb"`
	CreatedAt         time.Time      `gorm:"not null"`
	UpdatedAt         time.Time
}
