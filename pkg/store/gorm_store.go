package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"time"

	"gorm.io/datatypes"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"researchreg/pkg/domain"
)

const migrateLockID int64 = 52415241

// GormStore implements Store using GORM + Postgres.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore opens the DB and runs auto-migrations.
func NewGormStore(dsn string) (*GormStore, error) {
	gormLog := gormlogger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		gormlogger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  gormlogger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{Logger: gormLog})
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := withMigrationLock(db, func(tx *gorm.DB) error {
		if err := tx.AutoMigrate(&ProjectModel{}, &ResearcherModel{}, &IPRModel{}); err != nil {
			return fmt.Errorf("auto migrate: %w", err)
		}
		return nil
	}); err != nil {
		return nil, err
	}
	return &GormStore{db: db}, nil
}

func withMigrationLock(db *gorm.DB, fn func(*gorm.DB) error) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("get sql db: %w", err)
	}
	conn, err := sqlDB.Conn(ctx)
	if err != nil {
		return fmt.Errorf("open sql conn: %w", err)
	}
	defer conn.Close()
	if err := execAdvisory(ctx, conn, "SELECT pg_advisory_lock($1)", migrateLockID); err != nil {
		return fmt.Errorf("acquire migrate lock: %w", err)
	}
	defer func() {
		_ = execAdvisory(ctx, conn, "SELECT pg_advisory_unlock($1)", migrateLockID)
	}()
	return fn(db)
}

func execAdvisory(ctx context.Context, conn *sql.Conn, query string, lockID int64) error {
	_, err := conn.ExecContext(ctx, query, lockID)
	return err
}

// CreateProjectWithResearchers persists the project document, the
// researcher documents, and the researcher-reference linkage inside one
// transaction, so a failure at any step leaves no partial records.
func (s *GormStore) CreateProjectWithResearchers(project domain.Project, researchers []domain.Researcher) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		model := projectToModel(project)
		model.ResearcherIDs = mustJSON([]string{})
		if err := tx.Create(&model).Error; err != nil {
			return err
		}
		ids := make([]string, 0, len(researchers))
		for _, r := range researchers {
			rm := researcherToModel(r)
			rm.ProjectID = project.ID
			if err := tx.Create(&rm).Error; err != nil {
				return err
			}
			ids = append(ids, rm.ID)
		}
		return tx.Model(&ProjectModel{}).
			Where("id = ?", project.ID).
			Update("researcher_ids", mustJSON(ids)).Error
	})
}

// HasProjectCredentials checks whether username or email is taken.
func (s *GormStore) HasProjectCredentials(username, email string) (bool, error) {
	var count int64
	if err := s.db.Model(&ProjectModel{}).
		Where("username = ? OR email = ?", username, email).
		Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// GetProjectByUsername looks up a project by its login username.
func (s *GormStore) GetProjectByUsername(username string) (domain.Project, bool, error) {
	var model ProjectModel
	if err := s.db.Where("username = ?", username).First(&model).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return domain.Project{}, false, nil
		}
		return domain.Project{}, false, err
	}
	return projectFromModel(model), true, nil
}

// GetProjectByID returns a project by ID.
func (s *GormStore) GetProjectByID(id string) (domain.Project, bool, error) {
	var model ProjectModel
	if err := s.db.First(&model, "id = ?", id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return domain.Project{}, false, nil
		}
		return domain.Project{}, false, err
	}
	return projectFromModel(model), true, nil
}

// UpdateProject persists mutable project fields (status, file id).
func (s *GormStore) UpdateProject(project domain.Project) error {
	return s.db.Model(&ProjectModel{}).
		Where("id = ?", project.ID).
		Updates(map[string]any{
			"status":     project.Status,
			"file_id":    project.FileID,
			"updated_at": time.Now().UTC(),
		}).Error
}

// SetProjectFileID records the blob identifier on the project.
func (s *GormStore) SetProjectFileID(id, fileID string) error {
	return s.db.Model(&ProjectModel{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"file_id":    fileID,
			"updated_at": time.Now().UTC(),
		}).Error
}

// SearchProjectsByTitle matches the query as a case-insensitive substring.
func (s *GormStore) SearchProjectsByTitle(query string, limit int) ([]domain.Project, error) {
	if limit <= 0 {
		limit = 50
	}
	var models []ProjectModel
	if err := s.db.Where("title ILIKE ?", "%"+query+"%").
		Limit(limit).
		Find(&models).Error; err != nil {
		return nil, err
	}
	return projectsFromModels(models), nil
}

// LatestProjects returns the newest projects first.
func (s *GormStore) LatestProjects(limit int) ([]domain.Project, error) {
	if limit <= 0 {
		limit = 10
	}
	var models []ProjectModel
	if err := s.db.Order("created_at DESC").Limit(limit).Find(&models).Error; err != nil {
		return nil, err
	}
	return projectsFromModels(models), nil
}

// GetResearcherByID returns a researcher by ID.
func (s *GormStore) GetResearcherByID(id string) (domain.Researcher, bool, error) {
	var model ResearcherModel
	if err := s.db.First(&model, "id = ?", id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return domain.Researcher{}, false, nil
		}
		return domain.Researcher{}, false, err
	}
	return researcherFromModel(model), true, nil
}

// CreateIPR stores a new IPR record.
func (s *GormStore) CreateIPR(record domain.IPRRecord) error {
	model := iprToModel(record)
	return s.db.Create(&model).Error
}

// HasApplicationNumber checks whether the application number is taken.
func (s *GormStore) HasApplicationNumber(number string) (bool, error) {
	var count int64
	if err := s.db.Model(&IPRModel{}).
		Where("application_number = ?", number).
		Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// ListIPRs returns IPR records by application date, latest first.
func (s *GormStore) ListIPRs(limit int) ([]domain.IPRRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	var models []IPRModel
	if err := s.db.Order("application_date DESC").Limit(limit).Find(&models).Error; err != nil {
		return nil, err
	}
	return iprsFromModels(models), nil
}

// SearchIPRs applies the given filters; empty fields are ignored.
func (s *GormStore) SearchIPRs(criteria domain.IPRSearch, limit int) ([]domain.IPRRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	tx := s.db.Model(&IPRModel{})
	if criteria.Title != "" {
		tx = tx.Where("title ILIKE ?", "%"+criteria.Title+"%")
	}
	if criteria.ApplicationNumber != "" {
		tx = tx.Where("application_number = ?", criteria.ApplicationNumber)
	}
	if criteria.ApplicantName != "" {
		tx = tx.Where("applicant_name ILIKE ?", "%"+criteria.ApplicantName+"%")
	}
	if criteria.Status != "" {
		tx = tx.Where("status = ?", criteria.Status)
	}
	if !criteria.FromDate.IsZero() {
		tx = tx.Where("application_date >= ?", criteria.FromDate)
	}
	if !criteria.ToDate.IsZero() {
		tx = tx.Where("application_date <= ?", criteria.ToDate)
	}
	var models []IPRModel
	if err := tx.Limit(limit).Find(&models).Error; err != nil {
		return nil, err
	}
	return iprsFromModels(models), nil
}

func projectToModel(p domain.Project) ProjectModel {
	return ProjectModel{
		ID:            p.ID,
		Title:         p.Title,
		Institution:   p.Institution,
		Description:   p.Description,
		Status:        p.Status,
		Start:         p.Start,
		End:           p.End,
		Username:      p.Username,
		PasswordHash:  p.PasswordHash,
		Email:         p.Email,
		FileID:        p.FileID,
		ResearcherIDs: mustJSON(p.ResearcherIDs),
		CreatedAt:     p.CreatedAt,
		UpdatedAt:     p.UpdatedAt,
	}
}

func projectFromModel(m ProjectModel) domain.Project {
	var ids []string
	if len(m.ResearcherIDs) > 0 {
		_ = json.Unmarshal(m.ResearcherIDs, &ids)
	}
	return domain.Project{
		ID:            m.ID,
		Title:         m.Title,
		Institution:   m.Institution,
		Description:   m.Description,
		Status:        m.Status,
		Start:         m.Start,
		End:           m.End,
		Username:      m.Username,
		PasswordHash:  m.PasswordHash,
		Email:         m.Email,
		FileID:        m.FileID,
		ResearcherIDs: ids,
		CreatedAt:     m.CreatedAt,
		UpdatedAt:     m.UpdatedAt,
	}
}

func projectsFromModels(models []ProjectModel) []domain.Project {
	res := make([]domain.Project, 0, len(models))
	for _, m := range models {
		res = append(res, projectFromModel(m))
	}
	return res
}

func researcherToModel(r domain.Researcher) ResearcherModel {
	return ResearcherModel{
		ID:        r.ID,
		Name:      r.Name,
		Email:     r.Email,
		Field:     r.Field,
		Role:      r.Role,
		ProjectID: r.ProjectID,
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}
}

func researcherFromModel(m ResearcherModel) domain.Researcher {
	return domain.Researcher{
		ID:        m.ID,
		Name:      m.Name,
		Email:     m.Email,
		Field:     m.Field,
		Role:      m.Role,
		ProjectID: m.ProjectID,
		CreatedAt: m.CreatedAt,
		UpdatedAt: m.UpdatedAt,
	}
}

func iprToModel(r domain.IPRRecord) IPRModel {
	return IPRModel{
		ID:                r.ID,
		Title:             r.Title,
		ApplicantName:     r.ApplicantName,
		Description:       r.Description,
		Status:            r.Status,
		ApplicationNumber: r.ApplicationNumber,
		ApplicationDate:   r.ApplicationDate,
		PublicationDate:   r.PublicationDate,
		Email:             r.Email,
		CertificateFileID: r.CertificateFileID,
		InventionFileID:   r.InventionFileID,
		Inventors:         mustJSON(r.Inventors),
		CreatedAt:         r.CreatedAt,
		UpdatedAt:         r.UpdatedAt,
	}
}

func iprFromModel(m IPRModel) domain.IPRRecord {
	var inventors []domain.Inventor
	if len(m.Inventors) > 0 {
		_ = json.Unmarshal(m.Inventors, &inventors)
	}
	return domain.IPRRecord{
		ID:                m.ID,
		Title:             m.Title,
		ApplicantName:     m.ApplicantName,
		Description:       m.Description,
		Status:            m.Status,
		ApplicationNumber: m.ApplicationNumber,
		ApplicationDate:   m.ApplicationDate,
		PublicationDate:   m.PublicationDate,
		Email:             m.Email,
		CertificateFileID: m.CertificateFileID,
		InventionFileID:   m.InventionFileID,
		Inventors:         inventors,
		CreatedAt:         m.CreatedAt,
		UpdatedAt:         m.UpdatedAt,
	}
}

func iprsFromModels(models []IPRModel) []domain.IPRRecord {
	res := make([]domain.IPRRecord, 0, len(models))
	for _, m := range models {
		res = append(res, iprFromModel(m))
	}
	return res
}

func mustJSON(v any) datatypes.JSON {
	data, _ := json.Marshal(v)
	return datatypes.JSON(data)
}
