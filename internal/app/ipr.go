package app

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"researchreg/internal/util"
	"researchreg/pkg/domain"
)

const iprListLimit = 50

// IPRForm carries the IPR filing form fields.
type IPRForm struct {
	Title             string            `json:"title"`
	ApplicantName     string            `json:"applicantName"`
	Description       string            `json:"description"`
	Status            string            `json:"status"`
	ApplicationNumber string            `json:"applicationNumber"`
	ApplicationDate   time.Time         `json:"applicationDate"`
	PublicationDate   time.Time         `json:"publicationDate"`
	Email             string            `json:"email"`
	Inventors         []domain.Inventor `json:"inventors"`
}

// AddIPR records an intellectual-property filing with up to two file
// attachments. Blobs are uploaded before the record is written; if the
// record cannot be created the uploads are removed again.
func (a *App) AddIPR(ctx context.Context, form IPRForm, certificate, invention *FileUpload) (domain.IPRRecord, error) {
	form.ApplicationNumber = strings.TrimSpace(form.ApplicationNumber)
	if err := validateIPRForm(form); err != nil {
		return domain.IPRRecord{}, err
	}

	taken, err := a.store.HasApplicationNumber(form.ApplicationNumber)
	if err != nil {
		return domain.IPRRecord{}, fmt.Errorf("check application number: %w", err)
	}
	if taken {
		return domain.IPRRecord{}, ErrDuplicateApplicationNumber
	}

	var certificateID, inventionID string
	if certificate != nil {
		certificateID, err = a.storeBlob(ctx, certificate)
		if err != nil {
			return domain.IPRRecord{}, fmt.Errorf("%w: %v", ErrFileUploadFailed, err)
		}
	}
	if invention != nil {
		inventionID, err = a.storeBlob(ctx, invention)
		if err != nil {
			a.discardBlob(ctx, certificateID)
			return domain.IPRRecord{}, fmt.Errorf("%w: %v", ErrFileUploadFailed, err)
		}
	}

	now := time.Now().UTC()
	record := domain.IPRRecord{
		ID:                util.NewID(),
		Title:             form.Title,
		ApplicantName:     form.ApplicantName,
		Description:       form.Description,
		Status:            form.Status,
		ApplicationNumber: form.ApplicationNumber,
		ApplicationDate:   form.ApplicationDate,
		PublicationDate:   form.PublicationDate,
		Email:             strings.TrimSpace(strings.ToLower(form.Email)),
		CertificateFileID: certificateID,
		InventionFileID:   inventionID,
		Inventors:         form.Inventors,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if err := a.store.CreateIPR(record); err != nil {
		a.discardBlob(ctx, certificateID)
		a.discardBlob(ctx, inventionID)
		return domain.IPRRecord{}, fmt.Errorf("create ipr record: %w", err)
	}
	a.logger.Info("ipr registered",
		"iprId", record.ID,
		"applicationNumber", record.ApplicationNumber,
	)
	return record, nil
}

// ListIPRs returns filings ordered by application date, latest first.
func (a *App) ListIPRs() ([]domain.IPRRecord, error) {
	return a.store.ListIPRs(iprListLimit)
}

// SearchIPRs applies the given filters; empty fields match everything.
func (a *App) SearchIPRs(criteria domain.IPRSearch) ([]domain.IPRRecord, error) {
	return a.store.SearchIPRs(criteria, iprListLimit)
}

// OpenIPRFile streams a stored IPR attachment. Callers must close the
// reader.
func (a *App) OpenIPRFile(ctx context.Context, fileID string) (io.ReadCloser, error) {
	return a.OpenFile(ctx, fileID)
}

// discardBlob removes an uploaded blob after a failed write. Best effort;
// a leaked blob is logged, not surfaced.
func (a *App) discardBlob(ctx context.Context, key string) {
	if key == "" {
		return
	}
	if err := a.blobs.Delete(ctx, key); err != nil {
		a.logger.Error("orphaned blob cleanup failed", "fileId", key, "error", err)
	}
}

func validateIPRForm(form IPRForm) error {
	switch {
	case form.Title == "":
		return fmt.Errorf("%w: title required", ErrValidation)
	case form.ApplicantName == "":
		return fmt.Errorf("%w: applicant name required", ErrValidation)
	case form.ApplicationNumber == "":
		return fmt.Errorf("%w: application number required", ErrValidation)
	}
	for i, inv := range form.Inventors {
		if strings.TrimSpace(inv.Name) == "" {
			return fmt.Errorf("%w: inventor %d name required", ErrValidation, i+1)
		}
	}
	return nil
}
