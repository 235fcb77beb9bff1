package app

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"researchreg/pkg/domain"
	"researchreg/pkg/storage"
	"researchreg/pkg/store"
)

func newTestApp(t *testing.T) (*App, *store.MemoryStore, *storage.MemoryStore) {
	t.Helper()
	docs := store.NewMemoryStore()
	blobs := storage.NewMemoryStore()
	sessions, err := store.NewJWTSessionStore("test-secret", time.Hour, store.NewMemoryTokenRevoker(), store.JWTOptions{})
	if err != nil {
		t.Fatalf("session store: %v", err)
	}
	a, err := New(Config{Store: docs, Blobs: blobs, Sessions: sessions})
	if err != nil {
		t.Fatalf("new app: %v", err)
	}
	return a, docs, blobs
}

func projectForm(username, email string) ProjectForm {
	return ProjectForm{
		Title:       "Coastal Erosion Study",
		Institution: "Marine Institute",
		Description: "Monitoring shoreline changes",
		Status:      "active",
		Start:       time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
		End:         time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		Username:    username,
		Password:    "p",
		Email:       email,
	}
}

func upload(name, content string) *FileUpload {
	return &FileUpload{
		Name:        name,
		ContentType: "application/pdf",
		Size:        int64(len(content)),
		Content:     strings.NewReader(content),
	}
}

func TestRegisterProjectWithResearchersAndFile(t *testing.T) {
	a, docs, blobs := newTestApp(t)
	researchers := []ResearcherForm{
		{Name: "Ada", Email: "ada@example.com", Role: "lead", Field: "oceanography"},
		{Name: "Grace", Email: "grace@example.com", Role: "analyst", Field: "statistics"},
		{Name: "Alan", Email: "alan@example.com", Role: "member", Field: "modelling"},
	}
	res, err := a.RegisterProject(context.Background(), projectForm("coastal", "c@example.com"), researchers, upload("proposal.pdf", "pdf-bytes"))
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if res.ProjectID == "" || res.FileID == "" {
		t.Fatalf("expected ids, got %+v", res)
	}
	if docs.ResearcherCount() != 3 {
		t.Fatalf("expected 3 researchers, got %d", docs.ResearcherCount())
	}
	project, ok, _ := docs.GetProjectByID(res.ProjectID)
	if !ok {
		t.Fatalf("project missing")
	}
	if len(project.ResearcherIDs) != 3 {
		t.Fatalf("expected 3 researcher refs, got %d", len(project.ResearcherIDs))
	}
	for i, id := range project.ResearcherIDs {
		r, found, _ := docs.GetResearcherByID(id)
		if !found {
			t.Fatalf("researcher ref %d dangling", i)
		}
		if r.Name != researchers[i].Name {
			t.Fatalf("researcher order broken at %d: got %q want %q", i, r.Name, researchers[i].Name)
		}
		if r.ProjectID != res.ProjectID {
			t.Fatalf("researcher %d back-reference missing", i)
		}
	}
	rc, err := blobs.Get(context.Background(), res.FileID)
	if err != nil {
		t.Fatalf("stored file missing: %v", err)
	}
	defer rc.Close()
	data, _ := io.ReadAll(rc)
	if !bytes.Equal(data, []byte("pdf-bytes")) {
		t.Fatalf("stored file differs")
	}
}

func TestRegisterProjectWithoutFile(t *testing.T) {
	a, docs, _ := newTestApp(t)
	res, err := a.RegisterProject(context.Background(), projectForm("nofile", "n@example.com"), nil, nil)
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if res.FileID != "" {
		t.Fatalf("expected empty file id, got %q", res.FileID)
	}
	project, ok, _ := docs.GetProjectByID(res.ProjectID)
	if !ok || project.FileID != "" {
		t.Fatalf("expected project without file reference, got %+v", project)
	}
}

func TestRegisterDuplicateCredentialsLeavesNothing(t *testing.T) {
	a, docs, _ := newTestApp(t)
	if _, err := a.RegisterProject(context.Background(), projectForm("dup", "dup@example.com"), nil, nil); err != nil {
		t.Fatalf("first register: %v", err)
	}
	before := docs.ResearcherCount()

	// same username, fresh email
	_, err := a.RegisterProject(context.Background(), projectForm("dup", "other@example.com"),
		[]ResearcherForm{{Name: "Ada"}}, nil)
	if !errors.Is(err, ErrDuplicateCredentials) {
		t.Fatalf("expected duplicate credentials, got %v", err)
	}
	// fresh username, same email
	_, err = a.RegisterProject(context.Background(), projectForm("fresh", "dup@example.com"),
		[]ResearcherForm{{Name: "Ada"}}, nil)
	if !errors.Is(err, ErrDuplicateCredentials) {
		t.Fatalf("expected duplicate credentials, got %v", err)
	}
	if docs.ProjectCount() != 1 {
		t.Fatalf("expected one project after rejections, got %d", docs.ProjectCount())
	}
	if docs.ResearcherCount() != before {
		t.Fatalf("rejected registration wrote researchers")
	}
}

func TestRegisterPasswordIsHashed(t *testing.T) {
	a, docs, _ := newTestApp(t)
	res, err := a.RegisterProject(context.Background(), projectForm("hashed", "h@example.com"), nil, nil)
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	project, _, _ := docs.GetProjectByID(res.ProjectID)
	if project.PasswordHash == "p" || project.PasswordHash == "" {
		t.Fatalf("password stored in the clear")
	}
	if !strings.HasPrefix(project.PasswordHash, "$2") {
		t.Fatalf("expected bcrypt hash, got %q", project.PasswordHash)
	}
}

// failingBlobStore rejects writes, simulating an unreachable object store.
type failingBlobStore struct {
	storage.ObjectStore
}

func (f failingBlobStore) Put(context.Context, string, io.Reader, int64, string) error {
	return errors.New("storage unreachable")
}

func TestRegisterFileUploadFailureKeepsRegistration(t *testing.T) {
	docs := store.NewMemoryStore()
	sessions, _ := store.NewJWTSessionStore("test-secret", time.Hour, store.NewMemoryTokenRevoker(), store.JWTOptions{})
	a, err := New(Config{
		Store:    docs,
		Blobs:    failingBlobStore{storage.NewMemoryStore()},
		Sessions: sessions,
	})
	if err != nil {
		t.Fatalf("new app: %v", err)
	}
	res, err := a.RegisterProject(context.Background(), projectForm("broken", "b@example.com"), nil, upload("doc.pdf", "x"))
	if !errors.Is(err, ErrFileUploadFailed) {
		t.Fatalf("expected file upload failure, got %v", err)
	}
	if res.ProjectID == "" {
		t.Fatalf("project id must be reported even when the upload fails")
	}
	project, ok, _ := docs.GetProjectByID(res.ProjectID)
	if !ok {
		t.Fatalf("registration must survive upload failure")
	}
	if project.FileID != "" {
		t.Fatalf("failed upload must not be referenced")
	}
}

func TestRegisterValidation(t *testing.T) {
	a, docs, _ := newTestApp(t)
	cases := map[string]func(*ProjectForm){
		"empty title":       func(f *ProjectForm) { f.Title = "" },
		"empty institution": func(f *ProjectForm) { f.Institution = "" },
		"empty description": func(f *ProjectForm) { f.Description = "" },
		"empty status":      func(f *ProjectForm) { f.Status = "" },
		"zero start date":   func(f *ProjectForm) { f.Start = time.Time{} },
		"zero end date":     func(f *ProjectForm) { f.End = time.Time{} },
		"empty username":    func(f *ProjectForm) { f.Username = "" },
		"empty email":       func(f *ProjectForm) { f.Email = "" },
		"empty password":    func(f *ProjectForm) { f.Password = "" },
	}
	for name, mutate := range cases {
		form := projectForm("v", "v@example.com")
		mutate(&form)
		if _, err := a.RegisterProject(context.Background(), form, nil, nil); !errors.Is(err, ErrValidation) {
			t.Fatalf("%s: expected validation error, got %v", name, err)
		}
	}
	if docs.ProjectCount() != 0 {
		t.Fatalf("rejected registrations must write nothing, got %d projects", docs.ProjectCount())
	}
}

func TestUpdateProjectReplacesFile(t *testing.T) {
	a, docs, blobs := newTestApp(t)
	res, err := a.RegisterProject(context.Background(), projectForm("upd", "u@example.com"), nil, upload("v1.pdf", "one"))
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	oldFileID := res.FileID

	updated, err := a.UpdateProject(context.Background(), "upd", "p", "completed", upload("v2.pdf", "two"))
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.FileID == oldFileID || updated.FileID == "" {
		t.Fatalf("expected new file id, got %q", updated.FileID)
	}
	if updated.Status != "completed" {
		t.Fatalf("status not updated: %q", updated.Status)
	}
	if exists, _ := blobs.Exists(context.Background(), oldFileID); exists {
		t.Fatalf("old blob must be removed")
	}
	rc, err := blobs.Get(context.Background(), updated.FileID)
	if err != nil {
		t.Fatalf("new blob missing: %v", err)
	}
	defer rc.Close()
	data, _ := io.ReadAll(rc)
	if string(data) != "two" {
		t.Fatalf("new blob content differs: %q", data)
	}
	stored, _, _ := docs.GetProjectByID(res.ProjectID)
	if stored.FileID != updated.FileID {
		t.Fatalf("file id not persisted")
	}
}

func TestUpdateProjectMissingOldBlobIsIdempotent(t *testing.T) {
	a, _, blobs := newTestApp(t)
	res, err := a.RegisterProject(context.Background(), projectForm("idem", "i@example.com"), nil, upload("v1.pdf", "one"))
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	// someone already removed the blob out of band
	if err := blobs.Delete(context.Background(), res.FileID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	updated, err := a.UpdateProject(context.Background(), "idem", "p", "", upload("v2.pdf", "two"))
	if err != nil {
		t.Fatalf("update with missing old blob: %v", err)
	}
	if updated.FileID == "" || updated.FileID == res.FileID {
		t.Fatalf("expected fresh file id, got %q", updated.FileID)
	}
}

func TestUpdateProjectWrongPasswordMutatesNothing(t *testing.T) {
	a, docs, blobs := newTestApp(t)
	res, err := a.RegisterProject(context.Background(), projectForm("locked", "l@example.com"), nil, upload("v1.pdf", "one"))
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	_, err = a.UpdateProject(context.Background(), "locked", "wrong", "completed", upload("v2.pdf", "two"))
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected invalid credentials, got %v", err)
	}
	project, _, _ := docs.GetProjectByID(res.ProjectID)
	if project.Status != "active" || project.FileID != res.FileID {
		t.Fatalf("rejected update mutated the project: %+v", project)
	}
	if exists, _ := blobs.Exists(context.Background(), res.FileID); !exists {
		t.Fatalf("rejected update removed the blob")
	}
}

func TestLoginLogoutSessionLifecycle(t *testing.T) {
	a, _, _ := newTestApp(t)
	res, err := a.RegisterProject(context.Background(), projectForm("sess", "s@example.com"), nil, nil)
	if err != nil {
		t.Fatalf("register: %v", err)
	}

	if _, _, err := a.Login("sess", "nope"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected invalid credentials, got %v", err)
	}
	if _, _, err := a.Login("ghost", "p"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("unknown username must not be distinguishable, got %v", err)
	}

	project, token, err := a.Login("sess", "p")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if project.ID != res.ProjectID {
		t.Fatalf("login returned wrong project")
	}
	resolved, ok := a.ProjectFromToken(token)
	if !ok || resolved.ID != res.ProjectID {
		t.Fatalf("token did not resolve to project")
	}
	if err := a.Logout(token); err != nil {
		t.Fatalf("logout: %v", err)
	}
	if _, ok := a.ProjectFromToken(token); ok {
		t.Fatalf("token must be dead after logout")
	}
}

func TestProjectDetailAndProfile(t *testing.T) {
	a, _, _ := newTestApp(t)
	res, err := a.RegisterProject(context.Background(), projectForm("det", "d@example.com"),
		[]ResearcherForm{{Name: "Ada", Email: "ada@example.com"}}, nil)
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	detail, err := a.ProjectDetail(res.ProjectID)
	if err != nil {
		t.Fatalf("detail: %v", err)
	}
	if len(detail.Researchers) != 1 || detail.Researchers[0].Name != "Ada" {
		t.Fatalf("researchers not resolved: %+v", detail.Researchers)
	}
	if _, err := a.ProjectDetail("missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}

	project, _, err := a.Login("det", "p")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	profile, err := a.Profile(project)
	if err != nil {
		t.Fatalf("profile: %v", err)
	}
	if profile.Project.ID != res.ProjectID || len(profile.Researchers) != 1 {
		t.Fatalf("profile mismatch: %+v", profile)
	}
}

func TestSearchAndLatestProjects(t *testing.T) {
	a, _, _ := newTestApp(t)
	for i, name := range []string{"alpha", "beta", "gamma"} {
		form := projectForm(name, name+"@example.com")
		form.Title = "Deep Sea Survey " + name
		if _, err := a.RegisterProject(context.Background(), form, nil, nil); err != nil {
			t.Fatalf("register %d: %v", i, err)
		}
	}
	found, err := a.SearchProjects("DEEP SEA")
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(found) != 3 {
		t.Fatalf("expected 3 matches, got %d", len(found))
	}
	if _, err := a.SearchProjects("   "); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected validation error for blank query, got %v", err)
	}
	latest, err := a.LatestProjects()
	if err != nil {
		t.Fatalf("latest: %v", err)
	}
	if len(latest) != 3 {
		t.Fatalf("expected 3 latest, got %d", len(latest))
	}
}

func TestOpenFile(t *testing.T) {
	a, _, _ := newTestApp(t)
	res, err := a.RegisterProject(context.Background(), projectForm("open", "o@example.com"), nil, upload("doc.pdf", "payload"))
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	rc, err := a.OpenFile(context.Background(), res.FileID)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer rc.Close()
	data, _ := io.ReadAll(rc)
	if string(data) != "payload" {
		t.Fatalf("content differs: %q", data)
	}
	if _, err := a.OpenFile(context.Background(), "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestAddIPRUniqueApplicationNumber(t *testing.T) {
	a, _, blobs := newTestApp(t)
	form := IPRForm{
		Title:             "Wave Energy Converter",
		ApplicantName:     "Marine Institute",
		ApplicationNumber: "APP-1001",
		ApplicationDate:   time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC),
		Status:            "filed",
		Inventors:         []domain.Inventor{{Name: "Ada", Email: "ada@example.com"}},
	}
	record, err := a.AddIPR(context.Background(), form, upload("cert.pdf", "cert"), upload("spec.pdf", "inv"))
	if err != nil {
		t.Fatalf("add ipr: %v", err)
	}
	if record.CertificateFileID == "" || record.InventionFileID == "" {
		t.Fatalf("file ids missing: %+v", record)
	}
	if exists, _ := blobs.Exists(context.Background(), record.CertificateFileID); !exists {
		t.Fatalf("certificate blob missing")
	}

	_, err = a.AddIPR(context.Background(), form, nil, nil)
	if !errors.Is(err, ErrDuplicateApplicationNumber) {
		t.Fatalf("expected duplicate application number, got %v", err)
	}
}

func TestAddIPRValidation(t *testing.T) {
	a, _, _ := newTestApp(t)
	_, err := a.AddIPR(context.Background(), IPRForm{ApplicantName: "x", ApplicationNumber: "1"}, nil, nil)
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestListAndSearchIPRs(t *testing.T) {
	a, _, _ := newTestApp(t)
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		form := IPRForm{
			Title:             "Sensor Array",
			ApplicantName:     "Lab",
			ApplicationNumber: "APP-" + strings.Repeat("0", i+1),
			ApplicationDate:   base.AddDate(0, i, 0),
			Status:            "filed",
		}
		if _, err := a.AddIPR(context.Background(), form, nil, nil); err != nil {
			t.Fatalf("add %d: %v", i, err)
		}
	}
	records, err := a.ListIPRs()
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("expected 3 records, got %d", len(records))
	}
	if !records[0].ApplicationDate.After(records[1].ApplicationDate) {
		t.Fatalf("records not ordered by application date desc")
	}

	found, err := a.SearchIPRs(domain.IPRSearch{FromDate: base.AddDate(0, 1, 0)})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(found) != 2 {
		t.Fatalf("expected 2 records in range, got %d", len(found))
	}
	exact, err := a.SearchIPRs(domain.IPRSearch{ApplicationNumber: "APP-0"})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(exact) != 1 {
		t.Fatalf("expected exact match, got %d", len(exact))
	}
}
