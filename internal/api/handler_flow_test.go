package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/kimshangyup/neulbom/internal/auth"
	"github.com/kimshangyup/neulbom/internal/config"
	"github.com/kimshangyup/neulbom/internal/db"
	"github.com/kimshangyup/neulbom/internal/model"
	"github.com/kimshangyup/neulbom/internal/provisioning"
	"github.com/kimshangyup/neulbom/internal/spaces"
	"github.com/kimshangyup/neulbom/internal/zep"
	"github.com/kimshangyup/neulbom/pkg/errors"
)

// memRepo is an in-memory db.Repository for driving the upload/confirm
// flow end to end.
type memRepo struct {
	nextID   int64
	schools  map[string]*model.School
	classes  map[string]*model.Class
	accounts map[string]*model.Account
	profiles []model.StudentProfile
	spaces   []model.StudentSpace
	attempts map[int64]*model.FailedProvisioningAttempt
}

func newMemRepo() *memRepo {
	return &memRepo{
		schools:  make(map[string]*model.School),
		classes:  make(map[string]*model.Class),
		accounts: make(map[string]*model.Account),
		attempts: make(map[int64]*model.FailedProvisioningAttempt),
	}
}

func (m *memRepo) id() int64 { m.nextID++; return m.nextID }

func (m *memRepo) InTx(_ context.Context, fn func(db.Repository) error) error { return fn(m) }

func (m *memRepo) GetOrCreateSchool(_ context.Context, name string, instructorID *int64) (*model.School, bool, error) {
	if school, ok := m.schools[name]; ok {
		return school, false, nil
	}
	school := &model.School{ID: m.id(), Name: name, InstructorID: instructorID}
	m.schools[name] = school
	return school, true, nil
}

func (m *memRepo) GetSchool(_ context.Context, id int64) (*model.School, error) {
	for _, school := range m.schools {
		if school.ID == id {
			return school, nil
		}
	}
	return nil, errors.ErrNotFound
}

func (m *memRepo) GetOrCreateClass(_ context.Context, name string, schoolID, instructorID int64, year int, semester model.Semester) (*model.Class, bool, error) {
	key := fmt.Sprintf("%d/%s", schoolID, name)
	if class, ok := m.classes[key]; ok {
		return class, false, nil
	}
	class := &model.Class{
		ID: m.id(), Name: name, SchoolID: schoolID,
		InstructorID: &instructorID, AcademicYear: year, Semester: semester,
	}
	m.classes[key] = class
	return class, true, nil
}

func (m *memRepo) GetClass(_ context.Context, id int64) (*model.Class, error) {
	for _, class := range m.classes {
		if class.ID == id {
			return class, nil
		}
	}
	return nil, errors.ErrNotFound
}

func (m *memRepo) GetClassInstructorEmail(context.Context, int64) (string, error) {
	return "teacher@neulbom.internal", nil
}

func (m *memRepo) CreateAccount(_ context.Context, account *model.Account) error {
	if _, ok := m.accounts[account.Email]; ok {
		return errors.ErrAlreadyExists
	}
	account.ID = m.id()
	m.accounts[account.Email] = account
	return nil
}

func (m *memRepo) AccountEmailExists(_ context.Context, email string) (bool, error) {
	_, ok := m.accounts[email]
	return ok, nil
}

func (m *memRepo) ListAdminEmails(context.Context) ([]string, error) { return nil, nil }

func (m *memRepo) CreateStudentProfile(_ context.Context, student *model.StudentProfile) error {
	student.ID = m.id()
	m.profiles = append(m.profiles, *student)
	return nil
}

func (m *memRepo) GetStudent(_ context.Context, id int64) (*model.StudentProfile, error) {
	for i := range m.profiles {
		if m.profiles[i].ID == id {
			return &m.profiles[i], nil
		}
	}
	return nil, errors.ErrNotFound
}

func (m *memRepo) ListStudentsByInstructor(context.Context, int64, string, *int64) ([]model.StudentProfile, error) {
	return m.profiles, nil
}

func (m *memRepo) StudentExistsInClass(context.Context, string, string, string, int64) (bool, error) {
	return false, nil
}

func (m *memRepo) UpdateStudentSpace(_ context.Context, studentID int64, url string, isPublic *bool) error {
	for i := range m.profiles {
		if m.profiles[i].ID == studentID {
			m.profiles[i].ZEPSpaceURL = url
			return nil
		}
	}
	return errors.ErrNotFound
}

func (m *memRepo) CreateStudentSpace(_ context.Context, space *model.StudentSpace) error {
	space.ID = m.id()
	m.spaces = append(m.spaces, *space)
	return nil
}

func (m *memRepo) CreateFailedAttempt(_ context.Context, studentID int64, errorMessage string) error {
	id := m.id()
	m.attempts[id] = &model.FailedProvisioningAttempt{ID: id, StudentID: studentID, ErrorMessage: errorMessage}
	return nil
}

func (m *memRepo) GetFailedAttempt(_ context.Context, id int64) (*model.FailedProvisioningAttempt, error) {
	attempt, ok := m.attempts[id]
	if !ok {
		return nil, errors.ErrNotFound
	}
	return attempt, nil
}

func (m *memRepo) ListUnresolvedAttempts(context.Context) ([]model.FailedProvisioningAttempt, error) {
	return nil, nil
}
func (m *memRepo) MarkAttemptResolved(context.Context, int64) error   { return nil }
func (m *memRepo) IncrementAttemptRetry(context.Context, int64) error { return nil }

// memSessions is an in-memory SessionStore.
type memSessions struct {
	next     int
	sessions map[string]model.UploadSession
}

func newMemSessions() *memSessions {
	return &memSessions{sessions: make(map[string]model.UploadSession)}
}

func (s *memSessions) Create(_ context.Context, instructorID int64, rows []model.RosterRow) (*model.UploadSession, error) {
	s.next++
	session := model.UploadSession{
		ID:           fmt.Sprintf("sess-%d", s.next),
		InstructorID: instructorID,
		Rows:         rows,
		CreatedAt:    time.Now(),
	}
	s.sessions[session.ID] = session
	return &session, nil
}

func (s *memSessions) Get(_ context.Context, id string) (*model.UploadSession, error) {
	session, ok := s.sessions[id]
	if !ok {
		return nil, errors.ErrSessionNotFound
	}
	return &session, nil
}

func (s *memSessions) Update(_ context.Context, session *model.UploadSession) error {
	s.sessions[session.ID] = *session
	return nil
}

type memArchive struct{ keys []string }

func (a *memArchive) Upload(_ context.Context, key string, _ io.Reader) error {
	a.keys = append(a.keys, key)
	return nil
}
func (a *memArchive) Download(context.Context, string) (io.ReadCloser, error) {
	return nil, errors.ErrNotFound
}
func (a *memArchive) Delete(context.Context, string) error         { return nil }
func (a *memArchive) Exists(context.Context, string) (bool, error) { return false, nil }

type memSpaceClient struct{ created int }

func (c *memSpaceClient) CreateSpace(_ context.Context, req zep.CreateSpaceRequest) (*zep.Space, error) {
	c.created++
	id := fmt.Sprintf("sp-%d", c.created)
	return &zep.Space{SpaceID: id, URL: "https://zep.us/" + id, Name: req.Name}, nil
}
func (c *memSpaceClient) SetPermissions(context.Context, string, string, []string) error {
	return nil
}

type memEnqueuer struct{ jobs []model.SpaceRetryJob }

func (e *memEnqueuer) EnqueueSpaceRetry(_ context.Context, job model.SpaceRetryJob) error {
	e.jobs = append(e.jobs, job)
	return nil
}

type flowEnv struct {
	router *gin.Engine
	repo   *memRepo
}

func newFlowEnv(t *testing.T) *flowEnv {
	t.Helper()

	cfg := &config.Config{}
	cfg.Provisioning = config.ProvisioningConfig{
		EmailDomain:        "neulbom.internal",
		PasswordLength:     12,
		MaxAutoSpaceBatch:  30,
		MaxUploadSizeBytes: 5 * 1024 * 1024,
	}
	cfg.Auth.JWTSecret = "secret"

	repo := newMemRepo()
	handler := NewHandler(
		repo,
		newMemSessions(),
		&memEnqueuer{},
		&memArchive{},
		provisioning.NewService(repo, cfg.Provisioning),
		spaces.NewOrchestrator(repo, &memSpaceClient{}, cfg.Provisioning),
		cfg,
	)

	router := gin.New()
	SetupRoutes(router, handler, cfg.Auth.JWTSecret)
	return &flowEnv{router: router, repo: repo}
}

func bearerFor(t *testing.T, userID int64, role model.Role) string {
	t.Helper()
	tok, err := auth.GenerateToken("secret", time.Hour, &model.Account{
		ID: userID, Username: fmt.Sprintf("user%d", userID), Email: fmt.Sprintf("user%d@x", userID), Role: role,
	})
	if err != nil {
		t.Fatal(err)
	}
	return "Bearer " + tok
}

func (e *flowEnv) uploadCSV(t *testing.T, bearer, csv string) map[string]interface{} {
	t.Helper()

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", "roster.csv")
	if err != nil {
		t.Fatal(err)
	}
	part.Write([]byte(csv))
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/v1/roster/upload", &body)
	req.Header.Set("Authorization", bearer)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("upload status = %d, body: %s", w.Code, w.Body.String())
	}
	var resp map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	return resp
}

func (e *flowEnv) confirm(t *testing.T, bearer, payload string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/roster/confirm", strings.NewReader(payload))
	req.Header.Set("Authorization", bearer)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func TestUploadConfirmFlow(t *testing.T) {
	env := newFlowEnv(t)
	bearer := bearerFor(t, 7, model.RoleInstructor)

	preview := env.uploadCSV(t, bearer, "school_name,class_name,student_name\n서울초,1반,홍길동\n")
	sessionID, _ := preview["session_id"].(string)
	if sessionID == "" {
		t.Fatalf("no session_id in preview: %v", preview)
	}
	rows, _ := preview["rows"].([]interface{})
	if len(rows) != 1 {
		t.Fatalf("preview rows = %d, want 1", len(rows))
	}
	if rows[0].(map[string]interface{})["is_duplicate"] == true {
		t.Error("fresh row must not be flagged as duplicate")
	}

	w := env.confirm(t, bearer, fmt.Sprintf(`{"session_id":%q}`, sessionID))
	if w.Code != http.StatusOK {
		t.Fatalf("confirm status = %d, body: %s", w.Code, w.Body.String())
	}
	var summary model.ProvisionSummary
	if err := json.Unmarshal(w.Body.Bytes(), &summary); err != nil {
		t.Fatal(err)
	}
	if summary.Created != 1 || summary.Failed != 0 {
		t.Fatalf("summary = %+v, want 1 created", summary)
	}

	// Exactly one student account with the full hierarchy behind it.
	if len(env.repo.accounts) != 1 || len(env.repo.profiles) != 1 {
		t.Fatalf("accounts = %d, profiles = %d, want 1 each", len(env.repo.accounts), len(env.repo.profiles))
	}
	for _, account := range env.repo.accounts {
		if account.Role != model.RoleStudent || account.Name != "홍길동" {
			t.Errorf("unexpected account: %+v", account)
		}
	}

	school, ok := env.repo.schools["서울초"]
	if !ok {
		t.Fatal("school 서울초 was not created")
	}
	profile := env.repo.profiles[0]
	if profile.ClassID == nil {
		t.Fatal("profile has no class assignment")
	}
	class, err := env.repo.GetClass(context.Background(), *profile.ClassID)
	if err != nil || class.Name != "1반" || class.SchoolID != school.ID {
		t.Errorf("class resolution wrong: %+v (err %v)", class, err)
	}
}

func TestConfirmRejectsForeignSession(t *testing.T) {
	env := newFlowEnv(t)
	owner := bearerFor(t, 7, model.RoleInstructor)
	other := bearerFor(t, 8, model.RoleInstructor)

	preview := env.uploadCSV(t, owner, "school_name,class_name,student_name\n서울초,1반,홍길동\n")
	sessionID := preview["session_id"].(string)

	w := env.confirm(t, other, fmt.Sprintf(`{"session_id":%q}`, sessionID))
	if w.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", w.Code)
	}
	if len(env.repo.accounts) != 0 {
		t.Error("foreign confirm must not create accounts")
	}
}

func TestConfirmRejectsSecondConfirm(t *testing.T) {
	env := newFlowEnv(t)
	bearer := bearerFor(t, 7, model.RoleInstructor)

	preview := env.uploadCSV(t, bearer, "school_name,class_name,student_name\n서울초,1반,홍길동\n")
	payload := fmt.Sprintf(`{"session_id":%q}`, preview["session_id"].(string))

	if w := env.confirm(t, bearer, payload); w.Code != http.StatusOK {
		t.Fatalf("first confirm status = %d", w.Code)
	}
	if w := env.confirm(t, bearer, payload); w.Code != http.StatusConflict {
		t.Fatalf("second confirm status = %d, want 409", w.Code)
	}
	if len(env.repo.accounts) != 1 {
		t.Errorf("accounts = %d, double confirm must not provision twice", len(env.repo.accounts))
	}
}

func TestConfirmAppliesSelectedIndices(t *testing.T) {
	env := newFlowEnv(t)
	bearer := bearerFor(t, 7, model.RoleInstructor)

	preview := env.uploadCSV(t, bearer,
		"school_name,class_name,student_name\n서울초,1반,홍길동\n서울초,1반,김철수\n")
	sessionID := preview["session_id"].(string)

	w := env.confirm(t, bearer, fmt.Sprintf(`{"session_id":%q,"selected":[1]}`, sessionID))
	if w.Code != http.StatusOK {
		t.Fatalf("confirm status = %d, body: %s", w.Code, w.Body.String())
	}
	if len(env.repo.profiles) != 1 {
		t.Fatalf("profiles = %d, want only the selected row", len(env.repo.profiles))
	}
	if env.repo.profiles[0].Name != "김철수" {
		t.Errorf("provisioned %q, want the second row", env.repo.profiles[0].Name)
	}
}
