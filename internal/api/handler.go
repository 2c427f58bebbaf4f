package api

import (
	"bytes"
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/kimshangyup/neulbom/internal/auth"
	"github.com/kimshangyup/neulbom/internal/config"
	"github.com/kimshangyup/neulbom/internal/db"
	"github.com/kimshangyup/neulbom/internal/logger"
	"github.com/kimshangyup/neulbom/internal/model"
	"github.com/kimshangyup/neulbom/internal/provisioning"
	"github.com/kimshangyup/neulbom/internal/roster"
	"github.com/kimshangyup/neulbom/internal/spaces"
	"github.com/kimshangyup/neulbom/internal/storage"
	"github.com/kimshangyup/neulbom/pkg/errors"
)

// SessionStore is the upload-session surface the handlers use. Satisfied
// by session.Store.
type SessionStore interface {
	Create(ctx context.Context, instructorID int64, rows []model.RosterRow) (*model.UploadSession, error)
	Get(ctx context.Context, id string) (*model.UploadSession, error)
	Update(ctx context.Context, session *model.UploadSession) error
}

// RetryEnqueuer queues space-retry jobs. Satisfied by queue.Producer.
type RetryEnqueuer interface {
	EnqueueSpaceRetry(ctx context.Context, job model.SpaceRetryJob) error
}

type Handler struct {
	repo         db.Repository
	sessions     SessionStore
	producer     RetryEnqueuer
	archive      storage.Storage
	parser       *roster.Parser
	validator    *roster.Validator
	provisioner  *provisioning.Service
	orchestrator *spaces.Orchestrator
	cfg          *config.Config
	log          zerolog.Logger
}

func NewHandler(
	repo db.Repository,
	sessions SessionStore,
	producer RetryEnqueuer,
	archive storage.Storage,
	provisioner *provisioning.Service,
	orchestrator *spaces.Orchestrator,
	cfg *config.Config,
) *Handler {
	return &Handler{
		repo:         repo,
		sessions:     sessions,
		producer:     producer,
		archive:      archive,
		parser:       roster.NewParser(),
		validator:    roster.NewValidator(),
		provisioner:  provisioner,
		orchestrator: orchestrator,
		cfg:          cfg,
		log:          logger.Get(),
	}
}

func (h *Handler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"service": h.cfg.App.Name,
		"version": h.cfg.App.Version,
	})
}

func (h *Handler) DownloadTemplate(c *gin.Context) {
	c.Header("Content-Disposition", `attachment; filename="student_roster_template.csv"`)
	c.Data(http.StatusOK, "text/csv; charset=utf-8", roster.TemplateCSV())
}

// UploadRoster parses and validates a roster file and opens an upload
// session with per-row duplicate flags. Validation errors block the
// preview entirely; duplicate flags do not.
func (h *Handler) UploadRoster(c *gin.Context) {
	claims := CurrentClaims(c)

	fileHeader, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "file field is required"})
		return
	}
	if fileHeader.Size > h.cfg.Provisioning.MaxUploadSizeBytes {
		c.JSON(http.StatusBadRequest, gin.H{"errors": []string{"file exceeds the 5 MiB size limit"}})
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "could not read uploaded file"})
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "could not read uploaded file"})
		return
	}

	table, err := h.parser.Parse(data, fileHeader.Filename)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"errors": []string{uploadErrorMessage(err)}})
		return
	}

	result := h.validator.Validate(table)
	if !result.Valid {
		c.JSON(http.StatusBadRequest, gin.H{"errors": result.Errors})
		return
	}

	rows, err := roster.FlagDuplicates(c.Request.Context(), result.Rows, claims.UserID, h.repo)
	if err != nil {
		h.log.Error().Err(err).Msg("Duplicate check failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
		return
	}

	uploadSession, err := h.sessions.Create(c.Request.Context(), claims.UserID, rows)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to create upload session")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
		return
	}

	// Audit copy; the upload flow must not depend on the archive.
	key := fmt.Sprintf("rosters/%s%s", uploadSession.ID, strings.ToLower(filepath.Ext(fileHeader.Filename)))
	if err := h.archive.Upload(c.Request.Context(), key, bytes.NewReader(data)); err != nil {
		h.log.Warn().Err(err).Str("key", key).Msg("Failed to archive roster file")
	}

	duplicates := 0
	for _, row := range rows {
		if row.IsDuplicate {
			duplicates++
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"session_id": uploadSession.ID,
		"rows":       rows,
		"total":      len(rows),
		"duplicates": duplicates,
	})
}

func uploadErrorMessage(err error) string {
	switch {
	case stderrors.Is(err, errors.ErrUnsupportedFormat):
		return "only CSV or Excel files can be uploaded (.csv, .xlsx, .xls)"
	case stderrors.Is(err, errors.ErrUndecodableText):
		return "file encoding could not be recognized; use UTF-8 or EUC-KR"
	case stderrors.Is(err, errors.ErrOversizedFile):
		return "file exceeds the 5 MiB size limit"
	case stderrors.Is(err, errors.ErrEmptyFile):
		return "file contains no data rows"
	default:
		return fmt.Sprintf("file could not be processed: %v", err)
	}
}

type confirmRequest struct {
	SessionID string `json:"session_id" binding:"required"`
	Selected  []int  `json:"selected"`
}

// ConfirmRoster provisions accounts for the session's rows (operator
// selection applied) and auto-provisions spaces for batches within the
// guard. The account batch is all-or-nothing on unexpected errors;
// space failures never roll accounts back.
func (h *Handler) ConfirmRoster(c *gin.Context) {
	claims := CurrentClaims(c)

	var req confirmRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	uploadSession, err := h.sessions.Get(c.Request.Context(), req.SessionID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "upload session not found or expired"})
		return
	}
	if uploadSession.InstructorID != claims.UserID {
		c.JSON(http.StatusForbidden, gin.H{"error": "session belongs to another user"})
		return
	}
	if uploadSession.Confirmed {
		c.JSON(http.StatusConflict, gin.H{"error": "session already confirmed"})
		return
	}

	rows := selectRows(uploadSession.Rows, req.Selected)
	if len(rows) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "no rows selected"})
		return
	}

	instructor := &model.Account{
		ID:       claims.UserID,
		Username: claims.Subject,
		Email:    claims.Email,
		Name:     claims.Name,
		Role:     claims.Role,
	}

	created, results, err := h.provisioner.CreateWithAutoHierarchy(c.Request.Context(), rows, instructor)
	if err != nil {
		h.log.Error().Err(err).Msg("Bulk account creation failed")
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "student account creation failed; no accounts were created",
		})
		return
	}

	summary := model.ProvisionSummary{Results: results}
	for _, r := range results {
		if r.Success {
			summary.Created++
		} else {
			summary.Failed++
		}
	}

	summary.Spaces, summary.SpaceNotice = h.provisionSpaces(c, created, claims)

	uploadSession.Credentials = provisioning.Credentials(results)
	uploadSession.Confirmed = true
	if err := h.sessions.Update(c.Request.Context(), uploadSession); err != nil {
		h.log.Error().Err(err).Msg("Failed to store credentials in session")
	}

	c.JSON(http.StatusOK, summary)
}

func (h *Handler) provisionSpaces(c *gin.Context, created []model.StudentProfile, claims *auth.Claims) (*model.SpaceSummary, string) {
	var needSpace []model.StudentProfile
	for _, student := range created {
		if !student.HasSpace() {
			needSpace = append(needSpace, student)
		}
	}
	if len(needSpace) == 0 {
		return nil, ""
	}

	adminEmails, err := h.repo.ListAdminEmails(c.Request.Context())
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list admin emails")
		adminEmails = nil
	}

	spaceSummary, err := h.orchestrator.CreateForStudents(c.Request.Context(), needSpace, claims.Email, adminEmails)
	if stderrors.Is(err, errors.ErrBatchTooLarge) {
		// Not an error: accounts are fully created, spaces are just left
		// for per-student provisioning.
		notice := fmt.Sprintf(
			"%d students were created; automatic space creation was skipped for this batch size, add spaces per student from the dashboard",
			len(needSpace))
		return spaceSummary, notice
	}
	if err != nil {
		h.log.Error().Err(err).Msg("Space provisioning failed")
		return spaceSummary, "space provisioning could not be completed"
	}
	return spaceSummary, ""
}

func selectRows(rows []model.RosterRow, selected []int) []model.RosterRow {
	if selected == nil {
		return rows
	}
	picked := make([]model.RosterRow, 0, len(selected))
	for _, idx := range selected {
		if idx >= 0 && idx < len(rows) {
			picked = append(picked, rows[idx])
		}
	}
	return picked
}

func (h *Handler) loadCredentials(c *gin.Context) *model.UploadSession {
	claims := CurrentClaims(c)

	uploadSession, err := h.sessions.Get(c.Request.Context(), c.Param("session_id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "upload session not found or expired"})
		return nil
	}
	if uploadSession.InstructorID != claims.UserID {
		c.JSON(http.StatusForbidden, gin.H{"error": "session belongs to another user"})
		return nil
	}
	if !uploadSession.Confirmed || len(uploadSession.Credentials) == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "no credentials available for this session"})
		return nil
	}
	return uploadSession
}

func (h *Handler) GetCredentials(c *gin.Context) {
	uploadSession := h.loadCredentials(c)
	if uploadSession == nil {
		return
	}
	c.JSON(http.StatusOK, gin.H{"credentials": uploadSession.Credentials})
}

func (h *Handler) DownloadCredentials(c *gin.Context) {
	uploadSession := h.loadCredentials(c)
	if uploadSession == nil {
		return
	}

	data := roster.CredentialsCSV(uploadSession.Credentials)

	// Plaintext passwords are handed out once; after the download only
	// the hashes remain anywhere.
	uploadSession.Credentials = nil
	if err := h.sessions.Update(c.Request.Context(), uploadSession); err != nil {
		h.log.Error().Err(err).Str("session_id", uploadSession.ID).Msg("Failed to clear downloaded credentials")
	}

	h.log.Info().Str("session_id", uploadSession.ID).Msg("Credentials downloaded")
	c.Header("Content-Disposition", `attachment; filename="student_credentials.csv"`)
	c.Data(http.StatusOK, "text/csv; charset=utf-8", data)
}

func (h *Handler) ListStudents(c *gin.Context) {
	claims := CurrentClaims(c)

	var classID *int64
	if raw := c.Query("class_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid class_id"})
			return
		}
		classID = &id
	}

	students, err := h.repo.ListStudentsByInstructor(c.Request.Context(), claims.UserID, c.Query("search"), classID)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list students")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"students": students, "total": len(students)})
}

type spaceUpdateRequest struct {
	ZEPSpaceURL string `json:"zep_space_url"`
	IsPublic    *bool  `json:"is_public"`
}

// UpdateStudentSpace lets an instructor manually set or correct a
// student's space URL and public visibility.
func (h *Handler) UpdateStudentSpace(c *gin.Context) {
	claims := CurrentClaims(c)

	studentID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid student id"})
		return
	}

	var req spaceUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if len([]rune(req.ZEPSpaceURL)) > 500 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "space URL is too long (max 500 characters)"})
		return
	}

	student, err := h.repo.GetStudent(c.Request.Context(), studentID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "student not found"})
		return
	}
	if claims.Role != model.RoleAdmin {
		if !h.ownsStudent(c, claims.UserID, student) {
			c.JSON(http.StatusForbidden, gin.H{"error": "student belongs to another instructor"})
			return
		}
	}

	if err := h.repo.UpdateStudentSpace(c.Request.Context(), studentID, req.ZEPSpaceURL, req.IsPublic); err != nil {
		h.log.Error().Err(err).Int64("student_id", studentID).Msg("Failed to update student space")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "space updated"})
}

func (h *Handler) ownsStudent(c *gin.Context, instructorID int64, student *model.StudentProfile) bool {
	if student.ClassID == nil {
		return false
	}
	class, err := h.repo.GetClass(c.Request.Context(), *student.ClassID)
	if err != nil {
		return false
	}
	return class.InstructorID != nil && *class.InstructorID == instructorID
}

func (h *Handler) ListFailedAttempts(c *gin.Context) {
	attempts, err := h.repo.ListUnresolvedAttempts(c.Request.Context())
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list failed attempts")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"attempts": attempts, "total": len(attempts)})
}

// RetryFailedAttempt enqueues a retry job; the retry worker replays it
// against the space API.
func (h *Handler) RetryFailedAttempt(c *gin.Context) {
	claims := CurrentClaims(c)

	attemptID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid attempt id"})
		return
	}

	attempt, err := h.repo.GetFailedAttempt(c.Request.Context(), attemptID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "failed attempt not found"})
		return
	}
	if attempt.Resolved {
		c.JSON(http.StatusConflict, gin.H{"error": "attempt already resolved"})
		return
	}

	job := model.SpaceRetryJob{AttemptID: attemptID, RequestedBy: claims.UserID}
	if err := h.producer.EnqueueSpaceRetry(c.Request.Context(), job); err != nil {
		h.log.Error().Err(err).Int64("attempt_id", attemptID).Msg("Failed to enqueue retry job")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to queue retry"})
		return
	}

	h.log.Info().Int64("attempt_id", attemptID).Int64("requested_by", claims.UserID).Msg("Space retry enqueued")
	c.JSON(http.StatusAccepted, gin.H{"message": "retry queued", "attempt_id": attemptID})
}
