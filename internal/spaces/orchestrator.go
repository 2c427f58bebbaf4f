package spaces

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/kimshangyup/neulbom/internal/config"
	"github.com/kimshangyup/neulbom/internal/db"
	"github.com/kimshangyup/neulbom/internal/logger"
	"github.com/kimshangyup/neulbom/internal/model"
	"github.com/kimshangyup/neulbom/internal/zep"
	"github.com/kimshangyup/neulbom/pkg/errors"
)

// SpaceClient is the slice of the ZEP client the orchestrator uses.
type SpaceClient interface {
	CreateSpace(ctx context.Context, req zep.CreateSpaceRequest) (*zep.Space, error)
	SetPermissions(ctx context.Context, spaceID, ownerEmail string, staffEmails []string) error
}

// Orchestrator provisions spaces for freshly created students. Failures
// are isolated per student and recorded durably for manual retry; already
// persisted accounts are never rolled back over a space failure.
type Orchestrator struct {
	repo   db.Repository
	client SpaceClient
	cfg    config.ProvisioningConfig
	log    zerolog.Logger
	now    func() time.Time
}

func NewOrchestrator(repo db.Repository, client SpaceClient, cfg config.ProvisioningConfig) *Orchestrator {
	return &Orchestrator{
		repo:   repo,
		client: client,
		cfg:    cfg,
		log:    logger.Get(),
		now:    time.Now,
	}
}

// CreateForStudents provisions one space per student. Batches above the
// configured cap are skipped entirely (serial external calls would risk
// request timeouts); the caller directs the operator to per-student
// provisioning instead.
func (o *Orchestrator) CreateForStudents(ctx context.Context, students []model.StudentProfile, instructorEmail string, adminEmails []string) (*model.SpaceSummary, error) {
	summary := &model.SpaceSummary{Total: len(students)}

	if len(students) > o.cfg.MaxAutoSpaceBatch {
		o.log.Warn().
			Int("students", len(students)).
			Int("max", o.cfg.MaxAutoSpaceBatch).
			Msg("Batch too large for automatic space creation, skipping")
		summary.Skipped = true
		return summary, errors.ErrBatchTooLarge
	}

	o.log.Info().Int("students", len(students)).Msg("Creating spaces for students")

	for i := range students {
		student := &students[i]
		result := model.SpaceResult{StudentID: student.ID, Name: student.Name}

		space, err := o.provision(ctx, student, instructorEmail, adminEmails)
		if err != nil {
			o.log.Error().Err(err).Str("student", student.Name).Msg("Space creation failed")
			if recErr := o.repo.CreateFailedAttempt(ctx, student.ID, err.Error()); recErr != nil {
				o.log.Error().Err(recErr).Int64("student_id", student.ID).Msg("Failed to record provisioning failure")
			}
			result.Error = err.Error()
			summary.Failed++
		} else {
			result.SpaceID = space.SpaceID
			result.SpaceURL = space.URL
			result.Success = true
			summary.Success++
		}
		summary.Details = append(summary.Details, result)
	}

	o.log.Info().
		Int("success", summary.Success).
		Int("failed", summary.Failed).
		Msg("Space creation complete")
	return summary, nil
}

// provision runs the create + permission + persist sequence for one
// student. It does not write ledger entries; callers decide how failures
// are recorded.
func (o *Orchestrator) provision(ctx context.Context, student *model.StudentProfile, instructorEmail string, adminEmails []string) (*zep.Space, error) {
	spaceName := fmt.Sprintf("%s_portfolio_%d", student.Name, o.now().Year())

	space, err := o.client.CreateSpace(ctx, zep.CreateSpaceRequest{
		Name:        spaceName,
		OwnerEmail:  student.GeneratedEmail,
		Description: fmt.Sprintf("%s의 포트폴리오 스페이스", student.Name),
	})
	if err != nil {
		return nil, fmt.Errorf("space creation failed: %w", err)
	}

	staff := make([]string, 0, len(adminEmails)+1)
	if instructorEmail != "" {
		staff = append(staff, instructorEmail)
	}
	staff = append(staff, adminEmails...)

	if err := o.client.SetPermissions(ctx, space.SpaceID, student.GeneratedEmail, staff); err != nil {
		return nil, fmt.Errorf("permission setup failed: %w", err)
	}

	if err := o.repo.UpdateStudentSpace(ctx, student.ID, space.URL, nil); err != nil {
		return nil, fmt.Errorf("failed to persist space URL: %w", err)
	}
	if err := o.repo.CreateStudentSpace(ctx, &model.StudentSpace{
		StudentID: student.ID,
		Name:      spaceName,
		URL:       space.URL,
		SpaceID:   space.SpaceID,
		IsPrimary: true,
	}); err != nil {
		return nil, fmt.Errorf("failed to persist space record: %w", err)
	}

	student.ZEPSpaceURL = space.URL
	return space, nil
}

// RetryFailed re-attempts one ledger entry. The instructor email is
// re-resolved from the student's current class; an unassigned class fails
// locally without touching the retry counter. Success marks the entry
// resolved, failure increments retry_count and leaves it open.
func (o *Orchestrator) RetryFailed(ctx context.Context, attemptID int64) error {
	attempt, err := o.repo.GetFailedAttempt(ctx, attemptID)
	if err != nil {
		return err
	}
	if attempt.Resolved {
		o.log.Info().Int64("attempt_id", attemptID).Msg("Attempt already resolved, nothing to retry")
		return nil
	}

	student, err := o.repo.GetStudent(ctx, attempt.StudentID)
	if err != nil {
		return err
	}
	if student.ClassID == nil {
		return errors.ErrInstructorUnassigned
	}
	instructorEmail, err := o.repo.GetClassInstructorEmail(ctx, *student.ClassID)
	if err != nil {
		return err
	}

	adminEmails, err := o.repo.ListAdminEmails(ctx)
	if err != nil {
		return err
	}

	o.log.Info().
		Int64("attempt_id", attemptID).
		Str("student", student.Name).
		Int("retry_count", attempt.RetryCount).
		Msg("Retrying failed space creation")

	if _, err := o.provision(ctx, student, instructorEmail, adminEmails); err != nil {
		if incErr := o.repo.IncrementAttemptRetry(ctx, attemptID); incErr != nil {
			o.log.Error().Err(incErr).Int64("attempt_id", attemptID).Msg("Failed to increment retry count")
		}
		o.log.Warn().Err(err).Int64("attempt_id", attemptID).Msg("Space creation retry failed")
		return err
	}

	if err := o.repo.MarkAttemptResolved(ctx, attemptID); err != nil {
		return err
	}
	o.log.Info().Int64("attempt_id", attemptID).Msg("Space creation retry succeeded")
	return nil
}
