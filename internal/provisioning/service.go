package provisioning

import (
	"context"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/kimshangyup/neulbom/internal/config"
	"github.com/kimshangyup/neulbom/internal/db"
	"github.com/kimshangyup/neulbom/internal/logger"
	"github.com/kimshangyup/neulbom/internal/model"
	"github.com/kimshangyup/neulbom/pkg/errors"
)

// Service creates directory accounts and student profiles from accepted
// roster rows. The whole batch runs inside one transaction: anticipated
// per-row conflicts are recorded and skipped, anything else rolls the
// batch back as a BulkCreationError.
type Service struct {
	repo db.Repository
	cfg  config.ProvisioningConfig
	log  zerolog.Logger
	now  func() time.Time
}

func NewService(repo db.Repository, cfg config.ProvisioningConfig) *Service {
	return &Service{
		repo: repo,
		cfg:  cfg,
		log:  logger.Get(),
		now:  time.Now,
	}
}

// identifierMode selects how login identifiers are derived for a batch.
type identifierMode int

const (
	// modeDeterministic slugs name+school and disambiguates numerically.
	modeDeterministic identifierMode = iota
	// modeOpaque uses timestamp+random tokens, avoiding transliteration
	// of non-Latin names entirely.
	modeOpaque
)

// CreateForClass provisions every row under one pre-selected class.
func (s *Service) CreateForClass(ctx context.Context, rows []model.RosterRow, classID int64, instructor *model.Account) ([]model.StudentProfile, []model.RowResult, error) {
	s.log.Info().
		Int("rows", len(rows)).
		Int64("class_id", classID).
		Str("instructor", instructor.Username).
		Msg("Creating student accounts for class")

	var created []model.StudentProfile
	var results []model.RowResult
	start := s.now()

	err := s.repo.InTx(ctx, func(tx db.Repository) error {
		class, err := tx.GetClass(ctx, classID)
		if err != nil {
			return fmt.Errorf("failed to load class: %w", err)
		}
		school, err := tx.GetSchool(ctx, class.SchoolID)
		if err != nil {
			return fmt.Errorf("failed to load school: %w", err)
		}

		used := make(map[string]bool, len(rows))
		for _, row := range rows {
			student, result, err := s.createOne(ctx, tx, row, class, school, used, modeDeterministic)
			if err != nil {
				return err
			}
			results = append(results, *result)
			if student != nil {
				created = append(created, *student)
			}
		}
		return nil
	})
	if err != nil {
		s.log.Error().Err(err).Msg("Bulk student creation failed, rolling back")
		return nil, nil, errors.BulkCreationError{Err: err}
	}

	s.logOutcome(created, results, start)
	return created, results, nil
}

// CreateWithAutoHierarchy provisions rows that carry their own school and
// class names, get-or-creating the hierarchy per (school, class) group.
// New classes default to the current calendar year and the term inferred
// from the current month.
func (s *Service) CreateWithAutoHierarchy(ctx context.Context, rows []model.RosterRow, instructor *model.Account) ([]model.StudentProfile, []model.RowResult, error) {
	s.log.Info().
		Int("rows", len(rows)).
		Str("instructor", instructor.Username).
		Msg("Creating student accounts with auto school/class creation")

	groups, order := groupByClass(rows)

	var created []model.StudentProfile
	var results []model.RowResult
	start := s.now()

	err := s.repo.InTx(ctx, func(tx db.Repository) error {
		used := make(map[string]bool, len(rows))

		for _, key := range order {
			school, schoolCreated, err := tx.GetOrCreateSchool(ctx, key.school, &instructor.ID)
			if err != nil {
				return fmt.Errorf("failed to resolve school %q: %w", key.school, err)
			}
			if schoolCreated {
				s.log.Info().Str("school", key.school).Msg("Created new school")
			}

			year := s.now().Year()
			semester := model.SemesterForMonth(s.now().Month())
			class, classCreated, err := tx.GetOrCreateClass(ctx, key.class, school.ID, instructor.ID, year, semester)
			if err != nil {
				return fmt.Errorf("failed to resolve class %q: %w", key.class, err)
			}
			if classCreated {
				s.log.Info().Str("class", key.class).Str("school", key.school).Msg("Created new class")
			}

			for _, row := range groups[key] {
				student, result, err := s.createOne(ctx, tx, row, class, school, used, modeOpaque)
				if err != nil {
					return err
				}
				results = append(results, *result)
				if student != nil {
					created = append(created, *student)
				}
			}
		}
		return nil
	})
	if err != nil {
		s.log.Error().Err(err).Msg("Bulk student creation failed, rolling back")
		return nil, nil, errors.BulkCreationError{Err: err}
	}

	s.logOutcome(created, results, start)
	return created, results, nil
}

// createOne handles a single roster row. Identifier exhaustion and
// duplicate conflicts at creation time become failure results; any other
// error propagates to the transaction boundary and aborts the batch.
func (s *Service) createOne(ctx context.Context, tx db.Repository, row model.RosterRow, class *model.Class, school *model.School, used map[string]bool, mode identifierMode) (*model.StudentProfile, *model.RowResult, error) {
	result := &model.RowResult{
		Name:        row.StudentName,
		SchoolName:  school.Name,
		ClassName:   class.Name,
		ClassNumber: row.ClassNumber,
		Grade:       row.Grade,
	}

	fail := func(msg string) (*model.StudentProfile, *model.RowResult, error) {
		s.log.Warn().Str("student", row.StudentName).Str("error", msg).Msg("Row skipped during bulk creation")
		result.Error = msg
		return nil, result, nil
	}

	var email string
	var err error
	switch mode {
	case modeDeterministic:
		email, err = deterministicEmail(ctx, tx, used, row.StudentName, school.Name, s.cfg.EmailDomain)
	default:
		email, err = opaqueEmail(ctx, tx, used, s.now(), s.cfg.EmailDomain)
	}
	if err != nil {
		if stderrors.Is(err, errors.ErrIdentifierExhausted) {
			return fail(fmt.Sprintf("could not generate unique identifier for %s", row.StudentName))
		}
		return nil, nil, err
	}

	password, err := GeneratePassword(s.cfg.PasswordLength)
	if err != nil {
		return nil, nil, fmt.Errorf("password generation failed: %w", err)
	}
	hash, err := HashPassword(password)
	if err != nil {
		return nil, nil, fmt.Errorf("password hashing failed: %w", err)
	}

	account := &model.Account{
		Username:     email,
		Email:        email,
		PasswordHash: hash,
		Role:         model.RoleStudent,
		Name:         row.StudentName,
		SchoolID:     &school.ID,
		IsActive:     true,
	}
	if err := tx.CreateAccount(ctx, account); err != nil {
		if stderrors.Is(err, errors.ErrAlreadyExists) {
			return fail(fmt.Sprintf("account %s already exists", email))
		}
		return nil, nil, err
	}

	student := &model.StudentProfile{
		AccountID:      account.ID,
		Name:           row.StudentName,
		ClassNumber:    row.ClassNumber,
		Grade:          row.Grade,
		ClassID:        &class.ID,
		GeneratedEmail: email,
		ZEPSpaceURL:    row.ZEPSpaceURL,
		Notes:          row.Notes,
	}
	if err := tx.CreateStudentProfile(ctx, student); err != nil {
		if stderrors.Is(err, errors.ErrAlreadyExists) {
			return fail(fmt.Sprintf("student profile for %s already exists", email))
		}
		return nil, nil, err
	}

	result.Username = email
	result.Password = password
	result.Email = email
	result.Success = true

	s.log.Info().Str("student", row.StudentName).Str("email", email).Msg("Created student account")
	return student, result, nil
}

type classGroupKey struct {
	school string
	class  string
}

// groupByClass buckets rows by (school, class) preserving first-seen order
// so hierarchy lookups run once per group instead of once per row.
func groupByClass(rows []model.RosterRow) (map[classGroupKey][]model.RosterRow, []classGroupKey) {
	groups := make(map[classGroupKey][]model.RosterRow)
	var order []classGroupKey
	for _, row := range rows {
		key := classGroupKey{school: row.SchoolName, class: row.ClassName}
		if _, ok := groups[key]; !ok {
			order = append(order, key)
		}
		groups[key] = append(groups[key], row)
	}
	return groups, order
}

// Credentials filters successful results into the exportable shape.
func Credentials(results []model.RowResult) []model.Credential {
	var credentials []model.Credential
	for _, r := range results {
		if !r.Success {
			continue
		}
		credentials = append(credentials, model.Credential{
			Name:        r.Name,
			SchoolName:  r.SchoolName,
			ClassName:   r.ClassName,
			ClassNumber: r.ClassNumber,
			Grade:       r.Grade,
			Username:    r.Username,
			Password:    r.Password,
			Email:       r.Email,
		})
	}
	return credentials
}

func (s *Service) logOutcome(created []model.StudentProfile, results []model.RowResult, start time.Time) {
	failed := 0
	for _, r := range results {
		if !r.Success {
			failed++
		}
	}
	s.log.Info().
		Int("created", len(created)).
		Int("failed", failed).
		Dur("elapsed", s.now().Sub(start)).
		Msg("Student creation complete")
}
