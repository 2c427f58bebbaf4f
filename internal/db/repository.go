package db

import (
	"context"
	"database/sql"
	stderrors "errors"

	"github.com/go-sql-driver/mysql"

	"github.com/kimshangyup/neulbom/internal/model"
	"github.com/kimshangyup/neulbom/pkg/errors"
)

// Repository is the persisted-store surface of the provisioning subsystem.
// All methods are stateless; InTx yields a Repository bound to one
// transaction so the bulk-creation path can run under a single boundary.
type Repository interface {
	InTx(ctx context.Context, fn func(Repository) error) error

	GetOrCreateSchool(ctx context.Context, name string, instructorID *int64) (*model.School, bool, error)
	GetSchool(ctx context.Context, id int64) (*model.School, error)
	GetOrCreateClass(ctx context.Context, name string, schoolID int64, instructorID int64, year int, semester model.Semester) (*model.Class, bool, error)
	GetClass(ctx context.Context, id int64) (*model.Class, error)
	GetClassInstructorEmail(ctx context.Context, classID int64) (string, error)

	CreateAccount(ctx context.Context, account *model.Account) error
	AccountEmailExists(ctx context.Context, email string) (bool, error)
	ListAdminEmails(ctx context.Context) ([]string, error)

	CreateStudentProfile(ctx context.Context, student *model.StudentProfile) error
	GetStudent(ctx context.Context, id int64) (*model.StudentProfile, error)
	ListStudentsByInstructor(ctx context.Context, instructorID int64, search string, classID *int64) ([]model.StudentProfile, error)
	StudentExistsInClass(ctx context.Context, studentName, schoolName, className string, instructorID int64) (bool, error)
	UpdateStudentSpace(ctx context.Context, studentID int64, url string, isPublic *bool) error

	CreateStudentSpace(ctx context.Context, space *model.StudentSpace) error

	CreateFailedAttempt(ctx context.Context, studentID int64, errorMessage string) error
	GetFailedAttempt(ctx context.Context, id int64) (*model.FailedProvisioningAttempt, error)
	ListUnresolvedAttempts(ctx context.Context) ([]model.FailedProvisioningAttempt, error)
	MarkAttemptResolved(ctx context.Context, id int64) error
	IncrementAttemptRetry(ctx context.Context, id int64) error
}

// dbtx is the overlap of *sql.DB and *sql.Tx the queries need.
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

type repository struct {
	db   *sql.DB
	conn dbtx
}

func NewRepository(db *sql.DB) Repository {
	return &repository{db: db, conn: db}
}

func (r *repository) InTx(ctx context.Context, fn func(Repository) error) error {
	if _, inTx := r.conn.(*sql.Tx); inTx {
		return fn(r)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := fn(&repository{db: r.db, conn: tx}); err != nil {
		return err
	}
	return tx.Commit()
}

const mysqlDuplicateEntry = 1062

func translateErr(err error) error {
	var mysqlErr *mysql.MySQLError
	if stderrors.As(err, &mysqlErr) && mysqlErr.Number == mysqlDuplicateEntry {
		return errors.ErrAlreadyExists
	}
	return err
}

// GetOrCreateSchool is a conditional insert with a constraint-violation
// fallback to a read, not a check-then-act.
func (r *repository) GetOrCreateSchool(ctx context.Context, name string, instructorID *int64) (*model.School, bool, error) {
	query := `INSERT INTO schools (name, instructor_id) VALUES (?, ?)`
	result, err := r.conn.ExecContext(ctx, query, name, instructorID)
	if err == nil {
		id, _ := result.LastInsertId()
		school, err := r.getSchoolBy(ctx, "id = ?", id)
		return school, true, err
	}
	if translateErr(err) != errors.ErrAlreadyExists {
		return nil, false, err
	}
	school, err := r.getSchoolBy(ctx, "name = ?", name)
	return school, false, err
}

func (r *repository) GetSchool(ctx context.Context, id int64) (*model.School, error) {
	return r.getSchoolBy(ctx, "id = ?", id)
}

func (r *repository) getSchoolBy(ctx context.Context, where string, arg interface{}) (*model.School, error) {
	query := `SELECT id, name, instructor_id, address, contact_phone, contact_email, notes, created_at, updated_at
			  FROM schools WHERE ` + where

	var school model.School
	err := r.conn.QueryRowContext(ctx, query, arg).Scan(
		&school.ID, &school.Name, &school.InstructorID, &school.Address,
		&school.ContactPhone, &school.ContactEmail, &school.Notes,
		&school.CreatedAt, &school.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, errors.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &school, nil
}

func (r *repository) GetOrCreateClass(ctx context.Context, name string, schoolID int64, instructorID int64, year int, semester model.Semester) (*model.Class, bool, error) {
	query := `INSERT INTO classes (name, school_id, instructor_id, academic_year, semester)
			  VALUES (?, ?, ?, ?, ?)`
	result, err := r.conn.ExecContext(ctx, query, name, schoolID, instructorID, year, semester)
	if err == nil {
		id, _ := result.LastInsertId()
		class, err := r.GetClass(ctx, id)
		return class, true, err
	}
	if translateErr(err) != errors.ErrAlreadyExists {
		return nil, false, err
	}

	class, err := r.getClassBy(ctx,
		"name = ? AND school_id = ? AND instructor_id = ? AND academic_year = ?",
		name, schoolID, instructorID, year)
	return class, false, err
}

func (r *repository) GetClass(ctx context.Context, id int64) (*model.Class, error) {
	return r.getClassBy(ctx, "id = ?", id)
}

func (r *repository) getClassBy(ctx context.Context, where string, args ...interface{}) (*model.Class, error) {
	query := `SELECT id, name, school_id, instructor_id, academic_year, semester, description, created_at, updated_at
			  FROM classes WHERE ` + where

	var class model.Class
	err := r.conn.QueryRowContext(ctx, query, args...).Scan(
		&class.ID, &class.Name, &class.SchoolID, &class.InstructorID,
		&class.AcademicYear, &class.Semester, &class.Description,
		&class.CreatedAt, &class.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, errors.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &class, nil
}

func (r *repository) GetClassInstructorEmail(ctx context.Context, classID int64) (string, error) {
	query := `SELECT a.email FROM classes c
			  JOIN accounts a ON a.id = c.instructor_id
			  WHERE c.id = ?`

	var email string
	err := r.conn.QueryRowContext(ctx, query, classID).Scan(&email)
	if err == sql.ErrNoRows {
		return "", errors.ErrInstructorUnassigned
	}
	if err != nil {
		return "", err
	}
	return email, nil
}

func (r *repository) CreateAccount(ctx context.Context, account *model.Account) error {
	query := `INSERT INTO accounts (username, email, password_hash, role, name, school_id, is_active)
			  VALUES (?, ?, ?, ?, ?, ?, ?)`

	result, err := r.conn.ExecContext(ctx, query,
		account.Username, account.Email, account.PasswordHash,
		account.Role, account.Name, account.SchoolID, account.IsActive)
	if err != nil {
		return translateErr(err)
	}
	account.ID, _ = result.LastInsertId()
	return nil
}

func (r *repository) AccountEmailExists(ctx context.Context, email string) (bool, error) {
	var exists bool
	query := `SELECT EXISTS(SELECT 1 FROM accounts WHERE email = ?)`
	if err := r.conn.QueryRowContext(ctx, query, email).Scan(&exists); err != nil {
		return false, err
	}
	return exists, nil
}

func (r *repository) ListAdminEmails(ctx context.Context) ([]string, error) {
	query := `SELECT email FROM accounts WHERE role = 'admin' AND is_active = TRUE AND email != ''`

	rows, err := r.conn.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var emails []string
	for rows.Next() {
		var email string
		if err := rows.Scan(&email); err != nil {
			return nil, err
		}
		emails = append(emails, email)
	}
	return emails, rows.Err()
}

func (r *repository) CreateStudentProfile(ctx context.Context, student *model.StudentProfile) error {
	query := `INSERT INTO student_profiles
			  (account_id, name, class_number, grade, class_id, generated_email, zep_space_url, is_public, notes)
			  VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`

	result, err := r.conn.ExecContext(ctx, query,
		student.AccountID, student.Name, student.ClassNumber, student.Grade,
		student.ClassID, student.GeneratedEmail, student.ZEPSpaceURL,
		student.IsPublic, student.Notes)
	if err != nil {
		return translateErr(err)
	}
	student.ID, _ = result.LastInsertId()
	return nil
}

const studentColumns = `id, account_id, name, class_number, grade, class_id,
	generated_email, zep_space_url, is_public, notes, created_at, updated_at`

func scanStudent(row interface{ Scan(...interface{}) error }) (*model.StudentProfile, error) {
	var s model.StudentProfile
	err := row.Scan(
		&s.ID, &s.AccountID, &s.Name, &s.ClassNumber, &s.Grade, &s.ClassID,
		&s.GeneratedEmail, &s.ZEPSpaceURL, &s.IsPublic, &s.Notes,
		&s.CreatedAt, &s.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *repository) GetStudent(ctx context.Context, id int64) (*model.StudentProfile, error) {
	query := `SELECT ` + studentColumns + ` FROM student_profiles WHERE id = ?`

	student, err := scanStudent(r.conn.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, errors.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return student, nil
}

func (r *repository) ListStudentsByInstructor(ctx context.Context, instructorID int64, search string, classID *int64) ([]model.StudentProfile, error) {
	query := `SELECT s.id, s.account_id, s.name, s.class_number, s.grade, s.class_id,
				s.generated_email, s.zep_space_url, s.is_public, s.notes, s.created_at, s.updated_at
			  FROM student_profiles s
			  JOIN classes c ON c.id = s.class_id
			  WHERE c.instructor_id = ?`
	args := []interface{}{instructorID}

	if search != "" {
		query += ` AND (s.name LIKE ? OR s.generated_email LIKE ?)`
		pattern := "%" + search + "%"
		args = append(args, pattern, pattern)
	}
	if classID != nil {
		query += ` AND s.class_id = ?`
		args = append(args, *classID)
	}
	query += ` ORDER BY s.class_id, s.class_number, s.name`

	rows, err := r.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var students []model.StudentProfile
	for rows.Next() {
		student, err := scanStudent(rows)
		if err != nil {
			return nil, err
		}
		students = append(students, *student)
	}
	return students, rows.Err()
}

func (r *repository) StudentExistsInClass(ctx context.Context, studentName, schoolName, className string, instructorID int64) (bool, error) {
	query := `SELECT EXISTS(
				SELECT 1 FROM student_profiles s
				JOIN classes c ON c.id = s.class_id
				JOIN schools sc ON sc.id = c.school_id
				WHERE s.name = ? AND sc.name = ? AND c.name = ? AND c.instructor_id = ?)`

	var exists bool
	err := r.conn.QueryRowContext(ctx, query, studentName, schoolName, className, instructorID).Scan(&exists)
	if err != nil {
		return false, err
	}
	return exists, nil
}

func (r *repository) UpdateStudentSpace(ctx context.Context, studentID int64, url string, isPublic *bool) error {
	var result sql.Result
	var err error
	if isPublic != nil {
		query := `UPDATE student_profiles SET zep_space_url = ?, is_public = ?, updated_at = NOW() WHERE id = ?`
		result, err = r.conn.ExecContext(ctx, query, url, *isPublic, studentID)
	} else {
		query := `UPDATE student_profiles SET zep_space_url = ?, updated_at = NOW() WHERE id = ?`
		result, err = r.conn.ExecContext(ctx, query, url, studentID)
	}
	if err != nil {
		return err
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return errors.ErrNotFound
	}
	return nil
}

// CreateStudentSpace enforces the at-most-one-primary invariant by
// unsetting sibling primaries in the same statement batch.
func (r *repository) CreateStudentSpace(ctx context.Context, space *model.StudentSpace) error {
	if space.IsPrimary {
		unset := `UPDATE student_spaces SET is_primary = FALSE WHERE student_id = ? AND is_primary = TRUE`
		if _, err := r.conn.ExecContext(ctx, unset, space.StudentID); err != nil {
			return err
		}
	}

	query := `INSERT INTO student_spaces (student_id, name, url, space_id, is_primary, is_public, description)
			  VALUES (?, ?, ?, ?, ?, ?, ?)`
	result, err := r.conn.ExecContext(ctx, query,
		space.StudentID, space.Name, space.URL, space.SpaceID,
		space.IsPrimary, space.IsPublic, space.Description)
	if err != nil {
		return translateErr(err)
	}
	space.ID, _ = result.LastInsertId()
	return nil
}

func (r *repository) CreateFailedAttempt(ctx context.Context, studentID int64, errorMessage string) error {
	query := `INSERT INTO failed_provisioning_attempts (student_id, error_message, retry_count, resolved)
			  VALUES (?, ?, 0, FALSE)`
	_, err := r.conn.ExecContext(ctx, query, studentID, errorMessage)
	return err
}

const attemptColumns = `id, student_id, error_message, retry_count, resolved, resolved_at, last_attempted_at, created_at`

func (r *repository) GetFailedAttempt(ctx context.Context, id int64) (*model.FailedProvisioningAttempt, error) {
	query := `SELECT ` + attemptColumns + ` FROM failed_provisioning_attempts WHERE id = ?`

	var a model.FailedProvisioningAttempt
	err := r.conn.QueryRowContext(ctx, query, id).Scan(
		&a.ID, &a.StudentID, &a.ErrorMessage, &a.RetryCount,
		&a.Resolved, &a.ResolvedAt, &a.LastAttemptedAt, &a.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, errors.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (r *repository) ListUnresolvedAttempts(ctx context.Context) ([]model.FailedProvisioningAttempt, error) {
	query := `SELECT ` + attemptColumns + ` FROM failed_provisioning_attempts
			  WHERE resolved = FALSE ORDER BY created_at DESC`

	rows, err := r.conn.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var attempts []model.FailedProvisioningAttempt
	for rows.Next() {
		var a model.FailedProvisioningAttempt
		err := rows.Scan(
			&a.ID, &a.StudentID, &a.ErrorMessage, &a.RetryCount,
			&a.Resolved, &a.ResolvedAt, &a.LastAttemptedAt, &a.CreatedAt,
		)
		if err != nil {
			return nil, err
		}
		attempts = append(attempts, a)
	}
	return attempts, rows.Err()
}

func (r *repository) MarkAttemptResolved(ctx context.Context, id int64) error {
	query := `UPDATE failed_provisioning_attempts
			  SET resolved = TRUE, resolved_at = NOW(), last_attempted_at = NOW()
			  WHERE id = ?`
	result, err := r.conn.ExecContext(ctx, query, id)
	if err != nil {
		return err
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return errors.ErrNotFound
	}
	return nil
}

func (r *repository) IncrementAttemptRetry(ctx context.Context, id int64) error {
	query := `UPDATE failed_provisioning_attempts
			  SET retry_count = retry_count + 1, last_attempted_at = NOW()
			  WHERE id = ?`
	result, err := r.conn.ExecContext(ctx, query, id)
	if err != nil {
		return err
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return errors.ErrNotFound
	}
	return nil
}
