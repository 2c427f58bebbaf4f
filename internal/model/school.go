package model

import "time"

// School is the top of the organizational hierarchy. Created explicitly by
// an instructor or implicitly on the first roster row naming it; never
// auto-deleted.
type School struct {
	ID           int64     `json:"id" db:"id"`
	Name         string    `json:"name" db:"name"`
	InstructorID *int64    `json:"instructor_id,omitempty" db:"instructor_id"`
	Address      string    `json:"address,omitempty" db:"address"`
	ContactPhone string    `json:"contact_phone,omitempty" db:"contact_phone"`
	ContactEmail string    `json:"contact_email,omitempty" db:"contact_email"`
	Notes        string    `json:"notes,omitempty" db:"notes"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time `json:"updated_at" db:"updated_at"`
}

type Semester string

const (
	SemesterSpring Semester = "spring"
	SemesterFall   Semester = "fall"
)

// SemesterForMonth maps the calendar month to the academic term used when
// a class is auto-created during import.
func SemesterForMonth(month time.Month) Semester {
	if month <= time.June {
		return SemesterSpring
	}
	return SemesterFall
}

// Class belongs to exactly one school. The instructor reference is nullable:
// instructor deletion sets it to NULL rather than cascading.
type Class struct {
	ID           int64     `json:"id" db:"id"`
	Name         string    `json:"name" db:"name"`
	SchoolID     int64     `json:"school_id" db:"school_id"`
	InstructorID *int64    `json:"instructor_id,omitempty" db:"instructor_id"`
	AcademicYear int       `json:"academic_year" db:"academic_year"`
	Semester     Semester  `json:"semester" db:"semester"`
	Description  string    `json:"description,omitempty" db:"description"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time `json:"updated_at" db:"updated_at"`
}
