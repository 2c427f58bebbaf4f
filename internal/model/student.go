package model

import "time"

// StudentProfile is one-to-one with an Account of role student. Deleting
// the account cascades to the profile; deleting the class nulls ClassID
// but keeps the profile.
type StudentProfile struct {
	ID             int64     `json:"id" db:"id"`
	AccountID      int64     `json:"account_id" db:"account_id"`
	Name           string    `json:"name" db:"name"`
	ClassNumber    *int      `json:"class_number,omitempty" db:"class_number"`
	Grade          *int      `json:"grade,omitempty" db:"grade"`
	ClassID        *int64    `json:"class_id,omitempty" db:"class_id"`
	GeneratedEmail string    `json:"generated_email" db:"generated_email"`
	ZEPSpaceURL    string    `json:"zep_space_url,omitempty" db:"zep_space_url"`
	IsPublic       bool      `json:"is_public" db:"is_public"`
	Notes          string    `json:"notes,omitempty" db:"notes"`
	CreatedAt      time.Time `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time `json:"updated_at" db:"updated_at"`
}

func (s *StudentProfile) HasSpace() bool {
	return s.ZEPSpaceURL != ""
}

// StudentSpace allows multiple named spaces per student. At most one space
// per student is primary; the store unsets siblings when one is promoted.
type StudentSpace struct {
	ID          int64     `json:"id" db:"id"`
	StudentID   int64     `json:"student_id" db:"student_id"`
	Name        string    `json:"name" db:"name"`
	URL         string    `json:"url" db:"url"`
	SpaceID     string    `json:"space_id,omitempty" db:"space_id"`
	IsPrimary   bool      `json:"is_primary" db:"is_primary"`
	IsPublic    bool      `json:"is_public" db:"is_public"`
	Description string    `json:"description,omitempty" db:"description"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time `json:"updated_at" db:"updated_at"`
}

// FailedProvisioningAttempt is the durable ledger entry written when
// external space creation fails for a student. Never auto-deleted.
type FailedProvisioningAttempt struct {
	ID              int64      `json:"id" db:"id"`
	StudentID       int64      `json:"student_id" db:"student_id"`
	ErrorMessage    string     `json:"error_message" db:"error_message"`
	RetryCount      int        `json:"retry_count" db:"retry_count"`
	Resolved        bool       `json:"resolved" db:"resolved"`
	ResolvedAt      *time.Time `json:"resolved_at,omitempty" db:"resolved_at"`
	LastAttemptedAt time.Time  `json:"last_attempted_at" db:"last_attempted_at"`
	CreatedAt       time.Time  `json:"created_at" db:"created_at"`
}
