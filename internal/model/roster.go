package model

// RosterRow is the transient in-memory shape of one uploaded roster line.
// String fields are trimmed during validation; optional numeric fields are
// nil when absent or not coercible to an integer.
type RosterRow struct {
	SchoolName  string `json:"school_name"`
	ClassName   string `json:"class_name"`
	StudentName string `json:"student_name"`
	ClassNumber *int   `json:"class_number,omitempty"`
	Grade       *int   `json:"grade,omitempty"`
	Notes       string `json:"notes,omitempty"`
	ZEPSpaceURL string `json:"zep_space_url,omitempty"`

	IsDuplicate      bool   `json:"is_duplicate"`
	DuplicateWarning string `json:"duplicate_warning,omitempty"`
}

// ValidationResult is the validator's verdict on a parsed row set.
// Duplicate flags alone never make a batch invalid.
type ValidationResult struct {
	Valid  bool        `json:"valid"`
	Rows   []RosterRow `json:"rows"`
	Errors []string    `json:"errors"`
}

// RowResult records the per-row outcome of account provisioning. Password
// is the generated plaintext, surfaced exactly once to the operator.
type RowResult struct {
	Name        string `json:"name"`
	SchoolName  string `json:"school_name,omitempty"`
	ClassName   string `json:"class_name,omitempty"`
	ClassNumber *int   `json:"class_number,omitempty"`
	Grade       *int   `json:"grade,omitempty"`
	Username    string `json:"username,omitempty"`
	Password    string `json:"password,omitempty"`
	Email       string `json:"email,omitempty"`
	Success     bool   `json:"success"`
	Error       string `json:"error,omitempty"`
}

// Credential is the exportable subset of a successful RowResult.
type Credential struct {
	Name        string `json:"name"`
	SchoolName  string `json:"school_name,omitempty"`
	ClassName   string `json:"class_name,omitempty"`
	ClassNumber *int   `json:"class_number,omitempty"`
	Grade       *int   `json:"grade,omitempty"`
	Username    string `json:"username"`
	Password    string `json:"password"`
	Email       string `json:"email"`
}
