package model

import "time"

// UploadSession holds validated roster rows between the preview and
// confirm steps. Stored in Redis with a TTL; credentials are written back
// after confirmation for a one-time download.
type UploadSession struct {
	ID           string       `json:"id"`
	InstructorID int64        `json:"instructor_id"`
	Rows         []RosterRow  `json:"rows"`
	Credentials  []Credential `json:"credentials,omitempty"`
	Confirmed    bool         `json:"confirmed"`
	CreatedAt    time.Time    `json:"created_at"`
}

// SpaceRetryJob is the queue payload for re-attempting a failed space
// provisioning entry.
type SpaceRetryJob struct {
	AttemptID   int64 `json:"attempt_id"`
	RequestedBy int64 `json:"requested_by"`
}

// SpaceResult is the per-student outcome of space provisioning.
type SpaceResult struct {
	StudentID int64  `json:"student_id"`
	Name      string `json:"name"`
	SpaceID   string `json:"space_id,omitempty"`
	SpaceURL  string `json:"space_url,omitempty"`
	Success   bool   `json:"success"`
	Error     string `json:"error,omitempty"`
}

// SpaceSummary aggregates SpaceResults for one batch.
type SpaceSummary struct {
	Total   int           `json:"total"`
	Success int           `json:"success"`
	Failed  int           `json:"failed"`
	Skipped bool          `json:"skipped"`
	Details []SpaceResult `json:"details"`
}

// ProvisionSummary is the confirm-step response payload.
type ProvisionSummary struct {
	Created     int           `json:"created"`
	Failed      int           `json:"failed"`
	Results     []RowResult   `json:"results"`
	Spaces      *SpaceSummary `json:"spaces,omitempty"`
	SpaceNotice string        `json:"space_notice,omitempty"`
}
