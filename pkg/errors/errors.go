package errors

import (
	"errors"
	"fmt"
)

var (
	ErrUnsupportedFormat = errors.New("unsupported file format")
	ErrUndecodableText   = errors.New("unable to decode file with any supported encoding")
	ErrOversizedFile     = errors.New("file exceeds maximum allowed size")
	ErrEmptyFile         = errors.New("file contains no data rows")

	ErrAlreadyExists   = errors.New("record already exists")
	ErrNotFound        = errors.New("record not found")
	ErrSessionNotFound = errors.New("upload session not found or expired")

	ErrRateLimitExceeded    = errors.New("rate limit exceeded, max retries reached")
	ErrBatchTooLarge        = errors.New("batch too large for automatic space provisioning")
	ErrIdentifierExhausted  = errors.New("could not generate a unique login identifier")
	ErrInstructorUnassigned = errors.New("student class has no assigned instructor")
)

// RowError is a content-level validation failure tied to a file row.
// Row numbers are 1-based file line numbers (data index + 2, header is line 1).
type RowError struct {
	Row     int
	Field   string
	Message string
}

func (e RowError) Error() string {
	if e.Row > 0 {
		return fmt.Sprintf("row %d: %s", e.Row, e.Message)
	}
	return e.Message
}

// ValidationError is a structural failure of the whole file, such as a
// missing required column.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("validation failed for '%s': %s", e.Field, e.Message)
}

// APIError carries the terminal HTTP status of an external API call that
// completed with a non-success response. 5xx responses that survive the
// retry budget end here rather than with a dedicated sentinel.
type APIError struct {
	Status int
	Body   string
}

func (e APIError) Error() string {
	return fmt.Sprintf("external API returned status %d: %s", e.Status, e.Body)
}

// RequestFailedError wraps the last network-level error after all retries
// of an external call were exhausted.
type RequestFailedError struct {
	Attempts int
	Err      error
}

func (e RequestFailedError) Error() string {
	return fmt.Sprintf("request failed after %d retries: %v", e.Attempts, e.Err)
}

func (e RequestFailedError) Unwrap() error {
	return e.Err
}

// BulkCreationError signals that the whole provisioning transaction was
// rolled back; nothing from the batch persisted.
type BulkCreationError struct {
	Err error
}

func (e BulkCreationError) Error() string {
	return fmt.Sprintf("bulk account creation failed, batch rolled back: %v", e.Err)
}

func (e BulkCreationError) Unwrap() error {
	return e.Err
}
