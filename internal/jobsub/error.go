package jobsub

import (
	"errors"
	"fmt"
	"strings"
)

// Common errors
var (
	// ErrSubmitterNotFound indicates the jobsub_submit binary was not found
	ErrSubmitterNotFound = errors.New("jobsub_submit binary not found in PATH")

	// ErrAlreadyInJob indicates we're already inside a grid job
	ErrAlreadyInJob = errors.New("already inside a grid job")

	// ErrFileNotFound indicates a file to be staged does not exist locally
	ErrFileNotFound = errors.New("file does not exist")

	// ErrOutsideSharedStorage indicates a path is not under the shared-storage prefix
	ErrOutsideSharedStorage = errors.New("path is outside shared storage")

	// ErrConflictingPlacement indicates both onsite_only and offsite_only were requested
	ErrConflictingPlacement = errors.New("cannot specify onsite_only and offsite_only")

	// ErrInvalidLifetime indicates expected_lifetime is neither seconds nor short/medium/long
	ErrInvalidLifetime = errors.New("invalid expected_lifetime")

	// ErrRequired indicates a required value was empty
	ErrRequired = errors.New("a value is required")

	// ErrNotInteger indicates a numeric flag could not be parsed
	ErrNotInteger = errors.New("not an integer")

	// ErrNegativeValue indicates a count or size flag was negative
	ErrNegativeValue = errors.New("value must not be negative")

	// ErrNoFileCounter indicates files_per_job needs a dataset count but no catalog is configured
	ErrNoFileCounter = errors.New("no data catalog configured to count dataset files")
)

// ValidationError ties a rejected value to the flag it came from
type ValidationError struct {
	Field string // Flag name, e.g. "--dest"
	Value string // Offending value
	Err   error  // Underlying reason
}

func (e *ValidationError) Error() string {
	if e.Value != "" {
		return fmt.Sprintf("%s %s: %v", e.Field, e.Value, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Field, e.Err)
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// LimitError represents a request above a hard submission cap
type LimitError struct {
	Field     string // Flag or quantity that exceeded the cap
	Requested int    // Requested value
	Limit     int    // Maximum allowed value
	Hint      string // What the user should do instead
}

func (e *LimitError) Error() string {
	msg := fmt.Sprintf("%s: requested %d exceeds limit %d", e.Field, e.Requested, e.Limit)
	if e.Hint != "" {
		msg += "\n" + e.Hint
	}
	return msg
}

// SubmissionError represents a failed or non-zero jobsub_submit run
type SubmissionError struct {
	Command  string // Command line that was run
	ExitCode int    // Exit status of the submission tool (-1 if it never ran)
	Err      error  // Underlying error
}

func (e *SubmissionError) Error() string {
	if e.ExitCode >= 0 {
		return fmt.Sprintf("jobsub_submit exited with status %d: %v", e.ExitCode, e.Err)
	}
	return fmt.Sprintf("jobsub_submit failed to run: %v", e.Err)
}

func (e *SubmissionError) Unwrap() error {
	return e.Err
}

// NewValidationError creates a new ValidationError
func NewValidationError(field string, value string, err error) *ValidationError {
	return &ValidationError{
		Field: field,
		Value: value,
		Err:   err,
	}
}

// NewSubmissionError creates a new SubmissionError
func NewSubmissionError(command string, exitCode int, err error) *SubmissionError {
	return &SubmissionError{
		Command:  command,
		ExitCode: exitCode,
		Err:      err,
	}
}

// IsValidationError checks if an error is a ValidationError
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// IsLimitError checks if an error is a LimitError
func IsLimitError(err error) bool {
	var le *LimitError
	return errors.As(err, &le)
}

// listErrors formats aggregated validation failures one per line.
func listErrors(errs []error) string {
	if len(errs) == 1 {
		return errs[0].Error()
	}
	var msg strings.Builder
	fmt.Fprintf(&msg, "%d problems with the submission:", len(errs))
	for _, err := range errs {
		msg.WriteString("\n  * ")
		msg.WriteString(err.Error())
	}
	return msg.String()
}
