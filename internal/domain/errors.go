package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors surfaced by the status endpoint.
var (
	ErrJobNotFound      = errors.New("job not found")
	ErrPermissionDenied = errors.New("permission denied")
)

// ValidationError reports malformed or missing submission input. No job is
// created when intake fails with one of these.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation failed: " + e.Message
	}
	return fmt.Sprintf("validation failed: %s: %s", e.Field, e.Message)
}

// InvalidStateError reports a pipeline trigger on a job that is not in the
// uploaded state. The job is already running or already terminal; the
// invocation is rejected without any writes.
type InvalidStateError struct {
	JobID  string
	Status JobStatus
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("job %s is in state %q, not %q: already running or terminal", e.JobID, e.Status, StatusUploaded)
}

// ArtifactMissingError reports a referenced artifact absent from the artifact
// store at pipeline start.
type ArtifactMissingError struct {
	JobID string
	Ref   string
}

func (e *ArtifactMissingError) Error() string {
	return fmt.Sprintf("job %s: artifact %q not found in storage", e.JobID, e.Ref)
}

// StageError wraps the failure of one pipeline stage: a gateway error, a
// timeout, or an output that failed schema validation. It carries the stage
// tag that is persisted in ErrorInfo.
type StageError struct {
	Stage   Stage
	Message string
	Err     error
}

func (e *StageError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("stage %s failed: %s: %v", e.Stage, e.Message, e.Err)
	}
	return fmt.Sprintf("stage %s failed: %s", e.Stage, e.Message)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// Info converts the error into the ErrorInfo record persisted on the job.
func (e *StageError) Info() *ErrorInfo {
	info := &ErrorInfo{
		StageCode: e.Stage.FailureCode(),
		Message:   e.Message,
	}
	if e.Err != nil {
		info.Details = e.Err.Error()
	}
	return info
}

// NewStageError builds a StageError for the given stage.
func NewStageError(stage Stage, message string, err error) *StageError {
	return &StageError{Stage: stage, Message: message, Err: err}
}
