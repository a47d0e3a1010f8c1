package domain

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"
)

// JobKind identifies which analysis pipeline a job belongs to.
// Values include JobKindComparacion and JobKindItemizado.
type JobKind string

const (
	JobKindComparacion JobKind = "comparacion"
	JobKindItemizado   JobKind = "itemizado"
)

// ArtifactRefs is a custom type for storing artifact storage keys as JSON in the database.
type ArtifactRefs []string

// Value implements the driver.Valuer interface for database serialization.
func (a ArtifactRefs) Value() (driver.Value, error) {
	if a == nil {
		return "[]", nil
	}
	b, err := json.Marshal(a)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements the sql.Scanner interface for database deserialization.
func (a *ArtifactRefs) Scan(value interface{}) error {
	if value == nil {
		*a = ArtifactRefs{}
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		str, ok := value.(string)
		if !ok {
			return errors.New("failed to scan ArtifactRefs")
		}
		bytes = []byte(str)
	}
	return json.Unmarshal(bytes, a)
}

// ErrorInfo is the stage-tagged diagnostic persisted when a job reaches the
// error state. StageCode identifies exactly which stage failed.
type ErrorInfo struct {
	StageCode string `json:"stage_code"`
	Message   string `json:"message"`
	Details   string `json:"details,omitempty"`
}

// Value implements the driver.Valuer interface for database serialization.
func (e ErrorInfo) Value() (driver.Value, error) {
	b, err := json.Marshal(e)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements the sql.Scanner interface for database deserialization.
func (e *ErrorInfo) Scan(value interface{}) error {
	if value == nil {
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		str, ok := value.(string)
		if !ok {
			return errors.New("failed to scan ErrorInfo")
		}
		bytes = []byte(str)
	}
	return json.Unmarshal(bytes, e)
}

// Job represents one plan-comparison or budget-import request and its
// progress through the analysis pipeline.
//
// OwnerID, TenantID and ArtifactRefs are immutable after creation. Status is
// mutated only by the pipeline service and only along edges the FSM declares.
// Each result column is written once and never overwritten.
type Job struct {
	ID           string            `gorm:"type:text;primaryKey" json:"job_id"`
	OwnerID      string            `gorm:"type:text;not null;index:idx_jobs_owner" json:"owner_id"`
	TenantID     string            `gorm:"type:text;not null;index:idx_jobs_tenant" json:"tenant_id"`
	Kind         JobKind           `gorm:"type:text;not null;default:comparacion" json:"kind"`
	Status       JobStatus         `gorm:"type:text;index:idx_jobs_status;default:pending-upload" json:"status"`
	ArtifactRefs ArtifactRefs      `gorm:"type:text" json:"artifact_refs"`
	Diff         *DiffResult       `gorm:"type:text" json:"diff,omitempty"`
	Cubicacion   *CubicacionResult `gorm:"type:text" json:"cubicacion,omitempty"`
	Impactos     *ImpactosResult   `gorm:"type:text" json:"impactos,omitempty"`
	ErrorInfo    *ErrorInfo        `gorm:"type:text" json:"error_info,omitempty"`
	CreatedAt    time.Time         `json:"created_at"`
	UpdatedAt    time.Time         `json:"updated_at"`
}

// TableName returns the database table name for Job.
func (Job) TableName() string {
	return "jobs"
}

// IsTerminal reports whether the job has reached a terminal state.
func (j *Job) IsTerminal() bool {
	return IsTerminalStatus(j.Status)
}
