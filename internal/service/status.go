package service

import (
	"context"
	"time"

	"github.com/obralink/obralink/internal/domain"
)

// StatusResponse is the read-only projection returned to polling clients: a
// direct snapshot of the job record, plus the display label for its state.
type StatusResponse struct {
	JobID      string                   `json:"job_id"`
	Kind       domain.JobKind           `json:"kind"`
	Status     domain.JobStatus         `json:"status"`
	Label      string                   `json:"label"`
	Diff       *domain.DiffResult       `json:"diff,omitempty"`
	Cubicacion *domain.CubicacionResult `json:"cubicacion,omitempty"`
	Impactos   *domain.ImpactosResult   `json:"impactos,omitempty"`
	ErrorInfo  *domain.ErrorInfo        `json:"error_info,omitempty"`
	UpdatedAt  time.Time                `json:"updated_at"`
}

// StatusService serves job status reads for client polling loops. It never
// mutates state and never advances the pipeline.
type StatusService struct {
	jobs JobStore
}

// NewStatusService creates a new status service.
func NewStatusService(jobs JobStore) *StatusService {
	return &StatusService{jobs: jobs}
}

// Get returns the current snapshot of a job.
//
// The caller must be the job's owner (same owner and tenant) or hold the
// administrative scope; otherwise domain.ErrPermissionDenied. A nonexistent
// job is domain.ErrJobNotFound.
func (s *StatusService) Get(ctx context.Context, jobID string, caller domain.Identity) (*StatusResponse, error) {
	job, err := s.jobs.GetByID(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if !caller.CanAccess(job) {
		return nil, domain.ErrPermissionDenied
	}

	return &StatusResponse{
		JobID:      job.ID,
		Kind:       job.Kind,
		Status:     job.Status,
		Label:      domain.StatusLabel(job.Status),
		Diff:       job.Diff,
		Cubicacion: job.Cubicacion,
		Impactos:   job.Impactos,
		ErrorInfo:  job.ErrorInfo,
		UpdatedAt:  job.UpdatedAt,
	}, nil
}
