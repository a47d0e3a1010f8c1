package service

import (
	"context"
	"encoding/json"

	"github.com/obralink/obralink/internal/domain"
	"github.com/obralink/obralink/internal/inference"
)

// JobStore is the job persistence boundary the services depend on. The
// repository package provides the production implementation; tests substitute
// in-memory fakes.
type JobStore interface {
	Create(ctx context.Context, job *domain.Job) error
	GetByID(ctx context.Context, id string) (*domain.Job, error)
	TransitionStatus(ctx context.Context, id string, from, to domain.JobStatus) error
	SetStageResult(ctx context.Context, id string, stage domain.Stage, result interface{}) error
	MarkError(ctx context.Context, id string, info *domain.ErrorInfo) error
}

// Gateway is the inference boundary: one structured prompt in, raw JSON out.
type Gateway interface {
	Complete(ctx context.Context, req *inference.Request) (json.RawMessage, error)
}
