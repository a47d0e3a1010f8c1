package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/obralink/obralink/internal/domain"
	"gorm.io/gorm"
)

// JobRepository handles job record persistence.
//
// Status writes go through TransitionStatus and MarkError only; both validate
// the edge against the FSM and guard the update with a conditional WHERE on
// the current status, so a concurrent writer loses cleanly instead of
// clobbering state.
type JobRepository struct {
	db *gorm.DB
}

// NewJobRepository creates a new JobRepository.
// Parameters:
//   - db: GORM database handle used for queries.
// Returns:
//   - *JobRepository: repository instance bound to db.
func NewJobRepository(db *gorm.DB) *JobRepository {
	return &JobRepository{db: db}
}

// Create inserts a new job record.
func (r *JobRepository) Create(ctx context.Context, job *domain.Job) error {
	if !domain.IsValidStatus(job.Status) {
		return fmt.Errorf("refusing to persist undeclared status %q", job.Status)
	}
	return r.db.WithContext(ctx).Create(job).Error
}

// GetByID retrieves a job by its ID.
// Returns domain.ErrJobNotFound when no record exists.
func (r *JobRepository) GetByID(ctx context.Context, id string) (*domain.Job, error) {
	var job domain.Job
	if err := r.db.WithContext(ctx).First(&job, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrJobNotFound
		}
		return nil, err
	}
	return &job, nil
}

// TransitionStatus advances a job from one status to the next. The edge must
// be declared by the FSM, and the update is conditional on the job still
// being in the expected from status. A lost race surfaces as
// *domain.InvalidStateError with the status actually found.
func (r *JobRepository) TransitionStatus(ctx context.Context, id string, from, to domain.JobStatus) error {
	if err := domain.CheckTransition(from, to); err != nil {
		return err
	}

	res := r.db.WithContext(ctx).Model(&domain.Job{}).
		Where("id = ? AND status = ?", id, from).
		Updates(map[string]interface{}{
			"status":     to,
			"updated_at": time.Now().UTC(),
		})
	if res.Error != nil {
		return fmt.Errorf("failed to transition job %s to %s: %w", id, to, res.Error)
	}
	if res.RowsAffected == 0 {
		job, err := r.GetByID(ctx, id)
		if err != nil {
			return err
		}
		return &domain.InvalidStateError{JobID: id, Status: job.Status}
	}
	return nil
}

// SetStageResult persists the output of one completed stage. Result columns
// are write-once: an already-populated column is never overwritten, and an
// attempt to do so is reported as an error.
func (r *JobRepository) SetStageResult(ctx context.Context, id string, stage domain.Stage, result interface{}) error {
	var column string
	switch stage {
	case domain.StageDiff:
		column = "diff"
	case domain.StageCubicacion:
		column = "cubicacion"
	case domain.StageImpactos:
		column = "impactos"
	default:
		return fmt.Errorf("stage %q has no result column", stage)
	}

	res := r.db.WithContext(ctx).Model(&domain.Job{}).
		Where(fmt.Sprintf("id = ? AND %s IS NULL", column), id).
		Updates(map[string]interface{}{
			column:       result,
			"updated_at": time.Now().UTC(),
		})
	if res.Error != nil {
		return fmt.Errorf("failed to store %s result for job %s: %w", stage, id, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("job %s already has a %s result", id, stage)
	}
	return nil
}

// MarkError moves a job into the terminal error state with its stage-tagged
// diagnostic. Legal from any non-terminal state; a no-op failure (job already
// terminal or absent) is reported so the caller can surface it distinctly.
func (r *JobRepository) MarkError(ctx context.Context, id string, info *domain.ErrorInfo) error {
	res := r.db.WithContext(ctx).Model(&domain.Job{}).
		Where("id = ? AND status NOT IN ?", id, []domain.JobStatus{domain.StatusCompleted, domain.StatusError}).
		Updates(map[string]interface{}{
			"status":     domain.StatusError,
			"error_info": info,
			"updated_at": time.Now().UTC(),
		})
	if res.Error != nil {
		return fmt.Errorf("failed to mark job %s as error: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("job %s not found or already terminal", id)
	}
	return nil
}
