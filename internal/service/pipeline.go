package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/obralink/obralink/internal/domain"
	"github.com/obralink/obralink/internal/inference"
	"github.com/obralink/obralink/internal/logger"
	"github.com/obralink/obralink/internal/prompts"
	"github.com/obralink/obralink/internal/storage"
)

// PipelineService drives one job through its sequential inference stages:
// diff, cubicación, impactos. Each status transition is persisted before the
// stage runs, so the polling endpoint (and a restarted process) always
// observes the last durable checkpoint. A stage failure short-circuits the
// pipeline into the error state, tagged with the failing stage.
type PipelineService struct {
	jobs         JobStore
	storage      storage.ObjectStorage
	gateway      Gateway
	logger       *logger.Logger
	stageTimeout time.Duration
}

// PipelineConfig holds configuration for the pipeline service.
type PipelineConfig struct {
	StageTimeout time.Duration
}

// NewPipelineService creates a new pipeline service.
// Parameters:
//   - jobs: job persistence boundary.
//   - objectStorage: artifact store.
//   - gateway: inference boundary.
//   - log: logger instance.
//   - cfg: pipeline configuration.
// Returns:
//   - *PipelineService: initialized service.
func NewPipelineService(
	jobs JobStore,
	objectStorage storage.ObjectStorage,
	gateway Gateway,
	log *logger.Logger,
	cfg *PipelineConfig,
) *PipelineService {
	stageTimeout := 2 * time.Minute
	if cfg != nil && cfg.StageTimeout > 0 {
		stageTimeout = cfg.StageTimeout
	}
	return &PipelineService{
		jobs:         jobs,
		storage:      objectStorage,
		gateway:      gateway,
		logger:       log,
		stageTimeout: stageTimeout,
	}
}

// log returns a logger from context if available, otherwise returns the default logger
func (s *PipelineService) log(ctx context.Context) *logger.Logger {
	if l := logger.FromContext(ctx); l != nil {
		return l
	}
	return s.logger
}

// Run executes the full pipeline for one job.
//
// Preconditions: the job exists, the caller may act on it (its owner within
// the same tenant, or an administrator; otherwise domain.ErrPermissionDenied),
// and its status is uploaded. Any other status is rejected with
// *domain.InvalidStateError and no writes, which makes a duplicate trigger
// safe. The claim itself is a conditional write on the uploaded status, so of
// two concurrent triggers exactly one proceeds.
//
// On success the job is left completed with all three results populated; on
// any stage failure it is left in the error state tagged with that stage, and
// the tagged error is returned to the caller.
func (s *PipelineService) Run(ctx context.Context, jobID string, caller domain.Identity) (*domain.Job, error) {
	ctx = logger.SetJobID(ctx, jobID)

	job, err := s.jobs.GetByID(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if !caller.CanAccess(job) {
		return nil, domain.ErrPermissionDenied
	}
	if job.Status != domain.StatusUploaded {
		return nil, &domain.InvalidStateError{JobID: jobID, Status: job.Status}
	}

	// Claim the job. Losing the conditional write means another trigger got
	// here first.
	if err := s.jobs.TransitionStatus(ctx, jobID, domain.StatusUploaded, domain.StatusProcessing); err != nil {
		return nil, err
	}

	start := time.Now()
	s.log(ctx).WithFields(logger.Fields{
		"kind":      job.Kind,
		"artifacts": len(job.ArtifactRefs),
	}).Info("Pipeline started")

	images, err := s.resolveArtifacts(ctx, job)
	if err != nil {
		stageErr := domain.NewStageError(domain.StageUpload, "artifact resolution failed", err)
		return nil, s.fail(ctx, jobID, stageErr)
	}

	// diff
	if err := s.runStage(ctx, job, domain.StageDiff, images); err != nil {
		return nil, err
	}
	// cubicación, reasoning over the diff output
	if err := s.runStage(ctx, job, domain.StageCubicacion, images); err != nil {
		return nil, err
	}
	// impactos, reasoning over both prior outputs
	if err := s.runStage(ctx, job, domain.StageImpactos, images); err != nil {
		return nil, err
	}

	if err := s.jobs.TransitionStatus(ctx, jobID, domain.StatusGeneratingImpactos, domain.StatusCompleted); err != nil {
		return nil, err
	}

	logger.With(logger.Fields{
		logger.FieldDurationMs: time.Since(start).Milliseconds(),
	}).Info(ctx, "Pipeline completed")

	return s.jobs.GetByID(ctx, jobID)
}

// runStage persists the stage's checkpoint status, invokes the gateway with
// the stage prompt, validates and stores the result, and records it on the
// in-memory job so later stages can build on it.
func (s *PipelineService) runStage(ctx context.Context, job *domain.Job, stage domain.Stage, images []inference.Image) error {
	stageCtx := logger.SetStage(ctx, string(stage))

	from := previousStatus(stage)
	if err := s.jobs.TransitionStatus(stageCtx, job.ID, from, stage.Status()); err != nil {
		return s.fail(ctx, job.ID, domain.NewStageError(stage, "failed to persist stage checkpoint", err))
	}
	job.Status = stage.Status()

	req, err := s.buildRequest(job, stage, images)
	if err != nil {
		return s.fail(ctx, job.ID, domain.NewStageError(stage, "failed to build stage prompt", err))
	}

	callCtx, cancel := context.WithTimeout(stageCtx, s.stageTimeout)
	defer cancel()

	start := time.Now()
	raw, err := s.gateway.Complete(callCtx, req)
	if err != nil {
		msg := "inference call failed"
		if errors.Is(err, context.DeadlineExceeded) || callCtx.Err() == context.DeadlineExceeded {
			msg = "inference call timed out"
		}
		return s.fail(ctx, job.ID, domain.NewStageError(stage, msg, err))
	}

	var result interface{}
	switch stage {
	case domain.StageDiff:
		decoded, decErr := inference.DecodeDiff(raw)
		if decErr != nil {
			return s.fail(ctx, job.ID, domain.NewStageError(stage, "output validation failed", decErr))
		}
		job.Diff = decoded
		result = *decoded
	case domain.StageCubicacion:
		decoded, decErr := inference.DecodeCubicacion(raw)
		if decErr != nil {
			return s.fail(ctx, job.ID, domain.NewStageError(stage, "output validation failed", decErr))
		}
		job.Cubicacion = decoded
		result = *decoded
	case domain.StageImpactos:
		decoded, decErr := inference.DecodeImpactos(raw)
		if decErr != nil {
			return s.fail(ctx, job.ID, domain.NewStageError(stage, "output validation failed", decErr))
		}
		job.Impactos = decoded
		result = *decoded
	}

	if err := s.jobs.SetStageResult(stageCtx, job.ID, stage, result); err != nil {
		return s.fail(ctx, job.ID, domain.NewStageError(stage, "failed to persist stage result", err))
	}

	logger.With(logger.Fields{
		logger.FieldStage:      string(stage),
		logger.FieldDurationMs: time.Since(start).Milliseconds(),
	}).Info(stageCtx, "Stage completed")

	return nil
}

// buildRequest assembles the stage-specific prompt. Later stages embed the
// accumulated results of earlier ones.
func (s *PipelineService) buildRequest(job *domain.Job, stage domain.Stage, images []inference.Image) (*inference.Request, error) {
	switch stage {
	case domain.StageDiff:
		return &inference.Request{
			System: prompts.DiffSystemPrompt,
			User:   prompts.DiffUser(job.Kind),
			Images: images,
		}, nil
	case domain.StageCubicacion:
		if job.Diff == nil {
			return nil, fmt.Errorf("diff result missing")
		}
		return &inference.Request{
			System: prompts.CubicacionSystemPrompt,
			User:   prompts.CubicacionUser(job.Kind, job.Diff),
			Images: images,
		}, nil
	case domain.StageImpactos:
		if job.Diff == nil || job.Cubicacion == nil {
			return nil, fmt.Errorf("prior stage results missing")
		}
		return &inference.Request{
			System: prompts.ImpactosSystemPrompt,
			User:   prompts.ImpactosUser(job.Kind, job.Diff, job.Cubicacion),
			Images: images,
		}, nil
	default:
		return nil, fmt.Errorf("unknown stage %q", stage)
	}
}

// resolveArtifacts loads every artifact reference from the store. A missing
// reference fails the whole resolution with *domain.ArtifactMissingError.
func (s *PipelineService) resolveArtifacts(ctx context.Context, job *domain.Job) ([]inference.Image, error) {
	images := make([]inference.Image, 0, len(job.ArtifactRefs))
	for _, ref := range job.ArtifactRefs {
		exists, err := s.storage.Exists(ctx, ref)
		if err != nil {
			return nil, fmt.Errorf("failed to check artifact %q: %w", ref, err)
		}
		if !exists {
			return nil, &domain.ArtifactMissingError{JobID: job.ID, Ref: ref}
		}

		reader, err := s.storage.Download(ctx, ref)
		if err != nil {
			return nil, fmt.Errorf("failed to download artifact %q: %w", ref, err)
		}
		data, err := io.ReadAll(reader)
		reader.Close()
		if err != nil {
			return nil, fmt.Errorf("failed to read artifact %q: %w", ref, err)
		}

		images = append(images, inference.Image{
			Data:   data,
			Format: formatFromKey(ref),
		})
	}
	return images, nil
}

// fail persists the error state with its stage-tagged diagnostic and returns
// the stage error. The persist runs on a context detached from the caller's
// cancellation: the failure being recorded is often that very cancellation
// (run ceiling, client disconnect), and riding the dead context would leave
// the job stuck in a non-terminal checkpoint with no errorInfo. A failure to
// persist the error state itself is logged distinctly.
func (s *PipelineService) fail(ctx context.Context, jobID string, stageErr *domain.StageError) error {
	s.log(ctx).WithFields(logger.Fields{
		logger.FieldJobID: jobID,
		logger.FieldStage: string(stageErr.Stage),
	}).WithError(stageErr).Error("Pipeline stage failed")

	persistCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := s.jobs.MarkError(persistCtx, jobID, stageErr.Info()); err != nil {
		s.log(ctx).WithFields(logger.Fields{
			logger.FieldJobID: jobID,
		}).WithError(err).Error("Failed to persist error state; job is stuck non-terminal")
	}
	return stageErr
}

// previousStatus returns the checkpoint status that precedes a stage.
func previousStatus(stage domain.Stage) domain.JobStatus {
	switch stage {
	case domain.StageDiff:
		return domain.StatusProcessing
	case domain.StageCubicacion:
		return domain.StatusAnalyzingDiff
	case domain.StageImpactos:
		return domain.StatusAnalyzingCubicacion
	default:
		return domain.StatusProcessing
	}
}

func formatFromKey(key string) string {
	ext := strings.TrimPrefix(strings.ToLower(path.Ext(key)), ".")
	if ext == "" {
		return "png"
	}
	return ext
}
