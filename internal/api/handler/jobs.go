package handler

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/obralink/obralink/internal/api/middleware"
	"github.com/obralink/obralink/internal/domain"
	"github.com/obralink/obralink/internal/logger"
	"github.com/obralink/obralink/internal/service"
)

// JobHandler handles job submission, pipeline triggering, and status polling.
type JobHandler struct {
	intake     *service.IntakeService
	pipeline   *service.PipelineService
	status     *service.StatusService
	logger     *logger.Logger
	runTimeout time.Duration
}

// NewJobHandler creates a new job handler.
// Parameters:
//   - intake: submission intake service.
//   - pipeline: pipeline service.
//   - status: status projection service.
//   - log: logger instance.
//   - runTimeout: ceiling for a synchronous pipeline trigger.
// Returns:
//   - *JobHandler: initialized handler.
func NewJobHandler(
	intake *service.IntakeService,
	pipeline *service.PipelineService,
	status *service.StatusService,
	log *logger.Logger,
	runTimeout time.Duration,
) *JobHandler {
	if runTimeout <= 0 {
		runTimeout = 5 * time.Minute
	}
	return &JobHandler{
		intake:     intake,
		pipeline:   pipeline,
		status:     status,
		logger:     log,
		runTimeout: runTimeout,
	}
}

// Submit handles POST /api/v1/jobs. It accepts one or more multipart file
// parts plus an optional kind field, and returns the created job's ID.
// Triggering the pipeline is a separate, explicit call.
func (h *JobHandler) Submit(c *gin.Context) {
	form, err := c.MultipartForm()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "invalid multipart form: " + err.Error(),
		})
		return
	}

	var files []service.SubmissionFile
	for _, headers := range form.File {
		for _, fh := range headers {
			f, err := fh.Open()
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{
					"error": "failed to open uploaded file: " + err.Error(),
				})
				return
			}
			data, err := io.ReadAll(f)
			f.Close()
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{
					"error": "failed to read uploaded file: " + err.Error(),
				})
				return
			}
			files = append(files, service.SubmissionFile{
				Name:        fh.Filename,
				ContentType: fh.Header.Get("Content-Type"),
				Data:        data,
			})
		}
	}

	sub := &service.Submission{
		Kind:  domain.JobKind(c.PostForm("kind")),
		Files: files,
	}

	job, err := h.intake.Submit(c.Request.Context(), middleware.GetIdentity(c), sub)
	if err != nil {
		writeJobError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"job_id": job.ID,
		"status": job.Status,
	})
}

// Run handles POST /api/v1/jobs/:id/run. By default the pipeline runs
// synchronously within the request, bounded by the configured ceiling; with
// ?async=1 it is dispatched fire-and-forget and progress is observed via
// polling only.
func (h *JobHandler) Run(c *gin.Context) {
	jobID := c.Param("id")
	if jobID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "job ID is required"})
		return
	}
	caller := middleware.GetIdentity(c)

	if c.Query("async") == "1" || c.Query("async") == "true" {
		// Detached from the request context; the pipeline must not be
		// cancelled when the client disconnects.
		ctx := logger.SetJobID(context.Background(), jobID)
		go func() {
			if _, err := h.pipeline.Run(ctx, jobID, caller); err != nil {
				logger.CtxError(ctx, "Async pipeline run failed: %v", err)
			}
		}()
		c.JSON(http.StatusAccepted, gin.H{
			"job_id": jobID,
			"status": domain.StatusProcessing,
		})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), h.runTimeout)
	defer cancel()

	job, err := h.pipeline.Run(ctx, jobID, caller)
	if err != nil {
		writeJobError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"job_id": job.ID,
		"status": job.Status,
	})
}

// Status handles GET /api/v1/jobs/:id/status. Read-only: polling never
// advances the pipeline.
func (h *JobHandler) Status(c *gin.Context) {
	jobID := c.Param("id")
	if jobID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "job ID is required"})
		return
	}

	resp, err := h.status.Get(c.Request.Context(), jobID, middleware.GetIdentity(c))
	if err != nil {
		writeJobError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// writeJobError maps the domain error taxonomy onto HTTP responses.
func writeJobError(c *gin.Context, err error) {
	var (
		validationErr *domain.ValidationError
		stateErr      *domain.InvalidStateError
		stageErr      *domain.StageError
	)

	switch {
	case errors.As(err, &validationErr):
		c.JSON(http.StatusBadRequest, gin.H{"error": validationErr.Error()})
	case errors.As(err, &stateErr):
		c.JSON(http.StatusConflict, gin.H{"error": stateErr.Error()})
	case errors.Is(err, domain.ErrJobNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "job not found"})
	case errors.Is(err, domain.ErrPermissionDenied):
		c.JSON(http.StatusForbidden, gin.H{"error": "permission denied"})
	case errors.As(err, &stageErr):
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": gin.H{
				"stage_code": stageErr.Stage.FailureCode(),
				"message":    stageErr.Message,
			},
		})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}
