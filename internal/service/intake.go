package service

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/obralink/obralink/internal/domain"
	"github.com/obralink/obralink/internal/logger"
	"github.com/obralink/obralink/internal/storage"
	_ "golang.org/x/image/webp"
)

// SubmissionFile is one uploaded artifact as received by the intake endpoint.
type SubmissionFile struct {
	Name        string
	ContentType string
	Data        []byte
}

// Submission is a validated-pending plan comparison or budget import request.
type Submission struct {
	Kind  domain.JobKind
	Files []SubmissionFile
}

// IntakeConfig holds validation limits for submissions.
type IntakeConfig struct {
	MaxFileSize  int64
	MaxFiles     int
	AllowedTypes []string
	KeyPrefix    string
}

// IntakeService validates submitted artifacts, persists them to the artifact
// store, and creates the job record. Validation failures reject the whole
// submission before anything is written; a storage failure after the
// optimistic job create marks that job error rather than leaving it stuck
// non-terminal.
type IntakeService struct {
	jobs    JobStore
	storage storage.ObjectStorage
	logger  *logger.Logger
	cfg     IntakeConfig
}

// NewIntakeService creates a new intake service.
func NewIntakeService(jobs JobStore, objectStorage storage.ObjectStorage, log *logger.Logger, cfg *IntakeConfig) *IntakeService {
	c := IntakeConfig{
		MaxFileSize:  15 * 1024 * 1024,
		MaxFiles:     4,
		AllowedTypes: []string{"image/png", "image/jpeg", "image/webp", "application/pdf"},
		KeyPrefix:    "jobs",
	}
	if cfg != nil {
		if cfg.MaxFileSize > 0 {
			c.MaxFileSize = cfg.MaxFileSize
		}
		if cfg.MaxFiles > 0 {
			c.MaxFiles = cfg.MaxFiles
		}
		if len(cfg.AllowedTypes) > 0 {
			c.AllowedTypes = cfg.AllowedTypes
		}
		if cfg.KeyPrefix != "" {
			c.KeyPrefix = cfg.KeyPrefix
		}
	}
	return &IntakeService{
		jobs:    jobs,
		storage: objectStorage,
		logger:  log,
		cfg:     c,
	}
}

// log returns a logger from context if available, otherwise returns the default logger
func (s *IntakeService) log(ctx context.Context) *logger.Logger {
	if l := logger.FromContext(ctx); l != nil {
		return l
	}
	return s.logger
}

// Submit validates the submission, writes its artifacts, and creates the job.
//
// The job record is created optimistically in pending-upload before the
// artifact writes and advanced to uploaded only once every write succeeded.
// If a write fails the job is moved to error with the upload stage code, so
// no non-terminal orphan is left behind.
// Returns the created job (status uploaded) or a *domain.ValidationError.
func (s *IntakeService) Submit(ctx context.Context, caller domain.Identity, sub *Submission) (*domain.Job, error) {
	if err := s.validate(sub); err != nil {
		return nil, err
	}

	kind := sub.Kind
	if kind == "" {
		kind = domain.JobKindComparacion
	}

	jobID := uuid.New().String()
	ctx = logger.SetJobID(ctx, jobID)

	refs := make(domain.ArtifactRefs, len(sub.Files))
	for i, f := range sub.Files {
		refs[i] = storage.ArtifactKey(s.cfg.KeyPrefix, jobID, slotName(i, f))
	}

	job := &domain.Job{
		ID:           jobID,
		OwnerID:      caller.OwnerID,
		TenantID:     caller.TenantID,
		Kind:         kind,
		Status:       domain.StatusPendingUpload,
		ArtifactRefs: refs,
	}
	if err := s.jobs.Create(ctx, job); err != nil {
		return nil, fmt.Errorf("failed to create job record: %w", err)
	}

	for i, f := range sub.Files {
		err := s.storage.Upload(ctx, refs[i], bytes.NewReader(f.Data), int64(len(f.Data)), f.ContentType)
		if err != nil {
			stageErr := domain.NewStageError(domain.StageUpload, "artifact write failed", err)
			// The compensation must land even when the write failed
			// because the client disconnected mid-upload; riding the
			// dead request context would orphan the record in
			// pending-upload.
			markCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
			defer cancel()
			if markErr := s.jobs.MarkError(markCtx, jobID, stageErr.Info()); markErr != nil {
				s.log(ctx).WithError(markErr).Error("Failed to persist error state after upload failure")
			}
			return nil, stageErr
		}
	}

	if err := s.jobs.TransitionStatus(ctx, jobID, domain.StatusPendingUpload, domain.StatusUploaded); err != nil {
		return nil, err
	}
	job.Status = domain.StatusUploaded

	s.log(ctx).WithFields(logger.Fields{
		"kind":              kind,
		logger.FieldCount:   len(sub.Files),
		logger.FieldOwnerID: caller.OwnerID,
	}).Info("Job created")

	return job, nil
}

// validate checks the whole submission before anything is persisted.
func (s *IntakeService) validate(sub *Submission) error {
	if sub == nil || len(sub.Files) == 0 {
		return &domain.ValidationError{Field: "files", Message: "at least one file is required"}
	}
	if len(sub.Files) > s.cfg.MaxFiles {
		return &domain.ValidationError{
			Field:   "files",
			Message: fmt.Sprintf("too many files: %d (maximum %d)", len(sub.Files), s.cfg.MaxFiles),
		}
	}
	if sub.Kind != "" && sub.Kind != domain.JobKindComparacion && sub.Kind != domain.JobKindItemizado {
		return &domain.ValidationError{Field: "kind", Message: fmt.Sprintf("unknown job kind %q", sub.Kind)}
	}

	for _, f := range sub.Files {
		if int64(len(f.Data)) > s.cfg.MaxFileSize {
			return &domain.ValidationError{
				Field:   f.Name,
				Message: fmt.Sprintf("file exceeds size limit of %d bytes", s.cfg.MaxFileSize),
			}
		}
		if len(f.Data) == 0 {
			return &domain.ValidationError{Field: f.Name, Message: "file is empty"}
		}
		if !s.typeAllowed(f.ContentType) {
			return &domain.ValidationError{
				Field:   f.Name,
				Message: fmt.Sprintf("content type %q is not allowed", f.ContentType),
			}
		}
		if err := sniff(f); err != nil {
			return &domain.ValidationError{Field: f.Name, Message: err.Error()}
		}
	}
	return nil
}

func (s *IntakeService) typeAllowed(contentType string) bool {
	for _, t := range s.cfg.AllowedTypes {
		if strings.EqualFold(t, contentType) {
			return true
		}
	}
	return false
}

// sniff verifies the file body matches its declared content type: images must
// decode, PDFs must carry the PDF magic bytes.
func sniff(f SubmissionFile) error {
	if f.ContentType == "application/pdf" {
		if !bytes.HasPrefix(f.Data, []byte("%PDF")) {
			return fmt.Errorf("file is not a valid PDF")
		}
		return nil
	}
	if _, _, err := image.DecodeConfig(bytes.NewReader(f.Data)); err != nil {
		return fmt.Errorf("file is not a decodable image: %v", err)
	}
	return nil
}

// slotName builds the deterministic artifact slot for file i, keeping the
// original extension so the pipeline can recover the format from the key.
func slotName(i int, f SubmissionFile) string {
	ext := strings.ToLower(path.Ext(f.Name))
	if ext == "" {
		switch f.ContentType {
		case "image/png":
			ext = ".png"
		case "image/jpeg":
			ext = ".jpg"
		case "image/webp":
			ext = ".webp"
		case "application/pdf":
			ext = ".pdf"
		}
	}
	return fmt.Sprintf("artifact-%d%s", i+1, ext)
}
