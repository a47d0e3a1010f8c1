package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"strings"
	"testing"

	"github.com/obralink/obralink/internal/domain"
	"github.com/obralink/obralink/internal/logger"
)

var testIdentity = domain.Identity{OwnerID: "user-1", TenantID: "tenant-1"}

// tinyPNG returns a real encoded PNG so the sniff check passes.
func tinyPNG(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 2, 2))
	img.Set(0, 0, color.White)
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("failed to encode png: %v", err)
	}
	return buf.Bytes()
}

func newIntakeFixture(cfg *IntakeConfig) (*IntakeService, *fakeJobStore, *fakeStorage) {
	store := newFakeJobStore()
	objects := newFakeStorage()
	svc := NewIntakeService(store, objects, logger.GetDefault(), cfg)
	return svc, store, objects
}

func TestIntake_Success(t *testing.T) {
	svc, store, objects := newIntakeFixture(nil)
	sub := &Submission{
		Kind: domain.JobKindComparacion,
		Files: []SubmissionFile{
			{Name: "plano-v1.png", ContentType: "image/png", Data: tinyPNG(t)},
			{Name: "plano-v2.png", ContentType: "image/png", Data: tinyPNG(t)},
		},
	}

	job, err := svc.Submit(context.Background(), testIdentity, sub)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if job.Status != domain.StatusUploaded {
		t.Errorf("status = %s, want uploaded", job.Status)
	}
	if job.OwnerID != testIdentity.OwnerID || job.TenantID != testIdentity.TenantID {
		t.Errorf("ownership = %s/%s, want %s/%s", job.OwnerID, job.TenantID, testIdentity.OwnerID, testIdentity.TenantID)
	}
	if len(job.ArtifactRefs) != 2 {
		t.Fatalf("artifact refs = %d, want 2", len(job.ArtifactRefs))
	}

	// Deterministic keys under the job's prefix, extension preserved.
	for i, ref := range job.ArtifactRefs {
		want := fmt.Sprintf("jobs/%s/artifact-%d.png", job.ID, i+1)
		if ref != want {
			t.Errorf("ref[%d] = %q, want %q", i, ref, want)
		}
		exists, _ := objects.Exists(context.Background(), ref)
		if !exists {
			t.Errorf("artifact %q not written to storage", ref)
		}
	}

	persisted, err := store.GetByID(context.Background(), job.ID)
	if err != nil {
		t.Fatalf("job record not persisted: %v", err)
	}
	if persisted.Status != domain.StatusUploaded {
		t.Errorf("persisted status = %s, want uploaded", persisted.Status)
	}
}

func TestIntake_DefaultsKindToComparacion(t *testing.T) {
	svc, _, _ := newIntakeFixture(nil)
	job, err := svc.Submit(context.Background(), testIdentity, &Submission{
		Files: []SubmissionFile{{Name: "a.png", ContentType: "image/png", Data: tinyPNG(t)}},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if job.Kind != domain.JobKindComparacion {
		t.Errorf("kind = %s, want comparacion", job.Kind)
	}
}

func TestIntake_ValidationRejections(t *testing.T) {
	pngData := tinyPNG(t)
	tests := []struct {
		name      string
		cfg       *IntakeConfig
		sub       *Submission
		wantField string
	}{
		{
			name:      "no files",
			sub:       &Submission{},
			wantField: "files",
		},
		{
			name: "too many files",
			cfg:  &IntakeConfig{MaxFiles: 1},
			sub: &Submission{Files: []SubmissionFile{
				{Name: "a.png", ContentType: "image/png", Data: pngData},
				{Name: "b.png", ContentType: "image/png", Data: pngData},
			}},
			wantField: "files",
		},
		{
			name: "oversized file",
			cfg:  &IntakeConfig{MaxFileSize: 16},
			sub: &Submission{Files: []SubmissionFile{
				{Name: "big.png", ContentType: "image/png", Data: pngData},
			}},
			wantField: "big.png",
		},
		{
			name: "empty file",
			sub: &Submission{Files: []SubmissionFile{
				{Name: "empty.png", ContentType: "image/png", Data: nil},
			}},
			wantField: "empty.png",
		},
		{
			name: "disallowed content type",
			sub: &Submission{Files: []SubmissionFile{
				{Name: "doc.docx", ContentType: "application/msword", Data: []byte("x")},
			}},
			wantField: "doc.docx",
		},
		{
			name: "declared png, body is not an image",
			sub: &Submission{Files: []SubmissionFile{
				{Name: "fake.png", ContentType: "image/png", Data: []byte("not a png at all")},
			}},
			wantField: "fake.png",
		},
		{
			name: "declared pdf, missing magic",
			sub: &Submission{Files: []SubmissionFile{
				{Name: "fake.pdf", ContentType: "application/pdf", Data: []byte("hello")},
			}},
			wantField: "fake.pdf",
		},
		{
			name: "unknown kind",
			sub: &Submission{
				Kind:  "presupuesto",
				Files: []SubmissionFile{{Name: "a.png", ContentType: "image/png", Data: pngData}},
			},
			wantField: "kind",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, store, objects := newIntakeFixture(tt.cfg)
			_, err := svc.Submit(context.Background(), testIdentity, tt.sub)
			var valErr *domain.ValidationError
			if !errors.As(err, &valErr) {
				t.Fatalf("expected *domain.ValidationError, got %v", err)
			}
			if valErr.Field != tt.wantField {
				t.Errorf("field = %q, want %q", valErr.Field, tt.wantField)
			}
			// Rejected submissions leave nothing behind.
			if len(store.jobs) != 0 {
				t.Error("expected no job records")
			}
			if len(objects.objects) != 0 {
				t.Error("expected no stored artifacts")
			}
		})
	}
}

func TestIntake_StorageFailureMarksJobError(t *testing.T) {
	svc, store, objects := newIntakeFixture(nil)
	objects.failUpload = true

	_, err := svc.Submit(context.Background(), testIdentity, &Submission{
		Files: []SubmissionFile{{Name: "a.png", ContentType: "image/png", Data: tinyPNG(t)}},
	})
	var stageErr *domain.StageError
	if !errors.As(err, &stageErr) {
		t.Fatalf("expected *domain.StageError, got %v", err)
	}
	if stageErr.Stage != domain.StageUpload {
		t.Errorf("stage = %s, want upload", stageErr.Stage)
	}

	// The optimistically created record is moved to error, not left pending.
	if len(store.jobs) != 1 {
		t.Fatalf("job count = %d, want 1", len(store.jobs))
	}
	for _, job := range store.jobs {
		if job.Status != domain.StatusError {
			t.Errorf("status = %s, want error", job.Status)
		}
		if job.ErrorInfo == nil || job.ErrorInfo.StageCode != "UPLOAD_FAILED" {
			t.Errorf("expected UPLOAD_FAILED error info, got %+v", job.ErrorInfo)
		}
	}
}

func TestIntake_DisconnectMidUploadStillMarksJobError(t *testing.T) {
	svc, store, objects := newIntakeFixture(nil)

	// The artifact write fails because the client disconnected, killing the
	// request context. The compensating error mark must not ride it.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	objects.cancelUpload = cancel

	_, err := svc.Submit(ctx, testIdentity, &Submission{
		Files: []SubmissionFile{{Name: "a.png", ContentType: "image/png", Data: tinyPNG(t)}},
	})
	var stageErr *domain.StageError
	if !errors.As(err, &stageErr) {
		t.Fatalf("expected *domain.StageError, got %v", err)
	}

	if len(store.jobs) != 1 {
		t.Fatalf("job count = %d, want 1", len(store.jobs))
	}
	for _, job := range store.jobs {
		if job.Status != domain.StatusError {
			t.Errorf("status = %s, want error (record must not be orphaned non-terminal)", job.Status)
		}
		if job.ErrorInfo == nil || job.ErrorInfo.StageCode != "UPLOAD_FAILED" {
			t.Errorf("expected UPLOAD_FAILED error info, got %+v", job.ErrorInfo)
		}
	}
}

func TestSlotName(t *testing.T) {
	tests := []struct {
		i    int
		file SubmissionFile
		want string
	}{
		{0, SubmissionFile{Name: "Plano Rev B.PNG", ContentType: "image/png"}, "artifact-1.png"},
		{1, SubmissionFile{Name: "scan.jpeg", ContentType: "image/jpeg"}, "artifact-2.jpeg"},
		{2, SubmissionFile{Name: "noext", ContentType: "application/pdf"}, "artifact-3.pdf"},
		{3, SubmissionFile{Name: "noext", ContentType: "image/webp"}, "artifact-4.webp"},
	}
	for _, tt := range tests {
		if got := slotName(tt.i, tt.file); got != tt.want {
			t.Errorf("slotName(%d, %q) = %q, want %q", tt.i, tt.file.Name, got, tt.want)
		}
	}
}

func TestIntake_SuccessWithPDF(t *testing.T) {
	svc, _, objects := newIntakeFixture(nil)
	job, err := svc.Submit(context.Background(), testIdentity, &Submission{
		Kind: domain.JobKindItemizado,
		Files: []SubmissionFile{
			{Name: "itemizado.pdf", ContentType: "application/pdf", Data: []byte("%PDF-1.7 contenido")},
		},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.HasSuffix(job.ArtifactRefs[0], "artifact-1.pdf") {
		t.Errorf("ref = %q, want .pdf suffix", job.ArtifactRefs[0])
	}
	exists, _ := objects.Exists(context.Background(), job.ArtifactRefs[0])
	if !exists {
		t.Error("pdf artifact not stored")
	}
}
