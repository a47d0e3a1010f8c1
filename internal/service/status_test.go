package service

import (
	"context"
	"errors"
	"testing"

	"github.com/obralink/obralink/internal/domain"
)

func TestStatus_Get(t *testing.T) {
	store := newFakeJobStore()
	svc := NewStatusService(store)
	ctx := context.Background()

	job := &domain.Job{
		ID:       "job-1",
		OwnerID:  "user-1",
		TenantID: "tenant-1",
		Kind:     domain.JobKindComparacion,
		Status:   domain.StatusAnalyzingCubicacion,
		Diff:     &domain.DiffResult{Summary: "un cambio"},
	}
	if err := store.Create(ctx, job); err != nil {
		t.Fatalf("seed failed: %v", err)
	}

	owner := domain.Identity{OwnerID: "user-1", TenantID: "tenant-1"}
	resp, err := svc.Get(ctx, job.ID, owner)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Status != domain.StatusAnalyzingCubicacion {
		t.Errorf("status = %s, want analyzing-cubicacion", resp.Status)
	}
	if resp.Label != domain.StatusLabel(domain.StatusAnalyzingCubicacion) {
		t.Errorf("label = %q, want the display label for the status", resp.Label)
	}
	if resp.Diff == nil || resp.Diff.Summary != "un cambio" {
		t.Error("expected intermediate diff result in the snapshot")
	}
	if resp.Cubicacion != nil || resp.Impactos != nil {
		t.Error("unfinished stage results must be absent")
	}
}

func TestStatus_PermissionDenied(t *testing.T) {
	store := newFakeJobStore()
	svc := NewStatusService(store)
	ctx := context.Background()

	job := &domain.Job{ID: "job-1", OwnerID: "user-1", TenantID: "tenant-1", Status: domain.StatusUploaded}
	if err := store.Create(ctx, job); err != nil {
		t.Fatalf("seed failed: %v", err)
	}

	tests := []struct {
		name    string
		caller  domain.Identity
		wantErr error
	}{
		{"other owner", domain.Identity{OwnerID: "user-2", TenantID: "tenant-1"}, domain.ErrPermissionDenied},
		{"other tenant", domain.Identity{OwnerID: "user-1", TenantID: "tenant-2"}, domain.ErrPermissionDenied},
		{"admin bypasses ownership", domain.Identity{OwnerID: "ops", TenantID: "interno", Admin: true}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Get(ctx, job.ID, tt.caller)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("err = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestStatus_NotFound(t *testing.T) {
	svc := NewStatusService(newFakeJobStore())
	_, err := svc.Get(context.Background(), "nope", domain.Identity{Admin: true})
	if !errors.Is(err, domain.ErrJobNotFound) {
		t.Errorf("err = %v, want ErrJobNotFound", err)
	}
}
