package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"github.com/obralink/obralink/internal/domain"
	"github.com/obralink/obralink/internal/inference"
)

// fakeJobStore is an in-memory JobStore mirroring the repository's guarded
// write semantics: FSM-checked conditional transitions, write-once results,
// and error marking only from non-terminal states.
type fakeJobStore struct {
	mu            sync.Mutex
	jobs          map[string]*domain.Job
	statusWrites  map[string][]domain.JobStatus
	failMarkError bool
}

func newFakeJobStore() *fakeJobStore {
	return &fakeJobStore{
		jobs:         make(map[string]*domain.Job),
		statusWrites: make(map[string][]domain.JobStatus),
	}
}

func (f *fakeJobStore) Create(ctx context.Context, job *domain.Job) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !domain.IsValidStatus(job.Status) {
		return fmt.Errorf("undeclared status %q", job.Status)
	}
	copied := *job
	f.jobs[job.ID] = &copied
	return nil
}

func (f *fakeJobStore) GetByID(ctx context.Context, id string) (*domain.Job, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	job, ok := f.jobs[id]
	if !ok {
		return nil, domain.ErrJobNotFound
	}
	copied := *job
	return &copied, nil
}

func (f *fakeJobStore) TransitionStatus(ctx context.Context, id string, from, to domain.JobStatus) error {
	if err := domain.CheckTransition(from, to); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	job, ok := f.jobs[id]
	if !ok {
		return domain.ErrJobNotFound
	}
	if job.Status != from {
		return &domain.InvalidStateError{JobID: id, Status: job.Status}
	}
	job.Status = to
	f.statusWrites[id] = append(f.statusWrites[id], to)
	return nil
}

func (f *fakeJobStore) SetStageResult(ctx context.Context, id string, stage domain.Stage, result interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	job, ok := f.jobs[id]
	if !ok {
		return domain.ErrJobNotFound
	}
	switch r := result.(type) {
	case domain.DiffResult:
		if job.Diff != nil {
			return fmt.Errorf("job %s already has a diff result", id)
		}
		job.Diff = &r
	case domain.CubicacionResult:
		if job.Cubicacion != nil {
			return fmt.Errorf("job %s already has a cubicacion result", id)
		}
		job.Cubicacion = &r
	case domain.ImpactosResult:
		if job.Impactos != nil {
			return fmt.Errorf("job %s already has an impactos result", id)
		}
		job.Impactos = &r
	default:
		return fmt.Errorf("unexpected result type %T", result)
	}
	return nil
}

// MarkError honors context cancellation the way db.WithContext does, so
// error-state persistence on a dead context fails here too.
func (f *fakeJobStore) MarkError(ctx context.Context, id string, info *domain.ErrorInfo) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failMarkError {
		return fmt.Errorf("simulated error-state write failure")
	}
	job, ok := f.jobs[id]
	if !ok {
		return domain.ErrJobNotFound
	}
	if job.IsTerminal() {
		return fmt.Errorf("job %s already terminal", id)
	}
	job.Status = domain.StatusError
	job.ErrorInfo = info
	f.statusWrites[id] = append(f.statusWrites[id], domain.StatusError)
	return nil
}

// writeCount returns the total number of status writes recorded for a job.
func (f *fakeJobStore) writeCount(id string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.statusWrites[id])
}

// fakeStorage is an in-memory artifact store. When cancelUpload is set,
// Upload cancels the request mid-write and fails with the context's error,
// simulating a client disconnect during a streaming upload.
type fakeStorage struct {
	mu           sync.Mutex
	objects      map[string][]byte
	failUpload   bool
	cancelUpload context.CancelFunc
}

func newFakeStorage() *fakeStorage {
	return &fakeStorage{objects: make(map[string][]byte)}
}

func (f *fakeStorage) EnsureBucket(ctx context.Context) error { return nil }

func (f *fakeStorage) Upload(ctx context.Context, key string, reader io.Reader, size int64, contentType string) error {
	if f.cancelUpload != nil {
		f.cancelUpload()
		return ctx.Err()
	}
	if f.failUpload {
		return fmt.Errorf("simulated storage failure")
	}
	data, err := io.ReadAll(reader)
	if err != nil {
		return err
	}
	f.mu.Lock()
	f.objects[key] = data
	f.mu.Unlock()
	return nil
}

func (f *fakeStorage) Download(ctx context.Context, key string) (io.ReadCloser, error) {
	f.mu.Lock()
	data, ok := f.objects[key]
	f.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("object %q not found", key)
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (f *fakeStorage) GetURL(key string) string { return "fake://" + key }

func (f *fakeStorage) Delete(ctx context.Context, key string) error {
	f.mu.Lock()
	delete(f.objects, key)
	f.mu.Unlock()
	return nil
}

func (f *fakeStorage) Exists(ctx context.Context, key string) (bool, error) {
	f.mu.Lock()
	_, ok := f.objects[key]
	f.mu.Unlock()
	return ok, nil
}

// fakeGateway replays queued responses (or errors) in call order. With
// blockUntilCancel set it instead hangs until the context expires, the way a
// slow model call does.
type fakeGateway struct {
	mu               sync.Mutex
	responses        []json.RawMessage
	errs             []error
	calls            int
	blockUntilCancel bool
}

func (f *fakeGateway) Complete(ctx context.Context, req *inference.Request) (json.RawMessage, error) {
	f.mu.Lock()
	i := f.calls
	f.calls++
	blocking := f.blockUntilCancel
	f.mu.Unlock()
	if blocking {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if i < len(f.errs) && f.errs[i] != nil {
		return nil, f.errs[i]
	}
	if i >= len(f.responses) {
		return nil, fmt.Errorf("no response queued for call %d", i)
	}
	return f.responses[i], nil
}

// Minimal stage outputs that pass schema validation.
const (
	validDiffJSON       = `{"summary":"un tabique agregado","changes":[{"zone":"Eje 3","kind":"added","description":"tabique nuevo","severity":"media"}]}`
	validCubicacionJSON = `{"items":[{"code":"P-200","description":"Tabique volcanita","unit":"m2","quantity_before":0,"quantity_after":12,"delta":12}]}`
	validImpactosJSON   = `{"summary":"impacto acotado","impactos":[{"title":"Costo directo","cost_delta":450000,"children":[{"title":"Materiales"}]}]}`
)
