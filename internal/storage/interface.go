package storage

import (
	"context"
	"fmt"
	"io"
)

// ObjectStorage defines the interface for the artifact store. Artifact keys
// are write-once: a key is written exactly once at intake and treated as
// immutable afterwards.
type ObjectStorage interface {
	// EnsureBucket creates the bucket if it doesn't exist
	EnsureBucket(ctx context.Context) error

	// Upload uploads an artifact to storage
	Upload(ctx context.Context, key string, reader io.Reader, size int64, contentType string) error

	// Download downloads an artifact from storage
	Download(ctx context.Context, key string) (io.ReadCloser, error)

	// GetURL returns the URL for accessing an artifact
	GetURL(key string) string

	// Delete deletes an artifact from storage
	Delete(ctx context.Context, key string) error

	// Exists checks if an artifact exists
	Exists(ctx context.Context, key string) (bool, error)
}

// ArtifactKey builds the deterministic storage key for one artifact slot of a
// job: {prefix}/{jobID}/{slot}.
func ArtifactKey(prefix, jobID, slot string) string {
	if prefix == "" {
		prefix = "jobs"
	}
	return fmt.Sprintf("%s/%s/%s", prefix, jobID, slot)
}
