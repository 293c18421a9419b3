package storage

import (
	"context"
	"io"
)

// Storage is the object store behind the attestation archive. Snapshots are
// content-addressed, so Exists is enough to skip duplicates.
type Storage interface {
	Upload(ctx context.Context, key string, data io.Reader) error
	Download(ctx context.Context, key string) (io.ReadCloser, error)
	Exists(ctx context.Context, key string) (bool, error)
}
