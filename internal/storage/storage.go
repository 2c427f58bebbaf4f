package storage

import (
	"context"
	"io"
)

// Storage archives uploaded roster files for audit. Archiving is
// best-effort: upload flow continues even when the archive write fails.
type Storage interface {
	Upload(ctx context.Context, key string, data io.Reader) error
	Download(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
	Exists(ctx context.Context, key string) (bool, error)
}
