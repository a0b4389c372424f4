package domain

import (
	"context"
	"io"
	"time"
)

// BlobWriter writes objects to blob storage.
type BlobWriter interface {
	Put(ctx context.Context, path string, body io.Reader, contentType string) error
}

// BlobReader reads objects from blob storage.
type BlobReader interface {
	Get(ctx context.Context, path string) (io.ReadCloser, error)
	List(ctx context.Context, prefix string) ([]string, error)
}

// Archiver copies aged records to cold storage. Deleting the archived rows
// from the primary store is a separate, explicit step kept out of the
// archiver so an archive can be verified first.
type Archiver interface {
	ArchiveTransactions(ctx context.Context, before time.Time) (int64, error)
	ArchiveBuckets(ctx context.Context, before time.Time) (int64, error)
}
