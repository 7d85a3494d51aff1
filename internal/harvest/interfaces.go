package harvest

import (
	"context"
	"io"
	"time"

	"github.com/JakeFAU/cropharvest/internal/corpus"
)

// Store persists records exactly once per natural key. Implementations are
// not safe for concurrent Put calls.
type Store interface {
	// Put inserts rec unless a record with the same key already exists, in
	// which case it reports SkippedDuplicate. Any other failure is a
	// *StorageError.
	Put(ctx context.Context, rec Record) (Outcome, error)
	Close() error
}

// BlobStore writes a whole object and returns its URI.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, r io.Reader) (string, error)
}

// Clock returns the current time.
type Clock interface {
	Now() time.Time
}

// DocumentSource yields fetched pages. Next returns io.EOF once the source is
// exhausted.
type DocumentSource interface {
	Next(ctx context.Context) (Document, error)
}

// Document is a fetched page and the provenance stamped onto its records.
type Document struct {
	View corpus.View
	Meta Metadata
}
