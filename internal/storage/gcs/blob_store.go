// Package gcs provides a BlobStore backed by Google Cloud Storage.
package gcs

import (
	"context"
	"fmt"
	"io"
	"strings"

	"cloud.google.com/go/storage"
)

// Config captures the parameters required to write snapshots to GCS.
type Config struct {
	Bucket string `mapstructure:"gcs_bucket"`
	// Prefix is prepended to every object path.
	Prefix string `mapstructure:"gcs_prefix"`
}

// objectWriter is the slice of *storage.Writer the store uses.
type objectWriter interface {
	io.WriteCloser
	SetContentType(string)
}

// writerFunc opens a writer for bucket/object; the upload is abandoned if ctx
// is cancelled before Close.
type writerFunc func(ctx context.Context, bucket, object string) objectWriter

// BlobStore writes objects to a configured GCS bucket.
type BlobStore struct {
	newWriter writerFunc
	bucket    string
	prefix    string
}

type gcsWriter struct{ *storage.Writer }

func (w gcsWriter) SetContentType(ct string) { w.ContentType = ct }

// New creates a GCS-backed blob store.
func New(client *storage.Client, cfg Config) (*BlobStore, error) {
	if client == nil {
		return nil, fmt.Errorf("storage client is required")
	}
	return newBlobStore(func(ctx context.Context, bucket, object string) objectWriter {
		return gcsWriter{client.Bucket(bucket).Object(object).NewWriter(ctx)}
	}, cfg)
}

func newBlobStore(fn writerFunc, cfg Config) (*BlobStore, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("bucket name is required")
	}
	return &BlobStore{
		newWriter: fn,
		bucket:    cfg.Bucket,
		prefix:    strings.Trim(cfg.Prefix, "/"),
	}, nil
}

// PutObject uploads r as a single object and returns a gs:// URI. The object
// only becomes visible when the whole upload succeeds; on failure the upload
// is cancelled rather than finalised.
func (s *BlobStore) PutObject(ctx context.Context, path string, contentType string, r io.Reader) (string, error) {
	if strings.TrimSpace(path) == "" {
		return "", fmt.Errorf("path is required")
	}
	object := strings.TrimLeft(path, "/")
	if s.prefix != "" {
		object = s.prefix + "/" + object
	}

	uploadCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	writer := s.newWriter(uploadCtx, s.bucket, object)
	if contentType != "" {
		writer.SetContentType(contentType)
	}
	if _, err := io.Copy(writer, r); err != nil {
		cancel()
		if closeErr := writer.Close(); closeErr != nil {
			return "", fmt.Errorf("copy object: %w (close writer: %v)", err, closeErr)
		}
		return "", fmt.Errorf("copy object: %w", err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("close writer: %w", err)
	}
	return fmt.Sprintf("gs://%s/%s", s.bucket, object), nil
}
