// Package export writes the end-of-run snapshot: every record the run
// produced, in arrival order, as one indented JSON array.
package export

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/JakeFAU/cropharvest/internal/harvest"
)

// ContentType of snapshot objects.
const ContentType = "application/json"

// ErrClosed is returned by Flush after the exporter was flushed or discarded.
var ErrClosed = errors.New("exporter already flushed or discarded")

// Exporter buffers records and writes them in one shot. Records are kept
// whether or not the store accepted them, so the snapshot reflects what was
// observed rather than what was new.
type Exporter struct {
	blob   harvest.BlobStore
	path   string
	logger *zap.Logger

	mu      sync.Mutex
	records []harvest.Record
	closed  bool
}

// New creates an exporter that writes to path on blob.
func New(blob harvest.BlobStore, path string, logger *zap.Logger) (*Exporter, error) {
	if blob == nil {
		return nil, fmt.Errorf("blob store is required")
	}
	if path == "" {
		return nil, fmt.Errorf("export path is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Exporter{blob: blob, path: path, logger: logger}, nil
}

// Add appends rec to the snapshot. Records added after Flush or Discard are
// dropped.
func (e *Exporter) Add(rec harvest.Record) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed || rec == nil {
		return
	}
	e.records = append(e.records, rec)
}

// Len returns how many records are buffered.
func (e *Exporter) Len() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.records)
}

// Flush serialises every buffered record and writes the snapshot. It returns
// the object URI and the number of records written. Nothing is written when
// serialisation fails.
func (e *Exporter) Flush(ctx context.Context) (string, int, error) {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return "", 0, ErrClosed
	}
	e.closed = true
	records := e.records
	e.records = nil
	e.mu.Unlock()

	if records == nil {
		records = []harvest.Record{}
	}
	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return "", 0, fmt.Errorf("encode snapshot: %w", err)
	}
	uri, err := e.blob.PutObject(ctx, e.path, ContentType, bytes.NewReader(data))
	if err != nil {
		return "", 0, fmt.Errorf("write snapshot %s: %w", e.path, err)
	}
	e.logger.Info("snapshot written", zap.String("uri", uri), zap.Int("records", len(records)))
	return uri, len(records), nil
}

// Discard drops the buffer so a cancelled run leaves no snapshot behind.
func (e *Exporter) Discard() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.closed {
		e.logger.Info("snapshot discarded", zap.Int("records", len(e.records)))
	}
	e.closed = true
	e.records = nil
}
