// Package memory provides the bounded document queue between fetchers and the
// pipeline.
package memory

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/JakeFAU/cropharvest/internal/harvest"
)

// ErrClosed is returned by Dequeue once the queue is closed and drained.
var ErrClosed = errors.New("queue closed")

// Queue is a bounded in-memory queue with context-aware operations. Close
// may race with Enqueue from other goroutines; the data channel itself is
// never closed, so a late Enqueue fails with ErrClosed instead of panicking.
type Queue struct {
	ch        chan harvest.Document
	done      chan struct{}
	closeOnce sync.Once
}

// NewQueue constructs a new queue with the provided capacity.
func NewQueue(capacity int) *Queue {
	if capacity < 0 {
		capacity = 0
	}
	return &Queue{
		ch:   make(chan harvest.Document, capacity),
		done: make(chan struct{}),
	}
}

// Enqueue pushes a document into the queue or returns if the context ends or
// the queue is closed.
func (q *Queue) Enqueue(ctx context.Context, doc harvest.Document) error {
	select {
	case <-q.done:
		return ErrClosed
	default:
	}
	select {
	case <-ctx.Done():
		return fmt.Errorf("enqueue canceled: %w", ctx.Err())
	case <-q.done:
		return ErrClosed
	case q.ch <- doc:
		return nil
	}
}

// Dequeue pops the next document, respecting context cancellation. After
// Close it keeps returning buffered documents until the queue is empty.
func (q *Queue) Dequeue(ctx context.Context) (harvest.Document, error) {
	select {
	case <-ctx.Done():
		return harvest.Document{}, fmt.Errorf("dequeue canceled: %w", ctx.Err())
	case doc := <-q.ch:
		return doc, nil
	case <-q.done:
		select {
		case doc := <-q.ch:
			return doc, nil
		default:
			return harvest.Document{}, ErrClosed
		}
	}
}

// Next implements harvest.DocumentSource, reporting io.EOF once the queue is
// closed and empty.
func (q *Queue) Next(ctx context.Context) (harvest.Document, error) {
	doc, err := q.Dequeue(ctx)
	if errors.Is(err, ErrClosed) {
		return harvest.Document{}, io.EOF
	}
	return doc, err
}

// Close stops further Enqueue calls. It is safe to call more than once.
func (q *Queue) Close() {
	q.closeOnce.Do(func() { close(q.done) })
}
