package memory

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/JakeFAU/cropharvest/internal/corpus"
	"github.com/JakeFAU/cropharvest/internal/harvest"
)

func doc(url string) harvest.Document {
	return harvest.Document{
		View: corpus.New(url, "", "", nil),
		Meta: harvest.MetadataFor(url),
	}
}

func TestQueueEnqueueDequeue(t *testing.T) {
	t.Parallel()

	q := NewQueue(1)
	result := make(chan harvest.Document, 1)
	errCh := make(chan error, 1)

	go func() {
		item, err := q.Dequeue(context.Background())
		if err != nil {
			errCh <- err
			return
		}
		result <- item
	}()

	if err := q.Enqueue(context.Background(), doc("https://site/plant/tomatoes")); err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}
	select {
	case err := <-errCh:
		t.Fatalf("Dequeue() error = %v", err)
	case got := <-result:
		if got.Meta.SourceURL != "https://site/plant/tomatoes" {
			t.Fatalf("unexpected document %+v", got.Meta)
		}
	case <-time.After(time.Second):
		t.Fatal("dequeue did not return document")
	}
}

func TestQueueCancelationErrors(t *testing.T) {
	t.Parallel()

	qDequeue := NewQueue(1)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := qDequeue.Dequeue(ctx); err == nil ||
		err.Error() != "dequeue canceled: context canceled" {
		t.Fatalf("expected dequeue cancel error, got %v", err)
	}

	qEnqueue := NewQueue(1)
	if err := qEnqueue.Enqueue(context.Background(), doc("https://primed")); err != nil {
		t.Fatalf("failed to prime enqueue queue: %v", err)
	}
	ctx, cancel = context.WithCancel(context.Background())
	cancel()
	if err := qEnqueue.Enqueue(ctx, doc("https://blocked")); err == nil ||
		err.Error() != "enqueue canceled: context canceled" {
		t.Fatalf("expected enqueue cancel error, got %v", err)
	}
}

func TestQueueCloseDrainsThenEOF(t *testing.T) {
	t.Parallel()

	q := NewQueue(2)
	if err := q.Enqueue(context.Background(), doc("https://a")); err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}
	q.Close()
	// Closing twice should be safe.
	q.Close()

	if err := q.Enqueue(context.Background(), doc("https://b")); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed after close, got %v", err)
	}
	got, err := q.Next(context.Background())
	if err != nil || got.Meta.SourceURL != "https://a" {
		t.Fatalf("expected buffered document, got %+v, %v", got.Meta, err)
	}
	if _, err := q.Next(context.Background()); !errors.Is(err, io.EOF) {
		t.Fatalf("expected io.EOF, got %v", err)
	}
	if _, err := q.Dequeue(context.Background()); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
}

func TestQueueCloseRacesWithEnqueue(t *testing.T) {
	t.Parallel()

	q := NewQueue(0)
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				if err := q.Enqueue(context.Background(), doc("https://racer")); errors.Is(err, ErrClosed) {
					return
				}
			}
		}()
	}
	go func() {
		for {
			if _, err := q.Next(context.Background()); errors.Is(err, io.EOF) {
				return
			}
		}
	}()

	time.Sleep(5 * time.Millisecond)
	q.Close()

	finished := make(chan struct{})
	go func() {
		wg.Wait()
		close(finished)
	}()
	select {
	case <-finished:
	case <-time.After(2 * time.Second):
		t.Fatal("producers did not observe close")
	}
}
