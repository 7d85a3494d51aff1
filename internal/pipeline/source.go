package pipeline

import (
	"context"
	"io"
	"sync"

	"github.com/JakeFAU/cropharvest/internal/harvest"
)

// SliceSource serves a fixed list of documents.
type SliceSource struct {
	mu   sync.Mutex
	docs []harvest.Document
}

// Documents returns a source over docs.
func Documents(docs ...harvest.Document) *SliceSource {
	return &SliceSource{docs: docs}
}

// Next returns the next document or io.EOF.
func (s *SliceSource) Next(ctx context.Context) (harvest.Document, error) {
	if err := ctx.Err(); err != nil {
		return harvest.Document{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.docs) == 0 {
		return harvest.Document{}, io.EOF
	}
	doc := s.docs[0]
	s.docs = s.docs[1:]
	return doc, nil
}
