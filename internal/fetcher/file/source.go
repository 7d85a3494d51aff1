// Package filefetcher feeds saved HTML pages from disk into a harvest run.
package filefetcher

import (
	"context"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/JakeFAU/cropharvest/internal/corpus"
	"github.com/JakeFAU/cropharvest/internal/harvest"
	"github.com/JakeFAU/cropharvest/internal/metrics"
)

// Sink receives converted documents.
type Sink interface {
	Enqueue(ctx context.Context, doc harvest.Document) error
}

// Source reads every .html or .htm file under a directory.
type Source struct {
	root   string
	logger *zap.Logger
}

// New returns a Source rooted at dir.
func New(dir string, logger *zap.Logger) (*Source, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("stat input dir: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("input path %s is not a directory", dir)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	metrics.Init()
	return &Source{root: dir, logger: logger.Named("files")}, nil
}

// Paths lists the pages under the root in lexical order.
func (s *Source) Paths() ([]string, error) {
	var paths []string
	err := filepath.WalkDir(s.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		switch strings.ToLower(filepath.Ext(path)) {
		case ".html", ".htm":
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk %s: %w", s.root, err)
	}
	return paths, nil
}

// Feed enqueues a document for every page. Unreadable files are logged and
// skipped. It returns the number of documents enqueued.
func (s *Source) Feed(ctx context.Context, sink Sink) (int, error) {
	paths, err := s.Paths()
	if err != nil {
		return 0, err
	}
	enqueued := 0
	for _, path := range paths {
		if err := ctx.Err(); err != nil {
			return enqueued, fmt.Errorf("feed canceled: %w", err)
		}
		doc, err := s.Load(path)
		if err != nil {
			metrics.ObserveDocument("file", "error", 0)
			s.logger.Warn("skipping page", zap.String("path", path), zap.Error(err))
			continue
		}
		if err := sink.Enqueue(ctx, harvest.Document{View: doc, Meta: harvest.MetadataFor(doc.URL())}); err != nil {
			return enqueued, fmt.Errorf("enqueue %s: %w", path, err)
		}
		enqueued++
	}
	return enqueued, nil
}

// Load parses one saved page. Its URL is the canonical link, then og:url,
// then a file:// URL for path.
func (s *Source) Load(path string) (*corpus.Document, error) {
	body, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	local := fileURL(path)
	doc, err := corpus.FromHTML(local, 200, body)
	if err != nil {
		return nil, err
	}
	if u := pageURL(doc); u != "" {
		doc = doc.WithURL(u)
	}
	metrics.ObserveDocument(doc.URL(), "ok", len(body))
	return doc, nil
}

func pageURL(doc *corpus.Document) string {
	for _, c := range []struct{ sel, attr string }{
		{`link[rel="canonical"]`, "href"},
		{`meta[property="og:url"]`, "content"},
	} {
		raw := strings.TrimSpace(doc.Attr(c.sel, c.attr))
		if u, err := url.Parse(raw); err == nil && u.IsAbs() {
			return raw
		}
	}
	return ""
}

func fileURL(path string) string {
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	return (&url.URL{Scheme: "file", Path: filepath.ToSlash(abs)}).String()
}
