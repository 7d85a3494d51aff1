package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/cropharvest/internal/harvest"
	"github.com/JakeFAU/cropharvest/internal/metrics"
)

// DefaultConcurrency is used when Config.Concurrency is not positive.
const DefaultConcurrency = 4

// Snapshot receives every record the persister handles.
type Snapshot interface {
	Add(rec harvest.Record)
	Flush(ctx context.Context) (string, int, error)
	Discard()
}

// Config tunes a Pipeline.
type Config struct {
	Concurrency int
	RunID       string
}

// Pipeline wires the extraction, validation and persistence stages together.
type Pipeline struct {
	cfg       Config
	harvester *harvest.Harvester
	validator *harvest.Validator
	store     harvest.Store
	snapshot  Snapshot
	logger    *zap.Logger

	mu      sync.Mutex
	summary harvest.Summary
	done    atomic.Bool
}

// New validates dependencies and returns a Pipeline. snapshot may be nil to
// skip the export.
func New(
	cfg Config,
	harvester *harvest.Harvester,
	validator *harvest.Validator,
	store harvest.Store,
	snapshot Snapshot,
	logger *zap.Logger,
) (*Pipeline, error) {
	if harvester == nil {
		return nil, errors.New("harvester is required")
	}
	if validator == nil {
		return nil, errors.New("validator is required")
	}
	if store == nil {
		return nil, errors.New("store is required")
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = DefaultConcurrency
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	metrics.Init()
	return &Pipeline{
		cfg:       cfg,
		harvester: harvester,
		validator: validator,
		store:     store,
		snapshot:  snapshot,
		logger:    logger.With(zap.String("run_id", cfg.RunID)),
	}, nil
}

// RunID identifies the run in logs and the snapshot name.
func (p *Pipeline) RunID() string { return p.cfg.RunID }

// Summary returns the counters so far.
func (p *Pipeline) Summary() harvest.Summary {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.summary
}

// Done reports whether Run has returned.
func (p *Pipeline) Done() bool { return p.done.Load() }

func (p *Pipeline) count(fn func(s *harvest.Summary)) {
	p.mu.Lock()
	fn(&p.summary)
	p.mu.Unlock()
}

// Run consumes src until it is exhausted, ctx is cancelled, or the store
// fails. A store or export failure aborts the run; rows already committed
// stay. On cancellation the snapshot is discarded and ctx.Err() returned.
func (p *Pipeline) Run(ctx context.Context, src harvest.DocumentSource) (harvest.Summary, error) {
	defer p.done.Store(true)
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	p.logger.Info("run started", zap.Int("concurrency", p.cfg.Concurrency))
	start := time.Now()

	docs := make(chan harvest.Document)
	records := make(chan harvest.Record, p.cfg.Concurrency)

	var readErr error
	go func() {
		defer close(docs)
		readErr = p.read(runCtx, src, docs)
	}()

	var wg sync.WaitGroup
	for i := 0; i < p.cfg.Concurrency; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			p.extract(runCtx, id, docs, records)
		}(i)
	}
	go func() {
		wg.Wait()
		close(records)
	}()

	storeErr := p.persist(runCtx, records)
	if storeErr != nil {
		cancel()
	}
	// Drain so the workers and reader can exit.
	for range records {
	}

	summary := p.Summary()
	switch {
	case storeErr != nil:
		p.discard()
		p.logger.Error("run aborted", zap.Error(storeErr))
		return summary, storeErr
	case ctx.Err() != nil:
		p.discard()
		p.logger.Warn("run canceled", zap.Any("summary", summary))
		return summary, fmt.Errorf("run canceled: %w", ctx.Err())
	case readErr != nil:
		p.discard()
		return summary, readErr
	}

	if p.snapshot != nil {
		uri, n, err := p.snapshot.Flush(ctx)
		if err != nil {
			return summary, fmt.Errorf("export snapshot: %w", err)
		}
		p.count(func(s *harvest.Summary) { s.Exported = n })
		metrics.ObserveSnapshot(n)
		p.logger.Info("snapshot exported", zap.String("uri", uri), zap.Int("records", n))
	}

	summary = p.Summary()
	p.logger.Info("run finished",
		zap.Int("documents", summary.Documents),
		zap.Int("persisted", summary.Persisted),
		zap.Int("duplicates", summary.Duplicates),
		zap.Int("rejected", summary.Rejected),
		zap.Duration("elapsed", time.Since(start)),
	)
	return summary, nil
}

func (p *Pipeline) read(ctx context.Context, src harvest.DocumentSource, out chan<- harvest.Document) error {
	for {
		doc, err := src.Next(ctx)
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("read document: %w", err)
		}
		select {
		case out <- doc:
		case <-ctx.Done():
			return nil
		}
	}
}

// extract is pure apart from logging and metrics; it never touches the store.
func (p *Pipeline) extract(ctx context.Context, id int, in <-chan harvest.Document, out chan<- harvest.Record) {
	metrics.IncActiveWorkers()
	defer metrics.DecActiveWorkers()
	logger := p.logger.With(zap.Int("worker", id))

	for doc := range in {
		if doc.View == nil {
			continue
		}
		p.count(func(s *harvest.Summary) { s.Documents++ })
		built := p.harvester.Harvest(doc.View, doc.Meta)
		for _, rec := range built {
			kind := string(rec.Kind())
			p.count(func(s *harvest.Summary) { s.Built++ })
			metrics.ObserveRecord(kind, metrics.StageBuilt)

			valid, err := p.validator.Validate(rec)
			if err != nil {
				p.count(func(s *harvest.Summary) { s.Rejected++ })
				metrics.ObserveRecord(kind, metrics.StageRejected)
				logger.Warn("record rejected", zap.String("url", rec.URL()), zap.Error(err))
				continue
			}
			p.count(func(s *harvest.Summary) { s.Validated++ })
			metrics.ObserveRecord(kind, metrics.StageValidated)

			select {
			case out <- valid:
			case <-ctx.Done():
				return
			}
		}
	}
}

// persist is the only caller of Store.Put and Snapshot.Add. A Put already
// started finishes even if ctx is cancelled.
func (p *Pipeline) persist(ctx context.Context, in <-chan harvest.Record) error {
	putCtx := context.WithoutCancel(ctx)
	for rec := range in {
		if ctx.Err() != nil {
			return nil
		}
		kind := string(rec.Kind())
		start := time.Now()
		outcome, err := p.store.Put(putCtx, rec)
		metrics.ObserveStorePut(kind, time.Since(start))
		if err != nil {
			return fmt.Errorf("persist %s: %w", rec.Key(), err)
		}
		switch outcome {
		case harvest.Inserted:
			p.count(func(s *harvest.Summary) { s.Persisted++ })
			metrics.ObserveRecord(kind, metrics.StagePersisted)
		case harvest.SkippedDuplicate:
			p.count(func(s *harvest.Summary) { s.Duplicates++ })
			metrics.ObserveRecord(kind, metrics.StageDuplicate)
			p.logger.Debug("duplicate skipped", zap.String("key", rec.Key().String()))
		}
		if p.snapshot != nil {
			p.snapshot.Add(rec)
		}
	}
	return nil
}

func (p *Pipeline) discard() {
	if p.snapshot != nil {
		p.snapshot.Discard()
	}
}
