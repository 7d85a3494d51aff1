// Package pubsubqueue carries fetched pages over Google Cloud Pub/Sub so
// fetching and harvesting can run as separate processes. The publisher side
// sends raw pages; the Source side parses them back into harvest documents.
package pubsubqueue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"cloud.google.com/go/pubsub"
	"go.uber.org/zap"

	"github.com/JakeFAU/cropharvest/internal/corpus"
	"github.com/JakeFAU/cropharvest/internal/harvest"
	"github.com/JakeFAU/cropharvest/internal/metrics"
)

// DefaultIdleTimeout ends a Source that has seen no message for this long.
const DefaultIdleTimeout = 30 * time.Second

// Page is the message body: one fetched HTML page.
type Page struct {
	URL       string    `json:"url"`
	Status    int       `json:"status"`
	HTML      string    `json:"html"`
	FetchedAt time.Time `json:"fetched_at"`
}

// Publisher sends pages to a topic.
type Publisher struct {
	topic  *pubsub.Topic
	logger *zap.Logger
}

// NewPublisher returns a Publisher for topicID. It fails when the topic does
// not exist.
func NewPublisher(ctx context.Context, client *pubsub.Client, topicID string, logger *zap.Logger) (*Publisher, error) {
	if client == nil {
		return nil, errors.New("pubsub client is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	topic := client.Topic(topicID)
	exists, err := topic.Exists(ctx)
	if err != nil {
		return nil, fmt.Errorf("check pubsub topic %q: %w", topicID, err)
	}
	if !exists {
		return nil, fmt.Errorf("pubsub topic %q does not exist", topicID)
	}
	return &Publisher{topic: topic, logger: logger.Named("pubsub_publisher")}, nil
}

// Publish sends page and waits for the server to accept it.
func (p *Publisher) Publish(ctx context.Context, page Page) error {
	data, err := json.Marshal(page)
	if err != nil {
		return fmt.Errorf("encode page %s: %w", page.URL, err)
	}
	id, err := p.topic.Publish(ctx, &pubsub.Message{
		Data:       data,
		Attributes: map[string]string{"url": page.URL},
	}).Get(ctx)
	if err != nil {
		return fmt.Errorf("publish page %s: %w", page.URL, err)
	}
	p.logger.Debug("page published", zap.String("url", page.URL), zap.String("message_id", id))
	return nil
}

// Close flushes pending messages.
func (p *Publisher) Close() {
	p.topic.Stop()
}

// SourceConfig tunes a Source.
type SourceConfig struct {
	// IdleTimeout ends the stream after this long without a message.
	IdleTimeout time.Duration
	// MaxOutstanding bounds unacknowledged messages held by the client.
	MaxOutstanding int
}

// Source reads pages from a subscription and implements
// harvest.DocumentSource. A message is acknowledged once its document has
// been handed to the pipeline; undecodable messages are acknowledged and
// dropped. Next reports io.EOF after IdleTimeout passes with no message.
type Source struct {
	sub    *pubsub.Subscription
	cfg    SourceConfig
	logger *zap.Logger

	once    sync.Once
	docs    chan harvest.Document
	done    chan struct{}
	stop    context.CancelFunc
	recvErr error
	touched chan struct{}
}

// NewSource returns a Source reading subscriptionID.
func NewSource(client *pubsub.Client, subscriptionID string, cfg SourceConfig, logger *zap.Logger) (*Source, error) {
	if client == nil {
		return nil, errors.New("pubsub client is required")
	}
	if subscriptionID == "" {
		return nil, errors.New("pubsub subscription is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = DefaultIdleTimeout
	}
	metrics.Init()
	sub := client.Subscription(subscriptionID)
	if cfg.MaxOutstanding > 0 {
		sub.ReceiveSettings.MaxOutstandingMessages = cfg.MaxOutstanding
	}
	return &Source{
		sub:     sub,
		cfg:     cfg,
		logger:  logger.Named("pubsub_source"),
		docs:    make(chan harvest.Document),
		done:    make(chan struct{}),
		touched: make(chan struct{}, 1),
	}, nil
}

func (s *Source) start(ctx context.Context) {
	recvCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.stop = cancel
	go s.watchIdle(recvCtx, cancel)
	go func() {
		defer close(s.done)
		err := s.sub.Receive(recvCtx, s.handle)
		if err != nil && !errors.Is(err, context.Canceled) {
			s.recvErr = fmt.Errorf("receive pages: %w", err)
		}
	}()
}

// watchIdle cancels the receive loop once no message arrived for
// IdleTimeout.
func (s *Source) watchIdle(ctx context.Context, cancel context.CancelFunc) {
	timer := time.NewTimer(s.cfg.IdleTimeout)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.touched:
			if !timer.Stop() {
				<-timer.C
			}
			timer.Reset(s.cfg.IdleTimeout)
		case <-timer.C:
			s.logger.Debug("subscription idle, ending stream", zap.Duration("idle", s.cfg.IdleTimeout))
			cancel()
			return
		}
	}
}

func (s *Source) handle(ctx context.Context, msg *pubsub.Message) {
	select {
	case s.touched <- struct{}{}:
	default:
	}
	var page Page
	if err := json.Unmarshal(msg.Data, &page); err != nil || page.URL == "" {
		metrics.ObserveDocument(msg.Attributes["url"], "decode_error", len(msg.Data))
		s.logger.Warn("dropping undecodable page message", zap.String("message_id", msg.ID), zap.Error(err))
		msg.Ack()
		return
	}
	view, err := corpus.FromHTML(page.URL, page.Status, []byte(page.HTML))
	if err != nil {
		metrics.ObserveDocument(page.URL, "parse_error", len(page.HTML))
		s.logger.Warn("dropping unparsable page", zap.String("url", page.URL), zap.Error(err))
		msg.Ack()
		return
	}
	metrics.ObserveDocument(page.URL, "ok", len(page.HTML))
	doc := harvest.Document{View: view, Meta: harvest.MetadataFor(page.URL)}
	select {
	case s.docs <- doc:
		msg.Ack()
	case <-ctx.Done():
		msg.Nack()
	}
}

// Next implements harvest.DocumentSource.
func (s *Source) Next(ctx context.Context) (harvest.Document, error) {
	s.once.Do(func() { s.start(ctx) })
	select {
	case <-ctx.Done():
		return harvest.Document{}, fmt.Errorf("receive canceled: %w", ctx.Err())
	case doc := <-s.docs:
		return doc, nil
	case <-s.done:
		if s.recvErr != nil {
			return harvest.Document{}, s.recvErr
		}
		return harvest.Document{}, io.EOF
	}
}

// Close stops receiving. Messages not yet handed out are redelivered later.
func (s *Source) Close() {
	if s.stop != nil {
		s.stop()
		<-s.done
	}
}
