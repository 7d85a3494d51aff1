package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"cloud.google.com/go/pubsub"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/cropharvest/internal/config"
	collyfetcher "github.com/JakeFAU/cropharvest/internal/fetcher/colly"
	"github.com/JakeFAU/cropharvest/internal/metrics"
	queue "github.com/JakeFAU/cropharvest/internal/queue/memory"
	pubsubqueue "github.com/JakeFAU/cropharvest/internal/queue/pubsub"
)

// newPubSubClient is swapped in tests to point at a fake server.
var newPubSubClient = func(ctx context.Context, projectID string) (*pubsub.Client, error) {
	return pubsub.NewClient(ctx, projectID)
}

type publishSummary struct {
	URLs      int `json:"urls"`
	Published int `json:"published"`
}

// newPublishCmd creates the 'publish' subcommand.
func newPublishCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "publish [url...]",
		Short: "Fetches URLs and publishes the pages to Pub/Sub",
		Long: `Fetches each URL given on the command line or in ingest.urls and publishes
every 2xx page to pubsub.topic. An ingest run configured with
pubsub.subscription then extracts them.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := resolveRuntime(cmd.Context())
			if err != nil {
				return err
			}
			cfg := rt.cfg
			urls := append(append([]string(nil), cfg.Ingest.URLs...), args...)
			summary, err := runPublish(cmd.Context(), cfg, urls, rt.logger)
			if err != nil {
				return err
			}
			if err := json.NewEncoder(cmd.OutOrStdout()).Encode(summary); err != nil {
				return fmt.Errorf("write summary: %w", err)
			}
			return nil
		},
	}
}

func runPublish(ctx context.Context, cfg config.Config, urls []string, logger *zap.Logger) (publishSummary, error) {
	if cfg.PubSub.Topic == "" {
		return publishSummary{}, errors.New("pubsub.topic must be set to publish")
	}
	if len(urls) == 0 {
		return publishSummary{}, errors.New("nothing to publish: pass URLs or set ingest.urls")
	}
	metrics.Init()
	client, err := newPubSubClient(ctx, cfg.PubSub.ProjectID)
	if err != nil {
		return publishSummary{}, fmt.Errorf("create pubsub client: %w", err)
	}
	defer func() { _ = client.Close() }()

	pub, err := pubsubqueue.NewPublisher(ctx, client, cfg.PubSub.Topic, logger)
	if err != nil {
		return publishSummary{}, err
	}
	defer pub.Close()

	n, err := newFetcher(cfg.Fetch, logger).Pages(ctx, urls, func(resp collyfetcher.Response) error {
		return pub.Publish(ctx, pubsubqueue.Page{
			URL:       resp.URL,
			Status:    resp.StatusCode,
			HTML:      string(resp.Body),
			FetchedAt: time.Now().UTC(),
		})
	})
	summary := publishSummary{URLs: len(urls), Published: n}
	logger.Info("pages published", zap.Int("published", n), zap.Int("urls", len(urls)), zap.String("topic", cfg.PubSub.Topic))
	return summary, err
}

// drainSubscription moves every page waiting on pubsub.subscription into q
// and returns once the subscription has been idle for the configured time.
func drainSubscription(ctx context.Context, cfg config.PubSubConfig, q *queue.Queue, logger *zap.Logger) (int, error) {
	client, err := newPubSubClient(ctx, cfg.ProjectID)
	if err != nil {
		return 0, fmt.Errorf("create pubsub client: %w", err)
	}
	defer func() { _ = client.Close() }()

	src, err := pubsubqueue.NewSource(client, cfg.Subscription, pubsubqueue.SourceConfig{
		IdleTimeout:    cfg.IdleTimeout(),
		MaxOutstanding: cfg.MaxOutstanding,
	}, logger)
	if err != nil {
		return 0, err
	}
	defer src.Close()

	n := 0
	for {
		doc, err := src.Next(ctx)
		if errors.Is(err, io.EOF) {
			return n, nil
		}
		if err != nil {
			return n, err
		}
		if err := q.Enqueue(ctx, doc); err != nil {
			return n, fmt.Errorf("enqueue %s: %w", doc.Meta.SourceURL, err)
		}
		n++
	}
}
