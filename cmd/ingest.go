package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	gcsstorage "cloud.google.com/go/storage"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/cropharvest/internal/api"
	"github.com/JakeFAU/cropharvest/internal/clock/system"
	"github.com/JakeFAU/cropharvest/internal/config"
	"github.com/JakeFAU/cropharvest/internal/export"
	"github.com/JakeFAU/cropharvest/internal/extract"
	collyfetcher "github.com/JakeFAU/cropharvest/internal/fetcher/colly"
	filefetcher "github.com/JakeFAU/cropharvest/internal/fetcher/file"
	"github.com/JakeFAU/cropharvest/internal/harvest"
	"github.com/JakeFAU/cropharvest/internal/id/uuid"
	"github.com/JakeFAU/cropharvest/internal/metrics"
	"github.com/JakeFAU/cropharvest/internal/pipeline"
	queue "github.com/JakeFAU/cropharvest/internal/queue/memory"
	"github.com/JakeFAU/cropharvest/internal/storage/gcs"
	"github.com/JakeFAU/cropharvest/internal/storage/local"
	"github.com/JakeFAU/cropharvest/internal/storage/memory"
	"github.com/JakeFAU/cropharvest/internal/storage/postgres"
	"github.com/JakeFAU/cropharvest/internal/storage/sqlite"
)

type ingestFlags struct {
	inputDir    string
	driver      string
	concurrency int
	noExport    bool
}

// newIngestCmd creates the 'ingest' subcommand.
func newIngestCmd() *cobra.Command {
	var flags ingestFlags
	cmd := &cobra.Command{
		Use:   "ingest [url...]",
		Short: "Extracts and stores crop records from URLs or saved pages",
		Long: `Fetches each URL given on the command line or in ingest.urls, reads every
saved page under ingest.input_dir, and runs them through extraction,
validation and storage. The run summary is printed as JSON on stdout.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := resolveRuntime(cmd.Context())
			if err != nil {
				return err
			}
			cfg := flags.apply(rt.cfg, args)
			summary, err := runIngest(cmd.Context(), cfg, rt.logger)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			if err := enc.Encode(summary); err != nil {
				return fmt.Errorf("write summary: %w", err)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&flags.inputDir, "input-dir", "", "directory of saved .html pages")
	cmd.Flags().StringVar(&flags.driver, "store", "", "store driver: sqlite, postgres or memory")
	cmd.Flags().IntVar(&flags.concurrency, "concurrency", 0, "extraction workers")
	cmd.Flags().BoolVar(&flags.noExport, "no-export", false, "skip the JSON snapshot")
	return cmd
}

func (f ingestFlags) apply(cfg config.Config, urls []string) config.Config {
	cfg.Ingest.URLs = append(append([]string(nil), cfg.Ingest.URLs...), urls...)
	if f.inputDir != "" {
		cfg.Ingest.InputDir = f.inputDir
	}
	if f.driver != "" {
		cfg.Store.Driver = f.driver
	}
	if f.concurrency > 0 {
		cfg.Ingest.Concurrency = f.concurrency
	}
	if f.noExport {
		cfg.Export.Enabled = false
	}
	return cfg
}

func runIngest(ctx context.Context, cfg config.Config, logger *zap.Logger) (harvest.Summary, error) {
	if err := cfg.Validate(); err != nil {
		return harvest.Summary{}, err
	}
	if len(cfg.Ingest.URLs) == 0 && cfg.Ingest.InputDir == "" && cfg.PubSub.Subscription == "" {
		return harvest.Summary{}, errors.New("nothing to ingest: pass URLs, set ingest.input_dir or pubsub.subscription")
	}
	runID, err := uuid.New().NewID()
	if err != nil {
		return harvest.Summary{}, fmt.Errorf("generate run id: %w", err)
	}
	logger = logger.With(zap.String("run_id", runID))
	metrics.Init()

	store, err := openStore(ctx, cfg.Store, logger)
	if err != nil {
		return harvest.Summary{}, err
	}
	defer func() {
		if cerr := store.Close(); cerr != nil {
			logger.Warn("close store failed", zap.Error(cerr))
		}
	}()

	var snapshot pipeline.Snapshot
	if cfg.Export.Enabled {
		blob, closeBlob, err := openBlobStore(ctx, cfg.Export)
		if err != nil {
			return harvest.Summary{}, err
		}
		defer closeBlob()
		exp, err := export.New(blob, cfg.Export.ObjectPath(runID), logger.Named("export"))
		if err != nil {
			return harvest.Summary{}, fmt.Errorf("init exporter: %w", err)
		}
		snapshot = exp
	}

	harvester := harvest.NewHarvester(extract.New(cfg.Extract),
		harvest.WithMissHook(func(kind harvest.Kind, field string) {
			metrics.ObserveFieldMiss(string(kind), field)
		}))
	p, err := pipeline.New(pipeline.Config{Concurrency: cfg.Ingest.Concurrency, RunID: runID},
		harvester, harvest.NewValidator(system.New()), store, snapshot, logger.Named("pipeline"))
	if err != nil {
		return harvest.Summary{}, fmt.Errorf("init pipeline: %w", err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	if addr := cfg.Metrics.ListenAddr; addr != "" {
		srv := api.NewServer(p, logger)
		go func() {
			if err := srv.ListenAndServe(runCtx, addr); err != nil {
				logger.Error("http server failed", zap.Error(err))
			}
		}()
	}

	q := queue.NewQueue(cfg.Ingest.QueueDepth)
	feedErr := make(chan error, 1)
	go func() {
		defer q.Close()
		feedErr <- feed(runCtx, cfg, q, logger)
	}()

	summary, err := p.Run(runCtx, q)
	cancel()
	ferr := <-feedErr
	if err != nil {
		return summary, err
	}
	if ferr != nil && !errors.Is(ferr, context.Canceled) {
		return summary, ferr
	}
	return summary, nil
}

func feed(ctx context.Context, cfg config.Config, q *queue.Queue, logger *zap.Logger) error {
	if len(cfg.Ingest.URLs) > 0 {
		n, err := newFetcher(cfg.Fetch, logger).Feed(ctx, cfg.Ingest.URLs, q)
		logger.Info("urls fetched", zap.Int("documents", n), zap.Int("urls", len(cfg.Ingest.URLs)))
		if err != nil {
			return err
		}
	}
	if cfg.Ingest.InputDir != "" {
		src, err := filefetcher.New(cfg.Ingest.InputDir, logger)
		if err != nil {
			return err
		}
		n, err := src.Feed(ctx, q)
		logger.Info("saved pages read", zap.Int("documents", n), zap.String("dir", cfg.Ingest.InputDir))
		if err != nil {
			return err
		}
	}
	if cfg.PubSub.Subscription != "" {
		n, err := drainSubscription(ctx, cfg.PubSub, q, logger)
		logger.Info("published pages received", zap.Int("documents", n), zap.String("subscription", cfg.PubSub.Subscription))
		if err != nil {
			return err
		}
	}
	return nil
}

func newFetcher(cfg config.FetchConfig, logger *zap.Logger) *collyfetcher.Fetcher {
	return collyfetcher.New(collyfetcher.Config{
		UserAgent:     cfg.UserAgent,
		RespectRobots: cfg.RespectRobots,
		Timeout:       cfg.Timeout(),
		RatePerSecond: cfg.RatePerSecond,
		Burst:         cfg.Burst,
		MaxAttempts:   cfg.MaxAttempts,
		RetryBackoff:  cfg.RetryBackoff(),
	}, logger)
}

func openStore(ctx context.Context, cfg config.StoreConfig, logger *zap.Logger) (harvest.Store, error) {
	switch cfg.Driver {
	case config.DriverSQLite:
		return sqlite.Open(ctx, sqlite.Config{Path: cfg.SQLitePath}, logger.Named("sqlite"))
	case config.DriverPostgres:
		return postgres.Open(ctx, postgres.Config{
			DSN:             cfg.DSN,
			MaxConns:        cfg.MaxConns,
			MinConns:        cfg.MinConns,
			MaxConnLifetime: time.Duration(cfg.MaxConnLifetimeSeconds) * time.Second,
		}, logger.Named("postgres"))
	case config.DriverMemory:
		return memory.NewStore(), nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
}

func openBlobStore(ctx context.Context, cfg config.ExportConfig) (harvest.BlobStore, func(), error) {
	if cfg.GCSBucket != "" {
		client, err := gcsstorage.NewClient(ctx)
		if err != nil {
			return nil, nil, fmt.Errorf("create gcs client: %w", err)
		}
		blob, err := gcs.New(client, gcs.Config{Bucket: cfg.GCSBucket, Prefix: cfg.GCSPrefix})
		if err != nil {
			_ = client.Close()
			return nil, nil, err
		}
		return blob, func() { _ = client.Close() }, nil
	}
	blob, err := local.New(local.Config{BaseDir: cfg.Dir})
	if err != nil {
		return nil, nil, err
	}
	return blob, func() {}, nil
}
