// Package config loads and validates harvest configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/JakeFAU/cropharvest/internal/extract"
	"github.com/JakeFAU/cropharvest/internal/logging"
)

// Store drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

// RunIDPlaceholder in export.path is replaced with the run ID.
const RunIDPlaceholder = "{run_id}"

// Config captures all configuration knobs loaded via Viper.
type Config struct {
	Logging logging.Config  `mapstructure:"logging"`
	Ingest  IngestConfig    `mapstructure:"ingest"`
	Fetch   FetchConfig     `mapstructure:"fetch"`
	Extract extract.Options `mapstructure:"extract"`
	Store   StoreConfig     `mapstructure:"store"`
	Export  ExportConfig    `mapstructure:"export"`
	Metrics MetricsConfig   `mapstructure:"metrics"`
	PubSub  PubSubConfig    `mapstructure:"pubsub"`
}

// IngestConfig says where documents come from and how many workers extract
// them.
type IngestConfig struct {
	URLs        []string `mapstructure:"urls"`
	InputDir    string   `mapstructure:"input_dir"`
	Concurrency int      `mapstructure:"concurrency"`
	QueueDepth  int      `mapstructure:"queue_depth"`
}

// FetchConfig tunes the HTTP fetcher.
type FetchConfig struct {
	UserAgent      string  `mapstructure:"user_agent"`
	TimeoutSeconds int     `mapstructure:"timeout_seconds"`
	RespectRobots  bool    `mapstructure:"respect_robots"`
	RatePerSecond  float64 `mapstructure:"rate_per_second"`
	Burst          int     `mapstructure:"burst"`
	MaxAttempts    int     `mapstructure:"max_attempts"`
	RetryBackoffMs int     `mapstructure:"retry_backoff_ms"`
}

// Timeout converts TimeoutSeconds.
func (f FetchConfig) Timeout() time.Duration {
	return time.Duration(f.TimeoutSeconds) * time.Second
}

// RetryBackoff converts RetryBackoffMs.
func (f FetchConfig) RetryBackoff() time.Duration {
	return time.Duration(f.RetryBackoffMs) * time.Millisecond
}

// StoreConfig selects and configures the record store.
type StoreConfig struct {
	Driver                 string `mapstructure:"driver"`
	SQLitePath             string `mapstructure:"sqlite_path"`
	DSN                    string `mapstructure:"dsn"`
	MaxConns               int32  `mapstructure:"max_conns"`
	MinConns               int32  `mapstructure:"min_conns"`
	MaxConnLifetimeSeconds int    `mapstructure:"max_conn_lifetime_seconds"`
}

// ExportConfig controls the end-of-run snapshot. Snapshots go to GCSBucket
// when set, otherwise under Dir on local disk.
type ExportConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Path      string `mapstructure:"path"`
	Dir       string `mapstructure:"dir"`
	GCSBucket string `mapstructure:"gcs_bucket"`
	GCSPrefix string `mapstructure:"gcs_prefix"`
}

// ObjectPath returns Path with the run ID filled in.
func (e ExportConfig) ObjectPath(runID string) string {
	return strings.ReplaceAll(e.Path, RunIDPlaceholder, runID)
}

// MetricsConfig controls the operator HTTP server. An empty ListenAddr
// disables it.
type MetricsConfig struct {
	ListenAddr string `mapstructure:"listen_addr"`
}

// PubSubConfig connects the publish command and ingest to Cloud Pub/Sub.
// Topic is where publish sends fetched pages; Subscription, when set, makes
// ingest read pages from it.
type PubSubConfig struct {
	ProjectID          string `mapstructure:"project_id"`
	Topic              string `mapstructure:"topic"`
	Subscription       string `mapstructure:"subscription"`
	IdleTimeoutSeconds int    `mapstructure:"idle_timeout_seconds"`
	MaxOutstanding     int    `mapstructure:"max_outstanding"`
}

// IdleTimeout converts IdleTimeoutSeconds.
func (p PubSubConfig) IdleTimeout() time.Duration {
	return time.Duration(p.IdleTimeoutSeconds) * time.Second
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("CROPHARVEST")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	ext := extract.DefaultOptions()
	v.SetDefault("logging.development", false)
	v.SetDefault("logging.level", "info")
	v.SetDefault("ingest.urls", []string{})
	v.SetDefault("ingest.input_dir", "")
	v.SetDefault("ingest.concurrency", 4)
	v.SetDefault("ingest.queue_depth", 64)
	v.SetDefault("fetch.user_agent", "cropharvest/0.1 (+agricultural research)")
	v.SetDefault("fetch.timeout_seconds", 15)
	v.SetDefault("fetch.respect_robots", true)
	v.SetDefault("fetch.rate_per_second", 0.5)
	v.SetDefault("fetch.burst", 1)
	v.SetDefault("fetch.max_attempts", 3)
	v.SetDefault("fetch.retry_backoff_ms", 250)
	v.SetDefault("extract.min_fragment_len", ext.MinFragmentLen)
	v.SetDefault("extract.max_fragment_len", ext.MaxFragmentLen)
	v.SetDefault("extract.max_matches", ext.MaxMatches)
	v.SetDefault("extract.denylist", ext.Denylist)
	v.SetDefault("extract.content_scope", ext.ContentScope)
	v.SetDefault("store.driver", DriverSQLite)
	v.SetDefault("store.sqlite_path", "data/crops.db")
	v.SetDefault("store.dsn", "")
	v.SetDefault("store.max_conns", 4)
	v.SetDefault("store.min_conns", 0)
	v.SetDefault("store.max_conn_lifetime_seconds", 1800)
	v.SetDefault("export.enabled", true)
	v.SetDefault("export.path", "crop_data_"+RunIDPlaceholder+".json")
	v.SetDefault("export.dir", "data/exports")
	v.SetDefault("export.gcs_bucket", "")
	v.SetDefault("export.gcs_prefix", "")
	v.SetDefault("metrics.listen_addr", "")
	v.SetDefault("pubsub.project_id", "")
	v.SetDefault("pubsub.topic", "")
	v.SetDefault("pubsub.subscription", "")
	v.SetDefault("pubsub.idle_timeout_seconds", 30)
	v.SetDefault("pubsub.max_outstanding", 64)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Ingest.Concurrency <= 0 {
		return fmt.Errorf("ingest.concurrency must be > 0")
	}
	if c.Ingest.QueueDepth <= 0 {
		return fmt.Errorf("ingest.queue_depth must be > 0")
	}
	if c.Fetch.TimeoutSeconds <= 0 {
		return fmt.Errorf("fetch.timeout_seconds must be > 0")
	}
	if c.Fetch.RatePerSecond < 0 {
		return fmt.Errorf("fetch.rate_per_second must be >= 0")
	}
	if c.Extract.MinFragmentLen < 0 || c.Extract.MaxFragmentLen <= c.Extract.MinFragmentLen {
		return fmt.Errorf("extract.max_fragment_len must exceed extract.min_fragment_len")
	}
	if c.Extract.MaxMatches <= 0 {
		return fmt.Errorf("extract.max_matches must be > 0")
	}
	switch c.Store.Driver {
	case DriverSQLite:
		if c.Store.SQLitePath == "" {
			return fmt.Errorf("store.sqlite_path must be set for the sqlite driver")
		}
	case DriverPostgres:
		if c.Store.DSN == "" {
			return fmt.Errorf("store.dsn must be set for the postgres driver")
		}
	case DriverMemory:
	default:
		return fmt.Errorf("store.driver %q is not one of sqlite, postgres, memory", c.Store.Driver)
	}
	if c.Export.Enabled {
		if c.Export.Path == "" {
			return fmt.Errorf("export.path must be set when export is enabled")
		}
		if c.Export.GCSBucket == "" && c.Export.Dir == "" {
			return fmt.Errorf("export.dir or export.gcs_bucket must be set when export is enabled")
		}
	}
	if (c.PubSub.Topic != "" || c.PubSub.Subscription != "") && c.PubSub.ProjectID == "" {
		return fmt.Errorf("pubsub.project_id must be set when a topic or subscription is configured")
	}
	if c.PubSub.Subscription != "" && c.PubSub.IdleTimeoutSeconds <= 0 {
		return fmt.Errorf("pubsub.idle_timeout_seconds must be > 0")
	}
	return nil
}
