// Package postgres persists harvest records in Postgres.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/JakeFAU/cropharvest/internal/harvest"
	"github.com/JakeFAU/cropharvest/internal/storage"
)

// Config controls the Postgres connection pool.
type Config struct {
	DSN             string        `mapstructure:"dsn"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS crops (
	id BIGSERIAL PRIMARY KEY,
	name TEXT NOT NULL,
	common_name TEXT,
	scientific_name TEXT,
	category TEXT,
	planting_depth TEXT,
	spacing TEXT,
	days_to_maturity TEXT,
	water_needs TEXT,
	irrigation_frequency TEXT,
	soil_ph TEXT,
	soil_type TEXT,
	fertilizer_npk TEXT,
	fertilizer_recommendations TEXT,
	organic_fertilizer_options TEXT,
	sun_requirements TEXT,
	temperature_range TEXT,
	hardiness_zone TEXT,
	planting_season TEXT,
	harvest_time TEXT,
	nitrogen_requirement TEXT,
	phosphorus_requirement TEXT,
	potassium_requirement TEXT,
	secondary_nutrients TEXT,
	micronutrients TEXT,
	source_url TEXT NOT NULL,
	data_source TEXT NOT NULL,
	scraped_at TIMESTAMPTZ,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	UNIQUE (name, source_url)
)`,
	`CREATE TABLE IF NOT EXISTS nutrient_recipes (
	id BIGSERIAL PRIMARY KEY,
	crop_name TEXT NOT NULL,
	stage_of_growth TEXT NOT NULL DEFAULT 'general',
	nitrogen_ppm DOUBLE PRECISION,
	phosphorus_ppm DOUBLE PRECISION,
	potassium_ppm DOUBLE PRECISION,
	calcium_ppm DOUBLE PRECISION,
	magnesium_ppm DOUBLE PRECISION,
	sulfur_ppm DOUBLE PRECISION,
	iron_ppm DOUBLE PRECISION,
	manganese_ppm DOUBLE PRECISION,
	zinc_ppm DOUBLE PRECISION,
	copper_ppm DOUBLE PRECISION,
	boron_ppm DOUBLE PRECISION,
	molybdenum_ppm DOUBLE PRECISION,
	ec_range TEXT,
	ph_range TEXT,
	application_method TEXT,
	frequency TEXT,
	source_url TEXT NOT NULL,
	reference_document TEXT,
	data_source TEXT NOT NULL,
	scraped_at TIMESTAMPTZ,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	UNIQUE (crop_name, stage_of_growth, source_url)
)`,
}

type pool interface {
	Begin(context.Context) (pgx.Tx, error)
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Close()
}

// Store implements harvest.Store on a pgx pool. Put is not safe for
// concurrent use.
type Store struct {
	pool   pool
	logger *zap.Logger
}

// Open connects to Postgres and creates the tables if needed.
func Open(ctx context.Context, cfg Config, logger *zap.Logger) (*Store, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("store.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	p, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	store, err := NewStoreWithPool(p, logger)
	if err != nil {
		p.Close()
		return nil, err
	}
	if err := store.Migrate(ctx); err != nil {
		p.Close()
		return nil, err
	}
	return store, nil
}

// NewStoreWithPool constructs a store from an existing pool (primarily for testing).
func NewStoreWithPool(p pool, logger *zap.Logger) (*Store, error) {
	if p == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{pool: p, logger: logger}, nil
}

// Migrate creates the crops and nutrient_recipes tables if they are missing
// and adds columns introduced since a table was created.
func (s *Store) Migrate(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("initialize schema: %w", err)
		}
	}
	for _, col := range storage.CropRequirementColumns {
		stmt := "ALTER TABLE crops ADD COLUMN IF NOT EXISTS " + col + " TEXT"
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("add column crops.%s: %w", col, err)
		}
	}
	return nil
}

// Put inserts rec in its own transaction, reporting harvest.SkippedDuplicate
// when the natural key already exists.
func (s *Store) Put(ctx context.Context, rec harvest.Record) (harvest.Outcome, error) {
	if s == nil || s.pool == nil {
		return 0, &harvest.StorageError{Op: "put", Err: fmt.Errorf("store is closed")}
	}
	row, err := storage.RowFor(rec)
	if err != nil {
		return 0, &harvest.StorageError{Op: "put", Err: err}
	}
	key := rec.Key()

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, &harvest.StorageError{Op: "begin", Key: key, Err: err}
	}
	tag, err := tx.Exec(ctx, row.InsertSQL(storage.Dollar), row.Values...)
	if err != nil {
		// The caller's context may already be cancelled; rollback must still run.
		if rbErr := tx.Rollback(context.WithoutCancel(ctx)); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
			s.logger.Warn("rollback failed", zap.String("key", key.String()), zap.Error(rbErr))
		}
		return 0, &harvest.StorageError{Op: "insert", Key: key, Err: err}
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, &harvest.StorageError{Op: "commit", Key: key, Err: err}
	}
	if tag.RowsAffected() == 0 {
		return harvest.SkippedDuplicate, nil
	}
	return harvest.Inserted, nil
}

// Close releases the underlying pool resources.
func (s *Store) Close() error {
	if s == nil || s.pool == nil {
		return nil
	}
	s.pool.Close()
	s.pool = nil
	return nil
}
