// Package sqlite persists harvest records in a local SQLite database.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "github.com/mattn/go-sqlite3" // registers the sqlite3 driver
	"go.uber.org/zap"

	"github.com/JakeFAU/cropharvest/internal/harvest"
	"github.com/JakeFAU/cropharvest/internal/storage"
)

// Config selects the database file.
type Config struct {
	Path string `mapstructure:"sqlite_path"`
}

const schema = `
CREATE TABLE IF NOT EXISTS crops (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
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
	scraped_at TIMESTAMP,
	created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
	UNIQUE(name, source_url)
);

CREATE TABLE IF NOT EXISTS nutrient_recipes (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	crop_name TEXT NOT NULL,
	stage_of_growth TEXT NOT NULL DEFAULT 'general',
	nitrogen_ppm REAL,
	phosphorus_ppm REAL,
	potassium_ppm REAL,
	calcium_ppm REAL,
	magnesium_ppm REAL,
	sulfur_ppm REAL,
	iron_ppm REAL,
	manganese_ppm REAL,
	zinc_ppm REAL,
	copper_ppm REAL,
	boron_ppm REAL,
	molybdenum_ppm REAL,
	ec_range TEXT,
	ph_range TEXT,
	application_method TEXT,
	frequency TEXT,
	source_url TEXT NOT NULL,
	reference_document TEXT,
	data_source TEXT NOT NULL,
	scraped_at TIMESTAMP,
	created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
	UNIQUE(crop_name, stage_of_growth, source_url)
);
`

// Store implements harvest.Store on SQLite. It is not safe for concurrent
// Put calls.
type Store struct {
	db     *sql.DB
	logger *zap.Logger
}

// Open opens (creating if needed) the database at cfg.Path and ensures both
// tables exist.
func Open(ctx context.Context, cfg Config, logger *zap.Logger) (*Store, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, fmt.Errorf("store.sqlite_path is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if dir := filepath.Dir(cfg.Path); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// One connection keeps transactions serialised on a single file handle.
	db.SetMaxOpenConns(1)
	if _, err := db.ExecContext(ctx, schema); err != nil {
		closeErr := db.Close()
		return nil, errors.Join(fmt.Errorf("initialize schema: %w", err), closeErr)
	}
	if err := addMissingColumns(ctx, db, storage.CropsTable, storage.CropRequirementColumns); err != nil {
		closeErr := db.Close()
		return nil, errors.Join(err, closeErr)
	}
	logger.Debug("sqlite store opened", zap.String("path", cfg.Path))
	return &Store{db: db, logger: logger}, nil
}

// addMissingColumns adds TEXT columns that a database created by an older
// release lacks. SQLite has no ADD COLUMN IF NOT EXISTS.
func addMissingColumns(ctx context.Context, db *sql.DB, table string, columns []string) error {
	rows, err := db.QueryContext(ctx, "SELECT name FROM pragma_table_info(?)", table)
	if err != nil {
		return fmt.Errorf("inspect %s: %w", table, err)
	}
	have := make(map[string]struct{})
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			_ = rows.Close()
			return fmt.Errorf("inspect %s: %w", table, err)
		}
		have[name] = struct{}{}
	}
	if err := errors.Join(rows.Err(), rows.Close()); err != nil {
		return fmt.Errorf("inspect %s: %w", table, err)
	}
	for _, col := range columns {
		if _, ok := have[col]; ok {
			continue
		}
		if _, err := db.ExecContext(ctx, "ALTER TABLE "+table+" ADD COLUMN "+col+" TEXT"); err != nil {
			return fmt.Errorf("add column %s.%s: %w", table, col, err)
		}
	}
	return nil
}

// Put inserts rec in its own transaction. A row with the same natural key
// already present yields harvest.SkippedDuplicate.
func (s *Store) Put(ctx context.Context, rec harvest.Record) (harvest.Outcome, error) {
	if s == nil || s.db == nil {
		return 0, &harvest.StorageError{Op: "put", Err: fmt.Errorf("store is closed")}
	}
	row, err := storage.RowFor(rec)
	if err != nil {
		return 0, &harvest.StorageError{Op: "put", Err: err}
	}
	key := rec.Key()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, &harvest.StorageError{Op: "begin", Key: key, Err: err}
	}
	res, err := tx.ExecContext(ctx, row.InsertSQL(storage.Question), row.Values...)
	if err != nil {
		return 0, s.rollback(tx, key, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, s.rollback(tx, key, err)
	}
	if err := tx.Commit(); err != nil {
		return 0, &harvest.StorageError{Op: "commit", Key: key, Err: err}
	}
	if n == 0 {
		return harvest.SkippedDuplicate, nil
	}
	return harvest.Inserted, nil
}

func (s *Store) rollback(tx *sql.Tx, key harvest.Key, cause error) error {
	if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		s.logger.Warn("rollback failed", zap.String("key", key.String()), zap.Error(err))
	}
	return &harvest.StorageError{Op: "insert", Key: key, Err: cause}
}

// Count returns the number of rows in table. It exists for inspection and
// tests.
func (s *Store) Count(ctx context.Context, table string) (int, error) {
	if table != storage.CropsTable && table != storage.RecipesTable {
		return 0, fmt.Errorf("unknown table %q", table)
	}
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+table).Scan(&n); err != nil {
		return 0, fmt.Errorf("count %s: %w", table, err)
	}
	return n, nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	if err != nil {
		return fmt.Errorf("close sqlite: %w", err)
	}
	return nil
}
