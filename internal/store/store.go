// Package store persists element sets and assembled state vectors in SQLite.
// Element sets are keyed by (catalog number, epoch); the first copy saved
// wins, so re-saving a dataset is idempotent.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/star/orbstate/internal/dataset"
	"github.com/star/orbstate/internal/propagation"
	"github.com/star/orbstate/internal/tle"
)

// timeLayout has fixed-width fractions so stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

var schema = []string{
	`CREATE TABLE IF NOT EXISTS datasets (
		id         TEXT PRIMARY KEY,
		created_at TEXT NOT NULL,
		row_count  INTEGER NOT NULL,
		rejected   INTEGER NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS tle_records (
		catalog_number INTEGER NOT NULL,
		epoch          TEXT NOT NULL,
		name           TEXT NOT NULL DEFAULT '',
		line1          TEXT NOT NULL,
		line2          TEXT NOT NULL,
		dataset_id     TEXT NOT NULL,
		PRIMARY KEY (catalog_number, epoch)
	)`,
	`CREATE TABLE IF NOT EXISTS state_vectors (
		dataset_id              TEXT NOT NULL,
		catalog_number          INTEGER NOT NULL,
		tle_epoch               TEXT NOT NULL,
		epoch                   TEXT NOT NULL,
		minutes_since_epoch     REAL NOT NULL,
		x_km REAL, y_km REAL, z_km REAL,
		vx_km_s REAL, vy_km_s REAL, vz_km_s REAL,
		status                  TEXT NOT NULL,
		outside_validity_window INTEGER NOT NULL,
		lat_deg REAL, lon_deg REAL, alt_km REAL,
		error                   TEXT NOT NULL DEFAULT ''
	)`,
	`CREATE INDEX IF NOT EXISTS idx_state_vectors_catalog ON state_vectors (catalog_number, epoch)`,
}

// Store wraps a SQLite database.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the database at path and applies the schema.
func Open(ctx context.Context, path string) (*Store, error) {
	db, err := sql.Open("sqlite3", "file:"+path+"?_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("opening sqlite %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)
	s := New(db)
	if err := s.Migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// New wraps an open database without touching its schema.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// Migrate creates missing tables.
func (s *Store) Migrate(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("applying schema: %w", err)
		}
	}
	return nil
}

// Ping verifies the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// SaveResult counts what SaveDataset wrote.
type SaveResult struct {
	Records int // element sets inserted; already-stored keys are skipped
	States  int
}

// SaveDataset writes ds in one transaction.
func (s *Store) SaveDataset(ctx context.Context, ds *dataset.Dataset) (res SaveResult, err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return res, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	id := ds.ID.String()
	if _, err = tx.ExecContext(ctx,
		`INSERT INTO datasets (id, created_at, row_count, rejected) VALUES (?, ?, ?, ?)`,
		id, ds.CreatedAt.UTC().Format(timeLayout), len(ds.Rows), len(ds.Rejected),
	); err != nil {
		return res, fmt.Errorf("inserting dataset %s: %w", id, err)
	}

	for _, row := range ds.Rows {
		rec := row.Record
		tleEpoch := rec.Epoch.UTC().Format(timeLayout)
		r, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO tle_records (catalog_number, epoch, name, line1, line2, dataset_id) VALUES (?, ?, ?, ?, ?, ?)`,
			rec.CatalogNumber, tleEpoch, rec.Name, rec.Line1, rec.Line2, id,
		)
		if err != nil {
			return res, fmt.Errorf("inserting record %s: %w", rec.Key(), err)
		}
		if n, err := r.RowsAffected(); err == nil {
			res.Records += int(n)
		}

		for _, sv := range row.States {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO state_vectors (dataset_id, catalog_number, tle_epoch, epoch, minutes_since_epoch,
					x_km, y_km, z_km, vx_km_s, vy_km_s, vz_km_s, status, outside_validity_window,
					lat_deg, lon_deg, alt_km, error)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
				stateArgs(id, tleEpoch, sv)...,
			); err != nil {
				return res, fmt.Errorf("inserting state %05d@%s: %w", sv.CatalogNumber, sv.Epoch.Format(timeLayout), err)
			}
			res.States++
		}
	}

	if err = tx.Commit(); err != nil {
		return res, fmt.Errorf("commit: %w", err)
	}
	return res, nil
}

func stateArgs(datasetID, tleEpoch string, sv propagation.StateVector) []any {
	args := []any{
		datasetID, sv.CatalogNumber, tleEpoch, sv.Epoch.UTC().Format(timeLayout), sv.MinutesSinceEpoch,
		nil, nil, nil, nil, nil, nil,
		sv.Status.String(), sv.OutsideValidityWindow,
		nil, nil, nil,
		sv.Error,
	}
	if sv.Status == propagation.StatusOk {
		args[5], args[6], args[7] = sv.Position[0], sv.Position[1], sv.Position[2]
		args[8], args[9], args[10] = sv.Velocity[0], sv.Velocity[1], sv.Velocity[2]
	}
	if sv.Geodetic != nil {
		args[13], args[14], args[15] = sv.Geodetic.LatDeg, sv.Geodetic.LonDeg, sv.Geodetic.AltKm
	}
	return args
}

// LoadBlocks returns every stored element set ordered by (catalog number,
// epoch). Blocks carry their stored key so parsing cross-checks it.
func (s *Store) LoadBlocks(ctx context.Context) ([]tle.Block, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT catalog_number, epoch, name, line1, line2 FROM tle_records ORDER BY catalog_number, epoch`)
	if err != nil {
		return nil, fmt.Errorf("querying records: %w", err)
	}
	defer rows.Close()

	var blocks []tle.Block
	for rows.Next() {
		var (
			b     tle.Block
			epoch string
		)
		if err := rows.Scan(&b.CatalogNumber, &epoch, &b.Name, &b.Line1, &b.Line2); err != nil {
			return nil, fmt.Errorf("scanning record: %w", err)
		}
		if b.Epoch, err = time.Parse(timeLayout, epoch); err != nil {
			return nil, fmt.Errorf("record %05d: stored epoch %q: %w", b.CatalogNumber, epoch, err)
		}
		blocks = append(blocks, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating records: %w", err)
	}
	return blocks, nil
}

// ErrNotFound is returned when a lookup matches nothing.
var ErrNotFound = errors.New("not found")

// DatasetSummary describes one saved dataset.
type DatasetSummary struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	Rows      int       `json:"rows"`
	Rejected  int       `json:"rejected"`
}

// LatestDataset returns the most recently created dataset.
func (s *Store) LatestDataset(ctx context.Context) (DatasetSummary, error) {
	var (
		d       DatasetSummary
		created string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, created_at, row_count, rejected FROM datasets ORDER BY created_at DESC LIMIT 1`,
	).Scan(&d.ID, &created, &d.Rows, &d.Rejected)
	if errors.Is(err, sql.ErrNoRows) {
		return d, ErrNotFound
	}
	if err != nil {
		return d, fmt.Errorf("querying latest dataset: %w", err)
	}
	if d.CreatedAt, err = time.Parse(timeLayout, created); err != nil {
		return d, fmt.Errorf("dataset %s: stored created_at %q: %w", d.ID, created, err)
	}
	return d, nil
}
