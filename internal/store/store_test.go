package store

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/star/orbstate/internal/dataset"
	"github.com/star/orbstate/internal/propagation"
	"github.com/star/orbstate/internal/tle"
	"github.com/star/orbstate/internal/transform"
)

const (
	issLine1 = "1 25544U 98067A   25045.18032407  .00016717  00000+0  30099-3 0  9996"
	issLine2 = "2 25544  51.6412 193.5765 0003457 126.2851 233.8519 15.49874301495057"
)

func testDataset(t *testing.T) *dataset.Dataset {
	t.Helper()
	rec, err := tle.Parse("ISS (ZARYA)", issLine1, issLine2)
	require.NoError(t, err)
	return &dataset.Dataset{
		ID:        uuid.MustParse("0f8b8c1e-2a3b-4c5d-8e9f-a0b1c2d3e4f5"),
		CreatedAt: time.Date(2025, 2, 15, 12, 0, 0, 0, time.UTC),
		Rows: []dataset.Row{{
			Record: rec,
			States: []propagation.StateVector{
				{
					CatalogNumber: 25544, Epoch: rec.Epoch, Status: propagation.StatusOk,
					Position: [3]float64{-6607.3, -1596.1, 0.6}, Velocity: [3]float64{1.2, -4.8, 6.0},
					Geodetic: &transform.Geodetic{LatDeg: 0.005, LonDeg: 120.1, AltKm: 419.2},
				},
				{
					CatalogNumber: 25544, Epoch: rec.Epoch.Add(400 * 24 * time.Hour), MinutesSinceEpoch: 576000,
					Status: propagation.StatusDecayed, OutsideValidityWindow: true, Error: "decayed",
				},
			},
		}},
		Rejected: []dataset.Rejection{{Stage: dataset.StageParse, Reason: "too short"}},
	}
}

func TestMigrate(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	for _, table := range []string{"datasets", "tle_records", "state_vectors"} {
		mock.ExpectExec("CREATE TABLE IF NOT EXISTS " + table).WillReturnResult(sqlmock.NewResult(0, 0))
	}
	mock.ExpectExec("CREATE INDEX IF NOT EXISTS idx_state_vectors_catalog").WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, New(db).Migrate(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveDataset(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	ds := testDataset(t)
	id := ds.ID.String()
	tleEpoch := ds.Rows[0].Record.Epoch.UTC().Format(timeLayout)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO datasets").
		WithArgs(id, "2025-02-15T12:00:00.000000000Z", 1, 1).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT OR IGNORE INTO tle_records").
		WithArgs(25544, tleEpoch, "ISS (ZARYA)", issLine1, issLine2, id).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO state_vectors").
		WithArgs(id, 25544, tleEpoch, tleEpoch, 0.0,
			-6607.3, -1596.1, 0.6, 1.2, -4.8, 6.0,
			"ok", false, 0.005, 120.1, 419.2, "").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO state_vectors").
		WithArgs(id, 25544, tleEpoch, sqlmock.AnyArg(), 576000.0,
			nil, nil, nil, nil, nil, nil,
			"decayed", true, nil, nil, nil, "decayed").
		WillReturnResult(sqlmock.NewResult(2, 1))
	mock.ExpectCommit()

	res, err := New(db).SaveDataset(context.Background(), ds)
	require.NoError(t, err)
	assert.Equal(t, SaveResult{Records: 1, States: 2}, res)
	assert.NoError(t, mock.ExpectationsWereMet())
}

// A record already stored under the same key is skipped, not overwritten.
func TestSaveDatasetSkipsStoredRecords(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	ds := testDataset(t)
	ds.Rows[0].States = nil

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO datasets").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT OR IGNORE INTO tle_records").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	res, err := New(db).SaveDataset(context.Background(), ds)
	require.NoError(t, err)
	assert.Equal(t, SaveResult{}, res)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveDatasetRollsBack(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO datasets").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT OR IGNORE INTO tle_records").WillReturnError(errors.New("disk I/O error"))
	mock.ExpectRollback()

	_, err = New(db).SaveDataset(context.Background(), testDataset(t))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk I/O error")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLoadBlocks(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	rows := sqlmock.NewRows([]string{"catalog_number", "epoch", "name", "line1", "line2"}).
		AddRow(25544, "2025-02-14T04:19:39.999648000Z", "ISS (ZARYA)", issLine1, issLine2)
	mock.ExpectQuery("SELECT catalog_number, epoch, name, line1, line2 FROM tle_records").WillReturnRows(rows)

	blocks, err := New(db).LoadBlocks(context.Background())
	require.NoError(t, err)
	require.Len(t, blocks, 1)
	assert.Equal(t, 25544, blocks[0].CatalogNumber)
	assert.Equal(t, "ISS (ZARYA)", blocks[0].Name)

	rec, err := tle.ParseBlock(blocks[0])
	require.NoError(t, err)
	assert.Equal(t, 25544, rec.CatalogNumber)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLoadBlocksBadEpoch(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	rows := sqlmock.NewRows([]string{"catalog_number", "epoch", "name", "line1", "line2"}).
		AddRow(25544, "yesterday", "ISS (ZARYA)", issLine1, issLine2)
	mock.ExpectQuery("SELECT (.+) FROM tle_records").WillReturnRows(rows)

	_, err = New(db).LoadBlocks(context.Background())
	assert.ErrorContains(t, err, "stored epoch")
}

func TestLatestDataset(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("SELECT id, created_at, row_count, rejected FROM datasets").
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at", "row_count", "rejected"}))
	_, err = New(db).LatestDataset(context.Background())
	assert.ErrorIs(t, err, ErrNotFound)

	mock.ExpectQuery("SELECT id, created_at, row_count, rejected FROM datasets").
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at", "row_count", "rejected"}).
			AddRow("abc", "2025-02-15T12:00:00.000000000Z", 3, 1))
	d, err := New(db).LatestDataset(context.Background())
	require.NoError(t, err)
	assert.Equal(t, DatasetSummary{ID: "abc", CreatedAt: time.Date(2025, 2, 15, 12, 0, 0, 0, time.UTC), Rows: 3, Rejected: 1}, d)
}

// TestSQLiteRoundTrip runs against a real database file.
func TestSQLiteRoundTrip(t *testing.T) {
	ctx := context.Background()
	s, err := Open(ctx, filepath.Join(t.TempDir(), "orbstate.db"))
	if err != nil && strings.Contains(err.Error(), "CGO_ENABLED=0") {
		t.Skip("go-sqlite3 needs cgo")
	}
	require.NoError(t, err)
	defer s.Close()
	require.NoError(t, s.Ping(ctx))

	ds := testDataset(t)
	res, err := s.SaveDataset(ctx, ds)
	require.NoError(t, err)
	assert.Equal(t, SaveResult{Records: 1, States: 2}, res)

	ds.ID = uuid.New()
	ds.CreatedAt = ds.CreatedAt.Add(time.Hour)
	res, err = s.SaveDataset(ctx, ds)
	require.NoError(t, err)
	assert.Equal(t, 0, res.Records)

	blocks, err := s.LoadBlocks(ctx)
	require.NoError(t, err)
	require.Len(t, blocks, 1)
	rec, err := tle.ParseBlock(blocks[0])
	require.NoError(t, err)
	assert.True(t, rec.Epoch.Equal(ds.Rows[0].Record.Epoch))

	latest, err := s.LatestDataset(ctx)
	require.NoError(t, err)
	assert.Equal(t, ds.ID.String(), latest.ID)
}
