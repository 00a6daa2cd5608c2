package export

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/star/orbstate/internal/dataset"
	"github.com/star/orbstate/internal/elements"
	"github.com/star/orbstate/internal/propagation"
	"github.com/star/orbstate/internal/tle"
)

const (
	issLine1 = "1 25544U 98067A   25045.18032407  .00016717  00000+0  30099-3 0  9996"
	issLine2 = "2 25544  51.6412 193.5765 0003457 126.2851 233.8519 15.49874301495057"

	vanguardLine1 = "1 00005U 58002B   00179.78495062  .00000023  00000-0  28098-4 0  4753"
	vanguardLine2 = "2 00005  34.2682 348.7242 1859667 331.7664  19.3264 10.82419157413667"
)

// fixture assembles the ISS at two epochs, rejects a truncated block, and
// appends a Vanguard row that carries no states.
func fixture(t *testing.T) *dataset.Dataset {
	t.Helper()
	cfg := dataset.Config{Propagation: propagation.DefaultConfig()}
	cfg.Propagation.Workers = 2
	a := dataset.NewAssembler(cfg, slog.New(slog.NewJSONHandler(io.Discard, nil)))

	issEpoch := time.Date(2025, 2, 14, 4, 19, 40, 0, time.UTC)
	inputs := []dataset.Input{
		{Block: tle.Block{Name: "ISS (ZARYA)", Line1: issLine1, Line2: issLine2},
			Epochs: []time.Time{issEpoch, issEpoch.Add(60 * 24 * time.Hour)}},
		{Block: tle.Block{Name: "BROKEN", Line1: issLine1[:40], Line2: issLine2}},
	}
	ds, err := a.Assemble(context.Background(), inputs)
	require.NoError(t, err)
	require.Len(t, ds.Rows, 1)
	require.Len(t, ds.Rejected, 1)

	rec, err := tle.Parse("VANGUARD 1", vanguardLine1, vanguardLine2)
	require.NoError(t, err)
	d, err := elements.ForRecord(rec)
	require.NoError(t, err)
	ds.Rows = append(ds.Rows, dataset.Row{Record: rec, Derived: d})
	return ds
}

func column(name string) int {
	for i, c := range Columns {
		if c == name {
			return i
		}
	}
	panic("no column " + name)
}

func TestStateColumnIndex(t *testing.T) {
	assert.Equal(t, "epoch", Columns[stateColumn])
}

func TestWriteCSV(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, fixture(t)))

	lines, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, lines, 4, "header + two ISS states + one stateless row")
	assert.Equal(t, Columns, lines[0])

	first, second, stateless := lines[1], lines[2], lines[3]
	assert.Equal(t, "25544", first[column("catalog_number")])
	assert.Equal(t, "ISS (ZARYA)", first[column("name")])
	assert.Equal(t, "ok", first[column("status")])
	assert.Equal(t, "false", first[column("outside_validity_window")])
	assert.NotEmpty(t, first[column("x_km")])
	assert.NotEmpty(t, first[column("lat_deg")])
	assert.Equal(t, first[column("semi_major_axis_km")], second[column("semi_major_axis_km")])

	assert.Equal(t, "true", second[column("outside_validity_window")])
	assert.Equal(t, "2025-04-15T04:19:40Z", second[column("epoch")])

	assert.Equal(t, "5", stateless[column("catalog_number")])
	assert.NotEmpty(t, stateless[column("period_minutes")])
	for _, c := range Columns[stateColumn:] {
		assert.Empty(t, stateless[column(c)], c)
	}
}

func TestWriteCSVBlanksNonOkVectors(t *testing.T) {
	ds := fixture(t)
	ds.Rows[0].States[1].Status = propagation.StatusDecayed
	ds.Rows[0].States[1].Error = "decayed"

	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, ds))
	lines, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)

	row := lines[2]
	assert.Equal(t, "decayed", row[column("status")])
	assert.Equal(t, "decayed", row[column("error")])
	assert.Empty(t, row[column("x_km")])
	assert.Empty(t, row[column("vz_km_s")])
}

func TestWriteJSON(t *testing.T) {
	ds := fixture(t)
	var buf bytes.Buffer
	require.NoError(t, WriteJSON(&buf, ds))

	var decoded struct {
		ID   string `json:"id"`
		Rows []struct {
			Record struct {
				CatalogNumber int `json:"catalog_number"`
			} `json:"record"`
			States []struct {
				Status string `json:"status"`
			} `json:"states"`
		} `json:"rows"`
		Rejected []struct {
			Stage string `json:"stage"`
		} `json:"rejected"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, ds.ID.String(), decoded.ID)
	require.Len(t, decoded.Rows, 2)
	assert.Equal(t, 25544, decoded.Rows[0].Record.CatalogNumber)
	assert.Equal(t, "ok", decoded.Rows[0].States[0].Status)
	require.Len(t, decoded.Rejected, 1)
	assert.Equal(t, "parse", decoded.Rejected[0].Stage)
}

func TestWriteXLSX(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteXLSX(&buf, fixture(t)))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{"states", "rejected"}, f.GetSheetList())

	rows, err := f.GetRows("states")
	require.NoError(t, err)
	require.Len(t, rows, 4)
	assert.Equal(t, Columns, rows[0])
	assert.Equal(t, "25544", rows[1][column("catalog_number")])
	assert.Equal(t, "ISS (ZARYA)", rows[1][column("name")])
	assert.Equal(t, "ok", rows[1][column("status")])
	assert.Equal(t, "5", rows[3][column("catalog_number")])

	rejected, err := f.GetRows("rejected")
	require.NoError(t, err)
	require.Len(t, rejected, 2)
	assert.Equal(t, "parse", rejected[1][0])
	assert.Equal(t, "BROKEN", rejected[1][1])
}

func TestSnapshotRoundTrip(t *testing.T) {
	ds := fixture(t)
	var buf bytes.Buffer
	require.NoError(t, WriteSnapshot(&buf, ds))

	got, err := ReadSnapshot(&buf)
	require.NoError(t, err)
	assert.Equal(t, ds.ID, got.ID)
	assert.True(t, ds.CreatedAt.Equal(got.CreatedAt))
	require.Len(t, got.Rows, 2)
	assert.Equal(t, ds.Rows[0].Record.Line1, got.Rows[0].Record.Line1)
	assert.Equal(t, ds.Rows[0].Record.Classification, got.Rows[0].Record.Classification)
	assert.Equal(t, ds.Rows[0].Derived, got.Rows[0].Derived)
	require.Len(t, got.Rows[0].States, 2)
	assert.Equal(t, ds.Rows[0].States[0].Position, got.Rows[0].States[0].Position)
	assert.Equal(t, ds.Rows[0].States[1].OutsideValidityWindow, got.Rows[0].States[1].OutsideValidityWindow)
	require.NotNil(t, got.Rows[0].States[0].Geodetic)
	assert.Equal(t, *ds.Rows[0].States[0].Geodetic, *got.Rows[0].States[0].Geodetic)
	assert.Empty(t, got.Rows[1].States)
	assert.Len(t, got.Rejected, 1)
}

func TestReadSnapshotRejectsForeignInput(t *testing.T) {
	_, err := ReadSnapshot(strings.NewReader("name,catalog_number\n"))
	assert.Error(t, err)
}

func TestWriteDispatch(t *testing.T) {
	ds := fixture(t)
	for _, name := range []string{"csv", "JSON", "xlsx", "snapshot"} {
		f, err := ParseFormat(name)
		require.NoError(t, err)
		var buf bytes.Buffer
		require.NoError(t, Write(&buf, f, ds), name)
		assert.NotZero(t, buf.Len(), name)
	}
	_, err := ParseFormat("parquet")
	assert.Error(t, err)
}
