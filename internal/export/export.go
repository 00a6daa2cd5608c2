// Package export writes assembled datasets as CSV, JSON, XLSX workbooks or
// binary snapshots. Tabular formats emit one row per state vector with the
// element set and derived columns repeated; an element set without states
// still emits one row.
package export

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/star/orbstate/internal/dataset"
	"github.com/star/orbstate/internal/propagation"
)

// Format selects an output encoding.
type Format string

const (
	FormatCSV      Format = "csv"
	FormatJSON     Format = "json"
	FormatXLSX     Format = "xlsx"
	FormatSnapshot Format = "snapshot"
)

// ParseFormat accepts a format name in any case.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case FormatCSV, FormatJSON, FormatXLSX, FormatSnapshot:
		return f, nil
	}
	return "", fmt.Errorf("unknown export format %q", s)
}

// Write encodes ds to w in format f.
func Write(w io.Writer, f Format, ds *dataset.Dataset) error {
	switch f {
	case FormatCSV:
		return WriteCSV(w, ds)
	case FormatJSON:
		return WriteJSON(w, ds)
	case FormatXLSX:
		return WriteXLSX(w, ds)
	case FormatSnapshot:
		return WriteSnapshot(w, ds)
	}
	return fmt.Errorf("unknown export format %q", f)
}

// Columns is the header shared by the tabular formats.
var Columns = []string{
	"name", "catalog_number", "classification", "intl_designator", "tle_epoch",
	"inclination_deg", "raan_deg", "eccentricity", "arg_perigee_deg", "mean_anomaly_deg",
	"mean_motion_rev_day", "bstar",
	"semi_major_axis_km", "period_minutes", "apogee_alt_km", "perigee_alt_km",
	"epoch", "minutes_since_epoch",
	"x_km", "y_km", "z_km", "vx_km_s", "vy_km_s", "vz_km_s",
	"status", "outside_validity_window", "lat_deg", "lon_deg", "alt_km", "error",
}

// stateColumn is the index of the first state vector column.
const stateColumn = 16

// cells flattens ds into typed cell values, len(Columns) per row. Absent
// state columns are nil.
func cells(ds *dataset.Dataset) [][]any {
	var out [][]any
	for _, row := range ds.Rows {
		rec, d := row.Record, row.Derived
		base := []any{
			rec.Name, rec.CatalogNumber, rec.Classification.String(), rec.IntlDesignator, rec.Epoch.UTC(),
			rec.Inclination, rec.RAAN, rec.Eccentricity, rec.ArgPerigee, rec.MeanAnomaly,
			rec.MeanMotion, rec.BStar,
			d.SemiMajorAxisKm, d.PeriodMinutes, d.ApogeeAltKm, d.PerigeeAltKm,
		}
		if len(row.States) == 0 {
			out = append(out, append(base, make([]any, len(Columns)-stateColumn)...))
			continue
		}
		for _, sv := range row.States {
			line := make([]any, 0, len(Columns))
			line = append(line, base...)
			out = append(out, append(line, stateCells(sv)...))
		}
	}
	return out
}

func stateCells(sv propagation.StateVector) []any {
	c := []any{
		sv.Epoch.UTC(), sv.MinutesSinceEpoch,
		sv.Position[0], sv.Position[1], sv.Position[2],
		sv.Velocity[0], sv.Velocity[1], sv.Velocity[2],
		sv.Status.String(), sv.OutsideValidityWindow,
		nil, nil, nil,
		sv.Error,
	}
	if sv.Geodetic != nil {
		c[10], c[11], c[12] = sv.Geodetic.LatDeg, sv.Geodetic.LonDeg, sv.Geodetic.AltKm
	}
	if sv.Status != propagation.StatusOk {
		for i := 2; i < 8; i++ {
			c[i] = nil
		}
	}
	return c
}

// formatCell renders a cell for text output.
func formatCell(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case int:
		return strconv.Itoa(x)
	case bool:
		return strconv.FormatBool(x)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case time.Time:
		return x.Format(time.RFC3339Nano)
	}
	return fmt.Sprint(v)
}

// WriteJSON writes the whole dataset, rejections included, as indented JSON.
func WriteJSON(w io.Writer, ds *dataset.Dataset) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(ds); err != nil {
		return fmt.Errorf("encoding dataset JSON: %w", err)
	}
	return nil
}
