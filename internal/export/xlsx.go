package export

import (
	"fmt"
	"io"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/star/orbstate/internal/dataset"
)

const (
	statesSheet   = "states"
	rejectedSheet = "rejected"
)

var rejectedColumns = []string{"stage", "name", "catalog_number", "epoch", "line_number", "reason"}

// WriteXLSX writes a workbook with a "states" sheet in the tabular layout
// and a "rejected" sheet listing dropped inputs.
func WriteXLSX(w io.Writer, ds *dataset.Dataset) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName(f.GetSheetName(0), statesSheet); err != nil {
		return fmt.Errorf("xlsx rename sheet: %w", err)
	}
	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("xlsx header style: %w", err)
	}

	sw, err := f.NewStreamWriter(statesSheet)
	if err != nil {
		return fmt.Errorf("xlsx stream writer: %w", err)
	}
	if err := sw.SetRow("A1", toRow(Columns), excelize.RowOpts{StyleID: bold}); err != nil {
		return fmt.Errorf("xlsx write header: %w", err)
	}
	for i, row := range cells(ds) {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		for j, v := range row {
			if t, ok := v.(time.Time); ok {
				row[j] = t.Format(time.RFC3339Nano)
			}
		}
		if err := sw.SetRow(cell, row); err != nil {
			return fmt.Errorf("xlsx write row %d: %w", i+2, err)
		}
	}
	if err := sw.Flush(); err != nil {
		return fmt.Errorf("xlsx flush: %w", err)
	}

	if _, err := f.NewSheet(rejectedSheet); err != nil {
		return fmt.Errorf("xlsx add sheet: %w", err)
	}
	header := toRow(rejectedColumns)
	if err := f.SetSheetRow(rejectedSheet, "A1", &header); err != nil {
		return fmt.Errorf("xlsx write header: %w", err)
	}
	for i, rj := range ds.Rejected {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		var epoch string
		if !rj.Epoch.IsZero() {
			epoch = rj.Epoch.UTC().Format(time.RFC3339Nano)
		}
		row := []any{string(rj.Stage), rj.Name, rj.CatalogNumber, epoch, rj.LineNumber, rj.Reason}
		if err := f.SetSheetRow(rejectedSheet, cell, &row); err != nil {
			return fmt.Errorf("xlsx write rejection %d: %w", i+2, err)
		}
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("xlsx write: %w", err)
	}
	return nil
}

func toRow(names []string) []any {
	row := make([]any, len(names))
	for i, n := range names {
		row[i] = n
	}
	return row
}
