package export

import (
	"bufio"
	"encoding/csv"
	"fmt"
	"io"

	"github.com/star/orbstate/internal/dataset"
)

// WriteCSV writes a header line and one line per state vector.
func WriteCSV(w io.Writer, ds *dataset.Dataset) error {
	bw := bufio.NewWriter(w)
	cw := csv.NewWriter(bw)

	if err := cw.Write(Columns); err != nil {
		return fmt.Errorf("csv write header: %w", err)
	}
	line := make([]string, len(Columns))
	for _, row := range cells(ds) {
		for i, v := range row {
			line[i] = formatCell(v)
		}
		if err := cw.Write(line); err != nil {
			return fmt.Errorf("csv write row: %w", err)
		}
	}

	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("csv flush: %w", err)
	}
	return bw.Flush()
}
