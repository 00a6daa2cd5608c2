// Package report renders assembled datasets as terminal tables.
package report

import (
	"fmt"
	"io"
	"sort"
	"strconv"
	"time"

	"github.com/pterm/pterm"

	"github.com/star/orbstate/internal/dataset"
	"github.com/star/orbstate/internal/propagation"
)

var stateHeader = []string{"NORAD", "NAME", "EPOCH", "STATUS", "X km", "Y km", "Z km", "LAT", "LON", "ALT km"}

// Table writes one line per state vector followed by a summary and, when
// any input was dropped, a table of rejections.
func Table(w io.Writer, ds *dataset.Dataset) error {
	data := pterm.TableData{stateHeader}
	for _, row := range ds.Rows {
		for _, sv := range row.States {
			data = append(data, stateLine(row, sv))
		}
	}
	out, err := pterm.DefaultTable.WithHasHeader().WithBoxed().WithData(data).Srender()
	if err != nil {
		return fmt.Errorf("rendering state table: %w", err)
	}
	if _, err := fmt.Fprintln(w, out); err != nil {
		return err
	}

	if _, err := fmt.Fprintln(w, Summary(ds)); err != nil {
		return err
	}

	if len(ds.Rejected) == 0 {
		return nil
	}
	rej := pterm.TableData{{"STAGE", "LINE", "NORAD", "NAME", "REASON"}}
	for _, r := range ds.Rejected {
		rej = append(rej, []string{string(r.Stage), optionalInt(r.LineNumber), optionalInt(r.CatalogNumber), r.Name, r.Reason})
	}
	out, err = pterm.DefaultTable.WithHasHeader().WithData(rej).Srender()
	if err != nil {
		return fmt.Errorf("rendering rejection table: %w", err)
	}
	_, err = fmt.Fprintln(w, out)
	return err
}

func stateLine(row dataset.Row, sv propagation.StateVector) []string {
	status := sv.Status.String()
	if sv.OutsideValidityWindow {
		status += "*"
	}
	line := []string{
		fmt.Sprintf("%05d", sv.CatalogNumber),
		row.Record.Name,
		sv.Epoch.UTC().Format(time.RFC3339),
		status,
		"", "", "", "", "", "",
	}
	if sv.Status == propagation.StatusOk {
		for i := 0; i < 3; i++ {
			line[4+i] = strconv.FormatFloat(sv.Position[i], 'f', 3, 64)
		}
	}
	if sv.Geodetic != nil {
		line[7] = strconv.FormatFloat(sv.Geodetic.LatDeg, 'f', 4, 64)
		line[8] = strconv.FormatFloat(sv.Geodetic.LonDeg, 'f', 4, 64)
		line[9] = strconv.FormatFloat(sv.Geodetic.AltKm, 'f', 3, 64)
	}
	return line
}

// Summary is a one-line count of rows, states by status, and rejections.
// A trailing "*" on a status marks a state outside the validity window.
func Summary(ds *dataset.Dataset) string {
	counts := StatusCounts(ds)
	statuses := make([]propagation.Status, 0, len(counts))
	for s := range counts {
		statuses = append(statuses, s)
	}
	sort.Slice(statuses, func(i, j int) bool { return statuses[i] < statuses[j] })

	s := fmt.Sprintf("%d element sets, %d states", len(ds.Rows), ds.StateCount())
	for _, st := range statuses {
		s += fmt.Sprintf(", %s=%d", st, counts[st])
	}
	return s + fmt.Sprintf(", %d rejected", len(ds.Rejected))
}

// StatusCounts tallies state vectors by status.
func StatusCounts(ds *dataset.Dataset) map[propagation.Status]int {
	counts := make(map[propagation.Status]int)
	for _, row := range ds.Rows {
		for _, sv := range row.States {
			counts[sv.Status]++
		}
	}
	return counts
}

func optionalInt(n int) string {
	if n == 0 {
		return ""
	}
	return strconv.Itoa(n)
}
