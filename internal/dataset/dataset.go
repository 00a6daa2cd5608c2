// Package dataset assembles parsed element sets, their derived elements and
// propagated state vectors into a de-duplicated, ordered table.
package dataset

import (
	"time"

	"github.com/google/uuid"

	"github.com/star/orbstate/internal/elements"
	"github.com/star/orbstate/internal/propagation"
	"github.com/star/orbstate/internal/tle"
)

// Stage names the pipeline step at which a record was dropped.
type Stage string

const (
	StageParse     Stage = "parse"
	StageDerive    Stage = "derive"
	StageDuplicate Stage = "duplicate"
)

// Input is one element set to assemble and the epochs to evaluate it at. An
// empty Epochs selects the element set's own epoch.
type Input struct {
	Block  tle.Block
	Epochs []time.Time
}

// InputsFromRecords wraps parsed records, each evaluated at epochs.
func InputsFromRecords(recs []tle.Record, epochs []time.Time) []Input {
	inputs := make([]Input, len(recs))
	for i, rec := range recs {
		inputs[i] = Input{Block: rec.Block(), Epochs: epochs}
	}
	return inputs
}

// InputsFromBlocks wraps raw blocks, each evaluated at epochs.
func InputsFromBlocks(blocks []tle.Block, epochs []time.Time) []Input {
	inputs := make([]Input, len(blocks))
	for i, b := range blocks {
		inputs[i] = Input{Block: b, Epochs: epochs}
	}
	return inputs
}

// Row is one accepted element set.
type Row struct {
	Record  tle.Record                `json:"record"`
	Derived elements.Derived          `json:"derived"`
	States  []propagation.StateVector `json:"states"`
}

// Key returns the row's (catalog number, epoch) identity.
func (r Row) Key() tle.Key { return r.Record.Key() }

// Rejection records an input that did not become a row.
type Rejection struct {
	Stage         Stage     `json:"stage"`
	Name          string    `json:"name,omitempty"`
	CatalogNumber int       `json:"catalog_number,omitempty"`
	Epoch         time.Time `json:"epoch,omitempty"`
	LineNumber    int       `json:"line_number,omitempty"`
	Reason        string    `json:"reason"`
}

// Dataset is the result of one assembly run. No two rows share a
// (catalog number, epoch) key.
type Dataset struct {
	ID        uuid.UUID   `json:"id"`
	CreatedAt time.Time   `json:"created_at"`
	Rows      []Row       `json:"rows"`
	Rejected  []Rejection `json:"rejected,omitempty"`
}

// StateCount returns the number of state vectors across all rows.
func (d *Dataset) StateCount() int {
	n := 0
	for _, r := range d.Rows {
		n += len(r.States)
	}
	return n
}

// Inputs rebuilds assembly inputs from the dataset, so that it can be
// re-assembled with different settings. Each row keeps its query epochs.
func (d *Dataset) Inputs() []Input {
	inputs := make([]Input, len(d.Rows))
	for i, r := range d.Rows {
		var epochs []time.Time
		for _, sv := range r.States {
			epochs = append(epochs, sv.Epoch)
		}
		inputs[i] = Input{Block: r.Record.Block(), Epochs: epochs}
	}
	return inputs
}

// Lookup returns the rows for a catalog number in dataset order.
func (d *Dataset) Lookup(catalogNumber int) []Row {
	var rows []Row
	for _, r := range d.Rows {
		if r.Record.CatalogNumber == catalogNumber {
			rows = append(rows, r)
		}
	}
	return rows
}
