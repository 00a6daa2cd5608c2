package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/star/orbstate/internal/dataset"
	"github.com/star/orbstate/internal/export"
	"github.com/star/orbstate/internal/tle"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string, extra ...any) {
	body := map[string]any{"error": msg}
	for i := 0; i+1 < len(extra); i += 2 {
		body[fmt.Sprint(extra[i])] = extra[i+1]
	}
	writeJSON(w, status, body)
}

// readBlocks reads the request body as TLE text or a JSON catalog.
func (s *Server) readBlocks(w http.ResponseWriter, r *http.Request) ([]tle.Block, bool) {
	data, err := io.ReadAll(r.Body)
	if err != nil {
		var mbe *http.MaxBytesError
		if errors.As(err, &mbe) {
			writeError(w, http.StatusRequestEntityTooLarge, "request body too large", "max_body_bytes", mbe.Limit)
			return nil, false
		}
		writeError(w, http.StatusBadRequest, "reading request body: "+err.Error())
		return nil, false
	}
	blocks, err := tle.ReadAny(bytes.NewReader(data))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return nil, false
	}
	if len(blocks) == 0 {
		writeError(w, http.StatusBadRequest, "no element sets in request body")
		return nil, false
	}
	return blocks, true
}

type parseFailure struct {
	LineNumber int    `json:"line_number,omitempty"`
	Name       string `json:"name,omitempty"`
	Error      string `json:"error"`
}

type parseResponse struct {
	Records []tle.Record   `json:"records"`
	Errors  []parseFailure `json:"errors"`
}

// handleParse decodes element sets without propagating them. Malformed
// blocks are reported next to the accepted records.
func (s *Server) handleParse(w http.ResponseWriter, r *http.Request) {
	blocks, ok := s.readBlocks(w, r)
	if !ok {
		return
	}

	resp := parseResponse{Records: []tle.Record{}, Errors: []parseFailure{}}
	for _, b := range blocks {
		rec, err := s.opts.Parse.ParseBlock(b)
		if err != nil {
			resp.Errors = append(resp.Errors, parseFailure{LineNumber: b.LineNumber, Name: b.Name, Error: err.Error()})
			continue
		}
		resp.Records = append(resp.Records, rec)
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleAssemble parses the body, propagates every element set to each
// "epoch" query parameter (RFC 3339; none means each set's own epoch), and
// answers with the dataset as JSON or CSV.
func (s *Server) handleAssemble(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	format := export.FormatJSON
	if v := q.Get("format"); v != "" {
		f, err := export.ParseFormat(v)
		if err != nil || (f != export.FormatJSON && f != export.FormatCSV) {
			writeError(w, http.StatusBadRequest, "format must be json or csv")
			return
		}
		format = f
	}

	var epochs []time.Time
	for _, v := range q["epoch"] {
		t, err := time.Parse(time.RFC3339Nano, v)
		if err != nil {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid epoch %q: want RFC 3339", v))
			return
		}
		epochs = append(epochs, t.UTC())
	}
	if len(epochs) > s.opts.MaxEpochs {
		writeError(w, http.StatusBadRequest, "too many epochs", "max_epochs", s.opts.MaxEpochs)
		return
	}

	blocks, ok := s.readBlocks(w, r)
	if !ok {
		return
	}

	ds, err := s.latest.Update(func() (*dataset.Dataset, error) {
		return s.assembler.Assemble(r.Context(), dataset.InputsFromBlocks(blocks, epochs))
	})
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, "assembly canceled: "+err.Error())
		return
	}

	if s.saver != nil {
		if res, err := s.saver.SaveDataset(r.Context(), ds); err != nil {
			s.logger.Error("saving dataset failed", "dataset_id", ds.ID.String(), "error", err)
		} else {
			s.logger.Info("dataset saved", "dataset_id", ds.ID.String(), "records", res.Records, "states", res.States)
		}
	}

	w.Header().Set("X-Dataset-Id", ds.ID.String())
	if format == export.FormatCSV {
		w.Header().Set("Content-Type", "text/csv")
		if err := export.WriteCSV(w, ds); err != nil {
			s.logger.Error("writing CSV response failed", "dataset_id", ds.ID.String(), "error", err)
		}
		return
	}
	writeJSON(w, http.StatusOK, ds)
}

type datasetSummary struct {
	ID         string              `json:"id"`
	Version    uint64              `json:"version"`
	CreatedAt  time.Time           `json:"created_at"`
	AgeSeconds float64             `json:"age_seconds"`
	Rows       int                 `json:"rows"`
	States     int                 `json:"states"`
	Rejected   []dataset.Rejection `json:"rejected"`
}

// handleLatest summarizes the most recently assembled dataset.
func (s *Server) handleLatest(w http.ResponseWriter, r *http.Request) {
	ds := s.latest.Get()
	if ds == nil {
		writeError(w, http.StatusNotFound, "no dataset assembled yet")
		return
	}
	rejected := ds.Rejected
	if rejected == nil {
		rejected = []dataset.Rejection{}
	}
	writeJSON(w, http.StatusOK, datasetSummary{
		ID:         ds.ID.String(),
		Version:    s.latest.Version(),
		CreatedAt:  ds.CreatedAt,
		AgeSeconds: s.latest.AgeSeconds(),
		Rows:       len(ds.Rows),
		States:     ds.StateCount(),
		Rejected:   rejected,
	})
}

// handleSatellite returns the latest dataset's rows for one catalog number.
func (s *Server) handleSatellite(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(r.PathValue("norad_id"))
	if err != nil || id <= 0 || id > 99999 {
		writeError(w, http.StatusBadRequest, "norad_id must be a catalog number between 1 and 99999")
		return
	}
	ds := s.latest.Get()
	if ds == nil {
		writeError(w, http.StatusNotFound, "no dataset assembled yet")
		return
	}
	rows := ds.Lookup(id)
	if len(rows) == 0 {
		writeError(w, http.StatusNotFound, fmt.Sprintf("catalog number %d not in dataset", id), "dataset_id", ds.ID.String())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"dataset_id": ds.ID.String(), "rows": rows})
}
