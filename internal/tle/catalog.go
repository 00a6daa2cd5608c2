package tle

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"
)

// CatalogEntry is one object of a JSON general-perturbations catalog export.
// Space-Track's gp class carries the element lines; CelesTrak's OMM JSON
// carries only the mean elements, from which the lines are rebuilt.
type CatalogEntry struct {
	ObjectName string    `json:"OBJECT_NAME"`
	ObjectID   string    `json:"OBJECT_ID"`
	NoradCatID catalogID `json:"NORAD_CAT_ID"`
	Epoch      string    `json:"EPOCH"`
	Line0      string    `json:"TLE_LINE0"`
	Line1      string    `json:"TLE_LINE1"`
	Line2      string    `json:"TLE_LINE2"`

	ClassificationType string  `json:"CLASSIFICATION_TYPE"`
	MeanMotion         float64 `json:"MEAN_MOTION"`
	Eccentricity       float64 `json:"ECCENTRICITY"`
	Inclination        float64 `json:"INCLINATION"`
	RAAN               float64 `json:"RA_OF_ASC_NODE"`
	ArgPericenter      float64 `json:"ARG_OF_PERICENTER"`
	MeanAnomaly        float64 `json:"MEAN_ANOMALY"`
	EphemerisType      int     `json:"EPHEMERIS_TYPE"`
	ElementSetNo       int     `json:"ELEMENT_SET_NO"`
	RevAtEpoch         int     `json:"REV_AT_EPOCH"`
	BStar              float64 `json:"BSTAR"`
	MeanMotionDot      float64 `json:"MEAN_MOTION_DOT"`
	MeanMotionDDot     float64 `json:"MEAN_MOTION_DDOT"`
}

// catalogID accepts both numeric and quoted catalog numbers.
type catalogID int

func (c *catalogID) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(bytes.TrimSpace(b)), `"`)
	if s == "" || s == "null" {
		*c = 0
		return nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return fmt.Errorf("NORAD_CAT_ID %s: %w", b, err)
	}
	*c = catalogID(n)
	return nil
}

var catalogEpochLayouts = []string{
	"2006-01-02T15:04:05.999999999Z07:00",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05",
}

// Block converts the entry into a Block carrying the declared catalog number
// and epoch. An EPOCH value in an unknown layout is not cross-checked.
func (e CatalogEntry) Block() Block {
	name := strings.TrimSpace(e.ObjectName)
	if name == "" {
		name = cleanName(e.Line0)
	}
	b := Block{
		Name:          name,
		Line1:         e.Line1,
		Line2:         e.Line2,
		CatalogNumber: int(e.NoradCatID),
	}
	ts, ok := parseCatalogEpoch(e.Epoch)
	if ok {
		b.Epoch = ts
	}
	if b.Line1 == "" && b.Line2 == "" && ok && e.MeanMotion > 0 {
		// Unrenderable elements leave the lines empty and fail parsing.
		b.Line1, b.Line2, _ = FormatLines(e.meanElements(ts))
	}
	return b
}

func (e CatalogEntry) meanElements(epoch time.Time) Record {
	class := Unclassified
	if c := strings.TrimSpace(e.ClassificationType); len(c) == 1 {
		class = Classification(c[0])
	}
	return Record{
		CatalogNumber:    int(e.NoradCatID),
		Classification:   class,
		IntlDesignator:   shortDesignator(e.ObjectID),
		Epoch:            epoch,
		MeanMotionDot:    e.MeanMotionDot,
		MeanMotionDDot:   e.MeanMotionDDot,
		BStar:            e.BStar,
		EphemerisType:    e.EphemerisType,
		ElementSetNumber: e.ElementSetNo,
		Inclination:      e.Inclination,
		RAAN:             e.RAAN,
		Eccentricity:     e.Eccentricity,
		ArgPerigee:       e.ArgPericenter,
		MeanAnomaly:      e.MeanAnomaly,
		MeanMotion:       e.MeanMotion,
		RevNumber:        e.RevAtEpoch,
	}
}

// shortDesignator turns a COSPAR ID such as "1998-067A" into the element
// line form "98067A".
func shortDesignator(id string) string {
	id = strings.TrimSpace(id)
	if len(id) > 5 && id[4] == '-' {
		id = id[2:4] + id[5:]
	}
	if len(id) > 8 {
		id = id[:8]
	}
	return id
}

func parseCatalogEpoch(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range catalogEpochLayouts {
		if ts, err := time.Parse(layout, s); err == nil {
			return ts.UTC(), true
		}
	}
	return time.Time{}, false
}

// ReadCatalogJSON decodes a JSON array of catalog entries into blocks.
func ReadCatalogJSON(r io.Reader) ([]Block, error) {
	var entries []CatalogEntry
	if err := json.NewDecoder(r).Decode(&entries); err != nil {
		return nil, fmt.Errorf("decoding JSON catalog: %w", err)
	}
	blocks := make([]Block, 0, len(entries))
	for i, e := range entries {
		b := e.Block()
		b.LineNumber = i + 1
		blocks = append(blocks, b)
	}
	return blocks, nil
}

// ReadAny sniffs r and dispatches to ReadCatalogJSON for a JSON array and to
// ReadBlocks otherwise.
func ReadAny(r io.Reader) ([]Block, error) {
	br := bufio.NewReader(r)
	for {
		c, err := br.Peek(1)
		if err != nil {
			if err == io.EOF {
				return nil, nil
			}
			return nil, fmt.Errorf("reading TLE data: %w", err)
		}
		switch c[0] {
		case ' ', '\t', '\r', '\n':
			_, _ = br.ReadByte()
			continue
		case '[':
			return ReadCatalogJSON(br)
		}
		return ReadBlocks(br)
	}
}
