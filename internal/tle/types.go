package tle

import (
	"fmt"
	"time"
)

// Classification is the security classification character of line 1.
type Classification byte

const (
	Unclassified Classification = 'U'
	Classified   Classification = 'C'
	Secret       Classification = 'S'
)

func (c Classification) String() string {
	return string(rune(c))
}

func (c Classification) MarshalText() ([]byte, error) {
	return []byte{byte(c)}, nil
}

func (c *Classification) UnmarshalText(b []byte) error {
	if len(b) != 1 {
		return fmt.Errorf("classification %q: want one character", b)
	}
	*c = Classification(b[0])
	return nil
}

// Record is one parsed two-line element set. Angles are in degrees, mean
// motion in revolutions per day, eccentricity dimensionless. Line1 and Line2
// are kept verbatim so the element set can be re-emitted or re-parsed.
type Record struct {
	Name             string         `json:"name,omitempty"`
	CatalogNumber    int            `json:"catalog_number"`
	Classification   Classification `json:"classification"`
	IntlDesignator   string         `json:"intl_designator"`
	Epoch            time.Time      `json:"epoch"`
	MeanMotionDot    float64        `json:"mean_motion_dot"`  // first derivative of mean motion / 2, rev/day²
	MeanMotionDDot   float64        `json:"mean_motion_ddot"` // second derivative of mean motion / 6, rev/day³
	BStar            float64        `json:"bstar"`            // drag term, 1/earth radii
	EphemerisType    int            `json:"ephemeris_type"`
	ElementSetNumber int            `json:"element_set_number"`

	Inclination  float64 `json:"inclination_deg"`
	RAAN         float64 `json:"raan_deg"`
	Eccentricity float64 `json:"eccentricity"`
	ArgPerigee   float64 `json:"arg_perigee_deg"`
	MeanAnomaly  float64 `json:"mean_anomaly_deg"`
	MeanMotion   float64 `json:"mean_motion_rev_day"`
	RevNumber    int     `json:"rev_number"`

	Line1 string `json:"line1"`
	Line2 string `json:"line2"`
}

// Key identifies a record within a dataset.
type Key struct {
	CatalogNumber int
	Epoch         time.Time
}

func (k Key) String() string {
	return fmt.Sprintf("%05d@%s", k.CatalogNumber, k.Epoch.UTC().Format(time.RFC3339Nano))
}

// Key returns the (catalog number, epoch) identity of r.
func (r Record) Key() Key {
	return Key{CatalogNumber: r.CatalogNumber, Epoch: r.Epoch.UTC()}
}

// Block returns the raw text form of r.
func (r Record) Block() Block {
	return Block{Name: r.Name, Line1: r.Line1, Line2: r.Line2}
}

// Block is an unparsed element set as read from a source: an optional name
// line and the two element lines. CatalogNumber and Epoch are values declared
// by the source alongside the lines (JSON catalogs carry both); zero means
// not declared.
type Block struct {
	Name       string
	Line1      string
	Line2      string
	LineNumber int // 1-based line of the block start in text input

	CatalogNumber int
	Epoch         time.Time
}
