package propagation

import (
	"fmt"
	"runtime"
	"time"

	"github.com/star/orbstate/internal/sgp4"
	"github.com/star/orbstate/internal/transform"
)

// Status is the outcome of propagating one element set to one epoch.
type Status int

const (
	StatusOk Status = iota
	StatusDecayed
	StatusNumericDegenerate
)

var statusNames = [...]string{"ok", "decayed", "numeric_degenerate"}

func (s Status) String() string {
	if s < 0 || int(s) >= len(statusNames) {
		return fmt.Sprintf("status(%d)", int(s))
	}
	return statusNames[s]
}

func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *Status) UnmarshalText(b []byte) error {
	for i, name := range statusNames {
		if string(b) == name {
			*s = Status(i)
			return nil
		}
	}
	return fmt.Errorf("unknown propagation status %q", b)
}

// StateVector is the TEME state of one satellite at one query epoch.
type StateVector struct {
	CatalogNumber         int                 `json:"catalog_number"`
	Epoch                 time.Time           `json:"epoch"`
	MinutesSinceEpoch     float64             `json:"minutes_since_epoch"`
	Position              [3]float64          `json:"position_km"`
	Velocity              [3]float64          `json:"velocity_km_s"`
	Status                Status              `json:"status"`
	OutsideValidityWindow bool                `json:"outside_validity_window,omitempty"`
	Geodetic              *transform.Geodetic `json:"geodetic,omitempty"`
	Error                 string              `json:"error,omitempty"`
}

// Config holds propagation settings.
type Config struct {
	Gravity sgp4.Gravity

	// DecayAltitudeKm is the geocentric altitude below which an otherwise
	// valid state is reported as decayed.
	DecayAltitudeKm float64

	// ValidityWindow bounds |target − TLE epoch|; beyond it states are still
	// computed but flagged. Zero disables the check.
	ValidityWindow time.Duration

	// Workers is the worker pool size.
	Workers int
}

// DefaultConfig returns WGS-72, no decay floor above the surface, a 30 day
// validity window and one worker per CPU.
func DefaultConfig() Config {
	return Config{
		Gravity:         sgp4.WGS72,
		DecayAltitudeKm: 0,
		ValidityWindow:  30 * 24 * time.Hour,
		Workers:         runtime.NumCPU(),
	}
}
