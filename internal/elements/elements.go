// Package elements computes geometric orbit quantities from TLE mean
// elements using the two-body relation between mean motion and semi-major
// axis.
package elements

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/star/orbstate/internal/tle"
)

const (
	// MuEarth is the geocentric gravitational constant, km³/s².
	MuEarth = 398600.4418
	// EarthRadius is the WGS-84 equatorial radius, km.
	EarthRadius = 6378.137

	secondsPerDay = 86400.0
	minutesPerDay = 1440.0
)

var (
	ErrInvalidMeanMotion   = errors.New("mean motion must be positive and finite")
	ErrInvalidEccentricity = errors.New("eccentricity must be in [0, 1)")
)

// Derived holds quantities computed from mean motion and eccentricity.
// Altitudes are above the equatorial radius, not the ellipsoid.
type Derived struct {
	SemiMajorAxisKm float64 `json:"semi_major_axis_km"`
	PeriodMinutes   float64 `json:"period_minutes"`
	ApogeeAltKm     float64 `json:"apogee_alt_km"`
	PerigeeAltKm    float64 `json:"perigee_alt_km"`
}

// Derive computes the derived elements for a mean motion in revolutions per
// day and an eccentricity.
func Derive(meanMotion, eccentricity float64) (Derived, error) {
	if !(meanMotion > 0) || math.IsInf(meanMotion, 0) {
		return Derived{}, fmt.Errorf("%w: %v rev/day", ErrInvalidMeanMotion, meanMotion)
	}
	if !(eccentricity >= 0 && eccentricity < 1) {
		return Derived{}, fmt.Errorf("%w: %v", ErrInvalidEccentricity, eccentricity)
	}

	n := meanMotion * 2 * math.Pi / secondsPerDay // rad/s
	a := math.Cbrt(MuEarth / (n * n))
	return Derived{
		SemiMajorAxisKm: a,
		PeriodMinutes:   minutesPerDay / meanMotion,
		ApogeeAltKm:     a*(1+eccentricity) - EarthRadius,
		PerigeeAltKm:    a*(1-eccentricity) - EarthRadius,
	}, nil
}

// DerivationError ties a derivation failure to the record it came from.
type DerivationError struct {
	CatalogNumber int
	Epoch         time.Time
	Err           error
}

func (e *DerivationError) Error() string {
	return fmt.Sprintf("derive elements for %05d at %s: %v", e.CatalogNumber, e.Epoch.UTC().Format(time.RFC3339), e.Err)
}

func (e *DerivationError) Unwrap() error {
	return e.Err
}

// ForRecord derives the elements of rec.
func ForRecord(rec tle.Record) (Derived, error) {
	d, err := Derive(rec.MeanMotion, rec.Eccentricity)
	if err != nil {
		return Derived{}, &DerivationError{CatalogNumber: rec.CatalogNumber, Epoch: rec.Epoch, Err: err}
	}
	return d, nil
}
