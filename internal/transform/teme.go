// Package transform converts SGP4 output out of the TEME (True Equator Mean
// Equinox) frame.
//
// TEME → ECEF uses a GMST-only rotation (TEME → PEF ≈ ECEF). Polar motion and
// the equation of the equinoxes are ignored, which costs at most ~50 m.
//
// Reference: Vallado, "Fundamentals of Astrodynamics and Applications", Ch. 3.
package transform

import (
	"math"

	"github.com/star/orbstate/internal/epoch"
)

// ECEF is an Earth-fixed position and velocity.
type ECEF struct {
	X, Y, Z    float64 // meters
	VX, VY, VZ float64 // m/s
}

// TEMEToECEF rotates a TEME state (km, km/s) into ECEF (m, m/s) at jd.
func TEMEToECEF(r, v [3]float64, jd epoch.Julian) ECEF {
	return TEMEToECEFWithGMST(r, v, GMST(jd))
}

// TEMEToECEFWithGMST is TEMEToECEF with a precomputed sidereal angle, for
// rotating many states at the same instant.
//
//	r_ECEF = R3(θ)·r_TEME
//	v_ECEF = R3(θ)·v_TEME − ω × r_ECEF
func TEMEToECEFWithGMST(r, v [3]float64, gmst float64) ECEF {
	sinG, cosG := math.Sincos(gmst)

	x := r[0]*cosG + r[1]*sinG
	y := -r[0]*sinG + r[1]*cosG
	z := r[2]

	vx := v[0]*cosG + v[1]*sinG + OmegaEarth*y
	vy := -v[0]*sinG + v[1]*cosG - OmegaEarth*x
	vz := v[2]

	return ECEF{
		X: x * 1000.0, Y: y * 1000.0, Z: z * 1000.0,
		VX: vx * 1000.0, VY: vy * 1000.0, VZ: vz * 1000.0,
	}
}

// Radius returns the distance from the geocenter in meters.
func (e ECEF) Radius() float64 {
	return math.Sqrt(e.X*e.X + e.Y*e.Y + e.Z*e.Z)
}
