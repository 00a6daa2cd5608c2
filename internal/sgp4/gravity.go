package sgp4

import (
	"fmt"
	"math"
	"strings"
)

// Gravity is an Earth gravity model: gravitational parameter, equatorial
// radius and zonal harmonics, plus the derived SGP4 units.
type Gravity struct {
	Name     string
	Mu       float64 // km³/s²
	RadiusKm float64
	XKE      float64 // sqrt(mu) in earth radii³/min²
	J2       float64
	J3       float64
	J4       float64
}

// J3OverJ2 returns J3/J2.
func (g Gravity) J3OverJ2() float64 {
	return g.J3 / g.J2
}

func newGravity(name string, mu, re, j2, j3, j4 float64) Gravity {
	return Gravity{
		Name:     name,
		Mu:       mu,
		RadiusKm: re,
		XKE:      60.0 / math.Sqrt(re*re*re/mu),
		J2:       j2,
		J3:       j3,
		J4:       j4,
	}
}

var (
	// WGS72Old reproduces the constants of the original Spacetrack Report #3
	// code, including its truncated XKE.
	WGS72Old = Gravity{
		Name:     "wgs72old",
		Mu:       398600.79964,
		RadiusKm: 6378.135,
		XKE:      0.0743669161,
		J2:       0.001082616,
		J3:       -0.00000253881,
		J4:       -0.00000165597,
	}

	// WGS72 is the model element sets are fitted with and the default.
	WGS72 = newGravity("wgs72", 398600.8, 6378.135, 0.001082616, -0.00000253881, -0.00000165597)

	WGS84 = newGravity("wgs84", 398600.5, 6378.137, 0.00108262998905, -0.00000253215306, -0.00000161098761)
)

// GravityByName resolves "wgs72old", "wgs72" or "wgs84" (case-insensitive).
// An empty name selects WGS72.
func GravityByName(name string) (Gravity, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "wgs72":
		return WGS72, nil
	case "wgs72old":
		return WGS72Old, nil
	case "wgs84":
		return WGS84, nil
	}
	return Gravity{}, fmt.Errorf("unknown gravity model %q", name)
}
