package transform

import (
	"math"
	"time"

	"github.com/star/orbstate/internal/epoch"
)

// OmegaEarth is Earth's rotation rate in rad/s (IAU value).
const OmegaEarth = 7.292115146706979e-5

// GMST returns the Greenwich mean sidereal angle in radians, in [0, 2π), for
// a two-part Julian date (UT1 taken as UTC). IAU-82 model, Vallado Eq 3-47:
//
//	θ = 67310.54841 + (876600h + 8640184.812866)·T + 0.093104·T² − 6.2e-6·T³
//
// with T in Julian centuries from J2000.0 and θ in seconds of time.
func GMST(jd epoch.Julian) float64 {
	tut1 := ((jd.Day - epoch.J2000) + jd.Frac) / 36525.0

	sec := -6.2e-6*tut1*tut1*tut1 + 0.093104*tut1*tut1 +
		(876600.0*3600.0+8640184.812866)*tut1 + 67310.54841

	// 240 seconds of time per degree.
	rad := math.Mod(sec*math.Pi/180.0/240.0, 2*math.Pi)
	if rad < 0 {
		rad += 2 * math.Pi
	}
	return rad
}

// GMSTAt is GMST for a UTC instant.
func GMSTAt(t time.Time) float64 {
	return GMST(epoch.ToJulian(t))
}
