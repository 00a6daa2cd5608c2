package transform

import (
	"math"

	"github.com/star/orbstate/internal/epoch"
)

// WGS-84 ellipsoid.
const (
	wgs84A  = 6378137.0             // semi-major axis (meters)
	wgs84F  = 1.0 / 298.257223563   // flattening
	wgs84E2 = wgs84F * (2 - wgs84F) // first eccentricity squared
)

// Geodetic is a point above the WGS-84 ellipsoid.
type Geodetic struct {
	LatDeg float64 `json:"lat_deg"`
	LonDeg float64 `json:"lon_deg"`
	AltKm  float64 `json:"alt_km"`
}

// ECEFToGeodetic converts ECEF meters to geodetic coordinates with Bowring's
// iteration; a handful of passes converge for anything in Earth orbit.
func ECEFToGeodetic(x, y, z float64) Geodetic {
	lon := math.Atan2(y, x)
	p := math.Sqrt(x*x + y*y)
	lat := math.Atan2(z, p*(1-wgs84E2))

	for i := 0; i < 5; i++ {
		sinLat := math.Sin(lat)
		n := wgs84A / math.Sqrt(1-wgs84E2*sinLat*sinLat)
		lat = math.Atan2(z+wgs84E2*n*sinLat, p)
	}

	sinLat, cosLat := math.Sincos(lat)
	n := wgs84A / math.Sqrt(1-wgs84E2*sinLat*sinLat)

	var alt float64
	if math.Abs(cosLat) > 1e-10 {
		alt = p/cosLat - n
	} else {
		alt = math.Abs(z)/math.Abs(sinLat) - n*(1-wgs84E2)
	}

	return Geodetic{
		LatDeg: lat * 180.0 / math.Pi,
		LonDeg: lon * 180.0 / math.Pi,
		AltKm:  alt / 1000.0,
	}
}

// GeodeticToECEF is the inverse of ECEFToGeodetic, returning meters.
func GeodeticToECEF(g Geodetic) (x, y, z float64) {
	lat := g.LatDeg * math.Pi / 180.0
	lon := g.LonDeg * math.Pi / 180.0
	altM := g.AltKm * 1000.0

	sinLat, cosLat := math.Sincos(lat)
	sinLon, cosLon := math.Sincos(lon)
	n := wgs84A / math.Sqrt(1-wgs84E2*sinLat*sinLat)

	x = (n + altM) * cosLat * cosLon
	y = (n + altM) * cosLat * sinLon
	z = (n*(1-wgs84E2) + altM) * sinLat
	return x, y, z
}

// SubPoint returns the geodetic point beneath a TEME position (km) at jd.
func SubPoint(r [3]float64, jd epoch.Julian) Geodetic {
	e := TEMEToECEF(r, [3]float64{}, jd)
	return ECEFToGeodetic(e.X, e.Y, e.Z)
}
