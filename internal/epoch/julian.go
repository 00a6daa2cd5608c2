package epoch

import (
	"math"
	"time"
)

// unixJD is the Julian date of 1970-01-01T00:00:00Z.
const unixJD = 2440587.5

// J2000 is the Julian date of 2000-01-01T12:00:00.
const J2000 = 2451545.0

// Julian is a two-part Julian date. Day is the Julian date of the preceding
// 0h UTC (it always ends in .5 when produced by ToJulian) and Frac is the
// fraction of that day in [0, 1). Keeping the parts apart preserves
// sub-millisecond precision that a single float64 near 2.4e6 loses.
type Julian struct {
	Day  float64
	Frac float64
}

// ToJulian converts t to a two-part Julian date.
func ToJulian(t time.Time) Julian {
	sec := t.Unix()
	days := sec / 86400
	rem := sec % 86400
	if rem < 0 {
		days--
		rem += 86400
	}
	return Julian{
		Day:  unixJD + float64(days),
		Frac: (float64(rem) + float64(t.Nanosecond())/1e9) / 86400,
	}
}

// FromJulian converts a two-part Julian date back to UTC, rounded to the
// nanosecond. The parts need not be normalized.
func FromJulian(j Julian) time.Time {
	offset := j.Day - unixJD
	whole := math.Floor(offset)
	frac := (offset - whole) + j.Frac
	carry := math.Floor(frac)
	whole += carry
	frac -= carry
	ns := math.Round(frac * 86400e9)
	return time.Unix(int64(whole)*86400, 0).Add(time.Duration(ns)).UTC()
}

// Value collapses the date into a single float64.
func (j Julian) Value() float64 {
	return j.Day + j.Frac
}

// Sub returns j - o in days, subtracting the parts separately.
func (j Julian) Sub(o Julian) float64 {
	return (j.Day - o.Day) + (j.Frac - o.Frac)
}

// MinutesSince returns j - o in minutes.
func (j Julian) MinutesSince(o Julian) float64 {
	return j.Sub(o) * 1440.0
}

// AddMinutes returns j shifted by m minutes, renormalizing Frac to [0, 1).
func (j Julian) AddMinutes(m float64) Julian {
	frac := j.Frac + m/1440.0
	carry := math.Floor(frac)
	return Julian{Day: j.Day + carry, Frac: frac - carry}
}
