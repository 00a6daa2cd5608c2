// Package epoch converts TLE epochs (two-digit year plus fractional day of
// year) into absolute UTC timestamps and two-part Julian dates.
package epoch

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// Pivot is the two-digit year boundary: years below it belong to the 2000s,
// the rest to the 1900s. 57 matches the first artificial satellite launch and
// the convention used by the reference SGP4 distributions.
const Pivot = 57

// maxFractionDigits is the longest day fraction that converts to whole
// nanoseconds exactly (86400e9 is divisible by 10^11).
const maxFractionDigits = 11

// FullYear expands a two-digit TLE year using Pivot.
func FullYear(twoDigit int) int {
	if twoDigit < Pivot {
		return 2000 + twoDigit
	}
	return 1900 + twoDigit
}

// Normalize returns the UTC instant for a two-digit year and a 1-based
// fractional day of year. Whole days and the day fraction are applied
// separately so the fraction is rounded to the nanosecond once.
func Normalize(twoDigitYear int, dayOfYear float64) time.Time {
	whole := math.Floor(dayOfYear)
	frac := dayOfYear - whole
	start := time.Date(FullYear(twoDigitYear), time.January, 1, 0, 0, 0, 0, time.UTC)
	ns := math.Round(frac * float64(24*time.Hour))
	return start.AddDate(0, 0, int(whole)-1).Add(time.Duration(ns))
}

// ParseTLE converts the 14-character epoch field of TLE line 1
// ("YYDDD.DDDDDDDD") to UTC without going through floating point.
func ParseTLE(field string) (time.Time, error) {
	s := strings.TrimSpace(field)
	if len(s) < 3 {
		return time.Time{}, fmt.Errorf("epoch %q too short", field)
	}
	yy, err := strconv.Atoi(s[:2])
	if err != nil || yy < 0 {
		return time.Time{}, fmt.Errorf("invalid epoch year %q", s[:2])
	}

	dayPart, fracPart, _ := strings.Cut(s[2:], ".")
	day, err := strconv.Atoi(strings.TrimSpace(dayPart))
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid epoch day %q: %w", dayPart, err)
	}
	year := FullYear(yy)
	if day < 1 || day > daysIn(year) {
		return time.Time{}, fmt.Errorf("epoch day %d out of range for %d", day, year)
	}

	if len(fracPart) > maxFractionDigits {
		fracPart = fracPart[:maxFractionDigits]
	}
	var ns int64
	if fracPart != "" {
		digits, err := strconv.ParseInt(fracPart, 10, 64)
		if err != nil || digits < 0 {
			return time.Time{}, fmt.Errorf("invalid epoch fraction %q", fracPart)
		}
		scale := int64(24 * time.Hour)
		for i := 0; i < len(fracPart); i++ {
			scale /= 10
		}
		ns = digits * scale
	}

	start := time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC)
	return start.AddDate(0, 0, day-1).Add(time.Duration(ns)), nil
}

func daysIn(year int) int {
	if year%4 == 0 && (year%100 != 0 || year%400 == 0) {
		return 366
	}
	return 365
}

// DayOfYear returns the 1-based fractional day of year of t (UTC), the
// inverse of Normalize for the year of t.
func DayOfYear(t time.Time) float64 {
	t = t.UTC()
	start := time.Date(t.Year(), time.January, 1, 0, 0, 0, 0, time.UTC)
	d := t.Sub(start)
	whole := d / (24 * time.Hour)
	rem := d - whole*24*time.Hour
	return float64(whole) + 1 + float64(rem)/float64(24*time.Hour)
}
