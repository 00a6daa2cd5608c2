package tle

import (
	"errors"
	"fmt"
	"math"
	"strings"
)

// FormatLines renders the element set of r as two checksummed element
// lines. Parsing the result yields r again to the precision of the fixed
// column format.
func FormatLines(r Record) (line1, line2 string, err error) {
	if r.CatalogNumber < 0 || r.CatalogNumber > 99999 {
		return "", "", fmt.Errorf("catalog number %d: does not fit five columns", r.CatalogNumber)
	}
	if r.Epoch.IsZero() {
		return "", "", errors.New("epoch not set")
	}
	if r.Eccentricity < 0 || r.Eccentricity >= 1 {
		return "", "", fmt.Errorf("eccentricity %v: outside [0, 1)", r.Eccentricity)
	}
	ndot, err := formatMeanMotionDot(r.MeanMotionDot)
	if err != nil {
		return "", "", err
	}
	nddot, err := formatImpliedDecimal(r.MeanMotionDDot)
	if err != nil {
		return "", "", fmt.Errorf("mean motion second derivative: %w", err)
	}
	bstar, err := formatImpliedDecimal(r.BStar)
	if err != nil {
		return "", "", fmt.Errorf("bstar: %w", err)
	}

	class := r.Classification
	if class == 0 {
		class = Unclassified
	}
	ep := r.Epoch.UTC()
	day := float64(ep.YearDay()) + float64(ep.Hour()*3600+ep.Minute()*60+ep.Second())/86400 +
		float64(ep.Nanosecond())/86400e9

	l1 := fmt.Sprintf("1 %05d%c %-8s %02d%012.8f %s %s %s %d %4d",
		r.CatalogNumber, byte(class), r.IntlDesignator, ep.Year()%100, day,
		ndot, nddot, bstar, r.EphemerisType, r.ElementSetNumber%10000)
	l2 := fmt.Sprintf("2 %05d %8.4f %8.4f %07d %8.4f %8.4f %11.8f%5d",
		r.CatalogNumber, r.Inclination, r.RAAN, int(math.Round(r.Eccentricity*1e7)),
		r.ArgPerigee, r.MeanAnomaly, r.MeanMotion, r.RevNumber%100000)
	if len(l1) != LineLength-1 || len(l2) != LineLength-1 {
		return "", "", fmt.Errorf("catalog %05d: element values overflow their columns", r.CatalogNumber)
	}
	return l1 + fmt.Sprint(Checksum(l1)), l2 + fmt.Sprint(Checksum(l2)), nil
}

// formatMeanMotionDot renders columns 34-43: a sign and eight decimals with
// no leading zero.
func formatMeanMotionDot(x float64) (string, error) {
	if math.Abs(x) >= 1 || math.IsNaN(x) {
		return "", fmt.Errorf("mean motion derivative %v: outside (-1, 1)", x)
	}
	s := strings.TrimPrefix(fmt.Sprintf("%.8f", math.Abs(x)), "0")
	if x < 0 && s != ".00000000" {
		return "-" + s, nil
	}
	return " " + s, nil
}

// formatImpliedDecimal renders an eight-column field such as " 30099-3"
// (0.30099e-3).
func formatImpliedDecimal(x float64) (string, error) {
	if math.IsNaN(x) || math.IsInf(x, 0) {
		return "", fmt.Errorf("value %v is not finite", x)
	}
	if x == 0 {
		return " 00000+0", nil
	}
	sign := " "
	if x < 0 {
		sign = "-"
	}
	a := math.Abs(x)
	exp := int(math.Floor(math.Log10(a))) + 1
	mant := int(math.Round(a / math.Pow(10, float64(exp)) * 1e5))
	if mant >= 100000 {
		mant /= 10
		exp++
	}
	if mant == 0 {
		return " 00000+0", nil
	}
	if exp > 9 || exp < -9 {
		return "", fmt.Errorf("value %v: exponent out of range", x)
	}
	expSign := "+"
	if exp < 0 {
		expSign = "-"
	}
	return fmt.Sprintf("%s%05d%s%d", sign, mant, expSign, abs(exp)), nil
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
