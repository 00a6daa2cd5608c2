package tle

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/star/orbstate/internal/epoch"
)

// LineLength is the fixed width of a TLE element line.
const LineLength = 69

// declaredEpochTolerance absorbs the rounding of an 8-digit day fraction
// (0.864 ms) when comparing against an externally declared epoch.
const declaredEpochTolerance = time.Millisecond

// ParseOptions tunes validation. The zero value parses without checksum
// verification, matching what most element-set consumers accept.
type ParseOptions struct {
	VerifyChecksum bool
}

// Parse decodes one element set with default options.
func Parse(name, line1, line2 string) (Record, error) {
	return ParseOptions{}.Parse(name, line1, line2)
}

// ParseBlock decodes b with default options.
func ParseBlock(b Block) (Record, error) {
	return ParseOptions{}.ParseBlock(b)
}

// ParseBlock decodes b and cross-checks any catalog number or epoch the
// source declared next to the lines.
func (o ParseOptions) ParseBlock(b Block) (Record, error) {
	rec, err := o.Parse(b.Name, b.Line1, b.Line2)
	if err != nil {
		return Record{}, err
	}
	if b.CatalogNumber > 0 && b.CatalogNumber != rec.CatalogNumber {
		return Record{}, &ParseError{
			Kind: CatalogMismatch, Name: rec.Name, CatalogNumber: rec.CatalogNumber,
			Err: fmt.Errorf("declared %d, lines carry %d", b.CatalogNumber, rec.CatalogNumber),
		}
	}
	if !b.Epoch.IsZero() {
		diff := rec.Epoch.Sub(b.Epoch)
		if diff < 0 {
			diff = -diff
		}
		if diff > declaredEpochTolerance {
			return Record{}, &ParseError{
				Kind: EpochMismatch, Name: rec.Name, CatalogNumber: rec.CatalogNumber, Line: 1, Field: "epoch",
				Err: fmt.Errorf("declared %s, line 1 has %s", b.Epoch.UTC().Format(time.RFC3339Nano), rec.Epoch.Format(time.RFC3339Nano)),
			}
		}
	}
	return rec, nil
}

// Parse decodes one element set. Fields are extracted strictly by column;
// trailing whitespace and carriage returns are ignored.
func (o ParseOptions) Parse(name, line1, line2 string) (Record, error) {
	name = cleanName(name)
	l1 := strings.TrimRight(line1, " \t\r\n")
	l2 := strings.TrimRight(line2, " \t\r\n")

	fail := func(kind Kind, cat, line int, field string, err error) (Record, error) {
		return Record{}, &ParseError{Kind: kind, Name: name, CatalogNumber: cat, Line: line, Field: field, Err: err}
	}

	for i, l := range []string{l1, l2} {
		if len(l) < LineLength {
			return fail(TooShort, peekCatalog(l), i+1, "", fmt.Errorf("%d characters, need %d", len(l), LineLength))
		}
	}
	if l1[0] != '1' {
		return fail(MalformedLine, peekCatalog(l1), 1, "line_number", fmt.Errorf("starts with %q, want '1'", l1[0]))
	}
	if l2[0] != '2' {
		return fail(MalformedLine, peekCatalog(l2), 2, "line_number", fmt.Errorf("starts with %q, want '2'", l2[0]))
	}

	cat1, err := parseCatalog(l1[2:7])
	if err != nil {
		return fail(MalformedLine, 0, 1, "catalog_number", err)
	}
	cat2, err := parseCatalog(l2[2:7])
	if err != nil {
		return fail(MalformedLine, cat1, 2, "catalog_number", err)
	}
	if cat1 != cat2 {
		return fail(CatalogMismatch, cat1, 0, "catalog_number", fmt.Errorf("line 1 has %d, line 2 has %d", cat1, cat2))
	}

	if o.VerifyChecksum {
		for i, l := range []string{l1, l2} {
			if want, got := Checksum(l), l[68]; got < '0' || got > '9' || int(got-'0') != want {
				return fail(ChecksumMismatch, cat1, i+1, "checksum", fmt.Errorf("column 69 is %q, computed %d", got, want))
			}
		}
	}

	rec := Record{
		Name:           name,
		CatalogNumber:  cat1,
		Classification: Classification(l1[7]),
		IntlDesignator: strings.TrimSpace(l1[9:17]),
		Line1:          l1[:LineLength],
		Line2:          l2[:LineLength],
	}

	if rec.Epoch, err = epoch.ParseTLE(l1[18:32]); err != nil {
		return fail(MalformedLine, cat1, 1, "epoch", err)
	}

	fields := []struct {
		line  int
		name  string
		field string
		dst   *float64
		parse func(string) (float64, error)
	}{
		{1, "mean_motion_dot", l1[33:43], &rec.MeanMotionDot, parseDecimal},
		{1, "mean_motion_ddot", l1[44:52], &rec.MeanMotionDDot, parseImpliedDecimal},
		{1, "bstar", l1[53:61], &rec.BStar, parseImpliedDecimal},
		{2, "inclination", l2[8:16], &rec.Inclination, parseDecimal},
		{2, "raan", l2[17:25], &rec.RAAN, parseDecimal},
		{2, "eccentricity", l2[26:33], &rec.Eccentricity, parseEccentricity},
		{2, "arg_perigee", l2[34:42], &rec.ArgPerigee, parseDecimal},
		{2, "mean_anomaly", l2[43:51], &rec.MeanAnomaly, parseDecimal},
		{2, "mean_motion", l2[52:63], &rec.MeanMotion, parseDecimal},
	}
	for _, f := range fields {
		v, err := f.parse(f.field)
		if err != nil {
			return fail(MalformedLine, cat1, f.line, f.name, err)
		}
		*f.dst = v
	}

	ints := []struct {
		line  int
		name  string
		field string
		dst   *int
	}{
		{1, "ephemeris_type", l1[62:63], &rec.EphemerisType},
		{1, "element_set_number", l1[64:68], &rec.ElementSetNumber},
		{2, "rev_number", l2[63:68], &rec.RevNumber},
	}
	for _, f := range ints {
		v, err := parseOptionalInt(f.field)
		if err != nil {
			return fail(MalformedLine, cat1, f.line, f.name, err)
		}
		*f.dst = v
	}

	switch {
	case rec.Eccentricity < 0 || rec.Eccentricity >= 1:
		return fail(MalformedLine, cat1, 2, "eccentricity", fmt.Errorf("%v outside [0, 1)", rec.Eccentricity))
	case rec.Inclination < 0 || rec.Inclination > 180:
		return fail(MalformedLine, cat1, 2, "inclination", fmt.Errorf("%v outside [0, 180]", rec.Inclination))
	case !(rec.MeanMotion > 0):
		return fail(MalformedLine, cat1, 2, "mean_motion", fmt.Errorf("%v not positive", rec.MeanMotion))
	}

	return rec, nil
}

// Checksum returns the modulo-10 checksum of the first 68 columns: digits
// count their value, '-' counts 1, everything else 0.
func Checksum(line string) int {
	sum := 0
	for i := 0; i < len(line) && i < LineLength-1; i++ {
		switch c := line[i]; {
		case c >= '0' && c <= '9':
			sum += int(c - '0')
		case c == '-':
			sum++
		}
	}
	return sum % 10
}

func cleanName(s string) string {
	s = strings.TrimSpace(s)
	// 3LE catalogs prefix the title line with "0 ".
	if strings.HasPrefix(s, "0 ") {
		s = strings.TrimSpace(s[2:])
	}
	return s
}

func parseCatalog(s string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("catalog number %q: %w", s, err)
	}
	if n <= 0 {
		return 0, fmt.Errorf("catalog number %d not positive", n)
	}
	return n, nil
}

// peekCatalog best-effort reads the catalog number of a line for error
// context.
func peekCatalog(l string) int {
	if len(l) < 7 {
		return 0
	}
	n, err := parseCatalog(l[2:7])
	if err != nil {
		return 0
	}
	return n
}

func parseDecimal(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty field")
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("%q is not finite", s)
	}
	return v, nil
}

// parseEccentricity reads the 7-digit eccentricity field, which carries an
// implied leading "0.".
func parseEccentricity(s string) (float64, error) {
	digits := strings.ReplaceAll(s, " ", "0")
	for _, c := range digits {
		if c < '0' || c > '9' {
			return 0, fmt.Errorf("%q is not a digit string", s)
		}
	}
	return strconv.ParseFloat("0."+digits, 64)
}

// parseImpliedDecimal reads the 8-column exponent notation used by NDDOT and
// BSTAR: sign, five mantissa digits with an implied leading decimal point,
// and a signed one-digit exponent (" 10270-3" is 0.10270e-3).
func parseImpliedDecimal(s string) (float64, error) {
	if strings.TrimSpace(s) == "" {
		return 0, nil
	}
	if len(s) != 8 {
		return 0, fmt.Errorf("%q is not 8 columns", s)
	}
	sign := 1.0
	switch s[0] {
	case '-':
		sign = -1
	case ' ', '+':
	default:
		return 0, fmt.Errorf("invalid sign %q in %q", s[0], s)
	}
	mant := strings.TrimSpace(s[1:6])
	if mant == "" {
		return 0, nil
	}
	m, err := strconv.ParseFloat("0."+mant, 64)
	if err != nil {
		return 0, fmt.Errorf("mantissa %q: %w", mant, err)
	}
	exp, err := strconv.Atoi(strings.TrimSpace(s[6:8]))
	if err != nil {
		return 0, fmt.Errorf("exponent %q: %w", s[6:8], err)
	}
	return sign * m * math.Pow10(exp), nil
}

func parseOptionalInt(s string) (int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	return strconv.Atoi(s)
}
