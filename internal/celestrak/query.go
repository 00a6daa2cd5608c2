// Package celestrak fetches general-perturbations element sets from
// CelesTrak's GP endpoint and keeps a disk cache of raw responses.
package celestrak

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// DefaultBaseURL is CelesTrak's GP query endpoint.
const DefaultBaseURL = "https://celestrak.org/NORAD/elements/gp.php"

// QueryKind selects the GP query parameter.
type QueryKind string

const (
	KindCatalogNumber QueryKind = "CATNR"
	KindName          QueryKind = "NAME"
	KindGroup         QueryKind = "GROUP"
)

// Format is the response format requested from CelesTrak.
type Format string

const (
	FormatTLE  Format = "TLE"
	FormatJSON Format = "JSON"
)

// ParseFormat accepts "tle" or "json" in any case; empty selects TLE.
func ParseFormat(s string) (Format, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "", "TLE", "3LE":
		return FormatTLE, nil
	case "JSON":
		return FormatJSON, nil
	}
	return "", fmt.Errorf("unknown CelesTrak format %q", s)
}

// Query is one GP request.
type Query struct {
	Kind  QueryKind
	Value string
}

func ByCatalogNumber(n int) Query { return Query{Kind: KindCatalogNumber, Value: strconv.Itoa(n)} }
func ByName(name string) Query    { return Query{Kind: KindName, Value: name} }
func ByGroup(group string) Query  { return Query{Kind: KindGroup, Value: group} }

func (q Query) String() string {
	return string(q.Kind) + "=" + q.Value
}

// Validate rejects empty values and non-numeric catalog numbers.
func (q Query) Validate() error {
	if strings.TrimSpace(q.Value) == "" {
		return fmt.Errorf("celestrak query %s: empty value", q.Kind)
	}
	switch q.Kind {
	case KindCatalogNumber:
		if n, err := strconv.Atoi(q.Value); err != nil || n <= 0 {
			return fmt.Errorf("celestrak query CATNR=%q: not a positive catalog number", q.Value)
		}
	case KindName, KindGroup:
	default:
		return fmt.Errorf("celestrak query: unknown kind %q", q.Kind)
	}
	return nil
}

// URL returns the GP request URL for q against base.
func (q Query) URL(base string, f Format) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("parsing base URL %q: %w", base, err)
	}
	v := u.Query()
	v.Set(string(q.Kind), q.Value)
	v.Set("FORMAT", string(f))
	u.RawQuery = v.Encode()
	return u.String(), nil
}
