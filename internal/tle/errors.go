package tle

import (
	"errors"
	"fmt"
	"strings"
)

// Kind classifies a parse failure.
type Kind int

const (
	TooShort Kind = iota + 1
	MalformedLine
	CatalogMismatch
	ChecksumMismatch
	EpochMismatch
)

var (
	ErrTooShort         = errors.New("line too short")
	ErrMalformedLine    = errors.New("malformed line")
	ErrCatalogMismatch  = errors.New("catalog number mismatch")
	ErrChecksumMismatch = errors.New("checksum mismatch")
	ErrEpochMismatch    = errors.New("declared epoch mismatch")
)

func (k Kind) sentinel() error {
	switch k {
	case TooShort:
		return ErrTooShort
	case MalformedLine:
		return ErrMalformedLine
	case CatalogMismatch:
		return ErrCatalogMismatch
	case ChecksumMismatch:
		return ErrChecksumMismatch
	case EpochMismatch:
		return ErrEpochMismatch
	}
	return nil
}

func (k Kind) String() string {
	switch k {
	case TooShort:
		return "too_short"
	case MalformedLine:
		return "malformed_line"
	case CatalogMismatch:
		return "catalog_mismatch"
	case ChecksumMismatch:
		return "checksum_mismatch"
	case EpochMismatch:
		return "epoch_mismatch"
	}
	return "unknown"
}

// ParseError describes why an element set was rejected. CatalogNumber is 0
// when the failure happened before it could be read; Line is 1 or 2, or 0
// when the failure concerns the pair.
type ParseError struct {
	Kind          Kind
	Name          string
	CatalogNumber int
	Line          int
	Field         string
	Err           error
}

func (e *ParseError) Error() string {
	var b strings.Builder
	b.WriteString("tle")
	if e.CatalogNumber > 0 {
		fmt.Fprintf(&b, " %05d", e.CatalogNumber)
	}
	if e.Name != "" {
		fmt.Fprintf(&b, " (%s)", e.Name)
	}
	if e.Line > 0 {
		fmt.Fprintf(&b, " line %d", e.Line)
	}
	if e.Field != "" {
		fmt.Fprintf(&b, " field %s", e.Field)
	}
	b.WriteString(": ")
	if s := e.Kind.sentinel(); s != nil {
		b.WriteString(s.Error())
	} else {
		b.WriteString("parse error")
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// Is matches the sentinel of the error's kind.
func (e *ParseError) Is(target error) bool {
	s := e.Kind.sentinel()
	return s != nil && target == s
}
