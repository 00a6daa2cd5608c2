package propagation

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrDecayed             = errors.New("orbit decayed")
	ErrNumericDegenerate   = errors.New("numerically degenerate elements")
	ErrOutOfValidityWindow = errors.New("target outside validity window")
	ErrInvalidElements     = errors.New("elements cannot be propagated")
)

// Kind classifies a PropagationError.
type Kind int

const (
	KindDecayed Kind = iota
	KindNumericDegenerate
	KindOutOfValidityWindow
	KindInvalidElements
)

func (k Kind) sentinel() error {
	switch k {
	case KindDecayed:
		return ErrDecayed
	case KindNumericDegenerate:
		return ErrNumericDegenerate
	case KindOutOfValidityWindow:
		return ErrOutOfValidityWindow
	}
	return ErrInvalidElements
}

func (k Kind) String() string {
	switch k {
	case KindDecayed:
		return "decayed"
	case KindNumericDegenerate:
		return "numeric_degenerate"
	case KindOutOfValidityWindow:
		return "out_of_validity_window"
	}
	return "invalid_elements"
}

// PropagationError reports a failed or advisory propagation result. Epoch is
// the query epoch, or the TLE epoch for initialization failures.
type PropagationError struct {
	CatalogNumber int
	Epoch         time.Time
	Kind          Kind
	Err           error
}

func (e *PropagationError) Error() string {
	msg := fmt.Sprintf("propagating %05d at %s: %s", e.CatalogNumber, e.Epoch.UTC().Format(time.RFC3339Nano), e.Kind)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *PropagationError) Unwrap() error { return e.Err }

// Is matches the sentinel for the error's kind.
func (e *PropagationError) Is(target error) bool {
	return target == e.Kind.sentinel()
}
