// Package propagation maps TLE records and query epochs to TEME state
// vectors, classifying failures and fanning work out over a worker pool.
package propagation

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/star/orbstate/internal/epoch"
	"github.com/star/orbstate/internal/sgp4"
	"github.com/star/orbstate/internal/tle"
	"github.com/star/orbstate/internal/transform"
)

// SGP4Propagator is an initialized model for one record. It holds no mutable
// state and is safe for concurrent use.
type SGP4Propagator struct {
	catalog  int
	tleEpoch time.Time
	model    *sgp4.Model
	cfg      Config
}

// NewSGP4Propagator initializes the analytic model for rec. Elements the
// theory cannot represent give a *PropagationError of KindInvalidElements.
func NewSGP4Propagator(rec tle.Record, cfg Config) (*SGP4Propagator, error) {
	if cfg.Gravity.XKE == 0 {
		cfg.Gravity = sgp4.WGS72
	}
	m, err := sgp4.NewFromRecord(rec, cfg.Gravity)
	if err != nil {
		return nil, &PropagationError{
			CatalogNumber: rec.CatalogNumber,
			Epoch:         rec.Epoch,
			Kind:          KindInvalidElements,
			Err:           err,
		}
	}
	return &SGP4Propagator{
		catalog:  rec.CatalogNumber,
		tleEpoch: rec.Epoch,
		model:    m,
		cfg:      cfg,
	}, nil
}

// Propagate is a one-shot NewSGP4Propagator plus Propagate.
func Propagate(rec tle.Record, target time.Time, cfg Config) (StateVector, error) {
	p, err := NewSGP4Propagator(rec, cfg)
	if err != nil {
		return StateVector{
			CatalogNumber: rec.CatalogNumber,
			Epoch:         target.UTC(),
			Status:        StatusNumericDegenerate,
			Error:         err.Error(),
		}, err
	}
	return p.Propagate(target)
}

func (p *SGP4Propagator) CatalogNumber() int { return p.catalog }
func (p *SGP4Propagator) Model() *sgp4.Model { return p.model }
func (p *SGP4Propagator) TLEEpoch() time.Time { return p.tleEpoch }

// Propagate computes the state at target.
//
// The returned error is nil for a clean Ok state. A Decayed or
// NumericDegenerate state comes with a *PropagationError of the same kind.
// An Ok state outside the validity window comes with an advisory error
// matching ErrOutOfValidityWindow; the vector is still usable.
func (p *SGP4Propagator) Propagate(target time.Time) (StateVector, error) {
	return p.propagate(epoch.ToJulian(target), target.UTC())
}

// PropagateJulian is Propagate for a two-part Julian date.
func (p *SGP4Propagator) PropagateJulian(jd epoch.Julian) (StateVector, error) {
	return p.propagate(jd, epoch.FromJulian(jd))
}

func (p *SGP4Propagator) propagate(jd epoch.Julian, at time.Time) (StateVector, error) {
	tsince := jd.MinutesSince(p.model.Epoch())
	sv := StateVector{
		CatalogNumber:     p.catalog,
		Epoch:             at,
		MinutesSinceEpoch: tsince,
	}

	r, v, err := p.model.Propagate(tsince)
	if err != nil {
		return p.fail(sv, classify(err), err)
	}

	altKm := math.Sqrt(r[0]*r[0]+r[1]*r[1]+r[2]*r[2]) - p.cfg.Gravity.RadiusKm
	if altKm < p.cfg.DecayAltitudeKm {
		return p.fail(sv, KindDecayed, &decayFloorError{altKm: altKm, floorKm: p.cfg.DecayAltitudeKm})
	}

	sv.Position = r
	sv.Velocity = v
	sv.Status = StatusOk
	g := transform.SubPoint(r, jd)
	sv.Geodetic = &g

	if w := p.cfg.ValidityWindow; w > 0 && math.Abs(tsince) > w.Minutes() {
		sv.OutsideValidityWindow = true
		return sv, &PropagationError{
			CatalogNumber: p.catalog,
			Epoch:         at,
			Kind:          KindOutOfValidityWindow,
			Err:           ErrOutOfValidityWindow,
		}
	}
	return sv, nil
}

func (p *SGP4Propagator) fail(sv StateVector, kind Kind, err error) (StateVector, error) {
	perr := &PropagationError{
		CatalogNumber: p.catalog,
		Epoch:         sv.Epoch,
		Kind:          kind,
		Err:           err,
	}
	sv.Status = StatusDecayed
	if kind == KindNumericDegenerate {
		sv.Status = StatusNumericDegenerate
	}
	sv.Error = err.Error()
	return sv, perr
}

// classify maps a model failure onto Decayed or NumericDegenerate.
func classify(err error) Kind {
	var se *sgp4.Error
	if errors.As(err, &se) && se.Decayed() {
		return KindDecayed
	}
	return KindNumericDegenerate
}

type decayFloorError struct {
	altKm, floorKm float64
}

func (e *decayFloorError) Error() string {
	return fmt.Sprintf("altitude %.3f km below decay floor %.3f km", e.altKm, e.floorKm)
}
