// Package sgp4 implements the SGP4/SDP4 analytic orbit propagator for
// two-line element sets (Vallado, Crawford, Hujsak and Kelso, "Revisiting
// Spacetrack Report #3", AIAA 2006-6753, improved operation mode).
//
// A Model is built once per element set and classified as near-Earth or
// deep-space at construction. Models are immutable: propagation keeps no
// state between calls, so a Model may be shared between goroutines and
// identical inputs always give identical outputs.
package sgp4

import (
	"fmt"
	"math"

	"github.com/star/orbstate/internal/epoch"
	"github.com/star/orbstate/internal/tle"
	"github.com/star/orbstate/internal/transform"
)

const (
	twoPi   = 2 * math.Pi
	x2o3    = 2.0 / 3.0
	deg2rad = math.Pi / 180.0
	// xpdotp converts rev/day to rad/min.
	xpdotp = 1440.0 / twoPi
	temp4  = 1.5e-12

	// deepSpacePeriod is the orbital period in minutes at or above which the
	// deep-space (SDP4) branch is used.
	deepSpacePeriod = 225.0
)

// Regime is the perturbation branch selected for an element set.
type Regime int

const (
	NearEarth Regime = iota
	DeepSpace
)

func (r Regime) String() string {
	if r == DeepSpace {
		return "deep_space"
	}
	return "near_earth"
}

// Resonance is the deep-space geopotential resonance class.
type Resonance int

const (
	NoResonance Resonance = iota
	Synchronous           // one revolution per day
	HalfDay               // two revolutions per day, eccentric (Molniya-like)
)

// Elements are the mean elements of a TLE in SGP4 units.
type Elements struct {
	CatalogNumber int
	Epoch         epoch.Julian
	BStar         float64 // 1/earth radii
	Eccentricity  float64
	Inclination   float64 // rad
	RAAN          float64 // rad
	ArgPerigee    float64 // rad
	MeanAnomaly   float64 // rad
	MeanMotion    float64 // Kozai mean motion, rad/min
}

// ElementsFromRecord converts a parsed TLE to SGP4 units.
func ElementsFromRecord(rec tle.Record) Elements {
	return Elements{
		CatalogNumber: rec.CatalogNumber,
		Epoch:         epoch.ToJulian(rec.Epoch),
		BStar:         rec.BStar,
		Eccentricity:  rec.Eccentricity,
		Inclination:   rec.Inclination * deg2rad,
		RAAN:          rec.RAAN * deg2rad,
		ArgPerigee:    rec.ArgPerigee * deg2rad,
		MeanAnomaly:   rec.MeanAnomaly * deg2rad,
		MeanMotion:    rec.MeanMotion / xpdotp,
	}
}

// longPeriod holds the coefficients of the long-period and short-period
// corrections that depend on inclination. Near-Earth they are fixed at
// epoch; deep-space they follow the perturbed inclination.
type longPeriod struct {
	aycof, xlcof          float64
	con41, x1mth2, x7thm1 float64
}

func newLongPeriod(g Gravity, sinI, cosI float64) longPeriod {
	j3oj2 := g.J3OverJ2()
	lp := longPeriod{aycof: -0.5 * j3oj2 * sinI}
	den := 1.0 + cosI
	if math.Abs(den) <= temp4 {
		den = temp4
	}
	lp.xlcof = -0.25 * j3oj2 * sinI * (3.0 + 5.0*cosI) / den
	cos2 := cosI * cosI
	lp.con41 = 3.0*cos2 - 1.0
	lp.x1mth2 = 1.0 - cos2
	lp.x7thm1 = 7.0*cos2 - 1.0
	return lp
}

// meanState is the set of mean elements advanced to a time since epoch.
type meanState struct {
	em, argpm, inclm, mm, nodem, nm float64
	tempa, tempe, templ             float64
}

// oscState is the input of the Kepler solution after periodic corrections.
type oscState struct {
	ep, incl, node, argp, mp float64
}

// perturber is the branch-specific part of the theory.
type perturber interface {
	// secular advances s from the common secular terms to tsince t.
	secular(m *Model, t float64, s *meanState)
	// periodic applies periodic corrections to o and returns the
	// inclination-dependent coefficients to use with it.
	periodic(m *Model, t float64, o *oscState) (longPeriod, error)
}

// Model is an initialized SGP4 propagator for one element set.
type Model struct {
	catalog int
	epoch   epoch.Julian
	grav    Gravity
	regime  Regime

	// mean elements at epoch; no is the un-Kozai mean motion in rad/min
	bstar, ecco, inclo, nodeo, argpo, mo, no float64

	gsto float64 // Greenwich sidereal angle at epoch, rad

	// common secular and drag coefficients
	mdot, argpdot, nodedot float64
	nodecf                 float64
	cc1, cc4, t2cof        float64
	eta                    float64
	lp                     longPeriod

	// perigee of the epoch elements is inside the earth
	subOrbital bool

	perturb perturber
}

// New initializes a model from mean elements. It fails only on elements the
// theory cannot represent (eccentricity outside [0, 1), non-positive mean
// motion); decay is reported by Propagate. Elements whose perigee lies below
// the earth's surface still build a model, but every Propagate call on it
// fails with CodeSubOrbitalEpoch.
func New(el Elements, grav Gravity) (*Model, error) {
	if !(el.Eccentricity >= 0 && el.Eccentricity < 1) {
		return nil, fmt.Errorf("sgp4 init for %05d: eccentricity %v outside [0, 1)", el.CatalogNumber, el.Eccentricity)
	}
	if !(el.MeanMotion > 0) || math.IsInf(el.MeanMotion, 0) {
		return nil, fmt.Errorf("sgp4 init for %05d: mean motion %v not positive", el.CatalogNumber, el.MeanMotion)
	}

	m := &Model{
		catalog: el.CatalogNumber,
		epoch:   el.Epoch,
		grav:    grav,
		bstar:   el.BStar,
		ecco:    el.Eccentricity,
		inclo:   el.Inclination,
		nodeo:   el.RAAN,
		argpo:   el.ArgPerigee,
		mo:      el.MeanAnomaly,
	}

	re := grav.RadiusKm
	j2 := grav.J2
	j3oj2 := grav.J3OverJ2()

	// Recover the Brouwer (un-Kozai) mean motion and semi-major axis.
	eccsq := m.ecco * m.ecco
	omeosq := 1.0 - eccsq
	rteosq := math.Sqrt(omeosq)
	cosio := math.Cos(m.inclo)
	sinio := math.Sin(m.inclo)
	cosio2 := cosio * cosio

	ak := math.Pow(grav.XKE/el.MeanMotion, x2o3)
	d1 := 0.75 * j2 * (3.0*cosio2 - 1.0) / (rteosq * omeosq)
	del := d1 / (ak * ak)
	adel := ak * (1.0 - del*del - del*(1.0/3.0+134.0*del*del/81.0))
	del = d1 / (adel * adel)
	m.no = el.MeanMotion / (1.0 + del)

	ao := math.Pow(grav.XKE/m.no, x2o3)
	po := ao * omeosq
	posq := po * po
	rp := ao * (1.0 - m.ecco)
	m.subOrbital = rp < 1.0
	con42 := 1.0 - 5.0*cosio2

	m.gsto = transform.GMST(m.epoch)
	m.lp = newLongPeriod(grav, sinio, cosio)
	con41 := m.lp.con41

	// Atmospheric density parameters, adjusted for low perigees.
	ss := 78.0/re + 1.0
	qzms2t := math.Pow((120.0-78.0)/re, 4)
	sfour := ss
	qzms24 := qzms2t
	perige := (rp - 1.0) * re
	if perige < 156.0 {
		sfour = perige - 78.0
		if perige < 98.0 {
			sfour = 20.0
		}
		qzms24 = math.Pow((120.0-sfour)/re, 4)
		sfour = sfour/re + 1.0
	}

	pinvsq := 1.0 / posq
	tsi := 1.0 / (ao - sfour)
	m.eta = ao * m.ecco * tsi
	etasq := m.eta * m.eta
	eeta := m.ecco * m.eta
	psisq := math.Abs(1.0 - etasq)
	coef := qzms24 * math.Pow(tsi, 4)
	coef1 := coef / math.Pow(psisq, 3.5)
	cc2 := coef1 * m.no * (ao*(1.0+1.5*etasq+eeta*(4.0+etasq)) +
		0.375*j2*tsi/psisq*con41*(8.0+3.0*etasq*(8.0+etasq)))
	m.cc1 = m.bstar * cc2
	cc3 := 0.0
	if m.ecco > 1.0e-4 {
		cc3 = -2.0 * coef * tsi * j3oj2 * m.no * sinio / m.ecco
	}
	x1mth2 := m.lp.x1mth2
	m.cc4 = 2.0 * m.no * coef1 * ao * omeosq *
		(m.eta*(2.0+0.5*etasq) + m.ecco*(0.5+2.0*etasq) -
			j2*tsi/(ao*psisq)*(-3.0*con41*(1.0-2.0*eeta+etasq*(1.5-0.5*eeta))+
				0.75*x1mth2*(2.0*etasq-eeta*(1.0+etasq))*math.Cos(2.0*m.argpo)))
	cc5 := 2.0 * coef1 * ao * omeosq * (1.0 + 2.75*(etasq+eeta) + eeta*etasq)

	cosio4 := cosio2 * cosio2
	temp1 := 1.5 * j2 * pinvsq * m.no
	temp2 := 0.5 * temp1 * j2 * pinvsq
	temp3 := -0.46875 * grav.J4 * pinvsq * pinvsq * m.no
	m.mdot = m.no + 0.5*temp1*rteosq*con41 + 0.0625*temp2*rteosq*(13.0-78.0*cosio2+137.0*cosio4)
	m.argpdot = -0.5*temp1*con42 + 0.0625*temp2*(7.0-114.0*cosio2+395.0*cosio4) +
		temp3*(3.0-36.0*cosio2+49.0*cosio4)
	xhdot1 := -temp1 * cosio
	m.nodedot = xhdot1 + (0.5*temp2*(4.0-19.0*cosio2)+2.0*temp3*(3.0-7.0*cosio2))*cosio
	xpidot := m.argpdot + m.nodedot
	m.nodecf = 3.5 * omeosq * xhdot1 * m.cc1
	m.t2cof = 1.5 * m.cc1

	if twoPi/m.no >= deepSpacePeriod {
		m.regime = DeepSpace
		m.perturb = newDeepSpace(m, eccsq, xpidot)
		return m, nil
	}

	ne := &nearEarth{
		simple: rp < 220.0/re+1.0,
		omgcof: m.bstar * cc3 * math.Cos(m.argpo),
		sinmao: math.Sin(m.mo),
		cc5:    cc5,
	}
	if m.ecco > 1.0e-4 {
		ne.xmcof = -x2o3 * coef * m.bstar / eeta
	}
	delmotemp := 1.0 + m.eta*math.Cos(m.mo)
	ne.delmo = delmotemp * delmotemp * delmotemp
	if !ne.simple {
		cc1sq := m.cc1 * m.cc1
		ne.d2 = 4.0 * ao * tsi * cc1sq
		temp := ne.d2 * tsi * m.cc1 / 3.0
		ne.d3 = (17.0*ao + sfour) * temp
		ne.d4 = 0.5 * temp * ao * tsi * (221.0*ao + 31.0*sfour) * m.cc1
		ne.t3cof = ne.d2 + 2.0*cc1sq
		ne.t4cof = 0.25 * (3.0*ne.d3 + m.cc1*(12.0*ne.d2+10.0*cc1sq))
		ne.t5cof = 0.2 * (3.0*ne.d4 + 12.0*m.cc1*ne.d3 + 6.0*ne.d2*ne.d2 + 15.0*cc1sq*(2.0*ne.d2+cc1sq))
	}
	m.regime = NearEarth
	m.perturb = ne
	return m, nil
}

// NewFromRecord is New(ElementsFromRecord(rec), grav).
func NewFromRecord(rec tle.Record, grav Gravity) (*Model, error) {
	return New(ElementsFromRecord(rec), grav)
}

func (m *Model) CatalogNumber() int { return m.catalog }
func (m *Model) Epoch() epoch.Julian { return m.epoch }
func (m *Model) Regime() Regime { return m.regime }
func (m *Model) Gravity() Gravity { return m.grav }

// MeanMotion returns the un-Kozai mean motion at epoch in rad/min.
func (m *Model) MeanMotion() float64 { return m.no }

// SimpleDrag reports whether the truncated drag model is in use (perigee
// below 220 km, and always for deep-space orbits).
func (m *Model) SimpleDrag() bool {
	if ne, ok := m.perturb.(*nearEarth); ok {
		return ne.simple
	}
	return true
}

// Resonance returns the deep-space resonance class; NoResonance near Earth.
func (m *Model) Resonance() Resonance {
	if ds, ok := m.perturb.(*deepSpace); ok {
		return ds.irez
	}
	return NoResonance
}

// nearEarth carries the higher-order drag coefficients of SGP4.
type nearEarth struct {
	simple bool

	omgcof, xmcof, delmo, sinmao, cc5 float64
	d2, d3, d4                        float64
	t3cof, t4cof, t5cof               float64
}

func (ne *nearEarth) secular(m *Model, t float64, s *meanState) {
	if ne.simple {
		return
	}
	xmdf := s.mm
	argpdf := s.argpm
	t2 := t * t
	delomg := ne.omgcof * t
	delmtemp := 1.0 + m.eta*math.Cos(xmdf)
	delm := ne.xmcof * (delmtemp*delmtemp*delmtemp - ne.delmo)
	temp := delomg + delm
	s.mm = xmdf + temp
	s.argpm = argpdf - temp
	t3 := t2 * t
	t4 := t3 * t
	s.tempa = s.tempa - ne.d2*t2 - ne.d3*t3 - ne.d4*t4
	s.tempe = s.tempe + m.bstar*ne.cc5*(math.Sin(s.mm)-ne.sinmao)
	s.templ = s.templ + ne.t3cof*t3 + t4*(ne.t4cof+t*ne.t5cof)
}

func (ne *nearEarth) periodic(m *Model, _ float64, _ *oscState) (longPeriod, error) {
	return m.lp, nil
}
