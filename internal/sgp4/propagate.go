package sgp4

import (
	"math"

	"github.com/star/orbstate/internal/epoch"
)

// keplerTolerance is the largest final Newton step accepted as converged.
const keplerTolerance = 1e-6

// Propagate returns the TEME position (km) and velocity (km/s) at tsince
// minutes from the element set epoch.
//
// A *Error is returned when the theory breaks down. For CodeSubOrbital the
// position and velocity are still returned; for every other code they are
// zero.
func (m *Model) Propagate(tsince float64) (r, v [3]float64, err error) {
	if m.subOrbital {
		return r, v, &Error{Code: CodeSubOrbitalEpoch, Minutes: tsince}
	}
	g := m.grav
	vkmpersec := g.RadiusKm * g.XKE / 60.0
	t := tsince

	// Secular gravity and atmospheric drag.
	xmdf := m.mo + m.mdot*t
	argpdf := m.argpo + m.argpdot*t
	nodedf := m.nodeo + m.nodedot*t
	t2 := t * t
	s := meanState{
		em:    m.ecco,
		argpm: argpdf,
		inclm: m.inclo,
		mm:    xmdf,
		nodem: nodedf + m.nodecf*t2,
		nm:    m.no,
		tempa: 1.0 - m.cc1*t,
		tempe: m.bstar * m.cc4 * t,
		templ: m.t2cof * t2,
	}
	m.perturb.secular(m, t, &s)

	if s.nm <= 0.0 {
		return r, v, &Error{Code: CodeMeanMotion, Minutes: t}
	}
	am := math.Pow(g.XKE/s.nm, x2o3) * s.tempa * s.tempa
	nm := g.XKE / math.Pow(am, 1.5)
	em := s.em - s.tempe
	if em >= 1.0 || em < -0.001 {
		return r, v, &Error{Code: CodeMeanEccentricity, Minutes: t}
	}
	if em < 1.0e-6 {
		em = 1.0e-6
	}

	mm := s.mm + m.no*s.templ
	xlm := mm + s.argpm + s.nodem
	nodem := math.Mod(s.nodem, twoPi)
	argpm := math.Mod(s.argpm, twoPi)
	xlm = math.Mod(xlm, twoPi)
	mm = math.Mod(xlm-argpm-nodem, twoPi)

	o := oscState{ep: em, incl: s.inclm, node: nodem, argp: argpm, mp: mm}
	lp, err := m.perturb.periodic(m, t, &o)
	if err != nil {
		return r, v, err
	}
	sinip := math.Sin(o.incl)
	cosip := math.Cos(o.incl)

	// Long-period periodics.
	axnl := o.ep * math.Cos(o.argp)
	temp := 1.0 / (am * (1.0 - o.ep*o.ep))
	aynl := o.ep*math.Sin(o.argp) + temp*lp.aycof
	xl := o.mp + o.argp + o.node + temp*lp.xlcof*axnl

	// Kepler's equation.
	u := math.Mod(xl-o.node, twoPi)
	eo1 := u
	tem5 := 9999.9
	var sineo1, coseo1 float64
	for ktr := 1; math.Abs(tem5) >= 1.0e-12 && ktr <= 10; ktr++ {
		sineo1 = math.Sin(eo1)
		coseo1 = math.Cos(eo1)
		tem5 = 1.0 - coseo1*axnl - sineo1*aynl
		tem5 = (u - aynl*coseo1 + axnl*sineo1 - eo1) / tem5
		if math.Abs(tem5) >= 0.95 {
			tem5 = math.Copysign(0.95, tem5)
		}
		eo1 += tem5
	}
	if math.Abs(tem5) > keplerTolerance {
		return r, v, &Error{Code: CodeNotConverged, Minutes: t}
	}

	// Short-period periodics.
	ecose := axnl*coseo1 + aynl*sineo1
	esine := axnl*sineo1 - aynl*coseo1
	el2 := axnl*axnl + aynl*aynl
	pl := am * (1.0 - el2)
	if pl < 0.0 {
		return r, v, &Error{Code: CodeSemiLatusRectum, Minutes: t}
	}

	rl := am * (1.0 - ecose)
	rdotl := math.Sqrt(am) * esine / rl
	rvdotl := math.Sqrt(pl) / rl
	betal := math.Sqrt(1.0 - el2)
	temp = esine / (1.0 + betal)
	sinu := am / rl * (sineo1 - aynl - axnl*temp)
	cosu := am / rl * (coseo1 - axnl + aynl*temp)
	su := math.Atan2(sinu, cosu)
	sin2u := (cosu + cosu) * sinu
	cos2u := 1.0 - 2.0*sinu*sinu
	temp = 1.0 / pl
	temp1 := 0.5 * g.J2 * temp
	temp2 := temp1 * temp

	mrt := rl*(1.0-1.5*temp2*betal*lp.con41) + 0.5*temp1*lp.x1mth2*cos2u
	su -= 0.25 * temp2 * lp.x7thm1 * sin2u
	xnode := o.node + 1.5*temp2*cosip*sin2u
	xinc := o.incl + 1.5*temp2*cosip*sinip*cos2u
	mvt := rdotl - nm*temp1*lp.x1mth2*sin2u/g.XKE
	rvdot := rvdotl + nm*temp1*(lp.x1mth2*cos2u+1.5*lp.con41)/g.XKE

	// Orientation vectors.
	sinsu, cossu := math.Sincos(su)
	snod, cnod := math.Sincos(xnode)
	sini, cosi := math.Sincos(xinc)
	xmx := -snod * cosi
	xmy := cnod * cosi
	ux := xmx*sinsu + cnod*cossu
	uy := xmy*sinsu + snod*cossu
	uz := sini * sinsu
	vx := xmx*cossu - cnod*sinsu
	vy := xmy*cossu - snod*sinsu
	vz := sini * cossu

	mr := mrt * g.RadiusKm
	r = [3]float64{mr * ux, mr * uy, mr * uz}
	v = [3]float64{
		(mvt*ux + rvdot*vx) * vkmpersec,
		(mvt*uy + rvdot*vy) * vkmpersec,
		(mvt*uz + rvdot*vz) * vkmpersec,
	}

	for i := 0; i < 3; i++ {
		if !finite(r[i]) || !finite(v[i]) {
			return [3]float64{}, [3]float64{}, &Error{Code: CodeNonFinite, Minutes: t}
		}
	}
	if mrt < 1.0 {
		return r, v, &Error{Code: CodeSubOrbital, Minutes: t}
	}
	return r, v, nil
}

// PropagateJulian propagates to the two-part Julian date jd.
func (m *Model) PropagateJulian(jd epoch.Julian) (r, v [3]float64, err error) {
	return m.Propagate(jd.MinutesSince(m.epoch))
}

func finite(x float64) bool {
	return !math.IsNaN(x) && !math.IsInf(x, 0)
}
