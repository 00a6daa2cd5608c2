package sgp4

import "fmt"

// Code identifies why propagation failed. Codes 1 through 6 keep the numbering
// of the reference SGP4 implementation.
type Code int

const (
	CodeMeanEccentricity      Code = 1 // mean eccentricity outside [-0.001, 1)
	CodeMeanMotion            Code = 2 // mean motion not positive
	CodePerturbedEccentricity Code = 3 // lunar-solar periodics pushed eccentricity outside [0, 1]
	CodeSemiLatusRectum       Code = 4 // semi-latus rectum negative
	CodeSubOrbitalEpoch       Code = 5 // perigee of the epoch elements below one earth radius
	CodeSubOrbital            Code = 6 // radius below one earth radius
	CodeNotConverged          Code = 7 // Kepler iteration did not converge
	CodeNonFinite             Code = 8 // NaN or infinite state vector
)

var codeText = map[Code]string{
	CodeMeanEccentricity:      "mean eccentricity out of range",
	CodeMeanMotion:            "mean motion not positive",
	CodePerturbedEccentricity: "perturbed eccentricity out of range",
	CodeSemiLatusRectum:       "semi-latus rectum negative",
	CodeSubOrbitalEpoch:       "epoch elements are sub-orbital",
	CodeSubOrbital:            "orbit decayed below earth radius",
	CodeNotConverged:          "kepler equation did not converge",
	CodeNonFinite:             "non-finite state vector",
}

// Error is a propagation failure at a given time since epoch.
type Error struct {
	Code    Code
	Minutes float64
}

func (e *Error) Error() string {
	text, ok := codeText[e.Code]
	if !ok {
		text = fmt.Sprintf("error code %d", int(e.Code))
	}
	return fmt.Sprintf("sgp4: %s at %.4f min", text, e.Minutes)
}

// Decayed reports whether the failure means the orbit no longer exists
// (re-entry or a collapsed mean orbit) as opposed to a numerical breakdown.
func (e *Error) Decayed() bool {
	switch e.Code {
	case CodeMeanEccentricity, CodeMeanMotion, CodeSemiLatusRectum, CodeSubOrbitalEpoch, CodeSubOrbital:
		return true
	}
	return false
}
