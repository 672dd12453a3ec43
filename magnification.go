package focuspuller

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"
)

// ReferenceFov is the fixed reference angle, in degrees, that raw scope FOV
// values are measured against. A scope whose camera sees 35 degrees has 1x
// magnification; one that sees 5.75 degrees is a shade over 6x.
const ReferenceFov = 35.0

// Magnification converts a raw scope FOV (degrees) into a magnification
// factor, floored at 1 - an optic never demagnifies the world.
func Magnification(rawFov float64) float64 {
	if rawFov <= 0 {
		return 1
	}
	m := ReferenceFov / rawFov
	if m < 1 {
		return 1
	}
	return m
}

// CorrectedFov computes the camera FOV (degrees) that renders the world at
// the given magnification, from the camera's unmagnified base FOV (degrees).
//
// The half-angle tangent relation is exact:
//
//	corrected = 2 * atan(tan(base/2) / m)
//
// A linear approximation here drifts visibly at high magnification - the
// reticle and the world stop agreeing about where the target is - so the
// full relation is kept. Degrees at the boundary, radians inside.
func CorrectedFov(baseFov, magnification float64) float64 {
	if magnification < 1 {
		magnification = 1
	}
	half := mgl64.DegToRad(baseFov) / 2
	corrected := 2 * math.Atan(math.Tan(half)/magnification)
	return mgl64.RadToDeg(corrected)
}
