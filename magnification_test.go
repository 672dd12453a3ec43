package focuspuller

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// TestMagnification_Floor tests that an optic never demagnifies.
func TestMagnification_Floor(t *testing.T) {
	assert.Equal(t, 1.0, Magnification(ReferenceFov), "Reference FOV should be exactly 1x")
	assert.Equal(t, 1.0, Magnification(50.0), "Wider than reference should clamp to 1x")
	assert.Equal(t, 1.0, Magnification(0), "Zero FOV should clamp to 1x")
	assert.Equal(t, 1.0, Magnification(-3.0), "Negative FOV should clamp to 1x")

	assert.InDelta(t, 2.0, Magnification(17.5), 1e-12, "Half the reference should be 2x")
	assert.InDelta(t, 6.087, Magnification(5.75), 0.001, "ACOG-class raw FOV should land near 6x")
}

// TestCorrectedFov_Identity tests that magnification 1 leaves the FOV alone.
func TestCorrectedFov_Identity(t *testing.T) {
	for _, base := range []float64{30, 55, 70, 90, 110} {
		assert.InDelta(t, base, CorrectedFov(base, 1), 1e-9,
			"m=1 should return the base FOV unchanged")
	}
}

// TestCorrectedFov_StrictlyDecreasing tests monotonicity in magnification.
func TestCorrectedFov_StrictlyDecreasing(t *testing.T) {
	for _, base := range []float64{40, 70, 100, 150} {
		previous := CorrectedFov(base, 1)
		for m := 1.5; m <= 12; m += 0.5 {
			current := CorrectedFov(base, m)
			assert.Less(t, current, previous,
				"Corrected FOV must strictly decrease as magnification rises (base %v, m %v)", base, m)
			assert.Greater(t, current, 0.0, "Corrected FOV must stay positive")
			previous = current
		}
	}
}

// TestCorrectedFov_BelowFloorClamped tests the m < 1 guard.
func TestCorrectedFov_BelowFloorClamped(t *testing.T) {
	assert.InDelta(t, CorrectedFov(70, 1), CorrectedFov(70, 0.25), 1e-12,
		"Sub-unity magnification should behave as 1x")
}

// TestScenario_AcogZoom walks the numbers for a 6x sight end to end:
// raw 5.75 degrees against the 35 degree reference, 70 degree base camera.
func TestScenario_AcogZoom(t *testing.T) {
	m := Magnification(5.75)
	assert.InDelta(t, 6.0870, m, 0.001, "35/5.75 should be a shade over 6x")

	corrected := CorrectedFov(70, m)
	assert.InDelta(t, 13.123, corrected, 0.01,
		"Half-angle tangent relation should land near 13.1 degrees")
}
