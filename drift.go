package focuspuller

import (
	"fmt"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
)

// DriftSupervisor compares captured reticle frames against blessed baseline
// frames. A small per-channel slack absorbs rounding noise from resampled
// edges; anything beyond it counts as drift.
type DriftSupervisor struct {
	baselineDir  string
	currentDir   string
	tolerance    float64 // Fraction of pixels allowed to drift
	channelSlack uint32  // Per-channel difference treated as noise
}

// NewDriftSupervisor creates a supervisor over a baseline directory and a
// working directory of captured frames.
func NewDriftSupervisor(baselineDir, currentDir string) *DriftSupervisor {
	return &DriftSupervisor{
		baselineDir:  baselineDir,
		currentDir:   currentDir,
		tolerance:    0.02,
		channelSlack: 8,
	}
}

// WithTolerance sets the fraction of pixels allowed to drift before
// validation fails. Returns the receiver for chaining.
func (ds *DriftSupervisor) WithTolerance(tolerance float64) *DriftSupervisor {
	ds.tolerance = tolerance
	return ds
}

// WithChannelSlack sets the per-channel color difference treated as noise.
// Returns the receiver for chaining.
func (ds *DriftSupervisor) WithChannelSlack(slack uint8) *DriftSupervisor {
	ds.channelSlack = uint32(slack)
	return ds
}

// ValidateSteadiness compares a captured frame against its baseline. On the
// first run the capture is blessed as the baseline and validation passes.
// When drift exceeds the tolerance, a highlighted diff image is written next
// to the capture and the returned error names it.
func (ds *DriftSupervisor) ValidateSteadiness(shotName string) error {
	baselinePath := filepath.Join(ds.baselineDir, shotName)
	currentPath := filepath.Join(ds.currentDir, shotName)

	if _, err := os.Stat(baselinePath); os.IsNotExist(err) {
		if err := ds.SetBaseline(shotName, currentPath); err != nil {
			return fmt.Errorf("failed to seed baseline: %w", err)
		}
		return nil
	}

	baseline, err := loadFrame(baselinePath)
	if err != nil {
		return fmt.Errorf("failed to load baseline frame: %w", err)
	}
	current, err := loadFrame(currentPath)
	if err != nil {
		return fmt.Errorf("failed to load current frame: %w", err)
	}

	drift := ds.CompareFrames(baseline, current)
	if drift > ds.tolerance {
		diffPath := filepath.Join(ds.currentDir, "drift_"+shotName)
		if err := ds.writeDriftImage(baseline, current, diffPath); err == nil {
			return fmt.Errorf("reticle drifted on %s: %.2f%% of pixels moved (tolerance %.2f%%), see %s",
				shotName, drift*100, ds.tolerance*100, diffPath)
		}
		return fmt.Errorf("reticle drifted on %s: %.2f%% of pixels moved (tolerance %.2f%%)",
			shotName, drift*100, ds.tolerance*100)
	}
	return nil
}

// SetBaseline blesses a captured frame as the new baseline for a shot.
func (ds *DriftSupervisor) SetBaseline(shotName, framePath string) error {
	if err := os.MkdirAll(ds.baselineDir, 0755); err != nil {
		return fmt.Errorf("failed to create baseline directory: %w", err)
	}

	source, err := os.Open(framePath)
	if err != nil {
		return fmt.Errorf("failed to open captured frame: %w", err)
	}
	defer source.Close()

	target, err := os.Create(filepath.Join(ds.baselineDir, shotName))
	if err != nil {
		return fmt.Errorf("failed to create baseline file: %w", err)
	}
	defer target.Close()

	if _, err := target.ReadFrom(source); err != nil {
		return fmt.Errorf("failed to copy baseline: %w", err)
	}
	return nil
}

// CompareFrames returns the fraction of pixels that differ beyond the
// per-channel slack. Mismatched dimensions count as full drift.
func (ds *DriftSupervisor) CompareFrames(baseline, current image.Image) float64 {
	bb := baseline.Bounds()
	cb := current.Bounds()
	if bb.Dx() != cb.Dx() || bb.Dy() != cb.Dy() {
		return 1.0
	}

	drifted := 0
	for y := 0; y < bb.Dy(); y++ {
		for x := 0; x < bb.Dx(); x++ {
			if ds.pixelDrifted(baseline.At(bb.Min.X+x, bb.Min.Y+y), current.At(cb.Min.X+x, cb.Min.Y+y)) {
				drifted++
			}
		}
	}
	return float64(drifted) / float64(bb.Dx()*bb.Dy())
}

func (ds *DriftSupervisor) pixelDrifted(a, b color.Color) bool {
	ar, ag, ab, aa := a.RGBA()
	br, bg, bb, ba := b.RGBA()

	// RGBA returns 16-bit channels, the slack is specified in 8-bit units.
	slack := ds.channelSlack << 8
	return channelDelta(ar, br) > slack ||
		channelDelta(ag, bg) > slack ||
		channelDelta(ab, bb) > slack ||
		channelDelta(aa, ba) > slack
}

func channelDelta(a, b uint32) uint32 {
	if a > b {
		return a - b
	}
	return b - a
}

// writeDriftImage renders the comparison with drifted pixels in red over a
// dimmed copy of the current frame.
func (ds *DriftSupervisor) writeDriftImage(baseline, current image.Image, path string) error {
	bounds := current.Bounds()
	diff := image.NewRGBA(bounds)

	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			if ds.pixelDrifted(baseline.At(x, y), current.At(x, y)) {
				diff.Set(x, y, color.RGBA{255, 0, 0, 255})
			} else {
				r, g, b, a := current.At(x, y).RGBA()
				diff.Set(x, y, color.RGBA{uint8(r >> 9), uint8(g >> 9), uint8(b >> 9), uint8(a >> 8)})
			}
		}
	}

	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create drift image: %w", err)
	}
	defer file.Close()
	return png.Encode(file, diff)
}

func loadFrame(path string) (image.Image, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	img, _, err := image.Decode(file)
	return img, err
}
