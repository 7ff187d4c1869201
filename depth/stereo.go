package depth

import (
	"math"

	"github.com/golang/geo/r3"

	"github.com/Simsdebims/fovis/calib"
)

// Stereo is a Source backed by a dense disparity map (pixels, level-0
// resolution) plus a stereo baseline, per §6's "stereo disparity
// backend" variant. depth = fx*baseline/disparity.
type Stereo struct {
	Intrinsics calib.Intrinsics
	Baseline   float64 // meters
	Width      int
	Height     int
	// Disparity holds one float64 pixel-disparity value per level-0
	// pixel, row-major. Non-positive entries mean "no disparity".
	Disparity   []float64
	MaxDisparityError float64
	Sigma       float64
}

// NewStereo allocates a Stereo source of the given level-0 size.
func NewStereo(intr calib.Intrinsics, baseline float64, width, height int, sigma float64) *Stereo {
	return &Stereo{
		Intrinsics: intr,
		Baseline:   baseline,
		Width:      width,
		Height:     height,
		Disparity:  make([]float64, width*height),
		Sigma:      sigma,
	}
}

func (s *Stereo) toLevel0(level int, u, v float64) (float64, float64) {
	scale := math.Pow(2, float64(level))
	return u * scale, v * scale
}

func (s *Stereo) sampleDisparity(u0, v0 float64) (float64, bool) {
	x := int(u0 + 0.5)
	y := int(v0 + 0.5)
	if x < 0 || x >= s.Width || y < 0 || y >= s.Height {
		return 0, false
	}
	disp := s.Disparity[y*s.Width+x]
	if disp <= 0 {
		return 0, false
	}
	return disp, true
}

func (s *Stereo) depthFromDisparity(disp float64) float64 {
	return s.Intrinsics.Fx * s.Baseline / disp
}

// HasValidDepth implements Source.
func (s *Stereo) HasValidDepth(level int, u, v float64) bool {
	u0, v0 := s.toLevel0(level, u, v)
	_, ok := s.sampleDisparity(u0, v0)
	return ok
}

// XYZAt implements Source.
func (s *Stereo) XYZAt(level int, u, v float64) (r3.Vector, bool) {
	u0, v0 := s.toLevel0(level, u, v)
	disp, ok := s.sampleDisparity(u0, v0)
	if !ok {
		return r3.Vector{}, false
	}
	z := s.depthFromDisparity(disp)
	return s.Intrinsics.Unproject(u0, v0, z), true
}

// RefineXYZ implements Source.
func (s *Stereo) RefineXYZ(level int, uRefined, vRefined float64, refXYZ r3.Vector) (r3.Vector, bool) {
	xyz, ok := s.XYZAt(level, uRefined, vRefined)
	if !ok {
		return refXYZ, false
	}
	return xyz, true
}

// SigmaRange implements Source.
func (s *Stereo) SigmaRange() float64 { return s.Sigma }
