package depth

import (
	"math"

	"github.com/golang/geo/r3"

	"github.com/Simsdebims/fovis/calib"
)

// DepthImage is a Source backed by a per-pixel depth-in-meters image
// aligned with pyramid level 0. Depth at coarser levels is looked up by
// scaling (u, v) back to level-0 coordinates.
type DepthImage struct {
	Intrinsics calib.Intrinsics
	Width      int
	Height     int
	// Depth holds one float64 meters value per level-0 pixel, row-major.
	// Zero or negative entries mean "no depth".
	Depth []float64
	Sigma float64
}

// NewDepthImage allocates a DepthImage of the given level-0 size.
func NewDepthImage(intr calib.Intrinsics, width, height int, sigma float64) *DepthImage {
	return &DepthImage{
		Intrinsics: intr,
		Width:      width,
		Height:     height,
		Depth:      make([]float64, width*height),
		Sigma:      sigma,
	}
}

func (d *DepthImage) toLevel0(level int, u, v float64) (float64, float64) {
	scale := math.Pow(2, float64(level))
	return u * scale, v * scale
}

func (d *DepthImage) sampleDepth(u0, v0 float64) (float64, bool) {
	x := int(u0 + 0.5)
	y := int(v0 + 0.5)
	if x < 0 || x >= d.Width || y < 0 || y >= d.Height {
		return 0, false
	}
	z := d.Depth[y*d.Width+x]
	if z <= 0 {
		return 0, false
	}
	return z, true
}

// HasValidDepth implements Source.
func (d *DepthImage) HasValidDepth(level int, u, v float64) bool {
	u0, v0 := d.toLevel0(level, u, v)
	_, ok := d.sampleDepth(u0, v0)
	return ok
}

// XYZAt implements Source.
func (d *DepthImage) XYZAt(level int, u, v float64) (r3.Vector, bool) {
	u0, v0 := d.toLevel0(level, u, v)
	z, ok := d.sampleDepth(u0, v0)
	if !ok {
		return r3.Vector{}, false
	}
	return d.Intrinsics.Unproject(u0, v0, z), true
}

// RefineXYZ implements Source: re-samples depth at the refined pixel,
// falling back to refXYZ unchanged if the refined location has no
// depth.
func (d *DepthImage) RefineXYZ(level int, uRefined, vRefined float64, refXYZ r3.Vector) (r3.Vector, bool) {
	xyz, ok := d.XYZAt(level, uRefined, vRefined)
	if !ok {
		return refXYZ, false
	}
	return xyz, true
}

// SigmaRange implements Source.
func (d *DepthImage) SigmaRange() float64 { return d.Sigma }
