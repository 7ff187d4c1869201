// Package depth implements the DepthSource capability set of §6: a
// polymorphic interface over per-pixel 3D lookup, with a depth-image and
// a stereo-disparity backend, treated identically by the rest of the
// pipeline (§9's "polymorphism over depth sources" note).
package depth

import "github.com/golang/geo/r3"

// Source is the capability set a depth backend exposes to the feature
// pipeline. level and (u, v) address a pyramid level and a pixel within
// it; u, v may be fractional.
type Source interface {
	// HasValidDepth reports whether a 3D point can be produced at (u, v)
	// on the given pyramid level.
	HasValidDepth(level int, u, v float64) bool

	// XYZAt returns the 3D point in the camera frame at (u, v) on level,
	// or ok=false if no depth is available there.
	XYZAt(level int, u, v float64) (xyz r3.Vector, ok bool)

	// RefineXYZ re-derives a 3D point after a keypoint has been
	// subpixel-refined to (uRefined, vRefined), given the original
	// (pre-refinement) 3D point refXYZ as a consistency hint.
	RefineXYZ(level int, uRefined, vRefined float64, refXYZ r3.Vector) (xyz r3.Vector, ok bool)

	// SigmaRange reports an uncertainty hint (in pixels) used to scale
	// the matcher's search window.
	SigmaRange() float64
}
