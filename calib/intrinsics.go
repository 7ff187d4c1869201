// Package calib holds the fixed camera intrinsics record consumed by the
// rest of the odometry pipeline (pinhole projection, no distortion, since
// the pipeline only ever runs on rectified inputs). Modeled on
// rimage/transform.PinholeCameraIntrinsics in the teacher repo, trimmed to
// the fields §3 of the spec calls for.
package calib

import (
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
)

// Intrinsics are the fixed pinhole camera parameters for a rectified
// monocular stream. Distortion is intentionally absent; callers are
// expected to rectify upstream of this engine.
type Intrinsics struct {
	Width, Height int
	Fx, Fy        float64
	Cx, Cy        float64
}

// Validate reports an error if the intrinsics are not usable.
func (k Intrinsics) Validate() error {
	if k.Width <= 0 || k.Height <= 0 {
		return errors.Errorf("invalid image size (%d, %d)", k.Width, k.Height)
	}
	if k.Fx <= 0 || k.Fy <= 0 {
		return errors.Errorf("invalid focal length (fx=%v, fy=%v)", k.Fx, k.Fy)
	}
	return nil
}

// Project maps a 3D point in the camera frame to a pixel coordinate under
// the pinhole model. z must be positive; callers should check that before
// calling, Project does not.
func (k Intrinsics) Project(p r3.Vector) (u, v float64) {
	u = k.Fx*p.X/p.Z + k.Cx
	v = k.Fy*p.Y/p.Z + k.Cy
	return u, v
}

// Unproject maps a pixel coordinate plus a depth (z, meters, in the
// camera frame) back to a 3D point.
func (k Intrinsics) Unproject(u, v, z float64) r3.Vector {
	return r3.Vector{
		X: (u - k.Cx) * z / k.Fx,
		Y: (v - k.Cy) * z / k.Fy,
		Z: z,
	}
}

// ProjectionJacobian returns d(u,v)/d(x,y,z) at point p, the 2x3 Jacobian
// of Project evaluated at p, used by the motion refinement's Gauss-Newton
// normal equations.
func (k Intrinsics) ProjectionJacobian(p r3.Vector) [2][3]float64 {
	invZ := 1 / p.Z
	invZ2 := invZ * invZ
	return [2][3]float64{
		{k.Fx * invZ, 0, -k.Fx * p.X * invZ2},
		{0, k.Fy * invZ, -k.Fy * p.Y * invZ2},
	}
}
