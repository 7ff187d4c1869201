// Package spatialmath provides the SE(3)/SO(3) machinery the odometry
// pipeline needs: rigid pose composition, the so(3) exponential/logarithm
// maps used to parameterize motion refinement, and quaternion-to-rotation-
// matrix conversion (there is no matrix-to-quaternion conversion). It plays the same role here that spatialmath plays
// in the teacher repo, trimmed to exactly what frame-to-frame visual
// odometry needs.
package spatialmath

import (
	"math"

	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/num/quat"
)

// Pose is a rigid-body transform: a rotation followed by a translation.
// Pose.Apply(v) = Rotation*v + Translation.
type Pose struct {
	Translation r3.Vector
	Rotation    quat.Number
}

// Identity returns the pose with zero translation and no rotation.
func Identity() Pose {
	return Pose{r3.Vector{}, quat.Number{Real: 1}}
}

// NewPose builds a pose from a translation and a (not necessarily
// normalized) quaternion; the quaternion is normalized on construction.
func NewPose(t r3.Vector, q quat.Number) Pose {
	return Pose{t, normalize(q)}
}

// Apply transforms v from this pose's child frame into its parent frame.
func (p Pose) Apply(v r3.Vector) r3.Vector {
	return RotateVector(p.Rotation, v).Add(p.Translation)
}

// Inverse returns the pose such that Compose(p, p.Inverse()) is Identity.
func (p Pose) Inverse() Pose {
	qi := quat.Conj(p.Rotation)
	ti := RotateVector(qi, p.Translation).Mul(-1)
	return Pose{ti, qi}
}

// Compose returns the pose equivalent to applying b's transform and then
// a's: Compose(a, b).Apply(v) == a.Apply(b.Apply(v)).
func Compose(a, b Pose) Pose {
	return Pose{
		Translation: RotateVector(a.Rotation, b.Translation).Add(a.Translation),
		Rotation:    normalize(quat.Mul(a.Rotation, b.Rotation)),
	}
}

// AlmostEqual reports whether two poses agree within the given
// translation (meters) and rotation (radians, via the angle of the
// relative quaternion) tolerances.
func (p Pose) AlmostEqual(q Pose, transTol, rotTol float64) bool {
	if p.Translation.Sub(q.Translation).Norm() > transTol {
		return false
	}
	rel := quat.Mul(quat.Conj(p.Rotation), q.Rotation)
	_, angle := AxisAngle(rel)
	return math.Abs(angle) <= rotTol
}

func normalize(q quat.Number) quat.Number {
	n := math.Sqrt(q.Real*q.Real + q.Imag*q.Imag + q.Jmag*q.Jmag + q.Kmag*q.Kmag)
	if n == 0 {
		return quat.Number{Real: 1}
	}
	return quat.Scale(1/n, q)
}
