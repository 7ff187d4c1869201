package spatialmath

import (
	"math"

	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/num/quat"
)

// RotateVector rotates v by the unit quaternion q.
func RotateVector(q quat.Number, v r3.Vector) r3.Vector {
	p := quat.Number{Imag: v.X, Jmag: v.Y, Kmag: v.Z}
	rotated := quat.Mul(quat.Mul(q, p), quat.Conj(q))
	return r3.Vector{X: rotated.Imag, Y: rotated.Jmag, Z: rotated.Kmag}
}

// RotationMatrix returns the 3x3 rotation matrix equivalent to q.
func RotationMatrix(q quat.Number) *mat.Dense {
	w, x, y, z := q.Real, q.Imag, q.Jmag, q.Kmag
	n := w*w + x*x + y*y + z*z
	if n == 0 {
		return mat.NewDense(3, 3, []float64{1, 0, 0, 0, 1, 0, 0, 0, 1})
	}
	s := 2 / n
	wx, wy, wz := s*w*x, s*w*y, s*w*z
	xx, xy, xz := s*x*x, s*x*y, s*x*z
	yy, yz, zz := s*y*y, s*y*z, s*z*z
	return mat.NewDense(3, 3, []float64{
		1 - (yy + zz), xy - wz, xz + wy,
		xy + wz, 1 - (xx + zz), yz - wx,
		xz - wy, yz + wx, 1 - (xx + yy),
	})
}

// AxisAngle decomposes a unit quaternion into a rotation axis and angle
// (radians). The axis is undefined (returned as the zero vector) for a
// near-identity quaternion.
func AxisAngle(q quat.Number) (axis r3.Vector, angle float64) {
	q = normalize(q)
	imagNorm := math.Sqrt(q.Imag*q.Imag + q.Jmag*q.Jmag + q.Kmag*q.Kmag)
	angle = 2 * math.Atan2(imagNorm, q.Real)
	if imagNorm < 1e-12 {
		return r3.Vector{}, angle
	}
	return r3.Vector{X: q.Imag / imagNorm, Y: q.Jmag / imagNorm, Z: q.Kmag / imagNorm}, angle
}

// ExpSO3 is the so(3) exponential map: it converts a rotation vector
// (axis scaled by angle, radians) to the equivalent unit quaternion. Used
// to turn an incremental 3-vector rotation update from Levenberg-Marquardt
// back into a quaternion.
func ExpSO3(w r3.Vector) quat.Number {
	angle := w.Norm()
	if angle < 1e-9 {
		// first-order Taylor expansion avoids a 0/0 in the axis normalization.
		return normalize(quat.Number{Real: 1, Imag: w.X / 2, Jmag: w.Y / 2, Kmag: w.Z / 2})
	}
	half := angle / 2
	s := math.Sin(half) / angle
	return quat.Number{Real: math.Cos(half), Imag: w.X * s, Jmag: w.Y * s, Kmag: w.Z * s}
}

// LogSO3 is the so(3) logarithm map, the inverse of ExpSO3.
func LogSO3(q quat.Number) r3.Vector {
	axis, angle := AxisAngle(q)
	return axis.Mul(angle)
}

// EulerZYXToQuaternion builds a unit quaternion from roll/pitch/yaw
// (radians), applied intrinsically as yaw about Z, then pitch about the
// new Y, then roll about the new X (the standard aerospace Tait-Bryan
// Z-Y'-X'' convention).
func EulerZYXToQuaternion(roll, pitch, yaw float64) quat.Number {
	cr, sr := math.Cos(roll/2), math.Sin(roll/2)
	cp, sp := math.Cos(pitch/2), math.Sin(pitch/2)
	cy, sy := math.Cos(yaw/2), math.Sin(yaw/2)
	return normalize(quat.Number{
		Real: cr*cp*cy + sr*sp*sy,
		Imag: sr*cp*cy - cr*sp*sy,
		Jmag: cr*sp*cy + sr*cp*sy,
		Kmag: cr*cp*sy - sr*sp*cy,
	})
}
