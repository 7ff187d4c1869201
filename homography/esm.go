// Package homography implements the coarse-level Efficient Second-order
// Minimization (ESM) homography tracker of §4.4, used to derive a 3-DoF
// rotation prior between two pyramid levels before the full motion
// estimator runs.
package homography

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/num/quat"

	"github.com/Simsdebims/fovis/pyramid"
	"github.com/Simsdebims/fovis/spatialmath"
)

// Tracker runs the ESM homography alignment between two grayscale images
// of identical size, at some coarse pyramid level.
type Tracker struct {
	MaxIterations int
	Epsilon       float64 // stop when the RMS residual changes by less than this
}

// NewTracker returns a Tracker configured per §4.4's defaults (up to 8
// iterations, small residual-change epsilon).
func NewTracker() *Tracker {
	return &Tracker{MaxIterations: 8, Epsilon: 1e-3}
}

// Track estimates the 3x3 homography H mapping a point in prev's
// coordinate frame to the corresponding point in cur, by ESM alignment.
// It returns (H, true) on success, or (nil, false) if the images differ
// in size, are too small, or fewer than 50 pixels warp inside the image.
// A blank image is not rejected: its zero residual leaves H at identity.
func (t *Tracker) Track(prev, cur *pyramid.Gray) (*mat.Dense, bool) {
	if prev.Width != cur.Width || prev.Height != cur.Height {
		return nil, false
	}
	H := identity3()

	const margin = 2
	width, height := prev.Width, prev.Height
	if width <= 2*margin || height <= 2*margin {
		return nil, false
	}

	prevRMS := math.Inf(1)
	for iter := 0; iter < t.MaxIterations; iter++ {
		A := mat.NewDense(8, 8, nil)
		b := mat.NewVecDense(8, nil)
		var sumSq float64
		var n int

		for y := margin; y < height-margin; y++ {
			for x := margin; x < width-margin; x++ {
				fx, fy := float64(x), float64(y)
				wx, wy, ok := applyHomography(H, fx, fy)
				if !ok || wx < 1 || wx >= float64(width-1) || wy < 1 || wy >= float64(height-1) {
					continue
				}

				warpedVal, warpedGx, warpedGy := sampleWithGradient(cur, wx, wy)
				prevVal := float64(prev.At(x, y))
				prevGx, prevGy := centralGradient(prev, x, y)

				residual := prevVal - warpedVal

				var jwx, jwy [8]float64
				warpJacobian(fx, fy, &jwx, &jwy)

				var jrow [8]float64
				for k := 0; k < 8; k++ {
					jrow[k] = 0.5 * (prevGx*jwx[k] + prevGy*jwy[k] + warpedGx*jwx[k] + warpedGy*jwy[k])
				}

				for r := 0; r < 8; r++ {
					b.SetVec(r, b.AtVec(r)+jrow[r]*residual)
					for c := 0; c < 8; c++ {
						A.Set(r, c, A.At(r, c)+jrow[r]*jrow[c])
					}
				}
				sumSq += residual * residual
				n++
			}
		}

		if n < 50 {
			return nil, false
		}
		rms := math.Sqrt(sumSq / float64(n))
		if math.Abs(prevRMS-rms) < t.Epsilon {
			return H, true
		}
		prevRMS = rms

		for k := 0; k < 8; k++ {
			A.Set(k, k, A.At(k, k)+1e-6)
		}
		var delta mat.VecDense
		if err := delta.SolveVec(A, b); err != nil {
			return H, true // keep best estimate so far rather than failing outright
		}

		dH := deltaHomography(&delta)
		var next mat.Dense
		next.Mul(H, dH)
		H = &next
	}
	return H, true
}

func identity3() *mat.Dense {
	return mat.NewDense(3, 3, []float64{1, 0, 0, 0, 1, 0, 0, 0, 1})
}

// applyHomography maps (x, y) through H, returning false if the
// homogeneous denominator is too close to zero.
func applyHomography(H *mat.Dense, x, y float64) (wx, wy float64, ok bool) {
	px := H.At(0, 0)*x + H.At(0, 1)*y + H.At(0, 2)
	py := H.At(1, 0)*x + H.At(1, 1)*y + H.At(1, 2)
	pw := H.At(2, 0)*x + H.At(2, 1)*y + H.At(2, 2)
	if math.Abs(pw) < 1e-9 {
		return 0, 0, false
	}
	return px / pw, py / pw, true
}

// warpJacobian fills the Jacobian of the warped (x, y) coordinates with
// respect to the 8 homography parameters p, evaluated at p = 0 (identity),
// for H = [[1+p0,p1,p2],[p3,1+p4,p5],[p6,p7,1]].
func warpJacobian(x, y float64, jx, jy *[8]float64) {
	jx[0], jx[1], jx[2] = x, y, 1
	jx[3], jx[4], jx[5] = 0, 0, 0
	jx[6], jx[7] = -x*x, -x*y

	jy[0], jy[1], jy[2] = 0, 0, 0
	jy[3], jy[4], jy[5] = x, y, 1
	jy[6], jy[7] = -x*y, -y*y
}

// deltaHomography builds the 3x3 homography corresponding to an 8-vector
// parameter increment.
func deltaHomography(p *mat.VecDense) *mat.Dense {
	return mat.NewDense(3, 3, []float64{
		1 + p.AtVec(0), p.AtVec(1), p.AtVec(2),
		p.AtVec(3), 1 + p.AtVec(4), p.AtVec(5),
		p.AtVec(6), p.AtVec(7), 1,
	})
}

// sampleWithGradient bilinearly samples g at (x, y) and estimates the
// image gradient there via finite differences of bilinear samples.
func sampleWithGradient(g *pyramid.Gray, x, y float64) (val, gx, gy float64) {
	const h = 1.0
	val = bilinearSample(g, x, y)
	gx = (bilinearSample(g, x+h, y) - bilinearSample(g, x-h, y)) / (2 * h)
	gy = (bilinearSample(g, x, y+h) - bilinearSample(g, x, y-h)) / (2 * h)
	return val, gx, gy
}

func bilinearSample(g *pyramid.Gray, x, y float64) float64 {
	x0, y0 := int(math.Floor(x)), int(math.Floor(y))
	fx, fy := x-float64(x0), y-float64(y0)
	x1, y1 := x0+1, y0+1

	clamp := func(v, max int) int {
		if v < 0 {
			return 0
		}
		if v > max {
			return max
		}
		return v
	}
	x0, x1 = clamp(x0, g.Width-1), clamp(x1, g.Width-1)
	y0, y1 = clamp(y0, g.Height-1), clamp(y1, g.Height-1)

	v00 := float64(g.At(x0, y0))
	v10 := float64(g.At(x1, y0))
	v01 := float64(g.At(x0, y1))
	v11 := float64(g.At(x1, y1))
	top := v00*(1-fx) + v10*fx
	bot := v01*(1-fx) + v11*fx
	return top*(1-fy) + bot*fy
}

// centralGradient computes the central-difference gradient of g at
// integer pixel (x, y), clamping at the border.
func centralGradient(g *pyramid.Gray, x, y int) (gx, gy float64) {
	clampX := func(v int) int {
		if v < 0 {
			return 0
		}
		if v >= g.Width {
			return g.Width - 1
		}
		return v
	}
	clampY := func(v int) int {
		if v < 0 {
			return 0
		}
		if v >= g.Height {
			return g.Height - 1
		}
		return v
	}
	gx = (float64(g.At(clampX(x+1), y)) - float64(g.At(clampX(x-1), y))) / 2
	gy = (float64(g.At(x, clampY(y+1))) - float64(g.At(x, clampY(y-1)))) / 2
	return gx, gy
}

// ScaleToFullResolution rescales a homography estimated at pyramid level
// L back to level 0 by H = S*H_L*S^-1 with S = diag(2^L, 2^L, 1), per
// §4.4. The fixed-size 3x3 multiply is done via mathgl rather than
// gonum's general dense matrices, which are reserved for the
// variable-size normal-equations solves elsewhere in this package and
// in the motion estimator.
func ScaleToFullResolution(hl *mat.Dense, level int) *mat.Dense {
	scale := math.Pow(2, float64(level))
	h := mat3FromDense(hl)
	s := mgl64.Mat3{scale, 0, 0, 0, scale, 0, 0, 0, 1}
	sInv := mgl64.Mat3{1 / scale, 0, 0, 0, 1 / scale, 0, 0, 0, 1}
	out := s.Mul3(h).Mul3(sInv)
	return denseFromMat3(out)
}

// mat3FromDense converts a 3x3 gonum Dense to a column-major mathgl
// Mat3.
func mat3FromDense(d *mat.Dense) mgl64.Mat3 {
	return mgl64.Mat3{
		d.At(0, 0), d.At(1, 0), d.At(2, 0),
		d.At(0, 1), d.At(1, 1), d.At(2, 1),
		d.At(0, 2), d.At(1, 2), d.At(2, 2),
	}
}

// denseFromMat3 converts a column-major mathgl Mat3 back to a gonum
// Dense.
func denseFromMat3(m mgl64.Mat3) *mat.Dense {
	return mat.NewDense(3, 3, []float64{
		m[0], m[3], m[6],
		m[1], m[4], m[7],
		m[2], m[5], m[8],
	})
}

// RotationPrior extracts the §4.4 Euler-angle rotation estimate from a
// full-resolution homography H and the horizontal focal length fx,
// returning the corresponding unit quaternion. The fx-only extraction is
// a documented limitation (see SPEC_FULL.md) that is unverified when
// fx != fy.
func RotationPrior(h *mat.Dense, fx float64) quat.Number {
	roll := math.Asin(clampUnit(h.At(1, 2) / fx))
	pitch := -math.Asin(clampUnit(h.At(0, 2) / fx))
	yaw := -math.Atan2(h.At(1, 0), h.At(0, 0))
	return spatialmath.EulerZYXToQuaternion(roll, pitch, yaw)
}

func clampUnit(v float64) float64 {
	if v > 1 {
		return 1
	}
	if v < -1 {
		return -1
	}
	return v
}

// Identity returns the identity rotation prior, used when homography
// initialization is disabled or fails.
func Identity() quat.Number {
	return quat.Number{Real: 1}
}

// Validate reports an error if H has a non-finite or degenerate entry,
// used by callers deciding whether to fall back to Identity().
func Validate(h *mat.Dense) error {
	for r := 0; r < 3; r++ {
		for c := 0; c < 3; c++ {
			v := h.At(r, c)
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return errors.Errorf("homography entry (%d,%d) is non-finite", r, c)
			}
		}
	}
	return nil
}
