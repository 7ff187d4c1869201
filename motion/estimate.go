package motion

import (
	"math"

	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/mat"

	"github.com/Simsdebims/fovis/calib"
	"github.com/Simsdebims/fovis/match"
	"github.com/Simsdebims/fovis/spatialmath"
)

// RefineOptions configures stage 2.
type RefineOptions struct {
	MaxReprojectionError    float64 // inlier-max-reprojection-error, px, default 1.5
	MaxMeanReprojectionError float64 // max-mean-reprojection-error, px, default 10.0
	MaxIterations            int
}

// DefaultRefineOptions returns §6's stage-2 defaults.
func DefaultRefineOptions() RefineOptions {
	return RefineOptions{
		MaxReprojectionError:     1.5,
		MaxMeanReprojectionError: 10.0,
		MaxIterations:            20,
	}
}

// Result is the outcome of motion estimation against a reference frame.
type Result struct {
	Motion      spatialmath.Pose
	Covariance  *mat.Dense // 6x6
	InlierCount int
	MeanError   float64
	Valid       bool
}

// Estimate runs the full §4.6 pipeline: clique inlier selection followed
// by Tukey-biweight Levenberg-Marquardt refinement, prune-and-refit
// once, then validity gating.
func Estimate(matches []match.Match, intr calib.Intrinsics, cliqueOpts CliqueOptions, refineOpts RefineOptions) Result {
	cliqueIdx := SelectInliers(matches, cliqueOpts)
	if cliqueIdx == nil {
		return Result{Valid: false}
	}
	subset := selectMatches(matches, cliqueIdx)

	motion, cov, meanErr, ok := refine(subset, intr, refineOpts)
	if !ok {
		return Result{Valid: false}
	}

	pruned := pruneByReprojection(subset, intr, motion, refineOpts.MaxReprojectionError)
	if len(pruned) >= cliqueOpts.MinFeaturesForEstimate && len(pruned) < len(subset) {
		motion2, cov2, meanErr2, ok2 := refine(pruned, intr, refineOpts)
		if ok2 {
			motion, cov, meanErr = motion2, cov2, meanErr2
			subset = pruned
		}
	}

	valid := len(subset) >= cliqueOpts.MinFeaturesForEstimate &&
		meanErr <= refineOpts.MaxMeanReprojectionError &&
		covarianceFinite(cov)

	return Result{
		Motion:      motion,
		Covariance:  cov,
		InlierCount: len(subset),
		MeanError:   meanErr,
		Valid:       valid,
	}
}

func selectMatches(matches []match.Match, idx []int) []match.Match {
	out := make([]match.Match, len(idx))
	for i, j := range idx {
		out[i] = matches[j]
	}
	return out
}

// refine runs Levenberg-Marquardt over a 6-vector motion parameter
// (translation, then so(3) rotation vector), minimizing the
// Tukey-biweight-weighted reprojection error of §4.6's stage 2.
func refine(matches []match.Match, intr calib.Intrinsics, opts RefineOptions) (spatialmath.Pose, *mat.Dense, float64, bool) {
	if len(matches) == 0 {
		return spatialmath.Identity(), nil, math.Inf(1), false
	}

	params := mat.NewVecDense(6, nil) // tx,ty,tz,wx,wy,wz, relative to identity
	pose := spatialmath.Identity()

	lambda := 1e-3
	prevCost := math.Inf(1)

	for iter := 0; iter < opts.MaxIterations; iter++ {
		A, b, cost, weightedN := buildNormalEquations(matches, intr, pose, opts.MaxReprojectionError)
		if weightedN == 0 {
			return pose, nil, math.Inf(1), false
		}

		improved := false
		for attempt := 0; attempt < 10; attempt++ {
			damped := mat.NewDense(6, 6, nil)
			damped.CloneFrom(A)
			for k := 0; k < 6; k++ {
				damped.Set(k, k, damped.At(k, k)*(1+lambda))
			}
			var delta mat.VecDense
			if err := delta.SolveVec(damped, b); err != nil {
				lambda *= 10
				continue
			}
			candidate := composeDelta(pose, &delta)
			_, _, newCost, n2 := buildNormalEquations(matches, intr, candidate, opts.MaxReprojectionError)
			if n2 > 0 && newCost < cost {
				pose = candidate
				lambda = math.Max(lambda/10, 1e-8)
				improved = true
				break
			}
			lambda *= 10
		}
		if !improved {
			break
		}
		if math.Abs(prevCost-cost) < 1e-6 {
			break
		}
		prevCost = cost
	}

	A, _, _, n := buildNormalEquations(matches, intr, pose, opts.MaxReprojectionError)
	if n == 0 {
		return pose, nil, math.Inf(1), false
	}
	meanErr, count := meanReprojectionError(matches, intr, pose)
	if count == 0 {
		return pose, nil, math.Inf(1), false
	}

	cov := covarianceFromHessian(A, meanErr, n)
	_ = params
	return pose, cov, meanErr, true
}

// buildNormalEquations accumulates the 6x6 Gauss-Newton normal
// equations (J^T W J, J^T W r) for the current pose estimate, with
// per-residual Tukey-biweight weights, and returns the weighted cost
// sum and the number of residuals that participated.
func buildNormalEquations(matches []match.Match, intr calib.Intrinsics, pose spatialmath.Pose, cutoff float64) (*mat.Dense, *mat.VecDense, float64, int) {
	A := mat.NewDense(6, 6, nil)
	b := mat.NewVecDense(6, nil)
	var cost float64
	n := 0

	for _, m := range matches {
		p := pose.Apply(m.RefXYZ)
		if p.Z <= 0 {
			continue
		}
		u, v := intr.Project(p)
		ru := u - m.RefinedU
		rv := v - m.RefinedV
		errNorm := math.Sqrt(ru*ru + rv*rv)
		w := tukeyWeight(errNorm, cutoff)
		if w <= 0 {
			continue
		}

		jp := intr.ProjectionJacobian(p)
		// d(p)/d(params): translation is identity, rotation via
		// cross-product generator (-[p]x) since p = R*refXYZ + t and
		// d(R*x)/d(omega) = -[R*x]_x for a left-multiplicative so(3)
		// perturbation about the current pose.
		var jacobian [2][6]float64
		skew := crossGenerator(p.Sub(pose.Translation))
		for row := 0; row < 2; row++ {
			for col := 0; col < 3; col++ {
				jacobian[row][col] = jp[row][col] // translation columns
			}
			for col := 0; col < 3; col++ {
				var sum float64
				for k := 0; k < 3; k++ {
					sum += jp[row][k] * skew[k][col]
				}
				jacobian[row][3+col] = -sum
			}
		}

		residual := [2]float64{ru, rv}
		for r := 0; r < 6; r++ {
			b.SetVec(r, b.AtVec(r)-w*(jacobian[0][r]*residual[0]+jacobian[1][r]*residual[1]))
			for c := 0; c < 6; c++ {
				A.Set(r, c, A.At(r, c)+w*(jacobian[0][r]*jacobian[0][c]+jacobian[1][r]*jacobian[1][c]))
			}
		}
		cost += w * errNorm * errNorm
		n++
	}
	return A, b, cost, n
}

// crossGenerator returns the skew-symmetric cross-product matrix [v]x.
func crossGenerator(v r3.Vector) [3][3]float64 {
	return [3][3]float64{
		{0, -v.Z, v.Y},
		{v.Z, 0, -v.X},
		{-v.Y, v.X, 0},
	}
}

// tukeyWeight is the Tukey-biweight robust weight for a residual norm,
// zero beyond the cutoff.
func tukeyWeight(r, cutoff float64) float64 {
	if r >= cutoff {
		return 0
	}
	t := r / cutoff
	w := 1 - t*t
	return w * w
}

// composeDelta applies a 6-vector increment (translation, so(3)
// rotation vector) to pose, composing on the left.
func composeDelta(pose spatialmath.Pose, delta *mat.VecDense) spatialmath.Pose {
	dt := r3.Vector{X: delta.AtVec(0), Y: delta.AtVec(1), Z: delta.AtVec(2)}
	dw := r3.Vector{X: delta.AtVec(3), Y: delta.AtVec(4), Z: delta.AtVec(5)}
	dq := spatialmath.ExpSO3(dw)
	deltaPose := spatialmath.NewPose(dt, dq)
	return spatialmath.Compose(deltaPose, pose)
}

func meanReprojectionError(matches []match.Match, intr calib.Intrinsics, pose spatialmath.Pose) (float64, int) {
	var sum float64
	n := 0
	for _, m := range matches {
		p := pose.Apply(m.RefXYZ)
		if p.Z <= 0 {
			continue
		}
		u, v := intr.Project(p)
		du := u - m.RefinedU
		dv := v - m.RefinedV
		sum += math.Sqrt(du*du + dv*dv)
		n++
	}
	if n == 0 {
		return math.Inf(1), 0
	}
	return sum / float64(n), n
}

// pruneByReprojection drops matches whose reprojection error under
// motion exceeds cutoff, per §4.6's "prune matches... re-fit once".
func pruneByReprojection(matches []match.Match, intr calib.Intrinsics, motion spatialmath.Pose, cutoff float64) []match.Match {
	var out []match.Match
	for _, m := range matches {
		p := motion.Apply(m.RefXYZ)
		if p.Z <= 0 {
			continue
		}
		u, v := intr.Project(p)
		du := u - m.RefinedU
		dv := v - m.RefinedV
		if math.Sqrt(du*du+dv*dv) <= cutoff {
			out = append(out, m)
		}
	}
	return out
}

// covarianceFromHessian computes (J^T W J)^-1 scaled by the residual
// variance, per §4.6.
func covarianceFromHessian(hessian *mat.Dense, meanErr float64, n int) *mat.Dense {
	var inv mat.Dense
	if err := inv.Inverse(hessian); err != nil {
		return nil
	}
	variance := meanErr * meanErr
	inv.Scale(variance, &inv)
	return &inv
}

func covarianceFinite(cov *mat.Dense) bool {
	if cov == nil {
		return false
	}
	r, c := cov.Dims()
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			v := cov.At(i, j)
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return false
			}
		}
	}
	return true
}
