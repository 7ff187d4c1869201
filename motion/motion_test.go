package motion

import (
	"testing"

	"github.com/golang/geo/r3"
	"go.viam.com/test"

	"github.com/Simsdebims/fovis/calib"
	"github.com/Simsdebims/fovis/match"
	"github.com/Simsdebims/fovis/spatialmath"
)

func gridMatches(n int, pose spatialmath.Pose, intr calib.Intrinsics) []match.Match {
	var out []match.Match
	i := 0
	for row := 0; row < n; row++ {
		for col := 0; col < n; col++ {
			ref := r3.Vector{X: float64(col-n/2) * 0.1, Y: float64(row-n/2) * 0.1, Z: 2.0}
			cur := pose.Apply(ref)
			u, v := intr.Project(cur)
			out = append(out, match.Match{RefIndex: i, CurIndex: i, RefXYZ: ref, CurXYZ: cur, RefinedU: u, RefinedV: v})
			i++
		}
	}
	return out
}

func TestSelectInliersFindsConsistentGrid(t *testing.T) {
	intr := calib.Intrinsics{Width: 640, Height: 480, Fx: 500, Fy: 500, Cx: 320, Cy: 240}
	matches := gridMatches(6, spatialmath.Identity(), intr)
	inliers := SelectInliers(matches, DefaultCliqueOptions())
	test.That(t, len(inliers), test.ShouldEqual, len(matches))
}

func TestSelectInliersTooFewMatchesReturnsNil(t *testing.T) {
	matches := []match.Match{{RefXYZ: r3.Vector{}, CurXYZ: r3.Vector{}}}
	test.That(t, SelectInliers(matches, DefaultCliqueOptions()), test.ShouldBeNil)
}

func TestSelectInliersExcludesOutlier(t *testing.T) {
	intr := calib.Intrinsics{Width: 640, Height: 480, Fx: 500, Fy: 500, Cx: 320, Cy: 240}
	matches := gridMatches(5, spatialmath.Identity(), intr)
	// corrupt one match's current point so its pairwise distances to
	// everything else are inconsistent with a rigid motion.
	matches[0].CurXYZ = matches[0].CurXYZ.Add(r3.Vector{X: 5, Y: 5, Z: 5})
	inliers := SelectInliers(matches, DefaultCliqueOptions())
	test.That(t, len(inliers) < len(matches), test.ShouldBeTrue)
}

func TestEstimateIdentityMotionOnStaticScene(t *testing.T) {
	intr := calib.Intrinsics{Width: 640, Height: 480, Fx: 500, Fy: 500, Cx: 320, Cy: 240}
	matches := gridMatches(6, spatialmath.Identity(), intr)
	result := Estimate(matches, intr, DefaultCliqueOptions(), DefaultRefineOptions())
	test.That(t, result.Valid, test.ShouldBeTrue)
	test.That(t, result.Motion.Translation.Norm(), test.ShouldBeLessThan, 0.05)
	test.That(t, result.MeanError, test.ShouldBeLessThan, 1.0)
}

func TestEstimateTooFewMatchesIsInvalid(t *testing.T) {
	intr := calib.Intrinsics{Width: 640, Height: 480, Fx: 500, Fy: 500, Cx: 320, Cy: 240}
	matches := gridMatches(2, spatialmath.Identity(), intr)
	result := Estimate(matches, intr, DefaultCliqueOptions(), DefaultRefineOptions())
	test.That(t, result.Valid, test.ShouldBeFalse)
}
