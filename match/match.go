// Package match implements the feature matcher of §4.5: candidate
// generation within a search window around a projected reference point,
// mutual-best descriptor matching, and subpixel Gauss-Newton refinement.
package match

import (
	"math"

	"github.com/golang/geo/r3"

	"github.com/Simsdebims/fovis/calib"
	"github.com/Simsdebims/fovis/depth"
	"github.com/Simsdebims/fovis/descriptor"
	"github.com/Simsdebims/fovis/pyramid"
	"github.com/Simsdebims/fovis/spatialmath"
)

// Candidate is one reference keypoint's index, 3D point and descriptor,
// per the §3 FeatureMatchCandidate pool referenced by OdometryFrame. It
// holds no current-frame keypoints.
type Candidate struct {
	RefIndex int
	RefXYZ   r3.Vector
	RefDesc  []byte
}

// Match is one accepted ref<->cur correspondence, per §3's FeatureMatch.
type Match struct {
	RefIndex         int
	CurIndex         int
	RefXYZ           r3.Vector
	CurXYZ           r3.Vector
	ReprojectionErr  float64
	Inlier           bool
	RefinedU         float64
	RefinedV         float64
}

// Options configures the matcher, mirroring the relevant §6 keys.
type Options struct {
	SearchWindow               float64 // feature-search-window, default 25
	UseMutualBest              bool    // default true
	UseSubpixelRefinement      bool    // default true
	MaxRefinementDisplacement  float64 // stereo-max-refinement-displacement, default 1.0
	RefinementMaxIterations    int
}

// DefaultOptions returns §6's matcher defaults.
func DefaultOptions() Options {
	return Options{
		SearchWindow:              25,
		UseMutualBest:             true,
		UseSubpixelRefinement:     true,
		MaxRefinementDisplacement: 1.0,
		RefinementMaxIterations:   10,
	}
}

// Run runs §4.5's matcher: for each reference keypoint with valid
// depth, project through the inverse of mInit (mapping reference camera
// points into the current camera frame), gather nearby current keypoints on the
// same pyramid level, pick the SAD-best, optionally enforce mutual-best,
// optionally subpixel-refine, and look up the matched 3D point via
// curDepth.
func Run(
	refLevel, curLevel *pyramid.Level,
	curGray *pyramid.Gray,
	extractor *descriptor.Extractor,
	intr calib.Intrinsics,
	mInit spatialmath.Pose,
	curDepth depth.Source,
	opts Options,
) []Match {
	mInitInv := mInit.Inverse()
	refKps := refLevel.Keypoints()
	curKps := curLevel.Keypoints()

	var matches []Match
	for ri, rkp := range refKps {
		if !rkp.HasDepth {
			continue
		}
		predicted := mInitInv.Apply(rkp.XYZ)
		if predicted.Z <= 0 {
			continue
		}
		pu, pv := intr.Project(predicted)

		bestCur, bestDist := -1, -1
		for ci, ckp := range curKps {
			du := ckp.U - pu
			dv := ckp.V - pv
			if du < -opts.SearchWindow || du > opts.SearchWindow || dv < -opts.SearchWindow || dv > opts.SearchWindow {
				continue
			}
			d := descriptor.SAD(refLevel.Descriptor(ri), curLevel.Descriptor(ci))
			if bestCur == -1 || d < bestDist {
				bestCur, bestDist = ci, d
			}
		}
		if bestCur == -1 {
			continue
		}

		if opts.UseMutualBest {
			if !isMutualBest(ri, bestCur, refLevel, curLevel, curKps, pu, pv, opts.SearchWindow) {
				continue
			}
		}

		ckp := curKps[bestCur]
		refinedU, refinedV := ckp.U, ckp.V
		if opts.UseSubpixelRefinement {
			ru, rv, ok := refineSubpixel(refLevel.Descriptor(ri), curGray, ckp.U, ckp.V, extractor, opts)
			if ok {
				refinedU, refinedV = ru, rv
			}
		}

		curXYZ, ok := curDepth.RefineXYZ(curLevel.Num, refinedU, refinedV, ckp.XYZ)
		if !ok {
			continue
		}

		matches = append(matches, Match{
			RefIndex: ri,
			CurIndex: bestCur,
			RefXYZ:   rkp.XYZ,
			CurXYZ:   curXYZ,
			RefinedU: refinedU,
			RefinedV: refinedV,
		})
	}
	return matches
}

// isMutualBest reports whether searching back from curKps[bestCur] to
// the reference keypoints returns ri as the best SAD match, i.e. the
// reverse search from the current keypoint confirms the same pair.
func isMutualBest(ri, bestCur int, refLevel, curLevel *pyramid.Level, curKps []pyramid.KeypointData, pu, pv, window float64) bool {
	refKps := refLevel.Keypoints()
	curDesc := curLevel.Descriptor(bestCur)

	bestRef, bestDist := -1, -1
	for rj, rkp := range refKps {
		du := rkp.U - curKps[bestCur].U
		dv := rkp.V - curKps[bestCur].V
		if du < -window || du > window || dv < -window || dv > window {
			continue
		}
		d := descriptor.SAD(refLevel.Descriptor(rj), curDesc)
		if bestRef == -1 || d < bestDist {
			bestRef, bestDist = rj, d
		}
	}
	return bestRef == ri
}

// refineSubpixel performs iterative Gauss-Newton on a 2D translation to
// minimize the descriptor residual between refDesc and the patch
// sampled around (u, v) in curGray, capping iterations and step size,
// per §4.5.
func refineSubpixel(refDesc []byte, curGray *pyramid.Gray, u, v float64, extractor *descriptor.Extractor, opts Options) (float64, float64, bool) {
	stride := extractor.Stride()
	curDesc := make([]byte, stride)
	prevResidual := sumAbsResidual(refDesc, curGray, extractor, u, v, curDesc)
	startU, startV := u, v

	for iter := 0; iter < opts.RefinementMaxIterations; iter++ {
		// numeric gradient of the SAD residual w.r.t. (u, v), central
		// difference with a half-pixel step.
		const h = 0.5
		rPlusU := sumAbsResidual(refDesc, curGray, extractor, u+h, v, curDesc)
		rMinusU := sumAbsResidual(refDesc, curGray, extractor, u-h, v, curDesc)
		rPlusV := sumAbsResidual(refDesc, curGray, extractor, u, v+h, curDesc)
		rMinusV := sumAbsResidual(refDesc, curGray, extractor, u, v-h, curDesc)
		gu := (rPlusU - rMinusU) / (2 * h)
		gv := (rPlusV - rMinusV) / (2 * h)
		gradNorm := gu*gu + gv*gv
		if gradNorm < 1e-9 {
			break
		}
		// a single Gauss-Newton-like step along the negative gradient,
		// scaled so steps stay sub-pixel sized.
		step := 0.25
		du := -step * gu / gradNorm
		dv := -step * gv / gradNorm

		nu, nv := u+du, v+dv
		residual := sumAbsResidual(refDesc, curGray, extractor, nu, nv, curDesc)
		if residual >= prevResidual {
			break
		}
		u, v = nu, nv
		prevResidual = residual
	}

	disp := dist(startU, startV, u, v)
	if disp > opts.MaxRefinementDisplacement {
		return startU, startV, false
	}
	return u, v, true
}

func sumAbsResidual(refDesc []byte, curGray *pyramid.Gray, extractor *descriptor.Extractor, u, v float64, scratch []byte) float64 {
	if err := extractor.ExtractInterpolated(curGray, u, v, scratch); err != nil {
		return 1 << 30
	}
	return float64(descriptor.SAD(refDesc, scratch))
}

func dist(u0, v0, u1, v1 float64) float64 {
	du := u1 - u0
	dv := v1 - v0
	return math.Sqrt(du*du + dv*dv)
}
