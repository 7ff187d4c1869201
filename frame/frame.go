// Package frame implements OdometryFrame (§3): a multi-level pyramid
// view over one raw input image, plus the prepareFrame orchestration
// step (§4.7 step 3) that turns a raw image into a fully populated,
// matchable frame.
package frame

import (
	"github.com/pkg/errors"

	"github.com/Simsdebims/fovis/depth"
	"github.com/Simsdebims/fovis/descriptor"
	"github.com/Simsdebims/fovis/keypoints"
	"github.com/Simsdebims/fovis/pyramid"
)

// Frame is an OdometryFrame: an ordered array of pyramid levels (finest
// at index 0). It owns its levels exclusively, per §3's ownership rules.
type Frame struct {
	Levels    []*pyramid.Level
	Extractor *descriptor.Extractor

	// DetectedCount is the raw FAST detection count across the levels
	// collected into the matcher/estimator pool during the most recent
	// prepareFrame call, used as the adaptive-threshold feedback signal
	// (§4.7 step 4). It is distinct from NumKeypoints-after-bucketing.
	DetectedCount int
}

// New allocates a Frame with numLevels pyramid levels sized from
// (width, height), sharing one descriptor Extractor.
func New(width, height, numLevels, window int) *Frame {
	ext := descriptor.New()
	return &Frame{
		Levels:    pyramid.NewLevels(width, height, numLevels, window, ext.Stride()),
		Extractor: ext,
	}
}

// BucketConfig mirrors keypoints.BucketConfig for prepareFrame callers.
type BucketConfig = keypoints.BucketConfig

// PrepareOptions configures one prepareFrame call, drawn from §6's
// configuration keys.
type PrepareOptions struct {
	Normalize      bool
	FASTThreshold  int
	UseBucketing   bool
	Bucket         BucketConfig
	MinLevel       int // min-pyramid-level: finest level collected into the pool
	MaxLevel       int // inclusive; usually len(Levels)-1
}

// Prepare runs §4.7 step 3: normalize (optional) -> pyramid -> per-level
// FAST -> bucket -> depth-assign -> descriptors. raw/rawStride is the
// caller-supplied level-0 grayscale buffer (§6).
func (f *Frame) Prepare(raw []byte, rawStride int, scratch *pyramid.Scratch, depthSource depth.Source, opts PrepareOptions) error {
	if err := pyramid.Build(f.Levels, raw, rawStride, opts.Normalize, scratch); err != nil {
		return errors.Wrap(err, "building pyramid")
	}

	f.DetectedCount = 0
	for _, level := range f.Levels {
		if level.Num < opts.MinLevel || level.Num > opts.MaxLevel {
			continue
		}
		detected := keypoints.Detect(level.Gray, opts.FASTThreshold)
		f.DetectedCount += len(detected)

		kept := keypoints.RejectBoundary(detected, level.Width(), level.Height(), level.Window)
		if opts.UseBucketing {
			kept = keypoints.Bucket(kept, level.Width(), level.Height(), opts.Bucket)
		}

		for i := range kept {
			kept[i].Level = level.Num
		}
		assignDepth(kept, level.Num, depthSource)

		level.SetKeypoints(kept)
		if err := f.Extractor.ExtractAlignedBatch(level.Gray, kept, level); err != nil {
			return errors.Wrapf(err, "extracting descriptors for level %d", level.Num)
		}
	}
	return nil
}

// assignDepth populates XYZ/HasDepth for each keypoint from depthSource,
// per §4.7 step 3's "depth-assign" stage. Keypoints without valid depth
// keep HasDepth false and are simply excluded from matching later (§7:
// "the affected keypoint is excluded from matching, no error").
func assignDepth(kps []pyramid.KeypointData, level int, depthSource depth.Source) {
	if depthSource == nil {
		return
	}
	for i := range kps {
		xyz, ok := depthSource.XYZAt(level, kps[i].U, kps[i].V)
		if ok {
			kps[i].XYZ = xyz
			kps[i].HasDepth = true
		}
	}
}

// Level returns the frame's level at the given pyramid index, or nil if
// out of range.
func (f *Frame) Level(num int) *pyramid.Level {
	if num < 0 || num >= len(f.Levels) {
		return nil
	}
	return f.Levels[num]
}
