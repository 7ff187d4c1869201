package odometry

import (
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/num/quat"

	"github.com/Simsdebims/fovis/calib"
	"github.com/Simsdebims/fovis/depth"
	"github.com/Simsdebims/fovis/frame"
	"github.com/Simsdebims/fovis/homography"
	"github.com/Simsdebims/fovis/internal/logging"
	"github.com/Simsdebims/fovis/match"
	"github.com/Simsdebims/fovis/motion"
	"github.com/Simsdebims/fovis/pyramid"
	"github.com/Simsdebims/fovis/spatialmath"
)

// initialRotationPyramidLevel mirrors the hard-coded level 4 in
// estimateInitialRotation, clamped to num_levels-1.
const initialRotationPyramidLevel = 4

// Output is what processFrame reports back per §6's "Outputs".
type Output struct {
	Motion      spatialmath.Pose
	Covariance  *mat.Dense
	Pose        spatialmath.Pose
	Valid       bool
	InlierCount int
}

// Controller is the visual-odometry controller of §4.7: it owns the
// reference/previous/current frames and the estimator, and is the sole
// mutator of pose and threshold state. It is not safe for concurrent use
// by multiple goroutines on the same instance (§5).
type Controller struct {
	intrinsics calib.Intrinsics
	opts       Options
	logger     logging.Logger

	refFrame  *frame.Frame
	prevFrame *frame.Frame
	curFrame  *frame.Frame

	changeReferenceFrames bool
	frameCount            int

	fastThreshold    int
	fastThresholdMin int
	fastThresholdMax int

	pose       spatialmath.Pose
	refToPrev  spatialmath.Pose
	motion     spatialmath.Pose
	covariance *mat.Dense

	numLevels int
	window    int

	scratch *pyramid.Scratch

	cliqueOpts motion.CliqueOptions
	refineOpts motion.RefineOptions
	matchOpts  match.Options
}

// New constructs a Controller over the given intrinsics and
// configuration. Unrecognized option keys are warned about, never
// rejected (§7).
func New(intr calib.Intrinsics, opts Options, logger logging.Logger) *Controller {
	Validate(opts, logger)
	full := merged(opts)

	window := full.getInt("feature-window-size", 9)
	numLevels := full.getInt("max-pyramid-level", 3)
	width, height := intr.Width, intr.Height

	c := &Controller{
		intrinsics:       intr,
		opts:             full,
		logger:           logger,
		refFrame:         frame.New(width, height, numLevels, window),
		prevFrame:        frame.New(width, height, numLevels, window),
		curFrame:         frame.New(width, height, numLevels, window),
		fastThreshold:    full.getInt("fast-threshold", 20),
		fastThresholdMin: 5,
		fastThresholdMax: 70,
		pose:             spatialmath.Identity(),
		refToPrev:        spatialmath.Identity(),
		motion:           spatialmath.Identity(),
		numLevels:        numLevels,
		window:           window,
		scratch:          pyramid.NewScratch(width, height),
		cliqueOpts: motion.CliqueOptions{
			InlierThreshold:        full.getFloat("clique-inlier-threshold", 0.1),
			MinFeaturesForEstimate: full.getInt("min-features-for-estimate", 10),
		},
		refineOpts: motion.RefineOptions{
			MaxReprojectionError:     full.getFloat("inlier-max-reprojection-error", 1.5),
			MaxMeanReprojectionError: full.getFloat("max-mean-reprojection-error", 10.0),
			MaxIterations:            20,
		},
		matchOpts: match.Options{
			SearchWindow:              full.getFloat("feature-search-window", 25),
			UseMutualBest:             true,
			UseSubpixelRefinement:     full.getBool("use-subpixel-refinement", true),
			MaxRefinementDisplacement: full.getFloat("stereo-max-refinement-displacement", 1.0),
			RefinementMaxIterations:   10,
		},
	}
	c.changeReferenceFrames = false
	return c
}

// ProcessFrame runs §4.7's full per-frame algorithm against a new raw
// grayscale image (pointer + stride) and depth source.
func (c *Controller) ProcessFrame(gray []byte, grayStride int, depthSource depth.Source) Output {
	changedReferenceFrames := c.changeReferenceFrames
	if c.changeReferenceFrames {
		c.refFrame, c.curFrame = c.curFrame, c.refFrame
		c.refToPrev = spatialmath.Identity()
	} else {
		c.prevFrame, c.curFrame = c.curFrame, c.prevFrame
	}

	c.motion = spatialmath.Identity()
	c.changeReferenceFrames = false

	prepOpts := frame.PrepareOptions{
		Normalize:     c.opts.getBool("use-image-normalization", false),
		FASTThreshold: c.fastThreshold,
		UseBucketing:  c.opts.getBool("use-bucketing", true),
		Bucket: frame.BucketConfig{
			Width:        c.opts.getInt("bucket-width", 80),
			Height:       c.opts.getInt("bucket-height", 80),
			MaxPerBucket: c.opts.getInt("max-keypoints-per-bucket", 25),
		},
		MinLevel: c.opts.getInt("min-pyramid-level", 0),
		MaxLevel: c.numLevels - 1,
	}
	if err := c.curFrame.Prepare(gray, grayStride, c.scratch, depthSource, prepOpts); err != nil {
		c.logger.Errorf("preparing current frame: %v", err)
		return Output{Pose: c.pose, Valid: false}
	}

	if c.opts.getBool("use-adaptive-threshold", true) {
		c.adjustThreshold()
	}

	c.frameCount++
	if c.frameCount < 2 {
		c.changeReferenceFrames = true
		return Output{Pose: c.pose, Valid: false}
	}

	initRotation := c.estimateInitialRotation(changedReferenceFrames)
	initMotion := spatialmath.Compose(c.refToPrev.Inverse(), spatialmath.NewPose(r3.Vector{}, initRotation))

	result := c.estimateAgainst(c.refFrame, initMotion, depthSource)

	if result.Valid {
		toReference := result.Motion
		c.motion = spatialmath.Compose(c.refToPrev, toReference)
		c.covariance = result.Covariance
		c.refToPrev = toReference.Inverse()
		c.pose = spatialmath.Compose(c.pose, c.motion)
	} else if !changedReferenceFrames {
		retryMotion := spatialmath.NewPose(r3.Vector{}, initRotation)
		retry := c.estimateAgainst(c.prevFrame, retryMotion, depthSource)
		if retry.Valid {
			// retry.Covariance is relative to the previous frame and is
			// stored as-is, not re-expressed in reference-frame coordinates.
			c.motion = retry.Motion
			c.covariance = retry.Covariance
			c.pose = spatialmath.Compose(c.pose, c.motion)
			c.changeReferenceFrames = true
			result = retry
		}
	}

	if !result.Valid || result.InlierCount < c.opts.getInt("ref-frame-change-threshold", 150) {
		c.changeReferenceFrames = true
	}

	return Output{
		Motion:      c.motion,
		Covariance:  c.covariance,
		Pose:        c.pose,
		Valid:       result.Valid,
		InlierCount: result.InlierCount,
	}
}

// adjustThreshold implements §4.7 step 4's proportional control toward
// target-pixels-per-feature.
func (c *Controller) adjustThreshold() {
	targetPixelsPerFeature := c.opts.getInt("target-pixels-per-feature", 250)
	if targetPixelsPerFeature <= 0 {
		return
	}
	targetFeatures := c.intrinsics.Width * c.intrinsics.Height / targetPixelsPerFeature
	gain := c.opts.getFloat("fast-threshold-adaptive-gain", 0.005)
	err := c.curFrame.DetectedCount - targetFeatures
	adjustment := int(float64(err) * gain)
	c.fastThreshold += adjustment
	if c.fastThreshold < c.fastThresholdMin {
		c.fastThreshold = c.fastThresholdMin
	}
	if c.fastThreshold > c.fastThresholdMax {
		c.fastThreshold = c.fastThresholdMax
	}
}

// estimateInitialRotation implements §4.4: an ESM homography tracker
// between a coarse level of (reference if just switched, else previous)
// and current, with its rotation extracted and converted to a
// quaternion. Returns the identity rotation if homography initialization
// is disabled or the tracker fails.
func (c *Controller) estimateInitialRotation(changedReferenceFrames bool) quat.Number {
	if !c.opts.getBool("use-homography-initialization", true) {
		return homography.Identity()
	}

	var base *frame.Frame
	if changedReferenceFrames {
		base = c.refFrame
	} else {
		base = c.prevFrame
	}

	level := initialRotationPyramidLevel
	if level > c.numLevels-1 {
		level = c.numLevels - 1
	}
	baseLevel := base.Level(level)
	curLevel := c.curFrame.Level(level)
	if baseLevel == nil || curLevel == nil {
		return homography.Identity()
	}

	tracker := homography.NewTracker()
	hL, ok := tracker.Track(baseLevel.Gray, curLevel.Gray)
	if !ok {
		return homography.Identity()
	}
	hFull := homography.ScaleToFullResolution(hL, level)
	if err := homography.Validate(hFull); err != nil {
		c.logger.Warnf("homography initialization failed: %v", err)
		return homography.Identity()
	}
	return homography.RotationPrior(hFull, c.intrinsics.Fx)
}

// estimateAgainst runs the feature matcher (§4.5) followed by the motion
// estimator (§4.6) between refFrame and the current frame, both at level
// 0, using initMotion as the seed for predicting match locations.
func (c *Controller) estimateAgainst(refFrame *frame.Frame, initMotion spatialmath.Pose, depthSource depth.Source) motion.Result {
	refLevel := refFrame.Level(0)
	curLevel := c.curFrame.Level(0)
	if refLevel == nil || curLevel == nil {
		return motion.Result{Valid: false}
	}

	matches := match.Run(refLevel, curLevel, curLevel.Gray, c.curFrame.Extractor, c.intrinsics, initMotion, depthSource, c.matchOpts)
	return motion.Estimate(matches, c.intrinsics, c.cliqueOpts, c.refineOpts)
}

// Pose returns the current accumulated pose.
func (c *Controller) Pose() spatialmath.Pose { return c.pose }

// FastThreshold returns the current adaptive FAST threshold, mostly
// useful for tests and diagnostics.
func (c *Controller) FastThreshold() int { return c.fastThreshold }

// CurrentKeypoints returns the level-0 keypoints of the most recently
// processed frame, for callers that want to render a diagnostic overlay.
func (c *Controller) CurrentKeypoints() []pyramid.KeypointData {
	level := c.curFrame.Level(0)
	if level == nil {
		return nil
	}
	return level.Keypoints()
}

// SanityCheck runs lightweight consistency checks over the controller's
// owned frames, mirroring VisualOdometry::sanityCheck's diagnostic role
// in original_source/src/visual_odometry.cpp. It returns the first
// inconsistency found, or nil.
func (c *Controller) SanityCheck() error {
	for _, f := range []*frame.Frame{c.refFrame, c.prevFrame, c.curFrame} {
		for _, level := range f.Levels {
			if level.NumKeypoints() > level.Capacity() {
				return errors.Errorf("level %d: keypoint count %d exceeds capacity %d", level.Num, level.NumKeypoints(), level.Capacity())
			}
		}
	}
	return nil
}
