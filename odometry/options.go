// Package odometry implements the visual-odometry controller of §4.7:
// it owns the reference/previous/current frames and the accumulated
// pose, and orchestrates frame preparation, adaptive thresholding,
// homography-seeded motion estimation, and reference-frame switching.
package odometry

import (
	"strconv"

	"github.com/Simsdebims/fovis/internal/logging"
)

// Options is §6's string-keyed configuration record. Grounded directly
// on original_source/src/visual_odometry.cpp's getDefaultOptions and
// validateOptions: unrecognized keys warn but never abort, and missing
// or malformed values fall back to the default.
type Options map[string]string

// DefaultOptions returns §6's full default table.
func DefaultOptions() Options {
	return Options{
		"feature-window-size":              "9",
		"max-pyramid-level":                "3",
		"min-pyramid-level":                "0",
		"target-pixels-per-feature":        "250",
		"fast-threshold":                   "20",
		"use-adaptive-threshold":           "true",
		"fast-threshold-adaptive-gain":     "0.005",
		"use-homography-initialization":    "true",
		"ref-frame-change-threshold":       "150",
		"use-bucketing":                    "true",
		"bucket-width":                     "80",
		"bucket-height":                    "80",
		"max-keypoints-per-bucket":         "25",
		"use-image-normalization":          "false",
		"inlier-max-reprojection-error":    "1.5",
		"clique-inlier-threshold":          "0.1",
		"min-features-for-estimate":        "10",
		"max-mean-reprojection-error":      "10.0",
		"use-subpixel-refinement":          "true",
		"feature-search-window":            "25",
		"update-target-features-with-refined": "false",
		"stereo-require-mutual-match":      "true",
		"stereo-max-dist-epipolar-line":    "1.5",
		"stereo-max-refinement-displacement": "1.0",
		"stereo-max-disparity":             "128",
	}
}

// Validate warns (via logger) about any key in opts not present in
// DefaultOptions, mirroring validateOptions's warn-don't-abort policy.
// It never returns an error: unrecognized keys are a configuration
// warning, per §7, not a failure.
func Validate(opts Options, logger logging.Logger) {
	defaults := DefaultOptions()
	for k := range opts {
		if _, ok := defaults[k]; !ok {
			logger.Warnf("VisualOdometry: unrecognized option [%s]", k)
		}
	}
}

// merged overlays opts on top of DefaultOptions, so callers only need to
// specify the keys they want to change.
func merged(opts Options) Options {
	out := DefaultOptions()
	for k, v := range opts {
		out[k] = v
	}
	return out
}

func (o Options) getInt(key string, fallback int) int {
	v, ok := o[key]
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func (o Options) getFloat(key string, fallback float64) float64 {
	v, ok := o[key]
	if !ok {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback
	}
	return f
}

func (o Options) getBool(key string, fallback bool) bool {
	v, ok := o[key]
	if !ok {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}
