// Package keypoints implements FAST-9 corner detection and the spatial
// grid bucketing described in §4.2. It mirrors the shape of
// vision/keypoints/fastkp_test.go in the teacher repo (brighter/darker
// masks over a circular pixel neighborhood, a contiguous-run test, and a
// signed-sum corner score) re-targeted at the classic 16-point Bresenham
// circle FAST-9 uses, since the teacher's own fastkp.go source was not
// available to copy from directly.
package keypoints

import (
	"sort"

	"github.com/Simsdebims/fovis/pyramid"
)

// circleOffsets is the 16-point Bresenham circle of radius 3 around a
// candidate pixel, in the usual FAST ordering (starting due "north" and
// proceeding clockwise).
var circleOffsets = [16][2]int{
	{0, -3}, {1, -3}, {2, -2}, {3, -1},
	{3, 0}, {3, 1}, {2, 2}, {1, 3},
	{0, 3}, {-1, 3}, {-2, 2}, {-3, 1},
	{-3, 0}, {-3, -1}, {-2, -2}, {-1, -3},
}

// fastMargin is the minimum distance from the image border required to
// safely read the 16-point circle.
const fastMargin = 3

// fastArcLength is the number of contiguous circle points (out of 16)
// that must be uniformly brighter or darker than the center for FAST-9.
const fastArcLength = 9

// circleValues reads the 16 circle pixel intensities around (x, y).
func circleValues(g *pyramid.Gray, x, y int) [16]float64 {
	var vals [16]float64
	for i, off := range circleOffsets {
		vals[i] = float64(g.At(x+off[0], y+off[1]))
	}
	return vals
}

// getBrighterValues returns a 0/1 mask, 1 where s[i] > t.
func getBrighterValues(s []float64, t float64) []float64 {
	out := make([]float64, len(s))
	for i, v := range s {
		if v > t {
			out[i] = 1
		}
	}
	return out
}

// getDarkerValues returns a 0/1 mask, 1 where s[i] < t.
func getDarkerValues(s []float64, t float64) []float64 {
	out := make([]float64, len(s))
	for i, v := range s {
		if v < t {
			out[i] = 1
		}
	}
	return out
}

// isValidSliceVals reports whether the circular sequence s contains a
// contiguous run of 1s strictly longer than n.
func isValidSliceVals(s []float64, n int) bool {
	total := len(s)
	if total == 0 {
		return false
	}
	best, cur := 0, 0
	// walk the sequence twice around to capture runs that wrap the seam,
	// but stop once a run could no longer be extended by more data.
	for i := 0; i < 2*total; i++ {
		if s[i%total] != 0 {
			cur++
			if cur > best {
				best = cur
			}
		} else {
			cur = 0
		}
		if cur >= total {
			// every element is 1; no seam issue possible.
			break
		}
	}
	return best > n
}

// sumOfPositiveValuesSlice sums the positive entries of s.
func sumOfPositiveValuesSlice(s []float64) float64 {
	var sum float64
	for _, v := range s {
		if v > 0 {
			sum += v
		}
	}
	return sum
}

// sumOfNegativeValuesSlice sums the negative entries of s (a
// non-positive result).
func sumOfNegativeValuesSlice(s []float64) float64 {
	var sum float64
	for _, v := range s {
		if v < 0 {
			sum += v
		}
	}
	return sum
}

// cornerScore returns the FAST-9 response at a point whose circle-minus-
// center differences are diffs: the larger of the total positive or
// total (absolute) negative deviation.
func cornerScore(diffs []float64) float64 {
	pos := sumOfPositiveValuesSlice(diffs)
	neg := -sumOfNegativeValuesSlice(diffs)
	if pos > neg {
		return pos
	}
	return neg
}

// Detect runs FAST-9 over the full extent of gray (save for the 3px
// margin the circle test needs) at the given integer threshold. Returned
// keypoints are unbucketed, unfiltered by the feature-window boundary,
// and carry Level 0 and a sequential Index; callers (frame.prepareFrame)
// set the correct pyramid level and apply §4.2's boundary rejection and
// bucketing afterward.
func Detect(gray *pyramid.Gray, threshold int) []pyramid.KeypointData {
	t := float64(threshold)
	var out []pyramid.KeypointData
	idx := 0
	for y := fastMargin; y < gray.Height-fastMargin; y++ {
		for x := fastMargin; x < gray.Width-fastMargin; x++ {
			center := float64(gray.At(x, y))
			vals := circleValues(gray, x, y)
			diffs := make([]float64, 16)
			for i, v := range vals {
				diffs[i] = v - center
			}
			brighter := getBrighterValues(diffs, t)
			darker := getDarkerValues(diffs, -t)
			if !isValidSliceVals(brighter, fastArcLength-1) && !isValidSliceVals(darker, fastArcLength-1) {
				continue
			}
			out = append(out, pyramid.KeypointData{
				U:     float64(x),
				V:     float64(y),
				Score: cornerScore(diffs),
				Index: idx,
			})
			idx++
		}
	}
	return out
}

// RejectBoundary drops any keypoint falling outside the descriptor-safe
// window [window, width-window-2) x [window, height-window-2), per §3/§4.2.
func RejectBoundary(kps []pyramid.KeypointData, width, height, window int) []pyramid.KeypointData {
	minX, maxX := float64(window), float64(width-window-2)
	minY, maxY := float64(window), float64(height-window-2)
	out := kps[:0:0]
	for _, kp := range kps {
		if kp.U >= minX && kp.U < maxX && kp.V >= minY && kp.V < maxY {
			out = append(out, kp)
		}
	}
	return out
}

// BucketConfig configures §4.2's spatial bucketing.
type BucketConfig struct {
	Width, Height int
	MaxPerBucket  int
}

// Bucket partitions kps into a Width x Height grid over an image of size
// imgWidth x imgHeight and retains, per cell, the top MaxPerBucket by
// score, ties broken by smaller V then smaller U, per §4.2.
func Bucket(kps []pyramid.KeypointData, imgWidth, imgHeight int, cfg BucketConfig) []pyramid.KeypointData {
	if cfg.Width <= 0 || cfg.Height <= 0 {
		cfg.Width, cfg.Height = 80, 80
	}
	cols := (imgWidth + cfg.Width - 1) / cfg.Width
	rows := (imgHeight + cfg.Height - 1) / cfg.Height
	if cols == 0 {
		cols = 1
	}
	if rows == 0 {
		rows = 1
	}
	buckets := make([][]pyramid.KeypointData, cols*rows)
	for _, kp := range kps {
		cx := int(kp.U) / cfg.Width
		cy := int(kp.V) / cfg.Height
		if cx >= cols {
			cx = cols - 1
		}
		if cy >= rows {
			cy = rows - 1
		}
		buckets[cy*cols+cx] = append(buckets[cy*cols+cx], kp)
	}

	out := make([]pyramid.KeypointData, 0, len(kps))
	for _, b := range buckets {
		sort.Slice(b, func(i, j int) bool {
			if b[i].Score != b[j].Score {
				return b[i].Score > b[j].Score
			}
			if b[i].V != b[j].V {
				return b[i].V < b[j].V
			}
			return b[i].U < b[j].U
		})
		n := cfg.MaxPerBucket
		if n <= 0 || n > len(b) {
			n = len(b)
		}
		out = append(out, b[:n]...)
	}
	return out
}
