package keypoints

import (
	"testing"

	"go.viam.com/test"

	"github.com/Simsdebims/fovis/pyramid"
)

func TestIsValidSliceValsContiguousRun(t *testing.T) {
	cases := []struct {
		s        []float64
		n        int
		expected bool
	}{
		{[]float64{0, 0, 0, 0, 0}, 9, false},
		{[]float64{1, 1, 1, 1, 1, 1, 1}, 3, true},
		{[]float64{0, 1, 1, 1, 0, 1, 1}, 2, true},
		{[]float64{0, 1, 1, 0, 0, 1, 0}, 2, false},
	}
	for _, c := range cases {
		test.That(t, isValidSliceVals(c.s, c.n), test.ShouldEqual, c.expected)
	}
}

func TestIsValidSliceValsWrapsSeam(t *testing.T) {
	// run spans the end/start seam: last two and first three are 1s.
	s := []float64{1, 1, 1, 0, 0, 0, 1, 1}
	test.That(t, isValidSliceVals(s, 4), test.ShouldBeTrue)
	test.That(t, isValidSliceVals(s, 5), test.ShouldBeFalse)
}

func TestGetBrighterDarkerValues(t *testing.T) {
	s := []float64{1, 10, 3, 1, 20, 11}
	test.That(t, getBrighterValues(s, 10), test.ShouldResemble, []float64{0, 0, 0, 0, 1, 1})
	test.That(t, getDarkerValues(s, 10), test.ShouldResemble, []float64{1, 0, 1, 1, 0, 0})
}

func uniformImage(width, height int, value byte) *pyramid.Gray {
	g := pyramid.NewGray(width, height)
	for y := 0; y < height; y++ {
		row := g.Row(y)
		for x := range row {
			row[x] = value
		}
	}
	return g
}

func TestDetectFindsNoCornersOnFlatImage(t *testing.T) {
	g := uniformImage(40, 40, 128)
	kps := Detect(g, 20)
	test.That(t, len(kps), test.ShouldEqual, 0)
}

func TestDetectFindsBrightSpotOnDarkBackground(t *testing.T) {
	g := uniformImage(40, 40, 10)
	// a small bright square near the center should produce corner
	// responses at its edges, where the 16-point circle straddles the
	// bright/dark boundary.
	for y := 15; y < 25; y++ {
		row := g.Row(y)
		for x := 15; x < 25; x++ {
			row[x] = 250
		}
	}
	kps := Detect(g, 30)
	test.That(t, len(kps), test.ShouldBeGreaterThan, 0)
	for _, kp := range kps {
		test.That(t, kp.Score, test.ShouldBeGreaterThan, 0.0)
	}
}

func TestRejectBoundaryDropsEdgeKeypoints(t *testing.T) {
	kps := []pyramid.KeypointData{
		{U: 2, V: 50},   // too close to left edge for window 9
		{U: 50, V: 2},   // too close to top edge
		{U: 50, V: 50},  // safely interior
		{U: 97, V: 50},  // too close to right edge (width 100)
		{U: 50, V: 97},  // too close to bottom edge (height 100)
	}
	kept := RejectBoundary(kps, 100, 100, 9)
	test.That(t, len(kept), test.ShouldEqual, 1)
	test.That(t, kept[0].U, test.ShouldEqual, 50.0)
	test.That(t, kept[0].V, test.ShouldEqual, 50.0)
}

func TestBucketKeepsTopKPerCellWithTieBreak(t *testing.T) {
	kps := []pyramid.KeypointData{
		{U: 1, V: 1, Score: 5},
		{U: 2, V: 2, Score: 5},
		{U: 3, V: 3, Score: 10},
		{U: 70, V: 70, Score: 1},
	}
	out := Bucket(kps, 80, 80, BucketConfig{Width: 80, Height: 80, MaxPerBucket: 2})
	// the 80x80 image is a single 80x80 cell holding all four points;
	// top-2 by score keeps the score-10 point and breaks the score-5 tie
	// by smaller V then smaller U.
	test.That(t, len(out), test.ShouldEqual, 2)
	test.That(t, out[0].Score, test.ShouldEqual, 10.0)
	test.That(t, out[1].Score, test.ShouldEqual, 5.0)
	test.That(t, out[1].U, test.ShouldEqual, 1.0)
}

func TestBucketDefaultsCellSize(t *testing.T) {
	kps := []pyramid.KeypointData{{U: 5, V: 5, Score: 1}}
	out := Bucket(kps, 200, 200, BucketConfig{})
	test.That(t, len(out), test.ShouldEqual, 1)
}
