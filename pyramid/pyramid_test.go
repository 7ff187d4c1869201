package pyramid

import (
	"math"
	"testing"

	"go.viam.com/test"
)

func checkerboard(width, height, stride int) []byte {
	buf := make([]byte, stride*height)
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			v := byte(0)
			if (x/8+y/8)%2 == 0 {
				v = 255
			}
			buf[y*stride+x] = v
		}
	}
	return buf
}

func TestPyramidLevelSizes(t *testing.T) {
	width, height := 160, 120
	levels := NewLevels(width, height, 4, 9, 80)
	scratch := NewScratch(width, height)
	raw := checkerboard(width, height, width)
	err := Build(levels, raw, width, false, scratch)
	test.That(t, err, test.ShouldBeNil)

	w, h := width, height
	for k, lvl := range levels {
		test.That(t, lvl.Width(), test.ShouldEqual, w)
		test.That(t, lvl.Height(), test.ShouldEqual, h)
		test.That(t, lvl.Gray.Stride%16, test.ShouldEqual, 0)
		test.That(t, lvl.Gray.Stride, test.ShouldBeGreaterThanOrEqualTo, w)
		test.That(t, lvl.Num, test.ShouldEqual, k)
		w, h = w/2, h/2
	}
}

func TestDownsampleUniformImagePreservesValue(t *testing.T) {
	width, height := 64, 48
	src := NewGray(width, height)
	for y := 0; y < height; y++ {
		row := src.Row(y)
		for x := range row {
			row[x] = 200
		}
	}
	dst := NewGray(width/2, height/2)
	scratch := NewScratch(width, height)
	err := Downsample(dst, src, scratch)
	test.That(t, err, test.ShouldBeNil)
	for y := 0; y < dst.Height; y++ {
		for _, v := range dst.Row(y) {
			test.That(t, int(v), test.ShouldEqual, 200)
		}
	}
}

func TestNormalizeImageMeanAndSD(t *testing.T) {
	width, height := 32, 32
	g := NewGray(width, height)
	for y := 0; y < height; y++ {
		row := g.Row(y)
		for x := range row {
			row[x] = byte((x * 7) % 256)
		}
	}
	NormalizeImage(g)

	var sum, sumSq float64
	n := float64(width * height)
	for y := 0; y < height; y++ {
		for _, v := range g.Row(y) {
			sum += float64(v)
			sumSq += float64(v) * float64(v)
		}
	}
	mean := sum / n
	variance := sumSq/n - mean*mean
	sd := math.Sqrt(variance)
	test.That(t, mean, test.ShouldBeBetween, 118.0, 138.0)
	test.That(t, sd, test.ShouldBeBetween, 64.0, 84.0)
}

func TestIncreaseCapacityDropsOldData(t *testing.T) {
	l := NewLevel(100, 100, 0, 9, 80)
	l.SetKeypoints([]KeypointData{{U: 10, V: 10}, {U: 20, V: 20}})
	test.That(t, l.NumKeypoints(), test.ShouldEqual, 2)

	l.IncreaseCapacity(l.Capacity() * 4)
	test.That(t, l.NumKeypoints(), test.ShouldEqual, 0)
	test.That(t, l.Capacity(), test.ShouldBeGreaterThan, 1500)
}

func TestSetKeypointsGrowsCapacityAutomatically(t *testing.T) {
	l := NewLevel(4000, 4000, 0, 9, 80)
	big := make([]KeypointData, l.Capacity()+10)
	l.SetKeypoints(big)
	test.That(t, l.NumKeypoints(), test.ShouldEqual, len(big))
	test.That(t, l.Capacity(), test.ShouldBeGreaterThanOrEqualTo, len(big))
}
