package descriptor

import (
	"testing"

	"go.viam.com/test"

	"github.com/Simsdebims/fovis/pyramid"
)

func rampImage(width, height int) *pyramid.Gray {
	g := pyramid.NewGray(width, height)
	for y := 0; y < height; y++ {
		row := g.Row(y)
		for x := range row {
			row[x] = byte((x*3 + y*5) % 256)
		}
	}
	return g
}

func TestStrideIsMultipleOf16(t *testing.T) {
	e := New()
	test.That(t, e.Stride()%16, test.ShouldEqual, 0)
	test.That(t, e.Stride(), test.ShouldEqual, 80)
}

func TestExtractAlignedMatchesRawPixels(t *testing.T) {
	g := rampImage(32, 32)
	e := New()
	dst := make([]byte, e.Stride())
	err := e.ExtractAligned(g, 16, 16, dst)
	test.That(t, err, test.ShouldBeNil)

	i := 0
	for dy := -4; dy <= 4; dy++ {
		for dx := -4; dx <= 4; dx++ {
			if dx == 0 && dy == 0 {
				continue
			}
			test.That(t, dst[i], test.ShouldEqual, g.At(16+dx, 16+dy))
			i++
		}
	}
}

func TestExtractInterpolatedAtIntegerCoordsMatchesAligned(t *testing.T) {
	g := rampImage(32, 32)
	e := New()
	aligned := make([]byte, e.Stride())
	interp := make([]byte, e.Stride())
	test.That(t, e.ExtractAligned(g, 16, 16, aligned), test.ShouldBeNil)
	test.That(t, e.ExtractInterpolated(g, 16.0, 16.0, interp), test.ShouldBeNil)
	test.That(t, interp, test.ShouldResemble, aligned)
}

func TestBatchExtractionMatchesScalarExtraction(t *testing.T) {
	g := rampImage(40, 40)
	e := New()
	level := pyramid.NewLevel(40, 40, 0, 9, e.Stride())
	kps := []pyramid.KeypointData{
		{U: 10, V: 10},
		{U: 20.25, V: 15.75},
		{U: 30, V: 30},
	}
	level.SetKeypoints(kps)
	test.That(t, e.ExtractAlignedBatch(g, kps, level), test.ShouldBeNil)

	for i, kp := range kps {
		want := make([]byte, e.Stride())
		test.That(t, e.ExtractAligned(g, int(kp.U+0.5), int(kp.V+0.5), want), test.ShouldBeNil)
		test.That(t, level.Descriptor(i), test.ShouldResemble, want)
	}

	test.That(t, e.ExtractInterpolatedBatch(g, kps, level), test.ShouldBeNil)
	for i, kp := range kps {
		want := make([]byte, e.Stride())
		test.That(t, e.ExtractInterpolated(g, kp.U, kp.V, want), test.ShouldBeNil)
		test.That(t, level.Descriptor(i), test.ShouldResemble, want)
	}
}

func TestSADZeroForIdenticalDescriptors(t *testing.T) {
	a := []byte{1, 2, 3, 250}
	b := []byte{1, 2, 3, 250}
	test.That(t, SAD(a, b), test.ShouldEqual, 0)
}

func TestSADAccumulatesAbsoluteDifferences(t *testing.T) {
	a := []byte{10, 200, 0}
	b := []byte{5, 190, 3}
	test.That(t, SAD(a, b), test.ShouldEqual, 5+10+3)
}
