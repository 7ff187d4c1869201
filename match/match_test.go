package match

import (
	"testing"

	"go.viam.com/test"

	"github.com/Simsdebims/fovis/calib"
	"github.com/Simsdebims/fovis/depth"
	"github.com/Simsdebims/fovis/descriptor"
	"github.com/Simsdebims/fovis/pyramid"
	"github.com/Simsdebims/fovis/spatialmath"
)

func intrinsics() calib.Intrinsics {
	return calib.Intrinsics{Width: 200, Height: 200, Fx: 300, Fy: 300, Cx: 100, Cy: 100}
}

func texturedGray(width, height int) *pyramid.Gray {
	g := pyramid.NewGray(width, height)
	for y := 0; y < height; y++ {
		row := g.Row(y)
		for x := range row {
			row[x] = byte((x*13 + y*7) % 256)
		}
	}
	return g
}

func buildLevel(g *pyramid.Gray, ext *descriptor.Extractor, kps []pyramid.KeypointData) *pyramid.Level {
	l := pyramid.NewLevel(g.Width, g.Height, 0, 9, ext.Stride())
	l.SetKeypoints(kps)
	for i, kp := range kps {
		_ = ext.ExtractAligned(g, int(kp.U), int(kp.V), l.Descriptor(i))
		_ = kp
	}
	return l
}

func TestMatchFindsIdenticalKeypointOnIdenticalFrame(t *testing.T) {
	g := texturedGray(200, 200)
	ext := descriptor.New()
	intr := intrinsics()

	kp := pyramid.KeypointData{U: 100, V: 100, HasDepth: true, XYZ: intr.Unproject(100, 100, 2.0)}
	refLevel := buildLevel(g, ext, []pyramid.KeypointData{kp})
	curLevel := buildLevel(g, ext, []pyramid.KeypointData{kp})

	d := depth.NewDepthImage(intr, 200, 200, 0.5)
	d.Depth[100*200+100] = 2.0

	opts := DefaultOptions()
	matches := Run(refLevel, curLevel, g, ext, intr, spatialmath.Identity(), d, opts)
	test.That(t, len(matches), test.ShouldEqual, 1)
	test.That(t, matches[0].RefIndex, test.ShouldEqual, 0)
	test.That(t, matches[0].CurIndex, test.ShouldEqual, 0)
}

func TestMatchSkipsKeypointsWithoutDepth(t *testing.T) {
	g := texturedGray(200, 200)
	ext := descriptor.New()
	intr := intrinsics()

	kp := pyramid.KeypointData{U: 100, V: 100, HasDepth: false}
	refLevel := buildLevel(g, ext, []pyramid.KeypointData{kp})
	curLevel := buildLevel(g, ext, []pyramid.KeypointData{kp})

	d := depth.NewDepthImage(intr, 200, 200, 0.5)
	matches := Run(refLevel, curLevel, g, ext, intr, spatialmath.Identity(), d, DefaultOptions())
	test.That(t, len(matches), test.ShouldEqual, 0)
}

func TestMatchNoCandidateOutsideSearchWindow(t *testing.T) {
	g := texturedGray(200, 200)
	ext := descriptor.New()
	intr := intrinsics()

	refKp := pyramid.KeypointData{U: 100, V: 100, HasDepth: true, XYZ: intr.Unproject(100, 100, 2.0)}
	curKp := pyramid.KeypointData{U: 180, V: 180, HasDepth: true} // far outside default window
	refLevel := buildLevel(g, ext, []pyramid.KeypointData{refKp})
	curLevel := buildLevel(g, ext, []pyramid.KeypointData{curKp})

	d := depth.NewDepthImage(intr, 200, 200, 0.5)
	d.Depth[180*200+180] = 2.0
	matches := Run(refLevel, curLevel, g, ext, intr, spatialmath.Identity(), d, DefaultOptions())
	test.That(t, len(matches), test.ShouldEqual, 0)
}
