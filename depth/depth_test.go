package depth

import (
	"testing"

	"go.viam.com/test"

	"github.com/Simsdebims/fovis/calib"
)

func testIntrinsics() calib.Intrinsics {
	return calib.Intrinsics{Width: 640, Height: 480, Fx: 500, Fy: 500, Cx: 320, Cy: 240}
}

func TestDepthImageHasValidDepth(t *testing.T) {
	d := NewDepthImage(testIntrinsics(), 640, 480, 0.5)
	test.That(t, d.HasValidDepth(0, 100, 100), test.ShouldBeFalse)
	d.Depth[100*640+100] = 2.0
	test.That(t, d.HasValidDepth(0, 100, 100), test.ShouldBeTrue)
}

func TestDepthImageXYZAtUnprojects(t *testing.T) {
	d := NewDepthImage(testIntrinsics(), 640, 480, 0.5)
	d.Depth[240*640+320] = 3.0 // principal point
	xyz, ok := d.XYZAt(0, 320, 240)
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, xyz.Z, test.ShouldEqual, 3.0)
	test.That(t, xyz.X, test.ShouldBeBetween, -1e-9, 1e-9)
	test.That(t, xyz.Y, test.ShouldBeBetween, -1e-9, 1e-9)
}

func TestDepthImageCoarserLevelScalesCoordinates(t *testing.T) {
	d := NewDepthImage(testIntrinsics(), 640, 480, 0.5)
	d.Depth[240*640+320] = 1.5
	// level-1 coordinate (160, 120) maps to level-0 (320, 240).
	xyz, ok := d.XYZAt(1, 160, 120)
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, xyz.Z, test.ShouldEqual, 1.5)
}

func TestDepthImageRefineXYZFallsBackWithoutDepth(t *testing.T) {
	d := NewDepthImage(testIntrinsics(), 640, 480, 0.5)
	fallback := testIntrinsics().Unproject(50, 50, 2.0)
	xyz, ok := d.RefineXYZ(0, 400, 400, fallback)
	test.That(t, ok, test.ShouldBeFalse)
	test.That(t, xyz, test.ShouldResemble, fallback)
}

func TestStereoDepthFromDisparity(t *testing.T) {
	s := NewStereo(testIntrinsics(), 0.1, 640, 480, 0.5)
	s.Disparity[240*640+320] = 10.0 // depth = fx*baseline/disp = 500*0.1/10 = 5
	xyz, ok := s.XYZAt(0, 320, 240)
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, xyz.Z, test.ShouldEqual, 5.0)
}

func TestStereoSigmaRange(t *testing.T) {
	s := NewStereo(testIntrinsics(), 0.1, 640, 480, 0.75)
	test.That(t, s.SigmaRange(), test.ShouldEqual, 0.75)
}
