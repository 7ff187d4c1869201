package odometry

import (
	"testing"

	"go.viam.com/test"

	"github.com/Simsdebims/fovis/calib"
	"github.com/Simsdebims/fovis/depth"
	"github.com/Simsdebims/fovis/internal/logging"
)

func testIntrinsics() calib.Intrinsics {
	return calib.Intrinsics{Width: 160, Height: 120, Fx: 150, Fy: 150, Cx: 80, Cy: 60}
}

func checkerboardBuf(width, height, stride int) []byte {
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

func uniformDepth(intr calib.Intrinsics, z float64) *depth.DepthImage {
	d := depth.NewDepthImage(intr, intr.Width, intr.Height, 0.5)
	for i := range d.Depth {
		d.Depth[i] = z
	}
	return d
}

func TestFirstFrameForcesReferenceSwitchAndIsInvalid(t *testing.T) {
	intr := testIntrinsics()
	c := New(intr, DefaultOptions(), logging.NewTestLogger(t))
	raw := checkerboardBuf(intr.Width, intr.Height, intr.Width)
	out := c.ProcessFrame(raw, intr.Width, uniformDepth(intr, 2.0))
	test.That(t, out.Valid, test.ShouldBeFalse)
	test.That(t, c.changeReferenceFrames, test.ShouldBeTrue)
}

func TestStillCameraIdenticalFramesYieldIdentityMotion(t *testing.T) {
	intr := testIntrinsics()
	c := New(intr, DefaultOptions(), logging.NewTestLogger(t))
	raw := checkerboardBuf(intr.Width, intr.Height, intr.Width)
	d := uniformDepth(intr, 2.0)

	var last Output
	for i := 0; i < 5; i++ {
		last = c.ProcessFrame(raw, intr.Width, d)
	}
	test.That(t, last.Pose.Translation.Norm(), test.ShouldBeLessThan, 0.05)
}

func TestBlankImageNeverProducesValidEstimate(t *testing.T) {
	intr := testIntrinsics()
	c := New(intr, DefaultOptions(), logging.NewTestLogger(t))
	raw := make([]byte, intr.Width*intr.Height)
	d := uniformDepth(intr, 2.0)

	first := c.ProcessFrame(raw, intr.Width, d)
	test.That(t, first.Valid, test.ShouldBeFalse)
	second := c.ProcessFrame(raw, intr.Width, d)
	test.That(t, second.Valid, test.ShouldBeFalse)
	test.That(t, second.Pose.Translation.Norm(), test.ShouldEqual, 0.0)
}

func TestUnrecognizedOptionKeyWarnsButDoesNotAbort(t *testing.T) {
	intr := testIntrinsics()
	opts := DefaultOptions()
	opts["foo"] = "bar"
	logger := logging.NewTestLogger(t)
	c := New(intr, opts, logger)
	test.That(t, c.fastThreshold, test.ShouldEqual, 20)
}

func TestSanityCheckPassesOnFreshController(t *testing.T) {
	intr := testIntrinsics()
	c := New(intr, DefaultOptions(), logging.NewTestLogger(t))
	test.That(t, c.SanityCheck(), test.ShouldBeNil)
}
