// Package descriptor implements the intensity-patch descriptor extractor
// of §4.3: the concatenated intensities of a 9x9 lattice around a
// keypoint, minus the center, in row-major order.
package descriptor

import (
	"github.com/pkg/errors"

	"github.com/Simsdebims/fovis/pyramid"
)

// offsets is the |dx|<=4, |dy|<=4 integer lattice excluding the center,
// flattened row-major (dy outer, dx inner), yielding 80 samples.
var offsets = buildOffsets()

func buildOffsets() [][2]int {
	var out [][2]int
	for dy := -4; dy <= 4; dy++ {
		for dx := -4; dx <= 4; dx++ {
			if dx == 0 && dy == 0 {
				continue
			}
			out = append(out, [2]int{dx, dy})
		}
	}
	return out
}

// sampleCount is len(offsets): 80.
const sampleCount = 80

// alignment descriptors are padded to, per §4.3. 80 is already a
// multiple of 16, so Stride() equals sampleCount.
const alignment = 16

// Extractor produces fixed-stride intensity descriptors. One Extractor
// is shared by every keypoint extracted from the same image; its stride
// is fixed for the lifetime of the pipeline (§4.3).
type Extractor struct {
	stride int
}

// New returns an Extractor; its published stride is sampleCount rounded
// up to a multiple of alignment (already true for 80).
func New() *Extractor {
	stride := sampleCount
	if rem := stride % alignment; rem != 0 {
		stride += alignment - rem
	}
	return &Extractor{stride: stride}
}

// Stride reports the descriptor byte length this Extractor produces.
func (e *Extractor) Stride() int { return e.stride }

// ExtractAligned samples the lattice at integer pixel coordinates
// (x, y), the exact pixel byte at each offset. dst must have length
// Stride(); bytes beyond sampleCount are zero-padded.
func (e *Extractor) ExtractAligned(g *pyramid.Gray, x, y int, dst []byte) error {
	if len(dst) < e.stride {
		return errors.Errorf("descriptor buffer too small: have %d, need %d", len(dst), e.stride)
	}
	for i, off := range offsets {
		dst[i] = g.At(x+off[0], y+off[1])
	}
	for i := sampleCount; i < e.stride; i++ {
		dst[i] = 0
	}
	return nil
}

// ExtractInterpolated samples the lattice at floating-point coordinates
// (u, v), each sample the bilinear interpolation of the four surrounding
// pixels, rounded to 0..255.
func (e *Extractor) ExtractInterpolated(g *pyramid.Gray, u, v float64, dst []byte) error {
	if len(dst) < e.stride {
		return errors.Errorf("descriptor buffer too small: have %d, need %d", len(dst), e.stride)
	}
	for i, off := range offsets {
		dst[i] = bilinear(g, u+float64(off[0]), v+float64(off[1]))
	}
	for i := sampleCount; i < e.stride; i++ {
		dst[i] = 0
	}
	return nil
}

// bilinear samples g at floating coordinates (x, y) via bilinear
// interpolation of the four surrounding integer pixels, rounded to the
// nearest byte value.
func bilinear(g *pyramid.Gray, x, y float64) byte {
	x0 := int(x)
	y0 := int(y)
	fx := x - float64(x0)
	fy := y - float64(y0)
	x1, y1 := x0+1, y0+1

	clampX := func(v int) int {
		if v < 0 {
			return 0
		}
		if v >= g.Width {
			return g.Width - 1
		}
		return v
	}
	clampY := func(v int) int {
		if v < 0 {
			return 0
		}
		if v >= g.Height {
			return g.Height - 1
		}
		return v
	}

	v00 := float64(g.At(clampX(x0), clampY(y0)))
	v10 := float64(g.At(clampX(x1), clampY(y0)))
	v01 := float64(g.At(clampX(x0), clampY(y1)))
	v11 := float64(g.At(clampX(x1), clampY(y1)))

	top := v00*(1-fx) + v10*fx
	bot := v01*(1-fx) + v11*fx
	val := top*(1-fy) + bot*fy
	if val < 0 {
		val = 0
	}
	if val > 255 {
		val = 255
	}
	return byte(val + 0.5)
}

// ExtractAlignedBatch writes one aligned descriptor per keypoint into
// level, in order, using each keypoint's rounded integer coordinates.
// Byte-for-byte identical to calling ExtractAligned once per keypoint,
// per §4.3's descriptor-parity requirement.
func (e *Extractor) ExtractAlignedBatch(g *pyramid.Gray, kps []pyramid.KeypointData, level *pyramid.Level) error {
	for i, kp := range kps {
		if err := e.ExtractAligned(g, int(kp.U+0.5), int(kp.V+0.5), level.Descriptor(i)); err != nil {
			return errors.Wrapf(err, "keypoint %d", i)
		}
	}
	return nil
}

// ExtractInterpolatedBatch writes one interpolated descriptor per
// keypoint into level, in order. Byte-for-byte identical to calling
// ExtractInterpolated once per keypoint.
func (e *Extractor) ExtractInterpolatedBatch(g *pyramid.Gray, kps []pyramid.KeypointData, level *pyramid.Level) error {
	for i, kp := range kps {
		if err := e.ExtractInterpolated(g, kp.U, kp.V, level.Descriptor(i)); err != nil {
			return errors.Wrapf(err, "keypoint %d", i)
		}
	}
	return nil
}

// SAD returns the sum-of-absolute-differences between two descriptors
// of equal length, per §4.5's matching cost.
func SAD(a, b []byte) int {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	sum := 0
	for i := 0; i < n; i++ {
		d := int(a[i]) - int(b[i])
		if d < 0 {
			d = -d
		}
		sum += d
	}
	return sum
}
