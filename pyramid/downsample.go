package pyramid

import "github.com/pkg/errors"

// binomialTap is the 5-tap 1-4-6-4-1 binomial kernel used for both passes
// of the separable Gaussian used to build the pyramid (§4.1). The full 2D
// kernel is its outer product, normalized by 1/256.
var binomialTap = [5]int32{1, 4, 6, 4, 1}

// Scratch is the reusable workspace for Downsample: a full-resolution
// buffer holding the horizontally-filtered, not-yet-subsampled
// intermediate image. Reusing one Scratch across frames avoids the
// per-frame allocation §5 rules out; its sizing mirrors
// gauss_pyr_down_get_buf_size_8u_C1R / gauss_pyr_down_8u_C1R in
// original_source/gauss_pyramid.h.
type Scratch struct {
	width, height int
	row           []int32
}

// NewScratch allocates a Scratch sized for a source image of width x
// height, per DownsampleBufferSize.
func NewScratch(width, height int) *Scratch {
	s := &Scratch{}
	s.ensure(width, height)
	return s
}

// DownsampleBufferSize reports the number of int32 intermediate elements
// Downsample needs for a source image of the given dimensions.
func DownsampleBufferSize(width, height int) int {
	return width * height
}

func (s *Scratch) ensure(width, height int) {
	if s.width == width && s.height == height && s.row != nil {
		return
	}
	s.width, s.height = width, height
	need := width * height
	if cap(s.row) < need {
		s.row = make([]int32, need)
	} else {
		s.row = s.row[:need]
	}
}

// Downsample convolves src with the 5-tap binomial kernel (symmetric
// reflect boundary) and subsamples by 2 in each axis into dst, which must
// already be sized floor(src.Width/2) x floor(src.Height/2). scratch is
// reused as intermediate storage; pass the same *Scratch across frames to
// avoid allocating.
func Downsample(dst, src *Gray, scratch *Scratch) error {
	wantW, wantH := src.Width/2, src.Height/2
	if dst.Width != wantW || dst.Height != wantH {
		return errors.Errorf("downsample dst size (%d,%d) does not match expected (%d,%d)",
			dst.Width, dst.Height, wantW, wantH)
	}
	scratch.ensure(src.Width, src.Height)

	// horizontal pass: unnormalized weighted sum along x, reflect padding.
	for y := 0; y < src.Height; y++ {
		srcRow := src.Row(y)
		dstRow := scratch.row[y*src.Width : (y+1)*src.Width]
		for x := 0; x < src.Width; x++ {
			var sum int32
			for k := -2; k <= 2; k++ {
				xi := reflectIndex(x+k, src.Width)
				sum += binomialTap[k+2] * int32(srcRow[xi])
			}
			dstRow[x] = sum
		}
	}

	// vertical pass + subsample by 2, then normalize by 256 with rounding.
	for oy := 0; oy < dst.Height; oy++ {
		sy := 2 * oy
		dstRow := dst.Row(oy)
		for ox := 0; ox < dst.Width; ox++ {
			sx := 2 * ox
			var sum int32
			for k := -2; k <= 2; k++ {
				yi := reflectIndex(sy+k, src.Height)
				sum += binomialTap[k+2] * scratch.row[yi*src.Width+sx]
			}
			dstRow[ox] = clampByte(float64(sum) / 256.0)
		}
	}
	return nil
}
