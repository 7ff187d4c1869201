// Package pyramid implements the image pyramid and the per-level keypoint
// and descriptor storage it owns (§3, §4.1 of the spec). It is the one
// package every other stage reaches into for the PyramidLevel data model,
// mirroring how original_source/src/pyramid_level.cpp gives PyramidLevel
// ownership of its own grayscale buffer, keypoint array, and descriptor
// buffer.
package pyramid

import "github.com/pkg/errors"

// alignment is the byte alignment required of every row of a Gray buffer
// and of the buffer's base address, per §3/§5.
const alignment = 16

// Gray is a row-major 8-bit grayscale image with a stride padded to a
// multiple of alignment bytes, matching the raw_gray buffer described in
// §3. Rows outside [0, Height) must never be read; callers that need
// border access go through a dedicated reflect-boundary helper instead.
type Gray struct {
	Width, Height int
	Stride        int
	Pix           []byte
}

// NewGray allocates a Gray buffer of the given size with a 16-byte
// aligned stride. The slice itself is not guaranteed to start on a
// 16-byte boundary (Go's allocator gives no such guarantee), but the
// stride invariant that callers depend on for SIMD-friendly row access is
// maintained regardless.
func NewGray(width, height int) *Gray {
	stride := roundUpToMultiple(width, alignment)
	return &Gray{
		Width:  width,
		Height: height,
		Stride: stride,
		Pix:    make([]byte, stride*height),
	}
}

func roundUpToMultiple(n, m int) int {
	return (n + m - 1) / m * m
}

// At returns the pixel value at (x, y). It does not bounds check; callers
// operate within [0,Width)x[0,Height) by construction throughout this
// pipeline.
func (g *Gray) At(x, y int) byte {
	return g.Pix[y*g.Stride+x]
}

// Set writes the pixel value at (x, y).
func (g *Gray) Set(x, y int, v byte) {
	g.Pix[y*g.Stride+x] = v
}

// Row returns the backing slice for row y, sliced to exactly Width bytes.
func (g *Gray) Row(y int) []byte {
	off := y * g.Stride
	return g.Pix[off : off+g.Width]
}

// CopyFrom copies src's pixel content into g, which must already have
// matching dimensions. It exists so the steady-state pipeline can reuse
// the three frames' pyramid buffers without per-frame allocation: callers
// write new raw images into the existing level-0 Gray rather than
// constructing a fresh one.
func (g *Gray) CopyFrom(src *Gray) error {
	if g.Width != src.Width || g.Height != src.Height {
		return errors.Errorf("size mismatch copying gray image: dst (%d,%d) src (%d,%d)",
			g.Width, g.Height, src.Width, src.Height)
	}
	for y := 0; y < g.Height; y++ {
		copy(g.Row(y), src.Row(y))
	}
	return nil
}

// CopyFromBuffer copies a caller-owned raw grayscale buffer (pointer plus
// stride, per §6's controller input contract) into g.
func (g *Gray) CopyFromBuffer(buf []byte, stride int) error {
	if len(buf) < stride*g.Height {
		return errors.Errorf("input buffer too small: need %d bytes, got %d", stride*g.Height, len(buf))
	}
	for y := 0; y < g.Height; y++ {
		srcRow := buf[y*stride : y*stride+g.Width]
		copy(g.Row(y), srcRow)
	}
	return nil
}

// reflectIndex maps an out-of-range coordinate into [0, n) using symmetric
// (reflect) boundary conditions, per §4.1's convolution boundary rule.
func reflectIndex(i, n int) int {
	if n == 1 {
		return 0
	}
	for i < 0 || i >= n {
		if i < 0 {
			i = -i - 1
		}
		if i >= n {
			i = 2*n - i - 1
		}
	}
	return i
}
