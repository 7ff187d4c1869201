package pyramid

import "math"

// NormalizeImage remaps g's intensities in place so the image has mean
// approximately 128 and standard deviation approximately 74, per §4.1 and
// the contract documented in original_source/src/normalize_image.hpp.
// Disabled by default (use-image-normalization); when enabled it runs
// once, before pyramid construction.
func NormalizeImage(g *Gray) {
	n := g.Width * g.Height
	if n == 0 {
		return
	}
	var sum, sumSq float64
	for y := 0; y < g.Height; y++ {
		row := g.Row(y)
		for _, p := range row {
			v := float64(p)
			sum += v
			sumSq += v * v
		}
	}
	meanF := sum / float64(n)
	variance := sumSq/float64(n) - meanF*meanF
	if variance < 0 {
		variance = 0
	}
	// §4.1 specifies integer mean/sd; truncate before using them in the
	// remap below rather than carrying the float precision through.
	mean := float64(int(meanF))
	sd := float64(int(math.Sqrt(variance)))
	if sd < 1 {
		// a flat (or near-flat) image has no contrast to rescale; leave
		// it alone rather than divide by ~zero.
		return
	}
	const targetMean = 128.0
	const targetSD = 74.0
	scale := targetSD / sd
	for y := 0; y < g.Height; y++ {
		row := g.Row(y)
		for x, p := range row {
			out := targetMean + scale*(float64(p)-mean)
			row[x] = clampByte(out)
		}
	}
}

func clampByte(v float64) byte {
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return byte(v + 0.5)
}
