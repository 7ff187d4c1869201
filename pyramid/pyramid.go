package pyramid

import "github.com/pkg/errors"

// NewLevels allocates numLevels pyramid levels for a level-0 image of the
// given size, each level k sized floor(width/2^k) x floor(height/2^k), per
// §4.1 and the "Pyramid size" invariant in §8. All levels share the same
// descriptorStride (the extractor's stride is fixed for the whole
// pipeline, §4.3).
func NewLevels(width, height, numLevels, window, descriptorStride int) []*Level {
	levels := make([]*Level, numLevels)
	w, h := width, height
	for k := 0; k < numLevels; k++ {
		levels[k] = NewLevel(w, h, k, window, descriptorStride)
		w, h = w/2, h/2
	}
	return levels
}

// Build fills levels[0] from a caller-supplied raw grayscale buffer
// (pointer plus stride, per §6), optionally normalizes it in place, and
// then builds every coarser level by repeated 5-tap Gaussian downsampling
// (§4.1). scratch is reused across calls to avoid per-frame allocation
// (§5); callers should keep one Scratch per pipeline instance.
func Build(levels []*Level, raw []byte, rawStride int, normalize bool, scratch *Scratch) error {
	if len(levels) == 0 {
		return errors.New("pyramid.Build requires at least one level")
	}
	if err := levels[0].Gray.CopyFromBuffer(raw, rawStride); err != nil {
		return errors.Wrap(err, "copying level 0 input")
	}
	if normalize {
		NormalizeImage(levels[0].Gray)
	}
	for k := 1; k < len(levels); k++ {
		if err := Downsample(levels[k].Gray, levels[k-1].Gray, scratch); err != nil {
			return errors.Wrapf(err, "downsampling level %d", k)
		}
	}
	for _, l := range levels {
		l.Reset()
	}
	return nil
}
