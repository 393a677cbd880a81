package homogeneity

import (
	"fmt"

	"voronoiseg/pkg/colorspace"
)

// Sampler extracts per-channel values from an augmented image for a list of pixel indices
type Sampler struct {
	img *colorspace.AugmentedImage
}

// NewSampler creates a sampler over a read-only channel tensor
func NewSampler(img *colorspace.AugmentedImage) *Sampler {
	return &Sampler{img: img}
}

// Channels returns the number of channels available for sampling
func (s *Sampler) Channels() int {
	return s.img.Channels
}

// Values appends the value of channel ch for every index to dst and returns it.
// Passing a reused dst avoids an allocation per call.
func (s *Sampler) Values(ch int, indices []int, dst []float64) []float64 {
	if ch < 0 || ch >= s.img.Channels {
		panic(fmt.Sprintf("homogeneity: channel %d out of range [0,%d)", ch, s.img.Channels))
	}
	dst = dst[:0]
	for _, idx := range indices {
		dst = append(dst, s.img.At(idx, ch))
	}
	return dst
}
