package homogeneity

import (
	"math"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/stat"
)

// ChannelStatistics holds a per-channel mean and standard deviation.
// It is used both for reference ("gold standard") object models and for
// statistics measured over a region.
type ChannelStatistics struct {
	Mean []float64 `yaml:"mean" json:"mean"`
	Std  []float64 `yaml:"std" json:"std"`
}

// NewChannelStatistics creates zeroed statistics for n channels
func NewChannelStatistics(n int) ChannelStatistics {
	return ChannelStatistics{
		Mean: make([]float64, n),
		Std:  make([]float64, n),
	}
}

// Channels returns the number of channels described
func (c ChannelStatistics) Channels() int {
	return len(c.Mean)
}

// Clone returns a deep copy
func (c ChannelStatistics) Clone() ChannelStatistics {
	out := NewChannelStatistics(len(c.Mean))
	copy(out.Mean, c.Mean)
	copy(out.Std, c.Std)
	return out
}

// Validate checks that the statistics describe exactly n channels with finite values
func (c ChannelStatistics) Validate(n int) error {
	if len(c.Mean) != n || len(c.Std) != n {
		return errors.Errorf("expected %d channels of statistics, got %d means and %d stds",
			n, len(c.Mean), len(c.Std))
	}
	for i := 0; i < n; i++ {
		if math.IsNaN(c.Mean[i]) || math.IsInf(c.Mean[i], 0) {
			return errors.Errorf("channel %d mean is not finite", i)
		}
		if math.IsNaN(c.Std[i]) || math.IsInf(c.Std[i], 0) || c.Std[i] < 0 {
			return errors.Errorf("channel %d std must be finite and non-negative", i)
		}
	}
	return nil
}

// MeanStd returns the sample mean and sample standard deviation (n-1 denominator).
//
// A single value has a standard deviation of 0. An empty slice has no
// defined statistics and yields NaN for both.
func MeanStd(values []float64) (mean, std float64) {
	switch len(values) {
	case 0:
		return math.NaN(), math.NaN()
	case 1:
		return values[0], 0
	}
	mean, std = stat.MeanStdDev(values, nil)
	// rounding can push the variance of a constant sample just below zero
	if math.IsNaN(std) {
		std = 0
	}
	return mean, std
}

// ComputeStatistics measures every channel of the sampler over the given pixels
func ComputeStatistics(s *Sampler, indices []int) ChannelStatistics {
	out := NewChannelStatistics(s.Channels())
	buf := make([]float64, 0, len(indices))
	for ch := 0; ch < s.Channels(); ch++ {
		buf = s.Values(ch, indices, buf)
		out.Mean[ch], out.Std[ch] = MeanStd(buf)
	}
	return out
}
