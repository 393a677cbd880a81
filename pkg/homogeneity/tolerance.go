package homogeneity

import (
	"math"

	"github.com/pkg/errors"
)

// toleranceSource records which setter last wrote a channel's tolerance
type toleranceSource int

const (
	fromPercent toleranceSource = iota
	fromDirect
)

type channelTolerance struct {
	source  toleranceSource
	direct  float64
	percent float64
}

func (c channelTolerance) resolve(reference float64) float64 {
	if c.source == fromDirect {
		return c.direct
	}
	return c.percent / 100 * math.Abs(reference)
}

// ToleranceSet holds the per-channel absolute tolerances of the mean and
// standard deviation tests.
//
// Each channel is either set directly or derived as
// percentError/100 * |reference|. The setters share the same per-channel
// slot and the last write wins: calling SetMeanPercentError after
// SetMeanTolerance switches the affected channels back to derived values,
// and vice versa. Derived values are resolved against the reference on every
// query, so they always follow the current reference statistics.
type ToleranceSet struct {
	mean []channelTolerance
	std  []channelTolerance
}

// NewToleranceSet creates a tolerance set for n channels with every
// tolerance derived from a zero percent error
func NewToleranceSet(n int) *ToleranceSet {
	return &ToleranceSet{
		mean: make([]channelTolerance, n),
		std:  make([]channelTolerance, n),
	}
}

// Channels returns the number of channels covered
func (t *ToleranceSet) Channels() int {
	return len(t.mean)
}

// SetMeanTolerance writes direct mean tolerances
func (t *ToleranceSet) SetMeanTolerance(v []float64) error {
	return setDirect(t.mean, v)
}

// SetStdTolerance writes direct standard deviation tolerances
func (t *ToleranceSet) SetStdTolerance(v []float64) error {
	return setDirect(t.std, v)
}

// SetMeanPercentError switches the mean tolerances to percent-derived values
func (t *ToleranceSet) SetMeanPercentError(p []float64) error {
	return setPercent(t.mean, p)
}

// SetStdPercentError switches the standard deviation tolerances to percent-derived values
func (t *ToleranceSet) SetStdPercentError(p []float64) error {
	return setPercent(t.std, p)
}

// SetChannelMeanTolerance writes one direct mean tolerance
func (t *ToleranceSet) SetChannelMeanTolerance(ch int, v float64) error {
	if ch < 0 || ch >= len(t.mean) {
		return errors.Wrapf(ErrInvalidChannel, "channel %d", ch)
	}
	if v < 0 || math.IsNaN(v) {
		return errors.Errorf("tolerance for channel %d must be non-negative, got %v", ch, v)
	}
	t.mean[ch] = channelTolerance{source: fromDirect, direct: v, percent: t.mean[ch].percent}
	return nil
}

// SetChannelStdTolerance writes one direct standard deviation tolerance
func (t *ToleranceSet) SetChannelStdTolerance(ch int, v float64) error {
	if ch < 0 || ch >= len(t.std) {
		return errors.Wrapf(ErrInvalidChannel, "channel %d", ch)
	}
	if v < 0 || math.IsNaN(v) {
		return errors.Errorf("tolerance for channel %d must be non-negative, got %v", ch, v)
	}
	t.std[ch] = channelTolerance{source: fromDirect, direct: v, percent: t.std[ch].percent}
	return nil
}

// Mean resolves the absolute mean tolerance of every channel against ref
func (t *ToleranceSet) Mean(ref ChannelStatistics) []float64 {
	return resolveAll(t.mean, ref.Mean)
}

// Std resolves the absolute standard deviation tolerance of every channel against ref
func (t *ToleranceSet) Std(ref ChannelStatistics) []float64 {
	return resolveAll(t.std, ref.Std)
}

// MeanAt resolves one channel's mean tolerance
func (t *ToleranceSet) MeanAt(ch int, ref ChannelStatistics) float64 {
	return t.mean[ch].resolve(ref.Mean[ch])
}

// StdAt resolves one channel's standard deviation tolerance
func (t *ToleranceSet) StdAt(ch int, ref ChannelStatistics) float64 {
	return t.std[ch].resolve(ref.Std[ch])
}

func setDirect(dst []channelTolerance, v []float64) error {
	if len(v) != len(dst) {
		return errors.Errorf("expected %d tolerances, got %d", len(dst), len(v))
	}
	for i, x := range v {
		if x < 0 || math.IsNaN(x) {
			return errors.Errorf("tolerance for channel %d must be non-negative, got %v", i, x)
		}
	}
	for i, x := range v {
		dst[i].source = fromDirect
		dst[i].direct = x
	}
	return nil
}

func setPercent(dst []channelTolerance, p []float64) error {
	if len(p) != len(dst) {
		return errors.Errorf("expected %d percent errors, got %d", len(dst), len(p))
	}
	for i, x := range p {
		if x < 0 || math.IsNaN(x) {
			return errors.Errorf("percent error for channel %d must be non-negative, got %v", i, x)
		}
	}
	for i, x := range p {
		dst[i].source = fromPercent
		dst[i].percent = x
	}
	return nil
}

func resolveAll(src []channelTolerance, ref []float64) []float64 {
	out := make([]float64, len(src))
	for i, c := range src {
		r := 0.0
		if i < len(ref) {
			r = ref[i]
		}
		out[i] = c.resolve(r)
	}
	return out
}
