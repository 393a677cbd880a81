package homogeneity

import (
	"math"
	"sort"

	"github.com/pkg/errors"

	"voronoiseg/internal/models"
	"voronoiseg/pkg/colorspace"
)

// ErrInvalidChannel is returned when a test channel index is out of range
var ErrInvalidChannel = errors.New("invalid channel index")

// ColorTestChannels is the number of channels tested by the color variant
const ColorTestChannels = 3

// Classifier decides whether a region, given as pixel indices, belongs to the object
type Classifier interface {
	Classify(indices []int) models.Label
}

// Model is the reference object model a classifier tests against
type Model struct {
	// Reference is the gold-standard mean and standard deviation per channel
	Reference ChannelStatistics

	// Tolerance holds the allowed absolute deviation per channel
	Tolerance *ToleranceSet

	// MeanChannels are the channels whose mean is tested
	MeanChannels []int

	// StdChannels are the channels whose standard deviation is tested
	StdChannels []int
}

// NewModel creates a model for the given variant with zeroed reference
// statistics, zero tolerances and the default test channels (R, G, B for
// the color variant, the gray channel for the scalar variant).
func NewModel(variant colorspace.Variant) *Model {
	n := variant.Channels()
	m := &Model{
		Reference: NewChannelStatistics(n),
		Tolerance: NewToleranceSet(n),
	}
	if variant == colorspace.Scalar {
		m.MeanChannels = []int{0}
		m.StdChannels = []int{0}
	} else {
		m.MeanChannels = []int{colorspace.Red, colorspace.Green, colorspace.Blue}
		m.StdChannels = []int{colorspace.Red, colorspace.Green, colorspace.Blue}
	}
	return m
}

// Validate checks the model against the channel layout of a variant
func (m *Model) Validate(variant colorspace.Variant) error {
	n := variant.Channels()
	if err := m.Reference.Validate(n); err != nil {
		return errors.Wrap(err, "reference statistics")
	}
	if m.Tolerance == nil || m.Tolerance.Channels() != n {
		return errors.Errorf("tolerance set must cover %d channels", n)
	}

	want := 1
	if variant == colorspace.Color {
		want = ColorTestChannels
	}
	if len(m.MeanChannels) != want {
		return errors.Errorf("%s variant tests exactly %d mean channels, got %d", variant, want, len(m.MeanChannels))
	}
	if len(m.StdChannels) != want {
		return errors.Errorf("%s variant tests exactly %d std channels, got %d", variant, want, len(m.StdChannels))
	}
	for _, ch := range append(append([]int{}, m.MeanChannels...), m.StdChannels...) {
		if ch < 0 || ch >= n {
			return errors.Wrapf(ErrInvalidChannel, "channel %d not in [0,%d)", ch, n)
		}
	}
	return nil
}

// New builds the classifier variant over the sampler and model.
// The model is read on every classification, so later changes to its
// reference or tolerances take effect without rebuilding the classifier.
func New(variant colorspace.Variant, sampler *Sampler, model *Model) (Classifier, error) {
	if sampler == nil || model == nil {
		return nil, errors.New("classifier needs a sampler and a model")
	}
	if sampler.Channels() != variant.Channels() {
		return nil, errors.Errorf("%s classifier needs %d channels, image has %d",
			variant, variant.Channels(), sampler.Channels())
	}
	if err := model.Validate(variant); err != nil {
		return nil, err
	}

	if variant == colorspace.Scalar {
		return &ScalarClassifier{sampler: sampler, model: model}, nil
	}
	return &ColorClassifier{sampler: sampler, model: model}, nil
}

// ScalarClassifier tests the mean and standard deviation of a single channel
type ScalarClassifier struct {
	sampler *Sampler
	model   *Model
}

// Classify returns Inside when the region's mean and std are within tolerance
func (c *ScalarClassifier) Classify(indices []int) models.Label {
	return classify(c.sampler, c.model, c.model.MeanChannels[:1], c.model.StdChannels[:1], indices)
}

// ColorClassifier tests three mean channels and three std channels chosen
// among R, G, B, Hue, Chroma and Value
type ColorClassifier struct {
	sampler *Sampler
	model   *Model
}

// Classify returns Inside when every tested channel is within tolerance
func (c *ColorClassifier) Classify(indices []int) models.Label {
	return classify(c.sampler, c.model, c.model.MeanChannels, c.model.StdChannels, indices)
}

// classify is the shared homogeneity test. An empty region is Outside: its
// statistics are undefined, so homogeneity cannot be confirmed.
func classify(s *Sampler, m *Model, meanChs, stdChs []int, indices []int) models.Label {
	if len(indices) == 0 {
		return models.Outside
	}

	buf := make([]float64, 0, len(indices))
	measured := make(map[int][2]float64, len(meanChs)+len(stdChs))
	measure := func(ch int) (float64, float64) {
		if v, ok := measured[ch]; ok {
			return v[0], v[1]
		}
		buf = s.Values(ch, indices, buf)
		mean, std := MeanStd(buf)
		measured[ch] = [2]float64{mean, std}
		return mean, std
	}

	for _, ch := range meanChs {
		mean, _ := measure(ch)
		if math.Abs(mean-m.Reference.Mean[ch]) > m.Tolerance.MeanAt(ch, m.Reference) {
			return models.Outside
		}
	}
	for _, ch := range stdChs {
		_, std := measure(ch)
		if math.Abs(std-m.Reference.Std[ch]) > m.Tolerance.StdAt(ch, m.Reference) {
			return models.Outside
		}
	}
	return models.Inside
}

// SelectChannels ranks channels by how well they separate the object from
// the background and returns the n best channels for the mean test and the
// n best for the standard deviation test, each in ascending channel order.
//
// The mean score is |objMean-bgMean| / (objStd+bgStd); the std score is
// |objStd-bgStd| / max(objStd, bgStd). Ties keep the lower channel index.
func SelectChannels(object, background ChannelStatistics, n int) (meanChs, stdChs []int) {
	channels := object.Channels()
	if n > channels {
		n = channels
	}

	meanScore := make([]float64, channels)
	stdScore := make([]float64, channels)
	for ch := 0; ch < channels; ch++ {
		meanScore[ch] = separation(math.Abs(object.Mean[ch]-background.Mean[ch]), object.Std[ch]+background.Std[ch])
		stdScore[ch] = separation(math.Abs(object.Std[ch]-background.Std[ch]), math.Max(object.Std[ch], background.Std[ch]))
	}
	return topChannels(meanScore, n), topChannels(stdScore, n)
}

func separation(diff, spread float64) float64 {
	if math.IsNaN(diff) {
		return 0
	}
	if spread <= 1e-12 {
		if diff <= 1e-12 {
			return 0
		}
		return math.Inf(1)
	}
	return diff / spread
}

func topChannels(score []float64, n int) []int {
	order := make([]int, len(score))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(i, j int) bool {
		return score[order[i]] > score[order[j]]
	})
	out := append([]int(nil), order[:n]...)
	sort.Ints(out)
	return out
}
