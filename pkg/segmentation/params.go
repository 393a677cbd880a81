package segmentation

import (
	"math"

	"github.com/pkg/errors"
	"go.uber.org/multierr"

	"voronoiseg/internal/models"
	"voronoiseg/pkg/colorspace"
	"voronoiseg/pkg/homogeneity"
)

// Params holds the segmentation parameters.
// These parameters control seeding, refinement and the homogeneity model.
type Params struct {
	// Variant selects the color (R, G, B, Hue, Chroma, Value) or the scalar
	// (gray level) homogeneity test.
	Variant colorspace.Variant

	// MaxValue is the maximum channel value of the input; 255 for 8-bit images.
	MaxValue float64

	// Model is the reference statistics, tolerances and test channels.
	// The engine reads it on every classification, so changes made between
	// runs (or by TakeAPrior) take effect.
	Model *homogeneity.Model

	// ExplicitReference keeps Model.Reference when a prior mask is taken.
	// When false the prior's object statistics replace it.
	ExplicitReference bool

	// MaxIterations bounds the number of refinement rounds.
	MaxIterations int

	// SeedCount is the number of random generators placed when neither
	// InitialGenerators nor a prior mask provide the initial set.
	SeedCount int

	// InitialGenerators, when set, replace random seeding.
	InitialGenerators []models.GeneratorPoint

	// MinCellSize is the pixel count at or below which a boundary cell is
	// not subdivided any further.
	MinCellSize int

	// MaxSeedRetries bounds both the jittered diagram rebuilds after an
	// invalid diagram and the jitter attempts for a colliding new generator.
	MaxSeedRetries int

	// JitterRadius is the largest per-axis offset, in pixels, applied when a
	// generator has to be perturbed.
	JitterRadius float64

	// Workers bounds the goroutines classifying cells; <= 0 uses all CPUs.
	// The result does not depend on it.
	Workers int

	// RandomSeed seeds the generator placement; 0 picks a random seed.
	RandomSeed uint64

	// Prior controls how TakeAPrior derives statistics and seeds.
	Prior PriorParams

	// SaveIntermediaryResults writes an overlay of every round to IntermediaryDir.
	SaveIntermediaryResults bool

	// IntermediaryDir is the directory where round overlays are saved.
	IntermediaryDir string
}

// PriorParams controls the prior-mask initializer
type PriorParams struct {
	// BoundarySpacing keeps at most one contour seed per
	// BoundarySpacing x BoundarySpacing pixel block.
	BoundarySpacing int

	// BackgroundSeeds is the number of generators scattered over the rest of
	// the domain, one per block of a regular grid.
	BackgroundSeeds int

	// UseBackground derives direct tolerances from the separation between
	// object and background statistics.
	UseBackground bool

	// MeanDeviation scales the object/background separation when
	// UseBackground is set.
	MeanDeviation float64

	// AutoSelectChannels picks the color test channels that best separate
	// the object from the background.
	AutoSelectChannels bool
}

// DefaultParams returns the parameters used when nothing is configured
func DefaultParams(variant colorspace.Variant) Params {
	return Params{
		Variant:        variant,
		MaxValue:       colorspace.DefaultMaxValue,
		Model:          homogeneity.NewModel(variant),
		MaxIterations:  20,
		SeedCount:      200,
		MinCellSize:    5,
		MaxSeedRetries: 10,
		JitterRadius:   0.5,
		RandomSeed:     1,
		Prior: PriorParams{
			BoundarySpacing: 4,
			BackgroundSeeds: 64,
			MeanDeviation:   0.8,
		},
		IntermediaryDir: "intermediary",
	}
}

// Validate reports every problem with the parameters at once
func (p *Params) Validate() error {
	var err error
	if p.Variant != colorspace.Color && p.Variant != colorspace.Scalar {
		err = multierr.Append(err, errors.Errorf("unknown variant %d", p.Variant))
	}
	if p.MaxValue <= 0 || math.IsNaN(p.MaxValue) || math.IsInf(p.MaxValue, 0) {
		err = multierr.Append(err, errors.Errorf("max value must be positive, got %v", p.MaxValue))
	}
	if p.Model == nil {
		err = multierr.Append(err, errors.New("homogeneity model is required"))
	} else if mErr := p.Model.Validate(p.Variant); mErr != nil {
		err = multierr.Append(err, errors.Wrap(mErr, "homogeneity model"))
	}
	if p.MaxIterations < 1 {
		err = multierr.Append(err, errors.Errorf("max iterations must be at least 1, got %d", p.MaxIterations))
	}
	if p.SeedCount < 1 && len(p.InitialGenerators) == 0 {
		err = multierr.Append(err, errors.Errorf("seed count must be at least 1, got %d", p.SeedCount))
	}
	if p.MinCellSize < 0 {
		err = multierr.Append(err, errors.Errorf("min cell size must not be negative, got %d", p.MinCellSize))
	}
	if p.MaxSeedRetries < 0 {
		err = multierr.Append(err, errors.Errorf("max seed retries must not be negative, got %d", p.MaxSeedRetries))
	}
	if p.JitterRadius <= 0 || math.IsNaN(p.JitterRadius) {
		err = multierr.Append(err, errors.Errorf("jitter radius must be positive, got %v", p.JitterRadius))
	}
	if p.Prior.BoundarySpacing < 1 {
		err = multierr.Append(err, errors.Errorf("prior boundary spacing must be at least 1, got %d", p.Prior.BoundarySpacing))
	}
	if p.Prior.BackgroundSeeds < 0 {
		err = multierr.Append(err, errors.Errorf("prior background seeds must not be negative, got %d", p.Prior.BackgroundSeeds))
	}
	if p.Prior.MeanDeviation < 0 || math.IsNaN(p.Prior.MeanDeviation) {
		err = multierr.Append(err, errors.Errorf("prior mean deviation must not be negative, got %v", p.Prior.MeanDeviation))
	}
	if p.SaveIntermediaryResults && p.IntermediaryDir == "" {
		err = multierr.Append(err, errors.New("intermediary directory is required when saving intermediary results"))
	}
	return err
}
