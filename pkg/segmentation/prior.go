package segmentation

import (
	"image"
	"math"

	"github.com/disintegration/imaging"
	"github.com/golang/geo/r2"
	"github.com/pkg/errors"

	"voronoiseg/internal/models"
	"voronoiseg/pkg/colorspace"
	"voronoiseg/pkg/homogeneity"
)

// PriorStatistics is what a prior mask reveals about the object
type PriorStatistics struct {
	Object     homogeneity.ChannelStatistics
	Background homogeneity.ChannelStatistics

	ObjectPixels     int
	BackgroundPixels int
	BoundaryPixels   int
}

// TakeAPrior bootstraps the run from a binary mask of the object.
//
// It returns the object statistics over the set pixels, which become the
// reference unless Params.ExplicitReference is set. Generators are placed on the mask
// contour, at most one per BoundarySpacing block, plus a grid scatter of
// BackgroundSeeds points over the domain; they replace random seeding.
// With UseBackground the mean and std tolerances of every channel are set
// directly from the object/background separation, and with
// AutoSelectChannels (color variant) the test channels are chosen by it.
//
// A mask pixel is set when its gray level is non-zero. A mask whose size
// differs from the input is resized nearest-neighbor first. Called after
// iteration started, TakeAPrior resets the engine to Seeding.
func (e *Engine) TakeAPrior(mask image.Image) (*homogeneity.ChannelStatistics, []models.GeneratorPoint, error) {
	stats, seeds, err := e.analyzePrior(mask)
	if err != nil {
		return nil, nil, err
	}

	model := e.params.Model
	if !e.params.ExplicitReference {
		model.Reference = stats.Object.Clone()
	}

	prior := e.params.Prior
	if stats.BackgroundPixels > 0 {
		if prior.AutoSelectChannels && e.params.Variant == colorspace.Color {
			model.MeanChannels, model.StdChannels = homogeneity.SelectChannels(stats.Object, stats.Background, homogeneity.ColorTestChannels)
			e.logger.Info().
				Ints("mean_channels", model.MeanChannels).
				Ints("std_channels", model.StdChannels).
				Msg("test channels selected from prior")
		}
		if prior.UseBackground {
			for ch := 0; ch < stats.Object.Channels(); ch++ {
				meanTol := prior.MeanDeviation * math.Abs(stats.Object.Mean[ch]-stats.Background.Mean[ch])
				stdTol := prior.MeanDeviation * math.Abs(stats.Object.Std[ch]-stats.Background.Std[ch])
				if err := model.Tolerance.SetChannelMeanTolerance(ch, meanTol); err != nil {
					return nil, nil, errors.Wrapf(err, "channel %d mean tolerance", ch)
				}
				if err := model.Tolerance.SetChannelStdTolerance(ch, stdTol); err != nil {
					return nil, nil, errors.Wrapf(err, "channel %d std tolerance", ch)
				}
			}
		}
	} else if prior.AutoSelectChannels || prior.UseBackground {
		e.logger.Warn().Msg("prior mask covers the whole image, background statistics unavailable")
	}

	if e.state != models.Seeding {
		e.logger.Info().Str("state", e.state.String()).Msg("prior taken after seeding, resetting run")
	}
	e.reset()
	e.priorSeeds = seeds

	e.logger.Info().
		Int("object_pixels", stats.ObjectPixels).
		Int("background_pixels", stats.BackgroundPixels).
		Int("seeds", len(seeds)).
		Msg("prior taken")

	out := stats.Object.Clone()
	return &out, toGenerators(seeds), nil
}

// PriorStatistics measures object and background statistics of a mask
// without changing the engine
func (e *Engine) PriorStatistics(mask image.Image) (*PriorStatistics, error) {
	stats, _, err := e.analyzePrior(mask)
	return stats, err
}

func (e *Engine) analyzePrior(mask image.Image) (*PriorStatistics, []r2.Point, error) {
	if e.tensor == nil {
		return nil, nil, ErrNoInput
	}
	if mask == nil {
		return nil, nil, errors.New("nil prior mask")
	}

	bounds := e.tensor.Bounds
	set := binarize(mask, bounds.Dx(), bounds.Dy())

	var object, background []int
	for idx, ok := range set {
		if ok {
			object = append(object, idx)
		} else {
			background = append(background, idx)
		}
	}
	if len(object) == 0 {
		return nil, nil, ErrEmptyPrior
	}

	contour := contourPixels(set, bounds.Dx(), bounds.Dy())
	thinned := thinPixels(contour, bounds.Dx(), e.params.Prior.BoundarySpacing)

	stats := &PriorStatistics{
		Object:           homogeneity.ComputeStatistics(e.sampler, object),
		Background:       homogeneity.ComputeStatistics(e.sampler, background),
		ObjectPixels:     len(object),
		BackgroundPixels: len(background),
		BoundaryPixels:   len(contour),
	}

	seeds := seedsFromPixels(bounds, thinned)
	seeds = append(seeds, gridSeeds(bounds, e.params.Prior.BackgroundSeeds, e.rng.Float64)...)
	return stats, seeds, nil
}

// binarize returns a row-major set flag per pixel of a width x height mask.
// Masks of another size are resized nearest-neighbor.
func binarize(mask image.Image, width, height int) []bool {
	mb := mask.Bounds()
	if mb.Dx() != width || mb.Dy() != height {
		mask = imaging.Resize(mask, width, height, imaging.NearestNeighbor)
		mb = mask.Bounds()
	}

	set := make([]bool, width*height)
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			set[y*width+x] = isSet(mask.At(mb.Min.X+x, mb.Min.Y+y))
		}
	}
	return set
}

// contourPixels returns the set pixels with an unset 4-neighbor, row-major
func contourPixels(set []bool, width, height int) []int {
	var out []int
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			idx := y*width + x
			if !set[idx] {
				continue
			}
			if (x > 0 && !set[idx-1]) || (x+1 < width && !set[idx+1]) ||
				(y > 0 && !set[idx-width]) || (y+1 < height && !set[idx+width]) {
				out = append(out, idx)
			}
		}
	}
	return out
}

// thinPixels keeps the first pixel of every spacing x spacing block
func thinPixels(indices []int, width, spacing int) []int {
	if spacing <= 1 {
		return indices
	}
	blocks := make(map[[2]int]struct{})
	out := make([]int, 0, len(indices))
	for _, idx := range indices {
		b := [2]int{(idx % width) / spacing, (idx / width) / spacing}
		if _, ok := blocks[b]; ok {
			continue
		}
		blocks[b] = struct{}{}
		out = append(out, idx)
	}
	return out
}

func toGenerators(points []r2.Point) []models.GeneratorPoint {
	out := make([]models.GeneratorPoint, len(points))
	for i, p := range points {
		out[i] = models.GeneratorPoint{Point: p}
	}
	return out
}
