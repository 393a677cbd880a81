// Package segmentation implements region segmentation by iterative Voronoi
// refinement.
//
// The engine scatters generator points over the image, asks a diagram
// builder for the cells they induce and labels each cell with a homogeneity
// classifier. Cells touching a cell of the opposite label straddle the object
// boundary; they are split by inserting new generators, and the loop repeats
// until no boundary cell can be split any further. The pixels of the cells
// labeled Inside in the last round form the output mask.
//
// The refinement process consists of several steps:
// 1. Augmenting the input into a channel tensor (once per image)
// 2. Seeding generators at random, from a caller-supplied set or from a prior mask
// 3. Building the diagram, retrying with jittered generators if it is invalid
// 4. Classifying every cell, optionally in parallel
// 5. Subdividing boundary cells larger than the minimum cell size
// 6. Accumulating the Inside pixels of the round
package segmentation

import (
	"context"
	"image"
	"math/rand/v2"
	"runtime"
	"time"

	"github.com/golang/geo/r2"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	"voronoiseg/internal/logging"
	"voronoiseg/internal/models"
	"voronoiseg/pkg/colorspace"
	"voronoiseg/pkg/diagram"
	"voronoiseg/pkg/homogeneity"
	"voronoiseg/pkg/visualization"
)

// RoundStats summarizes one refinement round
type RoundStats struct {
	Round    int `json:"round"`
	Cells    int `json:"cells"`
	Empty    int `json:"empty"`
	Inside   int `json:"inside"`
	Outside  int `json:"outside"`
	Boundary int `json:"boundary"`

	// Splittable counts the boundary cells larger than MinCellSize
	Splittable int `json:"splittable"`

	Inserted int           `json:"inserted"`
	Retries  int           `json:"retries"`
	Elapsed  time.Duration `json:"elapsed"`
}

// Engine runs one segmentation.
//
// An engine owns its augmented image and generator set and is meant for a
// single caller: it does no locking, and concurrent calls on the same
// instance are not supported.
type Engine struct {
	params    Params
	builder   diagram.Builder
	augmenter *colorspace.Augmenter
	logger    zerolog.Logger
	rng       *rand.Rand

	input   image.Image
	tensor  *colorspace.AugmentedImage
	sampler *homogeneity.Sampler
	state   models.State

	// priorSeeds replaces random seeding when a prior mask was taken
	priorSeeds []r2.Point

	generators  []r2.Point
	accumulator []bool
	rounds      []RoundStats
	iterations  int

	last         *diagram.Diagram
	lastLabels   []models.Label
	lastBoundary []bool
}

// NewEngine creates an engine with the provided parameters.
//
// Parameters:
//   - params: segmentation configuration, validated here
//   - logger: parent logger; the engine logs under component=segmentation
//
// Returns:
//   - A new Engine in the Uninitialized state, or the aggregated validation errors
func NewEngine(params Params, logger zerolog.Logger) (*Engine, error) {
	if err := params.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid segmentation parameters")
	}

	seed := params.RandomSeed
	if seed == 0 {
		seed = rand.Uint64()
	}

	log := logging.Component(logger, "segmentation")
	return &Engine{
		params:    params,
		builder:   diagram.NewVoronoiBuilder(params.Workers, logging.Component(logger, "diagram")),
		augmenter: colorspace.NewAugmenter(params.MaxValue, params.Variant),
		logger:    log,
		rng:       rand.New(rand.NewPCG(seed, seed^0x5851f42d4c957f2d)),
		state:     models.Uninitialized,
	}, nil
}

// SetBuilder replaces the diagram builder
func (e *Engine) SetBuilder(b diagram.Builder) {
	e.builder = b
}

// Params returns the engine parameters. The model is shared, not copied.
func (e *Engine) Params() Params {
	return e.params
}

// Model returns the homogeneity model the engine classifies with
func (e *Engine) Model() *homogeneity.Model {
	return e.params.Model
}

// State returns the lifecycle state
func (e *Engine) State() models.State {
	return e.state
}

// Augmenter returns the augmenter owning the channel tensor
func (e *Engine) Augmenter() *colorspace.Augmenter {
	return e.augmenter
}

// Generators returns a copy of the current generator set
func (e *Engine) Generators() []models.GeneratorPoint {
	return toGenerators(e.generators)
}

// SetInput augments img and moves the engine to Seeding. Setting the same
// unchanged image again reuses the cached tensor.
func (e *Engine) SetInput(img image.Image) error {
	tensor, err := e.augmenter.Augment(img)
	if err != nil {
		return errors.Wrap(err, "failed to augment input")
	}
	if e.tensor != tensor {
		e.priorSeeds = nil
	}
	e.input = img
	e.tensor = tensor
	e.sampler = homogeneity.NewSampler(tensor)
	e.reset()
	e.logger.Debug().
		Int("width", tensor.Width).
		Int("height", tensor.Height).
		Str("variant", e.params.Variant.String()).
		Int("recomputations", e.augmenter.Recomputations()).
		Msg("input set")
	return nil
}

// reset discards every run result and returns to Seeding
func (e *Engine) reset() {
	e.state = models.Seeding
	e.generators = nil
	e.accumulator = nil
	e.rounds = nil
	e.iterations = 0
	e.last = nil
	e.lastLabels = nil
	e.lastBoundary = nil
}

// Run refines the diagram until it converges or the iteration budget is
// spent, and returns the final mask.
//
// The context is checked between rounds; a cancelled run keeps its state
// and can be resumed by calling Run again.
func (e *Engine) Run(ctx context.Context) (*Result, error) {
	switch {
	case e.state == models.Uninitialized:
		return nil, ErrNoInput
	case e.state.Terminal():
		return nil, errors.Wrapf(ErrRunFinished, "state %s", e.state)
	}

	classifier, err := homogeneity.New(e.params.Variant, e.sampler, e.params.Model)
	if err != nil {
		return nil, errors.Wrap(err, "failed to build classifier")
	}
	model := e.params.Model
	e.logger.Debug().
		Ints("mean_channels", model.MeanChannels).
		Ints("std_channels", model.StdChannels).
		Floats64("mean_tolerance", model.Tolerance.Mean(model.Reference)).
		Floats64("std_tolerance", model.Tolerance.Std(model.Reference)).
		Msg("classifier ready")

	if e.state == models.Seeding {
		if err := e.seed(); err != nil {
			return nil, err
		}
		e.state = models.Iterating
	}

	if e.params.SaveIntermediaryResults {
		e.logger.Info().Str("dir", e.params.IntermediaryDir).Msg("saving round overlays")
	}

	for e.iterations < e.params.MaxIterations {
		if err := ctx.Err(); err != nil {
			return nil, errors.Wrap(err, "segmentation interrupted")
		}

		inserted, err := e.round(ctx, classifier)
		if err != nil {
			if ctx.Err() != nil {
				return nil, errors.Wrap(err, "segmentation interrupted")
			}
			e.state = models.Unrecoverable
			e.accumulator = nil
			e.logger.Error().Err(err).Int("round", e.iterations+1).Msg("segmentation aborted")
			return nil, err
		}
		e.iterations++

		if inserted == 0 {
			e.state = models.Converged
			break
		}
	}
	if e.state == models.Iterating {
		e.state = models.MaxIterationsReached
	}

	res := e.result()
	e.logger.Info().
		Str("state", e.state.String()).
		Int("iterations", e.iterations).
		Int("generators", len(e.generators)).
		Int("inside_pixels", res.InsideCount()).
		Msg("segmentation finished")
	return res, nil
}

// round runs one build, classify, subdivide cycle and returns the number
// of generators inserted
func (e *Engine) round(ctx context.Context, classifier homogeneity.Classifier) (int, error) {
	start := time.Now()

	d, retries, err := e.buildDiagram()
	if err != nil {
		return 0, err
	}

	labels, err := e.classifyCells(ctx, d, classifier)
	if err != nil {
		return 0, err
	}
	boundary := boundaryCells(d, labels)
	inserted := e.subdivide(d, boundary)

	e.accumulator = make([]bool, len(d.Owner))
	stats := RoundStats{
		Round:    e.iterations + 1,
		Cells:    len(d.Cells),
		Inserted: inserted,
		Retries:  retries,
	}
	for i := range d.Cells {
		c := &d.Cells[i]
		switch {
		case c.Empty():
			stats.Empty++
		case labels[i] == models.Inside:
			stats.Inside++
			for _, idx := range c.Pixels {
				e.accumulator[idx] = true
			}
		default:
			stats.Outside++
		}
		if boundary[i] {
			stats.Boundary++
			if len(c.Pixels) > e.params.MinCellSize {
				stats.Splittable++
			}
		}
	}
	stats.Elapsed = time.Since(start)
	e.rounds = append(e.rounds, stats)

	e.last = d
	e.lastLabels = labels
	e.lastBoundary = boundary

	e.logger.Debug().
		Int("round", stats.Round).
		Int("cells", stats.Cells).
		Int("inside", stats.Inside).
		Int("outside", stats.Outside).
		Int("boundary", stats.Boundary).
		Int("splittable", stats.Splittable).
		Int("empty", stats.Empty).
		Int("inserted", stats.Inserted).
		Dur("elapsed", stats.Elapsed).
		Msg("round complete")

	if e.params.SaveIntermediaryResults {
		overlay := visualization.RenderOverlay(e.input, d, labels, boundary)
		if err := visualization.SaveRound(e.params.IntermediaryDir, stats.Round, overlay); err != nil {
			e.logger.Warn().Err(err).Int("round", stats.Round).Msg("failed to save round overlay")
		}
	}
	return inserted, nil
}

// buildDiagram asks the builder for the current generator set. An invalid
// diagram is retried with jittered generators up to MaxSeedRetries times.
func (e *Engine) buildDiagram() (*diagram.Diagram, int, error) {
	for attempt := 0; ; attempt++ {
		d, err := e.builder.Build(e.generators, e.tensor.Bounds)
		if err == nil {
			return d, attempt, nil
		}
		if !errors.Is(err, diagram.ErrDuplicateGenerator) && !errors.Is(err, diagram.ErrDegenerateDiagram) {
			return nil, attempt, errors.Wrap(multierr.Combine(ErrUnrecoverable, err), "diagram construction failed")
		}
		if attempt >= e.params.MaxSeedRetries {
			return nil, attempt, &InvalidDiagramError{Retries: attempt, Err: err}
		}

		e.logger.Warn().
			Err(err).
			Int("attempt", attempt+1).
			Int("max_retries", e.params.MaxSeedRetries).
			Msg("invalid diagram, jittering generators")
		e.jitterInvalid(err)
	}
}

// jitterInvalid perturbs the generators responsible for err: the later
// generator of each coinciding pair, or every generator when the failure
// does not name any.
func (e *Engine) jitterInvalid(err error) {
	var dup *diagram.DuplicateError
	if errors.As(err, &dup) && len(dup.Pairs) > 0 {
		for _, pair := range dup.Pairs {
			e.generators[pair[1]] = e.jitter(e.generators[pair[1]])
		}
		return
	}
	for i := range e.generators {
		e.generators[i] = e.jitter(e.generators[i])
	}
}

// jitter moves p by up to JitterRadius on each axis, staying in the domain
func (e *Engine) jitter(p r2.Point) r2.Point {
	r := e.params.JitterRadius
	q := r2.Point{
		X: p.X + (e.rng.Float64()*2-1)*r,
		Y: p.Y + (e.rng.Float64()*2-1)*r,
	}
	return diagram.Domain(e.tensor.Bounds).ClampPoint(q)
}

// classifyCells labels every cell. Cells without pixels are Outside and
// never reach the classifier.
func (e *Engine) classifyCells(ctx context.Context, d *diagram.Diagram, classifier homogeneity.Classifier) ([]models.Label, error) {
	labels := make([]models.Label, len(d.Cells))

	workers := e.params.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	chunk := (len(d.Cells) + workers - 1) / workers
	if chunk < 1 {
		chunk = 1
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for start := 0; start < len(d.Cells); start += chunk {
		end := min(start+chunk, len(d.Cells))
		g.Go(func() error {
			for i := start; i < end; i++ {
				if err := gctx.Err(); err != nil {
					return err
				}
				if d.Cells[i].Empty() {
					labels[i] = models.Outside
					continue
				}
				labels[i] = classifier.Classify(d.Cells[i].Pixels)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, errors.Wrap(err, "classification interrupted")
	}
	return labels, nil
}

// boundaryCells flags the non-empty cells adjacent to a cell of the opposite label
func boundaryCells(d *diagram.Diagram, labels []models.Label) []bool {
	boundary := make([]bool, len(d.Cells))
	for i := range d.Cells {
		if d.Cells[i].Empty() {
			continue
		}
		for _, n := range d.Cells[i].Neighbors {
			if !d.Cells[n].Empty() && labels[n] == labels[i].Opposite() {
				boundary[i] = true
				break
			}
		}
	}
	return boundary
}

// result snapshots the engine output
func (e *Engine) result() *Result {
	res := &Result{
		State:      e.state,
		Iterations: e.iterations,
		Generators: e.Generators(),
		Rounds:     append([]RoundStats(nil), e.rounds...),
		Diagram:    e.last,
		Labels:     e.lastLabels,
		Boundary:   e.lastBoundary,
	}
	if e.accumulator != nil {
		res.Mask = maskFromPixels(e.tensor.Bounds, e.accumulator)
	}
	return res
}
