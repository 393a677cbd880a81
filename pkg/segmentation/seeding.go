package segmentation

import (
	"image"
	"math"

	"github.com/golang/geo/r2"
	"github.com/pkg/errors"

	"voronoiseg/internal/models"
	"voronoiseg/pkg/diagram"
)

// seed places the initial generator set. A prior mask takes precedence over
// InitialGenerators, which take precedence over random seeding.
func (e *Engine) seed() error {
	domain := diagram.Domain(e.tensor.Bounds)

	switch {
	case len(e.priorSeeds) > 0:
		e.generators = append([]r2.Point(nil), e.priorSeeds...)
		e.logger.Debug().Int("generators", len(e.generators)).Msg("seeded from prior mask")
	case len(e.params.InitialGenerators) > 0:
		e.generators = models.Points(e.params.InitialGenerators)
		for i, p := range e.generators {
			if !domain.ContainsPoint(p) {
				return errors.Wrapf(diagram.ErrGeneratorOutOfBounds, "initial generator %d at %v", i, p)
			}
		}
		e.logger.Debug().Int("generators", len(e.generators)).Msg("seeded from initial generators")
	default:
		e.generators = randomSeeds(e.tensor.Bounds, e.params.SeedCount, e.rng.Float64)
		e.logger.Debug().Int("generators", len(e.generators)).Msg("seeded at random")
	}
	return nil
}

// randomSeeds scatters up to n distinct points uniformly over bounds
func randomSeeds(bounds image.Rectangle, n int, uniform func() float64) []r2.Point {
	w := float64(bounds.Dx())
	h := float64(bounds.Dy())
	seen := make(map[diagram.Key]struct{}, n)
	points := make([]r2.Point, 0, n)
	for tries := 0; len(points) < n && tries < 10*n; tries++ {
		p := r2.Point{
			X: float64(bounds.Min.X) + uniform()*w,
			Y: float64(bounds.Min.Y) + uniform()*h,
		}
		k := diagram.KeyOf(p)
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		points = append(points, p)
	}
	return points
}

// gridSeeds places one uniformly drawn point in every block of a regular
// grid of about n blocks covering bounds
func gridSeeds(bounds image.Rectangle, n int, uniform func() float64) []r2.Point {
	if n <= 0 {
		return nil
	}
	w := float64(bounds.Dx())
	h := float64(bounds.Dy())
	cols := int(math.Max(1, math.Round(math.Sqrt(float64(n)*w/h))))
	rows := int(math.Max(1, math.Ceil(float64(n)/float64(cols))))
	bw := w / float64(cols)
	bh := h / float64(rows)

	points := make([]r2.Point, 0, rows*cols)
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			points = append(points, r2.Point{
				X: float64(bounds.Min.X) + (float64(c)+uniform())*bw,
				Y: float64(bounds.Min.Y) + (float64(r)+uniform())*bh,
			})
		}
	}
	return points
}

// subdivide inserts generators into boundary cells larger than MinCellSize
// and returns how many were inserted.
//
// A cell with at least 4*MinCellSize pixels receives one generator halfway
// between its generator and each polygon vertex. Smaller cells, and cells
// without a traced polygon, receive one generator at their pixel centroid,
// or halfway to their farthest pixel when the centroid sits on the generator.
func (e *Engine) subdivide(d *diagram.Diagram, boundary []bool) int {
	domain := d.Domain()
	existing := make(map[diagram.Key]struct{}, len(e.generators))
	for _, p := range e.generators {
		existing[diagram.KeyOf(p)] = struct{}{}
	}

	inserted := 0
	dropped := 0
	for i := range d.Cells {
		c := &d.Cells[i]
		if !boundary[i] || c.Empty() || len(c.Pixels) <= e.params.MinCellSize {
			continue
		}
		for _, p := range splitPoints(d, c, e.params.MinCellSize) {
			q, ok := e.place(domain.ClampPoint(p), existing)
			if !ok {
				dropped++
				continue
			}
			existing[diagram.KeyOf(q)] = struct{}{}
			e.generators = append(e.generators, q)
			inserted++
		}
	}
	if dropped > 0 {
		e.logger.Debug().Int("dropped", dropped).Msg("colliding generators dropped")
	}
	return inserted
}

// place returns p, or a jittered copy of it, that coincides with no existing generator
func (e *Engine) place(p r2.Point, existing map[diagram.Key]struct{}) (r2.Point, bool) {
	if _, taken := existing[diagram.KeyOf(p)]; !taken {
		return p, true
	}
	for try := 0; try < e.params.MaxSeedRetries; try++ {
		q := e.jitter(p)
		if _, taken := existing[diagram.KeyOf(q)]; !taken {
			return q, true
		}
	}
	return r2.Point{}, false
}

// splitPoints returns the new generator positions for a boundary cell
func splitPoints(d *diagram.Diagram, c *diagram.Cell, minCellSize int) []r2.Point {
	if len(c.Pixels) >= 4*minCellSize && len(c.Polygon) >= 3 {
		points := make([]r2.Point, 0, len(c.Polygon))
		for _, v := range c.Polygon {
			points = append(points, c.Generator.Add(v).Mul(0.5))
		}
		return points
	}

	centroid, ok := d.PixelCentroid(c)
	if !ok {
		return nil
	}
	if diagram.KeyOf(centroid) != diagram.KeyOf(c.Generator) {
		return []r2.Point{centroid}
	}

	far := c.Generator
	best := -1.0
	for _, idx := range c.Pixels {
		p := d.PixelCenter(idx)
		if dist := p.Sub(c.Generator).Norm(); dist > best {
			best = dist
			far = p
		}
	}
	return []r2.Point{c.Generator.Add(far).Mul(0.5)}
}

// seedsFromPixels converts pixel indices relative to bounds into generators at pixel centers
func seedsFromPixels(bounds image.Rectangle, indices []int) []r2.Point {
	w := bounds.Dx()
	points := make([]r2.Point, len(indices))
	for i, idx := range indices {
		points[i] = models.PixelCenter(bounds.Min.X+idx%w, bounds.Min.Y+idx/w).Point
	}
	return points
}
