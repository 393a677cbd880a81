package diagram

import (
	"image"
	"math"
	"runtime"

	"github.com/golang/geo/r2"
	"github.com/pzsz/voronoi"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// VoronoiBuilder builds diagrams on the pixel grid.
//
// Pixel ownership follows the nearest-generator rule, answered by a KD-tree
// over the generators, so the cells always partition the pixels. Cell
// polygons come from Fortune's sweep (github.com/pzsz/voronoi) closed
// against the bounding region. Two cells are neighbors when they own
// 4-adjacent pixels; cells without pixels therefore have no neighbors.
// A Voronoi edge shorter than a pixel may separate no pair of 4-adjacent
// pixels, so the two cells it bounds are not reported as neighbors.
type VoronoiBuilder struct {
	// Workers bounds the goroutines assigning pixel rows; <= 0 uses all CPUs
	Workers int

	// SkipPolygons disables polygon tracing when only pixel cells are needed
	SkipPolygons bool

	Logger zerolog.Logger
}

// NewVoronoiBuilder creates a builder using the given number of workers
func NewVoronoiBuilder(workers int, logger zerolog.Logger) *VoronoiBuilder {
	return &VoronoiBuilder{Workers: workers, Logger: logger}
}

// Build partitions bounds among the generators
func (b *VoronoiBuilder) Build(points []r2.Point, bounds image.Rectangle) (*Diagram, error) {
	if err := ValidateGenerators(points, bounds); err != nil {
		return nil, err
	}

	d := &Diagram{
		Bounds: bounds,
		Width:  bounds.Dx(),
		Height: bounds.Dy(),
		Cells:  make([]Cell, len(points)),
		Owner:  make([]int, bounds.Dx()*bounds.Dy()),
	}
	for i, p := range points {
		d.Cells[i] = Cell{ID: i, Generator: p}
	}

	if err := b.assignPixels(d, points); err != nil {
		return nil, err
	}

	neighbors := neighborPairs(d.Owner, d.Width, d.Height, len(points))
	for i := range d.Cells {
		d.Cells[i].Neighbors = neighbors[i]
	}

	if !b.SkipPolygons {
		b.tracePolygons(d, points)
	}

	b.Logger.Debug().
		Int("generators", len(points)).
		Int("pixels", len(d.Owner)).
		Msg("diagram built")
	return d, nil
}

// assignPixels fills the owner map and the per-cell pixel lists
func (b *VoronoiBuilder) assignPixels(d *Diagram, points []r2.Point) error {
	index := newNearestIndex(points)

	workers := b.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	var g errgroup.Group
	g.SetLimit(workers)
	for y := 0; y < d.Height; y++ {
		g.Go(func() error {
			row := y * d.Width
			cy := float64(d.Bounds.Min.Y+y) + 0.5
			for x := 0; x < d.Width; x++ {
				d.Owner[row+x] = index.nearest(r2.Point{X: float64(d.Bounds.Min.X+x) + 0.5, Y: cy})
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	counts := make([]int, len(points))
	for _, o := range d.Owner {
		counts[o]++
	}
	for i := range d.Cells {
		if counts[i] > 0 {
			d.Cells[i].Pixels = make([]int, 0, counts[i])
		}
	}
	for idx, o := range d.Owner {
		d.Cells[o].Pixels = append(d.Cells[o].Pixels, idx)
	}
	return nil
}

// tracePolygons computes the cell boundaries with Fortune's sweep. A sweep
// that breaks down on degenerate input leaves every polygon nil; pixel
// ownership is unaffected.
func (b *VoronoiBuilder) tracePolygons(d *Diagram, points []r2.Point) {
	domain := d.Domain()
	if len(points) == 1 {
		d.Cells[0].Polygon = rectPolygon(domain)
		return
	}

	// the sweep sorts its input, so hand it a copy
	vertices := make([]voronoi.Vertex, len(points))
	ids := make(map[r2.Point]int, len(points))
	for i, p := range points {
		vertices[i] = voronoi.Vertex{X: p.X, Y: p.Y}
		ids[p] = i
	}

	defer func() {
		if r := recover(); r != nil {
			for i := range d.Cells {
				d.Cells[i].Polygon = nil
			}
			b.Logger.Warn().
				Interface("panic", r).
				Int("generators", len(points)).
				Msg("polygon sweep failed, continuing with pixel cells")
		}
	}()

	bbox := voronoi.NewBBox(domain.X.Lo, domain.X.Hi, domain.Y.Lo, domain.Y.Hi)
	vd := voronoi.ComputeDiagram(vertices, bbox, true)

	traced := 0
	for _, vc := range vd.Cells {
		id, ok := ids[r2.Point{X: vc.Site.X, Y: vc.Site.Y}]
		if !ok || len(vc.Halfedges) < 3 {
			continue
		}
		poly := make([]r2.Point, 0, len(vc.Halfedges))
		for _, he := range vc.Halfedges {
			start := he.GetStartpoint()
			poly = append(poly, domain.ClampPoint(r2.Point{X: start.X, Y: start.Y}))
		}
		d.Cells[id].Polygon = poly
		traced++
	}

	if traced < len(points) {
		b.Logger.Debug().
			Int("traced", traced).
			Int("generators", len(points)).
			Msg("some cell polygons could not be traced")
		return
	}

	var covered float64
	for i := range d.Cells {
		covered += PolygonArea(d.Cells[i].Polygon)
	}
	if want := domain.Size().X * domain.Size().Y; math.Abs(covered-want) > 1e-6*want {
		b.Logger.Debug().
			Float64("covered", covered).
			Float64("domain", want).
			Msg("cell polygons do not tile the domain")
	}
}
