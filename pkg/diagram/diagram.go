// Package diagram builds the planar Voronoi subdivision the segmentation
// engine refines. Given generator points and the image bounds, a Builder
// returns one cell per generator with its polygon, the pixels whose nearest
// generator it is, and the IDs of adjacent cells.
package diagram

import (
	"image"
	"math"
	"sort"

	"github.com/golang/geo/r1"
	"github.com/golang/geo/r2"
	"github.com/pkg/errors"
)

var (
	// ErrDuplicateGenerator is returned when two generators coincide
	ErrDuplicateGenerator = errors.New("duplicate generator point")

	// ErrDegenerateDiagram is returned when the generator set cannot be
	// turned into a valid subdivision
	ErrDegenerateDiagram = errors.New("degenerate diagram")

	// ErrGeneratorOutOfBounds is returned for a generator outside the bounding region
	ErrGeneratorOutOfBounds = errors.New("generator outside bounding region")

	// ErrNoGenerators is returned for an empty generator set
	ErrNoGenerators = errors.New("no generator points")
)

// CoincidenceQuantum is the grid two generators are compared on; generators
// falling on the same grid point are duplicates.
const CoincidenceQuantum = 1e-6

// Builder constructs a diagram for a generator set inside a bounding region
type Builder interface {
	Build(points []r2.Point, bounds image.Rectangle) (*Diagram, error)
}

// Cell is one region of the diagram. Its ID is the index of its generator
// in the point slice given to Build.
type Cell struct {
	ID        int
	Generator r2.Point

	// Polygon is the cell boundary in order, clipped to the bounding region.
	// It may be nil when the geometry could not be traced; the pixel list is
	// authoritative for membership.
	Polygon []r2.Point

	// Pixels are row-major pixel indices relative to the bounds
	Pixels []int

	// Neighbors are the IDs of cells sharing an edge with this one, ascending
	Neighbors []int
}

// Empty reports whether no pixel has this cell's generator as nearest
func (c *Cell) Empty() bool {
	return len(c.Pixels) == 0
}

// Diagram is a partition of the bounding region into cells
type Diagram struct {
	Bounds image.Rectangle
	Width  int
	Height int
	Cells  []Cell

	// Owner maps every pixel index to the ID of the cell containing it
	Owner []int
}

// Domain returns the continuous bounding region of the diagram
func (d *Diagram) Domain() r2.Rect {
	return Domain(d.Bounds)
}

// PixelCenter returns the image-space center of a pixel index
func (d *Diagram) PixelCenter(idx int) r2.Point {
	x := idx % d.Width
	y := idx / d.Width
	return r2.Point{
		X: float64(d.Bounds.Min.X+x) + 0.5,
		Y: float64(d.Bounds.Min.Y+y) + 0.5,
	}
}

// PixelCentroid returns the mean pixel center of a cell
func (d *Diagram) PixelCentroid(c *Cell) (r2.Point, bool) {
	if c.Empty() {
		return r2.Point{}, false
	}
	var sum r2.Point
	for _, idx := range c.Pixels {
		sum = sum.Add(d.PixelCenter(idx))
	}
	return sum.Mul(1 / float64(len(c.Pixels))), true
}

// Domain converts pixel bounds into the continuous region they cover
func Domain(bounds image.Rectangle) r2.Rect {
	return r2.Rect{
		X: r1.Interval{Lo: float64(bounds.Min.X), Hi: float64(bounds.Max.X)},
		Y: r1.Interval{Lo: float64(bounds.Min.Y), Hi: float64(bounds.Max.Y)},
	}
}

// Key quantizes a point for coincidence checks
type Key struct {
	X, Y int64
}

// KeyOf returns the coincidence key of p
func KeyOf(p r2.Point) Key {
	return Key{
		X: int64(math.Round(p.X / CoincidenceQuantum)),
		Y: int64(math.Round(p.Y / CoincidenceQuantum)),
	}
}

// DuplicateError reports which generators coincide
type DuplicateError struct {
	// Pairs lists (first, later) index pairs of coinciding generators
	Pairs [][2]int
}

func (e *DuplicateError) Error() string {
	return errors.Wrapf(ErrDuplicateGenerator, "%d coinciding generators", len(e.Pairs)).Error()
}

// Unwrap lets errors.Is match ErrDuplicateGenerator
func (e *DuplicateError) Unwrap() error {
	return ErrDuplicateGenerator
}

// ValidateGenerators checks a generator set against the bounding region:
// it must be non-empty, finite, inside the region and free of duplicates.
func ValidateGenerators(points []r2.Point, bounds image.Rectangle) error {
	if len(points) == 0 {
		return ErrNoGenerators
	}
	if bounds.Empty() {
		return errors.Wrap(ErrDegenerateDiagram, "empty bounding region")
	}

	domain := Domain(bounds)
	seen := make(map[Key]int, len(points))
	var dup *DuplicateError
	for i, p := range points {
		if math.IsNaN(p.X) || math.IsNaN(p.Y) || !domain.ContainsPoint(p) {
			return errors.Wrapf(ErrGeneratorOutOfBounds, "generator %d at %v", i, p)
		}
		k := KeyOf(p)
		if first, ok := seen[k]; ok {
			if dup == nil {
				dup = &DuplicateError{}
			}
			dup.Pairs = append(dup.Pairs, [2]int{first, i})
			continue
		}
		seen[k] = i
	}
	if dup != nil {
		return dup
	}
	return nil
}

// CheckPartition verifies that every pixel belongs to exactly one cell and
// that the owner map agrees with the cell pixel lists
func CheckPartition(d *Diagram) error {
	n := d.Width * d.Height
	if len(d.Owner) != n {
		return errors.Errorf("owner map has %d entries, expected %d", len(d.Owner), n)
	}
	seen := make([]bool, n)
	for i := range d.Cells {
		for _, idx := range d.Cells[i].Pixels {
			if idx < 0 || idx >= n {
				return errors.Errorf("cell %d lists pixel %d outside the domain", i, idx)
			}
			if seen[idx] {
				return errors.Errorf("pixel %d belongs to more than one cell", idx)
			}
			seen[idx] = true
			if d.Owner[idx] != i {
				return errors.Errorf("pixel %d owner %d disagrees with cell %d", idx, d.Owner[idx], i)
			}
		}
	}
	for idx, ok := range seen {
		if !ok {
			return errors.Errorf("pixel %d belongs to no cell", idx)
		}
	}
	return nil
}

// neighborPairs collects the distinct pairs of 4-adjacent pixels owned by different cells
func neighborPairs(owner []int, width, height, cells int) [][]int {
	pairs := make(map[uint64]struct{})
	add := func(a, b int) {
		if a > b {
			a, b = b, a
		}
		pairs[uint64(a)<<32|uint64(b)] = struct{}{}
	}
	for y := 0; y < height; y++ {
		row := y * width
		for x := 0; x < width; x++ {
			o := owner[row+x]
			if x+1 < width && owner[row+x+1] != o {
				add(o, owner[row+x+1])
			}
			if y+1 < height && owner[row+width+x] != o {
				add(o, owner[row+width+x])
			}
		}
	}

	neighbors := make([][]int, cells)
	for k := range pairs {
		a := int(k >> 32)
		b := int(k & 0xffffffff)
		neighbors[a] = append(neighbors[a], b)
		neighbors[b] = append(neighbors[b], a)
	}
	for i := range neighbors {
		sort.Ints(neighbors[i])
	}
	return neighbors
}
