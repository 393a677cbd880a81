package models

import (
	"github.com/golang/geo/r2"
)

// Label is the per-round classification of a Voronoi cell
type Label int

const (
	// Outside marks a cell whose pixels fail the homogeneity test
	Outside Label = iota
	// Inside marks a cell whose pixels pass the homogeneity test
	Inside
	// Boundary marks a cell adjacent to at least one cell of the opposite label
	Boundary
)

// String returns the lower-case name of the label
func (l Label) String() string {
	switch l {
	case Outside:
		return "outside"
	case Inside:
		return "inside"
	case Boundary:
		return "boundary"
	default:
		return "unknown"
	}
}

// Opposite returns the other object label. Boundary has no opposite and is returned unchanged.
func (l Label) Opposite() Label {
	switch l {
	case Inside:
		return Outside
	case Outside:
		return Inside
	default:
		return l
	}
}

// GeneratorPoint is a seed of one Voronoi cell in image space.
//
// Pixel (x, y) covers the unit square [x, x+1) x [y, y+1), so the center
// of that pixel is (x+0.5, y+0.5).
type GeneratorPoint struct {
	r2.Point
}

// NewGeneratorPoint creates a generator at the given image coordinate
func NewGeneratorPoint(x, y float64) GeneratorPoint {
	return GeneratorPoint{Point: r2.Point{X: x, Y: y}}
}

// PixelCenter returns the generator sitting on the center of pixel (x, y)
func PixelCenter(x, y int) GeneratorPoint {
	return NewGeneratorPoint(float64(x)+0.5, float64(y)+0.5)
}

// Points unwraps a generator set into plain r2 points
func Points(generators []GeneratorPoint) []r2.Point {
	pts := make([]r2.Point, len(generators))
	for i, g := range generators {
		pts[i] = g.Point
	}
	return pts
}

// State is the lifecycle state of a segmentation run
type State int

const (
	Uninitialized State = iota
	Seeding
	Iterating
	Converged
	MaxIterationsReached
	Unrecoverable
)

// String returns a readable state name
func (s State) String() string {
	switch s {
	case Uninitialized:
		return "uninitialized"
	case Seeding:
		return "seeding"
	case Iterating:
		return "iterating"
	case Converged:
		return "converged"
	case MaxIterationsReached:
		return "max-iterations-reached"
	case Unrecoverable:
		return "unrecoverable"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further rounds can run in this state
func (s State) Terminal() bool {
	return s == Converged || s == MaxIterationsReached || s == Unrecoverable
}
