package diagram

import (
	"errors"
	"image"
	"math"
	"math/rand/v2"
	"testing"

	"github.com/golang/geo/r2"
	"github.com/rs/zerolog"
)

func randomPoints(n int, bounds image.Rectangle, seed uint64) []r2.Point {
	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	pts := make([]r2.Point, n)
	for i := range pts {
		pts[i] = r2.Point{
			X: float64(bounds.Min.X) + rng.Float64()*float64(bounds.Dx()),
			Y: float64(bounds.Min.Y) + rng.Float64()*float64(bounds.Dy()),
		}
	}
	return pts
}

// TestBuildPartition verifies that every pixel belongs to exactly one cell
func TestBuildPartition(t *testing.T) {
	bounds := image.Rect(0, 0, 40, 30)
	builder := NewVoronoiBuilder(4, zerolog.Nop())

	for seed := uint64(1); seed <= 5; seed++ {
		pts := randomPoints(25, bounds, seed)
		d, err := builder.Build(pts, bounds)
		if err != nil {
			t.Fatalf("Seed %d: build failed: %v", seed, err)
		}
		if err := CheckPartition(d); err != nil {
			t.Errorf("Seed %d: partition violated: %v", seed, err)
		}
		if len(d.Cells) != len(pts) {
			t.Errorf("Seed %d: expected %d cells, got %d", seed, len(pts), len(d.Cells))
		}
	}
}

// TestBuildNearestGenerator verifies the nearest-generator rule against brute force
func TestBuildNearestGenerator(t *testing.T) {
	bounds := image.Rect(5, 7, 25, 22)
	pts := randomPoints(12, bounds, 42)
	d, err := NewVoronoiBuilder(1, zerolog.Nop()).Build(pts, bounds)
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	for idx, owner := range d.Owner {
		c := d.PixelCenter(idx)
		best := math.Inf(1)
		for _, p := range pts {
			if dist := c.Sub(p).Norm(); dist < best {
				best = dist
			}
		}
		got := c.Sub(pts[owner]).Norm()
		if got-best > 1e-9 {
			t.Fatalf("Pixel %d owned by generator at distance %f, nearest is %f", idx, got, best)
		}
	}
}

// TestBuildNeighbors verifies the adjacency of a two-cell split
func TestBuildNeighbors(t *testing.T) {
	bounds := image.Rect(0, 0, 10, 10)
	pts := []r2.Point{{X: 2.5, Y: 5}, {X: 7.5, Y: 5}, {X: 5, Y: 5.1}}
	d, err := NewVoronoiBuilder(2, zerolog.Nop()).Build(pts, bounds)
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	for i, c := range d.Cells {
		for _, n := range c.Neighbors {
			found := false
			for _, back := range d.Cells[n].Neighbors {
				if back == i {
					found = true
				}
			}
			if !found {
				t.Errorf("Adjacency not symmetric between %d and %d", i, n)
			}
		}
	}
	if len(d.Cells[2].Neighbors) != 2 {
		t.Errorf("Expected the middle cell to touch both others, got %v", d.Cells[2].Neighbors)
	}
}

// TestBuildPolygons verifies that traced polygons tile the domain
func TestBuildPolygons(t *testing.T) {
	bounds := image.Rect(0, 0, 64, 48)
	pts := randomPoints(20, bounds, 7)
	d, err := NewVoronoiBuilder(0, zerolog.Nop()).Build(pts, bounds)
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	total := 0.0
	traced := 0
	for _, c := range d.Cells {
		if c.Polygon == nil {
			continue
		}
		traced++
		total += PolygonArea(c.Polygon)
	}
	if traced != len(pts) {
		t.Skipf("only %d of %d polygons traced", traced, len(pts))
	}
	if math.Abs(total-64*48) > 1e-3*64*48 {
		t.Errorf("Expected polygon areas to sum to %d, got %f", 64*48, total)
	}
}

// TestBuildSingleGenerator verifies that one generator owns the whole domain
func TestBuildSingleGenerator(t *testing.T) {
	bounds := image.Rect(0, 0, 8, 6)
	d, err := NewVoronoiBuilder(1, zerolog.Nop()).Build([]r2.Point{{X: 1, Y: 1}}, bounds)
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	if len(d.Cells[0].Pixels) != 48 {
		t.Errorf("Expected 48 pixels, got %d", len(d.Cells[0].Pixels))
	}
	if area := PolygonArea(d.Cells[0].Polygon); math.Abs(area-48) > 1e-9 {
		t.Errorf("Expected polygon area 48, got %f", area)
	}
}

// TestBuildRejectsDuplicates verifies the distinguishable duplicate error
func TestBuildRejectsDuplicates(t *testing.T) {
	bounds := image.Rect(0, 0, 10, 10)
	pts := []r2.Point{{X: 1, Y: 1}, {X: 5, Y: 5}, {X: 1, Y: 1}}

	_, err := NewVoronoiBuilder(1, zerolog.Nop()).Build(pts, bounds)
	if !errors.Is(err, ErrDuplicateGenerator) {
		t.Fatalf("Expected ErrDuplicateGenerator, got %v", err)
	}
	var dup *DuplicateError
	if !errors.As(err, &dup) {
		t.Fatalf("Expected a DuplicateError, got %T", err)
	}
	if len(dup.Pairs) != 1 || dup.Pairs[0] != [2]int{0, 2} {
		t.Errorf("Expected pair (0,2), got %v", dup.Pairs)
	}
}

// TestBuildRejectsInvalidInput verifies the remaining validation errors
func TestBuildRejectsInvalidInput(t *testing.T) {
	bounds := image.Rect(0, 0, 10, 10)
	builder := NewVoronoiBuilder(1, zerolog.Nop())

	if _, err := builder.Build(nil, bounds); !errors.Is(err, ErrNoGenerators) {
		t.Errorf("Expected ErrNoGenerators, got %v", err)
	}
	if _, err := builder.Build([]r2.Point{{X: 11, Y: 1}}, bounds); !errors.Is(err, ErrGeneratorOutOfBounds) {
		t.Errorf("Expected ErrGeneratorOutOfBounds, got %v", err)
	}
}

// TestEmptyCellHasNoPixels verifies that a generator shadowed by a neighbor
// ends up with an empty cell and no neighbors
func TestEmptyCellHasNoPixels(t *testing.T) {
	bounds := image.Rect(0, 0, 10, 10)
	// the middle generator is squeezed between two others and owns no pixel center
	pts := []r2.Point{{X: 4.5, Y: 4.5}, {X: 4.500002, Y: 4.5}, {X: 5.5, Y: 4.5}}
	builder := NewVoronoiBuilder(1, zerolog.Nop())
	builder.SkipPolygons = true
	d, err := builder.Build(pts, bounds)
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	if err := CheckPartition(d); err != nil {
		t.Fatalf("Partition violated: %v", err)
	}

	if !d.Cells[1].Empty() {
		t.Fatalf("Expected cell 1 to be empty, got %d pixels", len(d.Cells[1].Pixels))
	}
	if len(d.Cells[1].Neighbors) != 0 {
		t.Errorf("Empty cell should have no neighbors, got %v", d.Cells[1].Neighbors)
	}
}

// TestPolygonArea verifies the shoelace area in both orientations
func TestPolygonArea(t *testing.T) {
	square := []r2.Point{{X: 0, Y: 0}, {X: 2, Y: 0}, {X: 2, Y: 2}, {X: 0, Y: 2}}
	if a := PolygonArea(square); a != 4 {
		t.Errorf("Expected area 4, got %f", a)
	}
	reversed := []r2.Point{square[3], square[2], square[1], square[0]}
	if a := PolygonArea(reversed); a != 4 {
		t.Errorf("Expected area 4 for the reversed square, got %f", a)
	}
	if a := PolygonArea(square[:2]); a != 0 {
		t.Errorf("Expected area 0 for a segment, got %f", a)
	}
}
