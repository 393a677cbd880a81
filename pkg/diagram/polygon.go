package diagram

import (
	"math"

	"github.com/golang/geo/r2"
)

// PolygonArea returns the unsigned area of a simple polygon (shoelace formula)
func PolygonArea(poly []r2.Point) float64 {
	if len(poly) < 3 {
		return 0
	}
	var sum float64
	for i := range poly {
		j := (i + 1) % len(poly)
		sum += poly[i].Cross(poly[j])
	}
	return math.Abs(sum) / 2
}

// rectPolygon returns the corners of r in counter-clockwise order (y down)
func rectPolygon(r r2.Rect) []r2.Point {
	return []r2.Point{
		{X: r.X.Lo, Y: r.Y.Lo},
		{X: r.X.Hi, Y: r.Y.Lo},
		{X: r.X.Hi, Y: r.Y.Hi},
		{X: r.X.Lo, Y: r.Y.Hi},
	}
}
