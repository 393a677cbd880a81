package segmentation

import (
	"image"

	"voronoiseg/internal/models"
	"voronoiseg/pkg/diagram"
)

// Result is the outcome of a run
type Result struct {
	// State is Converged or MaxIterationsReached
	State models.State

	// Iterations is the number of rounds run
	Iterations int

	// Mask is 1 where the pixel was Inside in the last round and 0 elsewhere,
	// with the bounds of the input image
	Mask *image.Gray

	// Generators is the final generator set, including the points inserted
	// by the last round
	Generators []models.GeneratorPoint

	// Rounds holds the statistics of every round
	Rounds []RoundStats

	// Diagram, Labels and Boundary describe the last round's cells
	Diagram  *diagram.Diagram
	Labels   []models.Label
	Boundary []bool
}

// InsideCount returns the number of mask pixels classified Inside
func (r *Result) InsideCount() int {
	if r.Mask == nil {
		return 0
	}
	n := 0
	for _, v := range r.Mask.Pix {
		if v != 0 {
			n++
		}
	}
	return n
}

// MaskImage returns a copy of the mask with Inside pixels set to value,
// e.g. 255 for a viewable image
func (r *Result) MaskImage(value uint8) *image.Gray {
	if r.Mask == nil {
		return nil
	}
	out := image.NewGray(r.Mask.Rect)
	for i, v := range r.Mask.Pix {
		if v != 0 {
			out.Pix[i] = value
		}
	}
	return out
}

// maskFromPixels builds a 0/1 mask from row-major pixel flags
func maskFromPixels(bounds image.Rectangle, inside []bool) *image.Gray {
	mask := image.NewGray(bounds)
	w := bounds.Dx()
	for idx, ok := range inside {
		if ok {
			mask.Pix[(idx/w)*mask.Stride+idx%w] = 1
		}
	}
	return mask
}
