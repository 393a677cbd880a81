package segmentation

import (
	"context"
	"errors"
	"image"
	"image/color"
	"math"
	"testing"

	"voronoiseg/internal/models"
	"voronoiseg/pkg/colorspace"
)

var (
	objectColor     = color.RGBA{R: 200, G: 40, B: 40, A: 255}
	backgroundColor = color.RGBA{R: 30, G: 90, B: 160, A: 255}
)

// quadrantImage returns a 64x64 image whose top-left 32x32 quadrant is the object
func quadrantImage() *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, 64, 64))
	for y := 0; y < 64; y++ {
		for x := 0; x < 64; x++ {
			if x < 32 && y < 32 {
				img.SetRGBA(x, y, objectColor)
			} else {
				img.SetRGBA(x, y, backgroundColor)
			}
		}
	}
	return img
}

// quadrantMask returns the 0/1 mask of the object quadrant
func quadrantMask() *image.Gray {
	mask := image.NewGray(image.Rect(0, 0, 64, 64))
	for y := 0; y < 32; y++ {
		for x := 0; x < 32; x++ {
			mask.SetGray(x, y, color.Gray{Y: 1})
		}
	}
	return mask
}

func colorParams(t *testing.T) Params {
	t.Helper()
	p := DefaultParams(colorspace.Color)
	if err := p.Model.Tolerance.SetMeanTolerance([]float64{20, 20, 20, 20, 20, 20}); err != nil {
		t.Fatalf("Failed to set mean tolerance: %v", err)
	}
	if err := p.Model.Tolerance.SetStdTolerance([]float64{5, 5, 5, 5, 5, 5}); err != nil {
		t.Fatalf("Failed to set std tolerance: %v", err)
	}
	p.MinCellSize = 1
	p.MaxIterations = 60
	p.Workers = 2
	p.RandomSeed = 3
	p.Prior.BoundarySpacing = 4
	p.Prior.BackgroundSeeds = 16
	return p
}

// TestTakeAPriorQuadrant verifies the prior bootstrap and the refined mask
func TestTakeAPriorQuadrant(t *testing.T) {
	e := newTestEngine(t, colorParams(t), quadrantImage())

	ref, seeds, err := e.TakeAPrior(quadrantMask())
	if err != nil {
		t.Fatalf("TakeAPrior failed: %v", err)
	}
	for ch, want := range map[int]float64{colorspace.Red: 200, colorspace.Green: 40, colorspace.Blue: 40} {
		if math.Abs(ref.Mean[ch]-want) > 1e-6 {
			t.Errorf("Channel %d: expected reference mean %f, got %f", ch, want, ref.Mean[ch])
		}
	}
	for ch := 0; ch < ref.Channels(); ch++ {
		if ref.Std[ch] > 1e-6 {
			t.Errorf("Channel %d: expected zero reference std, got %g", ch, ref.Std[ch])
		}
	}

	// 15 thinned contour pixels plus a 4x4 background grid
	if len(seeds) != 31 {
		t.Errorf("Expected 31 seeds, got %d", len(seeds))
	}
	if seeds[0].X != 31.5 || seeds[0].Y != 0.5 {
		t.Errorf("Expected the first seed at the contour pixel (31,0), got %v", seeds[0].Point)
	}

	res, err := e.Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	m, err := CompareMasks(res.Mask, quadrantMask())
	if err != nil {
		t.Fatalf("CompareMasks failed: %v", err)
	}
	if m.Jaccard < 0.9 {
		t.Errorf("Expected Jaccard >= 0.9, got %f (state %s after %d rounds)", m.Jaccard, res.State, res.Iterations)
	}
	if m.FalsePositive != 0 {
		t.Errorf("Expected no false positives, got %d", m.FalsePositive)
	}
}

// TestTakeAPriorKeepsExplicitReference verifies that a configured reference survives
func TestTakeAPriorKeepsExplicitReference(t *testing.T) {
	p := colorParams(t)
	p.ExplicitReference = true
	p.Model.Reference.Mean[colorspace.Red] = 123
	e := newTestEngine(t, p, quadrantImage())

	ref, _, err := e.TakeAPrior(quadrantMask())
	if err != nil {
		t.Fatalf("TakeAPrior failed: %v", err)
	}
	if math.Abs(ref.Mean[colorspace.Red]-200) > 1e-6 {
		t.Errorf("Expected the measured object red mean 200, got %f", ref.Mean[colorspace.Red])
	}
	if got := e.Model().Reference.Mean[colorspace.Red]; got != 123 {
		t.Errorf("Expected the explicit reference to be kept, got %f", got)
	}
}

// TestTakeAPriorUseBackground verifies tolerances derived from the separation
func TestTakeAPriorUseBackground(t *testing.T) {
	p := colorParams(t)
	p.Prior.UseBackground = true
	p.Prior.MeanDeviation = 0.5
	p.Prior.AutoSelectChannels = true
	e := newTestEngine(t, p, quadrantImage())

	ref, _, err := e.TakeAPrior(quadrantMask())
	if err != nil {
		t.Fatalf("TakeAPrior failed: %v", err)
	}
	model := e.Model()
	if got := model.Tolerance.MeanAt(colorspace.Red, *ref); math.Abs(got-85) > 1e-6 {
		t.Errorf("Expected red mean tolerance 85, got %f", got)
	}
	if got := model.Tolerance.StdAt(colorspace.Red, *ref); got > 1e-6 {
		t.Errorf("Expected red std tolerance 0, got %f", got)
	}
	if len(model.MeanChannels) != 3 || len(model.StdChannels) != 3 {
		t.Errorf("Expected 3 selected channels each, got %v and %v", model.MeanChannels, model.StdChannels)
	}
}

// TestTakeAPriorEmptyMask verifies that a mask without set pixels is rejected
func TestTakeAPriorEmptyMask(t *testing.T) {
	e := newTestEngine(t, colorParams(t), quadrantImage())
	empty := image.NewGray(image.Rect(0, 0, 64, 64))
	if _, _, err := e.TakeAPrior(empty); !errors.Is(err, ErrEmptyPrior) {
		t.Errorf("Expected ErrEmptyPrior, got %v", err)
	}
}

// TestTakeAPriorWithoutInput verifies that a prior needs an input image
func TestTakeAPriorWithoutInput(t *testing.T) {
	e := newTestEngine(t, colorParams(t), nil)
	if _, _, err := e.TakeAPrior(quadrantMask()); !errors.Is(err, ErrNoInput) {
		t.Errorf("Expected ErrNoInput, got %v", err)
	}
}

// TestTakeAPriorResetsFinishedRun verifies that a prior restarts a finished run
func TestTakeAPriorResetsFinishedRun(t *testing.T) {
	p := colorParams(t)
	p.MaxIterations = 1
	e := newTestEngine(t, p, quadrantImage())
	if _, err := e.Run(context.Background()); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if !e.State().Terminal() {
		t.Fatalf("Expected a terminal state, got %s", e.State())
	}

	if _, _, err := e.TakeAPrior(quadrantMask()); err != nil {
		t.Fatalf("TakeAPrior failed: %v", err)
	}
	if e.State() != models.Seeding {
		t.Errorf("Expected seeding, got %s", e.State())
	}
	res, err := e.Run(context.Background())
	if err != nil {
		t.Fatalf("Run after prior failed: %v", err)
	}
	if res.Iterations != 1 {
		t.Errorf("Expected 1 round, got %d", res.Iterations)
	}
}

// TestPriorStatisticsResizedMask verifies a half-size mask and that the engine is untouched
func TestPriorStatisticsResizedMask(t *testing.T) {
	e := newTestEngine(t, colorParams(t), quadrantImage())

	small := image.NewGray(image.Rect(0, 0, 32, 32))
	for y := 0; y < 16; y++ {
		for x := 0; x < 16; x++ {
			small.SetGray(x, y, color.Gray{Y: 255})
		}
	}
	stats, err := e.PriorStatistics(small)
	if err != nil {
		t.Fatalf("PriorStatistics failed: %v", err)
	}
	if stats.ObjectPixels != 32*32 {
		t.Errorf("Expected 1024 object pixels, got %d", stats.ObjectPixels)
	}
	if stats.BackgroundPixels != 64*64-32*32 {
		t.Errorf("Expected 3072 background pixels, got %d", stats.BackgroundPixels)
	}
	if stats.BoundaryPixels != 63 {
		t.Errorf("Expected 63 contour pixels, got %d", stats.BoundaryPixels)
	}
	if math.Abs(stats.Background.Mean[colorspace.Blue]-160) > 1e-6 {
		t.Errorf("Expected background blue mean 160, got %f", stats.Background.Mean[colorspace.Blue])
	}
	if e.Model().Reference.Mean[colorspace.Red] != 0 {
		t.Error("Expected PriorStatistics to leave the reference unchanged")
	}
}

// TestThinPixels verifies one kept pixel per block
func TestThinPixels(t *testing.T) {
	// pixels (0,0), (1,0), (5,0), (0,5) on a width 10 grid
	got := thinPixels([]int{0, 1, 5, 50}, 10, 4)
	want := []int{0, 5, 50}
	if len(got) != len(want) {
		t.Fatalf("Expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Expected %v, got %v", want, got)
			break
		}
	}
}

// TestGridSeeds verifies that every grid block receives one point
func TestGridSeeds(t *testing.T) {
	bounds := image.Rect(0, 0, 40, 20)
	points := gridSeeds(bounds, 8, func() float64 { return 0.5 })
	if len(points) != 8 {
		t.Fatalf("Expected 8 points, got %d", len(points))
	}
	if points[0].X != 5 || points[0].Y != 5 {
		t.Errorf("Expected first block center (5,5), got %v", points[0])
	}
	if points[7].X != 35 || points[7].Y != 15 {
		t.Errorf("Expected last block center (35,15), got %v", points[7])
	}
}
