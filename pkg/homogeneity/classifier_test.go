package homogeneity

import (
	"errors"
	"image"
	"image/color"
	"math"
	"testing"

	"voronoiseg/internal/models"
	"voronoiseg/pkg/colorspace"
)

// grayTensor builds a scalar tensor from a pattern
func grayTensor(t *testing.T, width, height int, pattern func(x, y int) uint8) *colorspace.AugmentedImage {
	t.Helper()
	img := image.NewGray(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.SetGray(x, y, color.Gray{Y: pattern(x, y)})
		}
	}
	out, err := colorspace.NewAugmenter(colorspace.DefaultMaxValue, colorspace.Scalar).Augment(img)
	if err != nil {
		t.Fatalf("Failed to augment test image: %v", err)
	}
	return out
}

// colorTensor builds a color tensor from a pattern
func colorTensor(t *testing.T, width, height int, pattern func(x, y int) color.RGBA) *colorspace.AugmentedImage {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.SetRGBA(x, y, pattern(x, y))
		}
	}
	out, err := colorspace.NewAugmenter(colorspace.DefaultMaxValue, colorspace.Color).Augment(img)
	if err != nil {
		t.Fatalf("Failed to augment test image: %v", err)
	}
	return out
}

func allIndices(n int) []int {
	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}
	return idx
}

func scalarModel(t *testing.T, mean, meanTol, std, stdTol float64) *Model {
	t.Helper()
	m := NewModel(colorspace.Scalar)
	m.Reference.Mean[0] = mean
	m.Reference.Std[0] = std
	if err := m.Tolerance.SetMeanTolerance([]float64{meanTol}); err != nil {
		t.Fatalf("SetMeanTolerance failed: %v", err)
	}
	if err := m.Tolerance.SetStdTolerance([]float64{stdTol}); err != nil {
		t.Fatalf("SetStdTolerance failed: %v", err)
	}
	return m
}

// TestScalarUniformInside verifies that a uniform region matching the reference is Inside
func TestScalarUniformInside(t *testing.T) {
	tensor := grayTensor(t, 10, 10, func(x, y int) uint8 { return 100 })
	c, err := New(colorspace.Scalar, NewSampler(tensor), scalarModel(t, 100, 5, 0, 5))
	if err != nil {
		t.Fatalf("Failed to create classifier: %v", err)
	}

	if got := c.Classify(allIndices(tensor.Len())); got != models.Inside {
		t.Errorf("Expected inside, got %v", got)
	}
	if got := c.Classify([]int{42}); got != models.Inside {
		t.Errorf("Expected a single matching pixel to be inside, got %v", got)
	}
}

// TestScalarCheckerboardOutside verifies that a high-variance region is Outside
// even though its mean matches
func TestScalarCheckerboardOutside(t *testing.T) {
	tensor := grayTensor(t, 10, 10, func(x, y int) uint8 {
		if (x+y)%2 == 0 {
			return 0
		}
		return 255
	})
	c, err := New(colorspace.Scalar, NewSampler(tensor), scalarModel(t, 128, 5, 0, 5))
	if err != nil {
		t.Fatalf("Failed to create classifier: %v", err)
	}

	if got := c.Classify(allIndices(tensor.Len())); got != models.Outside {
		t.Errorf("Expected outside, got %v", got)
	}
}

// TestEmptyRegionOutside verifies the explicit empty-sample rule
func TestEmptyRegionOutside(t *testing.T) {
	tensor := grayTensor(t, 4, 4, func(x, y int) uint8 { return 100 })
	c, err := New(colorspace.Scalar, NewSampler(tensor), scalarModel(t, 100, 1000, 0, 1000))
	if err != nil {
		t.Fatalf("Failed to create classifier: %v", err)
	}
	if got := c.Classify(nil); got != models.Outside {
		t.Errorf("Expected empty region to be outside, got %v", got)
	}
}

// TestClassifyDeterministic verifies that repeated classification gives the same label
func TestClassifyDeterministic(t *testing.T) {
	tensor := colorTensor(t, 16, 16, func(x, y int) color.RGBA {
		return color.RGBA{R: uint8(x * 13), G: uint8(y * 7), B: uint8((x ^ y) * 5), A: 255}
	})
	model := NewModel(colorspace.Color)
	for ch := 0; ch < colorspace.ColorChannels; ch++ {
		model.Reference.Mean[ch] = 100
		model.Reference.Std[ch] = 40
	}
	if err := model.Tolerance.SetMeanPercentError([]float64{50, 50, 50, 50, 50, 50}); err != nil {
		t.Fatal(err)
	}
	if err := model.Tolerance.SetStdPercentError([]float64{50, 50, 50, 50, 50, 50}); err != nil {
		t.Fatal(err)
	}
	c, err := New(colorspace.Color, NewSampler(tensor), model)
	if err != nil {
		t.Fatalf("Failed to create classifier: %v", err)
	}

	regions := [][]int{allIndices(tensor.Len()), {0, 1, 2, 3}, {17, 40, 200, 255}, {5}}
	for i, r := range regions {
		first := c.Classify(r)
		for k := 0; k < 5; k++ {
			if got := c.Classify(r); got != first {
				t.Errorf("Region %d: classification changed from %v to %v", i, first, got)
			}
		}
	}
}

// TestColorTestChannelSelection verifies that only the selected channels are tested
func TestColorTestChannelSelection(t *testing.T) {
	tensor := colorTensor(t, 8, 8, func(x, y int) color.RGBA {
		return color.RGBA{R: 200, G: 50, B: 50, A: 255}
	})
	model := NewModel(colorspace.Color)
	model.Reference.Mean[colorspace.Red] = 200
	model.Reference.Mean[colorspace.Green] = 50
	model.Reference.Mean[colorspace.Blue] = 0 // deliberately wrong
	if err := model.Tolerance.SetMeanTolerance([]float64{5, 5, 5, 5, 5, 5}); err != nil {
		t.Fatal(err)
	}
	if err := model.Tolerance.SetStdTolerance([]float64{1, 1, 1, 1, 1, 1}); err != nil {
		t.Fatal(err)
	}

	c, err := New(colorspace.Color, NewSampler(tensor), model)
	if err != nil {
		t.Fatalf("Failed to create classifier: %v", err)
	}
	region := allIndices(tensor.Len())
	if got := c.Classify(region); got != models.Outside {
		t.Errorf("Expected outside while blue is tested, got %v", got)
	}

	// Replace blue by red in the mean test
	model.MeanChannels = []int{colorspace.Red, colorspace.Green, colorspace.Red}
	if got := c.Classify(region); got != models.Inside {
		t.Errorf("Expected inside once blue is not tested, got %v", got)
	}
}

// TestNewClassifierValidation verifies construction errors
func TestNewClassifierValidation(t *testing.T) {
	tensor := colorTensor(t, 4, 4, func(x, y int) color.RGBA { return color.RGBA{A: 255} })

	model := NewModel(colorspace.Color)
	model.MeanChannels = []int{0, 1, 6}
	_, err := New(colorspace.Color, NewSampler(tensor), model)
	if !errors.Is(err, ErrInvalidChannel) {
		t.Errorf("Expected ErrInvalidChannel, got %v", err)
	}

	model = NewModel(colorspace.Color)
	model.StdChannels = []int{0, 1}
	if _, err := New(colorspace.Color, NewSampler(tensor), model); err == nil {
		t.Error("Expected error for two std channels")
	}

	if _, err := New(colorspace.Scalar, NewSampler(tensor), NewModel(colorspace.Scalar)); err == nil {
		t.Error("Expected error for scalar classifier on a 6-channel image")
	}
}

// TestComputeStatistics verifies the per-channel sample statistics
func TestComputeStatistics(t *testing.T) {
	tensor := grayTensor(t, 4, 1, func(x, y int) uint8 { return uint8(x * 10) })
	s := ComputeStatistics(NewSampler(tensor), allIndices(4))

	if math.Abs(s.Mean[0]-15) > 1e-9 {
		t.Errorf("Expected mean 15, got %f", s.Mean[0])
	}
	// values 0,10,20,30: sample variance = 500/3
	want := math.Sqrt(500.0 / 3.0)
	if math.Abs(s.Std[0]-want) > 1e-9 {
		t.Errorf("Expected std %f, got %f", want, s.Std[0])
	}

	mean, std := MeanStd(nil)
	if !math.IsNaN(mean) || !math.IsNaN(std) {
		t.Errorf("Expected NaN statistics for no samples, got %f and %f", mean, std)
	}
}

// TestSelectChannels verifies that the most separating channels are chosen
func TestSelectChannels(t *testing.T) {
	object := ChannelStatistics{
		Mean: []float64{100, 100, 100, 10, 50, 60},
		Std:  []float64{1, 1, 1, 1, 1, 30},
	}
	background := ChannelStatistics{
		Mean: []float64{100, 100, 200, 90, 51, 10},
		Std:  []float64{1, 20, 1, 1, 1, 1},
	}

	meanChs, stdChs := SelectChannels(object, background, 3)
	wantMean := []int{2, 3, 5}
	for i := range wantMean {
		if meanChs[i] != wantMean[i] {
			t.Fatalf("Expected mean channels %v, got %v", wantMean, meanChs)
		}
	}
	if len(stdChs) != 3 {
		t.Fatalf("Expected 3 std channels, got %v", stdChs)
	}
	if !(contains(stdChs, 1) && contains(stdChs, 5)) {
		t.Errorf("Expected std channels to include 1 and 5, got %v", stdChs)
	}
}

func contains(list []int, v int) bool {
	for _, x := range list {
		if x == v {
			return true
		}
	}
	return false
}
