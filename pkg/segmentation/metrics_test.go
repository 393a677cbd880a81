package segmentation

import (
	"image"
	"math"
	"strings"
	"testing"

	"go.uber.org/multierr"

	"voronoiseg/pkg/colorspace"
)

// TestCompareMasks verifies the confusion counts and derived scores
func TestCompareMasks(t *testing.T) {
	// mask covers columns 0-5, truth covers columns 2-7 of a 10x1 strip
	mask := grayImage(10, 1, func(x, y int) uint8 {
		if x < 6 {
			return 1
		}
		return 0
	})
	truth := grayImage(10, 1, func(x, y int) uint8 {
		if x >= 2 && x < 8 {
			return 255
		}
		return 0
	})

	m, err := CompareMasks(mask, truth)
	if err != nil {
		t.Fatalf("CompareMasks failed: %v", err)
	}
	if m.TruePositive != 4 || m.FalsePositive != 2 || m.FalseNegative != 2 || m.TrueNegative != 2 {
		t.Errorf("Unexpected counts: %+v", m)
	}

	tests := []struct {
		name string
		got  float64
		want float64
	}{
		{"dice", m.Dice, 8.0 / 12.0},
		{"jaccard", m.Jaccard, 4.0 / 8.0},
		{"accuracy", m.Accuracy, 6.0 / 10.0},
		{"precision", m.Precision, 4.0 / 6.0},
		{"recall", m.Recall, 4.0 / 6.0},
	}
	for _, tt := range tests {
		if math.Abs(tt.got-tt.want) > 1e-12 {
			t.Errorf("%s: expected %f, got %f", tt.name, tt.want, tt.got)
		}
	}
}

// TestCompareEmptyMasks verifies that two empty masks agree perfectly
func TestCompareEmptyMasks(t *testing.T) {
	empty := image.NewGray(image.Rect(0, 0, 4, 4))
	m, err := CompareMasks(empty, image.NewGray(image.Rect(2, 2, 6, 6)))
	if err != nil {
		t.Fatalf("CompareMasks failed: %v", err)
	}
	if m.Dice != 1 || m.Jaccard != 1 || m.Accuracy != 1 {
		t.Errorf("Expected perfect agreement, got %+v", m)
	}
}

// TestCompareMasksSizeMismatch verifies that masks of different sizes are rejected
func TestCompareMasksSizeMismatch(t *testing.T) {
	a := image.NewGray(image.Rect(0, 0, 4, 4))
	b := image.NewGray(image.Rect(0, 0, 4, 5))
	if _, err := CompareMasks(a, b); err == nil {
		t.Error("Expected error for different sizes, got nil")
	}
	if _, err := CompareMasks(nil, b); err == nil {
		t.Error("Expected error for a nil mask, got nil")
	}
}

// TestResultMaskImage verifies the scaled copy of the mask
func TestResultMaskImage(t *testing.T) {
	res := &Result{Mask: grayImage(3, 1, func(x, y int) uint8 { return uint8(x % 2) })}
	if res.InsideCount() != 1 {
		t.Errorf("Expected 1 inside pixel, got %d", res.InsideCount())
	}
	img := res.MaskImage(255)
	if img.Pix[0] != 0 || img.Pix[1] != 255 || img.Pix[2] != 0 {
		t.Errorf("Unexpected scaled mask %v", img.Pix)
	}
	if res.Mask.Pix[1] != 1 {
		t.Error("Expected the original mask to be unchanged")
	}
}

// TestParamsValidate verifies that every problem is reported at once
func TestParamsValidate(t *testing.T) {
	p := DefaultParams(colorspace.Scalar)
	if err := p.Validate(); err != nil {
		t.Fatalf("Expected default parameters to be valid, got %v", err)
	}

	p.MaxIterations = 0
	p.JitterRadius = 0
	p.MinCellSize = -1
	p.Prior.BoundarySpacing = 0
	p.SaveIntermediaryResults = true
	p.IntermediaryDir = ""

	err := p.Validate()
	if err == nil {
		t.Fatal("Expected validation errors, got nil")
	}
	if n := len(multierr.Errors(err)); n != 5 {
		t.Errorf("Expected 5 errors, got %d: %v", n, err)
	}
	if !strings.Contains(err.Error(), "jitter radius") {
		t.Errorf("Expected error mentioning the jitter radius, got %v", err)
	}
}
