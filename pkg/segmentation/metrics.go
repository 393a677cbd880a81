package segmentation

import (
	"image"
	"image/color"

	"github.com/pkg/errors"
)

// Metrics holds the agreement between a segmentation mask and a ground
// truth mask. They are used to evaluate a run against a reference
// segmentation or to compare different parameter sets.
type Metrics struct {
	// TruePositive, FalsePositive, FalseNegative and TrueNegative are pixel counts
	TruePositive  int
	FalsePositive int
	FalseNegative int
	TrueNegative  int

	// Dice is 2|A∩B| / (|A|+|B|). Values range from 0 to 1, with 1
	// indicating identical masks.
	Dice float64

	// Jaccard (intersection over union) is |A∩B| / |A∪B|.
	Jaccard float64

	// Accuracy is the fraction of pixels labeled the same in both masks.
	Accuracy float64

	// Precision is the fraction of segmented pixels that belong to the object.
	Precision float64

	// Recall is the fraction of object pixels that were segmented.
	Recall float64
}

// CompareMasks computes the metrics of mask against truth. A pixel is set
// when its gray level is non-zero; both masks must have the same size.
func CompareMasks(mask, truth image.Image) (Metrics, error) {
	var m Metrics
	if mask == nil || truth == nil {
		return m, errors.New("both masks are required")
	}
	mb, tb := mask.Bounds(), truth.Bounds()
	if mb.Dx() != tb.Dx() || mb.Dy() != tb.Dy() {
		return m, errors.Errorf("mask size %dx%d differs from ground truth %dx%d",
			mb.Dx(), mb.Dy(), tb.Dx(), tb.Dy())
	}

	for y := 0; y < mb.Dy(); y++ {
		for x := 0; x < mb.Dx(); x++ {
			a := isSet(mask.At(mb.Min.X+x, mb.Min.Y+y))
			b := isSet(truth.At(tb.Min.X+x, tb.Min.Y+y))
			switch {
			case a && b:
				m.TruePositive++
			case a:
				m.FalsePositive++
			case b:
				m.FalseNegative++
			default:
				m.TrueNegative++
			}
		}
	}

	tp := float64(m.TruePositive)
	fp := float64(m.FalsePositive)
	fn := float64(m.FalseNegative)
	total := float64(mb.Dx() * mb.Dy())

	m.Dice = ratio(2*tp, 2*tp+fp+fn)
	m.Jaccard = ratio(tp, tp+fp+fn)
	m.Precision = ratio(tp, tp+fp)
	m.Recall = ratio(tp, tp+fn)
	m.Accuracy = ratio(tp+float64(m.TrueNegative), total)
	return m, nil
}

// ratio returns num/den, or 1 when both are zero (two empty masks agree)
func ratio(num, den float64) float64 {
	if den == 0 {
		return 1
	}
	return num / den
}

func isSet(c color.Color) bool {
	return color.GrayModel.Convert(c).(color.Gray).Y > 0
}
