// Package visualization renders segmentation rounds: label overlays drawn
// over the input image, the object boundary image, and the per-round dumps
// saved while a run is in progress.
package visualization

import (
	"fmt"
	"image"
	"image/color"
	"os"
	"path/filepath"

	"github.com/disintegration/imaging"
	"github.com/fogleman/gg"
	"github.com/golang/geo/r2"
	"github.com/pkg/errors"

	"voronoiseg/internal/models"
	"voronoiseg/pkg/diagram"
)

var (
	insideFill    = color.NRGBA{R: 0, G: 255, B: 0, A: 90}
	cellOutline   = color.NRGBA{R: 40, G: 40, B: 40, A: 200}
	boundaryEdge  = color.NRGBA{R: 255, G: 0, B: 0, A: 255}
	generatorMark = color.NRGBA{R: 255, G: 255, B: 0, A: 255}
)

// Viewer renders one round of a segmentation
type Viewer struct {
	// source is the image the diagram was built on
	source image.Image

	// diagram and the per-cell labels of the round
	diagram  *diagram.Diagram
	labels   []models.Label
	boundary []bool
}

// NewViewer creates a viewer for a diagram and its labels. boundary may be
// nil when the boundary cells are not known.
func NewViewer(source image.Image, d *diagram.Diagram, labels []models.Label, boundary []bool) *Viewer {
	return &Viewer{
		source:   source,
		diagram:  d,
		labels:   labels,
		boundary: boundary,
	}
}

// Overlay draws the cells over the source image: Inside cells are tinted
// green, boundary cells are outlined in red, and generators are marked.
func (v *Viewer) Overlay() image.Image {
	d := v.diagram
	var base image.Image
	if v.source != nil {
		base = imaging.Clone(v.source)
	} else {
		base = imaging.New(d.Width, d.Height, color.Black)
	}
	dc := gg.NewContextForImage(base)

	// diagram coordinates are absolute, the canvas starts at 0,0
	dc.Translate(-float64(d.Bounds.Min.X), -float64(d.Bounds.Min.Y))

	dc.SetColor(insideFill)
	for i := range d.Cells {
		c := &d.Cells[i]
		if v.label(i) != models.Inside || c.Empty() {
			continue
		}
		if len(c.Polygon) >= 3 {
			tracePath(dc, c.Polygon)
			dc.Fill()
			continue
		}
		for _, idx := range c.Pixels {
			p := d.PixelCenter(idx)
			dc.DrawRectangle(p.X-0.5, p.Y-0.5, 1, 1)
		}
		dc.Fill()
	}

	dc.SetLineWidth(1)
	for i := range d.Cells {
		c := &d.Cells[i]
		if len(c.Polygon) < 3 {
			continue
		}
		if v.isBoundary(i) {
			dc.SetColor(boundaryEdge)
		} else {
			dc.SetColor(cellOutline)
		}
		tracePath(dc, c.Polygon)
		dc.Stroke()
	}

	dc.SetColor(generatorMark)
	for i := range d.Cells {
		g := d.Cells[i].Generator
		dc.DrawPoint(g.X, g.Y, 1)
		dc.Fill()
	}
	return dc.Image()
}

// Boundary marks the pixels of Inside cells that touch an Outside cell
func (v *Viewer) Boundary() *image.Gray {
	return RenderBoundary(v.diagram, v.labels)
}

// label returns the label of cell i, Outside when unknown
func (v *Viewer) label(i int) models.Label {
	if i < len(v.labels) {
		return v.labels[i]
	}
	return models.Outside
}

func (v *Viewer) isBoundary(i int) bool {
	return i < len(v.boundary) && v.boundary[i]
}

func tracePath(dc *gg.Context, poly []r2.Point) {
	dc.NewSubPath()
	for i, p := range poly {
		if i == 0 {
			dc.MoveTo(p.X, p.Y)
		} else {
			dc.LineTo(p.X, p.Y)
		}
	}
	dc.ClosePath()
}

// RenderOverlay draws a round's labels over the source image
func RenderOverlay(source image.Image, d *diagram.Diagram, labels []models.Label, boundary []bool) image.Image {
	return NewViewer(source, d, labels, boundary).Overlay()
}

// RenderBoundary returns an image of the diagram's bounds where the pixels
// of Inside cells with a 4-neighbor in an Outside cell are 255 and all
// others are 0. Cells without pixels take no part.
func RenderBoundary(d *diagram.Diagram, labels []models.Label) *image.Gray {
	out := image.NewGray(d.Bounds)
	inside := func(idx int) bool {
		o := d.Owner[idx]
		return o < len(labels) && labels[o] == models.Inside
	}

	w, h := d.Width, d.Height
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			idx := y*w + x
			if !inside(idx) {
				continue
			}
			if (x > 0 && !inside(idx-1)) || (x+1 < w && !inside(idx+1)) ||
				(y > 0 && !inside(idx-w)) || (y+1 < h && !inside(idx+w)) {
				out.Pix[y*out.Stride+x] = 255
			}
		}
	}
	return out
}

// SaveImage saves an image; the format follows the file extension
func SaveImage(img image.Image, filename string) error {
	if dir := filepath.Dir(filename); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return errors.Wrapf(err, "failed to create directory %s", dir)
		}
	}
	if err := imaging.Save(img, filename); err != nil {
		return errors.Wrapf(err, "failed to save %s", filename)
	}
	return nil
}

// SaveRound saves a round image as dir/round_NNN.png
func SaveRound(dir string, round int, img image.Image) error {
	return SaveImage(img, RoundFile(dir, round))
}

// RoundFile returns the file a round image is saved to
func RoundFile(dir string, round int) string {
	return filepath.Join(dir, fmt.Sprintf("round_%03d.png", round))
}
