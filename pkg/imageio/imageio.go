// Package imageio loads input images and binary masks and saves masks.
package imageio

import (
	"image"
	"image/color"
	"os"
	"path/filepath"

	"github.com/disintegration/imaging"
	"github.com/pkg/errors"
)

// Load reads an image from a file; the format is detected from its content.
// EXIF orientation is applied so the pixels match what viewers show.
func Load(path string) (image.Image, error) {
	img, err := imaging.Open(path, imaging.AutoOrientation(true))
	if err != nil {
		return nil, errors.Wrapf(err, "failed to load image %s", path)
	}
	return img, nil
}

// LoadMask reads a mask image and binarizes it: 1 where the gray level is
// non-zero, 0 elsewhere
func LoadMask(path string) (*image.Gray, error) {
	img, err := Load(path)
	if err != nil {
		return nil, err
	}
	return Binarize(img), nil
}

// Binarize converts an image into a 0/1 mask with the same bounds
func Binarize(img image.Image) *image.Gray {
	bounds := img.Bounds()
	mask := image.NewGray(bounds)
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			if color.GrayModel.Convert(img.At(x, y)).(color.Gray).Y > 0 {
				mask.SetGray(x, y, color.Gray{Y: 1})
			}
		}
	}
	return mask
}

// SaveMask writes a 0/1 mask, scaling set pixels to value (255 gives a
// black and white image, 1 keeps the raw labels). The format follows the
// file extension.
func SaveMask(path string, mask *image.Gray, value uint8) error {
	if mask == nil {
		return errors.New("nil mask")
	}
	out := image.NewGray(mask.Rect)
	for i, v := range mask.Pix {
		if v != 0 {
			out.Pix[i] = value
		}
	}
	return Save(path, out)
}

// Save writes an image, creating the parent directory if needed
func Save(path string, img image.Image) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return errors.Wrapf(err, "failed to create directory for %s", path)
	}
	if err := imaging.Save(img, path); err != nil {
		return errors.Wrapf(err, "failed to save image %s", path)
	}
	return nil
}
