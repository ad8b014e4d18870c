// Package visualization writes volumes and projections as PNG images:
// orthogonal slices of patches for quick inspection, projection outputs,
// and projections annotated with the footprints of extracted patches.
package visualization

import (
	"fmt"
	"image"
	"image/color"
	"image/png"
	"math"
	"os"
	"path/filepath"

	"github.com/fogleman/gg"

	"ctpatch/internal/models"
)

// Viewer renders slices of a volume through an intensity window.
type Viewer struct {
	vol *models.Volume

	// window maps [lo, hi] to black..white
	lo, hi float64
}

// NewViewer creates a viewer for vol. Values at or below window[0] are
// black, at or above window[1] white.
func NewViewer(vol *models.Volume, window [2]float64) *Viewer {
	return &Viewer{vol: vol, lo: window[0], hi: window[1]}
}

func (v *Viewer) gray(value float64) color.Gray16 {
	if v.hi <= v.lo {
		return color.Gray16{}
	}
	t := (value - v.lo) / (v.hi - v.lo)
	if math.IsNaN(t) {
		t = 0
	}
	return color.Gray16{Y: uint16(math.Round(math.Max(0, math.Min(1, t)) * 0xffff))}
}

// ExtractSlice extracts a 2D slice from the volume along the specified axis.
// Slices along x span (z, y), along y (x, z) and along z (x, y).
func (v *Viewer) ExtractSlice(axis string, position int) (image.Image, error) {
	if position < 0 {
		return nil, fmt.Errorf("position must be non-negative")
	}
	vol := v.vol

	var img *image.Gray16
	switch axis {
	case "x", "X":
		if position >= vol.Width {
			return nil, fmt.Errorf("position %d exceeds width %d", position, vol.Width)
		}
		img = image.NewGray16(image.Rect(0, 0, vol.Depth, vol.Height))
		for y := 0; y < vol.Height; y++ {
			for z := 0; z < vol.Depth; z++ {
				img.SetGray16(z, y, v.gray(vol.At(position, y, z)))
			}
		}

	case "y", "Y":
		if position >= vol.Height {
			return nil, fmt.Errorf("position %d exceeds height %d", position, vol.Height)
		}
		img = image.NewGray16(image.Rect(0, 0, vol.Width, vol.Depth))
		for z := 0; z < vol.Depth; z++ {
			for x := 0; x < vol.Width; x++ {
				img.SetGray16(x, z, v.gray(vol.At(x, position, z)))
			}
		}

	case "z", "Z":
		if position >= vol.Depth {
			return nil, fmt.Errorf("position %d exceeds depth %d", position, vol.Depth)
		}
		img = image.NewGray16(image.Rect(0, 0, vol.Width, vol.Height))
		for y := 0; y < vol.Height; y++ {
			for x := 0; x < vol.Width; x++ {
				img.SetGray16(x, y, v.gray(vol.At(x, y, position)))
			}
		}

	default:
		return nil, fmt.Errorf("invalid axis: %s (must be x, y, or z)", axis)
	}

	return img, nil
}

// SaveSlice saves an extracted slice as a PNG image
func (v *Viewer) SaveSlice(img image.Image, filename string) error {
	file, err := os.Create(filename)
	if err != nil {
		return err
	}
	if err := png.Encode(file, img); err != nil {
		file.Close()
		return err
	}
	return file.Close()
}

// SaveMidSlices writes the central x, y and z slices as
// <prefix>_x.png, <prefix>_y.png and <prefix>_z.png in outputDir.
func (v *Viewer) SaveMidSlices(outputDir, prefix string) error {
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return err
	}

	mid := map[string]int{"x": v.vol.Width / 2, "y": v.vol.Height / 2, "z": v.vol.Depth / 2}
	for _, axis := range []string{"x", "y", "z"} {
		img, err := v.ExtractSlice(axis, mid[axis])
		if err != nil {
			return err
		}
		filename := filepath.Join(outputDir, fmt.Sprintf("%s_%s.png", prefix, axis))
		if err := v.SaveSlice(img, filename); err != nil {
			return err
		}
	}
	return nil
}

// SavePNG writes a [0, 1] image as 8-bit grayscale.
func SavePNG(img *models.Image, filename string) error {
	if err := os.MkdirAll(filepath.Dir(filename), 0755); err != nil {
		return err
	}
	file, err := os.Create(filename)
	if err != nil {
		return err
	}
	if err := png.Encode(file, img.Gray()); err != nil {
		file.Close()
		return err
	}
	return file.Close()
}

// Footprint is an axis-aligned rectangle in image pixel coordinates.
type Footprint struct {
	Label          string
	X0, Y0, X1, Y1 float64
}

// SaveOverlay draws footprints over img and writes the result as PNG.
func SaveOverlay(img *models.Image, footprints []Footprint, filename string) error {
	dc := gg.NewContextForImage(img.Gray())
	dc.SetLineWidth(1.5)

	for _, f := range footprints {
		x0, x1 := math.Min(f.X0, f.X1), math.Max(f.X0, f.X1)
		y0, y1 := math.Min(f.Y0, f.Y1), math.Max(f.Y0, f.Y1)

		dc.SetRGB(1, 0.2, 0.2)
		dc.DrawRectangle(x0, y0, x1-x0, y1-y0)
		dc.Stroke()

		if f.Label != "" {
			dc.SetRGB(1, 1, 0)
			dc.DrawStringAnchored(f.Label, x0, y0-2, 0, 0)
		}
	}

	if err := os.MkdirAll(filepath.Dir(filename), 0755); err != nil {
		return err
	}
	return dc.SavePNG(filename)
}
