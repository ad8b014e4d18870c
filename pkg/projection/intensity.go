package projection

import (
	"fmt"
	"image"
	"math"

	"golang.org/x/image/draw"

	"ctpatch/internal/models"
	"ctpatch/pkg/config"
	"ctpatch/pkg/enhance"
)

// IntensityProjection collapses one array axis of the volume.
//
// Axis follows array order (0 = z, 1 = y, 2 = x). The image rows and
// columns are the two remaining array axes in order, so the default
// axis 1 gives a coronal view with z along rows and x along columns.
type IntensityProjection struct {
	Axis int
	Mode string

	// OutputSize is (width, height); zero keeps the native size
	OutputSize [2]int

	ClipLimit float64
	TileGrid  [2]int
}

func (p *IntensityProjection) Name() string {
	return "intensity-" + p.Mode
}

// Project reduces, normalizes, enhances, resizes and flips.
func (p *IntensityProjection) Project(vol *models.Volume) (*models.Image, error) {
	img, err := p.Reduce(vol)
	if err != nil {
		return nil, err
	}

	img = enhance.Enhance(img, p.ClipLimit, p.TileGrid)
	if w, h := p.OutputSize[0], p.OutputSize[1]; w > 0 && h > 0 && (w != img.Width || h != img.Height) {
		img = resize(img, w, h)
	}
	img.FlipVertical()

	logStats(p.Name(), img)
	return img, nil
}

// Reduce collapses the projection axis and min-max normalizes the result.
func (p *IntensityProjection) Reduce(vol *models.Volume) (*models.Image, error) {
	if err := checkVolume(vol); err != nil {
		return nil, err
	}
	if p.Mode != config.ModeMax && p.Mode != config.ModeMean {
		return nil, fmt.Errorf("unknown intensity mode %q", p.Mode)
	}

	var img *models.Image
	switch p.Axis {
	case 0:
		img = models.NewImage(vol.Width, vol.Height)
		p.reduce(img, vol.Depth, func(r, c, k int) float64 { return vol.At(c, r, k) })
	case 1:
		img = models.NewImage(vol.Width, vol.Depth)
		p.reduce(img, vol.Height, func(r, c, k int) float64 { return vol.At(c, k, r) })
	case 2:
		img = models.NewImage(vol.Height, vol.Depth)
		p.reduce(img, vol.Width, func(r, c, k int) float64 { return vol.At(k, c, r) })
	default:
		return nil, fmt.Errorf("projection axis must be 0, 1 or 2, got %d", p.Axis)
	}

	normalize(img.Data)
	return img, nil
}

func (p *IntensityProjection) reduce(img *models.Image, n int, at func(r, c, k int) float64) {
	for r := 0; r < img.Height; r++ {
		for c := 0; c < img.Width; c++ {
			var v float64
			if p.Mode == config.ModeMax {
				v = math.Inf(-1)
				for k := 0; k < n; k++ {
					v = math.Max(v, at(r, c, k))
				}
			} else {
				for k := 0; k < n; k++ {
					v += at(r, c, k)
				}
				v /= float64(n)
			}
			img.Set(c, r, v)
		}
	}
}

// Locate maps an array index through reduction, resize and flip.
func (p *IntensityProjection) Locate(size [3]int, idx [3]float64) (float64, float64) {
	var col, row float64
	var cols, rows int
	switch p.Axis {
	case 0:
		col, row, cols, rows = idx[0], idx[1], size[0], size[1]
	case 2:
		col, row, cols, rows = idx[1], idx[2], size[1], size[2]
	default:
		col, row, cols, rows = idx[0], idx[2], size[0], size[2]
	}

	w, h := float64(cols), float64(rows)
	if p.OutputSize[0] > 0 && p.OutputSize[1] > 0 {
		w, h = float64(p.OutputSize[0]), float64(p.OutputSize[1])
	}
	px := col * w / float64(cols)
	py := row * h / float64(rows)
	return px, h - py
}

// resize scales img to w x h through a 16-bit raster.
func resize(img *models.Image, w, h int) *models.Image {
	dst := image.NewGray16(image.Rect(0, 0, w, h))
	src := img.Gray16()
	draw.BiLinear.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Src, nil)
	return models.ImageFromGray16(dst)
}
