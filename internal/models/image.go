package models

import (
	"image"
	"image/color"
	"math"
)

// Image is a 2D single-channel raster in row-major order.
// Projection outputs hold normalized values in [0, 1].
type Image struct {
	Data   []float64
	Width  int
	Height int
}

// NewImage allocates a zero-filled image.
func NewImage(width, height int) *Image {
	return &Image{
		Data:   make([]float64, width*height),
		Width:  width,
		Height: height,
	}
}

// At returns the pixel at column x, row y.
func (im *Image) At(x, y int) float64 {
	return im.Data[y*im.Width+x]
}

// Set writes the pixel at column x, row y.
func (im *Image) Set(x, y int, value float64) {
	im.Data[y*im.Width+x] = value
}

// FlipVertical reverses the row order in place.
func (im *Image) FlipVertical() {
	for top, bottom := 0, im.Height-1; top < bottom; top, bottom = top+1, bottom-1 {
		a := im.Data[top*im.Width : (top+1)*im.Width]
		b := im.Data[bottom*im.Width : (bottom+1)*im.Width]
		for x := range a {
			a[x], b[x] = b[x], a[x]
		}
	}
}

// Gray converts to an 8-bit raster. Values are clamped to [0, 1] and
// scaled to [0, 255]; NaN becomes black.
func (im *Image) Gray() *image.Gray {
	g := image.NewGray(image.Rect(0, 0, im.Width, im.Height))
	for i, v := range im.Data {
		g.Pix[i] = uint8(math.Round(unit(v) * 255))
	}
	return g
}

// Gray16 converts to a 16-bit raster with the same scaling as Gray.
func (im *Image) Gray16() *image.Gray16 {
	g := image.NewGray16(image.Rect(0, 0, im.Width, im.Height))
	for y := 0; y < im.Height; y++ {
		for x := 0; x < im.Width; x++ {
			g.SetGray16(x, y, color.Gray16{Y: uint16(math.Round(unit(im.At(x, y)) * 0xffff))})
		}
	}
	return g
}

// ImageFromGray16 converts a 16-bit raster back to [0, 1] values.
func ImageFromGray16(g *image.Gray16) *Image {
	b := g.Bounds()
	im := NewImage(b.Dx(), b.Dy())
	for y := 0; y < im.Height; y++ {
		for x := 0; x < im.Width; x++ {
			im.Set(x, y, float64(g.Gray16At(b.Min.X+x, b.Min.Y+y).Y)/0xffff)
		}
	}
	return im
}

func unit(v float64) float64 {
	if !(v > 0) {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
