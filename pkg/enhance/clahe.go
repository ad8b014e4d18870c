// Package enhance applies contrast-limited adaptive histogram
// equalization (CLAHE) to projection images.
//
// The image is quantized to 8 bits, equalized per tile with a clipped
// histogram, and blended bilinearly between neighbouring tile mappings.
// Output is rescaled back to [0, 1].
package enhance

import (
	"math"

	"ctpatch/internal/models"
)

const bins = 256

// Enhance returns an equalized copy of img. clipLimit bounds each
// histogram bin at clipLimit times the mean bin height (0 disables
// clipping); tileGrid is the number of tiles across (x, y).
func Enhance(img *models.Image, clipLimit float64, tileGrid [2]int) *models.Image {
	out := models.NewImage(img.Width, img.Height)
	if img.Width == 0 || img.Height == 0 {
		return out
	}

	src := quantize(img)

	tilesX := clampGrid(tileGrid[0], img.Width)
	tilesY := clampGrid(tileGrid[1], img.Height)
	tileW := (img.Width + tilesX - 1) / tilesX
	tileH := (img.Height + tilesY - 1) / tilesY
	tilesX = (img.Width + tileW - 1) / tileW
	tilesY = (img.Height + tileH - 1) / tileH

	luts := make([][bins]uint8, tilesX*tilesY)
	for ty := 0; ty < tilesY; ty++ {
		for tx := 0; tx < tilesX; tx++ {
			x0, y0 := tx*tileW, ty*tileH
			x1, y1 := min(x0+tileW, img.Width), min(y0+tileH, img.Height)
			luts[ty*tilesX+tx] = tileLUT(src, img.Width, x0, y0, x1, y1, clipLimit)
		}
	}

	invW, invH := 1/float64(tileW), 1/float64(tileH)
	for y := 0; y < img.Height; y++ {
		ty1, ty2, ya := neighbours(float64(y)*invH-0.5, tilesY)
		for x := 0; x < img.Width; x++ {
			tx1, tx2, xa := neighbours(float64(x)*invW-0.5, tilesX)
			v := src[y*img.Width+x]

			top := float64(luts[ty1*tilesX+tx1][v])*(1-xa) + float64(luts[ty1*tilesX+tx2][v])*xa
			bottom := float64(luts[ty2*tilesX+tx1][v])*(1-xa) + float64(luts[ty2*tilesX+tx2][v])*xa
			res := math.Round(top*(1-ya) + bottom*ya)

			out.Data[y*img.Width+x] = math.Min(math.Max(res, 0), 255) / 255
		}
	}
	return out
}

// quantize maps [0, 1] to 8 bits by truncation. NaN maps to 0.
func quantize(img *models.Image) []uint8 {
	q := make([]uint8, len(img.Data))
	for i, v := range img.Data {
		switch {
		case !(v > 0):
			q[i] = 0
		case v >= 1:
			q[i] = 255
		default:
			q[i] = uint8(v * 255)
		}
	}
	return q
}

func clampGrid(n, size int) int {
	if n < 1 {
		n = 1
	}
	if n > size {
		n = size
	}
	return n
}

func neighbours(f float64, n int) (int, int, float64) {
	lo := int(math.Floor(f))
	frac := f - float64(lo)
	hi := lo + 1
	if lo < 0 {
		lo = 0
	}
	if hi > n-1 {
		hi = n - 1
	}
	return lo, hi, frac
}

func tileLUT(src []uint8, stride, x0, y0, x1, y1 int, clipLimit float64) [bins]uint8 {
	var hist [bins]int
	for y := y0; y < y1; y++ {
		for _, v := range src[y*stride+x0 : y*stride+x1] {
			hist[v]++
		}
	}
	area := (x1 - x0) * (y1 - y0)

	if clipLimit > 0 {
		clip := int(clipLimit * float64(area) / bins)
		if clip < 1 {
			clip = 1
		}

		clipped := 0
		for i := range hist {
			if hist[i] > clip {
				clipped += hist[i] - clip
				hist[i] = clip
			}
		}

		// Spread the excess evenly, then the remainder at a fixed stride
		batch := clipped / bins
		residual := clipped - batch*bins
		for i := range hist {
			hist[i] += batch
		}
		if residual > 0 {
			step := max(bins/residual, 1)
			for i := 0; i < bins && residual > 0; i += step {
				hist[i]++
				residual--
			}
		}
	}

	var lut [bins]uint8
	scale := float64(bins-1) / float64(area)
	sum := 0
	for i, h := range hist {
		sum += h
		lut[i] = uint8(math.Min(math.Round(float64(sum)*scale), 255))
	}
	return lut
}
