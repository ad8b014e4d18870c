// Package interpolation samples volumes and planes at fractional
// positions. It provides trilinear sampling for resampling whole volumes
// and separable 1D kernels (linear, cubic) precomputed into sampling
// plans for the ray-cast projector.
package interpolation

import (
	"math"

	"ctpatch/internal/models"
)

// Trilinear samples vol at the continuous index (x, y, z).
//
// Positions within half a voxel of the border are clamped onto the edge
// voxels; anything further out samples as 0.
func Trilinear(vol *models.Volume, x, y, z float64) float64 {
	if !inside(x, vol.Width) || !inside(y, vol.Height) || !inside(z, vol.Depth) {
		return 0
	}

	x0, x1, fx := bracket(x, vol.Width)
	y0, y1, fy := bracket(y, vol.Height)
	z0, z1, fz := bracket(z, vol.Depth)

	// Interpolate along x on the four edges of the cell
	c00 := lerp(vol.At(x0, y0, z0), vol.At(x1, y0, z0), fx)
	c10 := lerp(vol.At(x0, y1, z0), vol.At(x1, y1, z0), fx)
	c01 := lerp(vol.At(x0, y0, z1), vol.At(x1, y0, z1), fx)
	c11 := lerp(vol.At(x0, y1, z1), vol.At(x1, y1, z1), fx)

	return lerp(lerp(c00, c10, fy), lerp(c01, c11, fy), fz)
}

func inside(c float64, n int) bool {
	return c >= -0.5 && c <= float64(n)-0.5
}

// bracket returns the two neighbouring indices of c and the fractional
// weight of the upper one, clamped to [0, n-1].
func bracket(c float64, n int) (int, int, float64) {
	if c <= 0 || n == 1 {
		return 0, 0, 0
	}
	if c >= float64(n-1) {
		return n - 1, n - 1, 0
	}
	i := int(math.Floor(c))
	return i, i + 1, c - float64(i)
}

func lerp(a, b, t float64) float64 {
	return a + (b-a)*t
}
