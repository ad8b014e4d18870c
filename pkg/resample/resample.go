// Package resample brings volumes to a common voxel spacing before
// projection so projected pixels have a physical aspect ratio.
package resample

import (
	"fmt"
	"math"
	"runtime"
	"sync"

	"ctpatch/internal/models"
	"ctpatch/pkg/geometry"
	"ctpatch/pkg/interpolation"
)

// OutputSize returns the resampled extent for each axis:
// round(size * spacing / target), never below one voxel.
func OutputSize(size [3]int, spacing, target [3]float64) [3]int {
	var out [3]int
	for i := 0; i < 3; i++ {
		n := int(math.Round(float64(size[i]) * spacing[i] / target[i]))
		if n < 1 {
			n = 1
		}
		out[i] = n
	}
	return out
}

// Resample returns a new volume with the target spacing, trilinearly
// interpolated. Origin and direction are kept, so output voxel i sits at
// the same physical position as input index i*target/spacing.
func Resample(vol *models.Volume, target [3]float64) (*models.Volume, error) {
	if err := geometry.Validate(vol.Geometry); err != nil {
		return nil, err
	}
	for i, t := range target {
		if !(t > 0) || math.IsInf(t, 0) {
			return nil, fmt.Errorf("%w: target spacing[%d] = %g", geometry.ErrMalformedGeometry, i, t)
		}
	}

	spacing := vol.Geometry.Spacing
	if spacing == target {
		return vol.Clone(), nil
	}

	size := OutputSize(vol.Size(), spacing, target)
	geom := vol.Geometry
	geom.Spacing = target
	out := models.NewVolume(size[0], size[1], size[2], geom, vol.ElementType)

	var scale [3]float64
	for i := range scale {
		scale[i] = target[i] / spacing[i]
	}

	// Slices are independent; split them across CPUs
	workers := runtime.NumCPU()
	if workers > out.Depth {
		workers = out.Depth
	}
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(first int) {
			defer wg.Done()
			for z := first; z < out.Depth; z += workers {
				sz := float64(z) * scale[2]
				for y := 0; y < out.Height; y++ {
					sy := float64(y) * scale[1]
					row := out.Index(0, y, z)
					for x := 0; x < out.Width; x++ {
						out.Data[row+x] = interpolation.Trilinear(vol, float64(x)*scale[0], sy, sz)
					}
				}
			}
		}(w)
	}
	wg.Wait()

	return out, nil
}
