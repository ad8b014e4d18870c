// Package patch cuts cubes out of volumes around annotated points and
// writes processed cubes back into full-size volumes.
//
// Extraction clamps instead of rejecting: a cube that would cross the
// volume boundary is shrunk to the in-bounds part, and the returned
// CubeSpec always carries the size actually extracted. Reinsertion
// depends on that recorded size, never on the requested one.
package patch

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/spatial/r3"

	"ctpatch/internal/models"
	"ctpatch/pkg/geometry"
)

var (
	// ErrEmptyCube is returned when clamping leaves no voxels on some axis,
	// i.e. the requested center lies outside the volume.
	ErrEmptyCube = errors.New("extracted cube is empty")

	// ErrOutOfBounds is returned when a cube does not fit its parent.
	ErrOutOfBounds = errors.New("cube exceeds parent bounds")

	// ErrShapeMismatch is returned when a sub-volume's shape differs
	// from the size recorded in its CubeSpec.
	ErrShapeMismatch = errors.New("sub-volume shape does not match cube spec")
)

// Region computes the clamped cube around center for a parent of the
// given (x, y, z) size. For each axis:
//
//	start = max(center - size/2, 0)
//	end   = min(start + size, parent)
//
// The returned spec may be smaller than requested near the boundary.
func Region(parent [3]int, center models.VoxelIndex, size [3]int) (models.CubeSpec, error) {
	var spec models.CubeSpec
	for i := 0; i < 3; i++ {
		start := center[i] - size[i]/2
		if start < 0 {
			start = 0
		}
		end := start + size[i]
		if end > parent[i] {
			end = parent[i]
		}
		spec.StartIndex[i] = start
		spec.ExtractSize[i] = end - start
		if spec.ExtractSize[i] <= 0 {
			return spec, fmt.Errorf("%w: center %v, size %v, parent %v", ErrEmptyCube, center, size, parent)
		}
	}
	return spec, nil
}

// Extract copies the clamped cube around center out of vol. The parent
// is only read. The sub-volume keeps the parent's spacing and direction
// and is placed at the physical position of its start index.
func Extract(vol *models.Volume, center models.VoxelIndex, size [3]int) (*models.Volume, models.CubeSpec, error) {
	spec, err := Region(vol.Size(), center, size)
	if err != nil {
		return nil, spec, err
	}

	mapper, err := geometry.NewMapper(vol.Geometry)
	if err != nil {
		return nil, spec, err
	}
	origin := mapper.IndexToPoint(spec.StartIndex)

	geom := vol.Geometry
	geom.Origin = [3]float64{origin.X, origin.Y, origin.Z}

	w, h, d := spec.ExtractSize[0], spec.ExtractSize[1], spec.ExtractSize[2]
	x0, y0, z0 := spec.StartIndex[0], spec.StartIndex[1], spec.StartIndex[2]
	sub := models.NewVolume(w, h, d, geom, vol.ElementType)

	for z := 0; z < d; z++ {
		for y := 0; y < h; y++ {
			src := vol.Index(x0, y0+y, z0+z)
			dst := sub.Index(0, y, z)
			copy(sub.Data[dst:dst+w], vol.Data[src:src+w])
		}
	}
	return sub, spec, nil
}

// ExtractAt maps a physical point to its voxel and extracts the cube
// around it.
func ExtractAt(vol *models.Volume, point r3.Vec, size [3]int) (*models.Volume, models.CubeSpec, error) {
	center, err := geometry.ToVoxelIndex(vol.Geometry, point)
	if err != nil {
		return nil, models.CubeSpec{}, err
	}
	return Extract(vol, center, size)
}
