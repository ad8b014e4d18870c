package patch

import (
	"fmt"

	"ctpatch/internal/models"
)

// Reinsert builds a zero-filled volume shaped like parent and writes sub
// into it at spec. The result carries the parent's geometry and the
// sub-volume's element type.
func Reinsert(parent *models.Volume, sub *models.Volume, spec models.CubeSpec) (*models.Volume, error) {
	out := Blank(parent, sub.ElementType)
	if err := ReinsertInto(out, sub, spec); err != nil {
		return nil, err
	}
	return out, nil
}

// Blank returns a zero volume with parent's shape and geometry.
func Blank(parent *models.Volume, elem models.ElementType) *models.Volume {
	if elem == "" {
		elem = parent.ElementType
	}
	return models.NewVolume(parent.Width, parent.Height, parent.Depth, parent.Geometry, elem)
}

// ReinsertInto overwrites the region [z0:z0+d, y0:y0+h, x0:x0+w] of dst
// with sub. Overlapping calls overwrite earlier data; there is no blending.
func ReinsertInto(dst *models.Volume, sub *models.Volume, spec models.CubeSpec) error {
	size := sub.Size()
	if size != spec.ExtractSize {
		return fmt.Errorf("%w: sub-volume %v, recorded %v", ErrShapeMismatch, size, spec.ExtractSize)
	}

	parent := dst.Size()
	for i := 0; i < 3; i++ {
		if spec.StartIndex[i] < 0 || spec.StartIndex[i]+size[i] > parent[i] {
			return fmt.Errorf("%w: start %v size %v parent %v", ErrOutOfBounds, spec.StartIndex, size, parent)
		}
	}

	// CubeSpec is (x, y, z); the arrays are addressed (z, y, x)
	x0, y0, z0 := spec.StartIndex[0], spec.StartIndex[1], spec.StartIndex[2]
	w, h, d := size[0], size[1], size[2]
	for z := 0; z < d; z++ {
		for y := 0; y < h; y++ {
			src := sub.Index(0, y, z)
			at := dst.Index(x0, y0+y, z0+z)
			copy(dst.Data[at:at+w], sub.Data[src:src+w])
		}
	}
	return nil
}
