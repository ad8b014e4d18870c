// Package geometry converts between physical points (mm) and voxel indices
// of a volume.
//
// The mapping is the inverse of the image affine:
//
//	index = Direction⁻¹ · (point − Origin) / Spacing
//
// with the continuous result rounded half-up to the nearest voxel. No
// clamping happens here; bounds are the caller's concern.
package geometry

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r3"

	"ctpatch/internal/models"
)

// ErrMalformedGeometry marks a geometry that cannot be inverted. It is a
// configuration error: callers abort the batch instead of skipping an item.
var ErrMalformedGeometry = errors.New("malformed geometry")

// Mapper holds the inverted affine for one geometry.
type Mapper struct {
	geom   models.Geometry
	dir    *r3.Mat
	invDir *r3.Mat
}

// NewMapper validates g and precomputes its inverse direction.
func NewMapper(g models.Geometry) (*Mapper, error) {
	if err := Validate(g); err != nil {
		return nil, err
	}

	dir := r3.NewMat(g.Direction[:])
	var inv mat.Dense
	if err := inv.Inverse(dir); err != nil {
		return nil, fmt.Errorf("%w: direction not invertible: %v", ErrMalformedGeometry, err)
	}
	invDir := r3.NewMat(nil)
	invDir.CloneFrom(&inv)

	return &Mapper{geom: g, dir: dir, invDir: invDir}, nil
}

// Validate checks spacing and direction.
func Validate(g models.Geometry) error {
	for i, s := range g.Spacing {
		if s == 0 || math.IsNaN(s) || math.IsInf(s, 0) {
			return fmt.Errorf("%w: spacing[%d] = %g", ErrMalformedGeometry, i, s)
		}
	}
	for i, o := range g.Origin {
		if math.IsNaN(o) || math.IsInf(o, 0) {
			return fmt.Errorf("%w: origin[%d] = %g", ErrMalformedGeometry, i, o)
		}
	}
	if det := r3.NewMat(g.Direction[:]).Det(); math.Abs(det) < 1e-12 || math.IsNaN(det) {
		return fmt.Errorf("%w: direction determinant %g", ErrMalformedGeometry, det)
	}
	return nil
}

// ContinuousIndex returns the unrounded (x, y, z) index of p.
func (m *Mapper) ContinuousIndex(p r3.Vec) [3]float64 {
	o := r3.Vec{X: m.geom.Origin[0], Y: m.geom.Origin[1], Z: m.geom.Origin[2]}
	local := m.invDir.MulVec(r3.Sub(p, o))
	return [3]float64{
		local.X / m.geom.Spacing[0],
		local.Y / m.geom.Spacing[1],
		local.Z / m.geom.Spacing[2],
	}
}

// ToVoxelIndex maps p to the nearest voxel index.
func (m *Mapper) ToVoxelIndex(p r3.Vec) models.VoxelIndex {
	c := m.ContinuousIndex(p)
	return models.VoxelIndex{roundHalfUp(c[0]), roundHalfUp(c[1]), roundHalfUp(c[2])}
}

// ToPhysicalPoint maps a (possibly fractional) index to mm.
func (m *Mapper) ToPhysicalPoint(idx [3]float64) r3.Vec {
	scaled := r3.Vec{
		X: idx[0] * m.geom.Spacing[0],
		Y: idx[1] * m.geom.Spacing[1],
		Z: idx[2] * m.geom.Spacing[2],
	}
	o := r3.Vec{X: m.geom.Origin[0], Y: m.geom.Origin[1], Z: m.geom.Origin[2]}
	return r3.Add(o, m.dir.MulVec(scaled))
}

// IndexToPoint maps an integer index to mm.
func (m *Mapper) IndexToPoint(idx models.VoxelIndex) r3.Vec {
	return m.ToPhysicalPoint([3]float64{float64(idx[0]), float64(idx[1]), float64(idx[2])})
}

// ToVoxelIndex is a one-shot helper around NewMapper.
func ToVoxelIndex(g models.Geometry, p r3.Vec) (models.VoxelIndex, error) {
	m, err := NewMapper(g)
	if err != nil {
		return models.VoxelIndex{}, err
	}
	return m.ToVoxelIndex(p), nil
}

// Point builds an r3.Vec from (x, y, z) mm coordinates.
func Point(x, y, z float64) r3.Vec {
	return r3.Vec{X: x, Y: y, Z: z}
}

func roundHalfUp(v float64) int {
	return int(math.Floor(v + 0.5))
}
