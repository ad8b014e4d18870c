package models

// ElementType names the on-disk scalar type of a volume, using the
// MetaImage vocabulary.
type ElementType string

const (
	ElementUChar  ElementType = "MET_UCHAR"
	ElementChar   ElementType = "MET_CHAR"
	ElementUShort ElementType = "MET_USHORT"
	ElementShort  ElementType = "MET_SHORT"
	ElementUInt   ElementType = "MET_UINT"
	ElementInt    ElementType = "MET_INT"
	ElementFloat  ElementType = "MET_FLOAT"
	ElementDouble ElementType = "MET_DOUBLE"
)

// Geometry is the physical placement of a volume.
type Geometry struct {
	// Origin is the physical position of voxel (0,0,0) in mm
	Origin [3]float64

	// Spacing is the physical voxel size along x, y, z in mm
	Spacing [3]float64

	// Direction is the 3x3 orientation matrix in row-major order.
	// Column j is the physical direction of index axis j.
	Direction [9]float64
}

// IdentityDirection is the axis-aligned orientation.
var IdentityDirection = [9]float64{1, 0, 0, 0, 1, 0, 0, 0, 1}

// NewGeometry returns an axis-aligned geometry.
func NewGeometry(origin, spacing [3]float64) Geometry {
	return Geometry{Origin: origin, Spacing: spacing, Direction: IdentityDirection}
}

// Volume is a dense 3D scalar array with its geometry.
//
// Data is stored flat in (z, y, x) order: the voxel at index (x, y, z)
// lives at Data[z*Width*Height + y*Width + x].
type Volume struct {
	Data []float64

	Width  int
	Height int
	Depth  int

	Geometry Geometry

	// ElementType is the scalar type used when the volume is written.
	ElementType ElementType
}

// NewVolume allocates a zero-filled volume.
func NewVolume(width, height, depth int, geom Geometry, elem ElementType) *Volume {
	return &Volume{
		Data:        make([]float64, width*height*depth),
		Width:       width,
		Height:      height,
		Depth:       depth,
		Geometry:    geom,
		ElementType: elem,
	}
}

// Size returns the volume extent in index order (x, y, z).
func (v *Volume) Size() [3]int {
	return [3]int{v.Width, v.Height, v.Depth}
}

// Shape returns the array shape in access order (z, y, x).
func (v *Volume) Shape() [3]int {
	return [3]int{v.Depth, v.Height, v.Width}
}

// Index returns the flat offset of voxel (x, y, z).
func (v *Volume) Index(x, y, z int) int {
	return z*v.Width*v.Height + y*v.Width + x
}

// At returns the voxel at (x, y, z).
func (v *Volume) At(x, y, z int) float64 {
	return v.Data[v.Index(x, y, z)]
}

// Set writes the voxel at (x, y, z).
func (v *Volume) Set(x, y, z int, value float64) {
	v.Data[v.Index(x, y, z)] = value
}

// Clone returns a deep copy.
func (v *Volume) Clone() *Volume {
	c := *v
	c.Data = make([]float64, len(v.Data))
	copy(c.Data, v.Data)
	return &c
}

// VoxelIndex is an integer index in (x, y, z) order.
type VoxelIndex [3]int

// CubeSpec records where a sub-volume was extracted from its parent.
// Both fields are in (x, y, z) order.
type CubeSpec struct {
	StartIndex  VoxelIndex `json:"start_index"`
	ExtractSize [3]int     `json:"extract_size"`
}
