package patch

import (
	"errors"
	"testing"

	"ctpatch/internal/models"
	"ctpatch/pkg/geometry"
)

// createTestVolume fills a cube volume with a value unique to every voxel
func createTestVolume(size int) *models.Volume {
	vol := models.NewVolume(size, size, size, models.NewGeometry([3]float64{0, 0, 0}, [3]float64{1, 1, 1}), models.ElementShort)
	for i := range vol.Data {
		vol.Data[i] = float64(i + 1)
	}
	return vol
}

func TestExtractCenteredCube(t *testing.T) {
	vol := createTestVolume(20)

	sub, spec, err := ExtractAt(vol, geometry.Point(10, 10, 10), [3]int{10, 10, 10})
	if err != nil {
		t.Fatalf("ExtractAt failed: %v", err)
	}

	if sub.Shape() != [3]int{10, 10, 10} {
		t.Errorf("Expected cube shape (10,10,10), got %v", sub.Shape())
	}
	if spec.StartIndex != (models.VoxelIndex{5, 5, 5}) {
		t.Errorf("Expected start index [5,5,5], got %v", spec.StartIndex)
	}
	if spec.ExtractSize != [3]int{10, 10, 10} {
		t.Errorf("Expected extract size [10,10,10], got %v", spec.ExtractSize)
	}
	if sub.Geometry.Origin != [3]float64{5, 5, 5} {
		t.Errorf("Expected sub-volume origin at start index, got %v", sub.Geometry.Origin)
	}

	// The cube is a verbatim copy of the parent region
	for z := 0; z < 10; z++ {
		for y := 0; y < 10; y++ {
			for x := 0; x < 10; x++ {
				if sub.At(x, y, z) != vol.At(x+5, y+5, z+5) {
					t.Fatalf("Voxel (%d,%d,%d) differs from parent", x, y, z)
				}
			}
		}
	}
}

func TestExtractReinsertRoundTrip(t *testing.T) {
	vol := createTestVolume(20)

	sub, spec, err := Extract(vol, models.VoxelIndex{10, 10, 10}, [3]int{10, 10, 10})
	if err != nil {
		t.Fatal(err)
	}

	out, err := Reinsert(vol, sub, spec)
	if err != nil {
		t.Fatalf("Reinsert failed: %v", err)
	}
	if out.Geometry != vol.Geometry {
		t.Errorf("Expected parent geometry on result")
	}

	for z := 0; z < 20; z++ {
		for y := 0; y < 20; y++ {
			for x := 0; x < 20; x++ {
				inside := x >= 5 && x < 15 && y >= 5 && y < 15 && z >= 5 && z < 15
				got := out.At(x, y, z)
				if inside && got != vol.At(x, y, z) {
					t.Fatalf("Voxel (%d,%d,%d): expected %f, got %f", x, y, z, vol.At(x, y, z), got)
				}
				if !inside && got != 0 {
					t.Fatalf("Voxel (%d,%d,%d) outside the cube should be zero, got %f", x, y, z, got)
				}
			}
		}
	}
}

func TestExtractLowCorner(t *testing.T) {
	vol := createTestVolume(20)

	_, spec, err := Extract(vol, models.VoxelIndex{0, 0, 0}, [3]int{10, 10, 10})
	if err != nil {
		t.Fatal(err)
	}
	if spec.StartIndex != (models.VoxelIndex{0, 0, 0}) {
		t.Errorf("Expected start clamped to origin, got %v", spec.StartIndex)
	}
	if spec.ExtractSize != [3]int{10, 10, 10} {
		t.Errorf("Expected full size at low corner, got %v", spec.ExtractSize)
	}
}

func TestExtractHighCornerClamps(t *testing.T) {
	vol := createTestVolume(20)

	sub, spec, err := Extract(vol, models.VoxelIndex{19, 19, 19}, [3]int{10, 10, 10})
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 3; i++ {
		if spec.StartIndex[i]+spec.ExtractSize[i] > 20 {
			t.Errorf("Axis %d: start %d + size %d exceeds 20", i, spec.StartIndex[i], spec.ExtractSize[i])
		}
		if spec.ExtractSize[i] <= 0 || spec.ExtractSize[i] > 10 {
			t.Errorf("Axis %d: size %d not in (0, 10]", i, spec.ExtractSize[i])
		}
	}
	if sub.Size() != spec.ExtractSize {
		t.Errorf("Expected sub-volume size %v, got %v", spec.ExtractSize, sub.Size())
	}
}

func TestExtractNearBoundaryNeverExceedsRequest(t *testing.T) {
	vol := createTestVolume(20)
	size := [3]int{9, 6, 13}

	for c := -3; c < 23; c++ {
		_, spec, err := Extract(vol, models.VoxelIndex{c, 19 - c, c / 2}, size)
		if err != nil {
			if !errors.Is(err, ErrEmptyCube) {
				t.Fatalf("Center %d: unexpected error %v", c, err)
			}
			continue
		}
		for i := 0; i < 3; i++ {
			if spec.ExtractSize[i] <= 0 || spec.ExtractSize[i] > size[i] {
				t.Errorf("Center %d axis %d: size %d outside (0, %d]", c, i, spec.ExtractSize[i], size[i])
			}
			if spec.StartIndex[i] < 0 {
				t.Errorf("Center %d axis %d: negative start %d", c, i, spec.StartIndex[i])
			}
		}
	}
}

func TestExtractOutsideVolumeIsInvalid(t *testing.T) {
	vol := createTestVolume(20)

	_, _, err := Extract(vol, models.VoxelIndex{10, 40, 10}, [3]int{10, 10, 10})
	if !errors.Is(err, ErrEmptyCube) {
		t.Errorf("Expected ErrEmptyCube for center outside the volume, got %v", err)
	}
}

func TestReinsertOverlapLaterWins(t *testing.T) {
	parent := createTestVolume(8)
	out := Blank(parent, models.ElementUChar)

	first := models.NewVolume(4, 4, 4, parent.Geometry, models.ElementUChar)
	second := models.NewVolume(4, 4, 4, parent.Geometry, models.ElementUChar)
	for i := range first.Data {
		first.Data[i] = 1
		second.Data[i] = 2
	}

	if err := ReinsertInto(out, first, models.CubeSpec{StartIndex: models.VoxelIndex{0, 0, 0}, ExtractSize: [3]int{4, 4, 4}}); err != nil {
		t.Fatal(err)
	}
	if err := ReinsertInto(out, second, models.CubeSpec{StartIndex: models.VoxelIndex{2, 2, 2}, ExtractSize: [3]int{4, 4, 4}}); err != nil {
		t.Fatal(err)
	}

	if got := out.At(1, 1, 1); got != 1 {
		t.Errorf("Expected first patch at (1,1,1), got %f", got)
	}
	if got := out.At(3, 3, 3); got != 2 {
		t.Errorf("Expected later patch to win in overlap, got %f", got)
	}
	if got := out.At(7, 7, 7); got != 0 {
		t.Errorf("Expected zero outside patches, got %f", got)
	}
}

func TestReinsertAxisOrder(t *testing.T) {
	parent := models.NewVolume(6, 5, 4, models.NewGeometry([3]float64{}, [3]float64{1, 1, 1}), models.ElementShort)
	sub := models.NewVolume(1, 1, 1, parent.Geometry, models.ElementShort)
	sub.Data[0] = 42

	out, err := Reinsert(parent, sub, models.CubeSpec{StartIndex: models.VoxelIndex{5, 1, 3}, ExtractSize: [3]int{1, 1, 1}})
	if err != nil {
		t.Fatal(err)
	}
	// (x,y,z) = (5,1,3) is array element [3][1][5]
	if got := out.Data[3*6*5+1*6+5]; got != 42 {
		t.Errorf("Expected 42 at array [3][1][5], got %f", got)
	}
}

func TestReinsertRejectsBadSpecs(t *testing.T) {
	parent := createTestVolume(8)
	sub := models.NewVolume(4, 4, 4, parent.Geometry, models.ElementUChar)

	_, err := Reinsert(parent, sub, models.CubeSpec{StartIndex: models.VoxelIndex{6, 0, 0}, ExtractSize: [3]int{4, 4, 4}})
	if !errors.Is(err, ErrOutOfBounds) {
		t.Errorf("Expected ErrOutOfBounds, got %v", err)
	}

	_, err = Reinsert(parent, sub, models.CubeSpec{StartIndex: models.VoxelIndex{0, 0, 0}, ExtractSize: [3]int{4, 4, 3}})
	if !errors.Is(err, ErrShapeMismatch) {
		t.Errorf("Expected ErrShapeMismatch, got %v", err)
	}
}
