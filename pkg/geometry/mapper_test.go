package geometry

import (
	"errors"
	"math"
	"testing"

	"gonum.org/v1/gonum/spatial/r3"

	"ctpatch/internal/models"
)

func TestToVoxelIndexUnitGeometry(t *testing.T) {
	g := models.NewGeometry([3]float64{0, 0, 0}, [3]float64{1, 1, 1})

	idx, err := ToVoxelIndex(g, Point(10, 10, 10))
	if err != nil {
		t.Fatalf("ToVoxelIndex failed: %v", err)
	}
	if idx != (models.VoxelIndex{10, 10, 10}) {
		t.Errorf("Expected index (10,10,10), got %v", idx)
	}
}

func TestToVoxelIndexRounding(t *testing.T) {
	g := models.NewGeometry([3]float64{-100, 50, -300}, [3]float64{0.7, 0.7, 2.5})
	m, err := NewMapper(g)
	if err != nil {
		t.Fatal(err)
	}

	// 1.4 mm past origin on x at 0.7 spacing is exactly voxel 2;
	// 1.2 mm past on z at 2.5 spacing rounds down to 0
	idx := m.ToVoxelIndex(Point(-100+1.4, 50+0.36, -300+1.2))
	want := models.VoxelIndex{2, 1, 0}
	if idx != want {
		t.Errorf("Expected %v, got %v", want, idx)
	}

	// Points below the origin yield negative indices; no clamping here
	idx = m.ToVoxelIndex(Point(-110, 50, -300))
	if idx[0] >= 0 {
		t.Errorf("Expected negative x index, got %v", idx)
	}
}

func TestRoundTripAxisAligned(t *testing.T) {
	g := models.NewGeometry([3]float64{-195.3, -210.8, -331.25}, [3]float64{0.68, 0.68, 1.25})
	m, err := NewMapper(g)
	if err != nil {
		t.Fatal(err)
	}

	for _, idx := range []models.VoxelIndex{{0, 0, 0}, {5, 17, 3}, {511, 511, 120}, {-4, 2, 9}} {
		p := m.IndexToPoint(idx)
		c := m.ContinuousIndex(p)
		for i := 0; i < 3; i++ {
			if math.Abs(c[i]-float64(idx[i])) > 1e-9 {
				t.Errorf("Round trip of %v drifted on axis %d: %f", idx, i, c[i])
			}
		}
		if got := m.ToVoxelIndex(p); got != idx {
			t.Errorf("Expected %v after round trip, got %v", idx, got)
		}
	}
}

func TestRoundTripRotatedDirection(t *testing.T) {
	// 90 degree rotation about z: index x runs along physical y
	g := models.Geometry{
		Origin:    [3]float64{10, 20, 30},
		Spacing:   [3]float64{2, 1, 3},
		Direction: [9]float64{0, -1, 0, 1, 0, 0, 0, 0, 1},
	}
	m, err := NewMapper(g)
	if err != nil {
		t.Fatal(err)
	}

	p := m.IndexToPoint(models.VoxelIndex{3, 4, 5})
	want := r3.Vec{X: 10 - 4, Y: 20 + 6, Z: 30 + 15}
	if r3.Norm(r3.Sub(p, want)) > 1e-9 {
		t.Errorf("Expected physical point %v, got %v", want, p)
	}
	if idx := m.ToVoxelIndex(p); idx != (models.VoxelIndex{3, 4, 5}) {
		t.Errorf("Expected index (3,4,5), got %v", idx)
	}
}

func TestMalformedGeometry(t *testing.T) {
	zeroSpacing := models.NewGeometry([3]float64{0, 0, 0}, [3]float64{1, 0, 1})
	if _, err := NewMapper(zeroSpacing); !errors.Is(err, ErrMalformedGeometry) {
		t.Errorf("Expected ErrMalformedGeometry for zero spacing, got %v", err)
	}

	singular := models.Geometry{
		Spacing:   [3]float64{1, 1, 1},
		Direction: [9]float64{1, 0, 0, 1, 0, 0, 0, 0, 1},
	}
	if _, err := NewMapper(singular); !errors.Is(err, ErrMalformedGeometry) {
		t.Errorf("Expected ErrMalformedGeometry for singular direction, got %v", err)
	}
}
