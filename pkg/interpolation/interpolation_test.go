package interpolation

import (
	"math"
	"testing"

	"ctpatch/internal/models"
)

// createGradientVolume creates a volume whose value is linear in x, y and z
func createGradientVolume(width, height, depth int) *models.Volume {
	vol := models.NewVolume(width, height, depth, models.NewGeometry([3]float64{}, [3]float64{1, 1, 1}), models.ElementFloat)
	for z := 0; z < depth; z++ {
		for y := 0; y < height; y++ {
			for x := 0; x < width; x++ {
				vol.Set(x, y, z, float64(x)+2*float64(y)+3*float64(z))
			}
		}
	}
	return vol
}

func TestTrilinearReproducesGrid(t *testing.T) {
	vol := createGradientVolume(4, 5, 6)

	for z := 0; z < 6; z++ {
		for y := 0; y < 5; y++ {
			for x := 0; x < 4; x++ {
				got := Trilinear(vol, float64(x), float64(y), float64(z))
				if got != vol.At(x, y, z) {
					t.Errorf("At grid point (%d,%d,%d): expected %f, got %f", x, y, z, vol.At(x, y, z), got)
				}
			}
		}
	}
}

func TestTrilinearIsExactOnLinearField(t *testing.T) {
	vol := createGradientVolume(4, 5, 6)

	x, y, z := 1.25, 2.5, 3.75
	want := x + 2*y + 3*z
	if got := Trilinear(vol, x, y, z); math.Abs(got-want) > 1e-12 {
		t.Errorf("Expected %f, got %f", want, got)
	}
}

func TestTrilinearBorder(t *testing.T) {
	vol := createGradientVolume(4, 4, 4)

	// Half a voxel outside clamps to the edge
	if got := Trilinear(vol, -0.4, 0, 0); got != vol.At(0, 0, 0) {
		t.Errorf("Expected edge value near border, got %f", got)
	}
	if got := Trilinear(vol, 3.4, 3, 3); got != vol.At(3, 3, 3) {
		t.Errorf("Expected edge value near border, got %f", got)
	}

	// Further out samples as zero
	if got := Trilinear(vol, -1, 0, 0); got != 0 {
		t.Errorf("Expected zero outside the volume, got %f", got)
	}
	if got := Trilinear(vol, 0, 0, 4); got != 0 {
		t.Errorf("Expected zero outside the volume, got %f", got)
	}
}

func TestKernelsArePartitionsOfUnity(t *testing.T) {
	for _, order := range []Order{Linear, Cubic} {
		for c := 0.0; c <= 9; c += 0.37 {
			taps := order.TapsAt(c, 10)
			sum := 0.0
			for k := 0; k < taps.N; k++ {
				sum += taps.Weight[k]
				if taps.Index[k] < 0 || taps.Index[k] > 9 {
					t.Fatalf("%s at %f: index %d out of range", order, c, taps.Index[k])
				}
			}
			if math.Abs(sum-1) > 1e-12 {
				t.Errorf("%s at %f: weights sum to %f", order, c, sum)
			}
		}
	}
}

func TestCubicInterpolatesNodes(t *testing.T) {
	taps := Cubic.TapsAt(4, 10)
	for k := 0; k < taps.N; k++ {
		want := 0.0
		if taps.Index[k] == 4 {
			want = 1
		}
		if math.Abs(taps.Weight[k]-want) > 1e-12 {
			t.Errorf("Tap %d (index %d): expected weight %f, got %f", k, taps.Index[k], want, taps.Weight[k])
		}
	}
}

func TestLinspace(t *testing.T) {
	got := Linspace(0, 9, 4)
	want := []float64{0, 3, 6, 9}
	for i := range want {
		if math.Abs(got[i]-want[i]) > 1e-12 {
			t.Errorf("Linspace[%d]: expected %f, got %f", i, want[i], got[i])
		}
	}
	if got := Linspace(2, 5, 1); len(got) != 1 || got[0] != 2 {
		t.Errorf("Expected single start value, got %v", got)
	}
	if got := Linspace(0, 1, 0); got != nil {
		t.Errorf("Expected nil for zero samples, got %v", got)
	}
}

func TestSamplingPlanIdentity(t *testing.T) {
	const rows, cols = 5, 7
	plane := make([]float64, rows*cols)
	for i := range plane {
		plane[i] = float64(i * i % 11)
	}

	for _, order := range []Order{Linear, Cubic} {
		plan := NewSamplingPlan(rows, cols, rows, cols, order)
		dst := make([]float64, rows*cols)
		scratch := make([]float64, plan.ScratchSize())
		plan.Accumulate(dst, scratch, plane, 0, cols)

		for i := range plane {
			if math.Abs(dst[i]-plane[i]) > 1e-9 {
				t.Fatalf("%s: element %d expected %f, got %f", order, i, plane[i], dst[i])
			}
		}
	}
}

func TestSamplingPlanAccumulatesStridedPlanes(t *testing.T) {
	// A 3x2x4 volume (depth x height x width); planes at fixed y are strided
	vol := createGradientVolume(4, 2, 3)
	plan := NewSamplingPlan(3, 4, 5, 7, Linear)

	dst := make([]float64, 5*7)
	scratch := make([]float64, plan.ScratchSize())
	for y := 0; y < 2; y++ {
		plan.Accumulate(dst, scratch, vol.Data, vol.Index(0, y, 0), vol.Width*vol.Height)
	}

	// Linear interpolation of a linear field is exact; the sum over y adds 2*(0+1)
	for r := 0; r < 5; r++ {
		z := float64(r) * 2 / 4
		for c := 0; c < 7; c++ {
			x := float64(c) * 3 / 6
			want := 2*(x+3*z) + 2
			if got := dst[r*7+c]; math.Abs(got-want) > 1e-9 {
				t.Errorf("Cell (%d,%d): expected %f, got %f", r, c, want, got)
			}
		}
	}
}

func TestParseOrder(t *testing.T) {
	if o, err := ParseOrder("cubic"); err != nil || o != Cubic {
		t.Errorf("Expected Cubic, got %v, %v", o, err)
	}
	if o, err := ParseOrder("linear"); err != nil || o != Linear {
		t.Errorf("Expected Linear, got %v, %v", o, err)
	}
	if _, err := ParseOrder("nearest"); err == nil {
		t.Error("Expected error for unknown order")
	}
}
