package segment

import (
	"context"
	"errors"
	"os/exec"
	"testing"

	"ctpatch/internal/models"
	"ctpatch/pkg/config"
)

// createRampPatch creates a patch whose value grows along x
func createRampPatch() *models.Volume {
	geom := models.NewGeometry([3]float64{-12.5, 3, 40}, [3]float64{0.7, 0.7, 1.25})
	vol := models.NewVolume(10, 4, 3, geom, models.ElementShort)
	for z := 0; z < 3; z++ {
		for y := 0; y < 4; y++ {
			for x := 0; x < 10; x++ {
				vol.Set(x, y, z, float64(100*x)-400)
			}
		}
	}
	return vol
}

type fixedModel struct {
	out Tensor
}

func (m fixedModel) Name() string { return "fixed" }

func (m fixedModel) Predict(context.Context, Tensor) (Tensor, error) { return m.out, nil }

func TestStageThresholdModel(t *testing.T) {
	vol := createRampPatch()
	stage := &Stage{Model: ThresholdModel{Level: 0.6}, Threshold: 0.5}

	mask, err := stage.Segment(context.Background(), vol)
	if err != nil {
		t.Fatalf("Segment failed: %v", err)
	}

	if mask.ElementType != models.ElementUChar {
		t.Errorf("Expected MET_UCHAR mask, got %s", mask.ElementType)
	}
	if mask.Geometry != vol.Geometry {
		t.Errorf("Expected mask to keep the patch geometry")
	}

	// Normalized x/9 >= 0.6 holds from x = 6 on
	for x := 0; x < 10; x++ {
		want := 0.0
		if x >= 6 {
			want = 1
		}
		if got := mask.At(x, 2, 1); got != want {
			t.Errorf("x=%d: expected %f, got %f", x, want, got)
		}
	}

	if vol.At(0, 0, 0) != -400 {
		t.Error("Segment must not modify the input patch")
	}
}

func TestStageThresholdIsStrict(t *testing.T) {
	vol := models.NewVolume(3, 1, 1, models.NewGeometry([3]float64{}, [3]float64{1, 1, 1}), models.ElementShort)
	out := Tensor{Shape: [5]int{1, 1, 1, 1, 3}, Data: []float64{0.4, 0.5, 0.51}}
	stage := &Stage{Model: fixedModel{out: out}, Threshold: 0.5}

	mask, err := stage.Segment(context.Background(), vol)
	if err != nil {
		t.Fatal(err)
	}
	want := []float64{0, 0, 1}
	for i := range want {
		if mask.Data[i] != want[i] {
			t.Errorf("Voxel %d: expected %f, got %f", i, want[i], mask.Data[i])
		}
	}
}

func TestStageRejectsWrongShape(t *testing.T) {
	vol := createRampPatch()
	stage := &Stage{Model: fixedModel{out: Tensor{Shape: [5]int{1, 1, 3, 4, 9}, Data: make([]float64, 108)}}, Threshold: 0.5}

	if _, err := stage.Segment(context.Background(), vol); !errors.Is(err, ErrShape) {
		t.Errorf("Expected ErrShape, got %v", err)
	}
}

func TestNormalize(t *testing.T) {
	data := []float64{-10, 0, 10}
	Normalize(data)
	if data[0] != 0 || data[1] < 0.4999 || data[1] > 0.5 || data[2] >= 1 || data[2] < 0.9999 {
		t.Errorf("Unexpected normalization %v", data)
	}

	constant := []float64{7, 7, 7}
	Normalize(constant)
	for i, v := range constant {
		if v != 0 {
			t.Errorf("Constant element %d: expected 0, got %f", i, v)
		}
	}
}

func TestCommandModel(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping external command in short mode")
	}
	if _, err := exec.LookPath("cp"); err != nil {
		t.Skip("cp not available")
	}

	// Copying the header yields an identity model over the shared .raw
	model := &CommandModel{Args: []string{"cp", "{input}", "{output}"}, Dir: t.TempDir()}
	stage := &Stage{Model: model, Threshold: 0.5}

	mask, err := stage.Segment(context.Background(), createRampPatch())
	if err != nil {
		t.Fatalf("Segment failed: %v", err)
	}
	for x := 0; x < 10; x++ {
		want := 0.0
		if float64(x)/9 > 0.5 {
			want = 1
		}
		if got := mask.At(x, 0, 0); got != want {
			t.Errorf("x=%d: expected %f, got %f", x, want, got)
		}
	}
}

func TestCommandModelFailure(t *testing.T) {
	if _, err := exec.LookPath("false"); err != nil {
		t.Skip("false not available")
	}
	model := &CommandModel{Args: []string{"false"}, Dir: t.TempDir()}
	if _, err := model.Predict(context.Background(), TensorFromVolume(createRampPatch())); err == nil {
		t.Error("Expected error from failing command")
	}
}

func TestNewModel(t *testing.T) {
	cfg := config.DefaultConfig()
	m, err := NewModel(*cfg)
	if err != nil {
		t.Fatal(err)
	}
	if tm, ok := m.(ThresholdModel); !ok || tm.Level != cfg.Segmentation.Level {
		t.Errorf("Expected threshold model with configured level, got %#v", m)
	}

	cfg.Segmentation.Model = config.ModelCommand
	if _, err := NewModel(*cfg); err == nil {
		t.Error("Expected error for command model without a command")
	}

	cfg.Segmentation.Command = []string{"predict", "{input}", "{output}"}
	if m, err := NewModel(*cfg); err != nil || m.Name() != config.ModelCommand {
		t.Errorf("Expected command model, got %v, %v", m, err)
	}
}
