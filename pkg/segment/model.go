// Package segment runs a segmentation model over patches and turns its
// probabilities into binary masks.
//
// The model itself is a collaborator behind the Model interface: it
// receives a normalized (1, 1, D, H, W) tensor and returns one of the
// same shape with values in [0, 1].
package segment

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"ctpatch/internal/models"
	"ctpatch/pkg/config"
	"ctpatch/pkg/volumeio"
)

// Tensor is a dense (N, C, D, H, W) array, W varying fastest.
type Tensor struct {
	Shape [5]int
	Data  []float64
}

// TensorFromVolume wraps a copy of vol's voxels as a (1, 1, D, H, W) tensor.
func TensorFromVolume(vol *models.Volume) Tensor {
	data := make([]float64, len(vol.Data))
	copy(data, vol.Data)
	return Tensor{Shape: [5]int{1, 1, vol.Depth, vol.Height, vol.Width}, Data: data}
}

// Len is the element count implied by Shape.
func (t Tensor) Len() int {
	n := 1
	for _, s := range t.Shape {
		n *= s
	}
	return n
}

// Model maps a normalized tensor to per-voxel probabilities.
type Model interface {
	Name() string
	Predict(ctx context.Context, in Tensor) (Tensor, error)
}

// NewModel returns the model named by cfg.Segmentation.Model.
func NewModel(cfg config.Config) (Model, error) {
	s := cfg.Segmentation
	switch s.Model {
	case config.ModelThreshold:
		return ThresholdModel{Level: s.Level}, nil
	case config.ModelCommand:
		if len(s.Command) == 0 {
			return nil, fmt.Errorf("command model needs segmentation.command")
		}
		return &CommandModel{Args: s.Command}, nil
	default:
		return nil, fmt.Errorf("unknown segmentation model %q", s.Model)
	}
}

// ThresholdModel marks voxels whose normalized intensity reaches Level.
// It needs no weights and is useful for dry runs of the pipeline.
type ThresholdModel struct {
	Level float64
}

func (m ThresholdModel) Name() string { return config.ModelThreshold }

func (m ThresholdModel) Predict(_ context.Context, in Tensor) (Tensor, error) {
	out := Tensor{Shape: in.Shape, Data: make([]float64, len(in.Data))}
	for i, v := range in.Data {
		if v >= m.Level {
			out.Data[i] = 1
		}
	}
	return out, nil
}

// CommandModel runs an external program per patch. The input tensor is
// written as a MET_FLOAT MetaImage and every "{input}" and "{output}" in
// Args is replaced by the input and expected output paths.
type CommandModel struct {
	Args []string

	// Dir holds the exchange files; empty uses the system temp directory
	Dir string
}

func (m *CommandModel) Name() string { return config.ModelCommand }

func (m *CommandModel) Predict(ctx context.Context, in Tensor) (Tensor, error) {
	dir, err := os.MkdirTemp(m.Dir, "segment-*")
	if err != nil {
		return Tensor{}, err
	}
	defer os.RemoveAll(dir)

	d, h, w := in.Shape[2], in.Shape[3], in.Shape[4]
	vol := models.NewVolume(w, h, d, models.NewGeometry([3]float64{}, [3]float64{1, 1, 1}), models.ElementFloat)
	copy(vol.Data, in.Data)

	inPath := filepath.Join(dir, "input.mhd")
	outPath := filepath.Join(dir, "output.mhd")
	if err := volumeio.Write(inPath, vol, volumeio.WriteOptions{}); err != nil {
		return Tensor{}, err
	}

	args := make([]string, len(m.Args))
	for i, a := range m.Args {
		a = strings.ReplaceAll(a, "{input}", inPath)
		args[i] = strings.ReplaceAll(a, "{output}", outPath)
	}

	cmd := exec.CommandContext(ctx, args[0], args[1:]...)
	if out, err := cmd.CombinedOutput(); err != nil {
		return Tensor{}, fmt.Errorf("model command failed: %w: %s", err, strings.TrimSpace(string(out)))
	}

	res, err := volumeio.Read(outPath)
	if err != nil {
		return Tensor{}, fmt.Errorf("failed to read model output: %w", err)
	}
	return TensorFromVolume(res), nil
}
