package segment

import (
	"context"
	"errors"
	"fmt"

	"gonum.org/v1/gonum/floats"

	"ctpatch/internal/models"
)

// ErrShape is returned when a model answers with the wrong shape.
var ErrShape = errors.New("model output shape mismatch")

// Stage normalizes a patch, runs the model and binarizes the result.
type Stage struct {
	Model Model

	// Threshold binarizes probabilities; voxels strictly above it are set
	Threshold float64
}

// Segment returns a MET_UCHAR mask with vol's geometry.
func (s *Stage) Segment(ctx context.Context, vol *models.Volume) (*models.Volume, error) {
	in := TensorFromVolume(vol)
	Normalize(in.Data)

	out, err := s.Model.Predict(ctx, in)
	if err != nil {
		return nil, err
	}
	if out.Shape != in.Shape || len(out.Data) != in.Len() {
		return nil, fmt.Errorf("%w: sent %v, got %v (%d values)", ErrShape, in.Shape, out.Shape, len(out.Data))
	}

	mask := models.NewVolume(vol.Width, vol.Height, vol.Depth, vol.Geometry, models.ElementUChar)
	for i, p := range out.Data {
		if p > s.Threshold {
			mask.Data[i] = 1
		}
	}
	return mask, nil
}

// Normalize rescales data in place with (x - min) / (max - min + 1e-8),
// so a constant patch maps to zeros.
func Normalize(data []float64) {
	if len(data) == 0 {
		return
	}
	lo, hi := floats.Min(data), floats.Max(data)
	span := hi - lo + 1e-8
	for i, v := range data {
		data[i] = (v - lo) / span
	}
}
