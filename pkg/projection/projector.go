// Package projection synthesizes 2D radiographs (DRRs) from CT volumes.
//
// Two strategies implement Projector:
//
//   - IntensityProjection collapses one array axis by max or mean.
//   - RayCast integrates interpolated samples through the volume and
//     applies Beer-Lambert attenuation.
//
// Both normalize to [0, 1], enhance contrast, and flip the rows so that
// anatomical up is at the top of the image. Numerical edge cases (NaN,
// Inf, zero dynamic range) produce zeros rather than errors.
package projection

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"ctpatch/internal/logger"
	"ctpatch/internal/models"
	"ctpatch/pkg/config"
)

// ErrEmptyVolume is returned for volumes with a zero-length axis.
var ErrEmptyVolume = errors.New("volume has no voxels")

// Projector turns a volume into a single image.
type Projector interface {
	// Name identifies the strategy in logs and metrics
	Name() string

	// Project renders vol. The result is Width x Height with values in [0, 1].
	Project(vol *models.Volume) (*models.Image, error)

	// Locate maps a continuous (x, y, z) index of a volume with the given
	// (x, y, z) size to pixel coordinates of the projected image.
	Locate(size [3]int, idx [3]float64) (px, py float64)
}

// New builds the projector selected by cfg.Projection.Strategy.
func New(cfg config.Config) (Projector, error) {
	p := cfg.Projection
	switch p.Strategy {
	case config.StrategyIntensity:
		return &IntensityProjection{
			Axis:       p.Axis,
			Mode:       p.Mode,
			OutputSize: p.OutputSize,
			ClipLimit:  p.ClipLimit,
			TileGrid:   p.TileGrid,
		}, nil
	case config.StrategyRaycast:
		return NewRayCast(p.Raycast)
	default:
		return nil, fmt.Errorf("unknown projection strategy %q", p.Strategy)
	}
}

// NewMaskProjector builds the maximum intensity projector used for
// binary masks, sharing axis, size and enhancement with cfg.
func NewMaskProjector(cfg config.Config) Projector {
	p := cfg.Projection
	return &IntensityProjection{
		Axis:       p.Axis,
		Mode:       config.ModeMax,
		OutputSize: p.OutputSize,
		ClipLimit:  p.ClipLimit,
		TileGrid:   p.TileGrid,
	}
}

// normalize rescales data to [0, 1] in place. Non-finite values become 0
// first; a zero range yields all zeros.
func normalize(data []float64) {
	if len(data) == 0 {
		return
	}
	sanitize(data)
	lo, hi := floats.Min(data), floats.Max(data)
	span := hi - lo
	if !(span > 0) || math.IsInf(span, 0) {
		for i := range data {
			data[i] = 0
		}
		return
	}
	for i, v := range data {
		data[i] = (v - lo) / span
	}
}

// sanitize replaces NaN and ±Inf with 0.
func sanitize(data []float64) {
	for i, v := range data {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			data[i] = 0
		}
	}
}

func checkVolume(vol *models.Volume) error {
	if vol.Width < 1 || vol.Height < 1 || vol.Depth < 1 {
		return fmt.Errorf("%w: size %v", ErrEmptyVolume, vol.Size())
	}
	return nil
}

func logStats(name string, img *models.Image) {
	if len(img.Data) == 0 {
		return
	}
	logger.Printf("debug-project", "%s DRR %dx%d, min: %.2f, max: %.2f, mean: %.3f",
		name, img.Width, img.Height, floats.Min(img.Data), floats.Max(img.Data), stat.Mean(img.Data, nil))
}
