package projection

import (
	"fmt"
	"math"

	lru "github.com/hashicorp/golang-lru/v2"

	"ctpatch/internal/models"
	"ctpatch/pkg/config"
	"ctpatch/pkg/enhance"
	"ctpatch/pkg/interpolation"
)

// planCacheSize bounds the number of distinct (volume shape, detector)
// combinations whose sampling taps are kept.
const planCacheSize = 64

type planKey struct {
	depth, width int
	rows, cols   int
	order        interpolation.Order
}

// RayCast renders a coronal DRR by parallel rays along the array y axis.
//
// For every y slice the (z, x) plane is interpolated onto the detector
// grid and accumulated. The mean path value m gives the transmitted
// intensity exp(-m / SourceToDetector), which is normalized and
// inverted so dense tissue appears bright, as on film.
type RayCast struct {
	// Window is the Hounsfield range kept before normalization
	Window [2]float64

	// Detector is (rows, cols)
	Detector [2]int

	SourceToDetector float64
	Order            interpolation.Order
	Backend          Backend

	ClipLimit float64
	TileGrid  [2]int

	plans *lru.Cache[planKey, *interpolation.SamplingPlan]
}

// NewRayCast builds a ray-cast projector from its configuration.
func NewRayCast(cfg config.RaycastConfig) (*RayCast, error) {
	order, err := interpolation.ParseOrder(cfg.Interpolation)
	if err != nil {
		return nil, err
	}
	backend, err := NewBackend(cfg.Backend, cfg.Workers)
	if err != nil {
		return nil, err
	}
	plans, err := lru.New[planKey, *interpolation.SamplingPlan](planCacheSize)
	if err != nil {
		return nil, err
	}
	return &RayCast{
		Window:           cfg.Window,
		Detector:         cfg.Detector,
		SourceToDetector: cfg.SourceToDetector,
		Order:            order,
		Backend:          backend,
		ClipLimit:        cfg.ClipLimit,
		TileGrid:         cfg.TileGrid,
		plans:            plans,
	}, nil
}

func (r *RayCast) Name() string {
	return "raycast-" + r.Backend.Name()
}

// Project attenuates, enhances and flips.
func (r *RayCast) Project(vol *models.Volume) (*models.Image, error) {
	img, err := r.Attenuate(vol)
	if err != nil {
		return nil, err
	}
	img = enhance.Enhance(img, r.ClipLimit, r.TileGrid)
	img.FlipVertical()

	logStats(r.Name(), img)
	return img, nil
}

// Attenuate computes the inverted, normalized attenuation image before
// contrast enhancement. Rows follow z and columns follow x.
func (r *RayCast) Attenuate(vol *models.Volume) (*models.Image, error) {
	if err := checkVolume(vol); err != nil {
		return nil, err
	}
	rows, cols := r.Detector[0], r.Detector[1]
	if rows < 1 || cols < 1 {
		return nil, fmt.Errorf("detector must be positive, got %v", r.Detector)
	}
	if !(r.SourceToDetector > 0) {
		return nil, fmt.Errorf("source to detector distance must be positive, got %g", r.SourceToDetector)
	}

	windowed := r.window(vol)
	plan := r.plan(vol.Depth, vol.Width, rows, cols)

	img := models.NewImage(cols, rows)
	r.Backend.Accumulate(plan, windowed, img.Data)

	scale := 1 / float64(vol.Height)
	for i, v := range img.Data {
		img.Data[i] = math.Exp(-(v * scale) / r.SourceToDetector)
	}

	normalize(img.Data)
	for i, v := range img.Data {
		img.Data[i] = 1 - v
	}
	return img, nil
}

// window clips to the HU window and rescales the clipped values to [0, 1].
func (r *RayCast) window(vol *models.Volume) *models.Volume {
	out := vol.Clone()
	lo, hi := r.Window[0], r.Window[1]
	for i, v := range out.Data {
		out.Data[i] = math.Min(math.Max(v, lo), hi)
	}
	normalize(out.Data)
	return out
}

func (r *RayCast) plan(depth, width, rows, cols int) *interpolation.SamplingPlan {
	key := planKey{depth: depth, width: width, rows: rows, cols: cols, order: r.Order}
	if r.plans != nil {
		if p, ok := r.plans.Get(key); ok {
			return p
		}
	}
	p := interpolation.NewSamplingPlan(depth, width, rows, cols, r.Order)
	if r.plans != nil {
		r.plans.Add(key, p)
	}
	return p
}

// Locate maps x to detector columns and z to flipped detector rows.
func (r *RayCast) Locate(size [3]int, idx [3]float64) (float64, float64) {
	rows, cols := float64(r.Detector[0]), float64(r.Detector[1])
	px := idx[0] * cols / float64(size[0])
	py := idx[2] * rows / float64(size[2])
	return px, rows - py
}
