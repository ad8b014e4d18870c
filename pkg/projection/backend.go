package projection

import (
	"fmt"
	"runtime"
	"sync"

	"gonum.org/v1/gonum/floats"

	"ctpatch/internal/models"
	"ctpatch/pkg/config"
	"ctpatch/pkg/interpolation"
)

// Backend executes the ray-cast accumulation: for every y slice of vol,
// the (z, x) plane is sampled by plan and added into dst.
//
// All backends implement the same sum; they may differ only in floating
// point summation order.
type Backend interface {
	Name() string
	Accumulate(plan *interpolation.SamplingPlan, vol *models.Volume, dst []float64)
}

// NewBackend returns the named backend.
func NewBackend(name string, workers int) (Backend, error) {
	switch name {
	case config.BackendSerial, "":
		return SerialBackend{}, nil
	case config.BackendParallel:
		return ParallelBackend{Workers: workers}, nil
	default:
		return nil, fmt.Errorf("unknown ray-cast backend %q", name)
	}
}

// SerialBackend accumulates slices in order on the calling goroutine.
type SerialBackend struct{}

func (SerialBackend) Name() string { return config.BackendSerial }

func (SerialBackend) Accumulate(plan *interpolation.SamplingPlan, vol *models.Volume, dst []float64) {
	accumulateRange(plan, vol, dst, 0, vol.Height)
}

// ParallelBackend splits the y slices into contiguous ranges, one per
// worker. Each worker sums into its own buffer and the buffers are added
// into dst in range order, so results are reproducible run to run.
type ParallelBackend struct {
	// Workers bounds the goroutines; zero uses every CPU
	Workers int
}

func (ParallelBackend) Name() string { return config.BackendParallel }

func (b ParallelBackend) Accumulate(plan *interpolation.SamplingPlan, vol *models.Volume, dst []float64) {
	workers := b.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	if workers > vol.Height {
		workers = vol.Height
	}
	if workers <= 1 {
		accumulateRange(plan, vol, dst, 0, vol.Height)
		return
	}

	partials := make([][]float64, workers)
	chunk := (vol.Height + workers - 1) / workers

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		start := w * chunk
		end := min(start+chunk, vol.Height)
		if start >= end {
			continue
		}
		partials[w] = make([]float64, len(dst))

		wg.Add(1)
		go func(buf []float64, start, end int) {
			defer wg.Done()
			accumulateRange(plan, vol, buf, start, end)
		}(partials[w], start, end)
	}
	wg.Wait()

	for _, p := range partials {
		if p != nil {
			floats.Add(dst, p)
		}
	}
}

func accumulateRange(plan *interpolation.SamplingPlan, vol *models.Volume, dst []float64, start, end int) {
	scratch := make([]float64, plan.ScratchSize())
	stride := vol.Width * vol.Height
	for y := start; y < end; y++ {
		plan.Accumulate(dst, scratch, vol.Data, vol.Index(0, y, 0), stride)
	}
}
