package batch

import (
	"context"
	"path/filepath"
	"strconv"

	"ctpatch/pkg/ledger"
	"ctpatch/pkg/projection"
	"ctpatch/pkg/resample"
	"ctpatch/pkg/visualization"
	"ctpatch/pkg/volumeio"
)

// ProjectOptions tunes a projection batch.
type ProjectOptions struct {
	// Exclude lists keys that are not projected; the pipeline passes the
	// ledger keys so patch files sitting next to full scans are ignored
	Exclude map[string]struct{}

	// Overlay, when set, also writes <key>.overlay.png with the footprint
	// of every recorded patch of that volume
	Overlay *ledger.Ledger
}

// Project resamples every volume in inputDir to the target spacing,
// projects it and writes <key>.png to outputDir.
func (r *Runner) Project(ctx context.Context, inputDir, outputDir string, projector projection.Projector, opts ProjectOptions) (Result, error) {
	files, err := ListVolumes(inputDir, r.cfg.Processing.VolumeExt)
	if err != nil {
		return Result{}, err
	}
	if err := ensureDir(outputDir); err != nil {
		return Result{}, err
	}

	target := r.cfg.Processing.TargetSpacing
	r.log.Printf(StageProject, "projecting %d volumes with %s", len(files), projector.Name())

	res := r.each(StageProject, files, func(path string) (outcome, error) {
		key := ledger.KeyForFile(path)
		if _, ok := opts.Exclude[key]; ok {
			return skipped, nil
		}
		if err := ctx.Err(); err != nil {
			return processed, err
		}

		vol, err := volumeio.Read(path)
		if err != nil {
			return processed, err
		}
		spacing := vol.Geometry.Spacing
		vol, err = resample.Resample(vol, target)
		if err != nil {
			return processed, err
		}
		img, err := projector.Project(vol)
		if err != nil {
			return processed, err
		}
		if err := visualization.SavePNG(img, filepath.Join(outputDir, key+".png")); err != nil {
			return processed, err
		}

		if opts.Overlay == nil {
			return processed, nil
		}
		ids := opts.Overlay.PatchesFor(key)
		if len(ids) == 0 {
			return processed, nil
		}
		footprints := make([]visualization.Footprint, 0, len(ids))
		for i, id := range ids {
			spec, err := opts.Overlay.Lookup(id)
			if err != nil {
				continue
			}
			var lo, hi [3]float64
			for a := 0; a < 3; a++ {
				scale := spacing[a] / target[a]
				lo[a] = float64(spec.StartIndex[a]) * scale
				hi[a] = float64(spec.StartIndex[a]+spec.ExtractSize[a]) * scale
			}
			x0, y0 := projector.Locate(vol.Size(), lo)
			x1, y1 := projector.Locate(vol.Size(), hi)
			footprints = append(footprints, visualization.Footprint{
				Label: strconv.Itoa(i),
				X0:    x0,
				Y0:    y0,
				X1:    x1,
				Y1:    y1,
			})
		}
		if err := visualization.SaveOverlay(img, footprints, filepath.Join(outputDir, key+".overlay.png")); err != nil {
			r.log.Warning("%s: failed to save overlay: %v", key, err)
		}
		return processed, nil
	})
	return res, nil
}
