package batch

import (
	"context"
	"path/filepath"

	"ctpatch/pkg/ledger"
	"ctpatch/pkg/segment"
	"ctpatch/pkg/volumeio"
)

// Segment runs the model over every patch in patchDir and writes binary
// masks under the same names in outputDir.
func (r *Runner) Segment(ctx context.Context, patchDir, outputDir string, model segment.Model) (Result, error) {
	files, err := ListVolumes(patchDir, r.cfg.Processing.VolumeExt)
	if err != nil {
		return Result{}, err
	}
	if err := ensureDir(outputDir); err != nil {
		return Result{}, err
	}

	stage := &segment.Stage{Model: model, Threshold: r.cfg.Segmentation.Threshold}
	r.log.Printf(StageSegment, "segmenting %d patches with %s model", len(files), model.Name())

	res := r.each(StageSegment, files, func(path string) (outcome, error) {
		if err := ctx.Err(); err != nil {
			return processed, err
		}
		vol, err := volumeio.Read(path)
		if err != nil {
			return processed, err
		}
		mask, err := stage.Segment(ctx, vol)
		if err != nil {
			return processed, err
		}
		key := ledger.KeyForFile(filepath.Base(path))
		return processed, volumeio.Write(r.volumePath(outputDir, key), mask, r.writeOptions())
	})
	res.Patches = res.Processed
	return res, nil
}
