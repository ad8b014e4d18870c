package batch

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"ctpatch/pkg/annotations"
	"ctpatch/pkg/geometry"
	"ctpatch/pkg/ledger"
	"ctpatch/pkg/patch"
	"ctpatch/pkg/visualization"
	"ctpatch/pkg/volumeio"
)

// Extract cuts a cube around every annotated point of every volume in
// inputDir. Patches go to outputDir as <series>_<ordinal> files, where
// ordinal is the row's position among the series' annotation rows, and
// the ledger is written to outputDir/meta.json once all files are done.
//
// A patch enters the ledger only after its file was written.
func (r *Runner) Extract(ctx context.Context, inputDir, outputDir string, table *annotations.Table) (Result, error) {
	if table == nil {
		return Result{}, fmt.Errorf("%w: no annotation table", ErrConfig)
	}
	files, err := ListVolumes(inputDir, r.cfg.Processing.VolumeExt)
	if err != nil {
		return Result{}, err
	}
	if err := ensureDir(outputDir); err != nil {
		return Result{}, err
	}

	led := ledger.New()
	var patches, patchErrors int

	res := r.each(StageExtract, files, func(path string) (outcome, error) {
		key := ledger.KeyForFile(path)
		rows := table.ForSeries(key)
		if len(rows) == 0 {
			return skipped, nil
		}
		if err := ctx.Err(); err != nil {
			return processed, err
		}

		vol, err := volumeio.Read(path)
		if err != nil {
			return processed, err
		}
		mapper, err := geometry.NewMapper(vol.Geometry)
		if err != nil {
			return processed, err
		}

		var errs []error
		written := 0
		for i, row := range rows {
			id := ledger.PatchID(key, i)

			center := mapper.ToVoxelIndex(row.Point)
			sub, spec, err := patch.Extract(vol, center, r.cfg.Processing.CubeSize)
			if err != nil {
				r.log.Warning("%s: skipping patch at (%.2f, %.2f, %.2f): %v", id, row.Point.X, row.Point.Y, row.Point.Z, err)
				errs = append(errs, fmt.Errorf("%s: %w", id, err))
				continue
			}
			if err := volumeio.Write(r.volumePath(outputDir, id), sub, r.writeOptions()); err != nil {
				r.log.Warning("%s: failed to write patch: %v", id, err)
				errs = append(errs, fmt.Errorf("%s: %w", id, err))
				continue
			}
			led.Record(id, spec)
			written++

			r.log.Printf("debug-extract", "%s start %v size %v", id, spec.StartIndex, spec.ExtractSize)

			if r.cfg.Extraction.SavePreviews {
				viewer := visualization.NewViewer(sub, r.cfg.Projection.Raycast.Window)
				if err := viewer.SaveMidSlices(filepath.Join(outputDir, r.cfg.Extraction.PreviewDir), id); err != nil {
					r.log.Warning("%s: failed to save previews: %v", id, err)
				}
			}
		}

		patches += written
		patchErrors += len(errs)
		if written == 0 {
			return processed, errors.Join(errs...)
		}
		return processed, nil
	})

	res.Patches = patches
	res.PatchErrors = patchErrors

	if err := led.Flush(filepath.Join(outputDir, ledger.FileName)); err != nil {
		return res, fmt.Errorf("failed to write ledger: %w", err)
	}
	r.log.Printf(StageExtract, "%s: %s, %d patches recorded", inputDir, res, led.Len())
	return res, nil
}
