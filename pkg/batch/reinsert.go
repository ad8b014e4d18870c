package batch

import (
	"context"
	"errors"
	"fmt"
	"os"

	"ctpatch/internal/models"
	"ctpatch/pkg/ledger"
	"ctpatch/pkg/patch"
	"ctpatch/pkg/volumeio"
)

// Reinsert rebuilds one full-size volume per parent in parentDir from the
// patches in patchDir, placed at the positions recorded in the ledger.
// Voxels outside every patch are zero. Parents without recorded patches
// are skipped; patches that are missing or do not fit are logged and left
// out.
func (r *Runner) Reinsert(ctx context.Context, parentDir, patchDir, ledgerPath, outputDir string) (Result, error) {
	led, err := ledger.Load(ledgerPath)
	if err != nil {
		return Result{}, fmt.Errorf("%w: cannot load ledger: %v", ErrConfig, err)
	}
	files, err := ListVolumes(parentDir, r.cfg.Processing.VolumeExt)
	if err != nil {
		return Result{}, err
	}
	if err := ensureDir(outputDir); err != nil {
		return Result{}, err
	}

	var patches, patchErrors int

	res := r.each(StageReinsert, files, func(path string) (outcome, error) {
		key := ledger.KeyForFile(path)
		ids := led.PatchesFor(key)
		if len(ids) == 0 {
			return skipped, nil
		}

		// The parent's voxels are never needed, only its shape and placement
		h, err := volumeio.ReadHeader(path)
		if err != nil {
			return processed, err
		}
		parent := &models.Volume{
			Width:       h.DimSize[0],
			Height:      h.DimSize[1],
			Depth:       h.DimSize[2],
			Geometry:    h.Geometry(),
			ElementType: h.ElementType,
		}

		var full *models.Volume
		var errs []error
		placed := 0
		for _, id := range ids {
			if err := ctx.Err(); err != nil {
				return processed, err
			}
			spec, err := led.Lookup(id)
			if err != nil {
				errs = append(errs, err)
				continue
			}
			sub, err := volumeio.Read(r.volumePath(patchDir, id))
			if err != nil {
				if errors.Is(err, os.ErrNotExist) {
					r.log.Warning("%s: patch file missing, leaving its region empty", id)
				} else {
					r.log.Warning("%s: cannot read patch: %v", id, err)
				}
				errs = append(errs, fmt.Errorf("%s: %w", id, err))
				continue
			}
			if full == nil {
				full = patch.Blank(parent, sub.ElementType)
			}
			if err := patch.ReinsertInto(full, sub, spec); err != nil {
				r.log.Warning("%s: %v", id, err)
				errs = append(errs, fmt.Errorf("%s: %w", id, err))
				continue
			}
			placed++
		}

		patches += placed
		patchErrors += len(errs)
		if placed == 0 {
			return processed, errors.Join(errs...)
		}
		r.log.Printf("debug-reinsert", "%s: %d of %d patches placed", key, placed, len(ids))
		return processed, volumeio.Write(r.volumePath(outputDir, key), full, r.writeOptions())
	})

	res.Patches = patches
	res.PatchErrors = patchErrors
	return res, nil
}
