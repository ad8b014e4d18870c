package batch

import (
	"context"
	"fmt"
	"path/filepath"

	"ctpatch/pkg/annotations"
	"ctpatch/pkg/ledger"
	"ctpatch/pkg/projection"
	"ctpatch/pkg/segment"
)

// Output directories created under the pipeline's output root
const (
	PatchDir     = "patch_dataset"
	InferenceDir = "infered_dataset"
	FullMaskDir  = "full_mask_dataset"
	CTXrayDir    = "xray_dataset/full_ct_xray"
	MaskXrayDir  = "xray_dataset/full_ct_mask"
)

// Params holds the pipeline inputs.
type Params struct {
	// InputDir contains the full CT volumes
	InputDir string

	// AnnotationsFile is a CSV table of (series, x, y, z) rows in mm
	AnnotationsFile string

	// OutputDir receives one directory per stage
	OutputDir string
}

// StageReport pairs a pipeline stage with its batch result.
type StageReport struct {
	Name   string
	Result Result
}

// Pipeline runs extraction, segmentation, reinsertion and projection of
// both the CT volumes and the reassembled masks, in that order.
type Pipeline struct {
	params *Params
	runner *Runner
	model  segment.Model

	reports []StageReport
}

// NewPipeline creates a pipeline. A nil model is built from the runner's
// configuration.
func NewPipeline(params *Params, runner *Runner, model segment.Model) (*Pipeline, error) {
	if model == nil {
		m, err := segment.NewModel(runner.Config())
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrConfig, err)
		}
		model = m
	}
	return &Pipeline{params: params, runner: runner, model: model}, nil
}

// Reports returns the result of every stage that ran.
func (p *Pipeline) Reports() []StageReport {
	return p.reports
}

func (p *Pipeline) dir(name string) string {
	return filepath.Join(p.params.OutputDir, filepath.FromSlash(name))
}

func (p *Pipeline) report(name string, res Result) {
	p.reports = append(p.reports, StageReport{Name: name, Result: res})
	fmt.Printf("  %s: %s\n", name, res)
}

// Process runs the complete pipeline. Per-file failures are counted in
// the reports; an error means a stage could not run at all.
func (p *Pipeline) Process(ctx context.Context) error {
	cfg := p.runner.Config()

	table, err := annotations.Load(p.params.AnnotationsFile)
	if err != nil {
		return fmt.Errorf("%w: cannot load annotations: %v", ErrConfig, err)
	}

	// Step 1: Cut patches around every annotated point
	fmt.Println("Step 1: Extracting patches...")
	res, err := p.runner.Extract(ctx, p.params.InputDir, p.dir(PatchDir), table)
	if err != nil {
		return fmt.Errorf("extraction failed: %w", err)
	}
	p.report("extract", res)

	// Step 2: Segment every patch
	fmt.Printf("Step 2: Segmenting patches with %s model...\n", p.model.Name())
	res, err = p.runner.Segment(ctx, p.dir(PatchDir), p.dir(InferenceDir), p.model)
	if err != nil {
		return fmt.Errorf("segmentation failed: %w", err)
	}
	p.report("segment", res)

	// Step 3: Reassemble full-size masks from the segmented patches
	fmt.Println("Step 3: Reinserting masks...")
	ledgerPath := filepath.Join(p.dir(PatchDir), ledger.FileName)
	res, err = p.runner.Reinsert(ctx, p.params.InputDir, p.dir(InferenceDir), ledgerPath, p.dir(FullMaskDir))
	if err != nil {
		return fmt.Errorf("reinsertion failed: %w", err)
	}
	p.report("reinsert", res)

	led, err := ledger.Load(ledgerPath)
	if err != nil {
		return fmt.Errorf("%w: cannot reload ledger: %v", ErrConfig, err)
	}
	opts := ProjectOptions{Exclude: led.KeySet()}
	if cfg.Projection.OverlayPatches {
		opts.Overlay = led
	}

	// Step 4: Project the CT volumes
	projector, err := projection.New(cfg)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrConfig, err)
	}
	fmt.Printf("Step 4: Projecting CT volumes (%s)...\n", projector.Name())
	res, err = p.runner.Project(ctx, p.params.InputDir, p.dir(CTXrayDir), projector, opts)
	if err != nil {
		return fmt.Errorf("CT projection failed: %w", err)
	}
	p.report("project-ct", res)

	// Step 5: Project the reassembled masks
	fmt.Println("Step 5: Projecting masks...")
	res, err = p.runner.Project(ctx, p.dir(FullMaskDir), p.dir(MaskXrayDir), projection.NewMaskProjector(cfg), ProjectOptions{})
	if err != nil {
		return fmt.Errorf("mask projection failed: %w", err)
	}
	p.report("project-mask", res)

	return nil
}
