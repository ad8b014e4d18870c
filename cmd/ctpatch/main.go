package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"ctpatch/internal/logger"
	"ctpatch/pkg/annotations"
	"ctpatch/pkg/batch"
	"ctpatch/pkg/config"
	"ctpatch/pkg/ledger"
	"ctpatch/pkg/metrics"
	"ctpatch/pkg/projection"
	"ctpatch/pkg/segment"
)

const usage = `Usage: ctpatch <command> [flags]

Commands:
  extract         cut annotated patches out of CT volumes
  segment         run the segmentation model over patches
  reinsert        place segmented patches back into full-size volumes
  project         render volumes as 2D projections
  pipeline        run extract, segment, reinsert and project in sequence
  multi-extract   extract every subset subdirectory in parallel
  multi-reinsert  reinsert every subset subdirectory in parallel
  init-config     write the default configuration file

Run 'ctpatch <command> -h' for the flags of a command.
`

type command struct {
	flags *flag.FlagSet
	cfg   *config.Config
}

func newCommand(name string) (*command, *string) {
	fs := flag.NewFlagSet(name, flag.ExitOnError)
	configPath := fs.String("config", "", "YAML configuration file (defaults are used when missing)")
	return &command{flags: fs}, configPath
}

// parse reads the flags and the configuration they point at
func (c *command) parse(args []string, configPath *string) {
	if err := c.flags.Parse(args); err != nil {
		os.Exit(2)
	}
	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}
	logger.SetVerbose(cfg.Output.Verbose)
	c.cfg = cfg
}

func (c *command) require(values ...*string) {
	for _, v := range values {
		if *v == "" {
			c.flags.Usage()
			os.Exit(1)
		}
	}
}

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(1)
	}

	ctx := context.Background()
	name, args := os.Args[1], os.Args[2:]

	fmt.Println("================================")
	fmt.Println("CTPATCH: CT PATCH EXTRACTION, SEGMENTATION AND PROJECTION")
	fmt.Println("================================")

	startTime := time.Now()
	var cfg *config.Config
	var failed bool

	switch name {
	case "extract":
		cfg, failed = runExtract(ctx, args)
	case "segment":
		cfg, failed = runSegment(ctx, args)
	case "reinsert":
		cfg, failed = runReinsert(ctx, args)
	case "project":
		cfg, failed = runProject(ctx, args)
	case "pipeline":
		cfg, failed = runPipeline(ctx, args)
	case "multi-extract":
		cfg, failed = runMultiExtract(ctx, args)
	case "multi-reinsert":
		cfg, failed = runMultiReinsert(ctx, args)
	case "init-config":
		runInitConfig(args)
		return
	default:
		fmt.Fprint(os.Stderr, usage)
		os.Exit(1)
	}

	fmt.Printf("\nFinished in %.2f seconds\n", time.Since(startTime).Seconds())

	if cfg != nil && cfg.Output.MetricsTextfile != "" {
		if err := metrics.WriteTextfile(cfg.Output.MetricsTextfile); err != nil {
			log.Printf("Warning: Failed to write metrics: %v", err)
		} else {
			fmt.Printf("Metrics written to: %s\n", cfg.Output.MetricsTextfile)
		}
	}
	if failed {
		os.Exit(1)
	}
}

// exitOnBatchError stops the process for batch-level failures
func exitOnBatchError(stage string, err error) {
	if errors.Is(err, batch.ErrConfig) {
		log.Fatalf("%s aborted: %v", stage, err)
	}
	if err != nil {
		log.Fatalf("%s failed: %v", stage, err)
	}
}

func printResult(res batch.Result) {
	fmt.Printf("Files: %s\n", res)
	if res.Patches > 0 || res.PatchErrors > 0 {
		fmt.Printf("Patches: %d written, %d skipped\n", res.Patches, res.PatchErrors)
	}
	for _, f := range res.Failures {
		fmt.Printf("- %s: %v\n", filepath.Base(f.File), f.Err)
	}
}

func loadTable(path string) *annotations.Table {
	table, err := annotations.Load(path)
	if err != nil {
		log.Fatalf("Failed to load annotations: %v", err)
	}
	return table
}

func runExtract(ctx context.Context, args []string) (*config.Config, bool) {
	cmd, configPath := newCommand("extract")
	input := cmd.flags.String("input", "", "Directory containing CT volumes")
	output := cmd.flags.String("output", "patch_dataset", "Directory receiving patches and the ledger")
	annotationsFile := cmd.flags.String("annotations", "", "CSV file of (seriesuid, coordX, coordY, coordZ) rows")
	cmd.parse(args, configPath)
	cmd.require(input, annotationsFile)

	fmt.Println("Step 1: Loading annotations...")
	table := loadTable(*annotationsFile)
	fmt.Printf("Loaded %d annotations for %d series\n", len(table.Rows), len(table.Series()))

	fmt.Println("Step 2: Extracting patches...")
	res, err := batch.NewRunner(*cmd.cfg).Extract(ctx, *input, *output, table)
	exitOnBatchError("Extraction", err)
	printResult(res)
	fmt.Printf("Ledger saved to: %s\n", filepath.Join(*output, ledger.FileName))
	return cmd.cfg, false
}

func runSegment(ctx context.Context, args []string) (*config.Config, bool) {
	cmd, configPath := newCommand("segment")
	input := cmd.flags.String("input", "patch_dataset", "Directory containing patches")
	output := cmd.flags.String("output", "infered_dataset", "Directory receiving binary masks")
	cmd.parse(args, configPath)

	model, err := segment.NewModel(*cmd.cfg)
	if err != nil {
		log.Fatalf("Failed to create segmentation model: %v", err)
	}

	fmt.Printf("Step 1: Segmenting patches with %s model...\n", model.Name())
	res, err := batch.NewRunner(*cmd.cfg).Segment(ctx, *input, *output, model)
	exitOnBatchError("Segmentation", err)
	printResult(res)
	return cmd.cfg, false
}

func runReinsert(ctx context.Context, args []string) (*config.Config, bool) {
	cmd, configPath := newCommand("reinsert")
	ref := cmd.flags.String("ref", "", "Directory containing the full-size parent volumes")
	input := cmd.flags.String("input", "infered_dataset", "Directory containing the patches to reinsert")
	ledgerPath := cmd.flags.String("ledger", filepath.Join("patch_dataset", ledger.FileName), "Patch ledger written by extract")
	output := cmd.flags.String("output", "full_mask_dataset", "Directory receiving full-size volumes")
	cmd.parse(args, configPath)
	cmd.require(ref)

	fmt.Println("Step 1: Reinserting patches...")
	res, err := batch.NewRunner(*cmd.cfg).Reinsert(ctx, *ref, *input, *ledgerPath, *output)
	exitOnBatchError("Reinsertion", err)
	printResult(res)
	return cmd.cfg, false
}

func runProject(ctx context.Context, args []string) (*config.Config, bool) {
	cmd, configPath := newCommand("project")
	input := cmd.flags.String("input", "", "Directory containing volumes to project")
	output := cmd.flags.String("output", "xray_dataset", "Directory receiving PNG projections")
	ledgerPath := cmd.flags.String("ledger", "", "Patch ledger; its keys are excluded and used for overlays")
	masks := cmd.flags.Bool("masks", false, "Project binary masks with the maximum intensity projector")
	cmd.parse(args, configPath)
	cmd.require(input)

	var projector projection.Projector
	if *masks {
		projector = projection.NewMaskProjector(*cmd.cfg)
	} else {
		p, err := projection.New(*cmd.cfg)
		if err != nil {
			log.Fatalf("Failed to create projector: %v", err)
		}
		projector = p
	}

	var opts batch.ProjectOptions
	if *ledgerPath != "" {
		led, err := ledger.Load(*ledgerPath)
		if err != nil {
			log.Fatalf("Failed to load ledger: %v", err)
		}
		opts.Exclude = led.KeySet()
		if cmd.cfg.Projection.OverlayPatches {
			opts.Overlay = led
		}
	}

	fmt.Printf("Step 1: Projecting volumes (%s)...\n", projector.Name())
	res, err := batch.NewRunner(*cmd.cfg).Project(ctx, *input, *output, projector, opts)
	exitOnBatchError("Projection", err)
	printResult(res)
	return cmd.cfg, false
}

func runPipeline(ctx context.Context, args []string) (*config.Config, bool) {
	cmd, configPath := newCommand("pipeline")
	input := cmd.flags.String("input", "", "Directory containing CT volumes")
	annotationsFile := cmd.flags.String("annotations", "", "CSV file of (seriesuid, coordX, coordY, coordZ) rows")
	output := cmd.flags.String("output", "output", "Root directory for every stage's output")
	cmd.parse(args, configPath)
	cmd.require(input, annotationsFile)

	params := &batch.Params{
		InputDir:        *input,
		AnnotationsFile: *annotationsFile,
		OutputDir:       *output,
	}
	p, err := batch.NewPipeline(params, batch.NewRunner(*cmd.cfg), nil)
	if err != nil {
		log.Fatalf("Failed to create pipeline: %v", err)
	}

	fmt.Println("Starting pipeline...")
	if err := p.Process(ctx); err != nil {
		log.Fatalf("Pipeline failed: %v", err)
	}

	fmt.Println("\nStage summary:")
	for _, r := range p.Reports() {
		fmt.Printf("- %-12s %s\n", r.Name, r.Result)
	}
	fmt.Printf("Outputs saved under: %s\n", *output)
	return cmd.cfg, false
}

func runMultiExtract(ctx context.Context, args []string) (*config.Config, bool) {
	cmd, configPath := newCommand("multi-extract")
	input := cmd.flags.String("input", "", "Root directory with one subdirectory per subset")
	output := cmd.flags.String("output", "patch_dataset", "Root directory receiving one patch directory per subset")
	annotationsFile := cmd.flags.String("annotations", "", "CSV file of (seriesuid, coordX, coordY, coordZ) rows")
	cmd.parse(args, configPath)
	cmd.require(input, annotationsFile)

	table := loadTable(*annotationsFile)
	subsets, err := batch.ListSubsets(*input)
	exitOnBatchError("Multi-extraction", err)

	fmt.Printf("Step 1: Extracting %d subsets with %d workers...\n", len(subsets), cmd.cfg.Processing.NumWorkers)
	runner := batch.NewRunner(*cmd.cfg)
	results, err := batch.RunSubsets(ctx, subsets, cmd.cfg.Processing.NumWorkers, func(ctx context.Context, subset string) (batch.Result, error) {
		return runner.Extract(ctx, filepath.Join(*input, subset), filepath.Join(*output, subset), table)
	})
	return cmd.cfg, printSubsets(results, err)
}

func runMultiReinsert(ctx context.Context, args []string) (*config.Config, bool) {
	cmd, configPath := newCommand("multi-reinsert")
	ref := cmd.flags.String("ref", "", "Root directory with one parent volume subdirectory per subset")
	input := cmd.flags.String("input", "infered_dataset", "Root directory with one patch subdirectory per subset")
	ledgers := cmd.flags.String("ledgers", "patch_dataset", "Root directory holding <subset>/meta.json")
	output := cmd.flags.String("output", "full_mask_dataset", "Root directory receiving one volume directory per subset")
	cmd.parse(args, configPath)
	cmd.require(ref)

	subsets, err := batch.ListSubsets(*input)
	exitOnBatchError("Multi-reinsertion", err)

	fmt.Printf("Step 1: Reinserting %d subsets with %d workers...\n", len(subsets), cmd.cfg.Processing.NumWorkers)
	runner := batch.NewRunner(*cmd.cfg)
	results, err := batch.RunSubsets(ctx, subsets, cmd.cfg.Processing.NumWorkers, func(ctx context.Context, subset string) (batch.Result, error) {
		return runner.Reinsert(ctx,
			filepath.Join(*ref, subset),
			filepath.Join(*input, subset),
			filepath.Join(*ledgers, subset, ledger.FileName),
			filepath.Join(*output, subset))
	})
	return cmd.cfg, printSubsets(results, err)
}

// printSubsets reports every subset and whether any of them failed
func printSubsets(results []batch.SubsetResult, err error) bool {
	var total batch.Result
	for _, r := range results {
		if r.Err != nil {
			fmt.Printf("- %s: FAILED: %v\n", r.Subset, r.Err)
			continue
		}
		fmt.Printf("- %s: %s\n", r.Subset, r.Result)
		total.Add(r.Result)
	}
	fmt.Printf("Total: %s\n", total)
	return err != nil
}

func runInitConfig(args []string) {
	fs := flag.NewFlagSet("init-config", flag.ExitOnError)
	path := fs.String("output", "ctpatch.yaml", "Configuration file to write")
	if err := fs.Parse(args); err != nil {
		os.Exit(2)
	}
	if err := config.CreateDefaultConfigFile(*path); err != nil {
		log.Fatalf("Failed to write configuration: %v", err)
	}
	fmt.Printf("Default configuration written to: %s\n", *path)
}
