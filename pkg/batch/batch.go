// Package batch runs the pipeline stages over directories of volumes.
//
// Every stage follows the same policy: a failure on one file is logged
// with the file name, counted, and the batch moves on. Only problems that
// make the whole batch meaningless (missing input directory, missing
// ledger or annotations) stop it, reported as ErrConfig.
package batch

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"ctpatch/internal/logger"
	"ctpatch/pkg/config"
	"ctpatch/pkg/metrics"
	"ctpatch/pkg/volumeio"
)

// Stage names used in logs and metrics
const (
	StageExtract  = "extract"
	StageSegment  = "segment"
	StageReinsert = "reinsert"
	StageProject  = "project"
)

// ErrConfig marks batch-level failures that abort the batch.
var ErrConfig = errors.New("configuration error")

// Failure is one file that could not be processed.
type Failure struct {
	File string
	Err  error
}

// Result counts what a batch did with its files.
type Result struct {
	Processed int
	Skipped   int
	Failed    int
	Failures  []Failure

	// Patches counts patch files written or reinserted; PatchErrors the
	// individual patches that were skipped inside processed files
	Patches     int
	PatchErrors int
}

// Add accumulates o into r.
func (r *Result) Add(o Result) {
	r.Processed += o.Processed
	r.Skipped += o.Skipped
	r.Failed += o.Failed
	r.Failures = append(r.Failures, o.Failures...)
	r.Patches += o.Patches
	r.PatchErrors += o.PatchErrors
}

func (r Result) String() string {
	return fmt.Sprintf("%d processed, %d skipped, %d failed", r.Processed, r.Skipped, r.Failed)
}

// Runner executes stages with one immutable configuration.
type Runner struct {
	cfg config.Config
	log *logger.Logger
}

// NewRunner returns a runner logging to the default logger.
func NewRunner(cfg config.Config) *Runner {
	return &Runner{cfg: cfg, log: logger.Default()}
}

// WithLogger returns a copy of r logging to l.
func (r *Runner) WithLogger(l *logger.Logger) *Runner {
	c := *r
	c.log = l
	return &c
}

// Config returns the runner's configuration.
func (r *Runner) Config() config.Config {
	return r.cfg
}

func (r *Runner) writeOptions() volumeio.WriteOptions {
	return volumeio.WriteOptions{Compress: r.cfg.Output.Compress}
}

func (r *Runner) volumePath(dir, key string) string {
	return filepath.Join(dir, key+r.cfg.Processing.VolumeExt)
}

// ListVolumes returns the files in dir with extension ext (compared
// case-insensitively), sorted by name.
func ListVolumes(dir, ext string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("%w: cannot list %s: %v", ErrConfig, dir, err)
	}
	var files []string
	for _, e := range entries {
		if e.IsDir() || !strings.EqualFold(filepath.Ext(e.Name()), ext) {
			continue
		}
		files = append(files, filepath.Join(dir, e.Name()))
	}
	sort.Strings(files)
	return files, nil
}

// ListSubsets returns the names of the subdirectories of root, sorted.
func ListSubsets(root string) ([]string, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, fmt.Errorf("%w: cannot list %s: %v", ErrConfig, root, err)
	}
	var subsets []string
	for _, e := range entries {
		if e.IsDir() {
			subsets = append(subsets, e.Name())
		}
	}
	sort.Strings(subsets)
	return subsets, nil
}

type outcome int

const (
	processed outcome = iota
	skipped
)

// each applies fn to every file, isolating failures per file.
func (r *Runner) each(stage string, files []string, fn func(path string) (outcome, error)) Result {
	var res Result
	for i, path := range files {
		name := filepath.Base(path)
		start := time.Now()

		o, err := guard(path, fn)
		switch {
		case err != nil:
			res.Failed++
			res.Failures = append(res.Failures, Failure{File: path, Err: err})
			r.log.Warning("%s %s: %v", stage, name, err)
			metrics.Observe(stage, metrics.OutcomeFailed, time.Since(start))
		case o == skipped:
			res.Skipped++
			r.log.Printf("debug-"+stage, "skipping %s", name)
			metrics.Observe(stage, metrics.OutcomeSkipped, 0)
		default:
			res.Processed++
			r.log.Printf(stage, "[%d/%d] %s (%.2fs)", i+1, len(files), name, time.Since(start).Seconds())
			metrics.Observe(stage, metrics.OutcomeProcessed, time.Since(start))
		}
	}
	return res
}

// guard turns a panic inside fn into an error for that file.
func guard(path string, fn func(string) (outcome, error)) (o outcome, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("panic: %v", p)
		}
	}()
	return fn(path)
}

func ensureDir(dir string) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("%w: %v", ErrConfig, err)
	}
	return nil
}
