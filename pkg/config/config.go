// Package config provides configuration loading and management for ctpatch.
// It handles loading configuration from YAML files and provides default values.
//
// A Config is built once per invocation and handed to every component by
// value, so no component reads directory paths or parameters from globals.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"gopkg.in/yaml.v3"
)

// Projection strategies
const (
	StrategyIntensity = "intensity"
	StrategyRaycast   = "raycast"
)

// Intensity projection reductions
const (
	ModeMax  = "max"
	ModeMean = "mean"
)

// Ray-cast execution backends
const (
	BackendSerial   = "serial"
	BackendParallel = "parallel"
)

// Ray-cast interpolation orders
const (
	InterpolationCubic  = "cubic"
	InterpolationLinear = "linear"
)

// Segmentation models
const (
	ModelThreshold = "threshold"
	ModelCommand   = "command"
)

// Config represents the application configuration loaded from YAML
type Config struct {
	// Processing parameters shared by all stages
	Processing struct {
		// NumWorkers bounds how many subsets are processed concurrently
		NumWorkers int `yaml:"numWorkers"`

		// CubeSize is the requested patch size (w, h, d) in voxels
		CubeSize [3]int `yaml:"cubeSize"`

		// TargetSpacing is the isotropic spacing used before projection, in mm
		TargetSpacing [3]float64 `yaml:"targetSpacing"`

		// VolumeExt is the extension of volume files to enumerate
		VolumeExt string `yaml:"volumeExt"`
	} `yaml:"processing"`

	// Extraction parameters
	Extraction struct {
		// SavePreviews writes mid-slice PNGs next to every patch
		SavePreviews bool `yaml:"savePreviews"`

		// PreviewDir is relative to the patch output directory
		PreviewDir string `yaml:"previewDir"`
	} `yaml:"extraction"`

	// Segmentation collaborator parameters
	Segmentation struct {
		// Model selects the collaborator ("threshold" or "command")
		Model string `yaml:"model"`

		// Threshold binarizes the collaborator output
		Threshold float64 `yaml:"threshold"`

		// Level is the normalized intensity used by the threshold model
		Level float64 `yaml:"level"`

		// Command is the external model invocation; {input} and {output}
		// are replaced with MetaImage paths
		Command []string `yaml:"command"`
	} `yaml:"segmentation"`

	// Projection (DRR) parameters
	Projection struct {
		// Strategy selects the projector ("intensity" or "raycast")
		Strategy string `yaml:"strategy"`

		// Axis is the array axis collapsed by intensity projection (0=z, 1=y, 2=x)
		Axis int `yaml:"axis"`

		// Mode is the intensity reduction ("mean" for CT, "max" for masks)
		Mode string `yaml:"mode"`

		// OutputSize resizes intensity projections to (width, height); zero disables
		OutputSize [2]int `yaml:"outputSize"`

		// ClipLimit and TileGrid parameterize contrast enhancement
		ClipLimit float64 `yaml:"clipLimit"`
		TileGrid  [2]int  `yaml:"tileGrid"`

		// OverlayPatches draws ledger patch footprints onto a second PNG
		OverlayPatches bool `yaml:"overlayPatches"`

		Raycast RaycastConfig `yaml:"raycast"`
	} `yaml:"projection"`

	// Output parameters
	Output struct {
		// Verbose enables debug categories in the log
		Verbose bool `yaml:"verbose"`

		// Compress writes voxel payloads zlib-compressed (.zraw)
		Compress bool `yaml:"compress"`

		// MetricsTextfile receives batch metrics at the end of a run
		MetricsTextfile string `yaml:"metricsTextfile"`
	} `yaml:"output"`
}

// RaycastConfig holds the ray-cast attenuation parameters
type RaycastConfig struct {
	// Window is the Hounsfield range kept before normalization
	Window [2]float64 `yaml:"window"`

	// Detector is the output grid (rows, cols)
	Detector [2]int `yaml:"detector"`

	// SourceToDetector scales the Beer-Lambert exponent
	SourceToDetector float64 `yaml:"sourceToDetector"`

	// Interpolation is "cubic" or "linear"
	Interpolation string `yaml:"interpolation"`

	// Backend is "serial" or "parallel"
	Backend string `yaml:"backend"`

	// Workers bounds the parallel backend; zero means all CPUs
	Workers int `yaml:"workers"`

	ClipLimit float64 `yaml:"clipLimit"`
	TileGrid  [2]int  `yaml:"tileGrid"`
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	cfg := &Config{}

	cfg.Processing.NumWorkers = runtime.NumCPU()
	cfg.Processing.CubeSize = [3]int{50, 50, 50}
	cfg.Processing.TargetSpacing = [3]float64{1, 1, 1}
	cfg.Processing.VolumeExt = ".mhd"

	cfg.Extraction.SavePreviews = false
	cfg.Extraction.PreviewDir = "previews"

	cfg.Segmentation.Model = ModelThreshold
	cfg.Segmentation.Threshold = 0.5
	cfg.Segmentation.Level = 0.6

	cfg.Projection.Strategy = StrategyIntensity
	cfg.Projection.Axis = 1
	cfg.Projection.Mode = ModeMean
	cfg.Projection.OutputSize = [2]int{512, 512}
	cfg.Projection.ClipLimit = 3.0
	cfg.Projection.TileGrid = [2]int{8, 8}

	cfg.Projection.Raycast.Window = [2]float64{-600, 100}
	cfg.Projection.Raycast.Detector = [2]int{512, 512}
	cfg.Projection.Raycast.SourceToDetector = 1300
	cfg.Projection.Raycast.Interpolation = InterpolationCubic
	cfg.Projection.Raycast.Backend = BackendSerial
	cfg.Projection.Raycast.ClipLimit = 2.0
	cfg.Projection.Raycast.TileGrid = [2]int{16, 16}

	cfg.Output.Verbose = false
	cfg.Output.Compress = false

	return cfg
}

// LoadConfig loads configuration from a YAML file
// If the file doesn't exist, it returns the default configuration
func LoadConfig(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	if configPath == "" {
		return cfg, nil
	}
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return cfg, nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config file %s: %w", configPath, err)
	}

	return cfg, nil
}

// SaveConfig saves the configuration to a YAML file
func SaveConfig(cfg *Config, configPath string) error {
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("error creating config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("error marshaling config: %w", err)
	}

	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("error writing config file: %w", err)
	}

	return nil
}

// CreateDefaultConfigFile creates a default configuration file at the specified path
func CreateDefaultConfigFile(configPath string) error {
	return SaveConfig(DefaultConfig(), configPath)
}

// Validate reports every inconsistent setting.
func (c *Config) Validate() error {
	var errs []error

	if c.Processing.NumWorkers < 1 {
		errs = append(errs, fmt.Errorf("processing.numWorkers must be positive, got %d", c.Processing.NumWorkers))
	}
	for i, s := range c.Processing.CubeSize {
		if s < 1 {
			errs = append(errs, fmt.Errorf("processing.cubeSize[%d] must be positive, got %d", i, s))
		}
	}
	for i, s := range c.Processing.TargetSpacing {
		if !(s > 0) {
			errs = append(errs, fmt.Errorf("processing.targetSpacing[%d] must be positive, got %g", i, s))
		}
	}

	switch c.Segmentation.Model {
	case ModelThreshold:
	case ModelCommand:
		if len(c.Segmentation.Command) == 0 {
			errs = append(errs, errors.New("segmentation.command is required for the command model"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown segmentation.model %q", c.Segmentation.Model))
	}

	p := c.Projection
	switch p.Strategy {
	case StrategyIntensity, StrategyRaycast:
	default:
		errs = append(errs, fmt.Errorf("unknown projection.strategy %q", p.Strategy))
	}
	if p.Axis < 0 || p.Axis > 2 {
		errs = append(errs, fmt.Errorf("projection.axis must be 0, 1 or 2, got %d", p.Axis))
	}
	if p.Mode != ModeMax && p.Mode != ModeMean {
		errs = append(errs, fmt.Errorf("unknown projection.mode %q", p.Mode))
	}

	r := p.Raycast
	if r.Window[1] <= r.Window[0] {
		errs = append(errs, fmt.Errorf("projection.raycast.window must be increasing, got %v", r.Window))
	}
	if r.Detector[0] < 1 || r.Detector[1] < 1 {
		errs = append(errs, fmt.Errorf("projection.raycast.detector must be positive, got %v", r.Detector))
	}
	if !(r.SourceToDetector > 0) {
		errs = append(errs, fmt.Errorf("projection.raycast.sourceToDetector must be positive, got %g", r.SourceToDetector))
	}
	if r.Interpolation != InterpolationCubic && r.Interpolation != InterpolationLinear {
		errs = append(errs, fmt.Errorf("unknown projection.raycast.interpolation %q", r.Interpolation))
	}
	if r.Backend != BackendSerial && r.Backend != BackendParallel {
		errs = append(errs, fmt.Errorf("unknown projection.raycast.backend %q", r.Backend))
	}

	return errors.Join(errs...)
}
