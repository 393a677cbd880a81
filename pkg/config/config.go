// Package config provides configuration loading and management for voronoiseg.
// It handles loading configuration from YAML files, provides default values
// and converts the configuration into segmentation parameters.
package config

import (
	"os"
	"path/filepath"
	"runtime"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"go.uber.org/multierr"
	"gopkg.in/yaml.v3"

	"voronoiseg/internal/logging"
	"voronoiseg/internal/models"
	"voronoiseg/pkg/colorspace"
	"voronoiseg/pkg/homogeneity"
	"voronoiseg/pkg/segmentation"
)

// Config represents the application configuration loaded from YAML.
//
// Per-channel lists take either one value per channel (6 for the color
// variant, 1 for the scalar variant) or a single value applied to every
// channel. An empty list leaves the setting unset.
type Config struct {
	// Refinement loop parameters
	Segmentation struct {
		// MaxIterations bounds the number of refinement rounds
		MaxIterations int `yaml:"maxIterations"`

		// SeedCount is the number of random generators placed initially
		SeedCount int `yaml:"seedCount"`

		// MinCellSize is the pixel count at or below which a cell is not split
		MinCellSize int `yaml:"minCellSize"`

		// MaxSeedRetries bounds the jittered retries after an invalid diagram
		MaxSeedRetries int `yaml:"maxSeedRetries"`

		// JitterRadius is the largest generator perturbation in pixels
		JitterRadius float64 `yaml:"jitterRadius"`

		// Workers specifies how many goroutines classify cells
		Workers int `yaml:"workers"`

		// RandomSeed makes seeding reproducible; 0 picks a random seed
		RandomSeed uint64 `yaml:"randomSeed"`

		// Generators are optional [x, y] initial generator points replacing random seeding
		Generators [][]float64 `yaml:"generators,omitempty"`
	} `yaml:"segmentation"`

	// Homogeneity test parameters
	Classifier struct {
		// Variant is "color" (R, G, B, Hue, Chroma, Value) or "scalar" (gray level)
		Variant string `yaml:"variant"`

		// MaxValue is the maximum channel value of the input
		MaxValue float64 `yaml:"maxValue"`

		// Mean and Std are the reference statistics; when Mean is set the
		// reference is explicit and a prior mask does not replace it. Std
		// cannot be set without Mean.
		Mean []float64 `yaml:"mean,omitempty"`
		Std  []float64 `yaml:"std,omitempty"`

		// MeanPercentError and StdPercentError derive tolerances from the reference
		MeanPercentError []float64 `yaml:"meanPercentError,omitempty"`
		StdPercentError  []float64 `yaml:"stdPercentError,omitempty"`

		// MeanTolerance and StdTolerance are direct tolerances; they are
		// applied after the percent errors and win for the channels they set
		MeanTolerance []float64 `yaml:"meanTolerance,omitempty"`
		StdTolerance  []float64 `yaml:"stdTolerance,omitempty"`

		// TestMean and TestStd are the channels tested (3 for color, 1 for scalar)
		TestMean []int `yaml:"testMean,omitempty"`
		TestStd  []int `yaml:"testStd,omitempty"`
	} `yaml:"classifier"`

	// Prior mask parameters
	Prior struct {
		// BoundarySpacing keeps one contour seed per block of this size
		BoundarySpacing int `yaml:"boundarySpacing"`

		// BackgroundSeeds is the number of generators scattered over the domain
		BackgroundSeeds int `yaml:"backgroundSeeds"`

		// UseBackground derives tolerances from the object/background separation
		UseBackground bool `yaml:"useBackground"`

		// MeanDeviation scales that separation
		MeanDeviation float64 `yaml:"meanDeviation"`

		// AutoSelectChannels chooses the color test channels from the prior
		AutoSelectChannels bool `yaml:"autoSelectChannels"`
	} `yaml:"prior"`

	// Output parameters
	Output struct {
		// MaskValue is the gray level written for Inside pixels
		MaskValue int `yaml:"maskValue"`

		// BoundaryImage, when set, is where the object boundary image is saved
		BoundaryImage string `yaml:"boundaryImage,omitempty"`

		// SaveIntermediaryResults determines whether round overlays are saved
		SaveIntermediaryResults bool `yaml:"saveIntermediaryResults"`

		// IntermediaryDir is the directory round overlays are saved to
		IntermediaryDir string `yaml:"intermediaryDir"`
	} `yaml:"output"`

	// Logging parameters
	Logging struct {
		// Level is debug, info, warn or error
		Level string `yaml:"level"`

		// Format is console or json
		Format string `yaml:"format"`
	} `yaml:"logging"`
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	cfg := &Config{}

	defaults := segmentation.DefaultParams(colorspace.Color)

	// Set default segmentation parameters
	cfg.Segmentation.MaxIterations = defaults.MaxIterations
	cfg.Segmentation.SeedCount = defaults.SeedCount
	cfg.Segmentation.MinCellSize = defaults.MinCellSize
	cfg.Segmentation.MaxSeedRetries = defaults.MaxSeedRetries
	cfg.Segmentation.JitterRadius = defaults.JitterRadius
	cfg.Segmentation.Workers = runtime.NumCPU() // Use all available cores by default
	cfg.Segmentation.RandomSeed = defaults.RandomSeed

	// Set default classifier parameters
	cfg.Classifier.Variant = colorspace.Color.String()
	cfg.Classifier.MaxValue = colorspace.DefaultMaxValue
	cfg.Classifier.MeanPercentError = []float64{10}
	cfg.Classifier.StdPercentError = []float64{10}

	// Set default prior parameters
	cfg.Prior.BoundarySpacing = defaults.Prior.BoundarySpacing
	cfg.Prior.BackgroundSeeds = defaults.Prior.BackgroundSeeds
	cfg.Prior.MeanDeviation = defaults.Prior.MeanDeviation

	// Set default output parameters
	cfg.Output.MaskValue = 255
	cfg.Output.SaveIntermediaryResults = false
	cfg.Output.IntermediaryDir = defaults.IntermediaryDir

	// Set default logging parameters
	cfg.Logging.Level = "info"
	cfg.Logging.Format = string(logging.FormatConsole)

	return cfg
}

// LoadConfig loads configuration from a YAML file
// If the file doesn't exist, it returns the default configuration
func LoadConfig(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	// Check if config file exists
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return cfg, nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, errors.Wrap(err, "error reading config file")
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, errors.Wrap(err, "error parsing config file")
	}

	return cfg, nil
}

// SaveConfig saves the configuration to a YAML file
func SaveConfig(cfg *Config, configPath string) error {
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return errors.Wrap(err, "error creating config directory")
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return errors.Wrap(err, "error marshaling config")
	}

	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return errors.Wrap(err, "error writing config file")
	}

	return nil
}

// CreateDefaultConfigFile creates a default configuration file at the specified path
func CreateDefaultConfigFile(configPath string) error {
	cfg := DefaultConfig()
	return SaveConfig(cfg, configPath)
}

// Validate reports every configuration problem at once
func (c *Config) Validate() error {
	_, err := c.Params()
	if _, lErr := zerolog.ParseLevel(c.Logging.Level); lErr != nil {
		err = multierr.Append(err, errors.Wrapf(lErr, "logging.level %q", c.Logging.Level))
	}
	switch logging.Format(c.Logging.Format) {
	case logging.FormatConsole, logging.FormatJSON, "":
	default:
		err = multierr.Append(err, errors.Errorf("logging.format %q must be console or json", c.Logging.Format))
	}
	if c.Output.MaskValue < 1 || c.Output.MaskValue > 255 {
		err = multierr.Append(err, errors.Errorf("output.maskValue must be in [1,255], got %d", c.Output.MaskValue))
	}
	return err
}

// Params converts the configuration into segmentation parameters.
// Tolerances are resolved with the last write winning per channel: percent
// errors are applied first and direct tolerances second.
func (c *Config) Params() (segmentation.Params, error) {
	variant, err := colorspace.ParseVariant(c.Classifier.Variant)
	if err != nil {
		return segmentation.Params{}, errors.Wrap(err, "classifier.variant")
	}
	n := variant.Channels()

	p := segmentation.DefaultParams(variant)
	p.MaxValue = c.Classifier.MaxValue
	p.MaxIterations = c.Segmentation.MaxIterations
	p.SeedCount = c.Segmentation.SeedCount
	p.MinCellSize = c.Segmentation.MinCellSize
	p.MaxSeedRetries = c.Segmentation.MaxSeedRetries
	p.JitterRadius = c.Segmentation.JitterRadius
	p.Workers = c.Segmentation.Workers
	p.RandomSeed = c.Segmentation.RandomSeed
	p.Prior = segmentation.PriorParams{
		BoundarySpacing:    c.Prior.BoundarySpacing,
		BackgroundSeeds:    c.Prior.BackgroundSeeds,
		UseBackground:      c.Prior.UseBackground,
		MeanDeviation:      c.Prior.MeanDeviation,
		AutoSelectChannels: c.Prior.AutoSelectChannels,
	}
	p.SaveIntermediaryResults = c.Output.SaveIntermediaryResults
	p.IntermediaryDir = c.Output.IntermediaryDir

	var errs error
	for i, g := range c.Segmentation.Generators {
		if len(g) != 2 {
			errs = multierr.Append(errs, errors.Errorf("segmentation.generators[%d] needs [x, y], got %d values", i, len(g)))
			continue
		}
		p.InitialGenerators = append(p.InitialGenerators, models.NewGeneratorPoint(g[0], g[1]))
	}
	model := homogeneity.NewModel(variant)

	mean, mErr := expand("classifier.mean", c.Classifier.Mean, n)
	std, sErr := expand("classifier.std", c.Classifier.Std, n)
	errs = multierr.Combine(errs, mErr, sErr)
	if mean != nil {
		model.Reference.Mean = mean
		p.ExplicitReference = true
	}
	if std != nil {
		if mean == nil {
			errs = multierr.Append(errs, errors.New("classifier.std requires classifier.mean"))
		}
		model.Reference.Std = std
	}

	apply := func(name string, values []float64, set func([]float64) error) {
		v, err := expand(name, values, n)
		if err != nil {
			errs = multierr.Append(errs, err)
			return
		}
		if v == nil {
			return
		}
		if err := set(v); err != nil {
			errs = multierr.Append(errs, errors.Wrap(err, name))
		}
	}
	apply("classifier.meanPercentError", c.Classifier.MeanPercentError, model.Tolerance.SetMeanPercentError)
	apply("classifier.stdPercentError", c.Classifier.StdPercentError, model.Tolerance.SetStdPercentError)
	apply("classifier.meanTolerance", c.Classifier.MeanTolerance, model.Tolerance.SetMeanTolerance)
	apply("classifier.stdTolerance", c.Classifier.StdTolerance, model.Tolerance.SetStdTolerance)

	if len(c.Classifier.TestMean) > 0 {
		model.MeanChannels = append([]int(nil), c.Classifier.TestMean...)
	}
	if len(c.Classifier.TestStd) > 0 {
		model.StdChannels = append([]int(nil), c.Classifier.TestStd...)
	}
	p.Model = model

	errs = multierr.Append(errs, p.Validate())
	if errs != nil {
		return segmentation.Params{}, errs
	}
	return p, nil
}

// expand checks a per-channel list and broadcasts a single value to n
// channels. An empty list yields nil.
func expand(name string, values []float64, n int) ([]float64, error) {
	switch len(values) {
	case 0:
		return nil, nil
	case 1:
		out := make([]float64, n)
		for i := range out {
			out[i] = values[0]
		}
		return out, nil
	case n:
		return append([]float64(nil), values...), nil
	default:
		return nil, errors.Errorf("%s needs 1 or %d values, got %d", name, n, len(values))
	}
}
