package app

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/Luke-Pratley/scintillometry/internal/archive"
	"github.com/Luke-Pratley/scintillometry/internal/obsmeta"
)

// Input formats.
const (
	FormatVDIF    = "vdif"
	FormatArchive = "archive"
)

// Duration wraps time.Duration so configuration files can spell intervals as
// "10s" or "2m30s".
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("parsing duration %q: %w", s, err)
	}
	*d = Duration(v)
	return nil
}

// Config is the main application configuration.
type Config struct {
	Settings    Settings            `yaml:"settings"`
	Input       InputConfig         `yaml:"input"`
	Observation obsmeta.Observation `yaml:"observation"`
	Pipeline    PipelineConfig      `yaml:"pipeline"`
	Fold        *FoldConfig         `yaml:"fold"`
	Output      OutputConfig        `yaml:"output"`
}

// Settings represents global application settings.
type Settings struct {
	LogLevel string `yaml:"logLevel"`
}

// Level parses the configured log level, defaulting to info.
func (s Settings) Level() slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s.LogLevel)); err != nil {
		return slog.LevelInfo
	}
	return level
}

// InputConfig selects the recording to reduce.
type InputConfig struct {
	Path       string  `yaml:"path"`
	Format     string  `yaml:"format"`
	SampleRate float64 `yaml:"sampleRate"` // Required for VDIF input
}

// PipelineConfig lists the reduction steps, applied in fixed order:
// channelize, dedisperse, detect, integrate.
type PipelineConfig struct {
	Channelize *ChannelizeConfig `yaml:"channelize"`
	Dedisperse *DedisperseConfig `yaml:"dedisperse"`
	Detect     bool              `yaml:"detect"`
	Integrate  *IntegrateConfig  `yaml:"integrate"`
}

type ChannelizeConfig struct {
	NChan           int `yaml:"nchan"`
	SamplesPerFrame int `yaml:"samplesPerFrame"`
}

type DedisperseConfig struct {
	DM                 float64 `yaml:"dm"`                 // pc/cm3
	ReferenceFrequency float64 `yaml:"referenceFrequency"` // Hz, 0 for highest channel
	SamplesPerFrame    int     `yaml:"samplesPerFrame"`
}

type IntegrateConfig struct {
	Factor int `yaml:"factor"`
}

// FoldConfig enables folding the detected stream at a pulsar spin frequency.
type FoldConfig struct {
	F0      float64  `yaml:"f0"`   // Spin frequency, Hz
	FDot    float64  `yaml:"fdot"` // Spin frequency derivative, Hz/s
	NBin    int      `yaml:"nbin"`
	Segment Duration `yaml:"segment"` // Sub-integration length, 0 for one profile
}

// OutputConfig lists the destinations for reduced data.
type OutputConfig struct {
	Archive  *ArchiveConfig  `yaml:"archive"`
	Database *DatabaseConfig `yaml:"database"`
}

type ArchiveConfig struct {
	Path  string  `yaml:"path"`
	DType string  `yaml:"dtype"`
	Scale float64 `yaml:"scale"`
}

type DatabaseConfig struct {
	Path      string `yaml:"path"`
	BatchSize int    `yaml:"batchSize"`
}

const defaultBatchSize = 512

// LoadConfig reads and validates a YAML configuration file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading configuration: %w", err)
	}

	var config Config
	if err = yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("parsing configuration: %w", err)
	}
	if err = config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

// Validate checks the configuration for the fields a run cannot start
// without and fills in defaults.
func (c *Config) Validate() error {
	if c.Input.Path == "" {
		return fmt.Errorf("input path is required")
	}
	switch c.Input.Format {
	case FormatVDIF:
		if c.Input.SampleRate <= 0 {
			return fmt.Errorf("VDIF input needs a positive sample rate")
		}
	case FormatArchive:
	case "":
		return fmt.Errorf("input format is required")
	default:
		return fmt.Errorf("unknown input format %q", c.Input.Format)
	}

	if c.Observation.Mode != "" {
		if err := c.Observation.Validate(); err != nil {
			return fmt.Errorf("observation: %w", err)
		}
	}

	if ch := c.Pipeline.Channelize; ch != nil {
		if ch.NChan <= 0 {
			return fmt.Errorf("channelizer needs a positive channel count")
		}
		if ch.SamplesPerFrame <= 0 {
			ch.SamplesPerFrame = 1
		}
	}
	if dd := c.Pipeline.Dedisperse; dd != nil {
		if c.Pipeline.Channelize == nil {
			return fmt.Errorf("dedispersion needs a channelized stream")
		}
		if dd.DM <= 0 {
			return fmt.Errorf("dedispersion needs a positive dispersion measure")
		}
		if dd.SamplesPerFrame <= 0 {
			dd.SamplesPerFrame = 8192
		}
	}
	if in := c.Pipeline.Integrate; in != nil {
		if !c.Pipeline.Detect {
			return fmt.Errorf("integration needs a detected stream")
		}
		if in.Factor <= 0 {
			return fmt.Errorf("integration needs a positive factor")
		}
	}

	if f := c.Fold; f != nil {
		if !c.Pipeline.Detect {
			return fmt.Errorf("folding needs a detected stream")
		}
		if f.F0 <= 0 {
			return fmt.Errorf("folding needs a positive spin frequency")
		}
		if f.NBin <= 0 {
			return fmt.Errorf("folding needs a positive bin count")
		}
	}

	if c.Output.Archive == nil && c.Output.Database == nil {
		return fmt.Errorf("at least one output is required")
	}
	if a := c.Output.Archive; a != nil {
		if a.Path == "" {
			return fmt.Errorf("archive output needs a path")
		}
		if a.DType == "" {
			a.DType = string(archive.Float32)
		}
		if archive.DType(a.DType).Size() == 0 {
			return fmt.Errorf("unknown archive dtype %q", a.DType)
		}
	}
	if db := c.Output.Database; db != nil {
		if db.Path == "" {
			return fmt.Errorf("database output needs a path")
		}
		if db.BatchSize <= 0 {
			db.BatchSize = defaultBatchSize
		}
		if !c.Pipeline.Detect {
			return fmt.Errorf("database output needs a detected stream")
		}
	}

	return nil
}
