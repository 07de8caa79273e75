package app

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

const testConfigYAML = `
settings:
  logLevel: debug
input:
  path: recording.vdif
  format: vdif
  sampleRate: 32.0e6
observation:
  telescope: ARO
  source: B1937+21
  ra: "19:39:38.6"
  dec: "+21:34:59.1"
  mode: PSR
  frequency: 400.0e6
  bandwidth: 400.0e6
  nchan: 1024
pipeline:
  channelize:
    nchan: 1024
    samplesPerFrame: 8
  dedisperse:
    dm: 71.02
    referenceFrequency: 600.0e6
  detect: true
  integrate:
    factor: 4096
fold:
  f0: 641.928
  nbin: 64
  segment: 10s
output:
  archive:
    path: out.scar
    dtype: f4
  database:
    path: runs.db
`

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadConfig(t *testing.T) {
	config, err := LoadConfig(writeConfigFile(t, testConfigYAML))
	require.NoError(t, err)

	require.Equal(t, slog.LevelDebug, config.Settings.Level())
	require.Equal(t, "recording.vdif", config.Input.Path)
	require.Equal(t, FormatVDIF, config.Input.Format)
	require.Equal(t, 32e6, config.Input.SampleRate)

	require.Equal(t, "ARO", config.Observation.Telescope)
	require.Equal(t, "B1937+21", config.Observation.Source)
	require.Equal(t, 400e6, config.Observation.Frequency)

	require.NotNil(t, config.Pipeline.Channelize)
	require.Equal(t, 1024, config.Pipeline.Channelize.NChan)
	require.NotNil(t, config.Pipeline.Dedisperse)
	require.Equal(t, 71.02, config.Pipeline.Dedisperse.DM)
	require.Equal(t, 8192, config.Pipeline.Dedisperse.SamplesPerFrame) // default
	require.True(t, config.Pipeline.Detect)
	require.Equal(t, 4096, config.Pipeline.Integrate.Factor)

	require.NotNil(t, config.Fold)
	require.Equal(t, 641.928, config.Fold.F0)
	require.Equal(t, Duration(10*time.Second), config.Fold.Segment)

	require.Equal(t, "f4", config.Output.Archive.DType)
	require.Equal(t, defaultBatchSize, config.Output.Database.BatchSize)
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "no-such-file.yaml"))
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Input: InputConfig{Path: "recording.vdif", Format: FormatVDIF, SampleRate: 32e6},
			Pipeline: PipelineConfig{
				Channelize: &ChannelizeConfig{NChan: 512},
				Detect:     true,
			},
			Output: OutputConfig{Archive: &ArchiveConfig{Path: "out.scar"}},
		}
	}
	require.NoError(t, valid().Validate())

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"missing input path", func(c *Config) { c.Input.Path = "" }},
		{"missing input format", func(c *Config) { c.Input.Format = "" }},
		{"unknown input format", func(c *Config) { c.Input.Format = "wav" }},
		{"vdif without sample rate", func(c *Config) { c.Input.SampleRate = 0 }},
		{"bad observing mode", func(c *Config) { c.Observation.Mode = "DRIFT" }},
		{"channelizer without channels", func(c *Config) { c.Pipeline.Channelize.NChan = 0 }},
		{"dedispersion without channelizer", func(c *Config) {
			c.Pipeline.Channelize = nil
			c.Pipeline.Dedisperse = &DedisperseConfig{DM: 10}
		}},
		{"dedispersion without DM", func(c *Config) { c.Pipeline.Dedisperse = &DedisperseConfig{} }},
		{"integration without detection", func(c *Config) {
			c.Pipeline.Detect = false
			c.Pipeline.Integrate = &IntegrateConfig{Factor: 16}
		}},
		{"folding without detection", func(c *Config) {
			c.Pipeline.Detect = false
			c.Fold = &FoldConfig{F0: 100, NBin: 8}
		}},
		{"folding without spin frequency", func(c *Config) { c.Fold = &FoldConfig{NBin: 8} }},
		{"no outputs", func(c *Config) { c.Output = OutputConfig{} }},
		{"archive without path", func(c *Config) { c.Output.Archive.Path = "" }},
		{"unknown archive dtype", func(c *Config) { c.Output.Archive.DType = "f2" }},
		{"database without detection", func(c *Config) {
			c.Pipeline.Detect = false
			c.Output.Database = &DatabaseConfig{Path: "runs.db"}
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid()
			tt.mutate(c)
			require.Error(t, c.Validate())
		})
	}
}
