package app

import (
	"errors"
	"flag"
	"fmt"
	"strings"
	"time"
)

const (
	ImagePNG  = "png"
	ImageJPEG = "jpeg"
)

type ImageFormat string

type Config struct {
	DBPath     string
	RunID      string
	OutputFile string
	Format     ImageFormat
	Theme      ColorTheme
	FontPath   string

	MinPower *float64 // dB, overrides the estimated scale
	MaxPower *float64

	MinFrequency *float64
	MaxFrequency *float64
	MinTimestamp *time.Time
	MaxTimestamp *time.Time

	TimeZone      *time.Location
	Verbose       bool
	NoAnnotations bool
}

var validImageFormats = map[ImageFormat]struct{}{
	ImagePNG:  {},
	ImageJPEG: {},
}

func NewConfig() *Config {
	return &Config{
		Format:   ImagePNG,
		TimeZone: time.UTC,
	}
}

func NewConfigFromCLI() (*Config, error) {
	c := NewConfig()

	var (
		imageFormat        string
		theme              string
		timeZone           string
		minPower, maxPower float64
		minFreq, maxFreq   float64
		fromTime, toTime   string
	)
	flag.StringVar(&c.DBPath, "db", "", "Path to the database file")
	flag.StringVar(&c.RunID, "run", "", "Reduction run ID")
	flag.StringVar(&c.OutputFile, "o", "", "Path to the output file")
	flag.StringVar(&imageFormat, "f", string(ImagePNG), "Output image format. [png, jpeg]")
	flag.StringVar(&theme, "theme", "", "Color theme. [classic, grayscale, jungle, thermal, marine]")
	flag.StringVar(&c.FontPath, "font", "", "Path to a TrueType font for annotations")
	flag.StringVar(&timeZone, "tz", "UTC", "Time zone for time labels")
	flag.Float64Var(&minPower, "min-power", 0, "Define a manual minimum power in dB (format nn.n)")
	flag.Float64Var(&maxPower, "max-power", 0, "Define a manual maximum power in dB (format nn.n)")
	flag.Float64Var(&minFreq, "min-freq", 0, "Only plot spectra above this frequency, Hz")
	flag.Float64Var(&maxFreq, "max-freq", 0, "Only plot spectra below this frequency, Hz")
	flag.StringVar(&fromTime, "from", "", "Only plot spectra after this time (RFC 3339)")
	flag.StringVar(&toTime, "to", "", "Only plot spectra before this time (RFC 3339)")
	flag.BoolVar(&c.Verbose, "verbose", false, "Enable more verbose output")
	flag.BoolVar(&c.NoAnnotations, "no-annotations", false, "Disable annotations such as time and frequency scales")
	flag.Parse()

	imageFormat = strings.ToLower(imageFormat)

	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "min-power":
			c.MinPower = &minPower
		case "max-power":
			c.MaxPower = &maxPower
		case "min-freq":
			c.MinFrequency = &minFreq
		case "max-freq":
			c.MaxFrequency = &maxFreq
		}
	})

	var err error
	if c.DBPath == "" {
		err = errors.New("db path is required")
	} else if c.RunID == "" {
		err = errors.New("run id is required")
	} else if c.OutputFile == "" {
		err = errors.New("output file is required")
	} else if _, ok := validImageFormats[ImageFormat(imageFormat)]; !ok {
		err = fmt.Errorf("invalid image format: %s", imageFormat)
	}

	if err == nil && fromTime != "" {
		var t time.Time
		if t, err = time.Parse(time.RFC3339, fromTime); err == nil {
			c.MinTimestamp = &t
		}
	}
	if err == nil && toTime != "" {
		var t time.Time
		if t, err = time.Parse(time.RFC3339, toTime); err == nil {
			c.MaxTimestamp = &t
		}
	}
	if err == nil && timeZone != "" {
		c.TimeZone, err = time.LoadLocation(timeZone)
	}

	if err != nil {
		flag.Usage()
		return nil, err
	}

	c.Theme = ColorTheme(theme)
	c.Format = ImageFormat(imageFormat)
	c.OutputFile = fmt.Sprintf("%s.%s", c.OutputFile, c.Format)
	return c, nil
}
