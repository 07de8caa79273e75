package app

import (
	"context"
	"io"
	"log/slog"
	"math"
	"math/cmplx"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Luke-Pratley/scintillometry/internal/archive"
	"github.com/Luke-Pratley/scintillometry/internal/obsmeta"
	"github.com/Luke-Pratley/scintillometry/internal/storage"
	"github.com/Luke-Pratley/scintillometry/internal/stream"
)

// writeToneRecording archives a pure complex tone at 3/8 of the sample rate,
// which channelization with 8 channels collects into a single bin.
func writeToneRecording(t *testing.T, path string, rate float64, length int64, start time.Time) {
	t.Helper()

	info, err := stream.NewInfo(rate, start, length, stream.SampleShape{NChan: 1, NPol: 1}, true, nil, nil)
	require.NoError(t, err)

	gen, err := stream.NewGenerator(func(offset int64, out []complex128) error {
		for i := range out {
			ph := 2 * math.Pi * 3.0 / 8.0 * float64(offset+int64(i))
			out[i] = cmplx.Exp(complex(0, ph))
		}
		return nil
	}, info)
	require.NoError(t, err)

	require.NoError(t, archive.WriteStream(path, gen, archive.Complex128, 0))
}

func TestRunEndToEnd(t *testing.T) {
	const (
		rate   = 8192.0
		length = 8192
	)
	start := time.Date(2021, 6, 1, 0, 0, 0, 0, time.UTC)

	dir := t.TempDir()
	inPath := filepath.Join(dir, "input.scar")
	outPath := filepath.Join(dir, "reduced.scar")
	dbPath := filepath.Join(dir, "runs.db")
	writeToneRecording(t, inPath, rate, length, start)

	config := &Config{
		Input: InputConfig{Path: inPath, Format: FormatArchive},
		Observation: obsmeta.Observation{
			Telescope: "ARO",
			Source:    "B1937+21",
			Mode:      obsmeta.ModePSR,
			Frequency: 400e6,
			Bandwidth: rate,
		},
		Pipeline: PipelineConfig{
			Channelize: &ChannelizeConfig{NChan: 8, SamplesPerFrame: 4},
			Detect:     true,
			Integrate:  &IntegrateConfig{Factor: 4},
		},
		Fold: &FoldConfig{F0: 16, NBin: 8},
		Output: OutputConfig{
			Archive:  &ArchiveConfig{Path: outPath},
			Database: &DatabaseConfig{Path: dbPath},
		},
	}
	require.NoError(t, config.Validate())

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	require.NoError(t, Run(context.Background(), config, logger))

	// Reduced archive: 8192 raw samples through 8 channels and 4x averaging
	// give 256 spectra at 256 Hz.
	r, err := archive.Open(outPath)
	require.NoError(t, err)
	defer r.Close()

	require.Equal(t, int64(256), r.Length())
	require.Equal(t, 256.0, r.SampleRate())
	require.False(t, r.Complex())
	require.Equal(t, stream.SampleShape{NChan: 8, NPol: 1}, r.Shape())

	buf := make([]complex128, r.Shape().Width())
	require.NoError(t, stream.ReadFull(r, buf))
	// The tone lands in FFT bin 3 with power nchan^2 = 64.
	require.InDelta(t, 64.0, real(buf[3]), 1e-3)
	for c := 0; c < 8; c++ {
		if c != 3 {
			require.InDelta(t, 0.0, real(buf[c]), 1e-3)
		}
	}

	// Database: one run, 256 spectra rows on an ascending frequency grid.
	store := storage.NewSqliteStore(dbPath)
	defer store.Close()

	runs, err := store.Runs(context.Background())
	require.NoError(t, err)
	require.Len(t, runs, 1)
	require.Equal(t, "PSR", runs[0].Mode)
	require.Equal(t, "B1937+21", runs[0].Target)
	require.Equal(t, inPath, runs[0].Source)

	reader, err := store.ReadSpectra(context.Background(), runs[0].ID)
	require.NoError(t, err)
	defer reader.Close()

	binWidth := rate / 8
	var rows int
	for reader.Next() {
		row := reader.Current()
		require.Len(t, row.Power, 8)
		require.InDelta(t, 400e6-4*binWidth, row.FreqStart, 1e-6)
		require.InDelta(t, binWidth, row.BinWidth, 1e-6)
		// Ascending order puts FFT bin 3 last.
		require.InDelta(t, 64.0, row.Power[7], 1e-3)
		rows++
	}
	require.NoError(t, reader.Error())
	require.Equal(t, 256, rows)

	// One fold of the full second: a constant tone fills every phase bin
	// evenly, 32 samples and the full power in each.
	profiles, err := store.Profiles(context.Background(), runs[0].ID)
	require.NoError(t, err)
	require.Len(t, profiles, 1)

	p := profiles[0]
	require.Equal(t, 8, p.NBin)
	require.Equal(t, 8, p.Width)
	for b := 0; b < p.NBin; b++ {
		require.Equal(t, int64(32), p.Count[b])
		require.InDelta(t, 64.0, p.Power[b*p.Width+3], 1e-3)
	}
}
