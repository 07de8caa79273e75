package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/dustin/go-humanize"
	"gopkg.in/yaml.v3"

	"github.com/Luke-Pratley/scintillometry/internal/archive"
	"github.com/Luke-Pratley/scintillometry/internal/spectra"
	"github.com/Luke-Pratley/scintillometry/internal/storage"
	"github.com/Luke-Pratley/scintillometry/internal/stream"
	"github.com/Luke-Pratley/scintillometry/internal/tasks"
)

// Run reduces the configured recording and writes the results to the
// configured outputs.
func Run(ctx context.Context, config *Config, logger *slog.Logger) (err error) {
	ih, err := openInput(&config.Input, &config.Observation)
	if err != nil {
		return fmt.Errorf("opening input: %w", err)
	}
	defer closeWithError(ih, &err)

	logger.Info("input opened",
		"path", config.Input.Path,
		"samples", humanize.Comma(ih.Length()),
		"sampleRate", humanize.SIWithDigits(ih.SampleRate(), 3, "Hz"),
		"nchan", ih.Shape().NChan,
		"npol", ih.Shape().NPol,
		"start", ih.StartTime().UTC().Format(time.RFC3339Nano))

	out, err := buildPipeline(ih, &config.Pipeline)
	if err != nil {
		return err
	}

	duration := time.Duration(float64(out.Length()) / out.SampleRate() * float64(time.Second))
	logger.Info("pipeline ready",
		"samples", humanize.Comma(out.Length()),
		"sampleRate", humanize.SIWithDigits(out.SampleRate(), 3, "Hz"),
		"nchan", out.Shape().NChan,
		"duration", duration)

	if cfg := config.Output.Archive; cfg != nil {
		if err = writeArchive(out, cfg, logger); err != nil {
			return fmt.Errorf("writing archive: %w", err)
		}
	}
	if cfg := config.Output.Database; cfg != nil {
		if err = writeDatabase(ctx, config, out, cfg, logger); err != nil {
			return fmt.Errorf("writing database: %w", err)
		}
	}

	return nil
}

func writeArchive(out stream.Stream, cfg *ArchiveConfig, logger *slog.Logger) error {
	if _, err := out.Seek(0, io.SeekStart); err != nil {
		return err
	}
	if err := archive.WriteStream(cfg.Path, out, archive.DType(cfg.DType), cfg.Scale); err != nil {
		return err
	}

	size := uint64(out.Length()) * uint64(out.Shape().Width()) * uint64(archive.DType(cfg.DType).Size())
	logger.Info("archive written", "path", cfg.Path, "dtype", cfg.DType,
		"payload", humanize.Bytes(size))
	return nil
}

func writeDatabase(ctx context.Context, config *Config, out stream.Stream, cfg *DatabaseConfig, logger *slog.Logger) (err error) {
	store := storage.NewSqliteStore(cfg.Path)
	defer closeWithError(store, &err)

	pipelineYAML, err := yaml.Marshal(config.Pipeline)
	if err != nil {
		return fmt.Errorf("encoding pipeline settings: %w", err)
	}
	settings := string(pipelineYAML)

	obs := &config.Observation
	runID, err := store.CreateRun(ctx, &spectra.Run{
		StartTime: out.StartTime(),
		Source:    config.Input.Path,
		Telescope: obs.Telescope,
		Target:    obs.Source,
		Mode:      string(obs.Mode),
		Config:    &settings,
	})
	if err != nil {
		return fmt.Errorf("creating run: %w", err)
	}
	logger.Info("run created", "runID", runID)

	if err = storeSpectra(ctx, store, runID, out, cfg.BatchSize); err != nil {
		return fmt.Errorf("storing spectra: %w", err)
	}

	if f := config.Fold; f != nil {
		if err = storeProfiles(ctx, store, runID, out, f, logger); err != nil {
			return fmt.Errorf("storing profiles: %w", err)
		}
	}

	return nil
}

// storeSpectra streams the detected output into the spectra table, one row
// per output sample, channels reordered onto an ascending frequency grid.
func storeSpectra(ctx context.Context, store storage.Store, runID string, out stream.Stream, batchSize int) error {
	if out.Complex() {
		return fmt.Errorf("dynamic spectrum needs a detected stream")
	}
	order, freqStart, binWidth, err := channelOrder(out)
	if err != nil {
		return err
	}
	if _, err = out.Seek(0, io.SeekStart); err != nil {
		return err
	}

	npol := out.Shape().NPol
	buf := make([]complex128, out.Shape().Width())
	batch := make([]spectra.Spectrum, 0, batchSize)

	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := store.StoreSpectra(ctx, runID, batch); err != nil {
			return err
		}
		batch = batch[:0]
		return nil
	}

	for i := int64(0); i < out.Length(); i++ {
		if err = ctx.Err(); err != nil {
			return err
		}
		if err = stream.ReadFull(out, buf); err != nil {
			return fmt.Errorf("reading sample %d: %w", i, err)
		}

		power := make([]float32, len(order))
		for ci, c := range order {
			var sum float64
			for p := 0; p < npol; p++ {
				sum += real(buf[c*npol+p])
			}
			power[ci] = float32(sum)
		}

		batch = append(batch, spectra.Spectrum{
			Timestamp: stream.TimeAt(out, i),
			FreqStart: freqStart,
			BinWidth:  binWidth,
			Power:     power,
		})
		if len(batch) == batchSize {
			if err = flush(); err != nil {
				return err
			}
		}
	}
	return flush()
}

func storeProfiles(ctx context.Context, store storage.Store, runID string, out stream.Stream, f *FoldConfig, logger *slog.Logger) error {
	if out.Complex() {
		return fmt.Errorf("folding needs a detected stream")
	}
	if _, err := out.Seek(0, io.SeekStart); err != nil {
		return err
	}

	phase := tasks.SpinPhase(out.StartTime(), f.F0, f.FDot)
	profiles, err := tasks.FoldSegments(out, phase, f.NBin, time.Duration(f.Segment))
	if err != nil {
		return fmt.Errorf("folding: %w", err)
	}

	for _, p := range profiles {
		if err = ctx.Err(); err != nil {
			return err
		}

		mean := p.Mean()
		power := make([]float32, len(mean))
		for i, v := range mean {
			power[i] = float32(v)
		}

		profileID, err := store.StoreProfile(ctx, runID, &spectra.Profile{
			StartTime: p.StartTime,
			Duration:  p.Duration,
			NBin:      p.NBin,
			Width:     p.Width,
			Power:     power,
			Count:     p.Count,
		})
		if err != nil {
			return err
		}
		logger.Debug("profile stored", "profileID", profileID,
			"start", p.StartTime.UTC().Format(time.RFC3339Nano), "nbin", p.NBin)
	}

	logger.Info("profiles stored", "count", len(profiles))
	return nil
}

func closeWithError(cl interface{ Close() error }, err *error) {
	if cErr := cl.Close(); cErr != nil && *err == nil {
		*err = cErr
	}
}
