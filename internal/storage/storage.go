// Package storage persists reduction output. Runs, dynamic spectra and
// folded profiles go into a single SQLite database so results from a
// reduction can be queried, rendered and compared later without touching the
// raw recording again.
package storage

import (
	"context"

	"github.com/Luke-Pratley/scintillometry/internal/spectra"
)

// Store manages reduction output in a thread-safe manner. Writes are atomic;
// a batch of spectra is stored in a single transaction.
type Store interface {
	// CreateRun registers a reduction run and returns its assigned ID.
	CreateRun(ctx context.Context, run *spectra.Run) (runID string, err error)

	// Run retrieves a run by ID.
	Run(ctx context.Context, id string) (*spectra.Run, error)

	// Runs returns all runs, ordered by creation time.
	Runs(ctx context.Context) ([]*spectra.Run, error)

	// StoreSpectra appends a batch of dynamic-spectrum rows to a run.
	StoreSpectra(ctx context.Context, runID string, rows []spectra.Spectrum) error

	// StoreProfile saves a folded profile and returns its ID.
	StoreProfile(ctx context.Context, runID string, p *spectra.Profile) (int64, error)

	// Profiles returns the folded profiles of a run, ordered by start time.
	Profiles(ctx context.Context, runID string) ([]*spectra.Profile, error)

	// ReadSpectra creates an iterator over the dynamic spectrum of a run,
	// optionally restricted in time and frequency. The returned reader must
	// be closed after use.
	ReadSpectra(ctx context.Context, runID string, opts ...ReaderOption) (SpectrumReader, error)

	// Close releases all database connections. It is safe to call multiple
	// times.
	Close() error
}
