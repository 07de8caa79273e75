package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/Luke-Pratley/scintillometry/internal/spectra"
)

// ErrNoData indicates that no spectra exist for the given parameters.
var ErrNoData = fmt.Errorf("no data available")

// SpectrumReader iterates over the dynamic spectrum of a run in time order.
type SpectrumReader interface {
	// Run returns the run the reader is accessing.
	Run() *spectra.Run

	// Next advances the iterator, returning false at the end of the data or
	// on error.
	Next() bool

	// Current returns the spectrum at the iterator position. Calling it after
	// Next returned false is undefined.
	Current() *spectra.Spectrum

	// Error returns any error that occurred during iteration.
	Error() error

	// Close releases the database resources of the reader.
	Close() error
}

// ReaderOption restricts what a SpectrumReader returns.
type ReaderOption func(*sqliteSpectrumReader)

// WithStartTime excludes spectra before t.
func WithStartTime(t time.Time) ReaderOption {
	return func(r *sqliteSpectrumReader) {
		r.startTime = &t
	}
}

// WithEndTime excludes spectra after t.
func WithEndTime(t time.Time) ReaderOption {
	return func(r *sqliteSpectrumReader) {
		r.endTime = &t
	}
}

// WithTimeRange restricts the reader to spectra between startTime and
// endTime.
func WithTimeRange(startTime, endTime time.Time) ReaderOption {
	return func(r *sqliteSpectrumReader) {
		r.startTime = &startTime
		r.endTime = &endTime
	}
}

// WithMinFreq excludes spectra whose band ends below minFreq.
func WithMinFreq(minFreq float64) ReaderOption {
	return func(r *sqliteSpectrumReader) {
		r.minFreq = &minFreq
	}
}

// WithMaxFreq excludes spectra whose band starts above maxFreq.
func WithMaxFreq(maxFreq float64) ReaderOption {
	return func(r *sqliteSpectrumReader) {
		r.maxFreq = &maxFreq
	}
}

// WithFreqRange restricts the reader to spectra whose band overlaps
// [minFreq, maxFreq].
func WithFreqRange(minFreq, maxFreq float64) ReaderOption {
	return func(r *sqliteSpectrumReader) {
		r.minFreq = &minFreq
		r.maxFreq = &maxFreq
	}
}

type sqliteSpectrumReader struct {
	db *sql.DB

	runID string
	run   *spectra.Run

	startTime *time.Time
	endTime   *time.Time
	minFreq   *float64
	maxFreq   *float64

	current *spectra.Spectrum
	rows    *sql.Rows
	err     error
}

func newSqliteSpectrumReader(ctx context.Context, db *sql.DB, runID string, opts ...ReaderOption) (*sqliteSpectrumReader, error) {
	if db == nil {
		return nil, errors.New("database connection required")
	}
	if runID == "" {
		return nil, errors.New("run ID required")
	}

	sr := &sqliteSpectrumReader{db: db, runID: runID}
	for _, opt := range opts {
		opt(sr)
	}

	steps := []struct {
		msg string
		fn  func(context.Context) error
	}{
		{msg: "loading run", fn: sr.loadRun},
		{msg: "checking filters", fn: sr.checkFilters},
		{msg: "initializing query", fn: sr.initQuery},
	}
	for _, s := range steps {
		if err := s.fn(ctx); err != nil {
			return nil, fmt.Errorf("%s: %w", s.msg, err)
		}
	}
	return sr, nil
}

func (sr *sqliteSpectrumReader) loadRun(ctx context.Context) (err error) {
	stmt, err := sr.db.PrepareContext(ctx, selectRunSQL)
	if err != nil {
		return fmt.Errorf("preparing statement: %w", err)
	}
	defer closeWithError(stmt, &err)

	sr.run, err = scanRun(stmt.QueryRowContext(ctx, sr.runID))
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: run %s", ErrNoData, sr.runID)
	}
	return err
}

func (sr *sqliteSpectrumReader) checkFilters(context.Context) error {
	if sr.startTime != nil && sr.endTime != nil && sr.startTime.After(*sr.endTime) {
		return fmt.Errorf("start time %s is after end time %s", sr.startTime, sr.endTime)
	}
	if sr.minFreq != nil && sr.maxFreq != nil && *sr.minFreq > *sr.maxFreq {
		return fmt.Errorf("min frequency %f is greater than max frequency %f", *sr.minFreq, *sr.maxFreq)
	}
	return nil
}

const selectSpectraSQL = `
SELECT
    timestamp,
    freq_start,
    bin_width,
    nchan,
    power
FROM spectra
WHERE
    run_id = ?
    AND (? IS NULL OR timestamp >= ?)
    AND (? IS NULL OR timestamp <= ?)
    AND (? IS NULL OR freq_start + bin_width * nchan >= ?)
    AND (? IS NULL OR freq_start <= ?)
ORDER BY timestamp, freq_start
`

func (sr *sqliteSpectrumReader) initQuery(ctx context.Context) (err error) {
	stmt, err := sr.db.PrepareContext(ctx, selectSpectraSQL)
	if err != nil {
		return fmt.Errorf("preparing statement: %w", err)
	}
	defer closeWithError(stmt, &err)

	rows, err := stmt.QueryContext(ctx, sr.runID,
		nullTime(sr.startTime), nullTime(sr.startTime),
		nullTime(sr.endTime), nullTime(sr.endTime),
		nullFloat(sr.minFreq), nullFloat(sr.minFreq),
		nullFloat(sr.maxFreq), nullFloat(sr.maxFreq))
	if err != nil {
		return fmt.Errorf("querying spectra: %w", err)
	}

	sr.rows = rows
	return nil
}

func (sr *sqliteSpectrumReader) Run() *spectra.Run { return sr.run }

func (sr *sqliteSpectrumReader) Next() bool {
	if sr.err != nil || !sr.rows.Next() {
		return false
	}

	var (
		row   spectra.Spectrum
		nchan int
		power []byte
	)
	if err := sr.rows.Scan(&row.Timestamp, &row.FreqStart, &row.BinWidth, &nchan, &power); err != nil {
		sr.err = err
		return false
	}
	if row.Power, sr.err = decodePowers(power, nchan); sr.err != nil {
		return false
	}

	sr.current = &row
	return true
}

func (sr *sqliteSpectrumReader) Current() *spectra.Spectrum { return sr.current }

func (sr *sqliteSpectrumReader) Error() error {
	if sr.err != nil {
		return sr.err
	}
	return sr.rows.Err()
}

func (sr *sqliteSpectrumReader) Close() error {
	return sr.rows.Close()
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}

func nullFloat(f *float64) sql.NullFloat64 {
	if f == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *f, Valid: true}
}
