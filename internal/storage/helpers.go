package storage

import (
	"database/sql"
	"encoding/binary"
	"fmt"
	"math"
	"time"

	"github.com/Luke-Pratley/scintillometry/internal/spectra"
)

func closeWithError(cl interface{ Close() error }, err *error) {
	if cErr := cl.Close(); cErr != nil && *err == nil {
		*err = cErr
	}
}

func rollbackWithError(rb interface{ Rollback() error }, err *error) {
	if cErr := rb.Rollback(); cErr != nil && *err == nil && cErr != sql.ErrTxDone {
		*err = cErr
	}
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func durationFromNanos(ns int64) time.Duration {
	return time.Duration(ns)
}

func scanRun(row interface{ Scan(dest ...any) error }) (*spectra.Run, error) {
	var run spectra.Run
	var telescope, target, mode, config sql.NullString
	if err := row.Scan(&run.ID, &run.CreatedAt, &run.StartTime, &run.Source,
		&telescope, &target, &mode, &config); err != nil {
		return nil, err
	}
	run.Telescope = telescope.String
	run.Target = target.String
	run.Mode = mode.String
	if config.Valid {
		run.Config = &config.String
	}
	return &run, nil
}

// Power blobs are flat little-endian float32, counts little-endian int64.

func encodePowers(p []float32) []byte {
	buf := make([]byte, len(p)*4)
	for i, v := range p {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	return buf
}

func decodePowers(buf []byte, want int) ([]float32, error) {
	if len(buf) != want*4 {
		return nil, fmt.Errorf("power blob of %d bytes, want %d values", len(buf), want)
	}
	out := make([]float32, want)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[i*4:]))
	}
	return out, nil
}

func encodeCounts(c []int64) []byte {
	buf := make([]byte, len(c)*8)
	for i, v := range c {
		binary.LittleEndian.PutUint64(buf[i*8:], uint64(v))
	}
	return buf
}

func decodeCounts(buf []byte, want int) ([]int64, error) {
	if len(buf) != want*8 {
		return nil, fmt.Errorf("counts blob of %d bytes, want %d values", len(buf), want)
	}
	out := make([]int64, want)
	for i := range out {
		out[i] = int64(binary.LittleEndian.Uint64(buf[i*8:]))
	}
	return out, nil
}
