package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/Luke-Pratley/scintillometry/internal/spectra"
)

var runStart = time.Date(2022, 3, 10, 8, 30, 0, 0, time.UTC)

func newTestStore(t *testing.T) *SqliteStore {
	t.Helper()
	s := NewSqliteStore(filepath.Join(t.TempDir(), "reduction.db"))
	t.Cleanup(func() {
		if err := s.Close(); err != nil {
			t.Errorf("Close() error = %v", err)
		}
	})
	return s
}

func createTestRun(t *testing.T, s *SqliteStore) string {
	t.Helper()
	config := "nchan: 1024"
	id, err := s.CreateRun(context.Background(), &spectra.Run{
		StartTime: runStart,
		Source:    "recording.vdif",
		Telescope: "ARO",
		Target:    "B1937+21",
		Mode:      "PSR",
		Config:    &config,
	})
	if err != nil {
		t.Fatalf("CreateRun() error = %v", err)
	}
	return id
}

func TestCreateAndFetchRun(t *testing.T) {
	s := newTestStore(t)
	id := createTestRun(t, s)
	if id == "" {
		t.Fatal("CreateRun() returned empty ID")
	}

	run, err := s.Run(context.Background(), id)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if run.ID != id {
		t.Errorf("ID = %s, want %s", run.ID, id)
	}
	if !run.StartTime.Equal(runStart) {
		t.Errorf("StartTime = %s, want %s", run.StartTime, runStart)
	}
	if run.Source != "recording.vdif" || run.Telescope != "ARO" || run.Mode != "PSR" {
		t.Errorf("run = %+v", run)
	}
	if run.Config == nil || *run.Config != "nchan: 1024" {
		t.Errorf("Config = %v", run.Config)
	}

	runs, err := s.Runs(context.Background())
	if err != nil {
		t.Fatalf("Runs() error = %v", err)
	}
	if len(runs) != 1 || runs[0].ID != id {
		t.Errorf("Runs() = %+v", runs)
	}
}

func testSpectra(n int) []spectra.Spectrum {
	rows := make([]spectra.Spectrum, n)
	for i := range rows {
		rows[i] = spectra.Spectrum{
			Timestamp: runStart.Add(time.Duration(i) * time.Second),
			FreqStart: 400e6,
			BinWidth:  1e6,
			Power:     []float32{float32(i), float32(i) + 0.5, float32(i) + 1},
		}
	}
	return rows
}

func TestStoreAndReadSpectra(t *testing.T) {
	s := newTestStore(t)
	id := createTestRun(t, s)

	if err := s.StoreSpectra(context.Background(), id, testSpectra(5)); err != nil {
		t.Fatalf("StoreSpectra() error = %v", err)
	}

	r, err := s.ReadSpectra(context.Background(), id)
	if err != nil {
		t.Fatalf("ReadSpectra() error = %v", err)
	}
	defer r.Close()

	if r.Run().ID != id {
		t.Errorf("Run().ID = %s, want %s", r.Run().ID, id)
	}

	var count int
	for r.Next() {
		row := r.Current()
		if !row.Timestamp.Equal(runStart.Add(time.Duration(count) * time.Second)) {
			t.Errorf("row %d timestamp = %s", count, row.Timestamp)
		}
		if len(row.Power) != 3 || row.Power[0] != float32(count) {
			t.Errorf("row %d power = %v", count, row.Power)
		}
		if row.FreqStart != 400e6 || row.BinWidth != 1e6 {
			t.Errorf("row %d grid = %f %f", count, row.FreqStart, row.BinWidth)
		}
		count++
	}
	if err = r.Error(); err != nil {
		t.Fatalf("Error() = %v", err)
	}
	if count != 5 {
		t.Errorf("read %d rows, want 5", count)
	}
}

func TestReadSpectraTimeRange(t *testing.T) {
	s := newTestStore(t)
	id := createTestRun(t, s)

	if err := s.StoreSpectra(context.Background(), id, testSpectra(10)); err != nil {
		t.Fatalf("StoreSpectra() error = %v", err)
	}

	r, err := s.ReadSpectra(context.Background(), id,
		WithTimeRange(runStart.Add(2*time.Second), runStart.Add(5*time.Second)))
	if err != nil {
		t.Fatalf("ReadSpectra() error = %v", err)
	}
	defer r.Close()

	var count int
	for r.Next() {
		ts := r.Current().Timestamp
		if ts.Before(runStart.Add(2*time.Second)) || ts.After(runStart.Add(5*time.Second)) {
			t.Errorf("timestamp %s outside requested range", ts)
		}
		count++
	}
	if err = r.Error(); err != nil {
		t.Fatalf("Error() = %v", err)
	}
	if count != 4 {
		t.Errorf("read %d rows, want 4", count)
	}
}

func TestReadSpectraFreqRange(t *testing.T) {
	s := newTestStore(t)
	id := createTestRun(t, s)

	rows := testSpectra(2)
	rows[1].FreqStart = 800e6 // band 800-803 MHz
	if err := s.StoreSpectra(context.Background(), id, rows); err != nil {
		t.Fatalf("StoreSpectra() error = %v", err)
	}

	r, err := s.ReadSpectra(context.Background(), id, WithFreqRange(700e6, 900e6))
	if err != nil {
		t.Fatalf("ReadSpectra() error = %v", err)
	}
	defer r.Close()

	var count int
	for r.Next() {
		if r.Current().FreqStart != 800e6 {
			t.Errorf("FreqStart = %f, want 800e6", r.Current().FreqStart)
		}
		count++
	}
	if count != 1 {
		t.Errorf("read %d rows, want 1", count)
	}
}

func TestReadSpectraBadFilters(t *testing.T) {
	s := newTestStore(t)
	id := createTestRun(t, s)

	if _, err := s.ReadSpectra(context.Background(), id, WithFreqRange(900e6, 700e6)); err == nil {
		t.Error("ReadSpectra() accepted an inverted frequency range")
	}
	if _, err := s.ReadSpectra(context.Background(), id,
		WithTimeRange(runStart.Add(time.Hour), runStart)); err == nil {
		t.Error("ReadSpectra() accepted an inverted time range")
	}
}

func TestReadSpectraUnknownRun(t *testing.T) {
	s := newTestStore(t)
	createTestRun(t, s)

	if _, err := s.ReadSpectra(context.Background(), "no-such-run"); err == nil {
		t.Error("ReadSpectra() found a run that was never created")
	}
}

func TestStoreAndFetchProfiles(t *testing.T) {
	s := newTestStore(t)
	id := createTestRun(t, s)

	p := &spectra.Profile{
		StartTime: runStart,
		Duration:  10 * time.Second,
		NBin:      4,
		Width:     2,
		Power:     []float32{1, 2, 3, 4, 5, 6, 7, 8},
		Count:     []int64{10, 20, 30, 40},
	}
	profileID, err := s.StoreProfile(context.Background(), id, p)
	if err != nil {
		t.Fatalf("StoreProfile() error = %v", err)
	}
	if profileID <= 0 {
		t.Errorf("profile ID = %d", profileID)
	}

	profiles, err := s.Profiles(context.Background(), id)
	if err != nil {
		t.Fatalf("Profiles() error = %v", err)
	}
	if len(profiles) != 1 {
		t.Fatalf("got %d profiles, want 1", len(profiles))
	}
	got := profiles[0]
	if !got.StartTime.Equal(runStart) || got.Duration != 10*time.Second {
		t.Errorf("profile timing = %s %s", got.StartTime, got.Duration)
	}
	if got.NBin != 4 || got.Width != 2 {
		t.Errorf("profile shape = %dx%d", got.NBin, got.Width)
	}
	for i, v := range got.Power {
		if v != p.Power[i] {
			t.Errorf("power[%d] = %f, want %f", i, v, p.Power[i])
		}
	}
	for i, v := range got.Count {
		if v != p.Count[i] {
			t.Errorf("count[%d] = %d, want %d", i, v, p.Count[i])
		}
	}
}

func TestStoreProfileRejectsMismatchedShape(t *testing.T) {
	s := newTestStore(t)
	id := createTestRun(t, s)

	_, err := s.StoreProfile(context.Background(), id, &spectra.Profile{
		NBin:  4,
		Width: 2,
		Power: []float32{1, 2},
		Count: []int64{1, 2, 3, 4},
	})
	if err == nil {
		t.Error("StoreProfile() accepted a profile with mismatched blob sizes")
	}
}
