package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/Luke-Pratley/scintillometry/internal/spectra"
)

// SqliteStore implements Store on a SQLite database file. Connections are
// opened lazily: a write connection with WAL journaling for the pipeline and
// a separate read-only connection for queries.
type SqliteStore struct {
	dbPath string

	writeDB     *sql.DB
	writeDBOnce sync.Once
	writeDBErr  error

	readDB     *sql.DB
	readDBOnce sync.Once
	readDBErr  error

	closeOnce sync.Once
	closeErr  error
}

// NewSqliteStore creates a store backed by the database at dbPath. The schema
// is initialized on first write.
func NewSqliteStore(dbPath string) *SqliteStore {
	return &SqliteStore{dbPath: dbPath}
}

func runSQLCommand(db *sql.DB, sql string) error {
	_, err := db.Exec(sql)
	return err
}

func (s *SqliteStore) getWriteDB() (*sql.DB, error) {
	s.writeDBOnce.Do(func() {
		db, err := sql.Open("sqlite3", fmt.Sprintf("file:%s?%s", s.dbPath, "_journal_mode=WAL&_synchronous=NORMAL"))
		if err != nil {
			s.writeDBErr = fmt.Errorf("opening write connection: %w", err)
			return
		}

		if err = runSQLCommand(db, initSchemaSQL); err != nil {
			_ = db.Close()
			s.writeDBErr = fmt.Errorf("initializing schema: %w", err)
			return
		}

		s.writeDB = db
	})

	return s.writeDB, s.writeDBErr
}

func (s *SqliteStore) getReadDB() (*sql.DB, error) {
	s.readDBOnce.Do(func() {
		db, err := sql.Open("sqlite3", fmt.Sprintf("file:%s?%s", s.dbPath, "mode=ro"))
		if err != nil {
			s.readDBErr = fmt.Errorf("opening read connection: %w", err)
			return
		}
		s.readDB = db
	})

	return s.readDB, s.readDBErr
}

func (s *SqliteStore) CreateRun(ctx context.Context, run *spectra.Run) (runID string, err error) {
	db, err := s.getWriteDB()
	if err != nil {
		err = fmt.Errorf("getting write connection: %w", err)
		return
	}

	stmt, err := db.PrepareContext(ctx, insertRunSQL)
	if err != nil {
		err = fmt.Errorf("preparing statement: %w", err)
		return
	}
	defer closeWithError(stmt, &err)

	runID = run.ID
	if runID == "" {
		runID = uuid.NewString()
	}

	var config sql.NullString
	if run.Config != nil {
		config.Valid = true
		config.String = *run.Config
	}

	if _, err = stmt.ExecContext(ctx, runID, run.StartTime.UTC(), run.Source,
		nullString(run.Telescope), nullString(run.Target), nullString(run.Mode), config); err != nil {
		err = fmt.Errorf("inserting run: %w", err)
		return
	}
	return runID, nil
}

func (s *SqliteStore) Run(ctx context.Context, id string) (run *spectra.Run, err error) {
	db, err := s.getReadDB()
	if err != nil {
		err = fmt.Errorf("getting read connection: %w", err)
		return
	}

	stmt, err := db.PrepareContext(ctx, selectRunSQL)
	if err != nil {
		err = fmt.Errorf("preparing statement: %w", err)
		return
	}
	defer closeWithError(stmt, &err)

	run, err = scanRun(stmt.QueryRowContext(ctx, id))
	if err != nil {
		err = fmt.Errorf("scanning run: %w", err)
		return
	}
	return run, nil
}

func (s *SqliteStore) Runs(ctx context.Context) (runs []*spectra.Run, err error) {
	db, err := s.getReadDB()
	if err != nil {
		err = fmt.Errorf("getting read connection: %w", err)
		return
	}

	rows, err := db.QueryContext(ctx, selectRunsSQL)
	if err != nil {
		err = fmt.Errorf("querying runs: %w", err)
		return
	}
	defer closeWithError(rows, &err)

	for rows.Next() {
		var run *spectra.Run
		if run, err = scanRun(rows); err != nil {
			err = fmt.Errorf("scanning run: %w", err)
			return
		}
		runs = append(runs, run)
	}
	err = rows.Err()
	return
}

const insertSpectraSQL = `
    INSERT INTO spectra (
        run_id,
        timestamp,
        freq_start,
        bin_width,
        nchan,
        power
    )
    VALUES `

func (s *SqliteStore) StoreSpectra(ctx context.Context, runID string, batch []spectra.Spectrum) (err error) {
	if len(batch) == 0 {
		return
	}

	db, err := s.getWriteDB()
	if err != nil {
		return fmt.Errorf("getting write connection: %w", err)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer rollbackWithError(tx, &err)

	values := make([]interface{}, 0, len(batch)*6)

	var sb strings.Builder
	sb.WriteString(insertSpectraSQL)

	for i, row := range batch {
		values = append(values,
			runID,
			row.Timestamp.UTC(),
			row.FreqStart,
			row.BinWidth,
			len(row.Power),
			encodePowers(row.Power),
		)

		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString("(?, ?, ?, ?, ?, ?)")
	}

	if _, err = tx.ExecContext(ctx, sb.String(), values...); err != nil {
		return fmt.Errorf("batch inserting spectra: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}

	return nil
}

func (s *SqliteStore) StoreProfile(ctx context.Context, runID string, p *spectra.Profile) (profileID int64, err error) {
	if len(p.Power) != p.NBin*p.Width || len(p.Count) != p.NBin {
		return 0, fmt.Errorf("profile of %d bins x %d values holds %d powers and %d counts",
			p.NBin, p.Width, len(p.Power), len(p.Count))
	}

	db, err := s.getWriteDB()
	if err != nil {
		err = fmt.Errorf("getting write connection: %w", err)
		return
	}

	stmt, err := db.PrepareContext(ctx, insertProfileSQL)
	if err != nil {
		err = fmt.Errorf("preparing statement: %w", err)
		return
	}
	defer closeWithError(stmt, &err)

	result, err := stmt.ExecContext(ctx, runID, p.StartTime.UTC(), int64(p.Duration),
		p.NBin, p.Width, encodePowers(p.Power), encodeCounts(p.Count))
	if err != nil {
		err = fmt.Errorf("inserting profile: %w", err)
		return
	}

	profileID, err = result.LastInsertId()
	if err != nil {
		err = fmt.Errorf("getting profile ID: %w", err)
	}
	return
}

func (s *SqliteStore) Profiles(ctx context.Context, runID string) (profiles []*spectra.Profile, err error) {
	db, err := s.getReadDB()
	if err != nil {
		err = fmt.Errorf("getting read connection: %w", err)
		return
	}

	rows, err := db.QueryContext(ctx, selectProfilesSQL, runID)
	if err != nil {
		err = fmt.Errorf("querying profiles: %w", err)
		return
	}
	defer closeWithError(rows, &err)

	for rows.Next() {
		var (
			p        spectra.Profile
			duration int64
			power    []byte
			counts   []byte
		)
		if err = rows.Scan(&p.ID, &p.StartTime, &duration, &p.NBin, &p.Width, &power, &counts); err != nil {
			err = fmt.Errorf("scanning profile: %w", err)
			return
		}
		p.Duration = durationFromNanos(duration)
		if p.Power, err = decodePowers(power, p.NBin*p.Width); err != nil {
			return
		}
		if p.Count, err = decodeCounts(counts, p.NBin); err != nil {
			return
		}
		profiles = append(profiles, &p)
	}
	err = rows.Err()
	return
}

// ReadSpectra creates an iterator over the dynamic spectrum of a run,
// supporting WithTimeRange and WithFreqRange restrictions. Each reader holds
// database resources until closed and must be used from a single goroutine.
func (s *SqliteStore) ReadSpectra(ctx context.Context, runID string, opts ...ReaderOption) (SpectrumReader, error) {
	db, err := s.getReadDB()
	if err != nil {
		return nil, fmt.Errorf("getting read connection: %w", err)
	}
	return newSqliteSpectrumReader(ctx, db, runID, opts...)
}

func (s *SqliteStore) Close() error {
	s.closeOnce.Do(func() {
		var writeErr, readErr error

		if s.writeDB != nil {
			_ = runSQLCommand(s.writeDB, initIndexesSQL)

			writeErr = s.writeDB.Close()
			s.writeDB = nil
		}

		if s.readDB != nil {
			readErr = s.readDB.Close()
			s.readDB = nil
		}

		switch {
		case writeErr != nil && readErr != nil:
			s.closeErr = errors.Join(writeErr, readErr)
		case writeErr != nil:
			s.closeErr = writeErr
		case readErr != nil:
			s.closeErr = readErr
		}
	})

	return s.closeErr
}
