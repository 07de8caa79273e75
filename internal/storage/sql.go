package storage

import (
	_ "embed"
)

const (
	insertRunSQL = `
INSERT INTO runs (id,
                  start_time,
                  source,
                  telescope,
                  target,
                  mode,
                  config)
VALUES (?, ?, ?, ?, ?, ?, ?)`

	selectRunSQL = `
SELECT
    id,
    created_at,
    start_time,
    source,
    telescope,
    target,
    mode,
    config
FROM runs
WHERE
    id = ?`

	selectRunsSQL = `
SELECT
    id,
    created_at,
    start_time,
    source,
    telescope,
    target,
    mode,
    config
FROM runs
ORDER BY created_at`

	insertProfileSQL = `
INSERT INTO profiles (run_id,
                      start_time,
                      duration_ns,
                      nbin,
                      width,
                      power,
                      counts)
VALUES (?, ?, ?, ?, ?, ?, ?)`

	selectProfilesSQL = `
SELECT
    id,
    start_time,
    duration_ns,
    nbin,
    width,
    power,
    counts
FROM profiles
WHERE
    run_id = ?
ORDER BY start_time`

	initIndexesSQL = `
CREATE INDEX IF NOT EXISTS idx_spectra_run_time ON spectra (run_id, timestamp);
CREATE INDEX IF NOT EXISTS idx_profiles_run_time ON profiles (run_id, start_time);`
)

//go:embed schema.sql
var initSchemaSQL string
