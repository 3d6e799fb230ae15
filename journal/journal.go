// Package journal records run reports in a local SQLite database so that earlier runs,
// and the photos they failed to clone, can be reviewed later.
package journal

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/sfomuseum/go-media-clone/operations/process"
	"github.com/sfomuseum/go-media-clone/photo"
	"github.com/sfomuseum/go-media-clone/policy"
	"github.com/sfomuseum/go-media-clone/track"
)

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	run_id TEXT PRIMARY KEY,
	started TEXT NOT NULL,
	finished TEXT NOT NULL,
	workers INTEGER,
	cancelled INTEGER,
	total INTEGER,
	succeeded INTEGER,
	failed INTEGER,
	skipped INTEGER,
	gps_added INTEGER
);
CREATE TABLE IF NOT EXISTS outcomes (
	run_id TEXT NOT NULL,
	path TEXT NOT NULL,
	status TEXT NOT NULL,
	error TEXT,
	rule TEXT,
	output_path TEXT,
	format TEXT,
	fingerprint TEXT,
	latitude REAL,
	longitude REAL,
	UNIQUE(run_id, path)
);
CREATE INDEX IF NOT EXISTS idx_outcomes_path ON outcomes(path);
CREATE INDEX IF NOT EXISTS idx_outcomes_status ON outcomes(status);`

// timeLayout is fixed width so that runs sort by start time as strings.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Run is the summary of a recorded run.
type Run struct {
	RunID     string
	Started   time.Time
	Finished  time.Time
	Workers   int
	Cancelled bool
	Total     int
	Succeeded int
	Failed    int
	Skipped   int
	GPSAdded  int
}

// Journal is a SQLite database of run reports.
type Journal struct {
	db *sql.DB
}

// Open opens (creating if necessary) the journal at path.
func Open(ctx context.Context, path string) (*Journal, error) {

	db, err := sql.Open("sqlite3", path)

	if err != nil {
		return nil, fmt.Errorf("Failed to open journal %s, %w", path, err)
	}

	// sqlite allows a single writer
	db.SetMaxOpenConns(1)

	_, err = db.ExecContext(ctx, schema)

	if err != nil {
		db.Close()
		return nil, fmt.Errorf("Failed to create journal schema, %w", err)
	}

	j := &Journal{
		db: db,
	}

	return j, nil
}

// Close closes the underlying database.
func (j *Journal) Close() error {
	return j.db.Close()
}

// Record stores r and all of its outcomes. Recording the same run twice replaces it.
func (j *Journal) Record(ctx context.Context, r *process.Report) error {

	tx, err := j.db.BeginTx(ctx, nil)

	if err != nil {
		return fmt.Errorf("Failed to start transaction, %w", err)
	}

	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `INSERT OR REPLACE INTO runs (
		run_id, started, finished, workers, cancelled, total, succeeded, failed, skipped, gps_added
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.RunID,
		r.Started.UTC().Format(timeLayout),
		r.Finished.UTC().Format(timeLayout),
		r.Workers,
		r.Cancelled,
		r.Total,
		r.Succeeded,
		r.Failed,
		r.Skipped,
		r.GPSAdded,
	)

	if err != nil {
		return fmt.Errorf("Failed to record run %s, %w", r.RunID, err)
	}

	_, err = tx.ExecContext(ctx, "DELETE FROM outcomes WHERE run_id = ?", r.RunID)

	if err != nil {
		return fmt.Errorf("Failed to clear outcomes for run %s, %w", r.RunID, err)
	}

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO outcomes (
		run_id, path, status, error, rule, output_path, format, fingerprint, latitude, longitude
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)

	if err != nil {
		return fmt.Errorf("Failed to prepare statement, %w", err)
	}

	defer stmt.Close()

	for _, o := range r.Outcomes {

		var output_path, format, fingerprint sql.NullString
		var lat, lon sql.NullFloat64

		if o.Result != nil {
			output_path = sql.NullString{String: o.Result.OutputPath, Valid: true}
			format = sql.NullString{String: string(o.Result.Format), Valid: true}
			fingerprint = sql.NullString{String: o.Result.Fingerprint, Valid: o.Result.Fingerprint != ""}
		}

		if o.GPS != nil {
			lat = sql.NullFloat64{Float64: o.GPS.Latitude, Valid: true}
			lon = sql.NullFloat64{Float64: o.GPS.Longitude, Valid: true}
		}

		_, err := stmt.ExecContext(ctx, r.RunID, o.Path, string(o.Status), o.Error, o.Rule, output_path, format, fingerprint, lat, lon)

		if err != nil {
			return fmt.Errorf("Failed to record outcome for %s, %w", o.Path, err)
		}
	}

	err = tx.Commit()

	if err != nil {
		return fmt.Errorf("Failed to commit run %s, %w", r.RunID, err)
	}

	return nil
}

// Runs returns every recorded run, most recent first.
func (j *Journal) Runs(ctx context.Context) ([]*Run, error) {

	rows, err := j.db.QueryContext(ctx, `SELECT
		run_id, started, finished, workers, cancelled, total, succeeded, failed, skipped, gps_added
	FROM runs ORDER BY started DESC`)

	if err != nil {
		return nil, fmt.Errorf("Failed to query runs, %w", err)
	}

	defer rows.Close()

	runs := make([]*Run, 0)

	for rows.Next() {

		var started, finished string
		run := new(Run)

		err := rows.Scan(&run.RunID, &started, &finished, &run.Workers, &run.Cancelled, &run.Total, &run.Succeeded, &run.Failed, &run.Skipped, &run.GPSAdded)

		if err != nil {
			return nil, fmt.Errorf("Failed to scan run, %w", err)
		}

		run.Started, err = time.Parse(time.RFC3339Nano, started)

		if err != nil {
			return nil, fmt.Errorf("Failed to parse start time for run %s, %w", run.RunID, err)
		}

		run.Finished, err = time.Parse(time.RFC3339Nano, finished)

		if err != nil {
			return nil, fmt.Errorf("Failed to parse finish time for run %s, %w", run.RunID, err)
		}

		runs = append(runs, run)
	}

	err = rows.Err()

	if err != nil {
		return nil, fmt.Errorf("Failed to iterate runs, %w", err)
	}

	return runs, nil
}

// Outcomes returns the outcomes recorded for run_id with the given status, or every
// outcome if status is "". Outcomes are ordered by path.
func (j *Journal) Outcomes(ctx context.Context, run_id string, status photo.Status) ([]*photo.Outcome, error) {

	q := "SELECT path, status, error, rule, output_path, format, fingerprint, latitude, longitude FROM outcomes WHERE run_id = ?"
	args := []interface{}{run_id}

	if status != "" {
		q = q + " AND status = ?"
		args = append(args, string(status))
	}

	q = q + " ORDER BY path"

	rows, err := j.db.QueryContext(ctx, q, args...)

	if err != nil {
		return nil, fmt.Errorf("Failed to query outcomes, %w", err)
	}

	defer rows.Close()

	outcomes := make([]*photo.Outcome, 0)

	for rows.Next() {

		var path, str_status string
		var err_msg, rule, output_path, format, fingerprint sql.NullString
		var lat, lon sql.NullFloat64

		err := rows.Scan(&path, &str_status, &err_msg, &rule, &output_path, &format, &fingerprint, &lat, &lon)

		if err != nil {
			return nil, fmt.Errorf("Failed to scan outcome, %w", err)
		}

		o := &photo.Outcome{
			Path:   path,
			Status: photo.Status(str_status),
			Error:  err_msg.String,
			Rule:   rule.String,
		}

		if output_path.Valid {
			o.Result = &photo.Result{
				OutputPath:  output_path.String,
				Fingerprint: fingerprint.String,
			}
			o.Result.Format = policy.Format(format.String)
		}

		if lat.Valid && lon.Valid {
			o.GPS = &track.GeoFix{
				Latitude:  lat.Float64,
				Longitude: lon.Float64,
			}
		}

		outcomes = append(outcomes, o)
	}

	err = rows.Err()

	if err != nil {
		return nil, fmt.Errorf("Failed to iterate outcomes, %w", err)
	}

	return outcomes, nil
}
