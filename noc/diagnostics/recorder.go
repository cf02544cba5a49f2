// Package diagnostics persists CostHandler drift events to a SQLite table
// for offline analysis, for callers that run periodic CheckPlacement
// audits and want a record of every disagreement between the tracked and
// recomputed cost terms rather than just the latest one.
package diagnostics

import (
	"database/sql"
	"fmt"
	"strings"

	"github.com/fatih/structs"
	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/xid"
	"github.com/tebeka/atexit"

	"github.com/RonZ13/vtr-noc-placer/noc/placement"
)

const driftTable = "drift_events"

// DriftRecord is one row of the drift_events table: a single term that
// disagreed between a CheckPlacement call's tracked and recomputed cost
// terms, plus when it happened.
type DriftRecord struct {
	ID         string
	Term       string
	Tracked    float64
	Recomputed float64
	Tolerance  float64
	AtUnixNano int64
}

func recordFromDrift(d *placement.DriftError, atUnixNano int64) DriftRecord {
	return DriftRecord{
		ID:         xid.New().String(),
		Term:       d.Term,
		Tracked:    d.Tracked,
		Recomputed: d.Recomputed,
		Tolerance:  d.Tolerance,
		AtUnixNano: atUnixNano,
	}
}

// Recorder buffers DriftRecords and writes them to a SQLite table in
// batches, flushing automatically at process exit.
type Recorder struct {
	db        *sql.DB
	batchSize int
	buffered  []DriftRecord
}

// NewRecorder opens (or creates) a SQLite database at path, creates the
// drift_events table if it does not already exist, and registers a
// flush-on-exit hook. Grounded on datarecording.New / sqliteWriter.Init,
// adapted to tolerate a pre-existing database file across process runs
// instead of panicking on it.
func NewRecorder(path string) (*Recorder, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("noc diagnostics: opening %s: %w", path, err)
	}

	r := &Recorder{db: db, batchSize: 1000}

	if err := r.createTableIfMissing(); err != nil {
		db.Close()
		return nil, err
	}

	atexit.Register(func() { _ = r.Flush() })

	return r, nil
}

func (r *Recorder) createTableIfMissing() error {
	names := structs.Names(DriftRecord{})
	columns := strings.Join(names, ", \n\t")

	_, err := r.db.Exec(`CREATE TABLE IF NOT EXISTS ` + driftTable + ` (` + "\n\t" + columns + "\n" + `);`)
	if err != nil {
		return fmt.Errorf("noc diagnostics: creating table: %w", err)
	}

	return nil
}

// RecordDrift buffers a DriftRecord built from a CheckPlacement error.
// Buffered records are written to disk once batchSize (1000 by default)
// entries have accumulated, or on Flush.
func (r *Recorder) RecordDrift(d *placement.DriftError, atUnixNano int64) {
	r.buffered = append(r.buffered, recordFromDrift(d, atUnixNano))

	if len(r.buffered) >= r.batchSize {
		_ = r.Flush()
	}
}

// Flush writes every buffered record to the database in one transaction.
// Grounded on sqliteWriter.Flush.
func (r *Recorder) Flush() error {
	if len(r.buffered) == 0 {
		return nil
	}

	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("noc diagnostics: beginning transaction: %w", err)
	}

	names := structs.Names(DriftRecord{})
	placeholders := make([]string, len(names))
	for i := range placeholders {
		placeholders[i] = "?"
	}

	stmt, err := tx.Prepare(`INSERT INTO ` + driftTable + ` VALUES (` + strings.Join(placeholders, ", ") + `)`)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("noc diagnostics: preparing insert: %w", err)
	}

	for _, rec := range r.buffered {
		values := structs.Values(rec)

		if _, err := stmt.Exec(values...); err != nil {
			stmt.Close()
			tx.Rollback()
			return fmt.Errorf("noc diagnostics: inserting drift record: %w", err)
		}
	}

	stmt.Close()

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("noc diagnostics: committing transaction: %w", err)
	}

	r.buffered = nil

	return nil
}

// Close flushes any buffered records and closes the underlying database
// connection.
func (r *Recorder) Close() error {
	if err := r.Flush(); err != nil {
		return err
	}

	return r.db.Close()
}
