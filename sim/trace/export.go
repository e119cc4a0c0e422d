package trace

import (
	"bufio"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite" // pure go sqlite driver
)

// RunInfo identifies one run inside an export.
type RunInfo struct {
	ID       string `json:"id"`
	Scenario string `json:"scenario"`
	Seed     int64  `json:"seed"`
	Strategy string `json:"strategy"`
	Status   string `json:"status"`
	Clock    int64  `json:"clock"`
}

// WriteJSONL writes one JSON object per record.
func WriteJSONL(w io.Writer, records []Record) error {
	enc := json.NewEncoder(w)
	for _, r := range records {
		if err := enc.Encode(r); err != nil {
			return fmt.Errorf("encode record %d: %w", r.Seq, err)
		}
	}
	return nil
}

// SaveJSONL writes records to path as JSON lines, replacing the file.
func SaveJSONL(path string, records []Record) (retErr error) {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer func() {
		if closeErr := file.Close(); closeErr != nil && retErr == nil {
			retErr = fmt.Errorf("close %s: %w", path, closeErr)
		}
	}()
	writer := bufio.NewWriter(file)
	if err := WriteJSONL(writer, records); err != nil {
		return err
	}
	return writer.Flush()
}

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS runs (
	id       TEXT PRIMARY KEY,
	scenario TEXT NOT NULL,
	seed     INTEGER NOT NULL,
	strategy TEXT NOT NULL,
	status   TEXT NOT NULL,
	clock    INTEGER NOT NULL,
	summary  BLOB NOT NULL
);
CREATE TABLE IF NOT EXISTS events (
	run        TEXT NOT NULL REFERENCES runs(id),
	seq        INTEGER NOT NULL,
	time       INTEGER NOT NULL,
	kind       TEXT NOT NULL,
	wagon      TEXT,
	locomotive TEXT,
	workshop   TEXT,
	track      TEXT,
	from_state TEXT,
	to_state   TEXT,
	length     REAL,
	detail     TEXT,
	PRIMARY KEY (run, seq)
);
CREATE INDEX IF NOT EXISTS events_kind ON events(run, kind);
`

// SaveSQLite stores a run's records and summary in the SQLite database at
// path, creating it if needed. Saving a run id again replaces that run.
func SaveSQLite(ctx context.Context, path string, info RunInfo, records []Record, summary Summary) (retErr error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil && !errors.Is(err, os.ErrExist) {
		return fmt.Errorf("create dirs: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return fmt.Errorf("open sqlite: %w", err)
	}
	defer func() { _ = db.Close() }()
	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}

	payload, err := json.Marshal(summary)
	if err != nil {
		return fmt.Errorf("encode summary: %w", err)
	}
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if retErr != nil {
			_ = tx.Rollback()
		}
	}()
	if _, err := tx.ExecContext(ctx, `DELETE FROM events WHERE run = ?`, info.ID); err != nil {
		return fmt.Errorf("clear events: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `INSERT OR REPLACE INTO runs (id, scenario, seed, strategy, status, clock, summary)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		info.ID, info.Scenario, info.Seed, info.Strategy, info.Status, info.Clock, payload); err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx, `INSERT INTO events
		(run, seq, time, kind, wagon, locomotive, workshop, track, from_state, to_state, length, detail)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer func() { _ = stmt.Close() }()
	for _, r := range records {
		if _, err := stmt.ExecContext(ctx, info.ID, r.Seq, r.Time, string(r.Kind), r.Wagon, r.Locomotive,
			r.Workshop, r.Track, r.From, r.To, r.Length, r.Detail); err != nil {
			return fmt.Errorf("insert record %d: %w", r.Seq, err)
		}
	}
	return tx.Commit()
}

// LoadSQLite reads back the records of one run in sequence order.
func LoadSQLite(ctx context.Context, path, runID string) ([]Record, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	defer func() { _ = db.Close() }()
	rows, err := db.QueryContext(ctx, `SELECT seq, time, kind, wagon, locomotive, workshop, track,
		from_state, to_state, length, detail FROM events WHERE run = ? ORDER BY seq`, runID)
	if err != nil {
		return nil, fmt.Errorf("select events: %w", err)
	}
	defer func() { _ = rows.Close() }()
	var out []Record
	for rows.Next() {
		var r Record
		var kind string
		if err := rows.Scan(&r.Seq, &r.Time, &kind, &r.Wagon, &r.Locomotive, &r.Workshop, &r.Track,
			&r.From, &r.To, &r.Length, &r.Detail); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		r.Kind = Kind(kind)
		out = append(out, r)
	}
	return out, rows.Err()
}
