// Package ledger records simulator runs and merge steps in a SQLite file so
// a batch can be audited after the fact.
package ledger

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"cyclesdojo/internal/logging"
)

// RunStatus is the outcome of one simulator run.
type RunStatus string

const (
	StatusOK         RunStatus = "ok"
	StatusFailed     RunStatus = "failed"
	StatusKilled     RunStatus = "killed"
	StatusParseError RunStatus = "parse_error"
)

// RunRecord is one simulator invocation.
type RunRecord struct {
	BatchID     string
	Country     string
	Crop        string
	PlantingDay int
	Point       string
	Status      RunStatus
	ExitCode    int
	Duration    time.Duration
	Message     string
}

// MergeRecord is one cropland merge step.
type MergeRecord struct {
	BatchID    string
	Crop       string
	Before     int
	After      int
	References int
	Dropped    int
	Unmatched  int
}

// Batch is one invocation of a pipeline stage.
type Batch struct {
	ID        string
	Kind      string
	StartedAt time.Time
	Runs      int
}

// Summary aggregates one batch.
type Summary struct {
	Batch
	Succeeded int
	Failed    int
	Killed    int
	Unparsed  int
	Merges    []MergeRecord
}

// Ledger is safe for concurrent use.
type Ledger struct {
	db   *sql.DB
	mu   sync.Mutex
	path string
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS batches (
		id TEXT PRIMARY KEY,
		kind TEXT NOT NULL,
		started_at TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS runs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		batch_id TEXT NOT NULL,
		country TEXT NOT NULL,
		crop TEXT NOT NULL,
		planting_day INTEGER NOT NULL,
		point TEXT NOT NULL,
		status TEXT NOT NULL,
		exit_code INTEGER NOT NULL,
		duration_ms INTEGER NOT NULL,
		message TEXT,
		recorded_at TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_runs_batch ON runs(batch_id)`,
	`CREATE TABLE IF NOT EXISTS merges (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		batch_id TEXT NOT NULL,
		crop TEXT NOT NULL,
		rows_before INTEGER NOT NULL,
		rows_after INTEGER NOT NULL,
		refs INTEGER NOT NULL,
		dropped INTEGER NOT NULL,
		unmatched INTEGER NOT NULL,
		recorded_at TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_merges_batch ON merges(batch_id)`,
}

// Open opens or creates the ledger at path.
func Open(path string) (*Ledger, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create ledger directory: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open ledger: %w", err)
	}
	db.SetMaxOpenConns(1)
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		logging.LedgerDebug("busy_timeout: %v", err)
	}
	for _, stmt := range schema {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to initialize ledger schema: %w", err)
		}
	}
	logging.LedgerDebug("Opened ledger %s", path)
	return &Ledger{db: db, path: path}, nil
}

// Close closes the database.
func (l *Ledger) Close() error {
	return l.db.Close()
}

// Path returns the database file.
func (l *Ledger) Path() string { return l.path }

// StartBatch registers a new batch and returns its id.
func (l *Ledger) StartBatch(kind string) (string, error) {
	id := uuid.NewString()
	l.mu.Lock()
	defer l.mu.Unlock()
	_, err := l.db.Exec(`INSERT INTO batches (id, kind, started_at) VALUES (?, ?, ?)`,
		id, kind, now())
	if err != nil {
		return "", fmt.Errorf("start batch: %w", err)
	}
	logging.LedgerDebug("Batch %s started (%s)", id, kind)
	return id, nil
}

// RecordRun stores one run.
func (l *Ledger) RecordRun(r RunRecord) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, err := l.db.Exec(`INSERT INTO runs
		(batch_id, country, crop, planting_day, point, status, exit_code, duration_ms, message, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.BatchID, r.Country, r.Crop, r.PlantingDay, r.Point, string(r.Status),
		r.ExitCode, r.Duration.Milliseconds(), r.Message, now())
	if err != nil {
		return fmt.Errorf("record run: %w", err)
	}
	return nil
}

// RecordMerge stores one merge step.
func (l *Ledger) RecordMerge(m MergeRecord) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, err := l.db.Exec(`INSERT INTO merges
		(batch_id, crop, rows_before, rows_after, refs, dropped, unmatched, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		m.BatchID, m.Crop, m.Before, m.After, m.References, m.Dropped, m.Unmatched, now())
	if err != nil {
		return fmt.Errorf("record merge: %w", err)
	}
	return nil
}

// ErrUnknownBatch is returned by Summary for an id never started.
var ErrUnknownBatch = errors.New("unknown batch")

// Summary counts the runs of a batch by status and lists its merges.
func (l *Ledger) Summary(batchID string) (Summary, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	var s Summary
	var started string
	err := l.db.QueryRow(`SELECT id, kind, started_at FROM batches WHERE id = ?`, batchID).
		Scan(&s.ID, &s.Kind, &started)
	if errors.Is(err, sql.ErrNoRows) {
		return Summary{}, fmt.Errorf("%w: %s", ErrUnknownBatch, batchID)
	}
	if err != nil {
		return Summary{}, fmt.Errorf("query batch: %w", err)
	}
	s.StartedAt = parseTime(started)

	rows, err := l.db.Query(`SELECT status, COUNT(*) FROM runs WHERE batch_id = ? GROUP BY status`, batchID)
	if err != nil {
		return Summary{}, fmt.Errorf("query runs: %w", err)
	}
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			rows.Close()
			return Summary{}, err
		}
		s.Runs += n
		switch RunStatus(status) {
		case StatusOK:
			s.Succeeded = n
		case StatusFailed:
			s.Failed = n
		case StatusKilled:
			s.Killed = n
		case StatusParseError:
			s.Unparsed = n
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return Summary{}, err
	}

	mrows, err := l.db.Query(`SELECT crop, rows_before, rows_after, refs, dropped, unmatched
		FROM merges WHERE batch_id = ? ORDER BY id`, batchID)
	if err != nil {
		return Summary{}, fmt.Errorf("query merges: %w", err)
	}
	defer mrows.Close()
	for mrows.Next() {
		m := MergeRecord{BatchID: batchID}
		if err := mrows.Scan(&m.Crop, &m.Before, &m.After, &m.References, &m.Dropped, &m.Unmatched); err != nil {
			return Summary{}, err
		}
		s.Merges = append(s.Merges, m)
	}
	return s, mrows.Err()
}

// FailedRuns returns the runs of a batch that did not finish ok, in the
// order they were recorded.
func (l *Ledger) FailedRuns(batchID string) ([]RunRecord, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	rows, err := l.db.Query(`SELECT country, crop, planting_day, point, status, exit_code, duration_ms, COALESCE(message, '')
		FROM runs WHERE batch_id = ? AND status != ? ORDER BY id`, batchID, string(StatusOK))
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var out []RunRecord
	for rows.Next() {
		r := RunRecord{BatchID: batchID}
		var status string
		var ms int64
		if err := rows.Scan(&r.Country, &r.Crop, &r.PlantingDay, &r.Point, &status, &r.ExitCode, &ms, &r.Message); err != nil {
			return nil, err
		}
		r.Status = RunStatus(status)
		r.Duration = time.Duration(ms) * time.Millisecond
		out = append(out, r)
	}
	return out, rows.Err()
}

// Batches lists all batches, newest first.
func (l *Ledger) Batches() ([]Batch, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	rows, err := l.db.Query(`SELECT b.id, b.kind, b.started_at,
		(SELECT COUNT(*) FROM runs r WHERE r.batch_id = b.id)
		FROM batches b ORDER BY b.rowid DESC`)
	if err != nil {
		return nil, fmt.Errorf("query batches: %w", err)
	}
	defer rows.Close()

	var out []Batch
	for rows.Next() {
		var b Batch
		var started string
		if err := rows.Scan(&b.ID, &b.Kind, &started, &b.Runs); err != nil {
			return nil, err
		}
		b.StartedAt = parseTime(started)
		out = append(out, b)
	}
	return out, rows.Err()
}

func now() string {
	return time.Now().UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
