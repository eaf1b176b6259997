// Package journal keeps a SQLite history of sync attempts.
//
// Every attempt that drained at least one file is recorded with its file
// list, outcome and the step that failed, if any. Files dropped by a failed
// attempt therefore remain visible through `savesync history` even though
// the daemon does not retry them.
//
// The database is a single embedded SQLite file in WAL mode, opened through
// the ncruces/go-sqlite3 database/sql driver.
package journal

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"

	"github.com/savesync/savesync/internal/daemon"
)

// timeFormat is fixed width so stored timestamps sort as text.
const timeFormat = "2006-01-02T15:04:05.000000000Z07:00"

// Record is the persisted form of one attempt.
type Record struct {
	ID          int64     `json:"id" yaml:"id"`
	AttemptID   uint64    `json:"attempt_id" yaml:"attempt_id"`
	StartedAt   time.Time `json:"started_at" yaml:"started_at"`
	FinishedAt  time.Time `json:"finished_at" yaml:"finished_at"`
	Files       []string  `json:"files" yaml:"files"`
	Outcome     string    `json:"outcome" yaml:"outcome"`
	FailedStep  string    `json:"failed_step,omitempty" yaml:"failed_step,omitempty"`
	Error       string    `json:"error,omitempty" yaml:"error,omitempty"`
	LockRemoved bool      `json:"lock_removed" yaml:"lock_removed"`
}

// Duration returns how long the attempt ran.
func (r Record) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

// FromAttempt converts a finished attempt to a Record.
func FromAttempt(a daemon.Attempt) Record {
	r := Record{
		AttemptID:   a.ID,
		StartedAt:   a.StartedAt,
		FinishedAt:  a.FinishedAt,
		Files:       append([]string(nil), a.Files...),
		Outcome:     string(a.Outcome),
		FailedStep:  string(a.FailedStep),
		LockRemoved: a.LockRemoved,
	}
	if a.Err != nil {
		r.Error = a.Err.Error()
	}
	return r
}

// Filter selects records for List.
type Filter struct {
	// Since excludes attempts started before it (zero = no bound).
	Since time.Time
	// Outcome filters by outcome (empty = all).
	Outcome string
	// Limit restricts the number of results (0 = no limit).
	Limit int
}

// Journal wraps the database connection.
type Journal struct {
	conn *sql.DB
	path string
}

// Open opens or creates the journal at path and ensures the schema exists.
// The caller must call Close.
func Open(path string) (*Journal, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create journal directory: %w", err)
	}

	conn, err := sql.Open("sqlite3", "file:"+path)
	if err != nil {
		return nil, fmt.Errorf("failed to open journal: %w", err)
	}
	if err := conn.Ping(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping journal: %w", err)
	}

	// A single writer is all the daemon needs.
	conn.SetMaxOpenConns(1)

	j := &Journal{conn: conn, path: path}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
	}
	for _, p := range pragmas {
		if _, err := conn.Exec(p); err != nil {
			_ = j.Close()
			return nil, fmt.Errorf("failed to run %q: %w", p, err)
		}
	}

	if err := j.InitSchema(context.Background()); err != nil {
		_ = j.Close()
		return nil, err
	}

	return j, nil
}

// Path returns the database file path.
func (j *Journal) Path() string {
	return j.path
}

// Close checkpoints the WAL and closes the connection.
func (j *Journal) Close() error {
	if j.conn == nil {
		return nil
	}

	if _, err := j.conn.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to checkpoint WAL: %v\n", err)
	}

	if err := j.conn.Close(); err != nil {
		return fmt.Errorf("failed to close journal: %w", err)
	}
	j.conn = nil
	return nil
}

// InitSchema creates the attempts table if it doesn't exist.
// Safe to call multiple times.
func (j *Journal) InitSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS attempts (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		attempt_id INTEGER NOT NULL,
		started_at TEXT NOT NULL,
		finished_at TEXT NOT NULL,
		files TEXT NOT NULL,  -- JSON array
		outcome TEXT NOT NULL,
		failed_step TEXT,
		error TEXT,
		lock_removed INTEGER NOT NULL DEFAULT 0
	);

	CREATE INDEX IF NOT EXISTS idx_attempts_started ON attempts(started_at);
	CREATE INDEX IF NOT EXISTS idx_attempts_outcome ON attempts(outcome);
	`

	if _, err := j.conn.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}
	return nil
}

// Record inserts r and returns its row id.
func (j *Journal) Record(ctx context.Context, r Record) (int64, error) {
	files, err := json.Marshal(r.Files)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal files: %w", err)
	}

	res, err := j.conn.ExecContext(ctx, `
		INSERT INTO attempts (attempt_id, started_at, finished_at, files, outcome, failed_step, error, lock_removed)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		int64(r.AttemptID),
		r.StartedAt.UTC().Format(timeFormat),
		r.FinishedAt.UTC().Format(timeFormat),
		string(files),
		r.Outcome,
		nullString(r.FailedStep),
		nullString(r.Error),
		r.LockRemoved,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to record attempt: %w", err)
	}

	return res.LastInsertId()
}

// List returns records matching filter, newest first.
func (j *Journal) List(ctx context.Context, filter Filter) ([]Record, error) {
	var conditions []string
	var args []interface{}

	if !filter.Since.IsZero() {
		conditions = append(conditions, "started_at >= ?")
		args = append(args, filter.Since.UTC().Format(timeFormat))
	}
	if filter.Outcome != "" {
		conditions = append(conditions, "outcome = ?")
		args = append(args, filter.Outcome)
	}

	query := `SELECT id, attempt_id, started_at, finished_at, files, outcome, failed_step, error, lock_removed
	FROM attempts`
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY started_at DESC, id DESC"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := j.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list attempts: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var (
			r                   Record
			attemptID           int64
			started, finished   string
			files               string
			failedStep, errText sql.NullString
		)
		if err := rows.Scan(&r.ID, &attemptID, &started, &finished, &files, &r.Outcome, &failedStep, &errText, &r.LockRemoved); err != nil {
			return nil, fmt.Errorf("failed to scan attempt: %w", err)
		}

		r.AttemptID = uint64(attemptID)
		if r.StartedAt, err = time.Parse(timeFormat, started); err != nil {
			return nil, fmt.Errorf("failed to parse started_at: %w", err)
		}
		if r.FinishedAt, err = time.Parse(timeFormat, finished); err != nil {
			return nil, fmt.Errorf("failed to parse finished_at: %w", err)
		}
		if err := json.Unmarshal([]byte(files), &r.Files); err != nil {
			return nil, fmt.Errorf("failed to unmarshal files: %w", err)
		}
		r.FailedStep = failedStep.String
		r.Error = errText.String

		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating attempts: %w", err)
	}

	return records, nil
}

// Count returns the number of recorded attempts.
func (j *Journal) Count(ctx context.Context) (int, error) {
	var n int
	if err := j.conn.QueryRowContext(ctx, "SELECT COUNT(*) FROM attempts").Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count attempts: %w", err)
	}
	return n, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// Recorder writes finished attempts to a Journal. It implements
// daemon.Observer.
type Recorder struct {
	journal *Journal
	logger  *slog.Logger
	timeout time.Duration
}

var _ daemon.Observer = (*Recorder)(nil)

// NewRecorder creates a Recorder for j.
func NewRecorder(j *Journal, logger *slog.Logger) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Recorder{
		journal: j,
		logger:  logger.With("component", "journal"),
		timeout: 5 * time.Second,
	}
}

// AttemptStarted implements daemon.Observer. Only finished attempts are
// stored.
func (r *Recorder) AttemptStarted(a daemon.Attempt) {}

// AttemptFinished implements daemon.Observer. A write failure is logged and
// never affects the attempt.
func (r *Recorder) AttemptFinished(a daemon.Attempt) {
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()

	if _, err := r.journal.Record(ctx, FromAttempt(a)); err != nil {
		r.logger.Warn("failed to record attempt", "attempt", a.ID, "error", err)
	}
}
