package queue

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"gridsweep/internal/grid"
)

// Task states persisted in the queue.
const (
	StateQueued    = "queued"
	StateRunning   = "running"
	StateSucceeded = "succeeded"
	StateFailed    = "failed"
)

const insertChunk = 256

// timeLayout is fixed width so stored timestamps compare lexicographically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Store manages queued sweep tasks in SQLite.
type Store struct {
	DBPath string
	db     *sql.DB
}

// Record is one persisted task.
type Record struct {
	ID             string
	JobID          string
	Seq            int
	Dir            string
	State          string
	EnqueuedAt     time.Time
	StartedAt      *time.Time
	FinishedAt     *time.Time
	ResultJSON     string
	Artifact       string
	Error          string
	LeaseOwner     string
	LeaseExpiresAt *time.Time
}

// Open opens or creates the queue database.
func Open(path string) (*Store, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve queue db path: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(absPath), 0o755); err != nil {
		return nil, fmt.Errorf("ensure queue db dir: %w", err)
	}

	db, err := sql.Open("sqlite", absPath)
	if err != nil {
		return nil, fmt.Errorf("open queue db: %w", err)
	}
	// A single connection serialises writers from the same process.
	db.SetMaxOpenConns(1)

	store := &Store{DBPath: absPath, db: db}
	if err := store.ensureSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func (s *Store) ensureSchema() error {
	schema := `
PRAGMA busy_timeout = 5000;

CREATE TABLE IF NOT EXISTS sweep_tasks (
	id TEXT PRIMARY KEY,
	job_id TEXT NOT NULL,
	seq INTEGER NOT NULL,
	dir TEXT NOT NULL,
	state TEXT NOT NULL,
	enqueued_at TEXT NOT NULL,
	started_at TEXT,
	finished_at TEXT,
	result_json TEXT,
	artifact TEXT,
	error TEXT,
	lease_owner TEXT,
	lease_expires_at TEXT
);

CREATE INDEX IF NOT EXISTS idx_tasks_state_seq ON sweep_tasks(state, enqueued_at, seq);
CREATE INDEX IF NOT EXISTS idx_tasks_job ON sweep_tasks(job_id, seq);
`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("create queue schema: %w", err)
	}
	return nil
}

// Enqueue inserts records in the queued state.
func (s *Store) Enqueue(records []Record) error {
	now := time.Now().UTC().Format(timeLayout)
	for _, chunk := range grid.Chunks(records, insertChunk) {
		tx, err := s.db.Begin()
		if err != nil {
			return fmt.Errorf("begin transaction: %w", err)
		}
		for _, rec := range chunk {
			_, err := tx.Exec(`
				INSERT INTO sweep_tasks (id, job_id, seq, dir, state, enqueued_at)
				VALUES (?, ?, ?, ?, ?, ?)
			`, rec.ID, rec.JobID, rec.Seq, rec.Dir, StateQueued, now)
			if err != nil {
				_ = tx.Rollback()
				return fmt.Errorf("insert task %s: %w", rec.ID, err)
			}
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit transaction: %w", err)
		}
	}
	return nil
}

// ClaimNext atomically claims the oldest queued task. It returns nil when the
// queue is empty.
func (s *Store) ClaimNext(now time.Time, leaseOwner string, leaseFor time.Duration) (*Record, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	var id string
	err = tx.QueryRow(`
		SELECT id FROM sweep_tasks
		WHERE state = ?
		ORDER BY enqueued_at ASC, seq ASC
		LIMIT 1
	`, StateQueued).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find next task: %w", err)
	}

	_, err = tx.Exec(`
		UPDATE sweep_tasks
		SET state = ?,
		    started_at = ?,
		    lease_owner = ?,
		    lease_expires_at = ?
		WHERE id = ?
	`, StateRunning, now.UTC().Format(timeLayout), leaseOwner,
		now.Add(leaseFor).UTC().Format(timeLayout), id)
	if err != nil {
		return nil, fmt.Errorf("claim task: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit transaction: %w", err)
	}
	return s.Get(id)
}

// RequeueExpired puts running tasks whose lease expired back in the queue.
func (s *Store) RequeueExpired(now time.Time) (int, error) {
	res, err := s.db.Exec(`
		UPDATE sweep_tasks
		SET state = ?, lease_owner = NULL, lease_expires_at = NULL, started_at = NULL
		WHERE state = ? AND lease_expires_at IS NOT NULL AND lease_expires_at < ?
	`, StateQueued, StateRunning, now.UTC().Format(timeLayout))
	if err != nil {
		return 0, fmt.Errorf("requeue expired: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

// Succeed marks a task as succeeded with its result payload.
func (s *Store) Succeed(id string, resultJSON []byte, artifact string) error {
	_, err := s.db.Exec(`
		UPDATE sweep_tasks
		SET state = ?, finished_at = ?, result_json = ?, artifact = ?, error = NULL
		WHERE id = ?
	`, StateSucceeded, time.Now().UTC().Format(timeLayout), string(resultJSON), artifact, id)
	if err != nil {
		return fmt.Errorf("update task: %w", err)
	}
	return nil
}

// Fail marks a task as failed.
func (s *Store) Fail(id string, taskErr error) error {
	msg := "unknown error"
	if taskErr != nil {
		msg = taskErr.Error()
	}
	_, err := s.db.Exec(`
		UPDATE sweep_tasks
		SET state = ?, finished_at = ?, error = ?
		WHERE id = ?
	`, StateFailed, time.Now().UTC().Format(timeLayout), msg, id)
	if err != nil {
		return fmt.Errorf("update task: %w", err)
	}
	return nil
}

// Get retrieves a task by id.
func (s *Store) Get(id string) (*Record, error) {
	rows, err := s.db.Query(selectRecord+` WHERE id = ?`, id)
	if err != nil {
		return nil, fmt.Errorf("get task: %w", err)
	}
	defer rows.Close()
	recs, err := scanRecords(rows)
	if err != nil {
		return nil, err
	}
	if len(recs) == 0 {
		return nil, fmt.Errorf("task not found: %s", id)
	}
	return &recs[0], nil
}

// ListJob returns the tasks of a job in sequence order.
func (s *Store) ListJob(jobID string) ([]Record, error) {
	rows, err := s.db.Query(selectRecord+` WHERE job_id = ? ORDER BY seq ASC`, jobID)
	if err != nil {
		return nil, fmt.Errorf("query job tasks: %w", err)
	}
	defer rows.Close()
	return scanRecords(rows)
}

// Counts returns the number of tasks per state, optionally for one job.
func (s *Store) Counts(jobID string) (map[string]int, error) {
	query := `SELECT state, COUNT(*) FROM sweep_tasks`
	var args []any
	if jobID != "" {
		query += ` WHERE job_id = ?`
		args = append(args, jobID)
	}
	query += ` GROUP BY state`

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("count tasks: %w", err)
	}
	defer rows.Close()

	counts := map[string]int{}
	for rows.Next() {
		var state string
		var n int
		if err := rows.Scan(&state, &n); err != nil {
			return nil, fmt.Errorf("scan count: %w", err)
		}
		counts[state] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate counts: %w", err)
	}
	return counts, nil
}

const selectRecord = `
	SELECT id, job_id, seq, dir, state, enqueued_at, started_at, finished_at,
	       result_json, artifact, error, lease_owner, lease_expires_at
	FROM sweep_tasks`

func scanRecords(rows *sql.Rows) ([]Record, error) {
	var recs []Record
	for rows.Next() {
		var rec Record
		var enqueuedAt string
		var startedAt, finishedAt, leaseExpiresAt sql.NullString
		var resultJSON, artifact, errMsg, leaseOwner sql.NullString

		err := rows.Scan(
			&rec.ID, &rec.JobID, &rec.Seq, &rec.Dir, &rec.State, &enqueuedAt,
			&startedAt, &finishedAt, &resultJSON, &artifact, &errMsg,
			&leaseOwner, &leaseExpiresAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}

		rec.EnqueuedAt, _ = time.Parse(timeLayout, enqueuedAt)
		rec.StartedAt = parseNullTime(startedAt)
		rec.FinishedAt = parseNullTime(finishedAt)
		rec.LeaseExpiresAt = parseNullTime(leaseExpiresAt)
		rec.ResultJSON = resultJSON.String
		rec.Artifact = artifact.String
		rec.Error = errMsg.String
		rec.LeaseOwner = leaseOwner.String

		recs = append(recs, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tasks: %w", err)
	}
	return recs, nil
}

func parseNullTime(v sql.NullString) *time.Time {
	if !v.Valid {
		return nil
	}
	t, err := time.Parse(timeLayout, v.String)
	if err != nil {
		return nil
	}
	return &t
}
