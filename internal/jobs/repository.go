package jobs

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/garnizeh/campusfix/internal/db"
)

const jobColumns = `id, type, dedupe_key, payload, status, attempts, max_attempts, priority, scheduled_at, next_try_at, last_error, created, updated`

type Repository struct {
	db *db.DB
}

func NewRepository(d *db.DB) *Repository { return &Repository{db: d} }

// Enqueue inserts a job into the jobs table and returns the new ID.
// A job whose dedupe key is already present returns ErrDuplicate.
func (r *Repository) Enqueue(ctx context.Context, j *Job) (int64, error) {
	if j.MaxAttempts == 0 {
		j.MaxAttempts = 5
	}
	if j.ScheduledAt.IsZero() {
		j.ScheduledAt = time.Now()
	}
	var dedupe any
	if j.DedupeKey != "" {
		dedupe = j.DedupeKey
	}
	now := time.Now().UTC().Unix()
	q := `INSERT INTO jobs(type, dedupe_key, payload, status, attempts, max_attempts, priority, scheduled_at, created, updated)
		VALUES(?,?,?,?,?,?,?,?,?,?) ON CONFLICT(dedupe_key) DO NOTHING`
	res, err := r.db.Exec(ctx, q, j.Type, dedupe, string(j.Payload), StatusQueued, j.Attempts, j.MaxAttempts, j.Priority, j.ScheduledAt.UTC().Unix(), now, now)
	if err != nil {
		return 0, fmt.Errorf("enqueue failed: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return 0, fmt.Errorf("%w: %s", ErrDuplicate, j.DedupeKey)
	}
	return res.LastInsertId()
}

// Claim picks the next runnable job by priority and schedule and marks it running,
// so no other worker can pick it up. It returns nil when nothing is due.
func (r *Repository) Claim(ctx context.Context) (*Job, error) {
	var claimed *Job
	err := r.db.WithTx(ctx, func(tx *sql.Tx) error {
		now := time.Now().UTC().Unix()
		q := `SELECT ` + jobColumns + ` FROM jobs
			WHERE (status = 'queued' OR status = 'retry') AND (next_try_at IS NULL OR next_try_at <= ?) AND scheduled_at <= ?
			ORDER BY priority ASC, scheduled_at ASC, id ASC LIMIT 1`
		j, err := scanJob(tx.QueryRowContext(ctx, q, now, now))
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("fetch next job: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `UPDATE jobs SET status = ?, updated = ? WHERE id = ?`, StatusRunning, now, j.ID); err != nil {
			return fmt.Errorf("claim job %d: %w", j.ID, err)
		}
		j.Status = StatusRunning
		claimed = j
		return nil
	})
	return claimed, err
}

// Get loads a job by id.
func (r *Repository) Get(ctx context.Context, id int64) (*Job, error) {
	return scanJob(r.db.QueryRow(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = ?`, id))
}

// UpdateJob updates attempts, status, next_try_at, last_error
func (r *Repository) UpdateJob(ctx context.Context, j *Job) error {
	var nextTry any
	if j.NextTryAt != nil {
		nextTry = j.NextTryAt.UTC().Unix()
	}
	q := `UPDATE jobs SET status = ?, attempts = ?, next_try_at = ?, last_error = ?, updated = ? WHERE id = ?`
	_, err := r.db.Exec(ctx, q, j.Status, j.Attempts, nextTry, j.LastError, time.Now().UTC().Unix(), j.ID)
	return err
}

// ReleaseRunning returns jobs left running by a previous process to the retry state.
func (r *Repository) ReleaseRunning(ctx context.Context) (int64, error) {
	res, err := r.db.Exec(ctx, `UPDATE jobs SET status = ?, updated = ? WHERE status = ?`, StatusRetry, time.Now().UTC().Unix(), StatusRunning)
	if err != nil {
		return 0, fmt.Errorf("release running jobs: %w", err)
	}
	return res.RowsAffected()
}

// MoveToDeadLetter moves a job to dead_letter_jobs and deletes the original
func (r *Repository) MoveToDeadLetter(ctx context.Context, j *Job) error {
	return r.db.WithTx(ctx, func(tx *sql.Tx) error {
		insert := `INSERT INTO dead_letter_jobs(job_id, type, dedupe_key, payload, attempts, last_error, failed_at) VALUES(?,?,?,?,?,?,?)`
		if _, err := tx.ExecContext(ctx, insert, j.ID, j.Type, j.DedupeKey, string(j.Payload), j.Attempts, j.LastError, time.Now().UTC().Unix()); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, `DELETE FROM jobs WHERE id = ?`, j.ID)
		return err
	})
}

// CountByStatus reports how many jobs are in each status, plus "dead" for the dead-letter table.
func (r *Repository) CountByStatus(ctx context.Context) (map[string]int, error) {
	rows, err := r.db.QueryRows(ctx, `SELECT status, COUNT(*) FROM jobs GROUP BY status
		UNION ALL SELECT 'dead', COUNT(*) FROM dead_letter_jobs`)
	if err != nil {
		return nil, fmt.Errorf("count jobs: %w", err)
	}
	defer rows.Close()

	out := map[string]int{}
	for rows.Next() {
		var (
			status string
			n      int
		)
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		out[status] += n
	}
	return out, rows.Err()
}

func scanJob(row *sql.Row) (*Job, error) {
	var (
		id          int64
		typ         string
		dedupe      sql.NullString
		payload     sql.NullString
		status      string
		attempts    int
		maxAttempts int
		priority    int
		scheduledAt int64
		nextTry     sql.NullInt64
		lastError   sql.NullString
		created     int64
		updated     int64
	)
	if err := row.Scan(&id, &typ, &dedupe, &payload, &status, &attempts, &maxAttempts, &priority, &scheduledAt, &nextTry, &lastError, &created, &updated); err != nil {
		return nil, err
	}
	j := &Job{
		ID:          id,
		Type:        typ,
		DedupeKey:   dedupe.String,
		Status:      status,
		Attempts:    attempts,
		MaxAttempts: maxAttempts,
		Priority:    priority,
		ScheduledAt: time.Unix(scheduledAt, 0),
		LastError:   lastError.String,
		Created:     time.Unix(created, 0),
		Updated:     time.Unix(updated, 0),
	}
	if payload.Valid {
		j.Payload = json.RawMessage(payload.String)
	}
	if nextTry.Valid {
		t := time.Unix(nextTry.Int64, 0)
		j.NextTryAt = &t
	}
	return j, nil
}
