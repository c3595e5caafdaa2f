package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
)

const jobColumns = `id, job_type, payload, status, priority, attempts, max_attempts,
	scheduled_at, started_at, completed_at, error_message, created_at, updated_at`

func scanJob(row interface{ Scan(...interface{}) error }) (Job, error) {
	var j Job
	err := row.Scan(
		&j.ID,
		&j.JobType,
		&j.Payload,
		&j.Status,
		&j.Priority,
		&j.Attempts,
		&j.MaxAttempts,
		&j.ScheduledAt,
		&j.StartedAt,
		&j.CompletedAt,
		&j.ErrorMessage,
		&j.CreatedAt,
		&j.UpdatedAt,
	)
	return j, err
}

// EnqueueJobParams holds the inputs for EnqueueJob.
type EnqueueJobParams struct {
	JobType     string
	Payload     []byte
	Priority    int32
	MaxAttempts int32
	ScheduledAt time.Time
}

const enqueueJob = `
INSERT INTO jobs (job_type, payload, priority, max_attempts, scheduled_at)
VALUES ($1, $2, $3, $4, $5)
RETURNING ` + jobColumns

func (q *Queries) EnqueueJob(ctx context.Context, arg EnqueueJobParams) (Job, error) {
	row := q.db.QueryRowContext(ctx, enqueueJob,
		arg.JobType, arg.Payload, arg.Priority, arg.MaxAttempts, arg.ScheduledAt)
	return scanJob(row)
}

const dequeueJob = `
SELECT ` + jobColumns + `
FROM jobs
WHERE status = 'pending' AND scheduled_at <= now()
ORDER BY priority DESC, scheduled_at
LIMIT 1
FOR UPDATE SKIP LOCKED`

// DequeueJob selects the next runnable job, locking the row for the
// caller's transaction. Returns sql.ErrNoRows when the queue is empty.
func (q *Queries) DequeueJob(ctx context.Context) (Job, error) {
	return scanJob(q.db.QueryRowContext(ctx, dequeueJob))
}

const updateJobStarted = `
UPDATE jobs
SET status = 'running', attempts = attempts + 1, started_at = now(), updated_at = now()
WHERE id = $1`

func (q *Queries) UpdateJobStarted(ctx context.Context, id uuid.UUID) error {
	_, err := q.db.ExecContext(ctx, updateJobStarted, id)
	return err
}

const updateJobCompleted = `
UPDATE jobs
SET status = 'completed', completed_at = now(), updated_at = now()
WHERE id = $1`

func (q *Queries) UpdateJobCompleted(ctx context.Context, id uuid.UUID) error {
	_, err := q.db.ExecContext(ctx, updateJobCompleted, id)
	return err
}

// UpdateJobFailedParams holds the inputs for UpdateJobFailed.
type UpdateJobFailedParams struct {
	ID           uuid.UUID
	ErrorMessage sql.NullString
	// Permanent marks the job failed regardless of remaining attempts.
	Permanent bool
}

// Failed jobs are retried with exponential backoff (1m, 4m, 9m, ...)
// until max_attempts, after which they stay failed.
const updateJobFailed = `
UPDATE jobs
SET status = CASE
		WHEN $3::bool OR attempts >= max_attempts THEN 'failed'
		ELSE 'pending'
	END,
	scheduled_at = CASE
		WHEN $3::bool OR attempts >= max_attempts THEN scheduled_at
		ELSE now() + make_interval(mins => attempts * attempts)
	END,
	error_message = $2,
	completed_at = CASE WHEN $3::bool OR attempts >= max_attempts THEN now() ELSE NULL END,
	updated_at = now()
WHERE id = $1`

func (q *Queries) UpdateJobFailed(ctx context.Context, arg UpdateJobFailedParams) error {
	_, err := q.db.ExecContext(ctx, updateJobFailed, arg.ID, arg.ErrorMessage, arg.Permanent)
	return err
}

const recoverStaleJobs = `
UPDATE jobs
SET status = 'pending', updated_at = now()
WHERE status = 'running'
  AND started_at < now() - make_interval(secs => $1)`

// RecoverStaleJobs resets jobs stuck in 'running' longer than the given
// threshold (seconds), typically after a worker crash.
func (q *Queries) RecoverStaleJobs(ctx context.Context, thresholdSeconds float64) (int64, error) {
	res, err := q.db.ExecContext(ctx, recoverStaleJobs, thresholdSeconds)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

const getJobByID = `SELECT ` + jobColumns + ` FROM jobs WHERE id = $1`

func (q *Queries) GetJobByID(ctx context.Context, id uuid.UUID) (Job, error) {
	return scanJob(q.db.QueryRowContext(ctx, getJobByID, id))
}

// JobStatusCount is one row of CountJobsByStatus.
type JobStatusCount struct {
	Status string
	Count  int64
}

const countJobsByStatus = `SELECT status, count(*) FROM jobs GROUP BY status`

// CountJobsByStatus returns job counts per status (for metrics).
func (q *Queries) CountJobsByStatus(ctx context.Context) ([]JobStatusCount, error) {
	rows, err := q.db.QueryContext(ctx, countJobsByStatus)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []JobStatusCount
	for rows.Next() {
		var jc JobStatusCount
		if err := rows.Scan(&jc.Status, &jc.Count); err != nil {
			return nil, err
		}
		out = append(out, jc)
	}
	return out, rows.Err()
}

const existsScheduledJob = `
SELECT EXISTS (
	SELECT 1 FROM jobs
	WHERE job_type = $1 AND status IN ('pending', 'running') AND scheduled_at >= $2
)`

// ExistsScheduledJob reports whether a pending or running job of the given
// type is already scheduled at or after the given time. Used to keep
// recurring jobs singleton.
func (q *Queries) ExistsScheduledJob(ctx context.Context, jobType string, notBefore time.Time) (bool, error) {
	var exists bool
	err := q.db.QueryRowContext(ctx, existsScheduledJob, jobType, notBefore).Scan(&exists)
	return exists, err
}
