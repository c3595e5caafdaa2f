package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// InsertUsageRecordParams holds the inputs for InsertUsageRecord.
type InsertUsageRecordParams struct {
	UserID     uuid.UUID
	Kind       string
	Amount     int64
	RecordedAt time.Time
}

const insertUsageRecord = `
INSERT INTO usage_records (user_id, kind, amount, recorded_at)
VALUES ($1, $2, $3, $4)`

func (q *Queries) InsertUsageRecord(ctx context.Context, arg InsertUsageRecordParams) error {
	_, err := q.db.ExecContext(ctx, insertUsageRecord,
		arg.UserID, arg.Kind, arg.Amount, arg.RecordedAt)
	return err
}

// MonthlyUsageRow aggregates a user's usage within a period.
type MonthlyUsageRow struct {
	Sessions             int64
	Transcriptions       int64
	TranscriptionMinutes int64
	Analyses             int64
}

const getUsageInPeriod = `
SELECT
	coalesce(sum(amount) FILTER (WHERE kind = 'session'), 0),
	coalesce(sum(amount) FILTER (WHERE kind = 'transcription'), 0),
	coalesce(sum(amount) FILTER (WHERE kind = 'transcription_minutes'), 0),
	coalesce(sum(amount) FILTER (WHERE kind = 'analysis'), 0)
FROM usage_records
WHERE user_id = $1 AND recorded_at >= $2 AND recorded_at < $3`

// GetUsageInPeriod aggregates a user's usage counters for [start, end).
func (q *Queries) GetUsageInPeriod(ctx context.Context, userID uuid.UUID, start, end time.Time) (MonthlyUsageRow, error) {
	var u MonthlyUsageRow
	err := q.db.QueryRowContext(ctx, getUsageInPeriod, userID, start, end).Scan(
		&u.Sessions, &u.Transcriptions, &u.TranscriptionMinutes, &u.Analyses)
	return u, err
}

const listUserIDsWithUsageInPeriod = `
SELECT DISTINCT user_id FROM usage_records
WHERE recorded_at >= $1 AND recorded_at < $2`

// ListUserIDsWithUsageInPeriod returns users who recorded any usage in
// [start, end). Used by the monthly close-out job.
func (q *Queries) ListUserIDsWithUsageInPeriod(ctx context.Context, start, end time.Time) ([]uuid.UUID, error) {
	rows, err := q.db.QueryContext(ctx, listUserIDsWithUsageInPeriod, start, end)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// UpsertUsageSummaryParams holds the inputs for UpsertUsageSummary.
type UpsertUsageSummaryParams struct {
	UserID               uuid.UUID
	PeriodStart          time.Time
	Sessions             int64
	Transcriptions       int64
	TranscriptionMinutes int64
	Analyses             int64
}

const upsertUsageSummary = `
INSERT INTO usage_summaries (user_id, period_start, sessions, transcriptions, transcription_minutes, analyses)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (user_id, period_start) DO UPDATE
SET sessions = EXCLUDED.sessions,
    transcriptions = EXCLUDED.transcriptions,
    transcription_minutes = EXCLUDED.transcription_minutes,
    analyses = EXCLUDED.analyses,
    closed_at = now()`

// UpsertUsageSummary records the final counters for a closed month.
// Re-running the close-out job for the same month is a no-op overwrite.
func (q *Queries) UpsertUsageSummary(ctx context.Context, arg UpsertUsageSummaryParams) error {
	_, err := q.db.ExecContext(ctx, upsertUsageSummary,
		arg.UserID, arg.PeriodStart, arg.Sessions, arg.Transcriptions,
		arg.TranscriptionMinutes, arg.Analyses)
	return err
}

const getUsageSummary = `
SELECT id, user_id, period_start, sessions, transcriptions, transcription_minutes, analyses, closed_at
FROM usage_summaries
WHERE user_id = $1 AND period_start = $2`

func (q *Queries) GetUsageSummary(ctx context.Context, userID uuid.UUID, periodStart time.Time) (UsageSummary, error) {
	var s UsageSummary
	err := q.db.QueryRowContext(ctx, getUsageSummary, userID, periodStart).Scan(
		&s.ID, &s.UserID, &s.PeriodStart, &s.Sessions, &s.Transcriptions,
		&s.TranscriptionMinutes, &s.Analyses, &s.ClosedAt)
	return s, err
}
