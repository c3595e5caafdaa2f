package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/sqlc-dev/pqtype"
)

const sessionColumns = `id, user_id, client_id, title, session_date, duration_minutes,
	notes, audio_key, audio_bytes, transcription_status, analysis, analyzed_at,
	created_at, updated_at`

func scanSession(row interface{ Scan(...interface{}) error }) (CoachingSession, error) {
	var s CoachingSession
	err := row.Scan(
		&s.ID,
		&s.UserID,
		&s.ClientID,
		&s.Title,
		&s.SessionDate,
		&s.DurationMinutes,
		&s.Notes,
		&s.AudioKey,
		&s.AudioBytes,
		&s.TranscriptionStatus,
		&s.Analysis,
		&s.AnalyzedAt,
		&s.CreatedAt,
		&s.UpdatedAt,
	)
	return s, err
}

// CreateSessionParams holds the inputs for CreateSession.
type CreateSessionParams struct {
	UserID          uuid.UUID
	ClientID        uuid.NullUUID
	Title           string
	SessionDate     time.Time
	DurationMinutes int32
	Notes           sql.NullString
}

const createSession = `
INSERT INTO coaching_sessions (user_id, client_id, title, session_date, duration_minutes, notes)
VALUES ($1, $2, $3, $4, $5, $6)
RETURNING ` + sessionColumns

func (q *Queries) CreateSession(ctx context.Context, arg CreateSessionParams) (CoachingSession, error) {
	row := q.db.QueryRowContext(ctx, createSession,
		arg.UserID, arg.ClientID, arg.Title, arg.SessionDate, arg.DurationMinutes, arg.Notes)
	return scanSession(row)
}

const getSessionByID = `SELECT ` + sessionColumns + ` FROM coaching_sessions WHERE id = $1`

// GetSessionByID fetches a session without an ownership check.
// Only for internal use (job handlers); handlers must use GetSessionByIDAndUserID.
func (q *Queries) GetSessionByID(ctx context.Context, id uuid.UUID) (CoachingSession, error) {
	return scanSession(q.db.QueryRowContext(ctx, getSessionByID, id))
}

// SessionDetail is a session row joined with client name and segment count.
type SessionDetail struct {
	CoachingSession
	ClientName   sql.NullString
	SegmentCount int64
}

const getSessionDetail = `
SELECT s.id, s.user_id, s.client_id, s.title, s.session_date, s.duration_minutes,
       s.notes, s.audio_key, s.audio_bytes, s.transcription_status, s.analysis,
       s.analyzed_at, s.created_at, s.updated_at,
       c.name AS client_name,
       (SELECT count(*) FROM transcript_segments t WHERE t.session_id = s.id) AS segment_count
FROM coaching_sessions s
LEFT JOIN clients c ON c.id = s.client_id
WHERE s.id = $1 AND s.user_id = $2`

func (q *Queries) GetSessionDetail(ctx context.Context, id, userID uuid.UUID) (SessionDetail, error) {
	var s SessionDetail
	err := q.db.QueryRowContext(ctx, getSessionDetail, id, userID).Scan(
		&s.ID, &s.UserID, &s.ClientID, &s.Title, &s.SessionDate, &s.DurationMinutes,
		&s.Notes, &s.AudioKey, &s.AudioBytes, &s.TranscriptionStatus, &s.Analysis,
		&s.AnalyzedAt, &s.CreatedAt, &s.UpdatedAt,
		&s.ClientName, &s.SegmentCount)
	return s, err
}

// ListSessionsParams holds the inputs for ListSessions.
// ClientID filters by client when valid.
type ListSessionsParams struct {
	UserID   uuid.UUID
	ClientID uuid.NullUUID
	Limit    int32
	Offset   int32
}

const listSessions = `
SELECT s.id, s.user_id, s.client_id, s.title, s.session_date, s.duration_minutes,
       s.notes, s.audio_key, s.audio_bytes, s.transcription_status, s.analysis,
       s.analyzed_at, s.created_at, s.updated_at,
       c.name AS client_name,
       (SELECT count(*) FROM transcript_segments t WHERE t.session_id = s.id) AS segment_count
FROM coaching_sessions s
LEFT JOIN clients c ON c.id = s.client_id
WHERE s.user_id = $1 AND ($2::uuid IS NULL OR s.client_id = $2)
ORDER BY s.session_date DESC, s.created_at DESC
LIMIT $3 OFFSET $4`

func (q *Queries) ListSessions(ctx context.Context, arg ListSessionsParams) ([]SessionDetail, error) {
	rows, err := q.db.QueryContext(ctx, listSessions, arg.UserID, arg.ClientID, arg.Limit, arg.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []SessionDetail
	for rows.Next() {
		var s SessionDetail
		if err := rows.Scan(
			&s.ID, &s.UserID, &s.ClientID, &s.Title, &s.SessionDate, &s.DurationMinutes,
			&s.Notes, &s.AudioKey, &s.AudioBytes, &s.TranscriptionStatus, &s.Analysis,
			&s.AnalyzedAt, &s.CreatedAt, &s.UpdatedAt,
			&s.ClientName, &s.SegmentCount); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

const countSessions = `
SELECT count(*) FROM coaching_sessions
WHERE user_id = $1 AND ($2::uuid IS NULL OR client_id = $2)`

func (q *Queries) CountSessions(ctx context.Context, userID uuid.UUID, clientID uuid.NullUUID) (int64, error) {
	var n int64
	err := q.db.QueryRowContext(ctx, countSessions, userID, clientID).Scan(&n)
	return n, err
}

// UpdateSessionParams holds the inputs for UpdateSession.
type UpdateSessionParams struct {
	ID              uuid.UUID
	UserID          uuid.UUID
	ClientID        uuid.NullUUID
	Title           string
	SessionDate     time.Time
	DurationMinutes int32
	Notes           sql.NullString
}

const updateSession = `
UPDATE coaching_sessions
SET client_id = $3, title = $4, session_date = $5, duration_minutes = $6,
    notes = $7, updated_at = now()
WHERE id = $1 AND user_id = $2`

func (q *Queries) UpdateSession(ctx context.Context, arg UpdateSessionParams) error {
	_, err := q.db.ExecContext(ctx, updateSession,
		arg.ID, arg.UserID, arg.ClientID, arg.Title, arg.SessionDate, arg.DurationMinutes, arg.Notes)
	return err
}

const deleteSession = `DELETE FROM coaching_sessions WHERE id = $1 AND user_id = $2`

func (q *Queries) DeleteSession(ctx context.Context, id, userID uuid.UUID) error {
	_, err := q.db.ExecContext(ctx, deleteSession, id, userID)
	return err
}

const updateSessionAudio = `
UPDATE coaching_sessions
SET audio_key = $2, audio_bytes = $3, updated_at = now()
WHERE id = $1`

func (q *Queries) UpdateSessionAudio(ctx context.Context, id uuid.UUID, audioKey sql.NullString, audioBytes sql.NullInt64) error {
	_, err := q.db.ExecContext(ctx, updateSessionAudio, id, audioKey, audioBytes)
	return err
}

const updateSessionTranscriptionStatus = `
UPDATE coaching_sessions
SET transcription_status = $2, updated_at = now()
WHERE id = $1`

func (q *Queries) UpdateSessionTranscriptionStatus(ctx context.Context, id uuid.UUID, status string) error {
	_, err := q.db.ExecContext(ctx, updateSessionTranscriptionStatus, id, status)
	return err
}

const updateSessionAnalysis = `
UPDATE coaching_sessions
SET analysis = $2, analyzed_at = now(), updated_at = now()
WHERE id = $1`

func (q *Queries) UpdateSessionAnalysis(ctx context.Context, id uuid.UUID, analysis pqtype.NullRawMessage) error {
	_, err := q.db.ExecContext(ctx, updateSessionAnalysis, id, analysis)
	return err
}
