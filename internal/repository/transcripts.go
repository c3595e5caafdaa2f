package repository

import (
	"context"
	"database/sql"

	"github.com/google/uuid"
)

// InsertTranscriptSegmentParams holds the inputs for InsertTranscriptSegment.
type InsertTranscriptSegmentParams struct {
	SessionID    uuid.UUID
	SegmentIndex int32
	StartMs      int64
	EndMs        int64
	SpeakerLabel sql.NullString
	SpeakerRole  string
	Text         string
}

const insertTranscriptSegment = `
INSERT INTO transcript_segments (session_id, segment_index, start_ms, end_ms, speaker_label, speaker_role, text)
VALUES ($1, $2, $3, $4, $5, $6, $7)`

func (q *Queries) InsertTranscriptSegment(ctx context.Context, arg InsertTranscriptSegmentParams) error {
	_, err := q.db.ExecContext(ctx, insertTranscriptSegment,
		arg.SessionID, arg.SegmentIndex, arg.StartMs, arg.EndMs,
		arg.SpeakerLabel, arg.SpeakerRole, arg.Text)
	return err
}

const deleteTranscriptSegmentsBySessionID = `
DELETE FROM transcript_segments WHERE session_id = $1`

func (q *Queries) DeleteTranscriptSegmentsBySessionID(ctx context.Context, sessionID uuid.UUID) error {
	_, err := q.db.ExecContext(ctx, deleteTranscriptSegmentsBySessionID, sessionID)
	return err
}

const listTranscriptSegmentsBySessionID = `
SELECT id, session_id, segment_index, start_ms, end_ms, speaker_label, speaker_role, text, created_at
FROM transcript_segments
WHERE session_id = $1
ORDER BY segment_index`

func (q *Queries) ListTranscriptSegmentsBySessionID(ctx context.Context, sessionID uuid.UUID) ([]TranscriptSegment, error) {
	rows, err := q.db.QueryContext(ctx, listTranscriptSegmentsBySessionID, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []TranscriptSegment
	for rows.Next() {
		var s TranscriptSegment
		if err := rows.Scan(
			&s.ID, &s.SessionID, &s.SegmentIndex, &s.StartMs, &s.EndMs,
			&s.SpeakerLabel, &s.SpeakerRole, &s.Text, &s.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

const updateSpeakerRoleForLabel = `
UPDATE transcript_segments
SET speaker_role = $3
WHERE session_id = $1 AND speaker_label = $2`

// UpdateSpeakerRoleForLabel assigns a role to every segment spoken by the
// given diarization label. Returns the number of segments updated.
func (q *Queries) UpdateSpeakerRoleForLabel(ctx context.Context, sessionID uuid.UUID, speakerLabel, speakerRole string) (int64, error) {
	res, err := q.db.ExecContext(ctx, updateSpeakerRoleForLabel, sessionID, speakerLabel, speakerRole)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

const countTranscriptSegmentsBySessionID = `
SELECT count(*) FROM transcript_segments WHERE session_id = $1`

func (q *Queries) CountTranscriptSegmentsBySessionID(ctx context.Context, sessionID uuid.UUID) (int64, error) {
	var n int64
	err := q.db.QueryRowContext(ctx, countTranscriptSegmentsBySessionID, sessionID).Scan(&n)
	return n, err
}
