// Package service contains the business logic layer.
//
// This file implements the session service: CRUD for coaching sessions plus
// the operations that hang off a session - audio upload, transcript upload,
// speaker role assignment, and requesting transcription/analysis jobs.
package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kaiwahq/kaiwa/internal/domain"
	"github.com/kaiwahq/kaiwa/internal/repository"
	"github.com/kaiwahq/kaiwa/internal/storage"
	"github.com/kaiwahq/kaiwa/internal/transcript"
	"github.com/kaiwahq/kaiwa/internal/worker"
)

// audioURLTTL is how long presigned audio download links stay valid.
const audioURLTTL = 15 * time.Minute

// =============================================================================
// Interface Definition
// =============================================================================

// SessionService defines the interface for coaching session operations.
type SessionService interface {
	// Create creates a new session. Counts toward the monthly session limit;
	// returns *domain.QuotaError when the plan's budget is exhausted.
	Create(ctx context.Context, params domain.CreateSessionParams) (*domain.CoachingSession, error)

	// GetByID retrieves a session by ID and user ID (for authorization).
	// Returns domain.ENOTFOUND if session does not exist or isn't the user's.
	GetByID(ctx context.Context, id, userID uuid.UUID) (*domain.CoachingSession, error)

	// List retrieves a paginated list of sessions, optionally filtered by client.
	List(ctx context.Context, params domain.ListSessionsParams) (*domain.ListSessionsResult, error)

	// Update updates a session's editable fields.
	Update(ctx context.Context, params domain.UpdateSessionParams) error

	// Delete deletes a session, its transcript segments, and its stored audio.
	Delete(ctx context.Context, id, userID uuid.UUID) error

	// =========================================================================
	// Audio
	// =========================================================================

	// AttachAudio stores an uploaded audio file and links it to the session.
	// Enforces the tier's per-file size cap and the allowed audio MIME types.
	// Replacing existing audio deletes the old file; any existing transcript
	// remains until a new transcription is requested.
	AttachAudio(ctx context.Context, params domain.AttachAudioParams, data io.Reader) (*domain.CoachingSession, error)

	// AudioURL returns a time-limited download URL for the session's audio.
	AudioURL(ctx context.Context, id, userID uuid.UUID) (string, error)

	// =========================================================================
	// Transcript
	// =========================================================================

	// RequestTranscription enqueues a speech-to-text job for the session's
	// audio. Checks the monthly transcription budgets first; the session's
	// declared duration is the minute estimate charged against the budget.
	RequestTranscription(ctx context.Context, id, userID uuid.UUID) error

	// UploadTranscript parses an uploaded transcript file (VTT, SRT, or
	// plain text) and replaces the session's segments. Does not count
	// against the transcription budget - the user did the work.
	UploadTranscript(ctx context.Context, id, userID uuid.UUID, filename string, content []byte) (*domain.Transcript, error)

	// GetTranscript returns the session's ordered transcript segments.
	GetTranscript(ctx context.Context, id, userID uuid.UUID) (*domain.Transcript, error)

	// AssignSpeakerRoles maps diarization labels to coach/client roles
	// across all of the session's segments.
	AssignSpeakerRoles(ctx context.Context, params domain.AssignSpeakerRolesParams) error

	// =========================================================================
	// Analysis
	// =========================================================================

	// RequestAnalysis enqueues an AI analysis job for the session's
	// transcript. Checks the monthly analysis budget first.
	RequestAnalysis(ctx context.Context, id, userID uuid.UUID) error

	// GetAnalysis returns the stored AI analysis for the session.
	// Returns domain.ENOTFOUND if no analysis has been run.
	GetAnalysis(ctx context.Context, id, userID uuid.UUID) (*domain.SessionAnalysis, error)

	// RequestReport enqueues a report generation job ("pdf" or "docx").
	RequestReport(ctx context.Context, id, userID uuid.UUID, format string) error
}

// =============================================================================
// Implementation
// =============================================================================

type sessionService struct {
	db      *sql.DB
	queries *repository.Queries
	store   storage.Storage
	limits  LimitService
	usage   UsageService
	logger  *slog.Logger
}

// NewSessionService creates a new SessionService.
//
// The raw *sql.DB is needed alongside the queries because transcript
// replacement runs delete+insert in one transaction.
func NewSessionService(
	db *sql.DB,
	queries *repository.Queries,
	store storage.Storage,
	limits LimitService,
	usage UsageService,
	logger *slog.Logger,
) SessionService {
	return &sessionService{
		db:      db,
		queries: queries,
		store:   store,
		limits:  limits,
		usage:   usage,
		logger:  logger,
	}
}

// =============================================================================
// Create
// =============================================================================

// Create creates a new session after checking the plan's session budget.
func (s *sessionService) Create(ctx context.Context, params domain.CreateSessionParams) (*domain.CoachingSession, error) {
	const op = "session.create"

	if err := validateSessionFields(params.Title, params.DurationMinutes); err != nil {
		return nil, err
	}

	user, err := s.getUser(ctx, op, params.UserID)
	if err != nil {
		return nil, err
	}
	if err := s.limits.CheckSessionCreate(ctx, user); err != nil {
		return nil, err
	}

	// A linked client must belong to the same coach.
	if params.ClientID != nil {
		_, err := s.queries.GetClientByIDAndUserID(ctx, *params.ClientID, params.UserID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, domain.NotFound(op, "client", params.ClientID.String())
			}
			return nil, domain.Internal(err, op, "failed to verify client")
		}
	}

	row, err := s.queries.CreateSession(ctx, repository.CreateSessionParams{
		UserID:          params.UserID,
		ClientID:        domain.ToNullUUID(params.ClientID),
		Title:           strings.TrimSpace(params.Title),
		SessionDate:     params.SessionDate,
		DurationMinutes: params.DurationMinutes,
		Notes:           domain.ToNullString(params.Notes),
	})
	if err != nil {
		return nil, domain.Internal(err, op, "failed to create session")
	}

	if err := s.usage.Record(ctx, params.UserID, domain.UsageKindSession, 1); err != nil {
		// The session exists; a missing usage record under-counts but must
		// not fail the request.
		s.logger.Error("failed to record session usage", "session_id", row.ID, "error", err)
	}

	session := rowToSession(row)

	s.logger.Info("session created",
		"session_id", session.ID,
		"user_id", params.UserID,
		"title", session.Title,
	)

	return session, nil
}

// =============================================================================
// GetByID / List
// =============================================================================

// GetByID retrieves a session with its client name and segment count.
func (s *sessionService) GetByID(ctx context.Context, id, userID uuid.UUID) (*domain.CoachingSession, error) {
	const op = "session.get"

	row, err := s.queries.GetSessionDetail(ctx, id, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.NotFound(op, "session", id.String())
		}
		return nil, domain.Internal(err, op, "failed to get session")
	}

	session := rowToSession(row.CoachingSession)
	session.ClientName = domain.NullStringValue(row.ClientName)
	session.SegmentCount = int(row.SegmentCount)
	return session, nil
}

// List retrieves a paginated list of sessions.
func (s *sessionService) List(ctx context.Context, params domain.ListSessionsParams) (*domain.ListSessionsResult, error) {
	const op = "session.list"

	if params.Limit <= 0 {
		params.Limit = 20
	}
	if params.Offset < 0 {
		params.Offset = 0
	}

	clientID := domain.ToNullUUID(params.ClientID)

	total, err := s.queries.CountSessions(ctx, params.UserID, clientID)
	if err != nil {
		return nil, domain.Internal(err, op, "failed to count sessions")
	}

	rows, err := s.queries.ListSessions(ctx, repository.ListSessionsParams{
		UserID:   params.UserID,
		ClientID: clientID,
		Limit:    params.Limit,
		Offset:   params.Offset,
	})
	if err != nil {
		return nil, domain.Internal(err, op, "failed to list sessions")
	}

	sessions := make([]domain.CoachingSession, 0, len(rows))
	for _, row := range rows {
		session := rowToSession(row.CoachingSession)
		session.ClientName = domain.NullStringValue(row.ClientName)
		session.SegmentCount = int(row.SegmentCount)
		sessions = append(sessions, *session)
	}

	return &domain.ListSessionsResult{
		Sessions: sessions,
		Total:    total,
		Limit:    params.Limit,
		Offset:   params.Offset,
	}, nil
}

// =============================================================================
// Update / Delete
// =============================================================================

// Update updates a session's editable fields.
func (s *sessionService) Update(ctx context.Context, params domain.UpdateSessionParams) error {
	const op = "session.update"

	if err := validateSessionFields(params.Title, params.DurationMinutes); err != nil {
		return err
	}

	if _, err := s.getOwnedSession(ctx, op, params.ID, params.UserID); err != nil {
		return err
	}

	if params.ClientID != nil {
		_, err := s.queries.GetClientByIDAndUserID(ctx, *params.ClientID, params.UserID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return domain.NotFound(op, "client", params.ClientID.String())
			}
			return domain.Internal(err, op, "failed to verify client")
		}
	}

	err := s.queries.UpdateSession(ctx, repository.UpdateSessionParams{
		ID:              params.ID,
		UserID:          params.UserID,
		ClientID:        domain.ToNullUUID(params.ClientID),
		Title:           strings.TrimSpace(params.Title),
		SessionDate:     params.SessionDate,
		DurationMinutes: params.DurationMinutes,
		Notes:           domain.ToNullString(params.Notes),
	})
	if err != nil {
		return domain.Internal(err, op, "failed to update session")
	}

	s.logger.Info("session updated", "session_id", params.ID, "user_id", params.UserID)
	return nil
}

// Delete deletes a session. Transcript segments go with it via the foreign
// key cascade; stored audio is removed best-effort.
func (s *sessionService) Delete(ctx context.Context, id, userID uuid.UUID) error {
	const op = "session.delete"

	session, err := s.getOwnedSession(ctx, op, id, userID)
	if err != nil {
		return err
	}

	if err := s.queries.DeleteSession(ctx, id, userID); err != nil {
		return domain.Internal(err, op, "failed to delete session")
	}

	if session.AudioKey.Valid {
		if err := s.store.Delete(ctx, session.AudioKey.String); err != nil {
			s.logger.Warn("failed to delete session audio", "session_id", id, "key", session.AudioKey.String, "error", err)
		}
	}

	s.logger.Info("session deleted", "session_id", id, "user_id", userID)
	return nil
}

// =============================================================================
// Audio
// =============================================================================

// AttachAudio stores an uploaded audio file and links it to the session.
func (s *sessionService) AttachAudio(ctx context.Context, params domain.AttachAudioParams, data io.Reader) (*domain.CoachingSession, error) {
	const op = "session.attach_audio"

	session, err := s.getOwnedSession(ctx, op, params.SessionID, params.UserID)
	if err != nil {
		return nil, err
	}

	if !storage.IsAllowedAudioType(params.ContentType) {
		return nil, domain.Invalid(op, "unsupported audio type: "+params.ContentType)
	}

	user, err := s.getUser(ctx, op, params.UserID)
	if err != nil {
		return nil, err
	}
	if err := s.limits.CheckAudioSize(user, params.Size); err != nil {
		return nil, err
	}

	key := storage.AudioKey(params.SessionID, params.Filename)
	err = s.store.Put(ctx, key, data, storage.PutOptions{
		ContentType: params.ContentType,
		MaxSize:     params.Size,
	})
	if err != nil {
		return nil, domain.Internal(err, op, "failed to store audio")
	}

	err = s.queries.UpdateSessionAudio(ctx, params.SessionID,
		sql.NullString{String: key, Valid: true},
		sql.NullInt64{Int64: params.Size, Valid: true})
	if err != nil {
		// Roll back the upload so we don't leak an orphaned object.
		if delErr := s.store.Delete(ctx, key); delErr != nil {
			s.logger.Warn("failed to clean up orphaned audio", "key", key, "error", delErr)
		}
		return nil, domain.Internal(err, op, "failed to link audio")
	}

	// Replacing audio invalidates any transcript derived from the old file.
	oldKey := domain.NullStringValue(session.AudioKey)
	if oldKey != "" && oldKey != key {
		if err := s.store.Delete(ctx, oldKey); err != nil {
			s.logger.Warn("failed to delete replaced audio", "key", oldKey, "error", err)
		}
	}

	s.logger.Info("audio attached",
		"session_id", params.SessionID,
		"user_id", params.UserID,
		"bytes", params.Size,
		"content_type", params.ContentType,
	)

	return s.GetByID(ctx, params.SessionID, params.UserID)
}

// AudioURL returns a time-limited download URL for the session's audio.
func (s *sessionService) AudioURL(ctx context.Context, id, userID uuid.UUID) (string, error) {
	const op = "session.audio_url"

	session, err := s.getOwnedSession(ctx, op, id, userID)
	if err != nil {
		return "", err
	}

	if !session.AudioKey.Valid {
		return "", domain.NotFound(op, "audio", id.String())
	}

	url, err := s.store.URL(ctx, session.AudioKey.String, audioURLTTL)
	if err != nil {
		return "", domain.Internal(err, op, "failed to build audio URL")
	}
	return url, nil
}

// =============================================================================
// Transcript
// =============================================================================

// RequestTranscription enqueues a speech-to-text job for the session.
func (s *sessionService) RequestTranscription(ctx context.Context, id, userID uuid.UUID) error {
	const op = "session.request_transcription"

	row, err := s.getOwnedSession(ctx, op, id, userID)
	if err != nil {
		return err
	}
	session := rowToSession(row)

	if !session.CanTranscribe() {
		if !session.HasAudio() {
			return domain.Invalid(op, "session has no audio to transcribe")
		}
		return domain.Conflict(op, "a transcription is already in progress")
	}

	user, err := s.getUser(ctx, op, userID)
	if err != nil {
		return err
	}
	// The declared session length is the minute estimate charged against
	// the budget; the job records actual audio minutes on completion.
	if err := s.limits.CheckTranscription(ctx, user, int64(session.DurationMinutes)); err != nil {
		return err
	}

	if err := s.queries.UpdateSessionTranscriptionStatus(ctx, id, domain.TranscriptionStatusPending.String()); err != nil {
		return domain.Internal(err, op, "failed to update transcription status")
	}

	_, err = worker.EnqueueTranscribeSession(ctx, s.queries, id, userID, worker.WithPriority(worker.PriorityHigh))
	if err != nil {
		// Put the session back so the user can retry.
		if stErr := s.queries.UpdateSessionTranscriptionStatus(ctx, id, session.TranscriptionStatus.String()); stErr != nil {
			s.logger.Error("failed to revert transcription status", "session_id", id, "error", stErr)
		}
		return domain.Internal(err, op, "failed to enqueue transcription")
	}

	s.logger.Info("transcription requested", "session_id", id, "user_id", userID)
	return nil
}

// UploadTranscript parses a transcript file and replaces the session's segments.
func (s *sessionService) UploadTranscript(ctx context.Context, id, userID uuid.UUID, filename string, content []byte) (*domain.Transcript, error) {
	const op = "session.upload_transcript"

	row, err := s.getOwnedSession(ctx, op, id, userID)
	if err != nil {
		return nil, err
	}

	status := domain.TranscriptionStatus(row.TranscriptionStatus)
	if !status.CanTransitionTo(domain.TranscriptionStatusCompleted) && status != domain.TranscriptionStatusCompleted {
		return nil, domain.Conflict(op, "a transcription job is in progress; wait for it to finish")
	}

	format := transcript.DetectFormat(filename, content)
	segments, err := transcript.Parse(format, content)
	if err != nil {
		return nil, err
	}

	if err := s.replaceSegments(ctx, id, segments); err != nil {
		return nil, domain.Internal(err, op, "failed to store transcript")
	}

	if err := s.queries.UpdateSessionTranscriptionStatus(ctx, id, domain.TranscriptionStatusCompleted.String()); err != nil {
		return nil, domain.Internal(err, op, "failed to update transcription status")
	}

	s.logger.Info("transcript uploaded",
		"session_id", id,
		"user_id", userID,
		"format", format,
		"segments", len(segments),
	)

	return s.GetTranscript(ctx, id, userID)
}

// GetTranscript returns the session's ordered transcript segments.
func (s *sessionService) GetTranscript(ctx context.Context, id, userID uuid.UUID) (*domain.Transcript, error) {
	const op = "session.get_transcript"

	if _, err := s.getOwnedSession(ctx, op, id, userID); err != nil {
		return nil, err
	}

	rows, err := s.queries.ListTranscriptSegmentsBySessionID(ctx, id)
	if err != nil {
		return nil, domain.Internal(err, op, "failed to load transcript")
	}

	t := &domain.Transcript{SessionID: id, Segments: make([]domain.TranscriptSegment, 0, len(rows))}
	for _, row := range rows {
		t.Segments = append(t.Segments, domain.TranscriptSegment{
			ID:           row.ID,
			SessionID:    row.SessionID,
			SegmentIndex: row.SegmentIndex,
			StartMs:      row.StartMs,
			EndMs:        row.EndMs,
			SpeakerLabel: domain.NullStringValue(row.SpeakerLabel),
			SpeakerRole:  domain.SpeakerRole(row.SpeakerRole),
			Text:         row.Text,
			CreatedAt:    row.CreatedAt,
		})
	}
	return t, nil
}

// AssignSpeakerRoles maps diarization labels to coach/client roles.
func (s *sessionService) AssignSpeakerRoles(ctx context.Context, params domain.AssignSpeakerRolesParams) error {
	const op = "session.assign_speaker_roles"

	if len(params.Roles) == 0 {
		return domain.Invalid(op, "no role assignments given")
	}
	for label, role := range params.Roles {
		if label == "" {
			return domain.Invalid(op, "speaker label must not be empty")
		}
		if !role.IsValid() {
			return domain.Invalid(op, "unknown speaker role: "+string(role))
		}
	}

	if _, err := s.getOwnedSession(ctx, op, params.SessionID, params.UserID); err != nil {
		return err
	}

	for label, role := range params.Roles {
		n, err := s.queries.UpdateSpeakerRoleForLabel(ctx, params.SessionID, label, string(role))
		if err != nil {
			return domain.Internal(err, op, "failed to assign speaker role")
		}
		if n == 0 {
			return domain.NotFound(op, "speaker label", label)
		}
	}

	s.logger.Info("speaker roles assigned",
		"session_id", params.SessionID,
		"user_id", params.UserID,
		"labels", len(params.Roles),
	)
	return nil
}

// =============================================================================
// Analysis
// =============================================================================

// RequestAnalysis enqueues an AI analysis job for the session.
func (s *sessionService) RequestAnalysis(ctx context.Context, id, userID uuid.UUID) error {
	const op = "session.request_analysis"

	row, err := s.getOwnedSession(ctx, op, id, userID)
	if err != nil {
		return err
	}
	session := rowToSession(row)

	if !session.CanAnalyze() {
		return domain.Invalid(op, "session has no transcript to analyze")
	}

	user, err := s.getUser(ctx, op, userID)
	if err != nil {
		return err
	}
	if err := s.limits.CheckAnalysis(ctx, user); err != nil {
		return err
	}

	_, err = worker.EnqueueAnalyzeSession(ctx, s.queries, id, userID, worker.WithPriority(worker.PriorityHigh))
	if err != nil {
		return domain.Internal(err, op, "failed to enqueue analysis")
	}

	s.logger.Info("analysis requested", "session_id", id, "user_id", userID)
	return nil
}

// GetAnalysis returns the stored AI analysis for the session.
func (s *sessionService) GetAnalysis(ctx context.Context, id, userID uuid.UUID) (*domain.SessionAnalysis, error) {
	const op = "session.get_analysis"

	row, err := s.getOwnedSession(ctx, op, id, userID)
	if err != nil {
		return nil, err
	}

	if !row.Analysis.Valid {
		return nil, domain.NotFound(op, "analysis", id.String())
	}

	var analysis domain.SessionAnalysis
	if err := json.Unmarshal(row.Analysis.RawMessage, &analysis); err != nil {
		return nil, domain.Internal(err, op, "failed to decode analysis")
	}
	return &analysis, nil
}

// RequestReport enqueues a report generation job.
func (s *sessionService) RequestReport(ctx context.Context, id, userID uuid.UUID, format string) error {
	const op = "session.request_report"

	if format != "pdf" && format != "docx" {
		return domain.Invalid(op, "report format must be pdf or docx")
	}

	if _, err := s.getOwnedSession(ctx, op, id, userID); err != nil {
		return err
	}

	_, err := worker.EnqueueGenerateReport(ctx, s.queries, id, userID, format)
	if err != nil {
		return domain.Internal(err, op, "failed to enqueue report")
	}

	s.logger.Info("report requested", "session_id", id, "user_id", userID, "format", format)
	return nil
}

// =============================================================================
// Helper Functions
// =============================================================================

// getOwnedSession fetches a session and enforces ownership.
func (s *sessionService) getOwnedSession(ctx context.Context, op string, id, userID uuid.UUID) (repository.CoachingSession, error) {
	row, err := s.queries.GetSessionByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return repository.CoachingSession{}, domain.NotFound(op, "session", id.String())
		}
		return repository.CoachingSession{}, domain.Internal(err, op, "failed to get session")
	}
	if row.UserID != userID {
		// Same response as missing; don't leak other users' session IDs.
		return repository.CoachingSession{}, domain.NotFound(op, "session", id.String())
	}
	return row, nil
}

// getUser loads the domain user for limit checks.
func (s *sessionService) getUser(ctx context.Context, op string, userID uuid.UUID) (*domain.User, error) {
	row, err := s.queries.GetUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.NotFound(op, "user", userID.String())
		}
		return nil, domain.Internal(err, op, "failed to retrieve user")
	}
	return repoUserToDomain(row), nil
}

// replaceSegments swaps the session's transcript in one transaction.
func (s *sessionService) replaceSegments(ctx context.Context, sessionID uuid.UUID, segments []domain.NewSegmentParams) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	qtx := s.queries.WithTx(tx)

	if err := qtx.DeleteTranscriptSegmentsBySessionID(ctx, sessionID); err != nil {
		return err
	}
	for _, seg := range segments {
		err := qtx.InsertTranscriptSegment(ctx, repository.InsertTranscriptSegmentParams{
			SessionID:    sessionID,
			SegmentIndex: seg.SegmentIndex,
			StartMs:      seg.StartMs,
			EndMs:        seg.EndMs,
			SpeakerLabel: domain.ToNullString(seg.SpeakerLabel),
			SpeakerRole:  string(domain.SpeakerRoleUnassigned),
			Text:         seg.Text,
		})
		if err != nil {
			return err
		}
	}

	return tx.Commit()
}

// validateSessionFields checks the shared create/update invariants.
func validateSessionFields(title string, durationMinutes int32) error {
	const op = "session.validate"

	title = strings.TrimSpace(title)
	if title == "" {
		return domain.Invalid(op, "title is required")
	}
	if len(title) > 255 {
		return domain.Invalid(op, "title must be 255 characters or less")
	}
	if durationMinutes <= 0 {
		return domain.Invalid(op, "duration must be positive")
	}
	if durationMinutes > 24*60 {
		return domain.Invalid(op, "duration must be 24 hours or less")
	}
	return nil
}

// rowToSession converts a repository session row to a domain CoachingSession.
func rowToSession(row repository.CoachingSession) *domain.CoachingSession {
	var clientID *uuid.UUID
	if row.ClientID.Valid {
		id := row.ClientID.UUID
		clientID = &id
	}

	return &domain.CoachingSession{
		ID:                  row.ID,
		UserID:              row.UserID,
		ClientID:            clientID,
		Title:               row.Title,
		SessionDate:         row.SessionDate,
		DurationMinutes:     row.DurationMinutes,
		Notes:               domain.NullStringValue(row.Notes),
		AudioKey:            domain.NullStringValue(row.AudioKey),
		AudioBytes:          row.AudioBytes.Int64,
		TranscriptionStatus: domain.TranscriptionStatus(row.TranscriptionStatus),
		AnalyzedAt:          domain.NullTimeValue(row.AnalyzedAt),
		CreatedAt:           row.CreatedAt,
		UpdatedAt:           row.UpdatedAt,
	}
}

// Ensure sessionService implements SessionService
var _ SessionService = (*sessionService)(nil)
