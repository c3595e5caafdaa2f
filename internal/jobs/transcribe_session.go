// Package jobs contains background job handlers for the worker pool.
//
// This file implements the transcription job: it sends a session recording
// to the speech-to-text provider and stores the diarized segments.
package jobs

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/kaiwahq/kaiwa/internal/domain"
	"github.com/kaiwahq/kaiwa/internal/repository"
	"github.com/kaiwahq/kaiwa/internal/service"
	"github.com/kaiwahq/kaiwa/internal/storage"
	"github.com/kaiwahq/kaiwa/internal/stt"
	"github.com/kaiwahq/kaiwa/internal/worker"
)

// audioFetchTTL is how long the presigned audio URL handed to the STT
// provider stays valid. Providers poll the URL, so it must outlive the
// longest expected transcription.
const audioFetchTTL = 2 * time.Hour

// TranscribeSessionHandler processes jobs that transcribe session
// recordings. It hands the audio to the STT provider, stores the diarized
// segments and records transcription usage.
type TranscribeSessionHandler struct {
	db       *sql.DB
	queries  *repository.Queries
	provider stt.Provider
	storage  storage.Storage
	usage    service.UsageService
	logger   *slog.Logger
}

// NewTranscribeSessionHandler creates a new handler for transcription jobs.
func NewTranscribeSessionHandler(
	db *sql.DB,
	queries *repository.Queries,
	provider stt.Provider,
	store storage.Storage,
	usage service.UsageService,
	logger *slog.Logger,
) *TranscribeSessionHandler {
	return &TranscribeSessionHandler{
		db:       db,
		queries:  queries,
		provider: provider,
		storage:  store,
		usage:    usage,
		logger:   logger,
	}
}

// Type returns the job type identifier.
func (h *TranscribeSessionHandler) Type() string {
	return worker.JobTypeTranscribeSession
}

// Handle executes the transcription job.
func (h *TranscribeSessionHandler) Handle(ctx context.Context, payload []byte) error {
	var p worker.TranscribeSessionPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return worker.NewPermanentError(fmt.Errorf("invalid payload: %w", err))
	}

	session, err := h.queries.GetSessionByID(ctx, p.SessionID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return worker.NewPermanentError(fmt.Errorf("session not found: %s", p.SessionID))
		}
		return fmt.Errorf("fetch session: %w", err)
	}
	if session.UserID != p.UserID {
		return worker.NewPermanentError(fmt.Errorf("session %s does not belong to user %s", p.SessionID, p.UserID))
	}
	if !session.AudioKey.Valid {
		return h.fail(ctx, p.SessionID, worker.NewPermanentError(fmt.Errorf("session %s has no audio", p.SessionID)))
	}

	status := domain.TranscriptionStatus(session.TranscriptionStatus)
	switch status {
	case domain.TranscriptionStatusPending:
		if err := h.queries.UpdateSessionTranscriptionStatus(ctx, p.SessionID, domain.TranscriptionStatusProcessing.String()); err != nil {
			return fmt.Errorf("mark session processing: %w", err)
		}
	case domain.TranscriptionStatusProcessing:
		// A previous attempt died mid-flight; pick the job back up.
	default:
		return worker.NewPermanentError(fmt.Errorf(
			"session must be in 'pending' or 'processing' status to transcribe, got: %s", status,
		))
	}

	h.logger.Info("Transcribing session",
		"session_id", p.SessionID,
		"user_id", p.UserID,
		"audio_key", session.AudioKey.String,
	)

	// Hand the provider a presigned URL so the audio never passes through
	// the worker process.
	audioURL, err := h.storage.URL(ctx, session.AudioKey.String, audioFetchTTL)
	if err != nil {
		return fmt.Errorf("presign audio url: %w", err)
	}

	result, err := h.provider.Transcribe(ctx, stt.TranscribeParams{
		AudioURL:    audioURL,
		ContentType: storage.DetectContentType("", session.AudioKey.String, nil),
		SessionID:   p.SessionID,
		UserID:      p.UserID,
	})
	if err != nil {
		if stt.IsRetryable(err) {
			return fmt.Errorf("transcribe session %s: %w", p.SessionID, err)
		}
		return h.fail(ctx, p.SessionID, worker.NewPermanentError(fmt.Errorf("transcribe session %s: %w", p.SessionID, err)))
	}
	if len(result.Segments) == 0 {
		return h.fail(ctx, p.SessionID, worker.NewPermanentError(fmt.Errorf("transcription of session %s produced no segments", p.SessionID)))
	}

	if err := h.storeSegments(ctx, p.SessionID, result.Segments); err != nil {
		return fmt.Errorf("store transcript: %w", err)
	}

	if err := h.queries.UpdateSessionTranscriptionStatus(ctx, p.SessionID, domain.TranscriptionStatusCompleted.String()); err != nil {
		return fmt.Errorf("mark session completed: %w", err)
	}

	h.recordUsage(ctx, p.UserID, result.AudioDurationMs)

	h.logger.Info("Transcription completed",
		"session_id", p.SessionID,
		"segments", len(result.Segments),
		"audio_duration_ms", result.AudioDurationMs,
		"language", result.LanguageCode,
		"provider", result.Usage.Provider,
		"provider_duration", result.Usage.Duration,
	)

	return nil
}

// fail transitions the session to failed before returning the permanent
// error, so the dashboard can offer a retry.
func (h *TranscribeSessionHandler) fail(ctx context.Context, sessionID uuid.UUID, permErr error) error {
	if err := h.queries.UpdateSessionTranscriptionStatus(ctx, sessionID, domain.TranscriptionStatusFailed.String()); err != nil {
		h.logger.Error("Failed to mark session transcription failed",
			"session_id", sessionID,
			"error", err,
		)
	}
	return permErr
}

// storeSegments replaces the session's transcript in one transaction.
// Speaker roles start unassigned; the coach maps diarization labels to
// roles afterwards.
func (h *TranscribeSessionHandler) storeSegments(ctx context.Context, sessionID uuid.UUID, segments []stt.Segment) error {
	tx, err := h.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	qtx := h.queries.WithTx(tx)

	if err := qtx.DeleteTranscriptSegmentsBySessionID(ctx, sessionID); err != nil {
		return err
	}
	for i, seg := range segments {
		err := qtx.InsertTranscriptSegment(ctx, repository.InsertTranscriptSegmentParams{
			SessionID:    sessionID,
			SegmentIndex: int32(i),
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

// recordUsage charges one transcription plus the actual audio minutes,
// rounded up. Usage failures are logged, not fatal: the transcript is
// already stored and re-running the job would double-charge.
func (h *TranscribeSessionHandler) recordUsage(ctx context.Context, userID uuid.UUID, audioDurationMs int64) {
	if err := h.usage.Record(ctx, userID, domain.UsageKindTranscription, 1); err != nil {
		h.logger.Error("Failed to record transcription usage", "user_id", userID, "error", err)
	}

	minutes := (audioDurationMs + 59_999) / 60_000
	if minutes <= 0 {
		return
	}
	if err := h.usage.Record(ctx, userID, domain.UsageKindTranscriptionMinutes, minutes); err != nil {
		h.logger.Error("Failed to record transcription minutes", "user_id", userID, "error", err)
	}
}
