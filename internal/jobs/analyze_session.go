// Package jobs contains background job handlers for the worker pool.
//
// This file implements the analysis job: it runs the AI provider over a
// completed transcript and stores the structured analysis on the session.
package jobs

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/kaiwahq/kaiwa/internal/ai"
	"github.com/kaiwahq/kaiwa/internal/domain"
	"github.com/kaiwahq/kaiwa/internal/repository"
	"github.com/kaiwahq/kaiwa/internal/service"
	"github.com/kaiwahq/kaiwa/internal/worker"
	"github.com/sqlc-dev/pqtype"
)

// AnalyzeSessionHandler processes jobs that analyze transcribed sessions.
// It builds the transcript, calls the AI provider and stores the result as
// JSONB on the session row.
type AnalyzeSessionHandler struct {
	queries    *repository.Queries
	aiProvider ai.AIProvider
	usage      service.UsageService
	logger     *slog.Logger
}

// NewAnalyzeSessionHandler creates a new handler for session analysis jobs.
func NewAnalyzeSessionHandler(
	queries *repository.Queries,
	aiProvider ai.AIProvider,
	usage service.UsageService,
	logger *slog.Logger,
) *AnalyzeSessionHandler {
	return &AnalyzeSessionHandler{
		queries:    queries,
		aiProvider: aiProvider,
		usage:      usage,
		logger:     logger,
	}
}

// Type returns the job type identifier.
func (h *AnalyzeSessionHandler) Type() string {
	return worker.JobTypeAnalyzeSession
}

// Handle executes the analysis job.
func (h *AnalyzeSessionHandler) Handle(ctx context.Context, payload []byte) error {
	var p worker.AnalyzeSessionPayload
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

	status := domain.TranscriptionStatus(session.TranscriptionStatus)
	if status != domain.TranscriptionStatusCompleted {
		return worker.NewPermanentError(fmt.Errorf(
			"session must have a completed transcript to analyze, got status: %s", status,
		))
	}

	transcript, err := h.loadTranscript(ctx, p.SessionID)
	if err != nil {
		return fmt.Errorf("load transcript: %w", err)
	}
	if len(transcript.Segments) == 0 {
		return worker.NewPermanentError(fmt.Errorf("session %s has no transcript segments", p.SessionID))
	}

	// Client goals give the model context for its follow-up suggestions.
	// A session without a client, or with a deleted one, analyzes fine
	// without them.
	var clientGoals string
	if session.ClientID.Valid {
		client, err := h.queries.GetClientByIDAndUserID(ctx, session.ClientID.UUID, p.UserID)
		if err == nil {
			clientGoals = domain.NullStringValue(client.Goals)
		} else if !errors.Is(err, sql.ErrNoRows) {
			h.logger.Warn("Failed to fetch client for analysis context",
				"session_id", p.SessionID,
				"client_id", session.ClientID.UUID,
				"error", err,
			)
		}
	}

	h.logger.Info("Analyzing session",
		"session_id", p.SessionID,
		"user_id", p.UserID,
		"segments", len(transcript.Segments),
	)

	analysis, err := h.aiProvider.AnalyzeSession(ctx, ai.AnalyzeSessionParams{
		Transcript:      transcript,
		SessionTitle:    session.Title,
		ClientGoals:     clientGoals,
		DurationMinutes: session.DurationMinutes,
		SessionID:       p.SessionID,
		UserID:          p.UserID,
	})
	if err != nil {
		if ai.IsRetryable(err) {
			return fmt.Errorf("analyze session %s: %w", p.SessionID, err)
		}
		return worker.NewPermanentError(fmt.Errorf("analyze session %s: %w", p.SessionID, err))
	}

	raw, err := json.Marshal(analysis)
	if err != nil {
		return worker.NewPermanentError(fmt.Errorf("marshal analysis: %w", err))
	}
	err = h.queries.UpdateSessionAnalysis(ctx, p.SessionID, pqtype.NullRawMessage{
		RawMessage: raw,
		Valid:      true,
	})
	if err != nil {
		return fmt.Errorf("store analysis: %w", err)
	}

	if err := h.usage.Record(ctx, p.UserID, domain.UsageKindAnalysis, 1); err != nil {
		// The analysis is stored; re-running the job would double-charge.
		h.logger.Error("Failed to record analysis usage", "user_id", p.UserID, "error", err)
	}

	h.logger.Info("Analysis completed",
		"session_id", p.SessionID,
		"key_topics", len(analysis.KeyTopics),
		"highlights", len(analysis.Highlights),
		"model", analysis.Usage.Model,
		"input_tokens", analysis.Usage.InputTokens,
		"output_tokens", analysis.Usage.OutputTokens,
	)

	return nil
}

// loadTranscript builds the ordered domain transcript for a session.
func (h *AnalyzeSessionHandler) loadTranscript(ctx context.Context, sessionID uuid.UUID) (*domain.Transcript, error) {
	rows, err := h.queries.ListTranscriptSegmentsBySessionID(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	t := &domain.Transcript{SessionID: sessionID, Segments: make([]domain.TranscriptSegment, 0, len(rows))}
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
