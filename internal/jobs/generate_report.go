// Package jobs contains background job handlers for the worker pool.
//
// This file implements the report job: it renders a PDF or DOCX session
// report and uploads it to object storage.
package jobs

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/kaiwahq/kaiwa/internal/domain"
	"github.com/kaiwahq/kaiwa/internal/email"
	"github.com/kaiwahq/kaiwa/internal/report"
	"github.com/kaiwahq/kaiwa/internal/repository"
	"github.com/kaiwahq/kaiwa/internal/storage"
	"github.com/kaiwahq/kaiwa/internal/worker"
)

// GenerateReportHandler processes jobs that generate PDF or DOCX session
// reports. It aggregates the session, transcript and analysis into a
// formatted report and uploads it to storage.
type GenerateReportHandler struct {
	queries      *repository.Queries
	storage      storage.Storage
	emailService email.EmailService
	pdfGen       report.Generator
	docxGen      report.Generator
	logger       *slog.Logger
	baseURL      string
}

// NewGenerateReportHandler creates a new handler for report generation jobs.
func NewGenerateReportHandler(
	queries *repository.Queries,
	store storage.Storage,
	emailService email.EmailService,
	logger *slog.Logger,
	baseURL string,
) *GenerateReportHandler {
	return &GenerateReportHandler{
		queries:      queries,
		storage:      store,
		emailService: emailService,
		pdfGen:       report.NewPDFGenerator(),
		docxGen:      report.NewDOCXGenerator(),
		logger:       logger,
		baseURL:      baseURL,
	}
}

// Type returns the job type identifier.
func (h *GenerateReportHandler) Type() string {
	return worker.JobTypeGenerateReport
}

// Handle executes the report generation job.
func (h *GenerateReportHandler) Handle(ctx context.Context, payload []byte) error {
	var p worker.GenerateReportPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return worker.NewPermanentError(fmt.Errorf("invalid payload: %w", err))
	}

	format := domain.ReportFormat(p.Format)
	if !format.IsValid() {
		return worker.NewPermanentError(fmt.Errorf("invalid format: %s (must be 'pdf' or 'docx')", p.Format))
	}

	h.logger.Info("Generating report",
		"session_id", p.SessionID,
		"user_id", p.UserID,
		"format", p.Format,
	)

	data, err := h.aggregateReportData(ctx, p.SessionID, p.UserID)
	if err != nil {
		return err
	}

	gen := h.pdfGen
	if format == domain.ReportFormatDOCX {
		gen = h.docxGen
	}

	var buf bytes.Buffer
	bytesWritten, err := gen.Generate(ctx, data, &buf)
	if err != nil {
		return fmt.Errorf("generate %s: %w", format, err)
	}

	// One report per session and format; regenerating overwrites.
	storageKey := storage.ReportKey(p.SessionID, p.Format)
	err = h.storage.Put(ctx, storageKey, &buf, storage.PutOptions{
		ContentType: format.ContentType(),
		Overwrite:   true,
	})
	if err != nil {
		return fmt.Errorf("upload report to storage: %w", err)
	}

	h.logger.Info("Report generated",
		"session_id", p.SessionID,
		"storage_key", storageKey,
		"format", format,
		"size_bytes", bytesWritten,
	)

	// Notify the coach. The report is already stored, so an email failure
	// never fails the job.
	if h.emailService != nil && data.CoachEmail != "" {
		reportURL := fmt.Sprintf("%s/sessions/%s/report/%s", h.baseURL, p.SessionID, format)
		err := h.emailService.SendReportReadyEmail(ctx, data.CoachEmail, data.CoachName, reportURL)
		if err != nil {
			h.logger.Error("Failed to send report ready email",
				"session_id", p.SessionID,
				"user_id", p.UserID,
				"error", err,
			)
		}
	}

	return nil
}

// aggregateReportData fetches everything the generators need.
func (h *GenerateReportHandler) aggregateReportData(
	ctx context.Context,
	sessionID uuid.UUID,
	userID uuid.UUID,
) (*domain.ReportData, error) {
	session, err := h.queries.GetSessionByID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, worker.NewPermanentError(fmt.Errorf("session not found: %s", sessionID))
		}
		return nil, fmt.Errorf("fetch session: %w", err)
	}
	if session.UserID != userID {
		return nil, worker.NewPermanentError(fmt.Errorf("session %s does not belong to user %s", sessionID, userID))
	}

	user, err := h.queries.GetUserByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("fetch user: %w", err)
	}

	data := &domain.ReportData{
		CoachName:       user.Name,
		PracticeName:    domain.NullStringValue(user.PracticeName),
		CoachEmail:      user.Email,
		SessionID:       session.ID,
		SessionTitle:    session.Title,
		SessionDate:     session.SessionDate,
		DurationMinutes: session.DurationMinutes,
		Notes:           domain.NullStringValue(session.Notes),
		GeneratedAt:     time.Now(),
	}

	if session.ClientID.Valid {
		client, err := h.queries.GetClientByIDAndUserID(ctx, session.ClientID.UUID, userID)
		if err == nil {
			data.ClientName = client.Name
			data.ClientGoals = domain.NullStringValue(client.Goals)
		} else if !errors.Is(err, sql.ErrNoRows) {
			h.logger.Warn("Failed to fetch client for report",
				"session_id", sessionID,
				"client_id", session.ClientID.UUID,
				"error", err,
			)
		}
	}

	if session.Analysis.Valid {
		var analysis domain.SessionAnalysis
		if err := json.Unmarshal(session.Analysis.RawMessage, &analysis); err != nil {
			h.logger.Warn("Failed to decode stored analysis, report proceeds without it",
				"session_id", sessionID,
				"error", err,
			)
		} else {
			data.Analysis = &analysis
		}
	}

	rows, err := h.queries.ListTranscriptSegmentsBySessionID(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("fetch transcript: %w", err)
	}
	if len(rows) > 0 {
		transcript := domain.Transcript{SessionID: sessionID, Segments: make([]domain.TranscriptSegment, 0, len(rows))}
		for _, row := range rows {
			transcript.Segments = append(transcript.Segments, domain.TranscriptSegment{
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
		data.Segments = transcript.Segments
		data.TalkRatioByRole = transcript.TalkRatioByRole()
	}

	return data, nil
}
