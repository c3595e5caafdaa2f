// Package service contains the business logic layer.
//
// This file implements the report service: access to generated session
// reports stored as objects, one per session and format.
package service

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/kaiwahq/kaiwa/internal/domain"
	"github.com/kaiwahq/kaiwa/internal/repository"
	"github.com/kaiwahq/kaiwa/internal/storage"
)

// reportURLTTL bounds how long a report download link stays valid.
const reportURLTTL = time.Hour

// =============================================================================
// Interface Definition
// =============================================================================

// ReportService provides access to generated session reports.
type ReportService interface {
	// Status reports which formats have been generated for a session.
	// Returns domain.ENOTFOUND if the session doesn't belong to the user.
	Status(ctx context.Context, sessionID, userID uuid.UUID) (*domain.ReportStatus, error)

	// DownloadURL returns a time-limited URL for a generated report.
	// Returns domain.ENOTFOUND if the session doesn't belong to the user
	// or no report exists in the requested format.
	DownloadURL(ctx context.Context, sessionID, userID uuid.UUID, format domain.ReportFormat) (string, error)
}

// =============================================================================
// Implementation
// =============================================================================

type reportService struct {
	queries *repository.Queries
	storage storage.Storage
	logger  *slog.Logger
}

// NewReportService creates a new ReportService.
func NewReportService(queries *repository.Queries, store storage.Storage, logger *slog.Logger) ReportService {
	return &reportService{
		queries: queries,
		storage: store,
		logger:  logger,
	}
}

// Status reports which formats have been generated for a session.
func (s *reportService) Status(ctx context.Context, sessionID, userID uuid.UUID) (*domain.ReportStatus, error) {
	const op = "report.status"

	if err := s.checkOwnership(ctx, op, sessionID, userID); err != nil {
		return nil, err
	}

	status := &domain.ReportStatus{SessionID: sessionID}
	for _, format := range []domain.ReportFormat{domain.ReportFormatPDF, domain.ReportFormatDOCX} {
		exists, err := s.storage.Exists(ctx, storage.ReportKey(sessionID, format.String()))
		if err != nil {
			return nil, domain.Internal(err, op, "failed to check report")
		}
		if exists {
			status.Available = append(status.Available, format)
		}
	}
	return status, nil
}

// DownloadURL returns a time-limited URL for a generated report.
func (s *reportService) DownloadURL(ctx context.Context, sessionID, userID uuid.UUID, format domain.ReportFormat) (string, error) {
	const op = "report.download_url"

	if !format.IsValid() {
		return "", domain.Invalid(op, "report format must be pdf or docx")
	}
	if err := s.checkOwnership(ctx, op, sessionID, userID); err != nil {
		return "", err
	}

	key := storage.ReportKey(sessionID, format.String())
	exists, err := s.storage.Exists(ctx, key)
	if err != nil {
		return "", domain.Internal(err, op, "failed to check report")
	}
	if !exists {
		return "", domain.NotFound(op, "report", key)
	}

	url, err := s.storage.URL(ctx, key, reportURLTTL)
	if err != nil {
		return "", domain.Internal(err, op, "failed to presign report url")
	}
	return url, nil
}

// checkOwnership verifies the session belongs to the user. Returns
// ENOTFOUND either way so report URLs don't leak session existence.
func (s *reportService) checkOwnership(ctx context.Context, op string, sessionID, userID uuid.UUID) error {
	session, err := s.queries.GetSessionByID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.NotFound(op, "session", sessionID.String())
		}
		return domain.Internal(err, op, "failed to get session")
	}
	if session.UserID != userID {
		return domain.NotFound(op, "session", sessionID.String())
	}
	return nil
}

// Ensure reportService implements ReportService
var _ ReportService = (*reportService)(nil)
