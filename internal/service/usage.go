// Package service contains the business logic layer.
//
// This file implements the usage service: recording usage events and
// reporting a user's position against their plan limits.
package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/kaiwahq/kaiwa/internal/domain"
	"github.com/kaiwahq/kaiwa/internal/email"
	"github.com/kaiwahq/kaiwa/internal/repository"
)

// =============================================================================
// Interface Definition
// =============================================================================

// UsageService defines operations for recording and reporting usage.
type UsageService interface {
	// Record appends a usage event for the user. Amount must be positive.
	Record(ctx context.Context, userID uuid.UUID, kind domain.UsageKind, amount int64) error

	// CurrentUsage returns the user's aggregated counters for the current
	// UTC calendar month.
	CurrentUsage(ctx context.Context, userID uuid.UUID) (domain.MonthlyUsage, error)

	// Report evaluates the user's current-month usage against their
	// effective tier's limits.
	Report(ctx context.Context, user *domain.User) (*domain.UsageReport, error)

	// CloseMonth archives the counters of every user with usage in the
	// month starting at periodStart. Idempotent: re-running overwrites the
	// same summaries. Returns the number of users closed out.
	CloseMonth(ctx context.Context, periodStart time.Time) (int, error)
}

// =============================================================================
// Implementation
// =============================================================================

type usageService struct {
	queries *repository.Queries
	emails  email.EmailService // optional; nil disables warning notices
	logger  *slog.Logger
}

// NewUsageService creates a new UsageService. A nil emailService disables
// usage-warning notices.
func NewUsageService(queries *repository.Queries, emailService email.EmailService, logger *slog.Logger) UsageService {
	return &usageService{
		queries: queries,
		emails:  emailService,
		logger:  logger,
	}
}

// Record appends a usage event for the user.
func (s *usageService) Record(ctx context.Context, userID uuid.UUID, kind domain.UsageKind, amount int64) error {
	const op = "usage.record"

	if !kind.Valid() {
		return domain.Invalid(op, "unknown usage kind: "+string(kind))
	}
	if amount <= 0 {
		return domain.Invalid(op, "usage amount must be positive")
	}

	err := s.queries.InsertUsageRecord(ctx, repository.InsertUsageRecordParams{
		UserID:     userID,
		Kind:       string(kind),
		Amount:     amount,
		RecordedAt: time.Now().UTC(),
	})
	if err != nil {
		return domain.Internal(err, op, "failed to record usage")
	}

	s.logger.Debug("recorded usage", "user_id", userID, "kind", kind, "amount", amount)

	s.maybeWarn(ctx, userID, kind, amount)
	return nil
}

// maybeWarn emails the coach when this event pushed a counter past the
// approaching-limit threshold. Only the crossing event triggers a notice,
// so a coach gets one warning per limit per month. Best effort: failures
// are logged, never returned.
func (s *usageService) maybeWarn(ctx context.Context, userID uuid.UUID, kind domain.UsageKind, amount int64) {
	if s.emails == nil {
		return
	}

	usage, err := s.CurrentUsage(ctx, userID)
	if err != nil {
		s.logger.Warn("usage warning check failed", "user_id", userID, "error", err)
		return
	}

	row, err := s.queries.GetUserByID(ctx, userID)
	if err != nil {
		s.logger.Warn("usage warning check failed", "user_id", userID, "error", err)
		return
	}
	user := repoUserToDomain(row)

	limits := domain.LimitsForTier(user.EffectiveTier())
	limit := limitForKind(limits, kind)
	current := usage.ForKind(kind)
	before := current - amount

	if domain.WarningFor(before, limit) != domain.WarningNone {
		return // already warned when the threshold was first crossed
	}
	if domain.WarningFor(current, limit) == domain.WarningNone {
		return
	}

	resource := limitNameForKind(kind)
	if err := s.emails.SendUsageWarningEmail(ctx, user.Email, user.DisplayName(), resource, current, limit); err != nil {
		s.logger.Warn("failed to send usage warning email", "user_id", userID, "resource", resource, "error", err)
		return
	}
	s.logger.Info("sent usage warning email", "user_id", userID, "resource", resource, "used", current, "limit", limit)
}

// limitForKind returns the monthly limit corresponding to a usage kind.
func limitForKind(l domain.PlanLimits, kind domain.UsageKind) int64 {
	switch kind {
	case domain.UsageKindSession:
		return l.SessionsPerMonth
	case domain.UsageKindTranscription:
		return l.TranscriptionsPerMonth
	case domain.UsageKindTranscriptionMinutes:
		return l.TranscriptionMinutesPerMonth
	case domain.UsageKindAnalysis:
		return l.AnalysesPerMonth
	default:
		return domain.Unlimited
	}
}

// limitNameForKind returns the limit name reported in warning notices.
func limitNameForKind(kind domain.UsageKind) string {
	switch kind {
	case domain.UsageKindSession:
		return domain.LimitSessions
	case domain.UsageKindTranscription:
		return domain.LimitTranscriptions
	case domain.UsageKindTranscriptionMinutes:
		return domain.LimitTranscriptionMinutes
	case domain.UsageKindAnalysis:
		return domain.LimitAnalyses
	default:
		return string(kind)
	}
}

// CurrentUsage returns the user's counters for the current UTC month.
func (s *usageService) CurrentUsage(ctx context.Context, userID uuid.UUID) (domain.MonthlyUsage, error) {
	const op = "usage.current"

	start, end := domain.MonthBoundaries(time.Now())
	row, err := s.queries.GetUsageInPeriod(ctx, userID, start, end)
	if err != nil {
		return domain.MonthlyUsage{}, domain.Internal(err, op, "failed to aggregate usage")
	}

	return domain.MonthlyUsage{
		UserID:               userID,
		PeriodStart:          start,
		Sessions:             row.Sessions,
		Transcriptions:       row.Transcriptions,
		TranscriptionMinutes: row.TranscriptionMinutes,
		Analyses:             row.Analyses,
	}, nil
}

// Report evaluates current-month usage against the user's effective tier.
func (s *usageService) Report(ctx context.Context, user *domain.User) (*domain.UsageReport, error) {
	usage, err := s.CurrentUsage(ctx, user.ID)
	if err != nil {
		return nil, err
	}

	start, end := domain.MonthBoundaries(time.Now())
	report := domain.BuildUsageReport(user.EffectiveTier(), usage, start, end)
	return &report, nil
}

// CloseMonth archives the counters for everyone with usage in the month.
// Usage records are append-only; "resetting" a month means the live
// aggregation window moves on while the closed month's totals are
// snapshotted here.
func (s *usageService) CloseMonth(ctx context.Context, periodStart time.Time) (int, error) {
	const op = "usage.close_month"

	start, end := domain.MonthBoundaries(periodStart)

	userIDs, err := s.queries.ListUserIDsWithUsageInPeriod(ctx, start, end)
	if err != nil {
		return 0, domain.Internal(err, op, "failed to list users with usage")
	}

	closed := 0
	for _, userID := range userIDs {
		row, err := s.queries.GetUsageInPeriod(ctx, userID, start, end)
		if err != nil {
			return closed, domain.Internal(err, op, "failed to aggregate usage for user")
		}

		err = s.queries.UpsertUsageSummary(ctx, repository.UpsertUsageSummaryParams{
			UserID:               userID,
			PeriodStart:          start,
			Sessions:             row.Sessions,
			Transcriptions:       row.Transcriptions,
			TranscriptionMinutes: row.TranscriptionMinutes,
			Analyses:             row.Analyses,
		})
		if err != nil {
			return closed, domain.Internal(err, op, "failed to write usage summary")
		}
		closed++
	}

	s.logger.Info("closed usage month", "period_start", start, "users", closed)
	return closed, nil
}
