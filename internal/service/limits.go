// This file implements the limit service: checking a user's plan limits
// before an action and explaining which limit blocks it.
package service

import (
	"context"
	"log/slog"

	"github.com/kaiwahq/kaiwa/internal/domain"
)

// =============================================================================
// Interface Definition
// =============================================================================

// LimitService defines operations for enforcing plan limits.
// Every check returns nil when the action is allowed, or a
// *domain.QuotaError naming the limit, the current and maximum values,
// and the cheapest tier that would allow the action.
type LimitService interface {
	// CheckSessionCreate checks whether the user may create another
	// session this month.
	CheckSessionCreate(ctx context.Context, user *domain.User) error

	// CheckTranscription checks whether transcribing the given number of
	// audio minutes is allowed: both the per-month job count and the
	// per-month minute budget must hold.
	CheckTranscription(ctx context.Context, user *domain.User, minutes int64) error

	// CheckAnalysis checks whether the user may run another AI analysis
	// this month.
	CheckAnalysis(ctx context.Context, user *domain.User) error

	// CheckAudioSize checks an upload size against the tier's per-file
	// cap. Purely computational, no usage lookup.
	CheckAudioSize(user *domain.User, bytes int64) error
}

// =============================================================================
// Implementation
// =============================================================================

type limitService struct {
	usage  UsageService
	logger *slog.Logger
}

// NewLimitService creates a new LimitService.
func NewLimitService(usage UsageService, logger *slog.Logger) LimitService {
	return &limitService{
		usage:  usage,
		logger: logger,
	}
}

// CheckSessionCreate checks the monthly session count.
func (s *limitService) CheckSessionCreate(ctx context.Context, user *domain.User) error {
	const op = "limits.check_session_create"

	tier := user.EffectiveTier()
	limits := domain.LimitsForTier(tier)
	if limits.SessionsPerMonth == domain.Unlimited {
		return nil
	}

	usage, err := s.usage.CurrentUsage(ctx, user.ID)
	if err != nil {
		return err
	}

	if !limits.AllowsSessions(usage.Sessions) {
		s.logLimitHit(user, tier, domain.LimitSessions, usage.Sessions, limits.SessionsPerMonth)
		return domain.QuotaExceeded(op, domain.LimitSessions,
			usage.Sessions, limits.SessionsPerMonth,
			domain.SuggestUpgradeFor(tier, domain.LimitSessions, usage.Sessions+1))
	}
	return nil
}

// CheckTranscription checks both the job count and the minute budget.
// When both limits block, the minute budget wins because it's the one an
// upgrade has to clear.
func (s *limitService) CheckTranscription(ctx context.Context, user *domain.User, minutes int64) error {
	const op = "limits.check_transcription"

	if minutes < 0 {
		return domain.Invalid(op, "minutes must not be negative")
	}

	tier := user.EffectiveTier()
	limits := domain.LimitsForTier(tier)
	if limits.TranscriptionsPerMonth == domain.Unlimited &&
		limits.TranscriptionMinutesPerMonth == domain.Unlimited {
		return nil
	}

	usage, err := s.usage.CurrentUsage(ctx, user.ID)
	if err != nil {
		return err
	}

	if !limits.AllowsTranscriptionMinutes(usage.TranscriptionMinutes, minutes) {
		s.logLimitHit(user, tier, domain.LimitTranscriptionMinutes, usage.TranscriptionMinutes, limits.TranscriptionMinutesPerMonth)
		return domain.QuotaExceeded(op, domain.LimitTranscriptionMinutes,
			usage.TranscriptionMinutes, limits.TranscriptionMinutesPerMonth,
			domain.SuggestUpgradeFor(tier, domain.LimitTranscriptionMinutes, usage.TranscriptionMinutes+minutes))
	}

	if !limits.AllowsTranscriptions(usage.Transcriptions) {
		s.logLimitHit(user, tier, domain.LimitTranscriptions, usage.Transcriptions, limits.TranscriptionsPerMonth)
		return domain.QuotaExceeded(op, domain.LimitTranscriptions,
			usage.Transcriptions, limits.TranscriptionsPerMonth,
			domain.SuggestUpgradeFor(tier, domain.LimitTranscriptions, usage.Transcriptions+1))
	}
	return nil
}

// CheckAnalysis checks the monthly AI analysis count.
func (s *limitService) CheckAnalysis(ctx context.Context, user *domain.User) error {
	const op = "limits.check_analysis"

	tier := user.EffectiveTier()
	limits := domain.LimitsForTier(tier)
	if limits.AnalysesPerMonth == domain.Unlimited {
		return nil
	}

	usage, err := s.usage.CurrentUsage(ctx, user.ID)
	if err != nil {
		return err
	}

	if !limits.AllowsAnalyses(usage.Analyses) {
		s.logLimitHit(user, tier, domain.LimitAnalyses, usage.Analyses, limits.AnalysesPerMonth)
		return domain.QuotaExceeded(op, domain.LimitAnalyses,
			usage.Analyses, limits.AnalysesPerMonth,
			domain.SuggestUpgradeFor(tier, domain.LimitAnalyses, usage.Analyses+1))
	}
	return nil
}

// CheckAudioSize checks an upload against the per-file size cap.
func (s *limitService) CheckAudioSize(user *domain.User, bytes int64) error {
	const op = "limits.check_audio_size"

	tier := user.EffectiveTier()
	limits := domain.LimitsForTier(tier)

	if !limits.AllowsAudioFileSize(bytes) {
		s.logLimitHit(user, tier, domain.LimitAudioFileBytes, bytes, limits.MaxAudioFileBytes)
		return domain.QuotaExceeded(op, domain.LimitAudioFileBytes,
			bytes, limits.MaxAudioFileBytes,
			domain.SuggestUpgradeFor(tier, domain.LimitAudioFileBytes, bytes))
	}
	return nil
}

func (s *limitService) logLimitHit(user *domain.User, tier domain.PlanTier, limit string, current, max int64) {
	s.logger.Info("plan limit hit",
		"user_id", user.ID,
		"tier", tier,
		"limit", limit,
		"current", current,
		"max", max,
	)
}
