// Package domain contains core business types and interfaces.
//
// This file defines the plan catalogue: subscription tiers and the
// per-tier limits enforced by the limit service. The catalogue is the
// single source of truth for what each plan allows.
package domain

import "strings"

// PlanTier represents the pricing tier of a subscription.
type PlanTier string

const (
	PlanTierFree     PlanTier = "free"
	PlanTierPro      PlanTier = "pro"
	PlanTierBusiness PlanTier = "business"
)

// Unlimited is the sentinel limit value meaning "no limit".
const Unlimited int64 = -1

// Limit name constants used in QuotaError.Limit and usage reporting.
const (
	LimitSessions             = "sessions_per_month"
	LimitTranscriptionMinutes = "transcription_minutes_per_month"
	LimitTranscriptions       = "transcriptions_per_month"
	LimitAnalyses             = "ai_analyses_per_month"
	LimitAudioFileBytes       = "max_audio_file_bytes"
)

// PlanLimits defines the monthly limits for a subscription tier.
// A value of Unlimited (-1) disables the corresponding check.
type PlanLimits struct {
	SessionsPerMonth             int64 // Coaching sessions created per month
	TranscriptionMinutesPerMonth int64 // Audio minutes transcribed per month
	TranscriptionsPerMonth       int64 // Transcription jobs per month
	AnalysesPerMonth             int64 // AI session analyses per month
	MaxAudioFileBytes            int64 // Per-upload audio file size cap
}

// planCatalogue maps subscription tiers to their limits.
// Free tier is strict; business is unlimited except for file size.
var planCatalogue = map[PlanTier]PlanLimits{
	PlanTierFree: {
		SessionsPerMonth:             10,
		TranscriptionMinutesPerMonth: 120,
		TranscriptionsPerMonth:       5,
		AnalysesPerMonth:             3,
		MaxAudioFileBytes:            60 << 20, // 60 MiB
	},
	PlanTierPro: {
		SessionsPerMonth:             100,
		TranscriptionMinutesPerMonth: 1200,
		TranscriptionsPerMonth:       50,
		AnalysesPerMonth:             50,
		MaxAudioFileBytes:            200 << 20, // 200 MiB
	},
	PlanTierBusiness: {
		SessionsPerMonth:             Unlimited,
		TranscriptionMinutesPerMonth: Unlimited,
		TranscriptionsPerMonth:       Unlimited,
		AnalysesPerMonth:             Unlimited,
		MaxAudioFileBytes:            500 << 20, // 500 MiB
	},
}

// tierOrder lists tiers from cheapest to most expensive, used when
// suggesting an upgrade after a limit is hit.
var tierOrder = []PlanTier{PlanTierFree, PlanTierPro, PlanTierBusiness}

// ParseTier normalizes a tier name. Matching is case-insensitive and
// unknown tiers fall back to free so enforcement fails safe.
func ParseTier(s string) PlanTier {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case string(PlanTierPro):
		return PlanTierPro
	case string(PlanTierBusiness):
		return PlanTierBusiness
	default:
		return PlanTierFree
	}
}

// ValidTier returns true if the tier name is recognised (case-insensitive).
func ValidTier(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case string(PlanTierFree), string(PlanTierPro), string(PlanTierBusiness):
		return true
	default:
		return false
	}
}

// LimitsForTier returns the limits for a tier, defaulting to free tier
// limits for unknown tiers.
func LimitsForTier(tier PlanTier) PlanLimits {
	if limits, ok := planCatalogue[tier]; ok {
		return limits
	}
	return planCatalogue[PlanTierFree]
}

// AllowsSessions returns true if the tier allows another session this month
// given the current count.
func (l PlanLimits) AllowsSessions(current int64) bool {
	return l.SessionsPerMonth == Unlimited || current < l.SessionsPerMonth
}

// AllowsTranscriptionMinutes returns true if transcribing the requested
// minutes would stay within the monthly minute budget.
func (l PlanLimits) AllowsTranscriptionMinutes(current, requested int64) bool {
	return l.TranscriptionMinutesPerMonth == Unlimited ||
		current+requested <= l.TranscriptionMinutesPerMonth
}

// AllowsTranscriptions returns true if the tier allows another transcription
// job this month.
func (l PlanLimits) AllowsTranscriptions(current int64) bool {
	return l.TranscriptionsPerMonth == Unlimited || current < l.TranscriptionsPerMonth
}

// AllowsAnalyses returns true if the tier allows another AI analysis this month.
func (l PlanLimits) AllowsAnalyses(current int64) bool {
	return l.AnalysesPerMonth == Unlimited || current < l.AnalysesPerMonth
}

// AllowsAudioFileSize returns true if an upload of the given size is allowed.
func (l PlanLimits) AllowsAudioFileSize(bytes int64) bool {
	return l.MaxAudioFileBytes == Unlimited || bytes <= l.MaxAudioFileBytes
}

// SuggestUpgradeFor returns the cheapest tier above the given one whose
// named limit would not block the action, or empty string if none exists.
func SuggestUpgradeFor(tier PlanTier, limit string, needed int64) PlanTier {
	seen := false
	for _, candidate := range tierOrder {
		if candidate == tier {
			seen = true
			continue
		}
		if !seen {
			continue
		}
		l := LimitsForTier(candidate)
		var max int64
		switch limit {
		case LimitSessions:
			max = l.SessionsPerMonth
		case LimitTranscriptionMinutes:
			max = l.TranscriptionMinutesPerMonth
		case LimitTranscriptions:
			max = l.TranscriptionsPerMonth
		case LimitAnalyses:
			max = l.AnalysesPerMonth
		case LimitAudioFileBytes:
			max = l.MaxAudioFileBytes
		default:
			continue
		}
		if max == Unlimited || max >= needed {
			return candidate
		}
	}
	return ""
}
