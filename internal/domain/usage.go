// Package domain contains core business types and interfaces.
//
// This file defines usage tracking types: the counters accumulated per
// calendar month and the results of evaluating them against plan limits.
package domain

import (
	"time"

	"github.com/google/uuid"
)

// UsageKind identifies the type of usage being recorded.
type UsageKind string

const (
	UsageKindSession              UsageKind = "session"               // One session created
	UsageKindTranscription        UsageKind = "transcription"         // One transcription job completed
	UsageKindTranscriptionMinutes UsageKind = "transcription_minutes" // Minutes of audio transcribed
	UsageKindAnalysis             UsageKind = "analysis"              // One AI analysis completed
)

// Valid checks if the usage kind is recognised.
func (k UsageKind) Valid() bool {
	switch k {
	case UsageKindSession, UsageKindTranscription, UsageKindTranscriptionMinutes, UsageKindAnalysis:
		return true
	default:
		return false
	}
}

// UsageRecord is a single append-only usage event.
type UsageRecord struct {
	ID         uuid.UUID
	UserID     uuid.UUID
	Kind       UsageKind
	Amount     int64 // 1 for countable events, minutes for minute events
	RecordedAt time.Time
}

// MonthlyUsage holds a user's aggregated counters for one calendar month.
type MonthlyUsage struct {
	UserID               uuid.UUID
	PeriodStart          time.Time // First instant of the month (UTC)
	Sessions             int64
	Transcriptions       int64
	TranscriptionMinutes int64
	Analyses             int64
}

// ForKind returns the counter matching the given usage kind.
func (u MonthlyUsage) ForKind(kind UsageKind) int64 {
	switch kind {
	case UsageKindSession:
		return u.Sessions
	case UsageKindTranscription:
		return u.Transcriptions
	case UsageKindTranscriptionMinutes:
		return u.TranscriptionMinutes
	case UsageKindAnalysis:
		return u.Analyses
	default:
		return 0
	}
}

// UsageWarning indicates how close to a limit the user is.
type UsageWarning string

const (
	WarningNone        UsageWarning = "none"        // < 80% used
	WarningApproaching UsageWarning = "approaching" // >= 80% used
	WarningCritical    UsageWarning = "critical"    // >= 95% used
	WarningExceeded    UsageWarning = "exceeded"    // limit reached
)

// WarningFor classifies usage against a limit. Unlimited limits never warn.
func WarningFor(current, limit int64) UsageWarning {
	if limit == Unlimited || limit == 0 {
		return WarningNone
	}
	switch {
	case current >= limit:
		return WarningExceeded
	case current*100 >= limit*95:
		return WarningCritical
	case current*100 >= limit*80:
		return WarningApproaching
	default:
		return WarningNone
	}
}

// LimitStatus reports one limit's usage for the dashboard.
type LimitStatus struct {
	Name      string       `json:"name"`
	Used      int64        `json:"used"`
	Limit     int64        `json:"limit"` // -1 when unlimited
	Unlimited bool         `json:"unlimited"`
	Warning   UsageWarning `json:"warning"`
}

// UsageReport is the full usage-vs-limits view for a user's current month.
type UsageReport struct {
	Tier        PlanTier      `json:"tier"`
	PeriodStart time.Time     `json:"period_start"`
	PeriodEnd   time.Time     `json:"period_end"`
	Limits      []LimitStatus `json:"limits"`
}

// BuildUsageReport evaluates monthly usage against a tier's limits.
func BuildUsageReport(tier PlanTier, usage MonthlyUsage, periodStart, periodEnd time.Time) UsageReport {
	limits := LimitsForTier(tier)

	statusFor := func(name string, used, limit int64) LimitStatus {
		return LimitStatus{
			Name:      name,
			Used:      used,
			Limit:     limit,
			Unlimited: limit == Unlimited,
			Warning:   WarningFor(used, limit),
		}
	}

	return UsageReport{
		Tier:        tier,
		PeriodStart: periodStart,
		PeriodEnd:   periodEnd,
		Limits: []LimitStatus{
			statusFor(LimitSessions, usage.Sessions, limits.SessionsPerMonth),
			statusFor(LimitTranscriptionMinutes, usage.TranscriptionMinutes, limits.TranscriptionMinutesPerMonth),
			statusFor(LimitTranscriptions, usage.Transcriptions, limits.TranscriptionsPerMonth),
			statusFor(LimitAnalyses, usage.Analyses, limits.AnalysesPerMonth),
		},
	}
}

// MonthBoundaries returns the start (inclusive) and end (exclusive) of the
// UTC calendar month containing t. All usage accounting uses these windows.
func MonthBoundaries(t time.Time) (start, end time.Time) {
	t = t.UTC()
	start = time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
	end = start.AddDate(0, 1, 0)
	return start, end
}

// UsageSummary is the archived counter set for a closed month.
type UsageSummary struct {
	ID          uuid.UUID
	UserID      uuid.UUID
	PeriodStart time.Time
	Usage       MonthlyUsage
	ClosedAt    time.Time
}
