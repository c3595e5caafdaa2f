package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTranscript_SpeakerLabels(t *testing.T) {
	tr := Transcript{Segments: []TranscriptSegment{
		{SpeakerLabel: "A"},
		{SpeakerLabel: "B"},
		{SpeakerLabel: "A"},
		{SpeakerLabel: ""},
		{SpeakerLabel: "C"},
	}}

	assert.Equal(t, []string{"A", "B", "C"}, tr.SpeakerLabels())
}

func TestTranscript_SpeakerLabels_Empty(t *testing.T) {
	assert.Nil(t, Transcript{}.SpeakerLabels())
}

func TestTranscript_TalkRatioByRole(t *testing.T) {
	tr := Transcript{Segments: []TranscriptSegment{
		{StartMs: 0, EndMs: 3000, SpeakerRole: SpeakerRoleCoach},
		{StartMs: 3000, EndMs: 4000, SpeakerRole: SpeakerRoleClient},
		{StartMs: 4000, EndMs: 5000, SpeakerRole: SpeakerRole("")},
		{StartMs: 5000, EndMs: 4000, SpeakerRole: SpeakerRoleCoach}, // negative duration skipped
	}}

	ratios := tr.TalkRatioByRole()

	assert.InDelta(t, 0.6, ratios[SpeakerRoleCoach], 1e-9)
	assert.InDelta(t, 0.2, ratios[SpeakerRoleClient], 1e-9)
	assert.InDelta(t, 0.2, ratios[SpeakerRoleUnassigned], 1e-9)
}

func TestTranscript_TalkRatioByRole_Empty(t *testing.T) {
	assert.Empty(t, Transcript{}.TalkRatioByRole())
}

func TestTranscriptionStatus_CanTransitionTo_Transcript(t *testing.T) {
	tests := []struct {
		name   string
		from   TranscriptionStatus
		to     TranscriptionStatus
		want   bool
	}{
		{name: "none to pending", from: TranscriptionStatusNone, to: TranscriptionStatusPending, want: true},
		{name: "none to completed via manual upload", from: TranscriptionStatusNone, to: TranscriptionStatusCompleted, want: true},
		{name: "none to processing is invalid", from: TranscriptionStatusNone, to: TranscriptionStatusProcessing, want: false},
		{name: "pending to processing", from: TranscriptionStatusPending, to: TranscriptionStatusProcessing, want: true},
		{name: "pending to completed skips processing", from: TranscriptionStatusPending, to: TranscriptionStatusCompleted, want: false},
		{name: "processing to completed", from: TranscriptionStatusProcessing, to: TranscriptionStatusCompleted, want: true},
		{name: "processing to failed", from: TranscriptionStatusProcessing, to: TranscriptionStatusFailed, want: true},
		{name: "failed retry", from: TranscriptionStatusFailed, to: TranscriptionStatusPending, want: true},
		{name: "completed re-transcribe", from: TranscriptionStatusCompleted, to: TranscriptionStatusPending, want: true},
		{name: "completed to failed is invalid", from: TranscriptionStatusCompleted, to: TranscriptionStatusFailed, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.from.CanTransitionTo(tt.to))
		})
	}
}

func TestUser_EffectiveTier(t *testing.T) {
	tests := []struct {
		name   string
		tier   PlanTier
		status SubscriptionStatus
		want   PlanTier
	}{
		{name: "active pro", tier: PlanTierPro, status: SubscriptionStatusActive, want: PlanTierPro},
		{name: "trialing business", tier: PlanTierBusiness, status: SubscriptionStatusTrialing, want: PlanTierBusiness},
		{name: "past due pro degrades to free", tier: PlanTierPro, status: SubscriptionStatusPastDue, want: PlanTierFree},
		{name: "canceled business degrades to free", tier: PlanTierBusiness, status: SubscriptionStatusCanceled, want: PlanTierFree},
		{name: "free stays free regardless of status", tier: PlanTierFree, status: SubscriptionStatusActive, want: PlanTierFree},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			u := &User{SubscriptionTier: tt.tier, SubscriptionStatus: tt.status}
			assert.Equal(t, tt.want, u.EffectiveTier())
		})
	}
}
