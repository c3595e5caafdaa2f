package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTranscriptionStatus_CanTransitionTo(t *testing.T) {
	tests := []struct {
		name string
		from TranscriptionStatus
		to   TranscriptionStatus
		want bool
	}{
		{"none to pending", TranscriptionStatusNone, TranscriptionStatusPending, true},
		{"none to completed via manual upload", TranscriptionStatusNone, TranscriptionStatusCompleted, true},
		{"none to processing skips the queue", TranscriptionStatusNone, TranscriptionStatusProcessing, false},
		{"pending to processing", TranscriptionStatusPending, TranscriptionStatusProcessing, true},
		{"pending to failed", TranscriptionStatusPending, TranscriptionStatusFailed, true},
		{"pending to completed skips processing", TranscriptionStatusPending, TranscriptionStatusCompleted, false},
		{"processing to completed", TranscriptionStatusProcessing, TranscriptionStatusCompleted, true},
		{"processing to failed", TranscriptionStatusProcessing, TranscriptionStatusFailed, true},
		{"failed retry", TranscriptionStatusFailed, TranscriptionStatusPending, true},
		{"failed to manual upload", TranscriptionStatusFailed, TranscriptionStatusCompleted, true},
		{"completed re-transcribe", TranscriptionStatusCompleted, TranscriptionStatusPending, true},
		{"completed back to none", TranscriptionStatusCompleted, TranscriptionStatusNone, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.from.CanTransitionTo(tt.to))
		})
	}
}

func TestTranscriptionStatus_IsValid(t *testing.T) {
	for _, s := range []TranscriptionStatus{
		TranscriptionStatusNone, TranscriptionStatusPending,
		TranscriptionStatusProcessing, TranscriptionStatusCompleted,
		TranscriptionStatusFailed,
	} {
		assert.True(t, s.IsValid(), "status %q", s)
	}
	assert.False(t, TranscriptionStatus("queued").IsValid())
}

func TestCoachingSession_CanTranscribe(t *testing.T) {
	session := CoachingSession{TranscriptionStatus: TranscriptionStatusNone}
	assert.False(t, session.CanTranscribe(), "no audio")

	session.AudioKey = "sessions/x/audio/y.mp3"
	assert.True(t, session.CanTranscribe())

	session.TranscriptionStatus = TranscriptionStatusPending
	assert.False(t, session.CanTranscribe(), "job already queued")

	session.TranscriptionStatus = TranscriptionStatusProcessing
	assert.False(t, session.CanTranscribe(), "job in flight")

	session.TranscriptionStatus = TranscriptionStatusFailed
	assert.True(t, session.CanTranscribe(), "retry after failure")

	session.TranscriptionStatus = TranscriptionStatusCompleted
	assert.True(t, session.CanTranscribe(), "re-transcribe")
}

func TestCoachingSession_CanAnalyze(t *testing.T) {
	session := CoachingSession{TranscriptionStatus: TranscriptionStatusProcessing}
	assert.False(t, session.CanAnalyze())

	session.TranscriptionStatus = TranscriptionStatusCompleted
	assert.True(t, session.CanAnalyze())
}
