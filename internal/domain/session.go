// Package domain contains core business types and interfaces.
//
// This file defines the CoachingSession domain type and related types for
// managing recorded coaching conversations.
package domain

import (
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// Transcription Status
// =============================================================================

// TranscriptionStatus represents the lifecycle state of a session's transcript.
type TranscriptionStatus string

const (
	// TranscriptionStatusNone indicates no transcript exists and no job has
	// been requested. Sessions with manually uploaded transcripts skip
	// directly to completed.
	TranscriptionStatusNone TranscriptionStatus = "none"

	// TranscriptionStatusPending indicates a transcription job is queued.
	TranscriptionStatusPending TranscriptionStatus = "pending"

	// TranscriptionStatusProcessing indicates the speech-to-text provider is
	// working on the audio.
	TranscriptionStatusProcessing TranscriptionStatus = "processing"

	// TranscriptionStatusCompleted indicates transcript segments are stored.
	TranscriptionStatusCompleted TranscriptionStatus = "completed"

	// TranscriptionStatusFailed indicates the transcription job failed
	// permanently. The user may retry, which re-checks quota.
	TranscriptionStatusFailed TranscriptionStatus = "failed"
)

// String returns the string representation of the status.
func (s TranscriptionStatus) String() string {
	return string(s)
}

// IsValid returns true if the status is a recognized value.
func (s TranscriptionStatus) IsValid() bool {
	switch s {
	case TranscriptionStatusNone, TranscriptionStatusPending,
		TranscriptionStatusProcessing, TranscriptionStatusCompleted,
		TranscriptionStatusFailed:
		return true
	}
	return false
}

// CanTransitionTo checks if the transcript can transition to the target status.
//
// Valid transitions:
// - none -> pending (job enqueued) or completed (manual transcript upload)
// - pending -> processing (worker picked up) or failed
// - processing -> completed or failed
// - failed -> pending (retry) or completed (manual upload)
// - completed -> pending (re-transcribe, replaces segments)
func (s TranscriptionStatus) CanTransitionTo(target TranscriptionStatus) bool {
	switch s {
	case TranscriptionStatusNone:
		return target == TranscriptionStatusPending || target == TranscriptionStatusCompleted
	case TranscriptionStatusPending:
		return target == TranscriptionStatusProcessing || target == TranscriptionStatusFailed
	case TranscriptionStatusProcessing:
		return target == TranscriptionStatusCompleted || target == TranscriptionStatusFailed
	case TranscriptionStatusFailed:
		return target == TranscriptionStatusPending || target == TranscriptionStatusCompleted
	case TranscriptionStatusCompleted:
		return target == TranscriptionStatusPending
	}
	return false
}

// =============================================================================
// Coaching Session Domain Type
// =============================================================================

// CoachingSession represents one recorded coaching conversation.
//
// This is the domain representation designed for use in business logic.
// It includes computed fields that are not stored directly in the database.
type CoachingSession struct {
	ID                  uuid.UUID           // Unique identifier
	UserID              uuid.UUID           // Coach who owns the session
	ClientID            *uuid.UUID          // Optional: Associated client
	Title               string              // Session title
	SessionDate         time.Time           // When the session took place
	DurationMinutes     int32               // Session length in minutes
	Notes               string              // Coach's free-form notes
	AudioKey            string              // Object storage key for the audio file ("" = no audio)
	AudioBytes          int64               // Size of the stored audio file
	TranscriptionStatus TranscriptionStatus // Transcript lifecycle state
	AnalyzedAt          *time.Time          // When AI analysis last completed
	CreatedAt           time.Time           // When session was created
	UpdatedAt           time.Time           // When session was last modified

	// Computed fields (not stored in database, populated by queries/services)
	ClientName   string // Name of associated client (if any)
	SegmentCount int    // Number of transcript segments stored
}

// HasClient returns true if the session is associated with a client.
func (s *CoachingSession) HasClient() bool {
	return s.ClientID != nil
}

// HasAudio returns true if an audio file is attached.
func (s *CoachingSession) HasAudio() bool {
	return s.AudioKey != ""
}

// HasTranscript returns true if transcript segments are available.
func (s *CoachingSession) HasTranscript() bool {
	return s.TranscriptionStatus == TranscriptionStatusCompleted
}

// CanTranscribe returns true if a transcription job may be requested.
// Requires audio and no job currently in flight.
func (s *CoachingSession) CanTranscribe() bool {
	if !s.HasAudio() {
		return false
	}
	return s.TranscriptionStatus == TranscriptionStatusNone ||
		s.TranscriptionStatus == TranscriptionStatusFailed ||
		s.TranscriptionStatus == TranscriptionStatusCompleted
}

// CanAnalyze returns true if AI analysis may be requested.
// Analysis works over the transcript, so one must exist.
func (s *CoachingSession) CanAnalyze() bool {
	return s.HasTranscript()
}

// =============================================================================
// Session Analysis
// =============================================================================

// SessionAnalysis is the AI-produced view of a coaching conversation.
// Stored as JSONB alongside the session row.
type SessionAnalysis struct {
	Summary            string            `json:"summary"`              // 2-3 paragraph session summary
	KeyTopics          []string          `json:"key_topics"`           // Main topics discussed
	CoachTalkRatio     float64           `json:"coach_talk_ratio"`     // Fraction of words spoken by the coach (0-1)
	Highlights         []AnalysisMoment  `json:"highlights"`           // Notable coaching moments
	SuggestedQuestions []string          `json:"suggested_questions"`  // Follow-up questions for next session
	Usage              AnalysisUsageInfo `json:"usage"`                // Token usage for the analysis call
}

// AnalysisMoment is one notable moment identified in the transcript.
type AnalysisMoment struct {
	StartMs int64  `json:"start_ms"` // Position in the session
	Label   string `json:"label"`    // Short label (e.g., "powerful question")
	Quote   string `json:"quote"`    // The relevant transcript excerpt
	Comment string `json:"comment"`  // Why this moment matters
}

// AnalysisUsageInfo tracks AI token usage for cost monitoring.
type AnalysisUsageInfo struct {
	Model        string `json:"model"`
	InputTokens  int    `json:"input_tokens"`
	OutputTokens int    `json:"output_tokens"`
	CostCents    int    `json:"cost_cents"`
}

// =============================================================================
// Session Service Parameters
// =============================================================================

// CreateSessionParams contains validated parameters for creating a session.
type CreateSessionParams struct {
	UserID          uuid.UUID  // Coach (from auth context)
	ClientID        *uuid.UUID // Optional: Associated client
	Title           string     // Required: Session title
	SessionDate     time.Time  // Required: When the session took place
	DurationMinutes int32      // Required: Session length in minutes
	Notes           string     // Optional
}

// UpdateSessionParams contains validated parameters for updating a session.
type UpdateSessionParams struct {
	ID              uuid.UUID  // Session to update
	UserID          uuid.UUID  // Coach (for authorization)
	ClientID        *uuid.UUID // Optional: Associated client
	Title           string     // Required: Session title
	SessionDate     time.Time  // Required: When the session took place
	DurationMinutes int32      // Required: Session length in minutes
	Notes           string     // Optional
}

// ListSessionsParams contains parameters for listing sessions.
type ListSessionsParams struct {
	UserID   uuid.UUID  // Filter by coach
	ClientID *uuid.UUID // Optional: filter by client
	Limit    int32      // Max results to return
	Offset   int32      // Number of results to skip
}

// AttachAudioParams contains parameters for attaching an audio file.
type AttachAudioParams struct {
	SessionID   uuid.UUID
	UserID      uuid.UUID
	Filename    string // Original filename (for extension)
	ContentType string // MIME type from the upload
	Size        int64  // Declared size in bytes
}

// =============================================================================
// List Result with Pagination
// =============================================================================

// ListSessionsResult contains the result of a paginated session list query.
type ListSessionsResult struct {
	Sessions []CoachingSession // The session results
	Total    int64             // Total number of sessions (for pagination)
	Limit    int32             // Number of results requested
	Offset   int32             // Number of results skipped
}

// HasMore returns true if there are more results available.
func (r *ListSessionsResult) HasMore() bool {
	return int64(r.Offset+r.Limit) < r.Total
}

// HasPrevious returns true if there are previous results available.
func (r *ListSessionsResult) HasPrevious() bool {
	return r.Offset > 0
}

// CurrentPage returns the current page number (1-indexed).
func (r *ListSessionsResult) CurrentPage() int {
	if r.Limit == 0 {
		return 1
	}
	return int(r.Offset/r.Limit) + 1
}

// TotalPages returns the total number of pages.
func (r *ListSessionsResult) TotalPages() int {
	if r.Limit == 0 {
		return 1
	}
	pages := r.Total / int64(r.Limit)
	if r.Total%int64(r.Limit) > 0 {
		pages++
	}
	return int(pages)
}
