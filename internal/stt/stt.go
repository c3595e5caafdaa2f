// Package stt defines the speech-to-text provider interface used for
// transcribing session recordings, with speaker diarization.
package stt

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Provider defines the interface for speech-to-text transcription.
type Provider interface {
	// Transcribe converts a session recording into diarized segments.
	// Blocks until the transcription completes, fails, or ctx is done.
	Transcribe(ctx context.Context, params TranscribeParams) (*Result, error)
}

// TranscribeParams contains parameters for a transcription request.
type TranscribeParams struct {
	AudioURL     string    // Presigned URL the provider can fetch the audio from
	AudioData    []byte    // Raw audio bytes, used when AudioURL is empty
	ContentType  string    // MIME type of the audio
	LanguageCode string    // Optional BCP-47 hint (e.g. "en", "zh")
	SessionID    uuid.UUID // Session ID for tracking
	UserID       uuid.UUID // User ID for usage tracking
}

// Result contains the completed transcription.
type Result struct {
	Segments        []Segment // Diarized utterances in playback order
	AudioDurationMs int64     // Total audio duration reported by the provider
	LanguageCode    string    // Detected or confirmed language
	Usage           UsageInfo // Provider usage for monitoring
}

// Segment is a single diarized utterance.
type Segment struct {
	StartMs      int64
	EndMs        int64
	SpeakerLabel string // Provider diarization label (e.g. "A", "B")
	Text         string
	Confidence   float64
}

// UsageInfo tracks provider usage for billing and monitoring.
type UsageInfo struct {
	Provider     string        // Provider name
	TranscriptID string        // Provider-side transcript ID
	AudioSeconds float64       // Billable audio seconds
	Duration     time.Duration // Wall-clock request duration
}

// Error values for speech-to-text operations.
var (
	// ESTTRateLimit indicates the provider rate limit has been exceeded
	ESTTRateLimit = errors.New("stt provider rate limit exceeded")

	// ESTTInvalidAudio indicates the audio format or content is invalid
	ESTTInvalidAudio = errors.New("invalid audio format or content")

	// ESTTTimeout indicates the request timed out
	ESTTTimeout = errors.New("stt request timed out")

	// ESTTUnavailable indicates the service is temporarily unavailable
	ESTTUnavailable = errors.New("stt service temporarily unavailable")

	// ESTTUnauthorized indicates invalid API credentials
	ESTTUnauthorized = errors.New("stt provider authentication failed")
)

// IsRetryable returns true if the error is transient and worth retrying.
func IsRetryable(err error) bool {
	return errors.Is(err, ESTTRateLimit) ||
		errors.Is(err, ESTTTimeout) ||
		errors.Is(err, ESTTUnavailable)
}

// WrapError wraps an error with context about the transcription operation.
func WrapError(operation string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("stt %s: %w", operation, err)
}
