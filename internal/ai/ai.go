package ai

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/kaiwahq/kaiwa/internal/domain"
)

// AIProvider defines the interface for AI-powered coaching session analysis
type AIProvider interface {
	// AnalyzeSession analyzes a transcribed coaching session: summary,
	// key topics, notable coaching moments and suggested follow-ups
	AnalyzeSession(ctx context.Context, params AnalyzeSessionParams) (*domain.SessionAnalysis, error)
}

// AnalyzeSessionParams contains parameters for session analysis
type AnalyzeSessionParams struct {
	Transcript      *domain.Transcript // Diarized transcript with roles assigned where known
	SessionTitle    string             // Session title for context
	ClientGoals     string             // Optional: client's stated goals
	DurationMinutes int32              // Session length
	SessionID       uuid.UUID          // Session ID for tracking
	UserID          uuid.UUID          // User ID for usage tracking
}

// ProviderConfig contains common configuration for AI providers
type ProviderConfig struct {
	MaxRetries     int           // Maximum retry attempts for transient errors
	RetryBaseDelay time.Duration // Base delay for exponential backoff
	RequestTimeout time.Duration // Timeout for individual requests
}

// Error codes for AI provider operations
var (
	// EAIRateLimit indicates the API rate limit has been exceeded
	EAIRateLimit = errors.New("ai provider rate limit exceeded")

	// EAIInvalidTranscript indicates the transcript is empty or malformed
	EAIInvalidTranscript = errors.New("invalid or empty transcript")

	// EAITimeout indicates the request timed out
	EAITimeout = errors.New("ai request timed out")

	// EAIUnavailable indicates the AI service is temporarily unavailable
	EAIUnavailable = errors.New("ai service temporarily unavailable")

	// EAIUnauthorized indicates invalid API credentials
	EAIUnauthorized = errors.New("ai provider authentication failed")
)

// IsRetryable returns true if the error is a transient error that can be retried
func IsRetryable(err error) bool {
	return errors.Is(err, EAIRateLimit) ||
		errors.Is(err, EAITimeout) ||
		errors.Is(err, EAIUnavailable)
}

// WrapError wraps an error with context about the AI operation
func WrapError(operation string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("ai %s: %w", operation, err)
}
