package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/kaiwahq/kaiwa/internal/repository"
)

// Job type constants - these must match the JobHandler.Type() values
const (
	JobTypeTranscribeSession = "transcribe_session"
	JobTypeAnalyzeSession    = "analyze_session"
	JobTypeGenerateReport    = "generate_report"
	JobTypeMonthlyReset      = "monthly_usage_reset"
)

// Priority constants for job scheduling
const (
	PriorityLow    = 0
	PriorityNormal = 10
	PriorityHigh   = 20
)

// TranscribeSessionPayload is the payload for transcription jobs.
type TranscribeSessionPayload struct {
	SessionID uuid.UUID `json:"session_id"`
	UserID    uuid.UUID `json:"user_id"`
}

// AnalyzeSessionPayload is the payload for session analysis jobs.
type AnalyzeSessionPayload struct {
	SessionID uuid.UUID `json:"session_id"`
	UserID    uuid.UUID `json:"user_id"`
}

// GenerateReportPayload is the payload for report generation jobs.
type GenerateReportPayload struct {
	SessionID uuid.UUID `json:"session_id"`
	UserID    uuid.UUID `json:"user_id"`
	Format    string    `json:"format"` // "pdf" or "docx"
}

// MonthlyResetPayload is the payload for the monthly usage close-out job.
// PeriodStart identifies the calendar month being closed (UTC).
type MonthlyResetPayload struct {
	PeriodStart time.Time `json:"period_start"`
}

// EnqueueOption is a functional option for customizing job enqueue parameters.
type EnqueueOption func(*repository.EnqueueJobParams)

// WithPriority sets the job priority.
func WithPriority(priority int32) EnqueueOption {
	return func(p *repository.EnqueueJobParams) {
		p.Priority = priority
	}
}

// WithMaxAttempts sets the maximum number of retry attempts.
func WithMaxAttempts(attempts int32) EnqueueOption {
	return func(p *repository.EnqueueJobParams) {
		p.MaxAttempts = attempts
	}
}

// WithDelay schedules the job to run after a delay.
func WithDelay(delay time.Duration) EnqueueOption {
	return func(p *repository.EnqueueJobParams) {
		p.ScheduledAt = time.Now().Add(delay)
	}
}

// WithScheduledAt schedules the job to run at a specific time.
func WithScheduledAt(at time.Time) EnqueueOption {
	return func(p *repository.EnqueueJobParams) {
		p.ScheduledAt = at
	}
}

// EnqueueJob is a generic helper for enqueuing jobs with custom options.
func EnqueueJob(
	ctx context.Context,
	queries *repository.Queries,
	jobType string,
	payload interface{},
	opts ...EnqueueOption,
) (repository.Job, error) {
	// Marshal the payload to JSON
	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return repository.Job{}, fmt.Errorf("marshal payload: %w", err)
	}

	// Default parameters
	params := repository.EnqueueJobParams{
		JobType:     jobType,
		Payload:     payloadJSON,
		Priority:    PriorityNormal,
		MaxAttempts: 3,
		ScheduledAt: time.Now(),
	}

	// Apply options
	for _, opt := range opts {
		opt(&params)
	}

	// Enqueue the job
	job, err := queries.EnqueueJob(ctx, params)
	if err != nil {
		return repository.Job{}, fmt.Errorf("enqueue job: %w", err)
	}

	return job, nil
}

// EnqueueTranscribeSession enqueues a job to transcribe a session recording.
// This is typically called after audio is uploaded to a session.
func EnqueueTranscribeSession(
	ctx context.Context,
	queries *repository.Queries,
	sessionID uuid.UUID,
	userID uuid.UUID,
	opts ...EnqueueOption,
) (repository.Job, error) {
	payload := TranscribeSessionPayload{
		SessionID: sessionID,
		UserID:    userID,
	}

	return EnqueueJob(ctx, queries, JobTypeTranscribeSession, payload, opts...)
}

// EnqueueAnalyzeSession enqueues a job to analyze a transcribed session.
func EnqueueAnalyzeSession(
	ctx context.Context,
	queries *repository.Queries,
	sessionID uuid.UUID,
	userID uuid.UUID,
	opts ...EnqueueOption,
) (repository.Job, error) {
	payload := AnalyzeSessionPayload{
		SessionID: sessionID,
		UserID:    userID,
	}

	return EnqueueJob(ctx, queries, JobTypeAnalyzeSession, payload, opts...)
}

// EnqueueGenerateReport enqueues a job to generate a session report.
// The format should be "pdf" or "docx".
func EnqueueGenerateReport(
	ctx context.Context,
	queries *repository.Queries,
	sessionID uuid.UUID,
	userID uuid.UUID,
	format string,
	opts ...EnqueueOption,
) (repository.Job, error) {
	payload := GenerateReportPayload{
		SessionID: sessionID,
		UserID:    userID,
		Format:    format,
	}

	return EnqueueJob(ctx, queries, JobTypeGenerateReport, payload, opts...)
}

// EnqueueMonthlyReset schedules the usage close-out for the month
// containing periodStart, to run just after that month ends. The job is a
// singleton: if one is already pending or running for that boundary,
// nothing is enqueued.
func EnqueueMonthlyReset(
	ctx context.Context,
	queries *repository.Queries,
	periodStart time.Time,
	runAt time.Time,
) (repository.Job, bool, error) {
	exists, err := queries.ExistsScheduledJob(ctx, JobTypeMonthlyReset, runAt.Add(-time.Hour))
	if err != nil {
		return repository.Job{}, false, fmt.Errorf("check scheduled reset: %w", err)
	}
	if exists {
		return repository.Job{}, false, nil
	}

	payload := MonthlyResetPayload{PeriodStart: periodStart.UTC()}
	job, err := EnqueueJob(ctx, queries, JobTypeMonthlyReset, payload,
		WithScheduledAt(runAt),
		WithPriority(PriorityLow),
		WithMaxAttempts(5),
	)
	if err != nil {
		return repository.Job{}, false, err
	}
	return job, true, nil
}
