package mock

import (
	"context"
	"log/slog"

	"github.com/kaiwahq/kaiwa/internal/ai"
	"github.com/kaiwahq/kaiwa/internal/domain"
)

// Provider is a mock AI provider for testing and development
type Provider struct {
	logger *slog.Logger

	// Configurable responses for testing
	AnalyzeSessionResponse *domain.SessionAnalysis
	AnalyzeSessionError    error

	// Call tracking for testing
	AnalyzeSessionCalls int
}

// New creates a new mock AI provider
func New(logger *slog.Logger) *Provider {
	return &Provider{
		logger: logger,
	}
}

// AnalyzeSession returns a canned analysis
func (p *Provider) AnalyzeSession(ctx context.Context, params ai.AnalyzeSessionParams) (*domain.SessionAnalysis, error) {
	p.AnalyzeSessionCalls++

	// If a custom response or error is set, use it
	if p.AnalyzeSessionError != nil {
		return nil, p.AnalyzeSessionError
	}
	if p.AnalyzeSessionResponse != nil {
		return p.AnalyzeSessionResponse, nil
	}

	var coachRatio float64
	if params.Transcript != nil {
		coachRatio = params.Transcript.TalkRatioByRole()[domain.SpeakerRoleCoach]
	}

	// Default canned response
	return &domain.SessionAnalysis{
		Summary: "The session focused on the client's difficulty delegating release work to their team. " +
			"The client recognized that while they handed off tasks, they retained ownership by stepping in whenever progress slowed, " +
			"which prevented the team from building confidence.\n\n" +
			"A turning point came when the client named the underlying fear: accountability for failures would land on them regardless of who did the work. " +
			"The session closed with an agreement to define explicit ownership boundaries before the next release cycle.",
		KeyTopics: []string{
			"delegation",
			"accountability vs. ownership",
			"trusting the team",
		},
		CoachTalkRatio: coachRatio,
		Highlights: []domain.AnalysisMoment{
			{
				StartMs: 31800,
				Label:   "powerful question",
				Quote:   "What would need to be true for the ownership to move too?",
				Comment: "Shifts the conversation from the behavior (stepping in) to the underlying condition the client can actually change.",
			},
			{
				StartMs: 20400,
				Label:   "client insight",
				Quote:   "If I'm going to be accountable either way, it feels safer to just do it myself.",
				Comment: "The client names the belief driving the pattern, which opens it up for examination.",
			},
		},
		SuggestedQuestions: []string{
			"What did you notice the first time you resisted stepping in?",
			"How did the team respond to the ownership boundaries you agreed on?",
			"What would 'safe to fail' look like for your next release?",
		},
		Usage: domain.AnalysisUsageInfo{
			Model:        "mock-ai-v1",
			InputTokens:  1250,
			OutputTokens: 850,
			CostCents:    5,
		},
	}, nil
}

// Reset clears call counters and custom responses for testing
func (p *Provider) Reset() {
	p.AnalyzeSessionCalls = 0
	p.AnalyzeSessionResponse = nil
	p.AnalyzeSessionError = nil
}
