package mock

import (
	"context"
	"log/slog"
	"time"

	"github.com/kaiwahq/kaiwa/internal/stt"
)

// Provider is a mock speech-to-text provider for testing and development
type Provider struct {
	logger *slog.Logger

	// Configurable responses for testing
	TranscribeResponse *stt.Result
	TranscribeError    error

	// Call tracking for testing
	TranscribeCalls int
}

// New creates a new mock STT provider
func New(logger *slog.Logger) *Provider {
	return &Provider{
		logger: logger,
	}
}

// Transcribe returns a canned two-speaker transcript
func (p *Provider) Transcribe(ctx context.Context, params stt.TranscribeParams) (*stt.Result, error) {
	p.TranscribeCalls++

	// If a custom response or error is set, use it
	if p.TranscribeError != nil {
		return nil, p.TranscribeError
	}
	if p.TranscribeResponse != nil {
		return p.TranscribeResponse, nil
	}

	// Default canned response: a short two-speaker coaching exchange
	return &stt.Result{
		Segments: []stt.Segment{
			{
				StartMs:      500,
				EndMs:        4200,
				SpeakerLabel: "A",
				Text:         "Welcome back. Last time we talked about delegating more of the release work. How did that go?",
				Confidence:   0.97,
			},
			{
				StartMs:      4800,
				EndMs:        14500,
				SpeakerLabel: "B",
				Text:         "Honestly, mixed. I handed off the deployment checklist, but I kept stepping in when things slowed down, so the team never really owned it.",
				Confidence:   0.94,
			},
			{
				StartMs:      15000,
				EndMs:        19800,
				SpeakerLabel: "A",
				Text:         "What do you think made it hard to stay out of it?",
				Confidence:   0.96,
			},
			{
				StartMs:      20400,
				EndMs:        31200,
				SpeakerLabel: "B",
				Text:         "Fear that a missed release would land on me anyway. If I'm going to be accountable either way, it feels safer to just do it myself.",
				Confidence:   0.93,
			},
			{
				StartMs:      31800,
				EndMs:        38500,
				SpeakerLabel: "A",
				Text:         "So the accountability stays with you even when the work moves. What would need to be true for the ownership to move too?",
				Confidence:   0.95,
			},
		},
		AudioDurationMs: 39000,
		LanguageCode:    "en",
		Usage: stt.UsageInfo{
			Provider:     "mock-stt-v1",
			TranscriptID: "mock-transcript",
			AudioSeconds: 39,
			Duration:     150 * time.Millisecond,
		},
	}, nil
}

// Reset clears call counters and custom responses for testing
func (p *Provider) Reset() {
	p.TranscribeCalls = 0
	p.TranscribeResponse = nil
	p.TranscribeError = nil
}
