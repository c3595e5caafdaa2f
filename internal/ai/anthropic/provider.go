package anthropic

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/kaiwahq/kaiwa/internal/ai"
	"github.com/kaiwahq/kaiwa/internal/domain"
)

const (
	// APIBaseURL is the base URL for the Anthropic API
	APIBaseURL = "https://api.anthropic.com/v1/messages"

	// APIVersion is the Anthropic API version
	APIVersion = "2023-06-01"

	// DefaultModel is the default Claude model to use
	DefaultModel = "claude-3-5-sonnet-20241022"

	// MaxTranscriptChars caps how much transcript we send in one request.
	// Longer transcripts are truncated from the middle, keeping the
	// opening and closing of the session.
	MaxTranscriptChars = 300_000

	// Pricing in cents per 1M tokens for claude-3-5-sonnet
	PricingInputCents  = 300  // $3 per 1M input tokens
	PricingOutputCents = 1500 // $15 per 1M output tokens
)

// Config contains configuration for the Anthropic provider
type Config struct {
	APIKey         string
	Model          string
	ProviderConfig ai.ProviderConfig
}

// Provider implements the AIProvider interface using Anthropic's Claude API
type Provider struct {
	config Config
	client *http.Client
	logger *slog.Logger
}

// New creates a new Anthropic AI provider
func New(config Config, logger *slog.Logger) (*Provider, error) {
	if config.APIKey == "" {
		return nil, fmt.Errorf("anthropic API key is required")
	}

	// Set defaults
	if config.Model == "" {
		config.Model = DefaultModel
	}
	if config.ProviderConfig.MaxRetries == 0 {
		config.ProviderConfig.MaxRetries = 3
	}
	if config.ProviderConfig.RetryBaseDelay == 0 {
		config.ProviderConfig.RetryBaseDelay = 1 * time.Second
	}
	if config.ProviderConfig.RequestTimeout == 0 {
		config.ProviderConfig.RequestTimeout = 60 * time.Second
	}

	return &Provider{
		config: config,
		client: &http.Client{
			Timeout: config.ProviderConfig.RequestTimeout,
		},
		logger: logger,
	}, nil
}

// AnalyzeSession analyzes a transcribed coaching session using Claude
func (p *Provider) AnalyzeSession(ctx context.Context, params ai.AnalyzeSessionParams) (*domain.SessionAnalysis, error) {
	startTime := time.Now()

	if params.Transcript == nil || len(params.Transcript.Segments) == 0 {
		return nil, ai.WrapError("analyze session", ai.EAIInvalidTranscript)
	}

	// Build the request
	req, err := p.buildAnalyzeSessionRequest(ctx, params)
	if err != nil {
		return nil, ai.WrapError("build request", err)
	}

	// Execute with retry logic
	resp, err := p.executeWithRetry(ctx, req)
	if err != nil {
		return nil, ai.WrapError("execute request", err)
	}

	// Parse the response
	result, err := p.parseAnalysisResponse(resp)
	if err != nil {
		return nil, ai.WrapError("parse response", err)
	}

	// The talk ratio comes from the transcript timing, not the model.
	ratios := params.Transcript.TalkRatioByRole()
	result.CoachTalkRatio = ratios[domain.SpeakerRoleCoach]

	result.Usage = domain.AnalysisUsageInfo{
		Model:        p.config.Model,
		InputTokens:  resp.Usage.InputTokens,
		OutputTokens: resp.Usage.OutputTokens,
		CostCents:    p.calculateCost(resp.Usage.InputTokens, resp.Usage.OutputTokens),
	}

	p.logger.Debug("session analysis completed",
		"session_id", params.SessionID,
		"input_tokens", resp.Usage.InputTokens,
		"output_tokens", resp.Usage.OutputTokens,
		"duration", time.Since(startTime),
	)

	return result, nil
}

// buildAnalyzeSessionRequest builds the HTTP request for session analysis
func (p *Provider) buildAnalyzeSessionRequest(ctx context.Context, params ai.AnalyzeSessionParams) (*http.Request, error) {
	prompt := buildSessionAnalysisPrompt(params.SessionTitle, params.ClientGoals, params.DurationMinutes)
	rendered := renderTranscript(params.Transcript)

	reqBody := apiRequest{
		Model:     p.config.Model,
		MaxTokens: 4096,
		Messages: []apiMessage{
			{
				Role: "user",
				Content: []apiContent{
					{
						Type: "text",
						Text: prompt + "\n\n**Transcript:**\n" + rendered,
					},
				},
			},
		},
	}

	// Marshal to JSON
	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	// Create HTTP request
	req, err := http.NewRequestWithContext(ctx, "POST", APIBaseURL, bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	// Set headers
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", p.config.APIKey)
	req.Header.Set("anthropic-version", APIVersion)

	return req, nil
}

// renderTranscript formats the transcript for the prompt:
// one "[mm:ss] speaker: text" line per segment. Assigned roles replace
// the raw diarization labels.
func renderTranscript(t *domain.Transcript) string {
	var b strings.Builder
	for _, seg := range t.Segments {
		speaker := seg.SpeakerLabel
		if seg.SpeakerRole != domain.SpeakerRoleUnassigned {
			speaker = string(seg.SpeakerRole)
		}
		if speaker == "" {
			speaker = "unknown"
		}
		totalSeconds := seg.StartMs / 1000
		fmt.Fprintf(&b, "[%02d:%02d] (%dms) %s: %s\n", totalSeconds/60, totalSeconds%60, seg.StartMs, speaker, seg.Text)
	}

	rendered := b.String()
	if len(rendered) <= MaxTranscriptChars {
		return rendered
	}

	// Keep the first and last halves of the budget, drop the middle.
	half := MaxTranscriptChars / 2
	return rendered[:half] + "\n[... transcript truncated ...]\n" + rendered[len(rendered)-half:]
}

// executeWithRetry executes an HTTP request with exponential backoff retry
func (p *Provider) executeWithRetry(ctx context.Context, req *http.Request) (*apiResponse, error) {
	var lastErr error

	for attempt := 1; attempt <= p.config.ProviderConfig.MaxRetries; attempt++ {
		resp, err := p.executeRequest(ctx, req)
		if err == nil {
			return resp, nil
		}

		lastErr = err

		// Only retry on retryable errors
		if !ai.IsRetryable(err) {
			return nil, err
		}

		// Don't retry if we've exhausted attempts
		if attempt >= p.config.ProviderConfig.MaxRetries {
			break
		}

		// Calculate backoff delay (exponential: base * 2^(attempt-1))
		delay := p.config.ProviderConfig.RetryBaseDelay * time.Duration(1<<(attempt-1))
		p.logger.Info("Retrying AI request", "attempt", attempt, "delay", delay, "error", err)

		// Wait before retry
		select {
		case <-time.After(delay):
			// Continue to next attempt
		case <-ctx.Done():
			return nil, ctx.Err()
		}

		// Need to recreate request body for retry since it was consumed
		// This is safe because we're only retrying transient errors
		if req.GetBody != nil {
			body, err := req.GetBody()
			if err != nil {
				return nil, fmt.Errorf("recreate request body for retry: %w", err)
			}
			req.Body = body
		}
	}

	return nil, lastErr
}

// executeRequest executes a single HTTP request
func (p *Provider) executeRequest(ctx context.Context, req *http.Request) (*apiResponse, error) {
	resp, err := p.client.Do(req)
	if err != nil {
		// Network errors are typically retryable
		return nil, ai.EAIUnavailable
	}
	defer resp.Body.Close()

	// Read response body
	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}

	// Check for errors based on status code
	if resp.StatusCode != http.StatusOK {
		return nil, p.mapHTTPError(resp.StatusCode, bodyBytes)
	}

	// Parse successful response
	var apiResp apiResponse
	if err := json.Unmarshal(bodyBytes, &apiResp); err != nil {
		return nil, fmt.Errorf("unmarshal response: %w", err)
	}

	return &apiResp, nil
}

// mapHTTPError maps HTTP status codes to domain errors
func (p *Provider) mapHTTPError(statusCode int, body []byte) error {
	// Try to parse error response
	var errResp apiErrorResponse
	_ = json.Unmarshal(body, &errResp)

	switch statusCode {
	case http.StatusUnauthorized:
		return ai.EAIUnauthorized
	case http.StatusTooManyRequests:
		return ai.EAIRateLimit
	case http.StatusRequestTimeout:
		return ai.EAITimeout
	case http.StatusBadRequest:
		if errResp.Error.Type == "invalid_request_error" {
			return fmt.Errorf("%w: %s", ai.EAIInvalidTranscript, errResp.Error.Message)
		}
		return fmt.Errorf("bad request: %s", errResp.Error.Message)
	case http.StatusServiceUnavailable, http.StatusBadGateway, http.StatusGatewayTimeout:
		return ai.EAIUnavailable
	default:
		return fmt.Errorf("API error (status %d): %s", statusCode, errResp.Error.Message)
	}
}

// parseAnalysisResponse parses the API response into a SessionAnalysis
func (p *Provider) parseAnalysisResponse(resp *apiResponse) (*domain.SessionAnalysis, error) {
	if len(resp.Content) == 0 {
		return nil, fmt.Errorf("empty response content")
	}

	// Get the text content
	var textContent string
	for _, content := range resp.Content {
		if content.Type == "text" {
			textContent = content.Text
			break
		}
	}

	if textContent == "" {
		return nil, fmt.Errorf("no text content in response")
	}

	// Models occasionally wrap the JSON in a code fence despite
	// instructions; strip it before parsing.
	textContent = strings.TrimSpace(textContent)
	textContent = strings.TrimPrefix(textContent, "```json")
	textContent = strings.TrimPrefix(textContent, "```")
	textContent = strings.TrimSuffix(textContent, "```")

	var output analysisOutput
	if err := json.Unmarshal([]byte(textContent), &output); err != nil {
		return nil, fmt.Errorf("parse analysis output: %w", err)
	}

	result := &domain.SessionAnalysis{
		Summary:            output.Summary,
		KeyTopics:          output.KeyTopics,
		SuggestedQuestions: output.SuggestedQuestions,
		Highlights:         make([]domain.AnalysisMoment, 0, len(output.Highlights)),
	}

	for _, h := range output.Highlights {
		result.Highlights = append(result.Highlights, domain.AnalysisMoment{
			StartMs: h.StartMs,
			Label:   h.Label,
			Quote:   h.Quote,
			Comment: h.Comment,
		})
	}

	return result, nil
}

// calculateCost calculates the cost in cents for the given token usage
func (p *Provider) calculateCost(inputTokens, outputTokens int) int {
	inputCost := (inputTokens * PricingInputCents) / 1_000_000
	outputCost := (outputTokens * PricingOutputCents) / 1_000_000
	return inputCost + outputCost
}

// API request/response types

type apiRequest struct {
	Model     string       `json:"model"`
	MaxTokens int          `json:"max_tokens"`
	Messages  []apiMessage `json:"messages"`
}

type apiMessage struct {
	Role    string       `json:"role"`
	Content []apiContent `json:"content"`
}

type apiContent struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

type apiResponse struct {
	ID      string             `json:"id"`
	Type    string             `json:"type"`
	Role    string             `json:"role"`
	Content []apiContentOutput `json:"content"`
	Model   string             `json:"model"`
	Usage   apiUsage           `json:"usage"`
}

type apiContentOutput struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type apiUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

type apiErrorResponse struct {
	Type  string   `json:"type"`
	Error apiError `json:"error"`
}

type apiError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// analysisOutput represents the JSON structure returned by the model
type analysisOutput struct {
	Summary            string            `json:"summary"`
	KeyTopics          []string          `json:"key_topics"`
	Highlights         []outputHighlight `json:"highlights"`
	SuggestedQuestions []string          `json:"suggested_questions"`
}

type outputHighlight struct {
	StartMs int64  `json:"start_ms"`
	Label   string `json:"label"`
	Quote   string `json:"quote"`
	Comment string `json:"comment"`
}
