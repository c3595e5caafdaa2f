// Package assemblyai implements the stt.Provider interface using the
// AssemblyAI REST API with speaker diarization enabled.
package assemblyai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/kaiwahq/kaiwa/internal/stt"
)

const (
	// APIBaseURL is the base URL for the AssemblyAI API
	APIBaseURL = "https://api.assemblyai.com/v2"

	// MaxAudioSize is the maximum upload size accepted by the API (2GB,
	// though plan limits cut in far earlier)
	MaxAudioSize = 2 * 1024 * 1024 * 1024
)

// Config contains configuration for the AssemblyAI provider
type Config struct {
	APIKey         string
	PollInterval   time.Duration // How often to poll for transcript completion
	RequestTimeout time.Duration // Timeout for individual HTTP requests
}

// Provider implements the stt.Provider interface using AssemblyAI
type Provider struct {
	config Config
	client *http.Client
	logger *slog.Logger
}

// New creates a new AssemblyAI provider
func New(config Config, logger *slog.Logger) (*Provider, error) {
	if config.APIKey == "" {
		return nil, fmt.Errorf("assemblyai API key is required")
	}
	if config.PollInterval == 0 {
		config.PollInterval = 3 * time.Second
	}
	if config.RequestTimeout == 0 {
		config.RequestTimeout = 30 * time.Second
	}

	return &Provider{
		config: config,
		client: &http.Client{
			Timeout: config.RequestTimeout,
		},
		logger: logger,
	}, nil
}

// Transcribe uploads the audio (if not already reachable by URL), submits
// a diarized transcription job, and polls until it completes.
func (p *Provider) Transcribe(ctx context.Context, params stt.TranscribeParams) (*stt.Result, error) {
	startTime := time.Now()

	audioURL := params.AudioURL
	if audioURL == "" {
		if len(params.AudioData) == 0 {
			return nil, stt.WrapError("transcribe", stt.ESTTInvalidAudio)
		}
		if len(params.AudioData) > MaxAudioSize {
			return nil, stt.WrapError("transcribe", fmt.Errorf("%w: audio size %d exceeds maximum %d", stt.ESTTInvalidAudio, len(params.AudioData), MaxAudioSize))
		}
		uploaded, err := p.upload(ctx, params.AudioData)
		if err != nil {
			return nil, stt.WrapError("upload audio", err)
		}
		audioURL = uploaded
	}

	transcriptID, err := p.submit(ctx, audioURL, params.LanguageCode)
	if err != nil {
		return nil, stt.WrapError("submit transcript", err)
	}

	p.logger.Debug("submitted transcription job",
		"transcript_id", transcriptID,
		"session_id", params.SessionID,
	)

	transcript, err := p.poll(ctx, transcriptID)
	if err != nil {
		return nil, stt.WrapError("poll transcript", err)
	}

	result := &stt.Result{
		Segments:        make([]stt.Segment, 0, len(transcript.Utterances)),
		AudioDurationMs: int64(transcript.AudioDuration) * 1000,
		LanguageCode:    transcript.LanguageCode,
		Usage: stt.UsageInfo{
			Provider:     "assemblyai",
			TranscriptID: transcriptID,
			AudioSeconds: transcript.AudioDuration,
			Duration:     time.Since(startTime),
		},
	}

	for _, u := range transcript.Utterances {
		result.Segments = append(result.Segments, stt.Segment{
			StartMs:      u.Start,
			EndMs:        u.End,
			SpeakerLabel: u.Speaker,
			Text:         u.Text,
			Confidence:   u.Confidence,
		})
	}

	// Some short recordings come back without utterances even with
	// diarization on. Fall back to the full text as a single segment.
	if len(result.Segments) == 0 && transcript.Text != "" {
		result.Segments = append(result.Segments, stt.Segment{
			StartMs: 0,
			EndMs:   result.AudioDurationMs,
			Text:    transcript.Text,
		})
	}

	return result, nil
}

// upload sends raw audio bytes to the upload endpoint and returns the
// temporary URL AssemblyAI assigns to it.
func (p *Provider) upload(ctx context.Context, data []byte) (string, error) {
	req, err := http.NewRequestWithContext(ctx, "POST", APIBaseURL+"/upload", bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("create upload request: %w", err)
	}
	req.Header.Set("Authorization", p.config.APIKey)
	req.Header.Set("Content-Type", "application/octet-stream")

	// Uploads can exceed the default request timeout.
	client := &http.Client{Timeout: 10 * time.Minute}
	resp, err := client.Do(req)
	if err != nil {
		return "", stt.ESTTUnavailable
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read upload response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", p.mapHTTPError(resp.StatusCode, body)
	}

	var out uploadResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return "", fmt.Errorf("unmarshal upload response: %w", err)
	}
	if out.UploadURL == "" {
		return "", fmt.Errorf("upload response missing upload_url")
	}
	return out.UploadURL, nil
}

// submit creates a transcription job with speaker diarization enabled.
func (p *Provider) submit(ctx context.Context, audioURL, languageCode string) (string, error) {
	reqBody := transcriptRequest{
		AudioURL:      audioURL,
		SpeakerLabels: true,
	}
	if languageCode != "" {
		reqBody.LanguageCode = languageCode
	} else {
		reqBody.LanguageDetection = true
	}

	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("marshal transcript request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", APIBaseURL+"/transcript", bytes.NewReader(bodyBytes))
	if err != nil {
		return "", fmt.Errorf("create transcript request: %w", err)
	}
	req.Header.Set("Authorization", p.config.APIKey)
	req.Header.Set("Content-Type", "application/json")

	transcript, err := p.execute(req)
	if err != nil {
		return "", err
	}
	return transcript.ID, nil
}

// poll fetches the transcript status until it completes or errors.
func (p *Provider) poll(ctx context.Context, transcriptID string) (*transcriptResponse, error) {
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(p.config.PollInterval):
		}

		req, err := http.NewRequestWithContext(ctx, "GET", APIBaseURL+"/transcript/"+transcriptID, nil)
		if err != nil {
			return nil, fmt.Errorf("create poll request: %w", err)
		}
		req.Header.Set("Authorization", p.config.APIKey)

		transcript, err := p.execute(req)
		if err != nil {
			// Transient poll failures shouldn't kill a job that's still
			// running server-side.
			if stt.IsRetryable(err) {
				p.logger.Debug("transient poll error", "transcript_id", transcriptID, "error", err)
				continue
			}
			return nil, err
		}

		switch transcript.Status {
		case "completed":
			return transcript, nil
		case "error":
			return nil, fmt.Errorf("%w: %s", stt.ESTTInvalidAudio, transcript.Error)
		case "queued", "processing":
			// Keep polling.
		default:
			return nil, fmt.Errorf("unexpected transcript status %q", transcript.Status)
		}
	}
}

// execute runs a single HTTP request and parses a transcript response.
func (p *Provider) execute(req *http.Request) (*transcriptResponse, error) {
	resp, err := p.client.Do(req)
	if err != nil {
		return nil, stt.ESTTUnavailable
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, p.mapHTTPError(resp.StatusCode, body)
	}

	var transcript transcriptResponse
	if err := json.Unmarshal(body, &transcript); err != nil {
		return nil, fmt.Errorf("unmarshal transcript response: %w", err)
	}
	return &transcript, nil
}

// mapHTTPError maps HTTP status codes to stt errors.
func (p *Provider) mapHTTPError(statusCode int, body []byte) error {
	var errResp errorResponse
	_ = json.Unmarshal(body, &errResp)

	switch statusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		return stt.ESTTUnauthorized
	case http.StatusTooManyRequests:
		return stt.ESTTRateLimit
	case http.StatusRequestTimeout:
		return stt.ESTTTimeout
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		return fmt.Errorf("%w: %s", stt.ESTTInvalidAudio, errResp.Error)
	case http.StatusServiceUnavailable, http.StatusBadGateway, http.StatusGatewayTimeout:
		return stt.ESTTUnavailable
	default:
		return fmt.Errorf("API error (status %d): %s", statusCode, errResp.Error)
	}
}

// API request/response types

type uploadResponse struct {
	UploadURL string `json:"upload_url"`
}

type transcriptRequest struct {
	AudioURL          string `json:"audio_url"`
	SpeakerLabels     bool   `json:"speaker_labels"`
	LanguageCode      string `json:"language_code,omitempty"`
	LanguageDetection bool   `json:"language_detection,omitempty"`
}

type transcriptResponse struct {
	ID            string      `json:"id"`
	Status        string      `json:"status"`
	Text          string      `json:"text"`
	Error         string      `json:"error"`
	LanguageCode  string      `json:"language_code"`
	AudioDuration float64     `json:"audio_duration"`
	Utterances    []utterance `json:"utterances"`
}

type utterance struct {
	Start      int64   `json:"start"`
	End        int64   `json:"end"`
	Speaker    string  `json:"speaker"`
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
}

type errorResponse struct {
	Error string `json:"error"`
}
