// Package handler contains the HTTP handlers for the Kaiwa API.
//
// This file implements shared request/response plumbing: JSON encoding,
// request body decoding with size limits, path parameter parsing, and
// the response shapes for domain types.
package handler

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/kaiwahq/kaiwa/internal/domain"
)

// maxJSONBodyBytes caps JSON request bodies. Generous for any of our
// payloads; file uploads go through multipart and have their own caps.
const maxJSONBodyBytes = 1 << 20 // 1 MiB

// Default and maximum page sizes for list endpoints.
const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// respondJSON writes v as a JSON response with the given status.
func respondJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v)
	}
}

// decodeJSON reads and decodes a JSON request body into dst.
// Unknown fields are rejected so typos surface instead of silently
// dropping input.
func decodeJSON(r *http.Request, dst interface{}) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxJSONBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return domain.Invalid("", "Invalid JSON request body")
	}
	// A second decode succeeding means trailing garbage after the object.
	if dec.More() {
		return domain.Invalid("", "Request body must contain a single JSON object")
	}
	return nil
}

// pathUUID parses a UUID path parameter registered with the named
// wildcard (e.g. "GET /api/sessions/{id}").
func pathUUID(r *http.Request, name string) (uuid.UUID, error) {
	raw := r.PathValue(name)
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, domain.Invalid("", "Invalid "+name+" in URL")
	}
	return id, nil
}

// optionalUUID parses an optional UUID query parameter. Returns nil when
// the parameter is absent.
func optionalUUID(r *http.Request, name string) (*uuid.UUID, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return nil, nil
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return nil, domain.Invalid("", "Invalid "+name+" query parameter")
	}
	return &id, nil
}

// pagination extracts limit/offset query parameters with sane bounds.
func pagination(r *http.Request) (limit, offset int32) {
	limit = defaultPageSize
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			if n > maxPageSize {
				n = maxPageSize
			}
			limit = int32(n)
		}
	}
	if raw := r.URL.Query().Get("offset"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n >= 0 {
			offset = int32(n)
		}
	}
	return limit, offset
}

// =============================================================================
// Response Shapes
// =============================================================================

// UserResponse is the API representation of a user account.
// The password hash and provider-internal identifiers stay server-side.
type UserResponse struct {
	ID                 uuid.UUID  `json:"id"`
	Email              string     `json:"email"`
	Name               string     `json:"name"`
	PracticeName       string     `json:"practice_name,omitempty"`
	Phone              string     `json:"phone,omitempty"`
	Locale             string     `json:"locale,omitempty"`
	EmailVerified      bool       `json:"email_verified"`
	SubscriptionTier   string     `json:"subscription_tier"`
	SubscriptionStatus string     `json:"subscription_status"`
	CreatedAt          time.Time  `json:"created_at"`
	EmailVerifiedAt    *time.Time `json:"email_verified_at,omitempty"`
}

func newUserResponse(u *domain.User) UserResponse {
	return UserResponse{
		ID:                 u.ID,
		Email:              u.Email,
		Name:               u.Name,
		PracticeName:       u.PracticeName,
		Phone:              u.Phone,
		Locale:             u.Locale,
		EmailVerified:      u.EmailVerified,
		SubscriptionTier:   string(u.SubscriptionTier),
		SubscriptionStatus: string(u.SubscriptionStatus),
		CreatedAt:          u.CreatedAt,
		EmailVerifiedAt:    u.EmailVerifiedAt,
	}
}

// ClientResponse is the API representation of a coached client.
type ClientResponse struct {
	ID           uuid.UUID `json:"id"`
	Name         string    `json:"name"`
	Email        string    `json:"email,omitempty"`
	Phone        string    `json:"phone,omitempty"`
	Timezone     string    `json:"timezone,omitempty"`
	Goals        string    `json:"goals,omitempty"`
	Notes        string    `json:"notes,omitempty"`
	SessionCount int       `json:"session_count"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

func newClientResponse(c *domain.Client) ClientResponse {
	return ClientResponse{
		ID:           c.ID,
		Name:         c.Name,
		Email:        c.Email,
		Phone:        c.Phone,
		Timezone:     c.Timezone,
		Goals:        c.Goals,
		Notes:        c.Notes,
		SessionCount: c.SessionCount,
		CreatedAt:    c.CreatedAt,
		UpdatedAt:    c.UpdatedAt,
	}
}

// SessionResponse is the API representation of a coaching session.
type SessionResponse struct {
	ID                  uuid.UUID  `json:"id"`
	ClientID            *uuid.UUID `json:"client_id,omitempty"`
	ClientName          string     `json:"client_name,omitempty"`
	Title               string     `json:"title"`
	SessionDate         time.Time  `json:"session_date"`
	DurationMinutes     int32      `json:"duration_minutes"`
	Notes               string     `json:"notes,omitempty"`
	HasAudio            bool       `json:"has_audio"`
	AudioBytes          int64      `json:"audio_bytes,omitempty"`
	TranscriptionStatus string     `json:"transcription_status"`
	SegmentCount        int        `json:"segment_count"`
	AnalyzedAt          *time.Time `json:"analyzed_at,omitempty"`
	CreatedAt           time.Time  `json:"created_at"`
	UpdatedAt           time.Time  `json:"updated_at"`
}

func newSessionResponse(s *domain.CoachingSession) SessionResponse {
	return SessionResponse{
		ID:                  s.ID,
		ClientID:            s.ClientID,
		ClientName:          s.ClientName,
		Title:               s.Title,
		SessionDate:         s.SessionDate,
		DurationMinutes:     s.DurationMinutes,
		Notes:               s.Notes,
		HasAudio:            s.HasAudio(),
		AudioBytes:          s.AudioBytes,
		TranscriptionStatus: string(s.TranscriptionStatus),
		SegmentCount:        s.SegmentCount,
		AnalyzedAt:          s.AnalyzedAt,
		CreatedAt:           s.CreatedAt,
		UpdatedAt:           s.UpdatedAt,
	}
}

// SegmentResponse is one diarized transcript utterance.
type SegmentResponse struct {
	Index        int32  `json:"index"`
	StartMs      int64  `json:"start_ms"`
	EndMs        int64  `json:"end_ms"`
	SpeakerLabel string `json:"speaker_label"`
	SpeakerRole  string `json:"speaker_role"`
	Text         string `json:"text"`
}

// TranscriptResponse is the full transcript plus the derived views the
// dashboard needs: distinct speaker labels for role assignment and the
// per-role talk time split.
type TranscriptResponse struct {
	SessionID     uuid.UUID          `json:"session_id"`
	Segments      []SegmentResponse  `json:"segments"`
	SpeakerLabels []string           `json:"speaker_labels"`
	TalkRatio     map[string]float64 `json:"talk_ratio_by_role"`
}

func newTranscriptResponse(t *domain.Transcript) TranscriptResponse {
	segments := make([]SegmentResponse, 0, len(t.Segments))
	for _, seg := range t.Segments {
		segments = append(segments, SegmentResponse{
			Index:        seg.SegmentIndex,
			StartMs:      seg.StartMs,
			EndMs:        seg.EndMs,
			SpeakerLabel: seg.SpeakerLabel,
			SpeakerRole:  string(seg.SpeakerRole),
			Text:         seg.Text,
		})
	}

	ratios := make(map[string]float64)
	for role, ratio := range t.TalkRatioByRole() {
		ratios[string(role)] = ratio
	}

	return TranscriptResponse{
		SessionID:     t.SessionID,
		Segments:      segments,
		SpeakerLabels: t.SpeakerLabels(),
		TalkRatio:     ratios,
	}
}

// ListMeta carries pagination info alongside list results.
type ListMeta struct {
	Total  int64 `json:"total"`
	Limit  int32 `json:"limit"`
	Offset int32 `json:"offset"`
}
