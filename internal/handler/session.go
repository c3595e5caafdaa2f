// Package handler contains the HTTP handlers for the Kaiwa API.
//
// This file implements the coaching session endpoints: CRUD, audio and
// transcript upload, transcription and analysis requests, speaker role
// assignment, and report generation/download.
package handler

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kaiwahq/kaiwa/internal/auth"
	"github.com/kaiwahq/kaiwa/internal/domain"
	"github.com/kaiwahq/kaiwa/internal/service"
	"github.com/kaiwahq/kaiwa/internal/transcript"
)

// Upload caps. The per-tier audio cap is enforced by the limit service;
// these bound what the HTTP layer will buffer at all.
const (
	// maxAudioUploadBytes matches the largest tier's audio cap plus
	// multipart framing overhead.
	maxAudioUploadBytes = 500<<20 + 1<<20

	// maxTranscriptUploadBytes caps manual transcript uploads. A full-day
	// session transcript is well under a megabyte of text.
	maxTranscriptUploadBytes = 10 << 20

	// multipartMemoryBytes is how much of a multipart body is held in
	// memory before spilling to temp files.
	multipartMemoryBytes = 10 << 20
)

// SessionHandler handles coaching session HTTP requests.
type SessionHandler struct {
	sessionService service.SessionService
	reportService  service.ReportService
	logger         *slog.Logger
}

// NewSessionHandler creates a new SessionHandler.
func NewSessionHandler(sessionService service.SessionService, reportService service.ReportService, logger *slog.Logger) *SessionHandler {
	return &SessionHandler{
		sessionService: sessionService,
		reportService:  reportService,
		logger:         logger,
	}
}

// RegisterRoutes registers session routes on the provided mux.
// All routes require an authenticated, verified user.
func (h *SessionHandler) RegisterRoutes(mux *http.ServeMux, requireVerified func(http.Handler) http.Handler) {
	mux.Handle("GET /api/sessions", requireVerified(http.HandlerFunc(h.List)))
	mux.Handle("POST /api/sessions", requireVerified(http.HandlerFunc(h.Create)))
	mux.Handle("GET /api/sessions/{id}", requireVerified(http.HandlerFunc(h.Get)))
	mux.Handle("PUT /api/sessions/{id}", requireVerified(http.HandlerFunc(h.Update)))
	mux.Handle("DELETE /api/sessions/{id}", requireVerified(http.HandlerFunc(h.Delete)))

	mux.Handle("POST /api/sessions/{id}/audio", requireVerified(http.HandlerFunc(h.UploadAudio)))
	mux.Handle("GET /api/sessions/{id}/audio", requireVerified(http.HandlerFunc(h.AudioURL)))

	mux.Handle("POST /api/sessions/{id}/transcribe", requireVerified(http.HandlerFunc(h.RequestTranscription)))
	mux.Handle("POST /api/sessions/{id}/transcript", requireVerified(http.HandlerFunc(h.UploadTranscript)))
	mux.Handle("GET /api/sessions/{id}/transcript", requireVerified(http.HandlerFunc(h.GetTranscript)))
	mux.Handle("GET /api/sessions/{id}/transcript/export", requireVerified(http.HandlerFunc(h.ExportTranscript)))
	mux.Handle("PUT /api/sessions/{id}/speakers", requireVerified(http.HandlerFunc(h.AssignSpeakerRoles)))

	mux.Handle("POST /api/sessions/{id}/analyze", requireVerified(http.HandlerFunc(h.RequestAnalysis)))
	mux.Handle("GET /api/sessions/{id}/analysis", requireVerified(http.HandlerFunc(h.GetAnalysis)))

	mux.Handle("POST /api/sessions/{id}/report", requireVerified(http.HandlerFunc(h.RequestReport)))
	mux.Handle("GET /api/sessions/{id}/report", requireVerified(http.HandlerFunc(h.ReportStatus)))
	mux.Handle("GET /api/sessions/{id}/report/{format}", requireVerified(http.HandlerFunc(h.DownloadReport)))

	// Browser-facing download path used in report-ready emails.
	mux.Handle("GET /sessions/{id}/report/{format}", requireVerified(http.HandlerFunc(h.DownloadReport)))
}

// =============================================================================
// CRUD
// =============================================================================

type sessionRequest struct {
	ClientID        *string `json:"client_id"`
	Title           string  `json:"title"`
	SessionDate     string  `json:"session_date"` // RFC 3339
	DurationMinutes int32   `json:"duration_minutes"`
	Notes           string  `json:"notes"`
}

// List returns the coach's sessions, optionally filtered by client.
func (h *SessionHandler) List(w http.ResponseWriter, r *http.Request) {
	user := auth.GetUser(r.Context())
	if user == nil {
		UnauthorizedResponse(w, r, h.logger)
		return
	}

	clientID, err := optionalUUID(r, "client_id")
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	limit, offset := pagination(r)
	result, err := h.sessionService.List(r.Context(), domain.ListSessionsParams{
		UserID:   user.ID,
		ClientID: clientID,
		Limit:    limit,
		Offset:   offset,
	})
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	items := make([]SessionResponse, 0, len(result.Sessions))
	for i := range result.Sessions {
		items = append(items, newSessionResponse(&result.Sessions[i]))
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"sessions": items,
		"meta":     ListMeta{Total: result.Total, Limit: result.Limit, Offset: result.Offset},
	})
}

// Create records a new coaching session. Counts against the monthly
// session limit for the coach's tier.
func (h *SessionHandler) Create(w http.ResponseWriter, r *http.Request) {
	user := auth.GetUser(r.Context())
	if user == nil {
		UnauthorizedResponse(w, r, h.logger)
		return
	}

	var req sessionRequest
	if err := decodeJSON(r, &req); err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	params, err := h.sessionParams(&req, "session.create")
	if err != nil {
		ValidationErrorResponse(w, r, h.logger, err)
		return
	}
	params.UserID = user.ID

	session, err := h.sessionService.Create(r.Context(), *params)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}
	respondJSON(w, http.StatusCreated, map[string]interface{}{"session": newSessionResponse(session)})
}

// Get returns one session by ID.
func (h *SessionHandler) Get(w http.ResponseWriter, r *http.Request) {
	user := auth.GetUser(r.Context())
	if user == nil {
		UnauthorizedResponse(w, r, h.logger)
		return
	}

	id, err := pathUUID(r, "id")
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	session, err := h.sessionService.GetByID(r.Context(), id, user.ID)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"session": newSessionResponse(session)})
}

// Update replaces the session's editable metadata.
func (h *SessionHandler) Update(w http.ResponseWriter, r *http.Request) {
	user := auth.GetUser(r.Context())
	if user == nil {
		UnauthorizedResponse(w, r, h.logger)
		return
	}

	id, err := pathUUID(r, "id")
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	var req sessionRequest
	if err := decodeJSON(r, &req); err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	params, verr := h.sessionParams(&req, "session.update")
	if verr != nil {
		ValidationErrorResponse(w, r, h.logger, verr)
		return
	}

	err = h.sessionService.Update(r.Context(), domain.UpdateSessionParams{
		ID:              id,
		UserID:          user.ID,
		ClientID:        params.ClientID,
		Title:           params.Title,
		SessionDate:     params.SessionDate,
		DurationMinutes: params.DurationMinutes,
		Notes:           params.Notes,
	})
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	session, err := h.sessionService.GetByID(r.Context(), id, user.ID)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"session": newSessionResponse(session)})
}

// Delete removes a session along with its stored audio, transcript
// segments, and reports.
func (h *SessionHandler) Delete(w http.ResponseWriter, r *http.Request) {
	user := auth.GetUser(r.Context())
	if user == nil {
		UnauthorizedResponse(w, r, h.logger)
		return
	}

	id, err := pathUUID(r, "id")
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	if err := h.sessionService.Delete(r.Context(), id, user.ID); err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// Audio
// =============================================================================

// UploadAudio attaches an audio recording to a session.
// Expects a multipart form with an "audio" file field. Replacing
// existing audio resets the transcription state.
func (h *SessionHandler) UploadAudio(w http.ResponseWriter, r *http.Request) {
	user := auth.GetUser(r.Context())
	if user == nil {
		UnauthorizedResponse(w, r, h.logger)
		return
	}

	id, err := pathUUID(r, "id")
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxAudioUploadBytes)
	if err := r.ParseMultipartForm(multipartMemoryBytes); err != nil {
		ErrorResponse(w, r, h.logger, domain.TooLarge("session.upload_audio", "Audio file is too large or the form is malformed"))
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	file, header, err := r.FormFile("audio")
	if err != nil {
		ErrorResponse(w, r, h.logger, domain.Invalid("session.upload_audio", "Missing \"audio\" file field"))
		return
	}
	defer file.Close()

	session, err := h.sessionService.AttachAudio(r.Context(), domain.AttachAudioParams{
		SessionID:   id,
		UserID:      user.ID,
		Filename:    header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Size:        header.Size,
	}, file)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{"session": newSessionResponse(session)})
}

// AudioURL returns a short-lived presigned URL for the session's audio.
func (h *SessionHandler) AudioURL(w http.ResponseWriter, r *http.Request) {
	user := auth.GetUser(r.Context())
	if user == nil {
		UnauthorizedResponse(w, r, h.logger)
		return
	}

	id, err := pathUUID(r, "id")
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	url, err := h.sessionService.AudioURL(r.Context(), id, user.ID)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"url": url})
}

// =============================================================================
// Transcription
// =============================================================================

// RequestTranscription enqueues a transcription job for the session's
// audio. Counts against the transcription and minute limits.
func (h *SessionHandler) RequestTranscription(w http.ResponseWriter, r *http.Request) {
	user := auth.GetUser(r.Context())
	if user == nil {
		UnauthorizedResponse(w, r, h.logger)
		return
	}

	id, err := pathUUID(r, "id")
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	if err := h.sessionService.RequestTranscription(r.Context(), id, user.ID); err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}
	respondJSON(w, http.StatusAccepted, map[string]string{"status": string(domain.TranscriptionStatusPending)})
}

// UploadTranscript stores a manually provided transcript, replacing any
// existing segments. Accepts a multipart "transcript" file (plain text,
// SRT, or VTT).
func (h *SessionHandler) UploadTranscript(w http.ResponseWriter, r *http.Request) {
	user := auth.GetUser(r.Context())
	if user == nil {
		UnauthorizedResponse(w, r, h.logger)
		return
	}

	id, err := pathUUID(r, "id")
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxTranscriptUploadBytes)
	if err := r.ParseMultipartForm(multipartMemoryBytes); err != nil {
		ErrorResponse(w, r, h.logger, domain.TooLarge("session.upload_transcript", "Transcript file is too large or the form is malformed"))
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	file, header, err := r.FormFile("transcript")
	if err != nil {
		ErrorResponse(w, r, h.logger, domain.Invalid("session.upload_transcript", "Missing \"transcript\" file field"))
		return
	}
	defer file.Close()

	content, err := io.ReadAll(file)
	if err != nil {
		InternalErrorResponse(w, r, h.logger, err)
		return
	}

	transcript, err := h.sessionService.UploadTranscript(r.Context(), id, user.ID, header.Filename, content)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{"transcript": newTranscriptResponse(transcript)})
}

// GetTranscript returns the session's transcript with speaker labels
// and the per-role talk time split.
func (h *SessionHandler) GetTranscript(w http.ResponseWriter, r *http.Request) {
	user := auth.GetUser(r.Context())
	if user == nil {
		UnauthorizedResponse(w, r, h.logger)
		return
	}

	id, err := pathUUID(r, "id")
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	transcript, err := h.sessionService.GetTranscript(r.Context(), id, user.ID)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"transcript": newTranscriptResponse(transcript)})
}

// ExportTranscript downloads the session's transcript as a WebVTT file.
func (h *SessionHandler) ExportTranscript(w http.ResponseWriter, r *http.Request) {
	user := auth.GetUser(r.Context())
	if user == nil {
		UnauthorizedResponse(w, r, h.logger)
		return
	}

	id, err := pathUUID(r, "id")
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	tr, err := h.sessionService.GetTranscript(r.Context(), id, user.ID)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	body := transcript.ExportVTT(tr)
	w.Header().Set("Content-Type", "text/vtt; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="transcript-`+id.String()+`.vtt"`)
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(body); err != nil {
		h.logger.Error("failed to write transcript export", "error", err, "session_id", id)
	}
}

type assignSpeakersRequest struct {
	Roles map[string]string `json:"roles"` // speaker label -> "coach"/"client"/"unassigned"
}

// AssignSpeakerRoles maps diarized speaker labels to coach/client roles.
func (h *SessionHandler) AssignSpeakerRoles(w http.ResponseWriter, r *http.Request) {
	user := auth.GetUser(r.Context())
	if user == nil {
		UnauthorizedResponse(w, r, h.logger)
		return
	}

	id, err := pathUUID(r, "id")
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	var req assignSpeakersRequest
	if err := decodeJSON(r, &req); err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}
	if len(req.Roles) == 0 {
		ErrorResponse(w, r, h.logger, domain.Invalid("session.assign_speakers", "No speaker roles provided"))
		return
	}

	roles := make(map[string]domain.SpeakerRole, len(req.Roles))
	for label, raw := range req.Roles {
		role := domain.SpeakerRole(raw)
		if !role.IsValid() {
			ErrorResponse(w, r, h.logger, domain.Errorf(domain.EINVALID, "session.assign_speakers", "Unknown speaker role %q", raw))
			return
		}
		roles[label] = role
	}

	err = h.sessionService.AssignSpeakerRoles(r.Context(), domain.AssignSpeakerRolesParams{
		SessionID: id,
		UserID:    user.ID,
		Roles:     roles,
	})
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// Analysis
// =============================================================================

// RequestAnalysis enqueues an AI analysis job over the transcript.
// Counts against the monthly analysis limit.
func (h *SessionHandler) RequestAnalysis(w http.ResponseWriter, r *http.Request) {
	user := auth.GetUser(r.Context())
	if user == nil {
		UnauthorizedResponse(w, r, h.logger)
		return
	}

	id, err := pathUUID(r, "id")
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	if err := h.sessionService.RequestAnalysis(r.Context(), id, user.ID); err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}
	respondJSON(w, http.StatusAccepted, map[string]string{"status": "queued"})
}

// GetAnalysis returns the stored AI analysis for the session.
func (h *SessionHandler) GetAnalysis(w http.ResponseWriter, r *http.Request) {
	user := auth.GetUser(r.Context())
	if user == nil {
		UnauthorizedResponse(w, r, h.logger)
		return
	}

	id, err := pathUUID(r, "id")
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	analysis, err := h.sessionService.GetAnalysis(r.Context(), id, user.ID)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"analysis": analysis})
}

// =============================================================================
// Reports
// =============================================================================

type requestReportRequest struct {
	Format string `json:"format"` // "pdf" or "docx"
}

// RequestReport enqueues report generation. The coach gets an email
// with a download link when it's ready.
func (h *SessionHandler) RequestReport(w http.ResponseWriter, r *http.Request) {
	user := auth.GetUser(r.Context())
	if user == nil {
		UnauthorizedResponse(w, r, h.logger)
		return
	}

	id, err := pathUUID(r, "id")
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	var req requestReportRequest
	if err := decodeJSON(r, &req); err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	format := domain.ReportFormat(strings.ToLower(strings.TrimSpace(req.Format)))
	if !format.IsValid() {
		ErrorResponse(w, r, h.logger, domain.Invalid("session.request_report", "Report format must be \"pdf\" or \"docx\""))
		return
	}

	if err := h.sessionService.RequestReport(r.Context(), id, user.ID, string(format)); err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}
	respondJSON(w, http.StatusAccepted, map[string]string{"status": "queued", "format": string(format)})
}

// ReportStatus reports which formats have been generated for a session.
func (h *SessionHandler) ReportStatus(w http.ResponseWriter, r *http.Request) {
	user := auth.GetUser(r.Context())
	if user == nil {
		UnauthorizedResponse(w, r, h.logger)
		return
	}

	id, err := pathUUID(r, "id")
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	status, err := h.reportService.Status(r.Context(), id, user.ID)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	formats := make([]string, 0, len(status.Available))
	for _, f := range status.Available {
		formats = append(formats, string(f))
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"session_id": status.SessionID,
		"available":  formats,
	})
}

// DownloadReport redirects to a short-lived presigned URL for the
// generated report. Serves both the API route and the email link.
func (h *SessionHandler) DownloadReport(w http.ResponseWriter, r *http.Request) {
	user := auth.GetUser(r.Context())
	if user == nil {
		UnauthorizedResponse(w, r, h.logger)
		return
	}

	id, err := pathUUID(r, "id")
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	format := domain.ReportFormat(strings.ToLower(r.PathValue("format")))
	if !format.IsValid() {
		ErrorResponse(w, r, h.logger, domain.Invalid("report.download", "Report format must be \"pdf\" or \"docx\""))
		return
	}

	url, err := h.reportService.DownloadURL(r.Context(), id, user.ID, format)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}
	http.Redirect(w, r, url, http.StatusSeeOther)
}

// =============================================================================
// Helpers
// =============================================================================

// sessionParams validates the shared create/update request fields.
func (h *SessionHandler) sessionParams(req *sessionRequest, op string) (*domain.CreateSessionParams, error) {
	var verr error

	title := strings.TrimSpace(req.Title)
	if title == "" {
		verr = domain.AddFieldError(verr, "title", "Title is required")
	}

	var sessionDate time.Time
	if req.SessionDate == "" {
		verr = domain.AddFieldError(verr, "session_date", "Session date is required")
	} else {
		parsed, err := time.Parse(time.RFC3339, req.SessionDate)
		if err != nil {
			verr = domain.AddFieldError(verr, "session_date", "Session date must be RFC 3339 (e.g. 2026-08-24T15:00:00Z)")
		} else {
			sessionDate = parsed
		}
	}

	if req.DurationMinutes <= 0 {
		verr = domain.AddFieldError(verr, "duration_minutes", "Duration must be a positive number of minutes")
	}

	var clientID *uuid.UUID
	if req.ClientID != nil && *req.ClientID != "" {
		parsed, err := uuid.Parse(*req.ClientID)
		if err != nil {
			verr = domain.AddFieldError(verr, "client_id", "Client ID must be a valid UUID")
		} else {
			clientID = &parsed
		}
	}

	if verr != nil {
		var ve *domain.ValidationError
		if errors.As(verr, &ve) {
			ve.Op = op
		}
		return nil, verr
	}

	return &domain.CreateSessionParams{
		ClientID:        clientID,
		Title:           title,
		SessionDate:     sessionDate,
		DurationMinutes: req.DurationMinutes,
		Notes:           req.Notes,
	}, nil
}
