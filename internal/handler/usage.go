// Package handler contains the HTTP handlers for the Kaiwa API.
//
// This file implements the usage report endpoint: current-month usage
// against the coach's plan limits.
package handler

import (
	"log/slog"
	"net/http"

	"github.com/kaiwahq/kaiwa/internal/auth"
	"github.com/kaiwahq/kaiwa/internal/domain"
	"github.com/kaiwahq/kaiwa/internal/service"
)

// UsageHandler serves the monthly usage report.
type UsageHandler struct {
	usageService service.UsageService
	logger       *slog.Logger
}

// NewUsageHandler creates a new UsageHandler.
func NewUsageHandler(usageService service.UsageService, logger *slog.Logger) *UsageHandler {
	return &UsageHandler{
		usageService: usageService,
		logger:       logger,
	}
}

// RegisterRoutes registers usage routes on the provided mux.
// The plan catalogue is public; the pricing page reads it before signup.
func (h *UsageHandler) RegisterRoutes(mux *http.ServeMux, requireUser func(http.Handler) http.Handler) {
	mux.Handle("GET /api/usage", requireUser(http.HandlerFunc(h.Report)))
	mux.HandleFunc("GET /api/plans", h.Plans)
}

// Report returns the current UTC-month usage evaluated against the
// user's effective tier. Limits of -1 mean unlimited.
func (h *UsageHandler) Report(w http.ResponseWriter, r *http.Request) {
	user := auth.GetUser(r.Context())
	if user == nil {
		UnauthorizedResponse(w, r, h.logger)
		return
	}

	report, err := h.usageService.Report(r.Context(), user)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"usage": report})
}

// planResponse is one tier in the public plan catalogue.
type planResponse struct {
	Tier                         string `json:"tier"`
	SessionsPerMonth             int64  `json:"sessions_per_month"`
	TranscriptionMinutesPerMonth int64  `json:"transcription_minutes_per_month"`
	TranscriptionsPerMonth       int64  `json:"transcriptions_per_month"`
	AnalysesPerMonth             int64  `json:"ai_analyses_per_month"`
	MaxAudioFileBytes            int64  `json:"max_audio_file_bytes"`
}

// Plans returns the plan catalogue. Limits of -1 mean unlimited.
func (h *UsageHandler) Plans(w http.ResponseWriter, r *http.Request) {
	tiers := []domain.PlanTier{domain.PlanTierFree, domain.PlanTierPro, domain.PlanTierBusiness}

	plans := make([]planResponse, 0, len(tiers))
	for _, tier := range tiers {
		limits := domain.LimitsForTier(tier)
		plans = append(plans, planResponse{
			Tier:                         string(tier),
			SessionsPerMonth:             limits.SessionsPerMonth,
			TranscriptionMinutesPerMonth: limits.TranscriptionMinutesPerMonth,
			TranscriptionsPerMonth:       limits.TranscriptionsPerMonth,
			AnalysesPerMonth:             limits.AnalysesPerMonth,
			MaxAudioFileBytes:            limits.MaxAudioFileBytes,
		})
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"plans": plans})
}
