// Package jobs contains background job handlers for the worker pool.
//
// This file implements the monthly usage close-out job.
package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/kaiwahq/kaiwa/internal/domain"
	"github.com/kaiwahq/kaiwa/internal/repository"
	"github.com/kaiwahq/kaiwa/internal/service"
	"github.com/kaiwahq/kaiwa/internal/worker"
)

// closeOutGrace pushes the next close-out past the exact month boundary so
// usage written right at midnight UTC still lands in the closing month.
const closeOutGrace = 5 * time.Minute

// MonthlyResetHandler processes the monthly usage close-out. It snapshots
// each user's counters for the closed month and schedules the close-out for
// the following month.
type MonthlyResetHandler struct {
	queries *repository.Queries
	usage   service.UsageService
	logger  *slog.Logger
}

// NewMonthlyResetHandler creates a new handler for monthly close-out jobs.
func NewMonthlyResetHandler(
	queries *repository.Queries,
	usage service.UsageService,
	logger *slog.Logger,
) *MonthlyResetHandler {
	return &MonthlyResetHandler{
		queries: queries,
		usage:   usage,
		logger:  logger,
	}
}

// Type returns the job type identifier.
func (h *MonthlyResetHandler) Type() string {
	return worker.JobTypeMonthlyReset
}

// Handle executes the close-out job. CloseMonth is idempotent, so a retry
// after a partial failure simply rewrites the same summaries.
func (h *MonthlyResetHandler) Handle(ctx context.Context, payload []byte) error {
	var p worker.MonthlyResetPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return worker.NewPermanentError(fmt.Errorf("invalid payload: %w", err))
	}
	if p.PeriodStart.IsZero() {
		return worker.NewPermanentError(fmt.Errorf("missing period start"))
	}

	start, end := domain.MonthBoundaries(p.PeriodStart)

	closed, err := h.usage.CloseMonth(ctx, start)
	if err != nil {
		return fmt.Errorf("close month %s: %w", start.Format("2006-01"), err)
	}

	h.logger.Info("Monthly usage close-out finished",
		"period_start", start,
		"users_closed", closed,
	)

	// Chain the next boundary. The scheduler also enqueues this on
	// startup; EnqueueMonthlyReset dedupes, so double-scheduling is safe.
	nextStart := end
	_, nextEnd := domain.MonthBoundaries(nextStart)
	_, enqueued, err := worker.EnqueueMonthlyReset(ctx, h.queries, nextStart, nextEnd.Add(closeOutGrace))
	if err != nil {
		// The close-out itself succeeded. Log and let the scheduler's
		// startup pass cover the next boundary.
		h.logger.Error("Failed to schedule next monthly close-out",
			"next_period_start", nextStart,
			"error", err,
		)
		return nil
	}
	if enqueued {
		h.logger.Info("Scheduled next monthly close-out",
			"next_period_start", nextStart,
			"run_at", nextEnd.Add(closeOutGrace),
		)
	}

	return nil
}
