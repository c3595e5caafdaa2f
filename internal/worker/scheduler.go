package worker

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/kaiwahq/kaiwa/internal/domain"
	"github.com/kaiwahq/kaiwa/internal/repository"
)

// Scheduler keeps recurring jobs on the queue. Right now that is just the
// monthly usage close-out: every tick it makes sure a reset job exists for
// the end of the current UTC month.
type Scheduler struct {
	queries  *repository.Queries
	interval time.Duration
	logger   *slog.Logger

	wg     sync.WaitGroup
	stopCh chan struct{}
}

// NewScheduler creates a scheduler that checks every interval.
// An interval of 0 defaults to one hour.
func NewScheduler(queries *repository.Queries, interval time.Duration, logger *slog.Logger) *Scheduler {
	if interval <= 0 {
		interval = time.Hour
	}
	return &Scheduler{
		queries:  queries,
		interval: interval,
		logger:   logger,
		stopCh:   make(chan struct{}),
	}
}

// Start begins the scheduling loop. It runs one pass immediately so a
// freshly deployed instance doesn't wait a full interval to schedule the
// close-out.
func (s *Scheduler) Start(ctx context.Context) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		s.ensureMonthlyReset(ctx)

		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			select {
			case <-s.stopCh:
				return
			case <-ticker.C:
				s.ensureMonthlyReset(ctx)
			}
		}
	}()

	s.logger.Info("Scheduler started", "interval", s.interval)
}

// Stop signals the scheduler to stop and waits for it to finish.
func (s *Scheduler) Stop() {
	close(s.stopCh)
	s.wg.Wait()
	s.logger.Info("Scheduler stopped")
}

func (s *Scheduler) ensureMonthlyReset(ctx context.Context) {
	periodStart, periodEnd := domain.MonthBoundaries(time.Now())

	// Run shortly after the boundary so late usage writes land first.
	runAt := periodEnd.Add(5 * time.Minute)

	job, created, err := EnqueueMonthlyReset(ctx, s.queries, periodStart, runAt)
	if err != nil {
		s.logger.Error("Failed to schedule monthly usage reset", "error", err)
		return
	}
	if created {
		s.logger.Info("Scheduled monthly usage reset",
			"job_id", job.ID,
			"period_start", periodStart,
			"run_at", runAt,
		)
	}
}
