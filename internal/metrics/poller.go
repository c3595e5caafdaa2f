package metrics

import (
	"context"
	"log/slog"
	"time"

	"github.com/kaiwahq/kaiwa/internal/repository"
)

// Poller periodically refreshes DB-derived gauges (users per tier, job
// queue depth). Counters are updated inline by the code paths that own
// them; gauges need a snapshot source.
type Poller struct {
	queries  *repository.Queries
	interval time.Duration
	logger   *slog.Logger
	cancel   context.CancelFunc
	done     chan struct{}
}

// NewPoller creates a gauge poller. A zero interval defaults to one minute.
func NewPoller(queries *repository.Queries, interval time.Duration, logger *slog.Logger) *Poller {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Poller{
		queries:  queries,
		interval: interval,
		logger:   logger,
		done:     make(chan struct{}),
	}
}

// Start begins polling in a background goroutine.
func (p *Poller) Start(ctx context.Context) {
	ctx, p.cancel = context.WithCancel(ctx)
	go func() {
		defer close(p.done)
		ticker := time.NewTicker(p.interval)
		defer ticker.Stop()

		p.refresh(ctx)
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				p.refresh(ctx)
			}
		}
	}()
}

// Stop cancels the poll loop and waits for it to exit.
func (p *Poller) Stop() {
	if p.cancel != nil {
		p.cancel()
	}
	<-p.done
}

func (p *Poller) refresh(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if tiers, err := p.queries.CountUsersByTier(ctx); err != nil {
		p.logger.Warn("metrics poller: count users by tier failed", "error", err)
	} else {
		UsersByTier.Reset()
		for _, tc := range tiers {
			UsersByTier.WithLabelValues(tc.SubscriptionTier).Set(float64(tc.Count))
		}
	}

	if statuses, err := p.queries.CountJobsByStatus(ctx); err != nil {
		p.logger.Warn("metrics poller: count jobs by status failed", "error", err)
	} else {
		JobsByStatus.Reset()
		for _, jc := range statuses {
			JobsByStatus.WithLabelValues(jc.Status).Set(float64(jc.Count))
		}
	}
}
