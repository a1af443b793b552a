package reconcile

import (
	"context"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"
)

// Runner performs a reconciliation run. *Engine satisfies it.
type Runner interface {
	Run(ctx context.Context, req Request) (*Result, error)
}

// Scheduler runs the default-window sync for one group on a fixed interval.
type Scheduler struct {
	runner   Runner
	groupID  string
	amount   decimal.Decimal
	interval time.Duration
	logger   *slog.Logger
	observe  func(*Result, error)
}

// NewScheduler returns a Scheduler. An interval of zero or less disables it.
func NewScheduler(runner Runner, groupID string, amount decimal.Decimal, interval time.Duration, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		runner:   runner,
		groupID:  groupID,
		amount:   amount,
		interval: interval,
		logger:   logger,
	}
}

// OnRun registers fn to be called after every scheduled run, including
// failed ones. It must be called before Run.
func (s *Scheduler) OnRun(fn func(*Result, error)) {
	s.observe = fn
}

// Enabled reports whether Run does any work.
func (s *Scheduler) Enabled() bool {
	return s.interval > 0 && s.groupID != ""
}

// Run syncs once immediately and then on every tick until ctx is done.
// Failed runs are logged and do not stop the loop.
func (s *Scheduler) Run(ctx context.Context) {
	if !s.Enabled() {
		s.logger.InfoContext(ctx, "periodic sync disabled")
		return
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.InfoContext(ctx, "periodic sync started", slog.Duration("interval", s.interval))
	s.syncOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			s.logger.InfoContext(ctx, "periodic sync stopped")
			return
		case <-ticker.C:
			s.syncOnce(ctx)
		}
	}
}

func (s *Scheduler) syncOnce(ctx context.Context) {
	start := time.Now()
	res, err := s.runner.Run(ctx, Request{GroupID: s.groupID, PenaltyAmount: s.amount})
	if err != nil && ctx.Err() != nil {
		return
	}
	if s.observe != nil {
		s.observe(res, err)
	}
	if err != nil {
		s.logger.ErrorContext(ctx, "periodic sync failed",
			slog.Any("error", err),
			slog.Duration("duration", time.Since(start)),
		)
		return
	}
	s.logger.InfoContext(ctx, "periodic sync finished",
		slog.Int("new_penalties", res.NewPenalties),
		slog.Duration("duration", time.Since(start)),
	)
}
