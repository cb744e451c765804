package scheduler

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/assurline/assurline/internal/clock"
	"github.com/assurline/assurline/internal/config"
	quotedomain "github.com/assurline/assurline/internal/quote/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const defaultSweepInterval = 10 * time.Minute

// Scheduler runs the periodic maintenance jobs. Jobs are singletons within
// the process: a tick that fires while the previous run is still going is
// skipped, and the underlying bulk updates keep concurrent instances safe.
type Scheduler struct {
	log      *zap.Logger
	clock    clock.Clock
	quoteSvc quotedomain.Service
	interval time.Duration
	sweeping atomic.Bool
}

type Params struct {
	fx.In

	Log      *zap.Logger
	Clock    clock.Clock
	Cfg      config.Config
	QuoteSvc quotedomain.Service
}

func New(p Params) *Scheduler {
	interval := p.Cfg.SweepInterval
	if interval <= 0 {
		interval = defaultSweepInterval
	}
	return &Scheduler{
		log:      p.Log.Named("scheduler"),
		clock:    p.Clock,
		quoteSvc: p.QuoteSvc,
		interval: interval,
	}
}

func (s *Scheduler) RunForever(ctx context.Context) {
	s.log.Info("scheduler started", zap.Duration("sweep_interval", s.interval))
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.log.Info("scheduler stopped")
			return
		case <-ticker.C:
			if err := s.ExpireQuotesJob(ctx); err != nil {
				s.log.Error("quote expiry sweep failed", zap.Error(err))
			}
		}
	}
}

// ExpireQuotesJob transitions overdue simulations to EXPIRED.
func (s *Scheduler) ExpireQuotesJob(ctx context.Context) error {
	if !s.sweeping.CompareAndSwap(false, true) {
		s.log.Debug("quote expiry sweep already running, skipping tick")
		return nil
	}
	defer s.sweeping.Store(false)

	n, err := s.quoteSvc.SweepExpired(ctx)
	if err != nil {
		return err
	}
	if n > 0 {
		s.log.Info("quote expiry sweep done", zap.Int("expired", n))
	}
	return nil
}

var Module = fx.Module("scheduler",
	fx.Provide(New),
)
