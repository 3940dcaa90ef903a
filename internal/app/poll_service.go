package app

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/daybetterd/internal/config"
	"github.com/dokzlo13/daybetterd/internal/device"
	"github.com/dokzlo13/daybetterd/internal/ledger"
	"github.com/dokzlo13/daybetterd/internal/poll"
)

// PollService wraps the poll scheduler and related periodic tasks.
type PollService struct {
	cfg       *config.Config
	Scheduler *poll.Scheduler
	ledger    *ledger.Ledger

	wg sync.WaitGroup
}

// NewPollService creates a new PollService.
func NewPollService(cfg *config.Config, registry *device.Registry, fetcher poll.Fetcher, l *ledger.Ledger) *PollService {
	policy := poll.Policy{
		NormalInterval: cfg.Poll.NormalInterval.Duration(),
		BurstInterval:  cfg.Poll.BurstInterval.Duration(),
		BurstDuration:  cfg.Poll.BurstDuration.Duration(),
		IdleTimeout:    cfg.Poll.IdleTimeout.Duration(),
	}

	return &PollService{
		cfg:       cfg,
		Scheduler: poll.NewScheduler(registry, fetcher, policy, cfg.Poll.Tick.Duration()),
		ledger:    l,
	}
}

// Start runs the per-device poll loops and the ledger cleanup.
func (s *PollService) Start(ctx context.Context) {
	s.wg.Add(2)
	go func() {
		defer s.wg.Done()
		if err := s.Scheduler.Run(ctx); err != nil {
			log.Error().Err(err).Msg("Poll scheduler error")
		}
	}()
	go func() {
		defer s.wg.Done()
		s.runLedgerCleanup(ctx)
	}()
}

// Wait blocks until the background loops have exited.
func (s *PollService) Wait() {
	s.wg.Wait()
}

// runLedgerCleanup periodically cleans up old ledger entries.
func (s *PollService) runLedgerCleanup(ctx context.Context) {
	retention := time.Duration(s.cfg.Ledger.RetentionDays) * 24 * time.Hour
	interval := s.cfg.Ledger.CleanupInterval.Duration()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			deleted, err := s.ledger.DeleteOlderThan(retention)
			if err != nil {
				log.Error().Err(err).Msg("Failed to cleanup old ledger entries")
			} else if deleted > 0 {
				log.Info().Int64("deleted", deleted).Dur("retention", retention).Msg("Cleaned up old ledger entries")
			}
		}
	}
}
