package session

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// EvictionNotifier is told about sessions removed by a sweep.
type EvictionNotifier interface {
	SessionsEvicted(ids []string)
}

// Sweeper periodically evicts idle sessions from a Store.
type Sweeper struct {
	store       *Store
	clock       Clock
	cron        *cron.Cron
	interval    time.Duration
	idleTimeout time.Duration
	notifier    EvictionNotifier
	logger      *slog.Logger
}

// NewSweeper wires a sweeper; call Start to begin sweeping.
func NewSweeper(store *Store, interval, idleTimeout time.Duration, notifier EvictionNotifier, logger *slog.Logger) *Sweeper {
	if logger == nil {
		logger = slog.Default()
	}
	return &Sweeper{
		store:       store,
		clock:       store.clock,
		cron:        cron.New(cron.WithLocation(time.UTC)),
		interval:    interval,
		idleTimeout: idleTimeout,
		notifier:    notifier,
		logger:      logger,
	}
}

// Start schedules the sweep. Overlapping runs are skipped rather than queued.
func (s *Sweeper) Start() error {
	if s.interval <= 0 {
		return fmt.Errorf("sweep interval must be positive, got %s", s.interval)
	}

	job := cron.NewChain(cron.SkipIfStillRunning(cron.DiscardLogger)).Then(cron.FuncJob(func() {
		s.RunOnce()
	}))
	if _, err := s.cron.AddJob("@every "+s.interval.String(), job); err != nil {
		return fmt.Errorf("schedule session sweep: %w", err)
	}

	s.cron.Start()
	s.logger.Info("session sweeper started", "interval", s.interval, "idle_timeout", s.idleTimeout)
	return nil
}

// RunOnce performs a single sweep against the current clock.
func (s *Sweeper) RunOnce() []string {
	now := s.clock.Now()
	evicted := s.store.Sweep(now, s.idleTimeout)

	if len(evicted) > 0 {
		for _, id := range evicted {
			s.logger.Info("evicted idle session", "session_id", id)
		}
		if s.notifier != nil {
			s.notifier.SessionsEvicted(evicted)
		}
	}
	s.logger.Debug("session sweep complete", "evicted", len(evicted), "remaining", s.store.Len())
	return evicted
}

// Stop unschedules the sweep and waits for an in-flight run, or for ctx to end.
func (s *Sweeper) Stop(ctx context.Context) {
	done := s.cron.Stop()
	select {
	case <-done.Done():
		s.logger.Info("session sweeper stopped")
	case <-ctx.Done():
		s.logger.Warn("session sweeper stop abandoned", "error", ctx.Err())
	}
}
