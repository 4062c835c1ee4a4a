// Package refresh keeps the resolver's routing metadata current by running a
// refresh on a fixed schedule for the life of the daemon.
package refresh

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"tankobon/internal/logging"
)

// Refresher reloads remote metadata.
type Refresher interface {
	Refresh(ctx context.Context) error
}

// Scheduler runs a Refresher at a fixed interval. Overlapping runs are
// skipped.
type Scheduler struct {
	refresher Refresher
	interval  time.Duration
	logger    *slog.Logger

	mu      sync.Mutex
	cron    *cron.Cron
	ctx     context.Context
	cancel  context.CancelFunc
	running bool
}

// NewScheduler constructs a scheduler. interval is rounded up to one second.
func NewScheduler(refresher Refresher, interval time.Duration, logger *slog.Logger) *Scheduler {
	if interval < time.Second {
		interval = time.Second
	}
	return &Scheduler{
		refresher: refresher,
		interval:  interval,
		logger:    logging.NewComponentLogger(logger, "refresh"),
	}
}

// Start performs one refresh immediately and then schedules the rest. A
// failing first refresh is logged, not returned; the resolver loads routing
// lazily when it has none.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("refresh scheduler already running")
	}

	s.ctx, s.cancel = context.WithCancel(ctx)
	s.cron = cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	if _, err := s.cron.AddFunc(fmt.Sprintf("@every %s", s.interval), s.run); err != nil {
		s.cancel()
		s.mu.Unlock()
		return fmt.Errorf("schedule refresh: %w", err)
	}
	s.running = true
	s.cron.Start()
	runCtx := s.ctx
	s.mu.Unlock()

	s.logger.Info("routing refresh scheduled", logging.Duration("interval", s.interval))
	s.refresh(runCtx)
	return nil
}

// Stop cancels any in-flight refresh and waits for it to return.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	c, cancel := s.cron, s.cancel
	s.mu.Unlock()

	cancel()
	<-c.Stop().Done()
}

// Running reports whether the schedule is active.
func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

func (s *Scheduler) run() {
	s.mu.Lock()
	ctx := s.ctx
	s.mu.Unlock()
	s.refresh(ctx)
}

func (s *Scheduler) refresh(ctx context.Context) {
	if ctx == nil || ctx.Err() != nil {
		return
	}
	started := time.Now()
	if err := s.refresher.Refresh(ctx); err != nil {
		if ctx.Err() != nil {
			return
		}
		logging.WarnWithContext(s.logger, "routing refresh failed", "routing_refresh_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check source.base_url and network reachability"),
		)
		return
	}
	s.logger.Debug("routing refreshed", logging.Duration("elapsed", time.Since(started)))
}
