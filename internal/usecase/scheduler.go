package usecase

import (
	"context"
	"time"

	"github.com/sourcegraph/conc"

	"github.com/hkropp/nhl-goal-light/internal/platform/logging"
)

// minTimerDelay is the floor for a re-armed timer: an already-elapsed
// pre-game window means "refresh immediately", not "spin".
const minTimerDelay = time.Second

// Scheduler drives the two independent self-rescheduling loops: scoreboard
// refresh and notification dispatch. Each loop is a single-shot timer that
// performs its action, asks its service for the next delay and re-arms
// itself; neither is ever left unarmed.
type Scheduler struct {
	tracker  *TrackerService
	dispatch *DispatchService
	logger   *logging.Logger
}

func NewScheduler(tracker *TrackerService, dispatch *DispatchService, logger *logging.Logger) *Scheduler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Scheduler{
		tracker:  tracker,
		dispatch: dispatch,
		logger:   logger,
	}
}

// Run starts both loops and blocks until ctx is cancelled and both have
// drained.
func (s *Scheduler) Run(ctx context.Context) {
	var wg conc.WaitGroup
	wg.Go(func() { s.scoreboardLoop(ctx) })
	wg.Go(func() { s.dispatchLoop(ctx) })
	wg.Wait()
}

func (s *Scheduler) scoreboardLoop(ctx context.Context) {
	delay := clampDelay(s.tracker.NextRefreshInterval())
	s.logger.Info("scoreboard loop armed", "delay", delay)

	timer := time.NewTimer(delay)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scoreboard loop stopped")
			return
		case <-timer.C:
			events, err := s.tracker.RefreshScoreboard(ctx)
			if err != nil {
				// State is untouched on a failed fetch; the next delay is
				// recomputed from what we already know.
				s.logger.Error("scoreboard refresh failed", "error", err)
			} else {
				s.dispatch.PushGoals(ctx, events)
			}

			delay = clampDelay(s.tracker.NextRefreshInterval())
			s.logger.Info("scoreboard loop re-armed", "delay", delay)
			timer.Reset(delay)
		}
	}
}

func (s *Scheduler) dispatchLoop(ctx context.Context) {
	delay := clampDelay(s.dispatch.WarmupInterval())
	s.logger.Info("dispatch loop armed", "delay", delay)

	timer := time.NewTimer(delay)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("dispatch loop stopped")
			return
		case <-timer.C:
			if err := s.dispatch.PushMatchups(ctx); err != nil {
				s.logger.Error("matchup push failed", "error", err)
			}

			delay = clampDelay(s.dispatch.NextInterval())
			s.logger.Info("dispatch loop re-armed", "delay", delay)
			timer.Reset(delay)
		}
	}
}

func clampDelay(d time.Duration) time.Duration {
	if d < minTimerDelay {
		return minTimerDelay
	}
	return d
}
