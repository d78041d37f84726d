package usecase

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"

	"github.com/hkropp/nhl-goal-light/internal/domain/game"
	"github.com/hkropp/nhl-goal-light/internal/platform/logging"
)

// DispatchConfig tunes the notification push cadence.
type DispatchConfig struct {
	// LiveInterval is the push delay while a game is in progress.
	LiveInterval time.Duration
	// IdleInterval is the push delay otherwise.
	IdleInterval time.Duration
	// Warmup delays the very first matchup push after startup.
	Warmup time.Duration
	// Workers bounds concurrent goal pushes.
	Workers int
}

func (c DispatchConfig) withDefaults() DispatchConfig {
	if c.LiveInterval <= 0 {
		c.LiveInterval = time.Minute
	}
	if c.IdleInterval <= 0 {
		c.IdleInterval = 10 * time.Minute
	}
	if c.Warmup <= 0 {
		c.Warmup = 20 * time.Second
	}
	if c.Workers <= 0 {
		c.Workers = 4
	}
	return c
}

// DispatchService pushes matchup lists and goal events to the actuator.
// Every push is best-effort: failures are logged and dropped, never retried.
type DispatchService struct {
	tracker  *TrackerService
	actuator Actuator
	cfg      DispatchConfig
	logger   *logging.Logger
	pool     *ants.Pool
}

func NewDispatchService(tracker *TrackerService, actuator Actuator, cfg DispatchConfig, logger *logging.Logger) (*DispatchService, error) {
	if actuator == nil {
		actuator = NewNoopActuator()
	}
	if logger == nil {
		logger = logging.Default()
	}
	cfg = cfg.withDefaults()

	pool, err := ants.NewPool(cfg.Workers)
	if err != nil {
		return nil, fmt.Errorf("create dispatch worker pool: %w", err)
	}

	return &DispatchService{
		tracker:  tracker,
		actuator: actuator,
		cfg:      cfg,
		logger:   logger,
		pool:     pool,
	}, nil
}

// PushMatchups derives the day's matchup pairs and publishes them.
func (s *DispatchService) PushMatchups(ctx context.Context) error {
	ctx, span := startUsecaseSpan(ctx, "dispatch.push_matchups")
	defer span.End()

	matchups := s.tracker.Matchups()
	s.logger.Debug("pushing game day matchups", "matchups", matchups)

	if err := s.actuator.PublishGameDay(ctx, matchups); err != nil {
		return fmt.Errorf("publish game day: %w", err)
	}
	return nil
}

// PushGoals publishes each goal event through the worker pool and waits for
// all submissions to finish. Individual failures are logged and dropped so
// one bad push cannot block the rest.
func (s *DispatchService) PushGoals(ctx context.Context, events []game.GoalEvent) {
	if len(events) == 0 {
		return
	}

	ctx, span := startUsecaseSpan(ctx, "dispatch.push_goals")
	defer span.End()

	var wg sync.WaitGroup
	for _, event := range events {
		wg.Add(1)
		submitErr := s.pool.Submit(func() {
			defer wg.Done()
			if err := s.actuator.PublishGoal(ctx, event.TeamAbbr, event.Score); err != nil {
				s.logger.Error("publish goal failed", "team", event.TeamAbbr, "score", event.Score, "error", err)
			}
		})
		if submitErr != nil {
			wg.Done()
			s.logger.Error("submit goal push failed", "team", event.TeamAbbr, "error", submitErr)
		}
	}
	wg.Wait()
}

// NextInterval reports the delay until the next matchup push: fast while a
// game is in progress, slow otherwise.
func (s *DispatchService) NextInterval() time.Duration {
	if s.tracker.GameInProgress() {
		return s.cfg.LiveInterval
	}
	return s.cfg.IdleInterval
}

// WarmupInterval is the fixed delay before the first push after startup.
func (s *DispatchService) WarmupInterval() time.Duration {
	return s.cfg.Warmup
}

// Close releases the worker pool.
func (s *DispatchService) Close() {
	s.pool.Release()
}
