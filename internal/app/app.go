// Package app wires configuration, clients and services into a runnable
// goal-light tracker.
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/hkropp/nhl-goal-light/external/nhle"
	"github.com/hkropp/nhl-goal-light/external/particle"
	"github.com/hkropp/nhl-goal-light/internal/config"
	"github.com/hkropp/nhl-goal-light/internal/platform/logging"
	"github.com/hkropp/nhl-goal-light/internal/platform/resilience"
	"github.com/hkropp/nhl-goal-light/internal/usecase"
)

type App struct {
	cfg       config.Config
	logger    *logging.Logger
	actuator  usecase.Actuator
	tracker   *usecase.TrackerService
	dispatch  *usecase.DispatchService
	scheduler *usecase.Scheduler
}

func New(cfg config.Config, logger *logging.Logger) (*App, error) {
	if logger == nil {
		logger = logging.Default()
	}

	feed := nhle.NewClient(nhle.ClientConfig{
		BaseURL:    cfg.FeedBaseURL,
		Timeout:    cfg.FeedTimeout,
		MaxRetries: cfg.FeedMaxRetries,
		Logger:     logger,
		CircuitBreaker: resilience.BreakerConfig{
			Enabled:          cfg.FeedCircuitEnabled,
			FailureThreshold: cfg.FeedCircuitFailureCount,
			OpenTimeout:      cfg.FeedCircuitOpenTimeout,
			HalfOpenMaxReq:   cfg.FeedCircuitHalfOpenMaxReq,
		},
	})

	var actuator usecase.Actuator
	if cfg.ParticleEnabled {
		actuator = particle.NewClient(particle.ClientConfig{
			BaseURL:     cfg.ParticleBaseURL,
			AccessToken: cfg.ParticleAccessToken,
			Timeout:     cfg.ParticleTimeout,
			Logger:      logger,
			CircuitBreaker: resilience.BreakerConfig{
				Enabled:          cfg.ParticleCircuitEnabled,
				FailureThreshold: cfg.ParticleCircuitFailureCount,
				OpenTimeout:      cfg.ParticleCircuitOpenTimeout,
				HalfOpenMaxReq:   cfg.ParticleCircuitHalfOpenMaxReq,
			},
		})
	} else {
		logger.Info("particle disabled, events will be dropped", "reason", "PARTICLE_ENABLED=false")
		actuator = usecase.NewNoopActuator()
	}

	tracker := usecase.NewTrackerService(feed, usecase.TrackerConfig{
		LiveInterval:     cfg.TrackerLiveInterval,
		IdleInterval:     cfg.TrackerIdleInterval,
		FallbackInterval: cfg.TrackerFallbackInterval,
		PregameLead:      cfg.TrackerPregameLead,
		ImminentWindow:   cfg.TrackerImminentWindow,
	}, logger)

	dispatch, err := usecase.NewDispatchService(tracker, actuator, usecase.DispatchConfig{
		LiveInterval: cfg.DispatchLiveInterval,
		IdleInterval: cfg.DispatchIdleInterval,
		Warmup:       cfg.DispatchWarmup,
		Workers:      cfg.DispatchWorkers,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("build dispatch service: %w", err)
	}

	return &App{
		cfg:       cfg,
		logger:    logger,
		actuator:  actuator,
		tracker:   tracker,
		dispatch:  dispatch,
		scheduler: usecase.NewScheduler(tracker, dispatch, logger),
	}, nil
}

// Run executes the configured run mode and blocks until it completes or ctx
// is canceled.
func (a *App) Run(ctx context.Context) error {
	switch a.cfg.RunMode {
	case config.RunModeOnce:
		return a.runOnce(ctx)
	case config.RunModeTest:
		return a.runTestSequence(ctx)
	default:
		return a.runPeriodic(ctx)
	}
}

// runPeriodic primes the tracker with one synchronous refresh, then hands
// off to the timer loops. Without it the first real fetch would wait a full
// idle interval on an empty store.
func (a *App) runPeriodic(ctx context.Context) error {
	events, err := a.tracker.RefreshScoreboard(ctx)
	if err != nil {
		a.logger.WarnContext(ctx, "initial refresh failed", "error", err)
	} else {
		a.dispatch.PushGoals(ctx, events)
	}
	a.scheduler.Run(ctx)
	return nil
}

func (a *App) Close() {
	a.dispatch.Close()
}

// runOnce performs a single refresh-and-push cycle.
func (a *App) runOnce(ctx context.Context) error {
	events, err := a.tracker.RefreshScoreboard(ctx)
	if err != nil {
		return fmt.Errorf("refresh scoreboard: %w", err)
	}
	if err := a.dispatch.PushMatchups(ctx); err != nil {
		a.logger.WarnContext(ctx, "push matchups failed", "error", err)
	}
	a.dispatch.PushGoals(ctx, events)
	return nil
}

// runTestSequence pushes a canned event series so the light can be verified
// without waiting for a real game.
func (a *App) runTestSequence(ctx context.Context) error {
	a.logger.Info("running test sequence", "sequence", a.cfg.TestSequence)

	type step struct {
		pause    time.Duration
		matchups []string
		team     string
		score    int
	}

	var steps []step
	switch a.cfg.TestSequence {
	case config.TestSequenceGoal:
		steps = []step{
			{team: "PIT", score: 1},
			{pause: 80 * time.Second, team: "PIT", score: 2},
			{pause: 80 * time.Second, team: "CBJ", score: 1},
		}
	case config.TestSequenceGameDay:
		steps = []step{
			{matchups: []string{"PIT"}},
		}
	default:
		steps = []step{
			{matchups: []string{"PIT:CBJ", "PHI:NJD"}},
			{pause: 20 * time.Second, team: "PIT", score: 1},
			{pause: 80 * time.Second, team: "CBJ", score: 1},
			{pause: 80 * time.Second, team: "PHI", score: 1},
			{pause: 20 * time.Second, team: "PIT", score: 2},
			{pause: 80 * time.Second, team: "CBJ", score: 2},
		}
	}

	for _, item := range steps {
		if item.pause > 0 {
			timer := time.NewTimer(item.pause)
			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case <-timer.C:
			}
		}

		var err error
		if len(item.matchups) > 0 {
			err = a.actuator.PublishGameDay(ctx, item.matchups)
		} else {
			err = a.actuator.PublishGoal(ctx, item.team, item.score)
		}
		if err != nil {
			return fmt.Errorf("test sequence publish: %w", err)
		}
	}
	return nil
}
