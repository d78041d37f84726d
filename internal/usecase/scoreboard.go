package usecase

import (
	"context"
	"time"
)

// ScoreboardSnapshot is one normalized snapshot of the upstream feed for a
// single calendar date. CurrentDate is the feed's own notion of the date it
// reported, used to detect day rollover.
type ScoreboardSnapshot struct {
	CurrentDate time.Time
	Games       []GameUpdate
}

// GameUpdate is one game from the feed, both sides flattened. Scores default
// to 0 when the feed reports them empty or null.
type GameUpdate struct {
	GameID string `validate:"required"`
	Status string

	HomeAbbr  string `validate:"required"`
	HomeName  string
	HomeCity  string
	HomeScore int    `validate:"min=0"`
	HomeShots int
	AwayAbbr  string `validate:"required,nefield=HomeAbbr"`
	AwayName  string
	AwayCity  string
	AwayScore int `validate:"min=0"`
	AwayShots int
}

// ScoreboardFeed fetches the upstream scoreboard for a calendar date.
type ScoreboardFeed interface {
	FetchScoreboard(ctx context.Context, date time.Time) (ScoreboardSnapshot, error)
}

// Actuator pushes derived notifications downstream. Delivery is best-effort,
// at-least-once; the receiver is expected to be idempotent.
type Actuator interface {
	PublishGoal(ctx context.Context, teamAbbr string, score int) error
	PublishGameDay(ctx context.Context, matchups []string) error
}

type noopActuator struct{}

func (noopActuator) PublishGoal(context.Context, string, int) error { return nil }
func (noopActuator) PublishGameDay(context.Context, []string) error { return nil }

// NewNoopActuator returns an actuator that drops every publish. Used when the
// downstream integration is disabled by configuration.
func NewNoopActuator() Actuator {
	return noopActuator{}
}
