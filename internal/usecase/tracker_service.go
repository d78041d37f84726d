package usecase

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/hkropp/nhl-goal-light/internal/domain/game"
	"github.com/hkropp/nhl-goal-light/internal/platform/logging"
)

// TrackerConfig tunes the adaptive refresh policy. Zero values fall back to
// the defaults the upstream feed was designed around.
type TrackerConfig struct {
	// LiveInterval is the poll delay while any game is in progress.
	LiveInterval time.Duration
	// IdleInterval is the poll delay when nothing starts soon.
	IdleInterval time.Duration
	// FallbackInterval is returned when interval computation itself fails,
	// so the poll loop can never end up unarmed.
	FallbackInterval time.Duration
	// PregameLead is how long before a scheduled start the fast polling
	// window opens.
	PregameLead time.Duration
	// ImminentWindow is the horizon within which an upcoming start shortens
	// the poll delay below IdleInterval.
	ImminentWindow time.Duration
}

func (c TrackerConfig) withDefaults() TrackerConfig {
	if c.LiveInterval <= 0 {
		c.LiveInterval = time.Minute
	}
	if c.IdleInterval <= 0 {
		c.IdleInterval = time.Hour
	}
	if c.FallbackInterval <= 0 {
		c.FallbackInterval = 10 * time.Minute
	}
	if c.PregameLead <= 0 {
		c.PregameLead = 5 * time.Minute
	}
	if c.ImminentWindow <= 0 {
		c.ImminentWindow = 65 * time.Minute
	}
	return c
}

// TrackerService owns the full per-day game state: it merges feed snapshots
// into the record table, detects score increases, and decides when the next
// poll should happen. All state lives behind one mutex; the two scheduler
// loops linearize through it.
type TrackerService struct {
	feed     ScoreboardFeed
	cfg      TrackerConfig
	logger   *logging.Logger
	validate *validator.Validate
	now      func() time.Time

	mu             sync.Mutex
	effectiveDate  time.Time
	gameInProgress bool
	records        []*game.Record
	index          map[string]*game.Record
}

func NewTrackerService(feed ScoreboardFeed, cfg TrackerConfig, logger *logging.Logger) *TrackerService {
	if logger == nil {
		logger = logging.Default()
	}

	return &TrackerService{
		feed:     feed,
		cfg:      cfg.withDefaults(),
		logger:   logger,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		now:      time.Now,
		index:    make(map[string]*game.Record),
	}
}

// RefreshScoreboard fetches the feed for the tracked date, merges the
// snapshot into the record table and returns the goal events the merge
// uncovered. A fetch failure leaves all state untouched.
func (s *TrackerService) RefreshScoreboard(ctx context.Context) ([]game.GoalEvent, error) {
	ctx, span := startUsecaseSpan(ctx, "tracker.refresh_scoreboard")
	defer span.End()

	date := s.trackedDate()
	snapshot, err := s.feed.FetchScoreboard(ctx, date)
	if err != nil {
		return nil, fmt.Errorf("fetch scoreboard for %s: %w", date.Format("2006-01-02"), err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.mergeLocked(snapshot)
	return s.detectGoalsLocked(), nil
}

// trackedDate reports which calendar date the next fetch should target. The
// date freezes while a game is in progress so a poll just after midnight does
// not jump away from a live game.
func (s *TrackerService) trackedDate() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.gameInProgress && !s.effectiveDate.IsZero() {
		return s.effectiveDate
	}
	return s.now()
}

func (s *TrackerService) mergeLocked(snapshot ScoreboardSnapshot) {
	if !s.effectiveDate.IsZero() && dateOnly(snapshot.CurrentDate).After(dateOnly(s.effectiveDate)) {
		s.logger.Info("feed moved to a new day, clearing game data",
			"tracked_date", s.effectiveDate.Format("2006-01-02"),
			"feed_date", snapshot.CurrentDate.Format("2006-01-02"),
		)
		s.clearLocked()
	}
	s.effectiveDate = snapshot.CurrentDate

	for _, entry := range snapshot.Games {
		if err := s.validate.Struct(entry); err != nil {
			s.logger.Warn("skipping malformed feed entry",
				"game_id", entry.GameID,
				"home", entry.HomeAbbr,
				"away", entry.AwayAbbr,
				"error", err,
			)
			continue
		}

		s.upsertSideLocked(entry, game.SideHome)
		s.upsertSideLocked(entry, game.SideAway)
	}
}

// upsertSideLocked is match-or-create: an existing record only ever gets its
// score and shots refreshed. Schedule and status fields are derived once, at
// creation, and not touched again.
func (s *TrackerService) upsertSideLocked(entry GameUpdate, side game.Side) {
	abbr, name, city := entry.HomeAbbr, entry.HomeName, entry.HomeCity
	opponent, score, shots := entry.AwayAbbr, entry.HomeScore, entry.HomeShots
	if side == game.SideAway {
		abbr, name, city = entry.AwayAbbr, entry.AwayName, entry.AwayCity
		opponent, score, shots = entry.HomeAbbr, entry.AwayScore, entry.AwayShots
	}

	if existing, ok := s.index[abbr]; ok {
		existing.CurrentScore = score
		existing.ShotsOnGoal = shots
		return
	}

	record := &game.Record{
		TeamAbbr:     abbr,
		TeamName:     name,
		TeamCity:     city,
		Side:         side,
		GameID:       entry.GameID,
		OpponentAbbr: opponent,
		CurrentScore: score,
		ShotsOnGoal:  shots,
	}
	if startAt, ok := game.ParseStartTime(s.effectiveDate, entry.Status); ok {
		record.ScheduledAt = &startAt
	} else {
		record.StatusText = entry.Status
	}

	s.records = append(s.records, record)
	s.index[abbr] = record
}

// detectGoalsLocked advances the prior-score baseline and emits one event per
// record whose score increased since it was last notified. The first
// observation of a record only seeds the baseline.
func (s *TrackerService) detectGoalsLocked() []game.GoalEvent {
	var events []game.GoalEvent
	for _, record := range s.records {
		score := record.CurrentScore
		if score < 0 {
			s.logger.Warn("negative score from feed, coercing to zero", "team", record.TeamAbbr, "score", score)
			score = 0
			record.CurrentScore = 0
		}

		if record.PriorScore == nil {
			prior := score
			record.PriorScore = &prior
			continue
		}

		if score > *record.PriorScore {
			s.logger.Info("GOAL", "team", record.TeamAbbr, "score", score)
			events = append(events, game.GoalEvent{TeamAbbr: record.TeamAbbr, Score: score})
			*record.PriorScore = score
		}
	}
	return events
}

// NextRefreshInterval decides the delay until the next scoreboard poll and,
// as a side effect, re-derives whether any game is in progress. It never
// panics out: any internal fault degrades to FallbackInterval so the poll
// loop stays armed.
func (s *TrackerService) NextRefreshInterval() (interval time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("refresh interval computation failed", "panic", r)
			interval = s.cfg.FallbackInterval
		}
	}()

	if len(s.records) == 0 {
		s.clearLocked()
		return s.cfg.IdleInterval
	}

	for _, record := range s.records {
		if record.Live() {
			s.gameInProgress = true
			return s.cfg.LiveInterval
		}
	}
	s.gameInProgress = false

	now := s.now()
	var nextStart time.Time
	for _, record := range s.records {
		if !record.HasSchedule() || !record.ScheduledAt.After(now) {
			continue
		}
		if nextStart.IsZero() || record.ScheduledAt.Before(nextStart) {
			nextStart = *record.ScheduledAt
		}
	}

	if nextStart.IsZero() || nextStart.Sub(now) >= s.cfg.ImminentWindow {
		return s.cfg.IdleInterval
	}

	// May be negative when the pre-game window already opened; the scheduler
	// clamps that to an immediate refresh.
	return nextStart.Add(-s.cfg.PregameLead).Sub(now)
}

// GameInProgress reports the result of the most recent interval computation.
func (s *TrackerService) GameInProgress() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gameInProgress
}

// Matchups derives the deduplicated "HOME:AWAY" pair list for the tracked
// day. Each home-side record contributes at most one pair, found by locating
// the record that names it as opponent.
func (s *TrackerService) Matchups() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	seen := make(map[string]bool, len(s.records)/2)
	pairs := make([]string, 0, len(s.records)/2)
	for _, home := range s.records {
		if home.Side != game.SideHome || seen[home.TeamAbbr] {
			continue
		}
		for _, away := range s.records {
			if away == home || away.OpponentAbbr != home.TeamAbbr {
				continue
			}
			pairs = append(pairs, home.TeamAbbr+":"+away.TeamAbbr)
			seen[home.TeamAbbr] = true
			break
		}
	}
	return pairs
}

// RecordCount reports how many records the tracked day currently holds.
func (s *TrackerService) RecordCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

func (s *TrackerService) clearLocked() {
	s.records = nil
	s.index = make(map[string]*game.Record)
	s.gameInProgress = false
}

func dateOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
