package game

import (
	"strings"
	"time"
)

// Side distinguishes the two records tracked per game.
type Side string

const (
	SideHome Side = "HOME"
	SideAway Side = "AWAY"
)

// Record is the per-team-per-game state tracked for one day. Exactly one
// record exists per team abbreviation within a tracking day; the merge layer
// is the only creator and the diff layer is the only writer of PriorScore.
type Record struct {
	TeamAbbr     string
	TeamName     string
	TeamCity     string
	Side         Side
	GameID       string
	OpponentAbbr string

	// Exactly one of ScheduledAt / StatusText is meaningful. ScheduledAt is
	// set when the feed's status string parsed as a clock time at creation;
	// otherwise StatusText carries whatever the feed returned, possibly "".
	ScheduledAt *time.Time
	StatusText  string

	CurrentScore int
	// PriorScore is nil until the first diff cycle observes the record. Once
	// set it tracks the last notified score and never moves backward.
	PriorScore  *int
	ShotsOnGoal int
}

// HasSchedule reports whether the record carries a parsed start time.
func (r *Record) HasSchedule() bool {
	return r.ScheduledAt != nil
}

// Live reports whether the record's status text describes a game that is
// underway: present and not a FINAL of any variety ("FINAL", "FINAL OT", ...).
func (r *Record) Live() bool {
	return r.StatusText != "" && !IsFinalStatus(r.StatusText)
}

// GoalEvent is a detected score increase. Score is the new cumulative total,
// not a delta: a multi-goal jump between polls yields one event.
type GoalEvent struct {
	TeamAbbr string
	Score    int
}

// IsFinalStatus reports whether a feed status string marks a finished game.
func IsFinalStatus(status string) bool {
	return strings.Contains(strings.ToUpper(status), "FINAL")
}

// startTimeLayout matches the feed's pre-game status strings, e.g. "7:00 pm".
const startTimeLayout = "3:04 PM"

// ParseStartTime interprets a feed status string as a clock time anchored to
// day's calendar date, in day's location. The feed writes lowercase meridiem
// markers, so matching is case-insensitive. Returns false when the status is
// anything other than a clock time (live period/clock text, FINAL, blank).
func ParseStartTime(day time.Time, status string) (time.Time, bool) {
	trimmed := strings.ToUpper(strings.TrimSpace(status))
	if trimmed == "" {
		return time.Time{}, false
	}

	clock, err := time.Parse(startTimeLayout, trimmed)
	if err != nil {
		return time.Time{}, false
	}

	return time.Date(
		day.Year(), day.Month(), day.Day(),
		clock.Hour(), clock.Minute(), 0, 0,
		day.Location(),
	), true
}
