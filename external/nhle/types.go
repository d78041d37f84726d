package nhle

import (
	"strconv"
	"strings"
)

// scoreboardEnvelope is the decoded GCScoreboard payload after the JSONP
// wrapper has been stripped. Only the fields the tracker consumes are mapped.
type scoreboardEnvelope struct {
	CurrentDate string    `json:"currentDate"`
	Games       []rawGame `json:"games"`
}

type rawGame struct {
	ID        flexInt `json:"id"`
	Status    string  `json:"bs"`
	HomeAbbr  string  `json:"hta"`
	HomeName  string  `json:"htcommon"`
	HomeCity  string  `json:"htn"`
	HomeScore flexInt `json:"hts"`
	HomeShots flexInt `json:"htsog"`
	AwayAbbr  string  `json:"ata"`
	AwayName  string  `json:"atcommon"`
	AwayCity  string  `json:"atn"`
	AwayScore flexInt `json:"ats"`
	AwayShots flexInt `json:"atsog"`
}

// flexInt tolerates the feed's loose numeric encoding: a number, a numeric
// string, an empty string or null. Anything unparseable coerces to 0 so one
// bad field cannot abort the whole snapshot.
type flexInt int

func (f *flexInt) UnmarshalJSON(data []byte) error {
	s := strings.TrimSpace(string(data))
	if s == "" || s == "null" {
		*f = 0
		return nil
	}
	s = strings.TrimSpace(strings.Trim(s, `"`))
	if s == "" {
		*f = 0
		return nil
	}

	n, err := strconv.Atoi(s)
	if err != nil {
		*f = 0
		return nil
	}
	*f = flexInt(n)
	return nil
}
