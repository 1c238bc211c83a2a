// Package validate schema-checks scraper payloads per source kind before
// they reach the data plane.
package validate

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
	"time"
)

// FlexString accepts either a JSON string or number; scrapers are not
// consistent about id types.
type FlexString string

// UnmarshalJSON implements json.Unmarshaler.
func (f *FlexString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || string(data) == "null" {
		*f = ""
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = FlexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*f = FlexString(n.String())
	return nil
}

// String returns the underlying value.
func (f FlexString) String() string { return string(f) }

// League is one league block of an odds payload.
type League struct {
	LeagueID   FlexString       `json:"league_id"`
	LeagueName string           `json:"league_name"`
	Fixtures   []PayloadFixture `json:"fixtures"`
}

// PayloadFixture is a fixture as emitted by an odds scraper.
type PayloadFixture struct {
	FixtureID    FlexString    `json:"fixture_id"`
	HomeTeamID   FlexString    `json:"home_team_id"`
	HomeTeamName string        `json:"home_team_name"`
	AwayTeamID   FlexString    `json:"away_team_id"`
	AwayTeamName string        `json:"away_team_name"`
	StartTime    string        `json:"start_time"`
	Status       string        `json:"status"`
	Odds         []PayloadOdds `json:"odds"`
}

// PayloadOdds is one quoted outcome inside a fixture block.
type PayloadOdds struct {
	MarketID    FlexString `json:"market_id"`
	MarketName  string     `json:"market_name"`
	OutcomeID   FlexString `json:"outcome_id"`
	OutcomeName string     `json:"outcome_name"`
	OddsValue   float64    `json:"odds_value"`
}

// OddsPayload is the normalised root of an odds-source payload, regardless
// of whether the scraper emitted a league list or a single-league object.
type OddsPayload struct {
	Leagues []League
}

// PayloadMatch is a match as emitted by a score scraper. Field aliases cover
// the two shapes in the wild (home_team_name vs home_team, start_time vs
// match_date).
type PayloadMatch struct {
	HomeTeamName string `json:"home_team_name"`
	HomeTeam     string `json:"home_team"`
	AwayTeamName string `json:"away_team_name"`
	AwayTeam     string `json:"away_team"`
	StartTime    string `json:"start_time"`
	MatchDate    string `json:"match_date"`
	HomeScore    *int   `json:"home_score"`
	AwayScore    *int   `json:"away_score"`
}

// Home returns the home team name from whichever alias is set.
func (m *PayloadMatch) Home() string {
	if m.HomeTeamName != "" {
		return m.HomeTeamName
	}
	return m.HomeTeam
}

// Away returns the away team name from whichever alias is set.
func (m *PayloadMatch) Away() string {
	if m.AwayTeamName != "" {
		return m.AwayTeamName
	}
	return m.AwayTeam
}

// When returns the match time from whichever alias is set.
func (m *PayloadMatch) When() string {
	if m.StartTime != "" {
		return m.StartTime
	}
	return m.MatchDate
}

// IsCompleted reports whether both scores are present.
func (m *PayloadMatch) IsCompleted() bool {
	return m.HomeScore != nil && m.AwayScore != nil
}

// ScoresPayload is the root of a score-source payload.
type ScoresPayload struct {
	Matches []PayloadMatch `json:"matches"`
}

// PayloadInstrument is instrument metadata in a market-data payload.
type PayloadInstrument struct {
	Symbol    string  `json:"symbol"`
	Name      string  `json:"name"`
	Sector    string  `json:"sector"`
	MarketCap float64 `json:"market_cap"`
}

// PayloadBar is one OHLCV bar in a market-data payload.
type PayloadBar struct {
	Symbol    string  `json:"symbol"`
	Timestamp string  `json:"timestamp"`
	Open      float64 `json:"open"`
	High      float64 `json:"high"`
	Low       float64 `json:"low"`
	Close     float64 `json:"close"`
	Volume    float64 `json:"volume"`
}

// MarketPayload is the root of a stocks/crypto payload.
type MarketPayload struct {
	Instruments []PayloadInstrument `json:"instruments"`
	Bars        []PayloadBar        `json:"bars"`
}

// ParseTimestamp accepts ISO-8601 timestamps or bare YYYY-MM-DD dates.
func ParseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	if t, err := time.Parse("2006-01-02T15:04:05", s); err == nil {
		return t.UTC(), nil
	}
	if t, err := time.Parse("2006-01-02 15:04:05", s); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}

// quick shape probes used by the extraction walker to decide whether a
// balanced JSON candidate matches the expected root for a source.

// LooksLikeOddsRoot reports whether raw is a list, or an object carrying
// league_id or fixtures.
func LooksLikeOddsRoot(raw []byte) bool {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return false
	}
	if trimmed[0] == '[' {
		return true
	}
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &probe); err != nil {
		return false
	}
	_, hasLeague := probe["league_id"]
	_, hasFixtures := probe["fixtures"]
	return hasLeague || hasFixtures
}

// LooksLikeScoresRoot reports whether raw is an object carrying a matches
// array.
func LooksLikeScoresRoot(raw []byte) bool {
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(bytes.TrimSpace(raw), &probe); err != nil {
		return false
	}
	_, ok := probe["matches"]
	return ok
}

// LooksLikeMarketRoot reports whether raw is an object carrying bars or
// instruments.
func LooksLikeMarketRoot(raw []byte) bool {
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(bytes.TrimSpace(raw), &probe); err != nil {
		return false
	}
	_, hasBars := probe["bars"]
	_, hasInstruments := probe["instruments"]
	return hasBars || hasInstruments
}

func itoa(i int) string { return strconv.Itoa(i) }
