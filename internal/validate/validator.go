package validate

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Result carries the outcome of payload validation.
type Result struct {
	Valid    bool     `json:"valid"`
	Errors   []string `json:"errors"`
	Warnings []string `json:"warnings"`
}

func (r *Result) addError(format string, args ...interface{}) {
	r.Errors = append(r.Errors, fmt.Sprintf(format, args...))
}

func (r *Result) addWarning(format string, args ...interface{}) {
	r.Warnings = append(r.Warnings, fmt.Sprintf(format, args...))
}

// Odds parses and validates an odds-source payload. The root may be a list
// of leagues or a single-league object.
func Odds(raw []byte) (*OddsPayload, Result) {
	result := Result{Valid: true}
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		result.Valid = false
		result.addError("empty payload")
		return nil, result
	}

	payload := &OddsPayload{}
	if trimmed[0] == '[' {
		if err := json.Unmarshal(trimmed, &payload.Leagues); err != nil {
			result.Valid = false
			result.addError("failed to parse league list: %v", err)
			return nil, result
		}
	} else {
		var league League
		if err := json.Unmarshal(trimmed, &league); err != nil {
			result.Valid = false
			result.addError("failed to parse league object: %v", err)
			return nil, result
		}
		payload.Leagues = []League{league}
	}

	if len(payload.Leagues) == 0 {
		result.addWarning("payload contains no leagues")
	}

	for li, league := range payload.Leagues {
		if league.LeagueID == "" {
			result.addWarning("league %d has no league_id", li)
		}
		for fi, fixture := range league.Fixtures {
			where := "league " + league.LeagueID.String() + " fixture " + itoa(fi)
			if fixture.FixtureID == "" {
				result.Valid = false
				result.addError("%s: missing fixture_id", where)
			}
			if fixture.HomeTeamName == "" || fixture.AwayTeamName == "" {
				result.Valid = false
				result.addError("%s: missing team names", where)
			}
			if fixture.StartTime == "" {
				result.Valid = false
				result.addError("%s: missing start_time", where)
			} else if _, err := ParseTimestamp(fixture.StartTime); err != nil {
				result.Valid = false
				result.addError("%s: unparseable start_time %q", where, fixture.StartTime)
			}
			for oi, odds := range fixture.Odds {
				if odds.OddsValue <= 1.0 {
					result.addWarning("%s odds %d: odds_value %.3f not > 1.0, row will be skipped", where, oi, odds.OddsValue)
				}
				if odds.MarketID == "" || odds.OutcomeID == "" {
					result.addWarning("%s odds %d: missing market or outcome id, row will be skipped", where, oi)
				}
			}
		}
	}

	if !result.Valid {
		return nil, result
	}
	return payload, result
}

// Scores parses and validates a score-source payload.
func Scores(raw []byte) (*ScoresPayload, Result) {
	result := Result{Valid: true}

	payload := &ScoresPayload{}
	if err := json.Unmarshal(bytes.TrimSpace(raw), payload); err != nil {
		result.Valid = false
		result.addError("failed to parse scores payload: %v", err)
		return nil, result
	}

	if payload.Matches == nil {
		result.Valid = false
		result.addError("payload has no matches array")
		return nil, result
	}

	completed := 0
	for mi, match := range payload.Matches {
		if match.Home() == "" || match.Away() == "" {
			result.addWarning("match %d: missing team names, will be skipped", mi)
			continue
		}
		if match.When() == "" {
			result.addWarning("match %d: missing match time, will be skipped", mi)
			continue
		}
		if _, err := ParseTimestamp(match.When()); err != nil {
			result.addWarning("match %d: unparseable time %q, will be skipped", mi, match.When())
			continue
		}
		if match.IsCompleted() {
			completed++
		}
	}
	if completed == 0 && len(payload.Matches) > 0 {
		result.addWarning("no completed matches in payload")
	}

	return payload, result
}

// Market parses and validates a stocks/crypto payload.
func Market(raw []byte) (*MarketPayload, Result) {
	result := Result{Valid: true}

	payload := &MarketPayload{}
	if err := json.Unmarshal(bytes.TrimSpace(raw), payload); err != nil {
		result.Valid = false
		result.addError("failed to parse market payload: %v", err)
		return nil, result
	}

	if len(payload.Bars) == 0 && len(payload.Instruments) == 0 {
		result.Valid = false
		result.addError("payload has neither bars nor instruments")
		return nil, result
	}

	for bi, bar := range payload.Bars {
		if bar.Symbol == "" {
			result.addWarning("bar %d: missing symbol, will be skipped", bi)
			continue
		}
		if _, err := ParseTimestamp(bar.Timestamp); err != nil {
			result.addWarning("bar %d (%s): unparseable timestamp %q, will be skipped", bi, bar.Symbol, bar.Timestamp)
		}
		if bar.High < bar.Low {
			result.addWarning("bar %d (%s): high %.4f below low %.4f", bi, bar.Symbol, bar.High, bar.Low)
		}
	}

	return payload, result
}
