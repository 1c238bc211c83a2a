package models

import "time"

// FixtureStatus represents the lifecycle state of a fixture.
type FixtureStatus string

const (
	FixtureScheduled FixtureStatus = "scheduled"
	FixtureLive      FixtureStatus = "live"
	FixtureFinished  FixtureStatus = "finished"
	FixtureCancelled FixtureStatus = "cancelled"
	FixturePostponed FixtureStatus = "postponed"
)

// Fixture represents a scheduled sports match. The fixture ID is either
// provider-native or synthetic (<source>_<home>_<away>_<date>).
type Fixture struct {
	FixtureID      string        `db:"fixture_id" json:"fixture_id" validate:"required"`
	TournamentID   string        `db:"tournament_id" json:"tournament_id"`
	TournamentName string        `db:"tournament_name" json:"tournament_name"`
	HomeTeamID     string        `db:"home_team_id" json:"home_team_id"`
	HomeTeamName   string        `db:"home_team_name" json:"home_team_name" validate:"required"`
	AwayTeamID     string        `db:"away_team_id" json:"away_team_id"`
	AwayTeamName   string        `db:"away_team_name" json:"away_team_name" validate:"required"`
	StartTime      time.Time     `db:"start_time" json:"start_time" validate:"required"`
	Status         FixtureStatus `db:"status" json:"status"`
	CreatedAt      time.Time     `db:"created_at" json:"created_at"`
}

// OddsRow represents one quoted outcome price for a fixture. Rows are unique
// per (fixture, bookmaker, market, outcome); re-ingestion overwrites the value.
type OddsRow struct {
	ID            int64     `db:"id" json:"id"`
	FixtureID     string    `db:"fixture_id" json:"fixture_id" validate:"required"`
	BookmakerID   string    `db:"bookmaker_id" json:"bookmaker_id"`
	BookmakerName string    `db:"bookmaker_name" json:"bookmaker_name"`
	MarketID      string    `db:"market_id" json:"market_id" validate:"required"`
	MarketName    string    `db:"market_name" json:"market_name"`
	OutcomeID     string    `db:"outcome_id" json:"outcome_id" validate:"required"`
	OutcomeName   string    `db:"outcome_name" json:"outcome_name"`
	OddsValue     float64   `db:"odds_value" json:"odds_value" validate:"required,gt=1"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
}

// ImpliedProbability returns 1/odds, the break-even probability of the quote.
func (o *OddsRow) ImpliedProbability() float64 {
	if o.OddsValue <= 1 {
		return 0
	}
	return 1 / o.OddsValue
}

// Score represents the final or in-play score of a fixture. A score may be
// keyed by a synthetic fixture id when the real fixture is not yet known.
type Score struct {
	FixtureID string    `db:"fixture_id" json:"fixture_id" validate:"required"`
	HomeScore int       `db:"home_score" json:"home_score"`
	AwayScore int       `db:"away_score" json:"away_score"`
	Status    string    `db:"status" json:"status"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// Total returns the combined goal count.
func (s *Score) Total() int {
	return s.HomeScore + s.AwayScore
}
