package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/antonkoetzler/arbihawk/internal/models"
)

type fixtureRow struct {
	FixtureID      string `db:"fixture_id"`
	TournamentID   string `db:"tournament_id"`
	TournamentName string `db:"tournament_name"`
	HomeTeamID     string `db:"home_team_id"`
	HomeTeamName   string `db:"home_team_name"`
	AwayTeamID     string `db:"away_team_id"`
	AwayTeamName   string `db:"away_team_name"`
	StartTime      string `db:"start_time"`
	Status         string `db:"status"`
	CreatedAt      string `db:"created_at"`
}

func (r fixtureRow) toModel() *models.Fixture {
	return &models.Fixture{
		FixtureID:      r.FixtureID,
		TournamentID:   r.TournamentID,
		TournamentName: r.TournamentName,
		HomeTeamID:     r.HomeTeamID,
		HomeTeamName:   r.HomeTeamName,
		AwayTeamID:     r.AwayTeamID,
		AwayTeamName:   r.AwayTeamName,
		StartTime:      parseTime(r.StartTime),
		Status:         models.FixtureStatus(r.Status),
		CreatedAt:      parseTime(r.CreatedAt),
	}
}

const fixtureColumns = `fixture_id, COALESCE(tournament_id,'') AS tournament_id,
	COALESCE(tournament_name,'') AS tournament_name,
	COALESCE(home_team_id,'') AS home_team_id, home_team_name,
	COALESCE(away_team_id,'') AS away_team_id, away_team_name,
	start_time, status, created_at`

// UpsertFixture creates a fixture or updates it in place.
func (s *Store) UpsertFixture(ctx context.Context, f *models.Fixture) error {
	if f.Status == "" {
		f.Status = models.FixtureScheduled
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO fixtures (fixture_id, tournament_id, tournament_name,
			home_team_id, home_team_name, away_team_id, away_team_name,
			start_time, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (fixture_id) DO UPDATE SET
			tournament_id = excluded.tournament_id,
			tournament_name = excluded.tournament_name,
			home_team_id = excluded.home_team_id,
			home_team_name = excluded.home_team_name,
			away_team_id = excluded.away_team_id,
			away_team_name = excluded.away_team_name,
			start_time = excluded.start_time,
			status = excluded.status`,
		f.FixtureID, f.TournamentID, f.TournamentName,
		f.HomeTeamID, f.HomeTeamName, f.AwayTeamID, f.AwayTeamName,
		fmtTime(f.StartTime), string(f.Status), fmtTime(time.Now()),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert fixture %s: %w", f.FixtureID, err)
	}
	return nil
}

// GetFixture retrieves a fixture by id.
func (s *Store) GetFixture(ctx context.Context, fixtureID string) (*models.Fixture, error) {
	var row fixtureRow
	err := s.db.GetContext(ctx, &row,
		`SELECT `+fixtureColumns+` FROM fixtures WHERE fixture_id = ?`, fixtureID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get fixture %s: %w", fixtureID, err)
	}
	return row.toModel(), nil
}

// FixturesBetween returns fixtures whose start time falls in [from, to],
// ordered by start time.
func (s *Store) FixturesBetween(ctx context.Context, from, to time.Time) ([]*models.Fixture, error) {
	var rows []fixtureRow
	err := s.db.SelectContext(ctx, &rows,
		`SELECT `+fixtureColumns+` FROM fixtures
		 WHERE start_time >= ? AND start_time <= ?
		 ORDER BY start_time`, fmtTime(from), fmtTime(to))
	if err != nil {
		return nil, fmt.Errorf("failed to query fixtures between %s and %s: %w", from, to, err)
	}
	out := make([]*models.Fixture, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toModel())
	}
	return out, nil
}

// UpcomingFixturesWithOdds returns fixtures starting in [now, now+window]
// that have at least one odds row, ordered by start time.
func (s *Store) UpcomingFixturesWithOdds(ctx context.Context, now time.Time, window time.Duration) ([]*models.Fixture, error) {
	var rows []fixtureRow
	err := s.db.SelectContext(ctx, &rows,
		`SELECT `+fixtureColumns+` FROM fixtures f
		 WHERE f.start_time >= ? AND f.start_time <= ?
		   AND EXISTS (SELECT 1 FROM odds o WHERE o.fixture_id = f.fixture_id)
		 ORDER BY f.start_time`,
		fmtTime(now), fmtTime(now.Add(window)))
	if err != nil {
		return nil, fmt.Errorf("failed to query upcoming fixtures: %w", err)
	}
	out := make([]*models.Fixture, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toModel())
	}
	return out, nil
}
