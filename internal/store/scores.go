package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/antonkoetzler/arbihawk/internal/models"
)

type scoreRow struct {
	FixtureID string `db:"fixture_id"`
	HomeScore int    `db:"home_score"`
	AwayScore int    `db:"away_score"`
	Status    string `db:"status"`
	UpdatedAt string `db:"updated_at"`
}

func (r scoreRow) toModel() *models.Score {
	return &models.Score{
		FixtureID: r.FixtureID,
		HomeScore: r.HomeScore,
		AwayScore: r.AwayScore,
		Status:    r.Status,
		UpdatedAt: parseTime(r.UpdatedAt),
	}
}

const scoreColumns = `fixture_id, home_score, away_score, COALESCE(status,'') AS status, updated_at`

// UpsertScore writes or replaces the score for a fixture id (real or
// synthetic).
func (s *Store) UpsertScore(ctx context.Context, score *models.Score) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO scores (fixture_id, home_score, away_score, status, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (fixture_id) DO UPDATE SET
			home_score = excluded.home_score,
			away_score = excluded.away_score,
			status = excluded.status,
			updated_at = excluded.updated_at`,
		score.FixtureID, score.HomeScore, score.AwayScore, score.Status, fmtTime(time.Now()))
	if err != nil {
		return fmt.Errorf("failed to upsert score for %s: %w", score.FixtureID, err)
	}
	return nil
}

// GetScore retrieves the score row keyed by the exact fixture id.
func (s *Store) GetScore(ctx context.Context, fixtureID string) (*models.Score, error) {
	var row scoreRow
	err := s.db.GetContext(ctx, &row,
		`SELECT `+scoreColumns+` FROM scores WHERE fixture_id = ?`, fixtureID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get score for %s: %w", fixtureID, err)
	}
	return row.toModel(), nil
}

// ListScoresWithPrefix returns score rows whose fixture id begins with the
// given prefix (e.g. "flashscore_"). Used to scan synthetic-id rows.
func (s *Store) ListScoresWithPrefix(ctx context.Context, prefix string) ([]*models.Score, error) {
	var rows []scoreRow
	err := s.db.SelectContext(ctx, &rows,
		`SELECT `+scoreColumns+` FROM scores WHERE fixture_id LIKE ? || '%' ORDER BY fixture_id`, prefix)
	if err != nil {
		return nil, fmt.Errorf("failed to list scores with prefix %s: %w", prefix, err)
	}
	out := make([]*models.Score, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toModel())
	}
	return out, nil
}

// DeleteScore removes a score row. Used to clean up stale synthetic rows and
// to re-key a synthetic score onto its resolved fixture.
func (s *Store) DeleteScore(ctx context.Context, fixtureID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM scores WHERE fixture_id = ?`, fixtureID); err != nil {
		return fmt.Errorf("failed to delete score %s: %w", fixtureID, err)
	}
	return nil
}
