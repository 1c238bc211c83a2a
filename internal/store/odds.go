package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/antonkoetzler/arbihawk/internal/models"
)

type oddsRow struct {
	ID            int64   `db:"id"`
	FixtureID     string  `db:"fixture_id"`
	BookmakerID   string  `db:"bookmaker_id"`
	BookmakerName string  `db:"bookmaker_name"`
	MarketID      string  `db:"market_id"`
	MarketName    string  `db:"market_name"`
	OutcomeID     string  `db:"outcome_id"`
	OutcomeName   string  `db:"outcome_name"`
	OddsValue     float64 `db:"odds_value"`
	CreatedAt     string  `db:"created_at"`
}

func (r oddsRow) toModel() *models.OddsRow {
	return &models.OddsRow{
		ID:            r.ID,
		FixtureID:     r.FixtureID,
		BookmakerID:   r.BookmakerID,
		BookmakerName: r.BookmakerName,
		MarketID:      r.MarketID,
		MarketName:    r.MarketName,
		OutcomeID:     r.OutcomeID,
		OutcomeName:   r.OutcomeName,
		OddsValue:     r.OddsValue,
		CreatedAt:     parseTime(r.CreatedAt),
	}
}

const oddsColumns = `id, fixture_id, bookmaker_id, COALESCE(bookmaker_name,'') AS bookmaker_name,
	market_id, COALESCE(market_name,'') AS market_name,
	outcome_id, COALESCE(outcome_name,'') AS outcome_name, odds_value, created_at`

// InsertOddsBatch writes a batch of odds rows atomically. Conflicting rows
// (same fixture, bookmaker, market, outcome) have their odds value
// overwritten in place. Rows with odds_value <= 1 are skipped; the skip
// count is returned alongside the inserted count.
func (s *Store) InsertOddsBatch(ctx context.Context, rows []*models.OddsRow) (inserted, skipped int, err error) {
	if len(rows) == 0 {
		return 0, 0, nil
	}
	err = s.InTx(ctx, func(tx *sqlx.Tx) error {
		now := fmtTime(time.Now())
		for _, r := range rows {
			if r.OddsValue <= 1.0 {
				skipped++
				continue
			}
			created := now
			if !r.CreatedAt.IsZero() {
				created = fmtTime(r.CreatedAt)
			}
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO odds (fixture_id, bookmaker_id, bookmaker_name,
					market_id, market_name, outcome_id, outcome_name, odds_value, created_at)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
				ON CONFLICT (fixture_id, bookmaker_id, market_id, outcome_id) DO UPDATE SET
					odds_value = excluded.odds_value,
					market_name = excluded.market_name,
					outcome_name = excluded.outcome_name`,
				r.FixtureID, r.BookmakerID, r.BookmakerName,
				r.MarketID, r.MarketName, r.OutcomeID, r.OutcomeName,
				r.OddsValue, created); err != nil {
				return fmt.Errorf("failed to insert odds for fixture %s: %w", r.FixtureID, err)
			}
			inserted++
		}
		return nil
	})
	if err != nil {
		return 0, 0, err
	}
	return inserted, skipped, nil
}

// GetOdds returns all odds rows for a fixture.
func (s *Store) GetOdds(ctx context.Context, fixtureID string) ([]*models.OddsRow, error) {
	var rows []oddsRow
	err := s.db.SelectContext(ctx, &rows,
		`SELECT `+oddsColumns+` FROM odds WHERE fixture_id = ? ORDER BY market_id, outcome_id`, fixtureID)
	if err != nil {
		return nil, fmt.Errorf("failed to query odds for fixture %s: %w", fixtureID, err)
	}
	out := make([]*models.OddsRow, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toModel())
	}
	return out, nil
}

// LatestOddsAtOrBefore returns, per outcome, the most recent odds row of the
// given fixture and market created at or before the cutoff. Used by the
// value-bet engine so that backtests never see future prices.
func (s *Store) LatestOddsAtOrBefore(ctx context.Context, fixtureID, marketID string, cutoff time.Time) (map[string]*models.OddsRow, error) {
	var rows []oddsRow
	err := s.db.SelectContext(ctx, &rows,
		`SELECT `+oddsColumns+` FROM odds
		 WHERE fixture_id = ? AND market_id = ? AND created_at <= ?
		 ORDER BY created_at DESC, id DESC`,
		fixtureID, marketID, fmtTime(cutoff))
	if err != nil {
		return nil, fmt.Errorf("failed to query odds for fixture %s market %s: %w", fixtureID, marketID, err)
	}
	byOutcome := make(map[string]*models.OddsRow)
	for _, r := range rows {
		if _, seen := byOutcome[r.OutcomeID]; !seen {
			byOutcome[r.OutcomeID] = r.toModel()
		}
	}
	return byOutcome, nil
}
