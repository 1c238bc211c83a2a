package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/antonkoetzler/arbihawk/internal/models"
)

type betRow struct {
	ID          int64          `db:"id"`
	FixtureID   string         `db:"fixture_id"`
	MarketID    string         `db:"market_id"`
	MarketName  string         `db:"market_name"`
	OutcomeID   string         `db:"outcome_id"`
	OutcomeName string         `db:"outcome_name"`
	Odds        float64        `db:"odds"`
	Stake       float64        `db:"stake"`
	PlacedAt    string         `db:"placed_at"`
	SettledAt   sql.NullString `db:"settled_at"`
	Result      string         `db:"result"`
	Payout      float64        `db:"payout"`
	ModelMarket string         `db:"model_market"`
}

func (r betRow) toModel() *models.Bet {
	return &models.Bet{
		ID:          r.ID,
		FixtureID:   r.FixtureID,
		MarketID:    r.MarketID,
		MarketName:  r.MarketName,
		OutcomeID:   r.OutcomeID,
		OutcomeName: r.OutcomeName,
		Odds:        r.Odds,
		Stake:       r.Stake,
		PlacedAt:    parseTime(r.PlacedAt),
		SettledAt:   parseTimePtr(r.SettledAt),
		Result:      models.BetResult(r.Result),
		Payout:      r.Payout,
		ModelMarket: r.ModelMarket,
	}
}

const betColumns = `id, fixture_id, market_id, COALESCE(market_name,'') AS market_name,
	outcome_id, COALESCE(outcome_name,'') AS outcome_name, odds, stake,
	placed_at, settled_at, result, payout, COALESCE(model_market,'') AS model_market`

// InsertBet records a new pending bet and returns its id.
func (s *Store) InsertBet(ctx context.Context, bet *models.Bet) (int64, error) {
	placedAt := bet.PlacedAt
	if placedAt.IsZero() {
		placedAt = time.Now()
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO bet_history (fixture_id, market_id, market_name, outcome_id, outcome_name,
			odds, stake, placed_at, result, payout, model_market)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, 'pending', 0, ?)`,
		bet.FixtureID, bet.MarketID, bet.MarketName, bet.OutcomeID, bet.OutcomeName,
		bet.Odds, bet.Stake, fmtTime(placedAt), bet.ModelMarket)
	if err != nil {
		return 0, fmt.Errorf("failed to insert bet on fixture %s: %w", bet.FixtureID, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to read bet id: %w", err)
	}
	return id, nil
}

// GetBet retrieves a bet by id.
func (s *Store) GetBet(ctx context.Context, id int64) (*models.Bet, error) {
	var row betRow
	err := s.db.GetContext(ctx, &row, `SELECT `+betColumns+` FROM bet_history WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get bet %d: %w", id, err)
	}
	return row.toModel(), nil
}

// PendingBets returns all unsettled bets, oldest first.
func (s *Store) PendingBets(ctx context.Context) ([]*models.Bet, error) {
	var rows []betRow
	err := s.db.SelectContext(ctx, &rows,
		`SELECT `+betColumns+` FROM bet_history WHERE result = 'pending' ORDER BY placed_at`)
	if err != nil {
		return nil, fmt.Errorf("failed to query pending bets: %w", err)
	}
	out := make([]*models.Bet, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toModel())
	}
	return out, nil
}

// SettleBet marks a pending bet as won or lost. Once a bet has left the
// pending state it is never mutated again, so settling an already settled
// bet is a no-op and returns false.
func (s *Store) SettleBet(ctx context.Context, id int64, result models.BetResult, payout float64, settledAt time.Time) (bool, error) {
	if result != models.BetWin && result != models.BetLoss {
		return false, fmt.Errorf("invalid settlement result %q for bet %d", result, id)
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE bet_history SET result = ?, payout = ?, settled_at = ?
		WHERE id = ? AND result = 'pending'`,
		string(result), payout, fmtTime(settledAt), id)
	if err != nil {
		return false, fmt.Errorf("failed to settle bet %d: %w", id, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read settle result for bet %d: %w", id, err)
	}
	return affected > 0, nil
}

// BankrollStats aggregates settled-bet performance for a model market. An
// empty model market aggregates across all bets.
func (s *Store) BankrollStats(ctx context.Context, modelMarket string) (*models.BankrollStats, error) {
	query := `
		SELECT COUNT(*) AS settled,
		       COALESCE(SUM(CASE WHEN result = 'win' THEN 1 ELSE 0 END), 0) AS wins,
		       COALESCE(SUM(stake), 0) AS staked,
		       COALESCE(SUM(payout), 0) AS payout
		FROM bet_history
		WHERE result != 'pending'`
	args := []interface{}{}
	if modelMarket != "" {
		query += ` AND model_market = ?`
		args = append(args, modelMarket)
	}

	var agg struct {
		Settled int     `db:"settled"`
		Wins    int     `db:"wins"`
		Staked  float64 `db:"staked"`
		Payout  float64 `db:"payout"`
	}
	if err := s.db.GetContext(ctx, &agg, query, args...); err != nil {
		return nil, fmt.Errorf("failed to aggregate bankroll stats: %w", err)
	}

	stats := &models.BankrollStats{
		ModelMarket: modelMarket,
		SettledBets: agg.Settled,
		Wins:        agg.Wins,
		Losses:      agg.Settled - agg.Wins,
		TotalStaked: agg.Staked,
		TotalPayout: agg.Payout,
	}
	if stats.TotalStaked > 0 {
		stats.ROI = (stats.TotalPayout - stats.TotalStaked) / stats.TotalStaked
	}
	return stats, nil
}
