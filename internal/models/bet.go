package models

import "time"

// BetResult represents the settlement state of a bet.
type BetResult string

const (
	BetPending BetResult = "pending"
	BetWin     BetResult = "win"
	BetLoss    BetResult = "loss"
)

// Bet represents a paper bet placed against a fixture market. While the
// result is pending, SettledAt is nil and Payout is zero. Once settled the
// row is never mutated again.
type Bet struct {
	ID          int64      `db:"id" json:"id"`
	FixtureID   string     `db:"fixture_id" json:"fixture_id" validate:"required"`
	MarketID    string     `db:"market_id" json:"market_id" validate:"required"`
	MarketName  string     `db:"market_name" json:"market_name"`
	OutcomeID   string     `db:"outcome_id" json:"outcome_id" validate:"required"`
	OutcomeName string     `db:"outcome_name" json:"outcome_name"`
	Odds        float64    `db:"odds" json:"odds" validate:"required,gt=1"`
	Stake       float64    `db:"stake" json:"stake" validate:"required,gt=0"`
	PlacedAt    time.Time  `db:"placed_at" json:"placed_at"`
	SettledAt   *time.Time `db:"settled_at" json:"settled_at"`
	Result      BetResult  `db:"result" json:"result"`
	Payout      float64    `db:"payout" json:"payout"`
	ModelMarket string     `db:"model_market" json:"model_market"`
}

// IsSettled reports whether the bet has left the pending state.
func (b *Bet) IsSettled() bool {
	return b.Result != BetPending
}

// ProfitLoss returns the realised profit (payout minus stake) for settled
// bets and zero for pending ones.
func (b *Bet) ProfitLoss() float64 {
	if !b.IsSettled() {
		return 0
	}
	return b.Payout - b.Stake
}

// BankrollStats aggregates settled-bet performance for one model market.
type BankrollStats struct {
	ModelMarket string  `json:"model_market"`
	SettledBets int     `json:"settled_bets"`
	Wins        int     `json:"wins"`
	Losses      int     `json:"losses"`
	TotalStaked float64 `json:"total_staked"`
	TotalPayout float64 `json:"total_payout"`
	ROI         float64 `json:"roi"`
}
