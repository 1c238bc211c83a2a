// Package settlement grades pending bets against final scores and pays them
// out. Scores stored under synthetic ids are reconciled back to fixtures via
// similarity plus a time window.
package settlement

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/antonkoetzler/arbihawk/internal/matchid"
	"github.com/antonkoetzler/arbihawk/internal/metrics"
	"github.com/antonkoetzler/arbihawk/internal/models"
)

// Store is the slice of the data layer settlement needs.
type Store interface {
	GetBet(ctx context.Context, id int64) (*models.Bet, error)
	PendingBets(ctx context.Context) ([]*models.Bet, error)
	SettleBet(ctx context.Context, id int64, result models.BetResult, payout float64, settledAt time.Time) (bool, error)
	GetFixture(ctx context.Context, fixtureID string) (*models.Fixture, error)
	GetScore(ctx context.Context, fixtureID string) (*models.Score, error)
	ListScoresWithPrefix(ctx context.Context, prefix string) ([]*models.Score, error)
}

// Summary aggregates one settlement pass over pending bets.
type Summary struct {
	TotalPending int          `json:"total_pending"`
	Settled      int          `json:"settled"`
	Wins         int          `json:"wins"`
	Losses       int          `json:"losses"`
	TotalPayout  float64      `json:"total_payout"`
	Results      []BetOutcome `json:"results"`
}

// BetOutcome is the per-bet entry of a settlement summary.
type BetOutcome struct {
	BetID  int64            `json:"bet_id"`
	Result models.BetResult `json:"result"`
	Payout float64          `json:"payout"`
}

// Service settles bets.
type Service struct {
	store     Store
	id        *matchid.Identifier
	tolerance time.Duration
	minScore  int
	log       *logrus.Logger
}

// New creates a settlement service. tolerance and minScore govern the
// synthetic-score fallback lookup.
func New(store Store, id *matchid.Identifier, tolerance time.Duration, minScore int, log *logrus.Logger) *Service {
	return &Service{store: store, id: id, tolerance: tolerance, minScore: minScore, log: log}
}

// SettleBet grades a single bet against the final score of its fixture.
// Returns nil without error when no score is available yet or the market is
// unknown; the bet stays pending.
func (s *Service) SettleBet(ctx context.Context, betID int64) (*BetOutcome, error) {
	bet, err := s.store.GetBet(ctx, betID)
	if err != nil {
		return nil, fmt.Errorf("failed to load bet %d: %w", betID, err)
	}
	if bet.IsSettled() {
		return nil, nil
	}

	score, err := s.findScore(ctx, bet.FixtureID)
	if err != nil {
		return nil, err
	}
	if score == nil {
		return nil, nil
	}

	won, known := evaluate(bet.MarketName, bet.OutcomeID, bet.OutcomeName, score.HomeScore, score.AwayScore)
	if !known {
		if s.log != nil {
			s.log.WithFields(logrus.Fields{"bet_id": betID, "market": bet.MarketName}).
				Warn("Unknown market, bet left pending")
		}
		return nil, nil
	}

	result := models.BetLoss
	payout := 0.0
	if won {
		result = models.BetWin
		payout = bet.Stake * bet.Odds
	}
	settled, err := s.store.SettleBet(ctx, betID, result, payout, time.Now())
	if err != nil {
		return nil, fmt.Errorf("failed to settle bet %d: %w", betID, err)
	}
	if !settled {
		return nil, nil
	}
	metrics.RecordBetSettled(string(result))
	return &BetOutcome{BetID: betID, Result: result, Payout: payout}, nil
}

// SettlePendingBets runs over all pending bets. One bad bet never aborts the
// batch; its error is logged and the pass continues.
func (s *Service) SettlePendingBets(ctx context.Context) (*Summary, error) {
	pending, err := s.store.PendingBets(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load pending bets: %w", err)
	}

	summary := &Summary{TotalPending: len(pending)}
	for _, bet := range pending {
		outcome, err := s.SettleBet(ctx, bet.ID)
		if err != nil {
			if s.log != nil {
				s.log.WithError(err).WithField("bet_id", bet.ID).Error("Failed to settle bet")
			}
			continue
		}
		if outcome == nil {
			continue
		}
		summary.Settled++
		summary.TotalPayout += outcome.Payout
		if outcome.Result == models.BetWin {
			summary.Wins++
		} else {
			summary.Losses++
		}
		summary.Results = append(summary.Results, *outcome)
	}
	metrics.UpdatePendingBets(float64(summary.TotalPending - summary.Settled))
	return summary, nil
}

// findScore resolves the final score for a fixture, falling back to the
// synthetic-id scan when the scraper stored the score before the fixture was
// known.
func (s *Service) findScore(ctx context.Context, fixtureID string) (*models.Score, error) {
	score, err := s.store.GetScore(ctx, fixtureID)
	if err == nil {
		return score, nil
	}
	if !errors.Is(err, models.ErrNotFound) {
		return nil, fmt.Errorf("failed to load score for %s: %w", fixtureID, err)
	}

	fixture, err := s.store.GetFixture(ctx, fixtureID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to load fixture %s: %w", fixtureID, err)
	}
	return s.findScoreByTeamsAndDate(ctx, fixture)
}

func (s *Service) findScoreByTeamsAndDate(ctx context.Context, fixture *models.Fixture) (*models.Score, error) {
	for _, prefix := range []string{"flashscore", "livescore"} {
		candidates, err := s.store.ListScoresWithPrefix(ctx, prefix+"_")
		if err != nil {
			return nil, fmt.Errorf("failed to scan synthetic scores: %w", err)
		}
		for _, candidate := range candidates {
			parsed := s.id.ParseSyntheticID(candidate.FixtureID)
			if parsed == nil {
				continue
			}
			delta := fixture.StartTime.Sub(parsed.Date)
			if delta < 0 {
				delta = -delta
			}
			if delta > s.tolerance {
				continue
			}
			combined := (s.id.Similarity(parsed.Home, fixture.HomeTeamName) +
				s.id.Similarity(parsed.Away, fixture.AwayTeamName)) / 2
			if combined >= s.minScore {
				metrics.RecordScoreMatched()
				return candidate, nil
			}
		}
	}
	return nil, nil
}

var thresholdRe = regexp.MustCompile(`(\d+(?:\.\d+)?)`)

// evaluate grades one outcome against a final score. The second return is
// false for unknown markets.
func evaluate(marketName, outcomeID, outcomeName string, home, away int) (won, known bool) {
	market := strings.ToLower(marketName)
	outcome := strings.ToLower(outcomeName)
	if outcome == "" {
		outcome = strings.ToLower(outcomeID)
	}
	total := home + away

	switch {
	case strings.Contains(market, "1x2") || strings.Contains(market, "match result") || strings.Contains(market, "match winner"):
		switch outcome {
		case "1", "home", "home win":
			return home > away, true
		case "x", "draw":
			return home == away, true
		case "2", "away", "away win":
			return home < away, true
		}
		return false, false

	case strings.Contains(market, "over/under") || strings.Contains(market, "over under") || strings.Contains(market, "total"):
		threshold := 2.5
		if m := thresholdRe.FindString(outcome); m != "" {
			if v, err := strconv.ParseFloat(m, 64); err == nil {
				threshold = v
			}
		}
		// A push (total equal to the threshold) loses for both sides.
		switch {
		case strings.Contains(outcome, "over"):
			return float64(total) > threshold, true
		case strings.Contains(outcome, "under"):
			return float64(total) < threshold, true
		}
		return false, false

	case strings.Contains(market, "both teams to score") || strings.Contains(market, "btts"):
		switch outcome {
		case "yes":
			return home > 0 && away > 0, true
		case "no":
			return home == 0 || away == 0, true
		}
		return false, false

	case strings.Contains(market, "double chance"):
		switch outcome {
		case "1x", "home or draw":
			return home >= away, true
		case "x2", "draw or away":
			return home <= away, true
		case "12", "home or away":
			return home != away, true
		}
		return false, false
	}
	return false, false
}
