// Package valuebet maps model probabilities and market prices to bet
// candidates through an expected-value gate.
package valuebet

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/antonkoetzler/arbihawk/internal/metrics"
	"github.com/antonkoetzler/arbihawk/internal/models"
)

// Store is the slice of the data layer the engine needs.
type Store interface {
	UpcomingFixturesWithOdds(ctx context.Context, now time.Time, window time.Duration) ([]*models.Fixture, error)
	LatestOddsAtOrBefore(ctx context.Context, fixtureID, marketID string, cutoff time.Time) (map[string]*models.OddsRow, error)
	InsertBet(ctx context.Context, bet *models.Bet) (int64, error)
}

// Predictor supplies model probabilities per outcome for a fixture and
// market. Missing outcomes are simply absent from the map.
type Predictor interface {
	Predict(ctx context.Context, fixture *models.Fixture, market string) (map[string]float64, error)
}

// Candidate is one bet candidate that passed the EV gate.
type Candidate struct {
	FixtureID   string  `json:"fixture_id"`
	MarketID    string  `json:"market_id"`
	MarketName  string  `json:"market_name"`
	OutcomeID   string  `json:"outcome_id"`
	OutcomeName string  `json:"outcome_name"`
	Odds        float64 `json:"odds"`
	Probability float64 `json:"probability"`
	EV          float64 `json:"ev"`
	Stake       float64 `json:"stake"`
}

// Engine scans upcoming fixtures for positive-expected-value outcomes.
type Engine struct {
	store       Store
	predictor   Predictor
	evThreshold float64
	fixedStake  float64
	margins     map[string]float64
	window      time.Duration
	log         *logrus.Logger
}

// New creates a value-bet engine. margins maps market id to the bookmaker
// margin used to deflate implied probabilities.
func New(store Store, predictor Predictor, evThreshold, fixedStake float64, margins map[string]float64, window time.Duration, log *logrus.Logger) *Engine {
	return &Engine{
		store:       store,
		predictor:   predictor,
		evThreshold: evThreshold,
		fixedStake:  fixedStake,
		margins:     margins,
		window:      window,
		log:         log,
	}
}

// ExpectedValue computes the EV of backing an outcome at decimal odds o with
// model probability p under a bookmaker margin m:
//
//	EV = (p - (1/o)/(1+m)) * o
func ExpectedValue(p, odds, margin float64) float64 {
	adjustedImplied := (1 / odds) / (1 + margin)
	return (p - adjustedImplied) * odds
}

// FindCandidates scans upcoming fixtures for the given market and returns
// every outcome whose EV clears the threshold, ordered by EV descending.
// asOf bounds both the fixture window start and the odds cutoff, so
// backtests never see future prices.
func (e *Engine) FindCandidates(ctx context.Context, market string, asOf time.Time) ([]Candidate, error) {
	fixtures, err := e.store.UpcomingFixturesWithOdds(ctx, asOf, e.window)
	if err != nil {
		return nil, fmt.Errorf("failed to load upcoming fixtures: %w", err)
	}

	var candidates []Candidate
	for _, fixture := range fixtures {
		probs, err := e.predictor.Predict(ctx, fixture, market)
		if err != nil {
			if e.log != nil {
				e.log.WithError(err).WithField("fixture", fixture.FixtureID).
					Warn("Prediction failed, skipping fixture")
			}
			continue
		}
		if len(probs) == 0 {
			continue
		}

		odds, err := e.store.LatestOddsAtOrBefore(ctx, fixture.FixtureID, market, asOf)
		if err != nil {
			return nil, fmt.Errorf("failed to load odds for %s: %w", fixture.FixtureID, err)
		}

		for outcomeID, row := range odds {
			p, ok := probs[outcomeID]
			if !ok {
				continue
			}
			ev := ExpectedValue(p, row.OddsValue, e.margins[market])
			if ev < e.evThreshold {
				continue
			}
			candidates = append(candidates, Candidate{
				FixtureID:   fixture.FixtureID,
				MarketID:    row.MarketID,
				MarketName:  row.MarketName,
				OutcomeID:   row.OutcomeID,
				OutcomeName: row.OutcomeName,
				Odds:        row.OddsValue,
				Probability: p,
				EV:          ev,
				Stake:       e.fixedStake,
			})
		}
	}

	sort.Slice(candidates, func(i, j int) bool { return candidates[i].EV > candidates[j].EV })
	return candidates, nil
}

// PlaceBets inserts pending bets for up to limit candidates, tagged with the
// model market. Returns the inserted bet ids.
func (e *Engine) PlaceBets(ctx context.Context, candidates []Candidate, modelMarket string, limit int) ([]int64, error) {
	if limit > 0 && len(candidates) > limit {
		candidates = candidates[:limit]
	}
	var ids []int64
	for _, c := range candidates {
		id, err := e.store.InsertBet(ctx, &models.Bet{
			FixtureID:   c.FixtureID,
			MarketID:    c.MarketID,
			MarketName:  c.MarketName,
			OutcomeID:   c.OutcomeID,
			OutcomeName: c.OutcomeName,
			Odds:        c.Odds,
			Stake:       c.Stake,
			ModelMarket: modelMarket,
		})
		if err != nil {
			return ids, fmt.Errorf("failed to place bet on %s: %w", c.FixtureID, err)
		}
		metrics.RecordBetPlaced()
		if e.log != nil {
			e.log.WithFields(logrus.Fields{
				"fixture": c.FixtureID,
				"outcome": c.OutcomeID,
				"odds":    c.Odds,
				"ev":      c.EV,
			}).Info("Placed value bet")
		}
		ids = append(ids, id)
	}
	return ids, nil
}
