package ingest_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/antonkoetzler/arbihawk/internal/ingest"
	"github.com/antonkoetzler/arbihawk/internal/matcher"
	"github.com/antonkoetzler/arbihawk/internal/matchid"
	"github.com/antonkoetzler/arbihawk/internal/models"
	"github.com/antonkoetzler/arbihawk/internal/settlement"
	"github.com/antonkoetzler/arbihawk/internal/store"
)

const betanoLeague = `{
	"league_id": "L1",
	"league_name": "Test League",
	"fixtures": [{
		"fixture_id": "betano_123",
		"home_team_id": "h1",
		"home_team_name": "Team A",
		"away_team_id": "a1",
		"away_team_name": "Team B",
		"start_time": "2025-01-20T15:00:00Z",
		"status": "scheduled",
		"odds": [{
			"market_id": "1x2",
			"market_name": "1x2",
			"outcome_id": "1",
			"outcome_name": "Home",
			"odds_value": 2.5
		}]
	}]
}`

const flashscoreMatches = `{
	"matches": [{
		"home_team_name": "Team A",
		"away_team_name": "Team B",
		"start_time": "2025-01-20T15:00:00Z",
		"home_score": 2,
		"away_score": 1
	}]
}`

// e2eHarness wires a real store, matcher, and pipeline the way setup does
// in the CLI, minus the subprocess runner.
type e2eHarness struct {
	store    *store.Store
	id       *matchid.Identifier
	pipeline *ingest.Pipeline
	log      *logrus.Logger
}

func newE2EHarness(t *testing.T) *e2eHarness {
	t.Helper()
	log := logrus.New()
	log.SetLevel(logrus.ErrorLevel)
	s, err := store.Open(filepath.Join(t.TempDir(), "e2e.db"), log)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	id := matchid.New()
	m := matcher.New(s, id, 24*time.Hour, 75)
	return &e2eHarness{
		store:    s,
		id:       id,
		pipeline: ingest.NewPipeline(s, m, id, log),
		log:      log,
	}
}

func TestIngestedOddsLandInStore(t *testing.T) {
	h := newE2EHarness(t)
	ctx := context.Background()

	res, err := h.pipeline.Ingest(ctx, ingest.SourceBetano, []byte(betanoLeague))
	require.NoError(t, err)
	assert.Equal(t, models.ValidationSuccess, res.Status)

	fixture, err := h.store.GetFixture(ctx, "betano_123")
	require.NoError(t, err)
	assert.Equal(t, "Team A", fixture.HomeTeamName)
	assert.Equal(t, "Team B", fixture.AwayTeamName)

	odds, err := h.store.GetOdds(ctx, "betano_123")
	require.NoError(t, err)
	require.Len(t, odds, 1)
	assert.InDelta(t, 2.5, odds[0].OddsValue, 1e-9)
}

func TestReplayedPayloadLeavesDataPlaneUntouched(t *testing.T) {
	h := newE2EHarness(t)
	ctx := context.Background()

	_, err := h.pipeline.Ingest(ctx, ingest.SourceBetano, []byte(betanoLeague))
	require.NoError(t, err)

	res, err := h.pipeline.Ingest(ctx, ingest.SourceBetano, []byte(betanoLeague))
	require.NoError(t, err)
	assert.Equal(t, models.ValidationDupe, res.Status)

	odds, err := h.store.GetOdds(ctx, "betano_123")
	require.NoError(t, err)
	assert.Len(t, odds, 1)

	// Both ingestions leave an audit row.
	audits, err := h.store.RecentIngestions(ctx, 10)
	require.NoError(t, err)
	require.Len(t, audits, 2)
	statuses := []models.ValidationStatus{audits[0].ValidationStatus, audits[1].ValidationStatus}
	assert.Contains(t, statuses, models.ValidationSuccess)
	assert.Contains(t, statuses, models.ValidationDupe)
}

func TestSyntheticScoreSettlesLaterBet(t *testing.T) {
	h := newE2EHarness(t)
	ctx := context.Background()

	// Score arrives before any fixture is known; it parks under a
	// synthetic id.
	res, err := h.pipeline.Ingest(ctx, ingest.SourceFlashscore, []byte(flashscoreMatches))
	require.NoError(t, err)
	assert.Equal(t, models.ValidationSuccess, res.Status)
	assert.Equal(t, 0, res.Matched)

	score, err := h.store.GetScore(ctx, "flashscore_Team_A_Team_B_2025-01-20")
	require.NoError(t, err)
	assert.Equal(t, 2, score.HomeScore)
	assert.Equal(t, 1, score.AwayScore)

	// The fixture shows up in a later odds payload.
	_, err = h.pipeline.Ingest(ctx, ingest.SourceBetano, []byte(betanoLeague))
	require.NoError(t, err)

	betID, err := h.store.InsertBet(ctx, &models.Bet{
		FixtureID:   "betano_123",
		MarketID:    "1x2",
		MarketName:  "1x2",
		OutcomeID:   "1",
		OutcomeName: "Home",
		Odds:        2.5,
		Stake:       10,
		ModelMarket: "1x2",
	})
	require.NoError(t, err)

	settler := settlement.New(h.store, h.id, 24*time.Hour, 75, h.log)
	summary, err := settler.SettlePendingBets(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Settled)
	assert.Equal(t, 1, summary.Wins)
	assert.InDelta(t, 25.0, summary.TotalPayout, 1e-9)

	bet, err := h.store.GetBet(ctx, betID)
	require.NoError(t, err)
	assert.Equal(t, models.BetWin, bet.Result)
	assert.InDelta(t, 25.0, bet.Payout, 1e-9)
	require.NotNil(t, bet.SettledAt)

	// A second pass with no new scores settles nothing.
	summary, err = settler.SettlePendingBets(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, summary.Settled)
}
