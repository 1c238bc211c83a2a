package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/antonkoetzler/arbihawk/internal/models"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	log := logrus.New()
	log.SetLevel(logrus.ErrorLevel)
	s, err := Open(filepath.Join(t.TempDir(), "test.db"), log)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func testFixture(id string, start time.Time) *models.Fixture {
	return &models.Fixture{
		FixtureID:      id,
		TournamentID:   "t1",
		TournamentName: "Premier League",
		HomeTeamID:     "h1",
		HomeTeamName:   "Arsenal",
		AwayTeamID:     "a1",
		AwayTeamName:   "Chelsea",
		StartTime:      start,
		Status:         models.FixtureScheduled,
	}
}

func TestMigrationLadder(t *testing.T) {
	s := newTestStore(t)

	v, err := s.SchemaVersion()
	require.NoError(t, err)
	assert.Equal(t, 7, v)

	// Re-running the ladder on an up-to-date schema is a no-op.
	require.NoError(t, s.migrate())
	v, err = s.SchemaVersion()
	require.NoError(t, err)
	assert.Equal(t, 7, v)
}

func TestFixtureUpsertAndQuery(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	start := time.Date(2026, 3, 14, 15, 0, 0, 0, time.UTC)

	require.NoError(t, s.UpsertFixture(ctx, testFixture("fx1", start)))

	got, err := s.GetFixture(ctx, "fx1")
	require.NoError(t, err)
	assert.Equal(t, "Arsenal", got.HomeTeamName)
	assert.True(t, got.StartTime.Equal(start))

	// Upsert updates in place.
	f := testFixture("fx1", start)
	f.Status = models.FixtureFinished
	require.NoError(t, s.UpsertFixture(ctx, f))
	got, err = s.GetFixture(ctx, "fx1")
	require.NoError(t, err)
	assert.Equal(t, models.FixtureFinished, got.Status)

	_, err = s.GetFixture(ctx, "missing")
	assert.ErrorIs(t, err, models.ErrNotFound)

	between, err := s.FixturesBetween(ctx, start.Add(-time.Hour), start.Add(time.Hour))
	require.NoError(t, err)
	assert.Len(t, between, 1)
}

func TestInsertOddsBatchSkipsInvalid(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	start := time.Date(2026, 3, 14, 15, 0, 0, 0, time.UTC)
	require.NoError(t, s.UpsertFixture(ctx, testFixture("fx1", start)))

	rows := []*models.OddsRow{
		{FixtureID: "fx1", BookmakerID: "b1", MarketID: "1x2", OutcomeID: "home", OddsValue: 2.10},
		{FixtureID: "fx1", BookmakerID: "b1", MarketID: "1x2", OutcomeID: "draw", OddsValue: 1.0},
		{FixtureID: "fx1", BookmakerID: "b1", MarketID: "1x2", OutcomeID: "away", OddsValue: 3.40},
	}
	inserted, skipped, err := s.InsertOddsBatch(ctx, rows)
	require.NoError(t, err)
	assert.Equal(t, 2, inserted)
	assert.Equal(t, 1, skipped)

	// Conflicting row overwrites the price.
	_, _, err = s.InsertOddsBatch(ctx, []*models.OddsRow{
		{FixtureID: "fx1", BookmakerID: "b1", MarketID: "1x2", OutcomeID: "home", OddsValue: 2.25},
	})
	require.NoError(t, err)

	odds, err := s.GetOdds(ctx, "fx1")
	require.NoError(t, err)
	require.Len(t, odds, 2)
	for _, o := range odds {
		if o.OutcomeID == "home" {
			assert.InDelta(t, 2.25, o.OddsValue, 1e-9)
		}
	}
}

func TestLatestOddsAtOrBefore(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	start := time.Date(2026, 3, 14, 15, 0, 0, 0, time.UTC)
	require.NoError(t, s.UpsertFixture(ctx, testFixture("fx1", start)))

	early := start.Add(-48 * time.Hour)
	late := start.Add(-1 * time.Hour)
	_, _, err := s.InsertOddsBatch(ctx, []*models.OddsRow{
		{FixtureID: "fx1", BookmakerID: "b1", MarketID: "1x2", OutcomeID: "home", OddsValue: 2.10, CreatedAt: early},
	})
	require.NoError(t, err)
	_, _, err = s.InsertOddsBatch(ctx, []*models.OddsRow{
		{FixtureID: "fx1", BookmakerID: "b2", MarketID: "1x2", OutcomeID: "home", OddsValue: 2.30, CreatedAt: late},
	})
	require.NoError(t, err)

	// Cutoff between the two rows sees only the early one.
	byOutcome, err := s.LatestOddsAtOrBefore(ctx, "fx1", "1x2", start.Add(-24*time.Hour))
	require.NoError(t, err)
	require.Contains(t, byOutcome, "home")
	assert.InDelta(t, 2.10, byOutcome["home"].OddsValue, 1e-9)

	byOutcome, err = s.LatestOddsAtOrBefore(ctx, "fx1", "1x2", start)
	require.NoError(t, err)
	assert.InDelta(t, 2.30, byOutcome["home"].OddsValue, 1e-9)
}

func TestScoreLifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	score := &models.Score{FixtureID: "flashscore_arsenal_chelsea_2026-03-14", HomeScore: 2, AwayScore: 1, Status: "finished"}
	require.NoError(t, s.UpsertScore(ctx, score))

	got, err := s.GetScore(ctx, score.FixtureID)
	require.NoError(t, err)
	assert.Equal(t, 2, got.HomeScore)
	assert.Equal(t, 3, got.Total())

	synthetic, err := s.ListScoresWithPrefix(ctx, "flashscore_")
	require.NoError(t, err)
	assert.Len(t, synthetic, 1)

	require.NoError(t, s.DeleteScore(ctx, score.FixtureID))
	_, err = s.GetScore(ctx, score.FixtureID)
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestSettleBetIsIdempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	id, err := s.InsertBet(ctx, &models.Bet{
		FixtureID: "fx1", MarketID: "1x2", OutcomeID: "home",
		Odds: 2.20, Stake: 10, ModelMarket: "match_winner",
	})
	require.NoError(t, err)

	pending, err := s.PendingBets(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)

	settled, err := s.SettleBet(ctx, id, models.BetWin, 22.0, time.Now())
	require.NoError(t, err)
	assert.True(t, settled)

	// Second settlement attempt does not touch the row.
	settled, err = s.SettleBet(ctx, id, models.BetLoss, 0, time.Now())
	require.NoError(t, err)
	assert.False(t, settled)

	bet, err := s.GetBet(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, models.BetWin, bet.Result)
	assert.InDelta(t, 22.0, bet.Payout, 1e-9)
	require.NotNil(t, bet.SettledAt)
}

func TestBankrollStats(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	place := func(odds, stake float64, result models.BetResult, payout float64) {
		id, err := s.InsertBet(ctx, &models.Bet{
			FixtureID: "fx1", MarketID: "1x2", OutcomeID: "home",
			Odds: odds, Stake: stake, ModelMarket: "match_winner",
		})
		require.NoError(t, err)
		_, err = s.SettleBet(ctx, id, result, payout, time.Now())
		require.NoError(t, err)
	}
	place(2.0, 10, models.BetWin, 20)
	place(3.0, 10, models.BetLoss, 0)

	stats, err := s.BankrollStats(ctx, "match_winner")
	require.NoError(t, err)
	assert.Equal(t, 2, stats.SettledBets)
	assert.Equal(t, 1, stats.Wins)
	assert.Equal(t, 1, stats.Losses)
	assert.InDelta(t, 20.0, stats.TotalStaked, 1e-9)
	assert.InDelta(t, 20.0, stats.TotalPayout, 1e-9)
	assert.InDelta(t, 0.0, stats.ROI, 1e-9)
}

func TestModelVersionExclusiveActivation(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for _, id := range []string{"v1", "v2"} {
		require.NoError(t, s.InsertModelVersion(ctx, &models.ModelVersion{
			VersionID: id, Domain: models.DomainBetting, Market: "match_winner",
			ModelPath: "/models/" + id + ".bin",
		}))
	}

	require.NoError(t, s.ActivateModelVersion(ctx, "v1"))
	require.NoError(t, s.ActivateModelVersion(ctx, "v2"))

	active, err := s.ActiveModelVersion(ctx, models.DomainBetting, "match_winner")
	require.NoError(t, err)
	assert.Equal(t, "v2", active.VersionID)

	all, err := s.ListModelVersions(ctx, models.DomainBetting, "match_winner")
	require.NoError(t, err)
	activeCount := 0
	for _, mv := range all {
		if mv.IsActive {
			activeCount++
		}
	}
	assert.Equal(t, 1, activeCount)

	assert.ErrorIs(t, s.ActivateModelVersion(ctx, "missing"), models.ErrNotFound)
}

func TestIngestionChecksumDedup(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	id, err := s.InsertIngestionMeta(ctx, &models.IngestionMeta{
		Source: "flashscore_odds", Checksum: "abc123",
		RecordsCount: 5, ValidationStatus: models.ValidationSuccess,
	})
	require.NoError(t, err)

	exists, err := s.ChecksumExists(ctx, "flashscore_odds", "abc123")
	require.NoError(t, err)
	assert.True(t, exists)

	// Failed ingestions never block re-ingestion.
	exists, err = s.ChecksumExists(ctx, "flashscore_odds", "def456")
	require.NoError(t, err)
	assert.False(t, exists)

	dismissed, err := s.DismissIngestion(ctx, id)
	require.NoError(t, err)
	assert.True(t, dismissed)

	exists, err = s.ChecksumExists(ctx, "flashscore_odds", "abc123")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestRunHistory(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	completed := time.Now()
	_, err := s.InsertRun(ctx, &models.Run{
		RunType: "collection", Domain: models.DomainBetting,
		StartedAt: completed.Add(-time.Minute), CompletedAt: &completed,
		DurationSeconds: 60, Success: true,
	})
	require.NoError(t, err)
	_, err = s.InsertRun(ctx, &models.Run{
		RunType: "training", Domain: models.DomainBetting,
		Skipped: true, SkipReason: "insufficient samples",
	})
	require.NoError(t, err)

	runs, err := s.RecentRuns(ctx, "", 10)
	require.NoError(t, err)
	assert.Len(t, runs, 2)

	runs, err = s.RecentRuns(ctx, "collection", 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.True(t, runs[0].Success)
	require.NotNil(t, runs[0].CompletedAt)
}

func TestResetBettingDomain(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	var backupLabel string
	s.SetBackupFunc(func(label string) (string, error) {
		backupLabel = label
		return "/backups/test.db", nil
	})

	start := time.Now().Add(24 * time.Hour)
	require.NoError(t, s.UpsertFixture(ctx, testFixture("fx1", start)))
	_, _, err := s.InsertOddsBatch(ctx, []*models.OddsRow{
		{FixtureID: "fx1", BookmakerID: "b1", MarketID: "1x2", OutcomeID: "home", OddsValue: 2.0},
	})
	require.NoError(t, err)
	require.NoError(t, s.UpsertStock(ctx, &models.Stock{Symbol: "AAPL", Name: "Apple"}))

	report, err := s.ResetBettingDomain(ctx)
	require.NoError(t, err)
	assert.Equal(t, "pre_betting_reset", backupLabel)
	assert.Equal(t, "/backups/test.db", report.BackupPath)
	assert.Equal(t, 1, report.RecordsDeleted["fixtures"])
	assert.Equal(t, 1, report.RecordsDeleted["odds"])
	assert.Equal(t, 2, report.TotalDeleted)

	_, err = s.GetFixture(ctx, "fx1")
	assert.ErrorIs(t, err, models.ErrNotFound)

	// Trading tables survive a betting reset.
	symbols, err := s.ListInstrumentSymbols(ctx, models.AssetStock)
	require.NoError(t, err)
	assert.Equal(t, []string{"AAPL"}, symbols)
}

func TestResetDatabasePreservesModels(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	s.SetBackupFunc(func(label string) (string, error) { return "/backups/full.db", nil })

	require.NoError(t, s.InsertModelVersion(ctx, &models.ModelVersion{
		VersionID: "v1", Domain: models.DomainBetting, Market: "match_winner",
		ModelPath: "/models/v1.bin",
	}))

	_, err := s.ResetDatabase(ctx, true)
	require.NoError(t, err)

	_, err = s.GetModelVersion(ctx, "v1")
	assert.NoError(t, err)
}

func TestResetRequiresBackup(t *testing.T) {
	s := newTestStore(t)
	_, err := s.ResetBettingDomain(context.Background())
	assert.Error(t, err)
}

func TestPositionLifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	p := &models.Position{
		Symbol: "AAPL", AssetType: models.AssetStock,
		Quantity: 10, AvgEntryPrice: 150, CurrentPrice: 150,
		Strategy: "momentum", StopLoss: 140, TakeProfit: 170,
	}
	require.NoError(t, s.UpsertPosition(ctx, p))

	require.NoError(t, s.UpdatePositionPrice(ctx, "AAPL", models.AssetStock, 160, 100))
	got, err := s.GetPosition(ctx, "AAPL", models.AssetStock)
	require.NoError(t, err)
	assert.InDelta(t, 160.0, got.CurrentPrice, 1e-9)
	assert.InDelta(t, 1600.0, got.MarketValue(), 1e-9)

	require.NoError(t, s.DeletePosition(ctx, "AAPL", models.AssetStock))
	_, err = s.GetPosition(ctx, "AAPL", models.AssetStock)
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestPriceBarsAndPortfolio(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	base := time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC)
	var bars []*models.PriceBar
	for i := 0; i < 5; i++ {
		bars = append(bars, &models.PriceBar{
			Symbol: "BTC", AssetType: models.AssetCrypto,
			Timestamp: base.AddDate(0, 0, i),
			Open:      100 + float64(i), High: 105 + float64(i),
			Low: 95 + float64(i), Close: 102 + float64(i), Volume: 1000,
		})
	}
	n, err := s.InsertPriceBarsBatch(ctx, bars)
	require.NoError(t, err)
	assert.Equal(t, 5, n)

	recent, err := s.RecentBars(ctx, "BTC", models.AssetCrypto, 3)
	require.NoError(t, err)
	require.Len(t, recent, 3)
	// Oldest first within the window.
	assert.True(t, recent[0].Timestamp.Before(recent[2].Timestamp))
	assert.InDelta(t, 106.0, recent[2].Close, 1e-9)

	latest, err := s.LatestBar(ctx, "BTC", models.AssetCrypto)
	require.NoError(t, err)
	assert.InDelta(t, 106.0, latest.Close, 1e-9)

	require.NoError(t, s.InsertPortfolioSnapshot(ctx, &models.PortfolioSnapshot{
		CashBalance: 9000, TotalPositionValue: 1000, TotalPortfolioValue: 10000,
	}))
	require.NoError(t, s.InsertPortfolioSnapshot(ctx, &models.PortfolioSnapshot{
		CashBalance: 8500, TotalPositionValue: 1600, TotalPortfolioValue: 10100,
	}))
	snap, err := s.LatestPortfolioSnapshot(ctx)
	require.NoError(t, err)
	assert.InDelta(t, 8500.0, snap.CashBalance, 1e-9)
}

func TestSafeJSON(t *testing.T) {
	ts := time.Date(2026, 3, 14, 15, 0, 0, 0, time.UTC)
	out, err := SafeJSON(map[string]interface{}{
		"when":  ts,
		"count": 3,
		"nested": map[string]interface{}{
			"scores": []interface{}{1, 2.5},
		},
	})
	require.NoError(t, err)
	assert.Contains(t, out, `"when":"2026-03-14T15:00:00Z"`)
	assert.Contains(t, out, `"count":3`)
	assert.Contains(t, out, `[1,2.5]`)
}
