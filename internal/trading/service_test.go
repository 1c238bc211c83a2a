package trading

import (
	"context"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/antonkoetzler/arbihawk/internal/models"
)

type stubPositionStore struct {
	bars      map[string][]*models.PriceBar
	positions map[string]*models.Position
	trades    []*models.Trade
	snapshots []*models.PortfolioSnapshot
}

func newStubPositionStore() *stubPositionStore {
	return &stubPositionStore{
		bars:      make(map[string][]*models.PriceBar),
		positions: make(map[string]*models.Position),
	}
}

func (s *stubPositionStore) RecentBars(ctx context.Context, symbol string, assetType models.AssetType, limit int) ([]*models.PriceBar, error) {
	return s.bars[symbol], nil
}

func (s *stubPositionStore) LatestBar(ctx context.Context, symbol string, assetType models.AssetType) (*models.PriceBar, error) {
	bars := s.bars[symbol]
	if len(bars) == 0 {
		return nil, models.ErrNotFound
	}
	return bars[len(bars)-1], nil
}

func (s *stubPositionStore) OpenPositions(ctx context.Context) ([]*models.Position, error) {
	var out []*models.Position
	for _, p := range s.positions {
		out = append(out, p)
	}
	return out, nil
}

func (s *stubPositionStore) GetPosition(ctx context.Context, symbol string, assetType models.AssetType) (*models.Position, error) {
	if p, ok := s.positions[symbol]; ok {
		return p, nil
	}
	return nil, models.ErrNotFound
}

func (s *stubPositionStore) UpsertPosition(ctx context.Context, p *models.Position) error {
	s.positions[p.Symbol] = p
	return nil
}

func (s *stubPositionStore) UpdatePositionPrice(ctx context.Context, symbol string, assetType models.AssetType, price, unrealizedPnL float64) error {
	if p, ok := s.positions[symbol]; ok {
		p.CurrentPrice = price
		p.UnrealizedPnL = unrealizedPnL
	}
	return nil
}

func (s *stubPositionStore) DeletePosition(ctx context.Context, symbol string, assetType models.AssetType) error {
	delete(s.positions, symbol)
	return nil
}

func (s *stubPositionStore) InsertTrade(ctx context.Context, tr *models.Trade) (int64, error) {
	s.trades = append(s.trades, tr)
	return int64(len(s.trades)), nil
}

func (s *stubPositionStore) InsertPortfolioSnapshot(ctx context.Context, snap *models.PortfolioSnapshot) error {
	s.snapshots = append(s.snapshots, snap)
	return nil
}

func (s *stubPositionStore) LatestPortfolioSnapshot(ctx context.Context) (*models.PortfolioSnapshot, error) {
	if len(s.snapshots) == 0 {
		return nil, models.ErrNotFound
	}
	return s.snapshots[len(s.snapshots)-1], nil
}

type constPredictor struct{ p float64 }

func (c constPredictor) PredictSignal(ctx context.Context, symbol string, assetType models.AssetType, strategy Strategy, features Features) (float64, error) {
	return c.p, nil
}

func risingBars(symbol string, n int) []*models.PriceBar {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	bars := make([]*models.PriceBar, n)
	for i := 0; i < n; i++ {
		price := 100 + float64(i)*0.5
		bars[i] = &models.PriceBar{
			Symbol: symbol, AssetType: models.AssetStock,
			Timestamp: base.AddDate(0, 0, i),
			Open:      price, High: price + 1, Low: price - 1, Close: price, Volume: 1000,
		}
	}
	return bars
}

func testLogger() *logrus.Logger {
	log := logrus.New()
	log.SetLevel(logrus.ErrorLevel)
	return log
}

func TestGenerateSignalsGates(t *testing.T) {
	store := newStubPositionStore()
	store.bars["AAPL"] = risingBars("AAPL", 40)

	minConf := map[Strategy]float64{StrategyMomentum: 0.6}
	engine := NewSignalEngine(store, constPredictor{p: 0.7}, 2.0, 2.0, 1.5, minConf, testLogger())

	signals, err := engine.GenerateSignals(context.Background(), []string{"AAPL"}, models.AssetStock, StrategyMomentum)
	require.NoError(t, err)
	require.Len(t, signals, 1)
	sig := signals[0]
	assert.Less(t, sig.StopLoss, sig.Entry)
	assert.Greater(t, sig.TakeProfit, sig.Entry)
	assert.InDelta(t, 2.0, sig.RiskReward, 1e-9)
	assert.Greater(t, sig.EV, 0.0)

	// Below the confidence floor nothing is emitted.
	engine = NewSignalEngine(store, constPredictor{p: 0.5}, 2.0, 2.0, 1.5, minConf, testLogger())
	signals, err = engine.GenerateSignals(context.Background(), []string{"AAPL"}, models.AssetStock, StrategyMomentum)
	require.NoError(t, err)
	assert.Empty(t, signals)
}

func TestGenerateSignalsSkipsShortSeries(t *testing.T) {
	store := newStubPositionStore()
	store.bars["AAPL"] = risingBars("AAPL", 5)

	engine := NewSignalEngine(store, constPredictor{p: 0.9}, 2.0, 2.0, 1.0, nil, testLogger())
	signals, err := engine.GenerateSignals(context.Background(), []string{"AAPL"}, models.AssetStock, StrategyMomentum)
	require.NoError(t, err)
	assert.Empty(t, signals)
}

func TestRunCycleOpensPositionAndSnapshots(t *testing.T) {
	store := newStubPositionStore()
	store.bars["AAPL"] = risingBars("AAPL", 40)

	engine := NewSignalEngine(store, constPredictor{p: 0.8}, 2.0, 2.0, 1.0,
		map[Strategy]float64{StrategyMomentum: 0.6}, testLogger())
	svc := NewService(store, engine, Watchlist{Stocks: []string{"AAPL"}},
		[]Strategy{StrategyMomentum}, 0.1, 10000, 5, testLogger())

	result, err := svc.RunCycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.PositionsOpened)
	assert.Empty(t, result.Errors)

	require.Len(t, store.snapshots, 1)
	snap := store.snapshots[0]
	assert.InDelta(t, 10000.0, snap.TotalPortfolioValue, 0.01)
	assert.InDelta(t, 9000.0, snap.CashBalance, 0.01)

	require.Len(t, store.trades, 1)
	assert.Equal(t, models.TradeBuy, store.trades[0].TradeType)
}

func TestRunCycleClosesOnTakeProfit(t *testing.T) {
	store := newStubPositionStore()
	store.bars["AAPL"] = risingBars("AAPL", 40)
	last := store.bars["AAPL"][39].Close

	store.positions["AAPL"] = &models.Position{
		Symbol: "AAPL", AssetType: models.AssetStock,
		Quantity: 10, AvgEntryPrice: 100, CurrentPrice: 100,
		TakeProfit: last - 1, StopLoss: 50, Strategy: "momentum",
	}
	store.snapshots = append(store.snapshots, &models.PortfolioSnapshot{CashBalance: 5000})

	// Confidence floor of 1.1 keeps new entries out of this cycle.
	engine := NewSignalEngine(store, constPredictor{p: 0.5}, 2.0, 2.0, 1.0,
		map[Strategy]float64{StrategyMomentum: 1.1}, testLogger())
	svc := NewService(store, engine, Watchlist{Stocks: []string{"AAPL"}},
		[]Strategy{StrategyMomentum}, 0.1, 10000, 5, testLogger())

	result, err := svc.RunCycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.PositionsClosed)
	assert.Empty(t, store.positions)

	require.Len(t, store.trades, 1)
	assert.Equal(t, models.TradeTakeProfit, store.trades[0].TradeType)
	assert.Greater(t, store.trades[0].PnL, 0.0)

	snap := store.snapshots[len(store.snapshots)-1]
	assert.InDelta(t, 5000+last*10, snap.CashBalance, 0.01)
}
