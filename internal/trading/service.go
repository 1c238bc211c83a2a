// Package trading implements the paper-trading side: technical indicators,
// the trade-signal engine, and the trade service that runs the position
// lifecycle cycle.
package trading

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/antonkoetzler/arbihawk/internal/metrics"
	"github.com/antonkoetzler/arbihawk/internal/models"
)

// PositionStore is the store slice the trade service needs.
type PositionStore interface {
	BarSource
	LatestBar(ctx context.Context, symbol string, assetType models.AssetType) (*models.PriceBar, error)
	OpenPositions(ctx context.Context) ([]*models.Position, error)
	GetPosition(ctx context.Context, symbol string, assetType models.AssetType) (*models.Position, error)
	UpsertPosition(ctx context.Context, p *models.Position) error
	UpdatePositionPrice(ctx context.Context, symbol string, assetType models.AssetType, price, unrealizedPnL float64) error
	DeletePosition(ctx context.Context, symbol string, assetType models.AssetType) error
	InsertTrade(ctx context.Context, t *models.Trade) (int64, error)
	InsertPortfolioSnapshot(ctx context.Context, snap *models.PortfolioSnapshot) error
	LatestPortfolioSnapshot(ctx context.Context) (*models.PortfolioSnapshot, error)
}

// CycleResult summarizes one trading cycle.
type CycleResult struct {
	PricesRefreshed int      `json:"prices_refreshed"`
	PositionsClosed int      `json:"positions_closed"`
	PositionsOpened int      `json:"positions_opened"`
	Signals         int      `json:"signals"`
	RealizedPnL     float64  `json:"realized_pnl"`
	Errors          []string `json:"errors"`
}

// Watchlist names the symbols traded per asset type.
type Watchlist struct {
	Stocks []string
	Crypto []string
}

// Service runs the paper-trading cycle. All cash and cost arithmetic goes
// through decimals so position accounting never drifts.
type Service struct {
	store          PositionStore
	engine         *SignalEngine
	watchlist      Watchlist
	strategies     []Strategy
	positionSize   decimal.Decimal
	initialBalance decimal.Decimal
	maxPositions   int
	log            *logrus.Logger
}

// NewService creates the trade service. positionSize is the fraction of cash
// committed per new position.
func NewService(store PositionStore, engine *SignalEngine, watchlist Watchlist, strategies []Strategy, positionSize, initialBalance float64, maxPositions int, log *logrus.Logger) *Service {
	return &Service{
		store:          store,
		engine:         engine,
		watchlist:      watchlist,
		strategies:     strategies,
		positionSize:   decimal.NewFromFloat(positionSize),
		initialBalance: decimal.NewFromFloat(initialBalance),
		maxPositions:   maxPositions,
		log:            log,
	}
}

// RunCycle executes one full trading cycle: refresh prices, close triggered
// positions, generate signals, open positions, snapshot the portfolio.
func (s *Service) RunCycle(ctx context.Context) (*CycleResult, error) {
	result := &CycleResult{}

	cash, realized, err := s.currentBalances(ctx)
	if err != nil {
		return nil, err
	}

	if err := s.refreshPositionPrices(ctx, result); err != nil {
		return nil, err
	}

	closedPnL, freedCash, err := s.closeTriggeredPositions(ctx, result)
	if err != nil {
		return nil, err
	}
	cash = cash.Add(freedCash)
	realized = realized.Add(closedPnL)
	result.RealizedPnL, _ = closedPnL.Float64()

	signals, err := s.generateAllSignals(ctx, result)
	if err != nil {
		return nil, err
	}
	result.Signals = len(signals)

	cash, err = s.openPositions(ctx, signals, cash, result)
	if err != nil {
		return nil, err
	}

	if err := s.snapshot(ctx, cash, realized); err != nil {
		return nil, err
	}
	return result, nil
}

// currentBalances reads cash and cumulative realized P&L from the latest
// snapshot, falling back to the configured initial balance.
func (s *Service) currentBalances(ctx context.Context) (cash, realized decimal.Decimal, err error) {
	snap, err := s.store.LatestPortfolioSnapshot(ctx)
	if errors.Is(err, models.ErrNotFound) {
		return s.initialBalance, decimal.Zero, nil
	}
	if err != nil {
		return decimal.Zero, decimal.Zero, fmt.Errorf("failed to load portfolio snapshot: %w", err)
	}
	return decimal.NewFromFloat(snap.CashBalance), decimal.NewFromFloat(snap.RealizedPnL), nil
}

func (s *Service) refreshPositionPrices(ctx context.Context, result *CycleResult) error {
	positions, err := s.store.OpenPositions(ctx)
	if err != nil {
		return fmt.Errorf("failed to load open positions: %w", err)
	}
	for _, p := range positions {
		bar, err := s.store.LatestBar(ctx, p.Symbol, p.AssetType)
		if errors.Is(err, models.ErrNotFound) {
			continue
		}
		if err != nil {
			result.Errors = append(result.Errors, err.Error())
			continue
		}
		price := decimal.NewFromFloat(bar.Close)
		entry := decimal.NewFromFloat(p.AvgEntryPrice)
		qty := decimal.NewFromFloat(p.Quantity)
		unrealized, _ := price.Sub(entry).Mul(qty).Float64()
		priceF, _ := price.Float64()
		if err := s.store.UpdatePositionPrice(ctx, p.Symbol, p.AssetType, priceF, unrealized); err != nil {
			result.Errors = append(result.Errors, err.Error())
			continue
		}
		result.PricesRefreshed++
	}
	return nil
}

// closeTriggeredPositions closes positions whose mark price crossed the
// stop-loss or take-profit level. Returns realized P&L and the cash returned
// by the closes.
func (s *Service) closeTriggeredPositions(ctx context.Context, result *CycleResult) (pnl, freed decimal.Decimal, err error) {
	positions, err := s.store.OpenPositions(ctx)
	if err != nil {
		return decimal.Zero, decimal.Zero, fmt.Errorf("failed to load open positions: %w", err)
	}
	pnl, freed = decimal.Zero, decimal.Zero
	for _, p := range positions {
		var tradeType models.TradeType
		switch {
		case p.StopLoss > 0 && p.CurrentPrice <= p.StopLoss:
			tradeType = models.TradeStopLoss
		case p.TakeProfit > 0 && p.CurrentPrice >= p.TakeProfit:
			tradeType = models.TradeTakeProfit
		default:
			continue
		}

		price := decimal.NewFromFloat(p.CurrentPrice)
		entry := decimal.NewFromFloat(p.AvgEntryPrice)
		qty := decimal.NewFromFloat(p.Quantity)
		proceeds := price.Mul(qty)
		positionPnL := price.Sub(entry).Mul(qty)

		proceedsF, _ := proceeds.Float64()
		pnlF, _ := positionPnL.Float64()
		if _, err := s.store.InsertTrade(ctx, &models.Trade{
			Symbol:    p.Symbol,
			AssetType: p.AssetType,
			TradeType: tradeType,
			Quantity:  p.Quantity,
			Price:     p.CurrentPrice,
			TotalCost: proceedsF,
			PnL:       pnlF,
			Strategy:  p.Strategy,
		}); err != nil {
			result.Errors = append(result.Errors, err.Error())
			continue
		}
		if err := s.store.DeletePosition(ctx, p.Symbol, p.AssetType); err != nil {
			result.Errors = append(result.Errors, err.Error())
			continue
		}
		metrics.RecordTradeExecuted(string(tradeType))
		if s.log != nil {
			s.log.WithFields(logrus.Fields{
				"symbol": p.Symbol, "type": tradeType, "pnl": pnlF,
			}).Info("Closed position")
		}
		pnl = pnl.Add(positionPnL)
		freed = freed.Add(proceeds)
		result.PositionsClosed++
	}
	return pnl, freed, nil
}

func (s *Service) generateAllSignals(ctx context.Context, result *CycleResult) ([]Signal, error) {
	var all []Signal
	lists := []struct {
		symbols   []string
		assetType models.AssetType
	}{
		{s.watchlist.Stocks, models.AssetStock},
		{s.watchlist.Crypto, models.AssetCrypto},
	}
	for _, list := range lists {
		if len(list.symbols) == 0 {
			continue
		}
		for _, strategy := range s.strategies {
			signals, err := s.engine.GenerateSignals(ctx, list.symbols, list.assetType, strategy)
			if err != nil {
				result.Errors = append(result.Errors, err.Error())
				continue
			}
			all = append(all, signals...)
		}
	}
	return all, nil
}

func (s *Service) openPositions(ctx context.Context, signals []Signal, cash decimal.Decimal, result *CycleResult) (decimal.Decimal, error) {
	open, err := s.store.OpenPositions(ctx)
	if err != nil {
		return cash, fmt.Errorf("failed to load open positions: %w", err)
	}
	openCount := len(open)

	for _, sig := range signals {
		if s.maxPositions > 0 && openCount >= s.maxPositions {
			break
		}
		// One position per (symbol, asset type).
		if _, err := s.store.GetPosition(ctx, sig.Symbol, sig.AssetType); err == nil {
			continue
		} else if !errors.Is(err, models.ErrNotFound) {
			result.Errors = append(result.Errors, err.Error())
			continue
		}

		budget := cash.Mul(s.positionSize)
		entry := decimal.NewFromFloat(sig.Entry)
		if entry.IsZero() || budget.LessThanOrEqual(decimal.Zero) {
			continue
		}
		qty := budget.Div(entry)
		cost := qty.Mul(entry)
		if cost.GreaterThan(cash) {
			continue
		}

		qtyF, _ := qty.Float64()
		costF, _ := cost.Float64()
		if err := s.store.UpsertPosition(ctx, &models.Position{
			Symbol:        sig.Symbol,
			AssetType:     sig.AssetType,
			Quantity:      qtyF,
			AvgEntryPrice: sig.Entry,
			CurrentPrice:  sig.Entry,
			Strategy:      string(sig.Strategy),
			StopLoss:      sig.StopLoss,
			TakeProfit:    sig.TakeProfit,
		}); err != nil {
			result.Errors = append(result.Errors, err.Error())
			continue
		}
		if _, err := s.store.InsertTrade(ctx, &models.Trade{
			Symbol:    sig.Symbol,
			AssetType: sig.AssetType,
			TradeType: models.TradeBuy,
			Quantity:  qtyF,
			Price:     sig.Entry,
			TotalCost: costF,
			Strategy:  string(sig.Strategy),
		}); err != nil {
			result.Errors = append(result.Errors, err.Error())
			continue
		}
		metrics.RecordTradeExecuted(string(models.TradeBuy))
		if s.log != nil {
			s.log.WithFields(logrus.Fields{
				"symbol": sig.Symbol, "strategy": sig.Strategy, "entry": sig.Entry, "ev": sig.EV,
			}).Info("Opened position")
		}
		cash = cash.Sub(cost)
		openCount++
		result.PositionsOpened++
	}
	return cash, nil
}

func (s *Service) snapshot(ctx context.Context, cash, realized decimal.Decimal) error {
	positions, err := s.store.OpenPositions(ctx)
	if err != nil {
		return fmt.Errorf("failed to load open positions: %w", err)
	}
	positionValue := decimal.Zero
	unrealized := decimal.Zero
	for _, p := range positions {
		positionValue = positionValue.Add(decimal.NewFromFloat(p.MarketValue()))
		unrealized = unrealized.Add(decimal.NewFromFloat(p.UnrealizedPnL))
	}

	cashF, _ := cash.Float64()
	positionValueF, _ := positionValue.Float64()
	totalF, _ := cash.Add(positionValue).Float64()
	unrealizedF, _ := unrealized.Float64()
	realizedF, _ := realized.Float64()

	metrics.UpdateOpenPositions(float64(len(positions)))
	metrics.UpdatePortfolioValue(totalF)

	if err := s.store.InsertPortfolioSnapshot(ctx, &models.PortfolioSnapshot{
		CashBalance:         cashF,
		TotalPositionValue:  positionValueF,
		TotalPortfolioValue: totalF,
		UnrealizedPnL:       unrealizedF,
		RealizedPnL:         realizedF,
	}); err != nil {
		return fmt.Errorf("failed to insert portfolio snapshot: %w", err)
	}
	return nil
}
