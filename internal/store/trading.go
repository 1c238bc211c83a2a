package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/antonkoetzler/arbihawk/internal/models"
)

// UpsertStock writes or refreshes instrument metadata for an equity symbol.
func (s *Store) UpsertStock(ctx context.Context, st *models.Stock) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO stocks (symbol, name, sector, market_cap, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (symbol) DO UPDATE SET
			name = excluded.name,
			sector = excluded.sector,
			market_cap = excluded.market_cap,
			updated_at = excluded.updated_at`,
		st.Symbol, st.Name, st.Sector, st.MarketCap, fmtTime(time.Now()))
	if err != nil {
		return fmt.Errorf("failed to upsert stock %s: %w", st.Symbol, err)
	}
	return nil
}

// UpsertCrypto writes or refreshes instrument metadata for a crypto symbol.
func (s *Store) UpsertCrypto(ctx context.Context, c *models.Crypto) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO crypto (symbol, name, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT (symbol) DO UPDATE SET
			name = excluded.name,
			updated_at = excluded.updated_at`,
		c.Symbol, c.Name, fmtTime(time.Now()))
	if err != nil {
		return fmt.Errorf("failed to upsert crypto %s: %w", c.Symbol, err)
	}
	return nil
}

type priceBarRow struct {
	ID        int64   `db:"id"`
	Symbol    string  `db:"symbol"`
	AssetType string  `db:"asset_type"`
	Timestamp string  `db:"timestamp"`
	Open      float64 `db:"open"`
	High      float64 `db:"high"`
	Low       float64 `db:"low"`
	Close     float64 `db:"close"`
	Volume    float64 `db:"volume"`
}

func (r priceBarRow) toModel() *models.PriceBar {
	return &models.PriceBar{
		ID:        r.ID,
		Symbol:    r.Symbol,
		AssetType: models.AssetType(r.AssetType),
		Timestamp: parseTime(r.Timestamp),
		Open:      r.Open,
		High:      r.High,
		Low:       r.Low,
		Close:     r.Close,
		Volume:    r.Volume,
	}
}

// InsertPriceBarsBatch writes OHLCV bars atomically. A bar that collides on
// (symbol, asset type, timestamp) overwrites the existing row.
func (s *Store) InsertPriceBarsBatch(ctx context.Context, bars []*models.PriceBar) (int, error) {
	if len(bars) == 0 {
		return 0, nil
	}
	inserted := 0
	err := s.InTx(ctx, func(tx *sqlx.Tx) error {
		for _, b := range bars {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO price_history (symbol, asset_type, timestamp, open, high, low, close, volume)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?)
				ON CONFLICT (symbol, asset_type, timestamp) DO UPDATE SET
					open = excluded.open,
					high = excluded.high,
					low = excluded.low,
					close = excluded.close,
					volume = excluded.volume`,
				b.Symbol, string(b.AssetType), fmtTime(b.Timestamp),
				b.Open, b.High, b.Low, b.Close, b.Volume); err != nil {
				return fmt.Errorf("failed to insert price bar %s@%s: %w", b.Symbol, b.Timestamp, err)
			}
			inserted++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return inserted, nil
}

// RecentBars returns up to limit bars for a symbol, oldest first, so callers
// can feed them straight into indicator windows.
func (s *Store) RecentBars(ctx context.Context, symbol string, assetType models.AssetType, limit int) ([]*models.PriceBar, error) {
	var rows []priceBarRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT * FROM (
			SELECT id, symbol, asset_type, timestamp, open, high, low, close, volume
			FROM price_history
			WHERE symbol = ? AND asset_type = ?
			ORDER BY timestamp DESC
			LIMIT ?
		) ORDER BY timestamp`,
		symbol, string(assetType), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query price bars for %s: %w", symbol, err)
	}
	out := make([]*models.PriceBar, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toModel())
	}
	return out, nil
}

// LatestBar returns the most recent bar for a symbol.
func (s *Store) LatestBar(ctx context.Context, symbol string, assetType models.AssetType) (*models.PriceBar, error) {
	var row priceBarRow
	err := s.db.GetContext(ctx, &row, `
		SELECT id, symbol, asset_type, timestamp, open, high, low, close, volume
		FROM price_history
		WHERE symbol = ? AND asset_type = ?
		ORDER BY timestamp DESC LIMIT 1`,
		symbol, string(assetType))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query latest bar for %s: %w", symbol, err)
	}
	return row.toModel(), nil
}

// UpsertIndicator records the latest value of a named indicator for a symbol.
func (s *Store) UpsertIndicator(ctx context.Context, symbol string, assetType models.AssetType, name string, value float64) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO indicators (symbol, asset_type, name, value, computed_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (symbol, asset_type, name) DO UPDATE SET
			value = excluded.value,
			computed_at = excluded.computed_at`,
		symbol, string(assetType), name, value, fmtTime(time.Now()))
	if err != nil {
		return fmt.Errorf("failed to upsert indicator %s for %s: %w", name, symbol, err)
	}
	return nil
}

type positionRow struct {
	ID            int64   `db:"id"`
	Symbol        string  `db:"symbol"`
	AssetType     string  `db:"asset_type"`
	Quantity      float64 `db:"quantity"`
	AvgEntryPrice float64 `db:"avg_entry_price"`
	CurrentPrice  float64 `db:"current_price"`
	UnrealizedPnL float64 `db:"unrealized_pnl"`
	Strategy      string  `db:"strategy"`
	StopLoss      float64 `db:"stop_loss"`
	TakeProfit    float64 `db:"take_profit"`
	OpenedAt      string  `db:"opened_at"`
}

func (r positionRow) toModel() *models.Position {
	return &models.Position{
		ID:            r.ID,
		Symbol:        r.Symbol,
		AssetType:     models.AssetType(r.AssetType),
		Quantity:      r.Quantity,
		AvgEntryPrice: r.AvgEntryPrice,
		CurrentPrice:  r.CurrentPrice,
		UnrealizedPnL: r.UnrealizedPnL,
		Strategy:      r.Strategy,
		StopLoss:      r.StopLoss,
		TakeProfit:    r.TakeProfit,
		OpenedAt:      parseTime(r.OpenedAt),
	}
}

const positionColumns = `id, symbol, asset_type, quantity, avg_entry_price, current_price,
	unrealized_pnl, COALESCE(strategy,'') AS strategy, stop_loss, take_profit, opened_at`

// GetPosition returns the open position for a symbol, or ErrNotFound.
func (s *Store) GetPosition(ctx context.Context, symbol string, assetType models.AssetType) (*models.Position, error) {
	var row positionRow
	err := s.db.GetContext(ctx, &row,
		`SELECT `+positionColumns+` FROM positions WHERE symbol = ? AND asset_type = ?`,
		symbol, string(assetType))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get position %s: %w", symbol, err)
	}
	return row.toModel(), nil
}

// OpenPositions returns all open positions.
func (s *Store) OpenPositions(ctx context.Context) ([]*models.Position, error) {
	var rows []positionRow
	err := s.db.SelectContext(ctx, &rows,
		`SELECT `+positionColumns+` FROM positions ORDER BY symbol`)
	if err != nil {
		return nil, fmt.Errorf("failed to query positions: %w", err)
	}
	out := make([]*models.Position, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toModel())
	}
	return out, nil
}

// UpsertPosition creates a position or replaces its mutable fields. Averaging
// on re-entry is the caller's job; the store holds whatever it is handed.
func (s *Store) UpsertPosition(ctx context.Context, p *models.Position) error {
	openedAt := p.OpenedAt
	if openedAt.IsZero() {
		openedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO positions (symbol, asset_type, quantity, avg_entry_price, current_price,
			unrealized_pnl, strategy, stop_loss, take_profit, opened_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (symbol, asset_type) DO UPDATE SET
			quantity = excluded.quantity,
			avg_entry_price = excluded.avg_entry_price,
			current_price = excluded.current_price,
			unrealized_pnl = excluded.unrealized_pnl,
			strategy = excluded.strategy,
			stop_loss = excluded.stop_loss,
			take_profit = excluded.take_profit`,
		p.Symbol, string(p.AssetType), p.Quantity, p.AvgEntryPrice, p.CurrentPrice,
		p.UnrealizedPnL, p.Strategy, p.StopLoss, p.TakeProfit, fmtTime(openedAt))
	if err != nil {
		return fmt.Errorf("failed to upsert position %s: %w", p.Symbol, err)
	}
	return nil
}

// UpdatePositionPrice refreshes the mark price and unrealized PnL of an open
// position.
func (s *Store) UpdatePositionPrice(ctx context.Context, symbol string, assetType models.AssetType, price, unrealizedPnL float64) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE positions SET current_price = ?, unrealized_pnl = ?
		WHERE symbol = ? AND asset_type = ?`,
		price, unrealizedPnL, symbol, string(assetType))
	if err != nil {
		return fmt.Errorf("failed to update position price %s: %w", symbol, err)
	}
	return nil
}

// DeletePosition removes a closed position.
func (s *Store) DeletePosition(ctx context.Context, symbol string, assetType models.AssetType) error {
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM positions WHERE symbol = ? AND asset_type = ?`,
		symbol, string(assetType)); err != nil {
		return fmt.Errorf("failed to delete position %s: %w", symbol, err)
	}
	return nil
}

type tradeRow struct {
	ID        int64   `db:"id"`
	Symbol    string  `db:"symbol"`
	AssetType string  `db:"asset_type"`
	TradeType string  `db:"trade_type"`
	Quantity  float64 `db:"quantity"`
	Price     float64 `db:"price"`
	TotalCost float64 `db:"total_cost"`
	PnL       float64 `db:"pnl"`
	Strategy  string  `db:"strategy"`
	Timestamp string  `db:"timestamp"`
}

func (r tradeRow) toModel() *models.Trade {
	return &models.Trade{
		ID:        r.ID,
		Symbol:    r.Symbol,
		AssetType: models.AssetType(r.AssetType),
		TradeType: models.TradeType(r.TradeType),
		Quantity:  r.Quantity,
		Price:     r.Price,
		TotalCost: r.TotalCost,
		PnL:       r.PnL,
		Strategy:  r.Strategy,
		Timestamp: parseTime(r.Timestamp),
	}
}

// InsertTrade appends one row to the trade log and returns its id.
func (s *Store) InsertTrade(ctx context.Context, t *models.Trade) (int64, error) {
	ts := t.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO trades (symbol, asset_type, trade_type, quantity, price, total_cost, pnl, strategy, timestamp)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.Symbol, string(t.AssetType), string(t.TradeType),
		t.Quantity, t.Price, t.TotalCost, t.PnL, t.Strategy, fmtTime(ts))
	if err != nil {
		return 0, fmt.Errorf("failed to insert trade %s %s: %w", t.TradeType, t.Symbol, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to read trade id: %w", err)
	}
	return id, nil
}

// RecentTrades returns up to limit trade-log rows, newest first.
func (s *Store) RecentTrades(ctx context.Context, limit int) ([]*models.Trade, error) {
	var rows []tradeRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT id, symbol, asset_type, trade_type, quantity, price, total_cost, pnl,
		       COALESCE(strategy,'') AS strategy, timestamp
		FROM trades ORDER BY timestamp DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query trades: %w", err)
	}
	out := make([]*models.Trade, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toModel())
	}
	return out, nil
}

type portfolioRow struct {
	ID                  int64   `db:"id"`
	CashBalance         float64 `db:"cash_balance"`
	TotalPositionValue  float64 `db:"total_position_value"`
	TotalPortfolioValue float64 `db:"total_portfolio_value"`
	UnrealizedPnL       float64 `db:"unrealized_pnl"`
	RealizedPnL         float64 `db:"realized_pnl"`
	Timestamp           string  `db:"timestamp"`
}

func (r portfolioRow) toModel() *models.PortfolioSnapshot {
	return &models.PortfolioSnapshot{
		ID:                  r.ID,
		CashBalance:         r.CashBalance,
		TotalPositionValue:  r.TotalPositionValue,
		TotalPortfolioValue: r.TotalPortfolioValue,
		UnrealizedPnL:       r.UnrealizedPnL,
		RealizedPnL:         r.RealizedPnL,
		Timestamp:           parseTime(r.Timestamp),
	}
}

// InsertPortfolioSnapshot appends one portfolio-history row.
func (s *Store) InsertPortfolioSnapshot(ctx context.Context, snap *models.PortfolioSnapshot) error {
	ts := snap.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO portfolio (cash_balance, total_position_value, total_portfolio_value,
			unrealized_pnl, realized_pnl, timestamp)
		VALUES (?, ?, ?, ?, ?, ?)`,
		snap.CashBalance, snap.TotalPositionValue, snap.TotalPortfolioValue,
		snap.UnrealizedPnL, snap.RealizedPnL, fmtTime(ts))
	if err != nil {
		return fmt.Errorf("failed to insert portfolio snapshot: %w", err)
	}
	return nil
}

// LatestPortfolioSnapshot returns the most recent portfolio row. This is the
// authoritative cash-balance source for the paper trader.
func (s *Store) LatestPortfolioSnapshot(ctx context.Context) (*models.PortfolioSnapshot, error) {
	var row portfolioRow
	err := s.db.GetContext(ctx, &row, `
		SELECT id, cash_balance, total_position_value, total_portfolio_value,
		       unrealized_pnl, realized_pnl, timestamp
		FROM portfolio ORDER BY id DESC LIMIT 1`)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query latest portfolio snapshot: %w", err)
	}
	return row.toModel(), nil
}

// ListInstrumentSymbols returns all tracked symbols for one asset type.
func (s *Store) ListInstrumentSymbols(ctx context.Context, assetType models.AssetType) ([]string, error) {
	table := "stocks"
	if assetType == models.AssetCrypto {
		table = "crypto"
	}
	var symbols []string
	if err := s.db.SelectContext(ctx, &symbols,
		`SELECT symbol FROM `+table+` ORDER BY symbol`); err != nil {
		return nil, fmt.Errorf("failed to list %s symbols: %w", assetType, err)
	}
	return symbols, nil
}
