package models

import "time"

// AssetType distinguishes equity and crypto instruments.
type AssetType string

const (
	AssetStock  AssetType = "stock"
	AssetCrypto AssetType = "crypto"
)

// TradeType represents the action recorded in the trade log.
type TradeType string

const (
	TradeBuy        TradeType = "buy"
	TradeSell       TradeType = "sell"
	TradeStopLoss   TradeType = "stop_loss"
	TradeTakeProfit TradeType = "take_profit"
)

// Stock holds instrument metadata for an equity symbol. Upsert semantics.
type Stock struct {
	Symbol    string    `db:"symbol" json:"symbol" validate:"required"`
	Name      string    `db:"name" json:"name"`
	Sector    string    `db:"sector" json:"sector"`
	MarketCap float64   `db:"market_cap" json:"market_cap"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// Crypto holds instrument metadata for a crypto symbol. Upsert semantics.
type Crypto struct {
	Symbol    string    `db:"symbol" json:"symbol" validate:"required"`
	Name      string    `db:"name" json:"name"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// PriceBar is a single OHLCV bar, unique per (symbol, asset type, timestamp).
type PriceBar struct {
	ID        int64     `db:"id" json:"id"`
	Symbol    string    `db:"symbol" json:"symbol" validate:"required"`
	AssetType AssetType `db:"asset_type" json:"asset_type" validate:"required,oneof=stock crypto"`
	Timestamp time.Time `db:"timestamp" json:"timestamp" validate:"required"`
	Open      float64   `db:"open" json:"open"`
	High      float64   `db:"high" json:"high"`
	Low       float64   `db:"low" json:"low"`
	Close     float64   `db:"close" json:"close"`
	Volume    float64   `db:"volume" json:"volume"`
}

// Position is an open paper position, unique per (symbol, asset type).
// Closed positions are deleted, not flagged.
type Position struct {
	ID            int64     `db:"id" json:"id"`
	Symbol        string    `db:"symbol" json:"symbol" validate:"required"`
	AssetType     AssetType `db:"asset_type" json:"asset_type"`
	Quantity      float64   `db:"quantity" json:"quantity" validate:"required,gt=0"`
	AvgEntryPrice float64   `db:"avg_entry_price" json:"avg_entry_price"`
	CurrentPrice  float64   `db:"current_price" json:"current_price"`
	UnrealizedPnL float64   `db:"unrealized_pnl" json:"unrealized_pnl"`
	Strategy      string    `db:"strategy" json:"strategy"`
	StopLoss      float64   `db:"stop_loss" json:"stop_loss"`
	TakeProfit    float64   `db:"take_profit" json:"take_profit"`
	OpenedAt      time.Time `db:"opened_at" json:"opened_at"`
}

// MarketValue returns quantity times current price.
func (p *Position) MarketValue() float64 {
	return p.Quantity * p.CurrentPrice
}

// Trade is one row of the append-only trade log.
type Trade struct {
	ID        int64     `db:"id" json:"id"`
	Symbol    string    `db:"symbol" json:"symbol" validate:"required"`
	AssetType AssetType `db:"asset_type" json:"asset_type"`
	TradeType TradeType `db:"trade_type" json:"trade_type" validate:"required,oneof=buy sell stop_loss take_profit"`
	Quantity  float64   `db:"quantity" json:"quantity" validate:"required,gt=0"`
	Price     float64   `db:"price" json:"price" validate:"required,gt=0"`
	TotalCost float64   `db:"total_cost" json:"total_cost"`
	PnL       float64   `db:"pnl" json:"pnl"`
	Strategy  string    `db:"strategy" json:"strategy"`
	Timestamp time.Time `db:"timestamp" json:"timestamp"`
}

// PortfolioSnapshot is one row of the append-only portfolio history. The
// latest row is the authoritative cash balance source.
type PortfolioSnapshot struct {
	ID                  int64     `db:"id" json:"id"`
	CashBalance         float64   `db:"cash_balance" json:"cash_balance"`
	TotalPositionValue  float64   `db:"total_position_value" json:"total_position_value"`
	TotalPortfolioValue float64   `db:"total_portfolio_value" json:"total_portfolio_value"`
	UnrealizedPnL       float64   `db:"unrealized_pnl" json:"unrealized_pnl"`
	RealizedPnL         float64   `db:"realized_pnl" json:"realized_pnl"`
	Timestamp           time.Time `db:"timestamp" json:"timestamp"`
}
