package trading

import (
	"context"
	"fmt"
	"sort"

	"github.com/sirupsen/logrus"

	"github.com/antonkoetzler/arbihawk/internal/models"
)

// Strategy names the signal styles the engine understands.
type Strategy string

const (
	StrategyMomentum   Strategy = "momentum"
	StrategySwing      Strategy = "swing"
	StrategyVolatility Strategy = "volatility"
)

// Features is the technical-context vector computed per symbol.
type Features struct {
	Close            float64
	SMA20            float64
	EMA12            float64
	RSI              float64
	MACD             MACDResult
	Bollinger        BollingerResult
	ATR              float64
	RSIOverbought    bool
	RSIOversold      bool
	MACDBullish      bool
	BollingerSqueeze bool
}

// SignalPredictor supplies the active model's probability that a long entry
// on the symbol is profitable under the given strategy.
type SignalPredictor interface {
	PredictSignal(ctx context.Context, symbol string, assetType models.AssetType, strategy Strategy, features Features) (float64, error)
}

// BarSource is the store slice the signal engine reads bars from.
type BarSource interface {
	RecentBars(ctx context.Context, symbol string, assetType models.AssetType, limit int) ([]*models.PriceBar, error)
}

// Signal is one emitted trade candidate.
type Signal struct {
	Symbol     string           `json:"symbol"`
	AssetType  models.AssetType `json:"asset_type"`
	Strategy   Strategy         `json:"strategy"`
	Entry      float64          `json:"entry"`
	StopLoss   float64          `json:"stop_loss"`
	TakeProfit float64          `json:"take_profit"`
	Confidence float64          `json:"confidence"`
	EV         float64          `json:"ev"`
	RiskReward float64          `json:"risk_reward"`
}

// SignalEngine maps bars and model probabilities to gated trade signals.
type SignalEngine struct {
	bars          BarSource
	predictor     SignalPredictor
	atrMultiplier float64
	riskReward    float64
	minRiskReward float64
	minConfidence map[Strategy]float64
	barWindow     int
	log           *logrus.Logger
}

// NewSignalEngine creates a signal engine. minConfidence holds the
// per-strategy confidence floor.
func NewSignalEngine(bars BarSource, predictor SignalPredictor, atrMultiplier, riskReward, minRiskReward float64, minConfidence map[Strategy]float64, log *logrus.Logger) *SignalEngine {
	return &SignalEngine{
		bars:          bars,
		predictor:     predictor,
		atrMultiplier: atrMultiplier,
		riskReward:    riskReward,
		minRiskReward: minRiskReward,
		minConfidence: minConfidence,
		barWindow:     60,
		log:           log,
	}
}

// ComputeFeatures derives the technical-context vector from a bar series.
// Returns false when there are not enough bars to form a view.
func ComputeFeatures(bars []*models.PriceBar) (Features, bool) {
	if len(bars) < bollingerPeriod {
		return Features{}, false
	}
	closes := make([]float64, len(bars))
	highs := make([]float64, len(bars))
	lows := make([]float64, len(bars))
	for i, b := range bars {
		closes[i] = b.Close
		highs[i] = b.High
		lows[i] = b.Low
	}

	f := Features{
		Close:     closes[len(closes)-1],
		SMA20:     SMA(closes, 20),
		EMA12:     EMA(closes, macdFastPeriod),
		RSI:       RSI(closes, rsiPeriod),
		MACD:      MACD(closes),
		Bollinger: Bollinger(closes),
		ATR:       ATR(highs, lows, closes, atrPeriod),
	}
	f.RSIOverbought = f.RSI >= 70
	f.RSIOversold = f.RSI <= 30
	f.MACDBullish = f.MACD.Histogram > 0
	f.BollingerSqueeze = f.Bollinger.Width > 0 && f.Bollinger.Width < 0.04
	return f, true
}

// GenerateSignals evaluates every watchlist symbol under one strategy and
// returns the gated signals ordered by EV descending.
func (e *SignalEngine) GenerateSignals(ctx context.Context, symbols []string, assetType models.AssetType, strategy Strategy) ([]Signal, error) {
	var signals []Signal
	for _, symbol := range symbols {
		bars, err := e.bars.RecentBars(ctx, symbol, assetType, e.barWindow)
		if err != nil {
			return nil, fmt.Errorf("failed to load bars for %s: %w", symbol, err)
		}
		features, ok := ComputeFeatures(bars)
		if !ok || features.ATR <= 0 {
			continue
		}

		confidence, err := e.predictor.PredictSignal(ctx, symbol, assetType, strategy, features)
		if err != nil {
			if e.log != nil {
				e.log.WithError(err).WithField("symbol", symbol).Warn("Signal prediction failed")
			}
			continue
		}
		if confidence < e.minConfidence[strategy] {
			continue
		}

		entry := features.Close
		stopLoss := entry - e.atrMultiplier*features.ATR
		takeProfit := entry + e.riskReward*(entry-stopLoss)

		risk := (entry - stopLoss) / entry
		expectedReturn := (takeProfit - entry) / entry
		if risk <= 0 {
			continue
		}
		riskReward := expectedReturn / risk
		if riskReward < e.minRiskReward {
			continue
		}
		ev := confidence*expectedReturn - (1-confidence)*risk
		if ev < 0 {
			continue
		}

		signals = append(signals, Signal{
			Symbol:     symbol,
			AssetType:  assetType,
			Strategy:   strategy,
			Entry:      entry,
			StopLoss:   stopLoss,
			TakeProfit: takeProfit,
			Confidence: confidence,
			EV:         ev,
			RiskReward: riskReward,
		})
	}

	sort.Slice(signals, func(i, j int) bool { return signals[i].EV > signals[j].EV })
	return signals, nil
}
