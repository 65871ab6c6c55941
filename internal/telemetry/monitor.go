package telemetry

import (
	"time"

	"plasmatrader/internal/core"
	"plasmatrader/internal/features"

	"github.com/shopspring/decimal"
)

// Report is one dashboard frame.
type Report struct {
	Timestamp          time.Time          `json:"timestamp"`
	Symbol             string             `json:"symbol"`
	Price              float64            `json:"price"`
	SpreadBps          float64            `json:"spreadBps"`
	Pressure           float64            `json:"pressure"`
	Liquidity          float64            `json:"liquidity"`
	BookEntropy        float64            `json:"bookEntropy"`
	Decision           core.Decision      `json:"decision"`
	Confidence         float64            `json:"confidence"`
	FusedPredictionPct float64            `json:"fusedPredictionPct"`
	Details            map[string]float64 `json:"details,omitempty"`
	Position           *core.Position     `json:"position,omitempty"`
	UnrealizedPnL      float64            `json:"unrealizedPnl"`
	UnrealizedPnLPct   float64            `json:"unrealizedPnlPct"`
	TotalTrades        int                `json:"totalTrades"`
	WinRate            float64            `json:"winRate"`
	TotalPnL           float64            `json:"totalPnl"`
	TotalPnLPct        float64            `json:"totalPnlPct"`
	WalletBalance      float64            `json:"walletBalance"`
	HighWaterMark      float64            `json:"highWaterMark"`
	Drawdown           float64            `json:"drawdown"`
}

var entropy = features.NewEntropyEngine()

// Collect builds a report from the published view and the latest market
// snapshot. Percentages are in percent.
func Collect(view core.View, market core.MarketSnapshot, initialBalance decimal.Decimal) Report {
	state := view.State
	r := Report{
		Timestamp:     market.Timestamp,
		Symbol:        market.Symbol,
		Price:         finite(market.Price),
		SpreadBps:     finite(market.SpreadBps),
		Pressure:      finite(features.BuySellPressure(market.Bids, market.Asks)),
		Liquidity:     finite(features.InstantLiquidity(market.Bids, market.Asks)),
		BookEntropy:   finite(entropy.CalculateBookEntropy(market)),
		Decision:      view.LastDecision,
		Confidence:    view.LastConfidence,
		TotalTrades:   len(state.Trades),
		TotalPnL:      state.TotalPnL.InexactFloat64(),
		WalletBalance: state.WalletBalance.InexactFloat64(),
		HighWaterMark: state.RiskMetrics.HighWaterMark.InexactFloat64(),
		Drawdown:      state.RiskMetrics.CurrentDrawdown,
	}
	if view.Signal != nil {
		r.FusedPredictionPct = view.Signal.FusedPredictionPct
		r.Details = view.Signal.Details
	}

	if pos, ok := state.Position(market.Symbol); ok {
		r.Position = &pos
		if features.IsFinite(market.Price) {
			upnl := state.UnrealizedPnL(market.Symbol, decimal.NewFromFloat(market.Price))
			r.UnrealizedPnL = upnl.InexactFloat64()
			if basis := pos.CostBasis(); basis.IsPositive() {
				r.UnrealizedPnLPct = upnl.Div(basis).InexactFloat64() * 100
			}
		}
	}

	if n := len(state.Trades); n > 0 {
		wins := 0
		for _, t := range state.Trades {
			if t.PnL.IsPositive() {
				wins++
			}
		}
		r.WinRate = float64(wins) / float64(n) * 100
	}
	if initialBalance.IsPositive() {
		r.TotalPnLPct = state.TotalPnL.Div(initialBalance).InexactFloat64() * 100
	}
	return r
}

// finite keeps reports JSON-encodable.
func finite(v float64) float64 {
	if !features.IsFinite(v) {
		return 0
	}
	return v
}
