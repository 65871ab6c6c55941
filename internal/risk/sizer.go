// Package risk converts a trading signal into a position size under a
// half-Kelly budget, tiered drawdown protection and volatility targeting.
package risk

import (
	"math"

	"plasmatrader/internal/core"
	"plasmatrader/internal/features"

	"go.uber.org/zap"
)

// Reason explains why a sizing came out as it did.
type Reason string

const (
	ReasonHardStop     Reason = "drawdown_hard_stop"
	ReasonNoEdge       Reason = "no_edge"
	ReasonInvalidInput Reason = "invalid_input"
)

// Decision is the full breakdown of one sizing.
type Decision struct {
	WinRate          float64
	Odds             float64
	Kelly            float64
	MaxRisk          float64
	TargetRisk       float64
	DrawdownFactor   float64
	Volatility       float64
	VolatilityFactor float64
	RiskPct          float64
	SizeUSD          float64
	Size             float64
	Reason           Reason
}

type Sizer struct {
	cfg    Config
	logger *zap.Logger
}

func NewSizer(cfg Config, logger *zap.Logger) *Sizer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Sizer{cfg: cfg, logger: logger}
}

// PositionSize returns the order size in base-asset units. It never fails;
// degenerate input yields 0.
func (s *Sizer) PositionSize(state core.TradingState, signal core.PredictionSignal, price float64) float64 {
	return s.Evaluate(state, signal, price).Size
}

// Evaluate runs the sizing policy and reports every intermediate factor.
func (s *Sizer) Evaluate(state core.TradingState, signal core.PredictionSignal, price float64) Decision {
	var d Decision

	dd := state.RiskMetrics.CurrentDrawdown
	factor, stop := s.DrawdownFactor(dd)
	d.DrawdownFactor = factor
	if stop {
		d.Reason = ReasonHardStop
		s.logger.Warn("drawdown hard stop", zap.String("symbol", signal.Symbol), zap.Float64("drawdown", dd))
		return d
	}

	balance := state.WalletBalance.InexactFloat64()
	if balance <= 0 || price <= 0 || !features.IsFinite(price) {
		d.Reason = ReasonInvalidInput
		s.logger.Info("position size zero",
			zap.String("symbol", signal.Symbol),
			zap.Float64("balance", balance),
			zap.Float64("price", price),
		)
		return d
	}

	d.MaxRisk = s.cfg.MaxRisk
	if state.InRecovery() {
		d.MaxRisk = s.cfg.RecoveryRisk
	}

	d.WinRate, d.Odds = s.WinRateAndOdds(state)
	d.Kelly = Kelly(d.WinRate, d.Odds)
	d.TargetRisk = math.Min(math.Max(0, d.Kelly*s.cfg.KellyFraction), d.MaxRisk)

	d.Volatility = s.RealizedVolatility(state.History)
	d.VolatilityFactor = math.Min(1, s.cfg.VolatilityTarget/d.Volatility)

	d.RiskPct = d.TargetRisk * d.DrawdownFactor * d.VolatilityFactor
	if d.RiskPct <= 0 {
		d.Reason = ReasonNoEdge
		s.logger.Info("position size zero",
			zap.String("symbol", signal.Symbol),
			zap.Float64("kelly", d.Kelly),
			zap.Float64("dd_factor", d.DrawdownFactor),
		)
		return d
	}

	usd := balance * d.RiskPct
	usd = math.Max(s.cfg.MinOrderUSD, math.Min(usd, s.cfg.MaxOrderUSD))
	if usd > balance {
		usd = balance
	}
	d.SizeUSD = usd
	d.Size = usd / price

	s.logger.Info("position sized",
		zap.String("symbol", signal.Symbol),
		zap.Float64("kelly", d.Kelly),
		zap.Float64("risk_pct", d.RiskPct),
		zap.Float64("dd_factor", d.DrawdownFactor),
		zap.Float64("vol_factor", d.VolatilityFactor),
		zap.Float64("size_usd", d.SizeUSD),
		zap.Float64("size", d.Size),
	)
	return d
}

// DrawdownFactor maps the current drawdown to a size multiplier. stop is
// true at or beyond the hard stop.
func (s *Sizer) DrawdownFactor(drawdown float64) (factor float64, stop bool) {
	if drawdown >= s.cfg.DrawdownHardStop {
		return 0, true
	}
	if drawdown >= s.cfg.DrawdownLevel1 {
		steps := math.Floor((drawdown - s.cfg.DrawdownLevel1) / s.cfg.DrawdownStep)
		reduction := (steps + 1) * s.cfg.DrawdownReduction
		return math.Max(0, 1-reduction), false
	}
	return 1, false
}

// WinRateAndOdds derives p and b from the last kelly_history trades of the
// ledger. A trade with pnl <= 0 counts as a loss. Without enough history, or
// without both wins and losses, the configured defaults are returned.
func (s *Sizer) WinRateAndOdds(state core.TradingState) (winRate, odds float64) {
	recent := state.RecentTrades(s.cfg.KellyHistory)
	if len(recent) < s.cfg.KellyMinTrades {
		return s.cfg.DefaultWinRate, s.cfg.DefaultOdds
	}

	var wins, losses int
	var winSum, lossSum float64
	for _, t := range recent {
		pnl := t.PnL.InexactFloat64()
		if pnl > 0 {
			wins++
			winSum += pnl
		} else {
			losses++
			lossSum += -pnl
		}
	}
	if wins == 0 || losses == 0 {
		return s.cfg.DefaultWinRate, s.cfg.DefaultOdds
	}

	winRate = float64(wins) / float64(len(recent))
	avgWin := winSum / float64(wins)
	avgLoss := lossSum / float64(losses)
	if avgLoss == 0 {
		return winRate, math.Inf(1)
	}
	return winRate, avgWin / avgLoss
}

// Kelly is the optimal bet fraction (p*b-(1-p))/b. Infinite odds reduce to p.
func Kelly(p, b float64) float64 {
	switch {
	case math.IsInf(b, 1):
		return p
	case b <= 0 || math.IsNaN(b):
		return 0
	}
	return (p*b - (1 - p)) / b
}

// RealizedVolatility measures the configured timeframe and falls back to the
// volatility target when it is unavailable or not positive.
func (s *Sizer) RealizedVolatility(history map[string][]core.Bar) float64 {
	bars := history[s.cfg.VolatilityTimeframe]
	if len(bars) == 0 {
		return s.cfg.VolatilityTarget
	}
	vol, ok := features.RealizedVolatility(core.Closes(bars), s.cfg.VolatilityPeriods)
	if !ok || !features.IsFinite(vol) || vol <= 0 {
		return s.cfg.VolatilityTarget
	}
	return vol
}
