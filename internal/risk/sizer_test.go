package risk

import (
	"math"
	"testing"
	"time"

	"plasmatrader/internal/core"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

func stateWith(balance, hwm float64, trades []core.Trade) core.TradingState {
	s := core.NewTradingState(decimal.NewFromFloat(hwm), testNow)
	s.WalletBalance = decimal.NewFromFloat(balance)
	s.Trades = trades
	s.RefreshRiskMetrics()
	return s
}

// edgeTrades yields 30 trades: 20 wins of +20, 10 losses of -10 (p=2/3, b=2, kelly=0.5).
func edgeTrades() []core.Trade {
	trades := make([]core.Trade, 0, 30)
	for i := 0; i < 30; i++ {
		pnl := decimal.NewFromInt(20)
		if i%3 == 2 {
			pnl = decimal.NewFromInt(-10)
		}
		trades = append(trades, core.Trade{Symbol: "BTCUSDT", PnL: pnl})
	}
	return trades
}

var longSignal = core.PredictionSignal{Symbol: "BTCUSDT", Decision: core.DecisionLongEntry, Confidence: 0.9}

func TestEvaluate_HardStop(t *testing.T) {
	s := NewSizer(DefaultConfig(), nil)
	state := stateWith(9200, 10000, edgeTrades())
	require.InDelta(t, 0.08, state.RiskMetrics.CurrentDrawdown, 1e-12)

	d := s.Evaluate(state, longSignal, 50000)
	assert.Equal(t, ReasonHardStop, d.Reason)
	assert.Zero(t, d.Size)
	assert.Zero(t, s.PositionSize(state, longSignal, 50000))
}

func TestEvaluate_TieredDrawdown(t *testing.T) {
	s := NewSizer(DefaultConfig(), nil)
	state := stateWith(9400, 10000, edgeTrades())

	d := s.Evaluate(state, longSignal, 50000)

	assert.InDelta(t, 0.75, d.DrawdownFactor, 1e-12)
	assert.InDelta(t, 0.005, d.MaxRisk, 1e-12) // recovery
	assert.InDelta(t, 2.0/3.0, d.WinRate, 1e-12)
	assert.InDelta(t, 2.0, d.Odds, 1e-12)
	assert.InDelta(t, 0.5, d.Kelly, 1e-12)
	assert.InDelta(t, 0.005, d.TargetRisk, 1e-12)
	assert.Equal(t, 1.0, d.VolatilityFactor)
	assert.InDelta(t, 0.00375, d.RiskPct, 1e-12)
	assert.InDelta(t, 9400*0.00375, d.SizeUSD, 1e-9)
	assert.InDelta(t, 9400*0.00375/50000, d.Size, 1e-12)
	assert.Empty(t, d.Reason)
}

func TestDrawdownFactor(t *testing.T) {
	s := NewSizer(DefaultConfig(), nil)
	cases := []struct {
		dd     float64
		factor float64
		stop   bool
	}{
		{0, 1, false},
		{0.049, 1, false},
		{0.05, 0.75, false},
		{0.06, 0.75, false},
		{0.065, 0.5, false},
		{0.075, 0.25, false},
		{0.08, 0, true},
		{0.5, 0, true},
	}
	for _, c := range cases {
		f, stop := s.DrawdownFactor(c.dd)
		assert.InDelta(t, c.factor, f, 1e-12, "dd=%v", c.dd)
		assert.Equal(t, c.stop, stop, "dd=%v", c.dd)
	}
}

func TestEvaluate_DefaultStatsHaveNoEdge(t *testing.T) {
	s := NewSizer(DefaultConfig(), nil)
	state := stateWith(10000, 10000, edgeTrades()[:19])

	d := s.Evaluate(state, longSignal, 50000)
	assert.Equal(t, 0.5, d.WinRate)
	assert.Equal(t, 1.0, d.Odds)
	assert.Zero(t, d.Kelly)
	assert.Zero(t, d.Size)
	assert.Equal(t, ReasonNoEdge, d.Reason)
}

func TestEvaluate_ConfigurableDefaults(t *testing.T) {
	cfg := DefaultConfig()
	cfg.DefaultWinRate = 0.6
	cfg.DefaultOdds = 1.5
	s := NewSizer(cfg, nil)
	state := stateWith(10000, 10000, nil)

	d := s.Evaluate(state, longSignal, 100)
	assert.InDelta(t, (0.6*1.5-0.4)/1.5, d.Kelly, 1e-12)
	assert.InDelta(t, 0.015, d.TargetRisk, 1e-12)
	assert.InDelta(t, 150.0/100, d.Size, 1e-9)
}

func TestWinRateAndOdds(t *testing.T) {
	s := NewSizer(DefaultConfig(), nil)

	allWins := make([]core.Trade, 25)
	for i := range allWins {
		allWins[i].PnL = decimal.NewFromInt(5)
	}
	p, b := s.WinRateAndOdds(stateWith(10000, 10000, allWins))
	assert.Equal(t, 0.5, p)
	assert.Equal(t, 1.0, b)

	// zero-pnl trades are losses of size 0, so odds are unbounded
	flat := make([]core.Trade, 25)
	for i := range flat {
		if i%2 == 0 {
			flat[i].PnL = decimal.NewFromInt(5)
		}
	}
	p, b = s.WinRateAndOdds(stateWith(10000, 10000, flat))
	assert.InDelta(t, 13.0/25.0, p, 1e-12)
	assert.True(t, math.IsInf(b, 1))

	// only the last 50 trades count
	history := make([]core.Trade, 0, 80)
	for i := 0; i < 30; i++ {
		history = append(history, core.Trade{PnL: decimal.NewFromInt(-100)})
	}
	history = append(history, edgeTrades()...)
	history = append(history, edgeTrades()[:20]...)
	p, b = s.WinRateAndOdds(stateWith(10000, 10000, history))
	assert.InDelta(t, 34.0/50.0, p, 1e-12)
	assert.InDelta(t, 2.0, b, 1e-12)
}

func TestKelly(t *testing.T) {
	assert.InDelta(t, 0.5, Kelly(2.0/3.0, 2), 1e-12)
	assert.Zero(t, Kelly(0.5, 1))
	assert.Zero(t, Kelly(0.9, 0))
	assert.Equal(t, 0.7, Kelly(0.7, math.Inf(1)))
	assert.Less(t, Kelly(0.2, 1), 0.0)
}

// Losses of exactly zero leave the average loss at 0, so the odds are
// unbounded and Kelly reduces to the win rate; the size hits the risk cap.
func TestEvaluate_ZeroPnLLossesSizeAtRiskCap(t *testing.T) {
	s := NewSizer(DefaultConfig(), nil)
	trades := make([]core.Trade, 25)
	for i := range trades {
		if i%2 == 0 {
			trades[i].PnL = decimal.NewFromInt(5)
		}
	}

	d := s.Evaluate(stateWith(10000, 10000, trades), longSignal, 100)
	assert.True(t, math.IsInf(d.Odds, 1))
	assert.InDelta(t, 13.0/25.0, d.Kelly, 1e-12)
	assert.InDelta(t, 0.015, d.TargetRisk, 1e-12)
	assert.InDelta(t, 150.0, d.SizeUSD, 1e-9)
	assert.InDelta(t, 1.5, d.Size, 1e-12)
	assert.Empty(t, d.Reason)
}

func TestEvaluate_VolatilityScaling(t *testing.T) {
	s := NewSizer(DefaultConfig(), nil)
	state := stateWith(10000, 10000, edgeTrades())

	bars := make([]core.Bar, 40)
	price := 100.0
	for i := range bars {
		if i%2 == 0 {
			price *= 1.05
		} else {
			price *= 0.95
		}
		bars[i] = core.Bar{Close: price}
	}
	state.History = map[string][]core.Bar{"1h": bars}

	d := s.Evaluate(state, longSignal, 100)
	require.Greater(t, d.Volatility, 0.02)
	assert.InDelta(t, 0.02/d.Volatility, d.VolatilityFactor, 1e-12)
	assert.InDelta(t, 0.015*d.VolatilityFactor, d.RiskPct, 1e-12)

	// too little 1h history falls back to the target
	state.History = map[string][]core.Bar{"1h": bars[:10]}
	d = s.Evaluate(state, longSignal, 100)
	assert.Equal(t, 0.02, d.Volatility)
	assert.Equal(t, 1.0, d.VolatilityFactor)
}

func TestEvaluate_OrderBounds(t *testing.T) {
	s := NewSizer(DefaultConfig(), nil)

	// 1.5% of 100 is below the minimum order
	d := s.Evaluate(stateWith(100, 100, edgeTrades()), longSignal, 10)
	assert.InDelta(t, 10, d.SizeUSD, 1e-12)
	assert.InDelta(t, 1, d.Size, 1e-12)

	// minimum order exceeds the balance
	d = s.Evaluate(stateWith(5, 5, edgeTrades()), longSignal, 10)
	assert.InDelta(t, 5, d.SizeUSD, 1e-12)

	d = s.Evaluate(stateWith(1_000_000, 1_000_000, edgeTrades()), longSignal, 50000)
	assert.InDelta(t, 1000, d.SizeUSD, 1e-12)
	assert.InDelta(t, 0.02, d.Size, 1e-12)
}

func TestEvaluate_InvalidInputs(t *testing.T) {
	s := NewSizer(DefaultConfig(), nil)

	d := s.Evaluate(stateWith(10000, 10000, edgeTrades()), longSignal, 0)
	assert.Equal(t, ReasonInvalidInput, d.Reason)
	assert.Zero(t, d.Size)

	d = s.Evaluate(stateWith(10000, 10000, edgeTrades()), longSignal, math.NaN())
	assert.Zero(t, d.Size)

	zero := core.NewTradingState(decimal.Zero, testNow)
	zero.Trades = edgeTrades()
	d = s.Evaluate(zero, longSignal, 100)
	assert.Equal(t, ReasonInvalidInput, d.Reason)
	assert.Zero(t, d.Size)
}

func TestConfig_Validate(t *testing.T) {
	require.NoError(t, DefaultConfig().Validate())

	bad := DefaultConfig()
	bad.MinOrderUSD = 2000
	assert.ErrorIs(t, bad.Validate(), ErrInvalidConfig)

	bad = DefaultConfig()
	bad.DrawdownLevel1 = 0.1
	assert.ErrorIs(t, bad.Validate(), ErrInvalidConfig)
}
