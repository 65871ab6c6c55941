package execution

import (
	"context"
	"math"
	"testing"
	"time"

	"plasmatrader/internal/core"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

func newTestSimulator() *Simulator {
	return NewSimulator(DefaultConfig(), NoLatency{}, nil).WithClock(func() time.Time { return testNow })
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func assertDec(t *testing.T, want string, got decimal.Decimal) {
	t.Helper()
	assert.True(t, dec(want).Equal(got), "want %s, got %s", want, got.String())
}

// flatMarket quotes bid/ask with no depth, so fills carry no slippage.
func flatMarket(bid, ask float64) core.MarketSnapshot {
	return core.MarketSnapshot{Symbol: "BTCUSDT", Price: (bid + ask) / 2, Bid: bid, Ask: ask}
}

func order(side core.Side, size string) core.Order {
	return core.NewMarketOrder(testNow, "BTCUSDT", side, dec(size))
}

func execute(t *testing.T, sim *Simulator, o core.Order, state core.TradingState, m core.MarketSnapshot) core.TradingState {
	t.Helper()
	next, err := sim.Execute(context.Background(), o, state, m)
	require.NoError(t, err)
	return next
}

func TestExecute_OpenLongCost(t *testing.T) {
	sim := newTestSimulator()
	start := core.NewTradingState(dec("10000"), testNow)

	next := execute(t, sim, order(core.Buy, "2"), start, flatMarket(99.9, 100))

	// 2 * 100 * 1.0004
	assertDec(t, "9799.92", next.WalletBalance)
	pos, ok := next.Position("BTCUSDT")
	require.True(t, ok)
	assert.Equal(t, core.Long, pos.Side)
	assertDec(t, "2", pos.Size)
	assertDec(t, "100", pos.EntryPrice)
	require.Len(t, next.Trades, 1)
	assertDec(t, "0.08", next.Trades[0].Commission)
	assert.True(t, next.Trades[0].PnL.IsZero())
	assert.Equal(t, testNow, next.Timestamp)

	// caller's value untouched
	assertDec(t, "10000", start.WalletBalance)
	assert.Empty(t, start.Positions)
	assert.Empty(t, start.Trades)
}

func TestExecute_FullCloseRealizesPnL(t *testing.T) {
	sim := newTestSimulator()
	state := execute(t, sim, order(core.Buy, "2"), core.NewTradingState(dec("10000"), testNow), flatMarket(99.9, 100))

	state = execute(t, sim, order(core.Sell, "2"), state, flatMarket(110, 110.1))

	assert.Empty(t, state.Positions)
	require.Len(t, state.Trades, 2)
	closing := state.Trades[1]
	assertDec(t, "20", closing.PnL)
	assertDec(t, "0.088", closing.Commission)
	assertDec(t, "20", state.TotalPnL)
	// 9799.92 + 200 basis + 20 pnl - 0.088
	assertDec(t, "10019.832", state.WalletBalance)
	assertDec(t, "10019.832", state.RiskMetrics.HighWaterMark)
	assert.Zero(t, state.RiskMetrics.CurrentDrawdown)
}

func TestExecute_RoundTripCostsTwoCommissions(t *testing.T) {
	sim := newTestSimulator()
	start := core.NewTradingState(dec("10000"), testNow)
	m := flatMarket(100, 100)

	state := execute(t, sim, order(core.Buy, "1.5"), start, m)
	state = execute(t, sim, order(core.Sell, "1.5"), state, m)

	commission := dec("1.5").Mul(dec("100")).Mul(dec("0.0004"))
	assert.True(t, state.WalletBalance.Equal(start.WalletBalance.Sub(commission.Mul(decimal.NewFromInt(2)))))
	assert.True(t, state.TotalPnL.IsZero())
	assert.Empty(t, state.Positions)
	assert.True(t, state.RiskMetrics.CurrentDrawdown > 0)
}

func TestExecute_OversizedSellFlipsToShort(t *testing.T) {
	sim := newTestSimulator()
	state := execute(t, sim, order(core.Buy, "1"), core.NewTradingState(dec("10000"), testNow), flatMarket(100, 100))
	before := state.WalletBalance

	state = execute(t, sim, order(core.Sell, "3"), state, flatMarket(105, 105.5))

	pos, ok := state.Position("BTCUSDT")
	require.True(t, ok)
	assert.Equal(t, core.Short, pos.Side)
	assertDec(t, "2", pos.Size)
	assertDec(t, "105", pos.EntryPrice)

	require.Len(t, state.Trades, 3)
	closeLeg, openLeg := state.Trades[1], state.Trades[2]
	assertDec(t, "1", closeLeg.Size)
	assertDec(t, "5", closeLeg.PnL)
	assertDec(t, "0.042", closeLeg.Commission)
	assertDec(t, "2", openLeg.Size)
	assert.True(t, openLeg.PnL.IsZero())
	assertDec(t, "0.084", openLeg.Commission)
	assert.NotEqual(t, closeLeg.ID, openLeg.ID)

	// close leg: +100 basis +5 pnl -0.042; open leg: -210 -0.084
	legs := dec("100").Add(dec("5")).Sub(dec("0.042")).Sub(dec("210")).Sub(dec("0.084"))
	assert.True(t, state.WalletBalance.Equal(before.Add(legs)), "balance %s", state.WalletBalance)
}

func TestExecute_PartialClose(t *testing.T) {
	sim := newTestSimulator()
	state := execute(t, sim, order(core.Buy, "2"), core.NewTradingState(dec("10000"), testNow), flatMarket(100, 100))
	before := state.WalletBalance

	state = execute(t, sim, order(core.Sell, "0.5"), state, flatMarket(120, 120))

	pos, ok := state.Position("BTCUSDT")
	require.True(t, ok)
	assert.Equal(t, core.Long, pos.Side)
	assertDec(t, "1.5", pos.Size)
	assertDec(t, "100", pos.EntryPrice)
	assertDec(t, "10", state.Trades[1].PnL)
	assertDec(t, "0.024", state.Trades[1].Commission)
	// 50 basis + 10 pnl - 0.024
	assert.True(t, state.WalletBalance.Equal(before.Add(dec("59.976"))))
}

func TestExecute_SameSideAveragesEntry(t *testing.T) {
	sim := newTestSimulator()
	state := execute(t, sim, order(core.Buy, "1"), core.NewTradingState(dec("10000"), testNow), flatMarket(100, 100))
	state = execute(t, sim, order(core.Buy, "1"), state, flatMarket(110, 110))

	pos, _ := state.Position("BTCUSDT")
	assertDec(t, "2", pos.Size)
	assertDec(t, "105", pos.EntryPrice)
	assert.Len(t, state.Positions, 1)
}

func TestExecute_ShortProfitsOnDrop(t *testing.T) {
	sim := newTestSimulator()
	state := execute(t, sim, order(core.Sell, "1"), core.NewTradingState(dec("10000"), testNow), flatMarket(100, 100.5))
	pos, _ := state.Position("BTCUSDT")
	assert.Equal(t, core.Short, pos.Side)
	assertDec(t, "100", pos.EntryPrice)

	state = execute(t, sim, order(core.Buy, "1"), state, flatMarket(89.5, 90))
	assertDec(t, "10", state.Trades[1].PnL)
	assert.Empty(t, state.Positions)
}

func TestSlippage(t *testing.T) {
	sim := newTestSimulator()
	m := core.MarketSnapshot{
		Symbol: "BTCUSDT", Price: 100.5, Bid: 100, Ask: 101,
		Bids: []core.OrderBookLevel{{Price: 100, Size: 4}},
		Asks: []core.OrderBookLevel{{Price: 101, Size: 2}},
	}

	assertDec(t, "0.05", sim.Slippage(core.Buy, dec("1"), m))
	assertDec(t, "0.025", sim.Slippage(core.Sell, dec("1"), m))
	assertDec(t, "0.1", sim.Slippage(core.Sell, dec("8"), m))

	p, err := sim.ExecutionPrice(core.Buy, dec("1"), m)
	require.NoError(t, err)
	assertDec(t, "101.05", p)
	p, err = sim.ExecutionPrice(core.Sell, dec("8"), m)
	require.NoError(t, err)
	assertDec(t, "99.9", p)

	crossed := m
	crossed.Bid, crossed.Ask = 101, 101
	assert.True(t, sim.Slippage(core.Buy, dec("1"), crossed).IsZero())

	empty := m
	empty.Asks = nil
	assert.True(t, sim.Slippage(core.Buy, dec("1"), empty).IsZero())
}

func TestExecutionPrice_Quotes(t *testing.T) {
	sim := newTestSimulator()

	p, err := sim.ExecutionPrice(core.Buy, dec("1"), core.MarketSnapshot{Symbol: "BTCUSDT", Price: 100})
	require.NoError(t, err)
	assertDec(t, "100", p)

	_, err = sim.ExecutionPrice(core.Sell, dec("1"), core.MarketSnapshot{Symbol: "BTCUSDT"})
	assert.ErrorIs(t, err, core.ErrNoQuote)
}

func TestExecute_NonFiniteMarketData(t *testing.T) {
	nan, inf := math.NaN(), math.Inf(1)
	depth := func(bidSize, askSize float64) core.MarketSnapshot {
		m := flatMarket(99, 101)
		m.Bids = []core.OrderBookLevel{{Price: 99, Size: bidSize}}
		m.Asks = []core.OrderBookLevel{{Price: 101, Size: askSize}}
		return m
	}

	tests := []struct {
		name    string
		market  core.MarketSnapshot
		side    core.Side
		price   string
		noQuote bool
	}{
		{name: "infinite ask falls back to last price", market: core.MarketSnapshot{Symbol: "BTCUSDT", Price: 100, Bid: 99, Ask: inf}, side: core.Buy, price: "100"},
		{name: "nan bid falls back to last price", market: core.MarketSnapshot{Symbol: "BTCUSDT", Price: 100, Bid: nan, Ask: 101}, side: core.Sell, price: "100"},
		{name: "nan top of book gives no slippage", market: depth(1, nan), side: core.Buy, price: "101"},
		{name: "infinite top of book gives no slippage", market: depth(inf, 1), side: core.Sell, price: "99"},
		{name: "nan price without quotes", market: core.MarketSnapshot{Symbol: "BTCUSDT", Price: nan}, side: core.Buy, noQuote: true},
		{name: "all quotes infinite", market: core.MarketSnapshot{Symbol: "BTCUSDT", Price: -inf, Bid: inf, Ask: inf}, side: core.Sell, noQuote: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sim := newTestSimulator()
			state := core.NewTradingState(dec("10000"), testNow)

			var next core.TradingState
			var err error
			require.NotPanics(t, func() {
				next, err = sim.Execute(context.Background(), order(tt.side, "1"), state, tt.market)
			})
			if tt.noQuote {
				assert.ErrorIs(t, err, core.ErrNoQuote)
				assertDec(t, "10000", next.WalletBalance)
				assert.Empty(t, next.Trades)
				return
			}
			require.NoError(t, err)
			require.Len(t, next.Trades, 1)
			assertDec(t, tt.price, next.Trades[0].ExecPrice)
		})
	}
}

func TestExecute_RejectsInvalidOrders(t *testing.T) {
	sim := newTestSimulator()
	start := core.NewTradingState(dec("10000"), testNow)

	for _, size := range []string{"0", "-1"} {
		next, err := sim.Execute(context.Background(), order(core.Buy, size), start, flatMarket(100, 100))
		assert.ErrorIs(t, err, core.ErrInvalidOrder)
		assert.True(t, next.WalletBalance.Equal(start.WalletBalance))
		assert.Empty(t, next.Trades)
	}

	bad := order(core.Buy, "1")
	bad.Side = "HOLD"
	_, err := sim.Execute(context.Background(), bad, start, flatMarket(100, 100))
	assert.ErrorIs(t, err, core.ErrInvalidOrder)

	_, err = sim.Execute(context.Background(), order(core.Buy, "1"), start, core.MarketSnapshot{Symbol: "BTCUSDT"})
	assert.ErrorIs(t, err, core.ErrNoQuote)
}

func TestExecute_CancelledDuringLatency(t *testing.T) {
	sim := NewSimulator(DefaultConfig(), RandomLatency{Min: time.Second, Max: 2 * time.Second}, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	start := core.NewTradingState(dec("10000"), testNow)
	next, err := sim.Execute(ctx, order(core.Buy, "1"), start, flatMarket(100, 100))
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, next.Positions)
}

// Balance equals initial + realized pnl - commissions - cost basis still
// locked in open positions, after every fill of a mixed sequence.
func TestExecute_ConservationAndRiskInvariants(t *testing.T) {
	sim := newTestSimulator()
	initial := dec("10000")
	state := core.NewTradingState(initial, testNow)

	steps := []struct {
		side  core.Side
		size  string
		price float64
	}{
		{core.Buy, "1", 100},
		{core.Buy, "0.5", 96},
		{core.Sell, "0.7", 90},
		{core.Sell, "2", 85},
		{core.Sell, "0.3", 88},
		{core.Buy, "1", 95},
		{core.Buy, "1.3", 80},
		{core.Sell, "0.25", 120},
	}

	prevHWM := state.RiskMetrics.HighWaterMark
	for i, st := range steps {
		state = execute(t, sim, order(st.side, st.size), state, flatMarket(st.price, st.price))

		var pnl, commission, locked decimal.Decimal
		for _, tr := range state.Trades {
			pnl = pnl.Add(tr.PnL)
			commission = commission.Add(tr.Commission)
		}
		for _, p := range state.Positions {
			require.True(t, p.Size.IsPositive(), "step %d", i)
			locked = locked.Add(p.CostBasis())
		}
		want := initial.Add(pnl).Sub(commission).Sub(locked)
		assert.True(t, want.Sub(state.WalletBalance).Abs().LessThan(dec("0.000000001")),
			"step %d: balance %s, recomputed %s", i, state.WalletBalance, want)
		assert.True(t, pnl.Equal(state.TotalPnL), "step %d", i)

		assert.True(t, state.RiskMetrics.HighWaterMark.GreaterThanOrEqual(prevHWM), "step %d", i)
		prevHWM = state.RiskMetrics.HighWaterMark
		assert.GreaterOrEqual(t, state.RiskMetrics.CurrentDrawdown, 0.0)
		assert.LessOrEqual(t, state.RiskMetrics.CurrentDrawdown, 1.0)
		assert.LessOrEqual(t, len(state.Positions), 1)
	}
}

func TestRandomLatency_Bounds(t *testing.T) {
	l := RandomLatency{Min: 50 * time.Millisecond, Max: 200 * time.Millisecond}
	for i := 0; i < 100; i++ {
		d := l.draw()
		assert.GreaterOrEqual(t, d, l.Min)
		assert.LessOrEqual(t, d, l.Max)
	}
	assert.Equal(t, 10*time.Millisecond, RandomLatency{Min: 10 * time.Millisecond}.draw())
	assert.NoError(t, NoLatency{}.Wait(context.Background()))
}

func TestConfig_Validate(t *testing.T) {
	require.NoError(t, DefaultConfig().Validate())
	bad := DefaultConfig()
	bad.LatencyMin = time.Second
	assert.ErrorIs(t, bad.Validate(), ErrInvalidConfig)
}
