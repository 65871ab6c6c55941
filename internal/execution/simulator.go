// Package execution simulates market order fills against the ledger:
// latency, top-of-book slippage, taker commission and per-symbol position
// netting.
package execution

import (
	"context"
	"fmt"
	"time"

	"plasmatrader/internal/core"
	"plasmatrader/internal/features"
	"plasmatrader/internal/telemetry"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type Simulator struct {
	cfg      Config
	fee      decimal.Decimal
	slipRate decimal.Decimal
	latency  Latency
	logger   *zap.Logger
	now      func() time.Time
}

// NewSimulator builds a simulator. A nil latency fills immediately.
func NewSimulator(cfg Config, latency Latency, logger *zap.Logger) *Simulator {
	if latency == nil {
		latency = NoLatency{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Simulator{
		cfg:      cfg,
		fee:      decimal.NewFromFloat(cfg.TakerFee),
		slipRate: decimal.NewFromFloat(cfg.SlippageFactor),
		latency:  latency,
		logger:   logger,
		now:      time.Now,
	}
}

// WithClock overrides the trade and ledger timestamp source.
func (s *Simulator) WithClock(now func() time.Time) *Simulator {
	s.now = now
	return s
}

// Execute fills order against market and returns the resulting ledger. The
// input state is never modified; on error it is returned unchanged.
func (s *Simulator) Execute(ctx context.Context, order core.Order, state core.TradingState, market core.MarketSnapshot) (core.TradingState, error) {
	if err := order.Validate(); err != nil {
		telemetry.RejectedOrders.Inc()
		s.logger.Warn("order rejected", zap.String("order_id", order.ID), zap.Error(err))
		return state, err
	}

	if err := s.latency.Wait(ctx); err != nil {
		return state, err
	}

	next := state.Clone()
	if err := s.fill(&next, order, market); err != nil {
		telemetry.RejectedOrders.Inc()
		s.logger.Warn("order not filled", zap.String("order_id", order.ID), zap.Error(err))
		return state, err
	}

	balance := next.WalletBalance.InexactFloat64()
	telemetry.WalletBalance.Set(balance)
	telemetry.Drawdown.Set(next.RiskMetrics.CurrentDrawdown)
	return next, nil
}

// fill applies one leg. A close larger than the open position recurses once
// for the residual, which always opens a fresh position.
func (s *Simulator) fill(state *core.TradingState, order core.Order, market core.MarketSnapshot) error {
	price, err := s.ExecutionPrice(order.Side, order.Size, market)
	if err != nil {
		return err
	}

	size := order.Size
	pnl := decimal.Zero
	var residual decimal.Decimal

	pos, open := state.Positions[order.Symbol]
	switch {
	case !open:
		state.WalletBalance = state.WalletBalance.Sub(size.Mul(price)).Sub(s.commission(size, price))
		state.Positions[order.Symbol] = core.Position{
			Symbol:     order.Symbol,
			Side:       core.PositionSideFor(order.Side),
			Size:       size,
			EntryPrice: price,
		}

	case pos.Side.Matches(order.Side):
		total := pos.Size.Add(size)
		pos.EntryPrice = pos.CostBasis().Add(size.Mul(price)).Div(total)
		pos.Size = total
		state.Positions[order.Symbol] = pos
		state.WalletBalance = state.WalletBalance.Sub(size.Mul(price)).Sub(s.commission(size, price))

	default:
		if size.GreaterThanOrEqual(pos.Size) {
			residual = size.Sub(pos.Size)
			size = pos.Size
			delete(state.Positions, order.Symbol)
		} else {
			reduced := pos
			reduced.Size = pos.Size.Sub(size)
			state.Positions[order.Symbol] = reduced
		}
		pnl = RealizedPnL(pos.Side, pos.EntryPrice, price, size)
		basis := size.Mul(pos.EntryPrice)
		state.WalletBalance = state.WalletBalance.Add(basis).Add(pnl).Sub(s.commission(size, price))
		state.TotalPnL = state.TotalPnL.Add(pnl)
	}

	now := s.now().UTC()
	trade := core.Trade{
		ID:         uuid.NewString(),
		Timestamp:  now,
		Symbol:     order.Symbol,
		Side:       order.Side,
		ExecPrice:  price,
		Size:       size,
		PnL:        pnl,
		Commission: s.commission(size, price),
	}
	state.Trades = append(state.Trades, trade)
	state.Timestamp = now
	state.RefreshRiskMetrics()

	telemetry.Fills.WithLabelValues(order.Symbol, string(order.Side)).Inc()
	s.logger.Info("order filled",
		zap.String("order_id", order.ID),
		zap.String("symbol", order.Symbol),
		zap.String("side", string(order.Side)),
		zap.String("size", size.String()),
		zap.String("price", price.StringFixed(2)),
		zap.String("pnl", pnl.StringFixed(2)),
		zap.String("commission", trade.Commission.StringFixed(4)),
		zap.String("balance", state.WalletBalance.StringFixed(2)),
	)

	if residual.IsPositive() {
		rest := order
		rest.Size = residual
		return s.fill(state, rest, market)
	}
	return nil
}

// ExecutionPrice is the quote on the side the order consumes, moved against
// the order by the slippage. The last price stands in for a missing or
// non-finite quote.
func (s *Simulator) ExecutionPrice(side core.Side, size decimal.Decimal, market core.MarketSnapshot) (decimal.Decimal, error) {
	quote := market.Ask
	if side == core.Sell {
		quote = market.Bid
	}
	if !positive(quote) {
		quote = market.Price
	}
	if !positive(quote) {
		return decimal.Zero, fmt.Errorf("%w: %s %s", core.ErrNoQuote, market.Symbol, side)
	}

	q := decimal.NewFromFloat(quote)
	slip := s.Slippage(side, size, market)
	price := q.Add(slip)
	if side == core.Sell {
		price = q.Sub(slip)
	}
	if !price.IsPositive() {
		return decimal.Zero, fmt.Errorf("%w: %s slippage exceeds quote", core.ErrNoQuote, market.Symbol)
	}
	return price, nil
}

// Slippage is spread * factor * min(size/top_of_book, 1). It is zero for a
// crossed, missing or non-finite spread and for an empty or non-finite
// book side.
func (s *Simulator) Slippage(side core.Side, size decimal.Decimal, market core.MarketSnapshot) decimal.Decimal {
	if !positive(market.Bid) || !positive(market.Ask) {
		return decimal.Zero
	}
	spread := decimal.NewFromFloat(market.Ask).Sub(decimal.NewFromFloat(market.Bid))
	top := market.TopOfBook(side)
	if !spread.IsPositive() || !positive(top) {
		return decimal.Zero
	}
	ratio := decimal.Min(size.Div(decimal.NewFromFloat(top)), decimal.NewFromInt(1))
	return spread.Mul(s.slipRate).Mul(ratio)
}

// positive rejects NaN and infinities, which decimal cannot represent.
func positive(v float64) bool {
	return v > 0 && features.IsFinite(v)
}

func (s *Simulator) commission(size, price decimal.Decimal) decimal.Decimal {
	return size.Mul(price).Mul(s.fee)
}

// RealizedPnL is the value change of closing size units of a position
// entered at entry and exited at exit.
func RealizedPnL(side core.PositionSide, entry, exit, size decimal.Decimal) decimal.Decimal {
	diff := exit.Sub(entry)
	if side == core.Short {
		diff = diff.Neg()
	}
	return diff.Mul(size)
}
