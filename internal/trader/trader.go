// Package trader drives the decision cycle: fuse a signal, size it, fill it
// against the ledger and publish the result.
package trader

import (
	"context"
	"time"

	"plasmatrader/internal/core"
	"plasmatrader/internal/execution"
	"plasmatrader/internal/fusion"
	"plasmatrader/internal/risk"
	"plasmatrader/internal/telemetry"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// SignalPublisher forwards every fused signal downstream.
type SignalPublisher interface {
	PublishSignal(ctx context.Context, sig core.PredictionSignal) error
}

// FillNotifier is told about every fill leg.
type FillNotifier interface {
	NotifyFill(ctx context.Context, trade core.Trade, balance string) error
}

// SignalRecorder labels signals with their realized outcome.
type SignalRecorder interface {
	AddSignal(sig core.PredictionSignal, price float64)
	Process(currentPrice float64, now time.Time)
}

// Broadcaster pushes dashboard reports.
type Broadcaster interface {
	BroadcastJSON(v any) error
}

// HistorySource reloads bar series per timeframe.
type HistorySource interface {
	LoadAll(ctx context.Context, symbol string, timeframes []string) (map[string][]core.Bar, error)
}

// Options are the optional collaborators; nil members are skipped.
type Options struct {
	Publisher      SignalPublisher
	Notifier       FillNotifier
	Recorder       SignalRecorder
	Broadcaster    Broadcaster
	History        HistorySource
	Timeframes     []string
	InitialBalance decimal.Decimal
	ReportInterval time.Duration
	HistoryRefresh time.Duration
}

// Skip explains why a cycle produced no order.
type Skip string

const (
	SkipWaiting      Skip = "waiting"
	SkipPositionOpen Skip = "position_open"
	SkipZeroSize     Skip = "zero_size"
)

// CycleResult is the outcome of one RunCycle.
type CycleResult struct {
	Signal core.PredictionSignal
	Order  *core.Order
	Fills  []core.Trade
	Skip   Skip
	State  core.TradingState
}

type Trader struct {
	symbol string
	store  *core.Store
	engine *fusion.Engine
	sizer  *risk.Sizer
	sim    *execution.Simulator
	opts   Options
	logger *zap.Logger
	now    func() time.Time
}

func New(symbol string, store *core.Store, engine *fusion.Engine, sizer *risk.Sizer, sim *execution.Simulator, opts Options, logger *zap.Logger) *Trader {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.ReportInterval <= 0 {
		opts.ReportInterval = time.Second
	}
	return &Trader{
		symbol: symbol,
		store:  store,
		engine: engine,
		sizer:  sizer,
		sim:    sim,
		opts:   opts,
		logger: logger.With(zap.String("symbol", symbol)),
		now:    time.Now,
	}
}

// RunCycle performs one decision cycle against market. Only execution
// failures are returned; downstream publishing errors are logged.
func (t *Trader) RunCycle(ctx context.Context, market core.MarketSnapshot) (CycleResult, error) {
	snap := t.store.Snapshot()
	sig := t.engine.Predict(ctx, t.symbol, snap.History)
	t.store.PublishSignal(sig)

	if t.opts.Publisher != nil {
		if err := t.opts.Publisher.PublishSignal(ctx, sig); err != nil {
			t.logger.Warn("signal publish failed", zap.Error(err))
		}
	}
	if t.opts.Recorder != nil {
		t.opts.Recorder.AddSignal(sig, market.Price)
	}

	res := CycleResult{Signal: sig, State: snap}

	side, ok := sig.Decision.OrderSide()
	if !ok {
		res.Skip = SkipWaiting
		return res, nil
	}
	if pos, open := snap.Position(t.symbol); open && pos.Side.Matches(side) {
		res.Skip = SkipPositionOpen
		t.logger.Debug("position already open", zap.String("side", string(pos.Side)))
		return res, nil
	}

	size := t.sizer.PositionSize(snap, sig, market.Price)
	if size <= 0 {
		res.Skip = SkipZeroSize
		return res, nil
	}

	order := core.NewMarketOrder(t.now().UTC(), t.symbol, side, decimal.NewFromFloat(size))
	var before int
	next, err := t.store.Apply(func(s core.TradingState) (core.TradingState, error) {
		before = len(s.Trades)
		return t.sim.Execute(ctx, order, s, market)
	})
	if err != nil {
		return res, err
	}

	res.Order = &order
	res.State = next
	res.Fills = next.Trades[before:]
	if t.opts.Notifier != nil {
		balance := next.WalletBalance.StringFixed(2)
		for _, tr := range res.Fills {
			if err := t.opts.Notifier.NotifyFill(ctx, tr, balance); err != nil {
				t.logger.Warn("fill notification failed", zap.Error(err))
			}
		}
	}
	return res, nil
}

// RefreshHistory reloads every timeframe into the store. Timeframes that
// fail to load keep their previous series.
func (t *Trader) RefreshHistory(ctx context.Context) error {
	if t.opts.History == nil {
		return nil
	}
	history, err := t.opts.History.LoadAll(ctx, t.symbol, t.opts.Timeframes)
	for tf, bars := range history {
		t.store.SetHistory(tf, bars)
	}
	return err
}

// Run consumes market snapshots and runs a cycle every interval until ctx is
// done or the feed closes. Cycles wait for the first snapshot.
func (t *Trader) Run(ctx context.Context, snapshots <-chan core.MarketSnapshot, interval time.Duration) error {
	cycle := time.NewTicker(interval)
	defer cycle.Stop()
	report := time.NewTicker(t.opts.ReportInterval)
	defer report.Stop()

	var refresh <-chan time.Time
	if t.opts.History != nil && t.opts.HistoryRefresh > 0 {
		r := time.NewTicker(t.opts.HistoryRefresh)
		defer r.Stop()
		refresh = r.C
	}

	var market core.MarketSnapshot
	var haveMarket bool

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case snap, ok := <-snapshots:
			if !ok {
				t.logger.Info("market feed closed")
				return nil
			}
			market, haveMarket = snap, true
			if t.opts.Recorder != nil {
				t.opts.Recorder.Process(snap.Price, t.now())
			}

		case <-cycle.C:
			if !haveMarket {
				continue
			}
			res, err := t.RunCycle(ctx, market)
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				t.logger.Error("cycle failed", zap.Error(err))
				continue
			}
			if res.Order != nil {
				t.logger.Info("cycle executed",
					zap.String("side", string(res.Order.Side)),
					zap.String("size", res.Order.Size.String()),
					zap.Int("fills", len(res.Fills)),
				)
			}

		case <-report.C:
			if !haveMarket || t.opts.Broadcaster == nil {
				continue
			}
			r := telemetry.Collect(t.store.View(), market, t.opts.InitialBalance)
			if err := t.opts.Broadcaster.BroadcastJSON(r); err != nil {
				t.logger.Warn("report broadcast failed", zap.Error(err))
			}

		case <-refresh:
			if err := t.RefreshHistory(ctx); err != nil {
				t.logger.Warn("history refresh incomplete", zap.Error(err))
			}
		}
	}
}
