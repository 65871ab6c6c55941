package core

import (
	"time"

	"github.com/shopspring/decimal"
)

// Position is an open exposure on one symbol. It only exists while Size > 0.
type Position struct {
	Symbol     string          `json:"symbol"`
	Side       PositionSide    `json:"side"`
	Size       decimal.Decimal `json:"size"`
	EntryPrice decimal.Decimal `json:"entryPrice"`
}

// CostBasis is the notional locked in the position at its entry price.
func (p Position) CostBasis() decimal.Decimal {
	return p.Size.Mul(p.EntryPrice)
}

// Trade is an immutable audit record of one fill leg.
type Trade struct {
	ID         string          `json:"id"`
	Timestamp  time.Time       `json:"timestamp"`
	Symbol     string          `json:"symbol"`
	Side       Side            `json:"side"`
	ExecPrice  decimal.Decimal `json:"execPrice"`
	Size       decimal.Decimal `json:"size"`
	PnL        decimal.Decimal `json:"pnl"`
	Commission decimal.Decimal `json:"commission"`
}

// RiskMetrics tracks the high-water-mark and drawdown of the wallet balance.
type RiskMetrics struct {
	HighWaterMark   decimal.Decimal `json:"highWaterMark"`
	CurrentDrawdown float64         `json:"currentDrawdown"`
}

// TradingState is the ledger. Values are handed around by copy; Clone gives
// an exclusive working copy. Bar slices in History are never written in
// place, so copies share them.
type TradingState struct {
	WalletBalance decimal.Decimal     `json:"walletBalance"`
	Positions     map[string]Position `json:"positions"`
	Trades        []Trade             `json:"trades"`
	TotalPnL      decimal.Decimal     `json:"totalPnl"`
	RiskMetrics   RiskMetrics         `json:"riskMetrics"`
	History       map[string][]Bar    `json:"-"`
	Timestamp     time.Time           `json:"timestamp"`
}

// NewTradingState creates an empty ledger funded with balance.
func NewTradingState(balance decimal.Decimal, now time.Time) TradingState {
	return TradingState{
		WalletBalance: balance,
		Positions:     make(map[string]Position),
		Trades:        make([]Trade, 0),
		TotalPnL:      decimal.Zero,
		RiskMetrics: RiskMetrics{
			HighWaterMark: balance,
		},
		History:   make(map[string][]Bar),
		Timestamp: now,
	}
}

// Clone returns a deep copy of the mutable parts of the ledger.
func (s TradingState) Clone() TradingState {
	out := s
	out.Positions = make(map[string]Position, len(s.Positions))
	for k, v := range s.Positions {
		out.Positions[k] = v
	}
	out.Trades = make([]Trade, len(s.Trades))
	copy(out.Trades, s.Trades)
	out.History = make(map[string][]Bar, len(s.History))
	for k, v := range s.History {
		out.History[k] = v
	}
	return out
}

// Position looks up the open position for symbol.
func (s TradingState) Position(symbol string) (Position, bool) {
	p, ok := s.Positions[symbol]
	return p, ok
}

// RecentTrades returns at most the last n trades.
func (s TradingState) RecentTrades(n int) []Trade {
	if n <= 0 || len(s.Trades) <= n {
		return s.Trades
	}
	return s.Trades[len(s.Trades)-n:]
}

// InRecovery reports whether the balance sits below the high-water-mark.
func (s TradingState) InRecovery() bool {
	return s.WalletBalance.LessThan(s.RiskMetrics.HighWaterMark)
}

// RefreshRiskMetrics raises the high-water-mark to the balance if needed and
// recomputes the drawdown from it.
func (s *TradingState) RefreshRiskMetrics() {
	hwm := decimal.Max(s.RiskMetrics.HighWaterMark, s.WalletBalance)
	s.RiskMetrics.HighWaterMark = hwm
	if !hwm.IsPositive() {
		s.RiskMetrics.CurrentDrawdown = 0
		return
	}
	dd := hwm.Sub(s.WalletBalance).Div(hwm).InexactFloat64()
	switch {
	case dd < 0:
		dd = 0
	case dd > 1:
		dd = 1
	}
	s.RiskMetrics.CurrentDrawdown = dd
}

// UnrealizedPnL marks the open position on symbol to price.
func (s TradingState) UnrealizedPnL(symbol string, price decimal.Decimal) decimal.Decimal {
	p, ok := s.Positions[symbol]
	if !ok {
		return decimal.Zero
	}
	value := p.Size.Mul(price)
	if p.Side == Long {
		return value.Sub(p.CostBasis())
	}
	return p.CostBasis().Sub(value)
}
