package adapter

import (
	"strings"
	"time"

	"plasmatrader/internal/core"
	"plasmatrader/internal/features"
)

// tickerFields is the minimum a snapshot needs before it can be emitted.
type tickerFields struct {
	Price float64
	Bid   float64
	Ask   float64
	At    time.Time
}

// PartialSnapshot accumulates the independent stream events of one symbol.
// Depth and trade volume are optional; the ticker is required.
type PartialSnapshot struct {
	Symbol      string
	ticker      *tickerFields
	Bids        []core.OrderBookLevel
	Asks        []core.OrderBookLevel
	TradeVolume float64
}

func NewPartialSnapshot(symbol string) *PartialSnapshot {
	return &PartialSnapshot{Symbol: strings.ToUpper(symbol)}
}

func (p *PartialSnapshot) ApplyTicker(price, bid, ask float64, at time.Time) {
	p.ticker = &tickerFields{Price: price, Bid: bid, Ask: ask, At: at}
}

func (p *PartialSnapshot) ApplyDepth(bids, asks []core.OrderBookLevel) {
	p.Bids = bids
	p.Asks = asks
}

func (p *PartialSnapshot) ApplyTrade(qty float64) {
	p.TradeVolume = qty
}

// Ready reports whether the ticker fields have arrived.
func (p *PartialSnapshot) Ready() bool {
	return p.ticker != nil
}

// Snapshot materializes the current view. ok is false until Ready.
func (p *PartialSnapshot) Snapshot() (core.MarketSnapshot, bool) {
	if p.ticker == nil {
		return core.MarketSnapshot{}, false
	}
	t := p.ticker
	return core.MarketSnapshot{
		Timestamp:   t.At,
		Symbol:      p.Symbol,
		Price:       t.Price,
		Bid:         t.Bid,
		Ask:         t.Ask,
		SpreadBps:   features.RelativeSpreadBps(t.Ask, t.Bid),
		Bids:        append([]core.OrderBookLevel(nil), p.Bids...),
		Asks:        append([]core.OrderBookLevel(nil), p.Asks...),
		TradeVolume: p.TradeVolume,
	}, true
}
