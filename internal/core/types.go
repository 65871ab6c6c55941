package core

import "time"

// Side is the direction of an order (BUY/SELL)
type Side string

const (
	Buy  Side = "BUY"
	Sell Side = "SELL"
)

// Valid reports whether s is one of the known order sides.
func (s Side) Valid() bool {
	return s == Buy || s == Sell
}

// PositionSide is the direction of an open position
type PositionSide string

const (
	Long  PositionSide = "LONG"
	Short PositionSide = "SHORT"
)

// PositionSideFor maps an order side to the position it opens.
func PositionSideFor(side Side) PositionSide {
	if side == Buy {
		return Long
	}
	return Short
}

// Matches reports whether an order on side adds to a position on p.
func (p PositionSide) Matches(side Side) bool {
	return (p == Long && side == Buy) || (p == Short && side == Sell)
}

// OrderBookLevel represents a single price depth
type OrderBookLevel struct {
	Price float64 `json:"price"`
	Size  float64 `json:"size"`
}

// Bar is one OHLCV candle of a timeframe series.
type Bar struct {
	OpenTime time.Time `json:"openTime"`
	Open     float64   `json:"open"`
	High     float64   `json:"high"`
	Low      float64   `json:"low"`
	Close    float64   `json:"close"`
	Volume   float64   `json:"volume"`
}

// Closes extracts the close prices of bars in order.
func Closes(bars []Bar) []float64 {
	out := make([]float64, len(bars))
	for i, b := range bars {
		out[i] = b.Close
	}
	return out
}

// MarketSnapshot is the live view of one symbol delivered by the feed.
// Bids are sorted high to low, Asks low to high.
type MarketSnapshot struct {
	Timestamp   time.Time        `json:"timestamp"`
	Symbol      string           `json:"symbol"`
	Price       float64          `json:"price"`
	Bid         float64          `json:"bid"`
	Ask         float64          `json:"ask"`
	SpreadBps   float64          `json:"spreadBps"`
	Bids        []OrderBookLevel `json:"bids"`
	Asks        []OrderBookLevel `json:"asks"`
	TradeVolume float64          `json:"tradeVolume"`
}

// TopOfBook returns the best level quantity on the side an order of the
// given direction consumes, or 0 when that side is empty.
func (m MarketSnapshot) TopOfBook(side Side) float64 {
	levels := m.Asks
	if side == Sell {
		levels = m.Bids
	}
	if len(levels) == 0 {
		return 0
	}
	return levels[0].Size
}
