package features

import (
	"math"

	"plasmatrader/internal/core"
)

// RelativeSpreadBps is the quoted spread over the mid price in basis points.
func RelativeSpreadBps(ask, bid float64) float64 {
	if ask <= 0 || bid <= 0 {
		return 0
	}
	mid := (ask + bid) / 2
	if mid == 0 {
		return 0
	}
	return (ask - bid) / mid * 10000
}

// BuySellPressure is the ratio of resting bid quantity to ask quantity.
func BuySellPressure(bids, asks []core.OrderBookLevel) float64 {
	var bidQty, askQty float64
	for _, l := range bids {
		bidQty += l.Size
	}
	for _, l := range asks {
		askQty += l.Size
	}
	if askQty == 0 {
		if bidQty > 0 {
			return math.Inf(1)
		}
		return 1
	}
	return bidQty / askQty
}

// InstantLiquidity is the quote value resting on both sides of the book.
func InstantLiquidity(bids, asks []core.OrderBookLevel) float64 {
	var total float64
	for _, l := range bids {
		total += l.Price * l.Size
	}
	for _, l := range asks {
		total += l.Price * l.Size
	}
	return total
}
