package features

import "math"

// PctReturns returns the simple percentage returns of consecutive prices.
// A zero previous price yields a non-finite return, as it would in a
// dataframe pct_change.
func PctReturns(prices []float64) []float64 {
	if len(prices) < 2 {
		return nil
	}
	out := make([]float64, len(prices)-1)
	for i := 1; i < len(prices); i++ {
		out[i-1] = (prices[i] - prices[i-1]) / prices[i-1]
	}
	return out
}

// RealizedVolatility is the sample standard deviation of the last periods
// percentage returns of prices. ok is false when there are fewer than
// periods returns; the value may still be NaN or Inf on degenerate input.
func RealizedVolatility(prices []float64, periods int) (vol float64, ok bool) {
	if periods < 2 {
		return 0, false
	}
	returns := PctReturns(prices)
	if len(returns) < periods {
		return 0, false
	}
	window := returns[len(returns)-periods:]

	var sum float64
	for _, r := range window {
		sum += r
	}
	mean := sum / float64(periods)

	var sq float64
	for _, r := range window {
		d := r - mean
		sq += d * d
	}
	return math.Sqrt(sq / float64(periods-1)), true
}

// IsFinite reports whether v is neither NaN nor infinite.
func IsFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
