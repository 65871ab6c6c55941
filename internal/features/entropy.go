package features

import (
	"math"

	"plasmatrader/internal/core"
)

const defaultEntropyDepth = 20

// EntropyEngine measures how evenly resting liquidity is spread over the
// top levels of both book sides. High entropy is a flat, uncertain book;
// low entropy means liquidity concentrated at a few levels.
type EntropyEngine struct {
	depth int
}

func NewEntropyEngine() *EntropyEngine {
	return &EntropyEngine{depth: defaultEntropyDepth}
}

// WithDepth limits the levels taken from each side. Values <= 0 keep the
// current depth.
func (e *EntropyEngine) WithDepth(depth int) *EntropyEngine {
	if depth > 0 {
		e.depth = depth
	}
	return e
}

// CalculateBookEntropy returns the Shannon entropy in bits of the size
// distribution over the top levels. A one-sided or empty book is 0.
func (e *EntropyEngine) CalculateBookEntropy(snap core.MarketSnapshot) float64 {
	h, _ := e.bookEntropy(snap)
	return h
}

// NormalizedBookEntropy scales the entropy by its maximum, log2 of the
// number of levels considered, into [0,1].
func (e *EntropyEngine) NormalizedBookEntropy(snap core.MarketSnapshot) float64 {
	h, levels := e.bookEntropy(snap)
	if levels < 2 {
		return 0
	}
	return h / math.Log2(float64(levels))
}

func (e *EntropyEngine) bookEntropy(snap core.MarketSnapshot) (bits float64, levels int) {
	if len(snap.Bids) == 0 || len(snap.Asks) == 0 {
		return 0, 0
	}
	bids := snap.Bids[:min(len(snap.Bids), e.depth)]
	asks := snap.Asks[:min(len(snap.Asks), e.depth)]
	levels = len(bids) + len(asks)

	var total float64
	for _, lv := range bids {
		total += lv.Size
	}
	for _, lv := range asks {
		total += lv.Size
	}
	if total <= 0 {
		return 0, levels
	}

	for _, side := range [2][]core.OrderBookLevel{bids, asks} {
		for _, lv := range side {
			if lv.Size <= 0 {
				continue
			}
			p := lv.Size / total
			bits -= p * math.Log2(p)
		}
	}
	return bits, levels
}
