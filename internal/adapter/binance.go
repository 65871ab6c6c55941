package adapter

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"plasmatrader/internal/core"

	"go.uber.org/zap"
)

var binanceStreamHosts = []string{
	"wss://stream.binance.com:9443",
	"wss://stream.binance.com:443",
}

// StreamURLs returns the combined ticker/depth5/trade stream endpoints for
// symbol, primary host first.
func StreamURLs(symbol string) []string {
	s := strings.ToLower(symbol)
	streams := s + "@ticker/" + s + "@depth5@100ms/" + s + "@trade"
	urls := make([]string, len(binanceStreamHosts))
	for i, host := range binanceStreamHosts {
		urls[i] = host + "/stream?streams=" + streams
	}
	return urls
}

// BinanceFeed turns the combined stream of one symbol into MarketSnapshots.
type BinanceFeed struct {
	*BaseWSClient
	partial *PartialSnapshot
	stream  chan core.MarketSnapshot
	now     func() time.Time
	logger  *zap.Logger
}

func NewBinanceFeed(symbol string, logger *zap.Logger) *BinanceFeed {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BinanceFeed{
		BaseWSClient: NewBaseWSClient("Binance", StreamURLs(symbol), logger),
		partial:      NewPartialSnapshot(symbol),
		stream:       make(chan core.MarketSnapshot, 256),
		now:          time.Now,
		logger:       logger,
	}
}

// Snapshots is closed when Run returns.
func (b *BinanceFeed) Snapshots() <-chan core.MarketSnapshot {
	return b.stream
}

// Run streams until ctx is cancelled, reconnecting as needed.
func (b *BinanceFeed) Run(ctx context.Context) error {
	defer close(b.stream)
	return b.BaseWSClient.Run(ctx, b.handle)
}

func (b *BinanceFeed) handle(raw []byte) {
	snap, ok, err := b.apply(raw)
	if err != nil {
		b.logger.Debug("stream message skipped", zap.Error(err))
		return
	}
	if !ok {
		return
	}
	select {
	case b.stream <- snap:
	default:
		// consumer is behind, drop
	}
}

// Internal structures for Binance JSON
type binanceEnvelope struct {
	Stream string          `json:"stream"`
	Data   json.RawMessage `json:"data"`
}

type binanceTicker struct {
	Close     string `json:"c"`
	CloseTime int64  `json:"C"` // Capture C to prevent it matching 'c'
	Bid       string `json:"b"`
	BidQty    string `json:"B"`
	Ask       string `json:"a"`
	AskQty    string `json:"A"`
}

type binanceDepth struct {
	Bids [][]string `json:"bids"`
	Asks [][]string `json:"asks"`
}

type binanceTrade struct {
	Qty string `json:"q"`
}

// apply folds one combined-stream message into the partial snapshot and
// returns the snapshot once the ticker has been seen.
func (b *BinanceFeed) apply(raw []byte) (core.MarketSnapshot, bool, error) {
	var env binanceEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return core.MarketSnapshot{}, false, err
	}
	if env.Stream == "" || len(env.Data) == 0 {
		return core.MarketSnapshot{}, false, nil
	}

	switch {
	case strings.Contains(env.Stream, "@ticker"):
		var t binanceTicker
		if err := json.Unmarshal(env.Data, &t); err != nil {
			return core.MarketSnapshot{}, false, err
		}
		price, err := strconv.ParseFloat(t.Close, 64)
		if err != nil {
			return core.MarketSnapshot{}, false, fmt.Errorf("ticker price: %w", err)
		}
		bid, _ := strconv.ParseFloat(t.Bid, 64)
		ask, _ := strconv.ParseFloat(t.Ask, 64)
		b.partial.ApplyTicker(price, bid, ask, b.now().UTC())

	case strings.Contains(env.Stream, "@depth"):
		var d binanceDepth
		if err := json.Unmarshal(env.Data, &d); err != nil {
			return core.MarketSnapshot{}, false, err
		}
		b.partial.ApplyDepth(parseDepthLevels(d.Bids), parseDepthLevels(d.Asks))

	case strings.Contains(env.Stream, "@trade"):
		var t binanceTrade
		if err := json.Unmarshal(env.Data, &t); err != nil {
			return core.MarketSnapshot{}, false, err
		}
		qty, err := strconv.ParseFloat(t.Qty, 64)
		if err != nil {
			return core.MarketSnapshot{}, false, fmt.Errorf("trade qty: %w", err)
		}
		b.partial.ApplyTrade(qty)

	default:
		return core.MarketSnapshot{}, false, nil
	}

	snap, ok := b.partial.Snapshot()
	return snap, ok, nil
}

func parseDepthLevels(list [][]string) []core.OrderBookLevel {
	res := make([]core.OrderBookLevel, 0, len(list))
	for _, item := range list {
		if len(item) < 2 {
			continue
		}
		p, err1 := strconv.ParseFloat(item[0], 64)
		q, err2 := strconv.ParseFloat(item[1], 64)
		if err1 != nil || err2 != nil {
			continue
		}
		res = append(res, core.OrderBookLevel{Price: p, Size: q})
	}
	return res
}
