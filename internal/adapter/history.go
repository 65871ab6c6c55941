package adapter

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"plasmatrader/internal/core"

	"github.com/adshao/go-binance/v2"
	"go.uber.org/zap"
)

// HistoryLoader fetches closed klines over the Binance REST API.
type HistoryLoader struct {
	client *binance.Client
	limit  int
	logger *zap.Logger
}

// NewHistoryLoader wraps client. limit is capped at the API maximum of 1000.
func NewHistoryLoader(client *binance.Client, limit int, logger *zap.Logger) *HistoryLoader {
	if limit <= 0 || limit > 1000 {
		limit = 1000
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HistoryLoader{client: client, limit: limit, logger: logger}
}

// Load returns up to limit bars of symbol at interval, oldest first.
func (h *HistoryLoader) Load(ctx context.Context, symbol, interval string) ([]core.Bar, error) {
	klines, err := h.client.NewKlinesService().
		Symbol(symbol).
		Interval(interval).
		Limit(h.limit).
		Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("klines %s %s: %w", symbol, interval, err)
	}

	bars := make([]core.Bar, 0, len(klines))
	for _, k := range klines {
		bars = append(bars, core.Bar{
			OpenTime: time.UnixMilli(k.OpenTime).UTC(),
			Open:     parseFloat(k.Open),
			High:     parseFloat(k.High),
			Low:      parseFloat(k.Low),
			Close:    parseFloat(k.Close),
			Volume:   parseFloat(k.Volume),
		})
	}
	return bars, nil
}

// LoadAll loads every timeframe. Timeframes that fail are left out and
// reported in the joined error.
func (h *HistoryLoader) LoadAll(ctx context.Context, symbol string, timeframes []string) (map[string][]core.Bar, error) {
	out := make(map[string][]core.Bar, len(timeframes))
	var errs []error
	for _, tf := range timeframes {
		bars, err := h.Load(ctx, symbol, tf)
		if err != nil {
			h.logger.Error("history load failed", zap.String("timeframe", tf), zap.Error(err))
			errs = append(errs, err)
			continue
		}
		h.logger.Info("history loaded", zap.String("timeframe", tf), zap.Int("bars", len(bars)))
		out[tf] = bars
	}
	return out, errors.Join(errs...)
}

func parseFloat(s string) float64 {
	f, _ := strconv.ParseFloat(s, 64)
	return f
}
