package core

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// OrderType is the execution style of an order. Only MARKET is simulated.
type OrderType string

const OrderMarket OrderType = "MARKET"

// Order is a transient request to trade Size units of the base asset.
type Order struct {
	ID        string          `json:"id"`
	Timestamp time.Time       `json:"timestamp"`
	Symbol    string          `json:"symbol"`
	Side      Side            `json:"side"`
	Size      decimal.Decimal `json:"size"`
	Type      OrderType       `json:"type"`
}

// NewMarketOrder builds a market order stamped with a fresh id.
func NewMarketOrder(ts time.Time, symbol string, side Side, size decimal.Decimal) Order {
	return Order{
		ID:        uuid.NewString(),
		Timestamp: ts,
		Symbol:    strings.ToUpper(symbol),
		Side:      side,
		Size:      size,
		Type:      OrderMarket,
	}
}

// Validate rejects orders that can never be filled.
func (o Order) Validate() error {
	if o.Symbol == "" {
		return fmt.Errorf("%w: empty symbol", ErrInvalidOrder)
	}
	if !o.Side.Valid() {
		return fmt.Errorf("%w: unknown side %q", ErrInvalidOrder, o.Side)
	}
	if !o.Size.IsPositive() {
		return fmt.Errorf("%w: size must be > 0, got %s", ErrInvalidOrder, o.Size)
	}
	return nil
}
