package kafka

import (
	"time"

	"plasmatrader/internal/core"
)

// DecisionEvent is the envelope published for every fused signal.
type DecisionEvent struct {
	EventType     string       `json:"event_type"`
	Source        string       `json:"source"`
	SchemaVersion string       `json:"schema_version"`
	Timestamp     time.Time    `json:"timestamp"`
	Data          DecisionData `json:"data"`
}

// DecisionData contains the signal itself
type DecisionData struct {
	Symbol             string             `json:"symbol"`
	Signal             string             `json:"signal"` // BUY, SELL, WATCH
	Decision           core.Decision      `json:"decision"`
	Confidence         float64            `json:"confidence"`
	FusedPredictionPct float64            `json:"fused_prediction_pct"`
	Timeframes         map[string]float64 `json:"timeframes"`
}

const (
	EventTypeDecision = "DECISION"
	SchemaVersion     = "1.0"
	Source            = "plasmatrader"
)

// Signal types
const (
	SignalBuy   = "BUY"
	SignalSell  = "SELL"
	SignalWatch = "WATCH"
)

// NewDecisionEvent wraps sig in the event envelope.
func NewDecisionEvent(sig core.PredictionSignal) DecisionEvent {
	signal := SignalWatch
	if side, ok := sig.Decision.OrderSide(); ok {
		signal = SignalBuy
		if side == core.Sell {
			signal = SignalSell
		}
	}
	return DecisionEvent{
		EventType:     EventTypeDecision,
		Source:        Source,
		SchemaVersion: SchemaVersion,
		Timestamp:     sig.Timestamp,
		Data: DecisionData{
			Symbol:             sig.Symbol,
			Signal:             signal,
			Decision:           sig.Decision,
			Confidence:         sig.Confidence,
			FusedPredictionPct: sig.FusedPredictionPct,
			Timeframes:         sig.Clone().Details,
		},
	}
}
