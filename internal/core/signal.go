package core

import "time"

// Decision is the trading intent derived from a fused prediction.
type Decision string

const (
	DecisionWaiting    Decision = "WAITING"
	DecisionLongEntry  Decision = "LONG_ENTRY"
	DecisionShortEntry Decision = "SHORT_ENTRY"
)

// OrderSide maps an entry decision to the order side that realizes it.
// WAITING has no side.
func (d Decision) OrderSide() (Side, bool) {
	switch d {
	case DecisionLongEntry:
		return Buy, true
	case DecisionShortEntry:
		return Sell, true
	default:
		return "", false
	}
}

// PredictionSignal is the output of one fusion cycle. Values are never
// mutated after construction; Details maps timeframe to predicted change in percent.
type PredictionSignal struct {
	Timestamp          time.Time          `json:"timestamp"`
	Symbol             string             `json:"symbol"`
	FusedPredictionPct float64            `json:"fusedPredictionPct"`
	Confidence         float64            `json:"confidence"`
	Decision           Decision           `json:"decision"`
	Details            map[string]float64 `json:"details"`
}

// Clone returns a copy that shares nothing with s.
func (s PredictionSignal) Clone() PredictionSignal {
	out := s
	if s.Details != nil {
		out.Details = make(map[string]float64, len(s.Details))
		for k, v := range s.Details {
			out.Details[k] = v
		}
	}
	return out
}
