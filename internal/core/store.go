package core

import (
	"sync"
)

// View is what the dashboard side reads: the latest ledger, the latest
// signal, and the most recent decision/confidence pair.
type View struct {
	State          TradingState
	Signal         *PredictionSignal
	LastDecision   Decision
	LastConfidence float64
}

// Store holds the single mutable "current" ledger reference. Readers always
// see a fully applied state; writers are serialized by Apply.
type Store struct {
	mu      sync.RWMutex
	writeMu sync.Mutex

	state  TradingState
	signal *PredictionSignal
}

func NewStore(initial TradingState) *Store {
	return &Store{state: initial.Clone()}
}

// Snapshot returns a private copy of the current ledger.
func (s *Store) Snapshot() TradingState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.Clone()
}

// View returns copies of everything the monitoring side consumes.
func (s *Store) View() View {
	s.mu.RLock()
	defer s.mu.RUnlock()

	v := View{
		State:        s.state.Clone(),
		LastDecision: DecisionWaiting,
	}
	if s.signal != nil {
		sig := s.signal.Clone()
		v.Signal = &sig
		v.LastDecision = sig.Decision
		v.LastConfidence = sig.Confidence
	}
	return v
}

// Apply runs fn against a private copy of the current ledger and publishes
// the returned state atomically. fn runs outside the read lock so it may
// block (simulated latency) without stalling readers. On error nothing is
// published.
func (s *Store) Apply(fn func(TradingState) (TradingState, error)) (TradingState, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	next, err := fn(s.Snapshot())
	if err != nil {
		return TradingState{}, err
	}

	s.mu.Lock()
	s.state = next.Clone()
	s.mu.Unlock()
	return next, nil
}

// SetHistory replaces the bar series of one timeframe.
func (s *Store) SetHistory(timeframe string, bars []Bar) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	series := make([]Bar, len(bars))
	copy(series, bars)

	s.mu.Lock()
	defer s.mu.Unlock()
	history := make(map[string][]Bar, len(s.state.History)+1)
	for k, v := range s.state.History {
		history[k] = v
	}
	history[timeframe] = series
	s.state.History = history
}

// PublishSignal records the latest fusion output.
func (s *Store) PublishSignal(sig PredictionSignal) {
	c := sig.Clone()
	s.mu.Lock()
	s.signal = &c
	s.mu.Unlock()
}
