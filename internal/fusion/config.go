package fusion

import (
	"errors"
	"fmt"
	"math"
)

var ErrInvalidConfig = errors.New("fusion: invalid config")

// Config holds the fusion constants. Weights are the static per-timeframe
// weights and must sum to 1.
type Config struct {
	Timeframes             []string           `mapstructure:"timeframes"`
	Weights                map[string]float64 `mapstructure:"weights"`
	Horizons               []int              `mapstructure:"horizons"`
	Window                 int                `mapstructure:"window"`
	VolatilityPeriods      int                `mapstructure:"volatility_periods"`
	DecayFactor            float64            `mapstructure:"decay"`
	ConfidenceThreshold    float64            `mapstructure:"confidence_threshold"`
	DecisionThreshold      float64            `mapstructure:"decision_threshold"`
	VolatilityPenaltyScale float64            `mapstructure:"volatility_penalty_scale"`
	VolatilityPenaltyCap   float64            `mapstructure:"volatility_penalty_cap"`
	Workers                int                `mapstructure:"workers"`
}

func DefaultConfig() Config {
	return Config{
		Timeframes: []string{"1m", "3m", "5m", "15m", "30m", "1h"},
		Weights: map[string]float64{
			"1m": 0.10, "3m": 0.15, "5m": 0.20, "15m": 0.25, "30m": 0.15, "1h": 0.15,
		},
		Horizons:               []int{1, 3, 5, 10, 15},
		Window:                 200,
		VolatilityPeriods:      20,
		DecayFactor:            0.95,
		ConfidenceThreshold:    0.7,
		DecisionThreshold:      0.0005,
		VolatilityPenaltyScale: 5,
		VolatilityPenaltyCap:   0.5,
		Workers:                2,
	}
}

const weightTolerance = 1e-6

func (c Config) Validate() error {
	if len(c.Timeframes) == 0 {
		return fmt.Errorf("%w: no timeframes", ErrInvalidConfig)
	}
	var sum float64
	for _, tf := range c.Timeframes {
		w, ok := c.Weights[tf]
		if !ok {
			return fmt.Errorf("%w: no weight for timeframe %s", ErrInvalidConfig, tf)
		}
		if w < 0 {
			return fmt.Errorf("%w: negative weight for timeframe %s", ErrInvalidConfig, tf)
		}
		sum += w
	}
	if math.Abs(sum-1) > weightTolerance {
		return fmt.Errorf("%w: weights sum to %.6f, want 1", ErrInvalidConfig, sum)
	}
	if len(c.Horizons) == 0 {
		return fmt.Errorf("%w: no horizons", ErrInvalidConfig)
	}
	for _, h := range c.Horizons {
		if h < 1 {
			return fmt.Errorf("%w: horizon %d < 1", ErrInvalidConfig, h)
		}
	}
	if c.Window < 2 || c.VolatilityPeriods < 2 || c.VolatilityPeriods >= c.Window {
		return fmt.Errorf("%w: window %d / volatility periods %d", ErrInvalidConfig, c.Window, c.VolatilityPeriods)
	}
	if c.DecayFactor <= 0 {
		return fmt.Errorf("%w: decay must be > 0", ErrInvalidConfig)
	}
	if c.Workers < 1 {
		return fmt.Errorf("%w: workers must be >= 1", ErrInvalidConfig)
	}
	return nil
}

func (c Config) totalWeight() float64 {
	var sum float64
	for _, tf := range c.Timeframes {
		sum += c.Weights[tf]
	}
	return sum
}
