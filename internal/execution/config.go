package execution

import (
	"errors"
	"fmt"
	"time"
)

var ErrInvalidConfig = errors.New("execution: invalid config")

type Config struct {
	TakerFee       float64       `mapstructure:"taker_fee"`
	SlippageFactor float64       `mapstructure:"slippage_factor"`
	LatencyMin     time.Duration `mapstructure:"latency_min"`
	LatencyMax     time.Duration `mapstructure:"latency_max"`
}

func DefaultConfig() Config {
	return Config{
		TakerFee:       0.0004,
		SlippageFactor: 0.1,
		LatencyMin:     50 * time.Millisecond,
		LatencyMax:     200 * time.Millisecond,
	}
}

func (c Config) Validate() error {
	if c.TakerFee < 0 || c.SlippageFactor < 0 {
		return fmt.Errorf("%w: negative fee or slippage factor", ErrInvalidConfig)
	}
	if c.LatencyMin < 0 || c.LatencyMin > c.LatencyMax {
		return fmt.Errorf("%w: latency bounds %s..%s", ErrInvalidConfig, c.LatencyMin, c.LatencyMax)
	}
	return nil
}

// Latency returns the random latency model for the configured bounds.
func (c Config) Latency() Latency {
	return RandomLatency{Min: c.LatencyMin, Max: c.LatencyMax}
}
