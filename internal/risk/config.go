package risk

import (
	"errors"
	"fmt"
)

var ErrInvalidConfig = errors.New("risk: invalid config")

// Config holds the sizing policy. Fractions are of wallet balance unless
// noted; order bounds are in quote currency.
type Config struct {
	KellyHistory    int     `mapstructure:"kelly_history"`
	KellyMinTrades  int     `mapstructure:"kelly_min_trades"`
	DefaultWinRate  float64 `mapstructure:"default_win_rate"`
	DefaultOdds     float64 `mapstructure:"default_odds"`
	KellyFraction   float64 `mapstructure:"kelly_fraction"`
	MaxRisk         float64 `mapstructure:"max_risk"`
	RecoveryRisk    float64 `mapstructure:"recovery_risk"`

	VolatilityPeriods   int     `mapstructure:"volatility_periods"`
	VolatilityTarget    float64 `mapstructure:"volatility_target"`
	VolatilityTimeframe string  `mapstructure:"volatility_timeframe"`

	DrawdownHardStop  float64 `mapstructure:"drawdown_hard_stop"`
	DrawdownLevel1    float64 `mapstructure:"drawdown_level1"`
	DrawdownStep      float64 `mapstructure:"drawdown_step"`
	DrawdownReduction float64 `mapstructure:"drawdown_reduction"`

	MinOrderUSD float64 `mapstructure:"min_order_usd"`
	MaxOrderUSD float64 `mapstructure:"max_order_usd"`
}

func DefaultConfig() Config {
	return Config{
		KellyHistory:        50,
		KellyMinTrades:      20,
		DefaultWinRate:      0.5,
		DefaultOdds:         1.0,
		KellyFraction:       0.5,
		MaxRisk:             0.015,
		RecoveryRisk:        0.005,
		VolatilityPeriods:   20,
		VolatilityTarget:    0.02,
		VolatilityTimeframe: "1h",
		DrawdownHardStop:    0.08,
		DrawdownLevel1:      0.05,
		DrawdownStep:        0.01,
		DrawdownReduction:   0.25,
		MinOrderUSD:         10,
		MaxOrderUSD:         1000,
	}
}

func (c Config) Validate() error {
	switch {
	case c.KellyHistory < 1 || c.KellyMinTrades < 1:
		return fmt.Errorf("%w: kelly history %d / min trades %d", ErrInvalidConfig, c.KellyHistory, c.KellyMinTrades)
	case c.DefaultWinRate < 0 || c.DefaultWinRate > 1:
		return fmt.Errorf("%w: default win rate %.4f outside [0,1]", ErrInvalidConfig, c.DefaultWinRate)
	case c.MaxRisk < 0 || c.RecoveryRisk < 0 || c.KellyFraction < 0:
		return fmt.Errorf("%w: negative risk fraction", ErrInvalidConfig)
	case c.VolatilityPeriods < 2 || c.VolatilityTarget <= 0:
		return fmt.Errorf("%w: volatility periods %d / target %.4f", ErrInvalidConfig, c.VolatilityPeriods, c.VolatilityTarget)
	case c.DrawdownLevel1 > c.DrawdownHardStop:
		return fmt.Errorf("%w: drawdown level %.4f above hard stop %.4f", ErrInvalidConfig, c.DrawdownLevel1, c.DrawdownHardStop)
	case c.DrawdownStep <= 0:
		return fmt.Errorf("%w: drawdown step must be > 0", ErrInvalidConfig)
	case c.MinOrderUSD < 0 || c.MinOrderUSD > c.MaxOrderUSD:
		return fmt.Errorf("%w: order bounds %.2f..%.2f", ErrInvalidConfig, c.MinOrderUSD, c.MaxOrderUSD)
	}
	return nil
}
