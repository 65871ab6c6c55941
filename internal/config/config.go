// Package config loads the runtime configuration from an optional config
// file, a .env file and PLASMA_* environment variables, in increasing
// precedence.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"plasmatrader/internal/execution"
	"plasmatrader/internal/fusion"
	"plasmatrader/internal/risk"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

var ErrInvalidConfig = errors.New("config: invalid config")

const EnvPrefix = "PLASMA"

type KafkaConfig struct {
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`
}

type ProfilingConfig struct {
	ServerAddress string `mapstructure:"server_address"`
}

type Config struct {
	Symbol         string        `mapstructure:"symbol"`
	InitialBalance float64       `mapstructure:"initial_balance"`
	CycleInterval  time.Duration `mapstructure:"cycle_interval"`
	HistoryLimit   int           `mapstructure:"history_limit"`
	HistoryRefresh time.Duration `mapstructure:"history_refresh"`
	ModelPath      string        `mapstructure:"model_path"`
	ONNXLibrary    string        `mapstructure:"onnx_library"`
	DatasetPath    string        `mapstructure:"dataset_path"`
	DatasetHorizon time.Duration `mapstructure:"dataset_horizon"`
	DiscordWebhook string        `mapstructure:"discord_webhook"`
	TelemetryAddr  string        `mapstructure:"telemetry_addr"`
	LogLevel       string        `mapstructure:"log_level"`

	Kafka     KafkaConfig      `mapstructure:"kafka"`
	Profiling ProfilingConfig  `mapstructure:"profiling"`
	Fusion    fusion.Config    `mapstructure:"fusion"`
	Risk      risk.Config      `mapstructure:"risk"`
	Execution execution.Config `mapstructure:"execution"`
}

// Load reads configFile (if non-empty) and envFiles (default ".env", a
// missing file is ignored) and overlays PLASMA_* environment variables,
// e.g. PLASMA_RISK_MAX_RISK for risk.max_risk.
func Load(configFile string, envFiles ...string) (Config, error) {
	if err := godotenv.Load(envFiles...); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load env file: %w", err)
	}

	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", configFile, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	cfg.Symbol = strings.ToUpper(cfg.Symbol)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if c.Symbol == "" {
		return fmt.Errorf("%w: symbol is required", ErrInvalidConfig)
	}
	if c.InitialBalance <= 0 {
		return fmt.Errorf("%w: initial balance must be > 0", ErrInvalidConfig)
	}
	if c.CycleInterval <= 0 {
		return fmt.Errorf("%w: cycle interval must be > 0", ErrInvalidConfig)
	}
	for _, err := range []error{c.Fusion.Validate(), c.Risk.Validate(), c.Execution.Validate()} {
		if err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
		}
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("symbol", "BTCUSDT")
	v.SetDefault("initial_balance", 10000.0)
	v.SetDefault("cycle_interval", 5*time.Second)
	v.SetDefault("history_limit", 1000)
	v.SetDefault("history_refresh", time.Minute)
	v.SetDefault("model_path", "models/forecaster.onnx")
	v.SetDefault("onnx_library", "")
	v.SetDefault("dataset_path", "")
	v.SetDefault("dataset_horizon", 5*time.Minute)
	v.SetDefault("discord_webhook", "")
	v.SetDefault("telemetry_addr", ":8080")
	v.SetDefault("log_level", "info")
	v.SetDefault("kafka.brokers", []string{})
	v.SetDefault("kafka.topic", "trading.decisions")
	v.SetDefault("profiling.server_address", "")

	f := fusion.DefaultConfig()
	v.SetDefault("fusion.timeframes", f.Timeframes)
	v.SetDefault("fusion.weights", f.Weights)
	v.SetDefault("fusion.horizons", f.Horizons)
	v.SetDefault("fusion.window", f.Window)
	v.SetDefault("fusion.volatility_periods", f.VolatilityPeriods)
	v.SetDefault("fusion.decay", f.DecayFactor)
	v.SetDefault("fusion.confidence_threshold", f.ConfidenceThreshold)
	v.SetDefault("fusion.decision_threshold", f.DecisionThreshold)
	v.SetDefault("fusion.volatility_penalty_scale", f.VolatilityPenaltyScale)
	v.SetDefault("fusion.volatility_penalty_cap", f.VolatilityPenaltyCap)
	v.SetDefault("fusion.workers", f.Workers)

	r := risk.DefaultConfig()
	v.SetDefault("risk.kelly_history", r.KellyHistory)
	v.SetDefault("risk.kelly_min_trades", r.KellyMinTrades)
	v.SetDefault("risk.default_win_rate", r.DefaultWinRate)
	v.SetDefault("risk.default_odds", r.DefaultOdds)
	v.SetDefault("risk.kelly_fraction", r.KellyFraction)
	v.SetDefault("risk.max_risk", r.MaxRisk)
	v.SetDefault("risk.recovery_risk", r.RecoveryRisk)
	v.SetDefault("risk.volatility_periods", r.VolatilityPeriods)
	v.SetDefault("risk.volatility_target", r.VolatilityTarget)
	v.SetDefault("risk.volatility_timeframe", r.VolatilityTimeframe)
	v.SetDefault("risk.drawdown_hard_stop", r.DrawdownHardStop)
	v.SetDefault("risk.drawdown_level1", r.DrawdownLevel1)
	v.SetDefault("risk.drawdown_step", r.DrawdownStep)
	v.SetDefault("risk.drawdown_reduction", r.DrawdownReduction)
	v.SetDefault("risk.min_order_usd", r.MinOrderUSD)
	v.SetDefault("risk.max_order_usd", r.MaxOrderUSD)

	e := execution.DefaultConfig()
	v.SetDefault("execution.taker_fee", e.TakerFee)
	v.SetDefault("execution.slippage_factor", e.SlippageFactor)
	v.SetDefault("execution.latency_min", e.LatencyMin)
	v.SetDefault("execution.latency_max", e.LatencyMax)
}
