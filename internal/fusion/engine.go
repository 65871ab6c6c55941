// Package fusion turns independent per-timeframe forecasts into a single
// trading signal.
package fusion

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"plasmatrader/internal/core"
	"plasmatrader/internal/features"
	"plasmatrader/internal/forecast"
	"plasmatrader/internal/telemetry"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var ErrInsufficientData = errors.New("fusion: insufficient history")

// Result is the outcome of one timeframe. A failed timeframe carries Err and
// zero Prediction and Confidence.
type Result struct {
	Timeframe  string
	Prediction float64
	Confidence float64
	Volatility float64
	Err        error
}

// Engine runs one forecast task per timeframe on a bounded pool and fuses
// the accepted results.
type Engine struct {
	cfg        Config
	forecaster forecast.Forecaster
	logger     *zap.Logger
	now        func() time.Time
	decay      []float64
}

func NewEngine(cfg Config, forecaster forecast.Forecaster, logger *zap.Logger) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if forecaster == nil {
		return nil, fmt.Errorf("%w: nil forecaster", ErrInvalidConfig)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	decay := make([]float64, len(cfg.Horizons))
	for i := range decay {
		decay[i] = math.Pow(cfg.DecayFactor, float64(i))
	}
	return &Engine{
		cfg:        cfg,
		forecaster: forecaster,
		logger:     logger,
		now:        time.Now,
		decay:      decay,
	}, nil
}

// WithClock overrides the signal timestamp source.
func (e *Engine) WithClock(now func() time.Time) *Engine {
	e.now = now
	return e
}

// Predict forecasts every configured timeframe present in history and
// returns the fused signal. It waits for all dispatched tasks; a failing
// timeframe only zeroes itself.
func (e *Engine) Predict(ctx context.Context, symbol string, history map[string][]core.Bar) core.PredictionSignal {
	start := time.Now()
	defer func() { telemetry.FusionLatency.Observe(time.Since(start).Seconds()) }()

	results := make([]Result, len(e.cfg.Timeframes))

	var g errgroup.Group
	g.SetLimit(e.cfg.Workers)
	for i, tf := range e.cfg.Timeframes {
		i, tf := i, tf
		results[i] = Result{Timeframe: tf}
		bars := history[tf]
		if len(bars) == 0 {
			continue
		}
		closes := core.Closes(bars)
		g.Go(func() error {
			results[i] = e.PredictTimeframe(ctx, tf, closes)
			return nil
		})
	}
	g.Wait()

	for _, r := range results {
		if r.Err == nil {
			continue
		}
		if errors.Is(r.Err, ErrInsufficientData) {
			e.logger.Debug("timeframe skipped", zap.String("timeframe", r.Timeframe), zap.Error(r.Err))
			continue
		}
		telemetry.ForecastFailures.WithLabelValues(r.Timeframe).Inc()
		e.logger.Warn("timeframe prediction failed", zap.String("timeframe", r.Timeframe), zap.Error(r.Err))
	}

	fused, confidence, details := Fuse(e.cfg, results)
	sig := core.PredictionSignal{
		Timestamp:          e.now().UTC(),
		Symbol:             symbol,
		FusedPredictionPct: fused * 100,
		Confidence:         confidence,
		Decision:           Decide(fused, e.cfg.DecisionThreshold),
		Details:            details,
	}

	telemetry.SignalDecisions.WithLabelValues(string(sig.Decision)).Inc()
	telemetry.SignalConfidence.Set(sig.Confidence)
	e.logger.Info("signal fused",
		zap.String("symbol", symbol),
		zap.String("decision", string(sig.Decision)),
		zap.Float64("fused_pct", sig.FusedPredictionPct),
		zap.Float64("confidence", sig.Confidence),
		zap.Int("accepted", len(details)),
	)
	return sig
}

// PredictTimeframe converts one close series into a decay-weighted
// prediction and a volatility-penalized confidence.
func (e *Engine) PredictTimeframe(ctx context.Context, timeframe string, closes []float64) (res Result) {
	res.Timeframe = timeframe
	defer func() {
		if r := recover(); r != nil {
			res = Result{Timeframe: timeframe, Err: fmt.Errorf("fusion: panic in %s: %v", timeframe, r)}
		}
	}()

	if len(closes) < e.cfg.Window {
		res.Err = fmt.Errorf("%w: %s has %d closes, need %d", ErrInsufficientData, timeframe, len(closes), e.cfg.Window)
		return res
	}
	window := make([]float64, e.cfg.Window)
	copy(window, closes[len(closes)-e.cfg.Window:])

	vol, ok := features.RealizedVolatility(window, e.cfg.VolatilityPeriods)
	if !ok || !features.IsFinite(vol) {
		vol = 0
	}

	last := window[len(window)-1]
	if last == 0 {
		return res
	}

	fc, err := e.forecaster.Forecast(ctx, window, e.cfg.Horizons)
	if err != nil {
		res.Err = err
		return res
	}
	if len(fc.Median) != len(e.cfg.Horizons) || len(fc.Width) != len(e.cfg.Horizons) {
		res.Err = fmt.Errorf("fusion: %s forecast has %d/%d entries for %d horizons", timeframe, len(fc.Median), len(fc.Width), len(e.cfg.Horizons))
		return res
	}

	var weighted, weightSum, widthSum float64
	for i := range e.cfg.Horizons {
		weighted += fc.Median[i] * e.decay[i]
		weightSum += e.decay[i]
		widthSum += fc.Width[i]
	}
	predPrice := weighted / weightSum
	pred := (predPrice - last) / last

	meanWidth := widthSum / float64(len(e.cfg.Horizons))
	confidence := clamp(1-meanWidth/last, 0, 1)
	confidence *= 1 - math.Min(vol*e.cfg.VolatilityPenaltyScale, e.cfg.VolatilityPenaltyCap)

	if !features.IsFinite(pred) || !features.IsFinite(confidence) {
		res.Err = fmt.Errorf("fusion: %s produced non-finite prediction", timeframe)
		return res
	}

	res.Prediction = pred
	res.Confidence = confidence
	res.Volatility = vol
	return res
}

// Fuse combines the results whose confidence exceeds the acceptance
// threshold. fused is a fraction; details holds accepted predictions in percent.
func Fuse(cfg Config, results []Result) (fused, confidence float64, details map[string]float64) {
	details = make(map[string]float64)

	var num, den float64
	for _, r := range results {
		if r.Err != nil || r.Confidence <= cfg.ConfidenceThreshold {
			continue
		}
		w := cfg.Weights[r.Timeframe]
		num += r.Prediction * r.Confidence * w
		den += r.Confidence * w
		details[r.Timeframe] = r.Prediction * 100
	}
	if len(details) == 0 {
		return 0, 0, details
	}
	if den > 0 {
		fused = num / den
	}
	if total := cfg.totalWeight(); total > 0 {
		confidence = den / total
	}
	return fused, confidence, details
}

// Decide maps a fused prediction to an entry decision.
func Decide(fused, threshold float64) core.Decision {
	switch {
	case fused > threshold:
		return core.DecisionLongEntry
	case fused < -threshold:
		return core.DecisionShortEntry
	default:
		return core.DecisionWaiting
	}
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
