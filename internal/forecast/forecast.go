// Package forecast is the probabilistic forecasting capability: given a
// price window and a set of horizons it returns a median forecast and an
// 80% interval width per horizon.
package forecast

import (
	"context"
	"errors"
	"fmt"
)

// ErrServiceUnavailable marks every failure of the forecasting capability:
// not initialized, initialization failed, or the call itself failed.
var ErrServiceUnavailable = errors.New("forecast: service unavailable")

// Forecast holds one entry per requested horizon.
type Forecast struct {
	Median []float64
	Width  []float64
}

// Forecaster is the black-box capability consumed by signal fusion.
// Implementations must be safe for concurrent use.
type Forecaster interface {
	Forecast(ctx context.Context, window []float64, horizons []int) (Forecast, error)
}

// Unavailable wraps err so that errors.Is(err, ErrServiceUnavailable) holds.
func Unavailable(err error) error {
	if err == nil || errors.Is(err, ErrServiceUnavailable) {
		return err
	}
	return fmt.Errorf("%w: %v", ErrServiceUnavailable, err)
}

func (f Forecast) validate(horizons int) error {
	if len(f.Median) != horizons || len(f.Width) != horizons {
		return fmt.Errorf("forecast: got %d medians and %d widths for %d horizons", len(f.Median), len(f.Width), horizons)
	}
	return nil
}
