package execution

import (
	"context"
	"math/rand"
	"time"
)

// Latency models the delay between order submission and fill.
type Latency interface {
	Wait(ctx context.Context) error
}

// RandomLatency sleeps a uniformly random duration in [Min, Max].
type RandomLatency struct {
	Min, Max time.Duration
}

func (l RandomLatency) Wait(ctx context.Context) error {
	return sleep(ctx, l.draw())
}

func (l RandomLatency) draw() time.Duration {
	if l.Max <= l.Min {
		return l.Min
	}
	return l.Min + time.Duration(rand.Int63n(int64(l.Max-l.Min)+1))
}

// NoLatency fills immediately. It still honours a cancelled context.
type NoLatency struct{}

func (NoLatency) Wait(ctx context.Context) error {
	return ctx.Err()
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
