package fetch

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// RateGate paces network fetches for one domain: at most one event per
// interval, no burst. A gate is owned by exactly one worker.
type RateGate struct {
	limiter *rate.Limiter
}

// NewRateGate creates a gate with the given minimum interval between
// fetches. A non-positive interval disables pacing.
func NewRateGate(interval time.Duration) *RateGate {
	if interval <= 0 {
		return &RateGate{}
	}
	return &RateGate{limiter: rate.NewLimiter(rate.Every(interval), 1)}
}

// Wait blocks until the next fetch slot is available or the context ends.
func (g *RateGate) Wait(ctx context.Context) error {
	if g.limiter == nil {
		return nil
	}
	return g.limiter.Wait(ctx)
}
