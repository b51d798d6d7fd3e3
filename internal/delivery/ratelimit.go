package delivery

import (
	"context"

	"golang.org/x/time/rate"

	"notifyd/internal/job"
)

// Limited throttles a Deliverer with a token bucket so a burst of
// simultaneous fires cannot hammer an upstream gateway. The rate is
// adjustable at runtime for config hot reload.
type Limited struct {
	inner   Deliverer
	limiter *rate.Limiter
}

// WithRateLimit wraps d with a per-second token bucket. perSec <= 0
// means unlimited. Burst equals the rate so short spikes drain quickly
// without blocking hard.
func WithRateLimit(d Deliverer, perSec int) *Limited {
	return &Limited{
		inner:   d,
		limiter: rate.NewLimiter(limitFor(perSec), burstFor(perSec)),
	}
}

// SetRate replaces the bucket's rate and burst in place.
func (l *Limited) SetRate(perSec int) {
	l.limiter.SetLimit(limitFor(perSec))
	l.limiter.SetBurst(burstFor(perSec))
}

func (l *Limited) Channel() string { return l.inner.Channel() }

func (l *Limited) Deliver(ctx context.Context, p job.Payload) error {
	// Wait respects the task context, so a timed-out delivery slot
	// surfaces as a normal delivery error.
	if err := l.limiter.Wait(ctx); err != nil {
		return err
	}
	return l.inner.Deliver(ctx, p)
}

func limitFor(perSec int) rate.Limit {
	if perSec <= 0 {
		return rate.Inf
	}
	return rate.Limit(perSec)
}

func burstFor(perSec int) int {
	if perSec <= 0 {
		return 1
	}
	return perSec
}
