package storage

import (
	"context"
	"math"

	"golang.org/x/time/rate"
)

// limiter wraps a token bucket so every operation costs one token.
type limiter struct {
	rl *rate.Limiter
}

func newLimiter(perSecond float64) *limiter {
	burst := int(math.Ceil(perSecond))
	if burst < 1 {
		burst = 1
	}
	return &limiter{rl: rate.NewLimiter(rate.Limit(perSecond), burst)}
}

func (l *limiter) wait(ctx context.Context) error { return l.rl.Wait(ctx) }

type throttled struct {
	Sink
	lim *limiter
}

// Throttle limits s to perSecond document operations. Waiting honors ctx.
func Throttle(s Sink, perSecond float64) Sink {
	return &throttled{Sink: s, lim: newLimiter(perSecond)}
}

func (t *throttled) Index(ctx context.Context, r Request) error {
	if err := t.lim.wait(ctx); err != nil {
		return err
	}
	return t.Sink.Index(ctx, r)
}

func (t *throttled) Create(ctx context.Context, r Request) error {
	if err := t.lim.wait(ctx); err != nil {
		return err
	}
	return t.Sink.Create(ctx, r)
}

func (t *throttled) Update(ctx context.Context, r Request) error {
	if err := t.lim.wait(ctx); err != nil {
		return err
	}
	return t.Sink.Update(ctx, r)
}

func (t *throttled) Delete(ctx context.Context, r Request) error {
	if err := t.lim.wait(ctx); err != nil {
		return err
	}
	return t.Sink.Delete(ctx, r)
}

// Unwrap returns the throttled sink.
func (t *throttled) Unwrap() Sink { return t.Sink }
