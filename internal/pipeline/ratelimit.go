package pipeline

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// DefaultSlack is how much earlier than the computed deadline the limiter
// wakes, so downstream work overlaps the wait.
const DefaultSlack = 10 * time.Millisecond

// Clock abstracts time for the rate limiter.
type Clock interface {
	Now() time.Time
	Sleep(ctx context.Context, d time.Duration) error
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

func (realClock) Sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// RateLimiter paces a stream to a real-time rate with a bounded burst.
//
// Budget accrues at rate units per second and is capped at burst, so idle
// periods never grant more than one burst of catch-up. Every item debits its
// quantity. When the budget goes negative the limiter schedules a wake-up
// for when it would be back at zero; the item itself is returned at once and
// the delay is paid on the following pull.
type RateLimiter[T Quantifier] struct {
	src     Stream[T]
	limiter *rate.Limiter
	burst   int
	slack   time.Duration
	clock   Clock
	wake    time.Time
}

// RateLimiterOption configures a RateLimiter.
type RateLimiterOption func(*limiterOptions)

type limiterOptions struct {
	slack time.Duration
	clock Clock
}

// WithSlack sets how early the limiter wakes before its deadline.
func WithSlack(d time.Duration) RateLimiterOption {
	return func(o *limiterOptions) { o.slack = d }
}

// WithClock replaces the wall clock, for tests.
func WithClock(c Clock) RateLimiterOption {
	return func(o *limiterOptions) { o.clock = c }
}

// NewRateLimiter paces src to perSecond units per second, letting through at
// most burst units back to back.
func NewRateLimiter[T Quantifier](src Stream[T], perSecond float64, burst int, opts ...RateLimiterOption) *RateLimiter[T] {
	o := limiterOptions{slack: DefaultSlack, clock: realClock{}}
	for _, opt := range opts {
		opt(&o)
	}
	if burst < 1 {
		burst = 1
	}
	return &RateLimiter[T]{
		src:     src,
		limiter: rate.NewLimiter(rate.Limit(perSecond), burst),
		burst:   burst,
		slack:   o.slack,
		clock:   o.clock,
	}
}

func (l *RateLimiter[T]) Next(ctx context.Context) (T, error) {
	var zero T
	if !l.wake.IsZero() {
		if d := l.wake.Sub(l.clock.Now()); d > 0 {
			if err := l.clock.Sleep(ctx, d); err != nil {
				return zero, err
			}
		}
		l.wake = time.Time{}
	}

	item, err := l.src.Next(ctx)
	if err != nil {
		return zero, err
	}

	now := l.clock.Now()
	if delay := l.debit(now, item.Quantity()) - l.slack; delay > 0 {
		l.wake = now.Add(delay)
	}
	return item, nil
}

// debit takes n units from the bucket and returns how long until the budget
// is back at zero. Items larger than the burst are debited in burst sized
// pieces, since a single reservation may not exceed it.
func (l *RateLimiter[T]) debit(now time.Time, n int) time.Duration {
	var delay time.Duration
	for n > 0 {
		take := min(n, l.burst)
		r := l.limiter.ReserveN(now, take)
		if !r.OK() {
			return 0
		}
		delay = r.DelayFrom(now)
		n -= take
	}
	return delay
}

func (l *RateLimiter[T]) Close() error {
	return l.src.Close()
}
