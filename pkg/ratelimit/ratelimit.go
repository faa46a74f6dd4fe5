package ratelimit

import (
	"context"
	"math/rand"
	"sync"
	"time"
)

// Limiter spaces outbound requests to the search engine, incorporating optional
// jitter. It is safe for concurrent use by multiple goroutines.
type Limiter struct {
	ticker   *time.Ticker
	jitter   float64 // 0.0 to 1.0
	interval time.Duration
	ch       <-chan time.Time
}

// NewLimiter creates a new limiter with the given requests per second (rps)
// and jitter factor. Jitter must be between 0.0 and 1.0.
// If rps is <= 0, the limiter does not block.
func NewLimiter(rps float64, jitter float64) *Limiter {
	if jitter < 0 {
		jitter = 0
	} else if jitter > 1 {
		jitter = 1
	}
	if rps <= 0 {
		return &Limiter{jitter: jitter}
	}

	interval := time.Duration(float64(time.Second) / rps)
	ticker := time.NewTicker(interval)

	return &Limiter{
		ticker:   ticker,
		jitter:   jitter,
		interval: interval,
		ch:       ticker.C,
	}
}

// Wait blocks until it is time to perform the next operation, or until the
// context is canceled. Positive jitter adds up to jitter*interval of extra sleep.
func (l *Limiter) Wait(ctx context.Context) error {
	if l == nil || l.ch == nil {
		return nil
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-l.ch:
	}

	if l.jitter <= 0 {
		return nil
	}
	// A ticker enforces the minimum spacing, so only the positive half of
	// the jitter window has any effect.
	extra := time.Duration(float64(l.interval) * l.jitter * ((rand.Float64() * 2) - 1.0))
	if extra <= 0 {
		return nil
	}
	return sleepCtx(ctx, extra)
}

// Stop releases any resources associated with the limiter.
func (l *Limiter) Stop() {
	if l != nil && l.ticker != nil {
		l.ticker.Stop()
	}
}

// Range is an inclusive [Min, Max] duration window used for randomized pauses.
type Range struct {
	Min time.Duration `mapstructure:"min"`
	Max time.Duration `mapstructure:"max"`
}

// Between builds a Range from two durations, swapping them if reversed.
func Between(a, b time.Duration) Range {
	if b < a {
		a, b = b, a
	}
	return Range{Min: a, Max: b}
}

// Zero reports whether the range never produces a pause.
func (r Range) Zero() bool {
	return r.Min <= 0 && r.Max <= 0
}

// Pick draws a uniform duration from the range using rnd.
func (r Range) Pick(rnd *rand.Rand) time.Duration {
	lo, hi := r.Min, r.Max
	if hi < lo {
		lo, hi = hi, lo
	}
	if lo < 0 {
		lo = 0
	}
	if hi <= lo {
		return lo
	}
	return lo + time.Duration(rnd.Int63n(int64(hi-lo)+1))
}

// SleepFunc pauses for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Pacer draws randomized pauses from Ranges. The random source and the sleep
// function are injectable so tests can run the pipeline with no real delay.
type Pacer struct {
	mu    sync.Mutex
	rnd   *rand.Rand
	sleep SleepFunc
}

// NewPacer returns a Pacer seeded from the wall clock that really sleeps.
func NewPacer() *Pacer {
	return NewPacerWith(rand.New(rand.NewSource(time.Now().UnixNano())), nil)
}

// NewPacerWith returns a Pacer using rnd and sleep. A nil sleep uses a
// context-aware timer.
func NewPacerWith(rnd *rand.Rand, sleep SleepFunc) *Pacer {
	if rnd == nil {
		rnd = rand.New(rand.NewSource(1))
	}
	if sleep == nil {
		sleep = sleepCtx
	}
	return &Pacer{rnd: rnd, sleep: sleep}
}

// NoDelay returns a Pacer whose pauses return immediately.
func NoDelay() *Pacer {
	return NewPacerWith(nil, func(ctx context.Context, _ time.Duration) error {
		return ctx.Err()
	})
}

// Draw returns a duration from r without sleeping.
func (p *Pacer) Draw(r Range) time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	return r.Pick(p.rnd)
}

// Intn returns a uniform int in [0, n). It shares the pacer's random source so
// a seeded Pacer makes a whole run reproducible.
func (p *Pacer) Intn(n int) int {
	if n <= 0 {
		return 0
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.rnd.Intn(n)
}

// IntBetween returns a uniform int in [lo, hi].
func (p *Pacer) IntBetween(lo, hi int) int {
	if hi < lo {
		lo, hi = hi, lo
	}
	return lo + p.Intn(hi-lo+1)
}

// Float64 returns a uniform float in [0, 1).
func (p *Pacer) Float64() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.rnd.Float64()
}

// Pause sleeps for a duration drawn from r and returns it.
func (p *Pacer) Pause(ctx context.Context, r Range) (time.Duration, error) {
	d := p.Draw(r)
	if d <= 0 {
		return 0, ctx.Err()
	}
	return d, p.sleep(ctx, d)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
