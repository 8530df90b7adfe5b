// Package backoff provides an exponential-backoff-with-jitter retry wrapper
// shared by every outbound call in the engine. Callers supply a predicate
// deciding whether a given error is worth retrying; everything else fails
// immediately.
package backoff

import (
	"context"
	"log"
	"math"
	"math/rand"
	"time"
)

// Policy controls the retry schedule.
type Policy struct {
	MaxAttempts int           // total attempts, including the first
	Base        time.Duration // first backoff delay
	Cap         time.Duration // upper bound on any single delay
}

// DefaultPolicy is a reasonable schedule for rate-limited external APIs.
var DefaultPolicy = Policy{MaxAttempts: 5, Base: time.Second, Cap: 30 * time.Second}

// Retryable decides whether the call should be retried after err.
type Retryable func(error) bool

// Retry runs fn until it succeeds, a non-retryable error occurs, the attempt
// budget is exhausted, or ctx is done. The sleep between attempts blocks the
// calling invocation; acceptable because callers are periodic batch jobs.
func Retry(ctx context.Context, p Policy, retryable Retryable, fn func() error) error {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = DefaultPolicy.MaxAttempts
	}
	if p.Base <= 0 {
		p.Base = DefaultPolicy.Base
	}
	if p.Cap <= 0 {
		p.Cap = DefaultPolicy.Cap
	}

	var last error
	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		last = fn()
		if last == nil {
			return nil
		}
		if attempt == p.MaxAttempts || retryable == nil || !retryable(last) {
			return last
		}

		delay := delayFor(p, attempt)
		log.Printf("[backoff] attempt %d/%d failed: %v (waiting %s)", attempt, p.MaxAttempts, last, delay)

		timer := time.NewTimer(delay)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		}
	}
	return last
}

// delayFor returns the backoff for the given attempt (1-based):
// base * 2^(attempt-1), capped, with full jitter and a 100ms floor.
func delayFor(p Policy, attempt int) time.Duration {
	exp := float64(p.Base) * math.Pow(2, float64(attempt-1))
	if exp > float64(p.Cap) {
		exp = float64(p.Cap)
	}
	d := time.Duration(rand.Float64() * exp)
	if d < 100*time.Millisecond {
		d = 100 * time.Millisecond
	}
	return d
}
