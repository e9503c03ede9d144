// Package ratelimit implements the sliding-window admission control that
// keeps the client below the portal's ban threshold.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/fleetlink-io/fleetlink/pkg/log"
)

// Limiter admits at most maxRequests request timestamps within any
// trailing window. Acquire blocks until admission is safe.
type Limiter struct {
	maxRequests int
	window      time.Duration

	mu       sync.Mutex
	requests []time.Time

	// OnWait, when set, is invoked each time Acquire has to block.
	OnWait func(wait time.Duration)

	// now and sleep are swapped out by tests.
	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// NewLimiter creates a Limiter admitting maxRequests per trailing window.
// Both parameters must be positive.
func NewLimiter(maxRequests int, window time.Duration) *Limiter {
	return &Limiter{
		maxRequests: maxRequests,
		window:      window,
		now:         time.Now,
		sleep:       sleepCtx,
	}
}

// Acquire blocks until admitting one more request keeps the trailing
// window under the cap, then records the request. The only failure mode
// is context cancellation. After any wait the window is re-validated:
// another caller may have been admitted in the meantime.
func (l *Limiter) Acquire(ctx context.Context) error {
	for {
		l.mu.Lock()
		now := l.now()
		l.trim(now)

		if len(l.requests) < l.maxRequests {
			l.requests = append(l.requests, now)
			l.mu.Unlock()
			return nil
		}

		wait := l.window - now.Sub(l.requests[0])
		l.mu.Unlock()

		if wait <= 0 {
			continue
		}

		log.Debug("Rate limit reached, waiting", "wait", wait)
		if l.OnWait != nil {
			l.OnWait(wait)
		}
		if err := l.sleep(ctx, wait); err != nil {
			return err
		}
	}
}

// Len returns the number of requests currently inside the window,
// for diagnostics.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.trim(l.now())
	return len(l.requests)
}

// Cap returns the admission cap.
func (l *Limiter) Cap() int { return l.maxRequests }

// Window returns the trailing window size.
func (l *Limiter) Window() time.Duration { return l.window }

// trim drops timestamps that fell out of the trailing window.
// Caller holds l.mu.
func (l *Limiter) trim(now time.Time) {
	cut := 0
	for cut < len(l.requests) && now.Sub(l.requests[cut]) >= l.window {
		cut++
	}
	if cut > 0 {
		l.requests = append(l.requests[:0], l.requests[cut:]...)
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
