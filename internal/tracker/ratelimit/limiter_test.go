package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClock drives the limiter deterministically: sleeps advance the
// clock instead of blocking.
type fakeClock struct {
	t      time.Time
	slept  []time.Duration
	sleeps int
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Unix(1_700_000_000, 0)}
}

func (c *fakeClock) now() time.Time {
	return c.t
}

func (c *fakeClock) sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.slept = append(c.slept, d)
	c.sleeps++
	c.t = c.t.Add(d)
	return nil
}

func newTestLimiter(max int, window time.Duration) (*Limiter, *fakeClock) {
	l := NewLimiter(max, window)
	c := newFakeClock()
	l.now = c.now
	l.sleep = c.sleep
	return l, c
}

func TestAcquireWithinCapNeverWaits(t *testing.T) {
	l, c := newTestLimiter(5, 10*time.Second)

	for i := 0; i < 5; i++ {
		require.NoError(t, l.Acquire(context.Background()))
	}

	assert.Equal(t, 0, c.sleeps)
	assert.Equal(t, 5, l.Len())
}

func TestAcquireBlocksAtCapThenAdmits(t *testing.T) {
	l, c := newTestLimiter(3, 10*time.Second)

	for i := 0; i < 3; i++ {
		require.NoError(t, l.Acquire(context.Background()))
	}

	// Fourth acquire with no elapsed time must wait out the full window.
	require.NoError(t, l.Acquire(context.Background()))

	require.Len(t, c.slept, 1)
	assert.Equal(t, 10*time.Second, c.slept[0])
	// After the wait exactly cap+1 requests have been recorded in total,
	// and the live window holds only the new one.
	assert.Equal(t, 1, l.Len())
}

func TestWindowNeverExceedsCap(t *testing.T) {
	l, c := newTestLimiter(4, time.Minute)

	for i := 0; i < 20; i++ {
		require.NoError(t, l.Acquire(context.Background()))
		assert.LessOrEqual(t, l.Len(), 4)
		c.t = c.t.Add(3 * time.Second)
	}
}

func TestAcquireRevalidatesAfterWait(t *testing.T) {
	l, c := newTestLimiter(2, 10*time.Second)

	require.NoError(t, l.Acquire(context.Background()))
	c.t = c.t.Add(4 * time.Second)
	require.NoError(t, l.Acquire(context.Background()))

	// Window is full; the next acquire waits until the oldest entry
	// expires (6s), then must recompute rather than admit blindly.
	require.NoError(t, l.Acquire(context.Background()))
	require.NotEmpty(t, c.slept)
	assert.Equal(t, 6*time.Second, c.slept[0])
	assert.LessOrEqual(t, l.Len(), 2)
}

func TestAcquireHonorsCancellation(t *testing.T) {
	l, _ := newTestLimiter(1, time.Hour)
	require.NoError(t, l.Acquire(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := l.Acquire(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}
