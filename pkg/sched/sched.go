// Package sched provides the timing capabilities the mesh engine consumes:
// jittered periodic loops, cooperative sleeps and a uniform random source.
// The random source is injected so tests can run on a fixed seed.
package sched

import (
    "context"
    "math/rand"
    "sync"
    "time"
)

// Scheduler is the engine's clock and entropy supplier.
type Scheduler interface {
    // Every alternates between suspending for a uniform random duration
    // in [min, max] and running fn, until ctx is done. It blocks; run it
    // on its own goroutine. Cancellation is checked between iterations.
    Every(ctx context.Context, min, max time.Duration, fn func())

    // Sleep suspends for d or until ctx is done, whichever comes first.
    // Returns false when the sleep was cut short by cancellation.
    Sleep(ctx context.Context, d time.Duration) bool

    // Uniform draws a duration uniformly from [min, max].
    Uniform(min, max time.Duration) time.Duration
}

// Clock is the wall-time Scheduler.
type Clock struct {
    mu  sync.Mutex
    rng *rand.Rand
}

// New builds a Clock over src. A nil src seeds from the wall clock.
func New(src rand.Source) *Clock {
    if src == nil {
        src = rand.NewSource(time.Now().UnixNano())
    }
    return &Clock{rng: rand.New(src)}
}

func (c *Clock) Every(ctx context.Context, min, max time.Duration, fn func()) {
    for {
        if !c.Sleep(ctx, c.Uniform(min, max)) {
            return
        }
        fn()
    }
}

func (c *Clock) Sleep(ctx context.Context, d time.Duration) bool {
    if d <= 0 {
        return ctx.Err() == nil
    }
    t := time.NewTimer(d)
    defer t.Stop()
    select {
    case <-ctx.Done():
        return false
    case <-t.C:
        return true
    }
}

func (c *Clock) Uniform(min, max time.Duration) time.Duration {
    if max <= min {
        return min
    }
    c.mu.Lock()
    n := c.rng.Int63n(int64(max-min) + 1)
    c.mu.Unlock()
    return min + time.Duration(n)
}
