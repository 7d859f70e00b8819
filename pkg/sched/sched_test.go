package sched

import (
    "context"
    "math/rand"
    "sync/atomic"
    "testing"
    "time"
)

func TestUniformBounds(t *testing.T) {
    c := New(rand.NewSource(1))
    min, max := 10*time.Millisecond, 60*time.Millisecond
    for i := 0; i < 1000; i++ {
        d := c.Uniform(min, max)
        if d < min || d > max {
            t.Fatalf("draw %v outside [%v, %v]", d, min, max)
        }
    }
}

func TestUniformDegenerateWindow(t *testing.T) {
    c := New(rand.NewSource(1))
    if d := c.Uniform(time.Second, time.Second); d != time.Second {
        t.Fatalf("got %v", d)
    }
    if d := c.Uniform(time.Second, 0); d != time.Second {
        t.Fatalf("inverted window: got %v", d)
    }
}

func TestDeterministicSequence(t *testing.T) {
    a := New(rand.NewSource(7))
    b := New(rand.NewSource(7))
    for i := 0; i < 50; i++ {
        if a.Uniform(0, time.Hour) != b.Uniform(0, time.Hour) {
            t.Fatal("same seed must produce the same jitter sequence")
        }
    }
}

func TestSleepCancellation(t *testing.T) {
    c := New(nil)
    ctx, cancel := context.WithCancel(context.Background())
    go func() { time.Sleep(5 * time.Millisecond); cancel() }()
    start := time.Now()
    if c.Sleep(ctx, 5*time.Second) {
        t.Fatal("cancelled sleep should report false")
    }
    if time.Since(start) > time.Second {
        t.Fatal("sleep ignored cancellation")
    }
}

func TestEveryStopsOnCancel(t *testing.T) {
    c := New(rand.NewSource(1))
    ctx, cancel := context.WithCancel(context.Background())
    var ticks atomic.Int32
    done := make(chan struct{})
    go func() {
        c.Every(ctx, time.Millisecond, 2*time.Millisecond, func() {
            if ticks.Add(1) >= 3 {
                cancel()
            }
        })
        close(done)
    }()
    select {
    case <-done:
    case <-time.After(2 * time.Second):
        t.Fatal("Every did not stop after cancellation")
    }
    if ticks.Load() < 3 {
        t.Fatalf("ticks = %d", ticks.Load())
    }
}
