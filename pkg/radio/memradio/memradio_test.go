package memradio

import (
    "sync"
    "testing"
    "time"
)

type sink struct {
    mu     sync.Mutex
    frames [][]byte
    from   []int32
}

func (s *sink) recv(data []byte, sender int32, rssi int8) {
    s.mu.Lock()
    s.frames = append(s.frames, data)
    s.from = append(s.from, sender)
    s.mu.Unlock()
}

func (s *sink) count() int {
    s.mu.Lock()
    defer s.mu.Unlock()
    return len(s.frames)
}

func waitFor(t *testing.T, cond func() bool) {
    t.Helper()
    deadline := time.Now().Add(2 * time.Second)
    for time.Now().Before(deadline) {
        if cond() {
            return
        }
        time.Sleep(time.Millisecond)
    }
    t.Fatal("condition not reached in time")
}

func TestLinkedNodesHearEachOther(t *testing.T) {
    ch := NewChannel()
    a, b := ch.Join(1), ch.Join(2)
    ch.Link(1, 2)

    var sa, sb sink
    a.Subscribe(sa.recv)
    b.Subscribe(sb.recv)

    if err := a.Send([]byte("ping")); err != nil {
        t.Fatal(err)
    }
    waitFor(t, func() bool { return sb.count() == 1 })
    sb.mu.Lock()
    from, frame := sb.from[0], sb.frames[0]
    sb.mu.Unlock()
    if from != 1 || string(frame) != "ping" {
        t.Fatalf("got %q from %d", frame, from)
    }
    // sender never hears its own transmission
    if sa.count() != 0 {
        t.Fatal("sender received its own frame")
    }
}

func TestUnlinkedNodesAreOutOfRange(t *testing.T) {
    ch := NewChannel()
    a := ch.Join(1)
    c := ch.Join(3)
    var sc sink
    c.Subscribe(sc.recv)

    a.Send([]byte("x"))
    time.Sleep(20 * time.Millisecond)
    if sc.count() != 0 {
        t.Fatal("frame crossed a missing link")
    }
}

func TestTransmissionCounter(t *testing.T) {
    ch := NewChannel()
    a, b := ch.Join(1), ch.Join(2)
    ch.LinkAll()
    b.Subscribe(func([]byte, int32, int8) {})
    a.Send([]byte("1"))
    a.Send([]byte("2"))
    if got := ch.Transmissions(); got != 2 {
        t.Fatalf("transmissions = %d", got)
    }
}

func TestSendAfterClose(t *testing.T) {
    ch := NewChannel()
    a := ch.Join(1)
    a.Close()
    if err := a.Send([]byte("x")); err == nil {
        t.Fatal("send on closed radio should fail")
    }
}
