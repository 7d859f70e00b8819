package mesh

import (
    "context"
    "sync"
    "testing"
    "time"

    "math/rand"

    "radiomesh/pkg/protocol"
    "radiomesh/pkg/radio/memradio"
    "radiomesh/pkg/sched"
)

// fastConfig keeps reply jitter tiny and discovery far away so tests control
// every transmission on the channel.
func fastConfig(id int32) Config {
    return Config{
        NodeID:       id,
        HelloMin:     time.Hour,
        HelloMax:     2 * time.Hour,
        AckJitterMin: time.Millisecond,
        AckJitterMax: 2 * time.Millisecond,
    }
}

func newTestNode(t *testing.T, ch *memradio.Channel, id int32) *Engine {
    t.Helper()
    e := New(fastConfig(id), ch.Join(id), sched.New(rand.NewSource(int64(id))), nil)
    ctx, cancel := context.WithCancel(context.Background())
    t.Cleanup(cancel)
    e.Start(ctx)
    return e
}

type inbox struct {
    mu   sync.Mutex
    msgs []string
    srcs []int32
}

func (b *inbox) handler(src int32, msg string) {
    b.mu.Lock()
    b.msgs = append(b.msgs, msg)
    b.srcs = append(b.srcs, src)
    b.mu.Unlock()
}

func (b *inbox) count() int {
    b.mu.Lock()
    defer b.mu.Unlock()
    return len(b.msgs)
}

func waitFor(t *testing.T, what string, cond func() bool) {
    t.Helper()
    deadline := time.Now().Add(3 * time.Second)
    for time.Now().Before(deadline) {
        if cond() {
            return
        }
        time.Sleep(time.Millisecond)
    }
    t.Fatalf("timed out waiting for %s", what)
}

// settle gives in-flight frames and jittered replies time to drain.
func settle() { time.Sleep(50 * time.Millisecond) }

func TestBroadcastLoopFreedom(t *testing.T) {
    // A, B, C all in range of each other: a classic radio cycle.
    ch := memradio.NewChannel()
    a := newTestNode(t, ch, 1)
    bBox, cBox := &inbox{}, &inbox{}
    b := newTestNode(t, ch, 2)
    c := newTestNode(t, ch, 3)
    b.OnString(bBox.handler)
    c.OnString(cBox.handler)
    var selfDelivery inbox
    a.OnString(selfDelivery.handler)
    ch.LinkAll()

    a.SendString("storm")

    waitFor(t, "delivery at B and C", func() bool {
        return bBox.count() == 1 && cBox.count() == 1
    })
    settle()

    // one original send plus at most one forward by each of B and C;
    // the flood must not re-circulate
    if n := ch.Transmissions(); n != 3 {
        t.Fatalf("transmissions = %d, want 3", n)
    }
    if bBox.count() != 1 || cBox.count() != 1 {
        t.Fatalf("duplicate deliveries: B=%d C=%d", bBox.count(), cBox.count())
    }
    if selfDelivery.count() != 0 {
        t.Fatal("origin delivered its own broadcast to itself")
    }
}

func TestDedupIdempotence(t *testing.T) {
    // a raw transmitter replays the identical frame three times
    ch := memradio.NewChannel()
    box := &inbox{}
    node := newTestNode(t, ch, 1)
    node.OnString(box.handler)
    raw := ch.Join(99)
    ch.LinkAll()

    frame := protocol.Encode(protocol.Packet{
        Target: 0, Origin: 50, MessageID: 7, TTL: 4,
        Type: protocol.TypeData, PayloadType: protocol.PayloadString,
        Payload: []byte("once"),
    })
    for i := 0; i < 3; i++ {
        if err := raw.Send(frame); err != nil {
            t.Fatal(err)
        }
    }

    waitFor(t, "first delivery", func() bool { return box.count() >= 1 })
    settle()
    if box.count() != 1 {
        t.Fatalf("delivered %d times, want 1", box.count())
    }
    // 3 replays + exactly one forward by the node
    if n := ch.Transmissions(); n != 4 {
        t.Fatalf("transmissions = %d, want 4 (one forward)", n)
    }
}

func TestTTLBound(t *testing.T) {
    // chain 1-2-3-4-5-6-7: four forwarding hops exhaust a TTL of 4, so
    // node 6 still hears the broadcast but node 7 never does
    ch := memradio.NewChannel()
    nodes := make([]*Engine, 0, 7)
    boxes := make([]*inbox, 8)
    for id := int32(1); id <= 7; id++ {
        e := newTestNode(t, ch, id)
        boxes[id] = &inbox{}
        e.OnString(boxes[id].handler)
        nodes = append(nodes, e)
    }
    for id := int32(1); id < 7; id++ {
        ch.Link(id, id+1)
    }

    nodes[0].SendString("far")

    waitFor(t, "delivery at node 6", func() bool { return boxes[6].count() == 1 })
    settle()
    if boxes[7].count() != 0 {
        t.Fatal("packet crossed a fifth hop past an exhausted TTL")
    }
    // origin + forwards by nodes 2..5
    if n := ch.Transmissions(); n != 5 {
        t.Fatalf("transmissions = %d, want 5", n)
    }
}

func TestEndToEndUnicastWithAck(t *testing.T) {
    // 100 -- 150 -- 200, no route knowledge anywhere
    ch := memradio.NewChannel()
    a := newTestNode(t, ch, 100)
    _ = newTestNode(t, ch, 150)
    cBox := &inbox{}
    c := newTestNode(t, ch, 200)
    c.OnString(cBox.handler)

    // a snoop in range of 100 and 200 records what each transmits
    var snoopMu sync.Mutex
    var heard []protocol.Packet
    snoop := ch.Join(99)
    snoop.Subscribe(func(frame []byte, sender int32, rssi int8) {
        p, err := protocol.Decode(frame)
        if err != nil {
            return
        }
        snoopMu.Lock()
        heard = append(heard, p)
        snoopMu.Unlock()
    })

    ch.Link(100, 150)
    ch.Link(150, 200)
    ch.Link(99, 100)
    ch.Link(99, 200)

    a.SendStringTo(200, "hi")

    waitFor(t, "delivery at 200", func() bool { return cBox.count() == 1 })
    cBox.mu.Lock()
    src := cBox.srcs[0]
    cBox.mu.Unlock()
    if src != 100 {
        t.Fatalf("delivered src = %d, want the origin 100", src)
    }

    // the original frame floods with the target set
    waitFor(t, "snoop to hear the first frame", func() bool {
        snoopMu.Lock()
        defer snoopMu.Unlock()
        return len(heard) >= 1
    })
    snoopMu.Lock()
    first := heard[0]
    snoopMu.Unlock()
    if first.Target != 200 || first.Origin != 100 || first.NextHop != 0 || first.TTL != 4 {
        t.Fatalf("initial frame = %+v", first)
    }

    // 200 acknowledges to 100, unicast back along the learned route
    waitFor(t, "ack from 200", func() bool {
        snoopMu.Lock()
        defer snoopMu.Unlock()
        for _, p := range heard {
            if p.Type == protocol.TypeAck && p.Origin == 200 && p.Target == 100 {
                if p.NextHop != 150 {
                    t.Fatalf("ack next hop = %d, want the learned hop 150", p.NextHop)
                }
                return true
            }
        }
        return false
    })

    // and the ack makes it home: 100 now knows a route to 200
    waitFor(t, "route to 200 at 100", func() bool {
        for _, id := range a.KnownNodes() {
            if id == 200 {
                return true
            }
        }
        return false
    })
}

func TestDiscoveryPopulatesRoutes(t *testing.T) {
    ch := memradio.NewChannel()
    a := newTestNode(t, ch, 1)
    b := newTestNode(t, ch, 2)
    ch.LinkAll()

    var foundMu sync.Mutex
    found := map[int32]int{}
    a.OnNodeFound(func(id int32) {
        foundMu.Lock()
        found[id]++
        foundMu.Unlock()
    })

    a.Discover()

    waitFor(t, "mutual route knowledge", func() bool {
        return len(a.KnownNodes()) == 1 && len(b.KnownNodes()) == 1
    })
    if a.KnownNodes()[0] != 2 || b.KnownNodes()[0] != 1 {
        t.Fatalf("routes: a=%v b=%v", a.KnownNodes(), b.KnownNodes())
    }

    // more probes must not re-announce a known node
    a.Discover()
    settle()
    foundMu.Lock()
    defer foundMu.Unlock()
    if found[2] != 1 {
        t.Fatalf("node 2 announced %d times", found[2])
    }
}

func TestBystanderDoesNotForwardUnicast(t *testing.T) {
    // everyone hears everyone; once routes exist, a unicast from A to C
    // names C as next hop and B must stay silent
    ch := memradio.NewChannel()
    a := newTestNode(t, ch, 1)
    b := newTestNode(t, ch, 2)
    cBox := &inbox{}
    c := newTestNode(t, ch, 3)
    c.OnString(cBox.handler)
    bBox := &inbox{}
    b.OnString(bBox.handler)
    ch.LinkAll()

    a.Discover()
    waitFor(t, "routes at A", func() bool { return len(a.KnownNodes()) == 2 })
    settle()

    before := ch.Transmissions()
    a.SendStringTo(3, "direct")
    waitFor(t, "delivery at C", func() bool { return cBox.count() == 1 })
    settle()

    // data frame plus C's ack; B forwards neither
    if delta := ch.Transmissions() - before; delta != 2 {
        t.Fatalf("transmissions delta = %d, want 2", delta)
    }
    if bBox.count() != 0 {
        t.Fatal("unicast for C delivered at B")
    }
}

func TestMessageIDsIncrement(t *testing.T) {
    ch := memradio.NewChannel()
    a := newTestNode(t, ch, 1)
    var mu sync.Mutex
    var ids []uint16
    snoop := ch.Join(9)
    snoop.Subscribe(func(frame []byte, sender int32, rssi int8) {
        if p, err := protocol.Decode(frame); err == nil {
            mu.Lock()
            ids = append(ids, p.MessageID)
            mu.Unlock()
        }
    })
    ch.LinkAll()

    a.SendNumber(1)
    a.SendNumber(2)
    a.SendNumber(3)
    waitFor(t, "three frames", func() bool {
        mu.Lock()
        defer mu.Unlock()
        return len(ids) == 3
    })
    mu.Lock()
    defer mu.Unlock()
    if ids[0] != 1 || ids[1] != 2 || ids[2] != 3 {
        t.Fatalf("message ids = %v", ids)
    }
}

func TestNumberDelivery(t *testing.T) {
    ch := memradio.NewChannel()
    a := newTestNode(t, ch, 1)
    b := newTestNode(t, ch, 2)
    ch.LinkAll()

    got := make(chan int32, 1)
    b.OnNumber(func(src int32, n int32) {
        if src == 1 {
            got <- n
        }
    })
    a.SendNumber(-12345)
    select {
    case n := <-got:
        if n != -12345 {
            t.Fatalf("n = %d", n)
        }
    case <-time.After(3 * time.Second):
        t.Fatal("number never delivered")
    }
}
