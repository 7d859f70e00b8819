// Package mesh implements the protocol engine: TTL-bounded flooding and
// forwarding, opportunistic route learning, duplicate suppression, discovery
// and unicast acknowledgment. One Engine runs per node; it owns the node's
// route table, dedup ring and message-id counter, and talks to the world
// through an injected radio transport and scheduler.
package mesh

import (
    "context"
    "sync"
    "time"

    "go.uber.org/zap"

    "radiomesh/pkg/dedup"
    "radiomesh/pkg/peers"
    "radiomesh/pkg/protocol"
    "radiomesh/pkg/radio"
    "radiomesh/pkg/routes"
    "radiomesh/pkg/sched"
)

// Config tunes one engine. Zero values fall back to the protocol defaults.
type Config struct {
    NodeID int32

    TTL           uint8         // initial hop budget, default protocol.InitialTTL
    DedupCapacity int           // default dedup.DefaultCapacity
    RouteTimeout  time.Duration // default routes.DefaultTimeout

    HelloMin time.Duration // discovery interval window, default 15s..25s
    HelloMax time.Duration

    AckJitterMin time.Duration // reply jitter window, default 10ms..60ms
    AckJitterMax time.Duration
}

func (c Config) withDefaults() Config {
    if c.TTL == 0 || c.TTL > 7 {
        c.TTL = protocol.InitialTTL
    }
    if c.HelloMin <= 0 {
        c.HelloMin = 15 * time.Second
    }
    if c.HelloMax < c.HelloMin {
        c.HelloMax = c.HelloMin + 10*time.Second
    }
    if c.AckJitterMin <= 0 {
        c.AckJitterMin = 10 * time.Millisecond
    }
    if c.AckJitterMax < c.AckJitterMin {
        c.AckJitterMax = c.AckJitterMin + 50*time.Millisecond
    }
    return c
}

// StringHandler receives application string messages. src is the frame's
// origin, not the immediate neighbor that relayed it.
type StringHandler func(src int32, msg string)

// NumberHandler receives application number messages.
type NumberHandler func(src int32, n int32)

// NodeFoundHandler fires once per newly learned node.
type NodeFoundHandler func(id int32)

// Engine is the per-node protocol state machine.
type Engine struct {
    cfg   Config
    rt    radio.Transport
    clock sched.Scheduler
    table *routes.Table
    seen  *dedup.Ring
    stats *peers.Store // optional

    mu       sync.Mutex
    counter  uint16
    onString StringHandler
    onNumber NumberHandler
    onFound  NodeFoundHandler

    ctx    context.Context
    cancel context.CancelFunc
}

// New builds an engine. stats may be nil when nothing consumes neighbor
// statistics. The engine is inert until Start.
func New(cfg Config, rt radio.Transport, clock sched.Scheduler, stats *peers.Store) *Engine {
    cfg = cfg.withDefaults()
    return &Engine{
        cfg:   cfg,
        rt:    rt,
        clock: clock,
        table: routes.NewTable(cfg.NodeID, cfg.RouteTimeout),
        seen:  dedup.NewRing(cfg.DedupCapacity),
        stats: stats,
    }
}

// Start subscribes to the radio and launches the discovery loop. The engine
// runs until ctx is done or Close is called.
func (e *Engine) Start(ctx context.Context) {
    e.ctx, e.cancel = context.WithCancel(ctx)
    e.rt.Subscribe(e.onFrame)
    go e.clock.Every(e.ctx, e.cfg.HelloMin, e.cfg.HelloMax, e.Discover)
    zap.L().Info("mesh engine started", zap.Int32("node", e.cfg.NodeID))
}

// Close stops the discovery loop and any pending jittered replies.
// The radio itself belongs to the caller.
func (e *Engine) Close() {
    if e.cancel != nil {
        e.cancel()
    }
}

// OnString registers the string message handler (one per engine).
func (e *Engine) OnString(fn StringHandler) {
    e.mu.Lock()
    e.onString = fn
    e.mu.Unlock()
}

// OnNumber registers the number message handler.
func (e *Engine) OnNumber(fn NumberHandler) {
    e.mu.Lock()
    e.onNumber = fn
    e.mu.Unlock()
}

// OnNodeFound registers the new-node handler.
func (e *Engine) OnNodeFound(fn NodeFoundHandler) {
    e.mu.Lock()
    e.onFound = fn
    e.mu.Unlock()
}

// KnownNodes lists every node with a fresh route, ascending.
func (e *Engine) KnownNodes() []int32 {
    return e.table.Active(time.Now())
}

// PeerStats returns neighbor statistics, when a stats store is attached.
func (e *Engine) PeerStats() []peers.Stats {
    if e.stats == nil {
        return nil
    }
    return e.stats.List()
}

// Discover broadcasts a Hello probe to refresh route knowledge.
func (e *Engine) Discover() {
    e.sendTo(0, protocol.TypeHello, protocol.PayloadNone, nil)
}

// SendString broadcasts msg to every reachable node.
func (e *Engine) SendString(msg string) {
    e.sendTo(0, protocol.TypeData, protocol.PayloadString, []byte(msg))
}

// SendNumber broadcasts n to every reachable node.
func (e *Engine) SendNumber(n int32) {
    e.sendTo(0, protocol.TypeData, protocol.PayloadNumber, protocol.NumberPayload(n))
}

// SendStringTo sends msg to target, unicast along a known route or flooded
// with the target set when no route exists yet.
func (e *Engine) SendStringTo(target int32, msg string) {
    e.sendTo(target, protocol.TypeData, protocol.PayloadString, []byte(msg))
}

// SendNumberTo sends n to target.
func (e *Engine) SendNumberTo(target int32, n int32) {
    e.sendTo(target, protocol.TypeData, protocol.PayloadNumber, protocol.NumberPayload(n))
}

// sendTo is the single egress path. Delivery is fire-and-forget: a transport
// failure is logged and dropped, acknowledgment is informative only.
func (e *Engine) sendTo(target int32, typ protocol.Type, pt protocol.PayloadType, payload []byte) {
    e.mu.Lock()
    e.counter++ // uint16, wraps mod 65536
    id := e.counter
    e.mu.Unlock()

    nextHop := int32(0)
    if target != 0 {
        if nh, ok := e.table.NextHop(target, time.Now()); ok {
            nextHop = nh
        }
    }
    frame := protocol.Encode(protocol.Packet{
        Target:      target,
        Origin:      e.cfg.NodeID,
        NextHop:     nextHop,
        MessageID:   id,
        TTL:         e.cfg.TTL,
        Type:        typ,
        PayloadType: pt,
        Payload:     payload,
    })
    e.transmit(frame, nextHop)
}

func (e *Engine) transmit(frame []byte, nextHop int32) {
    if err := e.rt.Send(frame); err != nil {
        zap.L().Warn("radio send failed", zap.Int32("node", e.cfg.NodeID), zap.Error(err))
        return
    }
    if e.stats != nil {
        e.stats.RecordOut(nextHop, len(frame))
    }
}

// onFrame is the single ingress path. It runs each frame to completion on
// the transport's dispatch goroutine; only jittered replies leave it.
func (e *Engine) onFrame(frame []byte, sender int32, rssi int8) {
    p, err := protocol.Decode(frame)
    if err != nil {
        // malformed: drop with no further action
        return
    }
    now := time.Now()
    if e.stats != nil {
        e.stats.Observe(sender, rssi, len(frame), now)
    }

    // Route learning runs for every decodable frame, deduplicated or not:
    // even an irrelevant packet proves where its origin can be reached.
    hops := int(e.cfg.TTL) - int(p.TTL) + 1
    if hops < 1 {
        hops = 1 // forged TTL above the initial budget
    }
    if e.table.Update(p.Origin, sender, hops, now) {
        e.notifyFound(p.Origin)
    }
    if e.table.Update(sender, sender, 1, now) {
        e.notifyFound(sender)
    }

    // Our own packets come back through neighbors that forward them;
    // nothing past route learning applies to them.
    if p.Origin == e.cfg.NodeID {
        return
    }

    fp := protocol.Fingerprint(p.Origin, p.MessageID)
    if e.seen.Seen(fp) {
        return
    }
    e.seen.Mark(fp)

    isBroadcast := p.Target == 0
    isForMe := p.Target == e.cfg.NodeID
    isNextHopForMe := p.NextHop == e.cfg.NodeID || p.NextHop == 0

    if isBroadcast || isForMe {
        e.deliver(&p, isForMe)
    }

    // A unicast packet naming another node as next hop is overheard, not
    // carried: route learning above already took what it offered.
    if p.TTL > 0 && (isBroadcast || (!isForMe && isNextHopForMe)) {
        e.forward(p, now)
    }
}

func (e *Engine) deliver(p *protocol.Packet, isForMe bool) {
    switch p.Type {
    case protocol.TypeData:
        e.mu.Lock()
        onString, onNumber := e.onString, e.onNumber
        e.mu.Unlock()
        switch p.PayloadType {
        case protocol.PayloadString:
            if onString != nil {
                onString(p.Origin, string(p.Payload))
            }
        case protocol.PayloadNumber:
            if onNumber != nil {
                onNumber(p.Origin, p.Number())
            }
        }
        if isForMe {
            e.replyAfterJitter(p.Origin, protocol.TypeAck)
        }
    case protocol.TypeHello:
        e.replyAfterJitter(p.Origin, protocol.TypeHelloAck)
    case protocol.TypeHelloAck, protocol.TypeAck:
        // route learning already happened; nothing to deliver
    }
}

// replyAfterJitter schedules a unicast control reply after a short uniform
// delay, spreading responses from multiple nodes across the shared channel.
func (e *Engine) replyAfterJitter(target int32, typ protocol.Type) {
    ctx := e.ctx
    if ctx == nil {
        ctx = context.Background()
    }
    d := e.clock.Uniform(e.cfg.AckJitterMin, e.cfg.AckJitterMax)
    go func() {
        if !e.clock.Sleep(ctx, d) {
            return
        }
        e.sendTo(target, typ, protocol.PayloadNone, nil)
    }()
}

// forward re-transmits a packet one hop further. The origin is untouched;
// TTL drops by one and the next hop is recomputed from this node's own
// table rather than inherited from the previous hop.
func (e *Engine) forward(p protocol.Packet, now time.Time) {
    p.TTL--
    p.NextHop = 0
    if p.Target != 0 {
        if nh, ok := e.table.NextHop(p.Target, now); ok {
            p.NextHop = nh
        }
    }
    zap.L().Debug("forwarding",
        zap.Int32("node", e.cfg.NodeID), zap.Int32("origin", p.Origin),
        zap.Int32("target", p.Target), zap.Uint8("ttl", p.TTL))
    e.transmit(protocol.Encode(p), p.NextHop)
}

func (e *Engine) notifyFound(id int32) {
    e.mu.Lock()
    fn := e.onFound
    e.mu.Unlock()
    if fn != nil {
        fn(id)
    }
}
