// Package memradio is an in-process radio channel for tests and simulation.
// A Channel owns the topology: nodes joined to it hear each other only when
// explicitly linked, so multi-hop layouts (A-B-C with A and C out of range)
// are expressed directly. Delivery is asynchronous through a per-node queue,
// mirroring how a real receiver drains its hardware buffer.
package memradio

import (
    "errors"
    "sync"
    "sync/atomic"

    "radiomesh/pkg/radio"
)

// linkRSSI is the nominal signal strength reported for every in-memory hop.
const linkRSSI int8 = -60

// Channel is the shared medium joining any number of simulated radios.
type Channel struct {
    mu    sync.RWMutex
    nodes map[int32]*Radio
    links map[int64]struct{} // symmetric pair key

    transmissions atomic.Int64
}

// NewChannel creates an empty medium.
func NewChannel() *Channel {
    return &Channel{nodes: make(map[int32]*Radio), links: make(map[int64]struct{})}
}

// Join adds a node to the channel and returns its radio.
func (c *Channel) Join(id int32) *Radio {
    r := &Radio{ch: c, id: id, queue: make(chan frame, 256), closed: make(chan struct{})}
    c.mu.Lock()
    c.nodes[id] = r
    c.mu.Unlock()
    go r.pump()
    return r
}

// Link puts a and b in radio range of each other.
func (c *Channel) Link(a, b int32) {
    c.mu.Lock()
    c.links[pairKey(a, b)] = struct{}{}
    c.mu.Unlock()
}

// LinkAll puts every currently joined node in range of every other.
func (c *Channel) LinkAll() {
    c.mu.Lock()
    ids := make([]int32, 0, len(c.nodes))
    for id := range c.nodes {
        ids = append(ids, id)
    }
    for i := range ids {
        for j := i + 1; j < len(ids); j++ {
            c.links[pairKey(ids[i], ids[j])] = struct{}{}
        }
    }
    c.mu.Unlock()
}

// Transmissions counts every Send on the channel, forwards included.
// Tests use it to bound flooding.
func (c *Channel) Transmissions() int64 { return c.transmissions.Load() }

func (c *Channel) broadcast(from int32, data []byte) {
    c.transmissions.Add(1)
    c.mu.RLock()
    defer c.mu.RUnlock()
    for id, r := range c.nodes {
        if id == from {
            continue
        }
        if _, ok := c.links[pairKey(from, id)]; !ok {
            continue
        }
        select {
        case r.queue <- frame{data: data, sender: from}:
        default:
            // receiver buffer overrun: the frame is lost, like on air
        }
    }
}

func pairKey(a, b int32) int64 {
    if a > b {
        a, b = b, a
    }
    return int64(a)<<32 | int64(uint32(b))
}

type frame struct {
    data   []byte
    sender int32
}

// Radio is one node's attachment to the channel.
type Radio struct {
    ch     *Channel
    id     int32
    queue  chan frame
    closed chan struct{}

    mu sync.RWMutex
    fn radio.ReceiveFunc
}

func (r *Radio) Send(data []byte) error {
    select {
    case <-r.closed:
        return errors.New("memradio: closed")
    default:
    }
    cp := append([]byte(nil), data...)
    r.ch.broadcast(r.id, cp)
    return nil
}

func (r *Radio) Subscribe(fn radio.ReceiveFunc) {
    r.mu.Lock()
    r.fn = fn
    r.mu.Unlock()
}

func (r *Radio) Close() error {
    select {
    case <-r.closed:
        return nil
    default:
        close(r.closed)
    }
    r.ch.mu.Lock()
    delete(r.ch.nodes, r.id)
    r.ch.mu.Unlock()
    return nil
}

func (r *Radio) pump() {
    for {
        select {
        case <-r.closed:
            return
        case f := <-r.queue:
            r.mu.RLock()
            fn := r.fn
            r.mu.RUnlock()
            if fn != nil {
                fn(f.data, f.sender, linkRSSI)
            }
        }
    }
}
