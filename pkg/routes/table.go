// Package routes holds the per-node distance-vector table of reachable nodes.
// Rows are learned opportunistically from any overheard frame and expire by
// age at read time; nothing sweeps the table in the background.
package routes

import (
    "sort"
    "sync"
    "time"

    "go.uber.org/zap"
)

// DefaultTimeout is how long a route stays active without a refresh.
const DefaultTimeout = 60 * time.Second

// Route maps a destination to the neighbor that last carried its traffic.
type Route struct {
    NodeID   int32
    NextHop  int32
    HopCount int
    LastSeen time.Time
}

// Table is the route store for one node. Safe for concurrent use by the
// receive, forward and discovery paths.
type Table struct {
    mu      sync.Mutex
    localID int32
    timeout time.Duration
    rows    map[int32]Route
}

// NewTable creates an empty table for the node localID. Non-positive timeout
// falls back to DefaultTimeout.
func NewTable(localID int32, timeout time.Duration) *Table {
    if timeout <= 0 {
        timeout = DefaultTimeout
    }
    return &Table{localID: localID, timeout: timeout, rows: make(map[int32]Route)}
}

// Update records that nodeID is reachable via nextHop in hopCount hops.
// Returns true exactly when nodeID was previously unknown, so the caller can
// raise its node-found event once per node rather than once per packet.
//
// An existing row is replaced only when the new path is no longer
// (hopCount <= existing), or when it arrives via the same neighbor; the
// latter refreshes the timestamp even if the hop count momentarily looks
// worse, which keeps a live path from flapping into expiry.
func (t *Table) Update(nodeID, nextHop int32, hopCount int, now time.Time) bool {
    if nodeID == 0 || nodeID == t.localID {
        return false
    }
    t.mu.Lock()
    defer t.mu.Unlock()

    cur, ok := t.rows[nodeID]
    if !ok {
        t.rows[nodeID] = Route{NodeID: nodeID, NextHop: nextHop, HopCount: hopCount, LastSeen: now}
        zap.L().Debug("route learned",
            zap.Int32("node", nodeID), zap.Int32("next_hop", nextHop), zap.Int("hops", hopCount))
        return true
    }
    if hopCount <= cur.HopCount || nextHop == cur.NextHop {
        t.rows[nodeID] = Route{NodeID: nodeID, NextHop: nextHop, HopCount: hopCount, LastSeen: now}
    }
    return false
}

// NextHop returns the neighbor to forward towards target, if a fresh route
// is known. Stale rows read as unknown.
func (t *Table) NextHop(target int32, now time.Time) (int32, bool) {
    t.mu.Lock()
    defer t.mu.Unlock()
    r, ok := t.rows[target]
    if !ok || now.Sub(r.LastSeen) > t.timeout {
        return 0, false
    }
    return r.NextHop, true
}

// Lookup returns the stored row for target regardless of freshness.
func (t *Table) Lookup(target int32) (Route, bool) {
    t.mu.Lock()
    defer t.mu.Unlock()
    r, ok := t.rows[target]
    return r, ok
}

// Active returns the ids of all non-expired rows in ascending order.
// Filtering is a pure query; expired rows stay stored until overwritten.
func (t *Table) Active(now time.Time) []int32 {
    t.mu.Lock()
    defer t.mu.Unlock()
    out := make([]int32, 0, len(t.rows))
    for id, r := range t.rows {
        if now.Sub(r.LastSeen) <= t.timeout {
            out = append(out, id)
        }
    }
    sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
    return out
}

// Len returns the number of stored rows, stale ones included.
func (t *Table) Len() int {
    t.mu.Lock()
    defer t.mu.Unlock()
    return len(t.rows)
}
