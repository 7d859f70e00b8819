// Package dedup implements the bounded cache of recently seen message
// fingerprints. Every node checks inbound frames against it; a hit means the
// frame already passed through and is neither delivered nor forwarded again.
// This is the sole loop defense of the mesh, so eviction is strictly FIFO:
// a fingerprint re-seen before 20 newer ones arrive is still suppressed, and
// a hit never refreshes its position.
package dedup

import "sync"

// DefaultCapacity bounds the cache at the size the protocol was tuned for.
const DefaultCapacity = 20

// Ring is a fixed-capacity FIFO of fingerprints with O(1) insert/evict.
// Safe for concurrent use by the receive, forward and discovery paths.
type Ring struct {
    mu    sync.Mutex
    slots []uint32
    head  int // next write position
    size  int
}

// NewRing creates a Ring holding at most capacity fingerprints.
// Non-positive capacities fall back to DefaultCapacity.
func NewRing(capacity int) *Ring {
    if capacity <= 0 {
        capacity = DefaultCapacity
    }
    return &Ring{slots: make([]uint32, capacity)}
}

// Seen reports whether fp is among the retained fingerprints.
func (r *Ring) Seen(fp uint32) bool {
    r.mu.Lock()
    defer r.mu.Unlock()
    for i := 0; i < r.size; i++ {
        if r.slots[i] == fp {
            return true
        }
    }
    return false
}

// Mark records fp, evicting the oldest entry when full.
func (r *Ring) Mark(fp uint32) {
    r.mu.Lock()
    defer r.mu.Unlock()
    r.slots[r.head] = fp
    r.head = (r.head + 1) % len(r.slots)
    if r.size < len(r.slots) {
        r.size++
    }
}

// Len returns the number of retained fingerprints.
func (r *Ring) Len() int {
    r.mu.Lock()
    defer r.mu.Unlock()
    return r.size
}
