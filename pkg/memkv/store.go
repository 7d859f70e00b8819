// Package memkv is a small sharded in-memory key/value store with per-key
// TTL. It backs the peer statistics store; values are opaque bytes.
package memkv

import (
    "sync"
    "time"
)

// Options tunes a Store.
type Options struct {
    Shards    int           // shard count, default 16
    CopyOnSet bool          // copy value bytes on write (default true)
    CopyOnGet bool          // copy value bytes on read (default true)
    SweepTick time.Duration // expired-entry sweep period, default 1s
}

func (o Options) withDefaults() Options {
    if o.Shards <= 0 {
        o.Shards = 16
    }
    // copying is the safe default; zero value means "unset" here
    if !o.CopyOnSet {
        o.CopyOnSet = true
    }
    if !o.CopyOnGet {
        o.CopyOnGet = true
    }
    if o.SweepTick <= 0 {
        o.SweepTick = time.Second
    }
    return o
}

// Store holds byte values under string keys with optional expiry.
type Store struct {
    opts    Options
    shards  []shard
    closeCh chan struct{}
    wg      sync.WaitGroup
    nowFn   func() time.Time
}

type shard struct {
    mu sync.RWMutex
    m  map[string]*entry
}

type entry struct {
    val      []byte
    expireAt int64 // unix nano; 0 = never
}

// New creates a Store and starts its sweeper goroutine.
func New(opts Options) *Store {
    opts = opts.withDefaults()
    s := &Store{
        opts:    opts,
        shards:  make([]shard, opts.Shards),
        closeCh: make(chan struct{}),
        nowFn:   time.Now,
    }
    for i := range s.shards {
        s.shards[i].m = make(map[string]*entry)
    }
    s.wg.Add(1)
    go s.sweeper()
    return s
}

// Close stops the sweeper. The store stays readable afterwards.
func (s *Store) Close() {
    select {
    case <-s.closeCh:
        return
    default:
    }
    close(s.closeCh)
    s.wg.Wait()
}

func (s *Store) shardFor(key string) *shard {
    // FNV-1a 64
    var h uint64 = 1469598103934665603
    for i := 0; i < len(key); i++ {
        h ^= uint64(key[i])
        h *= 1099511628211
    }
    return &s.shards[int(h%uint64(len(s.shards)))]
}

func copyIf(b []byte, doCopy bool) []byte {
    if !doCopy || b == nil {
        return b
    }
    out := make([]byte, len(b))
    copy(out, b)
    return out
}

func (s *Store) expired(e *entry, now time.Time) bool {
    return e.expireAt != 0 && now.UnixNano() >= e.expireAt
}

// Set stores val under key. Returns true when the key was created rather
// than overwritten. ttl <= 0 means no expiry.
func (s *Store) Set(key string, val []byte, ttl time.Duration) bool {
    now := s.nowFn()
    var expAt int64
    if ttl > 0 {
        expAt = now.Add(ttl).UnixNano()
    }
    v := copyIf(val, s.opts.CopyOnSet)

    sh := s.shardFor(key)
    sh.mu.Lock()
    prev, existed := sh.m[key]
    created := !existed || s.expired(prev, now)
    sh.m[key] = &entry{val: v, expireAt: expAt}
    sh.mu.Unlock()
    return created
}

// Get returns the value for key, if present and unexpired.
func (s *Store) Get(key string) ([]byte, bool) {
    now := s.nowFn()
    sh := s.shardFor(key)
    sh.mu.RLock()
    e, ok := sh.m[key]
    if !ok || s.expired(e, now) {
        sh.mu.RUnlock()
        return nil, false
    }
    v := copyIf(e.val, s.opts.CopyOnGet)
    sh.mu.RUnlock()
    return v, true
}

// Update applies fn to the current value (nil when absent or expired) and
// stores the result, preserving the entry's expiry. Returning nil from fn
// deletes the key.
func (s *Store) Update(key string, fn func(old []byte) []byte) error {
    now := s.nowFn()
    sh := s.shardFor(key)
    sh.mu.Lock()
    defer sh.mu.Unlock()

    var old []byte
    var expAt int64
    if e, ok := sh.m[key]; ok && !s.expired(e, now) {
        old = e.val
        expAt = e.expireAt
    }
    next := fn(old)
    if next == nil {
        delete(sh.m, key)
        return nil
    }
    sh.m[key] = &entry{val: copyIf(next, s.opts.CopyOnSet), expireAt: expAt}
    return nil
}

// Expire resets the TTL for key. Returns false when the key is absent.
func (s *Store) Expire(key string, ttl time.Duration) bool {
    now := s.nowFn()
    sh := s.shardFor(key)
    sh.mu.Lock()
    defer sh.mu.Unlock()
    e, ok := sh.m[key]
    if !ok || s.expired(e, now) {
        return false
    }
    if ttl > 0 {
        e.expireAt = now.Add(ttl).UnixNano()
    } else {
        e.expireAt = 0
    }
    return true
}

// Delete removes key. Returns true when something was removed.
func (s *Store) Delete(key string) bool {
    sh := s.shardFor(key)
    sh.mu.Lock()
    _, ok := sh.m[key]
    delete(sh.m, key)
    sh.mu.Unlock()
    return ok
}

// Len counts unexpired entries.
func (s *Store) Len() int {
    now := s.nowFn()
    n := 0
    for i := range s.shards {
        sh := &s.shards[i]
        sh.mu.RLock()
        for _, e := range sh.m {
            if !s.expired(e, now) {
                n++
            }
        }
        sh.mu.RUnlock()
    }
    return n
}

// Keys returns the unexpired keys, in no particular order.
func (s *Store) Keys() []string {
    now := s.nowFn()
    var out []string
    for i := range s.shards {
        sh := &s.shards[i]
        sh.mu.RLock()
        for k, e := range sh.m {
            if !s.expired(e, now) {
                out = append(out, k)
            }
        }
        sh.mu.RUnlock()
    }
    return out
}

func (s *Store) sweeper() {
    defer s.wg.Done()
    t := time.NewTicker(s.opts.SweepTick)
    defer t.Stop()
    for {
        select {
        case <-s.closeCh:
            return
        case <-t.C:
            now := s.nowFn()
            for i := range s.shards {
                sh := &s.shards[i]
                sh.mu.Lock()
                for k, e := range sh.m {
                    if s.expired(e, now) {
                        delete(sh.m, k)
                    }
                }
                sh.mu.Unlock()
            }
        }
    }
}
