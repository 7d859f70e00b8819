// Package peers keeps per-neighbor radio statistics: when a node was last
// heard, at what signal strength, and how much traffic moved. The data is
// purely observational (routing decisions live in pkg/routes) and entries
// fall out on their own after an inactivity TTL.
package peers

import (
    "fmt"
    "sort"
    "time"

    "github.com/fxamacker/cbor/v2"
    "go.uber.org/zap"

    "radiomesh/pkg/memkv"
)

// inactivity TTL before a peer record is dropped by the KV sweeper
const defaultPeerTTL = 5 * time.Minute

// Stats is the stored record for one peer. Values are CBOR on the wire of
// the KV store to keep them compact.
type Stats struct {
    ID        int32  `cbor:"1,keyasint"`
    LastSeen  int64  `cbor:"2,keyasint"` // unix ms
    RSSI      int8   `cbor:"3,keyasint"` // last reported signal strength, dBm
    FramesIn  uint64 `cbor:"4,keyasint"`
    FramesOut uint64 `cbor:"5,keyasint"`
    BytesIn   uint64 `cbor:"6,keyasint"`
    BytesOut  uint64 `cbor:"7,keyasint"`
}

// Store persists peer stats in the in-memory KV.
type Store struct {
    kv *memkv.Store
}

func NewStore(kv *memkv.Store) *Store { return &Store{kv: kv} }

func keyPeer(id int32) string { return fmt.Sprintf("peer:%d", id) }

// Observe records one inbound frame heard directly from id.
func (s *Store) Observe(id int32, rssi int8, frameLen int, when time.Time) {
    _ = s.kv.Update(keyPeer(id), func(old []byte) []byte {
        var st Stats
        if old != nil {
            _ = cbor.Unmarshal(old, &st)
        }
        st.ID = id
        st.LastSeen = when.UnixMilli()
        st.RSSI = rssi
        st.FramesIn++
        st.BytesIn += uint64(frameLen)
        b, _ := cbor.Marshal(st)
        return b
    })
    _ = s.kv.Expire(keyPeer(id), defaultPeerTTL)
}

// RecordOut charges one transmitted frame against id (the chosen next hop,
// or 0 for a flood).
func (s *Store) RecordOut(id int32, frameLen int) {
    _ = s.kv.Update(keyPeer(id), func(old []byte) []byte {
        var st Stats
        if old != nil {
            _ = cbor.Unmarshal(old, &st)
        }
        st.ID = id
        st.FramesOut++
        st.BytesOut += uint64(frameLen)
        b, _ := cbor.Marshal(st)
        return b
    })
}

// Get returns the stats for id, if any.
func (s *Store) Get(id int32) (Stats, bool) {
    b, ok := s.kv.Get(keyPeer(id))
    if !ok {
        return Stats{}, false
    }
    var st Stats
    if err := cbor.Unmarshal(b, &st); err != nil {
        zap.L().Warn("corrupt peer record", zap.Int32("peer", id), zap.Error(err))
        return Stats{}, false
    }
    return st, true
}

// List returns all live peer records ordered by id.
func (s *Store) List() []Stats {
    keys := s.kv.Keys()
    out := make([]Stats, 0, len(keys))
    for _, k := range keys {
        b, ok := s.kv.Get(k)
        if !ok {
            continue
        }
        var st Stats
        if err := cbor.Unmarshal(b, &st); err != nil {
            continue
        }
        out = append(out, st)
    }
    sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
    return out
}
