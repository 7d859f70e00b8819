package identity

import (
    "crypto/ed25519"
    "encoding/base64"
    "testing"

    "radiomesh/pkg/config"
)

func TestGenerateWhenUnconfigured(t *testing.T) {
    pk, id, err := LoadOrGen(config.IdentityConfig{})
    if err != nil {
        t.Fatalf("gen: %v", err)
    }
    if len(pk) != ed25519.PrivateKeySize {
        t.Fatalf("key size = %d", len(pk))
    }
    if id == 0 {
        t.Fatal("node id must never be the broadcast address")
    }
}

func TestStableAcrossLoads(t *testing.T) {
    _, pk, err := ed25519.GenerateKey(nil)
    if err != nil {
        t.Fatal(err)
    }
    c := config.IdentityConfig{PrivateKey: base64.RawURLEncoding.EncodeToString(pk)}

    _, id1, err := LoadOrGen(c)
    if err != nil {
        t.Fatal(err)
    }
    _, id2, err := LoadOrGen(c)
    if err != nil {
        t.Fatal(err)
    }
    if id1 != id2 {
        t.Fatalf("address changed across loads: %d vs %d", id1, id2)
    }
}

func TestDistinctKeysDistinctIDs(t *testing.T) {
    pubA, _, _ := ed25519.GenerateKey(nil)
    pubB, _, _ := ed25519.GenerateKey(nil)
    if NodeIDFromPublicKey(pubA) == NodeIDFromPublicKey(pubB) {
        // a 1-in-4-billion collision would be suspicious in a unit test
        t.Fatal("two fresh keys collapsed to one address")
    }
}
