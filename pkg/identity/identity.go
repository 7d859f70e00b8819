// Package identity derives the node's stable mesh address. The address is a
// non-zero int32 hashed from an ed25519 public key, so a node keeps its
// identity across restarts as long as the key is persisted.
package identity

import (
    "crypto/ed25519"
    "crypto/rand"
    "encoding/base64"
    "hash/fnv"
    "os"
    "strings"

    "go.uber.org/zap"

    "radiomesh/pkg/config"
)

// LoadOrGen loads an ed25519 private key from config or generates a new one,
// and returns it with the derived mesh address.
func LoadOrGen(c config.IdentityConfig) (ed25519.PrivateKey, int32, error) {
    var pk ed25519.PrivateKey
    // From base64
    if s := strings.TrimSpace(c.PrivateKey); s != "" {
        if b, err := base64.RawURLEncoding.DecodeString(s); err == nil {
            pk = ed25519.PrivateKey(b)
        } else {
            zap.L().Warn("failed to decode identity.private_key", zap.Error(err))
        }
    }
    // From file
    if pk == nil && strings.TrimSpace(c.PrivateKeyFile) != "" {
        if b, err := os.ReadFile(c.PrivateKeyFile); err == nil {
            txt := strings.TrimSpace(string(b))
            if db, err := base64.RawURLEncoding.DecodeString(txt); err == nil {
                pk = ed25519.PrivateKey(db)
            } else {
                // assume raw bytes
                pk = ed25519.PrivateKey(b)
            }
        } else {
            zap.L().Warn("failed to read identity.private_key_file", zap.Error(err))
        }
    }
    // Generate
    if pk == nil {
        _, gen, err := ed25519.GenerateKey(rand.Reader)
        if err != nil {
            return nil, 0, err
        }
        pk = gen
        zap.L().Info("generated new ed25519 identity (persist to config identity.private_key)",
            zap.String("key_b64", base64.RawURLEncoding.EncodeToString(gen)))
    }
    pub := pk.Public().(ed25519.PublicKey)
    return pk, NodeIDFromPublicKey(pub), nil
}

// NodeIDFromPublicKey hashes pub into a mesh address. 0 is the broadcast
// address and never returned.
func NodeIDFromPublicKey(pub ed25519.PublicKey) int32 {
    h := fnv.New32a()
    _, _ = h.Write(pub)
    id := int32(h.Sum32())
    if id == 0 {
        id = 1
    }
    return id
}
