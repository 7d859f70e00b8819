package protocol

import (
    "encoding/binary"
    "errors"
)

// Fixed header layout (15 bytes) shared by every frame on the channel.
// All integer fields are little-endian.
//
//  0  ..3   Target    i32 (0 = broadcast)
//  4  ..7   Origin    i32 (authoring node, immutable across hops)
//  8  ..11  NextHop   i32 (0 = any neighbor may forward)
//  12 ..13  MessageID u16 (per-origin counter, wraps)
//  14       Flags     bits0-2=TTL, bits3-4=Type, bits5-6=PayloadType
//  15 ..    Payload   0..240 bytes
const (
    HeaderSize = 15
    MaxPayload = 240

    // InitialTTL is the hop budget assigned to every freshly created packet.
    InitialTTL = 4
)

// Type identifies what a frame means to the engine.
type Type uint8

const (
    TypeData Type = iota
    TypeAck
    TypeHello
    TypeHelloAck
)

func (t Type) String() string {
    switch t {
    case TypeData:
        return "data"
    case TypeAck:
        return "ack"
    case TypeHello:
        return "hello"
    case TypeHelloAck:
        return "hello-ack"
    default:
        return "unknown"
    }
}

// PayloadType hints how Payload bytes should be interpreted.
type PayloadType uint8

const (
    PayloadNone PayloadType = iota
    PayloadString
    PayloadNumber
)

func (p PayloadType) String() string {
    switch p {
    case PayloadString:
        return "string"
    case PayloadNumber:
        return "number"
    default:
        return "none"
    }
}

// ErrShortFrame is returned by Decode for frames below the header size.
// The engine drops such frames without further action.
var ErrShortFrame = errors.New("frame shorter than header")

// Packet is the decoded wire frame.
type Packet struct {
    Target      int32
    Origin      int32
    NextHop     int32
    MessageID   uint16
    TTL         uint8
    Type        Type
    PayloadType PayloadType
    Payload     []byte
}

// Encode serializes the packet into a fresh buffer. String payloads longer
// than MaxPayload are truncated silently; the caller is never told.
func Encode(p Packet) []byte {
    payload := p.Payload
    if len(payload) > MaxPayload {
        payload = payload[:MaxPayload]
    }
    buf := make([]byte, HeaderSize+len(payload))
    binary.LittleEndian.PutUint32(buf[0:4], uint32(p.Target))
    binary.LittleEndian.PutUint32(buf[4:8], uint32(p.Origin))
    binary.LittleEndian.PutUint32(buf[8:12], uint32(p.NextHop))
    binary.LittleEndian.PutUint16(buf[12:14], p.MessageID)
    buf[14] = packFlags(p.TTL, p.Type, p.PayloadType)
    copy(buf[HeaderSize:], payload)
    return buf
}

// Decode parses a frame. It fails only on a short buffer; every other input
// is accepted with the flag fields range-masked. Out-of-range or garbage
// data must surface as a dropped packet, never a fault.
func Decode(buf []byte) (Packet, error) {
    if len(buf) < HeaderSize {
        return Packet{}, ErrShortFrame
    }
    ttl, typ, pt := unpackFlags(buf[14])
    p := Packet{
        Target:      int32(binary.LittleEndian.Uint32(buf[0:4])),
        Origin:      int32(binary.LittleEndian.Uint32(buf[4:8])),
        NextHop:     int32(binary.LittleEndian.Uint32(buf[8:12])),
        MessageID:   binary.LittleEndian.Uint16(buf[12:14]),
        TTL:         ttl,
        Type:        typ,
        PayloadType: pt,
    }
    if len(buf) > HeaderSize {
        p.Payload = append([]byte(nil), buf[HeaderSize:]...)
    }
    return p, nil
}

// Number interprets the payload as a signed little-endian 32-bit integer.
func (p *Packet) Number() int32 {
    if len(p.Payload) < 4 {
        return 0
    }
    return int32(binary.LittleEndian.Uint32(p.Payload[:4]))
}

// NumberPayload builds the 4-byte payload for a PayloadNumber packet.
func NumberPayload(n int32) []byte {
    b := make([]byte, 4)
    binary.LittleEndian.PutUint32(b, uint32(n))
    return b
}

// Fingerprint derives the dedup key for a message. Identity is the pair
// (origin, messageID); collisions across distant origins are accepted.
func Fingerprint(origin int32, messageID uint16) uint32 {
    return uint32(origin) ^ uint32(messageID)<<16
}

func packFlags(ttl uint8, t Type, pt PayloadType) byte {
    return (ttl & 0x07) | (byte(t)&0x03)<<3 | (byte(pt)&0x03)<<5
}

func unpackFlags(b byte) (ttl uint8, t Type, pt PayloadType) {
    return b & 0x07, Type(b >> 3 & 0x03), PayloadType(b >> 5 & 0x03)
}
