// Package udpradio emulates a shared broadcast radio channel over UDP
// multicast. One group is one multicast port, so nodes on different groups
// never hear each other. Each datagram carries a 5-byte preamble in front of
// the mesh frame:
//
//  0 ..3  sender node id (i32, little-endian)
//  4      transmit power (i8, reported to the receiver as rssi)
//
// which gives receivers the immediate-neighbor identity a real radio would
// report in hardware.
package udpradio

import (
    "encoding/binary"
    "errors"
    "fmt"
    "net"
    "sync"

    "go.uber.org/zap"

    "radiomesh/pkg/radio"
)

const (
    preambleSize = 5
    maxDatagram  = 2048
)

// Options configures a Radio.
type Options struct {
    NodeID    int32
    Group     uint8  // radio group, selects the port
    GroupAddr string // multicast group address, default 239.82.77.1
    BasePort  int    // port for group 0, default 42100
    TxPower   int8   // reported as rssi on the far side, default -50
}

func (o Options) withDefaults() Options {
    if o.GroupAddr == "" {
        o.GroupAddr = "239.82.77.1"
    }
    if o.BasePort == 0 {
        o.BasePort = 42100
    }
    if o.TxPower == 0 {
        o.TxPower = -50
    }
    return o
}

// Radio is one node's attachment to the multicast channel.
type Radio struct {
    opts Options

    recvConn *net.UDPConn
    sendConn *net.UDPConn

    mu     sync.RWMutex
    fn     radio.ReceiveFunc
    closed bool
}

// New joins the multicast group for opts.Group and starts the read loop.
func New(opts Options) (*Radio, error) {
    opts = opts.withDefaults()
    group := net.ParseIP(opts.GroupAddr)
    if group == nil || !group.IsMulticast() {
        return nil, fmt.Errorf("udpradio: bad group address %q", opts.GroupAddr)
    }
    gaddr := &net.UDPAddr{IP: group, Port: opts.BasePort + int(opts.Group)}

    recvConn, err := net.ListenMulticastUDP("udp4", nil, gaddr)
    if err != nil {
        return nil, fmt.Errorf("udpradio: join group: %w", err)
    }
    _ = recvConn.SetReadBuffer(1 << 20)

    sendConn, err := net.DialUDP("udp4", nil, gaddr)
    if err != nil {
        _ = recvConn.Close()
        return nil, fmt.Errorf("udpradio: dial group: %w", err)
    }

    r := &Radio{opts: opts, recvConn: recvConn, sendConn: sendConn}
    go r.readLoop()
    zap.L().Info("radio on air",
        zap.Int32("node", opts.NodeID), zap.Uint8("group", opts.Group), zap.String("addr", gaddr.String()))
    return r, nil
}

func (r *Radio) Send(frame []byte) error {
    r.mu.RLock()
    closed := r.closed
    r.mu.RUnlock()
    if closed {
        return errors.New("udpradio: closed")
    }
    buf := make([]byte, preambleSize+len(frame))
    binary.LittleEndian.PutUint32(buf[0:4], uint32(r.opts.NodeID))
    buf[4] = byte(r.opts.TxPower)
    copy(buf[preambleSize:], frame)
    _, err := r.sendConn.Write(buf)
    return err
}

func (r *Radio) Subscribe(fn radio.ReceiveFunc) {
    r.mu.Lock()
    r.fn = fn
    r.mu.Unlock()
}

func (r *Radio) Close() error {
    r.mu.Lock()
    if r.closed {
        r.mu.Unlock()
        return nil
    }
    r.closed = true
    r.mu.Unlock()
    err := r.recvConn.Close()
    if e := r.sendConn.Close(); err == nil {
        err = e
    }
    return err
}

func (r *Radio) readLoop() {
    buf := make([]byte, maxDatagram)
    for {
        n, _, err := r.recvConn.ReadFromUDP(buf)
        if err != nil {
            r.mu.RLock()
            closed := r.closed
            r.mu.RUnlock()
            if !closed {
                zap.L().Warn("radio read failed", zap.Error(err))
            }
            return
        }
        sender, rssi, frame, ok := SplitPreamble(buf[:n])
        if !ok {
            continue
        }
        // multicast loopback delivers our own datagrams; a radio never
        // hears its own transmission
        if sender == r.opts.NodeID {
            continue
        }
        r.mu.RLock()
        fn := r.fn
        r.mu.RUnlock()
        if fn != nil {
            fn(append([]byte(nil), frame...), sender, rssi)
        }
    }
}

// SplitPreamble parses the datagram preamble. Short datagrams are dropped.
func SplitPreamble(b []byte) (sender int32, rssi int8, frame []byte, ok bool) {
    if len(b) < preambleSize {
        return 0, 0, nil, false
    }
    sender = int32(binary.LittleEndian.Uint32(b[0:4]))
    rssi = int8(b[4])
    return sender, rssi, b[preambleSize:], true
}
