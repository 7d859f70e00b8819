// Package radio defines the raw shared-channel transport contract the mesh
// engine consumes. A transport carries opaque frames between nodes that hear
// each other and reports the immediate neighbor's id and signal strength for
// every inbound frame; it knows nothing about the protocol inside the frames.
package radio

// ReceiveFunc handles one inbound frame. sender is the immediate neighbor
// that transmitted this copy (not the frame's logical origin) and rssi is
// the received signal strength in dBm, best effort.
type ReceiveFunc func(frame []byte, sender int32, rssi int8)

// Transport is a broadcast radio shared by every node in range.
type Transport interface {
    // Send transmits one frame to every node in range. A failure is
    // non-fatal to the caller; the mesh never retries.
    Send(frame []byte) error

    // Subscribe registers the single inbound frame handler. Frames arriving
    // before Subscribe are dropped.
    Subscribe(fn ReceiveFunc)

    // Close shuts the transport down and stops inbound dispatch.
    Close() error
}
