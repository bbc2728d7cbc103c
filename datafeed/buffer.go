package datafeed

import "sync"

// Buffer is a Sink that records the packet stream in memory.  It is safe
// for concurrent use: the acquisition goroutine Sends while a frontend
// polls Packets or Bytes.
type Buffer struct {
	mu      sync.Mutex
	packets []Packet
}

// NewBuffer returns an empty recording sink.
func NewBuffer() *Buffer { return &Buffer{} }

// Send implements Sink.
func (b *Buffer) Send(p Packet) {
	b.mu.Lock()
	b.packets = append(b.packets, p)
	b.mu.Unlock()
}

// Packets returns a snapshot of everything received so far.
func (b *Buffer) Packets() []Packet {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]Packet, len(b.packets))
	copy(out, b.packets)
	return out
}

// Bytes concatenates the payloads of all Logic packets received so far.
func (b *Buffer) Bytes() []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []byte
	for _, p := range b.packets {
		if p.Type == PacketLogic && p.Logic != nil {
			out = append(out, p.Logic.Data...)
		}
	}
	return out
}

// Ended reports whether an END packet has been received.
func (b *Buffer) Ended() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i := len(b.packets) - 1; i >= 0; i-- {
		if b.packets[i].Type == PacketEnd {
			return true
		}
	}
	return false
}

// Reset discards everything recorded so far.
func (b *Buffer) Reset() {
	b.mu.Lock()
	b.packets = nil
	b.mu.Unlock()
}
