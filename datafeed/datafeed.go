/*Package datafeed carries captured samples from an acquisition driver to
whatever is consuming them.

A driver emits a stream of packets per acquisition: exactly one Header
first, zero or more Logic packets, at most one Trigger, and exactly one End
as the final packet.  Anything that wants the data implements Sink; the
Buffer type in this package is a Sink that records everything, which is all
most frontends (and all of the tests) need.
*/
package datafeed

import "time"

// FeedVersion is the version of the packet layout emitted by drivers in
// this module.
const FeedVersion = 1

// PacketType discriminates the Packet union.
type PacketType int

// Packet types, in the order they may legally appear in a feed.
const (
	PacketHeader PacketType = iota
	PacketTrigger
	PacketLogic
	PacketEnd
)

func (t PacketType) String() string {
	switch t {
	case PacketHeader:
		return "HEADER"
	case PacketTrigger:
		return "TRIGGER"
	case PacketLogic:
		return "LOGIC"
	case PacketEnd:
		return "END"
	}
	return "UNKNOWN"
}

// Header describes the acquisition that the following Logic packets belong
// to.
type Header struct {
	FeedVersion    int
	StartTime      time.Time
	Samplerate     uint64
	NumLogicProbes int
}

// Logic is a block of captured samples.  Unitsize is the number of bytes
// per sample; len(Data) is always a multiple of it.
type Logic struct {
	Unitsize int
	Data     []byte
}

// Packet is the tagged union sent to a Sink.  Header and Logic are non-nil
// only for their respective types; Trigger and End carry no payload.
type Packet struct {
	Type   PacketType
	Header *Header
	Logic  *Logic
}

// Sink consumes the packet stream of one acquisition.  The HEADER packet is
// sent from the goroutine that starts the acquisition, every later packet
// from the driver's acquisition goroutine; implementations that share state
// with other goroutines must synchronize themselves.
type Sink interface {
	Send(Packet)
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(Packet)

// Send implements Sink.
func (f SinkFunc) Send(p Packet) { f(p) }

// NewHeaderPacket builds the HEADER packet a driver emits at acquisition
// start.
func NewHeaderPacket(samplerate uint64, numProbes int) Packet {
	return Packet{Type: PacketHeader, Header: &Header{
		FeedVersion:    FeedVersion,
		StartTime:      time.Now(),
		Samplerate:     samplerate,
		NumLogicProbes: numProbes,
	}}
}

// NewLogicPacket wraps a block of samples.  The driver hands over ownership
// of data; it will not touch the slice again.
func NewLogicPacket(unitsize int, data []byte) Packet {
	return Packet{Type: PacketLogic, Logic: &Logic{Unitsize: unitsize, Data: data}}
}

// NewTriggerPacket marks the trigger point at transfer granularity.
func NewTriggerPacket() Packet { return Packet{Type: PacketTrigger} }

// NewEndPacket terminates the feed.
func NewEndPacket() Packet { return Packet{Type: PacketEnd} }
