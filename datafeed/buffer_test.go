package datafeed

import (
	"bytes"
	"testing"
)

func TestBufferRecordsInOrder(t *testing.T) {
	b := NewBuffer()
	b.Send(NewHeaderPacket(1_000_000, 8))
	b.Send(NewLogicPacket(1, []byte{1, 2, 3}))
	b.Send(NewLogicPacket(1, []byte{4}))
	b.Send(NewEndPacket())

	pkts := b.Packets()
	want := []PacketType{PacketHeader, PacketLogic, PacketLogic, PacketEnd}
	if len(pkts) != len(want) {
		t.Fatalf("got %d packets, want %d", len(pkts), len(want))
	}
	for i, p := range pkts {
		if p.Type != want[i] {
			t.Errorf("packet %d: got %v, want %v", i, p.Type, want[i])
		}
	}
	if !bytes.Equal(b.Bytes(), []byte{1, 2, 3, 4}) {
		t.Errorf("bytes: got %v", b.Bytes())
	}
	if !b.Ended() {
		t.Error("Ended must be true after END")
	}
}

func TestBufferReset(t *testing.T) {
	b := NewBuffer()
	b.Send(NewEndPacket())
	b.Reset()
	if b.Ended() || len(b.Packets()) != 0 || len(b.Bytes()) != 0 {
		t.Error("Reset must discard all state")
	}
}

func TestHeaderPacketContents(t *testing.T) {
	p := NewHeaderPacket(24_000_000, 8)
	if p.Type != PacketHeader || p.Header == nil {
		t.Fatal("malformed header packet")
	}
	if p.Header.FeedVersion != FeedVersion {
		t.Errorf("feed version: got %d, want %d", p.Header.FeedVersion, FeedVersion)
	}
	if p.Header.Samplerate != 24_000_000 || p.Header.NumLogicProbes != 8 {
		t.Errorf("header: %+v", p.Header)
	}
	if p.Header.StartTime.IsZero() {
		t.Error("start time must be set")
	}
}

func TestPacketTypeStrings(t *testing.T) {
	for typ, want := range map[PacketType]string{
		PacketHeader:   "HEADER",
		PacketTrigger:  "TRIGGER",
		PacketLogic:    "LOGIC",
		PacketEnd:      "END",
		PacketType(42): "UNKNOWN",
	} {
		if got := typ.String(); got != want {
			t.Errorf("%d: got %q, want %q", typ, got, want)
		}
	}
}
