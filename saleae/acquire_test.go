package saleae

import (
	"context"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/izzy84075/sigrok/datafeed"
)

// fakeSource plays back canned transfer completions, then blocks until the
// acquisition context is cancelled, the way a cancelled USB stream would.
type fakeSource struct {
	ctx    context.Context
	bufs   [][]byte
	i      int
	closed bool
}

func (s *fakeSource) Next(context.Context) ([]byte, error) {
	if s.i < len(s.bufs) {
		b := s.bufs[s.i]
		s.i++
		return b, nil
	}
	<-s.ctx.Done()
	return nil, s.ctx.Err()
}

func (s *fakeSource) Close() error {
	s.closed = true
	return nil
}

func newTestDriver(cfg Config) (*Driver, *Device) {
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	d := New(cfg).WithLogger(log)
	dev := &Device{
		Index:   0,
		status:  StatusActive,
		profile: &supportedFX2[0],
		log:     log.WithField("device", 0),
	}
	d.devices = []*Device{dev}
	return d, dev
}

// start wires a fake source to the engine and returns the recording sink.
func start(t *testing.T, d *Driver, dev *Device, bufs [][]byte) (*datafeed.Buffer, *fakeSource) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	src := &fakeSource{ctx: ctx, bufs: bufs}
	sink := datafeed.NewBuffer()
	require.NoError(t, d.beginAcquisition(dev, cancel, src, sink))
	return sink, src
}

func waitEnded(t *testing.T, sink *datafeed.Buffer) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !sink.Ended() {
		if time.Now().After(deadline) {
			t.Fatal("acquisition never emitted END")
		}
		time.Sleep(time.Millisecond)
	}
}

func packetTypes(sink *datafeed.Buffer) []datafeed.PacketType {
	var out []datafeed.PacketType
	for _, p := range sink.Packets() {
		out = append(out, p.Type)
	}
	return out
}

func TestCaptureNoTriggerWithLimit(t *testing.T) {
	d, dev := newTestDriver(Config{})
	dev.curSamplerate = 1_000_000
	dev.limitSamples = 4096
	require.NoError(t, dev.configureProbes(allProbes(nil)))

	sink, src := start(t, d, dev, [][]byte{
		make([]byte, 4096),
		make([]byte, 4096),
	})
	waitEnded(t, sink)

	pkts := sink.Packets()
	require.Equal(t,
		[]datafeed.PacketType{datafeed.PacketHeader, datafeed.PacketLogic, datafeed.PacketLogic, datafeed.PacketEnd},
		packetTypes(sink))
	require.Equal(t, uint64(1_000_000), pkts[0].Header.Samplerate)
	require.Equal(t, 8, pkts[0].Header.NumLogicProbes)
	require.Equal(t, datafeed.FeedVersion, pkts[0].Header.FeedVersion)
	require.Len(t, pkts[1].Logic.Data, 4096)
	require.Len(t, pkts[2].Logic.Data, 4096)

	require.NoError(t, d.AcquisitionStop(0))
	require.True(t, src.closed)
}

func TestCaptureTriggerMidTransfer(t *testing.T) {
	d, dev := newTestDriver(Config{})
	dev.curSamplerate = 4_000_000
	require.NoError(t, dev.configureProbes([]ProbeConfig{
		{Index: 1, Enabled: true, Trigger: "01"},
	}))

	transfer := []byte{0x00, 0x00, 0x01, 0xff, 0x10, 0x20, 0x30, 0x40}
	sink, _ := start(t, d, dev, [][]byte{transfer})

	// wait for the post-trigger packets, then stop explicitly
	deadline := time.Now().Add(2 * time.Second)
	for len(sink.Packets()) < 4 {
		if time.Now().After(deadline) {
			t.Fatal("trigger never fired")
		}
		time.Sleep(time.Millisecond)
	}
	require.NoError(t, d.AcquisitionStop(0))

	pkts := sink.Packets()
	require.Equal(t,
		[]datafeed.PacketType{datafeed.PacketHeader, datafeed.PacketTrigger, datafeed.PacketLogic, datafeed.PacketLogic, datafeed.PacketEnd},
		packetTypes(sink))
	require.Equal(t, []byte{0x00, 0x01}, pkts[2].Logic.Data)
	require.Equal(t, []byte{0xff, 0x10, 0x20, 0x30, 0x40}, pkts[3].Logic.Data)
	require.Equal(t, 1, pkts[2].Logic.Unitsize)
}

func TestCaptureEmptyTransferWatchdog(t *testing.T) {
	d, dev := newTestDriver(Config{MaxEmptyTransfers: 3})
	dev.curSamplerate = 200_000
	require.NoError(t, dev.configureProbes(allProbes(nil)))

	sink, _ := start(t, d, dev, [][]byte{{}, {}, {}, {}})
	waitEnded(t, sink)

	require.Equal(t,
		[]datafeed.PacketType{datafeed.PacketHeader, datafeed.PacketEnd},
		packetTypes(sink))
}

func TestCaptureDropsPreTriggerTransfers(t *testing.T) {
	d, dev := newTestDriver(Config{})
	dev.curSamplerate = 200_000
	require.NoError(t, dev.configureProbes([]ProbeConfig{
		{Index: 1, Enabled: true, Trigger: "1"},
	}))

	// no sample ever sets bit 0, so the matcher keeps searching and every
	// transfer is dropped
	sink, _ := start(t, d, dev, [][]byte{
		{0x00, 0x02, 0x04},
		{0xfe, 0xfe},
	})
	time.Sleep(20 * time.Millisecond)
	require.NoError(t, d.AcquisitionStop(0))

	require.Equal(t,
		[]datafeed.PacketType{datafeed.PacketHeader, datafeed.PacketEnd},
		packetTypes(sink))
}

func TestCaptureLimitOvershootAtMostOneTransfer(t *testing.T) {
	d, dev := newTestDriver(Config{})
	dev.curSamplerate = 200_000
	dev.limitSamples = 5000
	require.NoError(t, dev.configureProbes(allProbes(nil)))

	sink, _ := start(t, d, dev, [][]byte{
		make([]byte, 4096),
		make([]byte, 4096),
		make([]byte, 4096),
	})
	waitEnded(t, sink)

	var total int
	for _, p := range sink.Packets() {
		if p.Type == datafeed.PacketLogic {
			total += len(p.Logic.Data)
		}
	}
	require.Equal(t, 8192, total, "limit may overshoot by at most one transfer")
}

func TestAcquisitionStopIdempotent(t *testing.T) {
	d, dev := newTestDriver(Config{})
	dev.curSamplerate = 200_000
	require.NoError(t, dev.configureProbes(allProbes(nil)))

	sink, _ := start(t, d, dev, nil)
	require.NoError(t, d.AcquisitionStop(0))
	require.NoError(t, d.AcquisitionStop(0))

	require.Equal(t,
		[]datafeed.PacketType{datafeed.PacketHeader, datafeed.PacketEnd},
		packetTypes(sink))
}

func TestAcquisitionStartValidation(t *testing.T) {
	d, dev := newTestDriver(Config{})

	if err := d.AcquisitionStart(0, nil); err == nil {
		t.Error("nil sink should be rejected")
	}
	if err := d.AcquisitionStart(99, datafeed.NewBuffer()); err == nil {
		t.Error("bad index should be rejected")
	}
	dev.status = StatusInactive
	if err := d.AcquisitionStart(0, datafeed.NewBuffer()); err == nil {
		t.Error("unopened device should be rejected")
	}
}

func TestAcquisitionRejectsDoubleStart(t *testing.T) {
	d, dev := newTestDriver(Config{})
	dev.curSamplerate = 200_000
	require.NoError(t, dev.configureProbes(allProbes(nil)))

	start(t, d, dev, nil)
	ctx, cancel := context.WithCancel(context.Background())
	src := &fakeSource{ctx: ctx}
	err := d.beginAcquisition(dev, cancel, src, datafeed.NewBuffer())
	require.Error(t, err)
	require.True(t, src.closed, "rejected start must free its transfer pool")

	require.NoError(t, d.AcquisitionStop(0))
}

// allProbes returns eight enabled probes; triggers maps probe index to a
// pattern.
func allProbes(triggers map[int]string) []ProbeConfig {
	out := make([]ProbeConfig, 8)
	for i := range out {
		out[i] = ProbeConfig{Index: i + 1, Enabled: true, Trigger: triggers[i+1]}
	}
	return out
}
