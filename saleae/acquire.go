package saleae

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/izzy84075/sigrok/datafeed"
)

// engine run states
const (
	acqIdle int32 = iota
	acqRunning
	acqStopping
)

// acquisition is the per-device streaming engine state.  Everything except
// state is confined to the engine goroutine.
type acquisition struct {
	state int32 // atomic; one of acqIdle/acqRunning/acqStopping

	src  transferSource
	sink datafeed.Sink

	cancel context.CancelFunc
	done   chan struct{}

	numSamples uint64
	emptyCount int

	maxEmpty int
	logEvery *rate.Limiter
}

// AcquisitionStart allocates the transfer pool on the device's sample
// endpoint and starts streaming to sink.  The HEADER packet is emitted
// before this returns; everything after arrives asynchronously from the
// engine goroutine until the sample limit, a stop call, or the
// empty-transfer watchdog ends the feed with END.
func (d *Driver) AcquisitionStart(index int, sink datafeed.Sink) error {
	dev, err := d.get(index)
	if err != nil {
		return err
	}
	if sink == nil {
		return fmt.Errorf("%w: nil sink", ErrArg)
	}
	if dev.status != StatusActive {
		return ErrNotOpen
	}

	ctx, cancel := context.WithCancel(context.Background())
	src, err := dev.openSampleStream(ctx, d.cfg.NumSimulTransfers)
	if err != nil {
		cancel()
		return err
	}
	return d.beginAcquisition(dev, cancel, src, sink)
}

// beginAcquisition wires an already-open transfer source to the engine.
// Split from AcquisitionStart so the engine can be driven without
// hardware.
func (d *Driver) beginAcquisition(dev *Device, cancel context.CancelFunc, src transferSource, sink datafeed.Sink) error {
	if dev.acq != nil && atomic.LoadInt32(&dev.acq.state) != acqIdle {
		src.Close()
		cancel()
		return fmt.Errorf("%w: acquisition already running", ErrBug)
	}

	// re-arm a configured trigger left fired by an earlier acquisition
	if dev.trigger.mask[0] != 0 {
		dev.trigger.stage = 0
	}

	sink.Send(datafeed.NewHeaderPacket(dev.curSamplerate, dev.profile.NumProbes))

	a := &acquisition{
		state:    acqRunning,
		src:      src,
		sink:     sink,
		cancel:   cancel,
		done:     make(chan struct{}),
		maxEmpty: d.cfg.MaxEmptyTransfers,
		logEvery: rate.NewLimiter(rate.Every(200*time.Millisecond), 5),
	}
	dev.acq = a
	go a.run(dev, dev.log)
	return nil
}

// AcquisitionStop ends the device's acquisition: every in-flight transfer
// is cancelled, the engine drains, and END goes out as the final packet.
// Stop is idempotent and returns only after the engine goroutine has
// exited, so no packet follows it.
func (d *Driver) AcquisitionStop(index int) error {
	dev, err := d.get(index)
	if err != nil {
		return err
	}
	a := dev.acq
	if a == nil {
		return nil
	}
	atomic.CompareAndSwapInt32(&a.state, acqRunning, acqStopping)
	a.cancel()
	<-a.done
	return nil
}

// run is the engine loop: consume completed transfers, feed the trigger
// matcher, emit packets, and enforce the watchdog and the sample limit.
func (a *acquisition) run(dev *Device, log logrus.FieldLogger) {
	defer close(a.done)
	// cancelling the stream context makes sure transfers still in flight
	// are cancelled and freed even when the engine stops itself
	defer a.cancel()
	defer a.src.Close()
	defer atomic.StoreInt32(&a.state, acqIdle)
	defer a.sink.Send(datafeed.NewEndPacket())

	for atomic.LoadInt32(&a.state) == acqRunning {
		buf, err := a.src.Next(context.Background())
		if err != nil {
			if !errors.Is(err, context.Canceled) && !errors.Is(err, io.EOF) {
				log.WithError(err).Error("sample stream failed")
			}
			return
		}

		if len(buf) == 0 {
			a.emptyCount++
			if a.emptyCount > a.maxEmpty {
				// The FX2 gave up. End the acquisition; the
				// frontend will notice the short sample count.
				log.Warn("too many empty transfers, ending acquisition")
				return
			}
			continue
		}
		a.emptyCount = 0

		if a.logEvery.Allow() {
			log.Debugf("transfer: %d bytes", len(buf))
		}

		if !dev.trigger.fired() {
			fired, offset := dev.trigger.scan(buf)
			if !fired {
				// Still searching: this transfer's samples are
				// pre-trigger data and are not retained.
				continue
			}
			a.sink.Send(datafeed.NewTriggerPacket())
			// Send the samples that triggered it, since we're
			// skipping past them.
			a.sink.Send(datafeed.NewLogicPacket(1, dev.trigger.pretrigger()))
			if offset < len(buf) {
				a.sink.Send(datafeed.NewLogicPacket(1, copyBytes(buf[offset:])))
			}
		} else {
			a.sink.Send(datafeed.NewLogicPacket(1, copyBytes(buf)))
		}

		a.numSamples += uint64(len(buf))
		if dev.limitSamples > 0 && a.numSamples > dev.limitSamples {
			log.Infof("sample limit reached after %d samples", a.numSamples)
			return
		}
	}
}

func copyBytes(b []byte) []byte {
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
