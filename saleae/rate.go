package saleae

import (
	"context"
	"fmt"
	"time"
)

// SupportedSamplerates is the full set of rates the Logic firmware can
// produce, slowest first.  The slowest rate is the default applied when a
// device is opened without a configured rate.
var SupportedSamplerates = []uint64{
	200_000,
	250_000,
	500_000,
	1_000_000,
	2_000_000,
	4_000_000,
	8_000_000,
	12_000_000,
	16_000_000,
	24_000_000,
}

// Samplerates describes the device's rate capabilities for InfoSamplerates.
// Step of zero means only the listed rates are valid.
type Samplerates struct {
	Low  uint64
	High uint64
	Step uint64
	List []uint64
}

// DefaultSamplerates is the capability record for every profile in the
// table.
var DefaultSamplerates = Samplerates{
	Low:  200_000,
	High: 24_000_000,
	List: SupportedSamplerates,
}

func samplerateSupported(rate uint64) bool {
	for _, r := range SupportedSamplerates {
		if r == rate {
			return true
		}
	}
	return false
}

// DividerValue maps a samplerate to the one-byte clock divider written to
// the device.  The legacy firmware derives the divider from the 48 MHz
// master clock; the new firmware uses opaque magic values.
func DividerValue(rate uint64, newFirmware bool) (byte, error) {
	if !samplerateSupported(rate) {
		return 0, fmt.Errorf("%w: %d Hz", ErrSamplerate, rate)
	}
	if !newFirmware {
		return byte(48_000_000/rate) - 1, nil
	}
	switch rate {
	case 24_000_000:
		return 0xe0, nil
	case 16_000_000:
		return 0xd5, nil
	case 12_000_000:
		return 0xe2, nil
	case 8_000_000:
		return 0xd4, nil
	case 4_000_000:
		return 0xda, nil
	case 2_000_000:
		return 0xe6, nil
	case 1_000_000:
		return 0x8e, nil
	case 500_000:
		return 0xfe, nil
	case 250_000:
		return 0x9e, nil
	case 200_000:
		return 0x4e, nil
	}
	return 0, fmt.Errorf("%w: %d Hz", ErrSamplerate, rate)
}

const (
	// rate-setting command bytes, one per firmware generation
	rateCmdLegacy = 0x01
	rateCmdNew    = 0xd5

	rateCmdTimeout = 500 * time.Millisecond
)

// setSamplerate validates the rate, encodes the divider for the device's
// firmware generation and writes the two-byte command to OUT endpoint 1.
// The device state is untouched on any failure.
func (d *Driver) setSamplerate(dev *Device, rate uint64) error {
	divider, err := DividerValue(rate, dev.newFirmware)
	if err != nil {
		return err
	}
	if dev.epOut == nil {
		return ErrNotOpen
	}

	cmd := byte(rateCmdLegacy)
	if dev.newFirmware {
		cmd = rateCmdNew
	}
	dev.log.WithField("divider", divider).Infof("setting samplerate to %d Hz", rate)

	ctx, cancel := context.WithTimeout(context.Background(), rateCmdTimeout)
	defer cancel()
	if _, err := dev.epOut.WriteContext(ctx, []byte{cmd, divider}); err != nil {
		return fmt.Errorf("failed to set samplerate: %w", err)
	}
	dev.curSamplerate = rate
	return nil
}
