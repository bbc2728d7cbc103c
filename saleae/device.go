package saleae

import (
	"time"

	"github.com/google/gousb"
	"github.com/sirupsen/logrus"
)

// Status is the lifecycle state of a discovered device.
type Status int

const (
	// StatusNotFound is reported for indexes with no device behind them.
	StatusNotFound Status = iota
	// StatusInitializing means firmware was just uploaded and the device
	// has not been re-located on the bus yet.
	StatusInitializing
	// StatusInactive means the device is enumerated and ready to open.
	StatusInactive
	// StatusActive means the device is open with a claimed interface.
	StatusActive
)

func (s Status) String() string {
	switch s {
	case StatusInitializing:
		return "initializing"
	case StatusInactive:
		return "inactive"
	case StatusActive:
		return "active"
	}
	return "not found"
}

// unknownAddress is the bus-address sentinel for a device that has just
// received firmware and has not renumerated yet.
const unknownAddress = 0xff

// probeNames covers the largest probe count in the profile table;
// InfoProbeNames slices it down per profile.
var probeNames = []string{
	"0", "1", "2", "3", "4", "5", "6", "7",
	"8", "9", "10", "11", "12", "13", "14", "15",
}

// Device is one discovered FX2 board and all of its acquisition state.
// All mutation after Init happens either on the caller's goroutine
// (open/close/configure) or on the device's acquisition goroutine, never
// both at once.
type Device struct {
	Index   int
	status  Status
	profile *Profile

	// bus location; address is unknownAddress until renumeration ends
	bus     int
	address int

	// open USB state, nil while closed
	dev   *gousb.Device
	cfg   *gousb.Config
	intf  *gousb.Interface
	epIn  *gousb.InEndpoint
	epOut *gousb.OutEndpoint

	// newFirmware selects the divider encoding and rate command byte.
	// It is per device: a bus can carry boards of mixed generations.
	newFirmware bool

	// fwUploaded is when firmware was pushed to this device, zero if it
	// already had firmware at discovery.
	fwUploaded time.Time

	curSamplerate uint64
	limitSamples  uint64
	probeMask     byte
	trigger       triggerMatcher

	acq *acquisition

	log logrus.FieldLogger
}

// Profile returns the static descriptor this device matched.
func (dev *Device) Profile() *Profile { return dev.profile }

// Status returns the device's lifecycle state.
func (dev *Device) Status() Status { return dev.status }

// Samplerate returns the currently configured samplerate, zero before
// configuration.
func (dev *Device) Samplerate() uint64 { return dev.curSamplerate }

func (dev *Device) open() bool { return dev.dev != nil }
