package saleae

import (
	"context"
	"fmt"

	"github.com/google/gousb"
)

const (
	// endpoint numbers of the Logic firmware: commands out on 1,
	// samples in on 2 (0x82)
	cmdEndpointNum    = 1
	sampleEndpointNum = 2

	// transferSize is the buffer size of each in-flight bulk IN transfer.
	transferSize = 4096
)

// hasFirmware checks a device descriptor against the Logic firmware's
// configuration: one configuration, one interface, one altsetting, two
// endpoints (legacy firmware) or four (new firmware), with endpoint 1 OUT
// and endpoint 2 IN present.  Descriptor order is not preserved by the USB
// stack here, so the endpoints are matched by address.
func hasFirmware(desc *gousb.DeviceDesc) (ok, newFirmware bool) {
	if len(desc.Configs) != 1 {
		return false, false
	}
	var cfg gousb.ConfigDesc
	for _, c := range desc.Configs {
		cfg = c
	}
	if len(cfg.Interfaces) != 1 {
		return false, false
	}
	intf := cfg.Interfaces[0]
	if len(intf.AltSettings) != 1 {
		return false, false
	}
	alt := intf.AltSettings[0]

	switch len(alt.Endpoints) {
	case 2:
		// old firmware
	case 4:
		newFirmware = true
	default:
		// other endpoint counts are some other device entirely
		return false, false
	}

	var haveOut, haveIn bool
	for _, ep := range alt.Endpoints {
		switch byte(ep.Address) & 0x8f {
		case cmdEndpointNum: // 1 | OUT
			haveOut = true
		case 0x80 | sampleEndpointNum: // 2 | IN
			haveIn = true
		}
	}
	if !haveOut || !haveIn {
		return false, false
	}
	return true, newFirmware
}

// openDevice locates the device on the bus by its post-firmware IDs and
// opens and claims it.  During renumeration the device is identified by its
// position among same-typed devices (skip counting); once fully enumerated
// it is identified by bus and address.
func (d *Driver) openDevice(dev *Device, index int) error {
	if dev.status == StatusActive {
		return fmt.Errorf("%w: device %d already in use", ErrBug, index)
	}

	matches, err := d.ctx.OpenDevices(func(desc *gousb.DeviceDesc) bool {
		return desc.Vendor == dev.profile.FwVID && desc.Product == dev.profile.FwPID
	})
	if err != nil && len(matches) == 0 {
		return fmt.Errorf("device scan failed: %w", err)
	}

	var chosen *gousb.Device
	skip := 0
	for _, m := range matches {
		if chosen != nil {
			m.Close()
			continue
		}
		switch dev.status {
		case StatusInitializing:
			// Skip devices of this type that aren't the one we want.
			if skip != index {
				skip++
				m.Close()
				continue
			}
			chosen = m
		case StatusInactive:
			// Fully enumerated, so find it by bus and address.
			if m.Desc.Bus != dev.bus || m.Desc.Address != dev.address {
				m.Close()
				continue
			}
			chosen = m
		default:
			m.Close()
		}
	}
	if chosen == nil {
		return ErrDeviceNotFound
	}

	if err := d.claim(dev, chosen); err != nil {
		chosen.Close()
		return err
	}

	if dev.address == unknownAddress {
		// First touch after firmware upload; the address was not known
		// until now.
		dev.bus = chosen.Desc.Bus
		dev.address = chosen.Desc.Address
	}
	dev.status = StatusActive
	dev.log.Infof("opened device %d on %d.%d interface %d",
		dev.Index, dev.bus, dev.address, d.cfg.USBInterface)
	return nil
}

// claim takes the configured USB configuration and interface and resolves
// both bulk endpoints.
func (d *Driver) claim(dev *Device, usbdev *gousb.Device) error {
	if err := usbdev.SetAutoDetach(true); err != nil {
		// not fatal on all platforms
		dev.log.WithError(err).Debug("auto-detach not available")
	}
	cfg, err := usbdev.Config(d.cfg.USBConfiguration)
	if err != nil {
		return fmt.Errorf("unable to set configuration %d: %w", d.cfg.USBConfiguration, err)
	}
	intf, err := cfg.Interface(d.cfg.USBInterface, 0)
	if err != nil {
		cfg.Close()
		return fmt.Errorf("unable to claim interface %d: %w", d.cfg.USBInterface, err)
	}
	epOut, err := intf.OutEndpoint(cmdEndpointNum)
	if err != nil {
		intf.Close()
		cfg.Close()
		return fmt.Errorf("no command endpoint: %w", err)
	}
	epIn, err := intf.InEndpoint(sampleEndpointNum)
	if err != nil {
		intf.Close()
		cfg.Close()
		return fmt.Errorf("no sample endpoint: %w", err)
	}
	dev.dev = usbdev
	dev.cfg = cfg
	dev.intf = intf
	dev.epOut = epOut
	dev.epIn = epIn
	return nil
}

// release undoes claim and closes the device handle.
func (dev *Device) release() {
	if !dev.open() {
		return
	}
	if dev.intf != nil {
		dev.intf.Close()
		dev.intf = nil
	}
	if dev.cfg != nil {
		dev.cfg.Close()
		dev.cfg = nil
	}
	dev.dev.Close()
	dev.dev = nil
	dev.epIn = nil
	dev.epOut = nil
	dev.status = StatusInactive
}

// transferSource yields completed bulk IN transfers, oldest first.  A
// zero-length slice with nil error is an empty completion: the transfer
// finished without the device supplying data.  The returned slice is only
// valid until the next call.
type transferSource interface {
	Next(ctx context.Context) ([]byte, error)
	Close() error
}

// usbStreamSource adapts a gousb read stream, which keeps a fixed pool of
// transfers in flight, recycles their buffers on completion and preserves
// submission order.
type usbStreamSource struct {
	stream *gousb.ReadStream
	buf    []byte
}

// openSampleStream allocates the in-flight transfer pool on the sample
// endpoint.  Cancelling ctx cancels every pool transfer.
func (dev *Device) openSampleStream(ctx context.Context, transfers int) (transferSource, error) {
	if dev.epIn == nil {
		return nil, ErrNotOpen
	}
	stream, err := dev.epIn.NewStreamContext(ctx, transferSize, transfers)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalloc, err)
	}
	return &usbStreamSource{stream: stream, buf: make([]byte, transferSize)}, nil
}

func (s *usbStreamSource) Next(_ context.Context) ([]byte, error) {
	n, err := s.stream.Read(s.buf)
	if err != nil {
		return nil, err
	}
	return s.buf[:n], nil
}

func (s *usbStreamSource) Close() error { return s.stream.Close() }
