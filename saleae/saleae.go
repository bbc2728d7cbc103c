/*Package saleae drives Saleae Logic and compatible bare Cypress FX2 logic
analyzers over USB.

The driver follows the device's life on the bus: Init scans for supported
boards and pushes firmware into blank ones, DevOpen waits out the
renumeration and claims the interface, ConfigSet translates samplerate and
trigger requests into device state, and AcquisitionStart streams captured
samples to a datafeed.Sink until a limit, a stop call, or the
empty-transfer watchdog ends the capture.

Sample framing is one byte per sample; bit i carries probe i+1.
*/
package saleae

import (
	"fmt"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/google/gousb"
	"github.com/sirupsen/logrus"
)

// Capability enumerates what the driver can be asked to do via ConfigSet
// and HwcapGetAll.
type Capability int

const (
	// CapLogicAnalyzer marks the device class.
	CapLogicAnalyzer Capability = iota + 1
	// CapSamplerate: ConfigSet value is a uint64 rate in Hz.
	CapSamplerate
	// CapProbeConfig: ConfigSet value is a []ProbeConfig.
	CapProbeConfig
	// CapLimitSamples: ConfigSet value is a uint64 sample count, zero
	// for unbounded.
	CapLimitSamples
	// CapContinuous marks support for unbounded streaming.
	CapContinuous
)

// InfoKey selects what InfoGet returns.
type InfoKey int

const (
	// InfoInstance returns the *Device.
	InfoInstance InfoKey = iota + 1
	// InfoNumProbes returns the profile's probe count as int.
	InfoNumProbes
	// InfoProbeNames returns a []string of probe names.
	InfoProbeNames
	// InfoSamplerates returns the Samplerates capability record.
	InfoSamplerates
	// InfoTriggerTypes returns the trigger character set as a string.
	InfoTriggerTypes
	// InfoCurSamplerate returns the configured rate as uint64.
	InfoCurSamplerate
)

// Config holds the driver tunables.  Zero values are replaced by the
// defaults at construction.
type Config struct {
	// Firmware is the Intel-HEX image pushed into blank FX2 boards.
	Firmware string

	// NumSimulTransfers is the size of the in-flight bulk transfer
	// pool.  More transfers lower the drop risk at high samplerates and
	// cost memory.
	NumSimulTransfers int

	// MaxEmptyTransfers is how many consecutive zero-length completions
	// the watchdog tolerates before ending the acquisition.
	MaxEmptyTransfers int

	// RenumDelay bounds the wait for a device to renumerate after
	// firmware upload.
	RenumDelay time.Duration

	// USBConfiguration and USBInterface to claim.
	USBConfiguration int
	USBInterface     int
}

// DefaultConfig returns the stock tunables.
func DefaultConfig() Config {
	return Config{
		Firmware:          "saleae-logic.fw",
		NumSimulTransfers: 10,
		MaxEmptyTransfers: 10,
		RenumDelay:        3 * time.Second,
		USBConfiguration:  1,
		USBInterface:      0,
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.Firmware == "" {
		c.Firmware = def.Firmware
	}
	if c.NumSimulTransfers == 0 {
		c.NumSimulTransfers = def.NumSimulTransfers
	}
	if c.MaxEmptyTransfers == 0 {
		c.MaxEmptyTransfers = def.MaxEmptyTransfers
	}
	if c.RenumDelay == 0 {
		c.RenumDelay = def.RenumDelay
	}
	if c.USBConfiguration == 0 {
		c.USBConfiguration = def.USBConfiguration
	}
	return c
}

// FirmwareUploadFunc pushes a firmware image into an open, blank device.
type FirmwareUploadFunc func(dev *gousb.Device, configuration int, path string) error

// Driver owns the USB context and the registry of discovered devices.
// There are no process globals: multiple drivers can coexist, and each
// device carries its own firmware-generation flag.
type Driver struct {
	cfg     Config
	log     logrus.FieldLogger
	ctx     *gousb.Context
	devices []*Device
	upload  FirmwareUploadFunc
}

// New builds a driver with the given tunables.  The firmware uploader
// defaults to the ezusb download protocol; see WithUploader.
func New(cfg Config) *Driver {
	return &Driver{
		cfg: cfg.withDefaults(),
		log: logrus.StandardLogger().WithField("driver", "saleae-logic"),
	}
}

// WithLogger replaces the driver's logger.
func (d *Driver) WithLogger(log logrus.FieldLogger) *Driver {
	d.log = log.WithField("driver", "saleae-logic")
	return d
}

// WithUploader replaces the firmware upload implementation.
func (d *Driver) WithUploader(f FirmwareUploadFunc) *Driver {
	d.upload = f
	return d
}

// Init opens the USB subsystem, scans the bus for supported devices and
// uploads firmware into any that lack it.  Per-device failures are logged
// and skipped; the return is the number of candidates registered.
func (d *Driver) Init() (int, error) {
	if d.ctx != nil {
		return len(d.devices), fmt.Errorf("%w: already initialized", ErrBug)
	}
	d.ctx = gousb.NewContext()

	matches, err := d.ctx.OpenDevices(func(desc *gousb.DeviceDesc) bool {
		return matchProfile(desc.Vendor, desc.Product) != nil
	})
	if err != nil {
		// some matching devices may have failed to open; keep the rest
		d.log.WithError(err).Error("device scan reported errors")
	}

	for _, usbdev := range matches {
		prof := matchProfile(usbdev.Desc.Vendor, usbdev.Desc.Product)
		if prof == nil {
			usbdev.Close()
			continue
		}
		dev := &Device{
			Index:   len(d.devices),
			status:  StatusInitializing,
			profile: prof,
			bus:     usbdev.Desc.Bus,
			address: unknownAddress,
			log:     d.log.WithField("device", len(d.devices)),
		}

		if ok, newFW := hasFirmware(usbdev.Desc); ok {
			// Already has the firmware, so the address is final.
			gen := "old"
			if newFW {
				gen = "new"
			}
			dev.log.Debugf("found a Saleae Logic with %s firmware", gen)
			dev.newFirmware = newFW
			dev.status = StatusInactive
			dev.address = usbdev.Desc.Address
		} else if d.uploader() != nil {
			if err := d.uploader()(usbdev, d.cfg.USBConfiguration, d.cfg.Firmware); err != nil {
				dev.log.WithError(err).Error("firmware upload failed")
			} else {
				// Remember when the firmware on this device was
				// updated, so open knows to wait for renumeration.
				dev.fwUploaded = time.Now()
			}
		}
		usbdev.Close()
		d.devices = append(d.devices, dev)
	}
	return len(d.devices), nil
}

// Cleanup stops and closes every device, empties the registry and shuts
// the USB subsystem down.
func (d *Driver) Cleanup() error {
	for _, dev := range d.devices {
		if dev.acq != nil {
			d.AcquisitionStop(dev.Index)
		}
		dev.release()
	}
	d.devices = nil
	if d.ctx != nil {
		err := d.ctx.Close()
		d.ctx = nil
		return err
	}
	return nil
}

// DevOpen opens a device and claims its interface.  For a device that just
// received firmware this waits out the renumeration: the FX2 takes at
// least 300 ms to fall off the bus, then reappears under its new IDs some
// time before RenumDelay elapses.
func (d *Driver) DevOpen(index int) error {
	dev, err := d.get(index)
	if err != nil {
		return err
	}

	if dev.fwUploaded.IsZero() {
		err = d.openDevice(dev, index)
	} else {
		dev.log.Info("waiting for device to reset")
		time.Sleep(300 * time.Millisecond)
		err = backoff.Retry(func() error {
			return d.openDevice(dev, index)
		}, &backoff.ExponentialBackOff{
			InitialInterval:     100 * time.Millisecond,
			RandomizationFactor: 0.,
			Multiplier:          1.,
			MaxInterval:         100 * time.Millisecond,
			MaxElapsedTime:      d.cfg.RenumDelay,
			Clock:               backoff.SystemClock,
		})
		if err == nil {
			dev.log.Infof("device came back after %v", time.Since(dev.fwUploaded).Round(time.Millisecond))
		}
	}
	if err != nil {
		return fmt.Errorf("unable to open device %d: %w", index, err)
	}

	if dev.curSamplerate == 0 {
		// Samplerate hasn't been set; default to the slowest one.
		return d.setSamplerate(dev, SupportedSamplerates[0])
	}
	return nil
}

// DevClose releases the interface and closes the USB handle.  Closing a
// device that is not open is a no-op.
func (d *Driver) DevClose(index int) error {
	dev, err := d.get(index)
	if err != nil {
		return err
	}
	if !dev.open() {
		return nil
	}
	if dev.acq != nil {
		d.AcquisitionStop(index)
	}
	dev.log.Infof("closing device %d on %d.%d interface %d",
		dev.Index, dev.bus, dev.address, d.cfg.USBInterface)
	dev.release()
	return nil
}

// StatusGet reports a device's lifecycle state, StatusNotFound for indexes
// with no device.
func (d *Driver) StatusGet(index int) Status {
	dev, err := d.get(index)
	if err != nil {
		return StatusNotFound
	}
	return dev.status
}

// InfoGet returns a piece of device metadata selected by key.
func (d *Driver) InfoGet(index int, key InfoKey) (interface{}, error) {
	dev, err := d.get(index)
	if err != nil {
		return nil, err
	}
	switch key {
	case InfoInstance:
		return dev, nil
	case InfoNumProbes:
		return dev.profile.NumProbes, nil
	case InfoProbeNames:
		names := make([]string, dev.profile.NumProbes)
		copy(names, probeNames[:dev.profile.NumProbes])
		return names, nil
	case InfoSamplerates:
		return DefaultSamplerates, nil
	case InfoTriggerTypes:
		return TriggerTypes, nil
	case InfoCurSamplerate:
		return dev.curSamplerate, nil
	}
	return nil, fmt.Errorf("%w: info key %d", ErrArg, key)
}

// HwcapGetAll lists the capabilities the driver implements.  LimitSamples
// and Continuous live in the driver, not the hardware.
func (d *Driver) HwcapGetAll() []Capability {
	return []Capability{CapLogicAnalyzer, CapSamplerate, CapLimitSamples, CapContinuous}
}

// ConfigSet applies one configuration value to a device.  Unsupported
// rates and malformed probe configs leave device state untouched.
func (d *Driver) ConfigSet(index int, hwcap Capability, value interface{}) error {
	dev, err := d.get(index)
	if err != nil {
		return err
	}
	switch hwcap {
	case CapSamplerate:
		rate, ok := value.(uint64)
		if !ok {
			return fmt.Errorf("%w: samplerate wants uint64, got %T", ErrArg, value)
		}
		return d.setSamplerate(dev, rate)
	case CapProbeConfig:
		probes, ok := value.([]ProbeConfig)
		if !ok {
			return fmt.Errorf("%w: probe config wants []ProbeConfig, got %T", ErrArg, value)
		}
		return dev.configureProbes(probes)
	case CapLimitSamples:
		limit, ok := value.(uint64)
		if !ok {
			return fmt.Errorf("%w: sample limit wants uint64, got %T", ErrArg, value)
		}
		dev.limitSamples = limit
		return nil
	}
	return fmt.Errorf("%w: capability %d not settable", ErrArg, hwcap)
}

// Devices returns the registry contents, in index order.
func (d *Driver) Devices() []*Device {
	out := make([]*Device, len(d.devices))
	copy(out, d.devices)
	return out
}

func (d *Driver) get(index int) (*Device, error) {
	if index < 0 || index >= len(d.devices) {
		return nil, fmt.Errorf("%w: device index %d", ErrArg, index)
	}
	return d.devices[index], nil
}

func (d *Driver) uploader() FirmwareUploadFunc {
	if d.upload != nil {
		return d.upload
	}
	return defaultUploader
}
