/*Package ezusb loads firmware into Cypress EZ-USB (FX and FX2) devices.

These chips boot with an empty 8051 and expect the host to write a program
image into internal RAM over vendor control transfers, then release the CPU
from reset.  The images ship as Intel-HEX files.

The dance is:
 1. write 0x01 to the CPUCS register (0xE600) to hold the CPU in reset
 2. write each data record of the image to its address
 3. write 0x00 to CPUCS to let the CPU run

After step 3 the device drops off the bus and renumerates under the IDs its
new firmware reports.
*/
package ezusb

import (
	"bufio"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/google/gousb"
)

const (
	// cpucsAddr is the FX2 CPU control/status register.
	cpucsAddr = 0xe600

	// reqFirmwareLoad is the vendor request implemented by the boot ROM
	// for RAM writes.
	reqFirmwareLoad = 0xa0

	// Intel-HEX record types we understand.
	recTypeData = 0x00
	recTypeEOF  = 0x01
)

// Record is one contiguous chunk of image data.
type Record struct {
	Addr uint16
	Data []byte
}

// Image is a parsed firmware image.
type Image struct {
	Records []Record
}

// Size returns the total number of payload bytes in the image.
func (img *Image) Size() int {
	n := 0
	for _, r := range img.Records {
		n += len(r.Data)
	}
	return n
}

// ParseIHEX reads an Intel-HEX image.  Only data and end-of-file records
// are accepted; FX2 images fit in 16 bits of address space, so extended
// address records mean the file is for some other part.
func ParseIHEX(r io.Reader) (*Image, error) {
	img := &Image{}
	sc := bufio.NewScanner(r)
	line := 0
	for sc.Scan() {
		line++
		text := strings.TrimSpace(sc.Text())
		if text == "" {
			continue
		}
		if text[0] != ':' {
			return nil, fmt.Errorf("ezusb: line %d: missing record mark", line)
		}
		raw, err := hex.DecodeString(text[1:])
		if err != nil {
			return nil, fmt.Errorf("ezusb: line %d: %w", line, err)
		}
		if len(raw) < 5 {
			return nil, fmt.Errorf("ezusb: line %d: record too short", line)
		}
		length := int(raw[0])
		if len(raw) != 5+length {
			return nil, fmt.Errorf("ezusb: line %d: length %d does not match record", line, length)
		}

		var sum byte
		for _, b := range raw {
			sum += b
		}
		if sum != 0 {
			return nil, fmt.Errorf("ezusb: line %d: bad checksum", line)
		}

		addr := uint16(raw[1])<<8 | uint16(raw[2])
		switch raw[3] {
		case recTypeData:
			data := make([]byte, length)
			copy(data, raw[4:4+length])
			img.Records = append(img.Records, Record{Addr: addr, Data: data})
		case recTypeEOF:
			return img, nil
		default:
			return nil, fmt.Errorf("ezusb: line %d: unsupported record type 0x%02x", line, raw[3])
		}
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return nil, fmt.Errorf("ezusb: no end-of-file record")
}

// controlOut is the bmRequestType for host-to-device vendor requests.
const controlOut = gousb.ControlOut | gousb.ControlVendor | gousb.ControlDevice

// setReset holds or releases the 8051 via CPUCS.
func setReset(dev *gousb.Device, hold bool) error {
	val := byte(0)
	if hold {
		val = 1
	}
	if _, err := dev.Control(controlOut, reqFirmwareLoad, cpucsAddr, 0, []byte{val}); err != nil {
		return fmt.Errorf("ezusb: CPUCS write failed: %w", err)
	}
	return nil
}

// Upload writes a parsed image into device RAM and starts it.
func Upload(dev *gousb.Device, img *Image) error {
	if err := setReset(dev, true); err != nil {
		return err
	}
	for _, rec := range img.Records {
		if _, err := dev.Control(controlOut, reqFirmwareLoad, rec.Addr, 0, rec.Data); err != nil {
			return fmt.Errorf("ezusb: write of %d bytes at 0x%04x failed: %w", len(rec.Data), rec.Addr, err)
		}
	}
	return setReset(dev, false)
}

// Download parses the image at path, selects the given USB configuration
// and uploads the image.  This is the one-call entry point drivers use.
func Download(dev *gousb.Device, configuration int, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("ezusb: %w", err)
	}
	defer f.Close()

	img, err := ParseIHEX(f)
	if err != nil {
		return err
	}

	cfg, err := dev.Config(configuration)
	if err != nil {
		return fmt.Errorf("ezusb: unable to set configuration %d: %w", configuration, err)
	}
	defer cfg.Close()

	return Upload(dev, img)
}
