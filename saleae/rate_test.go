package saleae

import (
	"errors"
	"testing"
)

func TestDividerValueNewFirmware(t *testing.T) {
	// magic values straight out of the new firmware
	cases := []struct {
		rate uint64
		want byte
	}{
		{24_000_000, 0xe0},
		{16_000_000, 0xd5},
		{12_000_000, 0xe2},
		{8_000_000, 0xd4},
		{4_000_000, 0xda},
		{2_000_000, 0xe6},
		{1_000_000, 0x8e},
		{500_000, 0xfe},
		{250_000, 0x9e},
		{200_000, 0x4e},
	}
	for _, tc := range cases {
		got, err := DividerValue(tc.rate, true)
		if err != nil {
			t.Errorf("%d Hz: unexpected error %v", tc.rate, err)
			continue
		}
		if got != tc.want {
			t.Errorf("%d Hz: got %#02x, want %#02x", tc.rate, got, tc.want)
		}
	}
}

func TestDividerValueLegacyFirmware(t *testing.T) {
	// divider = 48 MHz / rate - 1 for every supported rate
	for _, rate := range SupportedSamplerates {
		got, err := DividerValue(rate, false)
		if err != nil {
			t.Errorf("%d Hz: unexpected error %v", rate, err)
			continue
		}
		want := byte(48_000_000/rate) - 1
		if got != want {
			t.Errorf("%d Hz: got %#02x, want %#02x", rate, got, want)
		}
	}

	// spot checks at both ends
	if d, _ := DividerValue(24_000_000, false); d != 0x01 {
		t.Errorf("24 MHz legacy: got %#02x, want 0x01", d)
	}
	if d, _ := DividerValue(200_000, false); d != 0xef {
		t.Errorf("200 kHz legacy: got %#02x, want 0xef", d)
	}
}

func TestDividerValueRejectsUnsupported(t *testing.T) {
	for _, rate := range []uint64{0, 100, 3_000_000, 48_000_000} {
		for _, newFW := range []bool{false, true} {
			if _, err := DividerValue(rate, newFW); !errors.Is(err, ErrSamplerate) {
				t.Errorf("%d Hz (new=%v): got %v, want ErrSamplerate", rate, newFW, err)
			}
		}
	}
}

func TestConfigSetRejectsUnsupportedRate(t *testing.T) {
	d, dev := newTestDriver(Config{})
	err := d.ConfigSet(0, CapSamplerate, uint64(3_000_000))
	if !errors.Is(err, ErrSamplerate) {
		t.Fatalf("got %v, want ErrSamplerate", err)
	}
	if dev.curSamplerate != 0 {
		t.Errorf("samplerate changed on failed set: %d", dev.curSamplerate)
	}
}

func TestConfigSetRateNeedsOpenDevice(t *testing.T) {
	d, dev := newTestDriver(Config{})
	err := d.ConfigSet(0, CapSamplerate, uint64(1_000_000))
	if !errors.Is(err, ErrNotOpen) {
		t.Fatalf("got %v, want ErrNotOpen", err)
	}
	if dev.curSamplerate != 0 {
		t.Errorf("samplerate changed on failed set: %d", dev.curSamplerate)
	}
}

func TestConfigSetLimitSamples(t *testing.T) {
	d, dev := newTestDriver(Config{})
	if err := d.ConfigSet(0, CapLimitSamples, uint64(4096)); err != nil {
		t.Fatal(err)
	}
	if dev.limitSamples != 4096 {
		t.Errorf("limit: got %d, want 4096", dev.limitSamples)
	}
}

func TestConfigSetTypeChecks(t *testing.T) {
	d, _ := newTestDriver(Config{})
	cases := []struct {
		hwcap Capability
		value interface{}
	}{
		{CapSamplerate, "1 MHz"},
		{CapSamplerate, 1000000}, // int, not uint64
		{CapLimitSamples, -1},
		{CapProbeConfig, "probe 1"},
		{CapContinuous, true}, // not settable
	}
	for _, tc := range cases {
		if err := d.ConfigSet(0, tc.hwcap, tc.value); !errors.Is(err, ErrArg) {
			t.Errorf("cap %d value %T: got %v, want ErrArg", tc.hwcap, tc.value, err)
		}
	}
}
