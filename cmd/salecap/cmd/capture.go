package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/theckman/yacspin"

	"github.com/izzy84075/sigrok/datafeed"
	"github.com/izzy84075/sigrok/saleae"
)

var (
	captureDevice  int
	captureRate    uint64
	captureSamples uint64
	captureOut     string
	captureTrigs   []string
)

var captureCmd = &cobra.Command{
	Use:   "capture",
	Short: "Stream samples from a device to a file",
	Long: `capture opens the selected device, applies samplerate, sample limit and
trigger configuration, and writes the captured stream to the output file.
With --samples 0 the capture runs until interrupted (Ctrl-C).

Triggers are given per probe as <probe>=<pattern>, pattern over {0,1},
e.g. -t 1=01 -t 3=1.  All patterns are matched stage-by-stage on
consecutive samples.`,
	RunE: runCapture,
}

func init() {
	captureCmd.Flags().IntVarP(&captureDevice, "device", "d", 0, "device index (see: salecap list)")
	captureCmd.Flags().Uint64VarP(&captureRate, "samplerate", "r", 200_000, "samplerate in Hz")
	captureCmd.Flags().Uint64VarP(&captureSamples, "samples", "n", 0, "sample limit, 0 for continuous")
	captureCmd.Flags().StringVarP(&captureOut, "output", "o", "capture.bin", "output file")
	captureCmd.Flags().StringArrayVarP(&captureTrigs, "trigger", "t", nil, "trigger pattern, probe=pattern")
	rootCmd.AddCommand(captureCmd)
}

// parseTriggers turns -t probe=pattern flags into a full probe list with
// all eight probes enabled.
func parseTriggers(specs []string) ([]saleae.ProbeConfig, error) {
	trigs := map[int]string{}
	for _, s := range specs {
		probe, pattern, found := strings.Cut(s, "=")
		if !found {
			return nil, fmt.Errorf("trigger %q: want probe=pattern", s)
		}
		idx, err := strconv.Atoi(probe)
		if err != nil || idx < 1 || idx > 8 {
			return nil, fmt.Errorf("trigger %q: probe index must be 1..8", s)
		}
		trigs[idx] = pattern
	}
	probes := make([]saleae.ProbeConfig, 8)
	for i := range probes {
		probes[i] = saleae.ProbeConfig{Index: i + 1, Enabled: true, Trigger: trigs[i+1]}
	}
	return probes, nil
}

// fileSink writes every LOGIC payload straight to the output file and
// flags completion when END arrives.
type fileSink struct {
	f    *os.File
	n    uint64
	done chan struct{}
}

func (s *fileSink) Send(p datafeed.Packet) {
	switch p.Type {
	case datafeed.PacketLogic:
		s.f.Write(p.Logic.Data)
		s.n += uint64(len(p.Logic.Data))
	case datafeed.PacketTrigger:
		fmt.Fprintln(os.Stderr, "trigger matched")
	case datafeed.PacketEnd:
		close(s.done)
	}
}

func runCapture(cmd *cobra.Command, args []string) error {
	probes, err := parseTriggers(captureTrigs)
	if err != nil {
		return err
	}

	drv := saleae.New(saleae.Config{Firmware: firmware})
	n, err := drv.Init()
	if err != nil {
		return err
	}
	defer drv.Cleanup()
	if n == 0 {
		return fmt.Errorf("no supported devices found")
	}

	// opening can stall for a few seconds while a freshly-flashed FX2
	// renumerates; give the user something to look at
	spinner, _ := yacspin.New(yacspin.Config{
		Frequency:       100 * time.Millisecond,
		CharSet:         yacspin.CharSets[59],
		Suffix:          " opening device",
		SuffixAutoColon: true,
		StopCharacter:   "✓",
		StopColors:      []string{"fgGreen"},
	})
	spinner.Start()
	err = drv.DevOpen(captureDevice)
	spinner.Stop()
	if err != nil {
		return err
	}
	defer drv.DevClose(captureDevice)

	if err := drv.ConfigSet(captureDevice, saleae.CapSamplerate, captureRate); err != nil {
		return err
	}
	if err := drv.ConfigSet(captureDevice, saleae.CapLimitSamples, captureSamples); err != nil {
		return err
	}
	if err := drv.ConfigSet(captureDevice, saleae.CapProbeConfig, probes); err != nil {
		return err
	}

	f, err := os.Create(captureOut)
	if err != nil {
		return err
	}
	defer f.Close()
	sink := &fileSink{f: f, done: make(chan struct{})}

	if err := drv.AcquisitionStart(captureDevice, sink); err != nil {
		return err
	}

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt)
	select {
	case <-sink.done:
		// limit reached or watchdog tripped
	case <-interrupt:
		drv.AcquisitionStop(captureDevice)
		<-sink.done
	}

	fmt.Printf("wrote %d samples to %s\n", sink.n, captureOut)
	return nil
}
