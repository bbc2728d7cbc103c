package cmd

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	// Global flags
	verbose  bool
	firmware string
)

var rootCmd = &cobra.Command{
	Use:   "salecap",
	Short: "Capture digital samples from Saleae Logic / Cypress FX2 analyzers",
	Long: `salecap scans the USB bus for Saleae Logic and compatible bare FX2
boards, uploads firmware into blank ones, and streams captured samples to a
file, one byte per sample (bit i = probe i+1).

Examples:
  salecap list                                    # show attached devices
  salecap capture -r 1000000 -n 4096 -o dump.bin  # bounded capture
  salecap capture -t 1=01 -o dump.bin             # wait for 0->1 on probe 1`,
	Version: "1.0.0",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if verbose {
			logrus.SetLevel(logrus.DebugLevel)
		} else {
			logrus.SetLevel(logrus.WarnLevel)
		}
	},
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().StringVar(&firmware, "firmware", "saleae-logic.fw", "firmware image for blank FX2 boards")
}
