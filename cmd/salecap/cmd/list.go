package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/izzy84075/sigrok/saleae"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List attached logic analyzers",
	RunE: func(cmd *cobra.Command, args []string) error {
		drv := saleae.New(saleae.Config{Firmware: firmware})
		n, err := drv.Init()
		if err != nil {
			return err
		}
		defer drv.Cleanup()
		if n == 0 {
			fmt.Println("no supported devices found")
			return nil
		}
		for _, dev := range drv.Devices() {
			fmt.Printf("%d: %s %s (%d probes) [%s]\n",
				dev.Index, dev.Profile().Vendor, dev.Profile().Model,
				dev.Profile().NumProbes, dev.Status())
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(listCmd)
}
