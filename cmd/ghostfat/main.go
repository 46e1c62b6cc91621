// ghostfat attaches a virtual FAT16 volume, synthesized from a device
// description, and lets you look at it and upload to it the way a USB
// host would.
package main

import (
	"log"

	"github.com/gokrazy/ghostfat/volumeflag"
	"github.com/spf13/cobra"
)

func main() {
	root := &cobra.Command{
		Use:   "ghostfat",
		Short: "Virtual FAT16 volume synthesizer",
		Long: "Synthesize a FAT16 volume from a device description and interpret the writes a host\n" +
			"makes to it, e.g. to receive firmware uploads through a UF2 bootloader volume.",
		SilenceUsage: true,
	}
	volumeflag.RegisterPflags(root.PersistentFlags())

	root.AddCommand(
		infoCmd(),
		lsCmd(),
		catCmd(),
		dumpCmd(),
		uploadCmd(),
		shellCmd(),
	)

	if err := root.Execute(); err != nil {
		log.Fatal(err)
	}
}
