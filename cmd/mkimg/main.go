// Command mkimg builds a flashable SD boot image from a compiled kernel
// binary: a fixed header (magic, build-id UUID, payload size, SHA-256
// checksum) followed by the raw kernel bytes, then optionally writes that
// image to a raw block device.
//
// The image is a flat binary, not a filesystem image: spec.md §6.5's
// bootloader loads bytes at a fixed physical address (0x80000) and
// branches to them directly, the same contract internal/xmodem's
// MaxBootImageSize enforces, so there is no FAT32 volume for mkimg to
// build here — that's what internal/fat32 serves at runtime for user
// programs, not for the kernel image itself.
//
// Grounded on ja7ad-consumption/cmd/consumption's cobra root-command
// shape (one command, a flat flag set, RunE doing the work) rather than a
// subcommand tree, since mkimg has exactly one job.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	var o options

	root := &cobra.Command{
		Use:   "mkimg <kernel-binary> <output-image>",
		Short: "Build a flashable nanokernel SD boot image",
		Long: `mkimg wraps a compiled kernel binary in a fixed header (magic, a
fresh build-id UUID, payload size, and a SHA-256 checksum) and writes the
result to an output image file. Pass --flash-device to additionally write
the finished image to a raw block device (e.g. an SD card reader) instead
of only a local file.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			o.inputPath = args[0]
			o.outputPath = args[1]
			return run(o)
		},
	}

	root.Flags().StringVar(&o.flashDevice, "flash-device", "", "raw block device path to additionally write the image to (e.g. /dev/sdb)")
	root.Flags().Uint32Var(&o.loadAddr, "load-addr", defaultLoadAddr, "physical address the bootloader will branch to")

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "mkimg:", err)
		os.Exit(1)
	}
}

type options struct {
	inputPath   string
	outputPath  string
	flashDevice string
	loadAddr    uint32
}
