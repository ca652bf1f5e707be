// Command xmodemsend transmits a kernel boot image to the nanokernel
// bootloader over a serial port using internal/xmodem's Transmit, and can
// optionally watch a build-output directory and resend automatically
// whenever a new image lands there, for an iterative QEMU/hardware
// development loop.
//
// Grounded on gmofishsauce-wut4/exer/cex/dev/arduino.go for the
// go.bug.st/serial open-port-with-Mode idiom (baud/data-bits/parity/
// stop-bits, EINTR-retry around Read/Write), generalized from that
// package's byte-at-a-time synchronous read/write into the io.ReadWriter
// internal/xmodem.Transmit expects. The directory-watch loop is grounded
// on gravwell-gravwell/filewatch/filewatch.go's fsnotify event-switch
// shape (watcher.Events/watcher.Errors select loop), narrowed from that
// package's multi-file-state tracking down to "a Create or Write event
// for the one path we're watching triggers one resend."
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	var o options

	root := &cobra.Command{
		Use:   "xmodemsend <image>",
		Short: "Send a nanokernel boot image over a serial port via XMODEM",
		Long: `xmodemsend opens a serial port and transmits the given boot image using
the XMODEM (checksum variant) protocol spec.md §6.5 specifies for the
bootloader. With --watch, it instead watches the image's directory and
resends automatically every time a new build of that file is written,
for a tight QEMU edit/rebuild/reboot loop.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			o.imagePath = args[0]
			return run(o)
		},
	}

	root.Flags().StringVar(&o.port, "port", "", "serial device to transmit on (e.g. /dev/ttyUSB0)")
	root.Flags().IntVar(&o.baud, "baud", 115200, "serial baud rate")
	root.Flags().BoolVar(&o.watch, "watch", false, "watch the image's directory and resend on every rebuild")
	root.MarkFlagRequired("port")

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "xmodemsend:", err)
		os.Exit(1)
	}
}

type options struct {
	imagePath string
	port      string
	baud      int
	watch     bool
}
