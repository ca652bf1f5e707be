//go:build linux

package main

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// flashToDevice writes image to the raw block device at path, refusing to
// write past the device's reported capacity. Uses golang.org/x/sys/unix
// directly for the BLKGETSIZE64 ioctl rather than a higher-level disk
// library, the same way gravwell-gravwell's ingesters/canbus talks to a
// raw socket fd through unix syscalls instead of net.
func flashToDevice(path string, image []byte) error {
	f, err := os.OpenFile(path, os.O_WRONLY, 0)
	if err != nil {
		return err
	}
	defer f.Close()

	size, err := unix.IoctlGetUint64(int(f.Fd()), unix.BLKGETSIZE64)
	if err != nil {
		return fmt.Errorf("reading device size: %w", err)
	}
	if uint64(len(image)) > size {
		return fmt.Errorf("image is %d bytes, device %s is only %d bytes", len(image), path, size)
	}

	if _, err := f.Write(image); err != nil {
		return fmt.Errorf("writing image: %w", err)
	}
	return f.Sync()
}
