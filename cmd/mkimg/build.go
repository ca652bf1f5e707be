package main

import (
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"os"

	"github.com/google/uuid"
)

// magic identifies an mkimg-stamped boot image; readable as ASCII in a hex
// dump ("NKIMG001") the way the teacher's own MMIO register dumps favor
// eyeball-recognizable values over opaque numbers.
var magic = [8]byte{'N', 'K', 'I', 'M', 'G', '0', '0', '1'}

// defaultLoadAddr matches the bootloader's fixed load address, spec.md
// §6.5 and internal/xmodem.MaxBootImageSize's 0x80000.
const defaultLoadAddr = 0x80000

// maxPayloadSize mirrors internal/xmodem.MaxBootImageSize: the bootloader
// must not load past 0x4000000 starting at 0x80000. Duplicated as a
// plain constant rather than importing internal/xmodem, which is a
// freestanding-kernel package with no business being a dependency of host
// tooling.
const maxPayloadSize = 0x4000000 - 0x80000

// header is the 64-byte boot-image header mkimg prepends to the raw
// kernel payload. All multi-byte fields are little-endian, matching the
// teacher's own MMIO/struct layout convention throughout kernel.go.
type header struct {
	Magic       [8]byte
	BuildID     [16]byte
	LoadAddr    uint32
	PayloadSize uint32
	Checksum    [32]byte // SHA-256 of the payload
}

func (h header) marshal() []byte {
	buf := make([]byte, 8+16+4+4+32)
	copy(buf[0:8], h.Magic[:])
	copy(buf[8:24], h.BuildID[:])
	binary.LittleEndian.PutUint32(buf[24:28], h.LoadAddr)
	binary.LittleEndian.PutUint32(buf[28:32], h.PayloadSize)
	copy(buf[32:64], h.Checksum[:])
	return buf
}

func run(o options) error {
	payload, err := os.ReadFile(o.inputPath)
	if err != nil {
		return fmt.Errorf("reading kernel binary: %w", err)
	}
	if len(payload) == 0 {
		return fmt.Errorf("kernel binary %s is empty", o.inputPath)
	}
	if len(payload) > maxPayloadSize {
		return fmt.Errorf("kernel binary is %d bytes, exceeds the bootloader's %d-byte limit", len(payload), maxPayloadSize)
	}

	buildID := uuid.New()
	sum := sha256.Sum256(payload)

	h := header{
		Magic:       magic,
		BuildID:     buildID,
		LoadAddr:    o.loadAddr,
		PayloadSize: uint32(len(payload)),
		Checksum:    sum,
	}

	image := append(h.marshal(), payload...)

	if err := os.WriteFile(o.outputPath, image, 0o644); err != nil {
		return fmt.Errorf("writing image %s: %w", o.outputPath, err)
	}
	fmt.Printf("mkimg: wrote %s (%d bytes payload, build-id %s, load address 0x%x)\n",
		o.outputPath, len(payload), buildID, o.loadAddr)

	if o.flashDevice != "" {
		if err := flashToDevice(o.flashDevice, image); err != nil {
			return fmt.Errorf("flashing %s: %w", o.flashDevice, err)
		}
		fmt.Printf("mkimg: flashed %s to %s\n", o.outputPath, o.flashDevice)
	}

	return nil
}
