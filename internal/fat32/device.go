// Package fat32 implements the read-mostly FAT32 filesystem spec.md §6
// treats as an external collaborator: "an external FAT32 read-only
// provider exposing open(path) -> Entry, where Entry is either a file
// (read/write/seek, plus byte size) or a directory (iteration)".
//
// Grounded on original_source/lib/fat32/src/{mbr,util}.rs and
// vfat/{ebpb,vfat,cache,dir,file,entry,fat,metadata}.rs. The original is a
// generic `VFatHandle`-parameterized design (a trait so the caller can
// plug in any locking strategy); spec.md §6.3's "the core takes a mutex
// around it" fixes that choice, so FileSystem here owns one sync.Mutex
// directly instead of carrying the HANDLE type parameter.
package fat32

import "fmt"

// BlockDevice is the storage this filesystem reads sectors from —
// internal/driver/sd.Device satisfies it directly, and tests use an
// in-memory fake, matching the original's `trait BlockDevice`.
type BlockDevice interface {
	SectorSize() uint64
	ReadSector(sector uint64, buf []byte) (int, error)
}

// sliceDevice is a BlockDevice backed by an in-memory image, used by this
// package's own tests and usable directly for a ramdisk-style boot image.
type sliceDevice struct {
	data       []byte
	sectorSize uint64
}

// NewSliceDevice wraps a raw disk image (e.g. a disk image received over
// XMODEM and held entirely in memory) as a BlockDevice.
func NewSliceDevice(data []byte, sectorSize uint64) BlockDevice {
	return &sliceDevice{data: data, sectorSize: sectorSize}
}

func (d *sliceDevice) SectorSize() uint64 { return d.sectorSize }

func (d *sliceDevice) ReadSector(sector uint64, buf []byte) (int, error) {
	start := sector * d.sectorSize
	if start >= uint64(len(d.data)) {
		return 0, fmt.Errorf("fat32: sector %d out of range", sector)
	}
	end := start + d.sectorSize
	if end > uint64(len(d.data)) {
		end = uint64(len(d.data))
	}
	n := copy(buf, d.data[start:end])
	return n, nil
}
