package fat32

import "fmt"

const (
	mbrSize              = 512
	mbrSignatureOffset   = 510
	mbrPartitionOffset   = 446
	partitionEntrySize   = 16
	partitionTypeFAT32   = 0x0B
	partitionTypeFAT32LBA = 0x0C
)

var validMBRSignature = [2]byte{0x55, 0xAA}

// partitionEntry is one 16-byte MBR partition table entry, field-for-field
// from mbr.rs's PartitionEntry (boot indicator, partition type, LBA start +
// sector count); the CHS start/end bytes are not kept, since this core
// never needs CHS addressing.
type partitionEntry struct {
	bootIndicator  byte
	partitionType  byte
	relativeSector uint32
	totalSectors   uint32
}

func parsePartitionEntry(b []byte) partitionEntry {
	return partitionEntry{
		bootIndicator:  b[0],
		partitionType:  b[4],
		relativeSector: leUint32(b[8:12]),
		totalSectors:   leUint32(b[12:16]),
	}
}

// readMBR reads and validates sector 0, the teacher-independent port of
// mbr.rs's MasterBootRecord::from: bad signature is an error, and every
// partition's boot indicator must be 0x00 or 0x80.
func readMBR(dev BlockDevice) ([4]partitionEntry, error) {
	var entries [4]partitionEntry
	buf := make([]byte, mbrSize)
	if _, err := dev.ReadSector(0, buf); err != nil {
		return entries, fmt.Errorf("fat32: reading MBR: %w", err)
	}
	if buf[mbrSignatureOffset] != validMBRSignature[0] || buf[mbrSignatureOffset+1] != validMBRSignature[1] {
		return entries, fmt.Errorf("fat32: bad MBR signature")
	}
	for i := 0; i < 4; i++ {
		off := mbrPartitionOffset + i*partitionEntrySize
		entries[i] = parsePartitionEntry(buf[off : off+partitionEntrySize])
		if entries[i].bootIndicator != 0x00 && entries[i].bootIndicator != 0x80 {
			return entries, fmt.Errorf("fat32: partition %d has unknown boot indicator 0x%02x", i, entries[i].bootIndicator)
		}
	}
	return entries, nil
}

// findFAT32Partition returns the first partition entry whose type byte
// marks it as FAT32 (0x0B/0x0C, the CHS and LBA variants), the Go
// equivalent of mbr.rs's `get_fat32_partition` helper (not itself present
// in the retrieval pack's mbr.rs, whose TODO leaves that lookup to the
// caller — vfat.rs's `VFat::from` calls it as `mbr.get_fat32_partition()?`).
func findFAT32Partition(entries [4]partitionEntry) (partitionEntry, error) {
	for _, e := range entries {
		if e.partitionType == partitionTypeFAT32 || e.partitionType == partitionTypeFAT32LBA {
			return e, nil
		}
	}
	return partitionEntry{}, fmt.Errorf("fat32: no FAT32 partition found in MBR")
}

func leUint16(b []byte) uint16 { return uint16(b[0]) | uint16(b[1])<<8 }
func leUint32(b []byte) uint32 {
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
}
