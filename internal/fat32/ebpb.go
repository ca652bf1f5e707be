package fat32

import "fmt"

const (
	ebpbSize               = 512
	ebpbBootSignatureOff   = 510
	ebpbBytesPerSectorOff  = 11
	ebpbSectorsPerClusOff  = 13
	ebpbReservedSectorsOff = 14
	ebpbNumFATsOff         = 16
	ebpbSectorsPerFATOff   = 36
	ebpbRootDirClusterOff  = 44
)

var validEBPBSignature = [2]byte{0x55, 0xAA}

// biosParameterBlock holds the handful of BPB/EBPB fields this core
// actually needs, the same subset ebpb.rs's BiosParameterBlock marks
// `pub` (bytes_per_sector, sectors_per_cluster, num_reserved_sectors,
// num_fats, sectors_per_fat, root_dir_cluster) — the rest of the 512-byte
// structure (OEM string, boot code, volume label, ...) is read but
// discarded, since nothing downstream of `VFat::from` reads it either.
type biosParameterBlock struct {
	bytesPerSector    uint16
	sectorsPerCluster uint8
	reservedSectors   uint16
	numFATs           uint8
	sectorsPerFAT     uint32
	rootDirCluster    uint32
}

// readEBPB reads sector `sector` (relative to the start of the device,
// matching ebpb.rs's `BiosParameterBlock::from(device, sector)`) and
// validates its boot signature.
func readEBPB(dev BlockDevice, sector uint64) (biosParameterBlock, error) {
	var bpb biosParameterBlock
	buf := make([]byte, ebpbSize)
	if _, err := dev.ReadSector(sector, buf); err != nil {
		return bpb, fmt.Errorf("fat32: reading EBPB: %w", err)
	}
	if buf[ebpbBootSignatureOff] != validEBPBSignature[0] || buf[ebpbBootSignatureOff+1] != validEBPBSignature[1] {
		return bpb, fmt.Errorf("fat32: bad EBPB signature")
	}
	bpb.bytesPerSector = leUint16(buf[ebpbBytesPerSectorOff : ebpbBytesPerSectorOff+2])
	bpb.sectorsPerCluster = buf[ebpbSectorsPerClusOff]
	bpb.reservedSectors = leUint16(buf[ebpbReservedSectorsOff : ebpbReservedSectorsOff+2])
	bpb.numFATs = buf[ebpbNumFATsOff]
	bpb.sectorsPerFAT = leUint32(buf[ebpbSectorsPerFATOff : ebpbSectorsPerFATOff+4])
	bpb.rootDirCluster = leUint32(buf[ebpbRootDirClusterOff : ebpbRootDirClusterOff+4])
	return bpb, nil
}
