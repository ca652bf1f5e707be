package fat32

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildMBR(partitions [4]partitionEntry) []byte {
	buf := make([]byte, mbrSize)
	for i, p := range partitions {
		off := mbrPartitionOffset + i*partitionEntrySize
		buf[off] = p.bootIndicator
		buf[off+4] = p.partitionType
		putLE32(buf[off+8:off+12], p.relativeSector)
		putLE32(buf[off+12:off+16], p.totalSectors)
	}
	buf[mbrSignatureOffset] = 0x55
	buf[mbrSignatureOffset+1] = 0xAA
	return buf
}

func putLE32(b []byte, v uint32) {
	b[0] = byte(v)
	b[1] = byte(v >> 8)
	b[2] = byte(v >> 16)
	b[3] = byte(v >> 24)
}

func TestReadMBRRejectsBadSignature(t *testing.T) {
	dev := NewSliceDevice(make([]byte, mbrSize), 512)
	_, err := readMBR(dev)
	assert.Error(t, err)
}

func TestReadMBRRejectsUnknownBootIndicator(t *testing.T) {
	var parts [4]partitionEntry
	parts[0] = partitionEntry{bootIndicator: 0x7F, partitionType: partitionTypeFAT32}
	dev := NewSliceDevice(buildMBR(parts), 512)
	_, err := readMBR(dev)
	assert.Error(t, err)
}

func TestReadMBRParsesPartitionTable(t *testing.T) {
	var parts [4]partitionEntry
	parts[1] = partitionEntry{bootIndicator: 0x80, partitionType: partitionTypeFAT32LBA, relativeSector: 2048, totalSectors: 65536}
	dev := NewSliceDevice(buildMBR(parts), 512)
	got, err := readMBR(dev)
	require.NoError(t, err)
	assert.Equal(t, parts[1], got[1])
}

func TestFindFAT32PartitionReturnsFirstMatch(t *testing.T) {
	var parts [4]partitionEntry
	parts[0] = partitionEntry{partitionType: 0x07} // NTFS, not a match
	parts[2] = partitionEntry{partitionType: partitionTypeFAT32, relativeSector: 100}
	got, err := findFAT32Partition(parts)
	require.NoError(t, err)
	assert.EqualValues(t, 100, got.relativeSector)
}

func TestFindFAT32PartitionErrorsWhenNoneFound(t *testing.T) {
	var parts [4]partitionEntry
	_, err := findFAT32Partition(parts)
	assert.Error(t, err)
}
