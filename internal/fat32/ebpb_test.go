package fat32

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildEBPB(bytesPerSector uint16, sectorsPerCluster uint8, reserved uint16, numFATs uint8, sectorsPerFAT uint32, rootCluster uint32) []byte {
	buf := make([]byte, ebpbSize)
	putLE16(buf[ebpbBytesPerSectorOff:], bytesPerSector)
	buf[ebpbSectorsPerClusOff] = sectorsPerCluster
	putLE16(buf[ebpbReservedSectorsOff:], reserved)
	buf[ebpbNumFATsOff] = numFATs
	putLE32(buf[ebpbSectorsPerFATOff:], sectorsPerFAT)
	putLE32(buf[ebpbRootDirClusterOff:], rootCluster)
	buf[ebpbBootSignatureOff] = 0x55
	buf[ebpbBootSignatureOff+1] = 0xAA
	return buf
}

func putLE16(b []byte, v uint16) {
	b[0] = byte(v)
	b[1] = byte(v >> 8)
}

func TestReadEBPBParsesFields(t *testing.T) {
	dev := NewSliceDevice(buildEBPB(512, 4, 32, 2, 100, 2), 512)
	bpb, err := readEBPB(dev, 0)
	require.NoError(t, err)
	assert.EqualValues(t, 512, bpb.bytesPerSector)
	assert.EqualValues(t, 4, bpb.sectorsPerCluster)
	assert.EqualValues(t, 32, bpb.reservedSectors)
	assert.EqualValues(t, 2, bpb.numFATs)
	assert.EqualValues(t, 100, bpb.sectorsPerFAT)
	assert.EqualValues(t, 2, bpb.rootDirCluster)
}

func TestReadEBPBRejectsBadSignature(t *testing.T) {
	dev := NewSliceDevice(make([]byte, ebpbSize), 512)
	_, err := readEBPB(dev, 0)
	assert.Error(t, err)
}
