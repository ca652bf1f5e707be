package fat32

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// buildFakeDisk constructs a minimal but complete FAT32 image: one MBR
// sector, a partition starting at physical sector 1 with 1 reserved
// sector (the EBPB), a 1-sector FAT, a 1-sector-per-cluster root
// directory holding one file and one subdirectory, the file's single
// data cluster, and the subdirectory's single (empty) data cluster.
func buildFakeDisk(t *testing.T) []byte {
	t.Helper()
	const sectorSize = 512
	// Physical layout: 0=MBR, 1=EBPB, 2=FAT, 3=root dir, 4=file data, 5=subdir data.
	disk := make([]byte, sectorSize*6)

	copy(disk[0:], buildMBR([4]partitionEntry{
		{bootIndicator: 0x80, partitionType: partitionTypeFAT32LBA, relativeSector: 1, totalSectors: 5},
	}))
	copy(disk[sectorSize:], buildEBPB(sectorSize, 1 /*sectorsPerCluster*/, 1 /*reserved*/, 1 /*numFATs*/, 1 /*sectorsPerFAT*/, 2 /*rootCluster*/))

	fat := disk[sectorSize*2 : sectorSize*3]
	putLE32(fat[2*4:], 0x0FFFFFFF) // cluster 2 (root dir): EOC
	putLE32(fat[3*4:], 0x0FFFFFFF) // cluster 3 (file data): EOC
	putLE32(fat[4*4:], 0x0FFFFFFF) // cluster 4 (subdir data): EOC

	root := disk[sectorSize*3 : sectorSize*4]
	copy(root[0:], buildShortEntry("HELLO", "TXT", 0x20, 3, 5))
	copy(root[dirEntrySize:], buildShortEntry("SUBDIR", "", attrDirByte(), 4, 0))

	copy(disk[sectorSize*4:], []byte("hello"))

	return disk
}

func TestMountAndOpenReadsRootDirectory(t *testing.T) {
	dev := NewSliceDevice(buildFakeDisk(t), 512)
	fs, err := Mount(dev)
	require.NoError(t, err)

	f, err := fs.Open("/")
	require.NoError(t, err)
	assert.True(t, f.IsDir())

	names, err := f.Readdir()
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"HELLO.TXT", "SUBDIR"}, names)
}

func TestOpenReadsFileContents(t *testing.T) {
	dev := NewSliceDevice(buildFakeDisk(t), 512)
	fs, err := Mount(dev)
	require.NoError(t, err)

	f, err := fs.Open("/HELLO.TXT")
	require.NoError(t, err)
	assert.False(t, f.IsDir())

	size, err := f.Size()
	require.NoError(t, err)
	assert.EqualValues(t, 5, size)

	buf := make([]byte, 5)
	n, err := f.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(buf[:n]))
}

func TestOpenIsCaseInsensitive(t *testing.T) {
	dev := NewSliceDevice(buildFakeDisk(t), 512)
	fs, err := Mount(dev)
	require.NoError(t, err)

	_, err = fs.Open("/hello.txt")
	assert.NoError(t, err)
}

func TestOpenDescendsIntoSubdirectory(t *testing.T) {
	dev := NewSliceDevice(buildFakeDisk(t), 512)
	fs, err := Mount(dev)
	require.NoError(t, err)

	f, err := fs.Open("/SUBDIR")
	require.NoError(t, err)
	assert.True(t, f.IsDir())
}

func TestOpenMissingPathReturnsError(t *testing.T) {
	dev := NewSliceDevice(buildFakeDisk(t), 512)
	fs, err := Mount(dev)
	require.NoError(t, err)

	_, err = fs.Open("/NOPE.TXT")
	assert.Error(t, err)
}

func TestOpenThroughAFileComponentIsAnError(t *testing.T) {
	dev := NewSliceDevice(buildFakeDisk(t), 512)
	fs, err := Mount(dev)
	require.NoError(t, err)

	_, err = fs.Open("/HELLO.TXT/anything")
	assert.Error(t, err)
}

func TestFileIsReadOnly(t *testing.T) {
	dev := NewSliceDevice(buildFakeDisk(t), 512)
	fs, err := Mount(dev)
	require.NoError(t, err)

	f, err := fs.Open("/HELLO.TXT")
	require.NoError(t, err)
	assert.False(t, f.IsWritable())
	_, err = f.Write([]byte("x"))
	assert.Error(t, err)
}
