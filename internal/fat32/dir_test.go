package fat32

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildShortEntry(name8, ext3 string, attr byte, firstCluster Cluster, size uint32) []byte {
	e := make([]byte, dirEntrySize)
	copy(e[0:8], []byte(name8))
	for i := len(name8); i < 8; i++ {
		e[i] = ' '
	}
	copy(e[8:11], []byte(ext3))
	for i := len(ext3); i < 3; i++ {
		e[8+i] = ' '
	}
	e[11] = attr
	putLE16(e[20:22], uint16(uint32(firstCluster)>>16))
	putLE16(e[26:28], uint16(uint32(firstCluster)&0xFFFF))
	putLE32(e[28:32], size)
	return e
}

func TestParseDirectoryStopsAtEndMarker(t *testing.T) {
	data := append(buildShortEntry("HELLO", "TXT", 0x20, 3, 5), make([]byte, dirEntrySize)...) // second entry is id 0x00
	entries := parseDirectory(data)
	require.Len(t, entries, 1)
	assert.Equal(t, "HELLO.TXT", entries[0].name)
	assert.EqualValues(t, 5, entries[0].size)
	assert.EqualValues(t, 3, entries[0].firstCluster)
}

func TestParseDirectorySkipsDeletedEntries(t *testing.T) {
	deleted := buildShortEntry("GONE", "TXT", 0x20, 4, 1)
	deleted[0] = dirEntryFree
	data := append(deleted, buildShortEntry("LIVE", "TXT", 0x20, 5, 2)...)
	entries := parseDirectory(data)
	require.Len(t, entries, 1)
	assert.Equal(t, "LIVE.TXT", entries[0].name)
}

func TestParseDirectoryOmitsDotWhenExtensionBlank(t *testing.T) {
	data := buildShortEntry("README", "", 0x20, 6, 0)
	entries := parseDirectory(data)
	require.Len(t, entries, 1)
	assert.Equal(t, "README", entries[0].name)
}

func TestParseDirectoryMarksDirectoryAttribute(t *testing.T) {
	data := buildShortEntry("SUBDIR", "", attrDirByte(), 7, 0)
	entries := parseDirectory(data)
	require.Len(t, entries, 1)
	assert.True(t, entries[0].metadata.Attributes.IsDir())
}

func attrDirByte() byte { return byte(attrDir) }

func buildLFNEntry(seq byte, name string) []byte {
	e := make([]byte, dirEntrySize)
	e[0] = seq
	chars := []rune(name)
	utf16Chars := make([]uint16, 13)
	for i := range utf16Chars {
		if i < len(chars) {
			utf16Chars[i] = uint16(chars[i])
		} else if i == len(chars) {
			utf16Chars[i] = 0x0000
		} else {
			utf16Chars[i] = 0xFFFF
		}
	}
	for i := 0; i < 5; i++ {
		putLE16(e[1+i*2:], utf16Chars[i])
	}
	e[11] = dirEntryLFN
	for i := 0; i < 6; i++ {
		putLE16(e[14+i*2:], utf16Chars[5+i])
	}
	for i := 0; i < 2; i++ {
		putLE16(e[28+i*2:], utf16Chars[11+i])
	}
	return e
}

func TestParseDirectoryReassemblesLongFileName(t *testing.T) {
	longName := "a-name-longer-than-eleven-chars.txt"
	// Split across 3 LFN entries, 13 UTF-16 units each, written in reverse
	// sequence order on disk the way Windows actually lays them out
	// (highest sequence number first, physically).
	runes := []rune(longName)
	chunks := [][]rune{}
	for i := 0; i < len(runes); i += 13 {
		end := i + 13
		if end > len(runes) {
			end = len(runes)
		}
		chunks = append(chunks, runes[i:end])
	}
	var data []byte
	for i := len(chunks) - 1; i >= 0; i-- {
		seq := byte(i + 1)
		if i == len(chunks)-1 {
			seq |= lfnLastFlag
		}
		data = append(data, buildLFNEntry(seq, string(chunks[i]))...)
	}
	data = append(data, buildShortEntry("ANAMEL~1", "TXT", 0x20, 9, 100)...)

	entries := parseDirectory(data)
	require.Len(t, entries, 1)
	assert.Equal(t, longName, entries[0].name)
}
