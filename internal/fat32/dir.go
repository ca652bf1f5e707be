package fat32

import (
	"unicode/utf16"
)

const (
	dirEntrySize = 32

	dirEntryFree  = 0xE5
	dirEntryEnd   = 0x00
	dirEntryLFN   = 0x0F // attribute byte value marking an LFN entry
	lfnLastFlag   = 0x40
	lfnSeqMask    = 0x1F
)

// rawDirEntry is the information parseDirectory extracts from one logical
// directory entry (after any preceding LFN entries have been folded into
// its name) — the Go equivalent of dir.rs's DirIterator yielding an
// Entry<HANDLE> built from a VFatRegularDirEntry plus accumulated LFN
// fragments.
type rawDirEntry struct {
	name         string
	metadata     Metadata
	firstCluster Cluster
	size         uint32
}

// parseDirectory walks a directory's raw cluster-chain bytes and returns
// every live entry, long-filename reassembly included. Grounded on
// dir.rs's DirIterator::next: skip 0xE5 (deleted), accumulate UTF-16 LFN
// fragments keyed by their sequence number (the "last" bit, 0x40, is masked
// off and not otherwise consulted) until a regular entry consumes them,
// stop at a 0x00 id, and fall back to the padded 8.3 name (adding
// the '.' extension separator only when the extension is non-blank) when
// no LFN preceded the regular entry.
func parseDirectory(data []byte) []rawDirEntry {
	var out []rawDirEntry
	lfnParts := map[int][]uint16{}

	for off := 0; off+dirEntrySize <= len(data); off += dirEntrySize {
		entry := data[off : off+dirEntrySize]
		id := entry[0]

		if id == dirEntryEnd {
			break
		}
		if id == dirEntryFree {
			continue
		}

		attrByte := entry[11]
		if attrByte == dirEntryLFN {
			seq := entry[0]
			idx := int(seq & lfnSeqMask)
			var chars []uint16
			chars = append(chars, decodeUTF16LE(entry[1:11])...)
			chars = append(chars, decodeUTF16LE(entry[14:26])...)
			chars = append(chars, decodeUTF16LE(entry[28:32])...)
			lfnParts[idx] = trimUTF16Terminator(chars)
			continue
		}

		name := longNameFromParts(lfnParts)
		if name == "" {
			name = shortNameFrom8Dot3(entry[0:8], entry[8:11])
		}
		lfnParts = map[int][]uint16{}

		attrs := Attributes(attrByte)
		md := Metadata{
			Attributes:   attrs,
			CreatedTime:  Time(leUint16(entry[14:16])),
			CreatedDate:  Date(leUint16(entry[16:18])),
			AccessedDate: Date(leUint16(entry[18:20])),
			ModifiedTime: Time(leUint16(entry[22:24])),
			ModifiedDate: Date(leUint16(entry[24:26])),
		}
		highCluster := leUint16(entry[20:22])
		lowCluster := leUint16(entry[26:28])
		firstCluster := Cluster(uint32(lowCluster) | uint32(highCluster)<<16)
		size := leUint32(entry[28:32])

		out = append(out, rawDirEntry{
			name:         name,
			metadata:     md,
			firstCluster: firstCluster,
			size:         size,
		})
	}
	return out
}

func decodeUTF16LE(b []byte) []uint16 {
	out := make([]uint16, len(b)/2)
	for i := range out {
		out[i] = leUint16(b[i*2 : i*2+2])
	}
	return out
}

func trimUTF16Terminator(chars []uint16) []uint16 {
	for i, c := range chars {
		if c == 0x0000 || c == 0xFFFF {
			return chars[:i]
		}
	}
	return chars
}

// longNameFromParts reassembles an LFN name from sequence-numbered
// fragments, sequence 1 first.
func longNameFromParts(parts map[int][]uint16) string {
	if len(parts) == 0 {
		return ""
	}
	var all []uint16
	for seq := 1; seq <= len(parts); seq++ {
		frag, ok := parts[seq]
		if !ok {
			return ""
		}
		all = append(all, frag...)
	}
	return string(utf16.Decode(all))
}

// shortNameFrom8Dot3 builds "NAME.EXT" from the fixed 8+3 byte fields,
// stopping each half at the first 0x00/0x20 padding byte and omitting the
// '.' when the extension is entirely blank — dir.rs's inline loop in
// DirIterator::next, ported directly.
func shortNameFrom8Dot3(nameField, extField []byte) string {
	name := trimPadded(nameField)
	ext := trimPadded(extField)
	if ext == "" {
		return name
	}
	return name + "." + ext
}

func trimPadded(b []byte) string {
	var out []byte
	for _, c := range b {
		if c == 0x00 || c == 0x20 {
			break
		}
		out = append(out, c)
	}
	return string(out)
}
