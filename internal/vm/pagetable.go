package vm

import (
	"unsafe"

	"github.com/iansmith/nanokernel/internal/bitfield"
)

// l3Table is one 64 KiB-aligned, 65536-byte table of 8192 raw L3
// descriptors. It is allocated as a physical page frame and never moves
// once built, so it is addressed through a raw pointer rather than a Go
// slice the GC might relocate.
type l3Table struct {
	entries [entriesPerTable]entry
}

// l2Table is the single top-level table; entry i always points at l3s[i].
type l2Table struct {
	entries [entriesPerTable]entry
}

// pageTable is the L2 + L3TableCount×L3 structure spec.md §3 describes,
// shared by both the kernel identity map and every process's user table —
// the only difference between the two is how their L3 entries are
// populated (KernelTable below vs. UserTable.Alloc).
type pageTable struct {
	l2Phys uintptr
	l2     *l2Table
	l3Phys [L3TableCount]uintptr
	l3     [L3TableCount]*l3Table
}

// newPageTable allocates a fresh L2 table and its L3TableCount L3 tables
// from the physical frame pool, and points every L2 entry at its L3 table
// with the given access permission so the L2 level itself never needs
// touching again.
func newPageTable(l2Perm bitfield.PTEAttrs) (*pageTable, error) {
	l2Phys, err := allocFrame()
	if err != nil {
		return nil, err
	}
	pt := &pageTable{
		l2Phys: l2Phys,
		l2:     (*l2Table)(unsafe.Pointer(l2Phys)),
	}
	for i := 0; i < L3TableCount; i++ {
		l3Phys, err := allocFrame()
		if err != nil {
			return nil, err
		}
		pt.l3Phys[i] = l3Phys
		pt.l3[i] = (*l3Table)(unsafe.Pointer(l3Phys))

		e, err := makeEntry(l2Perm, l3Phys)
		if err != nil {
			return nil, err
		}
		pt.l2.entries[i] = e
	}
	return pt, nil
}

// locate splits a table-relative virtual address into its L2 and L3
// indices, mirroring spec.md's "bits [29] and [28:16]" decoding.
func locate(va uintptr) (l2idx, l3idx int) {
	l2idx = int((va >> l2IndexShift) & (L3TableCount - 1))
	l3idx = int((va >> l3IndexShift) & l3IndexMask)
	return
}

func (pt *pageTable) entryAt(va uintptr) *entry {
	l2idx, l3idx := locate(va)
	return &pt.l3[l2idx].entries[l3idx]
}

func (pt *pageTable) isValid(va uintptr) bool {
	return pt.entryAt(va).valid()
}

// baseAddr is the physical address the MMU's TTBR register should be
// loaded with to activate this table.
func (pt *pageTable) baseAddr() uintptr { return pt.l2Phys }

// free releases every valid L3 entry's backing page, then the L2 and L3
// tables themselves, back to the frame allocator. Spec.md §3: "pages inside
// are freed when the table is dropped (each valid L3 entry returns its page
// to the allocator)."
func (pt *pageTable) free() {
	for _, l3 := range pt.l3 {
		for i := range l3.entries {
			e := l3.entries[i]
			if e.valid() {
				freeFrame(e.physAddr())
				l3.entries[i] = 0
			}
		}
	}
	for _, phys := range pt.l3Phys {
		freeFrame(phys)
	}
	freeFrame(pt.l2Phys)
}

func kernelPTEAttrs(device bool) bitfield.PTEAttrs {
	return bitfield.PTEAttrs{
		Valid:      true,
		Table:      true,
		Device:     device,
		ShareOuter: device, // inner-shareable for normal RAM, outer for MMIO
		UserRW:     false,
		AccessFlag: true,
	}
}

func userPTEAttrs() bitfield.PTEAttrs {
	return bitfield.PTEAttrs{
		Valid:      true,
		Table:      true,
		Device:     false,
		ShareOuter: false, // inner-shareable
		UserRW:     true,
		AccessFlag: true,
	}
}
