package vm

import (
	"github.com/iansmith/nanokernel/internal/bitfield"
	"github.com/iansmith/nanokernel/internal/memmap"
)

// KernelTable is the kernel's page table: identity-mapped RAM plus the MMIO
// window, built exactly once at MMU bring-up (spec.md §4.3). Grounded on the
// teacher's mmu.go initMMU, which walks the same two regions (low RAM, then
// the MMIO device list) before flipping SCTLR_EL1.M.
type KernelTable struct {
	pt *pageTable
}

// NewKernelTable identity-maps physical RAM [0, ramTop) as normal,
// inner-shareable, kernel R/W memory with the access flag set, and the MMIO
// window [memmap.IOBase, memmap.IOBaseEnd) as device, outer-shareable,
// kernel R/W memory.
func NewKernelTable(ramTop uintptr) (*KernelTable, error) {
	pt, err := newPageTable(kernelPTEAttrs(false))
	if err != nil {
		return nil, err
	}
	kt := &KernelTable{pt: pt}

	if err := kt.identityMap(0, ramTop, kernelPTEAttrs(false)); err != nil {
		return nil, err
	}
	if err := kt.identityMap(memmap.IOBase, memmap.IOBaseEnd, kernelPTEAttrs(true)); err != nil {
		return nil, err
	}
	return kt, nil
}

// identityMap installs a valid L3 entry va==pa for every page in
// [start, end), with the given attributes. The frame allocator is not
// consulted here: the kernel table maps physical memory directly rather
// than allocating fresh frames for it, since the memory being mapped is the
// very pool other allocators (internal/heap, this package's user tables)
// will later carve frames from.
func (kt *KernelTable) identityMap(start, end uintptr, attrs bitfield.PTEAttrs) error {
	for pa := start &^ (memmap.PageSize - 1); pa < end; pa += memmap.PageSize {
		e, err := makeEntry(attrs, pa)
		if err != nil {
			return err
		}
		*kt.pt.entryAt(pa) = e
	}
	return nil
}

// BaseAddr is the physical address to load into TTBR1_EL1 to activate this
// table.
func (kt *KernelTable) BaseAddr() uintptr { return kt.pt.baseAddr() }
