package vm

import (
	"fmt"
	"unsafe"

	"github.com/iansmith/nanokernel/internal/memmap"
)

// UserTable is one process's page table: a fresh L2 with two L3 tables
// preallocated, all pointing at their L3 table with user R/W attributes
// (spec.md §4.3). Entries are populated lazily by Alloc as the process
// touches new pages.
type UserTable struct {
	pt *pageTable
}

// NewUserTable allocates a fresh, empty user page table.
func NewUserTable() (*UserTable, error) {
	pt, err := newPageTable(userPTEAttrs())
	if err != nil {
		return nil, err
	}
	return &UserTable{pt: pt}, nil
}

// BaseAddr is the physical address to load into TTBR0_EL1 to activate this
// table.
func (ut *UserTable) BaseAddr() uintptr { return ut.pt.baseAddr() }

// Alloc implements spec.md §4.3's alloc(va, perm): va must be >=
// USER_IMG_BASE. The base is subtracted to find the L3 slot; if that slot is
// invalid a zeroed page is allocated and installed as (valid, page-type,
// normal-memory, user R/W, inner-shareable, access-flag set, physical
// address of the page); the existing page is returned unchanged if already
// valid. Panics if va < USER_IMG_BASE or the frame allocator is exhausted,
// exactly as the original implementation panics on both conditions.
func (ut *UserTable) Alloc(va uintptr, perm Perm) []byte {
	if va < memmap.UserImgBase {
		panic(fmt.Sprintf("vm: UserTable.Alloc: va %#x below USER_IMG_BASE", va))
	}
	rel := va - memmap.UserImgBase

	e := ut.pt.entryAt(rel)
	if e.valid() {
		return pageBytes(e.physAddr())
	}

	phys, err := allocFrame()
	if err != nil {
		panic(fmt.Sprintf("vm: UserTable.Alloc: %v", err))
	}
	packed, err := makeEntry(userPTEAttrs(), phys)
	if err != nil {
		panic(fmt.Sprintf("vm: UserTable.Alloc: %v", err))
	}
	*e = packed
	return pageBytes(phys)
}

// IsValid reports whether va (already base-relative, as stored in the
// table) has a live mapping.
func (ut *UserTable) IsValid(va uintptr) bool {
	return ut.pt.isValid(va - memmap.UserImgBase)
}

// Clone implements fork's page-table duplication (spec.md §4.3): allocate a
// new user table; for every valid L3 entry in the source, allocate a new
// page at the same virtual address in the clone and copy contents
// byte-for-byte.
func (ut *UserTable) Clone() (*UserTable, error) {
	dst, err := NewUserTable()
	if err != nil {
		return nil, err
	}
	for l2idx := 0; l2idx < L3TableCount; l2idx++ {
		srcL3 := ut.pt.l3[l2idx]
		dstL3 := dst.pt.l3[l2idx]
		for l3idx, e := range srcL3.entries {
			if !e.valid() {
				continue
			}
			phys, err := allocFrame()
			if err != nil {
				dst.Free()
				return nil, err
			}
			copy(pageBytes(phys), pageBytes(e.physAddr()))
			packed, err := makeEntry(userPTEAttrs(), phys)
			if err != nil {
				dst.Free()
				return nil, err
			}
			dstL3.entries[l3idx] = packed
		}
	}
	return dst, nil
}

// Free returns every mapped page, then the table itself, to the frame
// allocator. Must be called exactly once, when the owning process exits.
func (ut *UserTable) Free() {
	ut.pt.free()
}

func pageBytes(phys uintptr) []byte {
	return unsafe.Slice((*byte)(unsafe.Pointer(phys)), memmap.PageSize)
}

// ReadAt copies len(p) bytes starting at user virtual address va into p.
// Every page touched must already be mapped; internal/syscall calls
// InUserRange first so this only ever walks pages the process is entitled
// to have mapped.
func (ut *UserTable) ReadAt(va uintptr, p []byte) (int, error) {
	return ut.copyAt(va, p, false)
}

// WriteAt copies len(p) bytes from p into user virtual address va.
func (ut *UserTable) WriteAt(va uintptr, p []byte) (int, error) {
	return ut.copyAt(va, p, true)
}

func (ut *UserTable) copyAt(va uintptr, p []byte, write bool) (int, error) {
	n := 0
	for n < len(p) {
		cur := va + uintptr(n)
		rel := cur - memmap.UserImgBase
		if !ut.pt.isValid(rel) {
			return n, fmt.Errorf("vm: UserTable: unmapped address %#x", cur)
		}
		page := pageBytes(ut.pt.entryAt(rel).physAddr())
		off := int(cur) % memmap.PageSize
		chunk := memmap.PageSize - off
		if chunk > len(p)-n {
			chunk = len(p) - n
		}
		if write {
			copy(page[off:off+chunk], p[n:n+chunk])
		} else {
			copy(p[n:n+chunk], page[off:off+chunk])
		}
		n += chunk
	}
	return n, nil
}

// InUserRange reports whether [va, va+length) lies entirely within the
// process address space (spec.md §6.1: USER_IMG_BASE .. +USER_MAX_VM_SIZE)
// with no unsigned overflow. internal/syscall checks this before touching
// any user-supplied pointer (spec.md §4.7).
func InUserRange(va uintptr, length uintptr) bool {
	if va < memmap.UserImgBase {
		return false
	}
	end := va + length
	if end < va {
		return false
	}
	return end <= memmap.UserImgBase+memmap.UserMaxVMSize
}
