package vm

import (
	"testing"
	"unsafe"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iansmith/nanokernel/internal/memmap"
)

// setupFramePool backs the package-level frame allocator with a plain Go
// byte slice so tests can exercise real page-table construction on a host
// without any arm64 hardware.
func setupFramePool(t *testing.T, pages int) {
	t.Helper()
	size := pages * memmap.PageSize
	region := make([]byte, size+memmap.PageSize) // slack for alignment
	base := uintptr(unsafe.Pointer(&region[0]))
	base = (base + memmap.PageSize - 1) &^ (memmap.PageSize - 1)
	InitFrameAllocator(base, uintptr(size))
	t.Cleanup(func() { _ = region })
}

func TestLocateDecodesSpecBits(t *testing.T) {
	cases := []struct {
		va         uintptr
		wantL2 int
		wantL3 int
	}{
		{0, 0, 0},
		{memmap.PageSize, 0, 1},
		{1 << 29, 1, 0},
		{(1 << 29) | (5 << 16), 1, 5},
	}
	for _, tc := range cases {
		l2, l3 := locate(tc.va)
		assert.Equal(t, tc.wantL2, l2, "va=%#x", tc.va)
		assert.Equal(t, tc.wantL3, l3, "va=%#x", tc.va)
	}
}

func TestUserStackBaseLandsInLastL3Slot(t *testing.T) {
	rel := memmap.UserStackBase - memmap.UserImgBase
	require.Less(t, rel, uintptr(memmap.UserMaxVMSize))
	l2, l3 := locate(rel)
	assert.Equal(t, L3TableCount-1, l2)
	assert.Equal(t, entriesPerTable-1, l3)
}

func TestUserTableAllocIsIdempotent(t *testing.T) {
	setupFramePool(t, 16)
	ut, err := NewUserTable()
	require.NoError(t, err)

	va := memmap.UserImgBase
	p1 := ut.Alloc(va, PermUserRW)
	p1[0] = 0x42
	p2 := ut.Alloc(va, PermUserRW)
	assert.Equal(t, byte(0x42), p2[0], "second Alloc of the same va must return the existing page")
}

func TestUserTableAllocPanicsBelowImgBase(t *testing.T) {
	setupFramePool(t, 4)
	ut, err := NewUserTable()
	require.NoError(t, err)

	assert.Panics(t, func() {
		ut.Alloc(memmap.UserImgBase-1, PermUserRW)
	})
}

func TestCloneCopiesContentsByteForByte(t *testing.T) {
	setupFramePool(t, 16)
	src, err := NewUserTable()
	require.NoError(t, err)

	va := memmap.UserImgBase
	p := src.Alloc(va, PermUserRW)
	for i := range p {
		p[i] = byte(i)
	}

	dst, err := src.Clone()
	require.NoError(t, err)

	clonedRel := va - memmap.UserImgBase
	assert.True(t, dst.pt.isValid(clonedRel))

	clonedPage := pageBytes(dst.pt.entryAt(clonedRel).physAddr())
	assert.Equal(t, p[0], clonedPage[0])
	assert.Equal(t, p[255], clonedPage[255])

	// Mutating the clone must not affect the source: distinct physical pages.
	clonedPage[0] = 0xFF
	assert.NotEqual(t, clonedPage[0], p[0])
}

func TestFreeReturnsPagesToAllocator(t *testing.T) {
	setupFramePool(t, 8)
	ut, err := NewUserTable()
	require.NoError(t, err)

	ut.Alloc(memmap.UserImgBase, PermUserRW)
	ut.Free()
	// Allocating again after Free should succeed since frames were returned.
	_, err = NewUserTable()
	assert.NoError(t, err)
}
