package selftest

import (
	"testing"
	"unsafe"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iansmith/nanokernel/internal/memmap"
	"github.com/iansmith/nanokernel/internal/vm"
)

// setupFramePool gives internal/vm the physical frame pool that boot
// normally sets up before Run; the fork chain's page tables come from it.
func setupFramePool(t *testing.T, pages int) {
	t.Helper()
	size := pages * memmap.PageSize
	region := make([]byte, size+memmap.PageSize)
	base := uintptr(unsafe.Pointer(&region[0]))
	base = (base + memmap.PageSize - 1) &^ (memmap.PageSize - 1)
	vm.InitFrameAllocator(base, uintptr(size))
	t.Cleanup(func() { _ = region })
}

func TestRunReturnsAllThreeChecksPassing(t *testing.T) {
	setupFramePool(t, 64)
	results := Run()

	require.Len(t, results, 3)
	names := make([]string, len(results))
	for i, r := range results {
		names[i] = r.Name
		assert.Truef(t, r.Passed(), "%s: %v", r.Name, r.Err)
	}
	assert.Equal(t, []string{"allocator round-trip", "mutex recursion", "fork chain (10x)"}, names)
}

func TestAllocatorRoundTripDetectsLeakedBin(t *testing.T) {
	r := allocatorRoundTrip()
	assert.True(t, r.Passed(), r.Err)
}

func TestMutexRecursionPasses(t *testing.T) {
	r := mutexRecursion()
	assert.True(t, r.Passed(), r.Err)
}

func TestForkChainAssignsSequentialPIDsAndRecordsExit(t *testing.T) {
	setupFramePool(t, 64)
	r := forkChain()
	assert.True(t, r.Passed(), r.Err)
}
