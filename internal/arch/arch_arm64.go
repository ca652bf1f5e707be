//go:build arm64

// Package arch exposes the small set of AArch64 primitives the rest of the
// core needs: barriers, cache maintenance, WFE/SEV, and the system
// registers that carry the kernel/user page table bases. Everything here is
// go:nosplit and go:noescape — grounded on the teacher's mazboot/asm
// linkname surface (asm.Dsb, asm.Isb, asm.MmioWrite, asm.CleanDataCacheVA,
// asm.WriteTpidrEl1, ...), reimplemented in this core's own asm package
// since the teacher's assembly sources were not part of the retrieval pack.
package arch

import "unsafe"

//go:noescape
func dsb()

//go:noescape
func isb()

//go:noescape
func dmb()

//go:noescape
func wfe()

//go:noescape
func wfi()

//go:noescape
func sev()

//go:noescape
func cleanDCacheVA(addr uintptr)

//go:noescape
func invalidateICacheAll()

//go:noescape
func mmioWrite(reg uintptr, data uint32)

//go:noescape
func mmioRead(reg uintptr) uint32

//go:noescape
func readTTBR0() uint64

//go:noescape
func writeTTBR0(v uint64)

//go:noescape
func readTTBR1() uint64

//go:noescape
func writeTTBR1(v uint64)

//go:noescape
func readMPIDR() uint64

//go:noescape
func readCNTPCT() uint64

//go:noescape
func readCNTFRQ() uint64

//go:noescape
func writeCNTPTval(v uint32)

//go:noescape
func writeCNTPCtl(v uint32)

// DSB issues a data synchronization barrier.
func DSB() { dsb() }

// ISB issues an instruction synchronization barrier.
func ISB() { isb() }

// DMB issues a data memory barrier.
func DMB() { dmb() }

// WaitForEvent executes WFE, the low-power spin hint used by mutex.Mu while
// contended.
func WaitForEvent() { wfe() }

// WaitForInterrupt executes WFI, used by the idle thread.
func WaitForInterrupt() { wfi() }

// SendEvent executes SEV, waking cores parked in WFE.
func SendEvent() { sev() }

// CleanDataCacheLine cleans one cache line containing addr to memory.
func CleanDataCacheLine(addr uintptr) { cleanDCacheVA(addr) }

// InvalidateInstructionCache invalidates the whole I-cache; required after
// writing executable code (e.g. relocating the exception vector table).
func InvalidateInstructionCache() { invalidateICacheAll() }

// MMIOWrite writes a 32-bit value to a memory-mapped register.
func MMIOWrite(reg uintptr, v uint32) { mmioWrite(reg, v) }

// MMIORead reads a 32-bit value from a memory-mapped register.
func MMIORead(reg uintptr) uint32 { return mmioRead(reg) }

// CoreID returns the low affinity bits of MPIDR_EL1: which of the NCores
// application cores is executing.
func CoreID() uint32 {
	return uint32(readMPIDR() & 0xFF)
}

// KernelTableBase returns TTBR1_EL1, the kernel identity map's table base.
func KernelTableBase() uint64 { return readTTBR1() }

// SetKernelTableBase installs a new TTBR1_EL1.
func SetKernelTableBase(base uint64) { writeTTBR1(base) }

// UserTableBase returns TTBR0_EL1, the current process's user table base.
func UserTableBase() uint64 { return readTTBR0() }

// SetUserTableBase installs a new TTBR0_EL1 and invalidates the TLB entries
// tagged to the previous table via an ISB (no ASID tagging in this core —
// every switch is a full TLB-relevant boundary).
func SetUserTableBase(base uint64) {
	writeTTBR0(base)
	isb()
}

// NowTicks reads the physical counter (CNTPCT_EL0).
func NowTicks() uint64 { return readCNTPCT() }

// TickFrequency reads the counter frequency (CNTFRQ_EL0), in Hz.
func TickFrequency() uint64 { return readCNTFRQ() }

// ArmPhysicalTimer programs CNTP_TVAL_EL0 with the given tick count and
// unmasks the comparator, re-arming the per-core preemption timer.
func ArmPhysicalTimer(ticks uint32) {
	writeCNTPTval(ticks)
	writeCNTPCtl(1) // ENABLE=1, IMASK=0
}

// Bzero zeroes n bytes starting at ptr. Grounded on the teacher's
// asm.Bzero, used throughout page/heap init to avoid pulling in a
// runtime-backed memclr.
//
//go:nosplit
func Bzero(ptr unsafe.Pointer, n uintptr) {
	b := unsafe.Slice((*byte)(ptr), n)
	for i := range b {
		b[i] = 0
	}
}
