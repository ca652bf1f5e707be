// Package trapframe defines the exact in-memory layout of the trap frame
// every exception vector saves on the kernel stack before calling into Go
// (spec.md §4.6), and the PSTATE constant a freshly loaded user process
// starts with.
//
// Grounded on the original implementation's traps::frame::TrapFrame
// (pc, pstate, sp, tpidr, ttbr0_el1, ttbr1_el1, 32×u128 vector regs,
// 31×u64 general regs, one trailing u64) — 816 bytes, asserted there with
// `const_assert_size!`. Every width is kept identical so the assembly
// save/restore stubs in internal/irq can use fixed FP-relative offsets
// exactly the way the original's context.s does. The two table-base fields
// are deliberately reordered from the original's ttbr0_el1-then-ttbr1_el1
// to KernelTableBase-then-UserTableBase, matching the field order spec.md
// §3 lists them in; the assembly stubs address both by their own offsets,
// not by name, so the swap is safe.
package trapframe

import "unsafe"

// Vec128 is one 128-bit SIMD/FP register slot.
type Vec128 struct {
	Lo, Hi uint64
}

// Frame is the trap frame. Field order and widths are load-bearing: the
// assembly prologue/epilogue in internal/irq addresses every field by its
// byte offset from SP, not by Go field access.
type Frame struct {
	PC            uint64
	PState        uint64
	SP            uint64     // user stack pointer
	TPIDR         uint64     // per-thread software id: the process id
	KernelTableBase uint64   // TTBR1_EL1 value for this process
	UserTableBase   uint64   // TTBR0_EL1 value for this process
	Vec           [32]Vec128 // q0-q31
	Reg           [31]uint64 // x0-x30
	KernelSP      uint64     // kernel stack pointer, saved across exception entry
}

// Size is the trap frame's size in bytes; must stay 816 to match spec.md §3
// and the assembly that addresses it by fixed offset.
const Size = 816

func init() {
	if unsafe.Sizeof(Frame{}) != Size {
		panic("trapframe: Frame size drifted from the fixed 816-byte layout")
	}
	if unsafe.Alignof(Frame{}) < 8 {
		panic("trapframe: Frame must be at least 8-byte aligned")
	}
}

// PSTATE bit positions (AArch64 SPSR_EL1 / PSTATE.{D,A,I,F,M}).
const (
	pstateF = 1 << 6 // FIQ masked
	pstateI = 1 << 7 // IRQ masked
	pstateA = 1 << 8 // SError masked
	pstateD = 1 << 9 // Debug masked
	// pstateM is the exception-level/SP-select field, bits [3:0]; 0 selects
	// EL0 with SP_EL0 (EL0t).
	pstateM_EL0t = 0
)

// UserEntryPState is the PSTATE value a freshly loaded or exec'd process's
// trap frame starts with: spec.md §4.4 step 5's "{F,A,D masked; EL0; stack
// pointer selector 0}". IRQ (the I bit) is deliberately left clear so timer
// preemption keeps firing while the process runs, matching the original
// scheduler's explicit `pstate |= 1 << 6` (enable IRQ) bring-up step.
const UserEntryPState = pstateF | pstateA | pstateD | pstateM_EL0t

// New returns a zeroed trap frame with PState preset to UserEntryPState,
// the state every newly created or exec'd process's frame is built with.
func New() *Frame {
	return &Frame{PState: UserEntryPState}
}

// Arg returns general-purpose register xN (0-indexed), the syscall argument
// convention spec.md §6.2 uses for x0-x7.
func (f *Frame) Arg(n int) uint64 { return f.Reg[n] }

// SetArg sets xN, used to write return values (x0) and deliver fork's
// "child sees x0 == 0, parent sees x0 == pid" invariant.
func (f *Frame) SetArg(n int, v uint64) { f.Reg[n] = v }

// SetIdle resets the frame to a per-core idle thread's resting state
// (spec.md §4.5): tpidr set to the sentinel passed in by the caller (the
// scheduler's process.NoPID), sp pointed at that core's private idle
// stack, and pstate left at UserEntryPState so IRQ stays unmasked — idle's
// only job is to wait for the next tick.
func (f *Frame) SetIdle(tpidr, sp uint64) {
	f.TPIDR = tpidr
	f.SP = sp
	f.PState = UserEntryPState
}
