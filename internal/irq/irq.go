// Package irq implements the core's exception, interrupt, and syscall
// dispatch (spec.md §4.6): the single entry point every vector-table stub
// calls after the assembly prologue has saved a trap frame, plus the
// fixed-size handler registries spec.md §4.6 specifies.
//
// Grounded on the teacher's exceptions.go: the EC_* exception-class
// constants are the same architectural values the teacher names
// (EC_DATA_ABORT_ELx, EC_BREAKPOINT_ELx, ...) and the overall
// ExceptionHandler → handleException → "switch ec" shape is kept, with
// two changes: the teacher's EC_SVC_EL0_A64 constant collides with
// EC_TRAP_SVE (both 0b010100) — a bug in the source, not an intentional
// alias — corrected here to the real AArch64 architectural value for "SVC
// instruction execution" (0b010101, the only SVC EC in AArch64 state,
// regardless of source EL); and instead of faking Linux syscall numbers
// for an embedded Go runtime, svc dispatches into internal/syscall's
// spec.md §6.2 ABI table via the Dispatch hook.
package irq

import (
	"github.com/iansmith/nanokernel/internal/klog"
	"github.com/iansmith/nanokernel/internal/mutex"
	"github.com/iansmith/nanokernel/internal/trap"
	"github.com/iansmith/nanokernel/internal/trapframe"
)

// Kind is the exception source, ESR_EL2 bits aside — spec.md §4.6's
// "(source, kind) with kind ∈ {Synchronous, Irq, Fiq, SError}".
type Kind int

const (
	Synchronous Kind = iota
	IRQ
	FIQ
	SError
)

// ESR_EL1 exception-class values this dispatcher inspects. Named the way
// the teacher's exceptions.go names them; values are ARM architecture
// constants, not teacher inventions.
const (
	ecSVC64           = 0b010101 // svc #imm from either EL, AArch64 state
	ecInstrAbortLower = 0b100000
	ecInstrAbortSame  = 0b100001
	ecDataAbortLower  = 0b100100
	ecDataAbortSame   = 0b100101
)

// Info is what the assembly prologue hands HandleException: the trap
// kind plus the four syndrome/link registers spec.md §4.6 names.
type Info struct {
	Kind Kind
	ESR  uint64
	ELR  uint64
	SPSR uint64
	FAR  uint64
}

// Handler is one registry slot: spec.md §4.6's "optional boxed closure
// fn(&mut TrapFrame)". Registering overwrites any previous handler.
type Handler func(tf *trapframe.Frame)

// Registry sizes: spec.md §4.6 "global IRQ (8 slots), local IRQ (12
// slots), FIQ (1 slot)".
const (
	GlobalSlots = 8
	LocalSlots  = 12
)

var (
	globalHandlers [GlobalSlots]Handler
	localHandlers  [LocalSlots]Handler
	fiqSlot        Handler
)

// RegisterGlobal installs h in the global IRQ registry's slot i.
func RegisterGlobal(i int, h Handler) { globalHandlers[i] = h }

// RegisterLocal installs h in the per-core IRQ registry's slot i.
func RegisterLocal(i int, h Handler) { localHandlers[i] = h }

// RegisterFIQ installs the single FIQ handler, used by the USB stack.
func RegisterFIQ(h Handler) { fiqSlot = h }

// GlobalController abstracts the global interrupt controller (GIC
// distributor) down to the one operation dispatch needs: which global
// lines are pending. internal/driver/gic implements this against real
// MMIO; nil is a legal "no global controller wired yet" value.
type GlobalController interface {
	PendingGlobal() uint32
}

// LocalController abstracts the per-core interrupt controller (GIC CPU
// interface / BCM local timer block) down to which local lines are
// pending on the given core.
type LocalController interface {
	PendingLocal(core uint32) uint32
}

// Global and Local are wired by internal/driver/gic during boot.
var (
	Global GlobalController
	Local  LocalController
)

// Dispatch is internal/syscall's entry point: HandleException calls it
// with the svc immediate and the trap frame. Wired once during boot
// rather than imported directly, since internal/syscall depends on
// internal/process and internal/sched, and neither of those packages
// needs to import irq — keeping the dependency one-directional.
var Dispatch func(n uint64, tf *trapframe.Frame)

// EnableFIQ and DisableFIQ bracket a syscall's execution (spec.md §5:
// "the syscall path explicitly enables FIQ so USB receive interrupts make
// progress while syscalls run"). Both default to no-ops, which keeps this
// package host-testable; nothing in this core assigns them, so the FIQ
// mask is left unchanged around a syscall.
var (
	EnableFIQ  = func() {}
	DisableFIQ = func() {}
)

// coreID is wired to mutex.CoreIDFunc so IRQ/FIQ's "core 0 only" rules
// use the same core-identification seam as the rest of the core.
func coreID() uint32 { return mutex.CoreIDFunc() }

// HandleException is the single entry point every vector stub calls
// (spec.md §4.6) after saving tf on the kernel stack.
func HandleException(info Info, tf *trapframe.Frame) {
	switch info.Kind {
	case Synchronous:
		handleSynchronous(info, tf)
	case IRQ:
		handleIRQ(tf)
	case FIQ:
		handleFIQ(tf)
	case SError:
		klog.Warnf("SError", klog.Hex("esr", info.ESR), klog.Hex("elr", info.ELR))
	}
}

func handleSynchronous(info Info, tf *trapframe.Frame) {
	ec := (info.ESR >> 26) & 0x3F

	if ec == ecSVC64 {
		n := info.ESR & 0xFFFF
		EnableFIQ()
		if Dispatch != nil {
			Dispatch(n, tf)
		}
		DisableFIQ()
		return
	}

	far := uint64(0)
	if ec == ecDataAbortLower || ec == ecDataAbortSame || ec == ecInstrAbortLower || ec == ecInstrAbortSame {
		far = info.FAR
	}
	trap.Panic("unhandled synchronous exception", trap.Info{ESR: info.ESR, ELR: info.ELR, FAR: far})
}

// handleIRQ implements spec.md §4.6's IRQ dispatch: on core 0, scan the
// global controller first, then always scan this core's local
// controller; panic if neither claims the interrupt.
func handleIRQ(tf *trapframe.Frame) {
	claimed := false

	if coreID() == 0 && Global != nil {
		if dispatchMask(Global.PendingGlobal(), globalHandlers[:], tf) {
			claimed = true
		}
	}
	if Local != nil {
		if dispatchMask(Local.PendingLocal(coreID()), localHandlers[:], tf) {
			claimed = true
		}
	}

	if !claimed {
		trap.Panic("unclaimed IRQ", trap.Info{})
	}
}

// handleFIQ invokes the single FIQ handler; asserted only on core 0
// (spec.md §4.6).
func handleFIQ(tf *trapframe.Frame) {
	if coreID() == 0 && fiqSlot != nil {
		fiqSlot(tf)
	}
}

// dispatchMask invokes every registered handler whose bit is set in mask,
// returning whether any slot actually claimed the interrupt.
func dispatchMask(mask uint32, handlers []Handler, tf *trapframe.Frame) bool {
	claimed := false
	for i := 0; i < len(handlers) && i < 32; i++ {
		if mask&(1<<uint(i)) == 0 || handlers[i] == nil {
			continue
		}
		handlers[i](tf)
		claimed = true
	}
	return claimed
}
