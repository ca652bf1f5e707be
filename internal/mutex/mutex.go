// Package mutex implements the core's recursive spin mutex (spec.md §4.1).
//
// Before the MMU is enabled, boot runs single-core with interrupts masked,
// so a plain boolean flag is enough and same-CPU re-entry (recursive lock)
// is always safe — this is what lets early panic/allocator-init code lock
// without deadlocking itself. Once the MMU is up, multiple cores are live
// and the lock switches to a non-recursive atomic compare-exchange that
// tracks its owning CPU for debug assertions. Grounded on the teacher's
// staged-readiness pattern (schedulerReady/futexEarlyUseDetected in
// syscall.go: a package-level flag flipped exactly once by an explicit
// Mark*Ready call, checked everywhere else with atomic.Load).
package mutex

import "sync/atomic"

// NoCPU is the sentinel owner value meaning "lock is free".
const NoCPU = ^uint32(0)

var mmuReady atomic.Bool

// MarkMMUReady flips every Mu in the process from the single-core
// recursive-boolean phase to the multi-core atomic-CAS phase. Called
// exactly once, from internal/vm, right after the MMU is enabled.
func MarkMMUReady() { mmuReady.Store(true) }

// CoreIDFunc returns the calling core's id. Set once during boot to
// internal/arch.CoreID; defaults to always-core-0 so pure-logic tests that
// never call MarkMMUReady can exercise Mu without wiring hardware.
var CoreIDFunc func() uint32 = func() uint32 { return 0 }

// Mu is a recursive-before-MMU, non-recursive-after-MMU spin mutex.
// The zero value is unlocked.
type Mu struct {
	held  atomic.Bool
	owner atomic.Uint32

	// recursive is only touched while !mmuReady, i.e. single core,
	// interrupts masked — no atomics needed for it.
	recursiveDepth uint32
}

// NewMu returns a properly initialized, unlocked Mu. The zero value of Mu
// has owner == 0 (a valid CPU id) rather than NoCPU, so always construct
// with NewMu rather than relying on a literal Mu{}.

func NewMu() *Mu {
	m := &Mu{}
	m.owner.Store(NoCPU)
	return m
}

// Lock acquires the mutex, recursing freely pre-MMU and spinning with a
// low-power wait hint post-MMU.
func (m *Mu) Lock() {
	cpu := CoreIDFunc()
	if !mmuReady.Load() {
		if m.held.Load() && m.owner.Load() == cpu {
			m.recursiveDepth++
			return
		}
		m.held.Store(true)
		m.owner.Store(cpu)
		m.recursiveDepth = 1
		return
	}

	for {
		if m.held.CompareAndSwap(false, true) {
			m.owner.Store(cpu)
			return
		}
		spinWait()
	}
}

// TryLock attempts to acquire the mutex without blocking. It never spins.
func (m *Mu) TryLock() bool {
	cpu := CoreIDFunc()
	if !mmuReady.Load() {
		if m.held.Load() && m.owner.Load() == cpu {
			m.recursiveDepth++
			return true
		}
		if m.held.Load() {
			return false
		}
		m.held.Store(true)
		m.owner.Store(cpu)
		m.recursiveDepth = 1
		return true
	}
	if m.held.CompareAndSwap(false, true) {
		m.owner.Store(cpu)
		return true
	}
	return false
}

// Unlock releases the mutex. Post-MMU it decrements the calling core's
// preemption counter (via PreemptDecrement, wired to internal/sched's
// per-CPU accessor) before clearing owner/held, and wakes
// any cores parked in WaitForEvent.
func (m *Mu) Unlock() {
	if !mmuReady.Load() {
		m.recursiveDepth--
		if m.recursiveDepth == 0 {
			m.owner.Store(NoCPU)
			m.held.Store(false)
		}
		return
	}

	if PreemptDecrement != nil {
		PreemptDecrement()
	}
	m.owner.Store(NoCPU)
	m.held.Store(false)
	wakeHint()
}

// PreemptDecrement is called on every post-MMU Unlock, wired by
// internal/sched to its per-CPU preemption-depth counter. Nil pre-wiring
// (e.g. in unit tests) is a no-op.
var PreemptDecrement func()

// spinWait and wakeHint are indirected through function variables so this
// package stays host-testable: cmd/kernel wires internal/arch's WFE/SEV
// wrappers (WaitForEvent/SendEvent) during boot; tests leave them as the
// default no-ops.
var spinWait = func() {}
var wakeHint = func() {}

// SetSpinHint installs the architecture's low-power spin primitive.
func SetSpinHint(f func()) { spinWait = f }

// SetWakeHint installs the architecture's wake-waiters primitive.
func SetWakeHint(f func()) { wakeHint = f }
