package sched

import "github.com/iansmith/nanokernel/internal/process"

// IdleFunc is the architecture's wait-for-interrupt primitive (WFI),
// invoked by Block between failed switchTo attempts instead of spinning.
// Wired by internal/arch during boot; tests leave the default no-op so
// Block's retry loop runs hot but still terminates once a process becomes
// ready.
var IdleFunc = func() {}

// ResetIdle installs the per-core idle thread's resting trap-frame state
// (spec.md §4.5): tpidr set to the sentinel, sp pointed at that core's
// private idle stack (pc is left as it was), and entered with the exception-return path's normal
// pstate (IRQ unmasked, since idle's entire job is to wait for one).
func ResetIdle(tf idleFrame, kernelSP uint64) {
	tf.SetIdle(process.NoPID, kernelSP)
}

// idleFrame is the minimal surface ResetIdle needs from a trap frame —
// kept as an interface so this package doesn't need to import
// internal/trapframe just to set two fields during idle re-entry.
type idleFrame interface {
	SetIdle(tpidr, sp uint64)
}
