// Package timer drives the per-core ARM generic physical timer that
// preempts a running process every memmap.Tick (spec.md §4.5's 1ms
// quantum).
//
// Grounded on the teacher's timer_qemu.go: its CNTV_CTL_EL0/CNTV_TVAL_EL0
// virtual-timer access is replaced here by internal/arch's
// ArmPhysicalTimer/TickFrequency (CNTP_TVAL_EL0/CNTP_CTL_EL0 and
// CNTFRQ_EL0), and the arm step of timerInit's sequence is kept. What
// changes from the teacher: handleTimerIRQ there is a fixed
// 5-interrupts-then-exit demo counter; this driver's Rearm rearms
// unconditionally, and cmd/kernel's timer IRQ handler calls it and then
// sched.Switch on every tick, spec.md §4.5's actual preemption contract.
package timer

import "github.com/iansmith/nanokernel/internal/memmap"

// tickFrequency/armTimer are swappable so TicksFor/Init/Rearm are host
// testable without real CNTP_* registers — wired to internal/arch.TickFrequency and
// internal/arch.ArmPhysicalTimer during boot.
var (
	tickFrequency = func() uint64 { return 0 }
	armTimer      = func(ticks uint32) {}
)

// SetHardware installs the real register accessors. Called once during
// boot with internal/arch.TickFrequency and internal/arch.ArmPhysicalTimer.
func SetHardware(freq func() uint64, arm func(uint32)) {
	tickFrequency = freq
	armTimer = arm
}

// TicksFor converts a time.Duration-shaped tick budget (memmap.Tick is a
// time.Duration) into a CNTP_TVAL_EL0 countdown value at the counter's
// current frequency, clamping to 32 bits the same way the teacher's
// timerSet clamps a microsecond interval.
func TicksFor(d uint64) uint32 {
	freq := tickFrequency()
	if freq == 0 {
		return 0
	}
	// d is in nanoseconds (time.Duration); ticks = d * freq / 1e9.
	ticks := d * freq / 1_000_000_000
	if ticks > 0xFFFFFFFF {
		ticks = 0xFFFFFFFF
	}
	return uint32(ticks)
}

// quantumTicks is memmap.Tick expressed as a countdown value, computed
// once by Init from the counter frequency (frequency is constant for the life of the
// kernel, so this is cached rather than recomputed on every rearm).
var quantumTicks uint32

// Init arms the timer for the first quantum. Must run after SetHardware.
func Init() {
	quantumTicks = TicksFor(uint64(memmap.Tick))
	armTimer(quantumTicks)
}

// Rearm resets the countdown for another full quantum — called at the top
// of the timer IRQ handler, before any scheduling decision, so a slow
// handler does not shrink the next process's time slice.
func Rearm() {
	armTimer(quantumTicks)
}
