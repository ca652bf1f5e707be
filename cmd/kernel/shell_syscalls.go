//go:build arm64

package main

import (
	"github.com/iansmith/nanokernel/internal/arch"
	"github.com/iansmith/nanokernel/internal/klog"
	"github.com/iansmith/nanokernel/internal/process"
)

// kernelSyscalls is the production internal/shell.Syscalls implementation:
// the resident shell's Open/Spawn/Sleep/Exit calls go straight into the
// boot-assembled loader and scheduler rather than through a trap — the
// shell is kernel code, not a user process crossing the syscall ABI in
// internal/syscall.
type kernelSyscalls struct{}

func (kernelSyscalls) Open(path string) (process.File, error) {
	return loader.Open(path)
}

// Spawn loads path as a new process with no parent ChildStatus: the shell's
// REPL runs as kernel code in run(), not inside the Process bootScheduler
// enqueues for it, so there is nothing for a spawned program's exit to
// report back into, unlike a real fork's parent/child pair
// (internal/process.Fork/AdoptChild).
func (kernelSyscalls) Spawn(path string) (uint64, error) {
	p, err := process.Load(loader, path, nil, console)
	if err != nil {
		return 0, err
	}
	return scheduler.Add(p), nil
}

// Sleep busy-waits on the architecture's free-running counter rather than
// blocking through the scheduler: the shell runs on the boot core outside
// any process's trap frame, so internal/sched.Scheduler.Block (which
// reschedules a *process*) has nothing to reschedule here.
func (kernelSyscalls) Sleep(ms int64) int64 {
	freq := arch.TickFrequency()
	if freq == 0 || ms <= 0 {
		return 0
	}
	target := uint64(ms) * freq / 1000
	start := arch.NowTicks()
	for arch.NowTicks()-start < target {
		arch.WaitForEvent()
	}
	elapsed := arch.NowTicks() - start
	return int64(elapsed * 1000 / freq)
}

// Exit halts the kernel. The resident shell is PID 1's entire job; once it
// exits there is no further work for the boot core to schedule on its own,
// matching internal/shell's documented contract that Exit never returns on
// real hardware.
func (kernelSyscalls) Exit() {
	klog.Warnf("shell exited via exit command")
	for {
		arch.WaitForInterrupt()
	}
}
