// Package sched implements the core's per-core preemptive scheduler
// (spec.md §4.5): a single global FIFO queue of processes guarded by one
// mutex, walked by every core's exception-return path.
//
// Grounded on the original implementation's kern/src/process/scheduler.rs
// (Scheduler::add/schedule_out/switch_to/kill, GlobalScheduler's
// critical-section wrapper) with one deliberate departure spec.md §4.5
// calls for: the original assigns ids from the live queue length — which
// collides once a process is removed and the queue shrinks — where
// spec.md specifies "a monotonic id counter", so Scheduler carries its own
// nextID instead of reusing len(queue).
package sched

import (
	"sync/atomic"

	"github.com/iansmith/nanokernel/internal/memmap"
	"github.com/iansmith/nanokernel/internal/mutex"
	"github.com/iansmith/nanokernel/internal/process"
	"github.com/iansmith/nanokernel/internal/trapframe"
)

// Scheduler owns the global ready/waiting/running process queue. The zero
// value is not usable; construct with New.
type Scheduler struct {
	mu     *mutex.Mu
	queue  []*process.Process
	nextID uint64
}

// New returns an empty Scheduler and wires mutex.PreemptDecrement to this
// scheduler's per-core preemption-depth counters. Call once during boot.
func New() *Scheduler {
	s := &Scheduler{mu: mutex.NewMu(), nextID: 1}
	mutex.PreemptDecrement = decrementPreempt
	return s
}

// Add assigns p the next monotonic id, stamps it into the trap frame's
// tpidr slot, and appends p to the back of the queue.
func (s *Scheduler) Add(p *process.Process) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextID
	s.nextID++
	p.ID = id
	p.TrapFrame.TPIDR = id
	s.queue = append(s.queue, p)
	return id
}

// Switch implements spec.md §4.5's switch(new_state, tf): schedule out the
// process identified by tf.TPIDR into newState, pick the next ready
// process, and overwrite tf with its saved context. It never blocks —
// returns process.NoPID if no process is ready, leaving tf.TPIDR set to
// the sentinel so the caller (an IRQ handler, which must not spin) can
// re-enter its idle loop itself.
func (s *Scheduler) Switch(newState process.State, tf *trapframe.Frame) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.scheduleOut(newState, tf)
	id, ok := s.switchTo(tf)
	if !ok {
		tf.TPIDR = process.NoPID
		return process.NoPID
	}
	return id
}

// Block is Switch's blocking counterpart (spec.md §4.5): used by syscalls
// that must not return to userspace until another process is actually
// ready to run. It schedules the caller out once, then repeatedly tries
// switchTo, running IdleFunc (the architecture's wait-for-interrupt
// primitive) between attempts instead of spinning.
func (s *Scheduler) Block(newState process.State, tf *trapframe.Frame) uint64 {
	s.mu.Lock()
	s.scheduleOut(newState, tf)
	s.mu.Unlock()

	for {
		s.mu.Lock()
		id, ok := s.switchTo(tf)
		s.mu.Unlock()
		if ok {
			return id
		}
		tf.TPIDR = process.NoPID
		IdleFunc()
	}
}

// Kill marks the Running process identified by tf.TPIDR Dead and removes
// it from the queue, returning its id. Returns (process.NoPID, false) if
// no Running process matches — spec.md §9's resolved open question: the
// contract is "return the absence", never panic.
func (s *Scheduler) Kill(tf *trapframe.Frame) (uint64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, p := range s.queue {
		if p.State.Kind == process.Running && p.TrapFrame.TPIDR == tf.TPIDR {
			p.State = process.State{Kind: process.Dead}
			s.removeAt(i)
			return p.ID, true
		}
	}
	return process.NoPID, false
}

// scheduleOut is schedule_out (spec.md §4.5): locate the unique Running
// process whose tpidr matches tf.TPIDR, set its state, save tf into it,
// and rotate it to the back of the queue. Returns false if no such process
// exists (e.g. the idle thread itself was interrupted).
func (s *Scheduler) scheduleOut(newState process.State, tf *trapframe.Frame) bool {
	for i, p := range s.queue {
		if p.State.Kind != process.Running || p.TrapFrame.TPIDR != tf.TPIDR {
			continue
		}
		p.State = newState
		*p.TrapFrame = *tf
		s.removeAt(i)
		s.queue = append(s.queue, p)
		return true
	}
	return false
}

// switchTo is switch_to (spec.md §4.5): walk the queue front to back, the
// first IsReady process becomes Running, is rotated to the front, and its
// saved context is copied into tf.
func (s *Scheduler) switchTo(tf *trapframe.Frame) (uint64, bool) {
	for i, p := range s.queue {
		if !p.IsReady() {
			continue
		}
		p.State = process.State{Kind: process.Running}
		s.removeAt(i)
		s.queue = append([]*process.Process{p}, s.queue...)
		*tf = *p.TrapFrame
		return p.ID, true
	}
	return process.NoPID, false
}

func (s *Scheduler) removeAt(i int) {
	s.queue = append(s.queue[:i], s.queue[i+1:]...)
}

// WithCurrentProcess locates the process whose trap frame carries the
// given tpidr and invokes fn with it, holding the scheduler lock for the
// duration — spec.md §5's shared-resource policy: "kernel code must hold
// the scheduler mutex to inspect or mutate a Process", grounded on the
// spec's own named helper `with_current_process_mut(tf, f)`. Returns false
// if no process has that tpidr (e.g. called from the idle thread).
func (s *Scheduler) WithCurrentProcess(tpidr uint64, fn func(p *process.Process)) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, p := range s.queue {
		if p.TrapFrame.TPIDR == tpidr {
			fn(p)
			return true
		}
	}
	return false
}

// Len reports the number of processes currently tracked (any state),
// mainly useful from tests and the shell's debug commands.
func (s *Scheduler) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue)
}

// preemptDepth is a per-core preemption-depth counter. PreemptDisable
// increments it and every post-MMU Mu.Unlock decrements it via
// PreemptDecrement; Mu.Lock does not increment it, and no code outside
// this package's tests calls PreemptDisable.
var preemptDepth [memmap.NCores]atomic.Int32

func decrementPreempt() {
	c := mutex.CoreIDFunc()
	if int(c) < len(preemptDepth) {
		preemptDepth[c].Add(-1)
	}
}

// PreemptDisable increments the calling core's preemption-depth counter.
func PreemptDisable() {
	c := mutex.CoreIDFunc()
	if int(c) < len(preemptDepth) {
		preemptDepth[c].Add(1)
	}
}

// Preemptible reports whether the calling core's preemption depth is zero.
// cmd/kernel's timer IRQ handler does not call it; it calls Switch on
// every tick.
func Preemptible() bool {
	c := mutex.CoreIDFunc()
	if int(c) >= len(preemptDepth) {
		return true
	}
	return preemptDepth[c].Load() == 0
}
