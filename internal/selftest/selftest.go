// Package selftest is a fixed sequence of boot-time smoke tests: an
// allocator round-trip, a mutex recursion check, and a ten-step fork
// chain. cmd/kernel runs Run behind a `selftest` build tag, right after
// boot and before starting the shell (spec.md §2's "create initial
// process" step), so a hardware bring-up can confirm the core subsystems
// without needing the filesystem, the shell binary, or real SD/USB
// hardware to be working yet.
//
// Grounded on original_source/kern/src/breadboard.rs in shape only, not
// content: breadboard.rs's actual build-tag-gated boot diagnostics are a
// UART loopback echo and a GPIO loading-spinner animation — both
// hardware-loopback code with no assertion a host test could check.
// SPEC_FULL.md §12 recovers the *pattern* breadboard.rs established (a
// fixed, build-tag-gated sequence of checks run once at boot) and fills it
// with content spec.md §8 already specifies as host-testable: invariant 3
// (the size-class allocator's free-list round-trip) and the fork-chain
// end-to-end scenario.
package selftest

import (
	"errors"
	"fmt"
	"unsafe"

	"github.com/iansmith/nanokernel/internal/heap"
	"github.com/iansmith/nanokernel/internal/mutex"
	"github.com/iansmith/nanokernel/internal/process"
	"github.com/iansmith/nanokernel/internal/sched"
)

// Result is one smoke test's outcome.
type Result struct {
	Name string
	Err  error
}

// Passed reports whether the check succeeded.
func (r Result) Passed() bool { return r.Err == nil }

// Run executes every smoke test and returns one Result per check, in a
// fixed order, regardless of earlier failures — a caller printing a boot
// report wants to see all of them, not just the first failure.
func Run() []Result {
	return []Result{
		allocatorRoundTrip(),
		mutexRecursion(),
		forkChain(),
	}
}

// allocatorRoundTrip exercises spec.md §8 invariant 3: allocating then
// freeing a chunk grows its bin's free list by exactly one node, and a
// subsequent same-size allocation shrinks it back by one while reusing the
// identical address (the allocator's free list is LIFO).
func allocatorRoundTrip() Result {
	const name = "allocator round-trip"

	region := make([]byte, 1<<16+4096)
	var a heap.Allocator
	a.Init(uintptr(unsafe.Pointer(&region[0])), 1<<16, nil)

	const size = 128
	k := heap.BinOf(size)
	before := a.BinFree(k)

	p1 := a.Alloc(size, 8)
	if p1 == nil {
		return Result{name, errors.New("first alloc returned nil")}
	}
	a.Free(p1, size)

	if got := a.BinFree(k); got != before+1 {
		return Result{name, fmt.Errorf("free list grew to %d, want %d", got, before+1)}
	}

	p2 := a.Alloc(size, 8)
	if p2 != p1 {
		return Result{name, errors.New("reallocation did not reuse the freed node")}
	}
	if got := a.BinFree(k); got != before {
		return Result{name, fmt.Errorf("free list shrank to %d, want %d", got, before)}
	}

	return Result{name, nil}
}

// mutexRecursion exercises the recursive spin mutex's pre-MMU contract
// (spec.md §4.1): the same caller may Lock repeatedly without deadlocking,
// and the lock is only actually released once every recursive Lock has a
// matching Unlock.
func mutexRecursion() Result {
	const name = "mutex recursion"

	m := mutex.NewMu()
	m.Lock()
	m.Lock() // re-entrant; must not deadlock
	m.Unlock()

	if !m.TryLock() {
		return Result{name, errors.New("same-core re-entry failed while still held once")}
	}
	m.Unlock()
	m.Unlock()

	if !m.TryLock() {
		return Result{name, errors.New("mutex did not fully release after matching unlocks")}
	}
	m.Unlock()

	return Result{name, nil}
}

// forkChain exercises spec.md §8's fork-chain scenario: a process forks
// ten times in a row, each child exits immediately, and the parent
// observes pids 2..11 with each child's exit status recorded.
func forkChain() Result {
	const name = "fork chain (10x)"

	parent, err := process.New(nil, noopConsole{})
	if err != nil {
		return Result{name, fmt.Errorf("creating initial process: %w", err)}
	}

	s := sched.New()
	s.Add(parent) // pid 1

	for i := 0; i < 10; i++ {
		child, status, err := parent.Fork()
		if err != nil {
			return Result{name, fmt.Errorf("fork %d: %w", i, err)}
		}
		pid := s.Add(child)
		parent.AdoptChild(status, pid)
		status.SetExitCode(0) // child "exits" immediately

		if want := uint64(i + 2); pid != want {
			return Result{name, fmt.Errorf("child %d got pid %d, want %d", i, pid, want)}
		}
	}

	if len(parent.Children) != 10 {
		return Result{name, fmt.Errorf("parent observed %d children, want 10", len(parent.Children))}
	}
	for i, status := range parent.Children {
		code, done := status.ExitCode()
		if !done || code != 0 {
			return Result{name, fmt.Errorf("child %d exit status not observed", i)}
		}
	}

	return Result{name, nil}
}

// noopConsole satisfies process.File for the fork-chain check's fd 0/1/2;
// the smoke test never reads or writes it.
type noopConsole struct{}

func (noopConsole) IsDir() bool                        { return false }
func (noopConsole) IsReadable() bool                   { return true }
func (noopConsole) IsWritable() bool                   { return true }
func (noopConsole) Size() (int64, error)               { return 0, nil }
func (noopConsole) Read(p []byte) (int, error)         { return 0, nil }
func (noopConsole) Write(p []byte) (int, error)        { return len(p), nil }
func (noopConsole) Seek(o int64, w int) (int64, error) { return 0, nil }
func (noopConsole) Readdir() ([]string, error)         { return nil, errors.New("not a directory") }
