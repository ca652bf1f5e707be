// Package process implements the core's process model (spec.md §4.4): a
// Process owns a trap frame, a kernel stack, a user page table, an fd
// table, and its parent/child bookkeeping.
//
// Grounded on the original implementation's kern/src/process/process.rs
// (Process::new/load/execve, get_stack_base/get_stack_top, the
// fork/argv-rebuild layout) translated into the teacher's idiom: exported
// methods returning (*T, error) instead of panicking Options, explicit
// structs instead of enum-with-payload state, and go:nosplit-free since
// process bookkeeping itself never runs before the heap is available.
package process

import (
	"fmt"
	"sync/atomic"

	"github.com/iansmith/nanokernel/internal/memmap"
	"github.com/iansmith/nanokernel/internal/trapframe"
	"github.com/iansmith/nanokernel/internal/vm"
)

// NoPID is the sentinel tpidr the idle thread installs, and the value
// returned by scheduler operations that have no process to report.
const NoPID = ^uint64(0)

// File is the capability set spec.md §3 requires of anything installed in
// a process's fd table: the console, a regular file, or a directory.
type File interface {
	IsDir() bool
	IsReadable() bool
	IsWritable() bool
	Size() (int64, error)
	Read(p []byte) (int, error)
	Write(p []byte) (int, error)
	Seek(offset int64, whence int) (int64, error)
	Readdir() ([]string, error)
}

// Loader is the filesystem interface §6 of spec.md treats as an external
// collaborator; Process.Load/Execve only need to open a path for reading.
type Loader interface {
	Open(path string) (File, error)
}

// ProcessFile is one fd-table entry: an offset paired with a shared handle
// to a File. Multiple fds may share one File (e.g. dup'd console fds).
type ProcessFile struct {
	Offset int64
	File    File
}

// StateKind tags the variant held in State.
type StateKind int

const (
	Ready StateKind = iota
	Running
	Waiting
	Dead
)

// PollFunc is Waiting's one-shot predicate: called on each scheduling
// attempt, it may mutate the process (including its trap frame, to deliver
// a syscall's return value) and returns true when the process should become
// Ready.
type PollFunc func(p *Process) bool

// State is the tagged-variant process state spec.md §3 describes.
type State struct {
	Kind StateKind
	Poll PollFunc // only meaningful when Kind == Waiting
}

// ChildStatus is the shared record a parent and its child both hold a
// reference to: the child mutates Done/ExitCode on exit, the parent reads
// them in wait.
type ChildStatus struct {
	PID      uint64
	Done     atomic.Bool
	hasCode  atomic.Bool
	exitCode atomic.Int32
}

// SetExitCode records the child's exit code and marks the status done.
// Safe to call exactly once, from the exiting process itself.
func (c *ChildStatus) SetExitCode(code int32) {
	c.exitCode.Store(code)
	c.hasCode.Store(true)
	c.Done.Store(true)
}

// ExitCode returns the recorded exit code and whether one has been set yet.
func (c *ChildStatus) ExitCode() (int32, bool) {
	return c.exitCode.Load(), c.hasCode.Load()
}

// SocketSlot is one entry in a process's socket table: spec.md §4.7's
// sock_create/connect/listen/send/recv family operate on these, keyed by
// the same small integer namespace file descriptors use, but in a
// separate table since a socket handle is opaque to internal/process
// (only internal/syscall and internal/driver/usbeth know what it means).
type SocketSlot struct {
	Handle int
}

// Process is one schedulable unit: spec.md §3's Process record.
type Process struct {
	ID uint64

	TrapFrame *trapframe.Frame

	KernelStack []byte // one page, owned exclusively by this process
	UserTable   *vm.UserTable

	State State

	Files   [8]*ProcessFile // fd table; fds 0/1/2 are console on creation
	Sockets [4]*SocketSlot  // socket table, spec.md §4.7

	Children []*ChildStatus // this process's children
	Parent   *ChildStatus   // nil for the first process
}

// New allocates a zeroed trap frame, a kernel stack, a user page table, and
// a file table with three console fds; state starts Ready (spec.md §4.4).
// console is whatever File implementation backs fd 0/1/2 (internal/driver
// wires in the UART console).
func New(parent *ChildStatus, console File) (*Process, error) {
	ut, err := vm.NewUserTable()
	if err != nil {
		return nil, fmt.Errorf("process: New: %w", err)
	}

	p := &Process{
		TrapFrame:   trapframe.New(),
		KernelStack: make([]byte, memmap.KernStackSize),
		UserTable:   ut,
		State:       State{Kind: Ready},
		Parent:      parent,
	}
	for fd := 0; fd < 3; fd++ {
		p.Files[fd] = &ProcessFile{File: console}
	}
	return p, nil
}

// stackBase is get_stack_base(): the top-of-address-space, aligned down to
// a page boundary — where the single stack page is allocated.
func stackBase() uintptr {
	return alignDown(memmap.UserStackBase, memmap.PageSize)
}

// stackTop is get_stack_top(): the maximum virtual address, aligned down
// to 128 bytes — the initial sp value, matching the AAPCS64 stack-alignment
// requirement at a function-call boundary. Aligning memmap.UserStackBase
// itself (already page-aligned) would return stackBase(), the bottom of
// the stack page rather than its top; the original aligns down the
// address space's maximum value (kern/src/process/process.rs's
// get_max_va(), !0) for exactly this reason.
func stackTop() uintptr {
	return alignDown(^uintptr(0), 128)
}

func alignDown(v uintptr, align uintptr) uintptr {
	return v &^ (align - 1)
}

// imagePages is how many 64 KiB chunks a file of the given byte length
// occupies, rounded up.
func imagePages(size int64) int {
	n := int(size) / memmap.PageSize
	if int(size)%memmap.PageSize != 0 {
		n++
	}
	return n
}

// heapPages is the fixed number of zeroed pages spec.md §4.4 step 4
// allocates above the image as initial heap.
const heapPages = 16

// Load implements Process::load(path, parent) (spec.md §4.4): opens path,
// allocates the stack page, copies the file image in 64 KiB chunks starting
// at USER_IMG_BASE, reserves heapPages of zeroed heap above the image, and
// sets the trap frame to the process's cold-start state.
func Load(fs Loader, path string, parent *ChildStatus, console File) (*Process, error) {
	p, err := New(parent, console)
	if err != nil {
		return nil, err
	}

	f, err := fs.Open(path)
	if err != nil {
		return nil, fmt.Errorf("process: Load: open %s: %w", path, err)
	}

	size, err := f.Size()
	if err != nil {
		return nil, fmt.Errorf("process: Load: size %s: %w", path, err)
	}

	p.UserTable.Alloc(stackBase(), vm.PermUserRW)

	if err := p.loadImage(f, size); err != nil {
		return nil, err
	}
	p.allocHeap(imagePages(size))

	p.resetEntryState()
	return p, nil
}

func (p *Process) loadImage(f File, size int64) error {
	buf := make([]byte, memmap.PageSize)
	for off := int64(0); off < size; off += memmap.PageSize {
		n, err := f.Read(buf)
		if n == 0 && err != nil {
			return fmt.Errorf("process: loadImage: read at %#x: %w", off, err)
		}
		page := p.UserTable.Alloc(memmap.UserImgBase+uintptr(off), vm.PermUserRW)
		copy(page, buf[:n])
	}
	return nil
}

func (p *Process) allocHeap(afterImagePages int) {
	base := memmap.UserImgBase + uintptr(afterImagePages)*memmap.PageSize
	for i := 0; i < heapPages; i++ {
		p.UserTable.Alloc(base+uintptr(i)*memmap.PageSize, vm.PermUserRW)
	}
}

// kernelTableBase is the physical address of the one kernel-wide page
// table, written into every process's trap frame. Set exactly once by
// SetKernelTableBase during boot, before the first call to Load or Execve.
var kernelTableBase uint64

// SetKernelTableBase records the kernel page table's base address for
// resetEntryState to stamp into every process's trap frame.
func SetKernelTableBase(base uint64) { kernelTableBase = base }

// resetEntryState sets pc/sp/table-bases/pstate to the cold-start values
// spec.md §4.4 step 5 describes, shared by Load and Execve.
func (p *Process) resetEntryState() {
	tf := p.TrapFrame
	tf.PC = uint64(memmap.UserImgBase)
	tf.SP = uint64(stackTop())
	tf.KernelTableBase = kernelTableBase
	tf.UserTableBase = uint64(p.UserTable.BaseAddr())
	tf.PState = trapframe.UserEntryPState
}

// IsReady implements spec.md §4.4's readiness check: if Waiting, run the
// poll and transition to Ready on a true result (the poll has already
// written any return values into the trap frame); Ready is eligible as-is;
// anything else is not.
func (p *Process) IsReady() bool {
	switch p.State.Kind {
	case Ready:
		return true
	case Waiting:
		if p.State.Poll != nil && p.State.Poll(p) {
			p.State = State{Kind: Ready}
			return true
		}
		return false
	default:
		return false
	}
}
